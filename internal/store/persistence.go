// Gaia World Sync - Real-Time World State Synchronization Engine
// Copyright 2026 Aeonia AI
// SPDX-License-Identifier: Apache-2.0
// https://github.com/Aeonia-ai/gaia-sub003

package store

import (
	"errors"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"
	json "github.com/goccy/go-json"

	"github.com/Aeonia-ai/gaia-sub003/internal/logging"
	"github.com/Aeonia-ai/gaia-sub003/internal/world"
)

// Persistence is the durable storage capability consumed by the store.
// Documents are saved on every commit and loaded on first contact; how
// and where they are durably stored is outside the engine's scope.
type Persistence interface {
	// Load returns the stored document bytes for a unit key, or
	// ok=false when nothing is stored.
	Load(key string) (data []byte, ok bool, err error)

	// Save durably stores the document bytes for a unit key.
	Save(key string, data []byte) error

	// Delete removes the stored document for a unit key.
	Delete(key string) error

	// Close releases storage resources.
	Close() error
}

const docKeyPrefix = "doc:"

// BadgerPersistence stores world documents in an embedded BadgerDB.
// Writes are ACID and fsynced, so a committed version survives a crash.
type BadgerPersistence struct {
	db *badger.DB

	mu     sync.Mutex
	closed bool
}

// BadgerConfig configures the embedded document store.
type BadgerConfig struct {
	// Path is the on-disk directory. Empty selects in-memory mode,
	// which is useful for tests and ephemeral experiences.
	Path string

	// SyncWrites forces fsync on every commit. Defaults to true; turn
	// off only when losing the newest commits on crash is acceptable.
	SyncWrites bool
}

// OpenBadger opens (or creates) the document store.
func OpenBadger(cfg BadgerConfig) (*BadgerPersistence, error) {
	opts := badger.DefaultOptions(cfg.Path).
		WithSyncWrites(cfg.SyncWrites).
		WithLogger(nil)
	if cfg.Path == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger document store: %w", err)
	}
	logging.Info().Str("path", cfg.Path).Bool("in_memory", cfg.Path == "").Msg("document store opened")
	return &BadgerPersistence{db: db}, nil
}

// Load implements Persistence.
func (b *BadgerPersistence) Load(key string) ([]byte, bool, error) {
	var data []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(docKeyPrefix + key))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load document %s: %w", key, err)
	}
	return data, true, nil
}

// Save implements Persistence.
func (b *BadgerPersistence) Save(key string, data []byte) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(docKeyPrefix+key), data)
	})
	if err != nil {
		return fmt.Errorf("save document %s: %w", key, err)
	}
	return nil
}

// Delete implements Persistence.
func (b *BadgerPersistence) Delete(key string) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(docKeyPrefix + key))
	})
	if err != nil {
		return fmt.Errorf("delete document %s: %w", key, err)
	}
	return nil
}

// Close implements Persistence.
func (b *BadgerPersistence) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.db.Close()
}

// MemoryPersistence is a map-backed Persistence for tests.
type MemoryPersistence struct {
	mu   sync.RWMutex
	data map[string][]byte

	// FailSaves makes every Save fail, for commit-failure tests.
	FailSaves bool
}

// NewMemoryPersistence returns an empty in-memory store.
func NewMemoryPersistence() *MemoryPersistence {
	return &MemoryPersistence{data: make(map[string][]byte)}
}

// Load implements Persistence.
func (m *MemoryPersistence) Load(key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, true, nil
}

// Save implements Persistence.
func (m *MemoryPersistence) Save(key string, data []byte) error {
	if m.FailSaves {
		return errors.New("save disabled")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := make([]byte, len(data))
	copy(stored, data)
	m.data[key] = stored
	return nil
}

// Delete implements Persistence.
func (m *MemoryPersistence) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// Close implements Persistence.
func (m *MemoryPersistence) Close() error { return nil }

// Corrupt overwrites a stored document with unparsable bytes, for
// quarantine tests.
func (m *MemoryPersistence) Corrupt(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = []byte("{not json")
}

func encodeDocument(doc *world.Document) ([]byte, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, world.NewInternal("encode document", err)
	}
	return data, nil
}

func decodeDocument(data []byte) (*world.Document, error) {
	var doc world.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, world.NewInternal("decode stored document", err)
	}
	return &doc, nil
}
