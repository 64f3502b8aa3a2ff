// Gaia World Sync - Real-Time World State Synchronization Engine
// Copyright 2026 Aeonia AI
// SPDX-License-Identifier: Apache-2.0
// https://github.com/Aeonia-ai/gaia-sub003

// Package store owns the authoritative, versioned world documents.
//
// Each mutable-world unit (an experience under the shared model, an
// (experience, player) pair under the isolated model) is guarded by its
// own mutex, so commits within a unit are strictly serialized while
// different units proceed fully in parallel. Mutation is optimistic:
// callers present the version their proposal was computed against, and a
// mismatch yields a conflict without touching the document.
package store

import (
	"context"
	"sync"
	"time"

	"github.com/Aeonia-ai/gaia-sub003/internal/logging"
	"github.com/Aeonia-ai/gaia-sub003/internal/metrics"
	"github.com/Aeonia-ai/gaia-sub003/internal/world"
)

// Model selects how documents map to players.
type Model string

const (
	// ModelShared keeps exactly one document per experience; all
	// players read and write the same instance.
	ModelShared Model = "shared"

	// ModelIsolated lazily clones an independent document per
	// (experience, player) pair from the experience template.
	ModelIsolated Model = "isolated"
)

// Commit describes one successfully applied mutation. The Applied list
// is exactly what was committed, so the update publisher broadcasts what
// landed rather than what was requested.
type Commit struct {
	ExperienceID string
	UserID       string
	Version      uint64
	Applied      []world.Change
}

// unit is one mutable-world unit and its critical section.
type unit struct {
	mu          sync.Mutex
	doc         *world.Document
	quarantined bool
	lastAccess  time.Time
}

// Store is the state store. Only the store mutates world documents; all
// other components treat them as read-only or propose-only.
type Store struct {
	model   Model
	persist Persistence

	tmu       sync.RWMutex
	templates map[string]*world.Template

	umu   sync.Mutex
	units map[string]*unit
}

// New creates a Store over the given persistence backend.
func New(model Model, persist Persistence) *Store {
	return &Store{
		model:     model,
		persist:   persist,
		templates: make(map[string]*world.Template),
		units:     make(map[string]*unit),
	}
}

// Model returns the configured document model.
func (s *Store) Model() Model { return s.model }

// RegisterTemplate defines an experience. Experiences without a
// registered template are unknown and every operation on them fails
// with a not-found error.
func (s *Store) RegisterTemplate(t *world.Template) {
	s.tmu.Lock()
	defer s.tmu.Unlock()
	s.templates[t.ExperienceID] = t
}

func (s *Store) template(experienceID string) *world.Template {
	s.tmu.RLock()
	defer s.tmu.RUnlock()
	return s.templates[experienceID]
}

// unitKey derives the critical-section key for a unit.
func (s *Store) unitKey(experienceID, userID string) string {
	if s.model == ModelIsolated {
		return experienceID + "/" + userID
	}
	return experienceID
}

func (s *Store) getUnit(key string) *unit {
	s.umu.Lock()
	defer s.umu.Unlock()
	u, ok := s.units[key]
	if !ok {
		u = &unit{}
		s.units[key] = u
	}
	u.lastAccess = time.Now()
	return u
}

// loadLocked populates u.doc from persistence or the template. Caller
// holds u.mu. A corrupt persisted document quarantines the unit: reads
// keep serving whatever known-good snapshot is in memory, mutation is
// refused until the stored bytes are repaired out of band.
func (s *Store) loadLocked(u *unit, experienceID, userID, key string) error {
	if u.doc != nil || u.quarantined {
		return nil
	}

	tmpl := s.template(experienceID)
	if tmpl == nil {
		return world.NewNotFound("experience %s is not defined", experienceID)
	}

	data, ok, err := s.persist.Load(key)
	if err != nil {
		return world.NewInternal("load unit "+key, err)
	}
	if ok {
		doc, derr := decodeDocument(data)
		if derr != nil {
			u.quarantined = true
			logging.Error().Err(derr).Str("unit", key).Msg("stored document is corrupt, unit quarantined")
			return world.NewInternal("stored document for "+key+" is corrupt", derr)
		}
		u.doc = doc
		return nil
	}

	doc, err := tmpl.Instantiate()
	if err != nil {
		return err
	}
	data, err = encodeDocument(doc)
	if err != nil {
		return err
	}
	if err := s.persist.Save(key, data); err != nil {
		return world.NewInternal("persist bootstrapped unit "+key, err)
	}
	u.doc = doc
	logging.Info().Str("unit", key).Str("experience_id", experienceID).Msg("world document bootstrapped from template")
	return nil
}

// Get returns the current document snapshot and its version. The
// returned document must be treated as read-only: commits never mutate
// a previously returned snapshot, they swap in a new one.
func (s *Store) Get(ctx context.Context, experienceID, userID string) (*world.Document, uint64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	key := s.unitKey(experienceID, userID)
	u := s.getUnit(key)

	u.mu.Lock()
	defer u.mu.Unlock()

	if err := s.loadLocked(u, experienceID, userID, key); err != nil {
		if u.quarantined && u.doc != nil {
			// Last known-good snapshot keeps serving reads.
			return u.doc, u.doc.Meta.Version, nil
		}
		return nil, 0, err
	}
	return u.doc, u.doc.Meta.Version, nil
}

// Apply commits a change set against the expected version.
//
// The critical section re-validates the version (conflict on mismatch,
// nothing mutated), applies the changes to a clone, persists the clone,
// and only then swaps it in as the authoritative document with the
// version incremented by exactly 1. The applied change list is returned
// verbatim for publication.
//
// Apply performs no blocking external calls besides the persistence
// write; any external computation must happen before Apply using a
// snapshot from Get.
func (s *Store) Apply(ctx context.Context, experienceID, userID string, expectedVersion uint64, changes []world.Change) (*Commit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(changes) == 0 {
		return nil, world.NewValidation("empty change set")
	}

	key := s.unitKey(experienceID, userID)
	u := s.getUnit(key)

	u.mu.Lock()
	defer u.mu.Unlock()

	if err := s.loadLocked(u, experienceID, userID, key); err != nil {
		return nil, err
	}
	if u.quarantined {
		return nil, world.NewInternal("unit "+key+" is quarantined", nil)
	}

	if u.doc.Meta.Version != expectedVersion {
		metrics.CommitConflicts.Inc()
		return nil, world.NewConflict("version mismatch: have %d, expected %d", u.doc.Meta.Version, expectedVersion)
	}

	next, err := u.doc.Clone()
	if err != nil {
		return nil, err
	}
	if err := world.ApplyChanges(next, changes); err != nil {
		return nil, err
	}
	next.Meta.Version = expectedVersion + 1

	data, err := encodeDocument(next)
	if err != nil {
		return nil, err
	}
	if err := s.persist.Save(key, data); err != nil {
		return nil, world.NewInternal("persist commit for "+key, err)
	}

	u.doc = next
	metrics.CommitsTotal.Inc()
	metrics.WorldVersion.WithLabelValues(key).Set(float64(next.Meta.Version))

	return &Commit{
		ExperienceID: experienceID,
		UserID:       userID,
		Version:      next.Meta.Version,
		Applied:      changes,
	}, nil
}

// Join ensures the player exists in their unit's document, placing new
// players at the template's entry area. The join itself is a committed
// change set, so it versions and replays like any other mutation. When
// this call performed the commit the Commit is returned for publication;
// a rejoin commits nothing and returns a nil Commit.
func (s *Store) Join(ctx context.Context, experienceID, userID, name string) (*world.Document, uint64, *Commit, error) {
	for {
		doc, version, err := s.Get(ctx, experienceID, userID)
		if err != nil {
			return nil, 0, nil, err
		}
		if doc.Player(userID) != nil {
			return doc, version, nil, nil
		}

		tmpl := s.template(experienceID)
		entry := tmpl.EntryArea()
		if entry == nil {
			return nil, 0, nil, world.NewInternal("experience "+experienceID+" has no entry area", nil)
		}
		state := world.PlayerState{
			ID:       userID,
			Name:     name,
			AreaID:   entry.ID,
			JoinedAt: time.Now().UTC(),
		}
		if len(entry.Spots) > 0 {
			state.SpotID = entry.Spots[0].ID
		}
		change, err := world.NewChange("/players/"+userID, world.OpAdd, state)
		if err != nil {
			return nil, 0, nil, err
		}

		commit, err := s.Apply(ctx, experienceID, userID, version, []world.Change{change})
		if err == nil {
			doc, _, gerr := s.Get(ctx, experienceID, userID)
			if gerr != nil {
				return nil, 0, nil, gerr
			}
			return doc, commit.Version, commit, nil
		}
		if world.IsKind(err, world.KindConflict) {
			continue // another commit landed between Get and Apply; re-check
		}
		if world.IsKind(err, world.KindValidation) {
			// Concurrent join added the player already.
			doc, version, gerr := s.Get(ctx, experienceID, userID)
			if gerr == nil && doc.Player(userID) != nil {
				return doc, version, nil, nil
			}
		}
		return nil, 0, nil, err
	}
}

// Reset replaces the unit's document with a fresh template instance at
// version 0. This is the explicit administrative reset; documents are
// never deleted during normal operation.
func (s *Store) Reset(ctx context.Context, experienceID, userID string) (*Commit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tmpl := s.template(experienceID)
	if tmpl == nil {
		return nil, world.NewNotFound("experience %s is not defined", experienceID)
	}

	key := s.unitKey(experienceID, userID)
	u := s.getUnit(key)

	u.mu.Lock()
	defer u.mu.Unlock()

	doc, err := tmpl.Instantiate()
	if err != nil {
		return nil, err
	}
	data, err := encodeDocument(doc)
	if err != nil {
		return nil, err
	}
	if err := s.persist.Save(key, data); err != nil {
		return nil, world.NewInternal("persist reset for "+key, err)
	}

	u.doc = doc
	u.quarantined = false
	metrics.WorldVersion.WithLabelValues(key).Set(0)
	logging.Info().Str("unit", key).Msg("world document reset to template")

	return &Commit{ExperienceID: experienceID, UserID: userID, Version: 0}, nil
}

// EvictIdle drops in-memory units untouched for longer than idleFor.
// Persisted state is unaffected; the next Get reloads the document.
// Returns the number of evicted units.
func (s *Store) EvictIdle(idleFor time.Duration) int {
	cutoff := time.Now().Add(-idleFor)
	evicted := 0

	s.umu.Lock()
	defer s.umu.Unlock()
	for key, u := range s.units {
		if !u.lastAccess.Before(cutoff) {
			continue
		}
		// Skip units mid-commit rather than blocking the sweep.
		if !u.mu.TryLock() {
			continue
		}
		delete(s.units, key)
		u.mu.Unlock()
		evicted++
	}
	if evicted > 0 {
		logging.Debug().Int("evicted", evicted).Msg("idle world units evicted")
	}
	return evicted
}

// EvictionService periodically evicts idle units. It implements
// suture.Service via its Serve method.
type EvictionService struct {
	Store    *Store
	Interval time.Duration
	IdleFor  time.Duration
}

// Serve runs the eviction loop until the context is canceled.
func (e *EvictionService) Serve(ctx context.Context) error {
	interval := e.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	idleFor := e.IdleFor
	if idleFor <= 0 {
		idleFor = 30 * time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			e.Store.EvictIdle(idleFor)
		}
	}
}
