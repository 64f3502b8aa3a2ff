// Gaia World Sync - Real-Time World State Synchronization Engine
// Copyright 2026 Aeonia AI
// SPDX-License-Identifier: Apache-2.0
// https://github.com/Aeonia-ai/gaia-sub003

package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Aeonia-ai/gaia-sub003/internal/bus"
	"github.com/Aeonia-ai/gaia-sub003/internal/config"
	"github.com/Aeonia-ai/gaia-sub003/internal/events"
	"github.com/Aeonia-ai/gaia-sub003/internal/logging"
	"github.com/Aeonia-ai/gaia-sub003/internal/router"
	"github.com/Aeonia-ai/gaia-sub003/internal/store"
	"github.com/Aeonia-ai/gaia-sub003/internal/view"
)

// Hub tracks the active sessions and owns their shared dependencies.
// Lifecycle events flow through channels so session bookkeeping is
// serialized in one goroutine, the same way updates are serialized per
// session.
type Hub struct {
	store     *store.Store
	bus       bus.Bus
	replay    *events.ReplayBuffer
	publisher *events.Publisher
	router    *router.Router
	rule      view.ScopeRule
	cfg       config.SessionConfig
	isolated  bool

	register     chan *Session
	unregisterCh chan *Session

	mu       sync.RWMutex
	sessions map[*Session]bool

	ctxMu sync.RWMutex
	ctx   context.Context
}

// NewHub creates a Hub. The publisher fans out the join commits that
// sessions land when a player first connects.
func NewHub(
	st *store.Store,
	b bus.Bus,
	replay *events.ReplayBuffer,
	publisher *events.Publisher,
	rt *router.Router,
	rule view.ScopeRule,
	cfg config.SessionConfig,
	isolated bool,
) *Hub {
	return &Hub{
		store:        st,
		bus:          b,
		replay:       replay,
		publisher:    publisher,
		router:       rt,
		rule:         rule,
		cfg:          cfg,
		isolated:     isolated,
		register:     make(chan *Session),
		unregisterCh: make(chan *Session),
		sessions:     make(map[*Session]bool),
		ctx:          context.Background(),
	}
}

// unitKey mirrors the store's world unit keying for replay lookups.
func (h *Hub) unitKey(experienceID, userID string) string {
	if h.isolated {
		return experienceID + "/" + userID
	}
	return experienceID
}

func (h *Hub) baseCtx() context.Context {
	h.ctxMu.RLock()
	defer h.ctxMu.RUnlock()
	return h.ctx
}

func (h *Hub) unregister(s *Session) {
	select {
	case h.unregisterCh <- s:
	case <-h.baseCtx().Done():
	}
}

// RunWithContext runs the hub's lifecycle loop under supervision. When
// the context is canceled every session is closed deterministically and
// the method returns ctx.Err() so the supervisor sees a clean stop.
func (h *Hub) RunWithContext(ctx context.Context) error {
	h.ctxMu.Lock()
	h.ctx = ctx
	h.ctxMu.Unlock()

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return ctx.Err()

		case s := <-h.register:
			h.mu.Lock()
			h.sessions[s] = true
			total := len(h.sessions)
			h.mu.Unlock()
			logging.Info().
				Str("user_id", s.userID).
				Str("experience_id", s.experienceID).
				Int("total_sessions", total).
				Msg("session connected")

		case s := <-h.unregisterCh:
			h.mu.Lock()
			delete(h.sessions, s)
			total := len(h.sessions)
			h.mu.Unlock()
			logging.Info().
				Str("user_id", s.userID).
				Str("experience_id", s.experienceID).
				Int("total_sessions", total).
				Msg("session disconnected")
		}
	}
}

// Serve implements suture.Service.
func (h *Hub) Serve(ctx context.Context) error {
	return h.RunWithContext(ctx)
}

func (h *Hub) String() string { return "session-hub" }

// closeAll tears down every session in ID order so shutdown behavior is
// reproducible.
func (h *Hub) closeAll() {
	h.mu.Lock()
	sessions := make([]*Session, 0, len(h.sessions))
	for s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.sessions = make(map[*Session]bool)
	h.mu.Unlock()

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].id < sessions[j].id
	})
	for _, s := range sessions {
		s.close()
	}
	logging.Info().Int("sessions_closed", len(sessions)).Msg("session hub stopped")
}

// SessionCount returns the number of connected sessions.
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// attach registers a session and starts it, waiting briefly for the
// lifecycle loop to accept the registration.
func (h *Hub) attach(s *Session, name string) error {
	select {
	case h.register <- s:
	case <-time.After(5 * time.Second):
		s.cancel()
		_ = s.conn.Close()
		return context.DeadlineExceeded
	}
	if err := s.start(name); err != nil {
		s.close()
		return err
	}
	return nil
}
