// Gaia World Sync - Real-Time World State Synchronization Engine
// Copyright 2026 Aeonia AI
// SPDX-License-Identifier: Apache-2.0
// https://github.com/Aeonia-ai/gaia-sub003

// Package session manages duplex client connections: it joins players
// into worlds, streams versioned world updates in order, and brings
// reconnecting or lagging clients back in sync via delta replay or a
// full snapshot.
package session

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/Aeonia-ai/gaia-sub003/internal/events"
	"github.com/Aeonia-ai/gaia-sub003/internal/logging"
	"github.com/Aeonia-ai/gaia-sub003/internal/metrics"
	"github.com/Aeonia-ai/gaia-sub003/internal/router"
	"github.com/Aeonia-ai/gaia-sub003/internal/view"
	"github.com/Aeonia-ai/gaia-sub003/internal/world"
)

// sessionIDCounter hands out monotonically increasing session IDs so
// hub operations iterate sessions in a stable order.
var sessionIDCounter atomic.Uint64

// Session is one connected client. A session owns three goroutines:
// the read pump (commands in), the write pump (frames out), and the
// event loop (ordered update delivery and resync).
type Session struct {
	id           uint64
	hub          *Hub
	conn         *websocket.Conn
	userID       string
	experienceID string

	// ctx spans the connection. Command dispatch deliberately runs on
	// the hub's base context instead, so a disconnect mid-narrative
	// never rolls back or abandons a commit in flight.
	ctx    context.Context
	cancel context.CancelFunc

	send         chan *Outbound
	eventsCh     chan *events.WorldUpdateEvent
	resyncSignal chan struct{}
	resumeCh     chan uint64

	limiter *rate.Limiter

	// Event-loop state, touched only by the event loop after start.
	lastVersion uint64
	subs        map[string]context.CancelFunc

	needResync atomic.Bool
	closeOnce  sync.Once
}

func newSession(hub *Hub, conn *websocket.Conn, experienceID, userID string) *Session {
	ctx, cancel := context.WithCancel(hub.baseCtx())
	var limiter *rate.Limiter
	if hub.cfg.CommandsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(hub.cfg.CommandsPerSecond), hub.cfg.Burst)
	}
	return &Session{
		id:           sessionIDCounter.Add(1),
		hub:          hub,
		conn:         conn,
		userID:       userID,
		experienceID: experienceID,
		ctx:          ctx,
		cancel:       cancel,
		send:         make(chan *Outbound, hub.cfg.SendQueue),
		eventsCh:     make(chan *events.WorldUpdateEvent, hub.cfg.SendQueue),
		resyncSignal: make(chan struct{}, 1),
		resumeCh:     make(chan uint64, 1),
		limiter:      limiter,
		subs:         make(map[string]context.CancelFunc),
	}
}

// ID returns the session's stable ordering key.
func (s *Session) ID() uint64 { return s.id }

// start joins the player into the world, sends the initial snapshot,
// subscribes to the player's topics, and launches the pumps.
func (s *Session) start(name string) error {
	doc, version, commit, err := s.hub.store.Join(s.ctx, s.experienceID, s.userID, name)
	if err != nil {
		return err
	}
	if commit != nil {
		// A first join is a committed mutation like any other: it fans
		// out to already-connected peers and lands in the replay buffer
		// so later resumes stay contiguous across it.
		if perr := s.hub.publisher.PublishCommitted(s.hub.baseCtx(), commit); perr != nil {
			logging.Warn().
				Err(perr).
				Str("user_id", s.userID).
				Str("experience_id", s.experienceID).
				Msg("join event publish failed, peers will converge via resync")
		}
	}
	v, err := view.Project(doc, s.userID, s.hub.rule)
	if err != nil {
		return err
	}
	s.lastVersion = version
	s.enqueue(&Outbound{Type: MsgTypeSnapshot, Version: version, View: v})
	s.setTopics(v.Topics())

	metrics.ActiveSessions.Inc()
	go s.writePump()
	go s.readPump()
	go s.eventLoop()
	return nil
}

// readPump reads client frames until the connection drops. Command
// dispatch is synchronous, so one client's commands execute in the
// order they were sent.
func (s *Session) readPump() {
	defer s.close()

	s.conn.SetReadLimit(s.hub.cfg.MaxMessageSize)
	if err := s.conn.SetReadDeadline(time.Now().Add(s.hub.cfg.PongTimeout)); err != nil {
		logging.Error().Err(err).Msg("failed to set read deadline")
		return
	}
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(s.hub.cfg.PongTimeout))
	})

	for {
		var in Inbound
		if err := s.conn.ReadJSON(&in); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.Warn().Err(err).Str("user_id", s.userID).Msg("unexpected websocket close")
			}
			return
		}

		switch in.Type {
		case MsgTypePing:
			s.enqueue(&Outbound{Type: MsgTypePong})
		case MsgTypeResume:
			s.requestResyncFrom(in.LastVersion)
		case MsgTypeCommand:
			s.handleCommand(&in)
		default:
			s.enqueue(errorFrame(world.NewValidation("unknown message type %q", in.Type)))
		}
	}
}

func (s *Session) handleCommand(in *Inbound) {
	if in.Verb == "" && in.Text == "" {
		s.enqueue(errorFrame(world.NewValidation("command requires a verb or text")))
		return
	}
	if s.limiter != nil && !s.limiter.Allow() {
		s.enqueue(errorFrame(world.NewValidation("too many commands, slow down")))
		return
	}

	verb := in.Verb
	if verb == "" {
		verb = strings.Fields(in.Text)[0]
	}
	cmd := &router.Command{
		UserID:       s.userID,
		ExperienceID: s.experienceID,
		Verb:         verb,
		Args:         in.Args,
		Text:         in.Text,
	}

	// The hub's base context keeps a mid-flight narrative command
	// running to completion even if this client disconnects; its
	// commit stands and only the result frame is lost.
	res := s.hub.router.Dispatch(s.hub.baseCtx(), cmd)
	s.enqueue(resultFrame(res))
}

// eventLoop serializes update delivery: events arrive from topic
// subscriptions, get delivered strictly in version order, and any gap
// or backpressure drop escalates to a resync.
func (s *Session) eventLoop() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.resyncSignal:
			s.resync()
		case v := <-s.resumeCh:
			// The cursor only moves backwards; a client can never skip
			// ahead past updates it hasn't seen.
			if v < s.lastVersion {
				s.lastVersion = v
			}
			s.resync()
		case e := <-s.eventsCh:
			s.handleEvent(e)
			if s.needResync.Load() {
				s.resync()
			}
		}
	}
}

func (s *Session) handleEvent(e *events.WorldUpdateEvent) {
	switch {
	case e.Version == 0:
		// World reset: the version counter restarted, only a fresh
		// snapshot can describe the document now.
		s.needResync.Store(true)
	case e.Version <= s.lastVersion:
		// Duplicate delivery; applying a version at most once keeps
		// redelivery harmless.
	case e.Version == s.lastVersion+1:
		s.enqueue(&Outbound{Type: MsgTypeWorldUpdate, Version: e.Version, Changes: e.Changes})
		s.lastVersion = e.Version
		if s.movedSelf(e.Changes) {
			s.refreshTopics()
		}
	default:
		// Gap: an intermediate update was missed.
		s.needResync.Store(true)
	}
}

// movedSelf reports whether a change set relocates this session's
// player, which shifts their visibility scope and thus their topics.
func (s *Session) movedSelf(changes []world.Change) bool {
	prefix := "/players/" + s.userID
	for i := range changes {
		if changes[i].Path == prefix+"/location" || changes[i].Path == prefix {
			return true
		}
	}
	return false
}

// resync brings the client back to the current version, preferring a
// contiguous delta replay and falling back to a full snapshot. The
// store's version is the arbiter: a replay only counts when it lands the
// cursor on the current version, since an empty or partial ring cannot
// prove the client is caught up.
func (s *Session) resync() {
	s.needResync.Store(false)

	doc, version, err := s.hub.store.Get(s.ctx, s.experienceID, s.userID)
	if err != nil {
		s.enqueue(errorFrame(err))
		return
	}

	unitKey := s.hub.unitKey(s.experienceID, s.userID)
	if evs, ok := s.hub.replay.Since(unitKey, s.lastVersion); ok {
		for _, e := range evs {
			s.enqueue(&Outbound{Type: MsgTypeWorldUpdate, Version: e.Version, Changes: e.Changes})
			s.lastVersion = e.Version
		}
		if s.lastVersion >= version {
			metrics.SessionResyncs.WithLabelValues("replay").Inc()
			s.refreshTopics()
			return
		}
	}

	v, err := view.Project(doc, s.userID, s.hub.rule)
	if err != nil {
		s.enqueue(errorFrame(err))
		return
	}
	s.lastVersion = version
	s.enqueue(&Outbound{Type: MsgTypeSnapshot, Version: version, View: v})
	s.setTopics(v.Topics())
	metrics.SessionResyncs.WithLabelValues("snapshot").Inc()
}

// requestResyncFrom hands the client's last applied version to the
// event loop, which rewinds its cursor and resyncs. Called from the
// read pump.
func (s *Session) requestResyncFrom(lastVersion uint64) {
	select {
	case s.resumeCh <- lastVersion:
	default:
		s.flagResync()
	}
}

// refreshTopics re-derives the topic set from a fresh projection, for
// when the player's visibility scope changed.
func (s *Session) refreshTopics() {
	doc, _, err := s.hub.store.Get(s.ctx, s.experienceID, s.userID)
	if err != nil {
		logging.Warn().Err(err).Str("user_id", s.userID).Msg("topic refresh failed")
		return
	}
	v, err := view.Project(doc, s.userID, s.hub.rule)
	if err != nil {
		logging.Warn().Err(err).Str("user_id", s.userID).Msg("topic refresh projection failed")
		return
	}
	s.setTopics(v.Topics())
}

// setTopics reconciles active subscriptions against the wanted set.
func (s *Session) setTopics(topics []string) {
	wanted := make(map[string]struct{}, len(topics))
	for _, t := range topics {
		wanted[t] = struct{}{}
	}
	for t, cancel := range s.subs {
		if _, ok := wanted[t]; !ok {
			cancel()
			delete(s.subs, t)
		}
	}
	for t := range wanted {
		if _, ok := s.subs[t]; ok {
			continue
		}
		if err := s.subscribe(t); err != nil {
			logging.Warn().Err(err).Str("topic", t).Msg("topic subscription failed")
		}
	}
}

// subscribe consumes one topic and forwards its events to the event
// loop. Messages are acked on receipt; ordering and duplicates are
// handled by version checks, not by the bus.
func (s *Session) subscribe(topic string) error {
	ctx, cancel := context.WithCancel(s.ctx)
	ch, err := s.hub.bus.Subscribe(ctx, topic)
	if err != nil {
		cancel()
		return err
	}
	s.subs[topic] = cancel

	go func() {
		for msg := range ch {
			e, err := events.Unmarshal(msg)
			msg.Ack()
			if err != nil {
				logging.Warn().Err(err).Str("topic", topic).Msg("undecodable world update dropped")
				continue
			}
			select {
			case s.eventsCh <- e:
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

// enqueue places a frame on the bounded send queue. When the queue is
// full the oldest frame is dropped and the session is flagged for
// resync, so a slow client falls behind in whole versions rather than
// blocking the world.
func (s *Session) enqueue(out *Outbound) {
	select {
	case s.send <- out:
		return
	default:
	}

	select {
	case <-s.send:
		metrics.DeltasDropped.Inc()
		s.flagResync()
	default:
	}

	select {
	case s.send <- out:
	case <-s.ctx.Done():
	}
}

func (s *Session) flagResync() {
	s.needResync.Store(true)
	select {
	case s.resyncSignal <- struct{}{}:
	default:
	}
}

// writePump drains the send queue to the connection and keeps the
// connection alive with periodic pings.
func (s *Session) writePump() {
	pingPeriod := s.hub.cfg.PongTimeout * 9 / 10
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.close()
	}()

	for {
		select {
		case <-s.ctx.Done():
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.hub.cfg.WriteTimeout))
			_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case out := <-s.send:
			if err := s.conn.SetWriteDeadline(time.Now().Add(s.hub.cfg.WriteTimeout)); err != nil {
				return
			}
			if err := s.conn.WriteJSON(out); err != nil {
				return
			}

		case <-ticker.C:
			if err := s.conn.SetWriteDeadline(time.Now().Add(s.hub.cfg.WriteTimeout)); err != nil {
				return
			}
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// close tears the session down exactly once: cancels subscriptions and
// pumps, closes the connection, and unregisters from the hub.
func (s *Session) close() {
	s.closeOnce.Do(func() {
		s.cancel()
		_ = s.conn.Close()
		s.hub.unregister(s)
		metrics.ActiveSessions.Dec()
	})
}
