// Gaia World Sync - Real-Time World State Synchronization Engine
// Copyright 2026 Aeonia AI
// SPDX-License-Identifier: Apache-2.0
// https://github.com/Aeonia-ai/gaia-sub003

package events

import (
	"context"
	"time"

	"github.com/Aeonia-ai/gaia-sub003/internal/bus"
	"github.com/Aeonia-ai/gaia-sub003/internal/logging"
	"github.com/Aeonia-ai/gaia-sub003/internal/metrics"
	"github.com/Aeonia-ai/gaia-sub003/internal/store"
)

// Publisher turns committed mutations into world update events and fans
// them out through the event bus.
//
// The committed mutation is never rolled back because of a delivery
// failure: the state store is authoritative, publish failures are
// retried with backoff, and clients that miss an event converge through
// the resync path.
type Publisher struct {
	bus      bus.Bus
	buffer   *ReplayBuffer
	isolated bool

	maxAttempts int
	baseBackoff time.Duration
}

// NewPublisher creates a Publisher. The replay buffer is shared with
// the connection manager, which reads it during reconnect catch-up.
func NewPublisher(b bus.Bus, buffer *ReplayBuffer, isolated bool) *Publisher {
	return &Publisher{
		bus:         b,
		buffer:      buffer,
		isolated:    isolated,
		maxAttempts: 3,
		baseBackoff: 100 * time.Millisecond,
	}
}

// UnitKey derives the replay-buffer key for a commit, mirroring the
// state store's unit keying.
func (p *Publisher) UnitKey(experienceID, userID string) string {
	if p.isolated {
		return experienceID + "/" + userID
	}
	return experienceID
}

// PublishCommitted builds and publishes the event for one commit. The
// event carries exactly the applied changes reported by the store.
//
// The event is appended to the replay buffer before the first publish
// attempt, so reconnect catch-up works even when the bus is down.
func (p *Publisher) PublishCommitted(ctx context.Context, commit *store.Commit) error {
	scope, scopeKey := ClassifyScope(p.isolated, commit.UserID, commit.Applied)
	event := NewWorldUpdateEvent(commit.ExperienceID, commit.Version, scope, scopeKey, commit.Applied)

	p.buffer.Append(p.UnitKey(commit.ExperienceID, commit.UserID), event)

	msg, err := event.Marshal()
	if err != nil {
		return err
	}
	topic := event.Topic()

	var lastErr error
	backoff := p.baseBackoff
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if lastErr = p.bus.Publish(topic, msg); lastErr == nil {
			metrics.EventsPublished.WithLabelValues(string(scope)).Inc()
			return nil
		}
		metrics.EventPublishFailures.Inc()
		logging.Warn().
			Err(lastErr).
			Str("topic", topic).
			Uint64("version", event.Version).
			Int("attempt", attempt).
			Msg("event publish failed")
		if attempt < p.maxAttempts {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
	}

	logging.Error().
		Err(lastErr).
		Str("topic", topic).
		Uint64("version", event.Version).
		Msg("event publish exhausted retries, clients will converge via resync")
	return lastErr
}

// NotifyReset drops the unit's replay buffer after an administrative
// reset and broadcasts a global event at version 0 so connected clients
// request a fresh snapshot.
func (p *Publisher) NotifyReset(ctx context.Context, commit *store.Commit) error {
	p.buffer.Drop(p.UnitKey(commit.ExperienceID, commit.UserID))
	event := NewWorldUpdateEvent(commit.ExperienceID, 0, ScopeGlobal, "", nil)

	msg, err := event.Marshal()
	if err != nil {
		return err
	}
	if err := p.bus.Publish(event.Topic(), msg); err != nil {
		metrics.EventPublishFailures.Inc()
		return err
	}
	metrics.EventsPublished.WithLabelValues(string(ScopeGlobal)).Inc()
	return nil
}
