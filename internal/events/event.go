// Gaia World Sync - Real-Time World State Synchronization Engine
// Copyright 2026 Aeonia AI
// SPDX-License-Identifier: Apache-2.0
// https://github.com/Aeonia-ai/gaia-sub003

// Package events defines versioned world update events, their topic
// scheme, and the publisher that fans committed mutations out to
// connected clients through the event bus.
package events

import (
	"strings"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/Aeonia-ai/gaia-sub003/internal/world"
)

// Scope identifies the audience of a world update event.
type Scope string

const (
	// ScopePlayer targets a single player's private topic.
	ScopePlayer Scope = "player"
	// ScopeArea targets everyone whose visibility scope includes one
	// area.
	ScopeArea Scope = "area"
	// ScopeGlobal targets every player in the experience.
	ScopeGlobal Scope = "global"
)

// WorldUpdateEvent is one committed change set, tagged with the version
// it produced. Events carry exactly the changes the state store applied,
// never the originally proposed ones.
type WorldUpdateEvent struct {
	EventID      string         `json:"event_id"`
	ExperienceID string         `json:"experience_id"`
	Version      uint64         `json:"version"`
	Scope        Scope          `json:"scope"`
	ScopeKey     string         `json:"scope_key,omitempty"`
	Changes      []world.Change `json:"changes"`
	OccurredAt   time.Time      `json:"occurred_at"`
}

// NewWorldUpdateEvent builds an event with a fresh ID and timestamp.
func NewWorldUpdateEvent(experienceID string, version uint64, scope Scope, scopeKey string, changes []world.Change) *WorldUpdateEvent {
	return &WorldUpdateEvent{
		EventID:      uuid.New().String(),
		ExperienceID: experienceID,
		Version:      version,
		Scope:        scope,
		ScopeKey:     scopeKey,
		Changes:      changes,
		OccurredAt:   time.Now().UTC(),
	}
}

// Topic returns the bus subject for this event.
//
//	world.<experience>.player.<user>
//	world.<experience>.area.<area>
//	world.<experience>.global
func (e *WorldUpdateEvent) Topic() string {
	switch e.Scope {
	case ScopePlayer:
		return "world." + e.ExperienceID + ".player." + e.ScopeKey
	case ScopeArea:
		return "world." + e.ExperienceID + ".area." + e.ScopeKey
	default:
		return "world." + e.ExperienceID + ".global"
	}
}

// Marshal encodes the event for the bus, carrying routing hints in
// message metadata.
func (e *WorldUpdateEvent) Marshal() (*message.Message, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, world.NewInternal("encode world update event", err)
	}
	msg := message.NewMessage(e.EventID, data)
	msg.Metadata.Set("experience_id", e.ExperienceID)
	msg.Metadata.Set("scope", string(e.Scope))
	return msg, nil
}

// Unmarshal decodes an event from a bus message.
func Unmarshal(msg *message.Message) (*WorldUpdateEvent, error) {
	var e WorldUpdateEvent
	if err := json.Unmarshal(msg.Payload, &e); err != nil {
		return nil, world.NewInternal("decode world update event", err)
	}
	return &e, nil
}

// ClassifyScope derives an event's scope from the change paths it
// carries.
//
// Under the isolated model everything is player-scoped: the document
// itself belongs to one player. Under the shared model, changes that
// only touch one player's private overlay stay on their topic; changes
// confined to a single area go to that area's topic; anything mixed or
// wider broadcasts to the experience.
func ClassifyScope(isolated bool, userID string, changes []world.Change) (Scope, string) {
	if isolated {
		return ScopePlayer, userID
	}

	private := true
	areaID := ""
	singleArea := true

	for i := range changes {
		segs := strings.Split(strings.Trim(changes[i].Path, "/"), "/")
		if len(segs) < 2 {
			return ScopeGlobal, ""
		}
		switch segs[0] {
		case "players":
			// Overlay fields of the issuing player are private;
			// location and foreign-player changes are visible.
			if segs[1] != userID || len(segs) < 3 || !isOverlayField(segs[2]) {
				private = false
				singleArea = false
			}
		case "areas":
			private = false
			if areaID == "" {
				areaID = segs[1]
			} else if areaID != segs[1] {
				singleArea = false
			}
		default:
			private = false
			singleArea = false
		}
	}

	if private {
		return ScopePlayer, userID
	}
	if singleArea && areaID != "" {
		return ScopeArea, areaID
	}
	return ScopeGlobal, ""
}

func isOverlayField(field string) bool {
	switch field {
	case "inventory", "objectives", "trust":
		return true
	}
	return false
}
