// Gaia World Sync - Real-Time World State Synchronization Engine
// Copyright 2026 Aeonia AI
// SPDX-License-Identifier: Apache-2.0
// https://github.com/Aeonia-ai/gaia-sub003

// Package view derives player-scoped projections of a world document.
//
// A PlayerView is the only surface fast handlers are allowed to read, so
// the area-of-interest filter doubles as an information barrier: a handler
// cannot act on state the player cannot currently see. Projection is a
// pure function of (document, scope rule); it holds no state of its own.
package view

import (
	"math"
	"sort"

	"github.com/Aeonia-ai/gaia-sub003/internal/world"
)

// ScopeRule decides which areas fall inside a player's visibility scope.
type ScopeRule interface {
	// Visible reports whether candidate is in scope for a player whose
	// current area is origin.
	Visible(doc *world.Document, origin, candidate *world.Area) bool
}

// AdjacencyRule scopes visibility to the current area plus explicitly
// linked adjacent areas. This is the default for authored, room-graph
// experiences.
type AdjacencyRule struct{}

// Visible implements ScopeRule.
func (AdjacencyRule) Visible(_ *world.Document, origin, candidate *world.Area) bool {
	if origin == nil || candidate == nil {
		return false
	}
	if origin.ID == candidate.ID {
		return true
	}
	for _, linked := range origin.Linked {
		if linked == candidate.ID {
			return true
		}
	}
	return false
}

// RadiusRule scopes visibility to areas within a fixed distance of the
// player's current area, for geospatial experiences. Areas without
// coordinates are never visible under this rule except the origin itself.
type RadiusRule struct {
	Radius float64
}

// Visible implements ScopeRule.
func (r RadiusRule) Visible(_ *world.Document, origin, candidate *world.Area) bool {
	if origin == nil || candidate == nil {
		return false
	}
	if origin.ID == candidate.ID {
		return true
	}
	if origin.Coordinates == nil || candidate.Coordinates == nil {
		return false
	}
	dx := origin.Coordinates.X - candidate.Coordinates.X
	dy := origin.Coordinates.Y - candidate.Coordinates.Y
	return math.Sqrt(dx*dx+dy*dy) <= r.Radius
}

// PlayerView is a read-only projection of the world for one player: the
// areas inside their visibility scope, the NPCs and items physically
// present there, the other players sharing those areas, and the player's
// own private overlay. It is never persisted; it is recomputed from the
// document whenever needed.
type PlayerView struct {
	ExperienceID string               `json:"experience_id"`
	UserID       string               `json:"user_id"`
	Version      uint64               `json:"version"`
	AreaID       string               `json:"area_id"`
	SpotID       string               `json:"spot_id,omitempty"`
	Areas        []*world.Area        `json:"areas"`
	NPCs         []*world.NPC         `json:"npcs,omitempty"`
	Others       []*world.PlayerState `json:"others,omitempty"`
	Overlay      *Overlay             `json:"overlay"`
}

// Overlay is the player's private slice of the document.
type Overlay struct {
	Inventory  []*world.Item                       `json:"inventory,omitempty"`
	Objectives map[string]*world.ObjectiveProgress `json:"objectives,omitempty"`
	Trust      map[string]int                      `json:"trust,omitempty"`
}

// Area returns the in-scope area with the given ID, or nil.
func (v *PlayerView) Area(areaID string) *world.Area {
	for _, a := range v.Areas {
		if a.ID == areaID {
			return a
		}
	}
	return nil
}

// CurrentArea returns the player's current area.
func (v *PlayerView) CurrentArea() *world.Area {
	return v.Area(v.AreaID)
}

// CurrentSpot returns the player's current spot within their area, or the
// area's first spot when no explicit spot is set.
func (v *PlayerView) CurrentSpot() *world.Spot {
	a := v.CurrentArea()
	if a == nil {
		return nil
	}
	for _, s := range a.Spots {
		if s.ID == v.SpotID {
			return s
		}
	}
	if v.SpotID == "" && len(a.Spots) > 0 {
		return a.Spots[0]
	}
	return nil
}

// NPC returns the in-scope NPC with the given ID, or nil.
func (v *PlayerView) NPC(npcID string) *world.NPC {
	for _, n := range v.NPCs {
		if n.ID == npcID {
			return n
		}
	}
	return nil
}

// Other returns another in-scope player by ID, or nil. The requesting
// player themselves is never in Others.
func (v *PlayerView) Other(userID string) *world.PlayerState {
	for _, p := range v.Others {
		if p.ID == userID {
			return p
		}
	}
	return nil
}

// InventoryItem returns the item from the player's own inventory, or nil.
func (v *PlayerView) InventoryItem(itemID string) *world.Item {
	if v.Overlay == nil {
		return nil
	}
	for _, it := range v.Overlay.Inventory {
		if it.ID == itemID {
			return it
		}
	}
	return nil
}

// Topics returns the event topics implied by the player's current scope:
// their private topic, one topic per visible area, and the experience
// broadcast topic. The connection manager subscribes to exactly this set
// and re-derives it after every scope change.
func (v *PlayerView) Topics() []string {
	topics := []string{
		"world." + v.ExperienceID + ".player." + v.UserID,
		"world." + v.ExperienceID + ".global",
	}
	for _, a := range v.Areas {
		topics = append(topics, "world."+v.ExperienceID+".area."+a.ID)
	}
	return topics
}

// Project computes the player's view of the document under the given
// scope rule. It is a pure function: the returned view shares no mutable
// bookkeeping with the projector and reads nothing but its arguments.
//
// The player must already exist in the document; projecting an unknown
// player is a not-found error, not an empty view, so that callers cannot
// silently act on behalf of players who never joined.
func Project(doc *world.Document, userID string, rule ScopeRule) (*PlayerView, error) {
	p := doc.Player(userID)
	if p == nil {
		return nil, world.NewNotFound("player %s not in experience %s", userID, doc.ExperienceID)
	}
	origin := doc.Area(p.AreaID)
	if origin == nil {
		return nil, world.NewInternal("player "+userID+" references missing area "+p.AreaID, nil)
	}

	v := &PlayerView{
		ExperienceID: doc.ExperienceID,
		UserID:       userID,
		Version:      doc.Meta.Version,
		AreaID:       p.AreaID,
		SpotID:       p.SpotID,
		Overlay: &Overlay{
			Inventory:  p.Inventory,
			Objectives: p.Objectives,
			Trust:      p.Trust,
		},
	}

	inScope := make(map[string]bool)
	for _, z := range doc.Zones {
		for _, a := range z.Areas {
			if rule.Visible(doc, origin, a) {
				v.Areas = append(v.Areas, a)
				inScope[a.ID] = true
			}
		}
	}

	for _, n := range doc.NPCs {
		if inScope[n.AreaID] {
			v.NPCs = append(v.NPCs, n)
		}
	}
	sortNPCs(v.NPCs)

	for _, other := range doc.Players {
		if other.ID != userID && inScope[other.AreaID] {
			v.Others = append(v.Others, other)
		}
	}
	sortPlayers(v.Others)

	return v, nil
}

// sortNPCs orders NPCs by ID so projections are deterministic regardless
// of map iteration order.
func sortNPCs(npcs []*world.NPC) {
	sort.Slice(npcs, func(i, j int) bool { return npcs[i].ID < npcs[j].ID })
}

func sortPlayers(players []*world.PlayerState) {
	sort.Slice(players, func(i, j int) bool { return players[i].ID < players[j].ID })
}
