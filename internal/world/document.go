// Gaia World Sync - Real-Time World State Synchronization Engine
// Copyright 2026 Aeonia AI
// SPDX-License-Identifier: Apache-2.0
// https://github.com/Aeonia-ai/gaia-sub003

// Package world defines the versioned world document, the change-set model
// used to mutate it, and the typed errors shared across the engine.
//
// A Document is the single source of truth for one experience (or one
// player under the isolated model). Only the state store mutates it; every
// other component treats it as read-only or propose-only. Mutations are
// expressed as ordered Change lists addressed by path, so that replaying
// all committed change sets from version 0 reproduces the document exactly.
package world

import (
	"time"

	json "github.com/goccy/go-json"
)

// Metadata tracks document versioning.
// Version increases by exactly 1 per committed mutation.
type Metadata struct {
	Version      uint64    `json:"version"`
	LastModified time.Time `json:"last_modified"`
}

// Coordinates locates an area for geospatial visibility rules.
type Coordinates struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Item is a collectible or usable object. Items live either at a spot,
// in a player's inventory, or in an NPC's inventory, never in more than
// one place at a time.
type Item struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Unique      bool   `json:"unique,omitempty"`
	Usable      bool   `json:"usable,omitempty"`
	Consumable  bool   `json:"consumable,omitempty"`
	// Effect carries content-defined use semantics, opaque to the engine.
	Effect json.RawMessage `json:"effect,omitempty"`
}

// Spot is a named location within an area where items and NPCs reside.
type Spot struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Items       []*Item `json:"items,omitempty"`
	// NPCs lists NPC IDs present at this spot; the NPC records themselves
	// live in the document-level table to keep references acyclic.
	NPCs []string `json:"npcs,omitempty"`
}

// Area is a traversable region within a zone.
type Area struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Linked      []string     `json:"linked_areas,omitempty"`
	Coordinates *Coordinates `json:"coordinates,omitempty"`
	Spots       []*Spot      `json:"spots,omitempty"`
}

// Zone is the top level of the world tree.
type Zone struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Areas []*Area `json:"areas,omitempty"`
}

// ObjectiveOffer is an objective an NPC can hand to players.
type ObjectiveOffer struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// NPC is a non-player character. NPCs are stored in a flat document-level
// table and referenced by ID from spots.
type NPC struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	AreaID      string           `json:"area_id"`
	SpotID      string           `json:"spot_id,omitempty"`
	Inventory   []*Item          `json:"inventory,omitempty"`
	Offers      []ObjectiveOffer `json:"offers,omitempty"`
}

// ObjectiveProgress tracks one accepted objective in a player's overlay.
type ObjectiveProgress struct {
	ObjectiveID string    `json:"objective_id"`
	OfferedBy   string    `json:"offered_by"`
	AcceptedAt  time.Time `json:"accepted_at"`
	Completed   bool      `json:"completed,omitempty"`
}

// PlayerState holds one player's position plus their private overlay
// (inventory, objective progress, trust counters). The overlay is part of
// the document so that overlay mutations flow through the same committed
// change sets as everything else; the view projector is responsible for
// exposing it only to its owner.
type PlayerState struct {
	ID         string                        `json:"id"`
	Name       string                        `json:"name,omitempty"`
	AreaID     string                        `json:"area_id"`
	SpotID     string                        `json:"spot_id,omitempty"`
	Inventory  []*Item                       `json:"inventory,omitempty"`
	Objectives map[string]*ObjectiveProgress `json:"objectives,omitempty"`
	Trust      map[string]int                `json:"trust,omitempty"`
	JoinedAt   time.Time                     `json:"joined_at,omitempty"`
}

// Document is the canonical state tree for one experience.
type Document struct {
	ExperienceID string                  `json:"experience_id"`
	Zones        []*Zone                 `json:"zones"`
	NPCs         map[string]*NPC         `json:"npcs,omitempty"`
	Players      map[string]*PlayerState `json:"players,omitempty"`
	Meta         Metadata                `json:"metadata"`
}

// Area returns the area with the given ID, or nil.
func (d *Document) Area(areaID string) *Area {
	for _, z := range d.Zones {
		for _, a := range z.Areas {
			if a.ID == areaID {
				return a
			}
		}
	}
	return nil
}

// Spot returns the spot with the given ID within an area, or nil.
func (d *Document) Spot(areaID, spotID string) *Spot {
	a := d.Area(areaID)
	if a == nil {
		return nil
	}
	for _, s := range a.Spots {
		if s.ID == spotID {
			return s
		}
	}
	return nil
}

// Player returns the player state for userID, or nil.
func (d *Document) Player(userID string) *PlayerState {
	if d.Players == nil {
		return nil
	}
	return d.Players[userID]
}

// NPC returns the NPC with the given ID, or nil.
func (d *Document) NPC(npcID string) *NPC {
	if d.NPCs == nil {
		return nil
	}
	return d.NPCs[npcID]
}

// Clone deep-copies the document via JSON round-trip. The document is a
// pure data tree, so codec-based cloning is exact and keeps clone logic
// from drifting as fields are added.
func (d *Document) Clone() (*Document, error) {
	raw, err := json.Marshal(d)
	if err != nil {
		return nil, NewInternal("encode document for clone", err)
	}
	var out Document
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, NewInternal("decode document clone", err)
	}
	out.ensureMaps()
	return &out, nil
}

// ensureMaps initializes nil maps so appliers can insert without checks.
func (d *Document) ensureMaps() {
	if d.Players == nil {
		d.Players = make(map[string]*PlayerState)
	}
	if d.NPCs == nil {
		d.NPCs = make(map[string]*NPC)
	}
}

// findItem removes nothing; it returns the item with the given ID from a
// slice, plus its index, or (nil, -1).
func findItem(items []*Item, itemID string) (*Item, int) {
	for i, it := range items {
		if it.ID == itemID {
			return it, i
		}
	}
	return nil, -1
}

// removeItemAt drops the item at index i preserving order.
func removeItemAt(items []*Item, i int) []*Item {
	return append(items[:i:i], items[i+1:]...)
}
