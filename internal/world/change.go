// Gaia World Sync - Real-Time World State Synchronization Engine
// Copyright 2026 Aeonia AI
// SPDX-License-Identifier: Apache-2.0
// https://github.com/Aeonia-ai/gaia-sub003

package world

import (
	"strings"
	"time"

	json "github.com/goccy/go-json"
)

// Op identifies the kind of mutation a Change performs.
type Op string

const (
	// OpAdd inserts a value that must not already exist at the path.
	OpAdd Op = "add"
	// OpUpdate replaces the value at an existing path.
	OpUpdate Op = "update"
	// OpRemove deletes the value at an existing path.
	OpRemove Op = "remove"
)

// Change is a single path-scoped mutation of a world document.
//
// Supported paths:
//
//	/players/<user_id>                              add | update | remove (PlayerState)
//	/players/<user_id>/location                     update (Location)
//	/players/<user_id>/inventory/<item_id>          add (Item) | remove
//	/players/<user_id>/objectives/<objective_id>    add | update (ObjectiveProgress)
//	/players/<user_id>/trust/<npc_id>               update (int)
//	/npcs/<npc_id>                                  add | update | remove (NPC)
//	/npcs/<npc_id>/location                         update (Location)
//	/npcs/<npc_id>/inventory/<item_id>              add (Item) | remove
//	/areas/<area_id>/coordinates                    update (Coordinates)
//	/areas/<area_id>/name                           update (string)
//	/areas/<area_id>/description                    update (string)
//	/areas/<area_id>/spots/<spot_id>/items/<item_id>  add (Item) | remove
//
// Changes are proposals until the state store commits them; applying a
// change whose precondition no longer holds yields a validation error and
// the document is left untouched by the store.
type Change struct {
	Path  string          `json:"path"`
	Op    Op              `json:"op"`
	Value json.RawMessage `json:"value,omitempty"`
}

// Location is the value type for player and NPC relocation changes.
type Location struct {
	AreaID string `json:"area_id"`
	SpotID string `json:"spot_id,omitempty"`
}

// NewChange builds a Change, encoding the value with the engine codec.
func NewChange(path string, op Op, value interface{}) (Change, error) {
	c := Change{Path: path, Op: op}
	if value == nil {
		return c, nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return Change{}, NewInternal("encode change value for "+path, err)
	}
	c.Value = raw
	return c, nil
}

// Result is the outcome of executing one command. State changes are
// proposals; only the state store commits them.
type Result struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message,omitempty"`
	Changes   []Change  `json:"state_changes,omitempty"`
	ErrorKind ErrorKind `json:"error_kind,omitempty"`
}

// Failure builds a failed Result from a typed engine error.
func Failure(err error) *Result {
	return &Result{Success: false, Message: err.Error(), ErrorKind: KindOf(err)}
}

// ApplyChanges applies an ordered change list to the document in place and
// stamps LastModified. The caller owns atomicity: the state store applies
// to a clone and swaps only on full success, so a mid-list failure here
// never leaks a partial mutation into the authoritative document.
//
// Version bookkeeping is deliberately not done here; the store increments
// the version exactly once per committed change set.
func ApplyChanges(d *Document, changes []Change) error {
	d.ensureMaps()
	for i := range changes {
		if err := applyChange(d, &changes[i]); err != nil {
			return err
		}
	}
	d.Meta.LastModified = time.Now().UTC()
	return nil
}

func applyChange(d *Document, c *Change) error {
	segs := splitPath(c.Path)
	if len(segs) < 2 {
		return NewValidation("malformed change path %q", c.Path)
	}
	switch segs[0] {
	case "players":
		return applyPlayerChange(d, segs[1:], c)
	case "npcs":
		return applyNPCChange(d, segs[1:], c)
	case "areas":
		return applyAreaChange(d, segs[1:], c)
	default:
		return NewValidation("unknown change root %q in path %q", segs[0], c.Path)
	}
}

func applyPlayerChange(d *Document, segs []string, c *Change) error {
	userID := segs[0]
	if len(segs) == 1 {
		switch c.Op {
		case OpAdd, OpUpdate:
			var p PlayerState
			if err := decodeValue(c, &p); err != nil {
				return err
			}
			if c.Op == OpAdd {
				if _, ok := d.Players[userID]; ok {
					return NewValidation("player %s already exists", userID)
				}
			}
			p.ID = userID
			d.Players[userID] = &p
			return nil
		case OpRemove:
			if _, ok := d.Players[userID]; !ok {
				return NewValidation("player %s not found", userID)
			}
			delete(d.Players, userID)
			return nil
		}
		return invalidOp(c)
	}

	p := d.Players[userID]
	if p == nil {
		return NewValidation("player %s not found", userID)
	}

	switch segs[1] {
	case "location":
		if c.Op != OpUpdate {
			return invalidOp(c)
		}
		var loc Location
		if err := decodeValue(c, &loc); err != nil {
			return err
		}
		p.AreaID = loc.AreaID
		p.SpotID = loc.SpotID
		return nil

	case "inventory":
		if len(segs) != 3 {
			return NewValidation("malformed inventory path %q", c.Path)
		}
		return applyInventoryChange(&p.Inventory, segs[2], c)

	case "objectives":
		if len(segs) != 3 {
			return NewValidation("malformed objectives path %q", c.Path)
		}
		objID := segs[2]
		switch c.Op {
		case OpAdd, OpUpdate:
			var prog ObjectiveProgress
			if err := decodeValue(c, &prog); err != nil {
				return err
			}
			if p.Objectives == nil {
				p.Objectives = make(map[string]*ObjectiveProgress)
			}
			if c.Op == OpAdd {
				if _, ok := p.Objectives[objID]; ok {
					return NewValidation("objective %s already accepted", objID)
				}
			}
			prog.ObjectiveID = objID
			p.Objectives[objID] = &prog
			return nil
		case OpRemove:
			if _, ok := p.Objectives[objID]; !ok {
				return NewValidation("objective %s not found", objID)
			}
			delete(p.Objectives, objID)
			return nil
		}
		return invalidOp(c)

	case "trust":
		if len(segs) != 3 || c.Op != OpUpdate {
			return NewValidation("malformed trust change %q", c.Path)
		}
		var v int
		if err := decodeValue(c, &v); err != nil {
			return err
		}
		if p.Trust == nil {
			p.Trust = make(map[string]int)
		}
		p.Trust[segs[2]] = v
		return nil
	}
	return NewValidation("unknown player field %q in path %q", segs[1], c.Path)
}

func applyNPCChange(d *Document, segs []string, c *Change) error {
	npcID := segs[0]
	if len(segs) == 1 {
		switch c.Op {
		case OpAdd, OpUpdate:
			var n NPC
			if err := decodeValue(c, &n); err != nil {
				return err
			}
			if c.Op == OpAdd {
				if _, ok := d.NPCs[npcID]; ok {
					return NewValidation("npc %s already exists", npcID)
				}
			}
			n.ID = npcID
			d.NPCs[npcID] = &n
			return nil
		case OpRemove:
			if _, ok := d.NPCs[npcID]; !ok {
				return NewValidation("npc %s not found", npcID)
			}
			delete(d.NPCs, npcID)
			return nil
		}
		return invalidOp(c)
	}

	n := d.NPCs[npcID]
	if n == nil {
		return NewValidation("npc %s not found", npcID)
	}

	switch segs[1] {
	case "location":
		if c.Op != OpUpdate {
			return invalidOp(c)
		}
		var loc Location
		if err := decodeValue(c, &loc); err != nil {
			return err
		}
		n.AreaID = loc.AreaID
		n.SpotID = loc.SpotID
		return nil
	case "inventory":
		if len(segs) != 3 {
			return NewValidation("malformed inventory path %q", c.Path)
		}
		return applyInventoryChange(&n.Inventory, segs[2], c)
	}
	return NewValidation("unknown npc field %q in path %q", segs[1], c.Path)
}

func applyAreaChange(d *Document, segs []string, c *Change) error {
	area := d.Area(segs[0])
	if area == nil {
		return NewValidation("area %s not found", segs[0])
	}
	if len(segs) < 2 {
		return NewValidation("malformed area path %q", c.Path)
	}

	switch segs[1] {
	case "coordinates":
		if c.Op != OpUpdate {
			return invalidOp(c)
		}
		var coord Coordinates
		if err := decodeValue(c, &coord); err != nil {
			return err
		}
		area.Coordinates = &coord
		return nil

	case "name", "description":
		if c.Op != OpUpdate {
			return invalidOp(c)
		}
		var s string
		if err := decodeValue(c, &s); err != nil {
			return err
		}
		if segs[1] == "name" {
			area.Name = s
		} else {
			area.Description = s
		}
		return nil

	case "spots":
		if len(segs) != 5 || segs[3] != "items" {
			return NewValidation("malformed spot path %q", c.Path)
		}
		spot := d.Spot(area.ID, segs[2])
		if spot == nil {
			return NewValidation("spot %s not found in area %s", segs[2], area.ID)
		}
		return applyInventoryChange(&spot.Items, segs[4], c)
	}
	return NewValidation("unknown area field %q in path %q", segs[1], c.Path)
}

// applyInventoryChange handles add/remove of an item in any item slice
// (spot items, player inventory, NPC inventory). Add requires absence,
// remove requires presence; this is the precondition re-check that makes
// the shared-model collect race resolve to exactly one winner.
func applyInventoryChange(items *[]*Item, itemID string, c *Change) error {
	switch c.Op {
	case OpAdd:
		if it, _ := findItem(*items, itemID); it != nil {
			return NewValidation("item %s already present", itemID)
		}
		var item Item
		if err := decodeValue(c, &item); err != nil {
			return err
		}
		item.ID = itemID
		*items = append(*items, &item)
		return nil
	case OpRemove:
		_, idx := findItem(*items, itemID)
		if idx < 0 {
			return NewValidation("item %s not found", itemID)
		}
		*items = removeItemAt(*items, idx)
		return nil
	}
	return invalidOp(c)
}

func decodeValue(c *Change, v interface{}) error {
	if len(c.Value) == 0 {
		return NewValidation("change %s %s requires a value", c.Op, c.Path)
	}
	if err := json.Unmarshal(c.Value, v); err != nil {
		return NewValidation("decode value for %s: %v", c.Path, err)
	}
	return nil
}

func invalidOp(c *Change) error {
	return NewValidation("op %s not valid for path %q", c.Op, c.Path)
}

func splitPath(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}
