// Gaia World Sync - Real-Time World State Synchronization Engine
// Copyright 2026 Aeonia AI
// SPDX-License-Identifier: Apache-2.0
// https://github.com/Aeonia-ai/gaia-sub003

package handler

import (
	"strings"

	"github.com/Aeonia-ai/gaia-sub003/internal/view"
	"github.com/Aeonia-ai/gaia-sub003/internal/world"
)

// GiveHandler transfers an item from the player's inventory to an NPC or
// another player currently in scope. Giving to an NPC raises the
// player's trust counter for that NPC by one.
type GiveHandler struct{}

// Verb implements Handler.
func (*GiveHandler) Verb() string { return "give" }

// Handle implements Handler. Preconditions: the item is in the player's
// inventory and the recipient is present in the player's visibility
// scope.
func (*GiveHandler) Handle(v *view.PlayerView, args Args) *world.Result {
	ref := args.Get("item")
	recipient := args.Get("to")
	if ref == "" || recipient == "" {
		return world.Failure(world.NewValidation("give requires an item and a recipient"))
	}

	var item *world.Item
	if v.Overlay != nil {
		item = findIn(v.Overlay.Inventory, ref)
	}
	if item == nil {
		return world.Failure(world.NewValidation("%s not in inventory", ref))
	}

	remove, err := world.NewChange(inventoryPath(v.UserID, item.ID), world.OpRemove, nil)
	if err != nil {
		return world.Failure(err)
	}

	if npc := resolveNPC(v, recipient); npc != nil {
		add, err := world.NewChange("/npcs/"+npc.ID+"/inventory/"+item.ID, world.OpAdd, item)
		if err != nil {
			return world.Failure(err)
		}
		current := 0
		if v.Overlay != nil && v.Overlay.Trust != nil {
			current = v.Overlay.Trust[npc.ID]
		}
		trust, err := world.NewChange("/players/"+v.UserID+"/trust/"+npc.ID, world.OpUpdate, current+1)
		if err != nil {
			return world.Failure(err)
		}
		return &world.Result{
			Success: true,
			Message: "gave " + item.Name + " to " + npc.Name,
			Changes: []world.Change{remove, add, trust},
		}
	}

	if other := resolvePlayer(v, recipient); other != nil {
		add, err := world.NewChange(inventoryPath(other.ID, item.ID), world.OpAdd, item)
		if err != nil {
			return world.Failure(err)
		}
		name := other.Name
		if name == "" {
			name = other.ID
		}
		return &world.Result{
			Success: true,
			Message: "gave " + item.Name + " to " + name,
			Changes: []world.Change{remove, add},
		}
	}

	return world.Failure(world.NewValidation("%s is not here", recipient))
}

func resolveNPC(v *view.PlayerView, ref string) *world.NPC {
	if npc := v.NPC(ref); npc != nil {
		return npc
	}
	for _, n := range v.NPCs {
		if strings.EqualFold(n.Name, ref) {
			return n
		}
	}
	return nil
}

func resolvePlayer(v *view.PlayerView, ref string) *world.PlayerState {
	if p := v.Other(ref); p != nil {
		return p
	}
	for _, p := range v.Others {
		if strings.EqualFold(p.Name, ref) {
			return p
		}
	}
	return nil
}
