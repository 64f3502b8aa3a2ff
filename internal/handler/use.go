// Gaia World Sync - Real-Time World State Synchronization Engine
// Copyright 2026 Aeonia AI
// SPDX-License-Identifier: Apache-2.0
// https://github.com/Aeonia-ai/gaia-sub003

package handler

import (
	json "github.com/goccy/go-json"

	"github.com/Aeonia-ai/gaia-sub003/internal/view"
	"github.com/Aeonia-ai/gaia-sub003/internal/world"
)

// itemEffect is the engine-visible subset of a content-defined item
// effect. Anything beyond these fields is opaque and passed through in
// the result message only.
type itemEffect struct {
	Message string `json:"message,omitempty"`
	Trust   struct {
		NPCID string `json:"npc_id,omitempty"`
		Delta int    `json:"delta,omitempty"`
	} `json:"trust,omitempty"`
}

// UseHandler applies an item's content-defined effect and optionally
// consumes the item.
type UseHandler struct{}

// Verb implements Handler.
func (*UseHandler) Verb() string { return "use" }

// Handle implements Handler. Preconditions: the item is in the player's
// inventory and flagged usable.
func (*UseHandler) Handle(v *view.PlayerView, args Args) *world.Result {
	ref := args.Get("item")
	if ref == "" {
		return world.Failure(world.NewValidation("use requires an item"))
	}

	var item *world.Item
	if v.Overlay != nil {
		item = findIn(v.Overlay.Inventory, ref)
	}
	if item == nil {
		return world.Failure(world.NewValidation("%s not in inventory", ref))
	}
	if !item.Usable {
		return world.Failure(world.NewValidation("%s cannot be used here", item.Name))
	}

	message := "used " + item.Name
	var changes []world.Change

	if len(item.Effect) > 0 {
		var eff itemEffect
		if err := json.Unmarshal(item.Effect, &eff); err != nil {
			return world.Failure(world.NewValidation("item %s has an unreadable effect", item.Name))
		}
		if eff.Message != "" {
			message = eff.Message
		}
		if eff.Trust.NPCID != "" && eff.Trust.Delta != 0 {
			if v.NPC(eff.Trust.NPCID) == nil {
				return world.Failure(world.NewValidation("%s has no effect here", item.Name))
			}
			current := 0
			if v.Overlay != nil && v.Overlay.Trust != nil {
				current = v.Overlay.Trust[eff.Trust.NPCID]
			}
			trust, err := world.NewChange(
				"/players/"+v.UserID+"/trust/"+eff.Trust.NPCID,
				world.OpUpdate,
				current+eff.Trust.Delta,
			)
			if err != nil {
				return world.Failure(err)
			}
			changes = append(changes, trust)
		}
	}

	if item.Consumable {
		consume, err := world.NewChange(inventoryPath(v.UserID, item.ID), world.OpRemove, nil)
		if err != nil {
			return world.Failure(err)
		}
		changes = append(changes, consume)
	}

	return &world.Result{Success: true, Message: message, Changes: changes}
}
