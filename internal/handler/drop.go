// Gaia World Sync - Real-Time World State Synchronization Engine
// Copyright 2026 Aeonia AI
// SPDX-License-Identifier: Apache-2.0
// https://github.com/Aeonia-ai/gaia-sub003

package handler

import (
	"github.com/Aeonia-ai/gaia-sub003/internal/view"
	"github.com/Aeonia-ai/gaia-sub003/internal/world"
)

// DropHandler moves an item from the player's inventory to their current
// spot.
type DropHandler struct{}

// Verb implements Handler.
func (*DropHandler) Verb() string { return "drop" }

// Handle implements Handler. Precondition: the item is in the player's
// inventory and the player is at a spot that can hold it.
func (*DropHandler) Handle(v *view.PlayerView, args Args) *world.Result {
	ref := args.Get("item")
	if ref == "" {
		return world.Failure(world.NewValidation("drop requires an item"))
	}

	var item *world.Item
	if v.Overlay != nil {
		item = findIn(v.Overlay.Inventory, ref)
	}
	if item == nil {
		return world.Failure(world.NewValidation("%s not in inventory", ref))
	}

	spot := v.CurrentSpot()
	if spot == nil {
		return world.Failure(world.NewValidation("nowhere to drop %s here", item.Name))
	}

	remove, err := world.NewChange(inventoryPath(v.UserID, item.ID), world.OpRemove, nil)
	if err != nil {
		return world.Failure(err)
	}
	add, err := world.NewChange(spotItemPath(v.AreaID, spot.ID, item.ID), world.OpAdd, item)
	if err != nil {
		return world.Failure(err)
	}

	return &world.Result{
		Success: true,
		Message: "dropped " + item.Name,
		Changes: []world.Change{remove, add},
	}
}
