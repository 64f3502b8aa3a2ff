// Gaia World Sync - Real-Time World State Synchronization Engine
// Copyright 2026 Aeonia AI
// SPDX-License-Identifier: Apache-2.0
// https://github.com/Aeonia-ai/gaia-sub003

package handler

import (
	"github.com/Aeonia-ai/gaia-sub003/internal/view"
	"github.com/Aeonia-ai/gaia-sub003/internal/world"
)

// CollectHandler moves an item from the player's current spot into their
// inventory.
//
// When two players race to collect the same unique item in a shared
// world, only the first commit wins; the loser's retry re-projects the
// view, no longer finds the item at the spot, and fails here with a
// validation error.
type CollectHandler struct{}

// Verb implements Handler.
func (*CollectHandler) Verb() string { return "collect" }

// Handle implements Handler. Preconditions: the named item is present at
// the player's current spot and not already in their inventory.
func (*CollectHandler) Handle(v *view.PlayerView, args Args) *world.Result {
	ref := args.Get("item")
	if ref == "" {
		return world.Failure(world.NewValidation("collect requires an item"))
	}

	spot := v.CurrentSpot()
	item := findSpotItem(spot, ref)
	if item == nil {
		return world.Failure(world.NewValidation("%s not found", ref))
	}
	if v.InventoryItem(item.ID) != nil {
		return world.Failure(world.NewValidation("%s already in inventory", item.Name))
	}

	remove, err := world.NewChange(spotItemPath(v.AreaID, spot.ID, item.ID), world.OpRemove, nil)
	if err != nil {
		return world.Failure(err)
	}
	add, err := world.NewChange(inventoryPath(v.UserID, item.ID), world.OpAdd, item)
	if err != nil {
		return world.Failure(err)
	}

	return &world.Result{
		Success: true,
		Message: "collected " + item.Name,
		Changes: []world.Change{remove, add},
	}
}
