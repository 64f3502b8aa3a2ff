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

// MoveHandler relocates the player to a reachable adjacent area.
type MoveHandler struct{}

// Verb implements Handler.
func (*MoveHandler) Verb() string { return "move" }

// Handle implements Handler. Preconditions: the target area must be
// explicitly linked from the player's current area (or be the current
// area's ID, which is rejected as a no-op).
func (*MoveHandler) Handle(v *view.PlayerView, args Args) *world.Result {
	target := args.Get("to")
	if target == "" {
		return world.Failure(world.NewValidation("move requires a target area"))
	}

	current := v.CurrentArea()
	if current == nil {
		return world.Failure(world.NewInternal("player has no current area", nil))
	}
	if target == current.ID || strings.EqualFold(target, current.Name) {
		return world.Failure(world.NewValidation("already in %s", current.Name))
	}

	dest := resolveLinkedArea(v, current, target)
	if dest == nil {
		return world.Failure(world.NewValidation("%s is not reachable from %s", target, current.Name))
	}

	loc := world.Location{AreaID: dest.ID}
	if len(dest.Spots) > 0 {
		loc.SpotID = dest.Spots[0].ID
	}
	change, err := world.NewChange(locationPath(v.UserID), world.OpUpdate, loc)
	if err != nil {
		return world.Failure(err)
	}

	return &world.Result{
		Success: true,
		Message: "moved to " + dest.Name,
		Changes: []world.Change{change},
	}
}

// resolveLinkedArea matches the target against the current area's links,
// by ID first and then by name against in-scope areas.
func resolveLinkedArea(v *view.PlayerView, current *world.Area, target string) *world.Area {
	for _, linkedID := range current.Linked {
		if linkedID == target {
			return v.Area(linkedID)
		}
	}
	for _, linkedID := range current.Linked {
		if a := v.Area(linkedID); a != nil && strings.EqualFold(a.Name, target) {
			return a
		}
	}
	return nil
}
