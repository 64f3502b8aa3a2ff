// Gaia World Sync - Real-Time World State Synchronization Engine
// Copyright 2026 Aeonia AI
// SPDX-License-Identifier: Apache-2.0
// https://github.com/Aeonia-ai/gaia-sub003

package handler

import (
	"time"

	"github.com/Aeonia-ai/gaia-sub003/internal/view"
	"github.com/Aeonia-ai/gaia-sub003/internal/world"
)

// AcceptObjectiveHandler records an objective offered by an in-scope NPC
// in the player's objective-progress overlay.
type AcceptObjectiveHandler struct{}

// Verb implements Handler.
func (*AcceptObjectiveHandler) Verb() string { return "accept_objective" }

// Handle implements Handler. Preconditions: some NPC in scope offers the
// objective and the player has not already accepted it.
func (*AcceptObjectiveHandler) Handle(v *view.PlayerView, args Args) *world.Result {
	objectiveID := args.Get("objective")
	if objectiveID == "" {
		return world.Failure(world.NewValidation("accept_objective requires an objective"))
	}

	if v.Overlay != nil && v.Overlay.Objectives != nil {
		if _, ok := v.Overlay.Objectives[objectiveID]; ok {
			return world.Failure(world.NewValidation("objective %s already accepted", objectiveID))
		}
	}

	var offer *world.ObjectiveOffer
	var offeredBy *world.NPC
	for _, npc := range v.NPCs {
		for i := range npc.Offers {
			if npc.Offers[i].ID == objectiveID {
				offer = &npc.Offers[i]
				offeredBy = npc
				break
			}
		}
		if offer != nil {
			break
		}
	}
	if offer == nil {
		return world.Failure(world.NewValidation("nobody here offers %s", objectiveID))
	}

	progress := world.ObjectiveProgress{
		ObjectiveID: objectiveID,
		OfferedBy:   offeredBy.ID,
		AcceptedAt:  time.Now().UTC(),
	}
	change, err := world.NewChange(
		"/players/"+v.UserID+"/objectives/"+objectiveID,
		world.OpAdd,
		progress,
	)
	if err != nil {
		return world.Failure(err)
	}

	return &world.Result{
		Success: true,
		Message: "accepted " + offer.Name + " from " + offeredBy.Name,
		Changes: []world.Change{change},
	}
}
