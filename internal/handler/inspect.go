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

// InspectHandler returns descriptive text for a target in scope. It
// never proposes changes.
type InspectHandler struct{}

// Verb implements Handler.
func (*InspectHandler) Verb() string { return "inspect" }

// Handle implements Handler. With no target it describes the player's
// current area; otherwise the target must be an in-scope area, spot
// item, inventory item, or NPC.
func (*InspectHandler) Handle(v *view.PlayerView, args Args) *world.Result {
	target := args.Get("target")
	if target == "" {
		return describeArea(v)
	}

	if item := findSpotItem(v.CurrentSpot(), target); item != nil {
		return &world.Result{Success: true, Message: describe(item.Name, item.Description)}
	}
	if item := inventoryLookup(v, target); item != nil {
		return &world.Result{Success: true, Message: describe(item.Name, item.Description)}
	}
	if npc := resolveNPC(v, target); npc != nil {
		return &world.Result{Success: true, Message: describe(npc.Name, npc.Description)}
	}
	for _, a := range v.Areas {
		if a.ID == target || strings.EqualFold(a.Name, target) {
			return &world.Result{Success: true, Message: describe(a.Name, a.Description)}
		}
	}

	return world.Failure(world.NewValidation("%s is not here", target))
}

func inventoryLookup(v *view.PlayerView, ref string) *world.Item {
	if v.Overlay == nil {
		return nil
	}
	return findIn(v.Overlay.Inventory, ref)
}

func describeArea(v *view.PlayerView) *world.Result {
	area := v.CurrentArea()
	if area == nil {
		return world.Failure(world.NewInternal("player has no current area", nil))
	}

	var b strings.Builder
	b.WriteString(describe(area.Name, area.Description))

	if spot := v.CurrentSpot(); spot != nil {
		for _, it := range spot.Items {
			b.WriteString(" You see ")
			b.WriteString(it.Name)
			b.WriteString(".")
		}
		for _, npcID := range spot.NPCs {
			if npc := v.NPC(npcID); npc != nil {
				b.WriteString(" ")
				b.WriteString(npc.Name)
				b.WriteString(" is here.")
			}
		}
	}
	if len(area.Linked) > 0 {
		names := make([]string, 0, len(area.Linked))
		for _, id := range area.Linked {
			if a := v.Area(id); a != nil {
				names = append(names, a.Name)
			}
		}
		if len(names) > 0 {
			b.WriteString(" Exits: ")
			b.WriteString(strings.Join(names, ", "))
			b.WriteString(".")
		}
	}

	return &world.Result{Success: true, Message: b.String()}
}

func describe(name, description string) string {
	if description == "" {
		return name + "."
	}
	return description
}
