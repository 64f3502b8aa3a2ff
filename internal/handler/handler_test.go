// Gaia World Sync - Real-Time World State Synchronization Engine
// Copyright 2026 Aeonia AI
// SPDX-License-Identifier: Apache-2.0
// https://github.com/Aeonia-ai/gaia-sub003

package handler

import (
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aeonia-ai/gaia-sub003/internal/view"
	"github.com/Aeonia-ai/gaia-sub003/internal/world"
)

// testView projects alice's view of a two-area world: she stands at the
// gate arch with a lantern at her feet and a rope in her pack, the guide
// NPC beside her, and bob in the adjacent meadow.
func testView(t *testing.T) *view.PlayerView {
	t.Helper()
	doc := &world.Document{
		ExperienceID: "exp-1",
		Meta:         world.Metadata{Version: 3},
		Zones: []*world.Zone{{
			ID: "z1",
			Areas: []*world.Area{
				{
					ID:     "gate",
					Name:   "Old Gate",
					Linked: []string{"meadow"},
					Spots: []*world.Spot{{
						ID:    "arch",
						Name:  "Stone Arch",
						Items: []*world.Item{{ID: "lantern", Name: "Lantern", Unique: true}},
						NPCs:  []string{"guide"},
					}},
				},
				{
					ID:     "meadow",
					Name:   "Meadow",
					Linked: []string{"gate"},
					Spots:  []*world.Spot{{ID: "well", Name: "Well"}},
				},
			},
		}},
		NPCs: map[string]*world.NPC{
			"guide": {
				ID: "guide", Name: "Guide", AreaID: "gate", SpotID: "arch",
				Offers: []world.ObjectiveOffer{{ID: "obj-1", Name: "Find the well"}},
			},
		},
		Players: map[string]*world.PlayerState{
			"alice": {
				ID: "alice", Name: "Alice", AreaID: "gate", SpotID: "arch",
				Inventory: []*world.Item{{ID: "rope", Name: "Rope"}},
				Trust:     map[string]int{"guide": 1},
			},
			"bob": {ID: "bob", Name: "Bob", AreaID: "meadow"},
		},
	}
	v, err := view.Project(doc, "alice", view.AdjacencyRule{})
	require.NoError(t, err)
	return v
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	assert.True(t, r.Has("move"))
	assert.True(t, r.Has("collect"))
	assert.True(t, r.Has("accept_objective"))
	assert.False(t, r.Has("dance"))
	assert.Equal(t,
		[]string{"accept_objective", "collect", "drop", "give", "inspect", "move", "use"},
		r.Verbs())
}

func TestMoveHandler(t *testing.T) {
	h := &MoveHandler{}
	v := testView(t)

	res := h.Handle(v, Args{"to": "meadow"})
	require.True(t, res.Success)
	require.Len(t, res.Changes, 1)
	assert.Equal(t, "/players/alice/location", res.Changes[0].Path)
	assert.Equal(t, world.OpUpdate, res.Changes[0].Op)

	var loc world.Location
	require.NoError(t, json.Unmarshal(res.Changes[0].Value, &loc))
	assert.Equal(t, "meadow", loc.AreaID)
	assert.Equal(t, "well", loc.SpotID, "arrival defaults to the area's first spot")

	// Moving by area name works too.
	res = h.Handle(v, Args{"to": "Meadow"})
	assert.True(t, res.Success)

	tests := []struct {
		name string
		args Args
	}{
		{"missing target", Args{}},
		{"unlinked area", Args{"to": "castle"}},
		{"already there", Args{"to": "gate"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := h.Handle(v, tt.args)
			assert.False(t, res.Success)
			assert.Equal(t, world.KindValidation, res.ErrorKind)
			assert.Empty(t, res.Changes)
		})
	}
}

func TestCollectHandler(t *testing.T) {
	h := &CollectHandler{}
	v := testView(t)

	res := h.Handle(v, Args{"item": "lantern"})
	require.True(t, res.Success)
	require.Len(t, res.Changes, 2)

	// Remove-then-add: the remove carries the presence precondition that
	// makes concurrent collects single-winner.
	assert.Equal(t, "/areas/gate/spots/arch/items/lantern", res.Changes[0].Path)
	assert.Equal(t, world.OpRemove, res.Changes[0].Op)
	assert.Equal(t, "/players/alice/inventory/lantern", res.Changes[1].Path)
	assert.Equal(t, world.OpAdd, res.Changes[1].Op)

	// By display name, case-insensitive.
	res = h.Handle(v, Args{"item": "Lantern"})
	assert.True(t, res.Success)

	res = h.Handle(v, Args{"item": "sword"})
	assert.False(t, res.Success)
	assert.Equal(t, world.KindValidation, res.ErrorKind)

	res = h.Handle(v, Args{})
	assert.False(t, res.Success)
}

func TestCollectHandler_Deterministic(t *testing.T) {
	h := &CollectHandler{}
	v := testView(t)

	first := h.Handle(v, Args{"item": "lantern"})
	second := h.Handle(v, Args{"item": "lantern"})
	assert.Equal(t, first, second, "same view and args always yield the same proposal")
}

func TestDropHandler(t *testing.T) {
	h := &DropHandler{}
	v := testView(t)

	res := h.Handle(v, Args{"item": "rope"})
	require.True(t, res.Success)
	require.Len(t, res.Changes, 2)
	assert.Equal(t, "/players/alice/inventory/rope", res.Changes[0].Path)
	assert.Equal(t, world.OpRemove, res.Changes[0].Op)
	assert.Equal(t, "/areas/gate/spots/arch/items/rope", res.Changes[1].Path)
	assert.Equal(t, world.OpAdd, res.Changes[1].Op)

	res = h.Handle(v, Args{"item": "lantern"})
	assert.False(t, res.Success, "spot items are not in inventory")
}

func TestGiveHandler(t *testing.T) {
	h := &GiveHandler{}
	v := testView(t)

	t.Run("to npc raises trust", func(t *testing.T) {
		res := h.Handle(v, Args{"item": "rope", "to": "guide"})
		require.True(t, res.Success)
		require.Len(t, res.Changes, 3)
		assert.Equal(t, "/players/alice/inventory/rope", res.Changes[0].Path)
		assert.Equal(t, "/npcs/guide/inventory/rope", res.Changes[1].Path)
		assert.Equal(t, "/players/alice/trust/guide", res.Changes[2].Path)

		var trust int
		require.NoError(t, json.Unmarshal(res.Changes[2].Value, &trust))
		assert.Equal(t, 2, trust, "trust goes from 1 to 2")
	})

	t.Run("to player in scope", func(t *testing.T) {
		res := h.Handle(v, Args{"item": "rope", "to": "bob"})
		require.True(t, res.Success)
		require.Len(t, res.Changes, 2)
		assert.Equal(t, "/players/bob/inventory/rope", res.Changes[1].Path)
	})

	t.Run("recipient not in scope", func(t *testing.T) {
		res := h.Handle(v, Args{"item": "rope", "to": "carol"})
		assert.False(t, res.Success)
		assert.Equal(t, world.KindValidation, res.ErrorKind)
	})

	t.Run("item not held", func(t *testing.T) {
		res := h.Handle(v, Args{"item": "lantern", "to": "guide"})
		assert.False(t, res.Success)
	})
}

func TestUseHandler(t *testing.T) {
	h := &UseHandler{}

	t.Run("not usable", func(t *testing.T) {
		v := testView(t)
		res := h.Handle(v, Args{"item": "rope"})
		assert.False(t, res.Success)
		assert.Equal(t, world.KindValidation, res.ErrorKind)
	})

	t.Run("consumable with trust effect", func(t *testing.T) {
		v := testView(t)
		v.Overlay.Inventory = append(v.Overlay.Inventory, &world.Item{
			ID: "gift", Name: "Gift", Usable: true, Consumable: true,
			Effect: json.RawMessage(`{"message":"the guide smiles","trust":{"npc_id":"guide","delta":2}}`),
		})

		res := h.Handle(v, Args{"item": "gift"})
		require.True(t, res.Success)
		assert.Equal(t, "the guide smiles", res.Message)
		require.Len(t, res.Changes, 2)
		assert.Equal(t, "/players/alice/trust/guide", res.Changes[0].Path)
		assert.Equal(t, "/players/alice/inventory/gift", res.Changes[1].Path)
		assert.Equal(t, world.OpRemove, res.Changes[1].Op)

		var trust int
		require.NoError(t, json.Unmarshal(res.Changes[0].Value, &trust))
		assert.Equal(t, 3, trust)
	})

	t.Run("usable without effect proposes nothing", func(t *testing.T) {
		v := testView(t)
		v.Overlay.Inventory = append(v.Overlay.Inventory, &world.Item{
			ID: "torch", Name: "Torch", Usable: true,
		})
		res := h.Handle(v, Args{"item": "torch"})
		require.True(t, res.Success)
		assert.Empty(t, res.Changes)
	})

	t.Run("effect npc out of scope", func(t *testing.T) {
		v := testView(t)
		v.Overlay.Inventory = append(v.Overlay.Inventory, &world.Item{
			ID: "horn", Name: "Horn", Usable: true,
			Effect: json.RawMessage(`{"trust":{"npc_id":"hermit","delta":1}}`),
		})
		res := h.Handle(v, Args{"item": "horn"})
		assert.False(t, res.Success)
	})
}

func TestInspectHandler(t *testing.T) {
	h := &InspectHandler{}
	v := testView(t)

	t.Run("area by default", func(t *testing.T) {
		res := h.Handle(v, Args{})
		require.True(t, res.Success)
		assert.Contains(t, res.Message, "Old Gate")
		assert.Contains(t, res.Message, "Lantern")
		assert.Contains(t, res.Message, "Guide is here")
		assert.Contains(t, res.Message, "Exits: Meadow")
		assert.Empty(t, res.Changes, "inspect never mutates")
	})

	t.Run("spot item", func(t *testing.T) {
		res := h.Handle(v, Args{"target": "lantern"})
		require.True(t, res.Success)
		assert.Contains(t, res.Message, "Lantern")
	})

	t.Run("npc", func(t *testing.T) {
		res := h.Handle(v, Args{"target": "Guide"})
		assert.True(t, res.Success)
	})

	t.Run("unknown target", func(t *testing.T) {
		res := h.Handle(v, Args{"target": "dragon"})
		assert.False(t, res.Success)
		assert.Equal(t, world.KindValidation, res.ErrorKind)
	})
}

func TestAcceptObjectiveHandler(t *testing.T) {
	h := &AcceptObjectiveHandler{}
	v := testView(t)

	res := h.Handle(v, Args{"objective": "obj-1"})
	require.True(t, res.Success)
	require.Len(t, res.Changes, 1)
	assert.Equal(t, "/players/alice/objectives/obj-1", res.Changes[0].Path)
	assert.Equal(t, world.OpAdd, res.Changes[0].Op)

	var progress world.ObjectiveProgress
	require.NoError(t, json.Unmarshal(res.Changes[0].Value, &progress))
	assert.Equal(t, "obj-1", progress.ObjectiveID)
	assert.Equal(t, "guide", progress.OfferedBy)

	t.Run("already accepted", func(t *testing.T) {
		v := testView(t)
		v.Overlay.Objectives = map[string]*world.ObjectiveProgress{
			"obj-1": {ObjectiveID: "obj-1"},
		}
		res := h.Handle(v, Args{"objective": "obj-1"})
		assert.False(t, res.Success)
	})

	t.Run("nobody offers it", func(t *testing.T) {
		res := h.Handle(v, Args{"objective": "obj-99"})
		assert.False(t, res.Success)
		assert.Equal(t, world.KindValidation, res.ErrorKind)
	})
}

func TestArgsGet(t *testing.T) {
	a := Args{"item": "  lantern  "}
	assert.Equal(t, "lantern", a.Get("item"))
	assert.Equal(t, "", a.Get("missing"))
}
