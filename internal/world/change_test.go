// Gaia World Sync - Real-Time World State Synchronization Engine
// Copyright 2026 Aeonia AI
// SPDX-License-Identifier: Apache-2.0
// https://github.com/Aeonia-ai/gaia-sub003

package world

import (
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testDocument builds a small two-area world: a lantern at the gate, a
// guide NPC with a map, and alice standing at the gate.
func testDocument(t *testing.T) *Document {
	t.Helper()
	doc := &Document{
		ExperienceID: "exp-1",
		Zones: []*Zone{{
			ID:   "z1",
			Name: "Valley",
			Areas: []*Area{
				{
					ID:          "gate",
					Name:        "Old Gate",
					Linked:      []string{"meadow"},
					Coordinates: &Coordinates{X: 0, Y: 0},
					Spots: []*Spot{{
						ID:    "arch",
						Name:  "Stone Arch",
						Items: []*Item{{ID: "lantern", Name: "Lantern", Unique: true}},
						NPCs:  []string{"guide"},
					}},
				},
				{
					ID:          "meadow",
					Name:        "Meadow",
					Linked:      []string{"gate"},
					Coordinates: &Coordinates{X: 3, Y: 4},
					Spots:       []*Spot{{ID: "well", Name: "Well"}},
				},
			},
		}},
		NPCs: map[string]*NPC{
			"guide": {
				ID:        "guide",
				Name:      "Guide",
				AreaID:    "gate",
				SpotID:    "arch",
				Inventory: []*Item{{ID: "map", Name: "Map"}},
				Offers:    []ObjectiveOffer{{ID: "obj-1", Name: "Find the well"}},
			},
		},
		Players: map[string]*PlayerState{
			"alice": {ID: "alice", Name: "Alice", AreaID: "gate", SpotID: "arch"},
		},
	}
	return doc
}

func mustChange(t *testing.T, path string, op Op, value interface{}) Change {
	t.Helper()
	c, err := NewChange(path, op, value)
	require.NoError(t, err)
	return c
}

func TestApplyChanges_PlayerLifecycle(t *testing.T) {
	doc := testDocument(t)

	add := mustChange(t, "/players/bob", OpAdd, &PlayerState{Name: "Bob", AreaID: "gate"})
	require.NoError(t, ApplyChanges(doc, []Change{add}))
	require.NotNil(t, doc.Player("bob"))
	assert.Equal(t, "bob", doc.Player("bob").ID, "ID is derived from the path")

	// Adding the same player again must fail: add requires absence.
	err := ApplyChanges(doc, []Change{add})
	require.Error(t, err)
	assert.True(t, IsKind(err, KindValidation))

	move := mustChange(t, "/players/bob/location", OpUpdate, &Location{AreaID: "meadow", SpotID: "well"})
	require.NoError(t, ApplyChanges(doc, []Change{move}))
	assert.Equal(t, "meadow", doc.Player("bob").AreaID)
	assert.Equal(t, "well", doc.Player("bob").SpotID)

	remove := mustChange(t, "/players/bob", OpRemove, nil)
	require.NoError(t, ApplyChanges(doc, []Change{remove}))
	assert.Nil(t, doc.Player("bob"))

	err = ApplyChanges(doc, []Change{remove})
	require.Error(t, err)
	assert.True(t, IsKind(err, KindValidation), "removing a missing player fails validation")
}

func TestApplyChanges_CollectPreconditions(t *testing.T) {
	doc := testDocument(t)

	collect := []Change{
		mustChange(t, "/areas/gate/spots/arch/items/lantern", OpRemove, nil),
		mustChange(t, "/players/alice/inventory/lantern", OpAdd, &Item{Name: "Lantern", Unique: true}),
	}
	require.NoError(t, ApplyChanges(doc, collect))

	spot := doc.Spot("gate", "arch")
	assert.Empty(t, spot.Items, "item left the spot")
	require.Len(t, doc.Player("alice").Inventory, 1)
	assert.Equal(t, "lantern", doc.Player("alice").Inventory[0].ID)

	// Replaying the same change set fails on the first change: the
	// race loser's proposal no longer holds.
	err := ApplyChanges(doc, collect)
	require.Error(t, err)
	assert.True(t, IsKind(err, KindValidation))
}

func TestApplyChanges_MidListFailureReportsError(t *testing.T) {
	doc := testDocument(t)

	changes := []Change{
		mustChange(t, "/players/alice/trust/guide", OpUpdate, 1),
		mustChange(t, "/players/ghost/location", OpUpdate, &Location{AreaID: "gate"}),
	}
	err := ApplyChanges(doc, changes)
	require.Error(t, err)
	// The store applies to a clone and discards it on error; here we
	// only assert the error surfaces, not partial-application state.
	assert.True(t, IsKind(err, KindValidation))
}

func TestApplyChanges_ObjectivesAndTrust(t *testing.T) {
	doc := testDocument(t)

	accept := mustChange(t, "/players/alice/objectives/obj-1", OpAdd, &ObjectiveProgress{
		OfferedBy:  "guide",
		AcceptedAt: time.Now().UTC(),
	})
	require.NoError(t, ApplyChanges(doc, []Change{accept}))
	require.Contains(t, doc.Player("alice").Objectives, "obj-1")
	assert.Equal(t, "obj-1", doc.Player("alice").Objectives["obj-1"].ObjectiveID)

	// Accepting twice fails.
	err := ApplyChanges(doc, []Change{accept})
	require.Error(t, err)
	assert.True(t, IsKind(err, KindValidation))

	trust := mustChange(t, "/players/alice/trust/guide", OpUpdate, 3)
	require.NoError(t, ApplyChanges(doc, []Change{trust}))
	assert.Equal(t, 3, doc.Player("alice").Trust["guide"])
}

func TestApplyChanges_NPCMutations(t *testing.T) {
	doc := testDocument(t)

	give := []Change{
		mustChange(t, "/npcs/guide/inventory/coin", OpAdd, &Item{Name: "Coin"}),
	}
	require.NoError(t, ApplyChanges(doc, give))
	assert.Len(t, doc.NPC("guide").Inventory, 2)

	relocate := mustChange(t, "/npcs/guide/location", OpUpdate, &Location{AreaID: "meadow", SpotID: "well"})
	require.NoError(t, ApplyChanges(doc, []Change{relocate}))
	assert.Equal(t, "meadow", doc.NPC("guide").AreaID)

	err := ApplyChanges(doc, []Change{mustChange(t, "/npcs/nobody/location", OpUpdate, &Location{AreaID: "gate"})})
	require.Error(t, err)
	assert.True(t, IsKind(err, KindValidation))
}

func TestApplyChanges_AreaFields(t *testing.T) {
	doc := testDocument(t)

	changes := []Change{
		mustChange(t, "/areas/meadow/coordinates", OpUpdate, &Coordinates{X: 10, Y: -2}),
		mustChange(t, "/areas/meadow/name", OpUpdate, "Sunlit Meadow"),
		mustChange(t, "/areas/meadow/description", OpUpdate, "Tall grass."),
	}
	require.NoError(t, ApplyChanges(doc, changes))

	area := doc.Area("meadow")
	assert.Equal(t, 10.0, area.Coordinates.X)
	assert.Equal(t, "Sunlit Meadow", area.Name)
	assert.Equal(t, "Tall grass.", area.Description)

	err := ApplyChanges(doc, []Change{mustChange(t, "/areas/void/name", OpUpdate, "x")})
	require.Error(t, err)
	assert.True(t, IsKind(err, KindValidation))
}

func TestApplyChanges_MalformedPaths(t *testing.T) {
	doc := testDocument(t)

	tests := []struct {
		name string
		path string
		op   Op
	}{
		{"empty path", "", OpUpdate},
		{"single segment", "/players", OpUpdate},
		{"unknown root", "/weather/gate", OpUpdate},
		{"unknown player field", "/players/alice/mood", OpUpdate},
		{"inventory missing item id", "/players/alice/inventory", OpAdd},
		{"spot path too short", "/areas/gate/spots/arch", OpAdd},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Change{Path: tt.path, Op: tt.op, Value: json.RawMessage(`{}`)}
			err := ApplyChanges(doc, []Change{c})
			require.Error(t, err)
			assert.True(t, IsKind(err, KindValidation))
		})
	}
}

// TestApplyChanges_ReplayDeterminism is the replayability invariant:
// applying the same committed change sets to two independent instances
// of the same template state yields identical documents.
func TestApplyChanges_ReplayDeterminism(t *testing.T) {
	tmpl := &Template{ExperienceID: "exp-1", Zones: testDocument(t).Zones, NPCs: []*NPC{
		{ID: "guide", Name: "Guide", AreaID: "gate", SpotID: "arch"},
	}}

	first, err := tmpl.Instantiate()
	require.NoError(t, err)
	second, err := tmpl.Instantiate()
	require.NoError(t, err)

	sets := [][]Change{
		{mustChange(t, "/players/alice", OpAdd, &PlayerState{Name: "Alice", AreaID: "gate", SpotID: "arch"})},
		{
			mustChange(t, "/areas/gate/spots/arch/items/lantern", OpRemove, nil),
			mustChange(t, "/players/alice/inventory/lantern", OpAdd, &Item{Name: "Lantern", Unique: true}),
		},
		{mustChange(t, "/players/alice/location", OpUpdate, &Location{AreaID: "meadow", SpotID: "well"})},
		{mustChange(t, "/players/alice/trust/guide", OpUpdate, 2)},
	}

	for _, set := range sets {
		require.NoError(t, ApplyChanges(first, set))
	}
	for _, set := range sets {
		require.NoError(t, ApplyChanges(second, set))
	}

	// LastModified is wall-clock and excluded from the comparison.
	first.Meta = Metadata{}
	second.Meta = Metadata{}
	a, err := json.Marshal(first)
	require.NoError(t, err)
	b, err := json.Marshal(second)
	require.NoError(t, err)
	assert.JSONEq(t, string(a), string(b))
}

func TestTemplate_Instantiate(t *testing.T) {
	raw := []byte(`{
		"experience_id": "exp-7",
		"zones": [{"id": "z", "name": "Z", "areas": [{"id": "a1", "name": "First"}, {"id": "a2", "name": "Second"}]}],
		"npcs": [{"id": "n1", "name": "N", "area_id": "a1"}]
	}`)
	tmpl, err := ParseTemplate(raw)
	require.NoError(t, err)

	doc, err := tmpl.Instantiate()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), doc.Meta.Version)
	assert.Equal(t, "exp-7", doc.ExperienceID)
	require.NotNil(t, doc.NPC("n1"))
	assert.Equal(t, "a1", tmpl.EntryArea().ID)

	// Instances are independent: mutating one leaves the other alone.
	other, err := tmpl.Instantiate()
	require.NoError(t, err)
	doc.NPC("n1").AreaID = "a2"
	assert.Equal(t, "a1", other.NPC("n1").AreaID)

	_, err = ParseTemplate([]byte(`{"zones": []}`))
	require.Error(t, err, "template without experience_id is rejected")
}

func TestDocument_Clone(t *testing.T) {
	doc := testDocument(t)
	clone, err := doc.Clone()
	require.NoError(t, err)

	clone.Players["alice"].AreaID = "meadow"
	clone.Spot("gate", "arch").Items = nil

	assert.Equal(t, "gate", doc.Player("alice").AreaID)
	assert.Len(t, doc.Spot("gate", "arch").Items, 1)
}
