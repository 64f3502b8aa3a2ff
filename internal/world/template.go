// Gaia World Sync - Real-Time World State Synchronization Engine
// Copyright 2026 Aeonia AI
// SPDX-License-Identifier: Apache-2.0
// https://github.com/Aeonia-ai/gaia-sub003

package world

import (
	"time"

	json "github.com/goccy/go-json"
)

// Template is the authored starting state of an experience. Templates are
// produced outside this engine; the store clones them on first contact
// (once per experience under the shared model, once per player under the
// isolated model) and on administrative reset.
type Template struct {
	ExperienceID string  `json:"experience_id"`
	Zones        []*Zone `json:"zones"`
	NPCs         []*NPC  `json:"npcs,omitempty"`
}

// ParseTemplate decodes an authored template from JSON.
func ParseTemplate(raw []byte) (*Template, error) {
	var t Template
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, NewInternal("decode world template", err)
	}
	if t.ExperienceID == "" {
		return nil, NewValidation("template missing experience_id")
	}
	return &t, nil
}

// Instantiate produces a fresh Document at version 0 from the template.
// Each call returns an independent instance; no two players under the
// isolated model ever share a backing document.
func (t *Template) Instantiate() (*Document, error) {
	src := &Document{
		ExperienceID: t.ExperienceID,
		Zones:        t.Zones,
		Players:      map[string]*PlayerState{},
		NPCs:         map[string]*NPC{},
	}
	for _, n := range t.NPCs {
		src.NPCs[n.ID] = n
	}
	doc, err := src.Clone()
	if err != nil {
		return nil, err
	}
	doc.Meta = Metadata{Version: 0, LastModified: time.Now().UTC()}
	return doc, nil
}

// EntryArea returns the template's first area, the default placement for
// newly joined players. Returns nil for an empty template.
func (t *Template) EntryArea() *Area {
	for _, z := range t.Zones {
		for _, a := range z.Areas {
			return a
		}
	}
	return nil
}
