// Gaia World Sync - Real-Time World State Synchronization Engine
// Copyright 2026 Aeonia AI
// SPDX-License-Identifier: Apache-2.0
// https://github.com/Aeonia-ai/gaia-sub003

// Package handler implements the fast-deterministic command path: a
// registry of verb implementations that validate preconditions against a
// player view and propose minimal change sets, without performing any
// external I/O or mutating anything themselves.
//
// Handlers must be retry-safe: the same (view, args) always yields the
// same result, so the optimistic-concurrency retry loop can re-run a
// handler against a freshly projected view without double effects.
package handler

import (
	"sort"
	"strings"
	"sync"

	"github.com/Aeonia-ai/gaia-sub003/internal/view"
	"github.com/Aeonia-ai/gaia-sub003/internal/world"
)

// Args carries the parsed arguments of a fast command.
type Args map[string]string

// Get returns the named argument, trimmed, or "".
func (a Args) Get(key string) string {
	return strings.TrimSpace(a[key])
}

// Handler is one deterministic command implementation.
type Handler interface {
	// Verb is the command verb this handler owns.
	Verb() string

	// Handle validates preconditions against the view and returns either
	// a successful result carrying proposed changes, or a failed result
	// with a typed error kind. It never mutates the view or the document.
	Handle(v *view.PlayerView, args Args) *world.Result
}

// Registry is the closed set of fast handlers keyed by verb.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry returns a registry pre-populated with the standard verbs.
func NewRegistry() *Registry {
	r := &Registry{handlers: make(map[string]Handler)}
	r.Register(&MoveHandler{})
	r.Register(&CollectHandler{})
	r.Register(&DropHandler{})
	r.Register(&UseHandler{})
	r.Register(&GiveHandler{})
	r.Register(&InspectHandler{})
	r.Register(&AcceptObjectiveHandler{})
	return r
}

// Register adds or replaces a handler for its verb.
func (r *Registry) Register(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[h.Verb()] = h
}

// Lookup returns the handler for verb, or nil.
func (r *Registry) Lookup(verb string) Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.handlers[verb]
}

// Has reports whether a verb is registered.
func (r *Registry) Has(verb string) bool {
	return r.Lookup(verb) != nil
}

// Verbs returns the registered verbs in sorted order.
func (r *Registry) Verbs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	verbs := make([]string, 0, len(r.handlers))
	for v := range r.handlers {
		verbs = append(verbs, v)
	}
	sort.Strings(verbs)
	return verbs
}

// findSpotItem resolves an item at the player's current spot by ID first,
// then by case-insensitive name.
func findSpotItem(spot *world.Spot, ref string) *world.Item {
	if spot == nil {
		return nil
	}
	return findIn(spot.Items, ref)
}

func findIn(items []*world.Item, ref string) *world.Item {
	for _, it := range items {
		if it.ID == ref {
			return it
		}
	}
	for _, it := range items {
		if strings.EqualFold(it.Name, ref) {
			return it
		}
	}
	return nil
}

// playerPaths builds the change paths for one player's state.
func inventoryPath(userID, itemID string) string {
	return "/players/" + userID + "/inventory/" + itemID
}

func spotItemPath(areaID, spotID, itemID string) string {
	return "/areas/" + areaID + "/spots/" + spotID + "/items/" + itemID
}

func locationPath(userID string) string {
	return "/players/" + userID + "/location"
}
