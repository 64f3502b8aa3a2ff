// Gaia World Sync - Real-Time World State Synchronization Engine
// Copyright 2026 Aeonia AI
// SPDX-License-Identifier: Apache-2.0
// https://github.com/Aeonia-ai/gaia-sub003

package router

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/Aeonia-ai/gaia-sub003/internal/handler"
	"github.com/Aeonia-ai/gaia-sub003/internal/logging"
	"github.com/Aeonia-ai/gaia-sub003/internal/metrics"
	"github.com/Aeonia-ai/gaia-sub003/internal/world"
)

// AdminHandler is one world-building operation. Unlike fast handlers,
// admin handlers see the full document: operators are not subject to
// visibility scoping.
type AdminHandler interface {
	// Verb is the admin verb without the reserved prefix.
	Verb() string

	// Handle validates the operation against the document and proposes
	// changes. It never mutates the document itself.
	Handle(doc *world.Document, args handler.Args) *world.Result
}

// AdminRegistry resolves admin verbs. Argument schemas for custom
// operations are supplied by the embedding application; the default
// registry covers the built-in world-building verbs.
type AdminRegistry interface {
	Lookup(verb string) AdminHandler
	Verbs() []string
}

// adminRegistry is the default AdminRegistry.
type adminRegistry struct {
	mu       sync.RWMutex
	handlers map[string]AdminHandler
}

// NewAdminRegistry returns a registry with the built-in admin verbs:
// set, spawn_item, remove_item. The reset verb is handled by the router
// directly because it bypasses change-set application.
func NewAdminRegistry() AdminRegistry {
	r := &adminRegistry{handlers: make(map[string]AdminHandler)}
	for _, h := range []AdminHandler{
		&setAttributeHandler{},
		&spawnItemHandler{},
		&removeItemHandler{},
	} {
		r.handlers[h.Verb()] = h
	}
	return r
}

func (r *adminRegistry) Lookup(verb string) AdminHandler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.handlers[verb]
}

func (r *adminRegistry) Verbs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	verbs := make([]string, 0, len(r.handlers))
	for v := range r.handlers {
		verbs = append(verbs, v)
	}
	sort.Strings(verbs)
	return verbs
}

// ResetVerb performs an out-of-band world reset instead of a change-set
// commit.
const ResetVerb = "reset"

// dispatchAdmin verifies operator privileges, then either resets the
// unit or runs an admin handler through the same propose/apply cycle as
// fast commands, against the unscoped document.
func (r *Router) dispatchAdmin(ctx context.Context, cmd *Command) *world.Result {
	verb := strings.TrimPrefix(cmd.Verb, AdminPrefix)

	if r.privileges == nil {
		return world.Failure(world.NewValidation("administrative commands are not enabled"))
	}
	allowed, err := r.privileges.CanAdminister(ctx, cmd.UserID)
	if err != nil {
		return world.Failure(world.NewInternal("privilege check failed", err))
	}
	if !allowed {
		return world.Failure(world.NewValidation("you are not permitted to use %s commands", AdminPrefix))
	}

	if verb == ResetVerb {
		return r.resetWorld(ctx, cmd)
	}

	h := r.admin.Lookup(verb)
	if h == nil {
		return world.Failure(world.NewValidation("unknown admin verb %q", verb))
	}

	var lastErr error
	for attempt := 0; attempt <= r.cfg.MaxProposalRetries; attempt++ {
		doc, version, err := r.store.Get(ctx, cmd.ExperienceID, cmd.UserID)
		if err != nil {
			return world.Failure(err)
		}
		res := h.Handle(doc, cmd.Args)
		if !res.Success || len(res.Changes) == 0 {
			return res
		}
		commit, err := r.store.Apply(ctx, cmd.ExperienceID, cmd.UserID, version, res.Changes)
		if err == nil {
			r.publishCommit(ctx, commit)
			return res
		}
		if !world.IsKind(err, world.KindConflict) {
			return world.Failure(err)
		}
		metrics.ProposalRetries.Inc()
		lastErr = err
	}
	return world.Failure(lastErr)
}

// resetWorld restores the unit from its template and notifies clients
// to take a fresh snapshot.
func (r *Router) resetWorld(ctx context.Context, cmd *Command) *world.Result {
	commit, err := r.store.Reset(ctx, cmd.ExperienceID, cmd.UserID)
	if err != nil {
		return world.Failure(err)
	}
	if r.publisher != nil {
		if err := r.publisher.NotifyReset(ctx, commit); err != nil {
			logging.Warn().Err(err).Str("experience_id", cmd.ExperienceID).Msg("reset notification not published")
		}
	}
	return &world.Result{Success: true, Message: "world reset to its template"}
}

// setAttributeHandler repositions or relabels an area:
//
//	@set area=<id> field=coordinates x=<n> y=<n>
//	@set area=<id> field=name value=<text>
//	@set area=<id> field=description value=<text>
type setAttributeHandler struct{}

func (*setAttributeHandler) Verb() string { return "set" }

func (*setAttributeHandler) Handle(doc *world.Document, args handler.Args) *world.Result {
	areaID := args.Get("area")
	field := args.Get("field")
	if areaID == "" || field == "" {
		return world.Failure(world.NewValidation("set requires area and field"))
	}
	area := doc.Area(areaID)
	if area == nil {
		return world.Failure(world.NewNotFound("area %s", areaID))
	}

	var value interface{}
	switch field {
	case "coordinates":
		x, errX := strconv.ParseFloat(args.Get("x"), 64)
		y, errY := strconv.ParseFloat(args.Get("y"), 64)
		if errX != nil || errY != nil {
			return world.Failure(world.NewValidation("coordinates require numeric x and y"))
		}
		value = &world.Coordinates{X: x, Y: y}
	case "name", "description":
		v := args.Get("value")
		if v == "" {
			return world.Failure(world.NewValidation("%s requires a value", field))
		}
		value = v
	default:
		return world.Failure(world.NewValidation("unknown area field %q", field))
	}

	change, err := world.NewChange("/areas/"+areaID+"/"+field, world.OpUpdate, value)
	if err != nil {
		return world.Failure(err)
	}
	return &world.Result{
		Success: true,
		Message: "updated " + field + " of " + area.Name,
		Changes: []world.Change{change},
	}
}

// spawnItemHandler places a new item at a spot:
//
//	@spawn_item area=<id> spot=<id> item=<id> name=<text> [description=<text>] [unique] ...
type spawnItemHandler struct{}

func (*spawnItemHandler) Verb() string { return "spawn_item" }

func (*spawnItemHandler) Handle(doc *world.Document, args handler.Args) *world.Result {
	areaID, spotID, itemID := args.Get("area"), args.Get("spot"), args.Get("item")
	if areaID == "" || spotID == "" || itemID == "" {
		return world.Failure(world.NewValidation("spawn_item requires area, spot and item"))
	}
	if doc.Spot(areaID, spotID) == nil {
		return world.Failure(world.NewNotFound("spot %s/%s", areaID, spotID))
	}

	name := args.Get("name")
	if name == "" {
		name = itemID
	}
	item := &world.Item{
		ID:          itemID,
		Name:        name,
		Description: args.Get("description"),
		Unique:      args.Get("unique") == "true",
		Usable:      args.Get("usable") == "true",
		Consumable:  args.Get("consumable") == "true",
	}

	change, err := world.NewChange("/areas/"+areaID+"/spots/"+spotID+"/items/"+itemID, world.OpAdd, item)
	if err != nil {
		return world.Failure(err)
	}
	return &world.Result{
		Success: true,
		Message: "spawned " + name,
		Changes: []world.Change{change},
	}
}

// removeItemHandler deletes an item from a spot:
//
//	@remove_item area=<id> spot=<id> item=<id>
type removeItemHandler struct{}

func (*removeItemHandler) Verb() string { return "remove_item" }

func (*removeItemHandler) Handle(doc *world.Document, args handler.Args) *world.Result {
	areaID, spotID, itemID := args.Get("area"), args.Get("spot"), args.Get("item")
	if areaID == "" || spotID == "" || itemID == "" {
		return world.Failure(world.NewValidation("remove_item requires area, spot and item"))
	}
	spot := doc.Spot(areaID, spotID)
	if spot == nil {
		return world.Failure(world.NewNotFound("spot %s/%s", areaID, spotID))
	}
	found := false
	for _, it := range spot.Items {
		if it.ID == itemID {
			found = true
			break
		}
	}
	if !found {
		return world.Failure(world.NewNotFound("item %s at %s/%s", itemID, areaID, spotID))
	}

	change, err := world.NewChange("/areas/"+areaID+"/spots/"+spotID+"/items/"+itemID, world.OpRemove, nil)
	if err != nil {
		return world.Failure(err)
	}
	return &world.Result{
		Success: true,
		Message: "removed " + itemID,
		Changes: []world.Change{change},
	}
}
