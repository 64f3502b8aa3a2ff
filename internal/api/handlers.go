// Gaia World Sync - Real-Time World State Synchronization Engine
// Copyright 2026 Aeonia AI
// SPDX-License-Identifier: Apache-2.0
// https://github.com/Aeonia-ai/gaia-sub003

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"

	"github.com/Aeonia-ai/gaia-sub003/internal/logging"
	"github.com/Aeonia-ai/gaia-sub003/internal/store"
	"github.com/Aeonia-ai/gaia-sub003/internal/view"
	"github.com/Aeonia-ai/gaia-sub003/internal/world"
)

// HealthChecker reports whether a dependency is usable. The bus
// implements this through its circuit breaker state.
type HealthChecker interface {
	Healthy() bool
}

// Handler implements the REST endpoints.
type Handler struct {
	store     *store.Store
	rule      view.ScopeRule
	busHealth HealthChecker
	started   time.Time
}

// NewHandler creates a Handler. busHealth may be nil for buses without
// a health signal, such as the in-process bus.
func NewHandler(st *store.Store, rule view.ScopeRule, busHealth HealthChecker) *Handler {
	return &Handler{
		store:     st,
		rule:      rule,
		busHealth: busHealth,
		started:   time.Now(),
	}
}

type healthResponse struct {
	Status string `json:"status"`
	Uptime string `json:"uptime"`
}

// HealthLive reports process liveness.
func (h *Handler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status: "ok",
		Uptime: time.Since(h.started).Truncate(time.Second).String(),
	})
}

// HealthReady reports readiness: the process is up and the event bus is
// accepting publishes.
func (h *Handler) HealthReady(w http.ResponseWriter, _ *http.Request) {
	if h.busHealth != nil && !h.busHealth.Healthy() {
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{
			Status: "event bus degraded",
			Uptime: time.Since(h.started).Truncate(time.Second).String(),
		})
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{
		Status: "ready",
		Uptime: time.Since(h.started).Truncate(time.Second).String(),
	})
}

type versionResponse struct {
	ExperienceID string `json:"experience_id"`
	Version      uint64 `json:"version"`
}

// WorldVersion returns the current document version of a world unit.
// For isolated worlds the user_id query parameter selects the instance.
func (h *Handler) WorldVersion(w http.ResponseWriter, r *http.Request) {
	experienceID := chi.URLParam(r, "experienceID")
	userID := r.URL.Query().Get("user_id")

	_, version, err := h.store.Get(r.Context(), experienceID, userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, versionResponse{ExperienceID: experienceID, Version: version})
}

// WorldSnapshot returns the scoped view for a player, the same
// projection a session receives on connect. Useful for debugging what
// a given player can currently see.
func (h *Handler) WorldSnapshot(w http.ResponseWriter, r *http.Request) {
	experienceID := chi.URLParam(r, "experienceID")
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, world.NewValidation("user_id is required"))
		return
	}

	doc, _, err := h.store.Get(r.Context(), experienceID, userID)
	if err != nil {
		writeError(w, err)
		return
	}
	v, err := view.Project(doc, userID, h.rule)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch world.KindOf(err) {
	case world.KindValidation:
		status = http.StatusBadRequest
	case world.KindNotFound:
		status = http.StatusNotFound
	case world.KindConflict:
		status = http.StatusConflict
	case world.KindTimeout:
		status = http.StatusGatewayTimeout
	}
	writeJSON(w, status, errorResponse{Error: err.Error(), Kind: string(world.KindOf(err))})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.Warn().Err(err).Msg("response encoding failed")
	}
}
