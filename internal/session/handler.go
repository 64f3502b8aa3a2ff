// Gaia World Sync - Real-Time World State Synchronization Engine
// Copyright 2026 Aeonia AI
// SPDX-License-Identifier: Apache-2.0
// https://github.com/Aeonia-ai/gaia-sub003

package session

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/Aeonia-ai/gaia-sub003/internal/logging"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Origin policy is enforced by the CORS middleware in front of
	// this handler; the engine itself trusts the fronting proxy.
	CheckOrigin: func(*http.Request) bool { return true },
}

// HandleWS upgrades an HTTP request to a session connection.
//
// Identity arrives in query parameters: authentication is delegated to
// the deployment's fronting proxy, which is expected to have verified
// the user before the request reaches the engine.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	experienceID := r.URL.Query().Get("experience_id")
	userID := r.URL.Query().Get("user_id")
	name := r.URL.Query().Get("name")
	if experienceID == "" || userID == "" {
		http.Error(w, "experience_id and user_id are required", http.StatusBadRequest)
		return
	}
	if name == "" {
		name = userID
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	s := newSession(h, conn, experienceID, userID)
	if err := h.attach(s, name); err != nil {
		logging.Warn().
			Err(err).
			Str("user_id", userID).
			Str("experience_id", experienceID).
			Msg("session start failed")
		// Best effort: tell the client why before closing.
		_ = conn.WriteJSON(errorFrame(err))
		_ = conn.Close()
		return
	}
}
