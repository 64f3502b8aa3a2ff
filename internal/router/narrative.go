// Gaia World Sync - Real-Time World State Synchronization Engine
// Copyright 2026 Aeonia AI
// SPDX-License-Identifier: Apache-2.0
// https://github.com/Aeonia-ai/gaia-sub003

package router

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	json "github.com/goccy/go-json"

	"github.com/Aeonia-ai/gaia-sub003/internal/logging"
	"github.com/Aeonia-ai/gaia-sub003/internal/view"
	"github.com/Aeonia-ai/gaia-sub003/internal/world"
)

// interpretRequest is the wire shape sent to the narrative service. The
// world context is the player's scoped view, so the interpreter can
// only reason about what the player could see.
type interpretRequest struct {
	ExperienceID string           `json:"experience_id"`
	UserID       string           `json:"user_id"`
	Command      string           `json:"command"`
	WorldContext *view.PlayerView `json:"world_context"`
}

// interpretResponse is the narrative service's proposal.
type interpretResponse struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Changes []world.Change `json:"changes,omitempty"`
}

// HTTPInterpreter calls an external narrative service over HTTP. The
// per-call deadline comes from the router's context; the client timeout
// is only a backstop.
type HTTPInterpreter struct {
	endpoint string
	client   *http.Client
}

// NewHTTPInterpreter creates an interpreter client for the given
// endpoint.
func NewHTTPInterpreter(endpoint string, timeout time.Duration) *HTTPInterpreter {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPInterpreter{
		endpoint: endpoint,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        16,
				MaxIdleConnsPerHost: 16,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// Interpret implements Interpreter.
func (i *HTTPInterpreter) Interpret(ctx context.Context, experienceID, userID string, worldContext *view.PlayerView, rawCommand string) (*world.Result, error) {
	body, err := json.Marshal(&interpretRequest{
		ExperienceID: experienceID,
		UserID:       userID,
		Command:      rawCommand,
		WorldContext: worldContext,
	})
	if err != nil {
		return nil, fmt.Errorf("encode interpret request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, i.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build interpret request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	started := time.Now()
	resp, err := i.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Drain a bounded amount so the connection can be reused.
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("narrative service returned %d: %s", resp.StatusCode, string(snippet))
	}

	var out interpretResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode interpret response: %w", err)
	}

	logging.Debug().
		Str("experience_id", experienceID).
		Str("user_id", userID).
		Bool("success", out.Success).
		Int("changes", len(out.Changes)).
		Dur("elapsed", time.Since(started)).
		Msg("narrative interpretation")

	res := &world.Result{
		Success: out.Success,
		Message: out.Message,
		Changes: out.Changes,
	}
	if !out.Success {
		res.ErrorKind = world.KindValidation
	}
	return res, nil
}

// StaticPrivileges is a PrivilegeChecker over a fixed operator list,
// used when no external authorization service is configured.
type StaticPrivileges struct {
	operators map[string]struct{}
}

// NewStaticPrivileges builds a checker allowing exactly the given user
// IDs.
func NewStaticPrivileges(userIDs []string) *StaticPrivileges {
	ops := make(map[string]struct{}, len(userIDs))
	for _, id := range userIDs {
		ops[id] = struct{}{}
	}
	return &StaticPrivileges{operators: ops}
}

// CanAdminister implements PrivilegeChecker.
func (p *StaticPrivileges) CanAdminister(_ context.Context, userID string) (bool, error) {
	_, ok := p.operators[userID]
	return ok, nil
}
