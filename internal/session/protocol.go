// Gaia World Sync - Real-Time World State Synchronization Engine
// Copyright 2026 Aeonia AI
// SPDX-License-Identifier: Apache-2.0
// https://github.com/Aeonia-ai/gaia-sub003

package session

import (
	"github.com/Aeonia-ai/gaia-sub003/internal/handler"
	"github.com/Aeonia-ai/gaia-sub003/internal/view"
	"github.com/Aeonia-ai/gaia-sub003/internal/world"
)

// Inbound message types.
const (
	MsgTypeCommand = "command"
	MsgTypeResume  = "resume"
	MsgTypePing    = "ping"
)

// Outbound message types.
const (
	MsgTypeSnapshot    = "snapshot"
	MsgTypeWorldUpdate = "world_update"
	MsgTypeResult      = "result"
	MsgTypeError       = "error"
	MsgTypePong        = "pong"
)

// Inbound is a client-to-server frame.
type Inbound struct {
	Type string `json:"type"`

	// Command fields, for type=command. Identity never comes from the
	// payload; the session stamps it from the connection.
	Verb string       `json:"verb,omitempty"`
	Args handler.Args `json:"args,omitempty"`
	Text string       `json:"text,omitempty"`

	// LastVersion is the client's last applied version, for
	// type=resume.
	LastVersion uint64 `json:"last_version,omitempty"`
}

// Outbound is a server-to-client frame.
type Outbound struct {
	Type    string `json:"type"`
	Version uint64 `json:"version,omitempty"`

	// View is the full scoped snapshot, for type=snapshot.
	View *view.PlayerView `json:"view,omitempty"`

	// Changes carries one committed change set, for type=world_update.
	Changes []world.Change `json:"changes,omitempty"`

	// Message and ErrorKind report command outcomes, for type=result
	// and type=error.
	Success   bool   `json:"success,omitempty"`
	Message   string `json:"message,omitempty"`
	ErrorKind string `json:"error_kind,omitempty"`
}

func resultFrame(res *world.Result) *Outbound {
	out := &Outbound{
		Type:    MsgTypeResult,
		Success: res.Success,
		Message: res.Message,
	}
	if !res.Success {
		out.Type = MsgTypeError
		out.ErrorKind = string(res.ErrorKind)
	}
	return out
}

func errorFrame(err error) *Outbound {
	return &Outbound{
		Type:      MsgTypeError,
		Message:   err.Error(),
		ErrorKind: string(world.KindOf(err)),
	}
}
