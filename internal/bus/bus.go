// Gaia World Sync - Real-Time World State Synchronization Engine
// Copyright 2026 Aeonia AI
// SPDX-License-Identifier: Apache-2.0
// https://github.com/Aeonia-ai/gaia-sub003

// Package bus provides the at-least-once pub/sub transport between the
// update publisher and the connection manager.
//
// Two implementations share the Watermill message contract: an
// in-process GoChannel bus for single-node deployments, and a NATS
// JetStream bus for multi-node fan-out. Consumers must tolerate
// duplicate delivery; idempotence is enforced downstream by version
// checks.
package bus

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/rs/zerolog"

	"github.com/Aeonia-ai/gaia-sub003/internal/logging"
)

// Bus is the transport contract: a Watermill publisher and subscriber
// pair with at-least-once delivery semantics.
type Bus interface {
	message.Publisher
	message.Subscriber
}

// NewInProcess returns a GoChannel-backed Bus. Subscribers receive only
// messages published after they subscribe, which matches the engine's
// model: missed history is recovered through the resync path, not the
// bus.
func NewInProcess(outputBuffer int64) Bus {
	if outputBuffer <= 0 {
		outputBuffer = 256
	}
	return gochannel.NewGoChannel(
		gochannel.Config{OutputChannelBuffer: outputBuffer},
		NewWatermillLogger(),
	)
}

// zerologAdapter bridges Watermill's logging to the engine's zerolog
// stream.
type zerologAdapter struct {
	fields watermill.LogFields
}

// NewWatermillLogger returns a watermill.LoggerAdapter writing to the
// global zerolog logger.
func NewWatermillLogger() watermill.LoggerAdapter {
	return &zerologAdapter{}
}

func (a *zerologAdapter) Error(msg string, err error, fields watermill.LogFields) {
	a.emit(logging.Error().Err(err), msg, fields)
}

// Info demotes to debug; watermill's info-level output is per-message
// noise at this layer.
func (a *zerologAdapter) Info(msg string, fields watermill.LogFields) {
	a.emit(logging.Debug(), msg, fields)
}

func (a *zerologAdapter) Debug(msg string, fields watermill.LogFields) {
	a.emit(logging.Debug(), msg, fields)
}

func (a *zerologAdapter) Trace(msg string, fields watermill.LogFields) {
	a.emit(logging.Debug(), msg, fields)
}

func (a *zerologAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &zerologAdapter{fields: a.fields.Add(fields)}
}

func (a *zerologAdapter) emit(event *zerolog.Event, msg string, fields watermill.LogFields) {
	for k, v := range a.fields {
		event = event.Interface(k, v)
	}
	for k, v := range fields {
		event = event.Interface(k, v)
	}
	event.Msg(msg)
}
