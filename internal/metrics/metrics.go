// Gaia World Sync - Real-Time World State Synchronization Engine
// Copyright 2026 Aeonia AI
// SPDX-License-Identifier: Apache-2.0
// https://github.com/Aeonia-ai/gaia-sub003

// Package metrics provides Prometheus instrumentation for the sync
// engine: command routing, state store commits, event fan-out, and
// client sessions.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Command routing

	CommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gaia_commands_total",
			Help: "Total commands routed, by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	CommandDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gaia_command_duration_seconds",
			Help:    "Command execution latency by kind",
			Buckets: []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"kind"},
	)

	NarrativeTimeouts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gaia_narrative_timeouts_total",
			Help: "Narrative interpreter calls that exceeded the deadline",
		},
	)

	ProposalRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gaia_proposal_retries_total",
			Help: "Proposals recomputed after an optimistic-concurrency conflict",
		},
	)

	// State store

	CommitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gaia_commits_total",
			Help: "Committed world document mutations",
		},
	)

	CommitConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gaia_commit_conflicts_total",
			Help: "Apply attempts rejected by version mismatch",
		},
	)

	WorldVersion = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gaia_world_version",
			Help: "Current committed version per mutable-world unit",
		},
		[]string{"unit"},
	)

	// Event fan-out

	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gaia_events_published_total",
			Help: "World update events published, by scope",
		},
		[]string{"scope"},
	)

	EventPublishFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gaia_event_publish_failures_total",
			Help: "Event bus publish attempts that failed (retried with backoff)",
		},
	)

	// Sessions

	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gaia_active_sessions",
			Help: "Currently connected client sessions",
		},
	)

	SessionResyncs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gaia_session_resyncs_total",
			Help: "Resyncs performed, by mode (replay or snapshot)",
		},
		[]string{"mode"},
	)

	DeltasDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gaia_deltas_dropped_total",
			Help: "Outbound deltas dropped due to slow-client backpressure",
		},
	)
)
