// Gaia World Sync - Real-Time World State Synchronization Engine
// Copyright 2026 Aeonia AI
// SPDX-License-Identifier: Apache-2.0
// https://github.com/Aeonia-ai/gaia-sub003

// Package main is the entry point for the Gaia World Sync server.
//
// Gaia World Sync keeps a versioned world document per experience in
// sync across all connected clients: commands arrive over duplex
// connections, mutate the world atomically under optimistic
// concurrency, and fan back out as ordered, scoped deltas.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: layered sources via Koanf v2 (env > file > defaults)
//  2. Persistence: BadgerDB document storage
//  3. State store: world templates, versioning, per-unit locking
//  4. Event bus: in-process channels or NATS JetStream
//  5. Command router: fast handlers, admin verbs, narrative interpreter
//  6. Session hub: websocket connections, ordered delta delivery
//  7. HTTP server: /ws attach, health probes, metrics, REST snapshots
//
// Everything long-running sits under a suture supervisor tree, so a
// crashing layer restarts without taking the process down.
//
// # Configuration
//
// See internal/config for the full schema. Common settings:
//
//	export WORLD_TEMPLATE_DIR=/data/worlds
//	export WORLD_MODEL=shared           # or isolated
//	export BUS_DRIVER=inprocess         # or nats
//	export NARRATIVE_ENABLED=true
//	export NARRATIVE_ENDPOINT=http://narrator:8090/interpret
//	./gaia-world-sync
//
// # Signal Handling
//
// SIGINT and SIGTERM trigger graceful shutdown: sessions are closed,
// in-flight commits complete, and Badger is flushed before exit.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/Aeonia-ai/gaia-sub003/internal/api"
	"github.com/Aeonia-ai/gaia-sub003/internal/bus"
	"github.com/Aeonia-ai/gaia-sub003/internal/config"
	"github.com/Aeonia-ai/gaia-sub003/internal/events"
	"github.com/Aeonia-ai/gaia-sub003/internal/handler"
	"github.com/Aeonia-ai/gaia-sub003/internal/logging"
	"github.com/Aeonia-ai/gaia-sub003/internal/router"
	"github.com/Aeonia-ai/gaia-sub003/internal/session"
	"github.com/Aeonia-ai/gaia-sub003/internal/store"
	"github.com/Aeonia-ai/gaia-sub003/internal/supervisor"
	"github.com/Aeonia-ai/gaia-sub003/internal/view"
	"github.com/Aeonia-ai/gaia-sub003/internal/world"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("model", cfg.World.Model).
		Str("bus", cfg.Bus.Driver).
		Bool("narrative", cfg.Narrative.Enabled).
		Msg("starting gaia world sync")

	// Persistence.
	persist, err := store.OpenBadger(store.BadgerConfig{
		Path:       cfg.Persistence.Path,
		SyncWrites: cfg.Persistence.SyncWrites,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to open document storage")
	}
	defer func() {
		if err := persist.Close(); err != nil {
			logging.Error().Err(err).Msg("error closing document storage")
		}
	}()

	// State store and world templates.
	st := store.New(store.Model(cfg.World.Model), persist)
	loaded, err := loadTemplates(st, cfg.World.TemplateDir)
	if err != nil {
		logging.Fatal().Err(err).Str("dir", cfg.World.TemplateDir).Msg("failed to load world templates")
	}
	if loaded == 0 {
		logging.Warn().Str("dir", cfg.World.TemplateDir).Msg("no world templates found, every join will fail")
	} else {
		logging.Info().Int("templates", loaded).Msg("world templates loaded")
	}

	// Visibility rule.
	var rule view.ScopeRule
	if cfg.World.ScopeRule == "radius" {
		rule = view.RadiusRule{Radius: cfg.World.ScopeRadius}
	} else {
		rule = view.AdjacencyRule{}
	}

	// Event bus.
	var (
		eventBus  bus.Bus
		busHealth api.HealthChecker
	)
	if cfg.Bus.Driver == "nats" {
		natsCfg := bus.DefaultNATSConfig(cfg.Bus.NATSURL)
		natsCfg.Embedded = cfg.Bus.NATSEmbedded
		natsCfg.StoreDir = cfg.Bus.NATSStoreDir
		natsBus, err := bus.NewNATS(natsCfg)
		if err != nil {
			logging.Fatal().Err(err).Msg("failed to connect event bus")
		}
		eventBus = natsBus
		busHealth = natsBus
		logging.Info().Str("url", cfg.Bus.NATSURL).Bool("embedded", cfg.Bus.NATSEmbedded).Msg("NATS event bus connected")
	} else {
		eventBus = bus.NewInProcess(int64(cfg.Bus.Buffer))
		logging.Info().Int("buffer", cfg.Bus.Buffer).Msg("in-process event bus created")
	}
	defer func() {
		if err := eventBus.Close(); err != nil {
			logging.Error().Err(err).Msg("error closing event bus")
		}
	}()

	// Update publisher and replay buffer.
	isolated := store.Model(cfg.World.Model) == store.ModelIsolated
	replay := events.NewReplayBuffer(cfg.Bus.ReplayCapacity)
	publisher := events.NewPublisher(eventBus, replay, isolated)

	// Command router.
	var interpreter router.Interpreter
	if cfg.Narrative.Enabled {
		interpreter = router.NewHTTPInterpreter(cfg.Narrative.Endpoint, cfg.Narrative.Timeout*2)
		logging.Info().Str("endpoint", cfg.Narrative.Endpoint).Msg("narrative interpreter enabled")
	} else {
		logging.Info().Msg("narrative interpreter disabled, free-form commands will be rejected")
	}

	rt := router.New(
		st,
		handler.NewRegistry(),
		router.NewAdminRegistry(),
		interpreter,
		router.NewStaticPrivileges(cfg.World.Operators),
		publisher,
		rule,
		router.Config{
			NarrativeTimeout:   cfg.Narrative.Timeout,
			MaxProposalRetries: cfg.Narrative.MaxRetries,
		},
	)

	// Session hub.
	hub := session.NewHub(st, eventBus, replay, publisher, rt, rule, cfg.Session, isolated)

	// HTTP server.
	apiHandler := api.NewHandler(st, rule, busHealth)
	apiRouter := api.NewRouter(apiHandler, hub, cfg.Server)
	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      apiRouter.Setup(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Supervision.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})

	if cfg.World.EvictionInterval > 0 {
		tree.AddWorldService(&store.EvictionService{
			Store:    st,
			Interval: cfg.World.EvictionInterval,
			IdleFor:  cfg.World.IdleTimeout,
		})
	}
	tree.AddMessagingService(hub)
	tree.AddAPIService(&supervisor.HTTPService{
		Server:          server,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("received shutdown signal")
		cancel()
	}()

	errCh := tree.ServeBackground(ctx)
	select {
	case <-ctx.Done():
		logging.Info().Msg("context canceled, waiting for supervisor to finish")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("supervisor tree error")
		}
	}
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("service failed to stop within timeout")
	}

	logging.Info().Msg("stopped gracefully")
}

// loadTemplates registers every *.json world template in dir.
func loadTemplates(st *store.Store, dir string) (int, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return 0, err
	}
	for _, path := range paths {
		raw, err := os.ReadFile(path)
		if err != nil {
			return 0, err
		}
		tmpl, err := world.ParseTemplate(raw)
		if err != nil {
			return 0, world.NewValidation("template %s: %v", filepath.Base(path), err)
		}
		st.RegisterTemplate(tmpl)
		logging.Info().
			Str("experience_id", tmpl.ExperienceID).
			Str("file", filepath.Base(path)).
			Msg("world template registered")
	}
	return len(paths), nil
}
