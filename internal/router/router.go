// Gaia World Sync - Real-Time World State Synchronization Engine
// Copyright 2026 Aeonia AI
// SPDX-License-Identifier: Apache-2.0
// https://github.com/Aeonia-ai/gaia-sub003

// Package router classifies incoming commands and dispatches them to
// the administrative, fast-deterministic, or narrative execution path.
//
// Routing is a total function: every command resolves to exactly one
// path and produces a result; nothing is silently dropped. The
// narrative path follows a two-phase propose/validate-apply protocol so
// no lock is held across the external interpreter call.
package router

import (
	"context"
	"strings"
	"time"

	"github.com/Aeonia-ai/gaia-sub003/internal/events"
	"github.com/Aeonia-ai/gaia-sub003/internal/handler"
	"github.com/Aeonia-ai/gaia-sub003/internal/logging"
	"github.com/Aeonia-ai/gaia-sub003/internal/metrics"
	"github.com/Aeonia-ai/gaia-sub003/internal/store"
	"github.com/Aeonia-ai/gaia-sub003/internal/view"
	"github.com/Aeonia-ai/gaia-sub003/internal/world"
)

// Kind is the dispatch classification of a command.
type Kind string

const (
	// KindAdministrative marks world-building and operator actions.
	KindAdministrative Kind = "administrative"
	// KindFast marks deterministic, locally computed commands.
	KindFast Kind = "fast"
	// KindNarrative marks free-form commands delegated to the
	// narrative interpreter.
	KindNarrative Kind = "narrative"
)

// AdminPrefix is the reserved verb marker for administrative commands.
const AdminPrefix = "@"

// Command is one client-issued action. UserID and ExperienceID come
// from the already-authenticated session, never from the payload.
type Command struct {
	UserID        string       `json:"user_id"`
	ExperienceID  string       `json:"experience_id"`
	Verb          string       `json:"verb"`
	Args          handler.Args `json:"args,omitempty"`
	Text          string       `json:"text,omitempty"`
	ClientVersion uint64       `json:"client_version"`
}

// RawText reconstructs the free-form command for the narrative
// interpreter when the client didn't send explicit text.
func (c *Command) RawText() string {
	if c.Text != "" {
		return c.Text
	}
	parts := []string{c.Verb}
	for _, k := range []string{"target", "item", "to", "objective"} {
		if v := c.Args.Get(k); v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, " ")
}

// Interpreter is the external narrative capability: it turns a
// free-form command plus world context into a proposed result. It must
// be side-effect-free with respect to the world document; the engine
// validates and commits its proposals.
type Interpreter interface {
	Interpret(ctx context.Context, experienceID, userID string, worldContext *view.PlayerView, rawCommand string) (*world.Result, error)
}

// PrivilegeChecker is the external capability deciding whether a user
// may issue administrative commands.
type PrivilegeChecker interface {
	CanAdminister(ctx context.Context, userID string) (bool, error)
}

// Config bounds the router's retry and timeout behavior.
type Config struct {
	// NarrativeTimeout is the hard deadline on interpreter calls.
	NarrativeTimeout time.Duration

	// MaxProposalRetries bounds how often a proposal is recomputed
	// against a fresh document after an optimistic-concurrency
	// conflict, before the conflict surfaces to the client.
	MaxProposalRetries int
}

// DefaultConfig returns production defaults. Three retries resolves
// the open question on narrative conflict handling as
// retry-with-fresh-context rather than reject-and-report.
func DefaultConfig() Config {
	return Config{
		NarrativeTimeout:   15 * time.Second,
		MaxProposalRetries: 3,
	}
}

// Router dispatches commands. All fields are required except
// Interpreter and Privileges, which degrade gracefully: without an
// interpreter the narrative path fails validation, without a privilege
// checker all administrative commands are refused.
type Router struct {
	store       *store.Store
	registry    *handler.Registry
	admin       AdminRegistry
	interpreter Interpreter
	privileges  PrivilegeChecker
	publisher   *events.Publisher
	scopeRule   view.ScopeRule
	cfg         Config
}

// New creates a Router.
func New(
	st *store.Store,
	registry *handler.Registry,
	admin AdminRegistry,
	interpreter Interpreter,
	privileges PrivilegeChecker,
	publisher *events.Publisher,
	scopeRule view.ScopeRule,
	cfg Config,
) *Router {
	if cfg.NarrativeTimeout <= 0 {
		cfg.NarrativeTimeout = DefaultConfig().NarrativeTimeout
	}
	if cfg.MaxProposalRetries <= 0 {
		cfg.MaxProposalRetries = DefaultConfig().MaxProposalRetries
	}
	return &Router{
		store:       st,
		registry:    registry,
		admin:       admin,
		interpreter: interpreter,
		privileges:  privileges,
		publisher:   publisher,
		scopeRule:   scopeRule,
		cfg:         cfg,
	}
}

// Classify resolves a verb to its dispatch kind. Administrative
// commands carry the reserved prefix; verbs in the fast registry are
// fast; everything else defaults to the narrative path.
func (r *Router) Classify(verb string) Kind {
	if strings.HasPrefix(verb, AdminPrefix) {
		return KindAdministrative
	}
	if r.registry.Has(verb) {
		return KindFast
	}
	return KindNarrative
}

// Dispatch executes a command end to end and returns its result.
// Failures are reported as unsuccessful results with a typed error
// kind; Dispatch itself returns only context cancellation.
func (r *Router) Dispatch(ctx context.Context, cmd *Command) *world.Result {
	kind := r.Classify(cmd.Verb)
	started := time.Now()

	var res *world.Result
	switch kind {
	case KindAdministrative:
		res = r.dispatchAdmin(ctx, cmd)
	case KindFast:
		res = r.dispatchFast(ctx, cmd)
	default:
		res = r.dispatchNarrative(ctx, cmd)
	}

	outcome := "success"
	if !res.Success {
		outcome = string(res.ErrorKind)
	}
	metrics.CommandsTotal.WithLabelValues(string(kind), outcome).Inc()
	metrics.CommandDuration.WithLabelValues(string(kind)).Observe(time.Since(started).Seconds())
	return res
}

// dispatchFast runs a fast handler against a freshly projected view and
// commits its proposal, recomputing on conflict. The handler is
// retry-safe by contract, so re-running it against a newer view cannot
// double its effects.
func (r *Router) dispatchFast(ctx context.Context, cmd *Command) *world.Result {
	h := r.registry.Lookup(cmd.Verb)
	if h == nil {
		return world.Failure(world.NewInternal("fast verb "+cmd.Verb+" vanished from registry", nil))
	}

	var lastErr error
	for attempt := 0; attempt <= r.cfg.MaxProposalRetries; attempt++ {
		res, commit, err := r.proposeAndApply(ctx, cmd, func(v *view.PlayerView) *world.Result {
			return h.Handle(v, cmd.Args)
		})
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

// dispatchNarrative runs the two-phase narrative protocol: propose with
// no lock held (snapshot + interpreter call under a hard timeout), then
// validate and apply against the snapshot version. A conflict means
// another mutation landed while the interpreter was thinking; the whole
// propose cycle is retried with fresh context, bounded by
// MaxProposalRetries.
func (r *Router) dispatchNarrative(ctx context.Context, cmd *Command) *world.Result {
	if r.interpreter == nil {
		return world.Failure(world.NewValidation("I don't understand %q", cmd.RawText()))
	}

	var lastErr error
	for attempt := 0; attempt <= r.cfg.MaxProposalRetries; attempt++ {
		res, commit, err := r.proposeAndApply(ctx, cmd, nil)
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

// proposeAndApply runs one propose/validate-apply cycle. With a non-nil
// propose func the proposal is computed locally; otherwise it is
// delegated to the narrative interpreter. Returns a conflict error when
// the snapshot went stale before the apply.
func (r *Router) proposeAndApply(ctx context.Context, cmd *Command, propose func(*view.PlayerView) *world.Result) (*world.Result, *store.Commit, error) {
	doc, version, err := r.store.Get(ctx, cmd.ExperienceID, cmd.UserID)
	if err != nil {
		return nil, nil, err
	}
	v, err := view.Project(doc, cmd.UserID, r.scopeRule)
	if err != nil {
		return nil, nil, err
	}

	var res *world.Result
	if propose != nil {
		res = propose(v)
	} else {
		res, err = r.interpret(ctx, cmd, v)
		if err != nil {
			return nil, nil, err
		}
	}

	if !res.Success || len(res.Changes) == 0 {
		// Nothing to commit: failed preconditions or read-only
		// commands like inspect.
		return res, nil, nil
	}

	commit, err := r.store.Apply(ctx, cmd.ExperienceID, cmd.UserID, version, res.Changes)
	if err != nil {
		return nil, nil, err
	}
	return res, commit, nil
}

// interpret calls the external interpreter under the configured hard
// timeout. No store lock is held here; the proposal is validated
// against the snapshot version afterwards.
func (r *Router) interpret(ctx context.Context, cmd *Command, v *view.PlayerView) (*world.Result, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.cfg.NarrativeTimeout)
	defer cancel()

	res, err := r.interpreter.Interpret(callCtx, cmd.ExperienceID, cmd.UserID, v, cmd.RawText())
	if err != nil {
		if callCtx.Err() == context.DeadlineExceeded {
			metrics.NarrativeTimeouts.Inc()
			return nil, world.NewTimeout("the narrator took too long to respond")
		}
		return nil, world.NewInternal("narrative interpreter failed", err)
	}
	if res == nil {
		return nil, world.NewInternal("narrative interpreter returned no result", nil)
	}
	return res, nil
}

func (r *Router) publishCommit(ctx context.Context, commit *store.Commit) {
	if commit == nil || r.publisher == nil {
		return
	}
	if err := r.publisher.PublishCommitted(ctx, commit); err != nil {
		// Commit stands; clients converge via resync.
		logging.Warn().Err(err).Uint64("version", commit.Version).Msg("committed update not published")
	}
}
