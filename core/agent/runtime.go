// Package agent wires the reasoning loop together: one live state, the
// domain models that grow it, and the modules that react to every update
// cycle.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/adalundhe/volition/core/bayes"
	coreerrors "github.com/adalundhe/volition/core/errors"
	"github.com/adalundhe/volition/core/state"
)

// ErrAlreadyStarted reports a second Start on a running runtime.
var ErrAlreadyStarted = errors.New("runtime already started")

// Module reacts to completed update rounds on the live state. The planner
// and the reward learner are modules; domain knowledge lives in
// state.Model implementations instead.
type Module interface {
	// Name identifies the module in logs.
	Name() string

	// Start runs once when the runtime starts, before the first update
	// cycle.
	Start(ctx context.Context, st *state.State) error

	// Trigger reacts to one update round. The updated variable names are
	// the ones that were fresh when the round began.
	Trigger(ctx context.Context, st *state.State, updated []string) error

	// Pause suspends or resumes the module.
	Pause(paused bool)

	// Running reports whether the module reacts to triggers.
	Running() bool
}

// Runtime owns the live state and serializes every mutation of it. Each
// observation runs the update loop to quiescence: reduce, apply triggered
// domain models, then trigger the modules, repeating while anything marks
// variables as new.
//
// Modules trigger in registration order each round. Register the reward
// learner ahead of the planner, so decision snapshots capture the network
// before the planner commits and consumes it.
type Runtime struct {
	mu      sync.Mutex
	st      *state.State
	models  []state.Model
	modules []Module
	started bool
	paused  bool
}

// New assembles a runtime over the initial state.
func New(st *state.State, models []state.Model, modules []Module) *Runtime {
	return &Runtime{
		st:      st,
		models:  models,
		modules: modules,
	}
}

// Start starts every module and runs the first update cycle, in which all
// initial variables count as new.
func (r *Runtime) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return ErrAlreadyStarted
	}
	for _, module := range r.modules {
		if err := module.Start(ctx, r.st); err != nil {
			return fmt.Errorf("start %s: %w", module.Name(), err)
		}
	}
	r.started = true

	slog.Info("runtime started",
		slog.Int("models", len(r.models)),
		slog.Int("modules", len(r.modules)),
		slog.Int("variables", r.st.Network().Size()),
	)
	return r.update(ctx)
}

// Observe records external evidence and runs the update cycle it causes.
// Reward feedback arrives the same way, under a reward-shaped variable
// name.
func (r *Runtime) Observe(ctx context.Context, observation bayes.Assignment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.st.AddEvidence(observation)
	return r.update(ctx)
}

// update drives the state to quiescence. Model and module failures are
// contained here according to their failure domain; only a cycle-aborting
// failure surfaces to the caller.
func (r *Runtime) update(ctx context.Context) error {
	for round := 0; r.st.HasNewVariables(); round++ {
		if round >= state.MaxPropagationRounds {
			slog.Warn("update cycle did not quiesce",
				slog.Int("rounds", round),
				slog.Any("pending", r.st.NewVariables()),
			)
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		updated := r.st.NewVariables()
		r.st.Reduce()

		for _, model := range r.models {
			if !model.Triggers(updated) {
				continue
			}
			if err := model.Apply(ctx, r.st, updated); err != nil {
				r.contain(ctx, "model", err)
			}
		}
		for _, module := range r.modules {
			if !module.Running() {
				continue
			}
			if err := module.Trigger(ctx, r.st, updated); err != nil {
				behavior := coreerrors.GetBehavior(err)
				if !behavior.Silent {
					slog.Log(ctx, behavior.LogLevel, "module trigger failed",
						slog.String("module", module.Name()),
						slog.String("error", err.Error()),
					)
				}
				if behavior.AbortsCycle {
					return err
				}
			}
		}
	}
	return nil
}

func (r *Runtime) contain(ctx context.Context, source string, err error) {
	behavior := coreerrors.GetBehavior(err)
	if behavior.Silent {
		return
	}
	slog.Log(ctx, behavior.LogLevel, "state update failed",
		slog.String("source", source),
		slog.String("error", err.Error()),
	)
}

// Pause suspends or resumes every module. The state keeps accumulating
// evidence while paused; only the reactions stop.
func (r *Runtime) Pause(paused bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.paused = paused
	for _, module := range r.modules {
		module.Pause(paused)
	}
}

// Paused reports whether the modules are suspended.
func (r *Runtime) Paused() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.paused
}

// State exposes the live state for queries. Mutating it outside Observe
// bypasses the runtime's serialization.
func (r *Runtime) State() *state.State {
	return r.st
}
