// Package planner implements anytime forward lookahead: when the state
// carries open decisions, expand the candidate actions, score them by
// expected utility, recurse over the most probable predicted observations,
// and commit the best action found within the time budget.
package planner

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/adalundhe/volition/core/bayes"
	"github.com/adalundhe/volition/core/config"
	coreerrors "github.com/adalundhe/volition/core/errors"
	"github.com/adalundhe/volition/core/state"
)

// MinActionUtility is the commitment floor. A best action scoring below it
// is not worth acting on, and the planner commits the default no-op
// decision instead.
const MinActionUtility = 0.001

// ForwardPlanner reacts to open decisions on the state by running one
// bounded planning cycle and committing its outcome. A new cycle
// terminates any still-running predecessor, so only the most recent
// decision problem is ever pursued.
type ForwardPlanner struct {
	cfg     *config.Config
	models  []state.Model
	paused  atomic.Bool
	current atomic.Pointer[process]
}

// New returns a planner expanding rollouts with the given domain models.
func New(cfg *config.Config, models []state.Model) *ForwardPlanner {
	return &ForwardPlanner{
		cfg:    cfg,
		models: models,
	}
}

// Name identifies the planner in runtime logs.
func (p *ForwardPlanner) Name() string {
	return "planner"
}

// Start is a no-op: the planner only reacts to triggers.
func (p *ForwardPlanner) Start(ctx context.Context, st *state.State) error {
	return nil
}

// Pause suspends or resumes planning. Pausing also terminates the cycle in
// flight, which makes it commit what it has found so far.
func (p *ForwardPlanner) Pause(paused bool) {
	p.paused.Store(paused)
	if paused {
		if proc := p.current.Load(); proc != nil {
			proc.terminate()
		}
	}
}

// Running reports whether the planner reacts to triggers.
func (p *ForwardPlanner) Running() bool {
	return !p.paused.Load()
}

// Trigger runs one planning cycle when the state carries undecided action
// variables, and commits the resulting decision into the state.
func (p *ForwardPlanner) Trigger(ctx context.Context, st *state.State, updated []string) error {
	if p.paused.Load() {
		return nil
	}
	actions := st.ActionVariables()
	if len(actions) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.PlannerTimeout())
	defer cancel()

	proc := newProcess(p.cfg, p.models, &p.paused)
	if previous := p.current.Swap(proc); previous != nil {
		previous.terminate()
	}

	started := time.Now()
	slog.Debug("planning cycle started",
		slog.String("run", proc.id),
		slog.Int("horizon", p.cfg.Planner.Horizon),
		slog.Any("actions", actions),
	)

	qValues, err := proc.qValues(ctx, st, p.cfg.Planner.Horizon)
	proc.terminate()
	if err != nil {
		return coreerrors.WrapWithDomain(coreerrors.DomainPlanning, "forward planning", err)
	}

	best, utility, ok := qValues.Best()
	if !ok || utility < MinActionUtility {
		// Nothing worth acting on: fall back to the no-op decision over
		// the open action variables.
		best = bayes.DefaultAssignment(actions)
	}
	if err := st.CommitDecision(best); err != nil {
		return coreerrors.WrapWithDomain(coreerrors.DomainPlanning, "commit decision", err)
	}

	slog.Debug("planning cycle committed",
		slog.String("run", proc.id),
		slog.String("action", best.StripPrimed().String()),
		slog.Float64("utility", utility),
		slog.Duration("elapsed", time.Since(started)),
	)
	return nil
}

// QValues scores the open actions of the state over the given horizon
// without committing anything. Exposed for diagnostics.
func (p *ForwardPlanner) QValues(ctx context.Context, st *state.State, horizon int) (*bayes.UtilityTable, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.PlannerTimeout())
	defer cancel()

	proc := newProcess(p.cfg, p.models, &p.paused)
	defer proc.terminate()
	table, err := proc.qValues(ctx, st, horizon)
	if err != nil {
		return nil, coreerrors.WrapWithDomain(coreerrors.DomainPlanning, "forward planning", err)
	}
	return table, nil
}
