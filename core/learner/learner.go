// Package learner adjusts parameter distributions from scalar reward
// feedback. Each open decision is snapshotted before the planner commits
// it; when a reward for the executed action arrives later, the snapshot is
// re-scored against the observed value and the parameter posteriors are
// re-estimated from the reweighted samples.
package learner

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/adalundhe/volition/core/bayes"
	"github.com/adalundhe/volition/core/config"
	coreerrors "github.com/adalundhe/volition/core/errors"
	"github.com/adalundhe/volition/core/inference"
	"github.com/adalundhe/volition/core/state"
)

// RewardLearner consumes reward-shaped evidence entries and folds them back
// into the parameter nodes of the live state.
type RewardLearner struct {
	cfg    *config.Config
	engine *inference.Engine
	paused atomic.Bool

	// One pre-decision snapshot per open action set, keyed by the sorted
	// action variable names. Bounded so long sessions cannot hoard states.
	snapshots *lru.Cache[string, *state.State]
}

// New returns a learner sampling with the given engine.
func New(cfg *config.Config, engine *inference.Engine) (*RewardLearner, error) {
	snapshots, err := lru.NewWithEvict[string, *state.State](
		cfg.Learner.SnapshotCacheSize,
		func(key string, _ *state.State) {
			slog.Debug("evicted decision snapshot", slog.String("actions", key))
		},
	)
	if err != nil {
		return nil, err
	}
	return &RewardLearner{
		cfg:       cfg,
		engine:    engine,
		snapshots: snapshots,
	}, nil
}

// Name identifies the learner in runtime logs.
func (l *RewardLearner) Name() string {
	return "learner"
}

// Start is a no-op: the learner only reacts to triggers.
func (l *RewardLearner) Start(ctx context.Context, st *state.State) error {
	return nil
}

// Pause suspends or resumes learning. While paused, reward evidence is left
// untouched for a later trigger.
func (l *RewardLearner) Pause(paused bool) {
	l.paused.Store(paused)
}

// Running reports whether the learner reacts to triggers.
func (l *RewardLearner) Running() bool {
	return !l.paused.Load()
}

// Trigger consumes any reward evidence present on the state, then
// snapshots the current decision problem if one is open. The learner must
// trigger ahead of the planner so snapshots capture the network before the
// decision is committed.
func (l *RewardLearner) Trigger(ctx context.Context, st *state.State, updated []string) error {
	if l.paused.Load() {
		return nil
	}

	for _, variable := range st.Evidence().Variables() {
		if !bayes.IsReward(variable) {
			continue
		}
		target, wellFormed := bayes.RewardTarget(variable)
		value, _ := st.Evidence().Get(variable)
		observed, numeric := value.Float()
		if !wellFormed || !numeric {
			slog.Debug("ignoring malformed reward evidence",
				slog.String("variable", variable),
				slog.String("value", value.String()),
			)
			st.ClearEvidence(variable)
			continue
		}

		if err := l.learnFromReward(ctx, st, target, observed); err != nil {
			// Feedback is advisory: a reward that cannot be used is
			// dropped without disturbing the cycle.
			slog.Debug("reward feedback skipped",
				slog.String("variable", variable),
				slog.String("error", err.Error()),
			)
		}
		st.ClearEvidence(variable)
	}

	if actions := st.ActionVariables(); len(actions) > 0 {
		l.snapshots.Add(snapshotKey(actions), st.Copy())
	}
	return nil
}

// learnFromReward re-scores the snapshot of the decision the reward refers
// to: the executed action is pinned as evidence, trials are reweighted by
// how closely their utility matches the observed reward, and the parameter
// posteriors of the live state are replaced by the resampled marginals.
func (l *RewardLearner) learnFromReward(ctx context.Context, live *state.State, action bayes.Assignment, observed float64) error {
	primed := make([]string, 0, action.Size())
	for _, name := range action.Variables() {
		primed = append(primed, bayes.Primed(name))
	}
	snapshot, ok := l.snapshots.Get(snapshotKey(primed))
	if !ok {
		return fmt.Errorf("%w: no snapshot for %s", coreerrors.ErrNoSnapshot, snapshotKey(primed))
	}
	parameters := relevantParameters(snapshot)
	if len(parameters) == 0 {
		return coreerrors.ErrNoParameters
	}

	// Pin the action that actually ran, which may differ from what the
	// planner would pick on the snapshot.
	rollout := snapshot.Copy()
	pinned := bayes.NewAssignment()
	for _, name := range action.Variables() {
		value, _ := action.Get(name)
		pinned = pinned.With(bayes.Primed(name), value)
	}
	rollout.AddEvidence(pinned)

	samples, err := l.engine.Sample(ctx, rollout.Network(), rollout.Evidence())
	if err != nil {
		return coreerrors.WrapWithDomain(coreerrors.DomainLearning, "score snapshot", err)
	}
	for _, sample := range samples {
		sample.AddLogWeight(-math.Log(math.Abs(sample.Utility-observed) + 1))
	}
	resampled := l.engine.Resample(samples, len(samples))

	// The posterior only concerns the parameters and whatever conditions
	// them; everything else drawn during the trial is ballast.
	keep := make([]string, 0, len(parameters))
	keep = append(keep, parameters...)
	for _, parameter := range parameters {
		if node, ok := snapshot.Network().Node(parameter); ok {
			keep = append(keep, node.Parents()...)
		}
	}

	pool := bayes.NewEmpiricalDistribution()
	for _, sample := range resampled {
		sample.Trim(keep)
		pool.Add(sample.Assignment)
	}

	installed := 0
	for _, parameter := range parameters {
		node, exists := live.Network().Node(parameter)
		if !exists {
			continue
		}
		marginal, err := pool.Marginal(parameter, node.Parents())
		if err != nil {
			slog.Debug("no posterior support for parameter",
				slog.String("parameter", parameter),
				slog.String("error", err.Error()),
			)
			continue
		}
		if err := live.SetDistribution(parameter, marginal); err != nil {
			return coreerrors.WrapWithDomain(coreerrors.DomainLearning, "install posterior", err)
		}
		installed++
	}

	slog.Debug("parameters re-estimated from reward",
		slog.String("action", action.String()),
		slog.Float64("observed", observed),
		slog.Int("parameters", installed),
		slog.Int("samples", len(resampled)),
	)
	return nil
}

// relevantParameters returns the snapshot's parameter variables that have at
// least one dependent. An isolated parameter influences nothing observable,
// so reward feedback carries no signal to correct it with.
func relevantParameters(snapshot *state.State) []string {
	parameters := make([]string, 0)
	for _, name := range snapshot.ParameterVariables() {
		if node, ok := snapshot.Network().Node(name); ok && len(node.Children()) > 0 {
			parameters = append(parameters, name)
		}
	}
	return parameters
}

func snapshotKey(variables []string) string {
	sorted := make([]string, len(variables))
	copy(sorted, variables)
	sort.Strings(sorted)
	return strings.Join(sorted, "|")
}
