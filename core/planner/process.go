package planner

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/adalundhe/volition/core/bayes"
	"github.com/adalundhe/volition/core/config"
	"github.com/adalundhe/volition/core/state"
)

// ProcessState tracks one planning cycle through its lifetime.
type ProcessState int32

const (
	ProcessIdle ProcessState = iota
	ProcessRunning
	ProcessTerminated
)

var processStateNames = map[ProcessState]string{
	ProcessIdle:       "idle",
	ProcessRunning:    "running",
	ProcessTerminated: "terminated",
}

func (s ProcessState) String() string {
	if name, ok := processStateNames[s]; ok {
		return name
	}
	return "unknown"
}

// process is one planning cycle. Termination is cooperative: the search
// checks for it at every expansion point and keeps whatever it has scored
// so far, so a terminated cycle still yields a usable partial result.
type process struct {
	id     string
	cfg    *config.Config
	models []state.Model
	paused *atomic.Bool
	status atomic.Int32
}

func newProcess(cfg *config.Config, models []state.Model, paused *atomic.Bool) *process {
	proc := &process{
		id:     uuid.NewString(),
		cfg:    cfg,
		models: models,
		paused: paused,
	}
	proc.status.Store(int32(ProcessRunning))
	return proc
}

func (proc *process) terminate() {
	proc.status.Store(int32(ProcessTerminated))
}

func (proc *process) cancelled(ctx context.Context) bool {
	return ctx.Err() != nil ||
		proc.paused.Load() ||
		ProcessState(proc.status.Load()) == ProcessTerminated
}

// qValues scores every open action of the state: its immediate expected
// utility, plus the discounted value of the best follow-up one horizon step
// further out. Expansion stops early on cancellation, leaving the actions
// scored so far with their immediate utility.
func (proc *process) qValues(ctx context.Context, st *state.State, horizon int) (*bayes.UtilityTable, error) {
	actions := st.ActionVariables()
	if len(actions) == 0 {
		return bayes.NewUtilityTable(), nil
	}

	rewards, err := st.QueryUtil(ctx, actions)
	if err != nil {
		return nil, err
	}
	qTable := rewards.NBest(proc.cfg.Planner.MaxActions)
	if horizon <= 1 {
		return qTable, nil
	}

	discount := proc.cfg.Planner.DiscountFactor
	for _, action := range qTable.Rows() {
		if proc.cancelled(ctx) {
			break
		}
		// The no-op action leads nowhere, and an action no model reacts to
		// has no transition to look ahead through.
		if action.IsDefault() || !proc.hasTransition(action) {
			continue
		}

		rollout := st.Copy()
		if err := rollout.CommitDecision(action); err != nil {
			return nil, err
		}
		if err := state.Propagate(ctx, rollout, proc.models); err != nil {
			if isCancellation(err) {
				break
			}
			return nil, err
		}

		expected, err := proc.expectedValue(ctx, rollout, horizon-1)
		if err != nil {
			if isCancellation(err) {
				break
			}
			return nil, err
		}
		qTable.AddUtil(action, discount*expected)
	}
	return qTable, nil
}

// expectedValue estimates the value of a post-action state: the probable
// next observations, each weighted by its mass and scored by the best
// decision available after it lands.
func (proc *process) expectedValue(ctx context.Context, st *state.State, horizon int) (float64, error) {
	observations, err := proc.predictedObservations(ctx, st)
	if err != nil {
		return 0, err
	}
	top := observations.NBest(proc.cfg.Planner.MaxObservations)

	expected := 0.0
	for _, observation := range top.Rows() {
		mass := top.Prob(observation)
		if mass <= proc.cfg.Planner.MinObservationProb {
			continue
		}
		if proc.cancelled(ctx) {
			break
		}

		rollout := st.Copy()
		rollout.AddEvidence(observation)
		if err := state.Propagate(ctx, rollout, proc.models); err != nil {
			if isCancellation(err) {
				break
			}
			return 0, err
		}

		followUp, err := proc.qValues(ctx, rollout, horizon)
		if err != nil {
			return 0, err
		}
		if _, utility, ok := followUp.Best(); ok {
			expected += mass * utility
		}
	}
	return expected, nil
}

// predictedObservations collects the joint distribution over the state's
// prediction variables, renamed to the observation variables they stand
// for. Predictions that feed other predictions are intermediate and only
// the terminal ones count.
func (proc *process) predictedObservations(ctx context.Context, st *state.State) (*bayes.ProbabilityTable, error) {
	predictions := st.PredictionVariables()
	if len(predictions) == 0 {
		return bayes.NewProbabilityTable(), nil
	}

	predictionSet := make(map[string]bool, len(predictions))
	for _, name := range predictions {
		predictionSet[name] = true
	}
	terminal := make([]string, 0, len(predictions))
	for _, name := range predictions {
		if !st.Network().HasDescendantIn(name, predictionSet) {
			terminal = append(terminal, name)
		}
	}
	if len(terminal) == 0 {
		return bayes.NewProbabilityTable(), nil
	}

	joint, err := st.QueryProb(ctx, terminal)
	if err != nil {
		return nil, err
	}

	renamed := bayes.NewProbabilityTable()
	for _, row := range joint.Rows() {
		observation := bayes.NewAssignment()
		for _, name := range row.Variables() {
			value, _ := row.Get(name)
			observation = observation.With(bayes.StripPrediction(name), value)
		}
		renamed.AddMass(observation, joint.Prob(row))
	}
	return renamed, nil
}

// hasTransition reports whether any domain model reacts to the action's
// variables once committed.
func (proc *process) hasTransition(action bayes.Assignment) bool {
	stripped := action.StripPrimed()
	for _, model := range proc.models {
		if model.Triggers(stripped.Variables()) {
			return true
		}
	}
	return false
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
