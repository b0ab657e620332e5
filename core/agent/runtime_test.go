package agent_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adalundhe/volition/core/agent"
	"github.com/adalundhe/volition/core/bayes"
	"github.com/adalundhe/volition/core/config"
	coreerrors "github.com/adalundhe/volition/core/errors"
	"github.com/adalundhe/volition/core/inference"
	"github.com/adalundhe/volition/core/learner"
	"github.com/adalundhe/volition/core/planner"
	"github.com/adalundhe/volition/core/state"
)

func runtimeConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Sampling.SampleCount = 2000
	cfg.Sampling.MaxSamplingTime = 2 * time.Second
	cfg.Sampling.Workers = 4
	cfg.Planner.Horizon = 1
	return cfg
}

// ruleModel reacts to a fixed listen set with a caller-supplied effect.
type ruleModel struct {
	listens map[string]bool
	apply   func(ctx context.Context, st *state.State, updated []string) error
}

func (m *ruleModel) Triggers(updated []string) bool {
	for _, name := range updated {
		if m.listens[name] {
			return true
		}
	}
	return false
}

func (m *ruleModel) Apply(ctx context.Context, st *state.State, updated []string) error {
	return m.apply(ctx, st, updated)
}

// stubModule fails every trigger with a fixed error.
type stubModule struct {
	name   string
	err    error
	paused bool
}

func (m *stubModule) Name() string { return m.name }

func (m *stubModule) Start(ctx context.Context, st *state.State) error { return nil }

func (m *stubModule) Trigger(ctx context.Context, st *state.State, updated []string) error {
	return m.err
}

func (m *stubModule) Pause(paused bool) { m.paused = paused }

func (m *stubModule) Running() bool { return !m.paused }

// greetingState builds a single-decision domain: waving pays 1.
func greetingState(t *testing.T, cfg *config.Config) *state.State {
	t.Helper()
	network := bayes.NewNetwork()
	require.NoError(t, network.AddNode(bayes.NewActionNode("greet'", []bayes.Value{bayes.Str("wave")})))
	require.NoError(t, network.AddNode(bayes.NewUtilityNode("payoff", []string{"greet'"}, func(parents bayes.Assignment) float64 {
		if value, ok := parents.Get("greet'"); ok && bayes.Str("wave").Equal(value) {
			return 1
		}
		return 0
	})))
	return state.New(network, inference.NewEngineWithSeed(cfg.Sampling, 17))
}

func TestRuntime_StartRunsTheInitialCycle(t *testing.T) {
	cfg := runtimeConfig()
	st := greetingState(t, cfg)

	// Committing the greeting predicts a reply.
	transition := &ruleModel{
		listens: map[string]bool{"greet": true},
		apply: func(ctx context.Context, st *state.State, updated []string) error {
			value, ok := st.Evidence().Get("greet")
			if !ok || !bayes.Str("wave").Equal(value) {
				return nil
			}
			if st.Network().Has("reply^p") {
				return nil
			}
			return st.AddNode(bayes.NewChanceNode("reply^p", nil, bayes.Deterministic(bayes.Str("hi"))))
		},
	}
	rt := agent.New(st, []state.Model{transition}, []agent.Module{planner.New(cfg, nil)})

	require.NoError(t, rt.Start(context.Background()))

	assert.Empty(t, st.ActionVariables(), "the initial decision is committed during start")
	// The transition only fires on a committed wave, so the prediction is
	// the proof the planner acted before quiescence.
	assert.True(t, st.Network().Has("reply^p"))
	assert.False(t, st.HasNewVariables())
}

func TestRuntime_ObserveSettlesPredictions(t *testing.T) {
	cfg := runtimeConfig()
	st := greetingState(t, cfg)
	transition := &ruleModel{
		listens: map[string]bool{"greet": true},
		apply: func(ctx context.Context, st *state.State, updated []string) error {
			if st.Network().Has("reply^p") {
				return nil
			}
			return st.AddNode(bayes.NewChanceNode("reply^p", nil, bayes.Deterministic(bayes.Str("hi"))))
		},
	}
	rt := agent.New(st, []state.Model{transition}, []agent.Module{planner.New(cfg, nil)})
	require.NoError(t, rt.Start(context.Background()))
	require.True(t, st.Network().Has("reply^p"))

	require.NoError(t, rt.Observe(context.Background(), bayes.Pair("reply", bayes.Str("hi"))))

	assert.False(t, st.Network().Has("reply^p"), "landed observations replace their predictions")
}

func TestRuntime_DoubleStartFails(t *testing.T) {
	cfg := runtimeConfig()
	st := greetingState(t, cfg)
	rt := agent.New(st, nil, nil)

	require.NoError(t, rt.Start(context.Background()))
	assert.ErrorIs(t, rt.Start(context.Background()), agent.ErrAlreadyStarted)
}

func TestRuntime_LearnerThenPlannerClosesTheLoop(t *testing.T) {
	cfg := runtimeConfig()
	engine := inference.NewEngineWithSeed(cfg.Sampling, 17)

	theta, err := bayes.Prior(map[bayes.Value]float64{
		bayes.Num(0.2): 0.5,
		bayes.Num(0.8): 0.5,
	})
	require.NoError(t, err)

	network := bayes.NewNetwork()
	require.NoError(t, network.AddNode(bayes.NewParameterNode("theta", theta)))
	require.NoError(t, network.AddNode(bayes.NewActionNode("greet'", []bayes.Value{bayes.Str("wave")})))
	require.NoError(t, network.AddNode(bayes.NewUtilityNode("payoff", []string{"theta", "greet'"}, func(parents bayes.Assignment) float64 {
		value, _ := parents.Get("greet'")
		if !bayes.Str("wave").Equal(value) {
			return 0
		}
		scale, ok := parents.Get("theta")
		if !ok {
			return 0
		}
		v, _ := scale.Float()
		return 10 * v
	})))
	st := state.New(network, engine)

	l, err := learner.New(cfg, engine)
	require.NoError(t, err)
	rt := agent.New(st, nil, []agent.Module{l, planner.New(cfg, nil)})

	require.NoError(t, rt.Start(context.Background()))
	assert.Empty(t, st.ActionVariables())

	// The executed greeting earns an 8, which only a high theta explains:
	// weights 1 for theta=0.8 versus 1/7 for 0.2, giving 0.875 / 0.125.
	rewardVar := bayes.RewardVariable(bayes.Pair("greet", bayes.Str("wave")))
	require.NoError(t, rt.Observe(context.Background(),
		bayes.NewAssignment().With(rewardVar, bayes.Num(8))))

	assert.False(t, st.Evidence().Contains(rewardVar))
	posterior, err := st.QueryProb(context.Background(), []string{"theta"})
	require.NoError(t, err)
	assert.InDelta(t, 0.875, posterior.Prob(bayes.Pair("theta", bayes.Num(0.8))), 0.08)
}

func TestRuntime_PauseHoldsDecisionsOpen(t *testing.T) {
	cfg := runtimeConfig()
	st := greetingState(t, cfg)
	rt := agent.New(st, nil, []agent.Module{planner.New(cfg, nil)})

	rt.Pause(true)
	assert.True(t, rt.Paused())
	require.NoError(t, rt.Start(context.Background()))
	assert.Len(t, st.ActionVariables(), 1, "paused modules leave the decision open")

	// An unacted decision belongs to its cycle: the next observation sweeps
	// it rather than reviving it.
	rt.Pause(false)
	assert.False(t, rt.Paused())
	require.NoError(t, rt.Observe(context.Background(), bayes.Pair("nudge", bayes.Num(1))))
	assert.Empty(t, st.ActionVariables())
	assert.False(t, st.Evidence().Contains("greet"), "the stale decision was never committed")
}

func TestRuntime_SilentModuleFailuresAreContained(t *testing.T) {
	cfg := runtimeConfig()
	st := greetingState(t, cfg)
	failing := &stubModule{
		name: "flaky",
		err:  coreerrors.ErrNoSnapshot,
	}
	rt := agent.New(st, nil, []agent.Module{failing})

	require.NoError(t, rt.Start(context.Background()))
	assert.NoError(t, rt.Observe(context.Background(), bayes.Pair("x", bayes.Num(1))))
}

func TestRuntime_PlanningFailuresAbortTheCycle(t *testing.T) {
	cfg := runtimeConfig()
	st := greetingState(t, cfg)
	failing := &stubModule{
		name: "broken",
		err:  coreerrors.ErrPlanningAborted,
	}
	rt := agent.New(st, nil, []agent.Module{failing})

	err := rt.Start(context.Background())
	require.Error(t, err)
	assert.Equal(t, coreerrors.DomainPlanning, coreerrors.GetDomain(err))
}

func TestRuntime_ModelErrorsDoNotEscape(t *testing.T) {
	cfg := runtimeConfig()
	st := greetingState(t, cfg)
	broken := &ruleModel{
		listens: map[string]bool{"x": true},
		apply: func(ctx context.Context, st *state.State, updated []string) error {
			return assert.AnError
		},
	}
	rt := agent.New(st, []state.Model{broken}, nil)

	require.NoError(t, rt.Start(context.Background()))
	assert.NoError(t, rt.Observe(context.Background(), bayes.Pair("x", bayes.Num(1))))
}
