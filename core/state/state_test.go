package state_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adalundhe/volition/core/bayes"
	"github.com/adalundhe/volition/core/config"
	"github.com/adalundhe/volition/core/inference"
	"github.com/adalundhe/volition/core/state"
)

func testEngine(t *testing.T) *inference.Engine {
	t.Helper()
	return inference.NewEngineWithSeed(config.SamplingConfig{
		SampleCount:     2000,
		MaxSamplingTime: 2 * time.Second,
		Workers:         4,
	}, 11)
}

func prior(t *testing.T, outcomes map[bayes.Value]float64) *bayes.CPT {
	t.Helper()
	table, err := bayes.Prior(outcomes)
	require.NoError(t, err)
	return table
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

func TestState_NewMarksInitialVariables(t *testing.T) {
	network := bayes.NewNetwork()
	require.NoError(t, network.AddNode(bayes.NewChanceNode("x", nil, prior(t, map[bayes.Value]float64{
		bayes.Str("a"): 1,
	}))))

	st := state.New(network, testEngine(t))

	assert.True(t, st.HasNewVariables())
	assert.Equal(t, []string{"x"}, st.NewVariables())
}

func TestState_AddEvidenceCreatesMissingNode(t *testing.T) {
	st := state.New(bayes.NewNetwork(), testEngine(t))

	st.AddEvidence(bayes.Pair("heard", bayes.Str("hello")))

	require.True(t, st.Network().Has("heard"))
	value, ok := st.Evidence().Get("heard")
	require.True(t, ok)
	assert.True(t, bayes.Str("hello").Equal(value))
	assert.Contains(t, st.NewVariables(), "heard")
}

func TestState_ClearEvidenceRemovesInjectedNode(t *testing.T) {
	network := bayes.NewNetwork()
	require.NoError(t, network.AddNode(bayes.NewChanceNode("known", nil, prior(t, map[bayes.Value]float64{
		bayes.Str("a"): 1,
	}))))
	st := state.New(network, testEngine(t))

	st.AddEvidence(bayes.Pair("known", bayes.Str("a")).With("injected", bayes.Num(3)))
	st.ClearEvidence("known", "injected")

	assert.False(t, st.Evidence().Contains("known"))
	assert.False(t, st.Evidence().Contains("injected"))
	assert.True(t, st.Network().Has("known"), "pre-existing nodes survive evidence clearing")
	assert.False(t, st.Network().Has("injected"), "evidence-only nodes are removed with their evidence")
}

func TestState_SetNodeReplacesAndRetriggers(t *testing.T) {
	network := bayes.NewNetwork()
	require.NoError(t, network.AddNode(bayes.NewChanceNode("intent", nil, prior(t, map[bayes.Value]float64{
		bayes.Str("greet"): 1,
	}))))
	st := state.New(network, testEngine(t))
	st.Reduce()
	require.False(t, st.HasNewVariables())

	require.NoError(t, st.SetNode(bayes.NewChanceNode("intent", nil, prior(t, map[bayes.Value]float64{
		bayes.Str("request"): 1,
	}))))

	assert.Contains(t, st.NewVariables(), "intent", "overwritten variables propagate again")
	table, err := st.QueryProb(context.Background(), []string{"intent"})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, table.Prob(bayes.Pair("intent", bayes.Str("request"))), 1e-9)
}

func TestState_ReduceKeepsParameters(t *testing.T) {
	network := bayes.NewNetwork()
	require.NoError(t, network.AddNode(bayes.NewParameterNode("theta", prior(t, map[bayes.Value]float64{
		bayes.Num(0.5): 1,
	}))))
	st := state.New(network, testEngine(t))
	st.AddEvidence(bayes.Pair("theta", bayes.Num(0.5)))

	st.Reduce()
	st.Reduce()

	assert.True(t, st.Network().Has("theta"), "parameters persist even when evidenced")
}

func TestState_ReduceSparesFreshVariables(t *testing.T) {
	network := bayes.NewNetwork()
	require.NoError(t, network.AddNode(bayes.NewChanceNode("obs", nil, prior(t, map[bayes.Value]float64{
		bayes.Str("yes"): 0.5,
		bayes.Str("no"):  0.5,
	}))))
	st := state.New(network, testEngine(t))
	st.AddEvidence(bayes.Pair("obs", bayes.Str("yes")))

	removed := st.Reduce()
	assert.Empty(t, removed, "freshly updated variables are exempt for one round")
	assert.True(t, st.Network().Has("obs"))

	removed = st.Reduce()
	assert.Equal(t, []string{"obs"}, removed)
	assert.False(t, st.Network().Has("obs"))
	assert.False(t, st.Evidence().Contains("obs"), "evidence of eliminated variables is dropped")
}

func TestState_ReduceKeepsPinnedEvidence(t *testing.T) {
	network := bayes.NewNetwork()
	require.NoError(t, network.AddNode(bayes.NewChanceNode("cause", nil, prior(t, map[bayes.Value]float64{
		bayes.Bool(true):  0.5,
		bayes.Bool(false): 0.5,
	}))))
	effect := bayes.NewCPT()
	require.NoError(t, effect.AddRow(bayes.Pair("cause", bayes.Bool(true)),
		map[bayes.Value]float64{bayes.Str("on"): 1}))
	require.NoError(t, effect.AddRow(bayes.Pair("cause", bayes.Bool(false)),
		map[bayes.Value]float64{bayes.Str("off"): 1}))
	require.NoError(t, network.AddNode(bayes.NewChanceNode("effect", []string{"cause"}, effect)))

	st := state.New(network, testEngine(t))
	st.AddEvidence(bayes.Pair("cause", bayes.Bool(true)))

	st.Reduce()
	st.Reduce()

	// The unresolved child pins its evidenced parent in place.
	assert.True(t, st.Network().Has("cause"))
	assert.True(t, st.Network().Has("effect"))
	assert.True(t, st.Evidence().Contains("cause"))

	// Once the child resolves too, the whole chain is eliminated.
	st.AddEvidence(bayes.Pair("effect", bayes.Str("on")))
	st.Reduce()
	removed := st.Reduce()
	assert.ElementsMatch(t, []string{"cause", "effect"}, removed)
	assert.False(t, st.Network().Has("cause"))
	assert.False(t, st.Network().Has("effect"))
}

func TestState_ReduceDropsConsumedDecisionNetwork(t *testing.T) {
	network := bayes.NewNetwork()
	require.NoError(t, network.AddNode(bayes.NewActionNode("a_m'", []bayes.Value{
		bayes.Str("go"),
		bayes.Str("stay"),
	})))
	require.NoError(t, network.AddNode(bayes.NewUtilityNode("payoff", []string{"a_m'"}, func(parents bayes.Assignment) float64 {
		return 0
	})))
	st := state.New(network, testEngine(t))

	st.Reduce()
	assert.True(t, st.Network().Has("a_m'"), "fresh decision networks are spared")

	removed := st.Reduce()
	assert.ElementsMatch(t, []string{"a_m'", "payoff"}, removed)
	assert.Empty(t, st.ActionVariables())
}

func TestState_ReducePrunesStalePredictions(t *testing.T) {
	network := bayes.NewNetwork()
	require.NoError(t, network.AddNode(bayes.NewChanceNode("obs^p", nil, prior(t, map[bayes.Value]float64{
		bayes.Str("hello"): 0.7,
		bayes.Str("bye"):   0.3,
	}))))
	st := state.New(network, testEngine(t))

	st.Reduce()
	removed := st.Reduce()

	// Predictions only serve lookahead; they never survive into settled state.
	assert.Equal(t, []string{"obs^p"}, removed)
	assert.False(t, st.Network().Has("obs^p"))
}

func TestState_ReduceKeepsRewardEvidence(t *testing.T) {
	st := state.New(bayes.NewNetwork(), testEngine(t))
	rewardVar := bayes.RewardVariable(bayes.Pair("a_m", bayes.Str("go")))
	st.AddEvidence(bayes.NewAssignment().With(rewardVar, bayes.Num(1.5)))

	st.Reduce()
	st.Reduce()

	// The node goes, but the reward entry stays until the learner consumes it.
	assert.False(t, st.Network().Has(rewardVar))
	assert.True(t, st.Evidence().Contains(rewardVar))

	st.ClearEvidence(rewardVar)
	assert.False(t, st.Evidence().Contains(rewardVar))
}

func TestState_CommitDecisionConvertsActionNodes(t *testing.T) {
	network := bayes.NewNetwork()
	require.NoError(t, network.AddNode(bayes.NewActionNode("a_m'", []bayes.Value{
		bayes.Str("go"),
		bayes.Str("stay"),
	})))
	require.NoError(t, network.AddNode(bayes.NewUtilityNode("payoff", []string{"a_m'"}, func(parents bayes.Assignment) float64 {
		return 0
	})))
	prediction := bayes.NewCPT()
	require.NoError(t, prediction.AddRow(bayes.Pair("a_m'", bayes.Str("go")),
		map[bayes.Value]float64{bayes.Str("ack"): 1}))
	require.NoError(t, prediction.AddRow(bayes.Pair("a_m'", bayes.Str("stay")),
		map[bayes.Value]float64{bayes.Str("silence"): 1}))
	require.NoError(t, network.AddNode(bayes.NewChanceNode("obs^p", []string{"a_m'"}, prediction)))

	st := state.New(network, testEngine(t))
	require.NoError(t, st.CommitDecision(bayes.Pair("a_m'", bayes.Str("go"))))

	assert.Empty(t, st.ActionVariables(), "committed decisions are no longer open")

	converted, ok := st.Network().Node("a_m'")
	require.True(t, ok)
	assert.Equal(t, bayes.ChanceNode, converted.Kind())
	assert.Contains(t, converted.Children(), "obs^p", "prediction children survive the conversion")
	assert.Contains(t, converted.Children(), "payoff")

	primed, ok := st.Evidence().Get("a_m'")
	require.True(t, ok)
	assert.True(t, bayes.Str("go").Equal(primed))

	unprimed, ok := st.Evidence().Get("a_m")
	require.True(t, ok)
	assert.True(t, bayes.Str("go").Equal(unprimed))
	assert.True(t, st.Network().Has("a_m"))
	assert.Contains(t, st.NewVariables(), "a_m")
}

func TestState_SetDistribution(t *testing.T) {
	network := bayes.NewNetwork()
	require.NoError(t, network.AddNode(bayes.NewChanceNode("theta", nil, prior(t, map[bayes.Value]float64{
		bayes.Num(0.2): 0.5,
		bayes.Num(0.8): 0.5,
	}))))
	require.NoError(t, network.AddNode(bayes.NewUtilityNode("payoff", nil, func(parents bayes.Assignment) float64 {
		return 0
	})))
	st := state.New(network, testEngine(t))
	before := st.Version()

	require.NoError(t, st.SetDistribution("theta", bayes.Deterministic(bayes.Num(0.8))))
	assert.Greater(t, st.Version(), before)

	err := st.SetDistribution("missing", bayes.Deterministic(bayes.Num(1)))
	assert.ErrorIs(t, err, bayes.ErrUnknownNode)

	err = st.SetDistribution("payoff", bayes.Deterministic(bayes.Num(1)))
	assert.ErrorIs(t, err, state.ErrNotChanceNode)
}

func TestState_CopyIsIndependent(t *testing.T) {
	network := bayes.NewNetwork()
	require.NoError(t, network.AddNode(bayes.NewChanceNode("x", nil, prior(t, map[bayes.Value]float64{
		bayes.Str("a"): 0.5,
		bayes.Str("b"): 0.5,
	}))))
	st := state.New(network, testEngine(t))
	st.AddEvidence(bayes.Pair("x", bayes.Str("a")))

	clone := st.Copy()
	clone.AddEvidence(bayes.Pair("extra", bayes.Num(1)))
	require.NoError(t, clone.CommitDecision(bayes.Pair("a_m'", bayes.Str("go"))))

	assert.False(t, st.Network().Has("extra"))
	assert.False(t, st.Network().Has("a_m"))
	assert.False(t, st.Evidence().Contains("extra"))
	assert.True(t, clone.Network().Has("extra"))
	assert.True(t, clone.Evidence().Contains("x"), "accumulated evidence carries over")
}

func TestState_QueryProbUsesEvidence(t *testing.T) {
	network := bayes.NewNetwork()
	require.NoError(t, network.AddNode(bayes.NewChanceNode("hypothesis", nil, prior(t, map[bayes.Value]float64{
		bayes.Bool(true):  0.5,
		bayes.Bool(false): 0.5,
	}))))
	signal := bayes.NewCPT()
	require.NoError(t, signal.AddRow(bayes.Pair("hypothesis", bayes.Bool(true)), map[bayes.Value]float64{
		bayes.Str("yes"): 0.9,
		bayes.Str("no"):  0.1,
	}))
	require.NoError(t, signal.AddRow(bayes.Pair("hypothesis", bayes.Bool(false)), map[bayes.Value]float64{
		bayes.Str("yes"): 0.1,
		bayes.Str("no"):  0.9,
	}))
	require.NoError(t, network.AddNode(bayes.NewChanceNode("signal", []string{"hypothesis"}, signal)))

	st := state.New(network, testEngine(t))
	st.AddEvidence(bayes.Pair("signal", bayes.Str("yes")))

	table, err := st.QueryProb(context.Background(), []string{"hypothesis"})
	require.NoError(t, err)
	assert.InDelta(t, 0.9, table.Prob(bayes.Pair("hypothesis", bayes.Bool(true))), 0.05)

	empty, err := st.QueryProb(context.Background(), nil)
	require.NoError(t, err)
	assert.True(t, empty.IsEmpty())
}

func TestState_QueryReadsThroughCache(t *testing.T) {
	cache, err := state.NewQueryCache(config.CacheConfig{})
	require.NoError(t, err)
	defer cache.Close()

	network := bayes.NewNetwork()
	require.NoError(t, network.AddNode(bayes.NewChanceNode("x", nil, prior(t, map[bayes.Value]float64{
		bayes.Str("a"): 0.6,
		bayes.Str("b"): 0.4,
	}))))
	st := state.NewWithCache(network, testEngine(t), cache)

	first, err := st.QueryProb(context.Background(), []string{"x"})
	require.NoError(t, err)
	cache.Wait()

	second, err := st.QueryProb(context.Background(), []string{"x"})
	require.NoError(t, err)
	assert.Same(t, first, second, "unchanged state serves the cached table")

	// Any mutation bumps the version and misses the stale entry.
	st.AddEvidence(bayes.Pair("x", bayes.Str("a")))
	third, err := st.QueryProb(context.Background(), []string{"x"})
	require.NoError(t, err)
	assert.NotSame(t, first, third)
}

func TestPropagate_RunsModelsToQuiescence(t *testing.T) {
	network := bayes.NewNetwork()
	require.NoError(t, network.AddNode(bayes.NewChanceNode("a", nil, prior(t, map[bayes.Value]float64{
		bayes.Str("v"): 1,
	}))))
	st := state.New(network, testEngine(t))

	chain := []state.Model{
		&ruleModel{
			listens: map[string]bool{"a": true},
			apply: func(ctx context.Context, st *state.State, updated []string) error {
				if st.Network().Has("b") {
					return nil
				}
				return st.AddNode(bayes.NewChanceNode("b", nil, bayes.Deterministic(bayes.Str("v"))))
			},
		},
		&ruleModel{
			listens: map[string]bool{"b": true},
			apply: func(ctx context.Context, st *state.State, updated []string) error {
				if st.Network().Has("c") {
					return nil
				}
				return st.AddNode(bayes.NewChanceNode("c", nil, bayes.Deterministic(bayes.Str("v"))))
			},
		},
	}

	require.NoError(t, state.Propagate(context.Background(), st, chain))

	assert.True(t, st.Network().Has("b"))
	assert.True(t, st.Network().Has("c"))
	assert.False(t, st.HasNewVariables())
}

func TestPropagate_BoundsRunawayModels(t *testing.T) {
	network := bayes.NewNetwork()
	require.NoError(t, network.AddNode(bayes.NewChanceNode("x", nil, prior(t, map[bayes.Value]float64{
		bayes.Str("v"): 1,
	}))))
	st := state.New(network, testEngine(t))

	applications := 0
	runaway := &ruleModel{
		listens: map[string]bool{"x": true},
		apply: func(ctx context.Context, st *state.State, updated []string) error {
			applications++
			st.AddEvidence(bayes.Pair("x", bayes.Str("v")))
			return nil
		},
	}

	require.NoError(t, state.Propagate(context.Background(), st, []state.Model{runaway}))
	assert.Equal(t, state.MaxPropagationRounds, applications)
}

func TestPropagate_ModelErrorStopsTheCycle(t *testing.T) {
	network := bayes.NewNetwork()
	require.NoError(t, network.AddNode(bayes.NewChanceNode("x", nil, prior(t, map[bayes.Value]float64{
		bayes.Str("v"): 1,
	}))))
	st := state.New(network, testEngine(t))

	failing := &ruleModel{
		listens: map[string]bool{"x": true},
		apply: func(ctx context.Context, st *state.State, updated []string) error {
			return assert.AnError
		},
	}

	err := state.Propagate(context.Background(), st, []state.Model{failing})
	assert.ErrorIs(t, err, assert.AnError)
}

func TestPropagate_HonorsCancellation(t *testing.T) {
	network := bayes.NewNetwork()
	require.NoError(t, network.AddNode(bayes.NewChanceNode("x", nil, prior(t, map[bayes.Value]float64{
		bayes.Str("v"): 1,
	}))))
	st := state.New(network, testEngine(t))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := state.Propagate(ctx, st, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
