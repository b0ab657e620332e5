// Package cmd provides CLI commands for the Volition application.
// This file implements the simulate command, which runs the built-in demo
// domain through scripted plan/act/learn turns.
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/adalundhe/volition/core/agent"
	"github.com/adalundhe/volition/core/bayes"
	"github.com/adalundhe/volition/core/config"
	"github.com/adalundhe/volition/core/inference"
	"github.com/adalundhe/volition/core/learner"
	"github.com/adalundhe/volition/core/planner"
	"github.com/adalundhe/volition/core/state"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// SimulateDefaultTurns is the default conversation length.
	SimulateDefaultTurns = 8

	// SimulateDefaultSeed is the default sampling seed.
	SimulateDefaultSeed = 42

	// SimulateDefaultTrueTheta is the simulated user's hidden task focus.
	SimulateDefaultTrueTheta = 0.8

	// SimulateTimeout bounds the whole simulation run.
	SimulateTimeout = 5 * time.Minute
)

// Demo domain variable names.
const (
	utteranceVar = "u_u"
	intentVar    = "a_u"
	actionVar    = "a_m'"
	decisionVar  = "a_m"
	payoffVar    = "payoff"
	thetaVar     = "theta_task"
)

// Demo domain intents.
const (
	intentGreet    = "greet"
	intentAsk      = "ask"
	intentChat     = "chat"
	intentFarewell = "farewell"
	intentUnclear  = "unclear"
)

// Demo domain response options.
const (
	actGreetBack    = "greet_back"
	actAnswer       = "answer"
	actBanter       = "banter"
	actRedirect     = "redirect"
	actFarewellBack = "farewell_back"
	actClarify      = "clarify"
)

// Demo domain payoff shape. The task-focus parameter scales how much the
// user values task help over small talk.
const (
	taskRewardScale = 10.0
	socialReward    = 2.0
	clarifyReward   = 3.0
	offTopicPenalty = 2.0
)

// ANSI color codes for terminal output.
const (
	colorReset  = "\033[0m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
	colorBold   = "\033[1m"
)

// =============================================================================
// Simulate Command Flags
// =============================================================================

var (
	simulateConfigPath string
	simulateTurns      int
	simulateSeed       uint64
	simulateTrueTheta  float64
	simulateJSON       bool
	simulateHorizon    int
	simulateSamples    int
)

// =============================================================================
// Simulate Command
// =============================================================================

// simulateCmd represents the simulate command.
var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run the built-in demo domain",
	Long: `Run a scripted conversation against the built-in demo domain.

Each turn observes a user utterance, plans and commits a response, then feeds
the simulated user's reward back into the parameter learner. The simulated
user hides a task-focus parameter; watch the posterior sharpen and the chosen
responses shift as turns accumulate.

Examples:
  volition simulate
  volition simulate --turns 16 --seed 7
  volition simulate --config volition.yaml --json | jq '.turns'`,
	RunE: runSimulate,
}

func init() {
	// Register with root command
	rootCmd.AddCommand(simulateCmd)

	// Define flags
	simulateCmd.Flags().StringVarP(&simulateConfigPath, "config", "c", "", "Path to a YAML configuration file")
	simulateCmd.Flags().IntVarP(&simulateTurns, "turns", "n", SimulateDefaultTurns, "Number of conversation turns")
	simulateCmd.Flags().Uint64Var(&simulateSeed, "seed", SimulateDefaultSeed, "Sampling seed")
	simulateCmd.Flags().Float64Var(&simulateTrueTheta, "true-theta", SimulateDefaultTrueTheta, "Hidden task focus of the simulated user")
	simulateCmd.Flags().BoolVar(&simulateJSON, "json", false, "Output the run as JSON")
	simulateCmd.Flags().IntVar(&simulateHorizon, "horizon", 0, "Planning horizon override")
	simulateCmd.Flags().IntVar(&simulateSamples, "samples", 0, "Sampling budget override")
}

// =============================================================================
// Simulate Execution
// =============================================================================

// runSimulate executes the simulate command.
func runSimulate(cmd *cobra.Command, args []string) error {
	manager := config.NewManager(simulateConfigPath)
	if err := manager.Load(); err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	overrides := &config.Config{}
	overrides.Planner.Horizon = simulateHorizon
	overrides.Sampling.SampleCount = simulateSamples
	if err := manager.ApplyOverrides(overrides); err != nil {
		return fmt.Errorf("apply flag overrides: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), SimulateTimeout)
	defer cancel()

	report, err := runConversation(ctx, manager.Get())
	if err != nil {
		return fmt.Errorf("simulation failed: %w", err)
	}

	if simulateJSON {
		return outputJSONReport(cmd.OutOrStdout(), report)
	}
	return outputRichReport(cmd.OutOrStdout(), report)
}

// runConversation builds the demo domain and drives it for the configured
// number of turns.
func runConversation(ctx context.Context, cfg *config.Config) (*simulationReport, error) {
	engine := inference.NewEngineWithSeed(cfg.Sampling, simulateSeed)

	thetaPrior, err := bayes.Prior(map[bayes.Value]float64{
		bayes.Num(0.2): 0.25,
		bayes.Num(0.4): 0.25,
		bayes.Num(0.6): 0.25,
		bayes.Num(0.8): 0.25,
	})
	if err != nil {
		return nil, err
	}
	network := bayes.NewNetwork()
	if err := network.AddNode(bayes.NewParameterNode(thetaVar, thetaPrior)); err != nil {
		return nil, err
	}

	var st *state.State
	if cfg.Cache.Enabled {
		cache, cacheErr := state.NewQueryCache(cfg.Cache)
		if cacheErr != nil {
			return nil, cacheErr
		}
		defer cache.Close()
		st = state.NewWithCache(network, engine, cache)
	} else {
		st = state.New(network, engine)
	}

	models := []state.Model{
		&intentModel{vocabulary: demoVocabulary()},
		&responseModel{},
		&transitionModel{},
	}
	record := &decisionRecorder{watch: decisionVar}
	l, err := learner.New(cfg, engine)
	if err != nil {
		return nil, err
	}
	// The learner registers ahead of the planner so decision snapshots
	// capture the network before commitment.
	rt := agent.New(st, models, []agent.Module{l, planner.New(cfg, models), record})
	if err := rt.Start(ctx); err != nil {
		return nil, err
	}

	user := newSimulatedUser(simulateTrueTheta)
	turns := make([]turnRecord, 0, simulateTurns)
	for turn := 1; turn <= simulateTurns; turn++ {
		heard := user.NextUtterance()
		if err := rt.Observe(ctx, bayes.Pair(utteranceVar, bayes.Str(heard))); err != nil {
			return nil, err
		}

		decided := record.Last()
		reward := user.Reward(heard, decided.String())
		rewardName := bayes.RewardVariable(bayes.Pair(decisionVar, decided))
		if err := rt.Observe(ctx, bayes.NewAssignment().With(rewardName, bayes.Num(reward))); err != nil {
			return nil, err
		}

		posterior, queryErr := st.QueryProb(ctx, []string{thetaVar})
		if queryErr != nil {
			return nil, queryErr
		}
		turns = append(turns, turnRecord{
			Turn:      turn,
			Heard:     heard,
			Intent:    intentOf(heard),
			Decision:  decided.String(),
			Reward:    reward,
			ThetaMean: distributionMean(posterior, thetaVar),
		})
	}

	final, err := st.QueryProb(ctx, []string{thetaVar})
	if err != nil {
		return nil, err
	}
	posterior := map[string]float64{}
	for _, row := range final.Rows() {
		if value, ok := row.Get(thetaVar); ok {
			posterior[value.String()] = final.Prob(row)
		}
	}

	return &simulationReport{
		Turns:     turns,
		Posterior: posterior,
		TrueTheta: simulateTrueTheta,
	}, nil
}

// =============================================================================
// Demo Domain
// =============================================================================

// demoVocabulary maps the scripted utterances to their true intents.
func demoVocabulary() map[string]string {
	return map[string]string{
		"hello there":            intentGreet,
		"what does the plan say": intentAsk,
		"tell me something fun":  intentChat,
		"see you later":          intentFarewell,
	}
}

// demoScript is the utterance cycle the simulated user follows.
func demoScript() []string {
	return []string{
		"hello there",
		"what does the plan say",
		"tell me something fun",
		"what does the plan say",
		"tell me something fun",
		"what does the plan say",
		"tell me something fun",
		"see you later",
	}
}

// intentOf resolves an utterance to its vocabulary intent.
func intentOf(utterance string) string {
	if intent, ok := demoVocabulary()[utterance]; ok {
		return intent
	}
	return intentUnclear
}

// responsePayoff scores a response against an intent for a given task
// focus. The same shape serves the utility node and the simulated user's
// rewards, so observed rewards are informative about the hidden focus.
func responsePayoff(theta float64, intent, action string) float64 {
	switch intent {
	case intentGreet:
		if action == actGreetBack {
			return socialReward
		}
	case intentAsk:
		switch action {
		case actAnswer:
			return taskRewardScale * theta
		case actBanter:
			return taskRewardScale*(1-theta) - offTopicPenalty
		}
	case intentChat:
		switch action {
		case actBanter:
			return taskRewardScale * (1 - theta)
		case actRedirect:
			return taskRewardScale*theta - offTopicPenalty
		}
	case intentFarewell:
		if action == actFarewellBack {
			return socialReward
		}
	case intentUnclear:
		if action == actClarify {
			return clarifyReward
		}
	}
	return 0
}

// responseOptions returns the full response domain. The utility node scores
// every option against the current intent, so the domain never needs to be
// narrowed per turn.
func responseOptions() []bayes.Value {
	return []bayes.Value{
		bayes.Str(actGreetBack),
		bayes.Str(actAnswer),
		bayes.Str(actBanter),
		bayes.Str(actRedirect),
		bayes.Str(actFarewellBack),
		bayes.Str(actClarify),
	}
}

// intentModel interprets the latest utterance into an intent belief.
type intentModel struct {
	vocabulary map[string]string
}

func (m *intentModel) Triggers(updated []string) bool {
	return containsName(updated, utteranceVar)
}

func (m *intentModel) Apply(ctx context.Context, st *state.State, updated []string) error {
	heard, ok := st.Evidence().Get(utteranceVar)
	if !ok {
		return nil
	}
	intent, known := m.vocabulary[heard.String()]
	outcomes := map[bayes.Value]float64{bayes.Str(intentUnclear): 1}
	if known && intent != intentUnclear {
		outcomes = map[bayes.Value]float64{
			bayes.Str(intent):        0.9,
			bayes.Str(intentUnclear): 0.1,
		}
	}
	belief, err := bayes.Prior(outcomes)
	if err != nil {
		return err
	}
	return st.SetNode(bayes.NewChanceNode(intentVar, nil, belief))
}

// responseModel opens a response decision whenever an intent lands,
// including predicted intents inside planning rollouts.
type responseModel struct{}

func (m *responseModel) Triggers(updated []string) bool {
	return containsName(updated, intentVar)
}

func (m *responseModel) Apply(ctx context.Context, st *state.State, updated []string) error {
	if err := st.SetNode(bayes.NewActionNode(actionVar, responseOptions())); err != nil {
		return err
	}
	return st.SetNode(bayes.NewUtilityNode(payoffVar, []string{thetaVar, intentVar, actionVar},
		func(parents bayes.Assignment) float64 {
			action, ok := parents.Get(actionVar)
			if !ok || action.IsNone() {
				return 0
			}
			intent, _ := parents.Get(intentVar)
			theta := 0.5
			if value, ok := parents.Get(thetaVar); ok {
				if f, isNum := value.Float(); isNum {
					theta = f
				}
			}
			return responsePayoff(theta, intent.String(), action.String())
		}))
}

// transitionModel predicts the next user intent after a committed response,
// which is what gives the planner a second step to look ahead into.
type transitionModel struct{}

func (m *transitionModel) Triggers(updated []string) bool {
	return containsName(updated, decisionVar)
}

func (m *transitionModel) Apply(ctx context.Context, st *state.State, updated []string) error {
	decided, ok := st.Evidence().Get(decisionVar)
	if !ok || decided.IsNone() {
		return nil
	}
	next, err := bayes.Prior(map[bayes.Value]float64{
		bayes.Str(intentAsk):      0.5,
		bayes.Str(intentChat):     0.3,
		bayes.Str(intentFarewell): 0.2,
	})
	if err != nil {
		return err
	}
	return st.SetNode(bayes.NewChanceNode(bayes.Predicted(intentVar), nil, next))
}

func containsName(names []string, target string) bool {
	for _, name := range names {
		if name == target {
			return true
		}
	}
	return false
}

// =============================================================================
// Simulated User
// =============================================================================

// simulatedUser stands in for a live interlocutor: it follows a scripted
// conversation and scores every committed decision against a hidden task
// focus.
type simulatedUser struct {
	theta  float64
	script []string
	turn   int
}

func newSimulatedUser(theta float64) *simulatedUser {
	return &simulatedUser{theta: theta, script: demoScript()}
}

// NextUtterance returns the next scripted utterance, cycling when the
// conversation outlasts the script.
func (u *simulatedUser) NextUtterance() string {
	utterance := u.script[u.turn%len(u.script)]
	u.turn++
	return utterance
}

// Reward scores the decision the system actually committed.
func (u *simulatedUser) Reward(heard, action string) float64 {
	return responsePayoff(u.theta, intentOf(heard), action)
}

// =============================================================================
// Decision Recorder
// =============================================================================

// decisionRecorder is a module that keeps every committed decision for turn
// reporting.
type decisionRecorder struct {
	watch     string
	decisions []bayes.Value
	paused    bool
}

func (r *decisionRecorder) Name() string { return "recorder" }

func (r *decisionRecorder) Start(ctx context.Context, st *state.State) error { return nil }

func (r *decisionRecorder) Trigger(ctx context.Context, st *state.State, updated []string) error {
	for _, name := range updated {
		if name != r.watch {
			continue
		}
		if value, ok := st.Evidence().Get(name); ok {
			r.decisions = append(r.decisions, value)
		}
	}
	return nil
}

func (r *decisionRecorder) Pause(paused bool) { r.paused = paused }

func (r *decisionRecorder) Running() bool { return !r.paused }

// Last returns the most recently committed decision, or None before any
// decision landed.
func (r *decisionRecorder) Last() bayes.Value {
	if len(r.decisions) == 0 {
		return bayes.None()
	}
	return r.decisions[len(r.decisions)-1]
}

// =============================================================================
// Output Formatting
// =============================================================================

// simulationReport is the JSON output structure.
type simulationReport struct {
	Turns     []turnRecord       `json:"turns"`
	Posterior map[string]float64 `json:"task_focus_posterior"`
	TrueTheta float64            `json:"true_task_focus"`
}

// turnRecord is the JSON output for a single turn.
type turnRecord struct {
	Turn      int     `json:"turn"`
	Heard     string  `json:"heard"`
	Intent    string  `json:"intent"`
	Decision  string  `json:"decision"`
	Reward    float64 `json:"reward"`
	ThetaMean float64 `json:"estimated_task_focus"`
}

// distributionMean computes the probability-weighted mean of a numeric
// variable.
func distributionMean(table *bayes.ProbabilityTable, variable string) float64 {
	mean := 0.0
	total := 0.0
	for _, row := range table.Rows() {
		value, ok := row.Get(variable)
		if !ok {
			continue
		}
		f, isNum := value.Float()
		if !isNum {
			continue
		}
		mass := table.Prob(row)
		mean += mass * f
		total += mass
	}
	if total <= 0 {
		return 0
	}
	return mean / total
}

// outputJSONReport outputs the simulation report as JSON.
func outputJSONReport(w io.Writer, report *simulationReport) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(report)
}

// outputRichReport outputs the simulation report with terminal formatting.
func outputRichReport(w io.Writer, report *simulationReport) error {
	fmt.Fprintf(w, "%s%sSimulated conversation%s\n", colorBold, colorCyan, colorReset)
	fmt.Fprintf(w, "%sTurns:%s %d  %sTrue task focus:%s %.2f\n",
		colorGray, colorReset, len(report.Turns),
		colorGray, colorReset, report.TrueTheta)
	fmt.Fprintln(w)

	for _, turn := range report.Turns {
		fmt.Fprintf(w, "%s%2d.%s %-24q %s%-9s%s -> %s%-14s%s reward=%5.1f  E[focus]=%.2f\n",
			colorYellow, turn.Turn, colorReset,
			turn.Heard,
			colorGray, turn.Intent, colorReset,
			colorGreen, turn.Decision, colorReset,
			turn.Reward, turn.ThetaMean)
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "%s%sLearned task-focus posterior%s\n", colorBold, colorCyan, colorReset)
	for _, level := range []string{"0.2", "0.4", "0.6", "0.8"} {
		fmt.Fprintf(w, "  %s%s%s  %5.1f%%\n", colorGray, level, colorReset, 100*report.Posterior[level])
	}
	return nil
}
