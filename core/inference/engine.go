package inference

import (
	"context"
	"log/slog"
	"math"
	"math/rand/v2"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/adalundhe/volition/core/bayes"
	"github.com/adalundhe/volition/core/config"
	coreerrors "github.com/adalundhe/volition/core/errors"
)

// Engine answers probability and utility queries against a network by
// running independent likelihood-weighted sampling trials on a bounded
// worker pool. Trials share nothing mutable: the network is read-only for
// the duration of a call and every trial carries its own random source.
type Engine struct {
	cfg  config.SamplingConfig
	seed uint64

	// calls keeps successive queries on distinct random streams so repeated
	// queries over structurally similar networks do not share draws.
	calls atomic.Uint64
}

// NewEngine returns an engine bounded by the given sampling configuration.
func NewEngine(cfg config.SamplingConfig) *Engine {
	return &Engine{cfg: cfg, seed: rand.Uint64()}
}

// NewEngineWithSeed returns an engine with a fixed base seed so trial
// streams are reproducible.
func NewEngineWithSeed(cfg config.SamplingConfig, seed uint64) *Engine {
	return &Engine{cfg: cfg, seed: seed}
}

// Sample runs up to the configured trial budget against the network under
// the given evidence and returns the completed weighted samples.
//
// The call is anytime: when the sampling deadline or the caller's context
// expires, trials already completed are returned as they are. When nothing
// completed in time, one trial runs inline so the result is non-empty
// unless the network itself cannot produce a sample.
func (e *Engine) Sample(ctx context.Context, nw *bayes.Network, evidence bayes.Assignment) ([]*WeightedSample, error) {
	order, err := nw.TopologicalOrder()
	if err != nil {
		return nil, coreerrors.WrapWithDomain(coreerrors.DomainQuery, "resolve sampling order", err)
	}

	operationID := uuid.NewString()
	started := time.Now()
	stream := e.seed + e.calls.Add(1)

	ctx, cancel := context.WithTimeout(ctx, e.cfg.MaxSamplingTime)
	defer cancel()

	workers := e.cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	sem := make(chan struct{}, workers)
	results := make(chan *WeightedSample, e.cfg.SampleCount)
	failures := make(chan error, e.cfg.SampleCount)
	var wg sync.WaitGroup

scheduling:
	for trial := 0; trial < e.cfg.SampleCount; trial++ {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			break scheduling
		}

		wg.Add(1)
		go func(trial int) {
			defer wg.Done()
			defer func() { <-sem }()

			rng := rand.New(rand.NewPCG(stream, uint64(trial)))
			sample, trialErr := e.runTrial(order, nw, evidence, rng)
			if trialErr != nil {
				failures <- trialErr
				return
			}
			results <- sample
		}(trial)
	}

	wg.Wait()
	close(results)
	close(failures)

	samples := make([]*WeightedSample, 0, len(results))
	for sample := range results {
		samples = append(samples, sample)
	}

	dropped := 0
	var lastFailure error
	for trialErr := range failures {
		dropped++
		lastFailure = trialErr
	}

	if len(samples) == 0 {
		// Deadline elapsed before any trial completed, or every trial
		// failed. One inline attempt keeps the anytime contract.
		rng := rand.New(rand.NewPCG(stream, uint64(e.cfg.SampleCount)+1))
		sample, trialErr := e.runTrial(order, nw, evidence, rng)
		if trialErr != nil {
			if lastFailure == nil {
				lastFailure = trialErr
			}
			return nil, coreerrors.WrapWithDomain(coreerrors.DomainQuery, "no trial could complete", lastFailure)
		}
		samples = append(samples, sample)
	}

	slog.Debug("sampling complete",
		slog.String("operation_id", operationID),
		slog.Int("completed", len(samples)),
		slog.Int("dropped", dropped),
		slog.Duration("elapsed", time.Since(started)),
	)

	return samples, nil
}

// runTrial walks the topological order once: parents are always assigned
// before the nodes conditioned on them. Evidence on a chance variable fixes
// its value and multiplies the trial weight by its likelihood; free chance
// variables are drawn from their conditional distribution; undecided,
// unevidenced action variables draw uniformly over their domain; utility
// nodes accumulate their score of the assignment so far.
func (e *Engine) runTrial(order []string, nw *bayes.Network, evidence bayes.Assignment, rng *rand.Rand) (*WeightedSample, error) {
	values := make(map[string]bayes.Value, len(order))
	logWeight := 0.0
	utility := 0.0

	for _, name := range order {
		node, ok := nw.Node(name)
		if !ok {
			continue
		}
		parents := projectValues(values, node.Parents())

		switch node.Kind() {
		case bayes.ChanceNode:
			if fixed, has := evidence.Get(name); has {
				values[name] = fixed
				logWeight += math.Log(node.Distrib().Prob(parents, fixed))
				continue
			}
			drawn, err := node.Distrib().Sample(parents, rng)
			if err != nil {
				return nil, err
			}
			values[name] = drawn

		case bayes.ActionNode:
			// Evidence outranks a committed decision so counterfactual
			// queries can pin an action over a historical snapshot.
			if fixed, has := evidence.Get(name); has {
				values[name] = fixed
				continue
			}
			if decided, has := node.Decided(); has {
				values[name] = decided
				continue
			}
			domain := node.Domain()
			values[name] = domain[rng.IntN(len(domain))]

		case bayes.UtilityNode:
			utility += node.Utility(parents)
		}
	}

	return &WeightedSample{
		Assignment: bayes.FromMap(values),
		LogWeight:  logWeight,
		Utility:    utility,
	}, nil
}

// QueryProb aggregates sampling trials into a normalized distribution over
// the target variables. An empty target set yields an empty table, not an
// error.
func (e *Engine) QueryProb(ctx context.Context, nw *bayes.Network, targets []string, evidence bayes.Assignment) (*bayes.ProbabilityTable, error) {
	table := bayes.NewProbabilityTable()
	if len(targets) == 0 {
		return table, nil
	}

	samples, err := e.Sample(ctx, nw, evidence)
	if err != nil {
		return nil, err
	}

	weights := normalizeWeights(samples)
	for i, sample := range samples {
		table.AddMass(sample.Assignment.Project(targets), weights[i])
	}
	table.Normalize()
	return table, nil
}

// QueryUtil aggregates sampling trials into an expected-utility table over
// the target variables: each row's utility is the weighted mean of trial
// utilities grouped by the row's projection. An empty target set yields an
// empty table.
func (e *Engine) QueryUtil(ctx context.Context, nw *bayes.Network, targets []string, evidence bayes.Assignment) (*bayes.UtilityTable, error) {
	table := bayes.NewUtilityTable()
	if len(targets) == 0 {
		return table, nil
	}

	samples, err := e.Sample(ctx, nw, evidence)
	if err != nil {
		return nil, err
	}

	weights := normalizeWeights(samples)

	type rowAccumulator struct {
		assignment   bayes.Assignment
		weightedUtil float64
		totalWeight  float64
	}
	rows := map[string]*rowAccumulator{}
	rowOrder := make([]string, 0)

	for i, sample := range samples {
		projected := sample.Assignment.Project(targets)
		key := projected.String()
		row, seen := rows[key]
		if !seen {
			row = &rowAccumulator{assignment: projected}
			rows[key] = row
			rowOrder = append(rowOrder, key)
		}
		row.weightedUtil += weights[i] * sample.Utility
		row.totalWeight += weights[i]
	}

	for _, key := range rowOrder {
		row := rows[key]
		if row.totalWeight > 0 {
			table.SetUtil(row.assignment, row.weightedUtil/row.totalWeight)
		} else {
			table.SetUtil(row.assignment, 0)
		}
	}
	return table, nil
}

func projectValues(values map[string]bayes.Value, names []string) bayes.Assignment {
	projected := make(map[string]bayes.Value, len(names))
	for _, name := range names {
		if value, ok := values[name]; ok {
			projected[name] = value
		}
	}
	return bayes.FromMap(projected)
}
