package inference

import (
	"log/slog"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"
)

// normalizeWeights converts the samples' log weights into a probability
// simplex. The maximum log weight is subtracted before exponentiating so a
// spread of large negative logs cannot underflow to all zeros. Degenerate
// weight sets fall back to uniform rather than raising a numerical error.
func normalizeWeights(samples []*WeightedSample) []float64 {
	weights := make([]float64, len(samples))
	if len(samples) == 0 {
		return weights
	}

	logs := make([]float64, len(samples))
	for i, sample := range samples {
		logs[i] = sample.LogWeight
	}

	maxLog := floats.Max(logs)
	if math.IsInf(maxLog, -1) || math.IsNaN(maxLog) {
		return uniformWeights(weights)
	}

	for i, logWeight := range logs {
		weights[i] = math.Exp(logWeight - maxLog)
	}

	total := floats.Sum(weights)
	if total <= 0 || math.IsNaN(total) || math.IsInf(total, 0) {
		return uniformWeights(weights)
	}

	floats.Scale(1/total, weights)
	return weights
}

func uniformWeights(weights []float64) []float64 {
	slog.Warn("degenerate sample weights, falling back to uniform",
		slog.Int("samples", len(weights)),
	)
	uniform := 1 / float64(len(weights))
	for i := range weights {
		weights[i] = uniform
	}
	return weights
}

// Resample draws n unweighted samples from the weighted set with
// replacement, each original sample selected with probability proportional
// to its normalized weight. n at or below zero keeps the input size. The
// drawn samples carry neutral weight, turning an importance-corrected set
// into a plain empirical one.
func (e *Engine) Resample(samples []*WeightedSample, n int) []*WeightedSample {
	if len(samples) == 0 {
		return nil
	}
	if n <= 0 {
		n = len(samples)
	}

	weights := normalizeWeights(samples)
	stream := e.seed + e.calls.Add(1)
	categorical := distuv.NewCategorical(weights, rand.NewPCG(stream, uint64(len(samples))))

	drawn := make([]*WeightedSample, 0, n)
	for range n {
		picked := samples[int(categorical.Rand())]
		resampled := picked.Copy()
		resampled.LogWeight = 0
		drawn = append(drawn, resampled)
	}
	return drawn
}
