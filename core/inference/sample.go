// Package inference implements the approximate query engine: likelihood
// weighted sampling over a network's topological order, with anytime
// aggregation, log-space weight handling and weighted bootstrap resampling.
package inference

import (
	"math"

	"github.com/adalundhe/volition/core/bayes"
)

// WeightedSample is the outcome of one sampling trial: the drawn assignment,
// its importance correction in log space and the utility accumulated across
// utility nodes. Samples are created by a trial, optionally trimmed to a
// variable subset, consumed during aggregation or resampling, then
// discarded.
type WeightedSample struct {
	Assignment bayes.Assignment
	LogWeight  float64
	Utility    float64
}

// NewWeightedSample wraps an assignment with neutral weight.
func NewWeightedSample(assignment bayes.Assignment) *WeightedSample {
	return &WeightedSample{Assignment: assignment}
}

// AddLogWeight composes an additional importance correction onto the sample.
func (s *WeightedSample) AddLogWeight(delta float64) {
	s.LogWeight += delta
}

// Weight returns the sample's importance weight in linear space.
func (s *WeightedSample) Weight() float64 {
	return math.Exp(s.LogWeight)
}

// Trim restricts the sample's assignment to the given variables.
func (s *WeightedSample) Trim(variables []string) {
	s.Assignment = s.Assignment.Project(variables)
}

// Copy returns an independent copy of the sample.
func (s *WeightedSample) Copy() *WeightedSample {
	return &WeightedSample{
		Assignment: s.Assignment,
		LogWeight:  s.LogWeight,
		Utility:    s.Utility,
	}
}
