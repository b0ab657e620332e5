package bayes

import (
	"errors"
	"math"
	"math/rand/v2"
	"sort"
)

var (
	ErrNoDistributionRow  = errors.New("no distribution row for parent assignment")
	ErrEmptySupport       = errors.New("distribution has empty support")
	ErrInvalidProbability = errors.New("probability mass must be finite and non-negative")
)

// Distribution is the conditional distribution attached to a chance node.
// Sample draws one value given an assignment over the node's parents, and
// Prob scores a candidate value under the same conditioning.
//
// Implementations are immutable once built, so networks share them by
// reference across copies.
type Distribution interface {
	Sample(parents Assignment, rng *rand.Rand) (Value, error)
	Prob(parents Assignment, value Value) float64
	Values() []Value
}

// ValueProb pairs one support value with its probability mass.
type ValueProb struct {
	Value Value
	Prob  float64
}

// CPT is a conditional probability table: one categorical row per parent
// assignment. Rows are normalized on insertion.
type CPT struct {
	rows map[string][]ValueProb
}

// NewCPT returns an empty conditional probability table.
func NewCPT() *CPT {
	return &CPT{rows: map[string][]ValueProb{}}
}

// Prior builds a single-row table for a root node from the given outcome
// masses.
func Prior(outcomes map[Value]float64) (*CPT, error) {
	table := NewCPT()
	if err := table.AddRow(NewAssignment(), outcomes); err != nil {
		return nil, err
	}
	return table, nil
}

// Deterministic builds a single-row table that always yields the given
// value.
func Deterministic(value Value) *CPT {
	table := NewCPT()
	table.rows[NewAssignment().String()] = []ValueProb{{Value: value, Prob: 1}}
	return table
}

// AddRow installs the categorical row for one parent assignment. The row is
// normalized to sum to one; a row with no positive mass is rejected.
func (c *CPT) AddRow(parents Assignment, outcomes map[Value]float64) error {
	total := 0.0
	row := make([]ValueProb, 0, len(outcomes))
	for value, mass := range outcomes {
		if mass < 0 || math.IsNaN(mass) || math.IsInf(mass, 0) {
			return ErrInvalidProbability
		}
		if mass == 0 {
			continue
		}
		row = append(row, ValueProb{Value: value, Prob: mass})
		total += mass
	}
	if len(row) == 0 || total <= 0 {
		return ErrEmptySupport
	}
	for i := range row {
		row[i].Prob /= total
	}
	sort.Slice(row, func(i, j int) bool {
		return row[i].Value.String() < row[j].Value.String()
	})
	c.rows[parents.String()] = row
	return nil
}

// Sample draws one value from the row matching the parent assignment.
func (c *CPT) Sample(parents Assignment, rng *rand.Rand) (Value, error) {
	row, ok := c.rows[parents.String()]
	if !ok {
		return Value{}, ErrNoDistributionRow
	}
	draw := rng.Float64()
	cumulative := 0.0
	for _, entry := range row {
		cumulative += entry.Prob
		if draw < cumulative {
			return entry.Value, nil
		}
	}
	// Guard against accumulated rounding on the final interval.
	return row[len(row)-1].Value, nil
}

// Prob returns the probability of the value under the row matching the
// parent assignment, or zero when no row matches.
func (c *CPT) Prob(parents Assignment, value Value) float64 {
	row, ok := c.rows[parents.String()]
	if !ok {
		return 0
	}
	for _, entry := range row {
		if entry.Value.Equal(value) {
			return entry.Prob
		}
	}
	return 0
}

// Values returns the sorted union of support values across all rows.
func (c *CPT) Values() []Value {
	seen := map[Value]bool{}
	values := make([]Value, 0)
	for _, row := range c.rows {
		for _, entry := range row {
			if !seen[entry.Value] {
				seen[entry.Value] = true
				values = append(values, entry.Value)
			}
		}
	}
	sort.Slice(values, func(i, j int) bool {
		return values[i].String() < values[j].String()
	})
	return values
}

// RowCount returns the number of installed rows.
func (c *CPT) RowCount() int {
	return len(c.rows)
}
