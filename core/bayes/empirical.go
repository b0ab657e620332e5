package bayes

import (
	"math/rand/v2"
	"sort"
)

// EmpiricalDistribution is an unweighted collection of sampled assignments.
// Frequencies across the collection encode probability mass.
type EmpiricalDistribution struct {
	samples []Assignment
}

// NewEmpiricalDistribution returns an empty collection.
func NewEmpiricalDistribution() *EmpiricalDistribution {
	return &EmpiricalDistribution{}
}

// Add appends one sampled assignment.
func (e *EmpiricalDistribution) Add(sample Assignment) {
	e.samples = append(e.samples, sample)
}

// Size returns the number of collected samples.
func (e *EmpiricalDistribution) Size() int {
	return len(e.samples)
}

// Samples returns the collected assignments. The returned slice is shared
// and must not be mutated.
func (e *EmpiricalDistribution) Samples() []Assignment {
	return e.samples
}

// ToTable projects every sample onto the given variables and returns the
// normalized frequency table over the projections.
func (e *EmpiricalDistribution) ToTable(variables []string) *ProbabilityTable {
	table := NewProbabilityTable()
	for _, sample := range e.samples {
		table.AddMass(sample.Project(variables), 1)
	}
	table.Normalize()
	return table
}

// Marginal extracts the conditional empirical distribution of one variable
// given the listed parent variables. Samples not binding the variable are
// skipped.
func (e *EmpiricalDistribution) Marginal(variable string, parents []string) (*ConditionalEmpirical, error) {
	marginal := &ConditionalEmpirical{
		variable: variable,
		parents:  copyNames(parents),
		buckets:  map[string][]Value{},
	}
	for _, sample := range e.samples {
		value, ok := sample.Get(variable)
		if !ok {
			continue
		}
		key := sample.Project(parents).String()
		marginal.buckets[key] = append(marginal.buckets[key], value)
		marginal.pooled = append(marginal.pooled, value)
	}
	if len(marginal.pooled) == 0 {
		return nil, ErrEmptySupport
	}
	return marginal, nil
}

// ConditionalEmpirical is a sample-backed conditional distribution for one
// variable. Draws come from the bucket matching the parent assignment, with
// repetition in the bucket encoding frequency. When no bucket matches, the
// pooled marginal over every sample serves as fallback so sampling never
// dead-ends on an unseen conditioning.
type ConditionalEmpirical struct {
	variable string
	parents  []string
	buckets  map[string][]Value
	pooled   []Value
}

// Variable returns the name of the variable the distribution covers.
func (c *ConditionalEmpirical) Variable() string {
	return c.variable
}

// Parents returns a copy of the conditioning variable names.
func (c *ConditionalEmpirical) Parents() []string {
	return copyNames(c.parents)
}

// Sample draws one value from the bucket matching the parent assignment.
func (c *ConditionalEmpirical) Sample(parents Assignment, rng *rand.Rand) (Value, error) {
	bucket := c.bucket(parents)
	if len(bucket) == 0 {
		return Value{}, ErrEmptySupport
	}
	return bucket[rng.IntN(len(bucket))], nil
}

// Prob returns the frequency of the value inside the bucket matching the
// parent assignment.
func (c *ConditionalEmpirical) Prob(parents Assignment, value Value) float64 {
	bucket := c.bucket(parents)
	if len(bucket) == 0 {
		return 0
	}
	matches := 0
	for _, sampled := range bucket {
		if sampled.Equal(value) {
			matches++
		}
	}
	return float64(matches) / float64(len(bucket))
}

// Values returns the sorted distinct values across every sample.
func (c *ConditionalEmpirical) Values() []Value {
	seen := map[Value]bool{}
	values := make([]Value, 0)
	for _, sampled := range c.pooled {
		if !seen[sampled] {
			seen[sampled] = true
			values = append(values, sampled)
		}
	}
	sort.Slice(values, func(i, j int) bool {
		return values[i].String() < values[j].String()
	})
	return values
}

func (c *ConditionalEmpirical) bucket(parents Assignment) []Value {
	if bucket, ok := c.buckets[parents.Project(c.parents).String()]; ok && len(bucket) > 0 {
		return bucket
	}
	return c.pooled
}
