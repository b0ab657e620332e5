package bayes

import (
	"math"
	"sort"
)

// ProbabilityTable maps assignments to probability mass. Rows keep their
// insertion order so ties resolve to the first-seen row.
type ProbabilityTable struct {
	rows  map[string]float64
	order []Assignment
}

// NewProbabilityTable returns an empty table.
func NewProbabilityTable() *ProbabilityTable {
	return &ProbabilityTable{rows: map[string]float64{}}
}

// AddMass accumulates probability mass onto the row for the assignment,
// creating the row when absent.
func (t *ProbabilityTable) AddMass(assignment Assignment, mass float64) {
	key := assignment.String()
	if _, ok := t.rows[key]; !ok {
		t.order = append(t.order, assignment)
	}
	t.rows[key] += mass
}

// Prob returns the mass on the assignment's row, or zero when absent.
func (t *ProbabilityTable) Prob(assignment Assignment) float64 {
	return t.rows[assignment.String()]
}

// Rows returns the assignments in insertion order.
func (t *ProbabilityTable) Rows() []Assignment {
	rows := make([]Assignment, len(t.order))
	copy(rows, t.order)
	return rows
}

// Size returns the number of rows.
func (t *ProbabilityTable) Size() int {
	return len(t.order)
}

// IsEmpty reports whether the table has no rows.
func (t *ProbabilityTable) IsEmpty() bool {
	return len(t.order) == 0
}

// Total returns the summed mass across all rows.
func (t *ProbabilityTable) Total() float64 {
	total := 0.0
	for _, mass := range t.rows {
		total += mass
	}
	return total
}

// Normalize rescales the rows to sum to one. Tables with no positive total
// are left unchanged.
func (t *ProbabilityTable) Normalize() {
	total := t.Total()
	if total <= 0 {
		return
	}
	for key := range t.rows {
		t.rows[key] /= total
	}
}

// SumsToOne reports whether the total mass is within tolerance of one.
func (t *ProbabilityTable) SumsToOne(tolerance float64) bool {
	return math.Abs(t.Total()-1) <= tolerance
}

// NBest returns a new table holding the k highest-mass rows with their
// original masses. Ties keep insertion order.
func (t *ProbabilityTable) NBest(k int) *ProbabilityTable {
	ranked := t.Rows()
	sort.SliceStable(ranked, func(i, j int) bool {
		return t.Prob(ranked[i]) > t.Prob(ranked[j])
	})
	if k < len(ranked) {
		ranked = ranked[:k]
	}
	best := NewProbabilityTable()
	for _, assignment := range ranked {
		best.AddMass(assignment, t.Prob(assignment))
	}
	return best
}

// UtilityTable maps assignments to expected utility. Rows keep their
// insertion order so arg-max ties resolve to the first-seen row.
type UtilityTable struct {
	rows  map[string]float64
	order []Assignment
}

// NewUtilityTable returns an empty table.
func NewUtilityTable() *UtilityTable {
	return &UtilityTable{rows: map[string]float64{}}
}

// SetUtil installs the utility for the assignment's row, replacing any
// previous value.
func (t *UtilityTable) SetUtil(assignment Assignment, utility float64) {
	key := assignment.String()
	if _, ok := t.rows[key]; !ok {
		t.order = append(t.order, assignment)
	}
	t.rows[key] = utility
}

// AddUtil accumulates utility onto the assignment's row, creating the row
// when absent.
func (t *UtilityTable) AddUtil(assignment Assignment, delta float64) {
	key := assignment.String()
	if _, ok := t.rows[key]; !ok {
		t.order = append(t.order, assignment)
	}
	t.rows[key] += delta
}

// Util returns the utility on the assignment's row, or zero when absent.
func (t *UtilityTable) Util(assignment Assignment) float64 {
	return t.rows[assignment.String()]
}

// Has reports whether the assignment has a row.
func (t *UtilityTable) Has(assignment Assignment) bool {
	_, ok := t.rows[assignment.String()]
	return ok
}

// Rows returns the assignments in insertion order.
func (t *UtilityTable) Rows() []Assignment {
	rows := make([]Assignment, len(t.order))
	copy(rows, t.order)
	return rows
}

// Size returns the number of rows.
func (t *UtilityTable) Size() int {
	return len(t.order)
}

// IsEmpty reports whether the table has no rows.
func (t *UtilityTable) IsEmpty() bool {
	return len(t.order) == 0
}

// Best returns the assignment with the highest utility. Ties resolve to the
// first-seen row. The third return is false for an empty table.
func (t *UtilityTable) Best() (Assignment, float64, bool) {
	if len(t.order) == 0 {
		return NewAssignment(), 0, false
	}
	best := t.order[0]
	bestUtil := t.rows[best.String()]
	for _, assignment := range t.order[1:] {
		if utility := t.rows[assignment.String()]; utility > bestUtil {
			best = assignment
			bestUtil = utility
		}
	}
	return best, bestUtil, true
}

// NBest returns a new table holding the k highest-utility rows. Ties keep
// insertion order.
func (t *UtilityTable) NBest(k int) *UtilityTable {
	ranked := t.Rows()
	sort.SliceStable(ranked, func(i, j int) bool {
		return t.Util(ranked[i]) > t.Util(ranked[j])
	})
	if k < len(ranked) {
		ranked = ranked[:k]
	}
	best := NewUtilityTable()
	for _, assignment := range ranked {
		best.SetUtil(assignment, t.Util(assignment))
	}
	return best
}

// Merge adds every row of other onto the receiver.
func (t *UtilityTable) Merge(other *UtilityTable) {
	for _, assignment := range other.Rows() {
		t.AddUtil(assignment, other.Util(assignment))
	}
}
