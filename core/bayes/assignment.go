package bayes

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// PairSeparator joins variable=value pairs in the canonical assignment
// encoding. The surrounding spaces keep the separator unambiguous against
// marker characters inside variable names.
const PairSeparator = " ^ "

// ErrMalformedAssignment reports an assignment encoding that does not parse.
var ErrMalformedAssignment = errors.New("malformed assignment encoding")

// Assignment maps variable names to values. Assignments are value types:
// every operation returns a fresh assignment and never mutates its inputs.
type Assignment struct {
	pairs map[string]Value
}

// NewAssignment returns the empty assignment.
func NewAssignment() Assignment {
	return Assignment{pairs: map[string]Value{}}
}

// Pair returns an assignment holding a single variable=value pair.
func Pair(variable string, value Value) Assignment {
	return Assignment{pairs: map[string]Value{variable: value}}
}

// FromMap returns an assignment over a copy of the given pairs.
func FromMap(pairs map[string]Value) Assignment {
	copied := make(map[string]Value, len(pairs))
	for name, value := range pairs {
		copied[name] = value
	}
	return Assignment{pairs: copied}
}

// DefaultAssignment assigns the none value to every listed variable. It is
// the designated no-op decision over a set of action variables.
func DefaultAssignment(variables []string) Assignment {
	pairs := make(map[string]Value, len(variables))
	for _, name := range variables {
		pairs[name] = None()
	}
	return Assignment{pairs: pairs}
}

// Size returns the number of pairs.
func (a Assignment) Size() int {
	return len(a.pairs)
}

// IsEmpty reports whether the assignment holds no pairs.
func (a Assignment) IsEmpty() bool {
	return len(a.pairs) == 0
}

// Contains reports whether the variable is assigned.
func (a Assignment) Contains(variable string) bool {
	_, ok := a.pairs[variable]
	return ok
}

// ContainsAll reports whether every listed variable is assigned.
func (a Assignment) ContainsAll(variables []string) bool {
	for _, name := range variables {
		if _, ok := a.pairs[name]; !ok {
			return false
		}
	}
	return true
}

// Get returns the value bound to the variable.
func (a Assignment) Get(variable string) (Value, bool) {
	value, ok := a.pairs[variable]
	return value, ok
}

// Variables returns the assigned variable names in sorted order.
func (a Assignment) Variables() []string {
	names := make([]string, 0, len(a.pairs))
	for name := range a.pairs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// With returns a copy of the assignment with one additional pair. An
// existing binding for the variable is replaced.
func (a Assignment) With(variable string, value Value) Assignment {
	combined := make(map[string]Value, len(a.pairs)+1)
	for name, existing := range a.pairs {
		combined[name] = existing
	}
	combined[variable] = value
	return Assignment{pairs: combined}
}

// Union merges two assignments. Pairs from other replace pairs of the
// receiver when both bind the same variable.
func (a Assignment) Union(other Assignment) Assignment {
	combined := make(map[string]Value, len(a.pairs)+len(other.pairs))
	for name, value := range a.pairs {
		combined[name] = value
	}
	for name, value := range other.pairs {
		combined[name] = value
	}
	return Assignment{pairs: combined}
}

// Project restricts the assignment to the listed variables. Variables absent
// from the assignment are skipped.
func (a Assignment) Project(variables []string) Assignment {
	projected := make(map[string]Value, len(variables))
	for _, name := range variables {
		if value, ok := a.pairs[name]; ok {
			projected[name] = value
		}
	}
	return Assignment{pairs: projected}
}

// Without returns a copy of the assignment with the listed variables
// removed.
func (a Assignment) Without(variables ...string) Assignment {
	remaining := make(map[string]Value, len(a.pairs))
	for name, value := range a.pairs {
		remaining[name] = value
	}
	for _, name := range variables {
		delete(remaining, name)
	}
	return Assignment{pairs: remaining}
}

// StripPrimed returns a copy with every trailing prime removed from variable
// names. When stripping collides, the more-primed binding wins.
func (a Assignment) StripPrimed() Assignment {
	stripped := make(map[string]Value, len(a.pairs))
	winners := make(map[string]int, len(a.pairs))
	for name, value := range a.pairs {
		base := StripPrimes(name)
		depth := PrimeCount(name)
		if best, seen := winners[base]; !seen || depth > best {
			winners[base] = depth
			stripped[base] = value
		}
	}
	return Assignment{pairs: stripped}
}

// IsDefault reports whether every bound value is the none value. The empty
// assignment is not a default decision.
func (a Assignment) IsDefault() bool {
	if len(a.pairs) == 0 {
		return false
	}
	for _, value := range a.pairs {
		if !value.IsNone() {
			return false
		}
	}
	return true
}

// Equal reports whether both assignments bind the same variables to equal
// values.
func (a Assignment) Equal(other Assignment) bool {
	if len(a.pairs) != len(other.pairs) {
		return false
	}
	for name, value := range a.pairs {
		otherValue, ok := other.pairs[name]
		if !ok || !value.Equal(otherValue) {
			return false
		}
	}
	return true
}

// String returns the canonical encoding: pairs sorted by variable name and
// joined with the pair separator. The empty assignment encodes as "".
func (a Assignment) String() string {
	names := a.Variables()
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+"="+a.pairs[name].String())
	}
	return strings.Join(parts, PairSeparator)
}

// ParseAssignment parses the canonical encoding back into an assignment.
// Every assignment round-trips through String and ParseAssignment as long
// as no encoded value embeds the pair separator.
func ParseAssignment(encoded string) (Assignment, error) {
	trimmed := strings.TrimSpace(encoded)
	if trimmed == "" {
		return NewAssignment(), nil
	}
	pairs := map[string]Value{}
	for _, part := range strings.Split(trimmed, PairSeparator) {
		name, rawValue, found := strings.Cut(part, "=")
		if !found || strings.TrimSpace(name) == "" {
			return Assignment{}, fmt.Errorf("%w: %q", ErrMalformedAssignment, part)
		}
		pairs[strings.TrimSpace(name)] = ParseValue(rawValue)
	}
	return Assignment{pairs: pairs}, nil
}
