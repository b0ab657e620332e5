// Package bayes provides the probabilistic network primitives: values,
// assignments, node kinds, conditional distributions and the network arena
// that the inference engine, planner and learner operate on.
package bayes

import (
	"strconv"
	"strings"
)

// ValueKind identifies the variant held by a Value.
type ValueKind int

const (
	NoneKind ValueKind = iota
	BoolKind
	NumberKind
	StringKind
)

var valueKindNames = map[ValueKind]string{
	NoneKind:   "none",
	BoolKind:   "bool",
	NumberKind: "number",
	StringKind: "string",
}

func (k ValueKind) String() string {
	if name, ok := valueKindNames[k]; ok {
		return name
	}
	return "unknown"
}

// NoneLabel is the canonical encoding of the none value. It doubles as the
// designated no-op value for default action assignments.
const NoneLabel = "None"

// Value is a closed tagged variant over the kinds a variable can take.
// Values are immutable and comparable, so they can key maps directly.
type Value struct {
	kind ValueKind
	b    bool
	num  float64
	str  string
}

// None returns the none value.
func None() Value {
	return Value{kind: NoneKind}
}

// Bool returns a boolean value.
func Bool(b bool) Value {
	return Value{kind: BoolKind, b: b}
}

// Num returns a numeric value.
func Num(f float64) Value {
	return Value{kind: NumberKind, num: f}
}

// Str returns a string value.
func Str(s string) Value {
	return Value{kind: StringKind, str: s}
}

// ParseValue interprets the canonical encoding of a value. Parsing defines
// the canonical reading: "None" is none, "true"/"false" are booleans, and
// anything that parses as a float is numeric. Everything else is a string.
func ParseValue(s string) Value {
	trimmed := strings.TrimSpace(s)
	switch trimmed {
	case NoneLabel:
		return None()
	case "true":
		return Bool(true)
	case "false":
		return Bool(false)
	}
	if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
		return Num(f)
	}
	return Str(trimmed)
}

// Kind returns the variant held by the value.
func (v Value) Kind() ValueKind {
	return v.kind
}

// IsNone reports whether the value is the none value.
func (v Value) IsNone() bool {
	return v.kind == NoneKind
}

// Float returns the numeric content of the value. The second return is false
// for non-numeric values.
func (v Value) Float() (float64, bool) {
	if v.kind != NumberKind {
		return 0, false
	}
	return v.num, true
}

// Equal reports whether two values hold the same variant and content.
func (v Value) Equal(o Value) bool {
	return v == o
}

// String returns the canonical encoding. Numbers use the shortest
// representation that round-trips through ParseValue.
func (v Value) String() string {
	switch v.kind {
	case NoneKind:
		return NoneLabel
	case BoolKind:
		return strconv.FormatBool(v.b)
	case NumberKind:
		return strconv.FormatFloat(v.num, 'g', -1, 64)
	default:
		return v.str
	}
}
