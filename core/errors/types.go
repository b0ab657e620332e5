// Package errors implements the failure-domain taxonomy with classification
// and handling behavior. Every failure in the core is turn-scoped: it is
// contained at its trigger boundary and the next cycle retries from clean
// state.
package errors

import (
	"errors"
	"fmt"
	"log/slog"
)

// Domain classifies where in the reasoning cycle a failure occurred. Each
// domain has defined behavior for logging and cycle handling.
type Domain int

const (
	// DomainQuery indicates inference failures: degenerate evidence, empty
	// support, exhausted sampling budgets. Recovered locally to well-defined
	// defaults.
	DomainQuery Domain = iota

	// DomainPlanning indicates failures inside the planner's recursion.
	// Caught at the trigger boundary; the cycle aborts without committing
	// an action.
	DomainPlanning

	// DomainLearning indicates learning failures: missing snapshots, no
	// relevant parameters. Skipped without error.
	DomainLearning

	// DomainEvidence indicates malformed externally supplied evidence, such
	// as reward variable names that do not parse. Treated as unmatched and
	// ignored.
	DomainEvidence
)

var domainNames = map[Domain]string{
	DomainQuery:    "query",
	DomainPlanning: "planning",
	DomainLearning: "learning",
	DomainEvidence: "evidence",
}

func (d Domain) String() string {
	if name, ok := domainNames[d]; ok {
		return name
	}
	return "unknown"
}

// DomainBehavior defines the handling behavior for a failure domain.
type DomainBehavior struct {
	// LogLevel is the level failures of this domain are reported at.
	LogLevel slog.Level

	// AbortsCycle indicates whether the current reasoning cycle stops
	// early. The failure still never escapes the trigger boundary.
	AbortsCycle bool

	// Silent indicates the failure is an expected no-op, not worth more
	// than a debug line.
	Silent bool
}

// DefaultBehaviors returns the default behavior for each failure domain.
func DefaultBehaviors() map[Domain]DomainBehavior {
	return map[Domain]DomainBehavior{
		DomainQuery: {
			LogLevel:    slog.LevelWarn,
			AbortsCycle: false,
			Silent:      false,
		},
		DomainPlanning: {
			LogLevel:    slog.LevelWarn,
			AbortsCycle: true,
			Silent:      false,
		},
		DomainLearning: {
			LogLevel:    slog.LevelDebug,
			AbortsCycle: false,
			Silent:      true,
		},
		DomainEvidence: {
			LogLevel:    slog.LevelDebug,
			AbortsCycle: false,
			Silent:      true,
		},
	}
}

// DomainError wraps an error with domain classification.
type DomainError struct {
	Domain     Domain
	Message    string
	Underlying error
	Context    map[string]string
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Domain, e.Message, e.Underlying)
	}
	return fmt.Sprintf("[%s] %s", e.Domain, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *DomainError) Unwrap() error {
	return e.Underlying
}

// Is checks if the target error matches this DomainError's domain.
func (e *DomainError) Is(target error) bool {
	var de *DomainError
	if errors.As(target, &de) {
		return e.Domain == de.Domain
	}
	return false
}

// NewDomainError creates a new DomainError with the given domain and
// message.
func NewDomainError(domain Domain, message string, underlying error) *DomainError {
	return &DomainError{
		Domain:     domain,
		Message:    message,
		Underlying: underlying,
		Context:    make(map[string]string),
	}
}

// WithContext adds context key-value pairs to the error.
func (e *DomainError) WithContext(key, value string) *DomainError {
	e.Context[key] = value
	return e
}

// GetDomain extracts the Domain from an error, defaulting to Query.
func GetDomain(err error) Domain {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Domain
	}
	return DomainQuery
}

// GetBehavior returns the behavior for an error's domain.
func GetBehavior(err error) DomainBehavior {
	domain := GetDomain(err)
	behaviors := DefaultBehaviors()
	return behaviors[domain]
}

// Recoverable reports whether the failure is turn-scoped. Every classified
// failure in the core is: the next cycle retries from clean state.
func Recoverable(err error) bool {
	var de *DomainError
	return errors.As(err, &de)
}

// Silent reports whether the failure is an expected no-op for its domain.
func Silent(err error) bool {
	return GetBehavior(err).Silent
}

// Common sentinel errors for each failure domain.
var (
	// Query failures
	ErrDegenerateWeights = NewDomainError(DomainQuery, "all sample weights degenerate", nil)
	ErrNoSamples         = NewDomainError(DomainQuery, "no completed sampling trials", nil)

	// Planning failures
	ErrNoActionVariables = NewDomainError(DomainPlanning, "no action variables exposed", nil)
	ErrPlanningAborted   = NewDomainError(DomainPlanning, "planning cycle aborted", nil)

	// Learning failures
	ErrNoSnapshot   = NewDomainError(DomainLearning, "no snapshot for action set", nil)
	ErrNoParameters = NewDomainError(DomainLearning, "no relevant parameters", nil)

	// Evidence failures
	ErrMalformedReward = NewDomainError(DomainEvidence, "reward variable name does not parse", nil)
)

// WrapWithDomain wraps an error with a domain classification.
func WrapWithDomain(domain Domain, message string, err error) error {
	if err == nil {
		return nil
	}

	// Don't reclassify already-classified errors
	var de *DomainError
	if errors.As(err, &de) {
		return &DomainError{
			Domain:     de.Domain,
			Message:    message,
			Underlying: err,
			Context:    de.Context,
		}
	}

	return NewDomainError(domain, message, err)
}
