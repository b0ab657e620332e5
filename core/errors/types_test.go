package errors_test

import (
	stderrors "errors"
	"log/slog"
	"testing"

	coreerrors "github.com/adalundhe/volition/core/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDomain_String(t *testing.T) {
	assert.Equal(t, "query", coreerrors.DomainQuery.String())
	assert.Equal(t, "planning", coreerrors.DomainPlanning.String())
	assert.Equal(t, "learning", coreerrors.DomainLearning.String())
	assert.Equal(t, "evidence", coreerrors.DomainEvidence.String())
	assert.Equal(t, "unknown", coreerrors.Domain(99).String())
}

func TestDomainError_ErrorFormat(t *testing.T) {
	bare := coreerrors.NewDomainError(coreerrors.DomainPlanning, "recursion failed", nil)
	assert.Equal(t, "[planning] recursion failed", bare.Error())

	wrapped := coreerrors.NewDomainError(
		coreerrors.DomainQuery,
		"query failed",
		stderrors.New("boom"),
	)
	assert.Equal(t, "[query] query failed: boom", wrapped.Error())
}

func TestDomainError_UnwrapChain(t *testing.T) {
	underlying := stderrors.New("root cause")
	wrapped := coreerrors.NewDomainError(coreerrors.DomainLearning, "learn step", underlying)

	assert.ErrorIs(t, wrapped, underlying)
}

func TestDomainError_IsMatchesDomain(t *testing.T) {
	err := coreerrors.NewDomainError(coreerrors.DomainLearning, "missing snapshot", nil)

	assert.ErrorIs(t, err, coreerrors.ErrNoSnapshot)
	assert.NotErrorIs(t, err, coreerrors.ErrPlanningAborted)
}

func TestGetDomain(t *testing.T) {
	err := coreerrors.NewDomainError(coreerrors.DomainEvidence, "bad name", nil)
	assert.Equal(t, coreerrors.DomainEvidence, coreerrors.GetDomain(err))

	// Unclassified errors default to the query domain.
	assert.Equal(t, coreerrors.DomainQuery, coreerrors.GetDomain(stderrors.New("plain")))
}

func TestGetBehavior(t *testing.T) {
	planning := coreerrors.GetBehavior(coreerrors.ErrPlanningAborted)
	assert.True(t, planning.AbortsCycle)
	assert.Equal(t, slog.LevelWarn, planning.LogLevel)

	learning := coreerrors.GetBehavior(coreerrors.ErrNoSnapshot)
	assert.False(t, learning.AbortsCycle)
	assert.True(t, learning.Silent)
}

func TestRecoverable(t *testing.T) {
	assert.True(t, coreerrors.Recoverable(coreerrors.ErrDegenerateWeights))
	assert.False(t, coreerrors.Recoverable(stderrors.New("unclassified")))
}

func TestSilent(t *testing.T) {
	assert.True(t, coreerrors.Silent(coreerrors.ErrMalformedReward))
	assert.False(t, coreerrors.Silent(coreerrors.ErrPlanningAborted))
}

func TestWrapWithDomain(t *testing.T) {
	assert.NoError(t, coreerrors.WrapWithDomain(coreerrors.DomainQuery, "noop", nil))

	underlying := stderrors.New("boom")
	wrapped := coreerrors.WrapWithDomain(coreerrors.DomainPlanning, "expansion", underlying)
	assert.Equal(t, coreerrors.DomainPlanning, coreerrors.GetDomain(wrapped))
	assert.ErrorIs(t, wrapped, underlying)
}

func TestWrapWithDomain_PreservesClassification(t *testing.T) {
	inner := coreerrors.NewDomainError(coreerrors.DomainLearning, "no snapshot", nil)

	rewrapped := coreerrors.WrapWithDomain(coreerrors.DomainPlanning, "outer", inner)
	require.Error(t, rewrapped)
	assert.Equal(t, coreerrors.DomainLearning, coreerrors.GetDomain(rewrapped))
	assert.ErrorIs(t, rewrapped, coreerrors.ErrNoSnapshot)
}

func TestDomainError_WithContext(t *testing.T) {
	err := coreerrors.NewDomainError(coreerrors.DomainEvidence, "bad reward", nil).
		WithContext("variable", "R(malformed")

	assert.Equal(t, "R(malformed", err.Context["variable"])
}
