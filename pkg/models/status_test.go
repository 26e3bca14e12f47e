package models_test

import (
	"testing"

	"github.com/lucasmonteiro/triageflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Transition table ---

func TestTransition_Allowed(t *testing.T) {
	cases := []struct {
		from, to models.TriageStatus
	}{
		{models.StatusPending, models.StatusProcessing},
		{models.StatusPending, models.StatusCancelled},
		{models.StatusProcessing, models.StatusCompleted},
		{models.StatusProcessing, models.StatusRetrying},
		{models.StatusProcessing, models.StatusFailed},
		{models.StatusRetrying, models.StatusCompleted},
		{models.StatusRetrying, models.StatusRetrying},
		{models.StatusRetrying, models.StatusFailed},
		{models.StatusRetrying, models.StatusCancelled},
	}
	for _, c := range cases {
		got, err := c.from.Transition(c.to)
		require.NoError(t, err, "%s -> %s", c.from, c.to)
		assert.Equal(t, c.to, got)
	}
}

func TestTransition_Forbidden(t *testing.T) {
	cases := []struct {
		from, to models.TriageStatus
	}{
		{models.StatusPending, models.StatusCompleted},
		{models.StatusPending, models.StatusFailed},
		{models.StatusPending, models.StatusRetrying},
		{models.StatusProcessing, models.StatusCancelled},
		{models.StatusProcessing, models.StatusPending},
		{models.StatusRetrying, models.StatusProcessing},
		{models.StatusRetrying, models.StatusPending},
	}
	for _, c := range cases {
		got, err := c.from.Transition(c.to)
		require.ErrorIs(t, err, models.ErrInvalidTransition, "%s -> %s", c.from, c.to)
		assert.Equal(t, c.from, got, "state must be unchanged on failure")
	}
}

func TestTransition_TerminalStatusesNeverMove(t *testing.T) {
	terminals := []models.TriageStatus{
		models.StatusCompleted, models.StatusFailed, models.StatusCancelled,
	}
	all := []models.TriageStatus{
		models.StatusPending, models.StatusProcessing, models.StatusCompleted,
		models.StatusFailed, models.StatusCancelled, models.StatusRetrying,
	}
	for _, from := range terminals {
		assert.True(t, from.IsTerminal())
		for _, to := range all {
			_, err := from.Transition(to)
			assert.ErrorIs(t, err, models.ErrInvalidTransition, "%s -> %s", from, to)
		}
	}
}

// --- Predicates ---

func TestStatusPredicates(t *testing.T) {
	assert.True(t, models.StatusPending.IsCancellable())
	assert.True(t, models.StatusRetrying.IsCancellable())
	assert.False(t, models.StatusProcessing.IsCancellable())
	assert.False(t, models.StatusCompleted.IsCancellable())

	assert.True(t, models.StatusProcessing.IsActive())
	assert.True(t, models.StatusRetrying.IsActive())
	assert.False(t, models.StatusPending.IsActive())

	assert.False(t, models.StatusPending.IsTerminal())
	assert.False(t, models.StatusProcessing.IsTerminal())
	assert.False(t, models.StatusRetrying.IsTerminal())
}

// --- Parsing ---

func TestParseStatus(t *testing.T) {
	assert.Equal(t, models.StatusCompleted, models.ParseStatus("COMPLETED"))
	assert.Equal(t, models.StatusRetrying, models.ParseStatus(" retrying "))
	assert.Equal(t, models.StatusPending, models.ParseStatus(""))
	assert.Equal(t, models.StatusPending, models.ParseStatus("garbage"))
}
