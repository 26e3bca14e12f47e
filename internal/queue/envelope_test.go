package queue

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/lucasmonteiro/triageflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTriage(t *testing.T, intensity int) (*models.Triage, *models.Patient) {
	t.Helper()
	sym, err := models.NewSymptom("chest pain", intensity, "chest")
	require.NoError(t, err)
	tri, err := models.NewTriage("patient-1", []models.Symptom{sym})
	require.NoError(t, err)
	p, err := models.NewPatient("Maria Silva", "52998224725",
		time.Date(1985, 6, 15, 0, 0, 0, 0, time.UTC), "F", "", "")
	require.NoError(t, err)
	return tri, p
}

func TestNewEnvelope(t *testing.T) {
	tri, p := testTriage(t, 5)
	env := NewEnvelope(tri, p)

	assert.Equal(t, tri.ID, env.TriageID)
	assert.Equal(t, "patient-1", env.PatientID)
	assert.Equal(t, []string{"chest pain (chest)"}, env.Symptoms)
	assert.Equal(t, DefaultPriority, env.Priority)
	assert.False(t, env.IsHighPriority())
	assert.Zero(t, env.RetryCount)
}

func TestNewEnvelope_SevereSymptomIsHighPriority(t *testing.T) {
	tri, p := testTriage(t, 9)
	env := NewEnvelope(tri, p)

	assert.Equal(t, HighPriority, env.Priority)
	assert.True(t, env.IsHighPriority())
}

func TestEnvelope_WithIncrementedRetry(t *testing.T) {
	tri, p := testTriage(t, 5)
	env := NewEnvelope(tri, p)

	next := env.WithIncrementedRetry()
	assert.Equal(t, 1, next.RetryCount)
	assert.NotNil(t, next.LastRetryAt)
	assert.Zero(t, env.RetryCount, "original is untouched")
	assert.Nil(t, env.LastRetryAt)

	next.Symptoms[0] = "mutated"
	assert.Equal(t, "chest pain (chest)", env.Symptoms[0], "symptom slice is copied")
}

func TestEnvelope_RetryDelay(t *testing.T) {
	cases := []struct {
		retryCount int
		want       time.Duration
	}{
		{0, 10 * time.Second},
		{1, 20 * time.Second},
		{2, 40 * time.Second},
		{3, 80 * time.Second},
		{4, 160 * time.Second},
		{5, 300 * time.Second},
		{10, 300 * time.Second},
		{64, 300 * time.Second},
	}
	for _, tc := range cases {
		env := &Envelope{RetryCount: tc.retryCount}
		assert.Equal(t, tc.want, env.RetryDelay(), "retryCount=%d", tc.retryCount)
	}
}

func TestEnvelope_CanRetry(t *testing.T) {
	env := &Envelope{RetryCount: 2}
	assert.True(t, env.CanRetry(3))
	env.RetryCount = 3
	assert.False(t, env.CanRetry(3))
}

func TestEnvelope_JSONFieldNames(t *testing.T) {
	tri, p := testTriage(t, 5)
	raw, err := NewEnvelope(tri, p).marshal()
	require.NoError(t, err)

	var fields map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(raw), &fields))
	for _, name := range []string{"triageId", "patientId", "symptoms", "patientAge", "createdAt", "priority", "retryCount"} {
		assert.Contains(t, fields, name)
	}
	assert.NotContains(t, fields, "lastRetryAt", "omitted until first retry")

	back, err := unmarshalEnvelope(raw)
	require.NoError(t, err)
	assert.Equal(t, tri.ID, back.TriageID)
}
