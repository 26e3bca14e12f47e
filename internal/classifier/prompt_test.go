package classifier

import (
	"testing"
	"time"

	"github.com/lucasmonteiro/triageflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildPrompt(t *testing.T) {
	severe, err := models.NewSymptom("intense chest pain", 9, "chest")
	require.NoError(t, err)
	moderate, err := models.NewSymptom("nausea", 5, "")
	require.NoError(t, err)
	tri, err := models.NewTriage("patient-1", []models.Symptom{severe, moderate})
	require.NoError(t, err)

	elderly, err := models.NewPatient("José Souza", "52998224725",
		time.Now().UTC().AddDate(-70, 0, 0), "M", "", "")
	require.NoError(t, err)

	prompt := BuildPrompt(tri, elderly)

	assert.Contains(t, prompt, "Manchester Triage Protocol")
	assert.Contains(t, prompt, "EMERGENCY|VERY_URGENT|URGENT|LESS_URGENT|NON_URGENT")
	assert.Contains(t, prompt, "- Age: 70 years")
	assert.Contains(t, prompt, "elderly patient")
	assert.NotContains(t, prompt, "pediatric patient")
	assert.Contains(t, prompt, "1. Description: intense chest pain | Intensity: 9/10 | Location: chest [SEVERE SYMPTOM]")
	assert.Contains(t, prompt, "2. Description: nausea | Intensity: 5/10 [MODERATE SYMPTOM]")
	assert.Contains(t, prompt, "- Severe symptoms: 1")
	assert.Contains(t, prompt, "- Moderate symptoms: 1")
}

func TestBuildPrompt_Child(t *testing.T) {
	sym, err := models.NewSymptom("high fever", 6, "")
	require.NoError(t, err)
	tri, err := models.NewTriage("patient-1", []models.Symptom{sym})
	require.NoError(t, err)

	child, err := models.NewPatient("Ana Lima", "52998224725",
		time.Now().UTC().AddDate(-5, 0, 0), "F", "", "")
	require.NoError(t, err)

	prompt := BuildPrompt(tri, child)
	assert.Contains(t, prompt, "pediatric patient")
	assert.NotContains(t, prompt, "elderly patient")
}

func TestClampConfidence(t *testing.T) {
	assert.Equal(t, 0.0, ClampConfidence(-0.5))
	assert.Equal(t, 0.42, ClampConfidence(0.42))
	assert.Equal(t, 1.0, ClampConfidence(1.7))
}
