package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	maxSymptomsPerTriage = 10
	maxSymptomDescLen    = 500

	severeIntensityMin   = 7
	moderateIntensityMin = 4
)

// Symptom is a single reported complaint. Immutable after triage creation.
type Symptom struct {
	Description string `json:"description"`
	Intensity   int    `json:"intensity"` // 1-10
	Location    string `json:"location,omitempty"`
}

// NewSymptom validates and builds a Symptom.
func NewSymptom(description string, intensity int, location string) (Symptom, error) {
	if description == "" {
		return Symptom{}, errors.New("symptom description is required")
	}
	if len(description) > maxSymptomDescLen {
		return Symptom{}, fmt.Errorf("symptom description exceeds %d characters", maxSymptomDescLen)
	}
	if intensity < 1 || intensity > 10 {
		return Symptom{}, errors.New("symptom intensity must be between 1 and 10")
	}
	return Symptom{Description: description, Intensity: intensity, Location: location}, nil
}

func (s Symptom) IsSevere() bool   { return s.Intensity >= severeIntensityMin }
func (s Symptom) IsModerate() bool { return s.Intensity >= moderateIntensityMin && s.Intensity < severeIntensityMin }
func (s Symptom) IsMild() bool     { return s.Intensity >= 1 && s.Intensity < moderateIntensityMin }

// Triage is the aggregate root for one intake record. Status, retry count and
// the result fields change only through the transition methods below; the
// queue envelope derived from it is never authoritative.
type Triage struct {
	ID        string    `json:"id"`
	PatientID string    `json:"patient_id"`
	Symptoms  []Symptom `json:"symptoms"`

	Status         TriageStatus  `json:"status"`
	Priority       PriorityLevel `json:"priority,omitempty"`
	Recommendation string        `json:"ai_recommendation,omitempty"`
	Confidence     float64       `json:"confidence_score,omitempty"`
	RawResponse    string        `json:"raw_response,omitempty"`

	RetryCount   int    `json:"retry_count"`
	ErrorMessage string `json:"error_message,omitempty"`

	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
	ProcessingStartedAt   *time.Time `json:"processing_started_at,omitempty"`
	ProcessingCompletedAt *time.Time `json:"processing_completed_at,omitempty"`
}

// NewTriage creates a PENDING triage for the given patient.
func NewTriage(patientID string, symptoms []Symptom) (*Triage, error) {
	if patientID == "" {
		return nil, errors.New("patient id is required")
	}
	if len(symptoms) == 0 {
		return nil, errors.New("at least one symptom is required")
	}
	if len(symptoms) > maxSymptomsPerTriage {
		return nil, fmt.Errorf("at most %d symptoms per triage", maxSymptomsPerTriage)
	}

	now := time.Now().UTC()
	return &Triage{
		ID:        uuid.NewString(),
		PatientID: patientID,
		Symptoms:  append([]Symptom(nil), symptoms...),
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Start moves the triage from PENDING to PROCESSING and stamps
// processingStartedAt.
func (t *Triage) Start() error {
	next, err := t.Status.Transition(StatusProcessing)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	t.Status = next
	t.ProcessingStartedAt = &now
	t.UpdatedAt = now
	return nil
}

// Complete records a successful classification and moves the triage to its
// terminal COMPLETED state. The previous error message is cleared.
func (t *Triage) Complete(priority PriorityLevel, recommendation, rawResponse string, confidence float64) error {
	next, err := t.Status.Transition(StatusCompleted)
	if err != nil {
		return err
	}
	if _, err := ParsePriorityLevel(string(priority)); err != nil {
		return err
	}
	now := time.Now().UTC()
	t.Status = next
	t.Priority = priority
	t.Recommendation = recommendation
	t.RawResponse = rawResponse
	t.Confidence = confidence
	t.ErrorMessage = ""
	t.ProcessingCompletedAt = &now
	t.UpdatedAt = now
	return nil
}

// RecordFailure moves the triage to RETRYING after a transient failure,
// incrementing the retry count. Valid from PROCESSING and from RETRYING
// (a repeat failure on a redelivered job).
func (t *Triage) RecordFailure(reason string) error {
	next, err := t.Status.Transition(StatusRetrying)
	if err != nil {
		return err
	}
	t.Status = next
	t.RetryCount++
	t.ErrorMessage = reason
	t.UpdatedAt = time.Now().UTC()
	return nil
}

// Fail moves the triage to its terminal FAILED state, incrementing the retry
// count for the attempt that exhausted the budget.
func (t *Triage) Fail(reason string) error {
	next, err := t.Status.Transition(StatusFailed)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	t.Status = next
	t.RetryCount++
	t.ErrorMessage = reason
	t.ProcessingCompletedAt = &now
	t.UpdatedAt = now
	return nil
}

// Cancel handles an external cancellation request. Only PENDING and RETRYING
// triages can be cancelled.
func (t *Triage) Cancel() error {
	if !t.Status.IsCancellable() {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.Status, StatusCancelled)
	}
	t.Status = StatusCancelled
	t.UpdatedAt = time.Now().UTC()
	return nil
}

// CanBeCancelled reports whether a cancel request would succeed.
func (t *Triage) CanBeCancelled() bool { return t.Status.IsCancellable() }

// CanBeRetried reports whether the triage may be (re)submitted for another
// processing attempt.
func (t *Triage) CanBeRetried(maxRetries int) bool {
	if t.Status != StatusFailed && t.Status != StatusRetrying {
		return false
	}
	return t.RetryCount < maxRetries
}

// NeedsAttention flags failed triages and jobs stuck in PROCESSING longer
// than the stale threshold (a crashed worker never reported back).
func (t *Triage) NeedsAttention() bool {
	if t.Status == StatusFailed {
		return true
	}
	if t.Status == StatusProcessing && t.ProcessingStartedAt != nil {
		return time.Since(*t.ProcessingStartedAt) > staleProcessing
	}
	return false
}

// HasSevereSymptoms reports whether any symptom has intensity >= 7.
func (t *Triage) HasSevereSymptoms() bool {
	for _, s := range t.Symptoms {
		if s.IsSevere() {
			return true
		}
	}
	return false
}

// CountSevereSymptoms returns how many symptoms have intensity >= 7.
func (t *Triage) CountSevereSymptoms() int {
	n := 0
	for _, s := range t.Symptoms {
		if s.IsSevere() {
			n++
		}
	}
	return n
}

// CountModerateSymptoms returns how many symptoms have intensity 4-6.
func (t *Triage) CountModerateSymptoms() int {
	n := 0
	for _, s := range t.Symptoms {
		if s.IsModerate() {
			n++
		}
	}
	return n
}

// ProcessingSeconds is the wall time between processing start and completion,
// or nil if either timestamp is missing.
func (t *Triage) ProcessingSeconds() *int64 {
	if t.ProcessingStartedAt == nil || t.ProcessingCompletedAt == nil {
		return nil
	}
	secs := int64(t.ProcessingCompletedAt.Sub(*t.ProcessingStartedAt).Seconds())
	return &secs
}

// MinutesSinceCreation is used by status endpoints for wait-time display.
func (t *Triage) MinutesSinceCreation() int64 {
	return int64(time.Since(t.CreatedAt).Minutes())
}
