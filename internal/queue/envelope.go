package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/lucasmonteiro/triageflow/pkg/models"
)

const (
	// DefaultPriority is the routing hint for ordinary envelopes; 1 is the
	// highest urgency.
	DefaultPriority = 3
	HighPriority    = 1

	maxRetryDelay  = 300 * time.Second
	baseRetryDelay = 10 * time.Second
)

// Envelope is the wire format sent through the queues. It is a denormalized
// projection of a triage, owned by the queue subsystem and discarded once the
// triage reaches a terminal status; the persisted Triage stays authoritative.
type Envelope struct {
	TriageID              string     `json:"triageId"`
	PatientID             string     `json:"patientId"`
	Symptoms              []string   `json:"symptoms"`
	PatientAge            int        `json:"patientAge"`
	PatientWeight         float64    `json:"patientWeight,omitempty"`
	PatientHeight         float64    `json:"patientHeight,omitempty"`
	PreExistingConditions []string   `json:"preExistingConditions,omitempty"`
	CreatedAt             time.Time  `json:"createdAt"`
	Priority              int        `json:"priority"`
	RetryCount            int        `json:"retryCount"`
	LastRetryAt           *time.Time `json:"lastRetryAt,omitempty"`
}

// NewEnvelope projects a triage and its patient into a queue envelope.
// Any severe symptom makes the envelope high priority.
func NewEnvelope(t *models.Triage, p *models.Patient) *Envelope {
	symptoms := make([]string, 0, len(t.Symptoms))
	for _, s := range t.Symptoms {
		desc := s.Description
		if s.Location != "" {
			desc = fmt.Sprintf("%s (%s)", s.Description, s.Location)
		}
		symptoms = append(symptoms, desc)
	}

	priority := DefaultPriority
	if t.HasSevereSymptoms() {
		priority = HighPriority
	}

	return &Envelope{
		TriageID:   t.ID,
		PatientID:  t.PatientID,
		Symptoms:   symptoms,
		PatientAge: p.Age(),
		CreatedAt:  t.CreatedAt,
		Priority:   priority,
		RetryCount: 0,
	}
}

// WithIncrementedRetry returns a copy with the retry count advanced and the
// retry timestamp stamped.
func (e *Envelope) WithIncrementedRetry() *Envelope {
	now := time.Now().UTC()
	clone := *e
	clone.Symptoms = append([]string(nil), e.Symptoms...)
	clone.PreExistingConditions = append([]string(nil), e.PreExistingConditions...)
	clone.RetryCount = e.RetryCount + 1
	clone.LastRetryAt = &now
	return &clone
}

// CanRetry reports whether another delivery attempt is within budget.
func (e *Envelope) CanRetry(maxRetries int) bool {
	return e.RetryCount < maxRetries
}

// IsHighPriority reports whether the envelope sorts into the priority lane.
func (e *Envelope) IsHighPriority() bool {
	return e.Priority <= 2
}

// RetryDelay is the backoff before the next delivery:
// min(300s, 10s * 2^retryCount).
func (e *Envelope) RetryDelay() time.Duration {
	d := baseRetryDelay << uint(e.RetryCount)
	if d <= 0 || d > maxRetryDelay {
		return maxRetryDelay
	}
	return d
}

func (e *Envelope) marshal() (string, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("marshal envelope: %w", err)
	}
	return string(b), nil
}

func unmarshalEnvelope(raw string) (*Envelope, error) {
	var e Envelope
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}
	return &e, nil
}
