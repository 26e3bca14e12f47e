package classifier

import (
	"context"

	"github.com/lucasmonteiro/triageflow/pkg/models"
)

// Result is one urgency classification. Confidence is clamped to [0, 1]
// before the result leaves the provider.
type Result struct {
	Priority       models.PriorityLevel
	Recommendation string
	Reasoning      string
	Confidence     float64
	RawResponse    string
}

// Classifier produces an urgency classification for a triage. Implementations
// report failures through the sentinel errors in this package and never retry
// internally; redelivery is the queue's job.
type Classifier interface {
	Name() string
	Classify(ctx context.Context, triage *models.Triage, patient *models.Patient) (*Result, error)
}

// ClampConfidence normalizes a provider-reported confidence into [0, 1].
func ClampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
