package classifier

import (
	"context"

	"github.com/lucasmonteiro/triageflow/pkg/models"
)

// MockProvider satisfies Classifier for testing and local development.
type MockProvider struct {
	Name_        string
	ClassifyFunc func(ctx context.Context, triage *models.Triage, patient *models.Patient) (*Result, error)
}

func (m *MockProvider) Name() string { return m.Name_ }

func (m *MockProvider) Classify(ctx context.Context, triage *models.Triage, patient *models.Patient) (*Result, error) {
	if m.ClassifyFunc != nil {
		return m.ClassifyFunc(ctx, triage, patient)
	}
	return &Result{}, nil
}

// NewMockProvider returns a MockProvider with sensible default responses: any
// severe symptom classifies as EMERGENCY, otherwise URGENT.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		Name_: "mock",
		ClassifyFunc: func(_ context.Context, triage *models.Triage, _ *models.Patient) (*Result, error) {
			priority := models.PriorityUrgent
			if triage.HasSevereSymptoms() {
				priority = models.PriorityEmergency
			}
			return &Result{
				Priority:       priority,
				Recommendation: "Simulated recommendation from mock classifier",
				Reasoning:      "Rule-based classification for testing",
				Confidence:     0.85,
				RawResponse:    `{"priority":"` + string(priority) + `"}`,
			}, nil
		},
	}
}

// NewFailingProvider returns a MockProvider that always returns the given error.
func NewFailingProvider(err error) *MockProvider {
	return &MockProvider{
		Name_: "mock-failing",
		ClassifyFunc: func(_ context.Context, _ *models.Triage, _ *models.Patient) (*Result, error) {
			return nil, err
		},
	}
}

// NewTimeoutProvider returns a MockProvider that blocks until context is cancelled.
func NewTimeoutProvider() *MockProvider {
	return &MockProvider{
		Name_: "mock-timeout",
		ClassifyFunc: func(ctx context.Context, _ *models.Triage, _ *models.Patient) (*Result, error) {
			<-ctx.Done()
			return nil, ErrClassifierTimeout
		},
	}
}

// Compile-time check that MockProvider implements Classifier.
var _ Classifier = (*MockProvider)(nil)
