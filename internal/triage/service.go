package triage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lucasmonteiro/triageflow/internal/classifier"
	"github.com/lucasmonteiro/triageflow/internal/queue"
	"github.com/lucasmonteiro/triageflow/internal/store"
	"github.com/lucasmonteiro/triageflow/pkg/models"
)

// Outcome is the tri-state result of one processing attempt.
type Outcome string

const (
	OutcomeSuccess Outcome = "SUCCESS"
	OutcomeFailed  Outcome = "FAILED"
	OutcomeSkipped Outcome = "SKIPPED"
)

// ProcessResult tells the consumer what to do with the delivery. Retryable is
// only meaningful for OutcomeFailed: a retryable failure goes back through the
// retry queue, a non-retryable one is dead-lettered immediately.
type ProcessResult struct {
	Outcome   Outcome
	Retryable bool
	Reason    string
}

func success() ProcessResult         { return ProcessResult{Outcome: OutcomeSuccess} }
func skipped(r string) ProcessResult { return ProcessResult{Outcome: OutcomeSkipped, Reason: r} }
func failed(r string, retryable bool) ProcessResult {
	return ProcessResult{Outcome: OutcomeFailed, Retryable: retryable, Reason: r}
}

// Service orchestrates the triage lifecycle: intake, queue routing,
// classification, cancellation and status queries.
type Service struct {
	store           store.Store
	queue           queue.Queue
	classifier      classifier.Classifier
	logger          *slog.Logger
	maxRetries      int
	classifyTimeout time.Duration
}

func NewService(st store.Store, q queue.Queue, cl classifier.Classifier, logger *slog.Logger, maxRetries int, classifyTimeout time.Duration) *Service {
	return &Service{
		store:           st,
		queue:           q,
		classifier:      cl,
		logger:          logger,
		maxRetries:      maxRetries,
		classifyTimeout: classifyTimeout,
	}
}

// Create validates and persists a new PENDING triage, then routes its
// envelope to the main or priority queue. The triage row is written before
// the enqueue so a queue outage never loses the intake; callers get the
// persisted triage back alongside the enqueue error.
func (s *Service) Create(ctx context.Context, patientID string, symptoms []models.Symptom) (*models.Triage, error) {
	patient, err := s.store.GetPatient(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("loading patient: %w", err)
	}

	triage, err := models.NewTriage(patientID, symptoms)
	if err != nil {
		return nil, err
	}
	if err := s.store.CreateTriage(ctx, triage); err != nil {
		return nil, fmt.Errorf("persisting triage: %w", err)
	}

	env := queue.NewEnvelope(triage, patient)
	if env.IsHighPriority() {
		err = s.queue.EnqueuePriority(ctx, env)
	} else {
		err = s.queue.Enqueue(ctx, queue.MainQueue, env)
	}
	if err != nil {
		s.logger.Error("triage persisted but enqueue failed",
			"triage_id", triage.ID, "error", err)
		return triage, fmt.Errorf("enqueueing triage: %w", err)
	}

	s.logger.Info("triage created",
		"triage_id", triage.ID,
		"patient_id", patientID,
		"high_priority", env.IsHighPriority())
	return triage, nil
}

// Process handles one delivery of a triage envelope. It is idempotent against
// redelivery: only PENDING and RETRYING triages are classified, anything else
// is acknowledged as a no-op. The persisted triage is the source of truth; the
// envelope's retry count only drives queue routing.
func (s *Service) Process(ctx context.Context, env *queue.Envelope) ProcessResult {
	triage, err := s.store.GetTriage(ctx, env.TriageID)
	if errors.Is(err, store.ErrNotFound) {
		return failed("triage not found", false)
	}
	if err != nil {
		return failed(fmt.Sprintf("loading triage: %v", err), true)
	}

	if triage.Status == models.StatusProcessing {
		// Another consumer holds this delivery; treat as duplicate.
		return skipped("triage already processing")
	}
	if triage.Status != models.StatusPending && triage.Status != models.StatusRetrying {
		return skipped(fmt.Sprintf("triage already %s", triage.Status))
	}

	patient, err := s.store.GetPatient(ctx, triage.PatientID)
	if errors.Is(err, store.ErrNotFound) {
		return failed("patient not found", false)
	}
	if err != nil {
		return failed(fmt.Sprintf("loading patient: %v", err), true)
	}

	// A RETRYING triage is re-entered in place; only a fresh PENDING one
	// passes through PROCESSING.
	if triage.Status == models.StatusPending {
		if err := triage.Start(); err != nil {
			return skipped(fmt.Sprintf("cannot start: %v", err))
		}
		if err := s.store.UpdateTriage(ctx, triage); err != nil {
			return failed(fmt.Sprintf("marking processing: %v", err), true)
		}
	}

	classifyCtx, cancel := context.WithTimeout(ctx, s.classifyTimeout)
	defer cancel()
	result, err := s.classifier.Classify(classifyCtx, triage, patient)
	if err != nil {
		return s.recordFailure(ctx, triage, err)
	}

	if err := triage.Complete(result.Priority, result.Recommendation, result.RawResponse, result.Confidence); err != nil {
		return s.recordFailure(ctx, triage, fmt.Errorf("completing triage: %w", err))
	}
	if err := s.store.UpdateTriage(ctx, triage); err != nil {
		return failed(fmt.Sprintf("persisting result: %v", err), true)
	}

	s.logger.Info("triage classified",
		"triage_id", triage.ID,
		"priority", triage.Priority,
		"confidence", triage.Confidence,
		"provider", s.classifier.Name())
	return success()
}

// recordFailure moves a failed attempt to RETRYING while budget remains, or to
// terminal FAILED on the attempt that exhausts it. The triage's own retry
// count decides, so redeliveries with a stale envelope cannot extend the
// budget.
func (s *Service) recordFailure(ctx context.Context, triage *models.Triage, cause error) ProcessResult {
	reason := cause.Error()

	if triage.RetryCount+1 >= s.maxRetries {
		if err := triage.Fail(reason); err != nil {
			return failed(fmt.Sprintf("marking failed: %v", err), false)
		}
		if err := s.store.UpdateTriage(ctx, triage); err != nil {
			return failed(fmt.Sprintf("persisting failure: %v", err), true)
		}
		s.logger.Error("triage failed permanently",
			"triage_id", triage.ID,
			"retry_count", triage.RetryCount,
			"error", reason)
		return failed(reason, false)
	}

	if err := triage.RecordFailure(reason); err != nil {
		return failed(fmt.Sprintf("marking retrying: %v", err), false)
	}
	if err := s.store.UpdateTriage(ctx, triage); err != nil {
		return failed(fmt.Sprintf("persisting retry state: %v", err), true)
	}
	s.logger.Warn("triage attempt failed, will retry",
		"triage_id", triage.ID,
		"retry_count", triage.RetryCount,
		"error", reason)
	return failed(reason, true)
}

// Cancel handles an external cancellation request. Only PENDING and RETRYING
// triages can be cancelled; the consumer's re-entry guard then drops any
// envelope still in flight for them.
func (s *Service) Cancel(ctx context.Context, id string) (*models.Triage, error) {
	triage, err := s.store.GetTriage(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := triage.Cancel(); err != nil {
		return nil, err
	}
	if err := s.store.UpdateTriage(ctx, triage); err != nil {
		return nil, fmt.Errorf("persisting cancellation: %w", err)
	}
	s.logger.Info("triage cancelled", "triage_id", id)
	return triage, nil
}

// Get returns one triage by id.
func (s *Service) Get(ctx context.Context, id string) (*models.Triage, error) {
	return s.store.GetTriage(ctx, id)
}

// ListByPatient returns all triages for one patient, newest first.
func (s *Service) ListByPatient(ctx context.Context, patientID string) ([]*models.Triage, error) {
	if _, err := s.store.GetPatient(ctx, patientID); err != nil {
		return nil, err
	}
	return s.store.ListTriagesByPatient(ctx, patientID)
}

// QueueStats exposes queue depths for the operational surface.
func (s *Service) QueueStats(ctx context.Context) (*queue.Stats, error) {
	return s.queue.Stats(ctx)
}
