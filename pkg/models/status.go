package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidTransition is returned when a status change violates the
// transition table. The triage is left unchanged.
var ErrInvalidTransition = errors.New("invalid status transition")

// TriageStatus is the lifecycle state of a triage.
type TriageStatus string

const (
	StatusPending    TriageStatus = "PENDING"
	StatusProcessing TriageStatus = "PROCESSING"
	StatusCompleted  TriageStatus = "COMPLETED"
	StatusFailed     TriageStatus = "FAILED"
	StatusCancelled  TriageStatus = "CANCELLED"
	StatusRetrying   TriageStatus = "RETRYING"
)

// validTransitions is the full transition table. Terminal statuses have no
// entry. RETRYING -> RETRYING records a repeat failure while retries remain.
var validTransitions = map[TriageStatus][]TriageStatus{
	StatusPending:    {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusCompleted, StatusRetrying, StatusFailed},
	StatusRetrying:   {StatusCompleted, StatusRetrying, StatusFailed, StatusCancelled},
}

// CanTransitionTo reports whether the table permits moving to target.
func (s TriageStatus) CanTransitionTo(target TriageStatus) bool {
	for _, allowed := range validTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// Transition validates the move and returns the target status, or
// ErrInvalidTransition with both statuses in the message.
func (s TriageStatus) Transition(target TriageStatus) (TriageStatus, error) {
	if !s.CanTransitionTo(target) {
		return s, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s, target)
	}
	return target, nil
}

// IsTerminal reports whether no further transition is permitted.
func (s TriageStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// IsActive reports whether a worker currently owns or is retrying the triage.
func (s TriageStatus) IsActive() bool {
	return s == StatusProcessing || s == StatusRetrying
}

// IsCancellable reports whether an external cancel request is allowed.
func (s TriageStatus) IsCancellable() bool {
	return s == StatusPending || s == StatusRetrying
}

// Description is the human-readable progress text shown on status endpoints.
func (s TriageStatus) Description() string {
	switch s {
	case StatusPending:
		return "Queued and waiting for processing"
	case StatusProcessing:
		return "Being analyzed by the AI classifier"
	case StatusCompleted:
		return "Processed successfully; result available"
	case StatusFailed:
		return "Could not be processed after all retry attempts"
	case StatusCancelled:
		return "Cancelled before completion"
	case StatusRetrying:
		return "Reprocessing after a transient failure"
	default:
		return "Unknown status"
	}
}

// ParseStatus normalizes a stored status string. Empty or unknown values fall
// back to PENDING, matching how legacy rows without a status are treated.
func ParseStatus(s string) TriageStatus {
	switch TriageStatus(strings.ToUpper(strings.TrimSpace(s))) {
	case StatusPending:
		return StatusPending
	case StatusProcessing:
		return StatusProcessing
	case StatusCompleted:
		return StatusCompleted
	case StatusFailed:
		return StatusFailed
	case StatusCancelled:
		return StatusCancelled
	case StatusRetrying:
		return StatusRetrying
	default:
		return StatusPending
	}
}

// staleProcessing is how long a triage may sit in PROCESSING before it is
// considered stuck (crashed worker) and flagged for attention.
const staleProcessing = 10 * time.Minute
