package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/lucasmonteiro/triageflow/internal/api/response"
	"github.com/lucasmonteiro/triageflow/internal/queue"
	"github.com/lucasmonteiro/triageflow/internal/store"
	"github.com/lucasmonteiro/triageflow/pkg/models"
)

// TriageService defines the triage operations the HTTP layer depends on.
type TriageService interface {
	Create(ctx context.Context, patientID string, symptoms []models.Symptom) (*models.Triage, error)
	Get(ctx context.Context, id string) (*models.Triage, error)
	Cancel(ctx context.Context, id string) (*models.Triage, error)
	ListByPatient(ctx context.Context, patientID string) ([]*models.Triage, error)
	QueueStats(ctx context.Context) (*queue.Stats, error)
}

type triageView struct {
	ID                string           `json:"id"`
	PatientID         string           `json:"patient_id"`
	Status            string           `json:"status"`
	StatusDescription string           `json:"status_description"`
	Symptoms          []models.Symptom `json:"symptoms"`
	Priority          string           `json:"priority,omitempty"`
	PriorityColor     string           `json:"priority_color,omitempty"`
	MaxWaitMinutes    *int             `json:"max_wait_minutes,omitempty"`
	Recommendation    string           `json:"recommendation,omitempty"`
	Confidence        float64          `json:"confidence,omitempty"`
	RetryCount        int              `json:"retry_count"`
	ErrorMessage      string           `json:"error_message,omitempty"`
	WaitingMinutes    int64            `json:"waiting_minutes"`
	ProcessingSeconds *int64           `json:"processing_seconds,omitempty"`
	CreatedAt         string           `json:"created_at"`
	UpdatedAt         string           `json:"updated_at"`
}

func toTriageView(t *models.Triage) triageView {
	v := triageView{
		ID:                t.ID,
		PatientID:         t.PatientID,
		Status:            string(t.Status),
		StatusDescription: t.Status.Description(),
		Symptoms:          t.Symptoms,
		Recommendation:    t.Recommendation,
		Confidence:        t.Confidence,
		RetryCount:        t.RetryCount,
		ErrorMessage:      t.ErrorMessage,
		WaitingMinutes:    t.MinutesSinceCreation(),
		ProcessingSeconds: t.ProcessingSeconds(),
		CreatedAt:         t.CreatedAt.Format(time.RFC3339),
		UpdatedAt:         t.UpdatedAt.Format(time.RFC3339),
	}
	if t.Priority != "" {
		v.Priority = string(t.Priority)
		v.PriorityColor = t.Priority.Color()
		wait := t.Priority.MaxWaitMinutes()
		v.MaxWaitMinutes = &wait
	}
	return v
}

// NewCreateTriageHandler returns an http.HandlerFunc for POST /api/v1/triages.
// Accepted means the triage is persisted and enqueued; classification happens
// asynchronously.
func NewCreateTriageHandler(svc TriageService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			PatientID string `json:"patient_id"`
			Symptoms  []struct {
				Description string `json:"description"`
				Intensity   int    `json:"intensity"`
				Location    string `json:"location"`
			} `json:"symptoms"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if req.PatientID == "" {
			response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "patient_id is required", nil)
			return
		}
		if len(req.Symptoms) == 0 {
			response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "at least one symptom is required", nil)
			return
		}

		symptoms := make([]models.Symptom, 0, len(req.Symptoms))
		for i, s := range req.Symptoms {
			symptom, err := models.NewSymptom(s.Description, s.Intensity, s.Location)
			if err != nil {
				response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(),
					map[string]int{"symptom_index": i})
				return
			}
			symptoms = append(symptoms, symptom)
		}

		triage, err := svc.Create(r.Context(), req.PatientID, symptoms)
		switch {
		case errors.Is(err, store.ErrNotFound):
			response.Error(w, http.StatusNotFound, "PATIENT_NOT_FOUND", "Patient not found", nil)
			return
		case errors.Is(err, queue.ErrQueueUnavailable):
			// The row is persisted; intake itself failed, so the client must
			// resubmit once the queue is back.
			response.Error(w, http.StatusServiceUnavailable, "QUEUE_UNAVAILABLE",
				"Triage accepted but could not be queued; please retry", nil)
			return
		case err != nil:
			response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
			return
		}

		response.Accepted(w, triageView{
			ID:                triage.ID,
			PatientID:         triage.PatientID,
			Status:            string(triage.Status),
			StatusDescription: triage.Status.Description(),
			Symptoms:          triage.Symptoms,
			WaitingMinutes:    triage.MinutesSinceCreation(),
			CreatedAt:         triage.CreatedAt.Format(time.RFC3339),
			UpdatedAt:         triage.UpdatedAt.Format(time.RFC3339),
		})
	}
}

// NewGetTriageHandler returns an http.HandlerFunc for GET /api/v1/triages/{triageID}.
func NewGetTriageHandler(svc TriageService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "triageID")

		triage, err := svc.Get(r.Context(), id)
		if errors.Is(err, store.ErrNotFound) {
			response.Error(w, http.StatusNotFound, "TRIAGE_NOT_FOUND", "Triage not found", nil)
			return
		}
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Could not load triage", nil)
			return
		}

		response.JSON(w, toTriageView(triage))
	}
}

// NewCancelTriageHandler returns an http.HandlerFunc for
// POST /api/v1/triages/{triageID}/cancel.
func NewCancelTriageHandler(svc TriageService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "triageID")

		triage, err := svc.Cancel(r.Context(), id)
		switch {
		case errors.Is(err, store.ErrNotFound):
			response.Error(w, http.StatusNotFound, "TRIAGE_NOT_FOUND", "Triage not found", nil)
			return
		case errors.Is(err, models.ErrInvalidTransition):
			response.Error(w, http.StatusConflict, "CANNOT_CANCEL",
				"Triage can no longer be cancelled", nil)
			return
		case err != nil:
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Could not cancel triage", nil)
			return
		}

		response.JSON(w, toTriageView(triage))
	}
}

// NewListPatientTriagesHandler returns an http.HandlerFunc for
// GET /api/v1/patients/{patientID}/triages.
func NewListPatientTriagesHandler(svc TriageService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patientID := chi.URLParam(r, "patientID")

		triages, err := svc.ListByPatient(r.Context(), patientID)
		if errors.Is(err, store.ErrNotFound) {
			response.Error(w, http.StatusNotFound, "PATIENT_NOT_FOUND", "Patient not found", nil)
			return
		}
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Could not list triages", nil)
			return
		}

		views := make([]triageView, 0, len(triages))
		for _, t := range triages {
			views = append(views, toTriageView(t))
		}
		response.JSON(w, views)
	}
}
