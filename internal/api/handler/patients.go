package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/lucasmonteiro/triageflow/internal/api/response"
	"github.com/lucasmonteiro/triageflow/internal/store"
	"github.com/lucasmonteiro/triageflow/pkg/models"
)

// PatientStore defines the store operations the patient handlers depend on.
type PatientStore interface {
	CreatePatient(ctx context.Context, patient *models.Patient) error
	GetPatient(ctx context.Context, id string) (*models.Patient, error)
	ListPatients(ctx context.Context, page, limit int) ([]*models.Patient, int, error)
}

type patientView struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CPF       string `json:"cpf"`
	BirthDate string `json:"birth_date"`
	Gender    string `json:"gender"`
	Phone     string `json:"phone,omitempty"`
	Email     string `json:"email,omitempty"`
	Age       int    `json:"age"`
	CreatedAt string `json:"created_at"`
}

func toPatientView(p *models.Patient) patientView {
	return patientView{
		ID:        p.ID,
		Name:      p.Name,
		CPF:       p.CPF,
		BirthDate: p.BirthDate.Format("2006-01-02"),
		Gender:    p.Gender,
		Phone:     p.Phone,
		Email:     p.Email,
		Age:       p.Age(),
		CreatedAt: p.CreatedAt.Format(time.RFC3339),
	}
}

// NewCreatePatientHandler returns an http.HandlerFunc for POST /api/v1/patients.
func NewCreatePatientHandler(st PatientStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Name      string `json:"name"`
			CPF       string `json:"cpf"`
			BirthDate string `json:"birth_date"`
			Gender    string `json:"gender"`
			Phone     string `json:"phone"`
			Email     string `json:"email"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		birthDate, err := time.Parse("2006-01-02", req.BirthDate)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "birth_date must be YYYY-MM-DD", nil)
			return
		}

		patient, err := models.NewPatient(req.Name, req.CPF, birthDate, req.Gender, req.Phone, req.Email)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
			return
		}

		if err := st.CreatePatient(r.Context(), patient); err != nil {
			if errors.Is(err, store.ErrDuplicateKey) {
				response.Error(w, http.StatusConflict, "DUPLICATE_CPF", "A patient with this CPF already exists", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Could not create patient", nil)
			return
		}

		response.Created(w, toPatientView(patient))
	}
}

// NewGetPatientHandler returns an http.HandlerFunc for GET /api/v1/patients/{patientID}.
func NewGetPatientHandler(st PatientStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "patientID")

		patient, err := st.GetPatient(r.Context(), id)
		if errors.Is(err, store.ErrNotFound) {
			response.Error(w, http.StatusNotFound, "PATIENT_NOT_FOUND", "Patient not found", nil)
			return
		}
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Could not load patient", nil)
			return
		}

		response.JSON(w, toPatientView(patient))
	}
}

// NewListPatientsHandler returns an http.HandlerFunc for GET /api/v1/patients.
func NewListPatientsHandler(st PatientStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		if page <= 0 {
			page = 1
		}
		if limit <= 0 {
			limit = 20
		}
		if limit > 100 {
			limit = 100
		}

		patients, total, err := st.ListPatients(r.Context(), page, limit)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Could not list patients", nil)
			return
		}

		views := make([]patientView, 0, len(patients))
		for _, p := range patients {
			views = append(views, toPatientView(p))
		}
		response.Collection(w, views, response.PaginationMeta{
			Page:    page,
			Limit:   limit,
			Total:   total,
			HasNext: page*limit < total,
		})
	}
}
