package store

import (
	"context"
	"errors"

	"github.com/lucasmonteiro/triageflow/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// Store is the data access interface. All database operations go through here.
// The persisted triage row is the source of truth for status and retry count;
// queue state is bookkeeping only.
type Store interface {
	Ping(ctx context.Context) error

	CreatePatient(ctx context.Context, patient *models.Patient) error
	GetPatient(ctx context.Context, id string) (*models.Patient, error)
	GetPatientByCPF(ctx context.Context, cpf string) (*models.Patient, error)
	ListPatients(ctx context.Context, page, limit int) ([]*models.Patient, int, error)

	CreateTriage(ctx context.Context, triage *models.Triage) error
	GetTriage(ctx context.Context, id string) (*models.Triage, error)
	UpdateTriage(ctx context.Context, triage *models.Triage) error
	ListTriagesByPatient(ctx context.Context, patientID string) ([]*models.Triage, error)
	ListTriagesByStatus(ctx context.Context, status models.TriageStatus, limit int) ([]*models.Triage, error)
}
