package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lucasmonteiro/triageflow/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Patients ---

func (s *PostgresStore) CreatePatient(ctx context.Context, p *models.Patient) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO patients (id, name, cpf, birth_date, gender, phone, email, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		p.ID, p.Name, p.CPF, p.BirthDate, p.Gender, p.Phone, p.Email, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create patient: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPatient(ctx context.Context, id string) (*models.Patient, error) {
	var p models.Patient
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, cpf, birth_date, gender, phone, email, created_at, updated_at
		 FROM patients WHERE id = $1`, id,
	).Scan(&p.ID, &p.Name, &p.CPF, &p.BirthDate, &p.Gender, &p.Phone, &p.Email, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get patient: %w", err)
	}
	return &p, nil
}

func (s *PostgresStore) GetPatientByCPF(ctx context.Context, cpf string) (*models.Patient, error) {
	var p models.Patient
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, cpf, birth_date, gender, phone, email, created_at, updated_at
		 FROM patients WHERE cpf = $1`, cpf,
	).Scan(&p.ID, &p.Name, &p.CPF, &p.BirthDate, &p.Gender, &p.Phone, &p.Email, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get patient by cpf: %w", err)
	}
	return &p, nil
}

func (s *PostgresStore) ListPatients(ctx context.Context, page, limit int) ([]*models.Patient, int, error) {
	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM patients`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count patients: %w", err)
	}

	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * limit

	rows, err := s.pool.Query(ctx,
		`SELECT id, name, cpf, birth_date, gender, phone, email, created_at, updated_at
		 FROM patients ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list patients: %w", err)
	}
	defer rows.Close()

	var patients []*models.Patient
	for rows.Next() {
		var p models.Patient
		if err := rows.Scan(&p.ID, &p.Name, &p.CPF, &p.BirthDate, &p.Gender, &p.Phone, &p.Email,
			&p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan patient: %w", err)
		}
		patients = append(patients, &p)
	}
	return patients, total, rows.Err()
}

// --- Triages ---

const triageColumns = `id, patient_id, symptoms, status, priority, recommendation, confidence,
	raw_response, retry_count, error_message, created_at, updated_at,
	processing_started_at, processing_completed_at`

func (s *PostgresStore) CreateTriage(ctx context.Context, t *models.Triage) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO triages (`+triageColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		t.ID, t.PatientID, t.Symptoms, t.Status, nullableString(string(t.Priority)),
		t.Recommendation, t.Confidence, t.RawResponse, t.RetryCount, t.ErrorMessage,
		t.CreatedAt, t.UpdatedAt, t.ProcessingStartedAt, t.ProcessingCompletedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create triage: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetTriage(ctx context.Context, id string) (*models.Triage, error) {
	t, err := scanTriage(s.pool.QueryRow(ctx,
		`SELECT `+triageColumns+` FROM triages WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get triage: %w", err)
	}
	return t, nil
}

// UpdateTriage persists the aggregate's mutable fields. The WHERE clause pins
// the previous updated_at so concurrent writers cannot silently overwrite each
// other; losers get ErrNotFound and must re-read.
func (s *PostgresStore) UpdateTriage(ctx context.Context, t *models.Triage) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE triages SET status = $2, priority = $3, recommendation = $4, confidence = $5,
		   raw_response = $6, retry_count = $7, error_message = $8, updated_at = $9,
		   processing_started_at = $10, processing_completed_at = $11
		 WHERE id = $1 AND updated_at <= $9`,
		t.ID, t.Status, nullableString(string(t.Priority)), t.Recommendation, t.Confidence,
		t.RawResponse, t.RetryCount, t.ErrorMessage, t.UpdatedAt,
		t.ProcessingStartedAt, t.ProcessingCompletedAt)
	if err != nil {
		return fmt.Errorf("update triage: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListTriagesByPatient(ctx context.Context, patientID string) ([]*models.Triage, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+triageColumns+` FROM triages WHERE patient_id = $1 ORDER BY created_at DESC`, patientID)
	if err != nil {
		return nil, fmt.Errorf("list triages by patient: %w", err)
	}
	defer rows.Close()
	return collectTriages(rows)
}

func (s *PostgresStore) ListTriagesByStatus(ctx context.Context, status models.TriageStatus, limit int) ([]*models.Triage, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+triageColumns+` FROM triages WHERE status = $1 ORDER BY created_at ASC LIMIT $2`,
		status, limit)
	if err != nil {
		return nil, fmt.Errorf("list triages by status: %w", err)
	}
	defer rows.Close()
	return collectTriages(rows)
}

func collectTriages(rows pgx.Rows) ([]*models.Triage, error) {
	var triages []*models.Triage
	for rows.Next() {
		t, err := scanTriage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan triage: %w", err)
		}
		triages = append(triages, t)
	}
	return triages, rows.Err()
}

func scanTriage(row pgx.Row) (*models.Triage, error) {
	var t models.Triage
	var priority *string
	err := row.Scan(&t.ID, &t.PatientID, &t.Symptoms, &t.Status, &priority,
		&t.Recommendation, &t.Confidence, &t.RawResponse, &t.RetryCount, &t.ErrorMessage,
		&t.CreatedAt, &t.UpdatedAt, &t.ProcessingStartedAt, &t.ProcessingCompletedAt)
	if err != nil {
		return nil, err
	}
	if priority != nil {
		t.Priority = models.PriorityLevel(*priority)
	}
	return &t, nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}
