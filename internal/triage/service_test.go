package triage_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucasmonteiro/triageflow/internal/classifier"
	"github.com/lucasmonteiro/triageflow/internal/queue"
	"github.com/lucasmonteiro/triageflow/internal/store"
	"github.com/lucasmonteiro/triageflow/internal/triage"
	"github.com/lucasmonteiro/triageflow/pkg/models"
)

// fakeStore is an in-memory store.Store for service tests.
type fakeStore struct {
	mu       sync.Mutex
	patients map[string]*models.Patient
	triages  map[string]*models.Triage
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		patients: make(map[string]*models.Patient),
		triages:  make(map[string]*models.Triage),
	}
}

func (f *fakeStore) Ping(context.Context) error { return nil }

func (f *fakeStore) CreatePatient(_ context.Context, p *models.Patient) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.patients[p.ID] = p
	return nil
}

func (f *fakeStore) GetPatient(_ context.Context, id string) (*models.Patient, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.patients[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return p, nil
}

func (f *fakeStore) GetPatientByCPF(_ context.Context, cpf string) (*models.Patient, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.patients {
		if p.CPF == cpf {
			return p, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeStore) ListPatients(context.Context, int, int) ([]*models.Patient, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Patient
	for _, p := range f.patients {
		out = append(out, p)
	}
	return out, len(out), nil
}

func (f *fakeStore) CreateTriage(_ context.Context, t *models.Triage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	clone := *t
	f.triages[t.ID] = &clone
	return nil
}

func (f *fakeStore) GetTriage(_ context.Context, id string) (*models.Triage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.triages[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	clone := *t
	return &clone, nil
}

func (f *fakeStore) UpdateTriage(_ context.Context, t *models.Triage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.triages[t.ID]; !ok {
		return store.ErrNotFound
	}
	clone := *t
	f.triages[t.ID] = &clone
	return nil
}

func (f *fakeStore) ListTriagesByPatient(_ context.Context, patientID string) ([]*models.Triage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Triage
	for _, t := range f.triages {
		if t.PatientID == patientID {
			clone := *t
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (f *fakeStore) ListTriagesByStatus(_ context.Context, status models.TriageStatus, _ int) ([]*models.Triage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Triage
	for _, t := range f.triages {
		if t.Status == status {
			clone := *t
			out = append(out, &clone)
		}
	}
	return out, nil
}

var _ store.Store = (*fakeStore)(nil)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setupService(t *testing.T, cl classifier.Classifier) (*triage.Service, *fakeStore, *queue.RedisQueue) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	q := queue.NewRedisQueueWithClient(client, 3)

	fs := newFakeStore()
	svc := triage.NewService(fs, q, cl, testLogger(), 3, time.Second)
	return svc, fs, q
}

func addPatient(t *testing.T, fs *fakeStore) *models.Patient {
	t.Helper()
	p, err := models.NewPatient("Maria Silva", "52998224725",
		time.Date(1985, 6, 15, 0, 0, 0, 0, time.UTC), "F", "", "")
	require.NoError(t, err)
	require.NoError(t, fs.CreatePatient(context.Background(), p))
	return p
}

func symptom(t *testing.T, desc string, intensity int) models.Symptom {
	t.Helper()
	s, err := models.NewSymptom(desc, intensity, "")
	require.NoError(t, err)
	return s
}

func TestService_Create(t *testing.T) {
	svc, fs, q := setupService(t, classifier.NewMockProvider())
	ctx := context.Background()
	p := addPatient(t, fs)

	tri, err := svc.Create(ctx, p.ID, []models.Symptom{symptom(t, "mild cough", 3)})
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, tri.Status)

	stored, err := fs.GetTriage(ctx, tri.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, stored.Status)

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.Pending)
	assert.EqualValues(t, 0, stats.Priority)
}

func TestService_CreateSevereGoesToPriorityQueue(t *testing.T) {
	svc, fs, q := setupService(t, classifier.NewMockProvider())
	ctx := context.Background()
	p := addPatient(t, fs)

	_, err := svc.Create(ctx, p.ID, []models.Symptom{symptom(t, "intense chest pain", 9)})
	require.NoError(t, err)

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 0, stats.Pending)
	assert.EqualValues(t, 1, stats.Priority)
}

func TestService_CreateUnknownPatient(t *testing.T) {
	svc, _, _ := setupService(t, classifier.NewMockProvider())

	_, err := svc.Create(context.Background(), "missing", []models.Symptom{symptom(t, "fever", 4)})
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestService_ProcessSuccess(t *testing.T) {
	svc, fs, q := setupService(t, classifier.NewMockProvider())
	ctx := context.Background()
	p := addPatient(t, fs)

	tri, err := svc.Create(ctx, p.ID, []models.Symptom{symptom(t, "intense chest pain", 9)})
	require.NoError(t, err)

	envs, err := q.ReceivePriorityBatch(ctx, 1)
	require.NoError(t, err)
	require.Len(t, envs, 1)

	result := svc.Process(ctx, envs[0])
	assert.Equal(t, triage.OutcomeSuccess, result.Outcome)

	stored, err := fs.GetTriage(ctx, tri.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, stored.Status)
	assert.Equal(t, models.PriorityEmergency, stored.Priority)
	assert.NotEmpty(t, stored.Recommendation)
	assert.NotNil(t, stored.ProcessingCompletedAt)
}

func TestService_ProcessDuplicateDeliveryIsSkipped(t *testing.T) {
	svc, fs, q := setupService(t, classifier.NewMockProvider())
	ctx := context.Background()
	p := addPatient(t, fs)

	tri, err := svc.Create(ctx, p.ID, []models.Symptom{symptom(t, "fever", 4)})
	require.NoError(t, err)

	env, err := q.Receive(ctx, queue.MainQueue)
	require.NoError(t, err)
	require.NotNil(t, env)

	first := svc.Process(ctx, env)
	assert.Equal(t, triage.OutcomeSuccess, first.Outcome)

	second := svc.Process(ctx, env)
	assert.Equal(t, triage.OutcomeSkipped, second.Outcome)

	stored, err := fs.GetTriage(ctx, tri.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, stored.Status)
}

func TestService_ProcessCancelledIsSkipped(t *testing.T) {
	svc, fs, q := setupService(t, classifier.NewMockProvider())
	ctx := context.Background()
	p := addPatient(t, fs)

	tri, err := svc.Create(ctx, p.ID, []models.Symptom{symptom(t, "fever", 4)})
	require.NoError(t, err)
	_, err = svc.Cancel(ctx, tri.ID)
	require.NoError(t, err)

	env, err := q.Receive(ctx, queue.MainQueue)
	require.NoError(t, err)

	result := svc.Process(ctx, env)
	assert.Equal(t, triage.OutcomeSkipped, result.Outcome)

	stored, err := fs.GetTriage(ctx, tri.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, stored.Status)
}

func TestService_ProcessUnknownTriage(t *testing.T) {
	svc, _, _ := setupService(t, classifier.NewMockProvider())

	result := svc.Process(context.Background(), &queue.Envelope{TriageID: "missing"})
	assert.Equal(t, triage.OutcomeFailed, result.Outcome)
	assert.False(t, result.Retryable)
}

func TestService_ProcessTransientFailureMovesToRetrying(t *testing.T) {
	svc, fs, q := setupService(t, classifier.NewFailingProvider(classifier.ErrClassifierUnavailable))
	ctx := context.Background()
	p := addPatient(t, fs)

	tri, err := svc.Create(ctx, p.ID, []models.Symptom{symptom(t, "fever", 4)})
	require.NoError(t, err)

	env, err := q.Receive(ctx, queue.MainQueue)
	require.NoError(t, err)

	result := svc.Process(ctx, env)
	assert.Equal(t, triage.OutcomeFailed, result.Outcome)
	assert.True(t, result.Retryable)

	stored, err := fs.GetTriage(ctx, tri.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRetrying, stored.Status)
	assert.Equal(t, 1, stored.RetryCount)
	assert.NotEmpty(t, stored.ErrorMessage)
}

func TestService_ProcessExhaustedBudgetFailsTerminally(t *testing.T) {
	svc, fs, q := setupService(t, classifier.NewFailingProvider(classifier.ErrClassifierUnavailable))
	ctx := context.Background()
	p := addPatient(t, fs)

	tri, err := svc.Create(ctx, p.ID, []models.Symptom{symptom(t, "fever", 4)})
	require.NoError(t, err)

	env, err := q.Receive(ctx, queue.MainQueue)
	require.NoError(t, err)

	// Three deliveries, three classification attempts, then terminal.
	first := svc.Process(ctx, env)
	assert.True(t, first.Retryable)
	second := svc.Process(ctx, env.WithIncrementedRetry())
	assert.True(t, second.Retryable)
	third := svc.Process(ctx, env.WithIncrementedRetry().WithIncrementedRetry())
	assert.Equal(t, triage.OutcomeFailed, third.Outcome)
	assert.False(t, third.Retryable)

	stored, err := fs.GetTriage(ctx, tri.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, stored.Status)
	assert.Equal(t, 3, stored.RetryCount)
	assert.NotNil(t, stored.ProcessingCompletedAt)
}

func TestService_Cancel(t *testing.T) {
	svc, fs, _ := setupService(t, classifier.NewMockProvider())
	ctx := context.Background()
	p := addPatient(t, fs)

	tri, err := svc.Create(ctx, p.ID, []models.Symptom{symptom(t, "fever", 4)})
	require.NoError(t, err)

	cancelled, err := svc.Cancel(ctx, tri.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, cancelled.Status)

	_, err = svc.Cancel(ctx, tri.ID)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
}

func TestService_CancelCompletedFails(t *testing.T) {
	svc, fs, q := setupService(t, classifier.NewMockProvider())
	ctx := context.Background()
	p := addPatient(t, fs)

	tri, err := svc.Create(ctx, p.ID, []models.Symptom{symptom(t, "fever", 4)})
	require.NoError(t, err)
	env, err := q.Receive(ctx, queue.MainQueue)
	require.NoError(t, err)
	require.Equal(t, triage.OutcomeSuccess, svc.Process(ctx, env).Outcome)

	_, err = svc.Cancel(ctx, tri.ID)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
}

func TestService_ListByPatient(t *testing.T) {
	svc, fs, _ := setupService(t, classifier.NewMockProvider())
	ctx := context.Background()
	p := addPatient(t, fs)

	for i := 0; i < 3; i++ {
		_, err := svc.Create(ctx, p.ID, []models.Symptom{symptom(t, "fever", 4)})
		require.NoError(t, err)
	}

	triages, err := svc.ListByPatient(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, triages, 3)

	_, err = svc.ListByPatient(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestService_QueueStats(t *testing.T) {
	svc, fs, _ := setupService(t, classifier.NewMockProvider())
	ctx := context.Background()
	p := addPatient(t, fs)

	_, err := svc.Create(ctx, p.ID, []models.Symptom{symptom(t, "fever", 4)})
	require.NoError(t, err)

	stats, err := svc.QueueStats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.Pending)
}
