package loyalty

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/loyalty/backend/internal/domain/loyalty"
	"github.com/loyalty/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// MockProgramRepository is a mock implementation of loyalty.ProgramRepository
type MockProgramRepository struct {
	mock.Mock
}

func (m *MockProgramRepository) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*loyalty.Program, error) {
	args := m.Called(ctx, tenantID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*loyalty.Program), args.Error(1)
}

func (m *MockProgramRepository) FindAll(ctx context.Context, tenantID uuid.UUID, activeOnly bool) ([]loyalty.Program, error) {
	args := m.Called(ctx, tenantID, activeOnly)
	return args.Get(0).([]loyalty.Program), args.Error(1)
}

func (m *MockProgramRepository) Create(ctx context.Context, program *loyalty.Program) error {
	return m.Called(ctx, program).Error(0)
}

func (m *MockProgramRepository) SaveWithLock(ctx context.Context, program *loyalty.Program) error {
	return m.Called(ctx, program).Error(0)
}

// MockEnrollmentRepository is a mock implementation of loyalty.EnrollmentRepository
type MockEnrollmentRepository struct {
	mock.Mock
}

func (m *MockEnrollmentRepository) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*loyalty.Enrollment, error) {
	args := m.Called(ctx, tenantID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*loyalty.Enrollment), args.Error(1)
}

func (m *MockEnrollmentRepository) FindByIDForUpdate(ctx context.Context, tenantID, id uuid.UUID) (*loyalty.Enrollment, error) {
	args := m.Called(ctx, tenantID, id)
	if fn, ok := args.Get(0).(func(context.Context, uuid.UUID, uuid.UUID) (*loyalty.Enrollment, error)); ok {
		return fn(ctx, tenantID, id)
	}
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*loyalty.Enrollment), args.Error(1)
}

func (m *MockEnrollmentRepository) FindByKey(ctx context.Context, tenantID uuid.UUID, identifier string, programID uuid.UUID) (*loyalty.Enrollment, error) {
	args := m.Called(ctx, tenantID, identifier, programID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*loyalty.Enrollment), args.Error(1)
}

func (m *MockEnrollmentRepository) FindByIdentifier(ctx context.Context, tenantID uuid.UUID, identifier string) ([]loyalty.Enrollment, error) {
	args := m.Called(ctx, tenantID, identifier)
	return args.Get(0).([]loyalty.Enrollment), args.Error(1)
}

func (m *MockEnrollmentRepository) Create(ctx context.Context, enrollment *loyalty.Enrollment) error {
	return m.Called(ctx, enrollment).Error(0)
}

func (m *MockEnrollmentRepository) SaveWithLock(ctx context.Context, enrollment *loyalty.Enrollment) error {
	return m.Called(ctx, enrollment).Error(0)
}

// MockTransactionRepository is a mock implementation of loyalty.TransactionRepository
type MockTransactionRepository struct {
	mock.Mock
}

func (m *MockTransactionRepository) Append(ctx context.Context, tx *loyalty.Transaction) error {
	return m.Called(ctx, tx).Error(0)
}

func (m *MockTransactionRepository) FindByIdempotencyKey(ctx context.Context, enrollmentID uuid.UUID, key string) (*loyalty.Transaction, error) {
	args := m.Called(ctx, enrollmentID, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*loyalty.Transaction), args.Error(1)
}

func (m *MockTransactionRepository) ListByEnrollment(ctx context.Context, enrollmentID uuid.UUID, beforeSequence int64, limit int) ([]loyalty.Transaction, error) {
	args := m.Called(ctx, enrollmentID, beforeSequence, limit)
	return args.Get(0).([]loyalty.Transaction), args.Error(1)
}

func (m *MockTransactionRepository) ListAll(ctx context.Context, enrollmentID uuid.UUID) ([]loyalty.Transaction, error) {
	args := m.Called(ctx, enrollmentID)
	return args.Get(0).([]loyalty.Transaction), args.Error(1)
}

func (m *MockTransactionRepository) CountByEnrollment(ctx context.Context, enrollmentID uuid.UUID) (int64, error) {
	args := m.Called(ctx, enrollmentID)
	return args.Get(0).(int64), args.Error(1)
}

// passthroughTxManager runs fn without a real transaction
type passthroughTxManager struct {
	calls int
	err   error
}

func (m *passthroughTxManager) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	m.calls++
	if err := fn(ctx); err != nil {
		return err
	}
	return m.err
}

// countingMetrics records calls from the ledger
type countingMetrics struct {
	mu        sync.Mutex
	retries   int
	durations []error
}

func (m *countingMetrics) RecordRetry(context.Context, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retries++
}

func (m *countingMetrics) RecordDuration(_ context.Context, _ string, _ time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.durations = append(m.durations, err)
}

// keyLocker records the keys it was asked to lock
type keyLocker struct {
	keys []string
	err  error
}

func (l *keyLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	l.keys = append(l.keys, key)
	if l.err != nil {
		return l.err
	}
	return fn(ctx)
}

type retryFixture struct {
	programs     *MockProgramRepository
	enrollments  *MockEnrollmentRepository
	transactions *MockTransactionRepository
	txManager    *passthroughTxManager
	metrics      *countingMetrics
	locker       *keyLocker
	publisher    *recordingPublisher
	ledger       *LedgerService
	program      *loyalty.Program
	tenantID     uuid.UUID
}

func newRetryFixture(t *testing.T, maxRetries int) *retryFixture {
	t.Helper()
	tenantID := uuid.New()
	goal := decimal.NewFromInt(10)
	program, err := loyalty.NewProgram(tenantID, loyalty.ProgramDefinition{
		Name:              "Cartão",
		Type:              loyalty.ProgramTypeStamps,
		Goal:              &goal,
		RewardDescription: "Corte grátis",
	})
	require.NoError(t, err)

	f := &retryFixture{
		programs:     new(MockProgramRepository),
		enrollments:  new(MockEnrollmentRepository),
		transactions: new(MockTransactionRepository),
		txManager:    &passthroughTxManager{},
		metrics:      &countingMetrics{},
		locker:       &keyLocker{},
		publisher:    &recordingPublisher{},
		program:      program,
		tenantID:     tenantID,
	}
	f.ledger = NewLedgerService(LedgerServiceConfig{
		ProgramRepo:     f.programs,
		EnrollmentRepo:  f.enrollments,
		TransactionRepo: f.transactions,
		TxManager:       f.txManager,
		Locker:          f.locker,
		EventPublisher:  f.publisher,
		Metrics:         f.metrics,
		Logger:          zap.NewNop(),
		Retry:           RetryPolicy{MaxRetries: maxRetries, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond},
	})
	f.programs.On("FindByID", mock.Anything, tenantID, program.ID).Return(program, nil)
	return f
}

// freshEnrollment returns a new copy on every call, as a database read would
func (f *retryFixture) freshEnrollment(progress int64) (uuid.UUID, func() *loyalty.Enrollment) {
	id := uuid.New()
	created := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	return id, func() *loyalty.Enrollment {
		e := &loyalty.Enrollment{
			TenantAggregateRoot: shared.NewTenantAggregateRoot(f.tenantID),
			CustomerIdentifier:  "ana@example.com",
			ProgramID:           f.program.ID,
			CurrentProgress:     decimal.NewFromInt(progress),
			Status:              loyalty.EnrollmentStatusActive,
			TransactionCount:    progress,
		}
		e.ID = id
		e.CreatedAt = created
		e.UpdatedAt = created
		return e
	}
}

func TestLedger_RetriesConcurrencyConflicts(t *testing.T) {
	f := newRetryFixture(t, 3)
	id, fresh := f.freshEnrollment(2)

	f.enrollments.On("FindByIDForUpdate", mock.Anything, f.tenantID, id).
		Return(func(context.Context, uuid.UUID, uuid.UUID) (*loyalty.Enrollment, error) { return fresh(), nil }, nil)
	f.transactions.On("Append", mock.Anything, mock.Anything).Return(nil)
	f.enrollments.On("SaveWithLock", mock.Anything, mock.Anything).Return(loyalty.ErrConcurrencyConflict).Twice()
	f.enrollments.On("SaveWithLock", mock.Anything, mock.Anything).Return(nil).Once()

	tx, err := f.ledger.Accrue(context.Background(), AccrueInput{
		TenantID:     f.tenantID,
		EnrollmentID: id,
		Amount:       decimal.NewFromInt(1),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), tx.Sequence)
	assert.Equal(t, "3", tx.DisplayBalance)

	assert.Equal(t, 3, f.txManager.calls)
	assert.Equal(t, 2, f.metrics.retries)
	assert.Equal(t, []error{nil}, f.metrics.durations)
	assert.Equal(t, []string{id.String(), id.String(), id.String()}, f.locker.keys)
	// Only the committed attempt publishes
	assert.Equal(t, []string{loyalty.EventTypeBalanceAccrued}, f.publisher.types())
	f.enrollments.AssertExpectations(t)
}

func TestLedger_GivesUpAfterMaxRetries(t *testing.T) {
	f := newRetryFixture(t, 2)
	id, fresh := f.freshEnrollment(0)

	f.enrollments.On("FindByIDForUpdate", mock.Anything, f.tenantID, id).
		Return(func(context.Context, uuid.UUID, uuid.UUID) (*loyalty.Enrollment, error) { return fresh(), nil }, nil)
	f.transactions.On("Append", mock.Anything, mock.Anything).Return(loyalty.ErrConcurrencyConflict)

	_, err := f.ledger.Accrue(context.Background(), AccrueInput{
		TenantID:     f.tenantID,
		EnrollmentID: id,
		Amount:       decimal.NewFromInt(1),
	})
	assert.ErrorIs(t, err, loyalty.ErrConcurrencyConflict)
	assert.Equal(t, 3, f.txManager.calls, "one attempt plus two retries")
	assert.Equal(t, 2, f.metrics.retries)
	require.Len(t, f.metrics.durations, 1)
	assert.ErrorIs(t, f.metrics.durations[0], loyalty.ErrConcurrencyConflict)
	assert.Empty(t, f.publisher.types())
	f.enrollments.AssertNotCalled(t, "SaveWithLock", mock.Anything, mock.Anything)
}

func TestLedger_OtherErrorsAreNotRetried(t *testing.T) {
	f := newRetryFixture(t, 3)
	id, fresh := f.freshEnrollment(1)

	f.enrollments.On("FindByIDForUpdate", mock.Anything, f.tenantID, id).
		Return(func(context.Context, uuid.UUID, uuid.UUID) (*loyalty.Enrollment, error) { return fresh(), nil }, nil)

	_, err := f.ledger.Redeem(context.Background(), RedeemInput{
		TenantID:     f.tenantID,
		EnrollmentID: id,
		Cost:         decimalPtr("5"),
	})
	assert.ErrorIs(t, err, loyalty.ErrInsufficientBalance)
	assert.Equal(t, 1, f.txManager.calls)
	assert.Zero(t, f.metrics.retries)
	f.transactions.AssertNotCalled(t, "Append", mock.Anything, mock.Anything)
}

func TestLedger_CommitFailureIsStorageUnavailable(t *testing.T) {
	f := newRetryFixture(t, 3)
	id, fresh := f.freshEnrollment(1)
	f.txManager.err = errors.New("driver: bad connection")

	f.enrollments.On("FindByIDForUpdate", mock.Anything, f.tenantID, id).
		Return(func(context.Context, uuid.UUID, uuid.UUID) (*loyalty.Enrollment, error) { return fresh(), nil }, nil)
	f.transactions.On("Append", mock.Anything, mock.Anything).Return(nil)
	f.enrollments.On("SaveWithLock", mock.Anything, mock.Anything).Return(nil)

	_, err := f.ledger.Accrue(context.Background(), AccrueInput{
		TenantID:     f.tenantID,
		EnrollmentID: id,
		Amount:       decimal.NewFromInt(1),
	})
	assert.ErrorIs(t, err, loyalty.ErrStorageUnavailable)
	assert.Equal(t, 1, f.txManager.calls)
	assert.Empty(t, f.publisher.types(), "nothing is published for an uncommitted write")
}

func TestLedger_LockFailureIsRetriedAsConflict(t *testing.T) {
	f := newRetryFixture(t, 1)
	f.locker.err = shared.ErrConcurrencyConflict.WithMessage("enrollment is locked by another request")
	id := uuid.New()

	_, err := f.ledger.Accrue(context.Background(), AccrueInput{
		TenantID:     f.tenantID,
		EnrollmentID: id,
		Amount:       decimal.NewFromInt(1),
	})
	assert.ErrorIs(t, err, loyalty.ErrConcurrencyConflict)
	assert.Len(t, f.locker.keys, 2)
	assert.Zero(t, f.txManager.calls)
}

func TestLedger_RejectsOverlongIdempotencyKey(t *testing.T) {
	f := newRetryFixture(t, 0)
	key := make([]byte, 129)
	for i := range key {
		key[i] = 'k'
	}
	_, err := f.ledger.Accrue(context.Background(), AccrueInput{
		TenantID:       f.tenantID,
		EnrollmentID:   uuid.New(),
		Amount:         decimal.NewFromInt(1),
		IdempotencyKey: string(key),
	})
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
	assert.Empty(t, f.locker.keys)
}

func TestActivityLogHandler(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	h := NewActivityLogHandler(zap.New(core))

	goal := decimal.NewFromInt(1)
	program, err := loyalty.NewProgram(uuid.New(), loyalty.ProgramDefinition{
		Name: "Cartão", Type: loyalty.ProgramTypeStamps, Goal: &goal, RewardDescription: "Brinde",
	})
	require.NoError(t, err)
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	e, _, err := loyalty.NewEnrollment(program.TenantID, "ana@example.com", program, now)
	require.NoError(t, err)
	_, err = e.Accrue(program, decimal.NewFromInt(1), "", "", now)
	require.NoError(t, err)

	for _, event := range e.GetDomainEvents() {
		require.NoError(t, h.Handle(context.Background(), event))
	}

	entries := logs.FilterMessage("loyalty activity").All()
	require.Len(t, entries, 3)
	assert.Equal(t, loyalty.EventTypeEnrollmentCreated, entries[0].ContextMap()["event_type"])
	assert.Equal(t, "1", entries[1].ContextMap()["new_progress"])
	assert.Equal(t, "Brinde", entries[2].ContextMap()["reward"])
	assert.Len(t, h.EventTypes(), 5)
}
