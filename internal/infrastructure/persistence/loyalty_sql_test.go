package persistence

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/loyalty/backend/internal/domain/loyalty"
	"github.com/loyalty/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// newMockGorm opens GORM on the PostgreSQL dialector over sqlmock
func newMockGorm(t *testing.T) (*gorm.DB, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	dialector := postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	})

	gormDB, err := gorm.Open(dialector, &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	return gormDB, mock, mockDB
}

func newTestEnrollment(t *testing.T) (*loyalty.Program, *loyalty.Enrollment) {
	t.Helper()
	p, err := loyalty.NewProgram(uuid.New(), stampsDefinition("Café"))
	require.NoError(t, err)
	e, _, err := loyalty.NewEnrollment(p.TenantID, "ana@example.com", p, testNow)
	require.NoError(t, err)
	return p, e
}

func TestGormEnrollmentRepository_SQL(t *testing.T) {
	t.Run("row lock uses FOR UPDATE", func(t *testing.T) {
		db, mock, mockDB := newMockGorm(t)
		defer mockDB.Close()

		tenantID, id := uuid.New(), uuid.New()
		mock.ExpectQuery(`SELECT \* FROM "loyalty_enrollments" WHERE owner_id = \$1 AND id = \$2 ORDER BY .* LIMIT .* FOR UPDATE`).
			WithArgs(tenantID, id, 1).
			WillReturnRows(sqlmock.NewRows([]string{"id", "owner_id", "version", "status", "current_progress"}).
				AddRow(id, tenantID, 3, "active", "7"))

		e, err := NewGormEnrollmentRepository(db).FindByIDForUpdate(context.Background(), tenantID, id)
		require.NoError(t, err)
		assert.Equal(t, 3, e.Version)
		assert.True(t, e.CurrentProgress.Equal(decimal.NewFromInt(7)))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unique violation from postgres is already exists", func(t *testing.T) {
		db, mock, mockDB := newMockGorm(t)
		defer mockDB.Close()

		_, e := newTestEnrollment(t)
		mock.ExpectExec(`INSERT INTO "loyalty_enrollments"`).
			WillReturnError(&pq.Error{Code: "23505", Constraint: "uq_loyalty_enrollment_key"})

		err := NewGormEnrollmentRepository(db).Create(context.Background(), e)
		assert.ErrorIs(t, err, shared.ErrAlreadyExists)
	})

	t.Run("compare and swap on version", func(t *testing.T) {
		db, mock, mockDB := newMockGorm(t)
		defer mockDB.Close()

		p, e := newTestEnrollment(t)
		_, err := e.Accrue(p, decimal.NewFromInt(1), "", "", testNow)
		require.NoError(t, err)

		mock.ExpectExec(`UPDATE "loyalty_enrollments" SET .* WHERE id = \$\d+ AND owner_id = \$\d+ AND version = \$\d+`).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err = NewGormEnrollmentRepository(db).SaveWithLock(context.Background(), e)
		assert.ErrorIs(t, err, shared.ErrConcurrencyConflict)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("driver failure is storage unavailable", func(t *testing.T) {
		db, mock, mockDB := newMockGorm(t)
		defer mockDB.Close()

		mock.ExpectQuery(`SELECT \* FROM "loyalty_enrollments"`).
			WillReturnError(errors.New("connection reset by peer"))

		_, err := NewGormEnrollmentRepository(db).FindByID(context.Background(), uuid.New(), uuid.New())
		assert.ErrorIs(t, err, shared.ErrStorageUnavailable)
		assert.Contains(t, err.Error(), "connection reset by peer")
	})
}

func TestGormTransactionRepository_SQL(t *testing.T) {
	t.Run("duplicate sequence from postgres is a conflict", func(t *testing.T) {
		db, mock, mockDB := newMockGorm(t)
		defer mockDB.Close()

		p, e := newTestEnrollment(t)
		tx, err := e.Accrue(p, decimal.NewFromInt(1), "", "", testNow)
		require.NoError(t, err)

		mock.ExpectExec(`INSERT INTO "loyalty_transactions"`).
			WillReturnError(&pq.Error{Code: "23505", Constraint: "uq_loyalty_tx_sequence"})

		err = NewGormTransactionRepository(db).Append(context.Background(), tx)
		assert.ErrorIs(t, err, shared.ErrConcurrencyConflict)
	})

	t.Run("history page is keyset on sequence", func(t *testing.T) {
		db, mock, mockDB := newMockGorm(t)
		defer mockDB.Close()

		enrollmentID := uuid.New()
		mock.ExpectQuery(`SELECT \* FROM "loyalty_transactions" WHERE enrollment_id = \$1 AND sequence < \$2 ORDER BY sequence DESC LIMIT \$3`).
			WithArgs(enrollmentID, int64(11), 10).
			WillReturnRows(sqlmock.NewRows([]string{"id", "enrollment_id", "sequence"}).
				AddRow(uuid.New(), enrollmentID, 10))

		txs, err := NewGormTransactionRepository(db).ListByEnrollment(context.Background(), enrollmentID, 11, 10)
		require.NoError(t, err)
		require.Len(t, txs, 1)
		assert.Equal(t, int64(10), txs[0].Sequence)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, isUniqueViolation(gorm.ErrDuplicatedKey))
	assert.True(t, isUniqueViolation(&pq.Error{Code: "23505"}))
	assert.True(t, isUniqueViolation(errors.New("UNIQUE constraint failed: loyalty_transactions.enrollment_id")))
	assert.False(t, isUniqueViolation(&pq.Error{Code: "23503"}))
	assert.False(t, isUniqueViolation(nil))
}
