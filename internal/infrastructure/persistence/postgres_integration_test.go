//go:build integration

package persistence

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/loyalty/backend/internal/domain/loyalty"
	"github.com/loyalty/backend/internal/infrastructure/migration"
	"github.com/loyalty/backend/migrations"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func setupPostgres(t *testing.T) *gorm.DB {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("loyalty_test"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "Failed to start PostgreSQL container")
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	sqlDB, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	m, err := migration.New(sqlDB, migrations.FS, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, m.Up())

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		TranslateError:         true,
	})
	require.NoError(t, err)
	return db
}

func TestPostgres_Ledger(t *testing.T) {
	db := setupPostgres(t)
	ctx := context.Background()
	tm := NewGormTransactionManager(db)
	enrollments := NewGormEnrollmentRepository(db)
	transactions := NewGormTransactionRepository(db)

	p := storeProgram(t, db, uuid.New(), stampsDefinition("Café"))
	e := storeEnrollment(t, db, p, "ana@example.com", time.Now().UTC())

	t.Run("row lock serialises concurrent accruals", func(t *testing.T) {
		const workers = 20
		var wg sync.WaitGroup
		errs := make(chan error, workers)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs <- tm.WithinTransaction(ctx, func(ctx context.Context) error {
					locked, err := enrollments.FindByIDForUpdate(ctx, e.TenantID, e.ID)
					if err != nil {
						return err
					}
					tx, err := locked.Accrue(p, decimal.NewFromInt(1), "", "", time.Now().UTC())
					if err != nil {
						return err
					}
					if err := transactions.Append(ctx, tx); err != nil {
						return err
					}
					return enrollments.SaveWithLock(ctx, locked)
				})
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		got, err := enrollments.FindByID(ctx, e.TenantID, e.ID)
		require.NoError(t, err)
		assert.True(t, got.CurrentProgress.Equal(decimal.NewFromInt(workers)))

		all, err := transactions.ListAll(ctx, e.ID)
		require.NoError(t, err)
		report := loyalty.Audit(got, all)
		assert.True(t, report.Consistent())
	})

	t.Run("trigger rejects raw updates and deletes", func(t *testing.T) {
		err := db.Exec("UPDATE loyalty_transactions SET description = 'x' WHERE enrollment_id = ?", e.ID).Error
		require.Error(t, err)
		assert.Contains(t, err.Error(), "append-only")

		err = db.Exec("DELETE FROM loyalty_transactions WHERE enrollment_id = ?", e.ID).Error
		require.Error(t, err)
	})

	t.Run("reports the applied version", func(t *testing.T) {
		sqlDB, err := db.DB()
		require.NoError(t, err)
		m, err := migration.New(sqlDB, migrations.FS, zap.NewNop())
		require.NoError(t, err)
		version, dirty, err := m.Version()
		require.NoError(t, err)
		assert.False(t, dirty)
		assert.Equal(t, uint(2), version)
	})
}
