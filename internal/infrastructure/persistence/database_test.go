package persistence

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/strata/backend/internal/infrastructure/persistence/tenant"
)

// newMockDatabase wires a Database onto a sqlmock connection. Callers own
// the expectations; the connection is closed via t.Cleanup.
func newMockDatabase(t *testing.T) (*Database, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	}), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	return &Database{DB: gormDB}, mock
}

func TestDatabase_WithTenant(t *testing.T) {
	t.Run("scopes queries to the tenant", func(t *testing.T) {
		db, mock := newMockDatabase(t)
		tenantID := "3f2c6a1e-9d74-4a0b-8f1d-2e5c7b9a0d41"

		type LedgerEntry struct {
			ID        uint
			TenantID  string
			Reference string
		}

		mock.ExpectQuery(`SELECT \* FROM "ledger_entries" WHERE tenant_id = \$1`).
			WithArgs(tenantID).
			WillReturnRows(sqlmock.NewRows([]string{"id", "tenant_id", "reference"}).
				AddRow(1, tenantID, "dues 2026-09"))

		var results []LedgerEntry
		require.NoError(t, db.WithTenant(tenantID).Find(&results).Error)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("leaves the original session untouched", func(t *testing.T) {
		db, _ := newMockDatabase(t)
		original := db.DB

		scoped := db.WithTenant("7a1d3c5e-2b4f-4860-9c7e-1f3a5b7d9e0c")

		assert.NotEqual(t, original, scoped)
		assert.Equal(t, original, db.DB)
	})

	t.Run("panics on empty tenant ID", func(t *testing.T) {
		db, _ := newMockDatabase(t)
		assert.Panics(t, func() { db.WithTenant("") })
	})

	t.Run("rejects a hostile tenant ID before building SQL", func(t *testing.T) {
		db, mock := newMockDatabase(t)

		type LedgerEntry struct {
			ID       uint
			TenantID string
		}

		var results []LedgerEntry
		err := db.WithTenant("mgmt'; DROP TABLE ledger_entries; --").Find(&results).Error

		assert.ErrorIs(t, err, tenant.ErrInvalidTenantID)
		assert.NoError(t, mock.ExpectationsWereMet(), "no query must have reached the database")
	})

	t.Run("distinct tenants get distinct scopes", func(t *testing.T) {
		db, _ := newMockDatabase(t)

		first := db.WithTenant("11111111-1111-4111-8111-111111111111")
		second := db.WithTenant("22222222-2222-4222-8222-222222222222")

		assert.NotEqual(t, first, second)
	})
}

func TestDatabase_WithTenant_Chaining(t *testing.T) {
	t.Run("composes with Where", func(t *testing.T) {
		db, mock := newMockDatabase(t)
		tenantID := "9c8b7a6d-5e4f-4321-8a9b-0c1d2e3f4a5b"

		type UnitBalance struct {
			ID       uint
			TenantID string
			UnitID   string
			Stale    bool
		}

		mock.ExpectQuery(`SELECT \* FROM "unit_balances" WHERE tenant_id = \$1 AND stale = \$2`).
			WithArgs(tenantID, true).
			WillReturnRows(sqlmock.NewRows([]string{"id", "tenant_id", "unit_id", "stale"}).
				AddRow(1, tenantID, "unit-7", true))

		var results []UnitBalance
		require.NoError(t, db.WithTenant(tenantID).Where("stale = ?", true).Find(&results).Error)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("composes with Order", func(t *testing.T) {
		db, mock := newMockDatabase(t)
		tenantID := "1e2d3c4b-5a69-4788-9695-a4b3c2d1e0f9"

		type DueSchedule struct {
			ID       uint
			TenantID string
			Period   string
		}

		mock.ExpectQuery(`SELECT \* FROM "due_schedules" WHERE tenant_id = \$1 ORDER BY period ASC`).
			WithArgs(tenantID).
			WillReturnRows(sqlmock.NewRows([]string{"id", "tenant_id", "period"}).
				AddRow(1, tenantID, "2026-08").
				AddRow(2, tenantID, "2026-09"))

		var results []DueSchedule
		require.NoError(t, db.WithTenant(tenantID).Order("period ASC").Find(&results).Error)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("composes with Limit and Offset", func(t *testing.T) {
		db, mock := newMockDatabase(t)
		tenantID := "6f5e4d3c-2b1a-4098-8765-4321fedcba98"

		type AuditLog struct {
			ID       uint
			TenantID string
		}

		mock.ExpectQuery(`SELECT \* FROM "audit_logs" WHERE tenant_id = \$1 LIMIT \$2 OFFSET \$3`).
			WithArgs(tenantID, 10, 5).
			WillReturnRows(sqlmock.NewRows([]string{"id", "tenant_id"}).
				AddRow(6, tenantID))

		var results []AuditLog
		require.NoError(t, db.WithTenant(tenantID).Limit(10).Offset(5).Find(&results).Error)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestDatabase_Transaction(t *testing.T) {
	t.Run("commits when the callback succeeds", func(t *testing.T) {
		db, mock := newMockDatabase(t)

		type ReconcileAlert struct {
			ID     uint
			Detail string
		}

		mock.ExpectBegin()
		// postgres INSERTs go through RETURNING, so sqlmock sees a query
		mock.ExpectQuery(`INSERT INTO "reconcile_alerts"`).
			WithArgs("balance drift on unit 7").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
		mock.ExpectCommit()

		err := db.Transaction(func(tx *gorm.DB) error {
			return tx.Create(&ReconcileAlert{Detail: "balance drift on unit 7"}).Error
		})

		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls back when the callback fails", func(t *testing.T) {
		db, mock := newMockDatabase(t)

		mock.ExpectBegin()
		mock.ExpectRollback()

		err := db.Transaction(func(tx *gorm.DB) error {
			return assert.AnError
		})

		assert.Error(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestDatabase_Stats(t *testing.T) {
	db, _ := newMockDatabase(t)

	stats, err := db.Stats()

	require.NoError(t, err)
	assert.GreaterOrEqual(t, stats.MaxOpenConnections, 0)
	assert.GreaterOrEqual(t, stats.OpenConnections, 0)
	assert.GreaterOrEqual(t, stats.InUse, 0)
	assert.GreaterOrEqual(t, stats.Idle, 0)
	assert.GreaterOrEqual(t, stats.WaitCount, int64(0))
	assert.GreaterOrEqual(t, stats.WaitDuration, time.Duration(0))
	assert.GreaterOrEqual(t, stats.MaxIdleClosed, int64(0))
	assert.GreaterOrEqual(t, stats.MaxIdleTimeClosed, int64(0))
	assert.GreaterOrEqual(t, stats.MaxLifetimeClosed, int64(0))
	assert.Equal(t, stats.OpenConnections, stats.InUse+stats.Idle)
}

func TestDatabase_Ping(t *testing.T) {
	mockDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer mockDB.Close()

	// gorm.Open pings once while connecting
	mock.ExpectPing()

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	}), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	db := &Database{DB: gormDB}

	mock.ExpectPing()
	assert.NoError(t, db.Ping())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDatabase_Close(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	}), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	db := &Database{DB: gormDB}

	mock.ExpectClose()
	assert.NoError(t, db.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}
