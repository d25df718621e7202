package event

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/strata/backend/internal/domain/shared"
)

var outboxColumns = []string{
	"id", "tenant_id", "event_id", "event_type", "aggregate_id",
	"aggregate_type", "payload", "status", "retry_count", "max_retries",
	"last_error", "next_retry_at", "processed_at", "created_at", "updated_at",
}

// newOutboxRepoWithMock wires a GormOutboxRepository over a sqlmock
// connection.
func newOutboxRepoWithMock(t *testing.T) (*GormOutboxRepository, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	return NewGormOutboxRepository(db), mock
}

func newOutboxFixture(eventType string) *shared.OutboxEntry {
	tenantID := uuid.New()
	event := newTestEvent(eventType, tenantID)
	return shared.NewOutboxEntry(tenantID, event, []byte(`{"amount_minor": 125000}`))
}

func TestGormOutboxRepository_Save(t *testing.T) {
	repo, mock := newOutboxRepoWithMock(t)
	entry := newOutboxFixture("ledger.entry.posted")

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "outbox_events"`)).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).
			AddRow(entry.CreatedAt, entry.UpdatedAt))
	mock.ExpectCommit()

	err := repo.Save(context.Background(), entry)

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormOutboxRepository_Save_EmptyBatchIsNoop(t *testing.T) {
	repo, mock := newOutboxRepoWithMock(t)

	// no SQL expected
	err := repo.Save(context.Background())

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormOutboxRepository_FindPending(t *testing.T) {
	repo, mock := newOutboxRepoWithMock(t)

	entryID := uuid.New()
	now := time.Now()
	rows := sqlmock.NewRows(outboxColumns).AddRow(
		entryID, uuid.New(), uuid.New(), "ledger.entry.posted", uuid.New(),
		"LedgerEntry", []byte(`{}`), "PENDING", 0, 5,
		"", nil, nil, now, now,
	)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "outbox_events" WHERE status = $1 ORDER BY created_at ASC LIMIT $2`)).
		WithArgs(shared.OutboxStatusPending, 10).
		WillReturnRows(rows)

	entries, err := repo.FindPending(context.Background(), 10)

	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, entryID, entries[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormOutboxRepository_FindRetryable(t *testing.T) {
	repo, mock := newOutboxRepoWithMock(t)
	before := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "outbox_events" WHERE status = $1 AND next_retry_at <= $2 ORDER BY next_retry_at ASC LIMIT $3`)).
		WithArgs(shared.OutboxStatusFailed, before, 10).
		WillReturnRows(sqlmock.NewRows(outboxColumns))

	entries, err := repo.FindRetryable(context.Background(), before, 10)

	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormOutboxRepository_Update(t *testing.T) {
	repo, mock := newOutboxRepoWithMock(t)
	entry := newOutboxFixture("ledger.payment.recorded")
	entry.MarkSent()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "outbox_events"`)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := repo.Update(context.Background(), entry)

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormOutboxRepository_DeleteOlderThan(t *testing.T) {
	repo, mock := newOutboxRepoWithMock(t)
	cutoff := time.Now().Add(-7 * 24 * time.Hour)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "outbox_events" WHERE status = $1 AND processed_at < $2`)).
		WithArgs(shared.OutboxStatusSent, cutoff).
		WillReturnResult(sqlmock.NewResult(0, 5))
	mock.ExpectCommit()

	deleted, err := repo.DeleteOlderThan(context.Background(), cutoff)

	require.NoError(t, err)
	assert.Equal(t, int64(5), deleted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormOutboxRepository_WithTx(t *testing.T) {
	repo, _ := newOutboxRepoWithMock(t)
	other, _ := newOutboxRepoWithMock(t)

	rebound := repo.WithTx(other.db)

	require.NotNil(t, rebound)
	assert.NotSame(t, repo, rebound)
	assert.Same(t, other.db, rebound.db)
}
