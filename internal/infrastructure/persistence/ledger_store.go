package persistence

import (
	"context"

	"gorm.io/gorm"

	"github.com/strata/backend/internal/domain/ledger"
	"github.com/strata/backend/internal/domain/shared"
	"github.com/strata/backend/internal/infrastructure/event"
)

// GormLedgerStore implements ledger.Store. Each mutation RPC runs inside one
// InTransaction call so its entry writes, allocation writes, cache stamps and
// outbox events commit or abort together.
type GormLedgerStore struct {
	db        *gorm.DB
	publisher *event.OutboxPublisher
}

// NewGormLedgerStore creates a new GormLedgerStore
func NewGormLedgerStore(db *gorm.DB, publisher *event.OutboxPublisher) *GormLedgerStore {
	return &GormLedgerStore{db: db, publisher: publisher}
}

// InTransaction runs fn inside one atomic transaction
func (s *GormLedgerStore) InTransaction(ctx context.Context, fn func(tx ledger.Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTx{db: tx, publisher: s.publisher})
	})
}

// Entries returns a non-transactional entry repository for read paths
func (s *GormLedgerStore) Entries() ledger.LedgerEntryRepository {
	return NewGormLedgerEntryRepository(s.db)
}

// Allocations returns a non-transactional allocation repository
func (s *GormLedgerStore) Allocations() ledger.DueAllocationRepository {
	return NewGormDueAllocationRepository(s.db)
}

// Balances returns a non-transactional balance repository
func (s *GormLedgerStore) Balances() ledger.UnitBalanceRepository {
	return NewGormUnitBalanceRepository(s.db)
}

// Alerts returns a non-transactional alert repository
func (s *GormLedgerStore) Alerts() ledger.AlertRepository {
	return NewGormAlertRepository(s.db)
}

// SettleResults returns a non-transactional settle-result repository
func (s *GormLedgerStore) SettleResults() ledger.SettleResultRepository {
	return NewGormSettleResultRepository(s.db)
}

// gormTx bundles repositories bound to one open transaction
type gormTx struct {
	db        *gorm.DB
	publisher *event.OutboxPublisher
}

func (t *gormTx) Entries() ledger.LedgerEntryRepository {
	return NewGormLedgerEntryRepository(t.db)
}

func (t *gormTx) Allocations() ledger.DueAllocationRepository {
	return NewGormDueAllocationRepository(t.db)
}

func (t *gormTx) Balances() ledger.UnitBalanceRepository {
	return NewGormUnitBalanceRepository(t.db)
}

func (t *gormTx) Alerts() ledger.AlertRepository {
	return NewGormAlertRepository(t.db)
}

func (t *gormTx) SettleResults() ledger.SettleResultRepository {
	return NewGormSettleResultRepository(t.db)
}

func (t *gormTx) DueSchedules() ledger.DueScheduleRepository {
	return NewGormDueScheduleRepository(t.db)
}

func (t *gormTx) AuditLogs() ledger.AuditLogRepository {
	return NewGormAuditLogRepository(t.db)
}

// SaveEvents writes domain events to the transactional outbox
func (t *gormTx) SaveEvents(ctx context.Context, events ...shared.DomainEvent) error {
	return t.publisher.PublishWithTx(ctx, t.db, events...)
}

// Ensure the store and transaction satisfy the domain contracts
var (
	_ ledger.Store = (*GormLedgerStore)(nil)
	_ ledger.Tx    = (*gormTx)(nil)
)
