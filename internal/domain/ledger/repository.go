package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/strata/backend/internal/domain/shared"
	"github.com/strata/backend/internal/domain/shared/valueobject"
)

// CanonicalBalance is the balance recomputed from posted ledger entries,
// the source of truth the cache is reconciled against
type CanonicalBalance struct {
	DebitMinor  int64
	CreditMinor int64
	EntryCount  int64
}

// BalanceMinor returns credit minus debit
func (c CanonicalBalance) BalanceMinor() int64 {
	return c.CreditMinor - c.DebitMinor
}

// SourceTotal aggregates posted amounts by entry source for reporting
type SourceTotal struct {
	Source      EntrySource
	Type        EntryType
	AmountMinor int64
	EntryCount  int64
}

// LedgerEntryRepository defines persistence for ledger entries
type LedgerEntryRepository interface {
	// FindByIDForTenant finds an entry by ID scoped to a tenant
	FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*LedgerEntry, error)

	// FindByEntryNumber finds an entry by its deterministic number for a tenant
	FindByEntryNumber(ctx context.Context, tenantID uuid.UUID, entryNumber string) (*LedgerEntry, error)

	// FindOpenDuesForUnit returns posted open dues for a unit, ordered by
	// period (year, month) then entry ID, which is the FIFO allocation order
	FindOpenDuesForUnit(ctx context.Context, tenantID, unitID uuid.UUID) ([]LedgerEntry, error)

	// FindFundingCredits returns posted, manually collected credit entries
	// with an unapplied balance for a unit, oldest first
	FindFundingCredits(ctx context.Context, tenantID, unitID uuid.UUID) ([]LedgerEntry, error)

	// FindForUnit returns entries for a unit with pagination
	FindForUnit(ctx context.Context, tenantID, unitID uuid.UUID, filter shared.Filter) ([]LedgerEntry, error)

	// FindPostedForUnit returns all non-terminal entries for a unit, optionally
	// limited to those created after since; used by audit replay
	FindPostedForUnit(ctx context.Context, tenantID, unitID uuid.UUID, since *time.Time) ([]LedgerEntry, error)

	// Save creates or updates an entry
	Save(ctx context.Context, entry *LedgerEntry) error

	// StampBalanceApplied sets the balance-applied stamp if and only if it is
	// not already set; returns false when another delivery got there first
	StampBalanceApplied(ctx context.Context, id uuid.UUID, at time.Time, version int64) (bool, error)

	// StampBalanceReverted sets the balance-reverted stamp if and only if it
	// is not already set
	StampBalanceReverted(ctx context.Context, id uuid.UUID, at time.Time, version int64) (bool, error)

	// CanonicalBalance computes the canonical balance for a unit: the sum of
	// signed amounts over posted entries, excluding balance-neutral credit
	CanonicalBalance(ctx context.Context, tenantID, unitID uuid.UUID) (CanonicalBalance, error)

	// TotalsBySource aggregates posted amounts grouped by source and type
	// for the financial report; unitID nil means the whole tenant
	TotalsBySource(ctx context.Context, tenantID uuid.UUID, unitID *uuid.UUID) ([]SourceTotal, error)
}

// DueAllocationRepository defines persistence for due allocations
type DueAllocationRepository interface {
	// Save persists one or more allocations
	Save(ctx context.Context, allocations ...*DueAllocation) error

	// FindByDue returns all allocations (including reversals) for a due
	FindByDue(ctx context.Context, tenantID, dueEntryID uuid.UUID) ([]DueAllocation, error)

	// FindByPayment returns all allocations for a funding payment
	FindByPayment(ctx context.Context, tenantID, paymentEntryID uuid.UUID) ([]DueAllocation, error)

	// FindByIDs returns the allocations with the given IDs
	FindByIDs(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) ([]DueAllocation, error)

	// FindForUnit returns all allocations touching a unit; used by audit replay
	FindForUnit(ctx context.Context, tenantID, unitID uuid.UUID) ([]DueAllocation, error)

	// SumByDue returns the signed allocation total for a due
	SumByDue(ctx context.Context, tenantID, dueEntryID uuid.UUID) (int64, error)
}

// UnitBalanceRepository defines persistence for the balance cache
type UnitBalanceRepository interface {
	// FindForUnit returns the cached balance, or shared.ErrNotFound when the
	// unit has never had an applied entry
	FindForUnit(ctx context.Context, tenantID, unitID uuid.UUID) (*UnitBalance, error)

	// ApplyDelta atomically increments the cached totals and the watermark,
	// creating the record lazily on first use
	ApplyDelta(ctx context.Context, tenantID, unitID uuid.UUID, delta BalanceDelta) error

	// SaveRebuilt commits a rebuilt balance only if the watermark still equals
	// expectedAppliedCount; returns false if concurrent activity advanced it
	SaveRebuilt(ctx context.Context, balance *UnitBalance, expectedAppliedCount int64) (bool, error)

	// FindRecentlyUpdated returns the most recently mutated cached balances
	// for a tenant, bounded by limit; used by scheduled drift sampling
	FindRecentlyUpdated(ctx context.Context, tenantID uuid.UUID, limit int) ([]UnitBalance, error)
}

// AlertRepository defines persistence for drift alerts
type AlertRepository interface {
	// Save creates or updates an alert
	Save(ctx context.Context, alert *Alert) error

	// FindByIDForTenant loads one alert scoped to the tenant, or (nil, nil)
	// when no alert matches
	FindByIDForTenant(ctx context.Context, tenantID, alertID uuid.UUID) (*Alert, error)

	// HasOpenAlert reports whether an open alert of the given type already
	// exists for the unit; drives alert deduplication
	HasOpenAlert(ctx context.Context, tenantID uuid.UUID, alertType AlertType, unitID uuid.UUID) (bool, error)

	// FindOpenForUnitBefore returns open alerts of the given type for a unit
	// created strictly before the cutoff
	FindOpenForUnitBefore(ctx context.Context, tenantID uuid.UUID, alertType AlertType, unitID uuid.UUID, cutoff time.Time) ([]Alert, error)

	// FindAllForTenant returns alerts for a tenant with pagination
	FindAllForTenant(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) ([]Alert, error)
}

// SettleResultRepository defines persistence for cached settlement outcomes
type SettleResultRepository interface {
	// FindByRequestID returns the stored outcome for a client request, or
	// shared.ErrNotFound
	FindByRequestID(ctx context.Context, tenantID, unitID uuid.UUID, requestID string) (*SettleResult, error)

	// Save persists a settlement outcome
	Save(ctx context.Context, result *SettleResult) error

	// DeleteExpired removes outcomes whose replay window has passed
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// DueScheduleRepository defines persistence for the dues-generation registry
type DueScheduleRepository interface {
	// Exists reports whether a due was already generated for the unit and period
	Exists(ctx context.Context, tenantID, unitID uuid.UUID, period valueobject.Period) (bool, error)

	// Save registers a generated due; returns shared.ErrAlreadyExists when the
	// unique (tenant, unit, period) constraint is violated
	Save(ctx context.Context, record *DueScheduleRecord) error
}

// AuditLogRepository defines persistence for administrative audit records
type AuditLogRepository interface {
	Save(ctx context.Context, entry *AuditLogEntry) error
}

// Tx bundles the repositories bound to one transaction. The underlying
// store runs each mutation RPC in a single atomic, isolated transaction;
// services pre-read every candidate record before the first write.
type Tx interface {
	Entries() LedgerEntryRepository
	Allocations() DueAllocationRepository
	Balances() UnitBalanceRepository
	Alerts() AlertRepository
	SettleResults() SettleResultRepository
	DueSchedules() DueScheduleRepository
	AuditLogs() AuditLogRepository

	// SaveEvents writes domain events to the transactional outbox so they
	// commit or abort together with the ledger mutation
	SaveEvents(ctx context.Context, events ...shared.DomainEvent) error
}

// Store opens transactions over the ledger collections
type Store interface {
	// InTransaction runs fn inside one atomic transaction; any returned error
	// aborts every write performed through the transaction's repositories
	InTransaction(ctx context.Context, fn func(tx Tx) error) error

	// Entries returns a non-transactional entry repository for read paths
	Entries() LedgerEntryRepository

	// Allocations returns a non-transactional allocation repository
	Allocations() DueAllocationRepository

	// Balances returns a non-transactional balance repository
	Balances() UnitBalanceRepository

	// Alerts returns a non-transactional alert repository
	Alerts() AlertRepository

	// SettleResults returns a non-transactional settle-result repository
	SettleResults() SettleResultRepository
}
