package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/strata/backend/internal/domain/shared"
)

// UnitBalance is the derived per-unit aggregate read by the UI. It is a
// cache over the canonical ledger: created lazily on the first applied
// entry, mutated only by the balance projector and by rebuild, never by
// the mutation API directly.
type UnitBalance struct {
	shared.TenantAggregateRoot
	UnitID            uuid.UUID
	BalanceMinor      int64 // PostedCreditMinor - PostedDebitMinor
	PostedDebitMinor  int64
	PostedCreditMinor int64
	// AppliedCount is a monotonic watermark incremented on every cache
	// mutation; rebuild aborts if it advances mid-flight
	AppliedCount          int64
	RebuiltAt             *time.Time
	RebuiltBy             *uuid.UUID
	RebuiltFromEntryCount int64
}

// NewUnitBalance creates an empty balance record for a unit
func NewUnitBalance(tenantID, unitID uuid.UUID) *UnitBalance {
	return &UnitBalance{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(tenantID),
		UnitID:              unitID,
	}
}

// BalanceDelta describes one entry's signed contribution to the cache
type BalanceDelta struct {
	DebitMinor  int64
	CreditMinor int64
}

// DeltaForEntry derives the cache delta for an entry. Neutral entries
// produce a zero delta but still advance the watermark when applied.
func DeltaForEntry(e *LedgerEntry) BalanceDelta {
	if !e.AffectsBalance {
		return BalanceDelta{}
	}
	if e.Type == EntryTypeCredit {
		return BalanceDelta{CreditMinor: e.AmountMinor}
	}
	return BalanceDelta{DebitMinor: e.AmountMinor}
}

// Negate returns the symmetric delta used to revert an applied entry
func (d BalanceDelta) Negate() BalanceDelta {
	return BalanceDelta{DebitMinor: -d.DebitMinor, CreditMinor: -d.CreditMinor}
}

// IsZero reports whether the delta carries no amount
func (d BalanceDelta) IsZero() bool {
	return d.DebitMinor == 0 && d.CreditMinor == 0
}

// Apply adds the delta to the cached totals and advances the watermark
func (b *UnitBalance) Apply(d BalanceDelta) {
	b.PostedDebitMinor += d.DebitMinor
	b.PostedCreditMinor += d.CreditMinor
	b.BalanceMinor = b.PostedCreditMinor - b.PostedDebitMinor
	b.AppliedCount++
	b.UpdatedAt = time.Now()
	b.IncrementVersion()
}

// Rebuild replaces the cached totals with canonical values. The watermark
// still advances: a rebuild is a cache mutation like any other.
func (b *UnitBalance) Rebuild(debitMinor, creditMinor, entryCount int64, by uuid.UUID) {
	now := time.Now()
	b.PostedDebitMinor = debitMinor
	b.PostedCreditMinor = creditMinor
	b.BalanceMinor = creditMinor - debitMinor
	b.AppliedCount++
	b.RebuiltAt = &now
	b.RebuiltBy = &by
	b.RebuiltFromEntryCount = entryCount
	b.UpdatedAt = now
	b.IncrementVersion()
}
