package ledger

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/strata/backend/internal/domain/shared"
)

// AllocationKind distinguishes forward allocations from reversal compensation
type AllocationKind string

const (
	AllocationKindStandard AllocationKind = "standard"
	AllocationKindReversal AllocationKind = "reversal"
)

// DueAllocation records exactly how much of one payment was applied to one
// due. Allocations are never deleted or mutated: a reversal adds a
// negative-amount compensation row referencing the original. The audit
// invariant is sum(allocations for a due) == due.DueAllocatedMinor.
type DueAllocation struct {
	shared.BaseEntity
	TenantID          uuid.UUID
	UnitID            uuid.UUID
	PaymentEntryID    uuid.UUID // funding CREDIT entry
	DueEntryID        uuid.UUID
	AmountMinor       int64 // negative for reversal allocations
	Kind              AllocationKind
	SettlementEntryID *uuid.UUID // set when created by auto-settlement
	ReversalOfID      *uuid.UUID // set on reversal rows, points at the original allocation
}

// NewDueAllocation creates a forward allocation of payment credit to a due
func NewDueAllocation(tenantID, unitID, paymentEntryID, dueEntryID uuid.UUID, amountMinor int64) (*DueAllocation, error) {
	if amountMinor <= 0 {
		return nil, shared.NewDomainError("INVALID_AMOUNT", "Allocation amount must be positive")
	}
	if paymentEntryID == uuid.Nil || dueEntryID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_ALLOCATION", "Allocation requires both a payment and a due")
	}
	return &DueAllocation{
		BaseEntity:     shared.NewBaseEntity(),
		TenantID:       tenantID,
		UnitID:         unitID,
		PaymentEntryID: paymentEntryID,
		DueEntryID:     dueEntryID,
		AmountMinor:    amountMinor,
		Kind:           AllocationKindStandard,
	}, nil
}

// NewSettlementAllocation creates a forward allocation recorded by
// auto-settlement, linking the funding payment, the closed due and the
// internal settlement entry
func NewSettlementAllocation(tenantID, unitID, paymentEntryID, dueEntryID, settlementEntryID uuid.UUID, amountMinor int64) (*DueAllocation, error) {
	alloc, err := NewDueAllocation(tenantID, unitID, paymentEntryID, dueEntryID, amountMinor)
	if err != nil {
		return nil, err
	}
	alloc.SettlementEntryID = &settlementEntryID
	return alloc, nil
}

// NewReversalAllocation creates the negative compensation row for an
// original allocation
func NewReversalAllocation(original *DueAllocation) (*DueAllocation, error) {
	if original.Kind != AllocationKindStandard {
		return nil, shared.NewDomainError("INVALID_ALLOCATION", fmt.Sprintf(
			"Cannot reverse a %s allocation", original.Kind))
	}
	if original.AmountMinor <= 0 {
		return nil, shared.NewDomainError("INVALID_ALLOCATION", "Original allocation amount must be positive")
	}

	origID := original.ID
	now := time.Now()
	return &DueAllocation{
		BaseEntity: shared.BaseEntity{
			ID:        uuid.New(),
			CreatedAt: now,
			UpdatedAt: now,
		},
		TenantID:       original.TenantID,
		UnitID:         original.UnitID,
		PaymentEntryID: original.PaymentEntryID,
		DueEntryID:     original.DueEntryID,
		AmountMinor:    -original.AmountMinor,
		Kind:           AllocationKindReversal,
		ReversalOfID:   &origID,
	}, nil
}

// IsReversal reports whether this is a compensation row
func (a *DueAllocation) IsReversal() bool {
	return a.Kind == AllocationKindReversal
}
