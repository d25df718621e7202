package ledger

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/strata/backend/internal/domain/shared"
	"github.com/strata/backend/internal/domain/shared/valueobject"
)

// EntryType distinguishes amounts owed by a unit (DEBIT) from amounts
// received from it (CREDIT)
type EntryType string

const (
	EntryTypeDebit  EntryType = "DEBIT"
	EntryTypeCredit EntryType = "CREDIT"
)

// IsValid checks if the entry type is valid
func (t EntryType) IsValid() bool {
	return t == EntryTypeDebit || t == EntryTypeCredit
}

// Opposite returns the compensating entry type
func (t EntryType) Opposite() EntryType {
	if t == EntryTypeDebit {
		return EntryTypeCredit
	}
	return EntryTypeDebit
}

// EntrySource identifies what produced a ledger entry
type EntrySource string

const (
	SourceCash            EntrySource = "cash"
	SourceBank            EntrySource = "bank"
	SourceStripe          EntrySource = "stripe"
	SourceAuto            EntrySource = "auto"
	SourceDues            EntrySource = "dues"
	SourceAdjustment      EntrySource = "adjustment"
	SourceReversal        EntrySource = "reversal"
	SourceAutoSettlement  EntrySource = "auto_settlement"
	SourceLegacyMigration EntrySource = "legacy_migration"
)

// IsValid checks if the source is valid
func (s EntrySource) IsValid() bool {
	switch s {
	case SourceCash, SourceBank, SourceStripe, SourceAuto, SourceDues,
		SourceAdjustment, SourceReversal, SourceAutoSettlement, SourceLegacyMigration:
		return true
	}
	return false
}

// IsPaymentMethod reports whether the source is a valid payment method
func (s EntrySource) IsPaymentMethod() bool {
	switch s {
	case SourceCash, SourceBank, SourceStripe, SourceAuto:
		return true
	}
	return false
}

// IsManualMethod reports whether the source is a manually collected payment
// method. Only manually collected credit may fund auto-settlement; credit
// recorded with the "auto" method is excluded.
func (s EntrySource) IsManualMethod() bool {
	switch s {
	case SourceCash, SourceBank, SourceStripe:
		return true
	}
	return false
}

// EntryStatus represents the lifecycle status of a ledger entry.
// Voided and reversed are terminal and mutually exclusive.
type EntryStatus string

const (
	EntryStatusPosted   EntryStatus = "posted"
	EntryStatusVoided   EntryStatus = "voided"
	EntryStatusReversed EntryStatus = "reversed"
)

// IsValid checks if the status is valid
func (s EntryStatus) IsValid() bool {
	return s == EntryStatusPosted || s == EntryStatusVoided || s == EntryStatusReversed
}

// IsTerminal returns true for voided or reversed entries
func (s EntryStatus) IsTerminal() bool {
	return s == EntryStatusVoided || s == EntryStatusReversed
}

// DueStatus tracks whether a due has been fully covered by allocations
type DueStatus string

const (
	DueStatusOpen DueStatus = "open"
	DueStatusPaid DueStatus = "paid"
)

// AllocationStatus tracks how much of a payment has been applied to dues
type AllocationStatus string

const (
	AllocationStatusUnapplied AllocationStatus = "unapplied"
	AllocationStatusPartial   AllocationStatus = "partial"
	AllocationStatusApplied   AllocationStatus = "applied"
)

// Entry-specific domain errors surfaced to clients as stable reason codes
var (
	ErrEntryNotPosted          = shared.NewDomainError("ENTRY_NOT_POSTED", "Entry is not in posted status")
	ErrEntryVoided             = shared.NewDomainError("ENTRY_VOIDED", "Entry has been voided and cannot be reversed")
	ErrEntryReversed           = shared.NewDomainError("ENTRY_REVERSED", "Entry has been reversed and cannot be voided")
	ErrUseReversePayment       = shared.NewDomainError("USE_REVERSE_PAYMENT_CALLABLE", "Payments must be reversed through the payment reversal operation")
	ErrDueAlreadyPaid          = shared.NewDomainError("DUE_ALREADY_PAID", "Due is already fully paid")
	ErrPaymentNotAllocatable   = shared.NewDomainError("PAYMENT_NOT_ALLOCATABLE", "Payment has no unapplied balance to allocate")
	ErrNoEligibleDues          = shared.NewDomainError("NO_ELIGIBLE_DUES", "No open due can be fully settled from available credit")
	ErrRebuildThrottled        = shared.NewDomainError("REBUILD_THROTTLED", "Balance rebuild was requested too recently for this unit")
	ErrConcurrentLedgerActivity = shared.NewDomainError("CONCURRENT_LEDGER_ACTIVITY", "Ledger activity advanced the balance cache during rebuild")
)

// LedgerEntry is an immutable economic fact once posted. Amounts never
// change; the only permitted mutation is a status transition
// (posted -> voided | reversed) and the cache-sync bookkeeping stamps.
type LedgerEntry struct {
	shared.TenantAggregateRoot
	EntryNumber string // deterministic from the idempotency key, unique per tenant
	UnitID      *uuid.UUID
	Type        EntryType
	AmountMinor int64
	Currency    valueobject.Currency
	Source      EntrySource
	Status      EntryStatus
	// AffectsBalance is false for internal settlement credit so cash-flow
	// totals exclude internal reallocations
	AffectsBalance bool
	Reference      string
	Period         valueobject.Period

	// Due tracking (present on DEBIT dues)
	DueTotalMinor       int64
	DueAllocatedMinor   int64
	DueOutstandingMinor int64
	DueStatus           DueStatus

	// Payment tracking (present on CREDIT payments)
	AppliedMinor     int64
	UnappliedMinor   int64
	AllocationStatus AllocationStatus

	// Linkage
	RelatedDueID    *uuid.UUID
	ReversalOf      *uuid.UUID // set on a compensating entry, points at the original
	ReversalEntryID *uuid.UUID // set on the original, points at the compensating entry

	VoidReason     string
	VoidedAt       *time.Time
	VoidedBy       *uuid.UUID
	ReversalReason string
	ReversedAt     *time.Time

	// Cache-sync bookkeeping written by the balance projector; technical,
	// not part of the immutable economic fact
	BalanceAppliedAt       *time.Time
	BalanceAppliedVersion  int64
	BalanceRevertedAt      *time.Time
	BalanceRevertedVersion int64
}

func validateAmount(amount valueobject.Money) error {
	if !amount.IsPositive() {
		return shared.NewDomainError("INVALID_AMOUNT", "Amount must be a positive number of minor units")
	}
	return nil
}

// NewPaymentEntry creates a posted CREDIT entry for a resident payment.
// The full amount starts unapplied; allocation happens separately.
func NewPaymentEntry(
	tenantID, unitID uuid.UUID,
	amount valueobject.Money,
	method EntrySource,
	entryNumber string,
	reference string,
	relatedDueID *uuid.UUID,
	period valueobject.Period,
) (*LedgerEntry, error) {
	if err := validateAmount(amount); err != nil {
		return nil, err
	}
	if !method.IsPaymentMethod() {
		return nil, shared.NewDomainError("INVALID_METHOD", fmt.Sprintf("%q is not a valid payment method", method))
	}
	if unitID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_UNIT", "Unit ID cannot be empty")
	}
	if entryNumber == "" {
		return nil, shared.NewDomainError("INVALID_ENTRY_NUMBER", "Entry number cannot be empty")
	}

	e := &LedgerEntry{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(tenantID),
		EntryNumber:         entryNumber,
		UnitID:              &unitID,
		Type:                EntryTypeCredit,
		AmountMinor:         amount.Minor(),
		Currency:            amount.Currency(),
		Source:              method,
		Status:              EntryStatusPosted,
		AffectsBalance:      true,
		Reference:           reference,
		Period:              period,
		UnappliedMinor:      amount.Minor(),
		AllocationStatus:    AllocationStatusUnapplied,
		RelatedDueID:        relatedDueID,
	}
	e.AddDomainEvent(NewEntryPostedEvent(e))
	return e, nil
}

// NewExpenseEntry creates a posted DEBIT entry. When the source is "dues"
// and a unit is given, due-tracking fields are initialized so the entry
// participates in allocation.
func NewExpenseEntry(
	tenantID uuid.UUID,
	unitID *uuid.UUID,
	amount valueobject.Money,
	source EntrySource,
	entryNumber string,
	reference string,
	period valueobject.Period,
) (*LedgerEntry, error) {
	if err := validateAmount(amount); err != nil {
		return nil, err
	}
	if !source.IsValid() {
		return nil, shared.NewDomainError("INVALID_SOURCE", fmt.Sprintf("%q is not a valid entry source", source))
	}
	if entryNumber == "" {
		return nil, shared.NewDomainError("INVALID_ENTRY_NUMBER", "Entry number cannot be empty")
	}

	e := &LedgerEntry{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(tenantID),
		EntryNumber:         entryNumber,
		UnitID:              unitID,
		Type:                EntryTypeDebit,
		AmountMinor:         amount.Minor(),
		Currency:            amount.Currency(),
		Source:              source,
		Status:              EntryStatusPosted,
		AffectsBalance:      true,
		Reference:           reference,
		Period:              period,
	}
	if source == SourceDues && unitID != nil {
		e.DueTotalMinor = amount.Minor()
		e.DueAllocatedMinor = 0
		e.DueOutstandingMinor = amount.Minor()
		e.DueStatus = DueStatusOpen
	}
	e.AddDomainEvent(NewEntryPostedEvent(e))
	return e, nil
}

// NewAdjustmentEntry creates a posted manual correction entry outside
// payment/due semantics
func NewAdjustmentEntry(
	tenantID uuid.UUID,
	entryType EntryType,
	unitID *uuid.UUID,
	amount valueobject.Money,
	entryNumber string,
	reference string,
) (*LedgerEntry, error) {
	if err := validateAmount(amount); err != nil {
		return nil, err
	}
	if !entryType.IsValid() {
		return nil, shared.NewDomainError("INVALID_ENTRY_TYPE", fmt.Sprintf("%q is not a valid entry type", entryType))
	}
	if entryNumber == "" {
		return nil, shared.NewDomainError("INVALID_ENTRY_NUMBER", "Entry number cannot be empty")
	}

	e := &LedgerEntry{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(tenantID),
		EntryNumber:         entryNumber,
		UnitID:              unitID,
		Type:                entryType,
		AmountMinor:         amount.Minor(),
		Currency:            amount.Currency(),
		Source:              SourceAdjustment,
		Status:              EntryStatusPosted,
		AffectsBalance:      true,
		Reference:           reference,
	}
	e.AddDomainEvent(NewEntryPostedEvent(e))
	return e, nil
}

// NewReversalEntry creates the compensating entry for a posted original.
// It carries the opposite type and the full original amount.
func NewReversalEntry(original *LedgerEntry, entryNumber, reason string) (*LedgerEntry, error) {
	if original.Status != EntryStatusPosted {
		return nil, ErrEntryNotPosted
	}
	if reason == "" {
		return nil, shared.NewDomainError("INVALID_REASON", "Reversal reason is required")
	}

	origID := original.ID
	e := &LedgerEntry{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(original.TenantID),
		EntryNumber:         entryNumber,
		UnitID:              original.UnitID,
		Type:                original.Type.Opposite(),
		AmountMinor:         original.AmountMinor,
		Currency:            original.Currency,
		Source:              SourceReversal,
		Status:              EntryStatusPosted,
		AffectsBalance:      original.AffectsBalance,
		Reference:           reason,
		Period:              original.Period,
		ReversalOf:          &origID,
	}
	e.AddDomainEvent(NewEntryPostedEvent(e))
	return e, nil
}

// NewSettlementEntry creates the internal CREDIT entry recording that a due
// was closed from existing credit. It never affects the cached balance:
// the funding payments already did.
func NewSettlementEntry(
	tenantID, unitID uuid.UUID,
	amount valueobject.Money,
	entryNumber string,
	dueID uuid.UUID,
) (*LedgerEntry, error) {
	if err := validateAmount(amount); err != nil {
		return nil, err
	}

	due := dueID
	e := &LedgerEntry{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(tenantID),
		EntryNumber:         entryNumber,
		UnitID:              &unitID,
		Type:                EntryTypeCredit,
		AmountMinor:         amount.Minor(),
		Currency:            amount.Currency(),
		Source:              SourceAutoSettlement,
		Status:              EntryStatusPosted,
		AffectsBalance:      false,
		AppliedMinor:        amount.Minor(),
		AllocationStatus:    AllocationStatusApplied,
		RelatedDueID:        &due,
	}
	e.AddDomainEvent(NewEntryPostedEvent(e))
	return e, nil
}

// IsDue reports whether the entry is a due (DEBIT with due tracking)
func (e *LedgerEntry) IsDue() bool {
	return e.Type == EntryTypeDebit && e.DueStatus != ""
}

// IsPayment reports whether the entry is an externally funded payment
func (e *LedgerEntry) IsPayment() bool {
	return e.Type == EntryTypeCredit && e.Source.IsPaymentMethod()
}

// IsSettlement reports whether the entry is an internal settlement credit
func (e *LedgerEntry) IsSettlement() bool {
	return e.Source == SourceAutoSettlement
}

// IsOpenDue reports whether the entry is a posted due with outstanding amount
func (e *LedgerEntry) IsOpenDue() bool {
	return e.IsDue() && e.Status == EntryStatusPosted && e.DueStatus == DueStatusOpen && e.DueOutstandingMinor > 0
}

// CanFundAutoSettlement reports whether the entry may serve as a funding
// source for auto-settlement: posted, manually collected, with unapplied credit
func (e *LedgerEntry) CanFundAutoSettlement() bool {
	return e.Type == EntryTypeCredit &&
		e.Status == EntryStatusPosted &&
		e.Source.IsManualMethod() &&
		e.UnappliedMinor > 0
}

// AllocateToDue records that amountMinor of some payment was applied to
// this due. Fails if the due cannot accept the amount.
func (e *LedgerEntry) AllocateToDue(amountMinor int64) error {
	if !e.IsDue() {
		return shared.NewDomainError("NOT_A_DUE", "Entry does not track a due")
	}
	if e.Status != EntryStatusPosted {
		return ErrEntryNotPosted
	}
	if amountMinor <= 0 {
		return shared.NewDomainError("INVALID_AMOUNT", "Allocation amount must be positive")
	}
	if e.DueStatus == DueStatusPaid || e.DueOutstandingMinor == 0 {
		return ErrDueAlreadyPaid
	}
	if e.DueAllocatedMinor+amountMinor > e.DueTotalMinor {
		return shared.NewDomainError("EXCEEDS_DUE", fmt.Sprintf(
			"Allocation of %d exceeds due capacity (%d of %d already allocated)",
			amountMinor, e.DueAllocatedMinor, e.DueTotalMinor))
	}

	e.DueAllocatedMinor += amountMinor
	e.DueOutstandingMinor = e.DueTotalMinor - e.DueAllocatedMinor
	if e.DueOutstandingMinor == 0 {
		e.DueStatus = DueStatusPaid
	}
	e.UpdatedAt = time.Now()
	e.IncrementVersion()
	return nil
}

// ReleaseFromDue removes a previous allocation, e.g. when the funding
// payment is reversed, and recomputes the due status
func (e *LedgerEntry) ReleaseFromDue(amountMinor int64) error {
	if !e.IsDue() {
		return shared.NewDomainError("NOT_A_DUE", "Entry does not track a due")
	}
	if amountMinor <= 0 {
		return shared.NewDomainError("INVALID_AMOUNT", "Release amount must be positive")
	}
	if amountMinor > e.DueAllocatedMinor {
		return shared.NewDomainError("EXCEEDS_ALLOCATED", fmt.Sprintf(
			"Release of %d exceeds allocated amount %d", amountMinor, e.DueAllocatedMinor))
	}

	e.DueAllocatedMinor -= amountMinor
	e.DueOutstandingMinor = e.DueTotalMinor - e.DueAllocatedMinor
	if e.DueOutstandingMinor > 0 {
		e.DueStatus = DueStatusOpen
	}
	e.UpdatedAt = time.Now()
	e.IncrementVersion()
	return nil
}

// RepairDueAggregates overwrites the due's allocation aggregates with the
// canonical allocation sum recomputed during reconciliation
func (e *LedgerEntry) RepairDueAggregates(allocatedMinor int64) error {
	if !e.IsDue() {
		return shared.NewDomainError("NOT_A_DUE", "Entry does not track a due")
	}
	if allocatedMinor < 0 || allocatedMinor > e.DueTotalMinor {
		return shared.NewDomainError("INVALID_AMOUNT", fmt.Sprintf(
			"Canonical allocated amount %d is outside [0, %d]", allocatedMinor, e.DueTotalMinor))
	}

	e.DueAllocatedMinor = allocatedMinor
	e.DueOutstandingMinor = e.DueTotalMinor - allocatedMinor
	if e.DueOutstandingMinor == 0 {
		e.DueStatus = DueStatusPaid
	} else {
		e.DueStatus = DueStatusOpen
	}
	e.UpdatedAt = time.Now()
	e.IncrementVersion()
	return nil
}

// ConsumeUnapplied moves part of the payment's unapplied balance to applied
func (e *LedgerEntry) ConsumeUnapplied(amountMinor int64) error {
	if e.Type != EntryTypeCredit {
		return shared.NewDomainError("NOT_A_PAYMENT", "Entry is not a credit")
	}
	if e.Status != EntryStatusPosted {
		return ErrEntryNotPosted
	}
	if amountMinor <= 0 {
		return shared.NewDomainError("INVALID_AMOUNT", "Consumed amount must be positive")
	}
	if amountMinor > e.UnappliedMinor {
		return shared.NewDomainError("EXCEEDS_UNAPPLIED", fmt.Sprintf(
			"Consumption of %d exceeds unapplied balance %d", amountMinor, e.UnappliedMinor))
	}

	e.AppliedMinor += amountMinor
	e.UnappliedMinor -= amountMinor
	e.refreshAllocationStatus()
	e.UpdatedAt = time.Now()
	e.IncrementVersion()
	return nil
}

func (e *LedgerEntry) refreshAllocationStatus() {
	switch {
	case e.AppliedMinor == 0:
		e.AllocationStatus = AllocationStatusUnapplied
	case e.UnappliedMinor == 0:
		e.AllocationStatus = AllocationStatusApplied
	default:
		e.AllocationStatus = AllocationStatusPartial
	}
}

// Void transitions a posted entry to voided. The status-specific conflicts
// let clients distinguish why a terminal entry rejects the operation.
func (e *LedgerEntry) Void(reason string, voidedBy uuid.UUID) error {
	switch e.Status {
	case EntryStatusVoided:
		return shared.NewDomainError("ENTRY_VOIDED", "Entry is already voided")
	case EntryStatusReversed:
		return ErrEntryReversed
	}
	if reason == "" {
		return shared.NewDomainError("INVALID_REASON", "Void reason is required")
	}

	now := time.Now()
	e.Status = EntryStatusVoided
	e.VoidReason = reason
	e.VoidedAt = &now
	e.VoidedBy = &voidedBy
	e.UpdatedAt = now
	e.IncrementVersion()
	e.AddDomainEvent(NewEntryStatusChangedEvent(e, EntryStatusPosted))
	return nil
}

// MarkReversed transitions a posted entry to reversed, linking the
// compensating entry
func (e *LedgerEntry) MarkReversed(reason string, reversalEntryID uuid.UUID) error {
	switch e.Status {
	case EntryStatusVoided:
		return ErrEntryVoided
	case EntryStatusReversed:
		return shared.NewDomainError("ENTRY_REVERSED", "Entry is already reversed")
	}

	now := time.Now()
	e.Status = EntryStatusReversed
	e.ReversalReason = reason
	e.ReversedAt = &now
	e.ReversalEntryID = &reversalEntryID
	e.UpdatedAt = now
	e.IncrementVersion()
	e.AddDomainEvent(NewEntryStatusChangedEvent(e, EntryStatusPosted))
	return nil
}

// BalanceDelta returns the entry's signed contribution to the cached unit
// balance: positive for credit, negative for debit, zero when the entry is
// balance-neutral
func (e *LedgerEntry) BalanceDelta() int64 {
	if !e.AffectsBalance {
		return 0
	}
	if e.Type == EntryTypeCredit {
		return e.AmountMinor
	}
	return -e.AmountMinor
}

// CanonicalDelta returns the entry's contribution to the canonical balance:
// the same signed amount, but only while the entry is posted
func (e *LedgerEntry) CanonicalDelta() int64 {
	if e.Status != EntryStatusPosted {
		return 0
	}
	return e.BalanceDelta()
}
