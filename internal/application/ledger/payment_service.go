package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/strata/backend/internal/domain/ledger"
	"github.com/strata/backend/internal/domain/shared"
	"github.com/strata/backend/internal/domain/shared/valueobject"
	"github.com/strata/backend/internal/infrastructure/telemetry"
)

// PaymentService records resident payments and applies them to open dues
type PaymentService struct {
	store ledger.Store
}

// NewPaymentService creates a new PaymentService
func NewPaymentService(store ledger.Store) *PaymentService {
	return &PaymentService{store: store}
}

// sameUUIDPtr reports whether two optional IDs refer to the same entry.
func sameUUIDPtr(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// matchesPayment reports whether a stored entry carries the same logical
// payload as the request. A retried call replays only on a full match;
// reusing the idempotency key with any field changed is a conflict.
func matchesPayment(existing *ledger.LedgerEntry, req CreatePaymentRequest) bool {
	return existing.AmountMinor == req.Amount.Minor() &&
		existing.Source == req.Method &&
		existing.UnitID != nil && *existing.UnitID == req.UnitID &&
		sameUUIDPtr(existing.RelatedDueID, req.RelatedDueID) &&
		existing.Reference == req.Reference &&
		existing.Period == req.Period
}

// CreatePaymentRequest represents a request to record a payment
type CreatePaymentRequest struct {
	TenantID       uuid.UUID
	UnitID         uuid.UUID
	Amount         valueobject.Money
	Method         ledger.EntrySource
	IdempotencyKey string
	Reference      string
	RelatedDueID   *uuid.UUID
	Period         valueobject.Period
	CreatedBy      *uuid.UUID
}

// AllocationSummary describes one payment-to-due application
type AllocationSummary struct {
	AllocationID uuid.UUID `json:"allocation_id"`
	DueEntryID   uuid.UUID `json:"due_entry_id"`
	AmountMinor  int64     `json:"amount_minor"`
}

// CreatePaymentResult represents the outcome of recording a payment
type CreatePaymentResult struct {
	EntryID        uuid.UUID           `json:"entry_id"`
	EntryNumber    string              `json:"entry_number"`
	AppliedMinor   int64               `json:"applied_minor"`
	UnappliedMinor int64               `json:"unapplied_minor"`
	Allocations    []AllocationSummary `json:"allocations"`
	Replayed       bool                `json:"replayed"`
}

// CreatePayment records one CREDIT entry and applies it to open dues inside
// a single transaction. With a related due the payment targets that due
// only; otherwise it is applied FIFO across open dues ordered by period
// then entry ID, leaving any remainder unapplied. A retried call with the
// same idempotency key replays the original outcome.
func (s *PaymentService) CreatePayment(ctx context.Context, req CreatePaymentRequest) (*CreatePaymentResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "ledger", "create_payment")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrUnitID, req.UnitID.String(),
		telemetry.SpanAttrAmountMinor, req.Amount.Minor(),
		telemetry.SpanAttrSource, string(req.Method),
	)

	if err := ledger.ValidateIdempotencyKey(req.IdempotencyKey); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if req.UnitID == uuid.Nil {
		err := shared.NewDomainError("INVALID_UNIT", "Unit ID is required")
		telemetry.RecordError(span, err)
		return nil, err
	}

	entryNumber := ledger.PaymentEntryNumber(req.IdempotencyKey)

	var result *CreatePaymentResult
	err := s.store.InTransaction(ctx, func(tx ledger.Tx) error {
		// Replay check before anything else
		existing, err := tx.Entries().FindByEntryNumber(ctx, req.TenantID, entryNumber)
		if err != nil {
			return fmt.Errorf("failed to check for existing entry: %w", err)
		}
		if existing != nil {
			if !matchesPayment(existing, req) {
				return shared.ErrIdempotencyConflict
			}
			replayed, err := s.replayResult(ctx, tx, existing)
			if err != nil {
				return err
			}
			result = replayed
			return nil
		}

		entry, err := ledger.NewPaymentEntry(
			req.TenantID, req.UnitID, req.Amount, req.Method,
			entryNumber, req.Reference, req.RelatedDueID, req.Period,
		)
		if err != nil {
			return err
		}
		if req.CreatedBy != nil {
			entry.SetCreatedBy(*req.CreatedBy)
		}

		// Pre-read every candidate due before the first write
		var dues []*ledger.LedgerEntry
		if req.RelatedDueID != nil {
			due, err := tx.Entries().FindByIDForTenant(ctx, req.TenantID, *req.RelatedDueID)
			if err != nil {
				return fmt.Errorf("failed to load related due: %w", err)
			}
			if due == nil || !due.IsDue() {
				return shared.NewDomainError("DUE_NOT_FOUND", "Related due not found")
			}
			if !due.IsOpenDue() {
				return ledger.ErrDueAlreadyPaid
			}
			dues = []*ledger.LedgerEntry{due}
		} else {
			open, err := tx.Entries().FindOpenDuesForUnit(ctx, req.TenantID, req.UnitID)
			if err != nil {
				return fmt.Errorf("failed to load open dues: %w", err)
			}
			for i := range open {
				dues = append(dues, &open[i])
			}
		}

		summaries, allocations, touched, err := allocateAcrossDues(entry, dues)
		if err != nil {
			return err
		}

		if err := tx.Entries().Save(ctx, entry); err != nil {
			return fmt.Errorf("failed to save payment entry: %w", err)
		}
		for _, due := range touched {
			if err := tx.Entries().Save(ctx, due); err != nil {
				return fmt.Errorf("failed to save due: %w", err)
			}
		}
		if len(allocations) > 0 {
			if err := tx.Allocations().Save(ctx, allocations...); err != nil {
				return fmt.Errorf("failed to save allocations: %w", err)
			}
		}
		if err := saveAggregateEvents(ctx, tx, entry); err != nil {
			return err
		}

		result = &CreatePaymentResult{
			EntryID:        entry.ID,
			EntryNumber:    entry.EntryNumber,
			AppliedMinor:   entry.AppliedMinor,
			UnappliedMinor: entry.UnappliedMinor,
			Allocations:    summaries,
		}
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	telemetry.SetAttributes(span,
		telemetry.SpanAttrEntryID, result.EntryID.String(),
		"replayed", result.Replayed,
	)
	return result, nil
}

// allocateAcrossDues walks the pre-read dues in order, consuming the
// payment's unapplied balance until either side is exhausted
func allocateAcrossDues(payment *ledger.LedgerEntry, dues []*ledger.LedgerEntry) ([]AllocationSummary, []*ledger.DueAllocation, []*ledger.LedgerEntry, error) {
	var summaries []AllocationSummary
	var allocations []*ledger.DueAllocation
	var touched []*ledger.LedgerEntry

	for _, due := range dues {
		if payment.UnappliedMinor == 0 {
			break
		}
		if !due.IsOpenDue() {
			continue
		}
		take := min(payment.UnappliedMinor, due.DueOutstandingMinor)
		if take <= 0 {
			continue
		}
		if err := due.AllocateToDue(take); err != nil {
			return nil, nil, nil, err
		}
		if err := payment.ConsumeUnapplied(take); err != nil {
			return nil, nil, nil, err
		}
		alloc, err := ledger.NewDueAllocation(payment.TenantID, *payment.UnitID, payment.ID, due.ID, take)
		if err != nil {
			return nil, nil, nil, err
		}
		allocations = append(allocations, alloc)
		touched = append(touched, due)
		summaries = append(summaries, AllocationSummary{
			AllocationID: alloc.ID,
			DueEntryID:   due.ID,
			AmountMinor:  take,
		})
	}
	return summaries, allocations, touched, nil
}

// replayResult rebuilds the original outcome for an idempotent retry
func (s *PaymentService) replayResult(ctx context.Context, tx ledger.Tx, entry *ledger.LedgerEntry) (*CreatePaymentResult, error) {
	allocs, err := tx.Allocations().FindByPayment(ctx, entry.TenantID, entry.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load allocations for replay: %w", err)
	}
	summaries := make([]AllocationSummary, 0, len(allocs))
	for _, a := range allocs {
		if a.IsReversal() {
			continue
		}
		summaries = append(summaries, AllocationSummary{
			AllocationID: a.ID,
			DueEntryID:   a.DueEntryID,
			AmountMinor:  a.AmountMinor,
		})
	}
	return &CreatePaymentResult{
		EntryID:        entry.ID,
		EntryNumber:    entry.EntryNumber,
		AppliedMinor:   entry.AppliedMinor,
		UnappliedMinor: entry.UnappliedMinor,
		Allocations:    summaries,
		Replayed:       true,
	}, nil
}

// AllocateRequest represents an explicit payment-to-due allocation
type AllocateRequest struct {
	TenantID       uuid.UUID
	PaymentEntryID uuid.UUID
	DueID          uuid.UUID
	CapMinor       *int64
}

// AllocateResult represents the outcome of an explicit allocation
type AllocateResult struct {
	AllocationID   uuid.UUID `json:"allocation_id"`
	AllocatedMinor int64     `json:"allocated_minor"`
	AppliedMinor   int64     `json:"applied_minor"`
	UnappliedMinor int64     `json:"unapplied_minor"`
}

// AllocatePaymentToDue applies up to capMinor (or all remaining unapplied)
// of an existing payment's balance to a specific due
func (s *PaymentService) AllocatePaymentToDue(ctx context.Context, req AllocateRequest) (*AllocateResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "ledger", "allocate_payment_to_due")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrEntryID, req.PaymentEntryID.String(),
		"due_id", req.DueID.String(),
	)

	var result *AllocateResult
	err := s.store.InTransaction(ctx, func(tx ledger.Tx) error {
		payment, err := tx.Entries().FindByIDForTenant(ctx, req.TenantID, req.PaymentEntryID)
		if err != nil {
			return fmt.Errorf("failed to load payment: %w", err)
		}
		if payment == nil || !payment.IsPayment() {
			return shared.NewDomainError("PAYMENT_NOT_FOUND", "Payment entry not found")
		}
		if payment.Status != ledger.EntryStatusPosted {
			return ledger.ErrEntryNotPosted
		}
		if payment.UnappliedMinor == 0 {
			return ledger.ErrPaymentNotAllocatable
		}

		due, err := tx.Entries().FindByIDForTenant(ctx, req.TenantID, req.DueID)
		if err != nil {
			return fmt.Errorf("failed to load due: %w", err)
		}
		if due == nil || !due.IsDue() {
			return shared.NewDomainError("DUE_NOT_FOUND", "Due entry not found")
		}
		if !due.IsOpenDue() {
			return ledger.ErrDueAlreadyPaid
		}

		take := min(payment.UnappliedMinor, due.DueOutstandingMinor)
		if req.CapMinor != nil {
			take = min(take, *req.CapMinor)
		}
		if take <= 0 {
			return ledger.ErrDueAlreadyPaid
		}

		if err := due.AllocateToDue(take); err != nil {
			return err
		}
		if err := payment.ConsumeUnapplied(take); err != nil {
			return err
		}
		alloc, err := ledger.NewDueAllocation(payment.TenantID, *payment.UnitID, payment.ID, due.ID, take)
		if err != nil {
			return err
		}

		if err := tx.Entries().Save(ctx, payment); err != nil {
			return fmt.Errorf("failed to save payment: %w", err)
		}
		if err := tx.Entries().Save(ctx, due); err != nil {
			return fmt.Errorf("failed to save due: %w", err)
		}
		if err := tx.Allocations().Save(ctx, alloc); err != nil {
			return fmt.Errorf("failed to save allocation: %w", err)
		}

		result = &AllocateResult{
			AllocationID:   alloc.ID,
			AllocatedMinor: take,
			AppliedMinor:   payment.AppliedMinor,
			UnappliedMinor: payment.UnappliedMinor,
		}
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return result, nil
}
