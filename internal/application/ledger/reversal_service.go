package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/strata/backend/internal/domain/ledger"
	"github.com/strata/backend/internal/domain/shared"
	"github.com/strata/backend/internal/infrastructure/telemetry"
)

// ReversalService compensates posted entries. Amounts are never edited:
// a reversal adds an opposite-type entry and flips the original's status.
type ReversalService struct {
	store ledger.Store
}

// NewReversalService creates a new ReversalService
func NewReversalService(store ledger.Store) *ReversalService {
	return &ReversalService{store: store}
}

// ReversePaymentRequest represents a request to reverse a payment
type ReversePaymentRequest struct {
	TenantID       uuid.UUID
	PaymentEntryID uuid.UUID
	Reason         string
	ActorID        *uuid.UUID
}

// ReversalResult represents the outcome of a reversal or void
type ReversalResult struct {
	OriginalEntryID uuid.UUID          `json:"original_entry_id"`
	ReversalEntryID *uuid.UUID         `json:"reversal_entry_id,omitempty"`
	Status          ledger.EntryStatus `json:"status"`
	ReleasedDueIDs  []uuid.UUID        `json:"released_due_ids,omitempty"`
	Replayed        bool               `json:"replayed"`
}

// ReversePayment creates the compensating DEBIT for a posted payment,
// compensates every allocation the payment funded with a negative row,
// releases the affected dues and marks the payment reversed. Retries
// replay the original outcome without re-applying.
func (s *ReversalService) ReversePayment(ctx context.Context, req ReversePaymentRequest) (*ReversalResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "ledger", "reverse_payment")
	defer span.End()
	telemetry.SetAttributes(span, telemetry.SpanAttrEntryID, req.PaymentEntryID.String())

	if req.Reason == "" {
		err := shared.NewDomainError("INVALID_REASON", "Reversal reason is required")
		telemetry.RecordError(span, err)
		return nil, err
	}

	var result *ReversalResult
	err := s.store.InTransaction(ctx, func(tx ledger.Tx) error {
		payment, err := tx.Entries().FindByIDForTenant(ctx, req.TenantID, req.PaymentEntryID)
		if err != nil {
			return fmt.Errorf("failed to load payment: %w", err)
		}
		if payment == nil || !payment.IsPayment() {
			return shared.NewDomainError("PAYMENT_NOT_FOUND", "Payment entry not found")
		}

		// Idempotent replay: a reversed payment with a linked compensating
		// entry is a completed earlier call
		if payment.Status == ledger.EntryStatusReversed && payment.ReversalEntryID != nil {
			result = &ReversalResult{
				OriginalEntryID: payment.ID,
				ReversalEntryID: payment.ReversalEntryID,
				Status:          payment.Status,
				Replayed:        true,
			}
			return nil
		}
		if payment.Status != ledger.EntryStatusPosted {
			return ledger.ErrEntryVoided
		}

		// Pre-read the allocations and the dues they funded
		allocs, err := tx.Allocations().FindByPayment(ctx, req.TenantID, payment.ID)
		if err != nil {
			return fmt.Errorf("failed to load allocations: %w", err)
		}
		dueByID := make(map[uuid.UUID]*ledger.LedgerEntry)
		for i := range allocs {
			if allocs[i].IsReversal() {
				continue
			}
			dueID := allocs[i].DueEntryID
			if _, ok := dueByID[dueID]; ok {
				continue
			}
			due, err := tx.Entries().FindByIDForTenant(ctx, req.TenantID, dueID)
			if err != nil {
				return fmt.Errorf("failed to load due %s: %w", dueID, err)
			}
			if due == nil {
				return shared.NewDomainError("DUE_NOT_FOUND", fmt.Sprintf("Allocated due %s not found", dueID))
			}
			dueByID[dueID] = due
		}

		reversal, err := ledger.NewReversalEntry(payment, ledger.ReversalEntryNumber(payment.EntryNumber), req.Reason)
		if err != nil {
			return err
		}
		if req.ActorID != nil {
			reversal.SetCreatedBy(*req.ActorID)
		}

		var compensations []*ledger.DueAllocation
		var releasedDueIDs []uuid.UUID
		for i := range allocs {
			if allocs[i].IsReversal() {
				continue
			}
			comp, err := ledger.NewReversalAllocation(&allocs[i])
			if err != nil {
				return err
			}
			compensations = append(compensations, comp)

			due := dueByID[allocs[i].DueEntryID]
			if err := due.ReleaseFromDue(allocs[i].AmountMinor); err != nil {
				return err
			}
			releasedDueIDs = append(releasedDueIDs, due.ID)
		}

		if err := payment.MarkReversed(req.Reason, reversal.ID); err != nil {
			return err
		}

		if err := tx.Entries().Save(ctx, reversal); err != nil {
			return fmt.Errorf("failed to save reversal entry: %w", err)
		}
		if err := tx.Entries().Save(ctx, payment); err != nil {
			return fmt.Errorf("failed to save payment: %w", err)
		}
		for _, due := range dueByID {
			if err := tx.Entries().Save(ctx, due); err != nil {
				return fmt.Errorf("failed to save due: %w", err)
			}
		}
		if len(compensations) > 0 {
			if err := tx.Allocations().Save(ctx, compensations...); err != nil {
				return fmt.Errorf("failed to save reversal allocations: %w", err)
			}
		}
		if err := saveAggregateEvents(ctx, tx, reversal, payment); err != nil {
			return err
		}

		reversalID := reversal.ID
		result = &ReversalResult{
			OriginalEntryID: payment.ID,
			ReversalEntryID: &reversalID,
			Status:          payment.Status,
			ReleasedDueIDs:  releasedDueIDs,
		}
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return result, nil
}

// VoidEntryRequest represents a void or generic reversal request
type VoidEntryRequest struct {
	TenantID uuid.UUID
	EntryID  uuid.UUID
	Reason   string
	ActorID  uuid.UUID
}

// VoidLedgerEntry voids a posted non-payment entry. No compensating entry
// is written; the status transition alone excludes it from canonical totals.
func (s *ReversalService) VoidLedgerEntry(ctx context.Context, req VoidEntryRequest) (*ReversalResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "ledger", "void_entry")
	defer span.End()
	telemetry.SetAttributes(span, telemetry.SpanAttrEntryID, req.EntryID.String())

	var result *ReversalResult
	err := s.store.InTransaction(ctx, func(tx ledger.Tx) error {
		entry, err := tx.Entries().FindByIDForTenant(ctx, req.TenantID, req.EntryID)
		if err != nil {
			return fmt.Errorf("failed to load entry: %w", err)
		}
		if entry == nil {
			return shared.NewDomainError("ENTRY_NOT_FOUND", "Ledger entry not found")
		}
		if entry.IsPayment() {
			return ledger.ErrUseReversePayment
		}

		if err := entry.Void(req.Reason, req.ActorID); err != nil {
			return err
		}

		if err := tx.Entries().Save(ctx, entry); err != nil {
			return fmt.Errorf("failed to save entry: %w", err)
		}
		if err := saveAggregateEvents(ctx, tx, entry); err != nil {
			return err
		}

		result = &ReversalResult{OriginalEntryID: entry.ID, Status: entry.Status}
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return result, nil
}

// ReverseLedgerEntry creates an opposite-type compensating entry for a
// posted non-payment entry and marks the original reversed
func (s *ReversalService) ReverseLedgerEntry(ctx context.Context, req VoidEntryRequest) (*ReversalResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "ledger", "reverse_entry")
	defer span.End()
	telemetry.SetAttributes(span, telemetry.SpanAttrEntryID, req.EntryID.String())

	if req.Reason == "" {
		err := shared.NewDomainError("INVALID_REASON", "Reversal reason is required")
		telemetry.RecordError(span, err)
		return nil, err
	}

	var result *ReversalResult
	err := s.store.InTransaction(ctx, func(tx ledger.Tx) error {
		entry, err := tx.Entries().FindByIDForTenant(ctx, req.TenantID, req.EntryID)
		if err != nil {
			return fmt.Errorf("failed to load entry: %w", err)
		}
		if entry == nil {
			return shared.NewDomainError("ENTRY_NOT_FOUND", "Ledger entry not found")
		}
		if entry.IsPayment() {
			return ledger.ErrUseReversePayment
		}

		// Replay: already reversed with a linked compensating entry
		if entry.Status == ledger.EntryStatusReversed && entry.ReversalEntryID != nil {
			result = &ReversalResult{
				OriginalEntryID: entry.ID,
				ReversalEntryID: entry.ReversalEntryID,
				Status:          entry.Status,
				Replayed:        true,
			}
			return nil
		}
		if entry.Status == ledger.EntryStatusVoided {
			return ledger.ErrEntryVoided
		}

		reversal, err := ledger.NewReversalEntry(entry, ledger.ReversalEntryNumber(entry.EntryNumber), req.Reason)
		if err != nil {
			return err
		}
		reversal.SetCreatedBy(req.ActorID)

		if err := entry.MarkReversed(req.Reason, reversal.ID); err != nil {
			return err
		}

		if err := tx.Entries().Save(ctx, reversal); err != nil {
			return fmt.Errorf("failed to save reversal entry: %w", err)
		}
		if err := tx.Entries().Save(ctx, entry); err != nil {
			return fmt.Errorf("failed to save entry: %w", err)
		}
		if err := saveAggregateEvents(ctx, tx, reversal, entry); err != nil {
			return err
		}

		reversalID := reversal.ID
		result = &ReversalResult{
			OriginalEntryID: entry.ID,
			ReversalEntryID: &reversalID,
			Status:          entry.Status,
		}
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return result, nil
}
