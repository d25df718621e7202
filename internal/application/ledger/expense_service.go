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

// ExpenseService records expense and adjustment entries
type ExpenseService struct {
	store ledger.Store
}

// NewExpenseService creates a new ExpenseService
func NewExpenseService(store ledger.Store) *ExpenseService {
	return &ExpenseService{store: store}
}

// matchesExpense reports whether a stored entry carries the same logical
// payload as the request; anything less is an idempotency conflict.
func matchesExpense(existing *ledger.LedgerEntry, req CreateExpenseRequest) bool {
	return existing.AmountMinor == req.Amount.Minor() &&
		existing.Source == req.Source &&
		sameUUIDPtr(existing.UnitID, req.UnitID) &&
		existing.Reference == req.Reference &&
		existing.Period == req.Period
}

// matchesAdjustment is the replay check for manual adjustments.
func matchesAdjustment(existing *ledger.LedgerEntry, req CreateAdjustmentRequest) bool {
	return existing.AmountMinor == req.Amount.Minor() &&
		existing.Type == req.EntryType &&
		sameUUIDPtr(existing.UnitID, req.UnitID) &&
		existing.Reference == req.Reference
}

// CreateExpenseRequest represents a request to record an expense or a due
type CreateExpenseRequest struct {
	TenantID       uuid.UUID
	UnitID         *uuid.UUID
	Amount         valueobject.Money
	Source         ledger.EntrySource
	IdempotencyKey string
	Reference      string
	Period         valueobject.Period
	CreatedBy      *uuid.UUID
}

// CreateEntryResult represents the outcome of recording a single entry
type CreateEntryResult struct {
	EntryID     uuid.UUID `json:"entry_id"`
	EntryNumber string    `json:"entry_number"`
	Replayed    bool      `json:"replayed"`
}

// CreateExpense records one DEBIT entry. With source "dues" and a unit it
// becomes an open due participating in allocation.
func (s *ExpenseService) CreateExpense(ctx context.Context, req CreateExpenseRequest) (*CreateEntryResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "ledger", "create_expense")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrAmountMinor, req.Amount.Minor(),
		telemetry.SpanAttrSource, string(req.Source),
	)

	if err := ledger.ValidateIdempotencyKey(req.IdempotencyKey); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	entryNumber := ledger.ExpenseEntryNumber(req.IdempotencyKey)

	var result *CreateEntryResult
	err := s.store.InTransaction(ctx, func(tx ledger.Tx) error {
		existing, err := tx.Entries().FindByEntryNumber(ctx, req.TenantID, entryNumber)
		if err != nil {
			return fmt.Errorf("failed to check for existing entry: %w", err)
		}
		if existing != nil {
			if !matchesExpense(existing, req) {
				return shared.ErrIdempotencyConflict
			}
			result = &CreateEntryResult{EntryID: existing.ID, EntryNumber: existing.EntryNumber, Replayed: true}
			return nil
		}

		entry, err := ledger.NewExpenseEntry(
			req.TenantID, req.UnitID, req.Amount, req.Source,
			entryNumber, req.Reference, req.Period,
		)
		if err != nil {
			return err
		}
		if req.CreatedBy != nil {
			entry.SetCreatedBy(*req.CreatedBy)
		}

		if err := tx.Entries().Save(ctx, entry); err != nil {
			return fmt.Errorf("failed to save expense entry: %w", err)
		}
		if err := saveAggregateEvents(ctx, tx, entry); err != nil {
			return err
		}

		result = &CreateEntryResult{EntryID: entry.ID, EntryNumber: entry.EntryNumber}
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return result, nil
}

// CreateAdjustmentRequest represents a manual correction entry
type CreateAdjustmentRequest struct {
	TenantID       uuid.UUID
	EntryType      ledger.EntryType
	UnitID         *uuid.UUID
	Amount         valueobject.Money
	IdempotencyKey string
	Reference      string
	CreatedBy      *uuid.UUID
}

// CreateAdjustment records a manual entry outside payment/due semantics
func (s *ExpenseService) CreateAdjustment(ctx context.Context, req CreateAdjustmentRequest) (*CreateEntryResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "ledger", "create_adjustment")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrAmountMinor, req.Amount.Minor(),
		telemetry.SpanAttrEntryType, string(req.EntryType),
	)

	if err := ledger.ValidateIdempotencyKey(req.IdempotencyKey); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	entryNumber := ledger.AdjustmentEntryNumber(req.IdempotencyKey)

	var result *CreateEntryResult
	err := s.store.InTransaction(ctx, func(tx ledger.Tx) error {
		existing, err := tx.Entries().FindByEntryNumber(ctx, req.TenantID, entryNumber)
		if err != nil {
			return fmt.Errorf("failed to check for existing entry: %w", err)
		}
		if existing != nil {
			if !matchesAdjustment(existing, req) {
				return shared.ErrIdempotencyConflict
			}
			result = &CreateEntryResult{EntryID: existing.ID, EntryNumber: existing.EntryNumber, Replayed: true}
			return nil
		}

		entry, err := ledger.NewAdjustmentEntry(
			req.TenantID, req.EntryType, req.UnitID, req.Amount,
			entryNumber, req.Reference,
		)
		if err != nil {
			return err
		}
		if req.CreatedBy != nil {
			entry.SetCreatedBy(*req.CreatedBy)
		}

		if err := tx.Entries().Save(ctx, entry); err != nil {
			return fmt.Errorf("failed to save adjustment entry: %w", err)
		}
		if err := saveAggregateEvents(ctx, tx, entry); err != nil {
			return err
		}

		result = &CreateEntryResult{EntryID: entry.ID, EntryNumber: entry.EntryNumber}
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return result, nil
}
