package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/strata/backend/internal/domain/ledger"
	"github.com/strata/backend/internal/domain/shared"
	"github.com/strata/backend/internal/domain/shared/valueobject"
	"github.com/strata/backend/internal/infrastructure/telemetry"
)

// SettlementService closes open dues from a unit's existing unapplied credit
type SettlementService struct {
	store ledger.Store
}

// NewSettlementService creates a new SettlementService
func NewSettlementService(store ledger.Store) *SettlementService {
	return &SettlementService{store: store}
}

// AutoSettleRequest represents a request to auto-settle a unit's open dues
type AutoSettleRequest struct {
	TenantID        uuid.UUID
	UnitID          uuid.UUID
	ClientRequestID string // optional; enables persisted replay
	ActorID         *uuid.UUID
}

// AutoSettleResult represents the outcome of an auto-settlement run
type AutoSettleResult struct {
	ClosedDueCount       int         `json:"closed_due_count"`
	TotalSettledMinor    int64       `json:"total_settled_minor"`
	RemainingCreditMinor int64       `json:"remaining_credit_minor"`
	ClosedDueIDs         []uuid.UUID `json:"closed_due_ids"`
	SettlementEntryIDs   []uuid.UUID `json:"settlement_entry_ids"`
	Replayed             bool        `json:"replayed"`
	StillValid           bool        `json:"still_valid"`
}

// AutoSettleFromCredit walks a unit's open dues oldest-first and closes each
// due whose outstanding amount is fully covered by the remaining unapplied,
// manually collected credit. Partial closes never happen: a due that cannot
// be fully covered is skipped. Credit is consumed from the oldest payments
// first; each closure records one internal settlement entry plus the
// allocations funding it. With a client request ID the outcome is persisted
// and replayed on retry after a revalidation pass.
func (s *SettlementService) AutoSettleFromCredit(ctx context.Context, req AutoSettleRequest) (*AutoSettleResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "ledger", "auto_settle_from_credit")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrUnitID, req.UnitID.String(),
		telemetry.SpanAttrRequestID, req.ClientRequestID,
	)

	if req.UnitID == uuid.Nil {
		err := shared.NewDomainError("INVALID_UNIT", "Unit ID is required")
		telemetry.RecordError(span, err)
		return nil, err
	}
	if req.ClientRequestID != "" {
		if err := ledger.ValidateIdempotencyKey(req.ClientRequestID); err != nil {
			telemetry.RecordError(span, err)
			return nil, err
		}
	}

	var result *AutoSettleResult
	err := s.store.InTransaction(ctx, func(tx ledger.Tx) error {
		// Stored-outcome replay before any settlement work
		if req.ClientRequestID != "" {
			stored, err := tx.SettleResults().FindByRequestID(ctx, req.TenantID, req.UnitID, req.ClientRequestID)
			if err != nil {
				return fmt.Errorf("failed to check stored settle result: %w", err)
			}
			if stored != nil && !stored.IsExpired(time.Now()) {
				replayed, err := s.replayStored(ctx, tx, stored)
				if err != nil {
					return err
				}
				result = replayed
				return nil
			}
		}

		outcome, aggregates, allocations, err := s.settle(ctx, tx, req.TenantID, req.UnitID, req.ActorID)
		if err != nil {
			return err
		}

		for _, agg := range aggregates {
			if err := tx.Entries().Save(ctx, agg); err != nil {
				return fmt.Errorf("failed to save entry: %w", err)
			}
		}
		if err := tx.Allocations().Save(ctx, allocations...); err != nil {
			return fmt.Errorf("failed to save allocations: %w", err)
		}
		if req.ClientRequestID != "" {
			stored := ledger.NewSettleResult(req.TenantID, req.UnitID, req.ClientRequestID, *outcome)
			if err := tx.SettleResults().Save(ctx, stored); err != nil {
				return fmt.Errorf("failed to save settle result: %w", err)
			}
		}
		roots := make([]shared.AggregateRoot, len(aggregates))
		for i, agg := range aggregates {
			roots[i] = agg
		}
		if err := saveAggregateEvents(ctx, tx, roots...); err != nil {
			return err
		}

		result = &AutoSettleResult{
			ClosedDueCount:       outcome.ClosedDueCount,
			TotalSettledMinor:    outcome.TotalSettledMinor,
			RemainingCreditMinor: outcome.RemainingCreditMinor,
			ClosedDueIDs:         outcome.ClosedDueIDs,
			SettlementEntryIDs:   outcome.SettlementEntryIDs,
			StillValid:           true,
		}
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	telemetry.SetAttributes(span,
		"closed_due_count", result.ClosedDueCount,
		"total_settled_minor", result.TotalSettledMinor,
		"replayed", result.Replayed,
	)
	return result, nil
}

// settle runs one effective settlement pass. All candidate dues and funding
// credits are read before the first write.
func (s *SettlementService) settle(ctx context.Context, tx ledger.Tx, tenantID, unitID uuid.UUID, actorID *uuid.UUID) (*ledger.SettleOutcome, []*ledger.LedgerEntry, []*ledger.DueAllocation, error) {
	openDues, err := tx.Entries().FindOpenDuesForUnit(ctx, tenantID, unitID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load open dues: %w", err)
	}
	credits, err := tx.Entries().FindFundingCredits(ctx, tenantID, unitID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load funding credits: %w", err)
	}

	var available int64
	for i := range credits {
		if credits[i].CanFundAutoSettlement() {
			available += credits[i].UnappliedMinor
		}
	}

	// Select fully closable dues, oldest period first
	remaining := available
	var closable []*ledger.LedgerEntry
	for i := range openDues {
		due := &openDues[i]
		if !due.IsOpenDue() {
			continue
		}
		if due.DueOutstandingMinor <= remaining {
			closable = append(closable, due)
			remaining -= due.DueOutstandingMinor
		}
	}
	if len(closable) == 0 {
		return nil, nil, nil, ledger.ErrNoEligibleDues
	}

	outcome := &ledger.SettleOutcome{}
	var aggregates []*ledger.LedgerEntry
	var allocations []*ledger.DueAllocation
	touchedCredits := make(map[int]bool)
	creditIdx := 0

	for _, due := range closable {
		outstanding := due.DueOutstandingMinor
		settleNumber := ledger.SettlementEntryNumber(due.EntryNumber)
		settleAmount, err := valueobject.NewMoney(outstanding, due.Currency)
		if err != nil {
			return nil, nil, nil, err
		}
		settlement, err := ledger.NewSettlementEntry(tenantID, unitID, settleAmount, settleNumber, due.ID)
		if err != nil {
			return nil, nil, nil, err
		}
		if actorID != nil {
			settlement.SetCreatedBy(*actorID)
		}

		// Drain credit oldest-first until this due is fully funded
		need := outstanding
		for need > 0 {
			if creditIdx >= len(credits) {
				return nil, nil, nil, ledger.ErrNoEligibleDues
			}
			credit := &credits[creditIdx]
			if !credit.CanFundAutoSettlement() {
				creditIdx++
				continue
			}
			take := min(need, credit.UnappliedMinor)
			if err := credit.ConsumeUnapplied(take); err != nil {
				return nil, nil, nil, err
			}
			touchedCredits[creditIdx] = true
			if err := due.AllocateToDue(take); err != nil {
				return nil, nil, nil, err
			}
			alloc, err := ledger.NewSettlementAllocation(tenantID, unitID, credit.ID, due.ID, settlement.ID, take)
			if err != nil {
				return nil, nil, nil, err
			}
			allocations = append(allocations, alloc)
			outcome.AllocationIDs = append(outcome.AllocationIDs, alloc.ID)
			need -= take
			if credit.UnappliedMinor == 0 {
				creditIdx++
			}
		}

		aggregates = append(aggregates, settlement, due)
		outcome.ClosedDueCount++
		outcome.TotalSettledMinor += outstanding
		outcome.ClosedDueIDs = append(outcome.ClosedDueIDs, due.ID)
		outcome.SettlementEntryIDs = append(outcome.SettlementEntryIDs, settlement.ID)
	}

	// Mutated funding credits are saved too
	for i := range credits {
		if touchedCredits[i] {
			aggregates = append(aggregates, &credits[i])
		}
	}

	outcome.RemainingCreditMinor = available - outcome.TotalSettledMinor
	return outcome, aggregates, allocations, nil
}

// replayStored returns a previously persisted outcome, revalidating that
// the settlement entries it references are still posted. A later reversal
// flips StillValid to false without raising an error.
func (s *SettlementService) replayStored(ctx context.Context, tx ledger.Tx, stored *ledger.SettleResult) (*AutoSettleResult, error) {
	stillValid := true

	for _, id := range stored.SettlementEntryIDs {
		entry, err := tx.Entries().FindByIDForTenant(ctx, stored.TenantID, id)
		if err != nil {
			return nil, fmt.Errorf("failed to revalidate settlement entry: %w", err)
		}
		if entry == nil || entry.Status != ledger.EntryStatusPosted {
			stillValid = false
			break
		}
	}
	if stillValid && len(stored.AllocationIDs) > 0 {
		allocs, err := tx.Allocations().FindByIDs(ctx, stored.TenantID, stored.AllocationIDs)
		if err != nil {
			return nil, fmt.Errorf("failed to revalidate allocations: %w", err)
		}
		if len(allocs) != len(stored.AllocationIDs) {
			stillValid = false
		}
	}

	outcome := stored.Outcome()
	return &AutoSettleResult{
		ClosedDueCount:       outcome.ClosedDueCount,
		TotalSettledMinor:    outcome.TotalSettledMinor,
		RemainingCreditMinor: outcome.RemainingCreditMinor,
		ClosedDueIDs:         outcome.ClosedDueIDs,
		SettlementEntryIDs:   outcome.SettlementEntryIDs,
		Replayed:             true,
		StillValid:           stillValid,
	}, nil
}
