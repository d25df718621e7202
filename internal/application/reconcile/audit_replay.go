package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/strata/backend/internal/domain/ledger"
	"github.com/strata/backend/internal/infrastructure/telemetry"
)

// AuditReplayRequest scopes a replay. Since bounds the entries examined;
// nil replays the unit's full history. Full additionally verifies the
// balance cache against the canonical ledger.
type AuditReplayRequest struct {
	TenantID uuid.UUID
	UnitID   uuid.UUID
	Since    *time.Time
	Full     bool
}

// DriftFinding records one aggregate that disagreed with its replayed value
type DriftFinding struct {
	Kind           string     `json:"kind"` // due_allocated | payment_applied | balance_cache
	EntryID        *uuid.UUID `json:"entry_id,omitempty"`
	EntryNumber    string     `json:"entry_number,omitempty"`
	CachedMinor    int64      `json:"cached_minor"`
	CanonicalMinor int64      `json:"canonical_minor"`
	Detail         string     `json:"detail"`
}

// AuditReplayResult reports a completed replay
type AuditReplayResult struct {
	ExaminedEntries int            `json:"examined_entries"`
	Findings        []DriftFinding `json:"findings,omitempty"`
}

// AuditReplayUnit recomputes due and payment aggregates for a unit directly
// from the allocation rows, and in full mode also verifies the balance
// cache. Every mismatch is recorded as a replay-drift alert; nothing is
// repaired here. Replay is evidence gathering, repair goes through the
// rebuild operations.
func (s *Service) AuditReplayUnit(ctx context.Context, req AuditReplayRequest) (*AuditReplayResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "reconcile", "audit_replay_unit")
	defer span.End()
	telemetry.SetAttributes(span, telemetry.SpanAttrUnitID, req.UnitID.String())

	entries, err := s.store.Entries().FindPostedForUnit(ctx, req.TenantID, req.UnitID, req.Since)
	if err != nil {
		return nil, fmt.Errorf("failed to load entries for replay: %w", err)
	}
	allocations, err := s.store.Allocations().FindForUnit(ctx, req.TenantID, req.UnitID)
	if err != nil {
		return nil, fmt.Errorf("failed to load allocations for replay: %w", err)
	}

	byDue := make(map[uuid.UUID]int64)
	byPayment := make(map[uuid.UUID]int64)
	for _, a := range allocations {
		byDue[a.DueEntryID] += a.AmountMinor
		byPayment[a.PaymentEntryID] += a.AmountMinor
	}

	result := &AuditReplayResult{ExaminedEntries: len(entries)}
	for i := range entries {
		e := &entries[i]
		switch {
		case e.IsDue():
			replayed := byDue[e.ID]
			if replayed != e.DueAllocatedMinor {
				result.Findings = append(result.Findings, DriftFinding{
					Kind:           "due_allocated",
					EntryID:        &e.ID,
					EntryNumber:    e.EntryNumber,
					CachedMinor:    e.DueAllocatedMinor,
					CanonicalMinor: replayed,
					Detail: fmt.Sprintf("due %s carries allocated %d (outstanding %d, status %s) but allocation rows sum to %d",
						e.EntryNumber, e.DueAllocatedMinor, e.DueOutstandingMinor, e.DueStatus, replayed),
				})
			}
		case e.IsPayment():
			replayed := byPayment[e.ID]
			if replayed != e.AppliedMinor {
				result.Findings = append(result.Findings, DriftFinding{
					Kind:           "payment_applied",
					EntryID:        &e.ID,
					EntryNumber:    e.EntryNumber,
					CachedMinor:    e.AppliedMinor,
					CanonicalMinor: replayed,
					Detail: fmt.Sprintf("payment %s carries applied %d (unapplied %d) but allocation rows sum to %d",
						e.EntryNumber, e.AppliedMinor, e.UnappliedMinor, replayed),
				})
			}
		}
	}

	if req.Full {
		finding, err := s.replayBalanceCache(ctx, req.TenantID, req.UnitID)
		if err != nil {
			return nil, err
		}
		if finding != nil {
			result.Findings = append(result.Findings, *finding)
		}
	}

	for _, f := range result.Findings {
		alert := ledger.NewAlert(req.TenantID, ledger.AlertTypeAuditReplayDrift, &req.UnitID,
			f.CanonicalMinor, f.CachedMinor, f.Detail)
		if f.Kind == "due_allocated" && f.EntryID != nil {
			alert.WithDueEntry(*f.EntryID)
		}
		if err := s.store.Alerts().Save(ctx, alert); err != nil {
			return nil, fmt.Errorf("failed to save replay drift alert: %w", err)
		}
		s.logger.Warn("audit replay drift",
			zap.String("tenant_id", req.TenantID.String()),
			zap.String("unit_id", req.UnitID.String()),
			zap.String("kind", f.Kind),
			zap.Int64("cached_minor", f.CachedMinor),
			zap.Int64("canonical_minor", f.CanonicalMinor),
		)
	}
	return result, nil
}

func (s *Service) replayBalanceCache(ctx context.Context, tenantID, unitID uuid.UUID) (*DriftFinding, error) {
	canonical, err := s.store.Entries().CanonicalBalance(ctx, tenantID, unitID)
	if err != nil {
		return nil, fmt.Errorf("failed to compute canonical balance: %w", err)
	}
	cached, err := s.store.Balances().FindForUnit(ctx, tenantID, unitID)
	if err != nil {
		// A unit with posted balance-affecting entries must have a cache record
		if canonical.BalanceMinor() == 0 {
			return nil, nil
		}
		return &DriftFinding{
			Kind:           "balance_cache",
			CachedMinor:    0,
			CanonicalMinor: canonical.BalanceMinor(),
			Detail:         fmt.Sprintf("no cached balance record but canonical balance is %d", canonical.BalanceMinor()),
		}, nil
	}
	if cached.BalanceMinor == canonical.BalanceMinor() {
		return nil, nil
	}
	return &DriftFinding{
		Kind:           "balance_cache",
		CachedMinor:    cached.BalanceMinor,
		CanonicalMinor: canonical.BalanceMinor(),
		Detail: fmt.Sprintf("cached balance %d diverged from canonical %d over %d posted entries",
			cached.BalanceMinor, canonical.BalanceMinor(), canonical.EntryCount),
	}, nil
}
