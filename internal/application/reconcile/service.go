// Package reconcile detects and repairs drift between the cached
// aggregates and the canonical ledger records.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/strata/backend/internal/domain/ledger"
	"github.com/strata/backend/internal/domain/shared"
	"github.com/strata/backend/internal/infrastructure/telemetry"
)

// RebuildThrottle rate-limits balance rebuilds per unit. Acquire returns
// false while a previous rebuild's cooldown window is still open.
type RebuildThrottle interface {
	Acquire(ctx context.Context, tenantID, unitID uuid.UUID) (bool, error)
}

// driftSampleSize bounds how many recently updated balances the daily
// sampler recomputes per tenant
const driftSampleSize = 5

// Service runs the reconciliation paths: scheduled drift sampling,
// throttled rebuild-from-canonical, due-aggregate repair, and audit replay
type Service struct {
	store    ledger.Store
	throttle RebuildThrottle
	logger   *zap.Logger
}

// NewService creates a reconciliation service
func NewService(store ledger.Store, throttle RebuildThrottle, logger *zap.Logger) *Service {
	return &Service{store: store, throttle: throttle, logger: logger}
}

// DriftSampleResult summarizes one sampling pass over a tenant
type DriftSampleResult struct {
	SampledCount  int         `json:"sampled_count"`
	DriftedCount  int         `json:"drifted_count"`
	AlertedUnits  []uuid.UUID `json:"alerted_units,omitempty"`
	SkippedAlerts int         `json:"skipped_alerts"`
}

// SampleBalanceDrift recomputes the canonical balance for the tenant's
// most recently updated cached balances and opens a drift alert for each
// mismatch. An open alert for the same unit suppresses a duplicate.
func (s *Service) SampleBalanceDrift(ctx context.Context, tenantID uuid.UUID) (*DriftSampleResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "reconcile", "sample_balance_drift")
	defer span.End()

	balances, err := s.store.Balances().FindRecentlyUpdated(ctx, tenantID, driftSampleSize)
	if err != nil {
		return nil, fmt.Errorf("failed to sample cached balances: %w", err)
	}

	result := &DriftSampleResult{SampledCount: len(balances)}
	for i := range balances {
		cached := &balances[i]
		canonical, err := s.store.Entries().CanonicalBalance(ctx, tenantID, cached.UnitID)
		if err != nil {
			return nil, fmt.Errorf("failed to compute canonical balance for unit %s: %w", cached.UnitID, err)
		}
		if canonical.BalanceMinor() == cached.BalanceMinor {
			continue
		}
		result.DriftedCount++

		open, err := s.store.Alerts().HasOpenAlert(ctx, tenantID, ledger.AlertTypeBalanceDrift, cached.UnitID)
		if err != nil {
			return nil, fmt.Errorf("failed to check open drift alerts: %w", err)
		}
		if open {
			result.SkippedAlerts++
			continue
		}

		unitID := cached.UnitID
		alert := ledger.NewAlert(tenantID, ledger.AlertTypeBalanceDrift, &unitID,
			canonical.BalanceMinor(), cached.BalanceMinor,
			fmt.Sprintf("cached balance %d diverged from canonical %d over %d posted entries",
				cached.BalanceMinor, canonical.BalanceMinor(), canonical.EntryCount))
		if err := s.store.Alerts().Save(ctx, alert); err != nil {
			return nil, fmt.Errorf("failed to save drift alert: %w", err)
		}
		result.AlertedUnits = append(result.AlertedUnits, unitID)

		s.logger.Warn("balance drift detected",
			zap.String("tenant_id", tenantID.String()),
			zap.String("unit_id", unitID.String()),
			zap.Int64("cached_minor", cached.BalanceMinor),
			zap.Int64("canonical_minor", canonical.BalanceMinor()),
		)
	}
	return result, nil
}

// RebuildRequest asks for a unit's balance cache to be rebuilt from the
// canonical ledger
type RebuildRequest struct {
	TenantID uuid.UUID
	UnitID   uuid.UUID
	ActorID  uuid.UUID
	// Force bypasses the per-unit rebuild cooldown
	Force bool
}

// RebuildResult reports the committed canonical snapshot
type RebuildResult struct {
	BalanceMinor      int64 `json:"balance_minor"`
	PostedDebitMinor  int64 `json:"posted_debit_minor"`
	PostedCreditMinor int64 `json:"posted_credit_minor"`
	EntryCount        int64 `json:"entry_count"`
	ResolvedAlerts    int   `json:"resolved_alerts"`
}

// RebuildUnitBalance replaces the cached balance with one recomputed from
// posted entries. The cache's watermark is snapshotted first and the
// (potentially slow) canonical read runs outside the transaction; the
// commit succeeds only if no trigger advanced the watermark in between.
// Open drift alerts raised before the rebuild's cutoff are auto-resolved.
func (s *Service) RebuildUnitBalance(ctx context.Context, req RebuildRequest) (*RebuildResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "reconcile", "rebuild_unit_balance")
	defer span.End()
	telemetry.SetAttributes(span, telemetry.SpanAttrUnitID, req.UnitID.String())

	if !req.Force {
		acquired, err := s.throttle.Acquire(ctx, req.TenantID, req.UnitID)
		if err != nil {
			return nil, fmt.Errorf("failed to check rebuild cooldown: %w", err)
		}
		if !acquired {
			return nil, ledger.ErrRebuildThrottled
		}
	}

	// Watermark snapshot; a unit with no cache record rebuilds from zero
	var expectedCount int64
	cached, err := s.store.Balances().FindForUnit(ctx, req.TenantID, req.UnitID)
	switch {
	case err == nil:
		expectedCount = cached.AppliedCount
	case errors.Is(err, shared.ErrNotFound):
		cached = ledger.NewUnitBalance(req.TenantID, req.UnitID)
	default:
		return nil, fmt.Errorf("failed to load cached balance: %w", err)
	}

	cutoff := time.Now()
	canonical, err := s.store.Entries().CanonicalBalance(ctx, req.TenantID, req.UnitID)
	if err != nil {
		return nil, fmt.Errorf("failed to compute canonical balance: %w", err)
	}
	cached.Rebuild(canonical.DebitMinor, canonical.CreditMinor, canonical.EntryCount, req.ActorID)

	result := &RebuildResult{
		BalanceMinor:      cached.BalanceMinor,
		PostedDebitMinor:  cached.PostedDebitMinor,
		PostedCreditMinor: cached.PostedCreditMinor,
		EntryCount:        canonical.EntryCount,
	}

	err = s.store.InTransaction(ctx, func(tx ledger.Tx) error {
		ok, err := tx.Balances().SaveRebuilt(ctx, cached, expectedCount)
		if err != nil {
			return fmt.Errorf("failed to commit rebuilt balance: %w", err)
		}
		if !ok {
			return ledger.ErrConcurrentLedgerActivity
		}

		// Alerts raised mid-rebuild stay open; the cutoff guards them
		stale, err := tx.Alerts().FindOpenForUnitBefore(ctx, req.TenantID, ledger.AlertTypeBalanceDrift, req.UnitID, cutoff)
		if err != nil {
			return fmt.Errorf("failed to load open drift alerts: %w", err)
		}
		for i := range stale {
			alert := &stale[i]
			if err := alert.Resolve(req.ActorID, "resolved by balance rebuild"); err != nil {
				return err
			}
			if err := tx.Alerts().Save(ctx, alert); err != nil {
				return fmt.Errorf("failed to resolve drift alert: %w", err)
			}
			result.ResolvedAlerts++
		}
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.writeAuditLog(ctx, req.TenantID, req.ActorID, "rebuild_unit_balance", req.UnitID,
		fmt.Sprintf("rebuilt from %d posted entries, balance %d", canonical.EntryCount, cached.BalanceMinor))
	return result, nil
}

// DueRebuildResult reports a due-aggregate reconciliation
type DueRebuildResult struct {
	Drifted                 bool  `json:"drifted"`
	CanonicalAllocatedMinor int64 `json:"canonical_allocated_minor"`
	PreviousAllocatedMinor  int64 `json:"previous_allocated_minor"`
}

// RebuildDueAggregates recomputes a due's allocated amount from its
// allocation rows and repairs the due's aggregates when they diverge,
// leaving a drift alert as evidence.
func (s *Service) RebuildDueAggregates(ctx context.Context, tenantID, dueEntryID, actorID uuid.UUID) (*DueRebuildResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "reconcile", "rebuild_due_aggregates")
	defer span.End()
	telemetry.SetAttributes(span, telemetry.SpanAttrEntryID, dueEntryID.String())

	result := &DueRebuildResult{}
	err := s.store.InTransaction(ctx, func(tx ledger.Tx) error {
		due, err := tx.Entries().FindByIDForTenant(ctx, tenantID, dueEntryID)
		if err != nil {
			return fmt.Errorf("failed to load due: %w", err)
		}
		if due == nil || !due.IsDue() {
			return shared.NewDomainError("DUE_NOT_FOUND", "Due entry not found")
		}

		canonical, err := tx.Allocations().SumByDue(ctx, tenantID, dueEntryID)
		if err != nil {
			return fmt.Errorf("failed to sum allocations: %w", err)
		}
		result.CanonicalAllocatedMinor = canonical
		result.PreviousAllocatedMinor = due.DueAllocatedMinor
		if canonical == due.DueAllocatedMinor {
			return nil
		}
		result.Drifted = true

		unitID := due.UnitID
		alert := ledger.NewAlert(tenantID, ledger.AlertTypeDueAggregateDrift, unitID,
			canonical, due.DueAllocatedMinor,
			fmt.Sprintf("due %s allocated %d diverged from canonical allocation sum %d",
				due.EntryNumber, due.DueAllocatedMinor, canonical)).WithDueEntry(dueEntryID)
		if err := tx.Alerts().Save(ctx, alert); err != nil {
			return fmt.Errorf("failed to save due drift alert: %w", err)
		}

		if err := due.RepairDueAggregates(canonical); err != nil {
			return err
		}
		if err := tx.Entries().Save(ctx, due); err != nil {
			return fmt.Errorf("failed to save repaired due: %w", err)
		}
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	if result.Drifted {
		s.writeAuditLog(ctx, tenantID, actorID, "rebuild_due_aggregates", dueEntryID,
			fmt.Sprintf("repaired allocated %d -> %d", result.PreviousAllocatedMinor, result.CanonicalAllocatedMinor))
	}
	return result, nil
}

// ListAlerts returns the tenant's drift alerts, newest first, honoring the
// filter's status/type/unit_id constraints and pagination.
func (s *Service) ListAlerts(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) ([]ledger.Alert, error) {
	alerts, err := s.store.Alerts().FindAllForTenant(ctx, tenantID, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	return alerts, nil
}

// ResolveAlert closes an open drift alert with resolution metadata and
// leaves an audit record of who closed it.
func (s *Service) ResolveAlert(ctx context.Context, tenantID, alertID, actorID uuid.UUID, resolution string) error {
	ctx, span := telemetry.StartServiceSpan(ctx, "reconcile", "resolve_alert")
	defer span.End()

	err := s.store.InTransaction(ctx, func(tx ledger.Tx) error {
		alert, err := tx.Alerts().FindByIDForTenant(ctx, tenantID, alertID)
		if err != nil {
			return fmt.Errorf("failed to load alert: %w", err)
		}
		if alert == nil {
			return shared.ErrNotFound
		}
		if err := alert.Resolve(actorID, resolution); err != nil {
			return err
		}
		return tx.Alerts().Save(ctx, alert)
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return err
	}

	s.writeAuditLog(ctx, tenantID, actorID, "resolve_alert", alertID, resolution)
	return nil
}

// writeAuditLog records an administrative action. A failed write degrades
// to a deduplicated alert so the primary operation's outcome stands.
func (s *Service) writeAuditLog(ctx context.Context, tenantID, actorID uuid.UUID, action string, subjectID uuid.UUID, detail string) {
	err := s.store.InTransaction(ctx, func(tx ledger.Tx) error {
		return tx.AuditLogs().Save(ctx, ledger.NewAuditLogEntry(tenantID, actorID, action, &subjectID, detail))
	})
	if err == nil {
		return
	}
	s.logger.Error("audit log write failed",
		zap.String("action", action),
		zap.String("subject_id", subjectID.String()),
		zap.Error(err),
	)

	open, alertErr := s.store.Alerts().HasOpenAlert(ctx, tenantID, ledger.AlertTypeCacheApplyFailed, subjectID)
	if alertErr != nil || open {
		return
	}
	alert := ledger.NewAlert(tenantID, ledger.AlertTypeCacheApplyFailed, &subjectID, 0, 0,
		fmt.Sprintf("audit log write for %s failed: %v", action, err))
	if alertErr := s.store.Alerts().Save(ctx, alert); alertErr != nil {
		s.logger.Error("failed to save audit degradation alert", zap.Error(alertErr))
	}
}
