// Package balance maintains the per-unit balance cache from ledger events.
package balance

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/strata/backend/internal/domain/ledger"
	"github.com/strata/backend/internal/domain/shared"
)

// Projector consumes ledger entry events and keeps the unit balance cache
// in sync. Delivery is at-least-once: every cache mutation is guarded by
// the entry's applied/reverted stamps, so redeliveries find the stamp set
// and do nothing. A failed application raises an alert and re-errors so
// the bus redelivers.
type Projector struct {
	store  ledger.Store
	logger *zap.Logger
}

// NewProjector creates a balance projector
func NewProjector(store ledger.Store, logger *zap.Logger) *Projector {
	return &Projector{store: store, logger: logger}
}

// EventTypes implements shared.EventHandler
func (p *Projector) EventTypes() []string {
	return []string{ledger.EventTypeEntryPosted, ledger.EventTypeEntryStatusChanged}
}

// Handle implements shared.EventHandler
func (p *Projector) Handle(ctx context.Context, event shared.DomainEvent) error {
	var err error
	switch e := event.(type) {
	case *ledger.EntryPostedEvent:
		err = p.applyPosted(ctx, e)
	case *ledger.EntryStatusChangedEvent:
		err = p.revertTerminal(ctx, e)
	default:
		return nil
	}
	if err != nil {
		p.logger.Error("balance cache update failed",
			zap.String("event_type", event.EventType()),
			zap.String("entry_id", event.AggregateID().String()),
			zap.Error(err),
		)
		p.raiseApplyFailedAlert(ctx, event, err)
		return err
	}
	return nil
}

// applyPosted adds a newly posted entry's delta to the cache. Entries
// without a unit carry no per-unit balance and are skipped.
func (p *Projector) applyPosted(ctx context.Context, e *ledger.EntryPostedEvent) error {
	if e.UnitID == nil {
		return nil
	}
	unitID := *e.UnitID

	return p.store.InTransaction(ctx, func(tx ledger.Tx) error {
		ok, err := tx.Entries().StampBalanceApplied(ctx, e.AggregateID(), time.Now(), 1)
		if err != nil {
			return fmt.Errorf("failed to stamp balance applied: %w", err)
		}
		if !ok {
			// Redelivery: the delta is already in the cache
			return nil
		}

		delta := ledger.BalanceDelta{}
		if e.AffectsBalance {
			if e.EntryType == ledger.EntryTypeCredit {
				delta.CreditMinor = e.AmountMinor
			} else {
				delta.DebitMinor = e.AmountMinor
			}
		}
		if err := tx.Balances().ApplyDelta(ctx, e.TenantID(), unitID, delta); err != nil {
			return fmt.Errorf("failed to apply balance delta: %w", err)
		}
		return nil
	})
}

// revertTerminal removes the previously applied delta when an entry
// transitions to voided or reversed. If the entry was never applied (the
// status change raced the creation handler) it is marked reverted without
// touching the cache: its delta was never present.
func (p *Projector) revertTerminal(ctx context.Context, e *ledger.EntryStatusChangedEvent) error {
	if e.UnitID == nil || !e.ToStatus.IsTerminal() {
		return nil
	}
	unitID := *e.UnitID

	return p.store.InTransaction(ctx, func(tx ledger.Tx) error {
		entry, err := tx.Entries().FindByIDForTenant(ctx, e.TenantID(), e.AggregateID())
		if err != nil {
			return fmt.Errorf("failed to load entry: %w", err)
		}
		if entry == nil {
			return shared.ErrNotFound
		}

		ok, err := tx.Entries().StampBalanceReverted(ctx, entry.ID, time.Now(), 1)
		if err != nil {
			return fmt.Errorf("failed to stamp balance reverted: %w", err)
		}
		if !ok {
			return nil
		}
		if entry.BalanceAppliedAt == nil {
			// Never applied; nothing to take back out of the cache
			return nil
		}

		delta := ledger.BalanceDelta{}
		if e.AffectsBalance {
			if e.EntryType == ledger.EntryTypeCredit {
				delta.CreditMinor = e.AmountMinor
			} else {
				delta.DebitMinor = e.AmountMinor
			}
		}
		if err := tx.Balances().ApplyDelta(ctx, e.TenantID(), unitID, delta.Negate()); err != nil {
			return fmt.Errorf("failed to revert balance delta: %w", err)
		}
		return nil
	})
}

// raiseApplyFailedAlert records drift evidence for a failed cache update.
// Alert-write failures are logged and never block the redelivery path.
func (p *Projector) raiseApplyFailedAlert(ctx context.Context, event shared.DomainEvent, cause error) {
	var unitID *uuid.UUID
	switch e := event.(type) {
	case *ledger.EntryPostedEvent:
		unitID = e.UnitID
	case *ledger.EntryStatusChangedEvent:
		unitID = e.UnitID
	}
	if unitID == nil {
		return
	}

	exists, err := p.store.Alerts().HasOpenAlert(ctx, event.TenantID(), ledger.AlertTypeCacheApplyFailed, *unitID)
	if err != nil {
		p.logger.Error("failed to check for open cache-apply alert", zap.Error(err))
		return
	}
	if exists {
		return
	}

	alert := ledger.NewAlert(event.TenantID(), ledger.AlertTypeCacheApplyFailed, unitID, 0, 0,
		fmt.Sprintf("cache update for entry %s failed: %v", event.AggregateID(), cause))
	if err := p.store.Alerts().Save(ctx, alert); err != nil {
		p.logger.Error("failed to save cache-apply alert", zap.Error(err))
	}
}
