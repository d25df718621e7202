package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/strata/backend/internal/domain/shared"
)

// AlertType classifies the drift evidence recorded by reconciliation
type AlertType string

const (
	AlertTypeBalanceDrift      AlertType = "BALANCE_DRIFT"
	AlertTypeDueAggregateDrift AlertType = "DUE_AGGREGATE_DRIFT"
	AlertTypeAuditReplayDrift  AlertType = "AUDIT_REPLAY_DRIFT"
	AlertTypeCacheApplyFailed  AlertType = "CACHE_APPLY_FAILED"
)

// AlertStatus is the lifecycle of an alert
type AlertStatus string

const (
	AlertStatusOpen     AlertStatus = "open"
	AlertStatusResolved AlertStatus = "resolved"
)

// Alert records evidence of divergence between a cached aggregate and the
// value recomputed from canonical records. Alerts deduplicate per
// unit/type while open, and rebuilds auto-resolve those raised before
// their cutoff.
type Alert struct {
	shared.TenantAggregateRoot
	Type           AlertType
	UnitID         *uuid.UUID
	DueEntryID     *uuid.UUID
	CanonicalMinor int64
	CachedMinor    int64
	Detail         string
	Status         AlertStatus
	ResolvedAt     *time.Time
	ResolvedBy     *uuid.UUID
	Resolution     string
}

// NewAlert opens a drift alert
func NewAlert(tenantID uuid.UUID, alertType AlertType, unitID *uuid.UUID, canonicalMinor, cachedMinor int64, detail string) *Alert {
	return &Alert{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(tenantID),
		Type:                alertType,
		UnitID:              unitID,
		CanonicalMinor:      canonicalMinor,
		CachedMinor:         cachedMinor,
		Detail:              detail,
		Status:              AlertStatusOpen,
	}
}

// WithDueEntry attaches the drifting due to the alert
func (a *Alert) WithDueEntry(dueEntryID uuid.UUID) *Alert {
	a.DueEntryID = &dueEntryID
	return a
}

// Resolve closes the alert with resolution metadata
func (a *Alert) Resolve(by uuid.UUID, resolution string) error {
	if a.Status == AlertStatusResolved {
		return shared.NewDomainError("ALERT_RESOLVED", "Alert is already resolved")
	}
	now := time.Now()
	a.Status = AlertStatusResolved
	a.ResolvedAt = &now
	a.ResolvedBy = &by
	a.Resolution = resolution
	a.UpdatedAt = now
	a.IncrementVersion()
	return nil
}
