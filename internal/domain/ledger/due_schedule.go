package ledger

import (
	"github.com/google/uuid"
	"github.com/strata/backend/internal/domain/shared"
	"github.com/strata/backend/internal/domain/shared/valueobject"
)

// DueScheduleRecord is the per-unit-per-period idempotency registry for the
// dues generator: exactly one due is created per unit per period, enforced
// by a unique constraint on (tenant, unit, period).
type DueScheduleRecord struct {
	shared.BaseEntity
	TenantID uuid.UUID
	UnitID   uuid.UUID
	Period   valueobject.Period
	EntryID  uuid.UUID // the generated due entry
}

// NewDueScheduleRecord registers a generated due for a unit and period
func NewDueScheduleRecord(tenantID, unitID uuid.UUID, period valueobject.Period, entryID uuid.UUID) *DueScheduleRecord {
	return &DueScheduleRecord{
		BaseEntity: shared.NewBaseEntity(),
		TenantID:   tenantID,
		UnitID:     unitID,
		Period:     period,
		EntryID:    entryID,
	}
}
