package tenancy

import (
	"time"

	"github.com/google/uuid"
	"github.com/strata/backend/internal/domain/shared"
)

// Unit is an apartment/office within the management's building. Ledger
// entries, dues and the balance cache all hang off a unit.
type Unit struct {
	shared.TenantAggregateRoot
	Code             string // short human label, e.g. "A-12"; unique per tenant
	Floor            string
	Active           bool
	ExemptFromDues   bool
	MonthlyDuesMinor int64      // 0 means fall back to the management default
	ResidentUID      *uuid.UUID // bound via the invite flow
}

// NewUnit creates an active unit under a management
func NewUnit(tenantID uuid.UUID, code string) (*Unit, error) {
	if code == "" {
		return nil, shared.NewDomainError("INVALID_UNIT_CODE", "Unit code cannot be empty")
	}
	return &Unit{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(tenantID),
		Code:                code,
		Active:              true,
	}, nil
}

// SetMonthlyDues overrides the management's default dues for this unit
func (u *Unit) SetMonthlyDues(amountMinor int64) error {
	if amountMinor < 0 {
		return shared.NewDomainError("INVALID_AMOUNT", "Monthly dues cannot be negative")
	}
	u.MonthlyDuesMinor = amountMinor
	u.UpdatedAt = time.Now()
	u.IncrementVersion()
	return nil
}

// SetExempt marks the unit exempt from generated dues
func (u *Unit) SetExempt(exempt bool) {
	u.ExemptFromDues = exempt
	u.UpdatedAt = time.Now()
	u.IncrementVersion()
}

// BindResident attaches the resident identity consuming an invite.
// A unit is bound at most once; rebinding requires an explicit unbind.
func (u *Unit) BindResident(uid uuid.UUID) error {
	if uid == uuid.Nil {
		return shared.NewDomainError("INVALID_RESIDENT", "Resident identity cannot be empty")
	}
	if u.ResidentUID != nil && *u.ResidentUID != uid {
		return shared.NewDomainError("UNIT_OCCUPIED", "Unit is already bound to another resident")
	}
	u.ResidentUID = &uid
	u.UpdatedAt = time.Now()
	u.IncrementVersion()
	return nil
}

// Deactivate retires the unit; inactive units are skipped by the dues
// generator and cannot receive invites
func (u *Unit) Deactivate() {
	u.Active = false
	u.UpdatedAt = time.Now()
	u.IncrementVersion()
}

// DuesAmount resolves the effective monthly dues given the management default
func (u *Unit) DuesAmount(defaultMinor int64) int64 {
	if u.MonthlyDuesMinor > 0 {
		return u.MonthlyDuesMinor
	}
	return defaultMinor
}
