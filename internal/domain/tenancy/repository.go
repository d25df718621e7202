package tenancy

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/strata/backend/internal/domain/shared"
)

// ManagementRepository persists management (tenant) accounts
type ManagementRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Management, error)
	FindByOwner(ctx context.Context, ownerUID uuid.UUID) ([]*Management, error)
	Save(ctx context.Context, m *Management) error
	// GetAllActiveTenantIDs feeds the schedulers that fan out per tenant
	GetAllActiveTenantIDs(ctx context.Context) ([]uuid.UUID, error)
}

// UnitRepository persists units
type UnitRepository interface {
	FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*Unit, error)
	FindByCode(ctx context.Context, tenantID uuid.UUID, code string) (*Unit, error)
	FindActiveByTenant(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) (*shared.Paginated[*Unit], error)
	FindByResident(ctx context.Context, tenantID, residentUID uuid.UUID) (*Unit, error)
	Save(ctx context.Context, u *Unit) error
}

// MembershipRepository persists explicit role bindings. (tenant, user) is
// unique; owners are resolved from the management record, not from here.
type MembershipRepository interface {
	FindByUser(ctx context.Context, tenantID, userID uuid.UUID) (*Membership, error)
	FindAllForTenant(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) (*shared.Paginated[*Membership], error)
	Save(ctx context.Context, m *Membership) error
	Delete(ctx context.Context, tenantID, userID uuid.UUID) error
}

// InviteRepository persists invites and their reservation state
type InviteRepository interface {
	FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*Invite, error)
	FindActiveForUnit(ctx context.Context, tenantID, unitID uuid.UUID) ([]*Invite, error)
	Save(ctx context.Context, i *Invite) error
	// SaveConsumption persists the consumed invite, the resident's membership
	// and the unit binding in one transaction so a crash cannot leave an
	// invite burned without its resident bound
	SaveConsumption(ctx context.Context, i *Invite, m *Membership, u *Unit) error
	// FindStaleReserved returns invites whose reservation lapsed before the
	// cutoff so the sweeper can clear them
	FindStaleReserved(ctx context.Context, cutoff time.Time, limit int) ([]*Invite, error)
	// FindExpiredActive returns active invites past their expiry for sweeping
	FindExpiredActive(ctx context.Context, cutoff time.Time, limit int) ([]*Invite, error)
}
