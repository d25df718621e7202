package tenancy

import (
	"time"

	"github.com/google/uuid"
	"github.com/strata/backend/internal/domain/shared"
)

// Role maps a member to a fixed permission set within a management
type Role string

const (
	RoleOwner   Role = "owner"
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleViewer  Role = "viewer"
)

// IsValid checks if the role is valid
func (r Role) IsValid() bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleManager, RoleViewer:
		return true
	}
	return false
}

// Permission is a functional permission code (resource:action)
type Permission string

const (
	PermLedgerWrite     Permission = "ledger:write"     // create payments/expenses/adjustments
	PermLedgerAllocate  Permission = "ledger:allocate"  // explicit and auto allocation
	PermLedgerReverse   Permission = "ledger:reverse"   // reversals and voids
	PermLedgerRead      Permission = "ledger:read"      // entries, balances, reports
	PermReconcileManage Permission = "reconcile:manage" // rebuilds and audit replay
	PermInviteManage    Permission = "invite:manage"    // create/revoke invites
	PermDuesRun         Permission = "dues:run"         // manual dues backfill
	PermUnitManage      Permission = "unit:manage"      // create/update/deactivate units
	PermMemberManage    Permission = "member:manage"    // grant and revoke memberships
)

// rolePermissions is the fixed role -> permission mapping; owner and admin
// are equivalent except that ownership is implicit from the management record
var rolePermissions = map[Role][]Permission{
	RoleOwner: {PermLedgerWrite, PermLedgerAllocate, PermLedgerReverse, PermLedgerRead,
		PermReconcileManage, PermInviteManage, PermDuesRun, PermUnitManage, PermMemberManage},
	RoleAdmin: {PermLedgerWrite, PermLedgerAllocate, PermLedgerReverse, PermLedgerRead,
		PermReconcileManage, PermInviteManage, PermDuesRun, PermUnitManage, PermMemberManage},
	RoleManager: {PermLedgerWrite, PermLedgerAllocate, PermLedgerRead},
	RoleViewer:  {PermLedgerRead},
}

// Permissions returns the fixed permission set for the role
func (r Role) Permissions() []Permission {
	return rolePermissions[r]
}

// HasPermission reports whether the role grants the permission
func (r Role) HasPermission(p Permission) bool {
	for _, granted := range rolePermissions[r] {
		if granted == p {
			return true
		}
	}
	return false
}

// Membership binds an identity to a management with a role. Owner role is
// implicit from management ownership and never stored as a membership row.
type Membership struct {
	shared.TenantAggregateRoot
	UserID uuid.UUID
	Role   Role
}

// NewMembership creates an explicit membership record
func NewMembership(tenantID, userID uuid.UUID, role Role) (*Membership, error) {
	if userID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_USER", "User ID cannot be empty")
	}
	if !role.IsValid() || role == RoleOwner {
		return nil, shared.NewDomainError("INVALID_ROLE", "Role must be admin, manager or viewer")
	}
	m := &Membership{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(tenantID),
		UserID:              userID,
		Role:                role,
	}
	m.AddDomainEvent(NewMemberJoinedEvent(m))
	return m, nil
}

// ChangeRole updates the member's role
func (m *Membership) ChangeRole(role Role) error {
	if !role.IsValid() || role == RoleOwner {
		return shared.NewDomainError("INVALID_ROLE", "Role must be admin, manager or viewer")
	}
	m.Role = role
	m.UpdatedAt = time.Now()
	m.IncrementVersion()
	return nil
}
