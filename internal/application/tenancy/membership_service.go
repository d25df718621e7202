package tenancy

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/strata/backend/internal/domain/shared"
	"github.com/strata/backend/internal/domain/tenancy"
	"github.com/strata/backend/internal/infrastructure/telemetry"
)

// MembershipService is the single source of truth for who holds which role
// in a management. Ownership comes from the management record, every other
// role from an explicit membership row; all authorization questions go
// through ResolveRole so no caller special-cases the two.
type MembershipService struct {
	managements tenancy.ManagementRepository
	memberships tenancy.MembershipRepository
}

// NewMembershipService creates a membership service
func NewMembershipService(managements tenancy.ManagementRepository, memberships tenancy.MembershipRepository) *MembershipService {
	return &MembershipService{managements: managements, memberships: memberships}
}

// ResolveRole returns the caller's effective role in the management, or
// shared.ErrForbidden when the caller holds none
func (s *MembershipService) ResolveRole(ctx context.Context, tenantID, userID uuid.UUID) (tenancy.Role, error) {
	management, err := s.managements.FindByID(ctx, tenantID)
	if err != nil {
		return "", fmt.Errorf("failed to load management: %w", err)
	}
	if management == nil || !management.Active {
		return "", shared.ErrNotFound
	}
	if management.OwnerUID == userID {
		return tenancy.RoleOwner, nil
	}

	membership, err := s.memberships.FindByUser(ctx, tenantID, userID)
	if err != nil {
		return "", fmt.Errorf("failed to load membership: %w", err)
	}
	if membership == nil {
		return "", shared.ErrForbidden
	}
	return membership.Role, nil
}

// Authorize resolves the caller's role and checks it grants the permission
func (s *MembershipService) Authorize(ctx context.Context, tenantID, userID uuid.UUID, perm tenancy.Permission) error {
	role, err := s.ResolveRole(ctx, tenantID, userID)
	if err != nil {
		return err
	}
	if !role.HasPermission(perm) {
		return shared.ErrForbidden
	}
	return nil
}

// AddMember grants an identity an explicit role in the management. The
// owner cannot also hold a membership row.
func (s *MembershipService) AddMember(ctx context.Context, tenantID, userID uuid.UUID, role tenancy.Role) error {
	ctx, span := telemetry.StartServiceSpan(ctx, "tenancy", "add_member")
	defer span.End()

	management, err := s.managements.FindByID(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("failed to load management: %w", err)
	}
	if management == nil {
		return shared.ErrNotFound
	}
	if management.OwnerUID == userID {
		return shared.NewDomainError("ALREADY_OWNER", "Owner role is implicit and cannot be granted")
	}

	existing, err := s.memberships.FindByUser(ctx, tenantID, userID)
	if err != nil {
		return fmt.Errorf("failed to load membership: %w", err)
	}
	if existing != nil {
		// Re-adding an existing member is a role change
		if err := existing.ChangeRole(role); err != nil {
			return err
		}
		return s.memberships.Save(ctx, existing)
	}

	membership, err := tenancy.NewMembership(tenantID, userID, role)
	if err != nil {
		return err
	}
	membership.ClearDomainEvents()
	if err := s.memberships.Save(ctx, membership); err != nil {
		return fmt.Errorf("failed to save membership: %w", err)
	}
	return nil
}

// ChangeRole updates an existing member's role
func (s *MembershipService) ChangeRole(ctx context.Context, tenantID, userID uuid.UUID, role tenancy.Role) error {
	membership, err := s.memberships.FindByUser(ctx, tenantID, userID)
	if err != nil {
		return fmt.Errorf("failed to load membership: %w", err)
	}
	if membership == nil {
		return shared.ErrNotFound
	}
	if err := membership.ChangeRole(role); err != nil {
		return err
	}
	return s.memberships.Save(ctx, membership)
}

// MemberDTO is the membership representation returned to administrators
type MemberDTO struct {
	UserID    uuid.UUID `json:"user_id"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// ListMembers returns the management's explicit members with pagination.
// The owner is not listed; ownership lives on the management record.
func (s *MembershipService) ListMembers(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) (*shared.Paginated[MemberDTO], error) {
	page, err := s.memberships.FindAllForTenant(ctx, tenantID, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	dtos := make([]MemberDTO, len(page.Items))
	for i, m := range page.Items {
		dtos[i] = MemberDTO{UserID: m.UserID, Role: string(m.Role), CreatedAt: m.CreatedAt}
	}
	result := shared.NewPaginated(dtos, page.Total, page.Page, page.PageSize)
	return &result, nil
}

// RemoveMember revokes an identity's explicit role
func (s *MembershipService) RemoveMember(ctx context.Context, tenantID, userID uuid.UUID) error {
	membership, err := s.memberships.FindByUser(ctx, tenantID, userID)
	if err != nil {
		return fmt.Errorf("failed to load membership: %w", err)
	}
	if membership == nil {
		return shared.ErrNotFound
	}
	return s.memberships.Delete(ctx, tenantID, userID)
}
