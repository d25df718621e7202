// Package tenancy implements management, unit, membership and invite
// operations.
package tenancy

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/strata/backend/internal/domain/shared"
	"github.com/strata/backend/internal/domain/tenancy"
	"github.com/strata/backend/internal/infrastructure/telemetry"
)

// sweepBatchSize bounds how many invites one sweep invocation touches
const sweepBatchSize = 100

// InviteService drives the invite lifecycle: creation, reservation via
// validation, consumption, revocation and the daily sweep
type InviteService struct {
	invites     tenancy.InviteRepository
	units       tenancy.UnitRepository
	memberships tenancy.MembershipRepository
	publisher   shared.EventPublisher
	logger      *zap.Logger
}

// NewInviteService creates an invite service
func NewInviteService(
	invites tenancy.InviteRepository,
	units tenancy.UnitRepository,
	memberships tenancy.MembershipRepository,
	publisher shared.EventPublisher,
	logger *zap.Logger,
) *InviteService {
	return &InviteService{
		invites:     invites,
		units:       units,
		memberships: memberships,
		publisher:   publisher,
		logger:      logger,
	}
}

// CreateInviteRequest asks for a new invite binding one resident to a unit
type CreateInviteRequest struct {
	TenantID  uuid.UUID
	UnitID    uuid.UUID
	ExpiresAt time.Time
}

// InviteDTO is the invite representation returned to administrators
type InviteDTO struct {
	ID        uuid.UUID `json:"id"`
	UnitID    uuid.UUID `json:"unit_id"`
	Status    string    `json:"status"`
	ExpiresAt time.Time `json:"expires_at"`
}

// CreateInvite creates an active invite for an unbound, active unit
func (s *InviteService) CreateInvite(ctx context.Context, req CreateInviteRequest) (*InviteDTO, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "tenancy", "create_invite")
	defer span.End()
	telemetry.SetAttributes(span, telemetry.SpanAttrUnitID, req.UnitID.String())

	unit, err := s.units.FindByIDForTenant(ctx, req.TenantID, req.UnitID)
	if err != nil {
		return nil, fmt.Errorf("failed to load unit: %w", err)
	}
	if unit == nil || !unit.Active {
		return nil, shared.NewDomainError("UNIT_NOT_FOUND", "Unit not found or inactive")
	}
	if unit.ResidentUID != nil {
		return nil, shared.NewDomainError("UNIT_OCCUPIED", "Unit is already bound to a resident")
	}

	invite, err := tenancy.NewInvite(req.TenantID, req.UnitID, req.ExpiresAt)
	if err != nil {
		return nil, err
	}
	if err := s.invites.Save(ctx, invite); err != nil {
		return nil, fmt.Errorf("failed to save invite: %w", err)
	}
	return &InviteDTO{ID: invite.ID, UnitID: invite.UnitID, Status: string(invite.Status), ExpiresAt: invite.ExpiresAt}, nil
}

// ValidateInviteRequest reserves an invite for the caller identified by
// the reservation key
type ValidateInviteRequest struct {
	TenantID       uuid.UUID
	InviteID       uuid.UUID
	ReservationKey string
}

// ValidateInviteResult returns the reservation nonce the caller must
// present on consumption
type ValidateInviteResult struct {
	UnitID        uuid.UUID `json:"unit_id"`
	UnitCode      string    `json:"unit_code"`
	Nonce         string    `json:"nonce"`
	ReservedUntil time.Time `json:"reserved_until"`
}

// ValidateInvite reserves the invite under the caller's reservation key
// and returns the nonce. Re-validation by the same key while the
// reservation is live returns the same nonce.
func (s *InviteService) ValidateInvite(ctx context.Context, req ValidateInviteRequest) (*ValidateInviteResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "tenancy", "validate_invite")
	defer span.End()
	telemetry.SetAttributes(span, telemetry.SpanAttrInviteID, req.InviteID.String())

	invite, err := s.invites.FindByIDForTenant(ctx, req.TenantID, req.InviteID)
	if err != nil {
		return nil, fmt.Errorf("failed to load invite: %w", err)
	}
	if invite == nil {
		return nil, shared.NewDomainError("INVITE_NOT_FOUND", "Invite not found")
	}

	nonce, err := invite.Reserve(req.ReservationKey, tenancy.DefaultReservationTTL, time.Now())
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if err := s.invites.Save(ctx, invite); err != nil {
		return nil, fmt.Errorf("failed to save reservation: %w", err)
	}

	unit, err := s.units.FindByIDForTenant(ctx, req.TenantID, invite.UnitID)
	if err != nil {
		return nil, fmt.Errorf("failed to load unit: %w", err)
	}
	result := &ValidateInviteResult{UnitID: invite.UnitID, Nonce: nonce}
	if invite.ReservedUntil != nil {
		result.ReservedUntil = *invite.ReservedUntil
	}
	if unit != nil {
		result.UnitCode = unit.Code
	}
	return result, nil
}

// ConsumeInviteRequest presents the reservation nonce together with the
// authenticated identity joining the management
type ConsumeInviteRequest struct {
	TenantID uuid.UUID
	InviteID uuid.UUID
	Nonce    string
	UserID   uuid.UUID
}

// ConsumeInviteResult reports the binding established by consumption
type ConsumeInviteResult struct {
	UnitID   uuid.UUID `json:"unit_id"`
	UnitCode string    `json:"unit_code"`
	Role     string    `json:"role"`
}

// ConsumeInvite burns the invite, binds the identity to the invite's unit
// and creates a viewer membership if none exists, all in one transaction.
func (s *InviteService) ConsumeInvite(ctx context.Context, req ConsumeInviteRequest) (*ConsumeInviteResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "tenancy", "consume_invite")
	defer span.End()
	telemetry.SetAttributes(span, telemetry.SpanAttrInviteID, req.InviteID.String())

	invite, err := s.invites.FindByIDForTenant(ctx, req.TenantID, req.InviteID)
	if err != nil {
		return nil, fmt.Errorf("failed to load invite: %w", err)
	}
	if invite == nil {
		return nil, shared.NewDomainError("INVITE_NOT_FOUND", "Invite not found")
	}

	unit, err := s.units.FindByIDForTenant(ctx, req.TenantID, invite.UnitID)
	if err != nil {
		return nil, fmt.Errorf("failed to load unit: %w", err)
	}
	if unit == nil {
		return nil, shared.NewDomainError("UNIT_NOT_FOUND", "Invite's unit no longer exists")
	}

	if err := invite.Consume(req.Nonce, req.UserID, time.Now()); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if err := unit.BindResident(req.UserID); err != nil {
		return nil, err
	}

	membership, err := s.memberships.FindByUser(ctx, req.TenantID, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load membership: %w", err)
	}
	if membership == nil {
		membership, err = tenancy.NewMembership(req.TenantID, req.UserID, tenancy.RoleViewer)
		if err != nil {
			return nil, err
		}
	}

	if err := s.invites.SaveConsumption(ctx, invite, membership, unit); err != nil {
		return nil, fmt.Errorf("failed to persist invite consumption: %w", err)
	}

	events := append(invite.GetDomainEvents(), membership.GetDomainEvents()...)
	if len(events) > 0 {
		if err := s.publisher.Publish(ctx, events...); err != nil {
			s.logger.Error("failed to publish invite events", zap.Error(err))
		}
		invite.ClearDomainEvents()
		membership.ClearDomainEvents()
	}

	return &ConsumeInviteResult{UnitID: unit.ID, UnitCode: unit.Code, Role: string(membership.Role)}, nil
}

// RevokeInvite withdraws an unused invite; revoking twice is a no-op
func (s *InviteService) RevokeInvite(ctx context.Context, tenantID, inviteID uuid.UUID) error {
	ctx, span := telemetry.StartServiceSpan(ctx, "tenancy", "revoke_invite")
	defer span.End()

	invite, err := s.invites.FindByIDForTenant(ctx, tenantID, inviteID)
	if err != nil {
		return fmt.Errorf("failed to load invite: %w", err)
	}
	if invite == nil {
		return shared.NewDomainError("INVITE_NOT_FOUND", "Invite not found")
	}
	if err := invite.Revoke(time.Now()); err != nil {
		return err
	}
	return s.invites.Save(ctx, invite)
}

// ListUnitInvites returns the unit's active invites
func (s *InviteService) ListUnitInvites(ctx context.Context, tenantID, unitID uuid.UUID) ([]InviteDTO, error) {
	invites, err := s.invites.FindActiveForUnit(ctx, tenantID, unitID)
	if err != nil {
		return nil, fmt.Errorf("failed to list invites: %w", err)
	}
	dtos := make([]InviteDTO, len(invites))
	for i, inv := range invites {
		dtos[i] = InviteDTO{ID: inv.ID, UnitID: inv.UnitID, Status: string(inv.Status), ExpiresAt: inv.ExpiresAt}
	}
	return dtos, nil
}

// SweepResult summarizes one invite sweep pass
type SweepResult struct {
	RevokedExpired    int `json:"revoked_expired"`
	ClearedStaleLocks int `json:"cleared_stale_locks"`
}

// SweepInvites revokes expired active invites and clears lapsed
// reservations, bounded per invocation
func (s *InviteService) SweepInvites(ctx context.Context, now time.Time) (*SweepResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "tenancy", "sweep_invites")
	defer span.End()

	result := &SweepResult{}

	expired, err := s.invites.FindExpiredActive(ctx, now, sweepBatchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to find expired invites: %w", err)
	}
	for _, invite := range expired {
		if err := invite.Revoke(now); err != nil {
			s.logger.Warn("failed to revoke expired invite",
				zap.String("invite_id", invite.ID.String()), zap.Error(err))
			continue
		}
		if err := s.invites.Save(ctx, invite); err != nil {
			return nil, fmt.Errorf("failed to save revoked invite: %w", err)
		}
		result.RevokedExpired++
	}

	stale, err := s.invites.FindStaleReserved(ctx, now, sweepBatchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to find stale reservations: %w", err)
	}
	for _, invite := range stale {
		if !invite.ClearStaleReservation(now) {
			continue
		}
		if err := s.invites.Save(ctx, invite); err != nil {
			return nil, fmt.Errorf("failed to clear stale reservation: %w", err)
		}
		result.ClearedStaleLocks++
	}

	s.logger.Info("invite sweep finished",
		zap.Int("revoked_expired", result.RevokedExpired),
		zap.Int("cleared_stale", result.ClearedStaleLocks),
	)
	return result, nil
}
