package tenancy

import (
	"github.com/google/uuid"
	"github.com/strata/backend/internal/domain/shared"
)

// Event type constants for tenancy
const (
	EventTypeInviteConsumed = "tenancy.invite.consumed"
	EventTypeMemberJoined   = "tenancy.member.joined"
)

// InviteConsumedEvent is emitted when a resident binds to a unit
type InviteConsumedEvent struct {
	shared.BaseDomainEvent
	UnitID uuid.UUID  `json:"unit_id"`
	UsedBy *uuid.UUID `json:"used_by,omitempty"`
}

// NewInviteConsumedEvent creates an InviteConsumedEvent
func NewInviteConsumedEvent(i *Invite) *InviteConsumedEvent {
	return &InviteConsumedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeInviteConsumed, "Invite", i.ID, i.TenantID),
		UnitID:          i.UnitID,
		UsedBy:          i.UsedBy,
	}
}

// MemberJoinedEvent is emitted when an explicit membership is created
type MemberJoinedEvent struct {
	shared.BaseDomainEvent
	UserID uuid.UUID `json:"user_id"`
	Role   Role      `json:"role"`
}

// NewMemberJoinedEvent creates a MemberJoinedEvent
func NewMemberJoinedEvent(m *Membership) *MemberJoinedEvent {
	return &MemberJoinedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeMemberJoined, "Membership", m.ID, m.TenantID),
		UserID:          m.UserID,
		Role:            m.Role,
	}
}
