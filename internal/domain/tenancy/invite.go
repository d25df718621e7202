package tenancy

import (
	"time"

	"github.com/google/uuid"
	"github.com/strata/backend/internal/domain/shared"
)

// InviteStatus is the lifecycle of an invite
type InviteStatus string

const (
	InviteStatusActive  InviteStatus = "active"
	InviteStatusUsed    InviteStatus = "used"
	InviteStatusRevoked InviteStatus = "revoked"
)

// DefaultReservationTTL bounds how long a validation holds an invite before
// the reservation lapses back to active
const DefaultReservationTTL = 10 * time.Minute

// Invite-specific domain errors surfaced as stable reason codes
var (
	ErrInviteExpired  = shared.NewDomainError("INVITE_EXPIRED", "Invite has expired")
	ErrInviteUsed     = shared.NewDomainError("INVITE_USED", "Invite has already been used")
	ErrInviteRevoked  = shared.NewDomainError("INVITE_REVOKED", "Invite has been revoked")
	ErrInviteReserved = shared.NewDomainError("INVITE_RESERVED", "Invite is reserved by another caller")
	ErrInviteBadNonce = shared.NewDomainError("INVITE_BAD_NONCE", "Reservation nonce does not match")
)

// Invite lets exactly one new resident identity bind to a unit. Validation
// reserves the invite under a caller-supplied key and hands back a nonce;
// consumption presents the nonce together with an authenticated identity.
//
// State machine: active -> reserved (nonce, TTL) -> used | revoked,
// with reserved -> active on TTL expiry.
type Invite struct {
	shared.TenantAggregateRoot
	UnitID        uuid.UUID
	Status        InviteStatus
	ExpiresAt     time.Time
	Reserved      bool
	ReservedNonce string
	ReservedUntil *time.Time
	ReservedByKey string
	UsedAt        *time.Time
	UsedBy        *uuid.UUID
}

// NewInvite creates an active invite for a unit
func NewInvite(tenantID, unitID uuid.UUID, expiresAt time.Time) (*Invite, error) {
	if unitID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_UNIT", "Invite requires a unit")
	}
	if expiresAt.Before(time.Now()) {
		return nil, shared.NewDomainError("INVALID_EXPIRY", "Invite expiry must be in the future")
	}
	return &Invite{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(tenantID),
		UnitID:              unitID,
		Status:              InviteStatusActive,
		ExpiresAt:           expiresAt,
	}, nil
}

// reservationLive reports whether an unexpired reservation is in place
func (i *Invite) reservationLive(now time.Time) bool {
	return i.Reserved && i.ReservedUntil != nil && now.Before(*i.ReservedUntil)
}

// Reserve locks the invite for the caller identified by reservationKey and
// returns the nonce. Re-validation by the same key while the reservation is
// live is idempotent and returns the same nonce; a different key is
// rejected until the TTL lapses.
func (i *Invite) Reserve(reservationKey string, ttl time.Duration, now time.Time) (string, error) {
	if reservationKey == "" {
		return "", shared.NewDomainError("INVALID_RESERVATION_KEY", "Reservation key cannot be empty")
	}
	switch i.Status {
	case InviteStatusUsed:
		return "", ErrInviteUsed
	case InviteStatusRevoked:
		return "", ErrInviteRevoked
	}
	if now.After(i.ExpiresAt) {
		return "", ErrInviteExpired
	}

	if i.reservationLive(now) {
		if i.ReservedByKey == reservationKey {
			return i.ReservedNonce, nil
		}
		return "", ErrInviteReserved
	}

	until := now.Add(ttl)
	i.Reserved = true
	i.ReservedNonce = uuid.NewString()
	i.ReservedUntil = &until
	i.ReservedByKey = reservationKey
	i.UpdatedAt = now
	i.IncrementVersion()
	return i.ReservedNonce, nil
}

// Consume marks the invite used by the authenticated identity presenting
// the matching nonce
func (i *Invite) Consume(nonce string, uid uuid.UUID, now time.Time) error {
	switch i.Status {
	case InviteStatusUsed:
		return ErrInviteUsed
	case InviteStatusRevoked:
		return ErrInviteRevoked
	}
	if now.After(i.ExpiresAt) {
		return ErrInviteExpired
	}
	if !i.reservationLive(now) || i.ReservedNonce == "" {
		return ErrInviteBadNonce
	}
	if i.ReservedNonce != nonce {
		return ErrInviteBadNonce
	}
	if uid == uuid.Nil {
		return shared.NewDomainError("INVALID_RESIDENT", "Consuming identity cannot be empty")
	}

	i.Status = InviteStatusUsed
	i.UsedAt = &now
	i.UsedBy = &uid
	i.Reserved = false
	i.ReservedUntil = nil
	i.UpdatedAt = now
	i.IncrementVersion()
	i.AddDomainEvent(NewInviteConsumedEvent(i))
	return nil
}

// Revoke withdraws an invite that has not been used
func (i *Invite) Revoke(now time.Time) error {
	switch i.Status {
	case InviteStatusUsed:
		return ErrInviteUsed
	case InviteStatusRevoked:
		return nil // already revoked, idempotent
	}
	i.Status = InviteStatusRevoked
	i.Reserved = false
	i.ReservedUntil = nil
	i.UpdatedAt = now
	i.IncrementVersion()
	return nil
}

// ClearStaleReservation drops a lapsed reservation so the invite returns
// to plain active; no-op while the reservation is live
func (i *Invite) ClearStaleReservation(now time.Time) bool {
	if !i.Reserved || i.reservationLive(now) {
		return false
	}
	i.Reserved = false
	i.ReservedNonce = ""
	i.ReservedUntil = nil
	i.ReservedByKey = ""
	i.UpdatedAt = now
	i.IncrementVersion()
	return true
}
