package tenancy

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/strata/backend/internal/domain/shared"
	"github.com/strata/backend/internal/domain/tenancy"
)

// MockInviteRepository is a mock implementation of tenancy.InviteRepository
type MockInviteRepository struct {
	mock.Mock
}

func (m *MockInviteRepository) FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*tenancy.Invite, error) {
	args := m.Called(ctx, tenantID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*tenancy.Invite), args.Error(1)
}

func (m *MockInviteRepository) FindActiveForUnit(ctx context.Context, tenantID, unitID uuid.UUID) ([]*tenancy.Invite, error) {
	args := m.Called(ctx, tenantID, unitID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*tenancy.Invite), args.Error(1)
}

func (m *MockInviteRepository) Save(ctx context.Context, i *tenancy.Invite) error {
	args := m.Called(ctx, i)
	return args.Error(0)
}

func (m *MockInviteRepository) SaveConsumption(ctx context.Context, i *tenancy.Invite, mb *tenancy.Membership, u *tenancy.Unit) error {
	args := m.Called(ctx, i, mb, u)
	return args.Error(0)
}

func (m *MockInviteRepository) FindStaleReserved(ctx context.Context, cutoff time.Time, limit int) ([]*tenancy.Invite, error) {
	args := m.Called(ctx, cutoff, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*tenancy.Invite), args.Error(1)
}

func (m *MockInviteRepository) FindExpiredActive(ctx context.Context, cutoff time.Time, limit int) ([]*tenancy.Invite, error) {
	args := m.Called(ctx, cutoff, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*tenancy.Invite), args.Error(1)
}

// MockUnitRepository is a mock implementation of tenancy.UnitRepository
type MockUnitRepository struct {
	mock.Mock
}

func (m *MockUnitRepository) FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*tenancy.Unit, error) {
	args := m.Called(ctx, tenantID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*tenancy.Unit), args.Error(1)
}

func (m *MockUnitRepository) FindByCode(ctx context.Context, tenantID uuid.UUID, code string) (*tenancy.Unit, error) {
	args := m.Called(ctx, tenantID, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*tenancy.Unit), args.Error(1)
}

func (m *MockUnitRepository) FindActiveByTenant(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) (*shared.Paginated[*tenancy.Unit], error) {
	args := m.Called(ctx, tenantID, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*shared.Paginated[*tenancy.Unit]), args.Error(1)
}

func (m *MockUnitRepository) FindByResident(ctx context.Context, tenantID, residentUID uuid.UUID) (*tenancy.Unit, error) {
	args := m.Called(ctx, tenantID, residentUID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*tenancy.Unit), args.Error(1)
}

func (m *MockUnitRepository) Save(ctx context.Context, u *tenancy.Unit) error {
	args := m.Called(ctx, u)
	return args.Error(0)
}

// MockMembershipRepository is a mock implementation of tenancy.MembershipRepository
type MockMembershipRepository struct {
	mock.Mock
}

func (m *MockMembershipRepository) FindByUser(ctx context.Context, tenantID, userID uuid.UUID) (*tenancy.Membership, error) {
	args := m.Called(ctx, tenantID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*tenancy.Membership), args.Error(1)
}

func (m *MockMembershipRepository) FindAllForTenant(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) (*shared.Paginated[*tenancy.Membership], error) {
	args := m.Called(ctx, tenantID, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*shared.Paginated[*tenancy.Membership]), args.Error(1)
}

func (m *MockMembershipRepository) Save(ctx context.Context, mb *tenancy.Membership) error {
	args := m.Called(ctx, mb)
	return args.Error(0)
}

func (m *MockMembershipRepository) Delete(ctx context.Context, tenantID, userID uuid.UUID) error {
	args := m.Called(ctx, tenantID, userID)
	return args.Error(0)
}

// MockEventPublisher is a mock implementation of shared.EventPublisher
type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	args := m.Called(ctx, events)
	return args.Error(0)
}

type inviteFixture struct {
	invites     *MockInviteRepository
	units       *MockUnitRepository
	memberships *MockMembershipRepository
	publisher   *MockEventPublisher
	service     *InviteService
}

func newInviteFixture() *inviteFixture {
	f := &inviteFixture{
		invites:     new(MockInviteRepository),
		units:       new(MockUnitRepository),
		memberships: new(MockMembershipRepository),
		publisher:   new(MockEventPublisher),
	}
	f.service = NewInviteService(f.invites, f.units, f.memberships, f.publisher, zap.NewNop())
	return f
}

func activeInvite(t *testing.T, tenantID, unitID uuid.UUID) *tenancy.Invite {
	t.Helper()
	invite, err := tenancy.NewInvite(tenantID, unitID, time.Now().Add(24*time.Hour))
	require.NoError(t, err)
	return invite
}

func activeUnit(t *testing.T, tenantID uuid.UUID, code string) *tenancy.Unit {
	t.Helper()
	unit, err := tenancy.NewUnit(tenantID, code)
	require.NoError(t, err)
	return unit
}

func TestValidateInvite_ReservesAndReturnsNonce(t *testing.T) {
	f := newInviteFixture()
	tenantID := uuid.New()
	unit := activeUnit(t, tenantID, "A-12")
	invite := activeInvite(t, tenantID, unit.ID)

	f.invites.On("FindByIDForTenant", mock.Anything, tenantID, invite.ID).Return(invite, nil)
	f.invites.On("Save", mock.Anything, invite).Return(nil)
	f.units.On("FindByIDForTenant", mock.Anything, tenantID, unit.ID).Return(unit, nil)

	res, err := f.service.ValidateInvite(context.Background(), ValidateInviteRequest{
		TenantID: tenantID, InviteID: invite.ID, ReservationKey: "device-key-1",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, res.Nonce)
	assert.Equal(t, unit.ID, res.UnitID)
	assert.Equal(t, "A-12", res.UnitCode)
	assert.True(t, invite.Reserved)
	assert.Equal(t, "device-key-1", invite.ReservedByKey)
}

func TestValidateInvite_SameKeyIsIdempotent(t *testing.T) {
	f := newInviteFixture()
	tenantID := uuid.New()
	unit := activeUnit(t, tenantID, "A-12")
	invite := activeInvite(t, tenantID, unit.ID)

	f.invites.On("FindByIDForTenant", mock.Anything, tenantID, invite.ID).Return(invite, nil)
	f.invites.On("Save", mock.Anything, invite).Return(nil)
	f.units.On("FindByIDForTenant", mock.Anything, tenantID, unit.ID).Return(unit, nil)

	first, err := f.service.ValidateInvite(context.Background(), ValidateInviteRequest{
		TenantID: tenantID, InviteID: invite.ID, ReservationKey: "device-key-1",
	})
	require.NoError(t, err)
	second, err := f.service.ValidateInvite(context.Background(), ValidateInviteRequest{
		TenantID: tenantID, InviteID: invite.ID, ReservationKey: "device-key-1",
	})
	require.NoError(t, err)
	assert.Equal(t, first.Nonce, second.Nonce)
}

func TestValidateInvite_OtherKeyRejectedWhileReserved(t *testing.T) {
	f := newInviteFixture()
	tenantID := uuid.New()
	unit := activeUnit(t, tenantID, "A-12")
	invite := activeInvite(t, tenantID, unit.ID)

	f.invites.On("FindByIDForTenant", mock.Anything, tenantID, invite.ID).Return(invite, nil)
	f.invites.On("Save", mock.Anything, invite).Return(nil)
	f.units.On("FindByIDForTenant", mock.Anything, tenantID, unit.ID).Return(unit, nil)

	_, err := f.service.ValidateInvite(context.Background(), ValidateInviteRequest{
		TenantID: tenantID, InviteID: invite.ID, ReservationKey: "device-key-1",
	})
	require.NoError(t, err)

	_, err = f.service.ValidateInvite(context.Background(), ValidateInviteRequest{
		TenantID: tenantID, InviteID: invite.ID, ReservationKey: "device-key-2",
	})
	require.ErrorIs(t, err, tenancy.ErrInviteReserved)
}

func TestConsumeInvite_BindsResidentAndCreatesMembership(t *testing.T) {
	f := newInviteFixture()
	tenantID := uuid.New()
	userID := uuid.New()
	unit := activeUnit(t, tenantID, "B-07")
	invite := activeInvite(t, tenantID, unit.ID)
	nonce, err := invite.Reserve("device-key-1", tenancy.DefaultReservationTTL, time.Now())
	require.NoError(t, err)

	f.invites.On("FindByIDForTenant", mock.Anything, tenantID, invite.ID).Return(invite, nil)
	f.units.On("FindByIDForTenant", mock.Anything, tenantID, unit.ID).Return(unit, nil)
	f.memberships.On("FindByUser", mock.Anything, tenantID, userID).Return(nil, nil)
	f.invites.On("SaveConsumption", mock.Anything, invite, mock.AnythingOfType("*tenancy.Membership"), unit).Return(nil)
	f.publisher.On("Publish", mock.Anything, mock.Anything).Return(nil)

	res, err := f.service.ConsumeInvite(context.Background(), ConsumeInviteRequest{
		TenantID: tenantID, InviteID: invite.ID, Nonce: nonce, UserID: userID,
	})
	require.NoError(t, err)
	assert.Equal(t, unit.ID, res.UnitID)
	assert.Equal(t, string(tenancy.RoleViewer), res.Role)

	assert.Equal(t, tenancy.InviteStatusUsed, invite.Status)
	require.NotNil(t, invite.UsedBy)
	assert.Equal(t, userID, *invite.UsedBy)
	require.NotNil(t, unit.ResidentUID)
	assert.Equal(t, userID, *unit.ResidentUID)

	f.invites.AssertCalled(t, "SaveConsumption", mock.Anything, invite, mock.AnythingOfType("*tenancy.Membership"), unit)
	f.publisher.AssertNumberOfCalls(t, "Publish", 1)
}

func TestConsumeInvite_ExistingMembershipKeepsRole(t *testing.T) {
	f := newInviteFixture()
	tenantID := uuid.New()
	userID := uuid.New()
	unit := activeUnit(t, tenantID, "B-07")
	invite := activeInvite(t, tenantID, unit.ID)
	nonce, err := invite.Reserve("device-key-1", tenancy.DefaultReservationTTL, time.Now())
	require.NoError(t, err)

	existing, err := tenancy.NewMembership(tenantID, userID, tenancy.RoleManager)
	require.NoError(t, err)
	existing.ClearDomainEvents()

	f.invites.On("FindByIDForTenant", mock.Anything, tenantID, invite.ID).Return(invite, nil)
	f.units.On("FindByIDForTenant", mock.Anything, tenantID, unit.ID).Return(unit, nil)
	f.memberships.On("FindByUser", mock.Anything, tenantID, userID).Return(existing, nil)
	f.invites.On("SaveConsumption", mock.Anything, invite, existing, unit).Return(nil)
	f.publisher.On("Publish", mock.Anything, mock.Anything).Return(nil)

	res, err := f.service.ConsumeInvite(context.Background(), ConsumeInviteRequest{
		TenantID: tenantID, InviteID: invite.ID, Nonce: nonce, UserID: userID,
	})
	require.NoError(t, err)
	assert.Equal(t, string(tenancy.RoleManager), res.Role)
}

func TestConsumeInvite_WrongNonce(t *testing.T) {
	f := newInviteFixture()
	tenantID := uuid.New()
	userID := uuid.New()
	unit := activeUnit(t, tenantID, "B-07")
	invite := activeInvite(t, tenantID, unit.ID)
	_, err := invite.Reserve("device-key-1", tenancy.DefaultReservationTTL, time.Now())
	require.NoError(t, err)

	f.invites.On("FindByIDForTenant", mock.Anything, tenantID, invite.ID).Return(invite, nil)
	f.units.On("FindByIDForTenant", mock.Anything, tenantID, unit.ID).Return(unit, nil)

	_, err = f.service.ConsumeInvite(context.Background(), ConsumeInviteRequest{
		TenantID: tenantID, InviteID: invite.ID, Nonce: "not-the-nonce", UserID: userID,
	})
	require.ErrorIs(t, err, tenancy.ErrInviteBadNonce)
	assert.Equal(t, tenancy.InviteStatusActive, invite.Status)
}

func TestConsumeInvite_UsedInviteRejected(t *testing.T) {
	f := newInviteFixture()
	tenantID := uuid.New()
	unit := activeUnit(t, tenantID, "B-07")
	invite := activeInvite(t, tenantID, unit.ID)
	nonce, err := invite.Reserve("device-key-1", tenancy.DefaultReservationTTL, time.Now())
	require.NoError(t, err)
	require.NoError(t, invite.Consume(nonce, uuid.New(), time.Now()))

	f.invites.On("FindByIDForTenant", mock.Anything, tenantID, invite.ID).Return(invite, nil)
	f.units.On("FindByIDForTenant", mock.Anything, tenantID, unit.ID).Return(unit, nil)

	_, err = f.service.ConsumeInvite(context.Background(), ConsumeInviteRequest{
		TenantID: tenantID, InviteID: invite.ID, Nonce: nonce, UserID: uuid.New(),
	})
	require.ErrorIs(t, err, tenancy.ErrInviteUsed)
}

func TestConsumeInvite_ExpiredInviteRejected(t *testing.T) {
	f := newInviteFixture()
	tenantID := uuid.New()
	unit := activeUnit(t, tenantID, "B-07")
	invite := activeInvite(t, tenantID, unit.ID)
	nonce, err := invite.Reserve("device-key-1", tenancy.DefaultReservationTTL, time.Now())
	require.NoError(t, err)
	invite.ExpiresAt = time.Now().Add(-time.Minute)

	f.invites.On("FindByIDForTenant", mock.Anything, tenantID, invite.ID).Return(invite, nil)
	f.units.On("FindByIDForTenant", mock.Anything, tenantID, unit.ID).Return(unit, nil)

	_, err = f.service.ConsumeInvite(context.Background(), ConsumeInviteRequest{
		TenantID: tenantID, InviteID: invite.ID, Nonce: nonce, UserID: uuid.New(),
	})
	require.ErrorIs(t, err, tenancy.ErrInviteExpired)
}

func TestCreateInvite_RejectsOccupiedUnit(t *testing.T) {
	f := newInviteFixture()
	tenantID := uuid.New()
	unit := activeUnit(t, tenantID, "C-01")
	require.NoError(t, unit.BindResident(uuid.New()))

	f.units.On("FindByIDForTenant", mock.Anything, tenantID, unit.ID).Return(unit, nil)

	_, err := f.service.CreateInvite(context.Background(), CreateInviteRequest{
		TenantID: tenantID, UnitID: unit.ID, ExpiresAt: time.Now().Add(24 * time.Hour),
	})
	require.Error(t, err)
	var derr *shared.DomainError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, "UNIT_OCCUPIED", derr.Code)
}

func TestRevokeInvite_Idempotent(t *testing.T) {
	f := newInviteFixture()
	tenantID := uuid.New()
	invite := activeInvite(t, tenantID, uuid.New())

	f.invites.On("FindByIDForTenant", mock.Anything, tenantID, invite.ID).Return(invite, nil)
	f.invites.On("Save", mock.Anything, invite).Return(nil)

	require.NoError(t, f.service.RevokeInvite(context.Background(), tenantID, invite.ID))
	assert.Equal(t, tenancy.InviteStatusRevoked, invite.Status)
	require.NoError(t, f.service.RevokeInvite(context.Background(), tenantID, invite.ID))
}

func TestSweepInvites_RevokesExpiredAndClearsStale(t *testing.T) {
	f := newInviteFixture()
	tenantID := uuid.New()
	now := time.Now()

	expired := activeInvite(t, tenantID, uuid.New())
	expired.ExpiresAt = now.Add(-time.Hour)

	stale := activeInvite(t, tenantID, uuid.New())
	_, err := stale.Reserve("old-device", tenancy.DefaultReservationTTL, now.Add(-time.Hour))
	require.NoError(t, err)

	f.invites.On("FindExpiredActive", mock.Anything, now, sweepBatchSize).Return([]*tenancy.Invite{expired}, nil)
	f.invites.On("FindStaleReserved", mock.Anything, now, sweepBatchSize).Return([]*tenancy.Invite{stale}, nil)
	f.invites.On("Save", mock.Anything, mock.AnythingOfType("*tenancy.Invite")).Return(nil)

	res, err := f.service.SweepInvites(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, res.RevokedExpired)
	assert.Equal(t, 1, res.ClearedStaleLocks)

	assert.Equal(t, tenancy.InviteStatusRevoked, expired.Status)
	assert.False(t, stale.Reserved)
	assert.Empty(t, stale.ReservedNonce)
	assert.Equal(t, tenancy.InviteStatusActive, stale.Status)
}
