package dues

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/strata/backend/internal/domain/ledger"
	"github.com/strata/backend/internal/domain/shared"
	"github.com/strata/backend/internal/domain/shared/valueobject"
	"github.com/strata/backend/internal/domain/tenancy"
	"github.com/strata/backend/tests/testutil"
)

// MockManagementRepository is a mock implementation of tenancy.ManagementRepository
type MockManagementRepository struct {
	mock.Mock
}

func (m *MockManagementRepository) FindByID(ctx context.Context, id uuid.UUID) (*tenancy.Management, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*tenancy.Management), args.Error(1)
}

func (m *MockManagementRepository) FindByOwner(ctx context.Context, ownerUID uuid.UUID) ([]*tenancy.Management, error) {
	args := m.Called(ctx, ownerUID)
	return args.Get(0).([]*tenancy.Management), args.Error(1)
}

func (m *MockManagementRepository) Save(ctx context.Context, mg *tenancy.Management) error {
	args := m.Called(ctx, mg)
	return args.Error(0)
}

func (m *MockManagementRepository) GetAllActiveTenantIDs(ctx context.Context) ([]uuid.UUID, error) {
	args := m.Called(ctx)
	return args.Get(0).([]uuid.UUID), args.Error(1)
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

type generatorFixture struct {
	store      *testutil.MemStore
	management *tenancy.Management
	units      []*tenancy.Unit
	generator  *Generator
	tenantID   uuid.UUID
}

func newGeneratorFixture(t *testing.T, defaultDuesMinor int64, units ...*tenancy.Unit) *generatorFixture {
	t.Helper()
	management, err := tenancy.NewManagement("Cedar Park Residences", uuid.New(), valueobject.TRY)
	require.NoError(t, err)
	require.NoError(t, management.SetDefaultDues(defaultDuesMinor))

	managements := new(MockManagementRepository)
	managements.On("FindByID", mock.Anything, management.ID).Return(management, nil)

	unitRepo := new(MockUnitRepository)
	page := shared.NewPaginated(units, int64(len(units)), 1, unitPageSize)
	unitRepo.On("FindActiveByTenant", mock.Anything, management.ID, mock.Anything).Return(&page, nil)

	store := testutil.NewMemStore()
	return &generatorFixture{
		store:      store,
		management: management,
		units:      units,
		generator:  NewGenerator(store, managements, unitRepo, zap.NewNop()),
		tenantID:   management.ID,
	}
}

func unitWithCode(t *testing.T, tenantID uuid.UUID, code string) *tenancy.Unit {
	t.Helper()
	unit, err := tenancy.NewUnit(tenantID, code)
	require.NoError(t, err)
	return unit
}

func testPeriod(t *testing.T, s string) valueobject.Period {
	t.Helper()
	p, err := valueobject.ParsePeriod(s)
	require.NoError(t, err)
	return p
}

func TestRunMonthlyDues_GeneratesOneDuePerUnit(t *testing.T) {
	tenantStub := uuid.New()
	unitA := unitWithCode(t, tenantStub, "A-01")
	unitB := unitWithCode(t, tenantStub, "A-02")
	f := newGeneratorFixture(t, 25000, unitA, unitB)
	period := testPeriod(t, "2026-09")

	res, err := f.generator.RunMonthlyDues(context.Background(), RunRequest{
		TenantID: f.tenantID, Period: period,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Processed)
	assert.Zero(t, res.Exempted)
	assert.Zero(t, res.Failed)
	assert.Equal(t, 2, f.store.DueScheduleCount())

	dues, err := f.store.Entries().FindOpenDuesForUnit(context.Background(), f.tenantID, unitA.ID)
	require.NoError(t, err)
	require.Len(t, dues, 1)
	due := dues[0]
	assert.Equal(t, "due_A-01_2026-09", due.EntryNumber)
	assert.Equal(t, ledger.EntryTypeDebit, due.Type)
	assert.Equal(t, ledger.SourceDues, due.Source)
	assert.Equal(t, int64(25000), due.AmountMinor)
	assert.Equal(t, int64(25000), due.DueOutstandingMinor)
	assert.Equal(t, ledger.DueStatusOpen, due.DueStatus)
}

func TestRunMonthlyDues_SecondRunSkipsEverything(t *testing.T) {
	tenantStub := uuid.New()
	unit := unitWithCode(t, tenantStub, "A-01")
	f := newGeneratorFixture(t, 25000, unit)
	period := testPeriod(t, "2026-09")

	first, err := f.generator.RunMonthlyDues(context.Background(), RunRequest{TenantID: f.tenantID, Period: period})
	require.NoError(t, err)
	assert.Equal(t, 1, first.Processed)

	second, err := f.generator.RunMonthlyDues(context.Background(), RunRequest{TenantID: f.tenantID, Period: period})
	require.NoError(t, err)
	assert.Zero(t, second.Processed)
	assert.Equal(t, 1, second.Skipped)
	assert.Equal(t, 1, f.store.DueScheduleCount())
}

func TestRunMonthlyDues_UnitOverrideBeatsDefault(t *testing.T) {
	tenantStub := uuid.New()
	unit := unitWithCode(t, tenantStub, "B-05")
	require.NoError(t, unit.SetMonthlyDues(40000))
	f := newGeneratorFixture(t, 25000, unit)

	_, err := f.generator.RunMonthlyDues(context.Background(), RunRequest{
		TenantID: f.tenantID, Period: testPeriod(t, "2026-09"),
	})
	require.NoError(t, err)

	dues, err := f.store.Entries().FindOpenDuesForUnit(context.Background(), f.tenantID, unit.ID)
	require.NoError(t, err)
	require.Len(t, dues, 1)
	assert.Equal(t, int64(40000), dues[0].AmountMinor)
}

func TestRunMonthlyDues_ExemptAndZeroAmountUnits(t *testing.T) {
	tenantStub := uuid.New()
	exempt := unitWithCode(t, tenantStub, "C-01")
	exempt.SetExempt(true)
	noAmount := unitWithCode(t, tenantStub, "C-02")
	f := newGeneratorFixture(t, 0, exempt, noAmount)

	res, err := f.generator.RunMonthlyDues(context.Background(), RunRequest{
		TenantID: f.tenantID, Period: testPeriod(t, "2026-09"),
	})
	require.NoError(t, err)
	assert.Zero(t, res.Processed)
	assert.Equal(t, 1, res.Exempted)
	assert.Equal(t, 1, res.Skipped)
	assert.Zero(t, f.store.DueScheduleCount())
}

func TestRunMonthlyDues_DryRunWritesNothing(t *testing.T) {
	tenantStub := uuid.New()
	unit := unitWithCode(t, tenantStub, "D-01")
	f := newGeneratorFixture(t, 25000, unit)

	res, err := f.generator.RunMonthlyDues(context.Background(), RunRequest{
		TenantID: f.tenantID, Period: testPeriod(t, "2026-09"), DryRun: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed)
	assert.Zero(t, f.store.DueScheduleCount())

	dues, err := f.store.Entries().FindOpenDuesForUnit(context.Background(), f.tenantID, unit.ID)
	require.NoError(t, err)
	assert.Empty(t, dues)
}

func TestRunMonthlyDues_RequiresPeriod(t *testing.T) {
	f := newGeneratorFixture(t, 25000)

	_, err := f.generator.RunMonthlyDues(context.Background(), RunRequest{TenantID: f.tenantID})
	require.Error(t, err)
	var derr *shared.DomainError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, "INVALID_YEAR_MONTH", derr.Code)
}
