package reconcile

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	appledger "github.com/strata/backend/internal/application/ledger"
	"github.com/strata/backend/internal/domain/ledger"
	"github.com/strata/backend/internal/domain/shared"
	"github.com/strata/backend/internal/domain/shared/valueobject"
	"github.com/strata/backend/tests/testutil"
)

type fakeThrottle struct {
	allow bool
	calls int
}

func (f *fakeThrottle) Acquire(ctx context.Context, tenantID, unitID uuid.UUID) (bool, error) {
	f.calls++
	return f.allow, nil
}

func newService(store ledger.Store, allow bool) (*Service, *fakeThrottle) {
	throttle := &fakeThrottle{allow: allow}
	return NewService(store, throttle, zap.NewNop()), throttle
}

func seedDue(t *testing.T, store *testutil.MemStore, tenantID, unitID uuid.UUID, minor int64, periodStr, key string) uuid.UUID {
	t.Helper()
	p, err := valueobject.ParsePeriod(periodStr)
	require.NoError(t, err)
	res, err := appledger.NewExpenseService(store).CreateExpense(context.Background(), appledger.CreateExpenseRequest{
		TenantID:       tenantID,
		UnitID:         &unitID,
		Amount:         valueobject.MustMoney(minor, valueobject.TRY),
		Source:         ledger.SourceDues,
		IdempotencyKey: key,
		Period:         p,
	})
	require.NoError(t, err)
	return res.EntryID
}

func seedPayment(t *testing.T, store *testutil.MemStore, tenantID, unitID uuid.UUID, minor int64, key string) uuid.UUID {
	t.Helper()
	res, err := appledger.NewPaymentService(store).CreatePayment(context.Background(), appledger.CreatePaymentRequest{
		TenantID:       tenantID,
		UnitID:         unitID,
		Amount:         valueobject.MustMoney(minor, valueobject.TRY),
		Method:         ledger.SourceCash,
		IdempotencyKey: key,
	})
	require.NoError(t, err)
	return res.EntryID
}

func openAlerts(t *testing.T, store *testutil.MemStore, tenantID uuid.UUID, alertType ledger.AlertType) []ledger.Alert {
	t.Helper()
	all, err := store.Alerts().FindAllForTenant(context.Background(), tenantID, shared.DefaultFilter())
	require.NoError(t, err)
	var out []ledger.Alert
	for _, a := range all {
		if a.Type == alertType && a.Status == ledger.AlertStatusOpen {
			out = append(out, a)
		}
	}
	return out
}

func TestSampleBalanceDrift_AlertsOnMismatchOnce(t *testing.T) {
	store := testutil.NewMemStore()
	svc, _ := newService(store, true)
	tenantID := uuid.New()
	unitID := uuid.New()

	seedPayment(t, store, tenantID, unitID, 900, "drift-pay-0001")

	// Corrupt the cached balance the projector would have written
	bal := ledger.NewUnitBalance(tenantID, unitID)
	bal.Apply(ledger.BalanceDelta{CreditMinor: 650})
	store.SeedBalance(bal)

	res, err := svc.SampleBalanceDrift(context.Background(), tenantID)
	require.NoError(t, err)
	assert.Equal(t, 1, res.SampledCount)
	assert.Equal(t, 1, res.DriftedCount)
	require.Len(t, res.AlertedUnits, 1)
	assert.Equal(t, unitID, res.AlertedUnits[0])

	alerts := openAlerts(t, store, tenantID, ledger.AlertTypeBalanceDrift)
	require.Len(t, alerts, 1)
	assert.Equal(t, int64(900), alerts[0].CanonicalMinor)
	assert.Equal(t, int64(650), alerts[0].CachedMinor)

	// A second pass sees the open alert and does not duplicate it
	res, err = svc.SampleBalanceDrift(context.Background(), tenantID)
	require.NoError(t, err)
	assert.Equal(t, 1, res.DriftedCount)
	assert.Equal(t, 1, res.SkippedAlerts)
	assert.Len(t, openAlerts(t, store, tenantID, ledger.AlertTypeBalanceDrift), 1)
}

func TestSampleBalanceDrift_CleanCacheRaisesNothing(t *testing.T) {
	store := testutil.NewMemStore()
	svc, _ := newService(store, true)
	tenantID := uuid.New()
	unitID := uuid.New()

	seedPayment(t, store, tenantID, unitID, 500, "drift-pay-0002")
	bal := ledger.NewUnitBalance(tenantID, unitID)
	bal.Apply(ledger.BalanceDelta{CreditMinor: 500})
	store.SeedBalance(bal)

	res, err := svc.SampleBalanceDrift(context.Background(), tenantID)
	require.NoError(t, err)
	assert.Equal(t, 1, res.SampledCount)
	assert.Zero(t, res.DriftedCount)
	assert.Empty(t, openAlerts(t, store, tenantID, ledger.AlertTypeBalanceDrift))
}

func TestRebuildUnitBalance_CommitsCanonicalAndResolvesAlerts(t *testing.T) {
	store := testutil.NewMemStore()
	svc, _ := newService(store, true)
	tenantID := uuid.New()
	unitID := uuid.New()
	actorID := uuid.New()

	seedPayment(t, store, tenantID, unitID, 900, "rebuild-pay-01")
	seedDue(t, store, tenantID, unitID, 300, "2026-01", "rebuild-due-01")

	stale := ledger.NewUnitBalance(tenantID, unitID)
	for i := 0; i < 7; i++ {
		stale.Apply(ledger.BalanceDelta{CreditMinor: 10})
	}
	store.SeedBalance(stale)

	// Drift evidence raised before the rebuild
	_, err := svc.SampleBalanceDrift(context.Background(), tenantID)
	require.NoError(t, err)
	require.Len(t, openAlerts(t, store, tenantID, ledger.AlertTypeBalanceDrift), 1)

	res, err := svc.RebuildUnitBalance(context.Background(), RebuildRequest{
		TenantID: tenantID, UnitID: unitID, ActorID: actorID,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(600), res.BalanceMinor)
	assert.Equal(t, int64(300), res.PostedDebitMinor)
	assert.Equal(t, int64(900), res.PostedCreditMinor)
	assert.Equal(t, int64(2), res.EntryCount)
	assert.Equal(t, 1, res.ResolvedAlerts)

	bal, err := store.Balances().FindForUnit(context.Background(), tenantID, unitID)
	require.NoError(t, err)
	assert.Equal(t, int64(600), bal.BalanceMinor)
	assert.Equal(t, int64(8), bal.AppliedCount, "rebuild advances the watermark")
	assert.NotNil(t, bal.RebuiltAt)
	require.NotNil(t, bal.RebuiltBy)
	assert.Equal(t, actorID, *bal.RebuiltBy)

	assert.Empty(t, openAlerts(t, store, tenantID, ledger.AlertTypeBalanceDrift))

	logs := store.AuditLogs()
	require.Len(t, logs, 1)
	assert.Equal(t, "rebuild_unit_balance", logs[0].Action)
	assert.Equal(t, actorID, logs[0].ActorID)
}

func TestRebuildUnitBalance_Throttled(t *testing.T) {
	store := testutil.NewMemStore()
	svc, throttle := newService(store, false)
	tenantID := uuid.New()
	unitID := uuid.New()

	_, err := svc.RebuildUnitBalance(context.Background(), RebuildRequest{
		TenantID: tenantID, UnitID: unitID, ActorID: uuid.New(),
	})
	require.ErrorIs(t, err, ledger.ErrRebuildThrottled)
	assert.Equal(t, 1, throttle.calls)
}

func TestRebuildUnitBalance_ForceBypassesThrottle(t *testing.T) {
	store := testutil.NewMemStore()
	svc, throttle := newService(store, false)
	tenantID := uuid.New()
	unitID := uuid.New()

	seedPayment(t, store, tenantID, unitID, 400, "rebuild-pay-02")

	res, err := svc.RebuildUnitBalance(context.Background(), RebuildRequest{
		TenantID: tenantID, UnitID: unitID, ActorID: uuid.New(), Force: true,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(400), res.BalanceMinor)
	assert.Zero(t, throttle.calls)
}

// racingStore advances the balance watermark while the canonical read is
// in flight, mimicking a trigger landing mid-rebuild.
type racingStore struct {
	*testutil.MemStore
	tenantID uuid.UUID
	unitID   uuid.UUID
}

type racingEntryRepo struct {
	ledger.LedgerEntryRepository
	store *racingStore
}

func (s *racingStore) Entries() ledger.LedgerEntryRepository {
	return &racingEntryRepo{LedgerEntryRepository: s.MemStore.Entries(), store: s}
}

func (r *racingEntryRepo) CanonicalBalance(ctx context.Context, tenantID, unitID uuid.UUID) (ledger.CanonicalBalance, error) {
	if err := r.store.MemStore.Balances().ApplyDelta(ctx, r.store.tenantID, r.store.unitID, ledger.BalanceDelta{CreditMinor: 100}); err != nil {
		return ledger.CanonicalBalance{}, err
	}
	return r.LedgerEntryRepository.CanonicalBalance(ctx, tenantID, unitID)
}

func TestRebuildUnitBalance_AbortsWhenWatermarkAdvances(t *testing.T) {
	mem := testutil.NewMemStore()
	tenantID := uuid.New()
	unitID := uuid.New()

	seedPayment(t, mem, tenantID, unitID, 500, "rebuild-pay-03")
	bal := ledger.NewUnitBalance(tenantID, unitID)
	bal.Apply(ledger.BalanceDelta{CreditMinor: 500})
	mem.SeedBalance(bal)

	store := &racingStore{MemStore: mem, tenantID: tenantID, unitID: unitID}
	svc, _ := newService(store, true)

	_, err := svc.RebuildUnitBalance(context.Background(), RebuildRequest{
		TenantID: tenantID, UnitID: unitID, ActorID: uuid.New(),
	})
	require.ErrorIs(t, err, ledger.ErrConcurrentLedgerActivity)
}

func TestRebuildDueAggregates_RepairsDriftedDue(t *testing.T) {
	store := testutil.NewMemStore()
	svc, _ := newService(store, true)
	tenantID := uuid.New()
	unitID := uuid.New()
	actorID := uuid.New()

	dueID := seedDue(t, store, tenantID, unitID, 500, "2026-02", "due-agg-due-01")
	seedPayment(t, store, tenantID, unitID, 500, "due-agg-pay-01")

	// Corrupt the due's aggregate
	due, ok := store.EntryByID(dueID)
	require.True(t, ok)
	require.Equal(t, int64(500), due.DueAllocatedMinor)
	due.DueAllocatedMinor = 200
	due.DueOutstandingMinor = 300
	due.DueStatus = ledger.DueStatusOpen
	store.SeedEntry(&due)

	res, err := svc.RebuildDueAggregates(context.Background(), tenantID, dueID, actorID)
	require.NoError(t, err)
	assert.True(t, res.Drifted)
	assert.Equal(t, int64(500), res.CanonicalAllocatedMinor)
	assert.Equal(t, int64(200), res.PreviousAllocatedMinor)

	repaired, _ := store.EntryByID(dueID)
	assert.Equal(t, int64(500), repaired.DueAllocatedMinor)
	assert.Zero(t, repaired.DueOutstandingMinor)
	assert.Equal(t, ledger.DueStatusPaid, repaired.DueStatus)

	alerts := openAlerts(t, store, tenantID, ledger.AlertTypeDueAggregateDrift)
	require.Len(t, alerts, 1)
	require.NotNil(t, alerts[0].DueEntryID)
	assert.Equal(t, dueID, *alerts[0].DueEntryID)

	logs := store.AuditLogs()
	require.Len(t, logs, 1)
	assert.Equal(t, "rebuild_due_aggregates", logs[0].Action)
}

func TestRebuildDueAggregates_ConsistentDueIsNoOp(t *testing.T) {
	store := testutil.NewMemStore()
	svc, _ := newService(store, true)
	tenantID := uuid.New()
	unitID := uuid.New()

	dueID := seedDue(t, store, tenantID, unitID, 500, "2026-02", "due-agg-due-02")
	seedPayment(t, store, tenantID, unitID, 300, "due-agg-pay-02")

	res, err := svc.RebuildDueAggregates(context.Background(), tenantID, dueID, uuid.New())
	require.NoError(t, err)
	assert.False(t, res.Drifted)
	assert.Equal(t, int64(300), res.CanonicalAllocatedMinor)
	assert.Empty(t, openAlerts(t, store, tenantID, ledger.AlertTypeDueAggregateDrift))
	assert.Empty(t, store.AuditLogs())
}

func TestRebuildDueAggregates_RejectsNonDue(t *testing.T) {
	store := testutil.NewMemStore()
	svc, _ := newService(store, true)
	tenantID := uuid.New()
	unitID := uuid.New()

	paymentID := seedPayment(t, store, tenantID, unitID, 300, "due-agg-pay-03")

	_, err := svc.RebuildDueAggregates(context.Background(), tenantID, paymentID, uuid.New())
	require.Error(t, err)
	var derr *shared.DomainError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, "DUE_NOT_FOUND", derr.Code)
}

func TestResolveAlert_ClosesOpenAlert(t *testing.T) {
	store := testutil.NewMemStore()
	svc, _ := newService(store, true)
	tenantID := uuid.New()
	unitID := uuid.New()
	actorID := uuid.New()

	alert := ledger.NewAlert(tenantID, ledger.AlertTypeBalanceDrift, &unitID, 500, 300, "drift")
	require.NoError(t, store.Alerts().Save(context.Background(), alert))

	err := svc.ResolveAlert(context.Background(), tenantID, alert.ID, actorID, "verified after rebuild")
	require.NoError(t, err)

	stored, err := store.Alerts().FindByIDForTenant(context.Background(), tenantID, alert.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, ledger.AlertStatusResolved, stored.Status)
	assert.Equal(t, "verified after rebuild", stored.Resolution)
	require.NotNil(t, stored.ResolvedBy)
	assert.Equal(t, actorID, *stored.ResolvedBy)
}

func TestResolveAlert_AlreadyResolved(t *testing.T) {
	store := testutil.NewMemStore()
	svc, _ := newService(store, true)
	tenantID := uuid.New()
	unitID := uuid.New()

	alert := ledger.NewAlert(tenantID, ledger.AlertTypeBalanceDrift, &unitID, 500, 300, "drift")
	require.NoError(t, alert.Resolve(uuid.New(), "first pass"))
	require.NoError(t, store.Alerts().Save(context.Background(), alert))

	err := svc.ResolveAlert(context.Background(), tenantID, alert.ID, uuid.New(), "again")
	require.Error(t, err)
	var derr *shared.DomainError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, "ALERT_RESOLVED", derr.Code)
}

func TestResolveAlert_Missing(t *testing.T) {
	store := testutil.NewMemStore()
	svc, _ := newService(store, true)

	err := svc.ResolveAlert(context.Background(), uuid.New(), uuid.New(), uuid.New(), "gone")
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestListAlerts_ReturnsTenantAlerts(t *testing.T) {
	store := testutil.NewMemStore()
	svc, _ := newService(store, true)
	tenantID := uuid.New()
	otherTenant := uuid.New()
	unitID := uuid.New()

	require.NoError(t, store.Alerts().Save(context.Background(),
		ledger.NewAlert(tenantID, ledger.AlertTypeBalanceDrift, &unitID, 500, 300, "mine")))
	require.NoError(t, store.Alerts().Save(context.Background(),
		ledger.NewAlert(otherTenant, ledger.AlertTypeBalanceDrift, &unitID, 500, 300, "theirs")))

	alerts, err := svc.ListAlerts(context.Background(), tenantID, shared.DefaultFilter())
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, "mine", alerts[0].Detail)
}
