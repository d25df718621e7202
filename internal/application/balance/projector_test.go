package balance

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/strata/backend/internal/domain/ledger"
	"github.com/strata/backend/internal/domain/shared/valueobject"
	"github.com/strata/backend/tests/testutil"
)

func postedEntry(t *testing.T, tenantID, unitID uuid.UUID, entryType ledger.EntryType, minor int64, number string) (*ledger.LedgerEntry, *ledger.EntryPostedEvent) {
	t.Helper()
	amount, err := valueobject.NewMoney(minor, valueobject.TRY)
	require.NoError(t, err)

	var entry *ledger.LedgerEntry
	if entryType == ledger.EntryTypeCredit {
		entry, err = ledger.NewPaymentEntry(tenantID, unitID, amount, ledger.SourceCash, number, "", nil, valueobject.Period{})
	} else {
		entry, err = ledger.NewExpenseEntry(tenantID, &unitID, amount, ledger.SourceAdjustment, number, "", valueobject.Period{})
	}
	require.NoError(t, err)

	events := entry.GetDomainEvents()
	require.Len(t, events, 1)
	posted, ok := events[0].(*ledger.EntryPostedEvent)
	require.True(t, ok)
	return entry, posted
}

func TestProjector_AppliesPostedEntryOnce(t *testing.T) {
	store := testutil.NewMemStore()
	tenantID := uuid.New()
	unitID := uuid.New()

	entry, event := postedEntry(t, tenantID, unitID, ledger.EntryTypeCredit, 500, "payment_test-apply-1")
	store.SeedEntry(entry)

	p := NewProjector(store, zap.NewNop())
	require.NoError(t, p.Handle(context.Background(), event))

	bal, err := store.Balances().FindForUnit(context.Background(), tenantID, unitID)
	require.NoError(t, err)
	assert.Equal(t, int64(500), bal.BalanceMinor)
	assert.Equal(t, int64(1), bal.AppliedCount)

	// Redelivery finds the applied stamp and changes nothing
	require.NoError(t, p.Handle(context.Background(), event))
	bal, err = store.Balances().FindForUnit(context.Background(), tenantID, unitID)
	require.NoError(t, err)
	assert.Equal(t, int64(500), bal.BalanceMinor)
	assert.Equal(t, int64(1), bal.AppliedCount)
}

func TestProjector_DebitReducesBalance(t *testing.T) {
	store := testutil.NewMemStore()
	tenantID := uuid.New()
	unitID := uuid.New()

	entry, event := postedEntry(t, tenantID, unitID, ledger.EntryTypeDebit, 300, "expense_test-apply-2")
	store.SeedEntry(entry)

	p := NewProjector(store, zap.NewNop())
	require.NoError(t, p.Handle(context.Background(), event))

	bal, err := store.Balances().FindForUnit(context.Background(), tenantID, unitID)
	require.NoError(t, err)
	assert.Equal(t, int64(-300), bal.BalanceMinor)
	assert.Equal(t, int64(300), bal.PostedDebitMinor)
}

func TestProjector_BalanceNeutralEntryStillAdvancesWatermark(t *testing.T) {
	store := testutil.NewMemStore()
	tenantID := uuid.New()
	unitID := uuid.New()

	amount, err := valueobject.NewMoney(400, valueobject.TRY)
	require.NoError(t, err)
	settlement, err := ledger.NewSettlementEntry(tenantID, unitID, amount, "settle_due_test", uuid.New())
	require.NoError(t, err)
	events := settlement.GetDomainEvents()
	require.Len(t, events, 1)
	store.SeedEntry(settlement)

	p := NewProjector(store, zap.NewNop())
	require.NoError(t, p.Handle(context.Background(), events[0]))

	bal, err := store.Balances().FindForUnit(context.Background(), tenantID, unitID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), bal.BalanceMinor)
	assert.Equal(t, int64(1), bal.AppliedCount)
}

func TestProjector_RevertsAppliedDeltaOnTerminalTransition(t *testing.T) {
	store := testutil.NewMemStore()
	tenantID := uuid.New()
	unitID := uuid.New()

	entry, posted := postedEntry(t, tenantID, unitID, ledger.EntryTypeCredit, 500, "payment_test-revert-1")
	store.SeedEntry(entry)

	p := NewProjector(store, zap.NewNop())
	require.NoError(t, p.Handle(context.Background(), posted))

	// Transition the stored entry and handle the resulting event
	stored, ok := store.EntryByID(entry.ID)
	require.True(t, ok)
	require.NoError(t, stored.Void("test void", uuid.New()))
	statusEvents := stored.GetDomainEvents()
	require.Len(t, statusEvents, 1)
	store.SeedEntry(&stored)

	require.NoError(t, p.Handle(context.Background(), statusEvents[0]))

	bal, err := store.Balances().FindForUnit(context.Background(), tenantID, unitID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), bal.BalanceMinor)
	assert.Equal(t, int64(2), bal.AppliedCount)

	// Redelivery of the status event is also a no-op
	require.NoError(t, p.Handle(context.Background(), statusEvents[0]))
	bal, err = store.Balances().FindForUnit(context.Background(), tenantID, unitID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), bal.BalanceMinor)
	assert.Equal(t, int64(2), bal.AppliedCount)
}

func TestProjector_NeverAppliedEntryIsRevertedWithoutCacheTouch(t *testing.T) {
	store := testutil.NewMemStore()
	tenantID := uuid.New()
	unitID := uuid.New()

	// The status change arrives before the creation event was processed
	entry, _ := postedEntry(t, tenantID, unitID, ledger.EntryTypeCredit, 500, "payment_test-race-1")
	store.SeedEntry(entry)

	stored, ok := store.EntryByID(entry.ID)
	require.True(t, ok)
	require.NoError(t, stored.Void("raced void", uuid.New()))
	statusEvents := stored.GetDomainEvents()
	require.Len(t, statusEvents, 1)
	store.SeedEntry(&stored)

	p := NewProjector(store, zap.NewNop())
	require.NoError(t, p.Handle(context.Background(), statusEvents[0]))

	// No cache record was ever created
	_, err := store.Balances().FindForUnit(context.Background(), tenantID, unitID)
	require.Error(t, err)

	// But the entry carries the reverted stamp
	final, _ := store.EntryByID(entry.ID)
	assert.NotNil(t, final.BalanceRevertedAt)
	assert.Nil(t, final.BalanceAppliedAt)
}
