package ledger

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strata/backend/internal/domain/ledger"
	"github.com/strata/backend/tests/testutil"
)

func TestReversePayment_CompensatesAllocationsAndReopensDues(t *testing.T) {
	store := testutil.NewMemStore()
	tenantID := uuid.New()
	unitID := uuid.New()

	dueID := seedDue(t, store, tenantID, unitID, 300, "2025-01", "due-jan-0001")

	paySvc := NewPaymentService(store)
	pay, err := paySvc.CreatePayment(context.Background(), CreatePaymentRequest{
		TenantID:       tenantID,
		UnitID:         unitID,
		Amount:         money(t, 500),
		Method:         ledger.SourceCash,
		IdempotencyKey: "payment-key-revtest",
	})
	require.NoError(t, err)
	require.Equal(t, int64(300), pay.AppliedMinor)

	svc := NewReversalService(store)
	res, err := svc.ReversePayment(context.Background(), ReversePaymentRequest{
		TenantID:       tenantID,
		PaymentEntryID: pay.EntryID,
		Reason:         "duplicate collection",
	})
	require.NoError(t, err)
	require.NotNil(t, res.ReversalEntryID)
	assert.Equal(t, []uuid.UUID{dueID}, res.ReleasedDueIDs)

	// Original marked reversed, compensating DEBIT posted for the full amount
	original, _ := store.EntryByID(pay.EntryID)
	assert.Equal(t, ledger.EntryStatusReversed, original.Status)
	assert.Equal(t, res.ReversalEntryID, original.ReversalEntryID)

	reversal, ok := store.EntryByID(*res.ReversalEntryID)
	require.True(t, ok)
	assert.Equal(t, ledger.EntryTypeDebit, reversal.Type)
	assert.Equal(t, int64(500), reversal.AmountMinor)
	assert.Equal(t, ledger.SourceReversal, reversal.Source)

	// The due is open again and its allocation rows net to zero
	due, _ := store.EntryByID(dueID)
	assert.Equal(t, ledger.DueStatusOpen, due.DueStatus)
	assert.Equal(t, int64(300), due.DueOutstandingMinor)
	assert.Equal(t, int64(0), due.DueAllocatedMinor)

	var net int64
	var reversalRows int
	for _, a := range store.AllAllocations() {
		if a.DueEntryID == dueID {
			net += a.AmountMinor
			if a.IsReversal() {
				reversalRows++
			}
		}
	}
	assert.Equal(t, int64(0), net)
	assert.Equal(t, 1, reversalRows)
}

func TestReversePayment_IdempotentReplay(t *testing.T) {
	store := testutil.NewMemStore()
	tenantID := uuid.New()
	unitID := uuid.New()

	paySvc := NewPaymentService(store)
	pay, err := paySvc.CreatePayment(context.Background(), CreatePaymentRequest{
		TenantID:       tenantID,
		UnitID:         unitID,
		Amount:         money(t, 400),
		Method:         ledger.SourceBank,
		IdempotencyKey: "payment-key-revtest2",
	})
	require.NoError(t, err)

	svc := NewReversalService(store)
	req := ReversePaymentRequest{
		TenantID:       tenantID,
		PaymentEntryID: pay.EntryID,
		Reason:         "charge dispute",
	}

	first, err := svc.ReversePayment(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, first.Replayed)

	second, err := svc.ReversePayment(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.ReversalEntryID, second.ReversalEntryID)

	// No second compensating entry was written
	_, ok := store.EntryByID(*first.ReversalEntryID)
	assert.True(t, ok)
	assert.Len(t, store.AllAllocations(), 0)
}

func TestVoidLedgerEntry_RejectsPayments(t *testing.T) {
	store := testutil.NewMemStore()
	tenantID := uuid.New()
	unitID := uuid.New()

	paySvc := NewPaymentService(store)
	pay, err := paySvc.CreatePayment(context.Background(), CreatePaymentRequest{
		TenantID:       tenantID,
		UnitID:         unitID,
		Amount:         money(t, 100),
		Method:         ledger.SourceCash,
		IdempotencyKey: "payment-key-voidtest",
	})
	require.NoError(t, err)

	svc := NewReversalService(store)
	_, err = svc.VoidLedgerEntry(context.Background(), VoidEntryRequest{
		TenantID: tenantID,
		EntryID:  pay.EntryID,
		Reason:   "mistake",
		ActorID:  uuid.New(),
	})
	require.ErrorIs(t, err, ledger.ErrUseReversePayment)

	_, err = svc.ReverseLedgerEntry(context.Background(), VoidEntryRequest{
		TenantID: tenantID,
		EntryID:  pay.EntryID,
		Reason:   "mistake",
		ActorID:  uuid.New(),
	})
	require.ErrorIs(t, err, ledger.ErrUseReversePayment)
}

func TestVoidThenReverse_TerminalStatesConflictSpecifically(t *testing.T) {
	store := testutil.NewMemStore()
	tenantID := uuid.New()

	expSvc := NewExpenseService(store)
	exp, err := expSvc.CreateExpense(context.Background(), CreateExpenseRequest{
		TenantID:       tenantID,
		Amount:         money(t, 250),
		Source:         ledger.SourceAdjustment,
		IdempotencyKey: "expense-key-term1",
		Reference:      "elevator maintenance",
	})
	require.NoError(t, err)

	svc := NewReversalService(store)
	_, err = svc.VoidLedgerEntry(context.Background(), VoidEntryRequest{
		TenantID: tenantID,
		EntryID:  exp.EntryID,
		Reason:   "entered twice",
		ActorID:  uuid.New(),
	})
	require.NoError(t, err)

	// A voided entry cannot be reversed
	_, err = svc.ReverseLedgerEntry(context.Background(), VoidEntryRequest{
		TenantID: tenantID,
		EntryID:  exp.EntryID,
		Reason:   "still wrong",
		ActorID:  uuid.New(),
	})
	require.ErrorIs(t, err, ledger.ErrEntryVoided)
}

func TestReverseThenVoid_TerminalStatesConflictSpecifically(t *testing.T) {
	store := testutil.NewMemStore()
	tenantID := uuid.New()

	expSvc := NewExpenseService(store)
	exp, err := expSvc.CreateExpense(context.Background(), CreateExpenseRequest{
		TenantID:       tenantID,
		Amount:         money(t, 250),
		Source:         ledger.SourceAdjustment,
		IdempotencyKey: "expense-key-term2",
		Reference:      "elevator maintenance",
	})
	require.NoError(t, err)

	svc := NewReversalService(store)
	rev, err := svc.ReverseLedgerEntry(context.Background(), VoidEntryRequest{
		TenantID: tenantID,
		EntryID:  exp.EntryID,
		Reason:   "wrong amount",
		ActorID:  uuid.New(),
	})
	require.NoError(t, err)
	require.NotNil(t, rev.ReversalEntryID)

	// Compensating entry carries the opposite type
	reversal, _ := store.EntryByID(*rev.ReversalEntryID)
	assert.Equal(t, ledger.EntryTypeCredit, reversal.Type)

	// A reversed entry cannot be voided
	_, err = svc.VoidLedgerEntry(context.Background(), VoidEntryRequest{
		TenantID: tenantID,
		EntryID:  exp.EntryID,
		Reason:   "cleanup",
		ActorID:  uuid.New(),
	})
	require.ErrorIs(t, err, ledger.ErrEntryReversed)
}

// Voided and reversed entries stop contributing to the canonical balance
func TestTerminalEntriesLeaveCanonicalBalance(t *testing.T) {
	store := testutil.NewMemStore()
	tenantID := uuid.New()
	unitID := uuid.New()

	expSvc := NewExpenseService(store)
	exp, err := expSvc.CreateExpense(context.Background(), CreateExpenseRequest{
		TenantID:       tenantID,
		UnitID:         &unitID,
		Amount:         money(t, 900),
		Source:         ledger.SourceAdjustment,
		IdempotencyKey: "expense-key-canon",
	})
	require.NoError(t, err)

	before, err := store.Entries().CanonicalBalance(context.Background(), tenantID, unitID)
	require.NoError(t, err)
	assert.Equal(t, int64(-900), before.BalanceMinor())

	svc := NewReversalService(store)
	_, err = svc.VoidLedgerEntry(context.Background(), VoidEntryRequest{
		TenantID: tenantID,
		EntryID:  exp.EntryID,
		Reason:   "entered in error",
		ActorID:  uuid.New(),
	})
	require.NoError(t, err)

	after, err := store.Entries().CanonicalBalance(context.Background(), tenantID, unitID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), after.BalanceMinor())
}
