// Package testutil provides shared helpers for service-level tests.
package testutil

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/strata/backend/internal/domain/ledger"
	"github.com/strata/backend/internal/domain/shared"
	"github.com/strata/backend/internal/domain/shared/valueobject"
)

// MemStore is an in-memory ledger.Store for service tests. Writes store
// struct copies so loaded records behave like rows, and a failed
// transaction restores the pre-transaction state.
type MemStore struct {
	mu sync.Mutex

	entries       map[uuid.UUID]ledger.LedgerEntry
	allocations   []ledger.DueAllocation
	balances      map[string]ledger.UnitBalance
	alerts        map[uuid.UUID]ledger.Alert
	settleResults map[string]ledger.SettleResult
	dueSchedules  map[string]ledger.DueScheduleRecord
	auditLogs     []ledger.AuditLogEntry

	// PublishedEvents collects everything written to the outbox
	PublishedEvents []shared.DomainEvent
}

// NewMemStore creates an empty in-memory store
func NewMemStore() *MemStore {
	return &MemStore{
		entries:       make(map[uuid.UUID]ledger.LedgerEntry),
		balances:      make(map[string]ledger.UnitBalance),
		alerts:        make(map[uuid.UUID]ledger.Alert),
		settleResults: make(map[string]ledger.SettleResult),
		dueSchedules:  make(map[string]ledger.DueScheduleRecord),
	}
}

type memSnapshot struct {
	entries       map[uuid.UUID]ledger.LedgerEntry
	allocations   []ledger.DueAllocation
	balances      map[string]ledger.UnitBalance
	alerts        map[uuid.UUID]ledger.Alert
	settleResults map[string]ledger.SettleResult
	dueSchedules  map[string]ledger.DueScheduleRecord
	auditLogs     []ledger.AuditLogEntry
	events        []shared.DomainEvent
}

func (s *MemStore) snapshot() memSnapshot {
	snap := memSnapshot{
		entries:       make(map[uuid.UUID]ledger.LedgerEntry, len(s.entries)),
		allocations:   append([]ledger.DueAllocation(nil), s.allocations...),
		balances:      make(map[string]ledger.UnitBalance, len(s.balances)),
		alerts:        make(map[uuid.UUID]ledger.Alert, len(s.alerts)),
		settleResults: make(map[string]ledger.SettleResult, len(s.settleResults)),
		dueSchedules:  make(map[string]ledger.DueScheduleRecord, len(s.dueSchedules)),
		auditLogs:     append([]ledger.AuditLogEntry(nil), s.auditLogs...),
		events:        append([]shared.DomainEvent(nil), s.PublishedEvents...),
	}
	for k, v := range s.entries {
		snap.entries[k] = v
	}
	for k, v := range s.balances {
		snap.balances[k] = v
	}
	for k, v := range s.alerts {
		snap.alerts[k] = v
	}
	for k, v := range s.settleResults {
		snap.settleResults[k] = v
	}
	for k, v := range s.dueSchedules {
		snap.dueSchedules[k] = v
	}
	return snap
}

func (s *MemStore) restore(snap memSnapshot) {
	s.entries = snap.entries
	s.allocations = snap.allocations
	s.balances = snap.balances
	s.alerts = snap.alerts
	s.settleResults = snap.settleResults
	s.dueSchedules = snap.dueSchedules
	s.auditLogs = snap.auditLogs
	s.PublishedEvents = snap.events
}

// InTransaction implements ledger.Store
func (s *MemStore) InTransaction(ctx context.Context, fn func(tx ledger.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.snapshot()
	if err := fn(&memTx{store: s}); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

// Entries implements ledger.Store
func (s *MemStore) Entries() ledger.LedgerEntryRepository { return &memEntryRepo{store: s} }

// Allocations implements ledger.Store
func (s *MemStore) Allocations() ledger.DueAllocationRepository { return &memAllocRepo{store: s} }

// Balances implements ledger.Store
func (s *MemStore) Balances() ledger.UnitBalanceRepository { return &memBalanceRepo{store: s} }

// Alerts implements ledger.Store
func (s *MemStore) Alerts() ledger.AlertRepository { return &memAlertRepo{store: s} }

// SettleResults implements ledger.Store
func (s *MemStore) SettleResults() ledger.SettleResultRepository {
	return &memSettleResultRepo{store: s}
}

// AuditLogs returns the audit log sink for assertions
func (s *MemStore) AuditLogs() []ledger.AuditLogEntry { return s.auditLogs }

// DueScheduleCount reports registered dues-generator records
func (s *MemStore) DueScheduleCount() int { return len(s.dueSchedules) }

// EntryByID returns a copy of an entry for assertions
func (s *MemStore) EntryByID(id uuid.UUID) (ledger.LedgerEntry, bool) {
	e, ok := s.entries[id]
	return e, ok
}

// AllAllocations returns copies of every allocation row
func (s *MemStore) AllAllocations() []ledger.DueAllocation {
	return append([]ledger.DueAllocation(nil), s.allocations...)
}

// SeedEntry inserts an entry directly, bypassing transactions
func (s *MemStore) SeedEntry(e *ledger.LedgerEntry) {
	e.ClearDomainEvents()
	s.entries[e.ID] = *e
}

// SeedBalance inserts a unit balance directly
func (s *MemStore) SeedBalance(b *ledger.UnitBalance) {
	s.balances[balanceKey(b.TenantID, b.UnitID)] = *b
}

// SeedAllocation inserts an allocation directly
func (s *MemStore) SeedAllocation(a *ledger.DueAllocation) {
	s.allocations = append(s.allocations, *a)
}

func balanceKey(tenantID, unitID uuid.UUID) string {
	return tenantID.String() + "|" + unitID.String()
}

type memTx struct {
	store *MemStore
}

func (t *memTx) Entries() ledger.LedgerEntryRepository      { return &memEntryRepo{store: t.store} }
func (t *memTx) Allocations() ledger.DueAllocationRepository { return &memAllocRepo{store: t.store} }
func (t *memTx) Balances() ledger.UnitBalanceRepository     { return &memBalanceRepo{store: t.store} }
func (t *memTx) Alerts() ledger.AlertRepository             { return &memAlertRepo{store: t.store} }
func (t *memTx) SettleResults() ledger.SettleResultRepository {
	return &memSettleResultRepo{store: t.store}
}
func (t *memTx) DueSchedules() ledger.DueScheduleRepository { return &memScheduleRepo{store: t.store} }
func (t *memTx) AuditLogs() ledger.AuditLogRepository       { return &memAuditRepo{store: t.store} }

func (t *memTx) SaveEvents(ctx context.Context, events ...shared.DomainEvent) error {
	t.store.PublishedEvents = append(t.store.PublishedEvents, events...)
	return nil
}

type memEntryRepo struct {
	store *MemStore
}

func (r *memEntryRepo) FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*ledger.LedgerEntry, error) {
	e, ok := r.store.entries[id]
	if !ok || e.TenantID != tenantID {
		return nil, nil
	}
	cp := e
	return &cp, nil
}

func (r *memEntryRepo) FindByEntryNumber(ctx context.Context, tenantID uuid.UUID, entryNumber string) (*ledger.LedgerEntry, error) {
	for _, e := range r.store.entries {
		if e.TenantID == tenantID && e.EntryNumber == entryNumber {
			cp := e
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memEntryRepo) FindOpenDuesForUnit(ctx context.Context, tenantID, unitID uuid.UUID) ([]ledger.LedgerEntry, error) {
	var out []ledger.LedgerEntry
	for _, e := range r.store.entries {
		if e.TenantID == tenantID && e.UnitID != nil && *e.UnitID == unitID && e.IsOpenDue() {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].Period.Compare(out[j].Period); c != 0 {
			return c < 0
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (r *memEntryRepo) FindFundingCredits(ctx context.Context, tenantID, unitID uuid.UUID) ([]ledger.LedgerEntry, error) {
	var out []ledger.LedgerEntry
	for _, e := range r.store.entries {
		if e.TenantID == tenantID && e.UnitID != nil && *e.UnitID == unitID && e.CanFundAutoSettlement() {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (r *memEntryRepo) FindForUnit(ctx context.Context, tenantID, unitID uuid.UUID, filter shared.Filter) ([]ledger.LedgerEntry, error) {
	var out []ledger.LedgerEntry
	for _, e := range r.store.entries {
		if e.TenantID == tenantID && e.UnitID != nil && *e.UnitID == unitID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *memEntryRepo) FindPostedForUnit(ctx context.Context, tenantID, unitID uuid.UUID, since *time.Time) ([]ledger.LedgerEntry, error) {
	var out []ledger.LedgerEntry
	for _, e := range r.store.entries {
		if e.TenantID != tenantID || e.UnitID == nil || *e.UnitID != unitID {
			continue
		}
		if e.Status != ledger.EntryStatusPosted {
			continue
		}
		if since != nil && e.CreatedAt.Before(*since) {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *memEntryRepo) Save(ctx context.Context, entry *ledger.LedgerEntry) error {
	// Enforce the unique (tenant, entry_number) constraint
	for _, e := range r.store.entries {
		if e.TenantID == entry.TenantID && e.EntryNumber == entry.EntryNumber && e.ID != entry.ID {
			return shared.ErrAlreadyExists
		}
	}
	cp := *entry
	cp.ClearDomainEvents()
	r.store.entries[entry.ID] = cp
	return nil
}

func (r *memEntryRepo) StampBalanceApplied(ctx context.Context, id uuid.UUID, at time.Time, version int64) (bool, error) {
	e, ok := r.store.entries[id]
	if !ok {
		return false, shared.ErrNotFound
	}
	if e.BalanceAppliedAt != nil {
		return false, nil
	}
	stamp := at
	e.BalanceAppliedAt = &stamp
	e.BalanceAppliedVersion = version
	r.store.entries[id] = e
	return true, nil
}

func (r *memEntryRepo) StampBalanceReverted(ctx context.Context, id uuid.UUID, at time.Time, version int64) (bool, error) {
	e, ok := r.store.entries[id]
	if !ok {
		return false, shared.ErrNotFound
	}
	if e.BalanceRevertedAt != nil {
		return false, nil
	}
	stamp := at
	e.BalanceRevertedAt = &stamp
	e.BalanceRevertedVersion = version
	r.store.entries[id] = e
	return true, nil
}

func (r *memEntryRepo) CanonicalBalance(ctx context.Context, tenantID, unitID uuid.UUID) (ledger.CanonicalBalance, error) {
	var c ledger.CanonicalBalance
	for _, e := range r.store.entries {
		if e.TenantID != tenantID || e.UnitID == nil || *e.UnitID != unitID {
			continue
		}
		if e.Status != ledger.EntryStatusPosted {
			continue
		}
		c.EntryCount++
		if !e.AffectsBalance {
			continue
		}
		if e.Type == ledger.EntryTypeCredit {
			c.CreditMinor += e.AmountMinor
		} else {
			c.DebitMinor += e.AmountMinor
		}
	}
	return c, nil
}

func (r *memEntryRepo) TotalsBySource(ctx context.Context, tenantID uuid.UUID, unitID *uuid.UUID) ([]ledger.SourceTotal, error) {
	totals := make(map[string]*ledger.SourceTotal)
	for _, e := range r.store.entries {
		if e.TenantID != tenantID || e.Status != ledger.EntryStatusPosted {
			continue
		}
		if unitID != nil && (e.UnitID == nil || *e.UnitID != *unitID) {
			continue
		}
		key := fmt.Sprintf("%s|%s", e.Source, e.Type)
		t, ok := totals[key]
		if !ok {
			t = &ledger.SourceTotal{Source: e.Source, Type: e.Type}
			totals[key] = t
		}
		t.AmountMinor += e.AmountMinor
		t.EntryCount++
	}
	keys := make([]string, 0, len(totals))
	for k := range totals {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]ledger.SourceTotal, 0, len(keys))
	for _, k := range keys {
		out = append(out, *totals[k])
	}
	return out, nil
}

type memAllocRepo struct {
	store *MemStore
}

func (r *memAllocRepo) Save(ctx context.Context, allocations ...*ledger.DueAllocation) error {
	for _, a := range allocations {
		r.store.allocations = append(r.store.allocations, *a)
	}
	return nil
}

func (r *memAllocRepo) FindByDue(ctx context.Context, tenantID, dueEntryID uuid.UUID) ([]ledger.DueAllocation, error) {
	var out []ledger.DueAllocation
	for _, a := range r.store.allocations {
		if a.TenantID == tenantID && a.DueEntryID == dueEntryID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *memAllocRepo) FindByPayment(ctx context.Context, tenantID, paymentEntryID uuid.UUID) ([]ledger.DueAllocation, error) {
	var out []ledger.DueAllocation
	for _, a := range r.store.allocations {
		if a.TenantID == tenantID && a.PaymentEntryID == paymentEntryID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *memAllocRepo) FindByIDs(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) ([]ledger.DueAllocation, error) {
	want := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []ledger.DueAllocation
	for _, a := range r.store.allocations {
		if a.TenantID == tenantID && want[a.ID] {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *memAllocRepo) FindForUnit(ctx context.Context, tenantID, unitID uuid.UUID) ([]ledger.DueAllocation, error) {
	var out []ledger.DueAllocation
	for _, a := range r.store.allocations {
		if a.TenantID == tenantID && a.UnitID == unitID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *memAllocRepo) SumByDue(ctx context.Context, tenantID, dueEntryID uuid.UUID) (int64, error) {
	var sum int64
	for _, a := range r.store.allocations {
		if a.TenantID == tenantID && a.DueEntryID == dueEntryID {
			sum += a.AmountMinor
		}
	}
	return sum, nil
}

type memBalanceRepo struct {
	store *MemStore
}

func (r *memBalanceRepo) FindForUnit(ctx context.Context, tenantID, unitID uuid.UUID) (*ledger.UnitBalance, error) {
	b, ok := r.store.balances[balanceKey(tenantID, unitID)]
	if !ok {
		return nil, shared.ErrNotFound
	}
	cp := b
	return &cp, nil
}

func (r *memBalanceRepo) ApplyDelta(ctx context.Context, tenantID, unitID uuid.UUID, delta ledger.BalanceDelta) error {
	key := balanceKey(tenantID, unitID)
	b, ok := r.store.balances[key]
	if !ok {
		b = *ledger.NewUnitBalance(tenantID, unitID)
	}
	b.Apply(delta)
	r.store.balances[key] = b
	return nil
}

func (r *memBalanceRepo) SaveRebuilt(ctx context.Context, balance *ledger.UnitBalance, expectedAppliedCount int64) (bool, error) {
	key := balanceKey(balance.TenantID, balance.UnitID)
	current, ok := r.store.balances[key]
	if ok && current.AppliedCount != expectedAppliedCount {
		return false, nil
	}
	if !ok && expectedAppliedCount != 0 {
		return false, nil
	}
	r.store.balances[key] = *balance
	return true, nil
}

func (r *memBalanceRepo) FindRecentlyUpdated(ctx context.Context, tenantID uuid.UUID, limit int) ([]ledger.UnitBalance, error) {
	var out []ledger.UnitBalance
	for _, b := range r.store.balances {
		if b.TenantID == tenantID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type memAlertRepo struct {
	store *MemStore
}

func (r *memAlertRepo) Save(ctx context.Context, alert *ledger.Alert) error {
	r.store.alerts[alert.ID] = *alert
	return nil
}

func (r *memAlertRepo) FindByIDForTenant(ctx context.Context, tenantID, alertID uuid.UUID) (*ledger.Alert, error) {
	a, ok := r.store.alerts[alertID]
	if !ok || a.TenantID != tenantID {
		return nil, nil
	}
	cp := a
	return &cp, nil
}

func (r *memAlertRepo) HasOpenAlert(ctx context.Context, tenantID uuid.UUID, alertType ledger.AlertType, unitID uuid.UUID) (bool, error) {
	for _, a := range r.store.alerts {
		if a.TenantID == tenantID && a.Type == alertType && a.Status == ledger.AlertStatusOpen &&
			a.UnitID != nil && *a.UnitID == unitID {
			return true, nil
		}
	}
	return false, nil
}

func (r *memAlertRepo) FindOpenForUnitBefore(ctx context.Context, tenantID uuid.UUID, alertType ledger.AlertType, unitID uuid.UUID, cutoff time.Time) ([]ledger.Alert, error) {
	var out []ledger.Alert
	for _, a := range r.store.alerts {
		if a.TenantID == tenantID && a.Type == alertType && a.Status == ledger.AlertStatusOpen &&
			a.UnitID != nil && *a.UnitID == unitID && a.CreatedAt.Before(cutoff) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *memAlertRepo) FindAllForTenant(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) ([]ledger.Alert, error) {
	var out []ledger.Alert
	for _, a := range r.store.alerts {
		if a.TenantID == tenantID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

type memSettleResultRepo struct {
	store *MemStore
}

func settleKey(tenantID, unitID uuid.UUID, requestID string) string {
	return strings.Join([]string{tenantID.String(), unitID.String(), requestID}, "|")
}

func (r *memSettleResultRepo) FindByRequestID(ctx context.Context, tenantID, unitID uuid.UUID, requestID string) (*ledger.SettleResult, error) {
	res, ok := r.store.settleResults[settleKey(tenantID, unitID, requestID)]
	if !ok {
		return nil, nil
	}
	cp := res
	return &cp, nil
}

func (r *memSettleResultRepo) Save(ctx context.Context, result *ledger.SettleResult) error {
	r.store.settleResults[settleKey(result.TenantID, result.UnitID, result.RequestID)] = *result
	return nil
}

func (r *memSettleResultRepo) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	var n int64
	for k, res := range r.store.settleResults {
		if res.ExpiresAt.Before(before) {
			delete(r.store.settleResults, k)
			n++
		}
	}
	return n, nil
}

type memScheduleRepo struct {
	store *MemStore
}

func scheduleKey(tenantID, unitID uuid.UUID, period valueobject.Period) string {
	return strings.Join([]string{tenantID.String(), unitID.String(), period.String()}, "|")
}

func (r *memScheduleRepo) Exists(ctx context.Context, tenantID, unitID uuid.UUID, period valueobject.Period) (bool, error) {
	_, ok := r.store.dueSchedules[scheduleKey(tenantID, unitID, period)]
	return ok, nil
}

func (r *memScheduleRepo) Save(ctx context.Context, record *ledger.DueScheduleRecord) error {
	key := scheduleKey(record.TenantID, record.UnitID, record.Period)
	if _, ok := r.store.dueSchedules[key]; ok {
		return shared.ErrAlreadyExists
	}
	r.store.dueSchedules[key] = *record
	return nil
}

type memAuditRepo struct {
	store *MemStore
}

func (r *memAuditRepo) Save(ctx context.Context, entry *ledger.AuditLogEntry) error {
	r.store.auditLogs = append(r.store.auditLogs, *entry)
	return nil
}
