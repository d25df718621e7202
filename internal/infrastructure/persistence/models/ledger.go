package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/strata/backend/internal/domain/ledger"
	"github.com/strata/backend/internal/domain/shared/valueobject"
)

// LedgerEntryModel is the persistence model for the LedgerEntry aggregate root.
type LedgerEntryModel struct {
	TenantAggregateModel
	EntryNumber    string                  `gorm:"type:varchar(160);not null;uniqueIndex:idx_entry_tenant_number,priority:2"`
	UnitID         *uuid.UUID              `gorm:"type:uuid;index"`
	Type           ledger.EntryType        `gorm:"type:varchar(10);not null"`
	AmountMinor    int64                   `gorm:"not null"`
	Currency       valueobject.Currency    `gorm:"type:varchar(3);not null"`
	Source         ledger.EntrySource      `gorm:"type:varchar(30);not null;index"`
	Status         ledger.EntryStatus      `gorm:"type:varchar(20);not null;default:'posted';index"`
	AffectsBalance bool                    `gorm:"not null;default:true"`
	Reference      string                  `gorm:"type:varchar(500)"`
	Period         valueobject.Period      `gorm:"type:varchar(7)"`

	DueTotalMinor       int64            `gorm:"not null;default:0"`
	DueAllocatedMinor   int64            `gorm:"not null;default:0"`
	DueOutstandingMinor int64            `gorm:"not null;default:0"`
	DueStatus           ledger.DueStatus `gorm:"type:varchar(10)"`

	AppliedMinor     int64                   `gorm:"not null;default:0"`
	UnappliedMinor   int64                   `gorm:"not null;default:0"`
	AllocationStatus ledger.AllocationStatus `gorm:"type:varchar(20)"`

	RelatedDueID    *uuid.UUID `gorm:"type:uuid;index"`
	ReversalOf      *uuid.UUID `gorm:"type:uuid;index"`
	ReversalEntryID *uuid.UUID `gorm:"type:uuid"`

	VoidReason     string `gorm:"type:varchar(500)"`
	VoidedAt       *time.Time
	VoidedBy       *uuid.UUID `gorm:"type:uuid"`
	ReversalReason string     `gorm:"type:varchar(500)"`
	ReversedAt     *time.Time

	BalanceAppliedAt       *time.Time
	BalanceAppliedVersion  int64 `gorm:"not null;default:0"`
	BalanceRevertedAt      *time.Time
	BalanceRevertedVersion int64 `gorm:"not null;default:0"`
}

// TableName returns the table name for GORM
func (LedgerEntryModel) TableName() string {
	return "ledger_entries"
}

// ToDomain converts the persistence model to a domain LedgerEntry.
func (m *LedgerEntryModel) ToDomain() *ledger.LedgerEntry {
	e := &ledger.LedgerEntry{
		EntryNumber:    m.EntryNumber,
		UnitID:         m.UnitID,
		Type:           m.Type,
		AmountMinor:    m.AmountMinor,
		Currency:       m.Currency,
		Source:         m.Source,
		Status:         m.Status,
		AffectsBalance: m.AffectsBalance,
		Reference:      m.Reference,
		Period:         m.Period,

		DueTotalMinor:       m.DueTotalMinor,
		DueAllocatedMinor:   m.DueAllocatedMinor,
		DueOutstandingMinor: m.DueOutstandingMinor,
		DueStatus:           m.DueStatus,

		AppliedMinor:     m.AppliedMinor,
		UnappliedMinor:   m.UnappliedMinor,
		AllocationStatus: m.AllocationStatus,

		RelatedDueID:    m.RelatedDueID,
		ReversalOf:      m.ReversalOf,
		ReversalEntryID: m.ReversalEntryID,

		VoidReason:     m.VoidReason,
		VoidedAt:       m.VoidedAt,
		VoidedBy:       m.VoidedBy,
		ReversalReason: m.ReversalReason,
		ReversedAt:     m.ReversedAt,

		BalanceAppliedAt:       m.BalanceAppliedAt,
		BalanceAppliedVersion:  m.BalanceAppliedVersion,
		BalanceRevertedAt:      m.BalanceRevertedAt,
		BalanceRevertedVersion: m.BalanceRevertedVersion,
	}
	m.PopulateTenantAggregateRoot(&e.TenantAggregateRoot)
	return e
}

// FromDomain populates the persistence model from a domain LedgerEntry.
func (m *LedgerEntryModel) FromDomain(e *ledger.LedgerEntry) {
	m.FromDomainTenantAggregateRoot(e.TenantAggregateRoot)
	m.EntryNumber = e.EntryNumber
	m.UnitID = e.UnitID
	m.Type = e.Type
	m.AmountMinor = e.AmountMinor
	m.Currency = e.Currency
	m.Source = e.Source
	m.Status = e.Status
	m.AffectsBalance = e.AffectsBalance
	m.Reference = e.Reference
	m.Period = e.Period

	m.DueTotalMinor = e.DueTotalMinor
	m.DueAllocatedMinor = e.DueAllocatedMinor
	m.DueOutstandingMinor = e.DueOutstandingMinor
	m.DueStatus = e.DueStatus

	m.AppliedMinor = e.AppliedMinor
	m.UnappliedMinor = e.UnappliedMinor
	m.AllocationStatus = e.AllocationStatus

	m.RelatedDueID = e.RelatedDueID
	m.ReversalOf = e.ReversalOf
	m.ReversalEntryID = e.ReversalEntryID

	m.VoidReason = e.VoidReason
	m.VoidedAt = e.VoidedAt
	m.VoidedBy = e.VoidedBy
	m.ReversalReason = e.ReversalReason
	m.ReversedAt = e.ReversedAt

	m.BalanceAppliedAt = e.BalanceAppliedAt
	m.BalanceAppliedVersion = e.BalanceAppliedVersion
	m.BalanceRevertedAt = e.BalanceRevertedAt
	m.BalanceRevertedVersion = e.BalanceRevertedVersion
}

// LedgerEntryModelFromDomain creates a new persistence model from a domain LedgerEntry.
func LedgerEntryModelFromDomain(e *ledger.LedgerEntry) *LedgerEntryModel {
	m := &LedgerEntryModel{}
	m.FromDomain(e)
	return m
}

// DueAllocationModel is the persistence model for due allocations.
type DueAllocationModel struct {
	BaseModel
	TenantID          uuid.UUID             `gorm:"type:uuid;not null;index:idx_alloc_tenant_due,priority:1;index:idx_alloc_tenant_payment,priority:1;index:idx_alloc_tenant_unit,priority:1"`
	UnitID            uuid.UUID             `gorm:"type:uuid;not null;index:idx_alloc_tenant_unit,priority:2"`
	PaymentEntryID    uuid.UUID             `gorm:"type:uuid;not null;index:idx_alloc_tenant_payment,priority:2"`
	DueEntryID        uuid.UUID             `gorm:"type:uuid;not null;index:idx_alloc_tenant_due,priority:2"`
	AmountMinor       int64                 `gorm:"not null"`
	Kind              ledger.AllocationKind `gorm:"type:varchar(20);not null"`
	SettlementEntryID *uuid.UUID            `gorm:"type:uuid"`
	ReversalOfID      *uuid.UUID            `gorm:"type:uuid"`
}

// TableName returns the table name for GORM
func (DueAllocationModel) TableName() string {
	return "due_allocations"
}

// ToDomain converts the persistence model to a domain DueAllocation.
func (m *DueAllocationModel) ToDomain() *ledger.DueAllocation {
	return &ledger.DueAllocation{
		BaseEntity:        m.BaseModel.ToDomain(),
		TenantID:          m.TenantID,
		UnitID:            m.UnitID,
		PaymentEntryID:    m.PaymentEntryID,
		DueEntryID:        m.DueEntryID,
		AmountMinor:       m.AmountMinor,
		Kind:              m.Kind,
		SettlementEntryID: m.SettlementEntryID,
		ReversalOfID:      m.ReversalOfID,
	}
}

// FromDomain populates the persistence model from a domain DueAllocation.
func (m *DueAllocationModel) FromDomain(a *ledger.DueAllocation) {
	m.FromDomainBaseEntity(a.BaseEntity)
	m.TenantID = a.TenantID
	m.UnitID = a.UnitID
	m.PaymentEntryID = a.PaymentEntryID
	m.DueEntryID = a.DueEntryID
	m.AmountMinor = a.AmountMinor
	m.Kind = a.Kind
	m.SettlementEntryID = a.SettlementEntryID
	m.ReversalOfID = a.ReversalOfID
}

// DueAllocationModelFromDomain creates a new persistence model from a domain DueAllocation.
func DueAllocationModelFromDomain(a *ledger.DueAllocation) *DueAllocationModel {
	m := &DueAllocationModel{}
	m.FromDomain(a)
	return m
}

// UnitBalanceModel is the persistence model for the unit balance cache.
type UnitBalanceModel struct {
	TenantAggregateModel
	UnitID                uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_balance_tenant_unit,priority:2"`
	BalanceMinor          int64     `gorm:"not null;default:0"`
	PostedDebitMinor      int64     `gorm:"not null;default:0"`
	PostedCreditMinor     int64     `gorm:"not null;default:0"`
	AppliedCount          int64     `gorm:"not null;default:0"`
	RebuiltAt             *time.Time
	RebuiltBy             *uuid.UUID `gorm:"type:uuid"`
	RebuiltFromEntryCount int64      `gorm:"not null;default:0"`
}

// TableName returns the table name for GORM
func (UnitBalanceModel) TableName() string {
	return "unit_balances"
}

// ToDomain converts the persistence model to a domain UnitBalance.
func (m *UnitBalanceModel) ToDomain() *ledger.UnitBalance {
	b := &ledger.UnitBalance{
		UnitID:                m.UnitID,
		BalanceMinor:          m.BalanceMinor,
		PostedDebitMinor:      m.PostedDebitMinor,
		PostedCreditMinor:     m.PostedCreditMinor,
		AppliedCount:          m.AppliedCount,
		RebuiltAt:             m.RebuiltAt,
		RebuiltBy:             m.RebuiltBy,
		RebuiltFromEntryCount: m.RebuiltFromEntryCount,
	}
	m.PopulateTenantAggregateRoot(&b.TenantAggregateRoot)
	return b
}

// FromDomain populates the persistence model from a domain UnitBalance.
func (m *UnitBalanceModel) FromDomain(b *ledger.UnitBalance) {
	m.FromDomainTenantAggregateRoot(b.TenantAggregateRoot)
	m.UnitID = b.UnitID
	m.BalanceMinor = b.BalanceMinor
	m.PostedDebitMinor = b.PostedDebitMinor
	m.PostedCreditMinor = b.PostedCreditMinor
	m.AppliedCount = b.AppliedCount
	m.RebuiltAt = b.RebuiltAt
	m.RebuiltBy = b.RebuiltBy
	m.RebuiltFromEntryCount = b.RebuiltFromEntryCount
}

// UnitBalanceModelFromDomain creates a new persistence model from a domain UnitBalance.
func UnitBalanceModelFromDomain(b *ledger.UnitBalance) *UnitBalanceModel {
	m := &UnitBalanceModel{}
	m.FromDomain(b)
	return m
}

// AlertModel is the persistence model for drift alerts.
type AlertModel struct {
	TenantAggregateModel
	Type           ledger.AlertType   `gorm:"type:varchar(30);not null;index"`
	UnitID         *uuid.UUID         `gorm:"type:uuid;index"`
	DueEntryID     *uuid.UUID         `gorm:"type:uuid"`
	CanonicalMinor int64              `gorm:"not null;default:0"`
	CachedMinor    int64              `gorm:"not null;default:0"`
	Detail         string             `gorm:"type:text"`
	Status         ledger.AlertStatus `gorm:"type:varchar(20);not null;default:'open';index"`
	ResolvedAt     *time.Time
	ResolvedBy     *uuid.UUID `gorm:"type:uuid"`
	Resolution     string     `gorm:"type:varchar(500)"`
}

// TableName returns the table name for GORM
func (AlertModel) TableName() string {
	return "reconcile_alerts"
}

// ToDomain converts the persistence model to a domain Alert.
func (m *AlertModel) ToDomain() *ledger.Alert {
	a := &ledger.Alert{
		Type:           m.Type,
		UnitID:         m.UnitID,
		DueEntryID:     m.DueEntryID,
		CanonicalMinor: m.CanonicalMinor,
		CachedMinor:    m.CachedMinor,
		Detail:         m.Detail,
		Status:         m.Status,
		ResolvedAt:     m.ResolvedAt,
		ResolvedBy:     m.ResolvedBy,
		Resolution:     m.Resolution,
	}
	m.PopulateTenantAggregateRoot(&a.TenantAggregateRoot)
	return a
}

// FromDomain populates the persistence model from a domain Alert.
func (m *AlertModel) FromDomain(a *ledger.Alert) {
	m.FromDomainTenantAggregateRoot(a.TenantAggregateRoot)
	m.Type = a.Type
	m.UnitID = a.UnitID
	m.DueEntryID = a.DueEntryID
	m.CanonicalMinor = a.CanonicalMinor
	m.CachedMinor = a.CachedMinor
	m.Detail = a.Detail
	m.Status = a.Status
	m.ResolvedAt = a.ResolvedAt
	m.ResolvedBy = a.ResolvedBy
	m.Resolution = a.Resolution
}

// AlertModelFromDomain creates a new persistence model from a domain Alert.
func AlertModelFromDomain(a *ledger.Alert) *AlertModel {
	m := &AlertModel{}
	m.FromDomain(a)
	return m
}

// SettleResultModel is the persistence model for cached settlement outcomes.
type SettleResultModel struct {
	BaseModel
	TenantID             uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_settle_tenant_unit_request,priority:1"`
	UnitID               uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_settle_tenant_unit_request,priority:2"`
	RequestID            string          `gorm:"type:varchar(128);not null;uniqueIndex:idx_settle_tenant_unit_request,priority:3"`
	ClosedDueCount       int             `gorm:"not null;default:0"`
	TotalSettledMinor    int64           `gorm:"not null;default:0"`
	RemainingCreditMinor int64           `gorm:"not null;default:0"`
	ClosedDueIDs         ledger.UUIDList `gorm:"type:jsonb;default:'[]'"`
	SettlementEntryIDs   ledger.UUIDList `gorm:"type:jsonb;default:'[]'"`
	AllocationIDs        ledger.UUIDList `gorm:"type:jsonb;default:'[]'"`
	ExpiresAt            time.Time       `gorm:"not null;index"`
}

// TableName returns the table name for GORM
func (SettleResultModel) TableName() string {
	return "settle_results"
}

// ToDomain converts the persistence model to a domain SettleResult.
func (m *SettleResultModel) ToDomain() *ledger.SettleResult {
	return &ledger.SettleResult{
		BaseEntity:           m.BaseModel.ToDomain(),
		TenantID:             m.TenantID,
		UnitID:               m.UnitID,
		RequestID:            m.RequestID,
		ClosedDueCount:       m.ClosedDueCount,
		TotalSettledMinor:    m.TotalSettledMinor,
		RemainingCreditMinor: m.RemainingCreditMinor,
		ClosedDueIDs:         m.ClosedDueIDs,
		SettlementEntryIDs:   m.SettlementEntryIDs,
		AllocationIDs:        m.AllocationIDs,
		ExpiresAt:            m.ExpiresAt,
	}
}

// FromDomain populates the persistence model from a domain SettleResult.
func (m *SettleResultModel) FromDomain(r *ledger.SettleResult) {
	m.FromDomainBaseEntity(r.BaseEntity)
	m.TenantID = r.TenantID
	m.UnitID = r.UnitID
	m.RequestID = r.RequestID
	m.ClosedDueCount = r.ClosedDueCount
	m.TotalSettledMinor = r.TotalSettledMinor
	m.RemainingCreditMinor = r.RemainingCreditMinor
	m.ClosedDueIDs = r.ClosedDueIDs
	m.SettlementEntryIDs = r.SettlementEntryIDs
	m.AllocationIDs = r.AllocationIDs
	m.ExpiresAt = r.ExpiresAt
}

// SettleResultModelFromDomain creates a new persistence model from a domain SettleResult.
func SettleResultModelFromDomain(r *ledger.SettleResult) *SettleResultModel {
	m := &SettleResultModel{}
	m.FromDomain(r)
	return m
}

// DueScheduleModel is the persistence model for the dues-generation registry.
// The unique (tenant, unit, period) index is the hard guard against double
// generation for a billing month.
type DueScheduleModel struct {
	BaseModel
	TenantID uuid.UUID          `gorm:"type:uuid;not null;uniqueIndex:idx_due_schedule_tenant_unit_period,priority:1"`
	UnitID   uuid.UUID          `gorm:"type:uuid;not null;uniqueIndex:idx_due_schedule_tenant_unit_period,priority:2"`
	Period   valueobject.Period `gorm:"type:varchar(7);not null;uniqueIndex:idx_due_schedule_tenant_unit_period,priority:3"`
	EntryID  uuid.UUID          `gorm:"type:uuid;not null"`
}

// TableName returns the table name for GORM
func (DueScheduleModel) TableName() string {
	return "due_schedules"
}

// ToDomain converts the persistence model to a domain DueScheduleRecord.
func (m *DueScheduleModel) ToDomain() *ledger.DueScheduleRecord {
	return &ledger.DueScheduleRecord{
		BaseEntity: m.BaseModel.ToDomain(),
		TenantID:   m.TenantID,
		UnitID:     m.UnitID,
		Period:     m.Period,
		EntryID:    m.EntryID,
	}
}

// DueScheduleModelFromDomain creates a new persistence model from a domain DueScheduleRecord.
func DueScheduleModelFromDomain(r *ledger.DueScheduleRecord) *DueScheduleModel {
	m := &DueScheduleModel{}
	m.FromDomainBaseEntity(r.BaseEntity)
	m.TenantID = r.TenantID
	m.UnitID = r.UnitID
	m.Period = r.Period
	m.EntryID = r.EntryID
	return m
}

// AuditLogModel is the persistence model for administrative audit records.
type AuditLogModel struct {
	BaseModel
	TenantID  uuid.UUID  `gorm:"type:uuid;not null;index"`
	ActorID   uuid.UUID  `gorm:"type:uuid;not null"`
	Action    string     `gorm:"type:varchar(100);not null;index"`
	SubjectID *uuid.UUID `gorm:"type:uuid"`
	Detail    string     `gorm:"type:text"`
}

// TableName returns the table name for GORM
func (AuditLogModel) TableName() string {
	return "audit_logs"
}

// ToDomain converts the persistence model to a domain AuditLogEntry.
func (m *AuditLogModel) ToDomain() *ledger.AuditLogEntry {
	return &ledger.AuditLogEntry{
		BaseEntity: m.BaseModel.ToDomain(),
		TenantID:   m.TenantID,
		ActorID:    m.ActorID,
		Action:     m.Action,
		SubjectID:  m.SubjectID,
		Detail:     m.Detail,
	}
}

// AuditLogModelFromDomain creates a new persistence model from a domain AuditLogEntry.
func AuditLogModelFromDomain(e *ledger.AuditLogEntry) *AuditLogModel {
	m := &AuditLogModel{}
	m.FromDomainBaseEntity(e.BaseEntity)
	m.TenantID = e.TenantID
	m.ActorID = e.ActorID
	m.Action = e.Action
	m.SubjectID = e.SubjectID
	m.Detail = e.Detail
	return m
}
