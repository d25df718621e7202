package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/strata/backend/internal/domain/shared/valueobject"
	"github.com/strata/backend/internal/domain/tenancy"
)

// ManagementModel is the persistence model for the Management aggregate root.
// A management IS the tenant, so it carries no tenant column of its own.
type ManagementModel struct {
	AggregateModel
	Name             string               `gorm:"type:varchar(200);not null"`
	OwnerUID         uuid.UUID            `gorm:"type:uuid;not null;index"`
	Currency         valueobject.Currency `gorm:"type:varchar(3);not null"`
	DefaultDuesMinor int64                `gorm:"not null;default:0"`
	Active           bool                 `gorm:"not null;default:true;index"`
}

// TableName returns the table name for GORM
func (ManagementModel) TableName() string {
	return "managements"
}

// ToDomain converts the persistence model to a domain Management.
func (m *ManagementModel) ToDomain() *tenancy.Management {
	mg := &tenancy.Management{
		Name:             m.Name,
		OwnerUID:         m.OwnerUID,
		Currency:         m.Currency,
		DefaultDuesMinor: m.DefaultDuesMinor,
		Active:           m.Active,
	}
	mg.BaseEntity = m.BaseModel.ToDomain()
	mg.Version = m.Version
	return mg
}

// FromDomain populates the persistence model from a domain Management.
func (m *ManagementModel) FromDomain(mg *tenancy.Management) {
	m.FromDomainAggregateRoot(mg.BaseAggregateRoot)
	m.Name = mg.Name
	m.OwnerUID = mg.OwnerUID
	m.Currency = mg.Currency
	m.DefaultDuesMinor = mg.DefaultDuesMinor
	m.Active = mg.Active
}

// ManagementModelFromDomain creates a new persistence model from a domain Management.
func ManagementModelFromDomain(mg *tenancy.Management) *ManagementModel {
	m := &ManagementModel{}
	m.FromDomain(mg)
	return m
}

// UnitModel is the persistence model for the Unit aggregate root.
type UnitModel struct {
	TenantAggregateModel
	Code             string     `gorm:"type:varchar(50);not null;uniqueIndex:idx_unit_tenant_code,priority:2"`
	Floor            string     `gorm:"type:varchar(50)"`
	Active           bool       `gorm:"not null;default:true;index"`
	ExemptFromDues   bool       `gorm:"not null;default:false"`
	MonthlyDuesMinor int64      `gorm:"not null;default:0"`
	ResidentUID      *uuid.UUID `gorm:"type:uuid;index"`
}

// TableName returns the table name for GORM
func (UnitModel) TableName() string {
	return "units"
}

// ToDomain converts the persistence model to a domain Unit.
func (m *UnitModel) ToDomain() *tenancy.Unit {
	u := &tenancy.Unit{
		Code:             m.Code,
		Floor:            m.Floor,
		Active:           m.Active,
		ExemptFromDues:   m.ExemptFromDues,
		MonthlyDuesMinor: m.MonthlyDuesMinor,
		ResidentUID:      m.ResidentUID,
	}
	m.PopulateTenantAggregateRoot(&u.TenantAggregateRoot)
	return u
}

// FromDomain populates the persistence model from a domain Unit.
func (m *UnitModel) FromDomain(u *tenancy.Unit) {
	m.FromDomainTenantAggregateRoot(u.TenantAggregateRoot)
	m.Code = u.Code
	m.Floor = u.Floor
	m.Active = u.Active
	m.ExemptFromDues = u.ExemptFromDues
	m.MonthlyDuesMinor = u.MonthlyDuesMinor
	m.ResidentUID = u.ResidentUID
}

// UnitModelFromDomain creates a new persistence model from a domain Unit.
func UnitModelFromDomain(u *tenancy.Unit) *UnitModel {
	m := &UnitModel{}
	m.FromDomain(u)
	return m
}

// MembershipModel is the persistence model for the Membership aggregate root.
type MembershipModel struct {
	TenantAggregateModel
	UserID uuid.UUID    `gorm:"type:uuid;not null;index;uniqueIndex:idx_membership_tenant_user,priority:2"`
	Role   tenancy.Role `gorm:"type:varchar(20);not null"`
}

// TableName returns the table name for GORM
func (MembershipModel) TableName() string {
	return "memberships"
}

// ToDomain converts the persistence model to a domain Membership.
func (m *MembershipModel) ToDomain() *tenancy.Membership {
	mb := &tenancy.Membership{
		UserID: m.UserID,
		Role:   m.Role,
	}
	m.PopulateTenantAggregateRoot(&mb.TenantAggregateRoot)
	return mb
}

// FromDomain populates the persistence model from a domain Membership.
func (m *MembershipModel) FromDomain(mb *tenancy.Membership) {
	m.FromDomainTenantAggregateRoot(mb.TenantAggregateRoot)
	m.UserID = mb.UserID
	m.Role = mb.Role
}

// MembershipModelFromDomain creates a new persistence model from a domain Membership.
func MembershipModelFromDomain(mb *tenancy.Membership) *MembershipModel {
	m := &MembershipModel{}
	m.FromDomain(mb)
	return m
}

// InviteModel is the persistence model for the Invite aggregate root.
type InviteModel struct {
	TenantAggregateModel
	UnitID        uuid.UUID            `gorm:"type:uuid;not null;index"`
	Status        tenancy.InviteStatus `gorm:"type:varchar(20);not null;default:'active';index"`
	ExpiresAt     time.Time            `gorm:"not null;index"`
	Reserved      bool                 `gorm:"not null;default:false"`
	ReservedNonce string               `gorm:"type:varchar(64)"`
	ReservedUntil *time.Time           `gorm:"index"`
	ReservedByKey string               `gorm:"type:varchar(128)"`
	UsedAt        *time.Time
	UsedBy        *uuid.UUID `gorm:"type:uuid"`
}

// TableName returns the table name for GORM
func (InviteModel) TableName() string {
	return "invites"
}

// ToDomain converts the persistence model to a domain Invite.
func (m *InviteModel) ToDomain() *tenancy.Invite {
	i := &tenancy.Invite{
		UnitID:        m.UnitID,
		Status:        m.Status,
		ExpiresAt:     m.ExpiresAt,
		Reserved:      m.Reserved,
		ReservedNonce: m.ReservedNonce,
		ReservedUntil: m.ReservedUntil,
		ReservedByKey: m.ReservedByKey,
		UsedAt:        m.UsedAt,
		UsedBy:        m.UsedBy,
	}
	m.PopulateTenantAggregateRoot(&i.TenantAggregateRoot)
	return i
}

// FromDomain populates the persistence model from a domain Invite.
func (m *InviteModel) FromDomain(i *tenancy.Invite) {
	m.FromDomainTenantAggregateRoot(i.TenantAggregateRoot)
	m.UnitID = i.UnitID
	m.Status = i.Status
	m.ExpiresAt = i.ExpiresAt
	m.Reserved = i.Reserved
	m.ReservedNonce = i.ReservedNonce
	m.ReservedUntil = i.ReservedUntil
	m.ReservedByKey = i.ReservedByKey
	m.UsedAt = i.UsedAt
	m.UsedBy = i.UsedBy
}

// InviteModelFromDomain creates a new persistence model from a domain Invite.
func InviteModelFromDomain(i *tenancy.Invite) *InviteModel {
	m := &InviteModel{}
	m.FromDomain(i)
	return m
}
