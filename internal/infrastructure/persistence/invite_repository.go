package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/strata/backend/internal/domain/shared"
	"github.com/strata/backend/internal/domain/tenancy"
	"github.com/strata/backend/internal/infrastructure/persistence/models"
)

// GormInviteRepository implements InviteRepository using GORM
type GormInviteRepository struct {
	db *gorm.DB
}

// NewGormInviteRepository creates a new GormInviteRepository
func NewGormInviteRepository(db *gorm.DB) *GormInviteRepository {
	return &GormInviteRepository{db: db}
}

// FindByIDForTenant finds an invite by ID scoped to a tenant
func (r *GormInviteRepository) FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*tenancy.Invite, error) {
	var model models.InviteModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindActiveForUnit returns active invites for a unit
func (r *GormInviteRepository) FindActiveForUnit(ctx context.Context, tenantID, unitID uuid.UUID) ([]*tenancy.Invite, error) {
	var inviteModels []models.InviteModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND unit_id = ? AND status = ?", tenantID, unitID, tenancy.InviteStatusActive).
		Order("created_at DESC").
		Find(&inviteModels).Error; err != nil {
		return nil, err
	}
	return toDomainInvites(inviteModels), nil
}

// Save creates or updates an invite using optimistic locking on existing rows.
// Reservation races between two joiners resolve here: the loser's version
// check fails and the reservation stays with the winner.
func (r *GormInviteRepository) Save(ctx context.Context, i *tenancy.Invite) error {
	model := models.InviteModelFromDomain(i)
	if i.Version <= 1 {
		return r.db.WithContext(ctx).Save(model).Error
	}
	result := r.db.WithContext(ctx).
		Model(model).
		Where("id = ? AND version = ?", i.ID, i.Version-1).
		Select("*").
		Omit("created_at").
		Updates(model)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.NewDomainError("OPTIMISTIC_LOCK_ERROR", "The record has been modified by another transaction")
	}
	return nil
}

// SaveConsumption persists the consumed invite, the resident's membership and
// the unit binding in one transaction
func (r *GormInviteRepository) SaveConsumption(ctx context.Context, i *tenancy.Invite, m *tenancy.Membership, u *tenancy.Unit) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inviteModel := models.InviteModelFromDomain(i)
		result := tx.Model(inviteModel).
			Where("id = ? AND version = ?", i.ID, i.Version-1).
			Select("*").
			Omit("created_at").
			Updates(inviteModel)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return shared.NewDomainError("OPTIMISTIC_LOCK_ERROR", "The invite has been modified by another transaction")
		}

		if err := tx.Save(models.MembershipModelFromDomain(m)).Error; err != nil {
			if isUniqueViolation(err) {
				return shared.ErrAlreadyExists
			}
			return err
		}
		return tx.Save(models.UnitModelFromDomain(u)).Error
	})
}

// FindStaleReserved returns invites whose reservation lapsed before the cutoff
func (r *GormInviteRepository) FindStaleReserved(ctx context.Context, cutoff time.Time, limit int) ([]*tenancy.Invite, error) {
	var inviteModels []models.InviteModel
	if err := r.db.WithContext(ctx).
		Where("reserved = ? AND reserved_until < ?", true, cutoff).
		Order("reserved_until ASC").
		Limit(limit).
		Find(&inviteModels).Error; err != nil {
		return nil, err
	}
	return toDomainInvites(inviteModels), nil
}

// FindExpiredActive returns active invites past their expiry
func (r *GormInviteRepository) FindExpiredActive(ctx context.Context, cutoff time.Time, limit int) ([]*tenancy.Invite, error) {
	var inviteModels []models.InviteModel
	if err := r.db.WithContext(ctx).
		Where("status = ? AND expires_at < ?", tenancy.InviteStatusActive, cutoff).
		Order("expires_at ASC").
		Limit(limit).
		Find(&inviteModels).Error; err != nil {
		return nil, err
	}
	return toDomainInvites(inviteModels), nil
}

func toDomainInvites(inviteModels []models.InviteModel) []*tenancy.Invite {
	invites := make([]*tenancy.Invite, len(inviteModels))
	for i := range inviteModels {
		invites[i] = inviteModels[i].ToDomain()
	}
	return invites
}

// Ensure GormInviteRepository implements InviteRepository
var _ tenancy.InviteRepository = (*GormInviteRepository)(nil)
