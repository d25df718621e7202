package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/strata/backend/internal/domain/tenancy"
	"github.com/strata/backend/internal/infrastructure/persistence/models"
)

// GormManagementRepository implements ManagementRepository using GORM
type GormManagementRepository struct {
	db *gorm.DB
}

// NewGormManagementRepository creates a new GormManagementRepository
func NewGormManagementRepository(db *gorm.DB) *GormManagementRepository {
	return &GormManagementRepository{db: db}
}

// FindByID finds a management by its ID. Returns (nil, nil) when absent.
func (r *GormManagementRepository) FindByID(ctx context.Context, id uuid.UUID) (*tenancy.Management, error) {
	var model models.ManagementModel
	if err := r.db.WithContext(ctx).
		First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByOwner finds all managements owned by the given identity
func (r *GormManagementRepository) FindByOwner(ctx context.Context, ownerUID uuid.UUID) ([]*tenancy.Management, error) {
	var managementModels []models.ManagementModel
	if err := r.db.WithContext(ctx).
		Where("owner_uid = ?", ownerUID).
		Order("created_at ASC").
		Find(&managementModels).Error; err != nil {
		return nil, err
	}
	managements := make([]*tenancy.Management, len(managementModels))
	for i := range managementModels {
		managements[i] = managementModels[i].ToDomain()
	}
	return managements, nil
}

// Save creates or updates a management
func (r *GormManagementRepository) Save(ctx context.Context, m *tenancy.Management) error {
	model := models.ManagementModelFromDomain(m)
	return r.db.WithContext(ctx).Save(model).Error
}

// GetAllActiveTenantIDs returns the IDs of all active managements
func (r *GormManagementRepository) GetAllActiveTenantIDs(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	if err := r.db.WithContext(ctx).
		Model(&models.ManagementModel{}).
		Where("active = ?", true).
		Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// Ensure GormManagementRepository implements ManagementRepository
var _ tenancy.ManagementRepository = (*GormManagementRepository)(nil)
