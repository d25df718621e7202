package persistence

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/strata/backend/internal/domain/ledger"
	"github.com/strata/backend/internal/domain/shared"
	"github.com/strata/backend/internal/domain/shared/valueobject"
	"github.com/strata/backend/internal/infrastructure/persistence/models"
)

// GormDueScheduleRepository implements DueScheduleRepository using GORM
type GormDueScheduleRepository struct {
	db *gorm.DB
}

// NewGormDueScheduleRepository creates a new GormDueScheduleRepository
func NewGormDueScheduleRepository(db *gorm.DB) *GormDueScheduleRepository {
	return &GormDueScheduleRepository{db: db}
}

// Exists reports whether a due was already generated for the unit and period
func (r *GormDueScheduleRepository) Exists(ctx context.Context, tenantID, unitID uuid.UUID, period valueobject.Period) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.DueScheduleModel{}).
		Where("tenant_id = ? AND unit_id = ? AND period = ?", tenantID, unitID, period).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// Save registers a generated due. The unique (tenant, unit, period) index is
// the hard guard against double generation; a violation surfaces as
// shared.ErrAlreadyExists so the generator treats the period as done.
func (r *GormDueScheduleRepository) Save(ctx context.Context, record *ledger.DueScheduleRecord) error {
	model := models.DueScheduleModelFromDomain(record)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if isUniqueViolation(err) {
			return shared.ErrAlreadyExists
		}
		return err
	}
	return nil
}

// Ensure GormDueScheduleRepository implements DueScheduleRepository
var _ ledger.DueScheduleRepository = (*GormDueScheduleRepository)(nil)
