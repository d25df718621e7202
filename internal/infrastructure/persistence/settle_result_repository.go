package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/strata/backend/internal/domain/ledger"
	"github.com/strata/backend/internal/domain/shared"
	"github.com/strata/backend/internal/infrastructure/persistence/models"
)

// GormSettleResultRepository implements SettleResultRepository using GORM
type GormSettleResultRepository struct {
	db *gorm.DB
}

// NewGormSettleResultRepository creates a new GormSettleResultRepository
func NewGormSettleResultRepository(db *gorm.DB) *GormSettleResultRepository {
	return &GormSettleResultRepository{db: db}
}

// FindByRequestID returns the stored outcome for a client request, or
// (nil, nil) when the request was never settled
func (r *GormSettleResultRepository) FindByRequestID(ctx context.Context, tenantID, unitID uuid.UUID, requestID string) (*ledger.SettleResult, error) {
	var model models.SettleResultModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND unit_id = ? AND request_id = ?", tenantID, unitID, requestID).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// Save persists a settlement outcome
func (r *GormSettleResultRepository) Save(ctx context.Context, result *ledger.SettleResult) error {
	model := models.SettleResultModelFromDomain(result)
	if err := r.db.WithContext(ctx).Save(model).Error; err != nil {
		if isUniqueViolation(err) {
			return shared.ErrAlreadyExists
		}
		return err
	}
	return nil
}

// DeleteExpired removes outcomes whose replay window has passed
func (r *GormSettleResultRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("expires_at < ?", before).
		Delete(&models.SettleResultModel{})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// Ensure GormSettleResultRepository implements SettleResultRepository
var _ ledger.SettleResultRepository = (*GormSettleResultRepository)(nil)
