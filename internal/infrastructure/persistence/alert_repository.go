package persistence

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/strata/backend/internal/domain/ledger"
	"github.com/strata/backend/internal/domain/shared"
	"github.com/strata/backend/internal/infrastructure/persistence/models"
)

// GormAlertRepository implements AlertRepository using GORM
type GormAlertRepository struct {
	db *gorm.DB
}

// NewGormAlertRepository creates a new GormAlertRepository
func NewGormAlertRepository(db *gorm.DB) *GormAlertRepository {
	return &GormAlertRepository{db: db}
}

// Save creates or updates an alert
func (r *GormAlertRepository) Save(ctx context.Context, alert *ledger.Alert) error {
	model := models.AlertModelFromDomain(alert)
	return r.db.WithContext(ctx).Save(model).Error
}

// FindByIDForTenant loads one alert scoped to the tenant. Returns
// (nil, nil) when no alert matches.
func (r *GormAlertRepository) FindByIDForTenant(ctx context.Context, tenantID, alertID uuid.UUID) (*ledger.Alert, error) {
	var model models.AlertModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, alertID).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// HasOpenAlert reports whether an open alert of the given type already exists
// for the unit
func (r *GormAlertRepository) HasOpenAlert(ctx context.Context, tenantID uuid.UUID, alertType ledger.AlertType, unitID uuid.UUID) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.AlertModel{}).
		Where("tenant_id = ? AND type = ? AND unit_id = ? AND status = ?",
			tenantID, alertType, unitID, ledger.AlertStatusOpen).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// FindOpenForUnitBefore returns open alerts of the given type for a unit
// created strictly before the cutoff
func (r *GormAlertRepository) FindOpenForUnitBefore(ctx context.Context, tenantID uuid.UUID, alertType ledger.AlertType, unitID uuid.UUID, cutoff time.Time) ([]ledger.Alert, error) {
	var alertModels []models.AlertModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND type = ? AND unit_id = ? AND status = ? AND created_at < ?",
			tenantID, alertType, unitID, ledger.AlertStatusOpen, cutoff).
		Order("created_at ASC").
		Find(&alertModels).Error; err != nil {
		return nil, err
	}
	return toDomainAlerts(alertModels), nil
}

// FindAllForTenant returns alerts for a tenant with pagination
func (r *GormAlertRepository) FindAllForTenant(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) ([]ledger.Alert, error) {
	var alertModels []models.AlertModel
	query := r.db.WithContext(ctx).Model(&models.AlertModel{}).
		Where("tenant_id = ?", tenantID)

	if status, ok := filter.Filters["status"]; ok {
		query = query.Where("status = ?", status)
	}
	if alertType, ok := filter.Filters["type"]; ok {
		query = query.Where("type = ?", alertType)
	}
	if unitID, ok := filter.Filters["unit_id"]; ok {
		query = query.Where("unit_id = ?", unitID)
	}

	if filter.Page > 0 && filter.PageSize > 0 {
		offset := (filter.Page - 1) * filter.PageSize
		query = query.Offset(offset).Limit(filter.PageSize)
	}
	if filter.OrderBy != "" {
		orderDir := "ASC"
		if strings.ToLower(filter.OrderDir) == "desc" {
			orderDir = "DESC"
		}
		query = query.Order(filter.OrderBy + " " + orderDir)
	} else {
		query = query.Order("created_at DESC")
	}

	if err := query.Find(&alertModels).Error; err != nil {
		return nil, err
	}
	return toDomainAlerts(alertModels), nil
}

func toDomainAlerts(alertModels []models.AlertModel) []ledger.Alert {
	alerts := make([]ledger.Alert, len(alertModels))
	for i, model := range alertModels {
		alerts[i] = *model.ToDomain()
	}
	return alerts
}

// Ensure GormAlertRepository implements AlertRepository
var _ ledger.AlertRepository = (*GormAlertRepository)(nil)
