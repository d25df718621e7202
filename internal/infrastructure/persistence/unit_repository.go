package persistence

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/strata/backend/internal/domain/shared"
	"github.com/strata/backend/internal/domain/tenancy"
	"github.com/strata/backend/internal/infrastructure/persistence/models"
)

// GormUnitRepository implements UnitRepository using GORM
type GormUnitRepository struct {
	db *gorm.DB
}

// NewGormUnitRepository creates a new GormUnitRepository
func NewGormUnitRepository(db *gorm.DB) *GormUnitRepository {
	return &GormUnitRepository{db: db}
}

// FindByIDForTenant finds a unit by ID scoped to a tenant
func (r *GormUnitRepository) FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*tenancy.Unit, error) {
	var model models.UnitModel
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

// FindByCode finds a unit by its code for a tenant
func (r *GormUnitRepository) FindByCode(ctx context.Context, tenantID uuid.UUID, code string) (*tenancy.Unit, error) {
	var model models.UnitModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND code = ?", tenantID, code).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindActiveByTenant returns active units for a tenant with pagination
func (r *GormUnitRepository) FindActiveByTenant(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) (*shared.Paginated[*tenancy.Unit], error) {
	query := r.db.WithContext(ctx).Model(&models.UnitModel{}).
		Where("tenant_id = ? AND active = ?", tenantID, true)

	if search, ok := filter.Filters["search"].(string); ok && search != "" {
		pattern := "%" + search + "%"
		query = query.Where("code ILIKE ? OR floor ILIKE ?", pattern, pattern)
	}
	if floor, ok := filter.Filters["floor"]; ok {
		query = query.Where("floor = ?", floor)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, err
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
		query = query.Order("code ASC")
	}

	var unitModels []models.UnitModel
	if err := query.Find(&unitModels).Error; err != nil {
		return nil, err
	}
	units := make([]*tenancy.Unit, len(unitModels))
	for i := range unitModels {
		units[i] = unitModels[i].ToDomain()
	}
	paginated := shared.NewPaginated(units, total, filter.Page, filter.PageSize)
	return &paginated, nil
}

// FindByResident finds the unit bound to a resident
func (r *GormUnitRepository) FindByResident(ctx context.Context, tenantID, residentUID uuid.UUID) (*tenancy.Unit, error) {
	var model models.UnitModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND resident_uid = ?", tenantID, residentUID).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// Save creates or updates a unit
func (r *GormUnitRepository) Save(ctx context.Context, u *tenancy.Unit) error {
	model := models.UnitModelFromDomain(u)
	if err := r.db.WithContext(ctx).Save(model).Error; err != nil {
		if isUniqueViolation(err) {
			return shared.ErrAlreadyExists
		}
		return err
	}
	return nil
}

// Ensure GormUnitRepository implements UnitRepository
var _ tenancy.UnitRepository = (*GormUnitRepository)(nil)
