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

// GormMembershipRepository implements MembershipRepository using GORM
type GormMembershipRepository struct {
	db *gorm.DB
}

// NewGormMembershipRepository creates a new GormMembershipRepository
func NewGormMembershipRepository(db *gorm.DB) *GormMembershipRepository {
	return &GormMembershipRepository{db: db}
}

// FindByUser finds the membership binding a user to a tenant
func (r *GormMembershipRepository) FindByUser(ctx context.Context, tenantID, userID uuid.UUID) (*tenancy.Membership, error) {
	var model models.MembershipModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND user_id = ?", tenantID, userID).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindAllForTenant returns memberships for a tenant with pagination
func (r *GormMembershipRepository) FindAllForTenant(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) (*shared.Paginated[*tenancy.Membership], error) {
	query := r.db.WithContext(ctx).Model(&models.MembershipModel{}).
		Where("tenant_id = ?", tenantID)

	if role, ok := filter.Filters["role"]; ok {
		query = query.Where("role = ?", role)
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
		query = query.Order("created_at ASC")
	}

	var membershipModels []models.MembershipModel
	if err := query.Find(&membershipModels).Error; err != nil {
		return nil, err
	}
	memberships := make([]*tenancy.Membership, len(membershipModels))
	for i := range membershipModels {
		memberships[i] = membershipModels[i].ToDomain()
	}
	paginated := shared.NewPaginated(memberships, total, filter.Page, filter.PageSize)
	return &paginated, nil
}

// Save creates or updates a membership
func (r *GormMembershipRepository) Save(ctx context.Context, m *tenancy.Membership) error {
	model := models.MembershipModelFromDomain(m)
	if err := r.db.WithContext(ctx).Save(model).Error; err != nil {
		if isUniqueViolation(err) {
			return shared.ErrAlreadyExists
		}
		return err
	}
	return nil
}

// Delete removes a membership
func (r *GormMembershipRepository) Delete(ctx context.Context, tenantID, userID uuid.UUID) error {
	result := r.db.WithContext(ctx).
		Delete(&models.MembershipModel{}, "tenant_id = ? AND user_id = ?", tenantID, userID)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Ensure GormMembershipRepository implements MembershipRepository
var _ tenancy.MembershipRepository = (*GormMembershipRepository)(nil)
