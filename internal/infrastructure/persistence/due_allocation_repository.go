package persistence

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/strata/backend/internal/domain/ledger"
	"github.com/strata/backend/internal/infrastructure/persistence/models"
)

// GormDueAllocationRepository implements DueAllocationRepository using GORM
type GormDueAllocationRepository struct {
	db *gorm.DB
}

// NewGormDueAllocationRepository creates a new GormDueAllocationRepository
func NewGormDueAllocationRepository(db *gorm.DB) *GormDueAllocationRepository {
	return &GormDueAllocationRepository{db: db}
}

// Save persists one or more allocations
func (r *GormDueAllocationRepository) Save(ctx context.Context, allocations ...*ledger.DueAllocation) error {
	if len(allocations) == 0 {
		return nil
	}
	allocationModels := make([]*models.DueAllocationModel, len(allocations))
	for i, a := range allocations {
		allocationModels[i] = models.DueAllocationModelFromDomain(a)
	}
	return r.db.WithContext(ctx).Save(allocationModels).Error
}

// FindByDue returns all allocations (including reversals) for a due
func (r *GormDueAllocationRepository) FindByDue(ctx context.Context, tenantID, dueEntryID uuid.UUID) ([]ledger.DueAllocation, error) {
	var allocationModels []models.DueAllocationModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND due_entry_id = ?", tenantID, dueEntryID).
		Order("created_at ASC").
		Find(&allocationModels).Error; err != nil {
		return nil, err
	}
	return toDomainAllocations(allocationModels), nil
}

// FindByPayment returns all allocations for a funding payment
func (r *GormDueAllocationRepository) FindByPayment(ctx context.Context, tenantID, paymentEntryID uuid.UUID) ([]ledger.DueAllocation, error) {
	var allocationModels []models.DueAllocationModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND payment_entry_id = ?", tenantID, paymentEntryID).
		Order("created_at ASC").
		Find(&allocationModels).Error; err != nil {
		return nil, err
	}
	return toDomainAllocations(allocationModels), nil
}

// FindByIDs returns the allocations with the given IDs
func (r *GormDueAllocationRepository) FindByIDs(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) ([]ledger.DueAllocation, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var allocationModels []models.DueAllocationModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id IN ?", tenantID, ids).
		Find(&allocationModels).Error; err != nil {
		return nil, err
	}
	return toDomainAllocations(allocationModels), nil
}

// FindForUnit returns all allocations touching a unit
func (r *GormDueAllocationRepository) FindForUnit(ctx context.Context, tenantID, unitID uuid.UUID) ([]ledger.DueAllocation, error) {
	var allocationModels []models.DueAllocationModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND unit_id = ?", tenantID, unitID).
		Order("created_at ASC").
		Find(&allocationModels).Error; err != nil {
		return nil, err
	}
	return toDomainAllocations(allocationModels), nil
}

// SumByDue returns the signed allocation total for a due. Reversal rows carry
// negative amounts, so the sum is the due's net allocated amount.
func (r *GormDueAllocationRepository) SumByDue(ctx context.Context, tenantID, dueEntryID uuid.UUID) (int64, error) {
	var result struct {
		Total int64
	}
	if err := r.db.WithContext(ctx).
		Model(&models.DueAllocationModel{}).
		Select("COALESCE(SUM(amount_minor), 0) AS total").
		Where("tenant_id = ? AND due_entry_id = ?", tenantID, dueEntryID).
		Scan(&result).Error; err != nil {
		return 0, err
	}
	return result.Total, nil
}

func toDomainAllocations(allocationModels []models.DueAllocationModel) []ledger.DueAllocation {
	allocations := make([]ledger.DueAllocation, len(allocationModels))
	for i, model := range allocationModels {
		allocations[i] = *model.ToDomain()
	}
	return allocations
}

// Ensure GormDueAllocationRepository implements DueAllocationRepository
var _ ledger.DueAllocationRepository = (*GormDueAllocationRepository)(nil)
