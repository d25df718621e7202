package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/strata/backend/internal/domain/ledger"
	"github.com/strata/backend/internal/domain/shared"
	"github.com/strata/backend/internal/infrastructure/persistence/models"
)

// GormUnitBalanceRepository implements UnitBalanceRepository using GORM
type GormUnitBalanceRepository struct {
	db *gorm.DB
}

// NewGormUnitBalanceRepository creates a new GormUnitBalanceRepository
func NewGormUnitBalanceRepository(db *gorm.DB) *GormUnitBalanceRepository {
	return &GormUnitBalanceRepository{db: db}
}

// FindForUnit returns the cached balance, or shared.ErrNotFound when the unit
// has never had an applied entry
func (r *GormUnitBalanceRepository) FindForUnit(ctx context.Context, tenantID, unitID uuid.UUID) (*ledger.UnitBalance, error) {
	var model models.UnitBalanceModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND unit_id = ?", tenantID, unitID).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// ApplyDelta atomically increments the cached totals and the applied-count
// watermark, creating the record lazily on first use. The upsert keeps
// concurrent event deliveries for different entries from losing increments.
func (r *GormUnitBalanceRepository) ApplyDelta(ctx context.Context, tenantID, unitID uuid.UUID, delta ledger.BalanceDelta) error {
	balance := ledger.NewUnitBalance(tenantID, unitID)
	balance.PostedDebitMinor = delta.DebitMinor
	balance.PostedCreditMinor = delta.CreditMinor
	balance.BalanceMinor = delta.CreditMinor - delta.DebitMinor
	balance.AppliedCount = 1
	model := models.UnitBalanceModelFromDomain(balance)

	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "tenant_id"}, {Name: "unit_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"posted_debit_minor":  gorm.Expr("unit_balances.posted_debit_minor + ?", delta.DebitMinor),
				"posted_credit_minor": gorm.Expr("unit_balances.posted_credit_minor + ?", delta.CreditMinor),
				"balance_minor":       gorm.Expr("unit_balances.balance_minor + ?", delta.CreditMinor-delta.DebitMinor),
				"applied_count":       gorm.Expr("unit_balances.applied_count + 1"),
				"updated_at":          gorm.Expr("NOW()"),
			}),
		}).
		Create(model).Error
}

// SaveRebuilt commits a rebuilt balance only if the applied-count watermark
// still equals expectedAppliedCount. A false return means entries were
// applied while the rebuild was computing and its snapshot is stale.
func (r *GormUnitBalanceRepository) SaveRebuilt(ctx context.Context, balance *ledger.UnitBalance, expectedAppliedCount int64) (bool, error) {
	model := models.UnitBalanceModelFromDomain(balance)
	result := r.db.WithContext(ctx).
		Model(&models.UnitBalanceModel{}).
		Where("tenant_id = ? AND unit_id = ? AND applied_count = ?",
			balance.TenantID, balance.UnitID, expectedAppliedCount).
		Updates(map[string]interface{}{
			"balance_minor":            model.BalanceMinor,
			"posted_debit_minor":       model.PostedDebitMinor,
			"posted_credit_minor":      model.PostedCreditMinor,
			"applied_count":            model.AppliedCount,
			"rebuilt_at":               model.RebuiltAt,
			"rebuilt_by":               model.RebuiltBy,
			"rebuilt_from_entry_count": model.RebuiltFromEntryCount,
			"version":                  gorm.Expr("version + 1"),
		})
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected > 0 {
		return true, nil
	}

	// A unit that never had a cache row rebuilds from zero.
	if expectedAppliedCount == 0 {
		if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
			if isUniqueViolation(err) {
				return false, nil
			}
			return false, err
		}
		return true, nil
	}
	return false, nil
}

// FindRecentlyUpdated returns the most recently mutated cached balances for
// a tenant, bounded by limit
func (r *GormUnitBalanceRepository) FindRecentlyUpdated(ctx context.Context, tenantID uuid.UUID, limit int) ([]ledger.UnitBalance, error) {
	var balanceModels []models.UnitBalanceModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("updated_at DESC").
		Limit(limit).
		Find(&balanceModels).Error; err != nil {
		return nil, err
	}
	balances := make([]ledger.UnitBalance, len(balanceModels))
	for i, model := range balanceModels {
		balances[i] = *model.ToDomain()
	}
	return balances, nil
}

// Ensure GormUnitBalanceRepository implements UnitBalanceRepository
var _ ledger.UnitBalanceRepository = (*GormUnitBalanceRepository)(nil)
