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

// GormLedgerEntryRepository implements LedgerEntryRepository using GORM
type GormLedgerEntryRepository struct {
	db *gorm.DB
}

// NewGormLedgerEntryRepository creates a new GormLedgerEntryRepository
func NewGormLedgerEntryRepository(db *gorm.DB) *GormLedgerEntryRepository {
	return &GormLedgerEntryRepository{db: db}
}

// FindByIDForTenant finds an entry by ID scoped to a tenant. Returns
// (nil, nil) when no entry matches.
func (r *GormLedgerEntryRepository) FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*ledger.LedgerEntry, error) {
	var model models.LedgerEntryModel
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

// FindByEntryNumber finds an entry by its deterministic number for a tenant.
// Returns (nil, nil) when no entry matches; the idempotent create paths
// treat that as "first delivery".
func (r *GormLedgerEntryRepository) FindByEntryNumber(ctx context.Context, tenantID uuid.UUID, entryNumber string) (*ledger.LedgerEntry, error) {
	var model models.LedgerEntryModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND entry_number = ?", tenantID, entryNumber).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindOpenDuesForUnit returns posted open dues for a unit in FIFO order:
// billing period first, then entry ID as the tiebreaker for same-period dues
func (r *GormLedgerEntryRepository) FindOpenDuesForUnit(ctx context.Context, tenantID, unitID uuid.UUID) ([]ledger.LedgerEntry, error) {
	var entryModels []models.LedgerEntryModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND unit_id = ? AND type = ? AND status = ? AND due_status = ? AND due_outstanding_minor > 0",
			tenantID, unitID, ledger.EntryTypeDebit, ledger.EntryStatusPosted, ledger.DueStatusOpen).
		Order("period ASC, id ASC").
		Find(&entryModels).Error; err != nil {
		return nil, err
	}
	return toDomainEntries(entryModels), nil
}

// FindFundingCredits returns posted, manually collected credit entries with
// an unapplied balance for a unit, oldest first
func (r *GormLedgerEntryRepository) FindFundingCredits(ctx context.Context, tenantID, unitID uuid.UUID) ([]ledger.LedgerEntry, error) {
	var entryModels []models.LedgerEntryModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND unit_id = ? AND type = ? AND status = ? AND source IN ? AND unapplied_minor > 0",
			tenantID, unitID, ledger.EntryTypeCredit, ledger.EntryStatusPosted,
			[]ledger.EntrySource{ledger.SourceCash, ledger.SourceBank, ledger.SourceStripe}).
		Order("created_at ASC, id ASC").
		Find(&entryModels).Error; err != nil {
		return nil, err
	}
	return toDomainEntries(entryModels), nil
}

// FindForUnit returns entries for a unit with pagination
func (r *GormLedgerEntryRepository) FindForUnit(ctx context.Context, tenantID, unitID uuid.UUID, filter shared.Filter) ([]ledger.LedgerEntry, error) {
	var entryModels []models.LedgerEntryModel
	query := r.db.WithContext(ctx).Model(&models.LedgerEntryModel{}).
		Where("tenant_id = ? AND unit_id = ?", tenantID, unitID)
	query = applyEntryFilter(query, filter)

	if err := query.Find(&entryModels).Error; err != nil {
		return nil, err
	}
	return toDomainEntries(entryModels), nil
}

// FindPostedForUnit returns all posted entries for a unit, optionally limited
// to those created after since
func (r *GormLedgerEntryRepository) FindPostedForUnit(ctx context.Context, tenantID, unitID uuid.UUID, since *time.Time) ([]ledger.LedgerEntry, error) {
	var entryModels []models.LedgerEntryModel
	query := r.db.WithContext(ctx).
		Where("tenant_id = ? AND unit_id = ? AND status = ?", tenantID, unitID, ledger.EntryStatusPosted)
	if since != nil {
		query = query.Where("created_at > ?", *since)
	}
	if err := query.Order("created_at ASC, id ASC").Find(&entryModels).Error; err != nil {
		return nil, err
	}
	return toDomainEntries(entryModels), nil
}

// Save creates or updates an entry
func (r *GormLedgerEntryRepository) Save(ctx context.Context, entry *ledger.LedgerEntry) error {
	model := models.LedgerEntryModelFromDomain(entry)
	if err := r.db.WithContext(ctx).Save(model).Error; err != nil {
		if isUniqueViolation(err) {
			return shared.ErrAlreadyExists
		}
		return err
	}
	return nil
}

// StampBalanceApplied sets the balance-applied stamp if and only if it is not
// already set. A false return means another delivery of the same event got
// there first and the caller must skip the cache delta.
func (r *GormLedgerEntryRepository) StampBalanceApplied(ctx context.Context, id uuid.UUID, at time.Time, version int64) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.LedgerEntryModel{}).
		Where("id = ? AND balance_applied_at IS NULL", id).
		Updates(map[string]interface{}{
			"balance_applied_at":      at,
			"balance_applied_version": version,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// StampBalanceReverted sets the balance-reverted stamp if and only if it is
// not already set
func (r *GormLedgerEntryRepository) StampBalanceReverted(ctx context.Context, id uuid.UUID, at time.Time, version int64) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.LedgerEntryModel{}).
		Where("id = ? AND balance_reverted_at IS NULL", id).
		Updates(map[string]interface{}{
			"balance_reverted_at":      at,
			"balance_reverted_version": version,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// CanonicalBalance recomputes the source-of-truth balance for a unit from
// posted entries, excluding balance-neutral credit
func (r *GormLedgerEntryRepository) CanonicalBalance(ctx context.Context, tenantID, unitID uuid.UUID) (ledger.CanonicalBalance, error) {
	var result struct {
		DebitMinor  int64
		CreditMinor int64
		EntryCount  int64
	}
	err := r.db.WithContext(ctx).
		Model(&models.LedgerEntryModel{}).
		Select(
			"COALESCE(SUM(CASE WHEN type = ? THEN amount_minor ELSE 0 END), 0) AS debit_minor, "+
				"COALESCE(SUM(CASE WHEN type = ? THEN amount_minor ELSE 0 END), 0) AS credit_minor, "+
				"COUNT(*) AS entry_count",
			ledger.EntryTypeDebit, ledger.EntryTypeCredit).
		Where("tenant_id = ? AND unit_id = ? AND status = ? AND affects_balance = ?",
			tenantID, unitID, ledger.EntryStatusPosted, true).
		Scan(&result).Error
	if err != nil {
		return ledger.CanonicalBalance{}, err
	}
	return ledger.CanonicalBalance{
		DebitMinor:  result.DebitMinor,
		CreditMinor: result.CreditMinor,
		EntryCount:  result.EntryCount,
	}, nil
}

// TotalsBySource aggregates posted amounts grouped by source and type for
// the financial report; unitID nil means the whole tenant
func (r *GormLedgerEntryRepository) TotalsBySource(ctx context.Context, tenantID uuid.UUID, unitID *uuid.UUID) ([]ledger.SourceTotal, error) {
	var rows []struct {
		Source      ledger.EntrySource
		Type        ledger.EntryType
		AmountMinor int64
		EntryCount  int64
	}
	query := r.db.WithContext(ctx).
		Model(&models.LedgerEntryModel{}).
		Select("source, type, COALESCE(SUM(amount_minor), 0) AS amount_minor, COUNT(*) AS entry_count").
		Where("tenant_id = ? AND status = ?", tenantID, ledger.EntryStatusPosted)
	if unitID != nil {
		query = query.Where("unit_id = ?", *unitID)
	}
	if err := query.Group("source, type").Order("source ASC, type ASC").Scan(&rows).Error; err != nil {
		return nil, err
	}
	totals := make([]ledger.SourceTotal, len(rows))
	for i, row := range rows {
		totals[i] = ledger.SourceTotal{
			Source:      row.Source,
			Type:        row.Type,
			AmountMinor: row.AmountMinor,
			EntryCount:  row.EntryCount,
		}
	}
	return totals, nil
}

func toDomainEntries(entryModels []models.LedgerEntryModel) []ledger.LedgerEntry {
	entries := make([]ledger.LedgerEntry, len(entryModels))
	for i, model := range entryModels {
		entries[i] = *model.ToDomain()
	}
	return entries
}

// applyEntryFilter applies pagination and ordering to an entry query
func applyEntryFilter(query *gorm.DB, filter shared.Filter) *gorm.DB {
	if status, ok := filter.Filters["status"]; ok {
		query = query.Where("status = ?", status)
	}
	if entryType, ok := filter.Filters["type"]; ok {
		query = query.Where("type = ?", entryType)
	}
	if source, ok := filter.Filters["source"]; ok {
		query = query.Where("source = ?", source)
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

	return query
}

// Ensure GormLedgerEntryRepository implements LedgerEntryRepository
var _ ledger.LedgerEntryRepository = (*GormLedgerEntryRepository)(nil)
