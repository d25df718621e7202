package persistence

import (
	"context"

	"gorm.io/gorm"

	"github.com/strata/backend/internal/domain/ledger"
	"github.com/strata/backend/internal/infrastructure/persistence/models"
)

// GormAuditLogRepository implements AuditLogRepository using GORM
type GormAuditLogRepository struct {
	db *gorm.DB
}

// NewGormAuditLogRepository creates a new GormAuditLogRepository
func NewGormAuditLogRepository(db *gorm.DB) *GormAuditLogRepository {
	return &GormAuditLogRepository{db: db}
}

// Save persists an audit record
func (r *GormAuditLogRepository) Save(ctx context.Context, entry *ledger.AuditLogEntry) error {
	model := models.AuditLogModelFromDomain(entry)
	return r.db.WithContext(ctx).Create(model).Error
}

// Ensure GormAuditLogRepository implements AuditLogRepository
var _ ledger.AuditLogRepository = (*GormAuditLogRepository)(nil)
