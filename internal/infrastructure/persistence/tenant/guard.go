package tenant

import (
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/strata/backend/internal/infrastructure/logger"
)

// Guard is a set of GORM callbacks that append a tenant condition to
// queries, updates, and deletes that reach the database without one.
// Models whose schema has no tenant column (outbox rows, managements)
// are left alone, as are queries issued outside a tenant context.
type Guard struct {
	column   string
	required bool
}

// NewGuard creates a guard for the given tenant column. When required is
// true, statements on tenant-scoped models issued without a tenant in
// context fail with ErrTenantIDRequired instead of running unfiltered.
func NewGuard(column string, required bool) *Guard {
	if column == "" {
		column = DefaultColumn
	}
	return &Guard{column: column, required: required}
}

// Register installs the guard callbacks on the DB handle. Create is not
// guarded: the tenant ID is set explicitly by the model mappers.
func (g *Guard) Register(db *gorm.DB) {
	_ = db.Callback().Query().Before("gorm:query").Register("tenant:guard_query", g.apply)
	_ = db.Callback().Update().Before("gorm:update").Register("tenant:guard_update", g.apply)
	_ = db.Callback().Delete().Before("gorm:delete").Register("tenant:guard_delete", g.apply)
	_ = db.Callback().Row().Before("gorm:row").Register("tenant:guard_row", g.apply)
}

// Remove uninstalls the guard callbacks. Intended for tests.
func (g *Guard) Remove(db *gorm.DB) {
	_ = db.Callback().Query().Remove("tenant:guard_query")
	_ = db.Callback().Update().Remove("tenant:guard_update")
	_ = db.Callback().Delete().Remove("tenant:guard_delete")
	_ = db.Callback().Row().Remove("tenant:guard_row")
}

func (g *Guard) apply(db *gorm.DB) {
	if db.Statement.Context == nil || db.Statement.Unscoped {
		return
	}
	if !g.modelHasTenantColumn(db) {
		return
	}
	if g.hasTenantCondition(db) {
		return
	}

	tenantID := logger.GetTenantID(db.Statement.Context)
	if tenantID == "" {
		if g.required {
			_ = db.AddError(ErrTenantIDRequired)
		}
		return
	}
	if _, err := uuid.Parse(tenantID); err != nil {
		_ = db.AddError(ErrInvalidTenantID)
		return
	}

	db.Statement.AddClause(clause.Where{
		Exprs: []clause.Expression{
			clause.Eq{
				Column: clause.Column{Table: clause.CurrentTable, Name: g.column},
				Value:  tenantID,
			},
		},
	})
}

// modelHasTenantColumn reports whether the statement's model carries the
// tenant column. Statements without a parsed schema (raw SQL) are not
// guarded.
func (g *Guard) modelHasTenantColumn(db *gorm.DB) bool {
	if db.Statement.Schema == nil {
		return false
	}
	return db.Statement.Schema.LookUpField(g.column) != nil
}

// hasTenantCondition reports whether the statement already filters on the
// tenant column, either through clauses or pre-built SQL.
func (g *Guard) hasTenantCondition(db *gorm.DB) bool {
	if whereClause, ok := db.Statement.Clauses["WHERE"]; ok {
		if where, ok := whereClause.Expression.(clause.Where); ok {
			for _, expr := range where.Exprs {
				if g.exprMentionsTenant(expr) {
					return true
				}
			}
		}
	}

	if sql := db.Statement.SQL.String(); sql != "" && strings.Contains(sql, g.column) {
		return true
	}
	return false
}

func (g *Guard) exprMentionsTenant(expr clause.Expression) bool {
	switch e := expr.(type) {
	case clause.Eq:
		if col, ok := e.Column.(clause.Column); ok {
			return col.Name == g.column
		}
	case clause.IN:
		if col, ok := e.Column.(clause.Column); ok {
			return col.Name == g.column
		}
	case clause.Expr:
		return strings.Contains(e.SQL, g.column)
	case clause.AndConditions:
		for _, cond := range e.Exprs {
			if g.exprMentionsTenant(cond) {
				return true
			}
		}
	case clause.OrConditions:
		for _, cond := range e.Exprs {
			if g.exprMentionsTenant(cond) {
				return true
			}
		}
	}
	return false
}

// RegisterGuard installs a guard with the default tenant column.
func RegisterGuard(db *gorm.DB, required bool) *Guard {
	g := NewGuard(DefaultColumn, required)
	g.Register(db)
	return g
}
