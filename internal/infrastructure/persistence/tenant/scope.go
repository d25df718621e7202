// Package tenant provides multi-tenant scoping for GORM.
//
// Repositories filter by tenant explicitly; this package supplies the
// scope helpers they build on and a query guard that backstops them. The
// guard reads the tenant from the request context and appends a
// tenant_id condition to any query that reaches the database without
// one, so a missed filter degrades to an empty result instead of a
// cross-tenant leak.
package tenant

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DefaultColumn is the tenant discriminator column used across the schema.
const DefaultColumn = "tenant_id"

// ErrTenantIDRequired is returned when a query requires a tenant but none
// was present in the context.
var ErrTenantIDRequired = errors.New("tenant_id is required but not found in context")

// ErrInvalidTenantID is returned when a context-supplied tenant ID is not
// a UUID.
var ErrInvalidTenantID = errors.New("invalid tenant_id format")

// Scope returns a GORM scope restricting the query to one tenant.
func Scope(tenantID uuid.UUID) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where(DefaultColumn+" = ?", tenantID)
	}
}

// ScopeString is Scope for callers holding the tenant ID as a string.
// The value is validated before it reaches the query; a malformed ID
// poisons the DB handle with ErrInvalidTenantID.
func ScopeString(tenantID string) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if _, err := uuid.Parse(tenantID); err != nil {
			_ = db.AddError(ErrInvalidTenantID)
			return db
		}
		return db.Where(DefaultColumn+" = ?", tenantID)
	}
}
