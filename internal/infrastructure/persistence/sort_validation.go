package persistence

import (
	"strings"
)

// ValidateSortOrder validates and normalizes the sort order to ASC or DESC.
// Returns "DESC" as the default if the input is invalid or empty.
func ValidateSortOrder(orderDir string) string {
	normalized := strings.ToUpper(strings.TrimSpace(orderDir))
	if normalized == "ASC" {
		return "ASC"
	}
	return "DESC"
}

// ValidateSortField validates the sort field against a whitelist of allowed fields.
// Returns the defaultField if the input is invalid, empty, or not in the whitelist.
func ValidateSortField(sortField string, allowedFields map[string]bool, defaultField string) string {
	trimmed := strings.TrimSpace(sortField)
	if trimmed == "" {
		return defaultField
	}
	if allowedFields[trimmed] {
		return trimmed
	}
	return defaultField
}

// Common allowed sort fields for entities with base fields
// These are the common fields present in most entities

// CommonSortFields contains fields common to most entities
var CommonSortFields = map[string]bool{
	"id":         true,
	"created_at": true,
	"updated_at": true,
}

// LedgerEntrySortFields contains allowed sort fields for ledger entries
var LedgerEntrySortFields = map[string]bool{
	"id":           true,
	"created_at":   true,
	"updated_at":   true,
	"entry_number": true,
	"type":         true,
	"amount_minor": true,
	"source":       true,
	"status":       true,
	"period":       true,
	"due_status":   true,
}

// AlertSortFields contains allowed sort fields for reconciliation alerts
var AlertSortFields = map[string]bool{
	"id":          true,
	"created_at":  true,
	"updated_at":  true,
	"type":        true,
	"status":      true,
	"resolved_at": true,
}

// UnitSortFields contains allowed sort fields for units
var UnitSortFields = map[string]bool{
	"id":                 true,
	"created_at":         true,
	"updated_at":         true,
	"code":               true,
	"floor":              true,
	"monthly_dues_minor": true,
}

// MembershipSortFields contains allowed sort fields for memberships
var MembershipSortFields = map[string]bool{
	"id":         true,
	"created_at": true,
	"updated_at": true,
	"role":       true,
}

// InviteSortFields contains allowed sort fields for invites
var InviteSortFields = map[string]bool{
	"id":         true,
	"created_at": true,
	"updated_at": true,
	"status":     true,
	"expires_at": true,
}
