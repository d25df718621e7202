package persistence

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateSortOrder(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"empty string falls back to DESC", "", "DESC"},
		{"uppercase ASC passes through", "ASC", "ASC"},
		{"lowercase asc is normalized", "asc", "ASC"},
		{"uppercase DESC passes through", "DESC", "DESC"},
		{"unknown value falls back to DESC", "sideways", "DESC"},
		{"injection attempt falls back to DESC", "ASC; DROP TABLE ledger_entries;--", "DESC"},
		{"whitespace only falls back to DESC", "   ", "DESC"},
		{"surrounding whitespace is trimmed", "  asc  ", "ASC"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ValidateSortOrder(tt.input))
		})
	}
}

func TestValidateSortField(t *testing.T) {
	allowed := map[string]bool{
		"id":           true,
		"created_at":   true,
		"updated_at":   true,
		"entry_number": true,
	}

	tests := []struct {
		name         string
		input        string
		defaultField string
		expected     string
	}{
		{"empty input returns the default", "", "created_at", "created_at"},
		{"whitelisted field passes through", "entry_number", "created_at", "entry_number"},
		{"id passes through", "id", "created_at", "id"},
		{"unknown field returns the default", "amount_major", "created_at", "created_at"},
		{"injection attempt returns the default", "id; DROP TABLE ledger_entries;--", "created_at", "created_at"},
		{"matching is case sensitive", "ENTRY_NUMBER", "created_at", "created_at"},
		{"whitespace only returns the default", "   ", "created_at", "created_at"},
		{"surrounding whitespace is trimmed", "  entry_number  ", "created_at", "entry_number"},
		{"embedded space returns the default", "entry_number units", "created_at", "created_at"},
		{"embedded quote returns the default", "entry_number'--", "created_at", "created_at"},
		{"empty default with a whitelisted field", "entry_number", "", "entry_number"},
		{"empty default with an unknown field", "amount_major", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ValidateSortField(tt.input, allowed, tt.defaultField))
		})
	}
}

// Every whitelist must at least cover the audit columns shared by all
// tables, otherwise list endpoints lose their default ordering.
func TestSortFieldsWhitelists(t *testing.T) {
	whitelists := map[string]map[string]bool{
		"LedgerEntrySortFields": LedgerEntrySortFields,
		"AlertSortFields":       AlertSortFields,
		"UnitSortFields":        UnitSortFields,
		"MembershipSortFields":  MembershipSortFields,
		"InviteSortFields":      InviteSortFields,
	}

	for name, whitelist := range whitelists {
		t.Run(name, func(t *testing.T) {
			for _, field := range []string{"id", "created_at", "updated_at"} {
				assert.True(t, whitelist[field], "%s should contain %q", name, field)
			}
			assert.Greater(t, len(whitelist), 3, "%s looks truncated", name)
		})
	}
}

func TestSQLInjectionPrevention(t *testing.T) {
	payloads := []string{
		"id; DROP TABLE ledger_entries;--",
		"id' OR '1'='1",
		"id\"; DROP TABLE units;--",
		"id UNION SELECT * FROM users",
		"id ORDER BY 1",
		"id, (SELECT password_hash FROM users)",
		"CASE WHEN 1=1 THEN id ELSE created_at END",
		"id/**/;DROP TABLE unit_balances",
		"id\n; DROP TABLE due_allocations",
		"id\t; DROP TABLE outbox_events",
		"' OR ''='",
		"1; EXEC xp_cmdshell('dir')",
	}

	for _, payload := range payloads {
		label := payload[:min(len(payload), 30)]

		t.Run("field: "+label, func(t *testing.T) {
			assert.Equal(t, "created_at", ValidateSortField(payload, LedgerEntrySortFields, "created_at"))
		})

		t.Run("order: "+label, func(t *testing.T) {
			assert.Equal(t, "DESC", ValidateSortOrder(payload))
		})
	}
}
