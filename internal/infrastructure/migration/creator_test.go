package migration

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFiles(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("-- test"), 0644))
	}
}

func TestSanitizeName(t *testing.T) {
	for _, tt := range []struct {
		input    string
		expected string
	}{
		{"add units table", "add_units_table"},
		{"Add-Units-Table", "add_units_table"},
		{"ADD_UNITS_TABLE", "add_units_table"},
		{"add__units__table", "add_units_table"},
		{"Add Units 123", "add_units_123"},
		{"create-due-schedules", "create_due_schedules"},
		{"   spaces   ", "spaces"},
		{"special!@#$chars", "specialchars"},
		{"trailing_", "trailing"},
		{"_leading", "leading"},
		{"", ""},
	} {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, sanitizeName(tt.input))
		})
	}
}

func TestCreateMigration(t *testing.T) {
	dir := t.TempDir()

	mf, err := CreateMigration(dir, "add unit balances", "Create the per-unit balance cache table")
	require.NoError(t, err)
	require.NotNil(t, mf)

	t.Run("version is a 14 digit timestamp", func(t *testing.T) {
		assert.Len(t, mf.Version, 14)
	})

	t.Run("up and down pair share a base name", func(t *testing.T) {
		assert.True(t, strings.HasSuffix(mf.UpPath, ".up.sql"))
		assert.True(t, strings.HasSuffix(mf.DownPath, ".down.sql"))

		upBase := strings.TrimSuffix(filepath.Base(mf.UpPath), ".up.sql")
		downBase := strings.TrimSuffix(filepath.Base(mf.DownPath), ".down.sql")
		assert.Equal(t, upBase, downBase)
	})

	t.Run("files carry the scaffold comments", func(t *testing.T) {
		upContent, err := os.ReadFile(mf.UpPath)
		require.NoError(t, err)
		assert.Contains(t, string(upContent), "add unit balances")
		assert.Contains(t, string(upContent), "Create the per-unit balance cache table")
		assert.Contains(t, string(upContent), "Write your UP migration SQL here")

		downContent, err := os.ReadFile(mf.DownPath)
		require.NoError(t, err)
		assert.Contains(t, string(downContent), "Rollback")
		assert.Contains(t, string(downContent), "Write your DOWN migration SQL here")
	})
}

func TestCreateMigration_CreatesDirectory(t *testing.T) {
	nestedPath := filepath.Join(t.TempDir(), "nested", "migrations")

	mf, err := CreateMigration(nestedPath, "seed", "initial schema")
	require.NoError(t, err)
	assert.NotNil(t, mf)

	info, err := os.Stat(nestedPath)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestListMigrations(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir,
		"000001_init_schema.up.sql",
		"000001_init_schema.down.sql",
		"000002_create_units.up.sql",
		"000002_create_units.down.sql",
		"000003_create_ledger_entries.up.sql",
		"000003_create_ledger_entries.down.sql",
	)

	migrations, err := ListMigrations(dir)
	require.NoError(t, err)
	assert.Len(t, migrations, 3)

	for _, exp := range []string{
		"000001_init_schema",
		"000002_create_units",
		"000003_create_ledger_entries",
	} {
		assert.Contains(t, migrations, exp)
	}
}

func TestListMigrations_EmptyDirectory(t *testing.T) {
	migrations, err := ListMigrations(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, migrations)
}

func TestListMigrations_NonexistentDirectory(t *testing.T) {
	migrations, err := ListMigrations("/nonexistent/path/to/migrations")
	require.NoError(t, err)
	assert.Empty(t, migrations)
}

func TestListMigrations_IgnoresNonMigrationFiles(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir,
		"000001_init.up.sql",
		"000001_init.down.sql",
		"README.md",
		"config.yaml",
		".gitkeep",
	)

	migrations, err := ListMigrations(dir)
	require.NoError(t, err)
	assert.Len(t, migrations, 1)
	assert.Contains(t, migrations, "000001_init")
}

func TestListMigrations_IgnoresDirectories(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "000001_init.up.sql", "000001_init.down.sql")
	// A directory whose name looks like a migration must not count.
	require.NoError(t, os.Mkdir(filepath.Join(dir, "subdir.up.sql"), 0755))

	migrations, err := ListMigrations(dir)
	require.NoError(t, err)
	assert.Len(t, migrations, 1)
}
