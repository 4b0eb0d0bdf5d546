package migration

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"create stock movements", "create_stock_movements"},
		{"Create-Serial-Units", "create_serial_units"},
		{"ADD_BATCH_INDEX", "add_batch_index"},
		{"add__soh__cache", "add_soh_cache"},
		{"Add Movement Kind 2", "add_movement_kind_2"},
		{"   spaces   ", "spaces"},
		{"drop!@#$constraint", "dropconstraint"},
		{"trailing_", "trailing"},
		{"_leading", "leading"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, sanitizeName(tt.input))
		})
	}
}

func TestCreateMigration(t *testing.T) {
	dir := t.TempDir()

	mf, err := CreateMigration(dir, "create stock movements", "Append-only ledger table")
	require.NoError(t, err)

	// Version is a 14-digit timestamp so pairs sort in creation order.
	assert.Len(t, mf.Version, 14)
	assert.Equal(t,
		strings.TrimSuffix(filepath.Base(mf.UpPath), ".up.sql"),
		strings.TrimSuffix(filepath.Base(mf.DownPath), ".down.sql"))

	upContent, err := os.ReadFile(mf.UpPath)
	require.NoError(t, err)
	assert.Contains(t, string(upContent), "create stock movements")
	assert.Contains(t, string(upContent), "Append-only ledger table")
	assert.Contains(t, string(upContent), "Write your UP migration SQL here")

	downContent, err := os.ReadFile(mf.DownPath)
	require.NoError(t, err)
	assert.Contains(t, string(downContent), "Rollback")
	assert.Contains(t, string(downContent), "Write your DOWN migration SQL here")
}

func TestCreateMigration_CreatesDirectory(t *testing.T) {
	nested := filepath.Join(t.TempDir(), "db", "migrations")

	_, err := CreateMigration(nested, "create batches", "")
	require.NoError(t, err)

	info, err := os.Stat(nested)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestListMigrations(t *testing.T) {
	t.Run("pairs report once, in version order", func(t *testing.T) {
		dir := t.TempDir()
		for _, f := range []string{
			"20260101000001_create_stock_movements.up.sql",
			"20260101000001_create_stock_movements.down.sql",
			"20260101000002_create_serial_units.up.sql",
			"20260101000002_create_serial_units.down.sql",
		} {
			require.NoError(t, os.WriteFile(filepath.Join(dir, f), []byte("-- sql"), 0644))
		}

		migrations, err := ListMigrations(dir)
		require.NoError(t, err)
		assert.Equal(t, []string{
			"20260101000001_create_stock_movements",
			"20260101000002_create_serial_units",
		}, migrations)
	})

	t.Run("ignores non-migration entries", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "20260101000001_init.up.sql"), []byte("-- sql"), 0644))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("docs"), 0644))
		require.NoError(t, os.Mkdir(filepath.Join(dir, "archive.up.sql"), 0755))

		migrations, err := ListMigrations(dir)
		require.NoError(t, err)
		assert.Equal(t, []string{"20260101000001_init"}, migrations)
	})

	t.Run("missing directory is empty, not an error", func(t *testing.T) {
		migrations, err := ListMigrations(filepath.Join(t.TempDir(), "nope"))
		require.NoError(t, err)
		assert.Empty(t, migrations)
	})
}
