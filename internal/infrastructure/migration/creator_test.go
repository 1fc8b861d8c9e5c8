package migration

import (
	"os"
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
		{"add credit notes table", "add_credit_notes_table"},
		{"Add-Credit-Notes", "add_credit_notes"},
		{"ADD_VOUCHERS", "add_vouchers"},
		{"add__ledger__entries", "add_ledger_entries"},
		{"Invoice Index 2", "invoice_index_2"},
		{"   spaces   ", "spaces"},
		{"special!@#$chars", "specialchars"},
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

	mf, err := CreateMigration(dir, "Add Voucher Table", "voucher storage for credit notes")
	require.NoError(t, err)

	assert.Len(t, mf.Version, 14)
	assert.Contains(t, mf.UpPath, "add_voucher_table.up.sql")
	assert.Contains(t, mf.DownPath, "add_voucher_table.down.sql")

	upContent, err := os.ReadFile(mf.UpPath)
	require.NoError(t, err)
	assert.Contains(t, string(upContent), "Add Voucher Table")
	assert.Contains(t, string(upContent), "voucher storage for credit notes")

	downContent, err := os.ReadFile(mf.DownPath)
	require.NoError(t, err)
	assert.Contains(t, string(downContent), "Rollback")
}

func TestCreateMigration_CreatesDirectory(t *testing.T) {
	dir := t.TempDir() + "/nested/migrations"

	_, err := CreateMigration(dir, "init", "initial schema")
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestListMigrations(t *testing.T) {
	dir := t.TempDir()

	first, err := CreateMigration(dir, "create invoices", "invoices")
	require.NoError(t, err)
	// Distinct names keep the base names unique within one second
	second, err := CreateMigration(dir, "create receipts", "receipts")
	require.NoError(t, err)

	migrations, err := ListMigrations(dir)
	require.NoError(t, err)

	require.Len(t, migrations, 2)
	for _, m := range migrations {
		assert.False(t, strings.HasSuffix(m, ".sql"))
	}
	assert.Contains(t, migrations, first.Version+"_create_invoices")
	assert.Contains(t, migrations, second.Version+"_create_receipts")
}

func TestListMigrations_MissingDirectory(t *testing.T) {
	migrations, err := ListMigrations("/definitely/not/here")

	require.NoError(t, err)
	assert.Empty(t, migrations)
}

func TestListMigrations_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(dir+"/README.md", []byte("notes"), 0644))
	require.NoError(t, os.WriteFile(dir+"/001_x.down.sql", []byte("--"), 0644))

	migrations, err := ListMigrations(dir)
	require.NoError(t, err)
	assert.Empty(t, migrations)
}
