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
		{"empty defaults to DESC", "", "DESC"},
		{"asc normalizes", "asc", "ASC"},
		{"ASC passes", "ASC", "ASC"},
		{"asc with whitespace passes", "  asc  ", "ASC"},
		{"desc passes", "desc", "DESC"},
		{"injection attempt defaults to DESC", "ASC; DROP TABLE stock_movements;--", "DESC"},
		{"garbage defaults to DESC", "sideways", "DESC"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ValidateSortOrder(tt.input))
		})
	}
}

func TestValidateSortField(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"whitelisted field passes", "movement_date", "movement_date"},
		{"whitelisted field with whitespace passes", "  quantity  ", "quantity"},
		{"empty falls back to default", "", "created_at"},
		{"unknown column falls back to default", "reversal_of", "created_at"},
		{"injection attempt falls back to default", "id; DELETE FROM stock_movements", "created_at"},
		{"column from another table falls back to default", "serial_number", "created_at"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ValidateSortField(tt.input, MovementSortFields, "created_at"))
		})
	}
}

func TestSortFieldWhitelists(t *testing.T) {
	// Every whitelist must allow the repository's fallback column.
	for name, fields := range map[string]map[string]bool{
		"movements":    MovementSortFields,
		"transactions": TransactionSortFields,
		"serial units": SerialUnitSortFields,
		"products":     ProductSortFields,
	} {
		assert.True(t, fields["created_at"], "%s whitelist is missing created_at", name)
	}

	assert.True(t, TransactionSortFields["transaction_date"])
	assert.True(t, MovementSortFields["movement_date"])
	assert.False(t, MovementSortFields["tenant_id"], "tenant scoping is not a sort key")
}
