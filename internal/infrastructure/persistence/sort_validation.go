package persistence

import (
	"strings"
)

// Caller-supplied sort columns are concatenated into ORDER BY clauses, so
// they pass through a whitelist first. Anything not on the list falls back
// to the repository's default ordering.

// ValidateSortOrder normalizes the sort direction. Anything other than a
// literal "asc" becomes DESC.
func ValidateSortOrder(orderDir string) string {
	if strings.EqualFold(strings.TrimSpace(orderDir), "asc") {
		return "ASC"
	}
	return "DESC"
}

// ValidateSortField returns sortField when it is on the whitelist, otherwise
// defaultField.
func ValidateSortField(sortField string, allowedFields map[string]bool, defaultField string) string {
	trimmed := strings.TrimSpace(sortField)
	if trimmed != "" && allowedFields[trimmed] {
		return trimmed
	}
	return defaultField
}

// MovementSortFields are the stock_movements columns exposed for sorting.
var MovementSortFields = map[string]bool{
	"id":            true,
	"product_id":    true,
	"batch_id":      true,
	"kind":          true,
	"quantity":      true,
	"unit_value":    true,
	"movement_date": true,
	"created_at":    true,
}

// TransactionSortFields are the transaction header columns exposed for sorting.
var TransactionSortFields = map[string]bool{
	"id":               true,
	"number":           true,
	"type":             true,
	"status":           true,
	"transaction_date": true,
	"total_amount":     true,
	"created_at":       true,
	"updated_at":       true,
}

// SerialUnitSortFields are the serial_units columns exposed for sorting.
var SerialUnitSortFields = map[string]bool{
	"id":            true,
	"serial_number": true,
	"status":        true,
	"sold_at":       true,
	"created_at":    true,
}

// ProductSortFields are the products columns exposed for sorting.
var ProductSortFields = map[string]bool{
	"id":         true,
	"sku":        true,
	"name":       true,
	"price":      true,
	"created_at": true,
}
