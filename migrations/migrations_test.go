package migrations

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEmbeddedSchemaCoversEveryTable(t *testing.T) {
	names, err := Names()
	require.NoError(t, err)
	require.Equal(t, []string{"0001_franchise_ops.sql"}, names)

	body, err := files.ReadFile(names[0])
	require.NoError(t, err)
	schema := string(body)
	for _, table := range []string{
		"inventory_items", "orders", "purchase_orders", "grns",
		"vendor_ledger_entries", "cod_transactions", "audit_logs", "idempotency_keys",
	} {
		require.Contains(t, schema, "CREATE TABLE IF NOT EXISTS "+table+" (")
	}
	require.True(t, strings.Contains(schema, "CHECK (current_stock >= 0)"))
}
