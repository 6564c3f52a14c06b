package postgres

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationsArePaired(t *testing.T) {
	names, err := fs.Glob(migrations, "migrations/*.sql")
	require.NoError(t, err)
	require.NotEmpty(t, names)

	ups, downs := map[string]bool{}, map[string]bool{}
	for _, n := range names {
		switch {
		case strings.HasSuffix(n, ".up.sql"):
			ups[strings.TrimSuffix(n, ".up.sql")] = true
		case strings.HasSuffix(n, ".down.sql"):
			downs[strings.TrimSuffix(n, ".down.sql")] = true
		}
	}
	assert.Equal(t, ups, downs)
}

func TestSchemaCoversRepositories(t *testing.T) {
	b, err := migrations.ReadFile("migrations/0001_init.up.sql")
	require.NoError(t, err)
	schema := string(b)
	for _, table := range []string{
		"products", "product_variants", "addresses", "carts", "cart_items", "coupons", "coupon_usages",
		"orders", "order_items", "payments", "shipments", "webhook_receipts", "outbox",
	} {
		assert.Contains(t, schema, "CREATE TABLE "+table+" (", table)
	}
	assert.Contains(t, schema, "UNIQUE (courier, tracking_id)")
}
