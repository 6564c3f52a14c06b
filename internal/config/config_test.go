package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	c, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", c.HTTPAddr)
	assert.Empty(t, c.PGURL)
	assert.Empty(t, c.KafkaBrokers)
	assert.True(t, c.Pricing.TaxRate.Equal(decimal.RequireFromString("0.05")))
	assert.Equal(t, int64(1000), c.Pricing.ShippingCents)
	assert.Equal(t, int64(10000), c.Pricing.FreeShippingOverCents)
	assert.Equal(t, "USD", c.Pricing.Currency)
	assert.Equal(t, "http://localhost:8080/webhooks/payments/sslcommerz", c.URLs.Notify)
	assert.Equal(t, 10*time.Second, c.GatewayTimeout)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("KAFKA_ADDR", "k1:9092, k2:9092,")
	t.Setenv("TAX_RATE", "0.15")
	t.Setenv("SHIPPING_COST", "60")
	t.Setenv("FREE_SHIPPING_THRESHOLD", "0")
	t.Setenv("CURRENCY", "bdt")
	t.Setenv("APP_URL", "https://shop.example/")
	t.Setenv("PATHAO_STORE_ID", "42")
	t.Setenv("GATEWAY_TIMEOUT", "3s")

	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, c.KafkaBrokers)
	assert.True(t, c.Pricing.TaxRate.Equal(decimal.RequireFromString("0.15")))
	assert.Equal(t, int64(6000), c.Pricing.ShippingCents)
	assert.Zero(t, c.Pricing.FreeShippingOverCents)
	assert.Equal(t, "BDT", c.Pricing.Currency)
	assert.Equal(t, "https://shop.example/checkout/success", c.URLs.Success)
	assert.Equal(t, int64(42), c.Pathao.StoreID)
	assert.Equal(t, 3*time.Second, c.GatewayTimeout)
}

func TestLoadRejectsBadValues(t *testing.T) {
	for k, v := range map[string]string{
		"TAX_RATE":           "-0.1",
		"SHIPPING_COST":      "ten",
		"HTTP_READ_TIMEOUT":  "soon",
		"WEBHOOK_RATE_BURST": "many",
	} {
		t.Run(k, func(t *testing.T) {
			t.Setenv(k, v)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
