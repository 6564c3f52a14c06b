// Package config reads the service configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mishimanto/ecommerce/internal/payment/gateway"
	"github.com/mishimanto/ecommerce/internal/pricing"
	"github.com/mishimanto/ecommerce/internal/shipment/courier"
	"github.com/mishimanto/ecommerce/pkg/money"
)

type Config struct {
	LogLevel     string
	HTTPAddr     string
	MetricsAddr  string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// PGURL empty runs on the in-memory store.
	PGURL        string
	RedisAddr    string
	KafkaBrokers []string
	EventsTopic  string
	CourierTopic string
	CourierGroup string
	OTLPEndpoint string

	JWTSecret string
	JWTIssuer string

	Pricing pricing.Config
	URLs    gateway.URLs

	GatewayTimeout time.Duration
	Stripe         gateway.StripeConfig
	SSLCommerz     gateway.SSLCommerzConfig

	Pathao              courier.PathaoConfig
	Steadfast           courier.SteadfastConfig
	RedX                courier.RedXConfig
	CourierWebhookToken string
	CourierStatusMap    string

	WebhookRPS   float64
	WebhookBurst int
	IdemTTL      time.Duration
}

// Load reads every setting, falling back to defaults suited to a local run.
func Load() (Config, error) {
	var (
		c   Config
		err error
	)
	c.LogLevel = env("LOG_LEVEL", "info")
	c.HTTPAddr = env("HTTP_ADDR", ":8080")
	c.MetricsAddr = env("METRICS_ADDR", ":9091")
	c.PGURL = env("PG_URL", "")
	c.RedisAddr = env("REDIS_ADDR", "")
	c.KafkaBrokers = list(env("KAFKA_ADDR", ""))
	c.EventsTopic = env("OUTBOX_TOPIC", "checkout.events")
	c.CourierTopic = env("COURIER_TOPIC", "courier.status")
	c.CourierGroup = env("COURIER_GROUP", "courier-consumer")
	c.OTLPEndpoint = env("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	c.JWTSecret = env("JWT_SECRET", "")
	c.JWTIssuer = env("JWT_ISSUER", "ecommerce")
	c.CourierWebhookToken = env("COURIER_WEBHOOK_TOKEN", "")
	c.CourierStatusMap = env("COURIER_STATUS_MAP", "")

	if c.ReadTimeout, err = duration("HTTP_READ_TIMEOUT", 5*time.Second); err != nil {
		return Config{}, err
	}
	if c.WriteTimeout, err = duration("HTTP_WRITE_TIMEOUT", 15*time.Second); err != nil {
		return Config{}, err
	}
	if c.GatewayTimeout, err = duration("GATEWAY_TIMEOUT", 10*time.Second); err != nil {
		return Config{}, err
	}
	if c.IdemTTL, err = duration("IDEMPOTENCY_TTL", 24*time.Hour); err != nil {
		return Config{}, err
	}
	if c.WebhookRPS, err = float("WEBHOOK_RATE_LIMIT", 20); err != nil {
		return Config{}, err
	}
	if c.WebhookBurst, err = integer("WEBHOOK_RATE_BURST", 40); err != nil {
		return Config{}, err
	}

	if c.Pricing, err = loadPricing(); err != nil {
		return Config{}, err
	}

	base := strings.TrimRight(env("APP_URL", "http://localhost:8080"), "/")
	c.URLs = gateway.URLs{
		Success: env("PAYMENT_SUCCESS_URL", base+"/checkout/success"),
		Fail:    env("PAYMENT_FAIL_URL", base+"/checkout/fail"),
		Cancel:  env("PAYMENT_CANCEL_URL", base+"/checkout/cancel"),
		Notify:  env("PAYMENT_NOTIFY_URL", base+"/webhooks/payments/sslcommerz"),
	}

	c.Stripe = gateway.StripeConfig{
		SecretKey:     env("STRIPE_SECRET_KEY", ""),
		WebhookSecret: env("STRIPE_WEBHOOK_SECRET", ""),
		BaseURL:       env("STRIPE_BASE_URL", ""),
	}
	c.SSLCommerz = gateway.SSLCommerzConfig{
		StoreID:       env("SSLCOMMERZ_STORE_ID", ""),
		StorePassword: env("SSLCOMMERZ_STORE_PASSWORD", ""),
		BaseURL:       env("SSLCOMMERZ_BASE_URL", ""),
	}

	storeID, err := integer("PATHAO_STORE_ID", 0)
	if err != nil {
		return Config{}, err
	}
	c.Pathao = courier.PathaoConfig{
		ClientID:     env("PATHAO_CLIENT_ID", ""),
		ClientSecret: env("PATHAO_CLIENT_SECRET", ""),
		StoreID:      int64(storeID),
		BaseURL:      env("PATHAO_BASE_URL", ""),
	}
	c.Steadfast = courier.SteadfastConfig{
		APIKey:    env("STEADFAST_API_KEY", ""),
		SecretKey: env("STEADFAST_SECRET_KEY", ""),
		BaseURL:   env("STEADFAST_BASE_URL", ""),
	}
	c.RedX = courier.RedXConfig{
		AccessToken: env("REDX_ACCESS_TOKEN", ""),
		BaseURL:     env("REDX_BASE_URL", ""),
	}
	return c, nil
}

func loadPricing() (pricing.Config, error) {
	p := pricing.DefaultConfig()
	p.Currency = strings.ToUpper(env("CURRENCY", p.Currency))
	if v := os.Getenv("TAX_RATE"); v != "" {
		rate, err := decimal.NewFromString(v)
		if err != nil || rate.IsNegative() {
			return pricing.Config{}, fmt.Errorf("TAX_RATE: invalid rate %q", v)
		}
		p.TaxRate = rate
	}
	var err error
	if p.ShippingCents, err = cents("SHIPPING_COST", p.ShippingCents); err != nil {
		return pricing.Config{}, err
	}
	if p.FreeShippingOverCents, err = cents("FREE_SHIPPING_THRESHOLD", p.FreeShippingOverCents); err != nil {
		return pricing.Config{}, err
	}
	return p, nil
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func list(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func duration(k string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", k, err)
	}
	return d, nil
}

func integer(k string, def int) (int, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", k, err)
	}
	return n, nil
}

func float(k string, def float64) (float64, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", k, err)
	}
	return f, nil
}

// cents parses a decimal amount such as "10.00".
func cents(k string, def int64) (int64, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	n, err := money.Parse(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", k, err)
	}
	return n, nil
}
