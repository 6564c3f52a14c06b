package main

import (
	"context"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	cartapp "github.com/mishimanto/ecommerce/internal/cart/application"
	carthttp "github.com/mishimanto/ecommerce/internal/cart/infrastructure/http"
	cartredis "github.com/mishimanto/ecommerce/internal/cart/infrastructure/redis"
	catalogapp "github.com/mishimanto/ecommerce/internal/catalog/application"
	"github.com/mishimanto/ecommerce/internal/config"
	couponapp "github.com/mishimanto/ecommerce/internal/coupon/application"
	invapp "github.com/mishimanto/ecommerce/internal/inventory/application"
	invhttp "github.com/mishimanto/ecommerce/internal/inventory/infrastructure/http"
	orderapp "github.com/mishimanto/ecommerce/internal/order/application"
	orderhttp "github.com/mishimanto/ecommerce/internal/order/infrastructure/http"
	payapp "github.com/mishimanto/ecommerce/internal/payment/application"
	"github.com/mishimanto/ecommerce/internal/payment/gateway"
	payhttp "github.com/mishimanto/ecommerce/internal/payment/infrastructure/http"
	"github.com/mishimanto/ecommerce/internal/pricing"
	settleapp "github.com/mishimanto/ecommerce/internal/settlement/application"
	settlehttp "github.com/mishimanto/ecommerce/internal/settlement/infrastructure/http"
	shipapp "github.com/mishimanto/ecommerce/internal/shipment/application"
	"github.com/mishimanto/ecommerce/internal/shipment/courier"
	shiphttp "github.com/mishimanto/ecommerce/internal/shipment/infrastructure/http"
	"github.com/mishimanto/ecommerce/pkg/auth"
	"github.com/mishimanto/ecommerce/pkg/httpclient"
	"github.com/mishimanto/ecommerce/pkg/idempotency"
	"github.com/mishimanto/ecommerce/pkg/logging"
	"github.com/mishimanto/ecommerce/pkg/metrics"
	"github.com/mishimanto/ecommerce/pkg/outbox"
	"github.com/mishimanto/ecommerce/pkg/ratelimit"
	"github.com/mishimanto/ecommerce/pkg/shutdown"
	"github.com/mishimanto/ecommerce/pkg/tracing"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New().Error("config invalid", "err", err)
		os.Exit(1)
	}
	log := logging.NewWithLevel(cfg.LogLevel)

	ctx, cancel := shutdown.WithSignals(context.Background())
	defer cancel()

	tp, err := tracing.Init(ctx, "checkout-service", cfg.OTLPEndpoint, log)
	if err != nil {
		log.Error("otel init failed", "err", err)
		os.Exit(1)
	}
	m := metrics.New("checkout-service")

	// Storage
	st := memoryStores(log)
	if cfg.PGURL != "" {
		if st, err = postgresStores(ctx, log, cfg.PGURL); err != nil {
			log.Error("postgres setup failed", "err", err)
			os.Exit(1)
		}
	}
	defer st.close()

	// Redis: cart cache and request idempotency
	var (
		cache cartapp.Cache
		idem  *idempotency.Store
	)
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer func() { _ = rdb.Close() }()
		cache = cartredis.NewCache(rdb)
		idem = idempotency.NewStore(rdb, cfg.IdemTTL)
	} else {
		log.Warn("REDIS_ADDR not set, cart cache and Idempotency-Key checks are off")
	}

	// Domain services
	engine := pricing.NewEngine(cfg.Pricing)
	catalog := catalogapp.NewService(log, st.catalog, 2*time.Second)
	coupons := couponapp.NewEvaluator(st.coupons, nil)
	carts := cartapp.NewService(log, st.carts, cache, catalog, coupons, engine)

	gateways := gateway.NewRegistry(
		gateway.NewStripe(cfg.Stripe, httpclient.New("stripe", cfg.GatewayTimeout)),
		gateway.NewSSLCommerz(cfg.SSLCommerz, httpclient.New("sslcommerz", cfg.GatewayTimeout)),
		gateway.NewCOD(),
	)
	log.Info("payment gateways registered", "methods", gateways.Methods())
	payments := payapp.NewService(log, st.payments, gateways)
	orders := orderapp.NewService(log, orderapp.Deps{
		Repo:      st.orders,
		Carts:     carts,
		Catalog:   catalog,
		Coupons:   coupons,
		Addresses: st.addresses,
		Payments:  payments,
		Pricing:   engine,
	})
	reconciler := settleapp.NewReconciler(log, gateways, payments, st.inbox)

	statuses, err := courier.LoadStatusMap(cfg.CourierStatusMap)
	if err != nil {
		log.Error("courier status map invalid", "err", err)
		os.Exit(1)
	}
	couriers := courier.NewRegistry(
		courier.NewPathao(cfg.Pathao, httpclient.New("pathao", cfg.GatewayTimeout)),
		courier.NewSteadfast(cfg.Steadfast, httpclient.New("steadfast", cfg.GatewayTimeout)),
		courier.NewRedX(cfg.RedX, httpclient.New("redx", cfg.GatewayTimeout)),
		courier.NewManual(),
	)
	tracker := shipapp.NewTracker(log, st.shipments, couriers, statuses, st.recipients)

	// HTTP
	secret := cfg.JWTSecret
	if secret == "" {
		secret = uuid.NewString()
		log.Warn("JWT_SECRET not set, using a random secret; issued tokens die with the process")
	}
	authn := auth.NewAuthenticator(secret, cfg.JWTIssuer)

	cartH := carthttp.NewHandler(log, carts)
	orderH := orderhttp.NewHandler(log, orders, cfg.URLs, m)
	payH := payhttp.NewHandler(log, payments, cfg.URLs, m)
	settleH := settlehttp.NewHandler(log, reconciler, m)
	shipH := shiphttp.NewHandler(log, tracker, cfg.CourierWebhookToken, m)
	invH := invhttp.NewHandler(log, invapp.NewService(st.ledger))
	limiter := ratelimit.New(cfg.WebhookRPS, cfg.WebhookBurst)

	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Handle("/metrics", m.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(authn.Optional)
		r.Mount("/cart", cartH.Routes())
		r.Mount("/orders", orderH.Routes(authn.Required, payH.Retry))
		r.Group(func(r chi.Router) {
			r.Use(authn.Required)
			if idem != nil {
				r.Use(idempotency.Middleware(log, idem, userScope))
			}
			r.Post("/checkout", orderH.Checkout)
		})
		r.Group(func(r chi.Router) {
			r.Use(authn.Required)
			r.Mount("/payments", payH.Routes())
		})
		r.Route("/admin", func(r chi.Router) {
			r.Use(authn.Required, auth.RequireRole(auth.RoleAdmin))
			r.Mount("/orders", orderH.AdminRoutes(shipH))
			r.Mount("/payments", payH.AdminRoutes())
			r.Mount("/shipments", shipH.AdminRoutes())
			r.Mount("/inventory", invH.Routes())
			r.Mount("/webhooks", settleH.AdminRoutes(st.receipts))
		})
	})
	r.Route("/webhooks", func(r chi.Router) {
		r.Use(limiter.Middleware)
		r.Mount("/payments", settleH.Routes())
		r.Mount("/couriers", shipH.WebhookRoutes())
	})

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      otelhttp.NewHandler(r, "checkout-service"),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	// Outbox relay
	stops := []func(context.Context) error{srv.Shutdown}
	if len(cfg.KafkaBrokers) > 0 {
		writer := outbox.NewKafkaWriter(cfg.KafkaBrokers)
		dispatch := outbox.NewDispatcher(log, writer, cfg.EventsTopic)
		relay := outbox.NewRelay(log, st.outbox, dispatch, relayID())
		go func() {
			if err := relay.Run(ctx); err != nil && ctx.Err() == nil {
				log.Error("relay stopped with error", "err", err)
			}
		}()
		stops = append(stops, func(context.Context) error { return writer.Close() })
	} else {
		log.Warn("KAFKA_ADDR not set, outbox events stay unpublished")
	}
	stops = append(stops, tp.Shutdown)

	go func() {
		log.Info("http listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server error", "err", err)
			cancel()
		}
	}()

	shutdown.Drain(ctx, log, 10*time.Second, stops...)
	log.Info("checkout-service shutdown complete")
}

func userScope(r *http.Request) string {
	p, _ := auth.FromContext(r.Context())
	return "user:" + strconv.FormatInt(p.UserID, 10)
}

func relayID() string {
	host, err := os.Hostname()
	if err != nil {
		host = "local"
	}
	return "checkout-relay-" + host
}
