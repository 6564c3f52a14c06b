package main

import (
	"context"
	"log/slog"

	cartapp "github.com/mishimanto/ecommerce/internal/cart/application"
	cartpg "github.com/mishimanto/ecommerce/internal/cart/infrastructure/postgres"
	catalogapp "github.com/mishimanto/ecommerce/internal/catalog/application"
	catalogpg "github.com/mishimanto/ecommerce/internal/catalog/infrastructure/postgres"
	couponapp "github.com/mishimanto/ecommerce/internal/coupon/application"
	couponpg "github.com/mishimanto/ecommerce/internal/coupon/infrastructure/postgres"
	invapp "github.com/mishimanto/ecommerce/internal/inventory/application"
	invpg "github.com/mishimanto/ecommerce/internal/inventory/infrastructure/postgres"
	orderapp "github.com/mishimanto/ecommerce/internal/order/application"
	orderpg "github.com/mishimanto/ecommerce/internal/order/infrastructure/postgres"
	payapp "github.com/mishimanto/ecommerce/internal/payment/application"
	paypg "github.com/mishimanto/ecommerce/internal/payment/infrastructure/postgres"
	settleapp "github.com/mishimanto/ecommerce/internal/settlement/application"
	settlehttp "github.com/mishimanto/ecommerce/internal/settlement/infrastructure/http"
	settlepg "github.com/mishimanto/ecommerce/internal/settlement/infrastructure/postgres"
	shipapp "github.com/mishimanto/ecommerce/internal/shipment/application"
	shippg "github.com/mishimanto/ecommerce/internal/shipment/infrastructure/postgres"
	"github.com/mishimanto/ecommerce/internal/storage/memory"
	"github.com/mishimanto/ecommerce/internal/storage/postgres"
	"github.com/mishimanto/ecommerce/pkg/outbox"
)

// stores holds one implementation of every repository port.
type stores struct {
	carts      cartapp.Repository
	catalog    catalogapp.Reader
	coupons    couponapp.Repository
	ledger     invapp.Ledger
	orders     orderapp.Repository
	addresses  orderapp.AddressBook
	payments   payapp.Repository
	shipments  shipapp.Repository
	recipients shipapp.Recipients
	inbox      settleapp.Inbox
	receipts   settlehttp.Receipts
	outbox     outbox.Store
	close      func()
}

func memoryStores(log *slog.Logger) *stores {
	log.Warn("PG_URL not set, using the in-memory store; data is lost on exit")
	m := memory.New()
	return &stores{
		carts:      m.Carts(),
		catalog:    m.Catalog(),
		coupons:    m.Coupons(),
		ledger:     m.Ledger(),
		orders:     m.Orders(),
		addresses:  m.Addresses(),
		payments:   m.Payments(),
		shipments:  m.Shipments(),
		recipients: m.Addresses(),
		inbox:      m.Inbox(),
		receipts:   m.Inbox(),
		outbox:     m.Outbox(),
		close:      func() {},
	}
}

// postgresStores migrates the schema and connects every repository.
func postgresStores(ctx context.Context, log *slog.Logger, url string) (*stores, error) {
	db, err := postgres.OpenSQL(url)
	if err != nil {
		return nil, err
	}
	if err := postgres.Migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	pool, err := postgres.Connect(ctx, url)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	inbox := settlepg.NewInbox(db)
	return &stores{
		carts:      cartpg.NewRepository(log, pool),
		catalog:    catalogpg.NewRepository(log, pool),
		coupons:    couponpg.NewRepository(log, pool),
		ledger:     invpg.NewLedger(pool),
		orders:     orderpg.NewRepository(log, pool),
		addresses:  orderpg.NewAddressBook(pool),
		payments:   paypg.NewRepository(log, pool),
		shipments:  shippg.NewRepository(log, pool),
		recipients: shippg.NewRecipients(pool),
		inbox:      inbox,
		receipts:   inbox,
		outbox:     outbox.NewPGStore(log, pool),
		close: func() {
			pool.Close()
			_ = db.Close()
		},
	}, nil
}
