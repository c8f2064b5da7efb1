// Command seed-db loads the catalog seed data (products, variants, coupons)
// into PostgreSQL. It is idempotent: rows are upserted by primary key, so it
// can run on every deploy.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-api/internal/repository"
)

type productJSON struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Category string          `json:"category"`
	Stock    int             `json:"stock"`
	Variants []variantJSON   `json:"variants,omitempty"`
}

type variantJSON struct {
	ID         string            `json:"id"`
	SKU        string            `json:"sku"`
	Price      *decimal.Decimal  `json:"price,omitempty"`
	Stock      int               `json:"stock"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

type couponJSON struct {
	Code           string          `json:"code"`
	DiscountType   string          `json:"discountType"`
	Value          decimal.Decimal `json:"value"`
	MinOrderAmount decimal.Decimal `json:"minOrderAmount"`
	MaxDiscount    decimal.Decimal `json:"maxDiscount"`
	MaxUses        int             `json:"maxUses"`
	MaxUsesPerUser int             `json:"maxUsesPerUser"`
	ValidDays      int             `json:"validDays"`
}

func main() {
	var (
		databaseURL string
		seedFile    string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&seedFile, "seed-file", "db/seed/catalog.json", "path to catalog seed JSON file")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, seedFile); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

type catalogJSON struct {
	Products []productJSON `json:"products"`
	Coupons  []couponJSON  `json:"coupons"`
}

func run(ctx context.Context, databaseURL, seedFile string) error {
	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	slog.Info("reading seed file", slog.String("path", seedFile))

	data, err := os.ReadFile(seedFile)
	if err != nil {
		return errors.Wrap(err, "read seed file")
	}

	var catalog catalogJSON
	if err := json.Unmarshal(data, &catalog); err != nil {
		return errors.Wrap(err, "parse seed JSON")
	}

	if err := seedProducts(ctx, pool, catalog.Products); err != nil {
		return errors.Wrap(err, "seed products")
	}

	if err := seedCoupons(ctx, pool, catalog.Coupons); err != nil {
		return errors.Wrap(err, "seed coupons")
	}

	return nil
}

const upsertProductSQL = `
INSERT INTO products (id, name, price, category, active, stock)
VALUES ($1, $2, $3, $4, TRUE, $5)
ON CONFLICT (id) DO UPDATE SET
	name = EXCLUDED.name,
	price = EXCLUDED.price,
	category = EXCLUDED.category,
	stock = EXCLUDED.stock`

const upsertVariantSQL = `
INSERT INTO product_variants (id, product_id, sku, price, stock, attributes)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO UPDATE SET
	sku = EXCLUDED.sku,
	price = EXCLUDED.price,
	stock = EXCLUDED.stock,
	attributes = EXCLUDED.attributes`

func seedProducts(ctx context.Context, pool *pgxpool.Pool, products []productJSON) error {
	slog.Info("upserting products", slog.Int("count", len(products)))

	for _, p := range products {
		if _, err := pool.Exec(ctx, upsertProductSQL, p.ID, p.Name, p.Price, p.Category, p.Stock); err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}

		for _, v := range p.Variants {
			attrs, err := json.Marshal(v.Attributes)
			if err != nil {
				return errors.Wrapf(err, "marshal attributes for variant %s", v.ID)
			}
			if _, err := pool.Exec(ctx, upsertVariantSQL, v.ID, p.ID, v.SKU, v.Price, v.Stock, attrs); err != nil {
				return errors.Wrapf(err, "upsert variant %s", v.ID)
			}
		}

		slog.Info("upserted product",
			slog.String("id", p.ID),
			slog.String("name", p.Name),
			slog.Int("variants", len(p.Variants)))
	}

	return nil
}

const upsertCouponSQL = `
INSERT INTO coupons (
	id, code, discount_type, value, min_order_amount, max_discount,
	max_uses, max_uses_per_user, uses, valid_from, valid_until, active
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 0, $9, $10, TRUE)
ON CONFLICT (code) DO UPDATE SET
	discount_type = EXCLUDED.discount_type,
	value = EXCLUDED.value,
	min_order_amount = EXCLUDED.min_order_amount,
	max_discount = EXCLUDED.max_discount,
	max_uses = EXCLUDED.max_uses,
	max_uses_per_user = EXCLUDED.max_uses_per_user,
	valid_until = EXCLUDED.valid_until`

func seedCoupons(ctx context.Context, pool *pgxpool.Pool, coupons []couponJSON) error {
	slog.Info("upserting coupons", slog.Int("count", len(coupons)))

	now := time.Now().UTC()
	for _, c := range coupons {
		validDays := c.ValidDays
		if validDays <= 0 {
			validDays = 365
		}
		if _, err := pool.Exec(ctx, upsertCouponSQL,
			"seed-"+c.Code, c.Code, c.DiscountType, c.Value,
			c.MinOrderAmount, c.MaxDiscount, c.MaxUses, c.MaxUsesPerUser,
			now, now.AddDate(0, 0, validDays),
		); err != nil {
			return errors.Wrapf(err, "upsert coupon %s", c.Code)
		}

		slog.Info("upserted coupon", slog.String("code", c.Code), slog.String("type", c.DiscountType))
	}

	return nil
}
