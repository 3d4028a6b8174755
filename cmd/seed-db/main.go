package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-pricing/db"
	"github.com/xenking/storefront-pricing/internal/domain/auth"
	"github.com/xenking/storefront-pricing/internal/domain/discount"
	"github.com/xenking/storefront-pricing/internal/domain/pricing"
	"github.com/xenking/storefront-pricing/internal/domain/product"
	"github.com/xenking/storefront-pricing/internal/domain/shipping"
	"github.com/xenking/storefront-pricing/internal/domain/tax"
	"github.com/xenking/storefront-pricing/internal/repository"
)

type seedFile struct {
	Products  []productJSON  `json:"products"`
	Discounts []discountJSON `json:"discounts"`
	Shipping  []shippingJSON `json:"shipping_rules"`
	Tax       []taxJSON      `json:"tax_rules"`
}

type productJSON struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	SKU        string          `json:"sku"`
	Price      decimal.Decimal `json:"price"`
	CategoryID string          `json:"category_id"`
	Stock      int             `json:"stock"`
	Image      struct {
		Thumbnail string `json:"thumbnail"`
		Mobile    string `json:"mobile"`
		Tablet    string `json:"tablet"`
		Desktop   string `json:"desktop"`
	} `json:"image"`
	Variants []struct {
		ID      string            `json:"id"`
		Name    string            `json:"name"`
		SKU     string            `json:"sku"`
		Price   *decimal.Decimal  `json:"price"`
		Stock   int               `json:"stock"`
		Options map[string]string `json:"options"`
	} `json:"variants"`
}

type discountJSON struct {
	Code                 string           `json:"code"`
	Description          string           `json:"description"`
	Type                 string           `json:"type"`
	Value                decimal.Decimal  `json:"value"`
	MinimumOrderAmount   *decimal.Decimal `json:"minimum_order_amount"`
	MaximumDiscount      *decimal.Decimal `json:"maximum_discount"`
	ApplicableProducts   []string         `json:"applicable_products"`
	ApplicableVariants   []string         `json:"applicable_variants"`
	ApplicableCategories []string         `json:"applicable_categories"`
	AutoApply            bool             `json:"auto_apply"`
	Priority             int              `json:"priority"`
	EndDate              *time.Time       `json:"end_date"`
	UsageLimit           int              `json:"usage_limit"`
	UsageLimitPerUser    int              `json:"usage_limit_per_user"`
}

type shippingJSON struct {
	ID                    string           `json:"id"`
	Name                  string           `json:"name"`
	Fee                   decimal.Decimal  `json:"fee"`
	FreeShippingThreshold *decimal.Decimal `json:"free_shipping_threshold"`
	ApplicableProducts    []string         `json:"applicable_products"`
	Priority              int              `json:"priority"`
}

type taxJSON struct {
	ID                 string          `json:"id"`
	Name               string          `json:"name"`
	Rate               decimal.Decimal `json:"rate"`
	Type               string          `json:"type"`
	Inclusive          bool            `json:"inclusive"`
	ApplicableProducts []string        `json:"applicable_products"`
	Priority           int             `json:"priority"`
}

func main() {
	var (
		databaseURL  string
		seedPath     string
		apiKey       string
		apiKeyPepper string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&seedPath, "seed-file", "", "path to a seed JSON file, optionally gzip-compressed (.gz); the embedded sample catalog when empty")
	flag.StringVar(&apiKey, "api-key", "", "API key to seed (or STORE_SEED_API_KEY env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or STORE_API_KEY_PEPPER env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if apiKey == "" {
		apiKey = os.Getenv("STORE_SEED_API_KEY")
	}
	if apiKey == "" {
		slog.Error("API key is required: set --api-key or STORE_SEED_API_KEY")
		os.Exit(1)
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("STORE_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, seedPath, apiKey, apiKeyPepper); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, seedPath, apiKey, pepper string) error {
	seed, err := readSeed(seedPath)
	if err != nil {
		return errors.Wrap(err, "read seed file")
	}

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

	if err := seedProducts(ctx, repository.NewProductRepository(pool), seed.Products); err != nil {
		return errors.Wrap(err, "seed products")
	}
	if err := seedDiscounts(ctx, discount.NewService(repository.NewDiscountRepository(pool), nil), seed.Discounts); err != nil {
		return errors.Wrap(err, "seed discounts")
	}
	if err := seedRules(ctx, repository.NewShippingRepository(pool), repository.NewTaxRepository(pool), seed); err != nil {
		return errors.Wrap(err, "seed rules")
	}
	if err := seedAPIKey(ctx, repository.NewAPIKeyRepository(pool), apiKey, pepper); err != nil {
		return errors.Wrap(err, "seed api key")
	}

	return nil
}

// readSeed decodes the seed file, decompressing it when the name ends in .gz.
// An empty path selects the embedded sample catalog.
func readSeed(path string) (*seedFile, error) {
	if path == "" {
		slog.Info("using embedded sample catalog")
		return decodeSeed(bytes.NewReader(db.Seed))
	}

	slog.Info("reading seed file", slog.String("path", path))

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open")
	}
	defer func() { _ = f.Close() }()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return nil, errors.Wrap(err, "open gzip")
		}
		defer func() { _ = gz.Close() }()
		r = gz
	}

	return decodeSeed(r)
}

func decodeSeed(r io.Reader) (*seedFile, error) {
	var seed seedFile
	if err := json.NewDecoder(r).Decode(&seed); err != nil {
		return nil, errors.Wrap(err, "parse seed JSON")
	}
	return &seed, nil
}

func seedProducts(ctx context.Context, repo *repository.ProductRepository, products []productJSON) error {
	slog.Info("upserting products", slog.Int("count", len(products)))

	for _, p := range products {
		prod := product.Product{
			ID:         p.ID,
			Name:       p.Name,
			SKU:        p.SKU,
			Price:      p.Price,
			CategoryID: p.CategoryID,
			Stock:      p.Stock,
			Image: product.Image{
				Thumbnail: p.Image.Thumbnail,
				Mobile:    p.Image.Mobile,
				Tablet:    p.Image.Tablet,
				Desktop:   p.Image.Desktop,
			},
		}
		for _, v := range p.Variants {
			prod.Variants = append(prod.Variants, product.Variant{
				ID: v.ID, Name: v.Name, SKU: v.SKU, Price: v.Price, Stock: v.Stock, Options: v.Options,
			})
		}
		if err := repo.Upsert(ctx, &prod); err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}

		slog.Info("upserted product", slog.String("id", p.ID), slog.Int("variants", len(prod.Variants)))
	}

	return nil
}

func seedDiscounts(ctx context.Context, svc *discount.Service, discounts []discountJSON) error {
	slog.Info("seeding discount codes", slog.Int("count", len(discounts)))

	for _, dj := range discounts {
		c := discount.Code{
			Rule: pricing.Rule{
				Code:                 dj.Code,
				Description:          dj.Description,
				Type:                 pricing.DiscountType(dj.Type),
				Value:                dj.Value,
				MinimumOrderAmount:   dj.MinimumOrderAmount,
				MaximumDiscount:      dj.MaximumDiscount,
				ApplicableProducts:   dj.ApplicableProducts,
				ApplicableVariants:   dj.ApplicableVariants,
				ApplicableCategories: dj.ApplicableCategories,
			},
			Active:            true,
			AutoApply:         dj.AutoApply,
			ShowBadge:         true,
			Priority:          dj.Priority,
			EndDate:           dj.EndDate,
			UsageLimit:        dj.UsageLimit,
			UsageLimitPerUser: dj.UsageLimitPerUser,
		}
		err := svc.Create(ctx, &c)
		switch {
		case errors.Is(err, discount.ErrDuplicateCode):
			slog.Info("discount code exists, skipping", slog.String("code", c.Code))
			continue
		case err != nil:
			return errors.Wrapf(err, "create discount %s", dj.Code)
		}

		slog.Info("created discount code", slog.String("code", c.Code), slog.Bool("auto_apply", c.AutoApply))
	}

	return nil
}

func seedRules(ctx context.Context, shippingRepo *repository.ShippingRepository, taxRepo *repository.TaxRepository, seed *seedFile) error {
	for _, s := range seed.Shipping {
		rule := shipping.Rule{
			ID:                    s.ID,
			Name:                  s.Name,
			Fee:                   s.Fee,
			FreeShippingThreshold: s.FreeShippingThreshold,
			Active:                true,
			ApplicableProducts:    s.ApplicableProducts,
			Priority:              s.Priority,
		}
		if err := shippingRepo.Upsert(ctx, &rule); err != nil {
			return errors.Wrapf(err, "upsert shipping rule %s", s.ID)
		}
		slog.Info("upserted shipping rule", slog.String("name", s.Name))
	}

	for _, t := range seed.Tax {
		rule := tax.Rule{
			ID:                 t.ID,
			Name:               t.Name,
			Rate:               t.Rate,
			Type:               tax.Type(t.Type),
			Inclusive:          t.Inclusive,
			Active:             true,
			ApplicableProducts: t.ApplicableProducts,
			Priority:           t.Priority,
		}
		if err := taxRepo.Upsert(ctx, &rule); err != nil {
			return errors.Wrapf(err, "upsert tax rule %s", t.ID)
		}
		slog.Info("upserted tax rule", slog.String("name", t.Name))
	}

	return nil
}

func seedAPIKey(ctx context.Context, repo *repository.APIKeyRepository, apiKey, pepper string) error {
	slog.Info("seeding default API key")

	info := auth.APIKeyInfo{
		ID:      uuid.NewString(),
		KeyHash: auth.HashKey([]byte(pepper), apiKey),
		Name:    "Default key",
		Scopes:  []string{"*"},
	}
	if err := repo.Create(ctx, &info); err != nil {
		return errors.Wrap(err, "upsert default API key")
	}

	slog.Info("upserted API key", slog.String("name", info.Name))

	return nil
}
