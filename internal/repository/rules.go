package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront-pricing/internal/domain/shipping"
	"github.com/xenking/storefront-pricing/internal/domain/tax"
)

const (
	listShippingRulesSQL = `SELECT id, name, fee, free_shipping_threshold, active, applicable_products, priority
		FROM shipping_rules WHERE active ORDER BY priority DESC, id`

	upsertShippingRuleSQL = `INSERT INTO shipping_rules
		(id, name, fee, free_shipping_threshold, active, applicable_products, priority)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, fee = EXCLUDED.fee,
			free_shipping_threshold = EXCLUDED.free_shipping_threshold, active = EXCLUDED.active,
			applicable_products = EXCLUDED.applicable_products, priority = EXCLUDED.priority`

	listTaxRulesSQL = `SELECT id, name, rate, tax_type, inclusive, active, applicable_products, priority
		FROM tax_rules WHERE active ORDER BY priority DESC, id`

	upsertTaxRuleSQL = `INSERT INTO tax_rules
		(id, name, rate, tax_type, inclusive, active, applicable_products, priority)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, rate = EXCLUDED.rate,
			tax_type = EXCLUDED.tax_type, inclusive = EXCLUDED.inclusive, active = EXCLUDED.active,
			applicable_products = EXCLUDED.applicable_products, priority = EXCLUDED.priority`
)

var (
	_ shipping.Repository = (*ShippingRepository)(nil)
	_ tax.Repository      = (*TaxRepository)(nil)
)

// ShippingRepository implements shipping.Repository backed by PostgreSQL.
type ShippingRepository struct {
	pool *pgxpool.Pool
}

// NewShippingRepository returns a ShippingRepository that uses the given pool.
func NewShippingRepository(pool *pgxpool.Pool) *ShippingRepository {
	return &ShippingRepository{pool: pool}
}

// ListActive returns active shipping rules, highest priority first.
func (r *ShippingRepository) ListActive(ctx context.Context) ([]shipping.Rule, error) {
	rows, err := r.pool.Query(ctx, listShippingRulesSQL)
	if err != nil {
		return nil, fmt.Errorf("listing shipping rules: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (shipping.Rule, error) {
		var s shipping.Rule
		err := row.Scan(&s.ID, &s.Name, &s.Fee, &s.FreeShippingThreshold, &s.Active, &s.ApplicableProducts, &s.Priority)
		return s, err
	})
}

// Upsert inserts or replaces a shipping rule.
func (r *ShippingRepository) Upsert(ctx context.Context, s *shipping.Rule) error {
	_, err := r.pool.Exec(ctx, upsertShippingRuleSQL,
		s.ID, s.Name, s.Fee, s.FreeShippingThreshold, s.Active, emptyIfNil(s.ApplicableProducts), s.Priority,
	)
	if err != nil {
		return fmt.Errorf("upserting shipping rule %q: %w", s.ID, err)
	}
	return nil
}

// TaxRepository implements tax.Repository backed by PostgreSQL.
type TaxRepository struct {
	pool *pgxpool.Pool
}

// NewTaxRepository returns a TaxRepository that uses the given pool.
func NewTaxRepository(pool *pgxpool.Pool) *TaxRepository {
	return &TaxRepository{pool: pool}
}

// ListActive returns active tax rules, highest priority first.
func (r *TaxRepository) ListActive(ctx context.Context) ([]tax.Rule, error) {
	rows, err := r.pool.Query(ctx, listTaxRulesSQL)
	if err != nil {
		return nil, fmt.Errorf("listing tax rules: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (tax.Rule, error) {
		var (
			t     tax.Rule
			ttype string
		)
		err := row.Scan(&t.ID, &t.Name, &t.Rate, &ttype, &t.Inclusive, &t.Active, &t.ApplicableProducts, &t.Priority)
		t.Type = tax.Type(ttype)
		return t, err
	})
}

// Upsert inserts or replaces a tax rule.
func (r *TaxRepository) Upsert(ctx context.Context, t *tax.Rule) error {
	_, err := r.pool.Exec(ctx, upsertTaxRuleSQL,
		t.ID, t.Name, t.Rate, string(t.Type), t.Inclusive, t.Active, emptyIfNil(t.ApplicableProducts), t.Priority,
	)
	if err != nil {
		return fmt.Errorf("upserting tax rule %q: %w", t.ID, err)
	}
	return nil
}
