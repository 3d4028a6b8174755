package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront-pricing/internal/domain/product"
)

const (
	getProductsByIDsSQL = `SELECT id, name, sku, price, category_id, stock,
		image_thumbnail, image_mobile, image_tablet, image_desktop
		FROM products WHERE id = ANY($1) ORDER BY id`

	getVariantsByProductIDsSQL = `SELECT product_id, id, name, sku, price, stock, options
		FROM product_variants WHERE product_id = ANY($1) ORDER BY product_id, id`

	upsertProductSQL = `INSERT INTO products (id, name, sku, price, category_id, stock,
		image_thumbnail, image_mobile, image_tablet, image_desktop)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, sku = EXCLUDED.sku,
			price = EXCLUDED.price, category_id = EXCLUDED.category_id, stock = EXCLUDED.stock,
			image_thumbnail = EXCLUDED.image_thumbnail, image_mobile = EXCLUDED.image_mobile,
			image_tablet = EXCLUDED.image_tablet, image_desktop = EXCLUDED.image_desktop`

	upsertVariantSQL = `INSERT INTO product_variants (id, product_id, name, sku, price, stock, options)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, sku = EXCLUDED.sku,
			price = EXCLUDED.price, stock = EXCLUDED.stock, options = EXCLUDED.options`
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// GetByIDs returns products matching any of the given IDs with their variants.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []string) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductsByIDsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting products by ids: %w", err)
	}
	products, err := pgx.CollectRows(rows, scanProduct)
	if err != nil {
		return nil, fmt.Errorf("getting products by ids: %w", err)
	}
	if len(products) == 0 {
		return products, nil
	}

	rows, err = r.pool.Query(ctx, getVariantsByProductIDsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting variants: %w", err)
	}
	variants, err := pgx.CollectRows(rows, scanVariant)
	if err != nil {
		return nil, fmt.Errorf("getting variants: %w", err)
	}

	byProduct := make(map[string]int, len(products))
	for i := range products {
		byProduct[products[i].ID] = i
	}
	for _, v := range variants {
		if i, ok := byProduct[v.productID]; ok {
			products[i].Variants = append(products[i].Variants, v.Variant)
		}
	}
	return products, nil
}

// Upsert inserts or replaces a product and its variants.
func (r *ProductRepository) Upsert(ctx context.Context, p *product.Product) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, upsertProductSQL,
			p.ID, p.Name, p.SKU, p.Price, p.CategoryID, p.Stock,
			p.Image.Thumbnail, p.Image.Mobile, p.Image.Tablet, p.Image.Desktop,
		)
		if err != nil {
			return fmt.Errorf("upserting product %q: %w", p.ID, err)
		}

		batch := &pgx.Batch{}
		for _, v := range p.Variants {
			options := v.Options
			if options == nil {
				options = map[string]string{}
			}
			batch.Queue(upsertVariantSQL, v.ID, p.ID, v.Name, v.SKU, v.Price, v.Stock, options)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("upserting variants of %q: %w", p.ID, err)
		}
		return nil
	})
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var p product.Product
	err := row.Scan(
		&p.ID, &p.Name, &p.SKU, &p.Price, &p.CategoryID, &p.Stock,
		&p.Image.Thumbnail, &p.Image.Mobile, &p.Image.Tablet, &p.Image.Desktop,
	)
	return p, err
}

type variantRow struct {
	product.Variant
	productID string
}

func scanVariant(row pgx.CollectableRow) (variantRow, error) {
	var v variantRow
	err := row.Scan(&v.productID, &v.ID, &v.Name, &v.SKU, &v.Price, &v.Stock, &v.Options)
	return v, err
}
