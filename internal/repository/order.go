package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront-pricing/internal/domain/order"
)

const (
	createOrderSQL = `INSERT INTO orders (id, order_number, user_id, status, payment_status, payment_method,
		customer_name, customer_email, customer_phone,
		shipping_line, shipping_city, shipping_state, shipping_zip, shipping_country,
		billing_line, billing_city, billing_state, billing_zip, billing_country,
		subtotal, shipping_cost, tax_amount, discount_amount, total,
		discount_source, discount_code_id, notes, internal_notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
			$16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29)`

	createOrderItemSQL = `INSERT INTO order_items (order_id, product_id, product_name, sku, image,
		variant_id, variant_name, variant_options, unit_price, quantity, subtotal)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	createStatusChangeSQL = `INSERT INTO order_status_history (order_id, from_status, to_status, note, changed_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	incrementDiscountUsageSQL = `UPDATE discount_codes SET usage_count = usage_count + 1 WHERE id = $1`

	decrementVariantStockSQL = `UPDATE product_variants SET stock = stock - $3
		WHERE id = $1 AND product_id = $2 RETURNING stock`

	decrementProductStockSQL = `UPDATE products SET stock = stock - $2
		WHERE id = $1 RETURNING stock`

	createStockAdjustmentSQL = `INSERT INTO stock_adjustments (product_id, variant_id, adjustment, quantity,
		previous_stock, new_stock, reason, created_by)
		VALUES ($1, $2, 'SALE', $3, $4, $5, $6, $7)`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists the order in a single transaction: the order row, its
// items and status history, the discount usage counter and a stock
// decrement with an adjustment record for every catalog item. Items whose
// product or variant no longer exists keep their snapshot and skip stock.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if err := insertOrder(ctx, tx, o); err != nil {
			return err
		}

		batch := &pgx.Batch{}
		for _, it := range o.Items {
			options := it.VariantOptions
			if options == nil {
				options = map[string]string{}
			}
			batch.Queue(createOrderItemSQL,
				o.ID, nullable(it.ProductID), it.ProductName, it.SKU, it.Image,
				nullable(it.VariantID), it.VariantName, options, it.UnitPrice, it.Quantity, it.Subtotal,
			)
		}
		for _, h := range o.History {
			batch.Queue(createStatusChangeSQL,
				o.ID, nullable(string(h.From)), string(h.To), h.Note, h.ChangedBy, h.CreatedAt,
			)
		}
		if o.DiscountCodeID != "" {
			batch.Queue(incrementDiscountUsageSQL, o.DiscountCodeID)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("writing order %q details: %w", o.Number, err)
		}

		changedBy := ""
		if len(o.History) > 0 {
			changedBy = o.History[0].ChangedBy
		}
		for _, it := range o.Items {
			if it.ProductID == "" {
				continue
			}
			if err := decrementStock(ctx, tx, it, "Order "+o.Number, changedBy); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("creating order %q: %w", o.Number, err)
	}
	return nil
}

func insertOrder(ctx context.Context, tx pgx.Tx, o *order.Order) error {
	var b order.Address
	if o.Billing != nil {
		b = *o.Billing
	}
	_, err := tx.Exec(ctx, createOrderSQL,
		o.ID, o.Number, nullable(o.UserID), string(o.Status), string(o.PaymentStatus), string(o.PaymentMethod),
		o.Customer.Name, o.Customer.Email, o.Customer.Phone,
		o.Shipping.Line, o.Shipping.City, o.Shipping.State, o.Shipping.Zip, o.Shipping.Country,
		nullable(b.Line), nullable(b.City), nullable(b.State), nullable(b.Zip), nullable(b.Country),
		o.Subtotal, o.ShippingCost, o.TaxAmount, o.DiscountAmount, o.Total,
		string(o.DiscountSource), nullable(o.DiscountCodeID), o.Notes, o.InternalNotes, o.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting order: %w", err)
	}
	return nil
}

func decrementStock(ctx context.Context, tx pgx.Tx, it order.OrderItem, reason, changedBy string) error {
	var (
		newStock int
		err      error
	)
	if it.VariantID != "" {
		err = tx.QueryRow(ctx, decrementVariantStockSQL, it.VariantID, it.ProductID, it.Quantity).Scan(&newStock)
	} else {
		err = tx.QueryRow(ctx, decrementProductStockSQL, it.ProductID, it.Quantity).Scan(&newStock)
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("decrementing stock of %q: %w", it.ProductID, err)
	}

	_, err = tx.Exec(ctx, createStockAdjustmentSQL,
		it.ProductID, nullable(it.VariantID), -it.Quantity, newStock+it.Quantity, newStock, reason, changedBy,
	)
	if err != nil {
		return fmt.Errorf("recording stock adjustment of %q: %w", it.ProductID, err)
	}
	return nil
}
