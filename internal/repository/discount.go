package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront-pricing/internal/domain/discount"
	"github.com/xenking/storefront-pricing/internal/domain/pricing"
)

const discountColumns = `id, code, description, discount_type, value,
	minimum_order_amount, maximum_discount,
	applicable_products, applicable_variants, applicable_categories,
	active, auto_apply, show_badge, priority, start_date, end_date,
	usage_limit, usage_limit_per_user, usage_count, created_at`

const (
	listAutoApplySQL = `SELECT ` + discountColumns + `
		FROM discount_codes WHERE active AND auto_apply AND show_badge
		ORDER BY priority DESC, created_at DESC`

	getDiscountByCodeSQL = `SELECT ` + discountColumns + `
		FROM discount_codes WHERE code = $1`

	countUserUsesSQL = `SELECT COUNT(*) FROM orders
		WHERE discount_code_id = $1 AND user_id = $2`

	listDiscountCodesSQL = `SELECT code FROM discount_codes`

	createDiscountSQL = `INSERT INTO discount_codes (` + discountColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`
)

var _ discount.Repository = (*DiscountRepository)(nil)

// DiscountRepository implements discount.Repository backed by PostgreSQL.
type DiscountRepository struct {
	pool *pgxpool.Pool
}

// NewDiscountRepository returns a DiscountRepository that uses the given pool.
func NewDiscountRepository(pool *pgxpool.Pool) *DiscountRepository {
	return &DiscountRepository{pool: pool}
}

// ListAutoApply returns active auto-apply codes with badges, highest
// priority first. Date windows are left to the caller.
func (r *DiscountRepository) ListAutoApply(ctx context.Context) ([]discount.Code, error) {
	rows, err := r.pool.Query(ctx, listAutoApplySQL)
	if err != nil {
		return nil, fmt.Errorf("listing auto-apply codes: %w", err)
	}
	codes, err := pgx.CollectRows(rows, scanDiscountCode)
	if err != nil {
		return nil, fmt.Errorf("listing auto-apply codes: %w", err)
	}
	return codes, nil
}

// FindByCode looks up a code by its normalized form. Inactive codes are
// returned too so the caller can report them.
func (r *DiscountRepository) FindByCode(ctx context.Context, code string) (*discount.Code, error) {
	rows, err := r.pool.Query(ctx, getDiscountByCodeSQL, code)
	if err != nil {
		return nil, fmt.Errorf("finding discount code %q: %w", code, err)
	}
	c, err := pgx.CollectExactlyOneRow(rows, scanDiscountCode)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, discount.ErrNotFound
		}
		return nil, fmt.Errorf("finding discount code %q: %w", code, err)
	}
	return &c, nil
}

// CountUserUses counts the orders of userID that applied codeID.
func (r *DiscountRepository) CountUserUses(ctx context.Context, codeID, userID string) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, countUserUsesSQL, codeID, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting uses of %q by %q: %w", codeID, userID, err)
	}
	return n, nil
}

// ListCodes returns every issued code.
func (r *DiscountRepository) ListCodes(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, listDiscountCodesSQL)
	if err != nil {
		return nil, fmt.Errorf("listing discount codes: %w", err)
	}
	codes, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("listing discount codes: %w", err)
	}
	return codes, nil
}

// Create inserts a code. A taken code yields discount.ErrDuplicateCode.
func (r *DiscountRepository) Create(ctx context.Context, c *discount.Code) error {
	_, err := r.pool.Exec(ctx, createDiscountSQL,
		c.ID, c.Code, c.Description, string(c.Type), c.Value,
		c.MinimumOrderAmount, c.MaximumDiscount,
		emptyIfNil(c.ApplicableProducts), emptyIfNil(c.ApplicableVariants), emptyIfNil(c.ApplicableCategories),
		c.Active, c.AutoApply, c.ShowBadge, c.Priority, c.StartDate, c.EndDate,
		c.UsageLimit, c.UsageLimitPerUser, c.UsageCount, c.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return discount.ErrDuplicateCode
		}
		return fmt.Errorf("creating discount code %q: %w", c.Code, err)
	}
	return nil
}

func scanDiscountCode(row pgx.CollectableRow) (discount.Code, error) {
	var (
		c     discount.Code
		dtype string
	)
	err := row.Scan(
		&c.ID, &c.Code, &c.Description, &dtype, &c.Value,
		&c.MinimumOrderAmount, &c.MaximumDiscount,
		&c.ApplicableProducts, &c.ApplicableVariants, &c.ApplicableCategories,
		&c.Active, &c.AutoApply, &c.ShowBadge, &c.Priority, &c.StartDate, &c.EndDate,
		&c.UsageLimit, &c.UsageLimitPerUser, &c.UsageCount, &c.CreatedAt,
	)
	c.Type = pricing.DiscountType(dtype)
	return c, err
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
