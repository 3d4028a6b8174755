// Package pricing computes order totals from line items, automatically
// applied discount rules and externally supplied shipping and tax amounts.
//
// Every function in this package is pure: inputs are treated as immutable
// snapshots and no state is retained between calls.
package pricing

import (
	"github.com/shopspring/decimal"
)

// DiscountType enumerates the supported discount strategies.
type DiscountType string

const (
	// DiscountPercentage takes a percentage (0–100) of the line total.
	DiscountPercentage DiscountType = "PERCENTAGE"
	// DiscountFixedAmount takes a fixed amount per unit.
	DiscountFixedAmount DiscountType = "FIXED_AMOUNT"
)

// DiscountSource reports where the discount applied to a total came from.
type DiscountSource string

const (
	// SourceNone means no discount was applied.
	SourceNone DiscountSource = "none"
	// SourceAuto means the discount came from matched auto-apply rules.
	SourceAuto DiscountSource = "auto"
	// SourceManual means a validated manual code replaced the auto discount.
	SourceManual DiscountSource = "manual"
)

var (
	hundred = decimal.NewFromInt(100)
	zero    = decimal.Zero
)

// LineItem is one product or variant entry of an order under construction.
type LineItem struct {
	// ProductID is empty for freeform items.
	ProductID  string
	VariantID  string
	CategoryID string
	UnitPrice  decimal.Decimal
	Quantity   int
}

// Total returns UnitPrice * Quantity.
func (i LineItem) Total() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Rule is a promotional rule eligible for automatic application.
type Rule struct {
	ID          string
	Code        string
	Description string
	Type        DiscountType
	Value       decimal.Decimal

	// MinimumOrderAmount gates the rule on the order subtotal. Nil means unset.
	MinimumOrderAmount *decimal.Decimal
	// MaximumDiscount caps the per-item discount. Nil means unset.
	MaximumDiscount *decimal.Decimal

	ApplicableProducts   []string
	ApplicableVariants   []string
	ApplicableCategories []string
}

// Restricted reports whether the rule is scoped to specific products or
// variants. Categories alone do not restrict a rule.
func (r *Rule) Restricted() bool {
	return len(r.ApplicableProducts) > 0 || len(r.ApplicableVariants) > 0
}

// Resolution is the outcome of matching line items against auto-apply rules.
type Resolution struct {
	TotalDiscount decimal.Decimal
	// Rule is the last rule matched across all items, or nil.
	Rule *Rule
	// MeetsMinimum is false only when Rule has a minimum the subtotal misses.
	// TotalDiscount is zero in that case.
	MeetsMinimum bool
}

// Totals is the final aggregate for an order.
type Totals struct {
	Subtotal       decimal.Decimal
	ShippingCost   decimal.Decimal
	TaxAmount      decimal.Decimal
	DiscountAmount decimal.Decimal
	Total          decimal.Decimal

	DiscountSource DiscountSource
	// AutoDiscount is the automatic resolution, reported even when a manual
	// code overrides it so callers can still display it.
	AutoDiscount Resolution
}
