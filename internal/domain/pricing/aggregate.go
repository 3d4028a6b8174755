package pricing

import "github.com/shopspring/decimal"

// Subtotal returns the exact sum of unit price times quantity over all items.
func Subtotal(items []LineItem) decimal.Decimal {
	sum := zero
	for _, item := range items {
		sum = sum.Add(item.Total())
	}
	return sum
}

// ResolveDiscount matches every item carrying a product ID against rules and
// sums the per-item discounts.
//
// The last matched rule is the one reported, even when earlier items matched
// different rules. When that rule has a minimum order amount the subtotal
// does not reach, the total discount is zeroed but the rule and
// MeetsMinimum=false are still returned so callers can hint at the gap.
func ResolveDiscount(items []LineItem, rules []Rule) Resolution {
	subtotal := Subtotal(items)

	total := zero
	var applied *Rule
	for _, item := range items {
		if item.ProductID == "" {
			continue
		}
		rule := MatchItem(item, rules)
		if rule == nil {
			continue
		}
		total = total.Add(ItemDiscount(item.UnitPrice, item.Quantity, rule))
		applied = rule
	}

	meets := applied == nil ||
		applied.MinimumOrderAmount == nil ||
		subtotal.GreaterThanOrEqual(*applied.MinimumOrderAmount)
	if !meets {
		total = zero
	}

	return Resolution{
		TotalDiscount: total,
		Rule:          applied,
		MeetsMinimum:  meets,
	}
}

// ComputeTotal returns subtotal + shipping + tax - discount, floored at zero.
func ComputeTotal(subtotal, shipping, tax, discount decimal.Decimal) decimal.Decimal {
	return floorAtZero(subtotal.Add(shipping).Add(tax).Sub(discount))
}

// Input is an immutable snapshot of everything needed to price an order.
type Input struct {
	Items []LineItem
	// Rules are the auto-apply rules in priority order.
	Rules        []Rule
	ShippingCost decimal.Decimal
	TaxAmount    decimal.Decimal
	// ManualDiscount is the amount granted by a successfully validated
	// discount code. When set it replaces the automatic discount entirely.
	ManualDiscount *decimal.Decimal
}

// Price runs the full pipeline: subtotal, automatic discount resolution,
// manual code override and total. Monetary outputs are rounded to 2 decimal
// places; intermediate sums are not.
func Price(in Input) Totals {
	subtotal := Subtotal(in.Items)
	auto := ResolveDiscount(in.Items, in.Rules)

	discount := auto.TotalDiscount
	source := SourceNone
	switch {
	case in.ManualDiscount != nil:
		discount = floorAtZero(*in.ManualDiscount)
		source = SourceManual
	case discount.IsPositive():
		source = SourceAuto
	}

	total := ComputeTotal(subtotal, in.ShippingCost, in.TaxAmount, discount)

	auto.TotalDiscount = auto.TotalDiscount.Round(2)
	return Totals{
		Subtotal:       subtotal.Round(2),
		ShippingCost:   in.ShippingCost.Round(2),
		TaxAmount:      in.TaxAmount.Round(2),
		DiscountAmount: discount.Round(2),
		Total:          total.Round(2),
		DiscountSource: source,
		AutoDiscount:   auto,
	}
}
