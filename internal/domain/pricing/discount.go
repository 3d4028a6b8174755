package pricing

import "github.com/shopspring/decimal"

// ItemDiscount computes the discount a rule grants on a single line.
//
// Percentage rules take Value percent of the line total. Fixed amount rules
// grant Value per unit. The result is capped at MaximumDiscount when set and
// is never negative. Percentages above 100 are not rejected here.
func ItemDiscount(unitPrice decimal.Decimal, quantity int, rule *Rule) decimal.Decimal {
	if rule == nil {
		return zero
	}

	qty := decimal.NewFromInt(int64(quantity))

	var amount decimal.Decimal
	switch rule.Type {
	case DiscountPercentage:
		amount = unitPrice.Mul(qty).Mul(rule.Value).Div(hundred)
	case DiscountFixedAmount:
		amount = rule.Value.Mul(qty)
	default:
		return zero
	}

	if rule.MaximumDiscount != nil && amount.GreaterThan(*rule.MaximumDiscount) {
		amount = *rule.MaximumDiscount
	}
	return floorAtZero(amount)
}

func floorAtZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return zero
	}
	return d
}
