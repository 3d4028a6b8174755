package pricing

import (
	"fmt"

	"github.com/go-faster/errors"
)

// ErrNoItems is returned by ValidateItems for an empty order.
var ErrNoItems = errors.New("items required")

// InvalidItemError describes a line item that violates the pricing input
// invariants.
type InvalidItemError struct {
	Index  int
	Reason string
}

func (e *InvalidItemError) Error() string {
	return fmt.Sprintf("item %d: %s", e.Index, e.Reason)
}

// ValidateItems checks the invariants the pricing functions assume:
// at least one item, quantity >= 1 and a non-negative unit price.
func ValidateItems(items []LineItem) error {
	if len(items) == 0 {
		return ErrNoItems
	}
	for i, item := range items {
		if item.Quantity < 1 {
			return &InvalidItemError{Index: i, Reason: "quantity must be greater than 0"}
		}
		if item.UnitPrice.IsNegative() {
			return &InvalidItemError{Index: i, Reason: "unit price must not be negative"}
		}
	}
	return nil
}

// ValidateRule checks that a rule's value and limits are non-negative and
// that percentages do not exceed 100.
func ValidateRule(r Rule) error {
	if r.Value.IsNegative() {
		return errors.Errorf("rule %q: discount value must not be negative", r.Code)
	}
	switch r.Type {
	case DiscountPercentage:
		if r.Value.GreaterThan(hundred) {
			return errors.Errorf("rule %q: percentage discount cannot exceed 100", r.Code)
		}
	case DiscountFixedAmount:
	default:
		return errors.Errorf("rule %q: unsupported discount type %q", r.Code, r.Type)
	}
	if r.MinimumOrderAmount != nil && r.MinimumOrderAmount.IsNegative() {
		return errors.Errorf("rule %q: minimum order amount must not be negative", r.Code)
	}
	if r.MaximumDiscount != nil && r.MaximumDiscount.IsNegative() {
		return errors.Errorf("rule %q: maximum discount must not be negative", r.Code)
	}
	return nil
}
