package pricing

import "slices"

// Match returns the first rule in priority order that applies to the given
// product and variant, or nil.
//
// A restricted rule matches when the variant (checked first) or the product
// is listed in its scope. An unrestricted rule matches unconditionally.
func Match(productID, variantID string, rules []Rule) *Rule {
	return MatchItem(LineItem{ProductID: productID, VariantID: variantID}, rules)
}

// MatchItem is Match over a full line item. For a rule restricted by product
// or variant, a listed category also admits items of that category.
func MatchItem(item LineItem, rules []Rule) *Rule {
	for i := range rules {
		r := &rules[i]
		if !r.Restricted() {
			return r
		}
		if item.VariantID != "" && slices.Contains(r.ApplicableVariants, item.VariantID) {
			return r
		}
		if slices.Contains(r.ApplicableProducts, item.ProductID) {
			return r
		}
		if item.CategoryID != "" && slices.Contains(r.ApplicableCategories, item.CategoryID) {
			return r
		}
	}
	return nil
}
