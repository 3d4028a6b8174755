// Package shipping computes shipping fees from prioritized shipping rules.
package shipping

import (
	"context"
	"fmt"
	"slices"
	"sort"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Rule is a shipping fee rule. A rule without applicable products is a
// default rule.
type Rule struct {
	ID                    string
	Name                  string
	Fee                   decimal.Decimal
	FreeShippingThreshold *decimal.Decimal
	Active                bool
	ApplicableProducts    []string
	Priority              int
}

// Quote is the result of a shipping calculation.
type Quote struct {
	Fee                   decimal.Decimal
	IsFree                bool
	FreeShippingThreshold *decimal.Decimal
	RuleName              string
	Message               string
}

// Repository lists active shipping rules.
type Repository interface {
	ListActive(ctx context.Context) ([]Rule, error)
}

// Calculate picks the applicable rule and computes the fee.
//
// Rules are considered in descending priority. The first product-restricted
// rule sharing a product with the order wins; otherwise the first default
// rule applies. With no applicable rule shipping is free.
func Calculate(rules []Rule, subtotal decimal.Decimal, productIDs []string) Quote {
	rule := selectRule(rules, productIDs)
	if rule == nil {
		msg := "No applicable shipping rule - shipping is free"
		if len(rules) == 0 {
			msg = "No shipping rules configured - shipping is free"
		}
		return Quote{Fee: decimal.Zero, IsFree: true, Message: msg}
	}

	q := Quote{
		FreeShippingThreshold: rule.FreeShippingThreshold,
		RuleName:              rule.Name,
	}

	if t := rule.FreeShippingThreshold; t != nil && t.IsPositive() && subtotal.GreaterThanOrEqual(*t) {
		q.Fee = decimal.Zero
		q.IsFree = true
		q.Message = fmt.Sprintf("Free shipping! Order total exceeds %s", t.StringFixed(2))
		return q
	}

	q.Fee = rule.Fee.Round(2)
	q.IsFree = q.Fee.IsZero()
	q.Message = fmt.Sprintf("Shipping fee: %s", q.Fee.StringFixed(2))
	if t := rule.FreeShippingThreshold; t != nil && t.IsPositive() {
		q.Message = fmt.Sprintf("Add %s more for free shipping", t.Sub(subtotal).StringFixed(2))
	}
	return q
}

func selectRule(rules []Rule, productIDs []string) *Rule {
	ordered := make([]*Rule, 0, len(rules))
	for i := range rules {
		if rules[i].Active {
			ordered = append(ordered, &rules[i])
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority > ordered[j].Priority
	})

	var fallback *Rule
	for _, r := range ordered {
		if len(r.ApplicableProducts) == 0 {
			if fallback == nil {
				fallback = r
			}
			continue
		}
		if slices.ContainsFunc(productIDs, func(id string) bool {
			return slices.Contains(r.ApplicableProducts, id)
		}) {
			return r
		}
	}
	return fallback
}

// Service calculates shipping against the rules stored in a Repository.
type Service struct {
	repo Repository
}

// NewService creates a shipping Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Calculate loads active rules and computes the shipping quote.
func (s *Service) Calculate(ctx context.Context, subtotal decimal.Decimal, productIDs []string) (*Quote, error) {
	rules, err := s.repo.ListActive(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list shipping rules")
	}
	q := Calculate(rules, subtotal, productIDs)
	return &q, nil
}
