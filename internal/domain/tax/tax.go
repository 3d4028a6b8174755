// Package tax computes order tax from prioritized tax rules.
package tax

import (
	"context"
	"fmt"
	"slices"
	"sort"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Type is how a tax rule rate is interpreted.
type Type string

const (
	TypePercentage Type = "PERCENTAGE"
	TypeFixed      Type = "FIXED"
)

var hundred = decimal.NewFromInt(100)

// Rule is a tax rule. A rule without applicable products is a default rule.
type Rule struct {
	ID                 string
	Name               string
	Rate               decimal.Decimal
	Type               Type
	Inclusive          bool
	Active             bool
	ApplicableProducts []string
	Priority           int
}

// Quote is the result of a tax calculation.
type Quote struct {
	Amount    decimal.Decimal
	Rate      decimal.Decimal
	Type      Type
	Inclusive bool
	RuleName  string
	Message   string
}

// Payable is the amount to add on top of the order subtotal. Inclusive tax
// is already part of the prices, so nothing is added for it.
func (q Quote) Payable() decimal.Decimal {
	if q.Inclusive {
		return decimal.Zero
	}
	return q.Amount
}

// Repository lists active tax rules.
type Repository interface {
	ListActive(ctx context.Context) ([]Rule, error)
}

// Calculate picks the applicable rule and computes the tax amount for subtotal.
func Calculate(rules []Rule, subtotal decimal.Decimal, productIDs []string) Quote {
	rule := selectRule(rules, productIDs)
	if rule == nil {
		msg := "No applicable tax rule found"
		if len(rules) == 0 {
			msg = "No tax rules configured"
		}
		return Quote{Amount: decimal.Zero, Rate: decimal.Zero, Type: TypePercentage, Message: msg}
	}

	var amount decimal.Decimal
	switch rule.Type {
	case TypePercentage:
		if rule.Inclusive {
			amount = subtotal.Sub(subtotal.Div(decimal.NewFromInt(1).Add(rule.Rate.Div(hundred))))
		} else {
			amount = subtotal.Mul(rule.Rate).Div(hundred)
		}
	default:
		amount = rule.Rate
	}

	return Quote{
		Amount:    amount.Round(2),
		Rate:      rule.Rate,
		Type:      rule.Type,
		Inclusive: rule.Inclusive,
		RuleName:  rule.Name,
		Message:   fmt.Sprintf("Tax calculated using '%s' rule", rule.Name),
	}
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
		for _, id := range productIDs {
			if slices.Contains(r.ApplicableProducts, id) {
				return r
			}
		}
	}
	return fallback
}

// Service calculates tax against the rules stored in a Repository.
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Calculate loads active rules and computes the tax quote.
func (s *Service) Calculate(ctx context.Context, subtotal decimal.Decimal, productIDs []string) (*Quote, error) {
	rules, err := s.repo.ListActive(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list tax rules")
	}
	q := Calculate(rules, subtotal, productIDs)
	return &q, nil
}
