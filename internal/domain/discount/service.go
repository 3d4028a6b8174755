package discount

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-pricing/internal/domain/pricing"
)

var hundred = decimal.NewFromInt(100)

// Service implements the discount catalog and code validation on top of a
// Repository. An optional CodeFilter short-circuits lookups of codes that
// were never issued.
type Service struct {
	repo   Repository
	filter *CodeFilter
	now    func() time.Time
}

// NewService creates a Service backed by repo. filter may be nil.
func NewService(repo Repository, filter *CodeFilter) *Service {
	return &Service{repo: repo, filter: filter, now: time.Now}
}

// AutoApply returns the auto-apply rules currently inside their date window,
// in priority order.
func (s *Service) AutoApply(ctx context.Context) ([]pricing.Rule, error) {
	codes, err := s.repo.ListAutoApply(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list auto-apply codes")
	}

	now := s.now()
	rules := make([]pricing.Rule, 0, len(codes))
	for i := range codes {
		c := &codes[i]
		if !c.Active || !c.AutoApply || !c.ShowBadge || !c.InWindow(now) {
			continue
		}
		rules = append(rules, c.Rule)
	}
	return rules, nil
}

// Validate checks a manually entered code against the order subtotal and
// computes the discount it grants. Rejections are reported through
// Validation.Valid and Message; only storage failures return an error.
func (s *Service) Validate(ctx context.Context, req ValidateRequest) (*Validation, error) {
	code := NormalizeCode(req.Code)
	if code == "" || !s.filter.MayContain(code) {
		return invalid("Invalid discount code"), nil
	}

	c, err := s.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return invalid("Invalid discount code"), nil
		}
		return nil, errors.Wrap(err, "lookup discount code")
	}

	if !c.Active {
		return invalid("This discount code is no longer active"), nil
	}

	now := s.now()
	if c.StartDate != nil && c.StartDate.After(now) {
		return invalid("This discount code is not yet active"), nil
	}
	if c.EndDate != nil && c.EndDate.Before(now) {
		return invalid("This discount code has expired"), nil
	}

	if c.UsageLimit > 0 && c.UsageCount >= c.UsageLimit {
		return invalid("This discount code has reached its usage limit"), nil
	}

	if req.UserID != "" && c.UsageLimitPerUser > 0 {
		used, err := s.repo.CountUserUses(ctx, c.ID, req.UserID)
		if err != nil {
			return nil, errors.Wrap(err, "count user uses")
		}
		if used >= c.UsageLimitPerUser {
			return invalid("You have already used this discount code the maximum number of times"), nil
		}
	}

	if c.MinimumOrderAmount != nil && c.MinimumOrderAmount.IsPositive() &&
		req.Subtotal.LessThan(*c.MinimumOrderAmount) {
		return invalid(fmt.Sprintf("Minimum order amount of %s required", c.MinimumOrderAmount.StringFixed(2))), nil
	}

	amount := CodeAmount(&c.Rule, req.Subtotal)
	return &Validation{
		Valid:   true,
		CodeID:  c.ID,
		Code:    c.Code,
		Type:    c.Type,
		Value:   c.Value,
		Amount:  amount,
		Message: fmt.Sprintf("Discount of %s applied!", amount.StringFixed(2)),
	}, nil
}

// CodeAmount computes the order-level discount of a manually entered code.
// Percentages apply to the subtotal and honour MaximumDiscount; fixed
// amounts never exceed the subtotal.
func CodeAmount(rule *pricing.Rule, subtotal decimal.Decimal) decimal.Decimal {
	var amount decimal.Decimal
	switch rule.Type {
	case pricing.DiscountPercentage:
		amount = subtotal.Mul(rule.Value).Div(hundred)
		if rule.MaximumDiscount != nil && amount.GreaterThan(*rule.MaximumDiscount) {
			amount = *rule.MaximumDiscount
		}
	default:
		amount = decimal.Min(rule.Value, subtotal)
	}
	if amount.IsNegative() {
		return decimal.Zero
	}
	return amount.Round(2)
}

// Create stores a new discount code. The code is normalized and its rule
// validated before it reaches the repository.
func (s *Service) Create(ctx context.Context, c *Code) error {
	c.Code = NormalizeCode(c.Code)
	if len(c.Code) < 3 || len(c.Code) > 50 {
		return errors.Wrap(ErrInvalidCode, "code must be 3 to 50 characters")
	}
	if err := pricing.ValidateRule(c.Rule); err != nil {
		return errors.Wrap(ErrInvalidCode, err.Error())
	}
	if c.StartDate != nil && c.EndDate != nil && c.EndDate.Before(*c.StartDate) {
		return errors.Wrap(ErrInvalidCode, "end date precedes start date")
	}
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now()
	}

	if err := s.repo.Create(ctx, c); err != nil {
		return errors.Wrap(err, "create discount code")
	}
	s.filter.Add(c.Code)
	return nil
}

// ErrInvalidCode wraps validation failures of Create.
var ErrInvalidCode = errors.New("invalid discount code definition")

func invalid(msg string) *Validation {
	return &Validation{Valid: false, Message: msg}
}
