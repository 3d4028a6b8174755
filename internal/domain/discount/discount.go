// Package discount manages discount codes: the catalog of automatically
// applied rules and validation of manually entered codes.
package discount

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-pricing/internal/domain/pricing"
)

var (
	// ErrNotFound is returned by a Repository when no code matches.
	ErrNotFound = errors.New("discount code not found")
	// ErrDuplicateCode is returned when creating a code that already exists.
	ErrDuplicateCode = errors.New("discount code already exists")
)

// Code is a stored discount code together with its pricing rule.
type Code struct {
	pricing.Rule

	Active    bool
	AutoApply bool
	ShowBadge bool
	// Priority orders auto-apply rules; higher goes first.
	Priority int

	StartDate *time.Time
	EndDate   *time.Time

	// UsageLimit and UsageLimitPerUser are unlimited when zero.
	UsageLimit        int
	UsageLimitPerUser int
	UsageCount        int

	CreatedAt time.Time
}

// InWindow reports whether now falls inside the code's start and end dates.
func (c *Code) InWindow(now time.Time) bool {
	if c.StartDate != nil && c.StartDate.After(now) {
		return false
	}
	if c.EndDate != nil && c.EndDate.Before(now) {
		return false
	}
	return true
}

// Validation is the outcome of checking a manually entered code.
type Validation struct {
	Valid   bool
	CodeID  string
	Code    string
	Type    pricing.DiscountType
	Value   decimal.Decimal
	Amount  decimal.Decimal
	Message string
}

// ValidateRequest carries the inputs of a code validation.
type ValidateRequest struct {
	Code     string
	Subtotal decimal.Decimal
	// UserID enables the per-user usage check when non-empty.
	UserID string
}

// Repository provides storage of discount codes.
type Repository interface {
	// ListAutoApply returns active auto-apply codes with badges enabled,
	// highest priority first.
	ListAutoApply(ctx context.Context) ([]Code, error)
	FindByCode(ctx context.Context, code string) (*Code, error)
	CountUserUses(ctx context.Context, codeID, userID string) (int, error)
	ListCodes(ctx context.Context) ([]string, error)
	Create(ctx context.Context, c *Code) error
}

// NormalizeCode upper-cases a code and strips all whitespace.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.Join(strings.Fields(code), ""))
}
