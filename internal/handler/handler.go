// Package handler exposes the pricing, discount and order operations over
// HTTP with JSON bodies.
package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/storefront-pricing/internal/domain/auth"
	"github.com/xenking/storefront-pricing/internal/domain/discount"
	"github.com/xenking/storefront-pricing/internal/domain/order"
	"github.com/xenking/storefront-pricing/pkg/httpmiddleware"
)

const defaultMaxBodyBytes = 1 << 20

// Orders prices carts and places orders.
type Orders interface {
	Quote(ctx context.Context, req order.QuoteRequest) (*order.Quote, error)
	PlaceOrder(ctx context.Context, req order.PlaceOrderRequest) (*order.PlaceOrderResult, error)
}

// Discounts manages discount codes.
type Discounts interface {
	order.Discounts
	Create(ctx context.Context, c *discount.Code) error
}

// Authenticator resolves an API key to its identity.
type Authenticator interface {
	Authenticate(ctx context.Context, key string) (*auth.APIKeyInfo, error)
}

var (
	_ Orders        = (*order.Service)(nil)
	_ Discounts     = (*discount.Service)(nil)
	_ Authenticator = (*auth.Authenticator)(nil)
)

// Deps lists the collaborators of a Handler.
type Deps struct {
	Orders    Orders
	Discounts Discounts
	Shipping  order.ShippingCalculator
	Tax       order.TaxCalculator
	Auth      Authenticator
	// MaxBodyBytes limits request bodies. Defaults to 1 MiB.
	MaxBodyBytes int64
}

// Handler serves the JSON API.
type Handler struct {
	orders    Orders
	discounts Discounts
	shipping  order.ShippingCalculator
	tax       order.TaxCalculator
	auth      Authenticator
	maxBody   int64
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(deps Deps) *Handler {
	maxBody := deps.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}
	return &Handler{
		orders:    deps.Orders,
		discounts: deps.Discounts,
		shipping:  deps.Shipping,
		tax:       deps.Tax,
		auth:      deps.Auth,
		maxBody:   maxBody,
	}
}

// Routes returns the API router. Every route requires an API key; creating
// discount codes also requires the discounts:write scope.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httpmiddleware.WriteError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		httpmiddleware.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Group(func(r chi.Router) {
		r.Use(h.authenticate)

		r.Post("/pricing/quote", h.Quote)
		r.Post("/shipping/calculate", h.CalculateShipping)
		r.Post("/tax/calculate", h.CalculateTax)

		r.Get("/discounts/auto-apply", h.AutoApplyDiscounts)
		r.Post("/discounts/validate", h.ValidateDiscount)
		r.With(requireScope(auth.ScopeDiscountsWrite)).Post("/discounts", h.CreateDiscount)

		r.Post("/orders", h.PlaceOrder)
	})
	return r
}
