package order

import (
	"context"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront-pricing/internal/domain/discount"
	"github.com/xenking/storefront-pricing/internal/domain/pricing"
	"github.com/xenking/storefront-pricing/internal/domain/product"
	"github.com/xenking/storefront-pricing/internal/domain/shipping"
	"github.com/xenking/storefront-pricing/internal/domain/tax"
)

// --- Mock implementations ---

type mockProductRepo struct {
	byID   map[string]product.Product
	getErr error
	calls  int
}

func (m *mockProductRepo) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	m.calls++
	if m.getErr != nil {
		return nil, m.getErr
	}
	var out []product.Product
	for _, id := range ids {
		if p, ok := m.byID[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

type mockDiscounts struct {
	rules      []pricing.Rule
	autoErr    error
	validation *discount.Validation
	validErr   error

	mu        sync.Mutex
	validated []discount.ValidateRequest
}

func (m *mockDiscounts) AutoApply(_ context.Context) ([]pricing.Rule, error) {
	return m.rules, m.autoErr
}

func (m *mockDiscounts) Validate(_ context.Context, req discount.ValidateRequest) (*discount.Validation, error) {
	m.mu.Lock()
	m.validated = append(m.validated, req)
	m.mu.Unlock()
	return m.validation, m.validErr
}

type mockShipping struct {
	quote shipping.Quote
	err   error
}

func (m *mockShipping) Calculate(_ context.Context, _ decimal.Decimal, _ []string) (*shipping.Quote, error) {
	if m.err != nil {
		return nil, m.err
	}
	q := m.quote
	return &q, nil
}

type mockTax struct {
	quote tax.Quote
	err   error
}

func (m *mockTax) Calculate(_ context.Context, _ decimal.Decimal, _ []string) (*tax.Quote, error) {
	if m.err != nil {
		return nil, m.err
	}
	q := m.quote
	return &q, nil
}

type mockOrderRepo struct {
	lastOrder *Order
	err       error
}

func (m *mockOrderRepo) Create(_ context.Context, o *Order) error {
	m.lastOrder = o
	return m.err
}

// --- Helpers ---

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func dp(v string) *decimal.Decimal {
	x := d(v)
	return &x
}

func newTestProduct(id, category string, price string) product.Product {
	return product.Product{
		ID:         id,
		Name:       "Product " + id,
		SKU:        "SKU-" + id,
		Price:      d(price),
		CategoryID: category,
		Stock:      10,
		Image:      product.Image{Thumbnail: id + ".jpg"},
	}
}

func newProductRepo(products ...product.Product) *mockProductRepo {
	byID := make(map[string]product.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	return &mockProductRepo{byID: byID}
}

type fixture struct {
	products  *mockProductRepo
	discounts *mockDiscounts
	shipping  *mockShipping
	tax       *mockTax
	orders    *mockOrderRepo
}

func newFixture(products ...product.Product) *fixture {
	return &fixture{
		products:  newProductRepo(products...),
		discounts: &mockDiscounts{},
		shipping:  &mockShipping{quote: shipping.Quote{Fee: decimal.Zero, IsFree: true}},
		tax:       &mockTax{quote: tax.Quote{Amount: decimal.Zero}},
		orders:    &mockOrderRepo{},
	}
}

func (f *fixture) service(t *testing.T) *Service {
	t.Helper()
	svc, err := NewService(Deps{
		Products:  f.products,
		Discounts: f.discounts,
		Shipping:  f.shipping,
		Tax:       f.tax,
		Orders:    f.orders,
	})
	require.NoError(t, err)
	svc.now = func() time.Time { return time.Date(2025, 3, 9, 10, 0, 0, 0, time.UTC) }
	return svc
}

func validPlaceRequest(items ...QuoteItem) PlaceOrderRequest {
	return PlaceOrderRequest{
		Customer: Customer{Name: "Juan Dela Cruz", Email: "juan@example.com"},
		Shipping: Address{Line: "1 Rizal Ave", City: "Manila"},
		Items:    items,
	}
}

// --- Quote ---

func TestQuote_EmptyItems(t *testing.T) {
	svc := newFixture().service(t)

	_, err := svc.Quote(context.Background(), QuoteRequest{})
	require.ErrorIs(t, err, pricing.ErrNoItems)
}

func TestQuote_InvalidItems(t *testing.T) {
	tests := []struct {
		name  string
		items []QuoteItem
		index int
	}{
		{
			name:  "zero quantity",
			items: []QuoteItem{{ProductID: "p1", Quantity: 0}},
		},
		{
			name:  "freeform without price",
			items: []QuoteItem{{ProductID: "p1", Quantity: 1}, {Name: "Gift wrap", Quantity: 1}},
			index: 1,
		},
		{
			name:  "negative freeform price",
			items: []QuoteItem{{Name: "Refund", UnitPrice: dp("-1"), Quantity: 1}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newFixture(newTestProduct("p1", "c1", "10")).service(t)

			_, err := svc.Quote(context.Background(), QuoteRequest{Items: tt.items})

			var itemErr *pricing.InvalidItemError
			require.ErrorAs(t, err, &itemErr)
			assert.Equal(t, tt.index, itemErr.Index)
		})
	}
}

func TestQuote_ProductNotFound(t *testing.T) {
	svc := newFixture().service(t)

	_, err := svc.Quote(context.Background(), QuoteRequest{
		Items: []QuoteItem{{ProductID: "missing", Quantity: 1}},
	})

	var pnfErr *ProductNotFoundError
	require.ErrorAs(t, err, &pnfErr)
	assert.Equal(t, "missing", pnfErr.ProductID)
}

func TestQuote_VariantNotFound(t *testing.T) {
	svc := newFixture(newTestProduct("p1", "c1", "10")).service(t)

	_, err := svc.Quote(context.Background(), QuoteRequest{
		Items: []QuoteItem{{ProductID: "p1", VariantID: "nope", Quantity: 1}},
	})

	var vErr *VariantNotFoundError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "nope", vErr.VariantID)
}

func TestQuote_AutoDiscountShippingAndTax(t *testing.T) {
	f := newFixture(
		newTestProduct("p1", "c1", "50"),
		newTestProduct("p2", "c2", "25"),
	)
	f.discounts.rules = []pricing.Rule{{
		ID:                 "r1",
		Code:               "AUTO10",
		Type:               pricing.DiscountPercentage,
		Value:              d("10"),
		ApplicableProducts: []string{"p1"},
	}}
	f.shipping.quote = shipping.Quote{Fee: d("5"), RuleName: "Standard"}
	f.tax.quote = tax.Quote{Amount: d("12"), Type: tax.TypePercentage}

	q, err := f.service(t).Quote(context.Background(), QuoteRequest{
		Items: []QuoteItem{
			{ProductID: "p1", Quantity: 2},
			{ProductID: "p2", Quantity: 1},
			{ProductID: "p1", Quantity: 1},
		},
	})
	require.NoError(t, err)

	// p1 appears twice but is fetched once.
	assert.Equal(t, 1, f.products.calls)
	assert.True(t, d("175").Equal(q.Totals.Subtotal))
	assert.True(t, d("15").Equal(q.Totals.DiscountAmount))
	assert.Equal(t, pricing.SourceAuto, q.Totals.DiscountSource)
	// 175 + 5 + 12 - 15
	assert.True(t, d("177").Equal(q.Totals.Total))
	assert.Equal(t, "Standard", q.Shipping.RuleName)
	assert.Nil(t, q.ManualCode)
	require.Len(t, q.Lines, 3)
	assert.Equal(t, "c1", q.Lines[0].CategoryID)
	assert.Equal(t, "Product p2", q.Lines[1].Name)
}

func TestQuote_InclusiveTaxNotAdded(t *testing.T) {
	f := newFixture(newTestProduct("p1", "c1", "112"))
	f.tax.quote = tax.Quote{Amount: d("12"), Inclusive: true}

	q, err := f.service(t).Quote(context.Background(), QuoteRequest{
		Items: []QuoteItem{{ProductID: "p1", Quantity: 1}},
	})
	require.NoError(t, err)
	assert.True(t, d("0").Equal(q.Totals.TaxAmount))
	assert.True(t, d("112").Equal(q.Totals.Total))
	assert.True(t, d("12").Equal(q.Tax.Amount))
}

func TestQuote_ManualCodeOverridesAuto(t *testing.T) {
	f := newFixture(newTestProduct("p1", "c1", "100"))
	f.discounts.rules = []pricing.Rule{{ID: "r1", Type: pricing.DiscountPercentage, Value: d("50")}}
	f.discounts.validation = &discount.Validation{Valid: true, CodeID: "m1", Amount: d("5")}

	q, err := f.service(t).Quote(context.Background(), QuoteRequest{
		Items:        []QuoteItem{{ProductID: "p1", Quantity: 1}},
		DiscountCode: "FIVE",
		UserID:       "u1",
	})
	require.NoError(t, err)
	assert.Equal(t, pricing.SourceManual, q.Totals.DiscountSource)
	assert.True(t, d("5").Equal(q.Totals.DiscountAmount))
	assert.True(t, d("95").Equal(q.Totals.Total))
	// The auto resolution is still reported.
	assert.True(t, d("50").Equal(q.Totals.AutoDiscount.TotalDiscount))

	require.Len(t, f.discounts.validated, 1)
	assert.Equal(t, "FIVE", f.discounts.validated[0].Code)
	assert.Equal(t, "u1", f.discounts.validated[0].UserID)
	assert.True(t, d("100").Equal(f.discounts.validated[0].Subtotal))
}

func TestQuote_InvalidManualCodeFallsBackToAuto(t *testing.T) {
	f := newFixture(newTestProduct("p1", "c1", "100"))
	f.discounts.rules = []pricing.Rule{{ID: "r1", Type: pricing.DiscountFixedAmount, Value: d("3")}}
	f.discounts.validation = &discount.Validation{Valid: false, Message: "This discount code has expired"}

	q, err := f.service(t).Quote(context.Background(), QuoteRequest{
		Items:        []QuoteItem{{ProductID: "p1", Quantity: 1}},
		DiscountCode: "OLD",
	})
	require.NoError(t, err)
	assert.Equal(t, pricing.SourceAuto, q.Totals.DiscountSource)
	assert.True(t, d("3").Equal(q.Totals.DiscountAmount))
	require.NotNil(t, q.ManualCode)
	assert.False(t, q.ManualCode.Valid)
}

func TestQuote_VariantPriceAndFreeformItem(t *testing.T) {
	p := newTestProduct("shirt", "apparel", "20")
	p.Variants = []product.Variant{{
		ID:      "shirt-xl",
		Name:    "XL",
		SKU:     "SHIRT-XL",
		Price:   dp("22.5"),
		Options: map[string]string{"size": "XL"},
	}}
	f := newFixture(p)

	q, err := f.service(t).Quote(context.Background(), QuoteRequest{
		Items: []QuoteItem{
			{ProductID: "shirt", VariantID: "shirt-xl", Quantity: 2},
			{Name: "Gift wrap", UnitPrice: dp("1.99"), Quantity: 1},
		},
	})
	require.NoError(t, err)
	assert.True(t, d("46.99").Equal(q.Totals.Subtotal))
	assert.Equal(t, "SHIRT-XL", q.Lines[0].SKU)
	assert.Equal(t, "XL", q.Lines[0].VariantName)
	assert.Equal(t, "Gift wrap", q.Lines[1].Name)
	assert.Empty(t, q.Lines[1].ProductID)
}

func TestQuote_FreeformOnlySkipsCatalog(t *testing.T) {
	f := newFixture()

	_, err := f.service(t).Quote(context.Background(), QuoteRequest{
		Items: []QuoteItem{{Name: "Custom engraving", UnitPrice: dp("15"), Quantity: 1}},
	})
	require.NoError(t, err)
	assert.Zero(t, f.products.calls)
}

func TestQuote_CollaboratorErrors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(f *fixture)
		code    string
		wantMsg string
	}{
		{
			name:    "products",
			mutate:  func(f *fixture) { f.products.getErr = errors.New("db down") },
			wantMsg: "get products",
		},
		{
			name:    "auto-apply",
			mutate:  func(f *fixture) { f.discounts.autoErr = errors.New("db down") },
			wantMsg: "auto-apply rules",
		},
		{
			name:    "shipping",
			mutate:  func(f *fixture) { f.shipping.err = errors.New("db down") },
			wantMsg: "shipping",
		},
		{
			name:    "tax",
			mutate:  func(f *fixture) { f.tax.err = errors.New("db down") },
			wantMsg: "tax",
		},
		{
			name:    "discount validation",
			mutate:  func(f *fixture) { f.discounts.validErr = errors.New("db down") },
			code:    "X",
			wantMsg: "validate discount code",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(newTestProduct("p1", "c1", "10"))
			tt.mutate(f)

			_, err := f.service(t).Quote(context.Background(), QuoteRequest{
				Items:        []QuoteItem{{ProductID: "p1", Quantity: 1}},
				DiscountCode: tt.code,
			})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

// --- PlaceOrder ---

func TestPlaceOrder_InvalidRequest(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *PlaceOrderRequest)
		field  string
	}{
		{
			name:   "missing customer name",
			mutate: func(r *PlaceOrderRequest) { r.Customer.Name = "" },
			field:  "PlaceOrderRequest.Customer.Name",
		},
		{
			name:   "bad email",
			mutate: func(r *PlaceOrderRequest) { r.Customer.Email = "not-an-email" },
			field:  "PlaceOrderRequest.Customer.Email",
		},
		{
			name:   "missing city",
			mutate: func(r *PlaceOrderRequest) { r.Shipping.City = "" },
			field:  "PlaceOrderRequest.Shipping.City",
		},
		{
			name:   "incomplete billing address",
			mutate: func(r *PlaceOrderRequest) { r.Billing = &Address{City: "Cebu"} },
			field:  "PlaceOrderRequest.Billing.Line",
		},
		{
			name:   "unknown payment method",
			mutate: func(r *PlaceOrderRequest) { r.PaymentMethod = "BARTER" },
			field:  "PlaceOrderRequest.PaymentMethod",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(newTestProduct("p1", "c1", "10"))
			req := validPlaceRequest(QuoteItem{ProductID: "p1", Quantity: 1})
			tt.mutate(&req)

			_, err := f.service(t).PlaceOrder(context.Background(), req)

			var reqErr *InvalidRequestError
			require.ErrorAs(t, err, &reqErr)
			assert.Equal(t, tt.field, reqErr.Field)
			assert.Nil(t, f.orders.lastOrder)
		})
	}
}

func TestPlaceOrder_NoDiscount(t *testing.T) {
	f := newFixture(newTestProduct("p1", "c1", "10.00"), newTestProduct("p2", "c2", "20.00"))
	f.shipping.quote = shipping.Quote{Fee: d("4.5")}

	result, err := f.service(t).PlaceOrder(context.Background(), validPlaceRequest(
		QuoteItem{ProductID: "p1", Quantity: 2},
		QuoteItem{ProductID: "p2", Quantity: 1},
	))
	require.NoError(t, err)

	o := f.orders.lastOrder
	require.NotNil(t, o)
	assert.Same(t, o, result.Order)
	assert.True(t, d("40").Equal(o.Subtotal))
	assert.True(t, d("44.5").Equal(o.Total))
	assert.True(t, decimal.Zero.Equal(o.DiscountAmount))
	assert.Empty(t, o.DiscountCodeID)
	assert.Equal(t, pricing.SourceNone, o.DiscountSource)
	assert.Equal(t, StatusPending, o.Status)
	assert.Equal(t, PaymentPending, o.PaymentStatus)
	assert.Equal(t, PaymentCashOnDelivery, o.PaymentMethod)
	assert.Equal(t, DefaultCountry, o.Shipping.Country)
	assert.Regexp(t, regexp.MustCompile(`^ORD-20250309-[0-9A-F]{6}$`), o.Number)

	require.Len(t, o.Items, 2)
	assert.Equal(t, "Product p1", o.Items[0].ProductName)
	assert.Equal(t, "SKU-p1", o.Items[0].SKU)
	assert.Equal(t, "p1.jpg", o.Items[0].Image)
	assert.True(t, d("20").Equal(o.Items[0].Subtotal))

	require.Len(t, o.History, 1)
	assert.Equal(t, StatusPending, o.History[0].To)
	assert.Equal(t, "Order created", o.History[0].Note)
}

func TestPlaceOrder_ManualCodeRecorded(t *testing.T) {
	f := newFixture(newTestProduct("p1", "c1", "10.00"))
	f.discounts.validation = &discount.Validation{Valid: true, CodeID: "code-1", Amount: d("2.5")}

	req := validPlaceRequest(QuoteItem{ProductID: "p1", Quantity: 3})
	req.DiscountCode = "SAVE"
	req.PaymentMethod = PaymentBankTransfer

	_, err := f.service(t).PlaceOrder(context.Background(), req)
	require.NoError(t, err)

	o := f.orders.lastOrder
	assert.Equal(t, "code-1", o.DiscountCodeID)
	assert.Equal(t, pricing.SourceManual, o.DiscountSource)
	assert.True(t, d("27.5").Equal(o.Total))
	assert.Equal(t, PaymentBankTransfer, o.PaymentMethod)
}

func TestPlaceOrder_AutoRuleRecorded(t *testing.T) {
	f := newFixture(newTestProduct("p1", "c1", "10.00"))
	f.discounts.rules = []pricing.Rule{{ID: "auto-1", Type: pricing.DiscountFixedAmount, Value: d("1")}}

	_, err := f.service(t).PlaceOrder(context.Background(), validPlaceRequest(QuoteItem{ProductID: "p1", Quantity: 2}))
	require.NoError(t, err)

	o := f.orders.lastOrder
	assert.Equal(t, "auto-1", o.DiscountCodeID)
	assert.True(t, d("18").Equal(o.Total))
}

func TestPlaceOrder_AutoRuleBelowMinimumNotRecorded(t *testing.T) {
	f := newFixture(newTestProduct("p1", "c1", "10.00"))
	f.discounts.rules = []pricing.Rule{{
		ID:                 "auto-1",
		Type:               pricing.DiscountFixedAmount,
		Value:              d("1"),
		MinimumOrderAmount: dp("100"),
	}}

	_, err := f.service(t).PlaceOrder(context.Background(), validPlaceRequest(QuoteItem{ProductID: "p1", Quantity: 2}))
	require.NoError(t, err)
	assert.Empty(t, f.orders.lastOrder.DiscountCodeID)
	assert.True(t, d("20").Equal(f.orders.lastOrder.Total))
}

func TestPlaceOrder_InvalidDiscountCode(t *testing.T) {
	f := newFixture(newTestProduct("p1", "c1", "10.00"))
	f.discounts.validation = &discount.Validation{Valid: false, Message: "Invalid discount code"}

	req := validPlaceRequest(QuoteItem{ProductID: "p1", Quantity: 1})
	req.DiscountCode = "BOGUS"

	_, err := f.service(t).PlaceOrder(context.Background(), req)
	require.ErrorIs(t, err, ErrInvalidDiscountCode)

	var codeErr *DiscountCodeError
	require.ErrorAs(t, err, &codeErr)
	assert.Equal(t, "Invalid discount code", codeErr.Message)
	assert.Nil(t, f.orders.lastOrder)
}

func TestPlaceOrder_DiscountFlooredAtZero(t *testing.T) {
	f := newFixture(newTestProduct("p1", "c1", "10.00"))
	f.discounts.validation = &discount.Validation{Valid: true, CodeID: "huge", Amount: d("999")}

	req := validPlaceRequest(QuoteItem{ProductID: "p1", Quantity: 1})
	req.DiscountCode = "HUGE"

	result, err := f.service(t).PlaceOrder(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, decimal.Zero.Equal(result.Order.Total))
	assert.True(t, d("999").Equal(result.Order.DiscountAmount))
}

func TestPlaceOrder_OrderCreateError(t *testing.T) {
	f := newFixture(newTestProduct("p1", "c1", "10"))
	f.orders.err = errors.New("db write failed")

	_, err := f.service(t).PlaceOrder(context.Background(), validPlaceRequest(QuoteItem{ProductID: "p1", Quantity: 1}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create order")
}

func TestNewNumber(t *testing.T) {
	now := time.Date(2024, 12, 27, 23, 59, 0, 0, time.UTC)
	a, b := NewNumber(now), NewNumber(now)

	assert.Regexp(t, `^ORD-20241227-[0-9A-F]{6}$`, a)
	assert.NotEqual(t, a, b)
}
