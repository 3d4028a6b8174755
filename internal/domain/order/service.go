package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/storefront-pricing/internal/domain/discount"
	"github.com/xenking/storefront-pricing/internal/domain/pricing"
	"github.com/xenking/storefront-pricing/internal/domain/product"
	"github.com/xenking/storefront-pricing/internal/domain/shipping"
	"github.com/xenking/storefront-pricing/internal/domain/tax"
)

const instrumentationName = "github.com/xenking/storefront-pricing/internal/domain/order"

// ErrInvalidDiscountCode is returned when an order is placed with a discount
// code that does not validate.
var ErrInvalidDiscountCode = errors.New("invalid discount code")

// ProductNotFoundError indicates a requested product does not exist.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}

// VariantNotFoundError indicates a requested variant does not belong to the
// product.
type VariantNotFoundError struct {
	ProductID string
	VariantID string
}

func (e *VariantNotFoundError) Error() string {
	return fmt.Sprintf("variant %s not found for product %s", e.VariantID, e.ProductID)
}

// DiscountCodeError carries the rejection message of a manual discount code.
type DiscountCodeError struct {
	Code    string
	Message string
}

func (e *DiscountCodeError) Error() string {
	return fmt.Sprintf("discount code %q: %s", e.Code, e.Message)
}

func (e *DiscountCodeError) Unwrap() error { return ErrInvalidDiscountCode }

// Discounts resolves automatic rules and validates manual codes.
type Discounts interface {
	AutoApply(ctx context.Context) ([]pricing.Rule, error)
	Validate(ctx context.Context, req discount.ValidateRequest) (*discount.Validation, error)
}

// ShippingCalculator quotes shipping for an order.
type ShippingCalculator interface {
	Calculate(ctx context.Context, subtotal decimal.Decimal, productIDs []string) (*shipping.Quote, error)
}

// TaxCalculator quotes tax for an order.
type TaxCalculator interface {
	Calculate(ctx context.Context, subtotal decimal.Decimal, productIDs []string) (*tax.Quote, error)
}

var (
	_ Discounts          = (*discount.Service)(nil)
	_ ShippingCalculator = (*shipping.Service)(nil)
	_ TaxCalculator      = (*tax.Service)(nil)
)

// Deps lists the collaborators of a Service. Nil providers fall back to
// no-op telemetry.
type Deps struct {
	Products  product.Repository
	Discounts Discounts
	Shipping  ShippingCalculator
	Tax       TaxCalculator
	Orders    Repository

	MeterProvider  metric.MeterProvider
	TracerProvider trace.TracerProvider
}

// Service prices carts and places orders.
type Service struct {
	products  product.Repository
	discounts Discounts
	shipping  ShippingCalculator
	tax       TaxCalculator
	orders    Repository
	validate  *validator.Validate
	now       func() time.Time

	tracer        trace.Tracer
	quotes        metric.Int64Counter
	quoteDuration metric.Float64Histogram
	placed        metric.Int64Counter
}

// NewService creates an order Service with the required domain dependencies.
func NewService(deps Deps) (*Service, error) {
	mp := deps.MeterProvider
	if mp == nil {
		mp = metricnoop.NewMeterProvider()
	}
	tp := deps.TracerProvider
	if tp == nil {
		tp = tracenoop.NewTracerProvider()
	}

	meter := mp.Meter(instrumentationName)
	quotes, err := meter.Int64Counter("pricing.quotes",
		metric.WithDescription("Number of priced carts by discount source"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "quotes counter")
	}
	quoteDuration, err := meter.Float64Histogram("pricing.quote.duration",
		metric.WithDescription("Time spent pricing a cart"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "quote duration histogram")
	}
	placed, err := meter.Int64Counter("orders.placed",
		metric.WithDescription("Number of placed orders"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "placed counter")
	}

	return &Service{
		products:      deps.Products,
		discounts:     deps.Discounts,
		shipping:      deps.Shipping,
		tax:           deps.Tax,
		orders:        deps.Orders,
		validate:      validator.New(validator.WithRequiredStructEnabled()),
		now:           time.Now,
		tracer:        tp.Tracer(instrumentationName),
		quotes:        quotes,
		quoteDuration: quoteDuration,
		placed:        placed,
	}, nil
}

// QuoteItem is a requested cart line. Catalog items are priced from the
// product catalog; freeform items (empty ProductID) carry their own name and
// unit price.
type QuoteItem struct {
	ProductID string
	VariantID string
	Quantity  int

	Name      string
	UnitPrice *decimal.Decimal
}

// QuoteRequest holds the input for pricing a cart.
type QuoteRequest struct {
	Items        []QuoteItem
	DiscountCode string
	UserID       string
}

// Line is a priced cart line with the catalog details needed to persist it.
type Line struct {
	pricing.LineItem
	Name           string
	SKU            string
	Image          string
	VariantName    string
	VariantOptions map[string]string
}

// Quote is a fully priced cart.
type Quote struct {
	Lines    []Line
	Totals   pricing.Totals
	Shipping shipping.Quote
	Tax      tax.Quote
	// ManualCode is the validation outcome of the requested discount code,
	// nil when no code was given.
	ManualCode *discount.Validation
}

// Quote prices a cart: it resolves catalog prices, loads automatic discount
// rules, shipping and tax concurrently, validates the manual code and runs
// the pricing pipeline. An invalid manual code is reported in ManualCode and
// the automatic discount applies instead.
func (s *Service) Quote(ctx context.Context, req QuoteRequest) (_ *Quote, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.Quote")
	defer func() {
		if rerr != nil {
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
		}
		span.End()
	}()
	start := s.now()

	lines, err := s.resolveLines(ctx, req.Items)
	if err != nil {
		return nil, err
	}
	items := make([]pricing.LineItem, len(lines))
	for i, l := range lines {
		items[i] = l.LineItem
	}
	if err := pricing.ValidateItems(items); err != nil {
		return nil, err
	}

	subtotal := pricing.Subtotal(items)
	productIDs := distinctProductIDs(items)

	var (
		rules      []pricing.Rule
		shipQuote  *shipping.Quote
		taxQuote   *tax.Quote
		validation *discount.Validation
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		rules, err = s.discounts.AutoApply(gctx)
		if err != nil {
			return errors.Wrap(err, "auto-apply rules")
		}
		return nil
	})
	g.Go(func() error {
		var err error
		shipQuote, err = s.shipping.Calculate(gctx, subtotal, productIDs)
		if err != nil {
			return errors.Wrap(err, "shipping")
		}
		return nil
	})
	g.Go(func() error {
		var err error
		taxQuote, err = s.tax.Calculate(gctx, subtotal, productIDs)
		if err != nil {
			return errors.Wrap(err, "tax")
		}
		return nil
	})
	if req.DiscountCode != "" {
		g.Go(func() error {
			var err error
			validation, err = s.discounts.Validate(gctx, discount.ValidateRequest{
				Code:     req.DiscountCode,
				Subtotal: subtotal,
				UserID:   req.UserID,
			})
			if err != nil {
				return errors.Wrap(err, "validate discount code")
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	in := pricing.Input{
		Items:        items,
		Rules:        rules,
		ShippingCost: shipQuote.Fee,
		TaxAmount:    taxQuote.Payable(),
	}
	if validation != nil && validation.Valid {
		amount := validation.Amount
		in.ManualDiscount = &amount
	}
	totals := pricing.Price(in)

	attrs := metric.WithAttributes(attribute.String("discount_source", string(totals.DiscountSource)))
	s.quotes.Add(ctx, 1, attrs)
	s.quoteDuration.Record(ctx, s.now().Sub(start).Seconds(), attrs)
	span.SetAttributes(
		attribute.Int("order.items", len(items)),
		attribute.String("order.discount_source", string(totals.DiscountSource)),
		attribute.String("order.total", totals.Total.StringFixed(2)),
	)

	zctx.From(ctx).Debug("Cart priced",
		zap.Int("items", len(items)),
		zap.Stringer("subtotal", totals.Subtotal),
		zap.Stringer("total", totals.Total),
		zap.String("discount_source", string(totals.DiscountSource)),
	)

	return &Quote{
		Lines:      lines,
		Totals:     totals,
		Shipping:   *shipQuote,
		Tax:        *taxQuote,
		ManualCode: validation,
	}, nil
}

// resolveLines fetches catalog products in a single batch and builds priced
// lines in request order.
func (s *Service) resolveLines(ctx context.Context, reqItems []QuoteItem) ([]Line, error) {
	if len(reqItems) == 0 {
		return nil, pricing.ErrNoItems
	}

	ids := make([]string, 0, len(reqItems))
	seen := make(map[string]struct{}, len(reqItems))
	for i, item := range reqItems {
		if item.Quantity < 1 {
			return nil, &pricing.InvalidItemError{Index: i, Reason: "quantity must be greater than 0"}
		}
		if item.ProductID == "" {
			if item.Name == "" || item.UnitPrice == nil {
				return nil, &pricing.InvalidItemError{Index: i, Reason: "freeform item requires name and unit price"}
			}
			continue
		}
		if _, ok := seen[item.ProductID]; !ok {
			seen[item.ProductID] = struct{}{}
			ids = append(ids, item.ProductID)
		}
	}

	productMap := make(map[string]*product.Product, len(ids))
	if len(ids) > 0 {
		fetched, err := s.products.GetByIDs(ctx, ids)
		if err != nil {
			return nil, errors.Wrap(err, "get products")
		}
		for i := range fetched {
			productMap[fetched[i].ID] = &fetched[i]
		}
	}

	lines := make([]Line, len(reqItems))
	for i, item := range reqItems {
		if item.ProductID == "" {
			lines[i] = Line{
				LineItem: pricing.LineItem{UnitPrice: *item.UnitPrice, Quantity: item.Quantity},
				Name:     item.Name,
			}
			continue
		}

		p, ok := productMap[item.ProductID]
		if !ok {
			return nil, &ProductNotFoundError{ProductID: item.ProductID}
		}
		var v *product.Variant
		if item.VariantID != "" {
			if v, ok = p.Variant(item.VariantID); !ok {
				return nil, &VariantNotFoundError{ProductID: p.ID, VariantID: item.VariantID}
			}
		}

		l := Line{
			LineItem: pricing.LineItem{
				ProductID:  p.ID,
				VariantID:  item.VariantID,
				CategoryID: p.CategoryID,
				UnitPrice:  p.PriceOf(v),
				Quantity:   item.Quantity,
			},
			Name:  p.Name,
			SKU:   p.SKU,
			Image: p.Image.Thumbnail,
		}
		if v != nil {
			l.VariantName = v.Name
			l.VariantOptions = v.Options
			if v.SKU != "" {
				l.SKU = v.SKU
			}
		}
		lines[i] = l
	}
	return lines, nil
}

func distinctProductIDs(items []pricing.LineItem) []string {
	out := make([]string, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		if item.ProductID == "" {
			continue
		}
		if _, ok := seen[item.ProductID]; ok {
			continue
		}
		seen[item.ProductID] = struct{}{}
		out = append(out, item.ProductID)
	}
	return out
}
