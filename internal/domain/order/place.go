package order

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/xenking/storefront-pricing/internal/domain/pricing"
)

// InvalidRequestError reports the first field of a PlaceOrderRequest that
// failed validation.
type InvalidRequestError struct {
	Field string
	Rule  string
}

func (e *InvalidRequestError) Error() string {
	return fmt.Sprintf("field %s failed %q validation", e.Field, e.Rule)
}

// PlaceOrderRequest holds the input for placing an order.
type PlaceOrderRequest struct {
	UserID        string
	Customer      Customer
	Shipping      Address
	Billing       *Address
	PaymentMethod PaymentMethod `validate:"omitempty,oneof=CASH_ON_DELIVERY CREDIT_CARD DEBIT_CARD BANK_TRANSFER DIGITAL_WALLET OTHER"`
	Notes         string        `validate:"max=2000"`
	InternalNotes string        `validate:"max=2000"`
	Items         []QuoteItem
	DiscountCode  string
	// ChangedBy is recorded on the initial status history entry.
	ChangedBy string
}

// PlaceOrderResult holds the output of a successfully placed order.
type PlaceOrderResult struct {
	Order *Order
	Quote *Quote
}

// PlaceOrder validates the request, prices the cart and persists the order.
// A manual discount code that does not validate rejects the order with a
// *DiscountCodeError.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (_ *PlaceOrderResult, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.PlaceOrder")
	defer func() {
		if rerr != nil {
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
		}
		span.End()
	}()

	if err := s.validate.StructCtx(ctx, req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return nil, &InvalidRequestError{Field: verrs[0].Namespace(), Rule: verrs[0].Tag()}
		}
		return nil, errors.Wrap(err, "validate request")
	}

	q, err := s.Quote(ctx, QuoteRequest{
		Items:        req.Items,
		DiscountCode: req.DiscountCode,
		UserID:       req.UserID,
	})
	if err != nil {
		return nil, err
	}
	if q.ManualCode != nil && !q.ManualCode.Valid {
		return nil, &DiscountCodeError{Code: req.DiscountCode, Message: q.ManualCode.Message}
	}

	now := s.now().UTC()
	o := &Order{
		ID:             uuid.NewString(),
		Number:         NewNumber(now),
		UserID:         req.UserID,
		Status:         StatusPending,
		PaymentStatus:  PaymentPending,
		PaymentMethod:  req.PaymentMethod,
		Customer:       req.Customer,
		Shipping:       req.Shipping,
		Billing:        req.Billing,
		Subtotal:       q.Totals.Subtotal,
		ShippingCost:   q.Totals.ShippingCost,
		TaxAmount:      q.Totals.TaxAmount,
		DiscountAmount: q.Totals.DiscountAmount,
		Total:          q.Totals.Total,
		DiscountSource: q.Totals.DiscountSource,
		DiscountCodeID: appliedDiscountID(q),
		Notes:          req.Notes,
		InternalNotes:  req.InternalNotes,
		CreatedAt:      now,
	}
	if o.PaymentMethod == "" {
		o.PaymentMethod = PaymentCashOnDelivery
	}
	if o.Shipping.Country == "" {
		o.Shipping.Country = DefaultCountry
	}

	o.Items = make([]OrderItem, len(q.Lines))
	for i, l := range q.Lines {
		o.Items[i] = OrderItem{
			ProductID:      l.ProductID,
			ProductName:    l.Name,
			SKU:            l.SKU,
			Image:          l.Image,
			VariantID:      l.VariantID,
			VariantName:    l.VariantName,
			VariantOptions: l.VariantOptions,
			UnitPrice:      l.UnitPrice,
			Quantity:       l.Quantity,
			Subtotal:       l.Total().Round(2),
		}
	}
	o.History = []StatusChange{{
		To:        StatusPending,
		Note:      "Order created",
		ChangedBy: req.ChangedBy,
		CreatedAt: now,
	}}

	if err := s.orders.Create(ctx, o); err != nil {
		return nil, errors.Wrap(err, "create order")
	}

	s.placed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("discount_source", string(o.DiscountSource)),
		attribute.String("payment_method", string(o.PaymentMethod)),
	))
	span.SetAttributes(attribute.String("order.number", o.Number))
	zctx.From(ctx).Info("Order placed",
		zap.String("order_id", o.ID),
		zap.String("number", o.Number),
		zap.Stringer("total", o.Total),
	)

	return &PlaceOrderResult{Order: o, Quote: q}, nil
}

// appliedDiscountID returns the id of the discount code whose amount made it
// into the totals.
func appliedDiscountID(q *Quote) string {
	switch q.Totals.DiscountSource {
	case pricing.SourceManual:
		return q.ManualCode.CodeID
	case pricing.SourceAuto:
		if r := q.Totals.AutoDiscount.Rule; r != nil {
			return r.ID
		}
	}
	return ""
}

// NewNumber returns a human-readable order number: ORD-YYYYMMDD-XXXXXX.
func NewNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
	return "ORD-" + now.Format("20060102") + "-" + suffix
}
