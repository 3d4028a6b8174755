package handler

import (
	"net/http"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-pricing/internal/domain/discount"
	"github.com/xenking/storefront-pricing/internal/domain/order"
	"github.com/xenking/storefront-pricing/internal/domain/pricing"
	"github.com/xenking/storefront-pricing/internal/domain/shipping"
	"github.com/xenking/storefront-pricing/internal/domain/tax"
)

// Quote prices a cart without persisting anything.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	var req order.QuoteRequest
	err := decodeObject(w, r, h.maxBody, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "items":
			req.Items, err = quoteItems(d)
		case "discount_code":
			req.DiscountCode, err = optStr(d)
		case "user_id":
			req.UserID, err = optStr(d)
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	q, err := h.orders.Quote(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeQuote(e, q) })
}

// subtotalRequest is the body of the shipping and tax calculators.
type subtotalRequest struct {
	Subtotal   decimal.Decimal
	ProductIDs []string
}

func (h *Handler) decodeSubtotal(w http.ResponseWriter, r *http.Request) (*subtotalRequest, error) {
	var req subtotalRequest
	err := decodeObject(w, r, h.maxBody, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "subtotal":
			req.Subtotal, err = decimalValue(d)
		case "product_ids":
			req.ProductIDs, err = strList(d)
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// CalculateShipping quotes shipping for a subtotal and set of products.
func (h *Handler) CalculateShipping(w http.ResponseWriter, r *http.Request) {
	req, err := h.decodeSubtotal(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	q, err := h.shipping.Calculate(r.Context(), req.Subtotal, req.ProductIDs)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeShipping(e, q) })
}

// CalculateTax quotes tax for a subtotal and set of products.
func (h *Handler) CalculateTax(w http.ResponseWriter, r *http.Request) {
	req, err := h.decodeSubtotal(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	q, err := h.tax.Calculate(r.Context(), req.Subtotal, req.ProductIDs)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeTax(e, q) })
}

func quoteItems(d *jx.Decoder) ([]order.QuoteItem, error) {
	var items []order.QuoteItem
	err := d.Arr(func(d *jx.Decoder) error {
		var it order.QuoteItem
		err := d.Obj(func(d *jx.Decoder, key string) error {
			var err error
			switch key {
			case "product_id":
				it.ProductID, err = optStr(d)
			case "variant_id":
				it.VariantID, err = optStr(d)
			case "quantity":
				it.Quantity, err = d.Int()
			case "name":
				it.Name, err = optStr(d)
			case "unit_price":
				it.UnitPrice, err = optDecimal(d)
			default:
				err = d.Skip()
			}
			return err
		})
		items = append(items, it)
		return err
	})
	return items, err
}

func encodeQuote(e *jx.Encoder, q *order.Quote) {
	e.ObjStart()
	e.FieldStart("items")
	e.ArrStart()
	for _, l := range q.Lines {
		encodeLine(e, l)
	}
	e.ArrEnd()
	encodeTotals(e, q.Totals)
	e.FieldStart("shipping")
	encodeShipping(e, &q.Shipping)
	e.FieldStart("tax")
	encodeTax(e, &q.Tax)
	e.FieldStart("discount_code")
	if q.ManualCode == nil {
		e.Null()
	} else {
		encodeValidation(e, q.ManualCode)
	}
	e.ObjEnd()
}

func encodeLine(e *jx.Encoder, l order.Line) {
	e.ObjStart()
	e.FieldStart("product_id")
	e.Str(l.ProductID)
	e.FieldStart("variant_id")
	e.Str(l.VariantID)
	e.FieldStart("category_id")
	e.Str(l.CategoryID)
	e.FieldStart("name")
	e.Str(l.Name)
	e.FieldStart("sku")
	e.Str(l.SKU)
	e.FieldStart("image")
	e.Str(l.Image)
	e.FieldStart("variant_name")
	e.Str(l.VariantName)
	e.FieldStart("variant_options")
	strObj(e, l.VariantOptions)
	e.FieldStart("unit_price")
	money(e, l.UnitPrice)
	e.FieldStart("quantity")
	e.Int(l.Quantity)
	e.FieldStart("total")
	money(e, l.Total())
	e.ObjEnd()
}

// encodeTotals writes the totals fields into the current object.
func encodeTotals(e *jx.Encoder, t pricing.Totals) {
	e.FieldStart("subtotal")
	money(e, t.Subtotal)
	e.FieldStart("shipping_cost")
	money(e, t.ShippingCost)
	e.FieldStart("tax_amount")
	money(e, t.TaxAmount)
	e.FieldStart("discount_amount")
	money(e, t.DiscountAmount)
	e.FieldStart("total")
	money(e, t.Total)
	e.FieldStart("discount_source")
	e.Str(string(t.DiscountSource))

	e.FieldStart("auto_discount")
	auto := t.AutoDiscount
	if auto.Rule == nil {
		e.Null()
		return
	}
	e.ObjStart()
	e.FieldStart("rule")
	encodeRule(e, auto.Rule)
	e.FieldStart("amount")
	money(e, auto.TotalDiscount)
	e.FieldStart("meets_minimum")
	e.Bool(auto.MeetsMinimum)
	e.ObjEnd()
}

func encodeRule(e *jx.Encoder, r *pricing.Rule) {
	e.ObjStart()
	encodeRuleFields(e, r)
	e.ObjEnd()
}

func encodeRuleFields(e *jx.Encoder, r *pricing.Rule) {
	e.FieldStart("id")
	e.Str(r.ID)
	e.FieldStart("code")
	e.Str(r.Code)
	e.FieldStart("description")
	e.Str(r.Description)
	e.FieldStart("type")
	e.Str(string(r.Type))
	e.FieldStart("value")
	number(e, r.Value)
	e.FieldStart("minimum_order_amount")
	optMoney(e, r.MinimumOrderAmount)
	e.FieldStart("maximum_discount")
	optMoney(e, r.MaximumDiscount)
	e.FieldStart("applicable_products")
	strArr(e, r.ApplicableProducts)
	e.FieldStart("applicable_variants")
	strArr(e, r.ApplicableVariants)
	e.FieldStart("applicable_categories")
	strArr(e, r.ApplicableCategories)
}

func encodeShipping(e *jx.Encoder, q *shipping.Quote) {
	e.ObjStart()
	e.FieldStart("fee")
	money(e, q.Fee)
	e.FieldStart("is_free")
	e.Bool(q.IsFree)
	e.FieldStart("free_shipping_threshold")
	optMoney(e, q.FreeShippingThreshold)
	e.FieldStart("rule_name")
	e.Str(q.RuleName)
	e.FieldStart("message")
	e.Str(q.Message)
	e.ObjEnd()
}

func encodeTax(e *jx.Encoder, q *tax.Quote) {
	e.ObjStart()
	e.FieldStart("amount")
	money(e, q.Amount)
	e.FieldStart("rate")
	number(e, q.Rate)
	e.FieldStart("type")
	e.Str(string(q.Type))
	e.FieldStart("inclusive")
	e.Bool(q.Inclusive)
	e.FieldStart("rule_name")
	e.Str(q.RuleName)
	e.FieldStart("message")
	e.Str(q.Message)
	e.ObjEnd()
}

func encodeValidation(e *jx.Encoder, v *discount.Validation) {
	e.ObjStart()
	e.FieldStart("valid")
	e.Bool(v.Valid)
	e.FieldStart("code_id")
	e.Str(v.CodeID)
	e.FieldStart("code")
	e.Str(v.Code)
	e.FieldStart("type")
	e.Str(string(v.Type))
	e.FieldStart("value")
	number(e, v.Value)
	e.FieldStart("discount_amount")
	money(e, v.Amount)
	e.FieldStart("message")
	e.Str(v.Message)
	e.ObjEnd()
}
