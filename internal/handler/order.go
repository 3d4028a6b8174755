package handler

import (
	"net/http"
	"time"

	"github.com/go-faster/jx"

	"github.com/xenking/storefront-pricing/internal/domain/order"
)

// PlaceOrder prices the cart and persists it as a new order.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req order.PlaceOrderRequest
	err := decodeObject(w, r, h.maxBody, func(d *jx.Decoder, key string) error {
		var (
			err    error
			method string
		)
		switch key {
		case "user_id":
			req.UserID, err = optStr(d)
		case "customer":
			err = d.Obj(func(d *jx.Decoder, key string) error {
				var err error
				switch key {
				case "name":
					req.Customer.Name, err = optStr(d)
				case "email":
					req.Customer.Email, err = optStr(d)
				case "phone":
					req.Customer.Phone, err = optStr(d)
				default:
					err = d.Skip()
				}
				return err
			})
		case "shipping_address":
			err = address(d, &req.Shipping)
		case "billing_address":
			if d.Next() == jx.Null {
				return d.Null()
			}
			req.Billing = &order.Address{}
			err = address(d, req.Billing)
		case "payment_method":
			method, err = optStr(d)
			req.PaymentMethod = order.PaymentMethod(method)
		case "notes":
			req.Notes, err = optStr(d)
		case "internal_notes":
			req.InternalNotes, err = optStr(d)
		case "items":
			req.Items, err = quoteItems(d)
		case "discount_code":
			req.DiscountCode, err = optStr(d)
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	if info, ok := KeyInfoFromContext(r.Context()); ok {
		req.ChangedBy = info.Name
	}

	res, err := h.orders.PlaceOrder(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeOrder(e, res.Order) })
}

func address(d *jx.Decoder, a *order.Address) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "line":
			a.Line, err = optStr(d)
		case "city":
			a.City, err = optStr(d)
		case "state":
			a.State, err = optStr(d)
		case "zip":
			a.Zip, err = optStr(d)
		case "country":
			a.Country, err = optStr(d)
		default:
			err = d.Skip()
		}
		return err
	})
}

func encodeAddress(e *jx.Encoder, a *order.Address) {
	if a == nil {
		e.Null()
		return
	}
	e.ObjStart()
	e.FieldStart("line")
	e.Str(a.Line)
	e.FieldStart("city")
	e.Str(a.City)
	e.FieldStart("state")
	e.Str(a.State)
	e.FieldStart("zip")
	e.Str(a.Zip)
	e.FieldStart("country")
	e.Str(a.Country)
	e.ObjEnd()
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(o.ID)
	e.FieldStart("order_number")
	e.Str(o.Number)
	e.FieldStart("user_id")
	e.Str(o.UserID)
	e.FieldStart("status")
	e.Str(string(o.Status))
	e.FieldStart("payment_status")
	e.Str(string(o.PaymentStatus))
	e.FieldStart("payment_method")
	e.Str(string(o.PaymentMethod))

	e.FieldStart("customer")
	e.ObjStart()
	e.FieldStart("name")
	e.Str(o.Customer.Name)
	e.FieldStart("email")
	e.Str(o.Customer.Email)
	e.FieldStart("phone")
	e.Str(o.Customer.Phone)
	e.ObjEnd()

	e.FieldStart("shipping_address")
	encodeAddress(e, &o.Shipping)
	e.FieldStart("billing_address")
	encodeAddress(e, o.Billing)

	e.FieldStart("items")
	e.ArrStart()
	for _, it := range o.Items {
		e.ObjStart()
		e.FieldStart("product_id")
		e.Str(it.ProductID)
		e.FieldStart("product_name")
		e.Str(it.ProductName)
		e.FieldStart("sku")
		e.Str(it.SKU)
		e.FieldStart("image")
		e.Str(it.Image)
		e.FieldStart("variant_id")
		e.Str(it.VariantID)
		e.FieldStart("variant_name")
		e.Str(it.VariantName)
		e.FieldStart("variant_options")
		strObj(e, it.VariantOptions)
		e.FieldStart("unit_price")
		money(e, it.UnitPrice)
		e.FieldStart("quantity")
		e.Int(it.Quantity)
		e.FieldStart("subtotal")
		money(e, it.Subtotal)
		e.ObjEnd()
	}
	e.ArrEnd()

	e.FieldStart("subtotal")
	money(e, o.Subtotal)
	e.FieldStart("shipping_cost")
	money(e, o.ShippingCost)
	e.FieldStart("tax_amount")
	money(e, o.TaxAmount)
	e.FieldStart("discount_amount")
	money(e, o.DiscountAmount)
	e.FieldStart("total")
	money(e, o.Total)
	e.FieldStart("discount_source")
	e.Str(string(o.DiscountSource))
	e.FieldStart("discount_code_id")
	if o.DiscountCodeID == "" {
		e.Null()
	} else {
		e.Str(o.DiscountCodeID)
	}
	e.FieldStart("notes")
	e.Str(o.Notes)

	e.FieldStart("history")
	e.ArrStart()
	for _, h := range o.History {
		e.ObjStart()
		e.FieldStart("from")
		e.Str(string(h.From))
		e.FieldStart("to")
		e.Str(string(h.To))
		e.FieldStart("note")
		e.Str(h.Note)
		e.FieldStart("changed_by")
		e.Str(h.ChangedBy)
		e.FieldStart("created_at")
		e.Str(h.CreatedAt.UTC().Format(time.RFC3339))
		e.ObjEnd()
	}
	e.ArrEnd()

	e.FieldStart("created_at")
	e.Str(o.CreatedAt.UTC().Format(time.RFC3339))
	e.ObjEnd()
}
