package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/storefront-pricing/internal/domain/discount"
	"github.com/xenking/storefront-pricing/internal/domain/pricing"
)

// AutoApplyDiscounts lists the rules currently applied automatically, in
// evaluation order.
func (h *Handler) AutoApplyDiscounts(w http.ResponseWriter, r *http.Request) {
	rules, err := h.discounts.AutoApply(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for i := range rules {
			encodeRule(e, &rules[i])
		}
		e.ArrEnd()
	})
}

// ValidateDiscount checks a manually entered code against a subtotal.
// Rejections are reported in the body with 200, not as errors.
func (h *Handler) ValidateDiscount(w http.ResponseWriter, r *http.Request) {
	var req discount.ValidateRequest
	err := decodeObject(w, r, h.maxBody, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "code":
			req.Code, err = optStr(d)
		case "subtotal":
			req.Subtotal, err = decimalValue(d)
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

	v, err := h.discounts.Validate(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeValidation(e, v) })
}

// CreateDiscount stores a new discount code.
func (h *Handler) CreateDiscount(w http.ResponseWriter, r *http.Request) {
	c := discount.Code{Active: true, ShowBadge: true}
	err := decodeObject(w, r, h.maxBody, func(d *jx.Decoder, key string) error {
		var (
			err   error
			dtype string
		)
		switch key {
		case "code":
			c.Code, err = d.Str()
		case "description":
			c.Description, err = optStr(d)
		case "type":
			dtype, err = d.Str()
			c.Type = pricing.DiscountType(dtype)
		case "value":
			c.Value, err = decimalValue(d)
		case "minimum_order_amount":
			c.MinimumOrderAmount, err = optDecimal(d)
		case "maximum_discount":
			c.MaximumDiscount, err = optDecimal(d)
		case "applicable_products":
			c.ApplicableProducts, err = strList(d)
		case "applicable_variants":
			c.ApplicableVariants, err = strList(d)
		case "applicable_categories":
			c.ApplicableCategories, err = strList(d)
		case "is_active":
			c.Active, err = d.Bool()
		case "auto_apply":
			c.AutoApply, err = d.Bool()
		case "show_badge":
			c.ShowBadge, err = d.Bool()
		case "priority":
			c.Priority, err = d.Int()
		case "start_date":
			c.StartDate, err = optTime(d)
		case "end_date":
			c.EndDate, err = optTime(d)
		case "usage_limit":
			c.UsageLimit, err = d.Int()
		case "usage_limit_per_user":
			c.UsageLimitPerUser, err = d.Int()
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.discounts.Create(r.Context(), &c); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeCode(e, &c) })
}

func encodeCode(e *jx.Encoder, c *discount.Code) {
	e.ObjStart()
	encodeRuleFields(e, &c.Rule)
	e.FieldStart("is_active")
	e.Bool(c.Active)
	e.FieldStart("auto_apply")
	e.Bool(c.AutoApply)
	e.FieldStart("show_badge")
	e.Bool(c.ShowBadge)
	e.FieldStart("priority")
	e.Int(c.Priority)
	e.FieldStart("start_date")
	optTimeValue(e, c.StartDate)
	e.FieldStart("end_date")
	optTimeValue(e, c.EndDate)
	e.FieldStart("usage_limit")
	e.Int(c.UsageLimit)
	e.FieldStart("usage_limit_per_user")
	e.Int(c.UsageLimitPerUser)
	e.FieldStart("usage_count")
	e.Int(c.UsageCount)
	e.FieldStart("created_at")
	optTimeValue(e, &c.CreatedAt)
	e.ObjEnd()
}
