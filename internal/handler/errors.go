package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront-pricing/internal/domain/discount"
	"github.com/xenking/storefront-pricing/internal/domain/order"
	"github.com/xenking/storefront-pricing/internal/domain/pricing"
	"github.com/xenking/storefront-pricing/pkg/httpmiddleware"
)

// writeError maps domain errors to API error responses. Anything unknown is
// logged and reported as 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		decErr     *decodeError
		reqErr     *order.InvalidRequestError
		itemErr    *pricing.InvalidItemError
		productErr *order.ProductNotFoundError
		variantErr *order.VariantNotFoundError
		codeErr    *order.DiscountCodeError
	)
	switch {
	case errors.As(err, &decErr):
		httpmiddleware.WriteError(w, http.StatusBadRequest, decErr.Error())
	case errors.Is(err, pricing.ErrNoItems):
		httpmiddleware.WriteError(w, http.StatusBadRequest, pricing.ErrNoItems.Error())
	case errors.As(err, &reqErr):
		httpmiddleware.WriteError(w, http.StatusBadRequest, reqErr.Error())
	case errors.As(err, &itemErr):
		httpmiddleware.WriteError(w, http.StatusUnprocessableEntity, itemErr.Error())
	case errors.As(err, &productErr):
		httpmiddleware.WriteError(w, http.StatusUnprocessableEntity, productErr.Error())
	case errors.As(err, &variantErr):
		httpmiddleware.WriteError(w, http.StatusUnprocessableEntity, variantErr.Error())
	case errors.As(err, &codeErr):
		httpmiddleware.WriteError(w, http.StatusUnprocessableEntity, codeErr.Message)
	case errors.Is(err, discount.ErrInvalidCode):
		httpmiddleware.WriteError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, discount.ErrDuplicateCode):
		httpmiddleware.WriteError(w, http.StatusConflict, discount.ErrDuplicateCode.Error())
	default:
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
		httpmiddleware.WriteError(w, http.StatusInternalServerError, "internal server error")
	}
}
