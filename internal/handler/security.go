package handler

import (
	"context"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront-pricing/internal/domain/auth"
	"github.com/xenking/storefront-pricing/pkg/httpmiddleware"
)

// APIKeyHeader carries the client API key.
const APIKeyHeader = "api_key"

type keyInfoKey struct{}

// KeyInfoFromContext returns the API key that authenticated the request.
func KeyInfoFromContext(ctx context.Context) (*auth.APIKeyInfo, bool) {
	info, ok := ctx.Value(keyInfoKey{}).(*auth.APIKeyInfo)
	return info, ok
}

func (h *Handler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		info, err := h.auth.Authenticate(ctx, r.Header.Get(APIKeyHeader))
		if err != nil {
			if errors.Is(err, auth.ErrUnauthorized) {
				httpmiddleware.WriteError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			zctx.From(ctx).Error("Authentication failed", zap.Error(err))
			httpmiddleware.WriteError(w, http.StatusInternalServerError, "internal server error")
			return
		}

		ctx = zctx.Base(ctx, zctx.From(ctx).With(zap.String("api_key", info.Name)))
		next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, keyInfoKey{}, info)))
	})
}

func requireScope(scope string) httpmiddleware.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			info, ok := KeyInfoFromContext(r.Context())
			if !ok || !info.HasScope(scope) {
				httpmiddleware.WriteError(w, http.StatusForbidden, "missing scope "+scope)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
