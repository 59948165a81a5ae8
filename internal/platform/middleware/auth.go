package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	dErrors "stellarbridge/pkg/domain-errors"
	"stellarbridge/pkg/platform/httputil"
	"stellarbridge/pkg/requestcontext"
)

// Header names used by the core-banking platform.
const (
	HeaderAPIKey   = "X-Stellar-Bridge-API-Key"
	HeaderTenantID = "X-Mifos-Platform-TenantId"
)

// APIKeyVerifier checks a tenant's bridge API key.
type APIKeyVerifier interface {
	VerifyAPIKey(ctx context.Context, apiKey, tenantID string) error
}

// TenantID places the tenant header in the request context. Requests without
// one are rejected.
func TenantID(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tenantID := strings.TrimSpace(r.Header.Get(HeaderTenantID))
			if tenantID == "" {
				logger.WarnContext(r.Context(), "request without tenant header",
					"request_id", GetRequestID(r.Context()),
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidConfiguration, "missing "+HeaderTenantID+" header"))
				return
			}
			next.ServeHTTP(w, r.WithContext(requestcontext.WithTenantID(r.Context(), tenantID)))
		})
	}
}

// RequireAPIKey verifies the bridge API key for the tenant already placed in
// the context by TenantID.
func RequireAPIKey(verifier APIKeyVerifier, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			tenantID := requestcontext.TenantID(ctx)
			apiKey := r.Header.Get(HeaderAPIKey)
			if err := verifier.VerifyAPIKey(ctx, apiKey, tenantID); err != nil {
				logger.WarnContext(ctx, "unauthorized bridge request",
					"tenant_id", tenantID,
					"request_id", GetRequestID(ctx),
				)
				httputil.WriteError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
