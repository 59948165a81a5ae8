// Package httptransport exposes the bridge over HTTP under
// /modules/stellarbridge.
package httptransport

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"stellarbridge/internal/platform/middleware"
)

const BasePath = "/modules/stellarbridge"

// NewRouter wires every route. gatherer serves /metrics; nil disables it.
func NewRouter(h *Handler, gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recovery(h.logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestTime)
	r.Use(middleware.Logger(h.logger))
	r.Use(chimw.Timeout(60 * time.Second))
	r.Use(middleware.Latency(h.metrics, routePattern))

	r.Get("/healthz", h.handleHealth)
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Route(BasePath, func(r chi.Router) {
		r.Post("/", h.handleCreate)
		r.Get("/installationaccount/balances/{assetCode}/{issuer}/", h.handleInstallationBalance)

		r.Group(func(r chi.Router) {
			r.Use(middleware.TenantID(h.logger))
			r.Use(middleware.RequireAPIKey(h.verifier, h.logger))

			r.Delete("/", h.handleDelete)
			r.Get("/trustlines/", h.handleListTrustLines)
			r.Put("/trustlines/{assetCode}/{issuer}/", h.handleAdjustTrustLine)
			r.Get("/trustlines/{assetCode}/{issuer}/", h.handleGetTrustLine)
			r.Put("/vault/{assetCode}", h.handleAdjustVault)
			r.Get("/vault/{assetCode}", h.handleGetVault)
			r.Get("/balances/{assetCode}", h.handleBalance)
			r.Get("/balances/{assetCode}/{issuer}/", h.handleBalanceByIssuer)
			r.Post("/payments/", h.handlePaymentEvent)
			r.Get("/payments/{journalEntryId}", h.handlePaymentStatus)
		})
	})

	return otelhttp.NewHandler(r, "stellarbridge",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}
