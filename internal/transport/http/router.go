// Package httptransport assembles the HTTP surface: public verification
// routes, authenticated trust-pipeline routes, and operational endpoints.
package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	auditHandler "skillpass/internal/audit/handler"
	credentialHandler "skillpass/internal/credential/handler"
	gatewayHandler "skillpass/internal/gateway/handler"
	identityHandler "skillpass/internal/identity/handler"
	"skillpass/internal/platform/middleware"
)

// Handlers carries the per-feature handlers the router mounts.
type Handlers struct {
	Identity   *identityHandler.Handler
	Credential *credentialHandler.Handler
	Gateway    *gatewayHandler.Handler
	Audit      *auditHandler.Handler
}

// NewRouter wires middleware and routes. The credential lookup stays outside
// the auth group: third parties verify claims without an account. Audit
// queries additionally require the admin role.
func NewRouter(h Handlers, validator middleware.JWTValidator, logger *slog.Logger, healthz http.HandlerFunc) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.ClientMetadata)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", healthz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		// Public verification gateway.
		h.Gateway.Register(r)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth(validator, logger))
			r.Use(middleware.ContentTypeJSON)

			h.Identity.Register(r)
			h.Credential.Register(r)

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireRole("admin", logger))
				h.Audit.Register(r)
			})
		})
	})

	return r
}
