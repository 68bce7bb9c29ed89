package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"skillpass/internal/gateway"
	"skillpass/pkg/platform/httputil"
)

// Service defines the public lookup the transport consumes.
type Service interface {
	Lookup(ctx context.Context, identifier string) (gateway.PublicCredentialView, error)
}

// Handler serves the public, unauthenticated verification endpoint.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the public lookup. Never place this behind auth middleware:
// third-party verification without an account is the point of the endpoint.
func (h *Handler) Register(r chi.Router) {
	r.Get("/credentials/{identifier}", h.HandleLookup)
}

// HandleLookup handles GET /v1/credentials/{identifier}.
func (h *Handler) HandleLookup(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.Lookup(r.Context(), chi.URLParam(r, "identifier"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, view)
}
