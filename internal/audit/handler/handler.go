package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"skillpass/internal/audit"
	dErrors "skillpass/pkg/domain-errors"
	"skillpass/pkg/platform/httputil"
	"skillpass/pkg/requestcontext"
)

// Fetcher is the query side of the audit recorder.
type Fetcher interface {
	Fetch(ctx context.Context, filter audit.Filter) ([]audit.Entry, error)
}

// Handler serves compliance queries over the audit trail. Mount behind the
// admin role: entries reference PII-touching operations.
type Handler struct {
	fetcher Fetcher
	logger  *slog.Logger
}

func New(fetcher Fetcher, logger *slog.Logger) *Handler {
	return &Handler{fetcher: fetcher, logger: logger}
}

// Register mounts audit endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/audit/entries", h.HandleFetch)
}

// EntryResponse is the wire shape of one audit entry.
type EntryResponse struct {
	ActorID      string            `json:"actor_id,omitempty"`
	Action       string            `json:"action"`
	ResourceType string            `json:"resource_type"`
	ResourceID   string            `json:"resource_id,omitempty"`
	PIITypes     []audit.PIIType   `json:"pii_types,omitempty"`
	Purpose      string            `json:"purpose,omitempty"`
	ClientIP     string            `json:"client_ip,omitempty"`
	UserAgent    string            `json:"user_agent,omitempty"`
	Success      bool              `json:"success"`
	ErrorMessage string            `json:"error_message,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	Timestamp    time.Time         `json:"timestamp"`
}

// HandleFetch handles GET /v1/audit/entries. Filters arrive as query
// parameters; absent parameters mean "any".
func (h *Handler) HandleFetch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	filter, err := filterFromQuery(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	entries, err := h.fetcher.Fetch(ctx, filter)
	if err != nil {
		h.logger.ErrorContext(ctx, "audit fetch failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, dErrors.Wrap(dErrors.CodeInternal, "fetch audit entries", err))
		return
	}

	out := make([]EntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, EntryResponse{
			ActorID:      e.ActorID,
			Action:       e.Action,
			ResourceType: e.ResourceType,
			ResourceID:   e.ResourceID,
			PIITypes:     e.PIITypes,
			Purpose:      e.Purpose,
			ClientIP:     e.ClientIP,
			UserAgent:    e.UserAgent,
			Success:      e.Success,
			ErrorMessage: e.ErrorMessage,
			Metadata:     e.Metadata,
			Timestamp:    e.Timestamp,
		})
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"entries": out})
}

func filterFromQuery(r *http.Request) (audit.Filter, error) {
	q := r.URL.Query()
	filter := audit.Filter{
		ActorID:      q.Get("actor_id"),
		Action:       q.Get("action"),
		ResourceType: q.Get("resource_type"),
		ResourceID:   q.Get("resource_id"),
		PIIType:      audit.PIIType(q.Get("pii_type")),
	}

	if v := q.Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return audit.Filter{}, dErrors.New(dErrors.CodeInvalidInput, "from must be RFC 3339")
		}
		filter.From = t
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return audit.Filter{}, dErrors.New(dErrors.CodeInvalidInput, "to must be RFC 3339")
		}
		filter.To = t
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return audit.Filter{}, dErrors.New(dErrors.CodeInvalidInput, "limit must be a positive integer")
		}
		filter.Limit = n
	}
	return filter, nil
}
