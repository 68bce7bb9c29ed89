package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"skillpass/internal/evidence/liveness"
	"skillpass/internal/identity"
	"skillpass/pkg/domain"
	dErrors "skillpass/pkg/domain-errors"
	"skillpass/pkg/platform/httputil"
	"skillpass/pkg/requestcontext"
)

// Service defines the identity operations the transport consumes.
type Service interface {
	Verify(ctx context.Context, req identity.VerifyRequest) (identity.VerifyResult, error)
	CurrentRecord(ctx context.Context, subjectID domain.SubjectID) (identity.Record, error)
}

// Handler wires identity endpoints to the pipeline service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts identity endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/identity/verify", h.HandleVerify)
	r.Get("/identity/{subjectID}/status", h.HandleStatus)
}

// VerifyRequest is the wire shape of one verification attempt. The biometric
// and document samples arrive base64-encoded ([]byte round-trips through
// encoding/json that way).
type VerifyRequest struct {
	SubjectID       string `json:"subject_id"`
	NationalID      string `json:"national_id"`
	FullName        string `json:"full_name,omitempty"`
	DateOfBirth     string `json:"date_of_birth,omitempty"`
	BiometricType   string `json:"biometric_type"`
	BiometricSample []byte `json:"biometric_sample"`
	DocumentSample  []byte `json:"document_sample"`
}

// VerifyResponse reports the tagged pipeline outcome.
type VerifyResponse struct {
	Verified bool   `json:"verified"`
	Degraded bool   `json:"degraded,omitempty"`
	Stage    string `json:"stage,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// HandleVerify handles POST /v1/identity/verify.
func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	req, ok := httputil.Decode[VerifyRequest](w, r, h.logger)
	if !ok {
		return
	}

	subjectID, err := domain.ParseSubjectID(req.SubjectID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	result, err := h.service.Verify(ctx, identity.VerifyRequest{
		SubjectID:       subjectID,
		NationalID:      req.NationalID,
		FullName:        req.FullName,
		DateOfBirth:     req.DateOfBirth,
		BiometricType:   liveness.BiometricType(req.BiometricType),
		BiometricSample: req.BiometricSample,
		DocumentSample:  req.DocumentSample,
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "identity verification failed",
			"request_id", requestcontext.RequestID(ctx),
			"subject_id", subjectID.String(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "identity verification completed",
		"request_id", requestcontext.RequestID(ctx),
		"subject_id", subjectID.String(),
		"verified", result.Verified,
		"degraded", result.Degraded,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	httputil.WriteJSON(w, http.StatusOK, VerifyResponse{
		Verified: result.Verified,
		Degraded: result.Degraded,
		Stage:    string(result.Stage),
		Reason:   result.Reason,
	})
}

// StatusResponse is the read-only verification gate.
type StatusResponse struct {
	SubjectID  string     `json:"subject_id"`
	Status     string     `json:"status"`
	Degraded   bool       `json:"degraded,omitempty"`
	VerifiedAt *time.Time `json:"verified_at,omitempty"`
}

// HandleStatus handles GET /v1/identity/{subjectID}/status.
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	subjectID, err := domain.ParseSubjectID(chi.URLParam(r, "subjectID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	record, err := h.service.CurrentRecord(ctx, subjectID)
	if err != nil {
		if !dErrors.HasCode(err, dErrors.CodeNotFound) {
			h.logger.ErrorContext(ctx, "identity status read failed",
				"request_id", requestcontext.RequestID(ctx),
				"subject_id", subjectID.String(),
				"error", err,
			)
		}
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, StatusResponse{
		SubjectID:  subjectID.String(),
		Status:     string(record.Status),
		Degraded:   record.RegistryDegraded,
		VerifiedAt: record.VerifiedAt,
	})
}
