package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"skillpass/internal/credential"
	"skillpass/pkg/domain"
	"skillpass/pkg/platform/httputil"
	"skillpass/pkg/requestcontext"
)

// Service defines the issuance operations the transport consumes.
type Service interface {
	Issue(ctx context.Context, req credential.IssueRequest) (*credential.Credential, error)
	Revoke(ctx context.Context, id domain.CredentialUUID, reason string) error
}

// Handler wires credential endpoints to the issuance engine.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts credential endpoints on the router. The revoke route
// shares its wildcard name with the public lookup: chi requires consistent
// param names at the same position.
func (h *Handler) Register(r chi.Router) {
	r.Post("/credentials", h.HandleIssue)
	r.Post("/credentials/{identifier}/revoke", h.HandleRevoke)
}

// IssueRequest is the wire shape of one issuance, typically sent by the
// course-completion flow.
type IssueRequest struct {
	IssuerID      string `json:"issuer_id"`
	SubjectID     string `json:"subject_id"`
	AchievementID string `json:"achievement_id"`

	AchievementName        map[string]string `json:"achievement_name"`
	AchievementDescription map[string]string `json:"achievement_description,omitempty"`

	Alignments []AlignmentRequest `json:"alignments,omitempty"`
	Score      *float64           `json:"score,omitempty"`
	Grade      string             `json:"grade,omitempty"`
	ValidDays  int                `json:"valid_days,omitempty"`

	Discoverable bool `json:"discoverable,omitempty"`
}

type AlignmentRequest struct {
	Framework   string `json:"framework"`
	Code        string `json:"code"`
	TargetLevel int    `json:"target_level,omitempty"`
}

// IssueResponse returns the issued credential's public identifiers and proof.
type IssueResponse struct {
	CredentialID string    `json:"credential_id"`
	URI          string    `json:"uri"`
	SerialNumber string    `json:"serial_number"`
	Status       string    `json:"status"`
	IssuanceDate time.Time `json:"issuance_date"`
}

// HandleIssue handles POST /v1/credentials.
func (h *Handler) HandleIssue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	req, ok := httputil.Decode[IssueRequest](w, r, h.logger)
	if !ok {
		return
	}

	domainReq, err := h.toDomain(req)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	cred, err := h.service.Issue(ctx, domainReq)
	if err != nil {
		h.logger.WarnContext(ctx, "credential issuance rejected",
			"request_id", requestcontext.RequestID(ctx),
			"subject_id", req.SubjectID,
			"achievement_id", req.AchievementID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "credential issued",
		"request_id", requestcontext.RequestID(ctx),
		"credential_id", cred.ID.String(),
		"serial_number", cred.SerialNumber,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	httputil.WriteJSON(w, http.StatusCreated, IssueResponse{
		CredentialID: cred.ID.String(),
		URI:          cred.URI,
		SerialNumber: cred.SerialNumber,
		Status:       string(cred.Status),
		IssuanceDate: cred.IssuanceDate,
	})
}

func (h *Handler) toDomain(req IssueRequest) (credential.IssueRequest, error) {
	issuerID, err := domain.ParseIssuerID(req.IssuerID)
	if err != nil {
		return credential.IssueRequest{}, err
	}
	subjectID, err := domain.ParseSubjectID(req.SubjectID)
	if err != nil {
		return credential.IssueRequest{}, err
	}
	achievementID, err := domain.ParseAchievementID(req.AchievementID)
	if err != nil {
		return credential.IssueRequest{}, err
	}

	alignments := make([]credential.CompetencyAlignment, 0, len(req.Alignments))
	for _, a := range req.Alignments {
		alignments = append(alignments, credential.CompetencyAlignment{
			Framework:   a.Framework,
			Code:        a.Code,
			TargetLevel: a.TargetLevel,
		})
	}

	var result *credential.Result
	if req.Score != nil || req.Grade != "" {
		result = &credential.Result{Grade: req.Grade}
		if req.Score != nil {
			result.Score = *req.Score
		}
	}

	return credential.IssueRequest{
		IssuerID:               issuerID,
		SubjectID:              subjectID,
		AchievementID:          achievementID,
		AchievementName:        req.AchievementName,
		AchievementDescription: req.AchievementDescription,
		Alignments:             alignments,
		Result:                 result,
		ValidFor:               time.Duration(req.ValidDays) * 24 * time.Hour,
		Discoverable:           req.Discoverable,
	}, nil
}

// RevokeRequest carries the mandatory revocation reason.
type RevokeRequest struct {
	Reason string `json:"reason"`
}

// HandleRevoke handles POST /v1/credentials/{identifier}/revoke.
func (h *Handler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := domain.ParseCredentialUUID(chi.URLParam(r, "identifier"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	req, ok := httputil.Decode[RevokeRequest](w, r, h.logger)
	if !ok {
		return
	}

	if err := h.service.Revoke(ctx, id, req.Reason); err != nil {
		h.logger.WarnContext(ctx, "credential revocation rejected",
			"request_id", requestcontext.RequestID(ctx),
			"credential_id", id.String(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "credential revoked",
		"request_id", requestcontext.RequestID(ctx),
		"credential_id", id.String(),
	)
	w.WriteHeader(http.StatusNoContent)
}
