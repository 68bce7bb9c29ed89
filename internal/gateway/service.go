// Package gateway is the public, unauthenticated credential lookup. Third
// parties (an employer checking a claim, a browser resolving a credential
// URI) hit it without an account; it serves only the signed document bytes
// and the current status, nothing else.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"

	"skillpass/internal/audit"
	"skillpass/internal/credential"
	"skillpass/internal/evidence/hsm"
	"skillpass/internal/gateway/metrics"
	"skillpass/pkg/domain"
	dErrors "skillpass/pkg/domain-errors"
	"skillpass/pkg/platform/sentinel"
	"skillpass/pkg/requestcontext"
)

// Store is the read side of the credential store the gateway consumes.
type Store interface {
	FindByID(ctx context.Context, id domain.CredentialUUID) (credential.Credential, error)
	FindBySerial(ctx context.Context, serial string) (credential.Credential, error)
}

// PublicCredentialView is everything a third-party verifier gets: the exact
// signed bytes (so the signature can be re-verified independently), the
// detached proof, and the current status. Nothing outside the signed document
// is exposed through this path.
type PublicCredentialView struct {
	Document json.RawMessage   `json:"document"`
	Proof    hsm.Proof         `json:"proof"`
	Status   credential.Status `json:"status"`
}

// Service resolves public lookups.
type Service struct {
	store    Store
	recorder *audit.Recorder
	logger   *slog.Logger
	metrics  *metrics.Metrics
	tracer   oteltrace.Tracer
}

func NewService(store Store, recorder *audit.Recorder, logger *slog.Logger, m *metrics.Metrics) (*Service, error) {
	if store == nil || recorder == nil {
		return nil, errors.New("gateway service requires a store and a recorder")
	}
	return &Service{
		store:    store,
		recorder: recorder,
		logger:   logger,
		metrics:  m,
		tracer:   otel.Tracer("skillpass/gateway"),
	}, nil
}

// Lookup resolves an identifier that is either a credential ID (the full URI
// or just its UUID tail) or a serial number. Unknown identifiers are a plain
// not-found; the gateway never guesses or partial-matches.
func (s *Service) Lookup(ctx context.Context, identifier string) (PublicCredentialView, error) {
	ctx, span := s.tracer.Start(ctx, "gateway.lookup")
	defer span.End()

	cred, err := s.resolve(ctx, identifier)
	s.auditLookup(ctx, identifier, cred, err)
	if err != nil {
		s.metrics.IncLookup(lookupOutcome(err))
		return PublicCredentialView{}, err
	}
	s.metrics.IncLookup("hit")

	span.SetAttributes(attribute.String("credential.serial", cred.SerialNumber))
	return PublicCredentialView{
		Document: json.RawMessage(cred.CanonicalBytes),
		Proof:    cred.Proof,
		Status:   cred.EffectiveStatus(requestcontext.Now(ctx)),
	}, nil
}

func (s *Service) resolve(ctx context.Context, identifier string) (credential.Credential, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return credential.Credential{}, dErrors.New(dErrors.CodeInvalidInput, "identifier is required")
	}

	if credential.IsSerialNumber(identifier) {
		cred, err := s.store.FindBySerial(ctx, identifier)
		return mapNotFound(cred, err)
	}

	// A credential ID arrives either as a full URI or as its UUID tail.
	tail := identifier
	if i := strings.LastIndexByte(tail, '/'); i >= 0 {
		tail = tail[i+1:]
	}
	id, err := domain.ParseCredentialUUID(tail)
	if err != nil {
		return credential.Credential{}, dErrors.New(dErrors.CodeNotFound, "credential not found")
	}
	cred, err := s.store.FindByID(ctx, id)
	return mapNotFound(cred, err)
}

func lookupOutcome(err error) string {
	if dErrors.HasCode(err, dErrors.CodeNotFound) || dErrors.HasCode(err, dErrors.CodeInvalidInput) {
		return "miss"
	}
	return "error"
}

func mapNotFound(cred credential.Credential, err error) (credential.Credential, error) {
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return credential.Credential{}, dErrors.New(dErrors.CodeNotFound, "credential not found")
		}
		return credential.Credential{}, dErrors.Wrap(dErrors.CodeInternal, "read credential", err)
	}
	return cred, nil
}

func (s *Service) auditLookup(ctx context.Context, identifier string, cred credential.Credential, lookupErr error) {
	resourceID := ""
	if lookupErr == nil {
		resourceID = cred.ID.String()
	}
	errorMessage := ""
	if lookupErr != nil {
		errorMessage = lookupErr.Error()
	}
	s.recorder.Record(ctx, audit.Entry{
		Action:       audit.ActionCredentialLookup,
		ResourceType: audit.ResourceCredential,
		ResourceID:   resourceID,
		PIITypes:     []audit.PIIType{audit.PIIProfile},
		Purpose:      "public credential verification",
		Success:      lookupErr == nil,
		ErrorMessage: errorMessage,
		Metadata:     map[string]string{"identifier": identifier},
	})
}
