package credential

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"

	"skillpass/internal/audit"
	"skillpass/internal/credential/metrics"
	"skillpass/internal/evidence/hsm"
	"skillpass/pkg/domain"
	dErrors "skillpass/pkg/domain-errors"
	"skillpass/pkg/platform/sentinel"
	"skillpass/pkg/requestcontext"
)

// Store persists credentials. Create must enforce the one-active-credential
// invariant per (subject, achievement) at the storage layer and return
// sentinel.ErrConflict when a concurrent or earlier issuance already holds it.
type Store interface {
	Create(ctx context.Context, cred Credential) error
	FindByID(ctx context.Context, id domain.CredentialUUID) (Credential, error)
	FindBySerial(ctx context.Context, serial string) (Credential, error)
	Revoke(ctx context.Context, id domain.CredentialUUID, reason string, at time.Time) error
	ListBySubject(ctx context.Context, subjectID domain.SubjectID) ([]Credential, error)
}

// LevelStore tracks each subject's denormalized maximum qualification level.
// RaiseTo is monotonic: writes below the current maximum are no-ops, and
// concurrent writers must not lose the larger value.
type LevelStore interface {
	RaiseTo(ctx context.Context, subjectID domain.SubjectID, level int) error
	MaxLevel(ctx context.Context, subjectID domain.SubjectID) (int, error)
}

// IdentityGate is the read-only verification check consumed before issuance.
// Implemented by the identity service; issuance never flips it.
type IdentityGate interface {
	IsVerified(ctx context.Context, subjectID domain.SubjectID) (bool, error)
}

// IssuerRegistry answers whether an issuer owns an achievement (its course or
// program) and may therefore issue credentials for it.
type IssuerRegistry interface {
	OwnsAchievement(ctx context.Context, issuerID domain.IssuerID, achievementID domain.AchievementID) (bool, error)
}

// Service is the issuance engine.
type Service struct {
	store    Store
	levels   LevelStore
	identity IdentityGate
	issuers  IssuerRegistry
	hsm      hsm.Service
	recorder *audit.Recorder
	logger   *slog.Logger
	metrics  *metrics.Metrics
	tracer   oteltrace.Tracer

	baseURL      string
	issuerKeyRef string
}

type Config struct {
	// BaseURL is the public root under which credential URIs resolve.
	BaseURL string
	// IssuerKeyRef names the HSM signing key for credential proofs.
	IssuerKeyRef string
}

func NewService(
	store Store,
	levels LevelStore,
	identity IdentityGate,
	issuers IssuerRegistry,
	hsmSvc hsm.Service,
	recorder *audit.Recorder,
	logger *slog.Logger,
	m *metrics.Metrics,
	cfg Config,
) (*Service, error) {
	if store == nil || levels == nil || identity == nil || issuers == nil || hsmSvc == nil || recorder == nil {
		return nil, errors.New("credential service requires all collaborators")
	}
	if cfg.BaseURL == "" || cfg.IssuerKeyRef == "" {
		return nil, errors.New("credential service requires base URL and issuer key ref")
	}
	return &Service{
		store:        store,
		levels:       levels,
		identity:     identity,
		issuers:      issuers,
		hsm:          hsmSvc,
		recorder:     recorder,
		logger:       logger,
		metrics:      m,
		tracer:       otel.Tracer("skillpass/credential"),
		baseURL:      cfg.BaseURL,
		issuerKeyRef: cfg.IssuerKeyRef,
	}, nil
}

// Issue runs one issuance attempt end to end: precondition checks, canonical
// document assembly, HSM signing, persistence, then the monotonic level
// update. A signing failure persists nothing; the storage layer is the final
// arbiter of the duplicate check, so two concurrent requests for the same
// (subject, achievement) produce exactly one active credential.
func (s *Service) Issue(ctx context.Context, req IssueRequest) (*Credential, error) {
	ctx, span := s.tracer.Start(ctx, "credential.issue")
	defer span.End()

	cred, err := s.issue(ctx, req)
	s.auditIssue(ctx, req, cred, err)
	s.observeIssue(err)
	return cred, err
}

func (s *Service) issue(ctx context.Context, req IssueRequest) (*Credential, error) {
	if req.IssuerID.IsNil() || req.SubjectID.IsNil() || req.AchievementID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "issuer, subject, and achievement ids are required")
	}

	verified, err := s.identity.IsVerified(ctx, req.SubjectID)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "check identity verification", err)
	}
	if !verified {
		return nil, dErrors.New(dErrors.CodeNotEligible, "subject identity is not verified")
	}

	owns, err := s.issuers.OwnsAchievement(ctx, req.IssuerID, req.AchievementID)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "check achievement ownership", err)
	}
	if !owns {
		return nil, dErrors.New(dErrors.CodeNotEligible, "issuer is not authorized for this achievement")
	}

	// Fast-path duplicate check for a friendly error. The unique constraint
	// in the store is what actually prevents the race.
	if existing, err := s.activeCredential(ctx, req.SubjectID, req.AchievementID); err != nil {
		return nil, err
	} else if existing {
		return nil, dErrors.New(dErrors.CodeDuplicate, "an active credential already exists for this subject and achievement")
	}

	now := requestcontext.Now(ctx)
	id := domain.NewCredentialUUID()
	uri := credentialURI(s.baseURL, id)
	serial, err := newSerialNumber(now)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "allocate serial number", err)
	}

	var expiresAt *time.Time
	if req.ValidFor > 0 {
		t := now.Add(req.ValidFor)
		expiresAt = &t
	}

	canonical, err := assembleDocument(req, uri, serial, now, expiresAt)
	if err != nil {
		return nil, err
	}

	signStart := time.Now()
	proof, err := s.hsm.Sign(ctx, canonical, s.issuerKeyRef)
	s.metrics.ObserveSignLatency(time.Since(signStart))
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeSignature, "sign credential document", err)
	}

	cred := Credential{
		ID:             id,
		URI:            uri,
		SerialNumber:   serial,
		IssuerID:       req.IssuerID,
		SubjectID:      req.SubjectID,
		AchievementID:  req.AchievementID,
		CanonicalBytes: canonical,
		Proof:          proof,
		Status:         StatusActive,
		IssuanceDate:   now,
		ExpirationDate: expiresAt,
		Discoverable:   req.Discoverable,
		CreatedAt:      now,
	}
	if err := s.store.Create(ctx, cred); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeDuplicate, "an active credential already exists for this subject and achievement")
		}
		return nil, dErrors.Wrap(dErrors.CodeInternal, "persist credential", err)
	}

	// The credential is committed; a level-update failure must not unwind it.
	// The level is denormalized convenience data and can be repaired from the
	// credential store.
	if level := req.QualificationLevel(); level > 0 {
		if err := s.levels.RaiseTo(ctx, req.SubjectID, level); err != nil {
			s.logger.ErrorContext(ctx, "qualification level update failed",
				"subject_id", req.SubjectID.String(),
				"level", level,
				"error", err,
			)
		}
	}

	return &cred, nil
}

func (s *Service) activeCredential(ctx context.Context, subjectID domain.SubjectID, achievementID domain.AchievementID) (bool, error) {
	creds, err := s.store.ListBySubject(ctx, subjectID)
	if err != nil {
		return false, dErrors.Wrap(dErrors.CodeInternal, "list subject credentials", err)
	}
	for _, c := range creds {
		if c.AchievementID == achievementID && c.Status == StatusActive {
			return true, nil
		}
	}
	return false, nil
}

// Revoke transitions an active credential to revoked with a reason. The
// document and its proof stay untouched and retrievable: revoked credentials
// remain inspectable for historical audit. Revoking a non-active credential
// fails with ErrInvalidState.
func (s *Service) Revoke(ctx context.Context, id domain.CredentialUUID, reason string) error {
	ctx, span := s.tracer.Start(ctx, "credential.revoke")
	span.SetAttributes(attribute.String("credential.id", id.String()))
	defer span.End()

	if reason == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "revocation reason is required")
	}

	err := s.store.Revoke(ctx, id, reason, requestcontext.Now(ctx))
	switch {
	case err == nil:
		s.metrics.IncRevocation()
	case errors.Is(err, sentinel.ErrNotFound):
		err = dErrors.New(dErrors.CodeNotFound, "credential not found")
	case errors.Is(err, sentinel.ErrInvalidState):
		err = dErrors.New(dErrors.CodeInvalidInput, "only active credentials can be revoked")
	default:
		err = dErrors.Wrap(dErrors.CodeInternal, "revoke credential", err)
	}

	s.recorder.Record(ctx, audit.Entry{
		Action:       audit.ActionCredentialRevoke,
		ResourceType: audit.ResourceCredential,
		ResourceID:   id.String(),
		PIITypes:     []audit.PIIType{audit.PIIProfile},
		Purpose:      "credential revocation",
		Success:      err == nil,
		ErrorMessage: errorMessageOf(err),
		Metadata:     map[string]string{"reason": reason},
	})
	return err
}

// Find returns a credential by its UUID, for authorized internal reads.
func (s *Service) Find(ctx context.Context, id domain.CredentialUUID) (Credential, error) {
	cred, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return Credential{}, dErrors.New(dErrors.CodeNotFound, "credential not found")
		}
		return Credential{}, dErrors.Wrap(dErrors.CodeInternal, "read credential", err)
	}
	return cred, nil
}

func (s *Service) auditIssue(ctx context.Context, req IssueRequest, cred *Credential, issueErr error) {
	metadata := map[string]string{
		"achievement_id": req.AchievementID.String(),
		"issuer_id":      req.IssuerID.String(),
	}
	resourceID := ""
	if cred != nil {
		resourceID = cred.ID.String()
		metadata["serial_number"] = cred.SerialNumber
		if level := req.QualificationLevel(); level > 0 {
			metadata["qualification_level"] = strconv.Itoa(level)
		}
	}
	s.recorder.Record(ctx, audit.Entry{
		Action:       audit.ActionCredentialIssue,
		ResourceType: audit.ResourceCredential,
		ResourceID:   resourceID,
		PIITypes:     []audit.PIIType{audit.PIIProfile},
		Purpose:      "credential issuance",
		Success:      issueErr == nil,
		ErrorMessage: errorMessageOf(issueErr),
		Metadata:     metadata,
	})
}

func (s *Service) observeIssue(err error) {
	switch {
	case err == nil:
		s.metrics.IncIssuance("issued")
	case dErrors.HasCode(err, dErrors.CodeDuplicate):
		s.metrics.IncIssuance("duplicate")
	case dErrors.HasCode(err, dErrors.CodeNotEligible):
		s.metrics.IncIssuance("not_eligible")
	case dErrors.HasCode(err, dErrors.CodeSignature):
		s.metrics.IncIssuance("signing_failed")
	default:
		s.metrics.IncIssuance("error")
	}
}

func errorMessageOf(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
