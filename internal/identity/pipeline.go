package identity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"

	"skillpass/internal/audit"
	"skillpass/internal/evidence/document"
	"skillpass/internal/evidence/hsm"
	"skillpass/internal/evidence/liveness"
	"skillpass/internal/evidence/registry"
	"skillpass/internal/identity/metrics"
	"skillpass/pkg/domain"
	dErrors "skillpass/pkg/domain-errors"
	"skillpass/pkg/platform/sentinel"
	"skillpass/pkg/requestcontext"
)

// Store persists verification records, one current record per subject.
// Save replaces any existing record for the subject.
type Store interface {
	Save(ctx context.Context, record Record) error
	FindBySubject(ctx context.Context, subjectID domain.SubjectID) (Record, error)
}

// Service runs the verification pipeline. Stages execute strictly in order
// and short-circuit on the first failure; each stage's outcome is final once
// observed - nothing is rolled back on a later failure.
type Service struct {
	registry registry.Client
	document document.Verifier
	liveness liveness.Analyzer
	hsm      hsm.Service
	store    Store
	recorder *audit.Recorder
	logger   *slog.Logger
	metrics  *metrics.Metrics
	tracer   oteltrace.Tracer

	threshold        float64
	registryRequired bool
}

// Config tunes pipeline policy.
type Config struct {
	// LivenessThreshold is the minimum acceptable liveness score.
	LivenessThreshold float64
	// RegistryRequired hard-fails REGISTRY_CHECK on unreachability instead
	// of degrading to format-only validation.
	RegistryRequired bool
}

func NewService(
	reg registry.Client,
	doc document.Verifier,
	live liveness.Analyzer,
	hsmSvc hsm.Service,
	store Store,
	recorder *audit.Recorder,
	logger *slog.Logger,
	m *metrics.Metrics,
	cfg Config,
) (*Service, error) {
	if reg == nil || doc == nil || live == nil || hsmSvc == nil || store == nil || recorder == nil {
		return nil, errors.New("identity service requires all collaborators")
	}
	if cfg.LivenessThreshold <= 0 || cfg.LivenessThreshold > 1 {
		return nil, errors.New("liveness threshold must be in (0, 1]")
	}
	return &Service{
		registry:         reg,
		document:         doc,
		liveness:         live,
		hsm:              hsmSvc,
		store:            store,
		recorder:         recorder,
		logger:           logger,
		metrics:          m,
		tracer:           otel.Tracer("skillpass/identity"),
		threshold:        cfg.LivenessThreshold,
		registryRequired: cfg.RegistryRequired,
	}, nil
}

// Verify runs one attempt end to end. A stage failure is returned as a tagged
// VerifyResult, not an error; the error return is reserved for infrastructure
// faults before a verdict (e.g. the record store rejecting the write).
//
// Every attempt - success, failure, degraded - is audited with the touched
// PII categories. The raw national ID and biometric sample never reach the
// record, the logs, or the audit metadata.
func (s *Service) Verify(ctx context.Context, req VerifyRequest) (VerifyResult, error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "identity.verify")
	defer span.End()

	if req.SubjectID.IsNil() {
		return VerifyResult{}, dErrors.New(dErrors.CodeInvalidInput, "subject id is required")
	}

	record := Record{
		SubjectID:     req.SubjectID,
		BiometricType: req.BiometricType,
		Status:        StatusPending,
		CreatedAt:     requestcontext.Now(ctx),
	}

	result, err := s.runStages(ctx, req, &record)
	if err != nil {
		return VerifyResult{}, err
	}

	if result.Verified {
		now := requestcontext.Now(ctx)
		record.Status = StatusVerified
		record.VerifiedAt = &now
	} else {
		record.Status = StatusRejected
		record.FailureStage = result.Stage
		record.FailureReason = result.Reason
	}

	if err := s.store.Save(ctx, record); err != nil {
		return VerifyResult{}, dErrors.Wrap(dErrors.CodeInternal, "persist verification record", err)
	}
	result.Record = &record

	s.audit(ctx, req, result)
	s.observe(result, time.Since(start))
	return result, nil
}

func (s *Service) runStages(ctx context.Context, req VerifyRequest, record *Record) (VerifyResult, error) {
	// FORMAT_CHECK: purely local, no I/O. A malformed ID must fail before
	// any external call is made.
	nationalID, failure := s.formatCheck(ctx, req.NationalID)
	if failure != nil {
		return *failure, nil
	}

	failure = s.registryCheck(ctx, nationalID, req, record)
	if failure != nil {
		return *failure, nil
	}

	failure = s.documentCheck(ctx, nationalID, req, record)
	if failure != nil {
		return *failure, nil
	}

	failure = s.livenessCheck(ctx, req, record)
	if failure != nil {
		return *failure, nil
	}

	if failure, err := s.biometricBinding(ctx, req, record); err != nil {
		return VerifyResult{}, err
	} else if failure != nil {
		return *failure, nil
	}

	return VerifyResult{Verified: true, Degraded: record.RegistryDegraded}, nil
}

func (s *Service) formatCheck(ctx context.Context, raw string) (domain.NationalID, *VerifyResult) {
	_, span := s.tracer.Start(ctx, "identity.format_check")
	defer span.End()

	nationalID, err := domain.ParseNationalID(raw)
	if err != nil {
		return "", &VerifyResult{
			Stage:  StageFormatCheck,
			Reason: "national ID must be a 16-digit number with a valid region code",
		}
	}
	return nationalID, nil
}

func (s *Service) registryCheck(ctx context.Context, nationalID domain.NationalID, req VerifyRequest, record *Record) *VerifyResult {
	ctx, span := s.tracer.Start(ctx, "identity.registry_check")
	defer span.End()

	result, err := s.registry.Lookup(ctx, nationalID, registry.MatchFields{
		FullName:    req.FullName,
		DateOfBirth: req.DateOfBirth,
	})
	switch {
	case err == nil:
		if !result.Valid {
			return &VerifyResult{
				Stage:  StageRegistryCheck,
				Reason: "national ID not found in civil registry",
			}
		}
		record.RegistryMatch = true
		record.RegistrySource = result.Source

	case errors.Is(err, sentinel.ErrUnavailable):
		if s.registryRequired {
			return &VerifyResult{
				Stage:  StageRegistryCheck,
				Reason: "civil registry unavailable",
			}
		}
		// Availability of the registry is not a hard dependency for
		// format-valid input. The degraded flag keeps this path
		// distinguishable from a full match in both the result and
		// the audit trail.
		span.SetAttributes(attribute.Bool("registry.degraded", true))
		s.logger.WarnContext(ctx, "registry unreachable, degrading to format-only validation",
			"subject_id", req.SubjectID.String(),
		)
		record.RegistryDegraded = true

	default:
		return &VerifyResult{
			Stage:  StageRegistryCheck,
			Reason: "civil registry error: " + err.Error(),
		}
	}
	return nil
}

func (s *Service) documentCheck(ctx context.Context, nationalID domain.NationalID, req VerifyRequest, record *Record) *VerifyResult {
	ctx, span := s.tracer.Start(ctx, "identity.document_check")
	defer span.End()

	result, err := s.document.Verify(ctx, nationalID.String(), req.DocumentSample)
	if err != nil {
		return &VerifyResult{
			Stage:  StageDocumentCheck,
			Reason: "document verification service error: " + err.Error(),
		}
	}
	if !result.Valid {
		reason := result.Reason
		if reason == "" {
			reason = "document fields inconsistent with claimed identity"
		}
		return &VerifyResult{Stage: StageDocumentCheck, Reason: reason}
	}
	if result.Extracted.NationalID != "" && result.Extracted.NationalID != nationalID.String() {
		return &VerifyResult{
			Stage:  StageDocumentCheck,
			Reason: "document ID number does not match claimed identity",
		}
	}
	record.DocumentCheck = true
	return nil
}

func (s *Service) livenessCheck(ctx context.Context, req VerifyRequest, record *Record) *VerifyResult {
	ctx, span := s.tracer.Start(ctx, "identity.liveness_check")
	defer span.End()

	result, err := s.liveness.Detect(ctx, req.BiometricType, req.BiometricSample)
	if err != nil {
		if errors.Is(err, sentinel.ErrUnsupported) {
			return &VerifyResult{
				Stage:  StageLivenessCheck,
				Reason: fmt.Sprintf("unsupported biometric type %q", req.BiometricType),
			}
		}
		return &VerifyResult{
			Stage:  StageLivenessCheck,
			Reason: "liveness analyzer error: " + err.Error(),
		}
	}

	record.LivenessScore = result.Score
	record.LivenessSignals = result.SubScores
	span.SetAttributes(attribute.Float64("liveness.score", result.Score))

	if result.Score < s.threshold {
		return &VerifyResult{
			Stage: StageLivenessCheck,
			Reason: fmt.Sprintf("liveness score %.2f below threshold %.2f; retake the capture in better conditions",
				result.Score, s.threshold),
		}
	}
	return nil
}

// biometricBinding hashes the raw sample for future replay checks and hands
// the raw bytes to the HSM for encryption. Only the digest and the opaque
// ciphertext reference survive this stage.
func (s *Service) biometricBinding(ctx context.Context, req VerifyRequest, record *Record) (*VerifyResult, error) {
	ctx, span := s.tracer.Start(ctx, "identity.biometric_binding")
	defer span.End()

	digest := sha256.Sum256(req.BiometricSample)
	record.BiometricHash = hex.EncodeToString(digest[:])

	ref, err := s.hsm.Encrypt(ctx, req.BiometricSample, "biometric-"+string(req.BiometricType))
	if err != nil {
		return &VerifyResult{
			Stage:  StageBiometricBinding,
			Reason: "biometric encryption failed",
		}, nil
	}
	record.EncryptedBiometricRef = ref
	return nil, nil
}

// IsVerified is the read-only gate downstream eligibility logic consumes.
// It never mutates state; only the pipeline flips a subject to verified.
func (s *Service) IsVerified(ctx context.Context, subjectID domain.SubjectID) (bool, error) {
	record, err := s.store.FindBySubject(ctx, subjectID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return false, nil
		}
		return false, dErrors.Wrap(dErrors.CodeInternal, "read verification record", err)
	}
	return record.Status == StatusVerified, nil
}

// CurrentRecord returns the subject's current verification record. The read
// lands on the audit trail: it exposes the verification outcome the same way
// the public credential lookup exposes a credential.
func (s *Service) CurrentRecord(ctx context.Context, subjectID domain.SubjectID) (Record, error) {
	record, err := s.store.FindBySubject(ctx, subjectID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			err = dErrors.New(dErrors.CodeNotFound, "no verification record for subject")
		} else {
			err = dErrors.Wrap(dErrors.CodeInternal, "read verification record", err)
		}
	}
	s.auditStatusRead(ctx, subjectID, err)
	if err != nil {
		return Record{}, err
	}
	return record, nil
}

func (s *Service) auditStatusRead(ctx context.Context, subjectID domain.SubjectID, readErr error) {
	errorMessage := ""
	if readErr != nil {
		errorMessage = readErr.Error()
	}
	s.recorder.Record(ctx, audit.Entry{
		Action:       audit.ActionIdentityStatus,
		ResourceType: audit.ResourceIdentityRecord,
		ResourceID:   subjectID.String(),
		PIITypes:     []audit.PIIType{audit.PIIProfile},
		Purpose:      "verification status read",
		Success:      readErr == nil,
		ErrorMessage: errorMessage,
	})
}

func (s *Service) audit(ctx context.Context, req VerifyRequest, result VerifyResult) {
	idDigest := sha256.Sum256([]byte(req.NationalID))
	metadata := map[string]string{
		"national_id_hash":  hex.EncodeToString(idDigest[:]),
		"biometric_type":    string(req.BiometricType),
		"registry_degraded": strconv.FormatBool(result.Degraded),
	}
	errorMessage := ""
	if !result.Verified {
		metadata["failure_stage"] = string(result.Stage)
		errorMessage = result.Reason
	}
	s.recorder.Record(ctx, audit.Entry{
		Action:       audit.ActionIdentityVerify,
		ResourceType: audit.ResourceIdentityRecord,
		ResourceID:   req.SubjectID.String(),
		PIITypes:     []audit.PIIType{audit.PIINationalID, audit.PIIBiometric, audit.PIIDocument},
		Purpose:      "identity verification",
		Success:      result.Verified,
		ErrorMessage: errorMessage,
		Metadata:     metadata,
	})
}

func (s *Service) observe(result VerifyResult, elapsed time.Duration) {
	outcome := "verified"
	if !result.Verified {
		outcome = string(result.Stage)
	}
	s.metrics.IncOutcome(outcome)
	if result.Verified && result.Degraded {
		s.metrics.IncDegraded()
	}
	s.metrics.ObserveVerifyLatency(elapsed)
}
