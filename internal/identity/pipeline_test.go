package identity_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/suite"

	"skillpass/internal/audit"
	auditmem "skillpass/internal/audit/store/memory"
	"skillpass/internal/evidence/document"
	"skillpass/internal/evidence/hsm"
	"skillpass/internal/evidence/liveness"
	"skillpass/internal/evidence/registry"
	"skillpass/internal/identity"
	identitystore "skillpass/internal/identity/store"
	"skillpass/pkg/domain"
)

// countingRegistry wraps the mock client so tests can assert whether any
// external call was made at all.
type countingRegistry struct {
	registry.MockClient
	calls int
}

func (c *countingRegistry) Lookup(ctx context.Context, nationalID domain.NationalID, match registry.MatchFields) (registry.Result, error) {
	c.calls++
	return c.MockClient.Lookup(ctx, nationalID, match)
}

type PipelineSuite struct {
	suite.Suite
	registry   *countingRegistry
	documents  *document.MockVerifier
	liveness   *liveness.MockAnalyzer
	hsm        *hsm.Local
	store      *identitystore.InMemoryStore
	auditStore *auditmem.InMemoryStore
	service    *identity.Service
}

func TestPipelineSuite(t *testing.T) {
	suite.Run(t, new(PipelineSuite))
}

func (s *PipelineSuite) SetupTest() {
	s.registry = &countingRegistry{}
	s.documents = &document.MockVerifier{}
	s.liveness = &liveness.MockAnalyzer{Score: 0.95}
	s.hsm = hsm.NewLocal([]byte("pipeline-test-seed-0123456789abcd"))
	s.store = identitystore.NewInMemoryStore()
	s.auditStore = auditmem.NewInMemoryStore()

	recorder := audit.NewRecorder(s.auditStore, slog.New(slog.DiscardHandler), nil)

	var err error
	s.service, err = identity.NewService(
		s.registry, s.documents, s.liveness, s.hsm, s.store, recorder,
		slog.New(slog.DiscardHandler), nil,
		identity.Config{LivenessThreshold: 0.85},
	)
	s.Require().NoError(err)
}

func (s *PipelineSuite) request() identity.VerifyRequest {
	return identity.VerifyRequest{
		SubjectID:       domain.NewSubjectID(),
		NationalID:      "3201010101010001",
		BiometricType:   liveness.TypeFace,
		BiometricSample: []byte("raw-face-capture-bytes"),
		DocumentSample:  []byte("raw-document-scan-bytes"),
	}
}

func (s *PipelineSuite) TestFullSuccess() {
	req := s.request()
	result, err := s.service.Verify(context.Background(), req)
	s.Require().NoError(err)

	s.True(result.Verified)
	s.False(result.Degraded)
	s.Require().NotNil(result.Record)
	s.Equal(identity.StatusVerified, result.Record.Status)
	s.NotNil(result.Record.VerifiedAt)
	s.NotEmpty(result.Record.BiometricHash)
	s.NotEmpty(result.Record.EncryptedBiometricRef)
	s.Equal(0.95, result.Record.LivenessScore)
	s.NotEmpty(result.Record.LivenessSignals)

	verified, err := s.service.IsVerified(context.Background(), req.SubjectID)
	s.Require().NoError(err)
	s.True(verified)
}

func (s *PipelineSuite) TestFormatFailure_NoExternalCalls() {
	tests := []struct {
		name       string
		nationalID string
	}{
		{name: "too short", nationalID: "12345"},
		{name: "non-numeric", nationalID: "32010101010100ab"},
		{name: "unknown province", nationalID: "9901010101010001"},
	}
	for _, tc := range tests {
		s.Run(tc.name, func() {
			req := s.request()
			req.NationalID = tc.nationalID

			result, err := s.service.Verify(context.Background(), req)
			s.Require().NoError(err)

			s.False(result.Verified)
			s.Equal(identity.StageFormatCheck, result.Stage)
			s.NotEmpty(result.Reason)
			s.Zero(s.registry.calls, "format failure must not reach the registry")
		})
	}
}

func (s *PipelineSuite) TestRegistryUnreachable_DegradesWithWarning() {
	s.registry.Unreachable = true

	result, err := s.service.Verify(context.Background(), s.request())
	s.Require().NoError(err)

	s.True(result.Verified, "degraded path still verifies format-valid input")
	s.True(result.Degraded, "degraded result must be distinguishable from a full match")
	s.True(result.Record.RegistryDegraded)
	s.False(result.Record.RegistryMatch)

	// The degraded flag must also reach the audit trail.
	entries := s.auditStore.All()
	s.Require().Len(entries, 1)
	s.Equal("true", entries[0].Metadata["registry_degraded"])
}

func (s *PipelineSuite) TestRegistryUnreachable_HardFailWhenRequired() {
	s.registry.Unreachable = true

	recorder := audit.NewRecorder(s.auditStore, slog.New(slog.DiscardHandler), nil)
	strict, err := identity.NewService(
		s.registry, s.documents, s.liveness, s.hsm, s.store, recorder,
		slog.New(slog.DiscardHandler), nil,
		identity.Config{LivenessThreshold: 0.85, RegistryRequired: true},
	)
	s.Require().NoError(err)

	result, err := strict.Verify(context.Background(), s.request())
	s.Require().NoError(err)
	s.False(result.Verified)
	s.Equal(identity.StageRegistryCheck, result.Stage)
}

func (s *PipelineSuite) TestRegistryMiss_FailsAtRegistryStage() {
	req := s.request()
	s.registry.InvalidIDs = map[string]bool{req.NationalID: true}

	result, err := s.service.Verify(context.Background(), req)
	s.Require().NoError(err)
	s.False(result.Verified)
	s.Equal(identity.StageRegistryCheck, result.Stage)
}

func (s *PipelineSuite) TestDocumentMismatch_FailsAtDocumentStage() {
	req := s.request()
	s.documents.RejectIDs = map[string]string{req.NationalID: "birth date differs from registry record"}

	result, err := s.service.Verify(context.Background(), req)
	s.Require().NoError(err)
	s.False(result.Verified)
	s.Equal(identity.StageDocumentCheck, result.Stage)
	s.Equal("birth date differs from registry record", result.Reason)
}

func (s *PipelineSuite) TestLivenessBelowThreshold_Fails() {
	req := s.request()

	// First attempt with a confident live score verifies.
	result, err := s.service.Verify(context.Background(), req)
	s.Require().NoError(err)
	s.True(result.Verified)

	// Retry with a low score fails at LIVENESS_CHECK and replaces the record.
	s.liveness.Score = 0.40
	result, err = s.service.Verify(context.Background(), req)
	s.Require().NoError(err)
	s.False(result.Verified)
	s.Equal(identity.StageLivenessCheck, result.Stage)
	s.Contains(result.Reason, "0.40")

	verified, err := s.service.IsVerified(context.Background(), req.SubjectID)
	s.Require().NoError(err)
	s.False(verified, "re-verification replaces the previous record")
}

func (s *PipelineSuite) TestUnsupportedBiometricType_DistinctReason() {
	req := s.request()
	req.BiometricType = "voice"

	result, err := s.service.Verify(context.Background(), req)
	s.Require().NoError(err)
	s.False(result.Verified)
	s.Equal(identity.StageLivenessCheck, result.Stage)
	s.Contains(result.Reason, "unsupported biometric type")
}

func (s *PipelineSuite) TestRawSampleNeverPersisted() {
	req := s.request()
	result, err := s.service.Verify(context.Background(), req)
	s.Require().NoError(err)
	s.Require().True(result.Verified)

	s.NotContains(result.Record.BiometricHash, string(req.BiometricSample))
	s.NotContains(result.Record.EncryptedBiometricRef, string(req.BiometricSample))

	for _, entry := range s.auditStore.All() {
		s.NotContains(entry.ErrorMessage, string(req.BiometricSample))
		for _, v := range entry.Metadata {
			s.NotContains(v, string(req.BiometricSample))
			s.NotContains(v, req.NationalID)
		}
	}
}

func (s *PipelineSuite) TestAuditFailureDoesNotChangeOutcome() {
	s.auditStore.FailWith = errors.New("audit storage down")

	result, err := s.service.Verify(context.Background(), s.request())
	s.Require().NoError(err)
	s.True(result.Verified, "audit write failure must not affect the verification outcome")
}

func (s *PipelineSuite) TestStatusReadIsAudited() {
	req := s.request()
	_, err := s.service.Verify(context.Background(), req)
	s.Require().NoError(err)
	before := len(s.auditStore.All())

	record, err := s.service.CurrentRecord(context.Background(), req.SubjectID)
	s.Require().NoError(err)
	s.Equal(identity.StatusVerified, record.Status)

	entries := s.auditStore.All()
	s.Require().Len(entries, before+1)
	e := entries[len(entries)-1]
	s.Equal(audit.ActionIdentityStatus, e.Action)
	s.Equal(audit.ResourceIdentityRecord, e.ResourceType)
	s.Equal(req.SubjectID.String(), e.ResourceID)
	s.True(e.Success)
}

func (s *PipelineSuite) TestStatusReadOfUnknownSubjectIsAudited() {
	subjectID := domain.NewSubjectID()

	_, err := s.service.CurrentRecord(context.Background(), subjectID)
	s.Require().Error(err)

	entries := s.auditStore.All()
	s.Require().Len(entries, 1)
	s.Equal(audit.ActionIdentityStatus, entries[0].Action)
	s.Equal(subjectID.String(), entries[0].ResourceID)
	s.False(entries[0].Success)
}
