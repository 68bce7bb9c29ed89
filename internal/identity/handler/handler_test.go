package handler

import (
	"context"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"

	"skillpass/internal/identity"
	"skillpass/pkg/domain"
	dErrors "skillpass/pkg/domain-errors"
	"skillpass/pkg/testutil"
)

type serviceStub struct {
	result    identity.VerifyResult
	verifyErr error
	record    identity.Record
	recordErr error

	lastVerify identity.VerifyRequest
}

func (s *serviceStub) Verify(_ context.Context, req identity.VerifyRequest) (identity.VerifyResult, error) {
	s.lastVerify = req
	return s.result, s.verifyErr
}

func (s *serviceStub) CurrentRecord(_ context.Context, _ domain.SubjectID) (identity.Record, error) {
	return s.record, s.recordErr
}

func newTestRouter(stub *serviceStub) chi.Router {
	r := chi.NewRouter()
	New(stub, slog.New(slog.DiscardHandler)).Register(r)
	return r
}

func TestHandleVerify_Success(t *testing.T) {
	stub := &serviceStub{result: identity.VerifyResult{Verified: true}}
	router := newTestRouter(stub)

	req := testutil.NewJSONRequest(t, http.MethodPost, "/identity/verify", VerifyRequest{
		SubjectID:       domain.NewSubjectID().String(),
		NationalID:      "3171234567890123",
		FullName:        "Siti Rahayu",
		DateOfBirth:     "1998-04-12",
		BiometricType:   "face",
		BiometricSample: []byte("selfie-bytes"),
		DocumentSample:  []byte("ktp-scan-bytes"),
	})
	rr := testutil.DoRequest(router, req)

	testutil.AssertStatusOK(t, rr)
	resp := testutil.UnmarshalResponse[VerifyResponse](t, rr)
	assert.True(t, resp.Verified)
	assert.Empty(t, resp.Stage)

	// Samples are base64 on the wire and must arrive as the original bytes.
	assert.Equal(t, []byte("selfie-bytes"), stub.lastVerify.BiometricSample)
	assert.Equal(t, "face", string(stub.lastVerify.BiometricType))
}

func TestHandleVerify_FailureCarriesStage(t *testing.T) {
	stub := &serviceStub{result: identity.VerifyResult{
		Verified: false,
		Stage:    identity.StageLivenessCheck,
		Reason:   "liveness score 0.40 below threshold",
	}}
	router := newTestRouter(stub)

	req := testutil.NewJSONRequest(t, http.MethodPost, "/identity/verify", VerifyRequest{
		SubjectID:     domain.NewSubjectID().String(),
		NationalID:    "3171234567890123",
		BiometricType: "face",
	})
	rr := testutil.DoRequest(router, req)

	// A rejected verification is still a completed request.
	testutil.AssertStatusOK(t, rr)
	resp := testutil.UnmarshalResponse[VerifyResponse](t, rr)
	assert.False(t, resp.Verified)
	assert.Equal(t, string(identity.StageLivenessCheck), resp.Stage)
	assert.Contains(t, resp.Reason, "0.40")
}

func TestHandleVerify_BadSubjectID(t *testing.T) {
	router := newTestRouter(&serviceStub{})

	req := testutil.NewJSONRequest(t, http.MethodPost, "/identity/verify", VerifyRequest{
		SubjectID:     "not-a-uuid",
		NationalID:    "3171234567890123",
		BiometricType: "face",
	})
	rr := testutil.DoRequest(router, req)

	testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "invalid_input")
}

func TestHandleVerify_MalformedBody(t *testing.T) {
	router := newTestRouter(&serviceStub{})

	req := testutil.NewRequestWithBody(t, http.MethodPost, "/identity/verify", `{"subject_id":`)
	rr := testutil.DoRequest(router, req)

	testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "invalid_input")
}

func TestHandleStatus(t *testing.T) {
	verifiedAt := time.Date(2026, 2, 1, 8, 30, 0, 0, time.UTC)
	stub := &serviceStub{record: identity.Record{
		Status:           identity.StatusVerified,
		RegistryDegraded: true,
		VerifiedAt:       &verifiedAt,
	}}
	router := newTestRouter(stub)
	subjectID := domain.NewSubjectID()

	req := testutil.NewRequest(t, http.MethodGet, "/identity/"+subjectID.String()+"/status")
	rr := testutil.DoRequest(router, req)

	testutil.AssertStatusOK(t, rr)
	resp := testutil.UnmarshalResponse[StatusResponse](t, rr)
	assert.Equal(t, subjectID.String(), resp.SubjectID)
	assert.Equal(t, "verified", resp.Status)
	assert.True(t, resp.Degraded)
	assert.True(t, resp.VerifiedAt.Equal(verifiedAt))
}

func TestHandleStatus_Unknown(t *testing.T) {
	stub := &serviceStub{recordErr: dErrors.New(dErrors.CodeNotFound, "no verification on record")}
	router := newTestRouter(stub)

	req := testutil.NewRequest(t, http.MethodGet, "/identity/"+domain.NewSubjectID().String()+"/status")
	rr := testutil.DoRequest(router, req)

	testutil.AssertStatusAndError(t, rr, http.StatusNotFound, "not_found")
}
