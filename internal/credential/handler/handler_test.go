package handler

import (
	"context"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skillpass/internal/credential"
	"skillpass/pkg/domain"
	dErrors "skillpass/pkg/domain-errors"
	"skillpass/pkg/testutil"
)

type serviceStub struct {
	issued    *credential.Credential
	issueErr  error
	revokeErr error

	lastIssue  credential.IssueRequest
	lastRevoke domain.CredentialUUID
	lastReason string
}

func (s *serviceStub) Issue(_ context.Context, req credential.IssueRequest) (*credential.Credential, error) {
	s.lastIssue = req
	if s.issueErr != nil {
		return nil, s.issueErr
	}
	return s.issued, nil
}

func (s *serviceStub) Revoke(_ context.Context, id domain.CredentialUUID, reason string) error {
	s.lastRevoke = id
	s.lastReason = reason
	return s.revokeErr
}

func newTestRouter(stub *serviceStub) chi.Router {
	r := chi.NewRouter()
	New(stub, slog.New(slog.DiscardHandler)).Register(r)
	return r
}

func validIssueBody() IssueRequest {
	return IssueRequest{
		IssuerID:      domain.NewIssuerID().String(),
		SubjectID:     domain.NewSubjectID().String(),
		AchievementID: domain.NewAchievementID().String(),
		AchievementName: map[string]string{
			"id": "Pengembang Web Junior",
			"en": "Junior Web Developer",
		},
		Alignments: []AlignmentRequest{
			{Framework: "SKKNI", Code: "J.620100.004.02"},
			{Framework: "AQRF", Code: "AQRF-L4", TargetLevel: 4},
		},
		ValidDays: 365,
	}
}

func TestHandleIssue_Created(t *testing.T) {
	issuedAt := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	stub := &serviceStub{issued: &credential.Credential{
		ID:           domain.NewCredentialUUID(),
		URI:          "https://credentials.skillpass.id/v1/credentials/abc",
		SerialNumber: "SP-2026-4R7K9M2XWQ",
		Status:       credential.StatusActive,
		IssuanceDate: issuedAt,
	}}
	router := newTestRouter(stub)

	req := testutil.NewJSONRequest(t, http.MethodPost, "/credentials", validIssueBody())
	rr := testutil.DoRequest(router, req)

	testutil.AssertStatus(t, rr, http.StatusCreated)
	resp := testutil.UnmarshalResponse[IssueResponse](t, rr)
	assert.Equal(t, stub.issued.ID.String(), resp.CredentialID)
	assert.Equal(t, "SP-2026-4R7K9M2XWQ", resp.SerialNumber)
	assert.Equal(t, "active", resp.Status)
	assert.True(t, resp.IssuanceDate.Equal(issuedAt))

	// valid_days crosses the wire as a count; the engine consumes a duration.
	assert.Equal(t, 365*24*time.Hour, stub.lastIssue.ValidFor)
	assert.Len(t, stub.lastIssue.Alignments, 2)
	assert.Equal(t, 4, stub.lastIssue.Alignments[1].TargetLevel)
}

func TestHandleIssue_MalformedBody(t *testing.T) {
	router := newTestRouter(&serviceStub{})

	req := testutil.NewRequestWithBody(t, http.MethodPost, "/credentials", `{"issuer_id":`)
	rr := testutil.DoRequest(router, req)

	testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "invalid_input")
}

func TestHandleIssue_UnknownFieldRejected(t *testing.T) {
	router := newTestRouter(&serviceStub{})

	req := testutil.NewRequestWithBody(t, http.MethodPost, "/credentials", `{"isuer_id":"typo"}`)
	rr := testutil.DoRequest(router, req)

	testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "invalid_input")
}

func TestHandleIssue_InvalidSubjectID(t *testing.T) {
	stub := &serviceStub{}
	router := newTestRouter(stub)

	body := validIssueBody()
	body.SubjectID = "not-a-uuid"
	req := testutil.NewJSONRequest(t, http.MethodPost, "/credentials", body)
	rr := testutil.DoRequest(router, req)

	testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "invalid_input")
}

func TestHandleIssue_ServiceErrorsMapToStatus(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"duplicate", dErrors.New(dErrors.CodeDuplicate, "credential already issued"), http.StatusConflict, "duplicate"},
		{"not eligible", dErrors.New(dErrors.CodeNotEligible, "subject identity is not verified"), http.StatusUnprocessableEntity, "not_eligible"},
		{"signing failure", dErrors.New(dErrors.CodeSignature, "signing service unavailable"), http.StatusBadGateway, "signature_failed"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := newTestRouter(&serviceStub{issueErr: tc.err})

			req := testutil.NewJSONRequest(t, http.MethodPost, "/credentials", validIssueBody())
			rr := testutil.DoRequest(router, req)

			testutil.AssertStatusAndError(t, rr, tc.status, tc.code)
		})
	}
}

func TestHandleRevoke(t *testing.T) {
	stub := &serviceStub{}
	router := newTestRouter(stub)
	id := domain.NewCredentialUUID()

	testutil.Given(t, "an active credential", func(t *testing.T) {
		testutil.When(t, "the issuer revokes it with a reason", func(t *testing.T) {
			req := testutil.NewJSONRequest(t, http.MethodPost, "/credentials/"+id.String()+"/revoke",
				RevokeRequest{Reason: "certificate reissued under corrected name"})
			rr := testutil.DoRequest(router, req)

			testutil.Then(t, "the revocation is accepted with no body", func(t *testing.T) {
				require.Equal(t, http.StatusNoContent, rr.Code)
				assert.Equal(t, id, stub.lastRevoke)
				assert.Equal(t, "certificate reissued under corrected name", stub.lastReason)
			})
		})
	})
}

func TestHandleRevoke_BadIdentifier(t *testing.T) {
	router := newTestRouter(&serviceStub{})

	req := testutil.NewJSONRequest(t, http.MethodPost, "/credentials/not-a-uuid/revoke",
		RevokeRequest{Reason: "x"})
	rr := testutil.DoRequest(router, req)

	testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "invalid_input")
}

func TestHandleRevoke_NotFound(t *testing.T) {
	router := newTestRouter(&serviceStub{revokeErr: dErrors.New(dErrors.CodeNotFound, "credential not found")})

	req := testutil.NewJSONRequest(t, http.MethodPost, "/credentials/"+domain.NewCredentialUUID().String()+"/revoke",
		RevokeRequest{Reason: "x"})
	rr := testutil.DoRequest(router, req)

	testutil.AssertStatusAndError(t, rr, http.StatusNotFound, "not_found")
}
