package credential

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skillpass/internal/evidence/hsm"
	"skillpass/pkg/domain"
	dErrors "skillpass/pkg/domain-errors"
)

func sampleRequest() IssueRequest {
	return IssueRequest{
		IssuerID:      domain.NewIssuerID(),
		SubjectID:     domain.NewSubjectID(),
		AchievementID: domain.NewAchievementID(),
		AchievementName: map[string]string{
			"id": "Teknisi Jaringan Junior",
			"en": "Junior Network Technician",
		},
		AchievementDescription: map[string]string{
			"id": "Menyelesaikan program pelatihan jaringan dasar",
			"en": "Completed the basic networking training program",
		},
		Alignments: []CompetencyAlignment{
			{Framework: "SKKNI", Code: "J.611000.008.02"},
			{Framework: "AQRF", Code: "AQRF-L4", TargetLevel: 4},
		},
		Result: &Result{Score: 87.5, Grade: "B+"},
	}
}

func TestAssembleDocument_Deterministic(t *testing.T) {
	req := sampleRequest()
	issuedAt := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	first, err := assembleDocument(req, "https://credentials.skillpass.id/v1/credentials/abc", "SP-2026-4R7K9M2XWQ", issuedAt, nil)
	require.NoError(t, err)
	second, err := assembleDocument(req, "https://credentials.skillpass.id/v1/credentials/abc", "SP-2026-4R7K9M2XWQ", issuedAt, nil)
	require.NoError(t, err)

	assert.Equal(t, first, second, "same inputs must produce identical bytes")
}

func TestAssembleDocument_Shape(t *testing.T) {
	req := sampleRequest()
	issuedAt := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	expiresAt := issuedAt.AddDate(3, 0, 0)

	raw, err := assembleDocument(req, "https://credentials.skillpass.id/v1/credentials/abc", "SP-2026-4R7K9M2XWQ", issuedAt, &expiresAt)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))

	assert.Equal(t, "https://credentials.skillpass.id/v1/credentials/abc", doc["id"])
	assert.Equal(t, "SP-2026-4R7K9M2XWQ", doc["serialNumber"])
	assert.Equal(t, "2026-03-14T09:00:00Z", doc["issuanceDate"])
	assert.Equal(t, "2029-03-14T09:00:00Z", doc["expirationDate"])

	subject, ok := doc["credentialSubject"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "urn:uuid:"+req.SubjectID.String(), subject["id"],
		"subject descriptor must be pseudonymous")
}

func TestAssembleDocument_RequiresBothLocales(t *testing.T) {
	req := sampleRequest()
	req.AchievementName = map[string]string{"en": "Junior Network Technician"}

	_, err := assembleDocument(req, "uri", "SP-2026-0000000000", time.Now(), nil)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func TestSignatureRoundTrip(t *testing.T) {
	local := hsm.NewLocal([]byte("document-test-seed-0123456789abc"))
	req := sampleRequest()

	canonical, err := assembleDocument(req, "uri", "SP-2026-0000000000", time.Now(), nil)
	require.NoError(t, err)

	proof, err := local.Sign(context.Background(), canonical, "issuer-signing-key")
	require.NoError(t, err)
	require.Equal(t, "Ed25519Signature2020", proof.Type)

	sig, err := base64.RawURLEncoding.DecodeString(proof.ProofValue)
	require.NoError(t, err)

	pub := local.PublicKey("issuer-signing-key")
	assert.True(t, ed25519.Verify(pub, canonical, sig),
		"stored canonical bytes must verify against the proof")

	// Flipping a single byte of the stored document must invalidate the
	// signature.
	mutated := append([]byte(nil), canonical...)
	mutated[len(mutated)/2] ^= 0x01
	assert.False(t, ed25519.Verify(pub, mutated, sig))
}

func TestNewSerialNumber_Format(t *testing.T) {
	serial, err := newSerialNumber(time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Regexp(t, `^SP-2026-[0-9A-HJKMNP-TV-Z]{10}$`, serial)
	assert.True(t, IsSerialNumber(serial))
}

func TestEffectiveStatus(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	active := Credential{Status: StatusActive}
	assert.Equal(t, StatusActive, active.EffectiveStatus(now))

	expired := Credential{Status: StatusActive, ExpirationDate: &past}
	assert.Equal(t, StatusExpired, expired.EffectiveStatus(now))

	notYet := Credential{Status: StatusActive, ExpirationDate: &future}
	assert.Equal(t, StatusActive, notYet.EffectiveStatus(now))

	// Revocation wins over expiration for reporting purposes.
	revoked := Credential{Status: StatusRevoked, ExpirationDate: &past}
	assert.Equal(t, StatusRevoked, revoked.EffectiveStatus(now))
}
