package credential

import (
	"encoding/json"
	"time"

	"skillpass/pkg/domain"
	dErrors "skillpass/pkg/domain-errors"
)

// The wire document follows the Open Badges v3 achievement-credential shape.
// Serialization happens exactly once, at assembly: encoding/json emits struct
// fields in declaration order and map keys sorted, so the same inputs always
// produce the same bytes. Those bytes are what the HSM signs, what the store
// persists, and what the gateway serves.

type documentIssuer struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

type documentAchievement struct {
	ID          string               `json:"id"`
	Type        string               `json:"type"`
	Name        map[string]string    `json:"name"`
	Description map[string]string    `json:"description,omitempty"`
	Alignments  []CompetencyAlignment `json:"alignments,omitempty"`
}

type documentSubject struct {
	ID          string              `json:"id"`
	Type        string              `json:"type"`
	Achievement documentAchievement `json:"achievement"`
	Result      *Result             `json:"result,omitempty"`
}

type document struct {
	Context        []string        `json:"@context"`
	ID             string          `json:"id"`
	Type           []string        `json:"type"`
	Issuer         documentIssuer  `json:"issuer"`
	IssuanceDate   string          `json:"issuanceDate"`
	ExpirationDate string          `json:"expirationDate,omitempty"`
	SerialNumber   string          `json:"serialNumber"`
	Subject        documentSubject `json:"credentialSubject"`
}

// assembleDocument builds the canonical bytes for one issuance. The subject
// descriptor is pseudonymous: only the opaque subject ID appears, never name,
// national ID, or any other PII.
func assembleDocument(req IssueRequest, uri, serial string, issuedAt time.Time, expiresAt *time.Time) ([]byte, error) {
	if len(req.AchievementName) == 0 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "achievement name is required")
	}
	if req.AchievementName["id"] == "" || req.AchievementName["en"] == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "achievement name requires id and en locales")
	}

	doc := document{
		Context: []string{
			"https://www.w3.org/ns/credentials/v2",
			"https://purl.imsglobal.org/spec/ob/v3p0/context-3.0.3.json",
		},
		ID:   uri,
		Type: []string{"VerifiableCredential", "OpenBadgeCredential"},
		Issuer: documentIssuer{
			ID:   "did:web:credentials.skillpass.id:issuers:" + req.IssuerID.String(),
			Type: "Profile",
		},
		IssuanceDate: issuedAt.UTC().Format(time.RFC3339),
		SerialNumber: serial,
		Subject: documentSubject{
			ID:   "urn:uuid:" + req.SubjectID.String(),
			Type: "AchievementSubject",
			Achievement: documentAchievement{
				ID:          "urn:uuid:" + req.AchievementID.String(),
				Type:        "Achievement",
				Name:        req.AchievementName,
				Description: req.AchievementDescription,
				Alignments:  req.Alignments,
			},
			Result: req.Result,
		},
	}
	if expiresAt != nil {
		doc.ExpirationDate = expiresAt.UTC().Format(time.RFC3339)
	}
	return json.Marshal(doc)
}

// credentialURI builds the resolvable ID served by the verification gateway.
func credentialURI(baseURL string, id domain.CredentialUUID) string {
	return baseURL + "/v1/credentials/" + id.String()
}
