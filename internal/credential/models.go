// Package credential assembles, signs, and stores achievement credentials.
// A credential becomes immutable the moment its proof is attached; corrections
// are revocation plus reissuance, never in-place edits.
package credential

import (
	"time"

	"skillpass/internal/evidence/hsm"
	"skillpass/pkg/domain"
)

// Status of a stored credential. Expired is also derived lazily at read time
// from ExpirationDate, without mutating the row.
type Status string

const (
	StatusActive  Status = "active"
	StatusRevoked Status = "revoked"
	StatusExpired Status = "expired"
)

// CompetencyAlignment points a credential at an external standard, giving it
// meaning outside this platform. Framework names a scheme (e.g. "SKKNI",
// "AQRF"), Code the entry within it, TargetLevel the qualification level.
type CompetencyAlignment struct {
	Framework   string `json:"framework"`
	Code        string `json:"code"`
	TargetLevel int    `json:"targetLevel,omitempty"`
}

// Result is an optional quantitative or qualitative outcome.
type Result struct {
	Score float64 `json:"score,omitempty"`
	Grade string  `json:"grade,omitempty"`
}

// Credential is the stored, signed artifact. CanonicalBytes holds the exact
// bytes the proof covers; they are persisted verbatim and served verbatim by
// the verification gateway. Reserializing the document would break signature
// verification.
type Credential struct {
	ID           domain.CredentialUUID
	URI          string
	SerialNumber string

	IssuerID      domain.IssuerID
	SubjectID     domain.SubjectID
	AchievementID domain.AchievementID

	CanonicalBytes []byte
	Proof          hsm.Proof

	Status           Status
	RevocationReason string
	RevokedAt        *time.Time

	IssuanceDate   time.Time
	ExpirationDate *time.Time

	Discoverable bool
	CreatedAt    time.Time
}

// EffectiveStatus derives the read-time status: an active credential past its
// expiration date reads as expired. The stored row is never mutated for this.
func (c Credential) EffectiveStatus(now time.Time) Status {
	if c.Status == StatusActive && c.ExpirationDate != nil && now.After(*c.ExpirationDate) {
		return StatusExpired
	}
	return c.Status
}

// IssueRequest describes one issuance attempt, typically triggered by a
// course-completion event.
type IssueRequest struct {
	IssuerID      domain.IssuerID
	SubjectID     domain.SubjectID
	AchievementID domain.AchievementID

	AchievementName        map[string]string // locale -> name, "id" and "en" at minimum
	AchievementDescription map[string]string // locale -> description
	Alignments             []CompetencyAlignment
	Result                 *Result
	ValidFor               time.Duration // zero means no expiration
	Discoverable           bool
}

// QualificationLevel picks the highest alignment level carried by the
// request, zero when no alignment declares one.
func (r IssueRequest) QualificationLevel() int {
	level := 0
	for _, a := range r.Alignments {
		if a.TargetLevel > level {
			level = a.TargetLevel
		}
	}
	return level
}
