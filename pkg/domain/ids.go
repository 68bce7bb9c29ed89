// Package domain holds typed identifiers and identity value objects shared by
// every service. Construct values via the Parse functions at trust boundaries;
// direct casting bypasses validation.
package domain

import (
	"github.com/google/uuid"

	dErrors "skillpass/pkg/domain-errors"
)

// Typed UUID identifiers. Distinct types prevent cross-assignment of a subject
// ID where an issuer ID is expected, at compile time.
type (
	// SubjectID identifies a learner. Pseudonymous: safe to place in
	// credentials and audit entries.
	SubjectID uuid.UUID

	// IssuerID identifies a training provider authorized to issue
	// credentials for the achievements it owns.
	IssuerID uuid.UUID

	// AchievementID identifies a completed course or program.
	AchievementID uuid.UUID

	// CredentialUUID is the UUID tail of a credential's resolvable URI.
	CredentialUUID uuid.UUID
)

func parseUUID(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id cannot be empty")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id must be a valid UUID")
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id cannot be the nil UUID")
	}
	return u, nil
}

// ParseSubjectID validates and constructs a SubjectID from external input.
func ParseSubjectID(s string) (SubjectID, error) {
	u, err := parseUUID(s)
	if err != nil {
		return SubjectID(uuid.Nil), err
	}
	return SubjectID(u), nil
}

// ParseIssuerID validates and constructs an IssuerID from external input.
func ParseIssuerID(s string) (IssuerID, error) {
	u, err := parseUUID(s)
	if err != nil {
		return IssuerID(uuid.Nil), err
	}
	return IssuerID(u), nil
}

// ParseAchievementID validates and constructs an AchievementID from external input.
func ParseAchievementID(s string) (AchievementID, error) {
	u, err := parseUUID(s)
	if err != nil {
		return AchievementID(uuid.Nil), err
	}
	return AchievementID(u), nil
}

// ParseCredentialUUID validates and constructs a CredentialUUID from external input.
func ParseCredentialUUID(s string) (CredentialUUID, error) {
	u, err := parseUUID(s)
	if err != nil {
		return CredentialUUID(uuid.Nil), err
	}
	return CredentialUUID(u), nil
}

func (id SubjectID) String() string      { return uuid.UUID(id).String() }
func (id IssuerID) String() string       { return uuid.UUID(id).String() }
func (id AchievementID) String() string  { return uuid.UUID(id).String() }
func (id CredentialUUID) String() string { return uuid.UUID(id).String() }

func (id SubjectID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }
func (id IssuerID) IsNil() bool       { return uuid.UUID(id) == uuid.Nil }
func (id AchievementID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }
func (id CredentialUUID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

// NewSubjectID generates a fresh SubjectID. Intended for tests and seeds.
func NewSubjectID() SubjectID { return SubjectID(uuid.New()) }

// NewIssuerID generates a fresh IssuerID. Intended for tests and seeds.
func NewIssuerID() IssuerID { return IssuerID(uuid.New()) }

// NewAchievementID generates a fresh AchievementID. Intended for tests and seeds.
func NewAchievementID() AchievementID { return AchievementID(uuid.New()) }

// NewCredentialUUID generates the UUID tail for a new credential URI.
func NewCredentialUUID() CredentialUUID { return CredentialUUID(uuid.New()) }
