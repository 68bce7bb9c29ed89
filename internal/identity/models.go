// Package identity runs the e-KYC pipeline: national ID format check, civil
// registry match, document consistency, biometric liveness, and biometric
// binding. It is the only writer of a subject's verification status.
package identity

import (
	"time"

	"skillpass/internal/evidence/liveness"
	"skillpass/pkg/domain"
)

// Status of a subject's current verification record.
type Status string

const (
	StatusPending  Status = "pending"
	StatusVerified Status = "verified"
	StatusRejected Status = "rejected"
)

// Stage names the pipeline steps, in execution order. Failure results carry
// the stage so callers can present an actionable message.
type Stage string

const (
	StageFormatCheck      Stage = "FORMAT_CHECK"
	StageRegistryCheck    Stage = "REGISTRY_CHECK"
	StageDocumentCheck    Stage = "DOCUMENT_CHECK"
	StageLivenessCheck    Stage = "LIVENESS_CHECK"
	StageBiometricBinding Stage = "BIOMETRIC_BINDING"
)

// Record is a subject's identity verification outcome. One current record per
// subject: re-verification replaces it.
//
// The raw national ID and raw biometric sample are deliberately absent. Only
// the one-way biometric hash and the HSM's opaque ciphertext reference are
// retained.
type Record struct {
	SubjectID        domain.SubjectID
	RegistryMatch    bool
	RegistrySource   string
	RegistryDegraded bool
	DocumentCheck    bool
	BiometricType    liveness.BiometricType
	LivenessScore    float64
	LivenessSignals  map[string]float64

	BiometricHash         string // hex SHA-256 of the raw sample
	EncryptedBiometricRef string // opaque HSM reference

	Status        Status
	FailureStage  Stage
	FailureReason string
	VerifiedAt    *time.Time
	CreatedAt     time.Time
}

// VerifyRequest is one verification attempt. NationalID arrives raw and is
// format-validated as the first stage; it is never persisted or logged.
type VerifyRequest struct {
	SubjectID       domain.SubjectID
	NationalID      string
	FullName        string // optional registry cross-match
	DateOfBirth     string // optional registry cross-match, YYYY-MM-DD
	BiometricType   liveness.BiometricType
	BiometricSample []byte
	DocumentSample  []byte
}

// VerifyResult is the tagged outcome of one attempt. Failure is data, not an
// error: Verified=false with Stage and Reason set. The error return of Verify
// is reserved for infrastructure faults where no verdict was reached.
type VerifyResult struct {
	Verified bool
	// Degraded marks a success obtained while the civil registry was
	// unreachable: format and remaining stages passed, but no registry
	// match backs the record.
	Degraded bool
	Stage    Stage
	Reason   string
	Record   *Record
}
