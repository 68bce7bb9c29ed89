// Package hsm fronts the hardware security module that holds signing and
// encryption keys. Key material never enters this process in production; the
// local implementation exists for dev and tests.
package hsm

import (
	"context"
	"time"
)

// Proof is the detached signature the HSM returns for a canonical document.
// The fields map directly onto the credential's proof block.
type Proof struct {
	Type               string    `json:"type"`
	VerificationMethod string    `json:"verificationMethod"`
	ProofValue         string    `json:"proofValue"`
	Created            time.Time `json:"created"`
}

// Service performs cryptographic operations without exposing key material.
//
// Encrypt returns an opaque reference to the ciphertext held by the HSM; the
// raw payload must not be retained by the caller afterwards. Sign covers the
// exact bytes passed in - callers must persist those same bytes.
type Service interface {
	Encrypt(ctx context.Context, payload []byte, keyRef string) (string, error)
	Sign(ctx context.Context, canonical []byte, issuerKeyRef string) (Proof, error)
}
