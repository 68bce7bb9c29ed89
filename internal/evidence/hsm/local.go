package hsm

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Local is an in-process stand-in for the HSM. Keys are derived from a single
// seed so signatures are stable across restarts with the same seed. Dev and
// tests only: ciphertext lives in memory and is lost on exit.
type Local struct {
	seed []byte

	mu    sync.Mutex
	blobs map[string][]byte
}

// NewLocal builds a local HSM from a seed. An empty seed gets a random one,
// which is fine for tests but makes signatures unverifiable after restart.
func NewLocal(seed []byte) *Local {
	if len(seed) == 0 {
		seed = make([]byte, 32)
		_, _ = rand.Read(seed)
	}
	return &Local{seed: seed, blobs: make(map[string][]byte)}
}

// deriveKey expands the seed into a per-keyRef 32-byte key.
func (l *Local) deriveKey(keyRef string) []byte {
	sum := sha256.Sum256(append(append([]byte{}, l.seed...), []byte(keyRef)...))
	return sum[:]
}

func (l *Local) Encrypt(_ context.Context, payload []byte, keyRef string) (string, error) {
	block, err := aes.NewCipher(l.deriveKey(keyRef))
	if err != nil {
		return "", fmt.Errorf("init cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("init gcm: %w", err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("nonce: %w", err)
	}
	ciphertext := gcm.Seal(nonce, nonce, payload, nil)

	ref := "local:" + uuid.NewString()
	l.mu.Lock()
	l.blobs[ref] = ciphertext
	l.mu.Unlock()
	return ref, nil
}

func (l *Local) Sign(_ context.Context, canonical []byte, issuerKeyRef string) (Proof, error) {
	priv := ed25519.NewKeyFromSeed(l.deriveKey(issuerKeyRef))
	sig := ed25519.Sign(priv, canonical)
	return Proof{
		Type:               "Ed25519Signature2020",
		VerificationMethod: "did:web:credentials.skillpass.id#" + issuerKeyRef,
		ProofValue:         base64.RawURLEncoding.EncodeToString(sig),
		Created:            time.Now().UTC(),
	}, nil
}

// PublicKey exposes the verification key for a keyRef so tests can
// independently re-verify signatures.
func (l *Local) PublicKey(issuerKeyRef string) ed25519.PublicKey {
	priv := ed25519.NewKeyFromSeed(l.deriveKey(issuerKeyRef))
	return priv.Public().(ed25519.PublicKey)
}
