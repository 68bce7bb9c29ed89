// Package document wraps the OCR/validation collaborator that checks an
// uploaded identity document for internal consistency.
package document

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// ExtractedFields are the attributes the verifier read off the document.
type ExtractedFields struct {
	NationalID  string `json:"national_id"`
	FullName    string `json:"full_name"`
	DateOfBirth string `json:"date_of_birth"`
}

// Result reports whether the document is internally consistent with the
// claimed identity.
type Result struct {
	Valid     bool
	Reason    string
	Extracted ExtractedFields
}

// Verifier checks a document sample. Black-box collaborator: the core never
// interprets the sample bytes itself.
type Verifier interface {
	Verify(ctx context.Context, claimedNationalID string, sample []byte) (Result, error)
}

// HTTPVerifier calls a document verification service.
type HTTPVerifier struct {
	baseURL string
	client  *http.Client
}

func NewHTTPVerifier(baseURL string, timeout time.Duration) *HTTPVerifier {
	return &HTTPVerifier{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (v *HTTPVerifier) Verify(ctx context.Context, claimedNationalID string, sample []byte) (Result, error) {
	body, err := json.Marshal(map[string]string{
		"claimed_national_id": claimedNationalID,
		"document":            base64.StdEncoding.EncodeToString(sample),
	})
	if err != nil {
		return Result{}, fmt.Errorf("marshal document request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.baseURL+"/v1/verify", bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("build document request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("document verify: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("document verifier returned %d", resp.StatusCode)
	}

	var out struct {
		Valid     bool            `json:"valid"`
		Reason    string          `json:"reason"`
		Extracted ExtractedFields `json:"extracted"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Result{}, fmt.Errorf("decode document response: %w", err)
	}
	return Result{Valid: out.Valid, Reason: out.Reason, Extracted: out.Extracted}, nil
}

// MockVerifier accepts every document whose claimed ID it is not told to
// reject. Dev and unit tests only.
type MockVerifier struct {
	Latency   time.Duration
	RejectIDs map[string]string // national ID -> rejection reason
}

func (v *MockVerifier) Verify(_ context.Context, claimedNationalID string, _ []byte) (Result, error) {
	time.Sleep(v.Latency)
	if reason, ok := v.RejectIDs[claimedNationalID]; ok {
		return Result{Valid: false, Reason: reason}, nil
	}
	return Result{
		Valid: true,
		Extracted: ExtractedFields{
			NationalID:  claimedNationalID,
			FullName:    "Sample Citizen",
			DateOfBirth: "1990-02-03",
		},
	}, nil
}
