// Package registry talks to the civil registry that authoritatively maps
// national IDs to citizens. The pipeline treats it as optional evidence:
// unreachability degrades verification instead of failing it (see the
// identity pipeline's REGISTRY_CHECK stage).
package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"skillpass/pkg/domain"
	"skillpass/pkg/platform/sentinel"
)

// MatchFields are optional attributes cross-checked against the registry
// record. Empty fields are not matched.
type MatchFields struct {
	FullName    string
	DateOfBirth string // YYYY-MM-DD
}

// Result is the registry's answer for one national ID.
type Result struct {
	Valid         bool
	MatchedFields []string
	Source        string
	CheckedAt     time.Time
}

// Client queries the civil registry.
//
// Errors: sentinel.ErrUnavailable (possibly wrapped) when the registry cannot
// be reached within the deadline; any other error is a protocol failure.
type Client interface {
	Lookup(ctx context.Context, nationalID domain.NationalID, match MatchFields) (Result, error)
}

// HTTPClient calls a registry gateway over HTTP.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type lookupRequest struct {
	NationalID  string `json:"national_id"`
	FullName    string `json:"full_name,omitempty"`
	DateOfBirth string `json:"date_of_birth,omitempty"`
}

type lookupResponse struct {
	Valid         bool     `json:"valid"`
	MatchedFields []string `json:"matched_fields"`
	Source        string   `json:"source"`
}

func (c *HTTPClient) Lookup(ctx context.Context, nationalID domain.NationalID, match MatchFields) (Result, error) {
	body, err := json.Marshal(lookupRequest{
		NationalID:  nationalID.String(),
		FullName:    match.FullName,
		DateOfBirth: match.DateOfBirth,
	})
	if err != nil {
		return Result{}, fmt.Errorf("marshal registry request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/validate", bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("build registry request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		// Timeouts and connection errors mean "unreachable": the caller
		// decides whether to degrade or hard-fail.
		var netErr net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
			return Result{}, fmt.Errorf("registry lookup timed out: %w", sentinel.ErrUnavailable)
		}
		return Result{}, fmt.Errorf("registry lookup: %v: %w", err, sentinel.ErrUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return Result{}, fmt.Errorf("registry returned %d: %w", resp.StatusCode, sentinel.ErrUnavailable)
	}
	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("registry returned unexpected status %d", resp.StatusCode)
	}

	var out lookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Result{}, fmt.Errorf("decode registry response: %w", err)
	}
	return Result{
		Valid:         out.Valid,
		MatchedFields: out.MatchedFields,
		Source:        out.Source,
		CheckedAt:     time.Now(),
	}, nil
}

// MockClient returns deterministic data with a configurable latency to mimic
// real-world calls. Used in dev and unit tests.
type MockClient struct {
	Latency     time.Duration
	Unreachable bool
	// InvalidIDs lists national IDs the mock reports as not found.
	InvalidIDs map[string]bool
}

func (c *MockClient) Lookup(_ context.Context, nationalID domain.NationalID, match MatchFields) (Result, error) {
	time.Sleep(c.Latency)
	if c.Unreachable {
		return Result{}, sentinel.ErrUnavailable
	}
	if c.InvalidIDs[nationalID.String()] {
		return Result{Valid: false, Source: "mock", CheckedAt: time.Now()}, nil
	}
	matched := []string{"national_id"}
	if match.FullName != "" {
		matched = append(matched, "full_name")
	}
	if match.DateOfBirth != "" {
		matched = append(matched, "date_of_birth")
	}
	return Result{Valid: true, MatchedFields: matched, Source: "mock", CheckedAt: time.Now()}, nil
}
