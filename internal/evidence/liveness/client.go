// Package liveness wraps the biometric liveness analyzer. Each biometric type
// (face, fingerprint, iris) has its own sub-check; all return a score plus a
// breakdown of contributing signals.
package liveness

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"skillpass/pkg/platform/sentinel"
)

// BiometricType selects the analyzer sub-check.
type BiometricType string

const (
	TypeFace        BiometricType = "face"
	TypeFingerprint BiometricType = "fingerprint"
	TypeIris        BiometricType = "iris"
)

// Supported reports whether the analyzer has a sub-check for t.
func Supported(t BiometricType) bool {
	switch t {
	case TypeFace, TypeFingerprint, TypeIris:
		return true
	}
	return false
}

// Result carries the liveness verdict and its contributing signals.
type Result struct {
	IsLive    bool
	Score     float64
	SubScores map[string]float64 // e.g. depth_analysis, motion, pupil_response
}

// Analyzer detects whether a biometric sample came from a live subject.
//
// Errors: sentinel.ErrUnsupported when the biometric type has no sub-check;
// other errors are analyzer failures and fail the pipeline stage.
type Analyzer interface {
	Detect(ctx context.Context, biometricType BiometricType, sample []byte) (Result, error)
}

// HTTPAnalyzer calls a liveness detection service.
type HTTPAnalyzer struct {
	baseURL string
	client  *http.Client
}

func NewHTTPAnalyzer(baseURL string, timeout time.Duration) *HTTPAnalyzer {
	return &HTTPAnalyzer{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (a *HTTPAnalyzer) Detect(ctx context.Context, biometricType BiometricType, sample []byte) (Result, error) {
	if !Supported(biometricType) {
		return Result{}, fmt.Errorf("biometric type %q: %w", biometricType, sentinel.ErrUnsupported)
	}

	body, err := json.Marshal(map[string]string{
		"type":   string(biometricType),
		"sample": base64.StdEncoding.EncodeToString(sample),
	})
	if err != nil {
		return Result{}, fmt.Errorf("marshal liveness request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v1/detect", bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("build liveness request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("liveness detect: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusUnprocessableEntity {
		return Result{}, fmt.Errorf("biometric type %q rejected by analyzer: %w", biometricType, sentinel.ErrUnsupported)
	}
	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("liveness analyzer returned %d", resp.StatusCode)
	}

	var out struct {
		IsLive    bool               `json:"is_live"`
		Score     float64            `json:"score"`
		SubScores map[string]float64 `json:"sub_scores"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Result{}, fmt.Errorf("decode liveness response: %w", err)
	}
	return Result{IsLive: out.IsLive, Score: out.Score, SubScores: out.SubScores}, nil
}

// MockAnalyzer returns a fixed score with a per-type signal breakdown. Dev and
// unit tests only.
type MockAnalyzer struct {
	Latency time.Duration
	Score   float64
}

func (a *MockAnalyzer) Detect(_ context.Context, biometricType BiometricType, _ []byte) (Result, error) {
	time.Sleep(a.Latency)
	if !Supported(biometricType) {
		return Result{}, fmt.Errorf("biometric type %q: %w", biometricType, sentinel.ErrUnsupported)
	}

	var signals map[string]float64
	switch biometricType {
	case TypeFace:
		signals = map[string]float64{"depth_analysis": a.Score, "motion": a.Score, "texture": a.Score}
	case TypeFingerprint:
		signals = map[string]float64{"ridge_flow": a.Score, "pore_detail": a.Score}
	case TypeIris:
		signals = map[string]float64{"pupil_response": a.Score, "specular_reflection": a.Score}
	}
	return Result{IsLive: a.Score >= 0.5, Score: a.Score, SubScores: signals}, nil
}
