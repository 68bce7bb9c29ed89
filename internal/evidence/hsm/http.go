package hsm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HTTPClient calls a networked HSM gateway. A timeout here is a hard failure
// for the caller: issuance must not proceed on a partial signature.
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

func (c *HTTPClient) Encrypt(ctx context.Context, payload []byte, keyRef string) (string, error) {
	body, err := json.Marshal(map[string]string{
		"payload": base64.StdEncoding.EncodeToString(payload),
		"key_ref": keyRef,
	})
	if err != nil {
		return "", fmt.Errorf("marshal encrypt request: %w", err)
	}

	var out struct {
		Ref string `json:"ref"`
	}
	if err := c.post(ctx, "/v1/encrypt", body, &out); err != nil {
		return "", err
	}
	return out.Ref, nil
}

func (c *HTTPClient) Sign(ctx context.Context, canonical []byte, issuerKeyRef string) (Proof, error) {
	body, err := json.Marshal(map[string]string{
		"payload": base64.StdEncoding.EncodeToString(canonical),
		"key_ref": issuerKeyRef,
	})
	if err != nil {
		return Proof{}, fmt.Errorf("marshal sign request: %w", err)
	}

	var out Proof
	if err := c.post(ctx, "/v1/sign", body, &out); err != nil {
		return Proof{}, err
	}
	return out, nil
}

func (c *HTTPClient) post(ctx context.Context, path string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build hsm request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("hsm %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("hsm %s returned %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode hsm response: %w", err)
	}
	return nil
}
