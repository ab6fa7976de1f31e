package moderation

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

const maxResponseBytes = 1 << 20

// Client posts text to the external moderation service.
type Client struct {
	baseURL string
	apiKey  string
	signer  *Signer
	http    *http.Client
}

func NewClient(baseURL, apiKey string, signer *Signer, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		signer:  signer,
		http:    &http.Client{Timeout: timeout},
	}
}

// Check returns the service's verdict on text. Transport failures, timeouts
// and non-200 answers come back as ErrModerationUnavailable.
func (c *Client) Check(ctx context.Context, text string) (Verdict, error) {
	env, err := c.signer.BuildSignedEnvelope(map[string]string{"text": text})
	if err != nil {
		return Verdict{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(env.Body))
	if err != nil {
		return Verdict{}, fmt.Errorf("build moderation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("X-Auth-Token", env.Signature)

	resp, err := c.http.Do(req)
	if err != nil {
		return Verdict{}, fmt.Errorf("%w: %v", ErrModerationUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Verdict{}, fmt.Errorf("%w: status %d", ErrModerationUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return Verdict{}, fmt.Errorf("%w: read body: %v", ErrModerationUnavailable, err)
	}
	return InterpretVerdict(body, text)
}
