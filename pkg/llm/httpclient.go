package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/codegraph-dev/codegraph/pkg/models"
)

// maxSelfHealAttempts bounds how many extra "fix your JSON" round trips
// CompleteJSON makes before giving up (spec.md §4.3: "self-heal loop up
// to 2 attempts").
const maxSelfHealAttempts = 2

// maxRetries is the transport-level retry ceiling on 429/5xx/timeout
// before Complete gives up and returns the last error.
const maxRetries = 5

// HTTPClient is the default Client implementation: a single JSON-over-HTTP
// completion endpoint, bounded by a counting semaphore so at most
// RunOptions.MaxLLMConcurrency calls are in flight at once.
type HTTPClient struct {
	endpoint string
	apiKey   string
	model    string
	timeout  time.Duration
	http     *http.Client
	sem      chan struct{}
}

// NewHTTPClient builds a Client from RunOptions.LLM and the run's
// configured concurrency cap.
func NewHTTPClient(opts models.LLMOptions, maxConcurrency int) *HTTPClient {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if maxConcurrency <= 0 {
		maxConcurrency = 16
	}
	return &HTTPClient{
		endpoint: opts.Endpoint,
		apiKey:   opts.APIKey,
		model:    opts.Model,
		timeout:  timeout,
		http:     &http.Client{Timeout: timeout},
		sem:      make(chan struct{}, maxConcurrency),
	}
}

type completionRequest struct {
	Model      string `json:"model"`
	Prompt     string `json:"prompt"`
	SchemaHint string `json:"schema_hint,omitempty"`
}

type completionResponse struct {
	Text  string `json:"text"`
	Usage struct {
		InputTokens    int `json:"input_tokens"`
		OutputTokens   int `json:"output_tokens"`
		ThinkingTokens int `json:"thinking_tokens"`
	} `json:"usage"`
}

func (c *HTTPClient) Complete(ctx context.Context, prompt, schemaHint string) (string, models.TokenStats, error) {
	select {
	case c.sem <- struct{}{}:
	case <-ctx.Done():
		return "", models.TokenStats{}, ctx.Err()
	}
	defer func() { <-c.sem }()

	body, err := json.Marshal(completionRequest{Model: c.model, Prompt: prompt, SchemaHint: schemaHint})
	if err != nil {
		return "", models.TokenStats{}, fmt.Errorf("llm: marshal request: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= maxRetries+1; attempt++ {
		text, stats, err := c.doRequest(ctx, body)
		if err == nil {
			return text, stats, nil
		}
		lastErr = err
		if !isRetryable(err) {
			return "", models.TokenStats{}, err
		}
		if attempt == maxRetries+1 {
			break
		}
		d := retryBackoff(attempt)
		slog.Warn("llm: retrying completion", "attempt", attempt, "delay", d, "error", err)
		select {
		case <-ctx.Done():
			return "", models.TokenStats{}, ctx.Err()
		case <-time.After(d):
		}
	}
	return "", models.TokenStats{}, fmt.Errorf("llm: exhausted %d retries: %w", maxRetries, lastErr)
}

func (c *HTTPClient) doRequest(ctx context.Context, body []byte) (string, models.TokenStats, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", models.TokenStats{}, fmt.Errorf("llm: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", models.TokenStats{}, &transportError{err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", models.TokenStats{}, fmt.Errorf("llm: read response body: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return "", models.TokenStats{}, &statusError{code: resp.StatusCode, body: string(raw)}
	}
	if resp.StatusCode != http.StatusOK {
		return "", models.TokenStats{}, fmt.Errorf("llm: unexpected status %d: %s", resp.StatusCode, string(raw))
	}

	var out completionResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", models.TokenStats{}, fmt.Errorf("llm: decode response envelope: %w", err)
	}

	return out.Text, models.TokenStats{
		InputTokens:    out.Usage.InputTokens,
		OutputTokens:   out.Usage.OutputTokens,
		ThinkingTokens: out.Usage.ThinkingTokens,
	}, nil
}

func (c *HTTPClient) CompleteJSON(ctx context.Context, prompt string, out any) (models.TokenStats, error) {
	var totalStats models.TokenStats
	currentPrompt := prompt

	for attempt := 0; attempt <= maxSelfHealAttempts; attempt++ {
		raw, stats, err := c.Complete(ctx, currentPrompt, "")
		totalStats.InputTokens += stats.InputTokens
		totalStats.OutputTokens += stats.OutputTokens
		totalStats.ThinkingTokens += stats.ThinkingTokens
		if err != nil {
			return totalStats, err
		}

		cleaned := sanitizeJSON(raw)
		if jsonErr := json.Unmarshal([]byte(cleaned), out); jsonErr == nil {
			return totalStats, nil
		} else if attempt == maxSelfHealAttempts {
			return totalStats, fmt.Errorf("%w: %v", ErrUnparseable, jsonErr)
		} else {
			currentPrompt = healPrompt(prompt, raw, jsonErr)
		}
	}
	return totalStats, ErrUnparseable
}

func healPrompt(originalPrompt, badResponse string, parseErr error) string {
	return fmt.Sprintf(
		"%s\n\nYour previous response could not be parsed as JSON (%v). "+
			"Here is what you returned:\n%s\n\nReturn ONLY valid JSON matching the requested shape, with no prose or code fences.",
		originalPrompt, parseErr, badResponse,
	)
}

// transportError wraps a network-level failure from http.Client.Do, always
// retryable (connection refused, DNS failure, TLS handshake, etc.) unless
// it is a deadline the caller's own context imposed.
type transportError struct{ err error }

func (e *transportError) Error() string { return e.err.Error() }
func (e *transportError) Unwrap() error { return e.err }

// statusError wraps a 429 or 5xx HTTP response, which is always retryable.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.code, e.body)
}

func isRetryable(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return true
	}
	var te *transportError
	return errors.As(err, &te)
}

// retryBackoff is a jittered exponential schedule: 250ms doubling per
// attempt, capped at 8s, plus up to 25% jitter. It starts at the same 250ms
// as pkg/queue's BackoffFor but grows by doubling rather than by that
// function's fixed 250ms/2s/16s steps.
func retryBackoff(attempt int) time.Duration {
	base := 250 * time.Millisecond
	for i := 1; i < attempt; i++ {
		base *= 2
		if base > 8*time.Second {
			base = 8 * time.Second
			break
		}
	}
	jitter := time.Duration(rand.Int64N(int64(base) / 4))
	return base + jitter
}
