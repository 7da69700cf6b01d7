package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Retry policy for remote embedding calls.
const (
	defaultRetries      = 3
	defaultRetryBackoff = 250 * time.Millisecond
	maxResponseBytes    = 64 << 20
)

// transport posts JSON to an embedding endpoint. Transport errors, 429 and
// 5xx responses are retried with exponential backoff; any other status is
// returned to the caller on the first attempt.
type transport struct {
	client  *http.Client
	retries uint64
	initial time.Duration
}

func newTransport(timeout time.Duration) *transport {
	return &transport{
		client:  &http.Client{Timeout: timeout},
		retries: defaultRetries,
		initial: defaultRetryBackoff,
	}
}

// errRetryable marks an attempt that should be tried again.
var errRetryable = errors.New("retryable status")

// post sends body to url and decodes the final response into out. The status
// of the final response is returned so callers can surface error payloads.
func (t *transport) post(ctx context.Context, url string, headers map[string]string, body, out any) (int, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, fmt.Errorf("marshal request: %w", err)
	}

	var (
		status int
		raw    []byte
	)
	attempt := func() error {
		status, raw = 0, nil
		s, b, err := t.do(ctx, url, headers, payload)
		if err != nil {
			return err
		}
		status, raw = s, b
		if s == http.StatusTooManyRequests || s >= http.StatusInternalServerError {
			return fmt.Errorf("%w: HTTP %d", errRetryable, s)
		}
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = t.initial
	err = backoff.Retry(attempt, backoff.WithContext(backoff.WithMaxRetries(policy, t.retries), ctx))
	if err != nil && (status == 0 || ctx.Err() != nil) {
		return 0, fmt.Errorf("request failed: %w", err)
	}

	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return status, fmt.Errorf("decode response (HTTP %d): %w", status, err)
		}
	}
	return status, nil
}

func (t *transport) do(ctx context.Context, url string, headers map[string]string, payload []byte) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, backoff.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return 0, nil, backoff.Permanent(err)
		}
		return 0, nil, err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return 0, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, b, nil
}

func statusOK(code int) bool { return code >= 200 && code < 300 }
