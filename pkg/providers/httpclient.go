package providers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/pgrlq7/pierre-mcp-server-sub000/pkg/logger"
)

// DefaultTimeout bounds every upstream provider HTTP call.
const DefaultTimeout = 10 * time.Second

// maxAttempts caps retries on transient upstream failures (429 and 5xx).
const maxAttempts = 3

// NewHTTPClient returns the HTTP client adapters use for upstream calls.
func NewHTTPClient() *http.Client {
	return &http.Client{Timeout: DefaultTimeout}
}

// GetJSON performs an authenticated GET against url and returns the response
// body. Transient upstream failures (429, 5xx) are retried with exponential
// backoff; a 401 surfaces immediately as ErrUnauthorized so the caller can
// refresh and retry once.
func GetJSON(ctx context.Context, client *http.Client, url, accessToken string) ([]byte, error) {
	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = 200 * time.Millisecond

	operation := func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		if accessToken != "" {
			req.Header.Set("Authorization", "Bearer "+accessToken)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			// Network errors may be transient; retry.
			return nil, err
		}
		defer func() { _ = resp.Body.Close() }()

		body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
		if err != nil {
			return nil, err
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			return body, nil
		case resp.StatusCode == http.StatusUnauthorized:
			return nil, backoff.Permanent(ErrUnauthorized)
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			logger.Debugf("Transient upstream status %d for %s", resp.StatusCode, url)
			return nil, fmt.Errorf("upstream returned %d", resp.StatusCode)
		default:
			return nil, backoff.Permanent(fmt.Errorf("upstream returned %d: %s", resp.StatusCode, string(body)))
		}
	}

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(expBackoff),
		backoff.WithMaxTries(maxAttempts),
	)
}
