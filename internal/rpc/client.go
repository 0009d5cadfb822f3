package rpc

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"net/http"
	"strconv"
	"time"
)

// Retry and backoff constants.
const (
	defaultMaxRetries = 5
	baseBackoff       = 1 * time.Second
	maxBackoff        = 60 * time.Second
	backoffFactor     = 2.0
	jitterFraction    = 0.25
	defaultUserAgent  = "copy-go/0.1"
)

// Header values required by the Copy API.
const (
	apiVersion  = "1.0"
	clientType  = "API"
	binaryCType = "application/octet-stream"
	jsonCType   = "application/json"
)

// Client is an HTTP Transport for the Copy JSON-RPC API. It selects the
// endpoint and headers per method, signs every attempt through its
// Authenticator, and retries network errors and retryable statuses with
// exponential backoff.
type Client struct {
	baseURL    string
	httpClient *http.Client
	auth       Authenticator
	logger     *slog.Logger
	userAgent  string
	apiVersion string
	clientType string
	maxRetries int

	// sleepFunc is called to wait between retries. Tests override this
	// to avoid real delays.
	sleepFunc func(ctx context.Context, d time.Duration) error
}

// NewClient creates a Copy API transport. baseURL is typically
// "https://api.copy.com". A nil auth sends unsigned requests.
func NewClient(
	baseURL string, httpClient *http.Client, auth Authenticator, logger *slog.Logger, userAgent string,
) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	if auth == nil {
		auth = NoAuth{}
	}

	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		auth:       auth,
		logger:     logger,
		userAgent:  userAgent,
		apiVersion: apiVersion,
		clientType: clientType,
		maxRetries: defaultMaxRetries,
		sleepFunc:  timeSleep,
	}
}

// SetMaxRetries overrides the number of retries after the first attempt.
// Negative values are treated as zero.
func (c *Client) SetMaxRetries(n int) {
	c.maxRetries = max(n, 0)
}

// SetIdentity overrides the X-Api-Version and X-Client-Type header values.
// Empty arguments keep the current value.
func (c *Client) SetIdentity(version, client string) {
	if version != "" {
		c.apiVersion = version
	}

	if client != "" {
		c.clientType = client
	}
}

// Headers returns the default HTTP headers sent for method, excluding
// credentials.
func Headers(method string) http.Header {
	h := http.Header{}
	if IsBinaryMethod(method) {
		h.Set("Content-Type", binaryCType)
	} else {
		h.Set("Content-Type", jsonCType)
	}

	h.Set("X-Api-Version", apiVersion)
	h.Set("X-Client-Type", clientType)

	return h
}

// Call posts body to the endpoint serving method and returns the raw
// response body of a 2xx reply. The body is a byte slice, so every retry
// resends it in full. Failures are returned as *RemoteError.
func (c *Client) Call(ctx context.Context, method string, body []byte) ([]byte, error) {
	url := c.baseURL + Endpoint(method)

	var attempt int
	for {
		resp, err := c.doOnce(ctx, method, url, body)
		if err != nil {
			// Context cancellation is not retryable.
			if ctx.Err() != nil {
				return nil, &RemoteError{Method: method, Message: "request canceled", Err: ctx.Err()}
			}

			if attempt < c.maxRetries {
				backoff := c.calcBackoff(attempt)
				c.logger.Warn("retrying after network error",
					slog.String("method", method),
					slog.Int("attempt", attempt+1),
					slog.Duration("backoff", backoff),
					slog.String("error", err.Error()),
				)

				if sleepErr := c.sleepFunc(ctx, backoff); sleepErr != nil {
					return nil, &RemoteError{Method: method, Message: "request canceled", Err: sleepErr}
				}

				attempt++

				continue
			}

			return nil, &RemoteError{
				Method:  method,
				Message: fmt.Sprintf("failed after %d retries", c.maxRetries),
				Err:     err,
			}
		}

		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		// 2xx: success.
		if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
			if readErr != nil {
				return nil, &RemoteError{Method: method, Message: "reading response body", Err: readErr}
			}

			c.logger.Debug("request succeeded",
				slog.String("method", method),
				slog.Int("status", resp.StatusCode),
				slog.Int("bytes", len(respBody)),
			)

			return respBody, nil
		}

		if readErr != nil {
			respBody = []byte("(failed to read response body)")
		}

		if isRetryable(resp.StatusCode) && attempt < c.maxRetries {
			backoff := c.retryBackoff(resp, attempt)
			c.logger.Warn("retrying after HTTP error",
				slog.String("method", method),
				slog.Int("status", resp.StatusCode),
				slog.Int("attempt", attempt+1),
				slog.Duration("backoff", backoff),
			)

			if err := c.sleepFunc(ctx, backoff); err != nil {
				return nil, &RemoteError{Method: method, Message: "request canceled", Err: err}
			}

			attempt++

			continue
		}

		if attempt > 0 {
			c.logger.Error("request failed after retries",
				slog.String("method", method),
				slog.Int("status", resp.StatusCode),
				slog.Int("attempts", attempt+1),
			)
		}

		return nil, &RemoteError{
			Method:     method,
			StatusCode: resp.StatusCode,
			Message:    string(respBody),
			Err:        classifyStatus(resp.StatusCode),
		}
	}
}

// doOnce executes a single signed HTTP request (no retry).
func (c *Client) doOnce(ctx context.Context, method, url string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	for k, v := range Headers(method) {
		req.Header[k] = v
	}

	req.Header.Set("X-Api-Version", c.apiVersion)
	req.Header.Set("X-Client-Type", c.clientType)
	req.Header.Set("User-Agent", c.userAgent)

	if err := c.auth.Sign(req); err != nil {
		return nil, fmt.Errorf("signing request: %w", err)
	}

	return c.httpClient.Do(req)
}

// retryBackoff returns the backoff duration for a retryable response.
// For 429 responses with a Retry-After header, that value is used.
func (c *Client) retryBackoff(resp *http.Response, attempt int) time.Duration {
	if resp.StatusCode == http.StatusTooManyRequests {
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if seconds, err := strconv.Atoi(ra); err == nil && seconds > 0 {
				return time.Duration(seconds) * time.Second
			}
		}
	}

	return c.calcBackoff(attempt)
}

// calcBackoff computes exponential backoff with ±25% jitter.
func (c *Client) calcBackoff(attempt int) time.Duration {
	backoff := float64(baseBackoff) * math.Pow(backoffFactor, float64(attempt))
	if backoff > float64(maxBackoff) {
		backoff = float64(maxBackoff)
	}

	jitter := backoff * jitterFraction * (rand.Float64()*2 - 1) //nolint:gosec // jitter does not need crypto rand
	backoff += jitter

	return time.Duration(backoff)
}

// timeSleep waits for the given duration or until the context is canceled.
func timeSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
