// Package ingest provides a client for the event ingestion API.
package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Client defines the ingestion operations.
type Client interface {
	// Send submits a batch of tagged events and returns per-batch accept
	// counts plus per-event rejections.
	Send(ctx context.Context, events []Event) (*SendResult, error)
}

// Event is the wire shape of one outbound event. Payload is pre-encoded by
// the caller so encoding failures surface before the network call.
type Event struct {
	ID            string          `json:"id"`
	CorrelationID string          `json:"correlation_id"`
	ProducerID    string          `json:"producer_id"`
	EmittedAt     time.Time       `json:"emitted_at"`
	Payload       json.RawMessage `json:"payload"`
}

// EventError reports why the endpoint rejected one event.
type EventError struct {
	EventID string `json:"event_id"`
	Message string `json:"message"`
}

// SendResult is the parsed ingestion response.
type SendResult struct {
	Accepted int          `json:"accepted"`
	Rejected int          `json:"rejected"`
	Errors   []EventError `json:"errors,omitempty"`
}

// APIError is a non-2xx response from the ingestion endpoint.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("ingest: status %d: %s", e.StatusCode, e.Message)
}

// IsAuth returns true if the error is an APIError with a credential-rejection
// status. Auth failures must not be retried.
func IsAuth(err error) bool {
	var ae *APIError
	if !errors.As(err, &ae) {
		return false
	}
	return ae.StatusCode == http.StatusUnauthorized || ae.StatusCode == http.StatusForbidden
}

// Option configures the ingestion client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit caps outbound request rate against the ingestion endpoint,
// independent of how many workers share the client.
func WithRateLimit(perSec float64, burst int) Option {
	return func(c *httpClient) {
		c.limiter = rate.NewLimiter(rate.Limit(perSec), burst)
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a new ingestion client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: "https://ingest.local",
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// retryableStatusCode returns true if the HTTP status should trigger a retry.
func retryableStatusCode(code int) bool {
	return code == http.StatusTooManyRequests ||
		code == http.StatusInternalServerError ||
		code == http.StatusBadGateway ||
		code == http.StatusServiceUnavailable
}

// retryDo posts the body with exponential backoff on transient failures
// (429, 500, 502, 503). Auth rejections return immediately.
func (c *httpClient) retryDo(ctx context.Context, url string, body []byte) ([]byte, int, error) {
	const maxAttempts = 3
	backoff := 1 * time.Second

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, 0, eris.Wrap(err, "ingest: rate limiter wait")
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, 0, eris.Wrap(err, "ingest: create request")
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			if attempt < maxAttempts {
				select {
				case <-ctx.Done():
					return nil, 0, ctx.Err()
				case <-time.After(backoff):
				}
				backoff *= 2
				continue
			}
			return nil, 0, lastErr
		}

		respBody, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return nil, resp.StatusCode, eris.Wrap(readErr, "ingest: read response body")
		}

		if retryableStatusCode(resp.StatusCode) && attempt < maxAttempts {
			lastErr = eris.Errorf("ingest: status %d: %s", resp.StatusCode, string(respBody))
			select {
			case <-ctx.Done():
				return nil, 0, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			continue
		}

		return respBody, resp.StatusCode, nil
	}

	return nil, 0, lastErr
}

func (c *httpClient) Send(ctx context.Context, events []Event) (*SendResult, error) {
	payload := struct {
		Events []Event `json:"events"`
	}{Events: events}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: marshal events")
	}

	respBody, statusCode, err := c.retryDo(ctx, c.baseURL+"/v1/events", body)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: send request failed")
	}

	if statusCode != http.StatusOK && statusCode != http.StatusAccepted {
		return nil, &APIError{StatusCode: statusCode, Message: string(respBody)}
	}

	var result SendResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, eris.Wrap(err, "ingest: unmarshal response")
	}

	return &result, nil
}
