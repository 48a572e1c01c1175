// Package query provides a client for the parsed-record query API.
package query

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Client defines the query operations.
type Client interface {
	// Records returns parser-processed records tagged with the correlation
	// id, observed since the given time. Zero records is a normal result,
	// not an error. Ordering and exactly-once delivery are not guaranteed.
	Records(ctx context.Context, correlationID string, since time.Time, limit int) ([]Record, error)
}

// Record is one parsed record as returned by the query API. Fields maps
// extracted field names to wire-level type tags.
type Record struct {
	ID            string            `json:"id"`
	CorrelationID string            `json:"correlation_id"`
	ParsedAt      time.Time         `json:"parsed_at"`
	Fields        map[string]string `json:"fields"`
}

// APIError is a non-2xx response from the query endpoint.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("query: status %d: %s", e.StatusCode, e.Message)
}

// IsAuth returns true if the error is an APIError with a credential-rejection
// status. Auth failures abort polling immediately.
func IsAuth(err error) bool {
	var ae *APIError
	if !errors.As(err, &ae) {
		return false
	}
	return ae.StatusCode == http.StatusUnauthorized || ae.StatusCode == http.StatusForbidden
}

// Option configures the query client.
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

// WithRateLimit caps outbound request rate against the query endpoint,
// independent of how many polling workers share the client.
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

// NewClient creates a new query client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: "https://query.local",
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

func (c *httpClient) Records(ctx context.Context, correlationID string, since time.Time, limit int) ([]Record, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "query: rate limiter wait")
		}
	}

	params := url.Values{}
	params.Set("correlation_id", correlationID)
	if !since.IsZero() {
		params.Set("since", since.UTC().Format(time.RFC3339))
	}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	reqURL := c.baseURL + "/v1/parsed?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "query: create request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "query: request failed")
	}

	body, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return nil, eris.Wrap(readErr, "query: read response body")
	}

	// The API answers 404 when the correlation id has never been seen.
	// Treat it as zero records, same as an empty result list.
	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: string(body)}
	}

	var result struct {
		Records []Record `json:"records"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "query: unmarshal response")
	}

	return result.Records, nil
}
