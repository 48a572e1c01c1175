package ingest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleEvents() []Event {
	return []Event{
		{
			ID:            "ev-1",
			CorrelationID: "corr-1",
			ProducerID:    "okta",
			EmittedAt:     time.Now().UTC(),
			Payload:       json.RawMessage(`{"user":"alice"}`),
		},
		{
			ID:            "ev-2",
			CorrelationID: "corr-2",
			ProducerID:    "okta",
			EmittedAt:     time.Now().UTC(),
			Payload:       json.RawMessage(`{"user":"bob"}`),
		},
	}
}

func TestSend_Success(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/events", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req struct {
			Events []Event `json:"events"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Len(t, req.Events, 2)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(SendResult{Accepted: 2, Rejected: 0})
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	got, err := client.Send(context.Background(), sampleEvents())

	require.NoError(t, err)
	assert.Equal(t, 2, got.Accepted)
	assert.Equal(t, 0, got.Rejected)
}

func TestSend_PartialRejection(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(SendResult{
			Accepted: 1,
			Rejected: 1,
			Errors:   []EventError{{EventID: "ev-2", Message: "payload too large"}},
		})
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	got, err := client.Send(context.Background(), sampleEvents())

	require.NoError(t, err)
	assert.Equal(t, 1, got.Rejected)
	require.Len(t, got.Errors, 1)
	assert.Equal(t, "ev-2", got.Errors[0].EventID)
}

func TestSend_RetriesTransientThenSucceeds(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(SendResult{Accepted: 2})
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	got, err := client.Send(context.Background(), sampleEvents())

	require.NoError(t, err)
	assert.Equal(t, 2, got.Accepted)
	assert.Equal(t, int32(2), calls.Load())
}

func TestSend_AuthNotRetried(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"bad credentials"}`))
	}))
	defer srv.Close()

	client := NewClient("bad-key", WithBaseURL(srv.URL))
	_, err := client.Send(context.Background(), sampleEvents())

	require.Error(t, err)
	assert.True(t, IsAuth(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestSend_ContextCancellation(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	_, err := client.Send(ctx, sampleEvents())
	require.Error(t, err)
}

func TestIsAuth(t *testing.T) {
	t.Parallel()

	assert.True(t, IsAuth(&APIError{StatusCode: 401}))
	assert.True(t, IsAuth(&APIError{StatusCode: 403}))
	assert.False(t, IsAuth(&APIError{StatusCode: 500}))
	assert.False(t, IsAuth(context.Canceled))
	assert.False(t, IsAuth(nil))
}
