package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parity-labs/parity-cli/internal/model"
	"github.com/parity-labs/parity-cli/pkg/query"
)

func fastRetriever(client query.Client) *Retriever {
	return NewRetriever(client, RetrieverConfig{
		Timeout:         250 * time.Millisecond,
		PollInterval:    5 * time.Millisecond,
		MaxPollInterval: 20 * time.Millisecond,
	})
}

func TestRetrieveImmediate(t *testing.T) {
	t.Parallel()

	q := newFakeQuery()
	q.addRecord("corr-1", map[string]string{"timestamp": "timestamp", "user": "string"})

	res, err := fastRetriever(q).Retrieve(context.Background(), "corr-1", 1)
	require.NoError(t, err)
	assert.Equal(t, OutcomeRetrieved, res.Outcome)
	require.Len(t, res.Records, 1)
	assert.Equal(t, "corr-1", res.Records[0].CorrelationID)
}

func TestRetrieveAfterDelay(t *testing.T) {
	t.Parallel()

	q := newFakeQuery()
	q.readyAfter = 3
	q.addRecord("corr-1", map[string]string{"user": "string"})

	res, err := fastRetriever(q).Retrieve(context.Background(), "corr-1", 1)
	require.NoError(t, err)
	assert.Equal(t, OutcomeRetrieved, res.Outcome)
	assert.GreaterOrEqual(t, q.pollCount("corr-1"), 4, "needs polls beyond the delay")
}

func TestRetrieveTimeout(t *testing.T) {
	t.Parallel()

	q := newFakeQuery() // never returns records

	res, err := fastRetriever(q).Retrieve(context.Background(), "corr-1", 1)
	require.NoError(t, err, "timeout is an outcome, not an error")
	assert.Equal(t, OutcomeTimedOut, res.Outcome)
	assert.Empty(t, res.Records)
}

func TestRetrieveAbsorbsTransientErrors(t *testing.T) {
	t.Parallel()

	q := newFakeQuery()
	q.err = &query.APIError{StatusCode: 503, Message: "unavailable"}
	q.errCalls = 2
	q.addRecord("corr-1", map[string]string{"user": "string"})

	res, err := fastRetriever(q).Retrieve(context.Background(), "corr-1", 1)
	require.NoError(t, err)
	assert.Equal(t, OutcomeRetrieved, res.Outcome)
	require.Len(t, res.Records, 1)
}

func TestRetrieveAuthAborts(t *testing.T) {
	t.Parallel()

	q := newFakeQuery()
	q.err = &query.APIError{StatusCode: 403, Message: "forbidden"}

	start := time.Now()
	_, err := fastRetriever(q).Retrieve(context.Background(), "corr-1", 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "credentials")
	assert.Less(t, time.Since(start), 100*time.Millisecond, "auth aborts before the window elapses")
}

func TestRetrieveDeduplicatesRedelivery(t *testing.T) {
	t.Parallel()

	q := newFakeQuery()
	// The same record twice in one response, as a redelivering queue would.
	q.addRecord("corr-1", map[string]string{"user": "string"})
	q.mu.Lock()
	q.records["corr-1"] = append(q.records["corr-1"], q.records["corr-1"][0])
	q.mu.Unlock()

	res, err := fastRetriever(q).Retrieve(context.Background(), "corr-1", 2)
	require.NoError(t, err)
	assert.Equal(t, OutcomeTimedOut, res.Outcome, "the duplicate never counts toward expected")
	require.Len(t, res.Records, 1)
}

func TestRetrieveCancellationReturnsPartial(t *testing.T) {
	t.Parallel()

	q := newFakeQuery()
	q.addRecord("corr-1", map[string]string{"user": "string"})
	// corr-2 never arrives.

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	r := NewRetriever(q, RetrieverConfig{
		Timeout:         5 * time.Second,
		PollInterval:    5 * time.Millisecond,
		MaxPollInterval: 10 * time.Millisecond,
	})
	records := []model.CorrelationRecord{
		{CorrelationID: "corr-1", DispatchOK: true, DispatchTime: time.Now()},
		{CorrelationID: "corr-2", DispatchOK: true, DispatchTime: time.Now()},
	}
	res, err := r.RetrieveAll(ctx, records)
	require.NoError(t, err)
	assert.Equal(t, OutcomeTimedOut, res.Outcome)
	require.Len(t, res.Records, 1, "partial results survive cancellation")
	assert.Equal(t, "corr-1", res.Records[0].CorrelationID)
}

func TestRetrieveAllSkipsFailedDispatches(t *testing.T) {
	t.Parallel()

	q := newFakeQuery()
	q.addRecord("corr-ok", map[string]string{"user": "string"})

	records := []model.CorrelationRecord{
		{CorrelationID: "corr-ok", DispatchOK: true, DispatchTime: time.Now()},
		{CorrelationID: "corr-bad", DispatchOK: false, FailKind: model.ErrKindDispatch},
	}
	res, err := fastRetriever(q).RetrieveAll(context.Background(), records)
	require.NoError(t, err)
	assert.Equal(t, OutcomeRetrieved, res.Outcome)
	assert.Equal(t, 0, q.pollCount("corr-bad"), "failed dispatches are never polled")
}

func TestRetrieveAllNoDispatchedRecords(t *testing.T) {
	t.Parallel()

	res, err := fastRetriever(newFakeQuery()).RetrieveAll(context.Background(), []model.CorrelationRecord{
		{CorrelationID: "corr-bad", DispatchOK: false},
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeTimedOut, res.Outcome)
	assert.Empty(t, res.Records)
}
