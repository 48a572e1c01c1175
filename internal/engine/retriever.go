package engine

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/parity-labs/parity-cli/internal/model"
	"github.com/parity-labs/parity-cli/internal/resilience"
	"github.com/parity-labs/parity-cli/pkg/query"
)

// RetrievalOutcome is the terminal result of a retrieval window.
type RetrievalOutcome string

const (
	// OutcomeRetrieved means the expected record count arrived in time.
	OutcomeRetrieved RetrievalOutcome = "retrieved"
	// OutcomeTimedOut means the window elapsed first. Not an error: "the
	// parser never produced output" is itself diagnostic.
	OutcomeTimedOut RetrievalOutcome = "timed_out"
)

// RetrievalResult holds the deduplicated parsed records observed within the
// wait window, which may be partial on timeout.
type RetrievalResult struct {
	Outcome RetrievalOutcome
	Records []model.ParsedRecord
}

// RetrieverConfig bounds the polling loop. All values are passed explicitly
// by the caller, never read from ambient state.
type RetrieverConfig struct {
	// Timeout is the overall wait window per retrieval.
	Timeout time.Duration
	// PollInterval is the initial delay between polls; it doubles up to
	// MaxPollInterval with ±25% jitter to avoid hammering the query API in
	// lockstep with sibling workers.
	PollInterval    time.Duration
	MaxPollInterval time.Duration
}

func (c RetrieverConfig) withDefaults() RetrieverConfig {
	if c.Timeout <= 0 {
		c.Timeout = 2 * time.Minute
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 2 * time.Second
	}
	if c.MaxPollInterval <= 0 {
		c.MaxPollInterval = 30 * time.Second
	}
	return c
}

// Retriever polls the query API for parsed records matching correlation ids.
type Retriever struct {
	client query.Client
	cfg    RetrieverConfig
}

// NewRetriever creates a Retriever.
func NewRetriever(client query.Client, cfg RetrieverConfig) *Retriever {
	return &Retriever{client: client, cfg: cfg.withDefaults()}
}

// Retrieve polls for records tagged with a single correlation id until at
// least expectedCount are observed or the window elapses. Transient API
// errors are absorbed silently within the window; auth errors abort
// immediately and are returned.
func (r *Retriever) Retrieve(ctx context.Context, correlationID string, expectedCount int) (RetrievalResult, error) {
	return r.poll(ctx, map[string]int{correlationID: expectedCount}, time.Time{})
}

// RetrieveAll polls for every successfully dispatched record in the batch,
// sharing one wait window and one backoff curve across the ids. The outcome
// is Retrieved only when every id produced at least one parsed record.
func (r *Retriever) RetrieveAll(ctx context.Context, records []model.CorrelationRecord) (RetrievalResult, error) {
	wants := make(map[string]int, len(records))
	var since time.Time
	for _, rec := range records {
		if !rec.DispatchOK {
			continue
		}
		wants[rec.CorrelationID] = 1
		if since.IsZero() || rec.DispatchTime.Before(since) {
			since = rec.DispatchTime
		}
	}
	if len(wants) == 0 {
		return RetrievalResult{Outcome: OutcomeTimedOut}, nil
	}
	return r.poll(ctx, wants, since)
}

func (r *Retriever) poll(ctx context.Context, wants map[string]int, since time.Time) (RetrievalResult, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	backoffCfg := resilience.RetryConfig{
		InitialBackoff: r.cfg.PollInterval,
		MaxBackoff:     r.cfg.MaxPollInterval,
		Multiplier:     2.0,
		JitterFraction: 0.25,
	}

	collected := make(map[string]model.ParsedRecord)
	counts := make(map[string]int, len(wants))

	for attempt := 0; ; attempt++ {
		for id, want := range wants {
			if counts[id] >= want {
				continue
			}
			recs, err := r.client.Records(ctx, id, since, 100)
			if err != nil {
				if query.IsAuth(err) {
					return RetrievalResult{}, eris.Wrap(err, "retrieve: query rejected credentials")
				}
				if ctx.Err() != nil {
					return RetrievalResult{Outcome: OutcomeTimedOut, Records: sortedRecords(collected)}, nil
				}
				// Transient: absorbed within the window, next poll retries.
				zap.L().Debug("retrieve: poll error, will retry",
					zap.String("correlation_id", id),
					zap.Error(err),
				)
				continue
			}
			for _, rec := range recs {
				key := dedupeKey(rec)
				if _, seen := collected[key]; seen {
					continue
				}
				collected[key] = model.ParsedRecord{
					ID:            rec.ID,
					CorrelationID: rec.CorrelationID,
					ParsedAt:      rec.ParsedAt,
					Fields:        rec.Fields,
				}
				counts[rec.CorrelationID]++
			}
		}

		if satisfied(wants, counts) {
			return RetrievalResult{Outcome: OutcomeRetrieved, Records: sortedRecords(collected)}, nil
		}

		// Cooperative cancellation: the deadline is checked here, never by
		// interrupting an in-flight request.
		timer := time.NewTimer(resilience.Backoff(attempt, backoffCfg))
		select {
		case <-ctx.Done():
			timer.Stop()
			return RetrievalResult{Outcome: OutcomeTimedOut, Records: sortedRecords(collected)}, nil
		case <-timer.C:
		}
	}
}

func satisfied(wants, counts map[string]int) bool {
	for id, want := range wants {
		if counts[id] < want {
			return false
		}
	}
	return true
}

// dedupeKey identifies a parsed record across redelivery. The query API does
// not guarantee exactly-once, so records without a server id fall back to a
// field fingerprint.
func dedupeKey(rec query.Record) string {
	if rec.ID != "" {
		return rec.ID
	}
	names := make([]string, 0, len(rec.Fields))
	for n := range rec.Fields {
		names = append(names, n)
	}
	sort.Strings(names)
	return rec.CorrelationID + "#" + strings.Join(names, ",")
}

func sortedRecords(collected map[string]model.ParsedRecord) []model.ParsedRecord {
	out := make([]model.ParsedRecord, 0, len(collected))
	for _, rec := range collected {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CorrelationID != out[j].CorrelationID {
			return out[i].CorrelationID < out[j].CorrelationID
		}
		return out[i].ID < out[j].ID
	})
	return out
}
