package engine

import (
	"context"
	"sync"
	"time"

	"github.com/parity-labs/parity-cli/internal/model"
	"github.com/parity-labs/parity-cli/pkg/ingest"
	"github.com/parity-labs/parity-cli/pkg/query"
)

// fakeProducer emits fixed payloads for a fixed field set.
type fakeProducer struct {
	id      string
	fields  *model.FieldSet
	payload map[string]any
	emitErr error
}

func (p *fakeProducer) ID() string              { return p.id }
func (p *fakeProducer) Fields() *model.FieldSet { return p.fields }

func (p *fakeProducer) Emit(n int) ([]map[string]any, error) {
	if p.emitErr != nil {
		return nil, p.emitErr
	}
	out := make([]map[string]any, n)
	for i := range out {
		out[i] = p.payload
	}
	return out, nil
}

// fakeIngest scripts the Send response. failures sets how many leading calls
// fail with err before succeeding. sendHook, when set, takes over the whole
// response so tests can key behavior on batch contents.
type fakeIngest struct {
	mu       sync.Mutex
	calls    int
	batches  [][]ingest.Event
	failures int
	err      error
	result   func(events []ingest.Event) *ingest.SendResult
	sendHook func(events []ingest.Event) (*ingest.SendResult, error)
}

func (f *fakeIngest) Send(_ context.Context, events []ingest.Event) (*ingest.SendResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.batches = append(f.batches, events)
	if f.sendHook != nil {
		return f.sendHook(events)
	}
	if f.err != nil && (f.failures == 0 || f.calls <= f.failures) {
		return nil, f.err
	}
	if f.result != nil {
		return f.result(events), nil
	}
	return &ingest.SendResult{Accepted: len(events)}, nil
}

func (f *fakeIngest) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeIngest) sentEvents() []ingest.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []ingest.Event
	for _, b := range f.batches {
		out = append(out, b...)
	}
	return out
}

// fakeQuery scripts per-correlation-id record availability. readyAfter delays
// visibility until that many polls of the id have happened, exercising the
// backoff loop without real parser latency.
type fakeQuery struct {
	mu         sync.Mutex
	calls      map[string]int
	records    map[string][]query.Record
	readyAfter int
	err        error
	errCalls   int

	// defaultFields, when set, synthesizes one record for any correlation
	// id so tests need not predict dispatcher-generated ids.
	defaultFields map[string]string
}

func newFakeQuery() *fakeQuery {
	return &fakeQuery{
		calls:   make(map[string]int),
		records: make(map[string][]query.Record),
	}
}

func (f *fakeQuery) addRecord(correlationID string, fields map[string]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[correlationID] = append(f.records[correlationID], query.Record{
		ID:            correlationID + "-rec",
		CorrelationID: correlationID,
		ParsedAt:      time.Now().UTC(),
		Fields:        fields,
	})
}

func (f *fakeQuery) Records(_ context.Context, correlationID string, _ time.Time, _ int) ([]query.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[correlationID]++
	if f.err != nil && (f.errCalls == 0 || f.calls[correlationID] <= f.errCalls) {
		return nil, f.err
	}
	if f.calls[correlationID] <= f.readyAfter {
		return nil, nil
	}
	if recs, ok := f.records[correlationID]; ok || f.defaultFields == nil {
		return recs, nil
	}
	return []query.Record{{
		ID:            correlationID + "-rec",
		CorrelationID: correlationID,
		ParsedAt:      time.Now().UTC(),
		Fields:        f.defaultFields,
	}}, nil
}

func (f *fakeQuery) pollCount(correlationID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[correlationID]
}
