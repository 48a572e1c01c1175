package engine

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/parity-labs/parity-cli/internal/model"
	"github.com/parity-labs/parity-cli/internal/producer"
	"github.com/parity-labs/parity-cli/internal/resilience"
	"github.com/parity-labs/parity-cli/pkg/ingest"
)

// Dispatcher generates tagged event batches and sends them to the ingestion
// endpoint, recording per-event success of the send step only. It retains no
// state beyond the returned records.
type Dispatcher struct {
	producers *producer.Registry
	client    ingest.Client
	retry     resilience.RetryConfig
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(producers *producer.Registry, client ingest.Client, retry resilience.RetryConfig) *Dispatcher {
	return &Dispatcher{producers: producers, client: client, retry: retry}
}

// Dispatch generates count events from the named producer, stamps each with a
// fresh correlation id, and sends them in one batch. One CorrelationRecord is
// returned per event even on partial send failure; records with DispatchOK
// false carry the failure kind and are excluded from later polling.
//
// An auth rejection aborts the whole batch and is returned as an error; the
// records are still returned so the caller can report them.
func (d *Dispatcher) Dispatch(ctx context.Context, producerID, parserID string, count int) ([]model.CorrelationRecord, error) {
	p, ok := d.producers.Get(producerID)
	if !ok {
		return nil, eris.Errorf("dispatch: unknown producer %q", producerID)
	}

	payloads, err := p.Emit(count)
	if err != nil {
		return nil, eris.Wrapf(err, "dispatch: producer %q emit", producerID)
	}

	expected := p.Fields()
	records := make([]model.CorrelationRecord, 0, len(payloads))
	events := make([]ingest.Event, 0, len(payloads))
	eventIdx := make(map[string]int, len(payloads)) // event id → record index

	for _, payload := range payloads {
		eventID := uuid.NewString()
		rec := model.NewCorrelationRecord(producerID, parserID, expected, eventID)

		raw, mErr := json.Marshal(payload)
		if mErr != nil {
			// Fatal for this event only; siblings still ship.
			rec.DispatchOK = false
			rec.FailKind = model.ErrKindMalformed
			rec.FailDetail = mErr.Error()
			records = append(records, rec)
			continue
		}

		eventIdx[eventID] = len(records)
		records = append(records, rec)
		events = append(events, ingest.Event{
			ID:            eventID,
			CorrelationID: rec.CorrelationID,
			ProducerID:    producerID,
			EmittedAt:     rec.DispatchTime,
			Payload:       raw,
		})
	}

	if len(events) == 0 {
		return records, nil
	}

	retryCfg := d.retry
	retryCfg.ShouldRetry = shouldRetrySend
	retryCfg.OnRetry = resilience.RetryLogger("ingest", "send")

	res, sendErr := resilience.DoVal(ctx, retryCfg, func(ctx context.Context) (*ingest.SendResult, error) {
		return d.client.Send(ctx, events)
	})
	if sendErr != nil {
		kind := model.ErrKindDispatch
		if ingest.IsAuth(sendErr) {
			kind = model.ErrKindAuth
		}
		for _, ev := range events {
			rec := &records[eventIdx[ev.ID]]
			rec.DispatchOK = false
			rec.FailKind = kind
			rec.FailDetail = sendErr.Error()
		}
		if kind == model.ErrKindAuth {
			return records, eris.Wrap(sendErr, "dispatch: ingestion rejected credentials")
		}
		// Transient failure after exhausting retries: recorded per-event,
		// sibling batches are unaffected.
		zap.L().Warn("dispatch: send failed after retries",
			zap.String("producer", producerID),
			zap.Int("events", len(events)),
			zap.Error(sendErr),
		)
		return records, nil
	}

	for _, evErr := range res.Errors {
		idx, ok := eventIdx[evErr.EventID]
		if !ok {
			continue
		}
		records[idx].DispatchOK = false
		records[idx].FailKind = model.ErrKindDispatch
		records[idx].FailDetail = evErr.Message
	}

	zap.L().Debug("dispatch: batch sent",
		zap.String("producer", producerID),
		zap.String("parser", parserID),
		zap.Int("accepted", res.Accepted),
		zap.Int("rejected", res.Rejected),
	)
	return records, nil
}

// shouldRetrySend retries transient network faults and retryable HTTP
// statuses; auth rejections never retry.
func shouldRetrySend(err error) bool {
	if ingest.IsAuth(err) {
		return false
	}
	var apiErr *ingest.APIError
	if errors.As(err, &apiErr) {
		return resilience.IsTransientHTTPStatus(apiErr.StatusCode)
	}
	return resilience.IsTransient(err)
}
