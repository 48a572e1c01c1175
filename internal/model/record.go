package model

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// ErrorKind classifies why an event or job failed.
type ErrorKind string

const (
	// ErrKindNone means no failure.
	ErrKindNone ErrorKind = ""
	// ErrKindDispatch is a transient network/endpoint failure during send.
	ErrKindDispatch ErrorKind = "dispatch_error"
	// ErrKindAuth means the endpoint rejected our credentials. Fatal, no retry.
	ErrKindAuth ErrorKind = "auth_error"
	// ErrKindMalformed means the producer emitted an unencodable payload.
	// Fatal for that event only.
	ErrKindMalformed ErrorKind = "malformed_event"
)

// NewCorrelationID returns a collision-resistant random token (uuid v4,
// 128 random bits) so concurrent dispatchers never coordinate on id space.
func NewCorrelationID() string {
	return uuid.NewString()
}

// CorrelationRecord captures dispatch metadata for a single tagged event.
// Created at dispatch time and immutable afterwards; owned by the job that
// created it.
type CorrelationRecord struct {
	CorrelationID string    `json:"correlation_id"`
	ProducerID    string    `json:"producer_id"`
	ParserID      string    `json:"parser_id"`
	DispatchTime  time.Time `json:"dispatch_time"`
	Expected      *FieldSet `json:"-"`
	PayloadRef    string    `json:"payload_ref,omitempty"`

	// DispatchOK reports success of the send step only. Records with
	// DispatchOK false are excluded from polling.
	DispatchOK bool      `json:"dispatch_ok"`
	FailKind   ErrorKind `json:"fail_kind,omitempty"`
	FailDetail string    `json:"fail_detail,omitempty"`
}

// NewCorrelationRecord stamps a fresh correlation id and captures dispatch
// metadata for one outbound event.
func NewCorrelationRecord(producerID, parserID string, expected *FieldSet, payloadRef string) CorrelationRecord {
	return CorrelationRecord{
		CorrelationID: NewCorrelationID(),
		ProducerID:    producerID,
		ParserID:      parserID,
		DispatchTime:  time.Now().UTC(),
		Expected:      expected,
		PayloadRef:    payloadRef,
		DispatchOK:    true,
	}
}

// ParsedRecord is one parser-processed record returned by the query API.
// Fields maps extracted field names to wire-level type tags.
type ParsedRecord struct {
	ID            string            `json:"id"`
	CorrelationID string            `json:"correlation_id"`
	ParsedAt      time.Time         `json:"parsed_at"`
	Fields        map[string]string `json:"fields"`
}

// ParsedFieldSet unions the fields of the given parsed records into a single
// FieldSet. Field names within each record are visited in lexical order so
// the result is deterministic regardless of map iteration.
func ParsedFieldSet(records []ParsedRecord) *FieldSet {
	set := NewFieldSet()
	for _, r := range records {
		names := make([]string, 0, len(r.Fields))
		for n := range r.Fields {
			names = append(names, n)
		}
		sort.Strings(names)
		for _, n := range names {
			set.Add(n, ParseFieldType(r.Fields[n]))
		}
	}
	return set
}

// JobStatus is the lifecycle state of a ValidationJob. Transitions are
// one-directional: Pending → Dispatched → AwaitingParse → {Retrieved |
// TimedOut} → Scored → Done, with Failed reachable from Pending or
// Dispatched.
type JobStatus string

const (
	StatusPending       JobStatus = "pending"
	StatusDispatched    JobStatus = "dispatched"
	StatusAwaitingParse JobStatus = "awaiting_parse"
	StatusRetrieved     JobStatus = "retrieved"
	StatusTimedOut      JobStatus = "timed_out"
	StatusScored        JobStatus = "scored"
	StatusDone          JobStatus = "done"
	StatusFailed        JobStatus = "failed"
)

// Failure reasons recorded on terminal Failed jobs beyond the ErrorKind set.
const (
	// FailReasonBatchDeadline marks jobs still pending when the batch
	// deadline elapsed. They are reported, never silently dropped.
	FailReasonBatchDeadline = "BatchDeadlineExceeded"
)
