package model

import (
	"sort"
	"time"

	"github.com/montanaflynn/stats"
)

// PairKey identifies one producer/parser pair under validation.
type PairKey struct {
	ProducerID string `json:"producer_id" yaml:"producer"`
	ParserID   string `json:"parser_id" yaml:"parser"`
}

// String renders the key as "producer/parser".
func (k PairKey) String() string {
	return k.ProducerID + "/" + k.ParserID
}

// PairResult is the terminal outcome for one pair: either a scored report or
// a failure reason, plus the field lists for inspection.
type PairResult struct {
	Key        PairKey   `json:"key"`
	Status     JobStatus `json:"status"`
	FailReason string    `json:"fail_reason,omitempty"`

	// Outcome of the retrieval step when the job got that far.
	Outcome JobStatus `json:"outcome,omitempty"`

	Report  *ComplianceReport `json:"report,omitempty"`
	Matched []string          `json:"matched,omitempty"`
	Missing []string          `json:"missing,omitempty"`
	Extra   []string          `json:"extra,omitempty"`

	Dispatched  int   `json:"dispatched"`
	ParsedCount int   `json:"parsed_count"`
	DurationMS  int64 `json:"duration_ms"`
}

// AggregateStats summarizes a finished matrix.
type AggregateStats struct {
	Pairs           int           `json:"pairs"`
	Succeeded       int           `json:"succeeded"`
	Failed          int           `json:"failed"`
	TimedOut        int           `json:"timed_out"`
	NoParseObserved int           `json:"no_parse_observed"`
	MeanScore       float64       `json:"mean_score"`
	MedianScore     float64       `json:"median_score"`
	StdDevScore     float64       `json:"stddev_score"`
	GradeHistogram  map[Grade]int `json:"grade_histogram"`
}

// ValidationMatrix maps every requested pair to its terminal result. Built
// once per batch run and read-only afterwards.
type ValidationMatrix struct {
	ID         string         `json:"id"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Pairs      []PairResult   `json:"pairs"`
	Stats      AggregateStats `json:"stats"`
}

// BuildMatrix assembles a matrix from per-pair results. Entries are sorted by
// key so repeated runs produce comparable matrices regardless of completion
// order.
func BuildMatrix(id string, results []PairResult, started, finished time.Time) *ValidationMatrix {
	pairs := make([]PairResult, len(results))
	copy(pairs, results)
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].Key.ProducerID != pairs[j].Key.ProducerID {
			return pairs[i].Key.ProducerID < pairs[j].Key.ProducerID
		}
		return pairs[i].Key.ParserID < pairs[j].Key.ParserID
	})

	return &ValidationMatrix{
		ID:         id,
		StartedAt:  started,
		FinishedAt: finished,
		Pairs:      pairs,
		Stats:      computeStats(pairs),
	}
}

// Result returns the entry for the given key, or nil.
func (m *ValidationMatrix) Result(key PairKey) *PairResult {
	for i := range m.Pairs {
		if m.Pairs[i].Key == key {
			return &m.Pairs[i]
		}
	}
	return nil
}

func computeStats(pairs []PairResult) AggregateStats {
	agg := AggregateStats{
		Pairs:          len(pairs),
		GradeHistogram: make(map[Grade]int),
	}

	var scores []float64
	for _, p := range pairs {
		switch p.Status {
		case StatusFailed:
			agg.Failed++
		default:
			agg.Succeeded++
		}
		if p.Outcome == StatusTimedOut {
			agg.TimedOut++
		}
		if p.Report != nil {
			agg.GradeHistogram[p.Report.Grade]++
			scores = append(scores, p.Report.Score)
			if p.Report.Reason == ReasonNoParseObserved {
				agg.NoParseObserved++
			}
		}
	}

	if len(scores) > 0 {
		// stats errors only on empty input, which is excluded above.
		agg.MeanScore, _ = stats.Mean(scores)
		agg.MedianScore, _ = stats.Median(scores)
		agg.StdDevScore, _ = stats.StandardDeviation(scores)
	}
	return agg
}
