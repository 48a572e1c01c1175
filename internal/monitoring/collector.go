package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/parity-labs/parity-cli/internal/model"
	"github.com/parity-labs/parity-cli/internal/store"
)

// MetricsSnapshot holds a point-in-time view of validation health.
type MetricsSnapshot struct {
	// Run metrics (within lookback window).
	RunsTotal    int     `json:"runs_total"`
	RunsComplete int     `json:"runs_complete"`
	RunsFailed   int     `json:"runs_failed"`
	RunsQueued   int     `json:"runs_queued"`
	RunsRunning  int     `json:"runs_running"`
	RunFailRate  float64 `json:"run_fail_rate"`

	// Pair metrics aggregated across finished matrices.
	PairsValidated  int                 `json:"pairs_validated"`
	PairsFailed     int                 `json:"pairs_failed"`
	PairsTimedOut   int                 `json:"pairs_timed_out"`
	NoParseObserved int                 `json:"no_parse_observed"`
	MeanScore       float64             `json:"mean_score"`
	GradeHistogram  map[model.Grade]int `json:"grade_histogram"`

	// Metadata.
	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// Collector gathers metrics from stored validation runs.
type Collector struct {
	store store.Store
}

// NewCollector creates a new metrics collector.
func NewCollector(st store.Store) *Collector {
	return &Collector{store: st}
}

// Collect gathers a snapshot of validation metrics over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	snap := &MetricsSnapshot{
		GradeHistogram: make(map[model.Grade]int),
		LookbackHours:  lookbackHours,
		CollectedAt:    time.Now().UTC(),
	}

	cutoff := time.Now().UTC().Add(-time.Duration(lookbackHours) * time.Hour)

	runs, err := c.store.ListRuns(ctx, store.RunFilter{
		CreatedAfter: cutoff,
		Limit:        10000,
	})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}

	snap.RunsTotal = len(runs)
	var totalScore float64
	var scoredMatrices int

	for _, r := range runs {
		switch r.Status {
		case model.RunStatusComplete:
			snap.RunsComplete++
		case model.RunStatusFailed:
			snap.RunsFailed++
		case model.RunStatusQueued:
			snap.RunsQueued++
		case model.RunStatusRunning:
			snap.RunsRunning++
		}
		if r.Matrix == nil {
			continue
		}
		stats := r.Matrix.Stats
		snap.PairsValidated += stats.Pairs
		snap.PairsFailed += stats.Failed
		snap.PairsTimedOut += stats.TimedOut
		snap.NoParseObserved += stats.NoParseObserved
		for grade, n := range stats.GradeHistogram {
			snap.GradeHistogram[grade] += n
		}
		if stats.Pairs > 0 {
			totalScore += stats.MeanScore
			scoredMatrices++
		}
	}

	finished := snap.RunsComplete + snap.RunsFailed
	if finished > 0 {
		snap.RunFailRate = float64(snap.RunsFailed) / float64(finished)
	}
	if scoredMatrices > 0 {
		snap.MeanScore = totalScore / float64(scoredMatrices)
	}

	return snap, nil
}
