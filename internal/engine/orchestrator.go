package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/parity-labs/parity-cli/internal/model"
)

// Config holds the orchestrator tunables. All values are passed explicitly
// by the caller; the engine reads no ambient state.
type Config struct {
	// Concurrency bounds the worker pool. Must be positive.
	Concurrency int
	// EventsPerPair is how many events each job dispatches. Default 5.
	EventsPerPair int
	// BatchTimeout is the global deadline for a matrix run. Zero means no
	// batch deadline beyond the caller's context.
	BatchTimeout time.Duration
}

func (c Config) validate() error {
	if c.Concurrency <= 0 {
		return eris.Errorf("orchestrator: non-positive concurrency %d", c.Concurrency)
	}
	return nil
}

// Orchestrator runs the dispatch → retrieve → diff → score pipeline per
// producer/parser pair and fans it out across pairs with per-pair failure
// isolation. Each worker owns one job end-to-end; the only shared output is
// the final matrix.
type Orchestrator struct {
	dispatcher  *Dispatcher
	retriever   *Retriever
	scorer      *Scorer
	recommender *Recommender
	cfg         Config
}

// New creates an Orchestrator. Configuration faults (bad taxonomy handled by
// NewScorer, non-positive concurrency here) are reported eagerly, before any
// work starts.
func New(dispatcher *Dispatcher, retriever *Retriever, scorer *Scorer, recommender *Recommender, cfg Config) (*Orchestrator, error) {
	if dispatcher == nil || retriever == nil || scorer == nil || recommender == nil {
		return nil, eris.New("orchestrator: nil dependency")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.EventsPerPair <= 0 {
		cfg.EventsPerPair = 5
	}
	return &Orchestrator{
		dispatcher:  dispatcher,
		retriever:   retriever,
		scorer:      scorer,
		recommender: recommender,
		cfg:         cfg,
	}, nil
}

// validationJob tracks one pair's lifecycle. Transitions are one-directional:
// Pending → Dispatched → AwaitingParse → {Retrieved|TimedOut} → Scored →
// Done, with Failed reachable from Pending or Dispatched. Owned by a single
// worker; never shared.
type validationJob struct {
	key    model.PairKey
	status model.JobStatus
	start  time.Time
	log    *zap.Logger
}

func (j *validationJob) transition(next model.JobStatus) {
	j.log.Debug("job transition",
		zap.String("from", string(j.status)),
		zap.String("to", string(next)),
	)
	j.status = next
}

func (j *validationJob) fail(res *model.PairResult, reason, detail string) {
	j.transition(model.StatusFailed)
	res.Status = model.StatusFailed
	res.FailReason = reason
	res.DurationMS = time.Since(j.start).Milliseconds()
	j.log.Warn("job failed",
		zap.String("reason", reason),
		zap.String("detail", detail),
	)
}

// ValidatePair runs the full pipeline for one producer/parser pair. Failures
// are captured in the result and never escape as errors: a failing pair must
// not disturb sibling jobs.
func (o *Orchestrator) ValidatePair(ctx context.Context, key model.PairKey) model.PairResult {
	job := &validationJob{
		key:    key,
		status: model.StatusPending,
		start:  time.Now(),
		log: zap.L().With(
			zap.String("producer", key.ProducerID),
			zap.String("parser", key.ParserID),
		),
	}
	res := model.PairResult{Key: key, Status: model.StatusPending}

	// Jobs still pending when the batch deadline elapsed are reported,
	// never dropped.
	if ctx.Err() != nil {
		job.fail(&res, model.FailReasonBatchDeadline, ctx.Err().Error())
		return res
	}

	records, err := o.dispatcher.Dispatch(ctx, key.ProducerID, key.ParserID, o.cfg.EventsPerPair)
	if err != nil {
		reason := string(model.ErrKindDispatch)
		if dominantKind(records) == model.ErrKindAuth {
			reason = string(model.ErrKindAuth)
		}
		job.fail(&res, reason, err.Error())
		return res
	}
	job.transition(model.StatusDispatched)

	var okRecords []model.CorrelationRecord
	for _, rec := range records {
		if rec.DispatchOK {
			okRecords = append(okRecords, rec)
		}
	}
	res.Dispatched = len(okRecords)
	if len(okRecords) == 0 {
		job.fail(&res, string(dominantKind(records)), "no events dispatched successfully")
		return res
	}

	job.transition(model.StatusAwaitingParse)
	ret, err := o.retriever.RetrieveAll(ctx, okRecords)
	if err != nil {
		job.fail(&res, string(model.ErrKindAuth), err.Error())
		return res
	}

	res.ParsedCount = len(ret.Records)
	switch ret.Outcome {
	case OutcomeRetrieved:
		job.transition(model.StatusRetrieved)
		res.Outcome = model.StatusRetrieved
	default:
		job.transition(model.StatusTimedOut)
		res.Outcome = model.StatusTimedOut
	}

	generated := okRecords[0].Expected
	parsed := model.ParsedFieldSet(ret.Records)
	diff := Diff(generated, parsed)

	var report model.ComplianceReport
	if ret.Outcome == OutcomeTimedOut && len(ret.Records) == 0 {
		// The parser never produced output. Distinct from an observed
		// empty record.
		report = o.scorer.ScoreNoParse()
	} else {
		report = o.scorer.Score(diff)
		report.Recommendations = o.recommender.Recommend(diff)
	}
	job.transition(model.StatusScored)

	res.Report = &report
	res.Matched = diff.Matched.Sorted()
	res.Missing = diff.Missing.Sorted()
	res.Extra = diff.Extra.Sorted()

	job.transition(model.StatusDone)
	res.Status = model.StatusDone
	res.DurationMS = time.Since(job.start).Milliseconds()

	job.log.Info("pair validated",
		zap.Float64("score", report.Score),
		zap.String("grade", string(report.Grade)),
		zap.String("outcome", string(res.Outcome)),
		zap.Int("parsed_records", res.ParsedCount),
	)
	return res
}

// ValidateMatrix fans ValidatePair out across all requested pairs with a
// bounded worker pool and assembles the coverage matrix. The returned matrix
// always contains exactly one entry per requested pair, keyed
// deterministically, regardless of how many jobs failed or timed out.
func (o *Orchestrator) ValidateMatrix(ctx context.Context, pairs []model.PairKey) (*model.ValidationMatrix, error) {
	started := time.Now().UTC()

	if o.cfg.BatchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.BatchTimeout)
		defer cancel()
	}

	zap.L().Info("validating matrix",
		zap.Int("pairs", len(pairs)),
		zap.Int("concurrency", o.cfg.Concurrency),
	)

	results := make([]model.PairResult, len(pairs))

	var g errgroup.Group
	g.SetLimit(o.cfg.Concurrency)
	for i, key := range pairs {
		g.Go(func() error {
			// Workers never return errors: failure isolation is per-pair.
			results[i] = o.ValidatePair(ctx, key)
			return nil
		})
	}
	_ = g.Wait()

	matrix := model.BuildMatrix(uuid.NewString(), results, started, time.Now().UTC())

	zap.L().Info("matrix complete",
		zap.String("matrix_id", matrix.ID),
		zap.Int("pairs", matrix.Stats.Pairs),
		zap.Int("failed", matrix.Stats.Failed),
		zap.Int("timed_out", matrix.Stats.TimedOut),
		zap.Float64("mean_score", matrix.Stats.MeanScore),
	)
	return matrix, nil
}

// dominantKind picks the most severe failure kind across a batch's records:
// auth outranks malformed outranks dispatch.
func dominantKind(records []model.CorrelationRecord) model.ErrorKind {
	kind := model.ErrKindDispatch
	sawMalformed := false
	for _, rec := range records {
		switch rec.FailKind {
		case model.ErrKindAuth:
			return model.ErrKindAuth
		case model.ErrKindMalformed:
			sawMalformed = true
		}
	}
	if sawMalformed {
		return model.ErrKindMalformed
	}
	return kind
}
