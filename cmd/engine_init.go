package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/parity-labs/parity-cli/internal/engine"
	"github.com/parity-labs/parity-cli/internal/model"
	"github.com/parity-labs/parity-cli/internal/producer"
	"github.com/parity-labs/parity-cli/internal/resilience"
	"github.com/parity-labs/parity-cli/internal/store"
	"github.com/parity-labs/parity-cli/pkg/ingest"
	"github.com/parity-labs/parity-cli/pkg/query"
)

// engineEnv holds the initialized store, taxonomy, producer registry, and the
// orchestrator needed by the validate/matrix/serve commands.
type engineEnv struct {
	Store     store.Store
	Engine    *engine.Orchestrator
	Producers *producer.Registry
	Taxonomy  *model.SchemaTaxonomy
	Pairs     []model.PairKey
}

// Close releases resources held by the engine environment.
func (ee *engineEnv) Close() {
	if ee.Store != nil {
		_ = ee.Store.Close()
	}
}

// initEngine validates config for the given mode, opens the store, loads the
// taxonomy and the validation plan, builds both API clients, and wires the
// orchestrator. Callers should defer env.Close().
func initEngine(ctx context.Context, mode, pairsPath string) (*engineEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	taxonomy, err := model.LoadTaxonomy(cfg.Taxonomy.Path)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	pairs, producers, err := loadPairs(pairsPath, taxonomy)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	ingestOpts := []ingest.Option{ingest.WithBaseURL(cfg.Ingest.BaseURL)}
	if cfg.Ingest.RatePerSec > 0 {
		ingestOpts = append(ingestOpts, ingest.WithRateLimit(cfg.Ingest.RatePerSec, cfg.Ingest.RateBurst))
	}
	ingestClient := ingest.NewClient(cfg.Ingest.Key, ingestOpts...)

	queryOpts := []query.Option{query.WithBaseURL(cfg.Query.BaseURL)}
	if cfg.Query.RatePerSec > 0 {
		queryOpts = append(queryOpts, query.WithRateLimit(cfg.Query.RatePerSec, cfg.Query.RateBurst))
	}
	queryClient := query.NewClient(cfg.Query.Key, queryOpts...)

	retry := resilience.RetryConfig{MaxAttempts: cfg.Ingest.MaxAttempts}
	if cfg.Ingest.RetryBackoff != "" {
		backoff, pErr := time.ParseDuration(cfg.Ingest.RetryBackoff)
		if pErr != nil {
			_ = st.Close()
			return nil, eris.Wrapf(pErr, "invalid ingest.retry_backoff %q", cfg.Ingest.RetryBackoff)
		}
		retry.InitialBackoff = backoff
	}

	scorer, err := engine.NewScorer(taxonomy, engine.ScorerConfig{
		// Config always states the weight explicitly; zero means no penalty.
		PenaltyWeight: &cfg.Scoring.PenaltyWeight,
		GradeCeiling:  model.Grade(cfg.Scoring.GradeCeiling),
	})
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	dispatcher := engine.NewDispatcher(producers, ingestClient, retry)
	retriever := engine.NewRetriever(queryClient, engine.RetrieverConfig{
		Timeout:         cfg.Engine.ParseTimeout(),
		PollInterval:    cfg.Engine.PollInterval(),
		MaxPollInterval: cfg.Engine.MaxPollInterval(),
	})

	orch, err := engine.New(dispatcher, retriever, scorer, engine.NewRecommender(taxonomy), engine.Config{
		Concurrency:   cfg.Engine.Concurrency,
		EventsPerPair: cfg.Engine.EventsPerPair,
		BatchTimeout:  cfg.Engine.BatchTimeout(),
	})
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	zap.L().Info("engine initialized",
		zap.String("taxonomy", taxonomy.Name),
		zap.Int("pairs", len(pairs)),
		zap.Int("producers", len(producers.IDs())),
	)

	return &engineEnv{
		Store:     st,
		Engine:    orch,
		Producers: producers,
		Taxonomy:  taxonomy,
		Pairs:     pairs,
	}, nil
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "parity.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}
