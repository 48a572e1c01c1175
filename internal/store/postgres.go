package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/parity-labs/parity-cli/internal/db"
	"github.com/parity-labs/parity-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"insert_run":        `INSERT INTO runs (id, pairs, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
	"update_run_status": `UPDATE runs SET status = $1, updated_at = $2 WHERE id = $3`,
	"save_matrix":       `UPDATE runs SET matrix = $1, status = $2, updated_at = $3 WHERE id = $4`,
	"get_run":           `SELECT id, pairs, status, matrix, created_at, updated_at FROM runs WHERE id = $1`,
	"pair_history":      `SELECT result FROM pair_results WHERE producer_id = $1 AND parser_id = $2 ORDER BY created_at DESC LIMIT $3`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// Apply pool sizing from config with sensible defaults.
	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool, used by tests to inject pgxmock.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, closeFn: pool.Close}
}

// Pool returns the underlying database pool for subsystems that need direct
// query access.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	pairs      JSONB NOT NULL,
	status     TEXT NOT NULL DEFAULT 'queued',
	matrix     JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS pair_results (
	run_id      TEXT NOT NULL REFERENCES runs(id),
	producer_id TEXT NOT NULL,
	parser_id   TEXT NOT NULL,
	status      TEXT NOT NULL,
	score       DOUBLE PRECISION,
	grade       TEXT,
	result      JSONB NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (run_id, producer_id, parser_id)
);

CREATE TABLE IF NOT EXISTS taxonomy_fields (
	taxonomy TEXT NOT NULL,
	name     TEXT NOT NULL,
	type     TEXT NOT NULL,
	class    TEXT NOT NULL,
	required BOOLEAN NOT NULL DEFAULT false,
	PRIMARY KEY (taxonomy, name)
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_pair_results_pair ON pair_results(producer_id, parser_id);
CREATE INDEX IF NOT EXISTS idx_pair_results_created ON pair_results(created_at);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, pairs []model.PairKey) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	pairsJSON, err := json.Marshal(pairs)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal pairs")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO runs (id, pairs, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
		id, pairsJSON, string(model.RunStatusQueued), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}

	return &model.Run{
		ID:        id,
		Pairs:     pairs,
		Status:    model.RunStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *PostgresStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update run status %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

// SaveMatrix stores the finished matrix on the run and bulk-loads its per-pair
// result rows via COPY, which back PairHistory across runs.
func (s *PostgresStore) SaveMatrix(ctx context.Context, runID string, matrix *model.ValidationMatrix) error {
	matrixJSON, err := json.Marshal(matrix)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal matrix")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET matrix = $1, status = $2, updated_at = $3 WHERE id = $4`,
		matrixJSON, string(model.RunStatusComplete), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update run matrix %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}

	if _, err := s.pool.Exec(ctx, `DELETE FROM pair_results WHERE run_id = $1`, runID); err != nil {
		return eris.Wrapf(err, "postgres: clear pair results %s", runID)
	}

	rows := make([][]any, 0, len(matrix.Pairs))
	for _, pr := range matrix.Pairs {
		resultJSON, err := json.Marshal(pr)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal pair result")
		}
		var score any
		var grade any
		if pr.Report != nil {
			score = pr.Report.Score
			grade = string(pr.Report.Grade)
		}
		rows = append(rows, []any{
			runID, pr.Key.ProducerID, pr.Key.ParserID, string(pr.Status),
			score, grade, resultJSON, matrix.FinishedAt,
		})
	}
	_, err = db.CopyFrom(ctx, s.pool, "pair_results",
		[]string{"run_id", "producer_id", "parser_id", "status", "score", "grade", "result", "created_at"},
		rows,
	)
	return eris.Wrapf(err, "postgres: copy pair results %s", runID)
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	var r model.Run
	var pairsJSON []byte
	var matrixNull *[]byte

	err := s.pool.QueryRow(ctx,
		`SELECT id, pairs, status, matrix, created_at, updated_at FROM runs WHERE id = $1`,
		runID,
	).Scan(&r.ID, &pairsJSON, &r.Status, &matrixNull, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}

	if err := json.Unmarshal(pairsJSON, &r.Pairs); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal pairs")
	}
	if matrixNull != nil {
		r.Matrix = &model.ValidationMatrix{}
		if err := json.Unmarshal(*matrixNull, r.Matrix); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal matrix")
		}
	}
	return &r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, pairs, status, matrix, created_at, updated_at FROM runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.ProducerID != "" {
		query += fmt.Sprintf(` AND pairs @> jsonb_build_array(jsonb_build_object('producer_id', $%d::text))`, argIdx)
		args = append(args, filter.ProducerID)
		argIdx++
	}
	if !filter.CreatedAfter.IsZero() {
		query += fmt.Sprintf(` AND created_at > $%d`, argIdx)
		args = append(args, filter.CreatedAfter.UTC())
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
		argIdx++
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		var r model.Run
		var pairsJSON []byte
		var matrixNull *[]byte

		if err := rows.Scan(&r.ID, &pairsJSON, &r.Status, &matrixNull, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		if err := json.Unmarshal(pairsJSON, &r.Pairs); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal pairs")
		}
		if matrixNull != nil {
			r.Matrix = &model.ValidationMatrix{}
			if err := json.Unmarshal(*matrixNull, r.Matrix); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal matrix")
			}
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func (s *PostgresStore) PairHistory(ctx context.Context, key model.PairKey, limit int) ([]model.PairResult, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx,
		`SELECT result FROM pair_results
		 WHERE producer_id = $1 AND parser_id = $2
		 ORDER BY created_at DESC LIMIT $3`,
		key.ProducerID, key.ParserID, limit,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: pair history %s", key)
	}
	defer rows.Close()

	var out []model.PairResult
	for rows.Next() {
		var resultJSON []byte
		if err := rows.Scan(&resultJSON); err != nil {
			return nil, eris.Wrap(err, "postgres: scan pair result")
		}
		var pr model.PairResult
		if err := json.Unmarshal(resultJSON, &pr); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal pair result")
		}
		out = append(out, pr)
	}
	return out, eris.Wrap(rows.Err(), "postgres: pair history iterate")
}

// SaveTaxonomy bulk-upserts the taxonomy's fields so the shared schema can be
// refreshed in place without clearing history.
func (s *PostgresStore) SaveTaxonomy(ctx context.Context, taxonomy *model.SchemaTaxonomy) error {
	rows := make([][]any, 0, len(taxonomy.Fields))
	for _, f := range taxonomy.Fields {
		rows = append(rows, []any{taxonomy.Name, f.Name, string(f.Type), string(f.Class), f.Required})
	}
	_, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "taxonomy_fields",
		Columns:      []string{"taxonomy", "name", "type", "class", "required"},
		ConflictKeys: []string{"taxonomy", "name"},
	}, rows)
	return eris.Wrapf(err, "postgres: save taxonomy %s", taxonomy.Name)
}
