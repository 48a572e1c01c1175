package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/parity-labs/parity-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	pairs      TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'queued',
	matrix     TEXT,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS pair_results (
	run_id      TEXT NOT NULL REFERENCES runs(id),
	producer_id TEXT NOT NULL,
	parser_id   TEXT NOT NULL,
	status      TEXT NOT NULL,
	score       REAL,
	grade       TEXT,
	result      TEXT NOT NULL,
	created_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (run_id, producer_id, parser_id)
);

CREATE TABLE IF NOT EXISTS taxonomy_fields (
	taxonomy TEXT NOT NULL,
	name     TEXT NOT NULL,
	type     TEXT NOT NULL,
	class    TEXT NOT NULL,
	required INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (taxonomy, name)
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_pair_results_pair ON pair_results(producer_id, parser_id);
CREATE INDEX IF NOT EXISTS idx_pair_results_created ON pair_results(created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, pairs []model.PairKey) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	pairsJSON, err := json.Marshal(pairs)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal pairs")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, pairs, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		id, string(pairsJSON), string(model.RunStatusQueued), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}

	return &model.Run{
		ID:        id,
		Pairs:     pairs,
		Status:    model.RunStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *SQLiteStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update run status %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

// SaveMatrix stores the finished matrix on the run and rewrites its per-pair
// result rows, which back PairHistory across runs.
func (s *SQLiteStore) SaveMatrix(ctx context.Context, runID string, matrix *model.ValidationMatrix) error {
	matrixJSON, err := json.Marshal(matrix)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal matrix")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE runs SET matrix = ?, status = ?, updated_at = ? WHERE id = ?`,
		string(matrixJSON), string(model.RunStatusComplete), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update run matrix %s", runID)
	}
	if err := checkRowsAffected(res, "run", runID); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM pair_results WHERE run_id = ?`, runID); err != nil {
		return eris.Wrapf(err, "sqlite: clear pair results %s", runID)
	}
	for _, pr := range matrix.Pairs {
		resultJSON, err := json.Marshal(pr)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal pair result")
		}
		var score any
		var grade any
		if pr.Report != nil {
			score = pr.Report.Score
			grade = string(pr.Report.Grade)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO pair_results (run_id, producer_id, parser_id, status, score, grade, result, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			runID, pr.Key.ProducerID, pr.Key.ParserID, string(pr.Status), score, grade, string(resultJSON), matrix.FinishedAt,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert pair result %s", pr.Key)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit matrix")
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, pairs, status, matrix, created_at, updated_at FROM runs WHERE id = ?`,
		runID,
	)
	return scanRun(row)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, pairs, status, matrix, created_at, updated_at FROM runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.ProducerID != "" {
		query += ` AND EXISTS (SELECT 1 FROM json_each(pairs) WHERE json_extract(value, '$.producer_id') = ?)`
		args = append(args, filter.ProducerID)
	}
	if !filter.CreatedAfter.IsZero() {
		query += ` AND created_at > ?`
		args = append(args, filter.CreatedAfter.UTC())
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) PairHistory(ctx context.Context, key model.PairKey, limit int) ([]model.PairResult, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT result FROM pair_results
		 WHERE producer_id = ? AND parser_id = ?
		 ORDER BY created_at DESC LIMIT ?`,
		key.ProducerID, key.ParserID, limit,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: pair history %s", key)
	}
	defer rows.Close()

	var out []model.PairResult
	for rows.Next() {
		var resultJSON string
		if err := rows.Scan(&resultJSON); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan pair result")
		}
		var pr model.PairResult
		if err := json.Unmarshal([]byte(resultJSON), &pr); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal pair result")
		}
		out = append(out, pr)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: pair history iterate")
}

func (s *SQLiteStore) SaveTaxonomy(ctx context.Context, taxonomy *model.SchemaTaxonomy) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback()

	for _, f := range taxonomy.Fields {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO taxonomy_fields (taxonomy, name, type, class, required) VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT (taxonomy, name) DO UPDATE SET type = excluded.type, class = excluded.class, required = excluded.required`,
			taxonomy.Name, f.Name, string(f.Type), string(f.Class), f.Required,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: upsert taxonomy field %s", f.Name)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit taxonomy")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*model.Run, error) {
	var r model.Run
	var pairsJSON string
	var matrixJSON sql.NullString

	err := row.Scan(&r.ID, &pairsJSON, &r.Status, &matrixJSON, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.New("run not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}

	if err := json.Unmarshal([]byte(pairsJSON), &r.Pairs); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal pairs")
	}
	if matrixJSON.Valid {
		r.Matrix = &model.ValidationMatrix{}
		if err := json.Unmarshal([]byte(matrixJSON.String), r.Matrix); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal matrix")
		}
	}
	return &r, nil
}
