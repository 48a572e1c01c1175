package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parity-labs/parity-cli/internal/model"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "parity_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func testPairs() []model.PairKey {
	return []model.PairKey{
		{ProducerID: "fw-vendor", ParserID: "fw-parser"},
		{ProducerID: "dns-vendor", ParserID: "dns-parser"},
	}
}

func testMatrix(score float64, grade model.Grade) *model.ValidationMatrix {
	results := []model.PairResult{
		{
			Key:     model.PairKey{ProducerID: "fw-vendor", ParserID: "fw-parser"},
			Status:  model.StatusDone,
			Outcome: model.StatusRetrieved,
			Report:  &model.ComplianceReport{Score: score, Grade: grade},
			Matched: []string{"timestamp", "user"},
		},
		{
			Key:        model.PairKey{ProducerID: "dns-vendor", ParserID: "dns-parser"},
			Status:     model.StatusFailed,
			FailReason: string(model.ErrKindDispatch),
		},
	}
	return model.BuildMatrix("matrix-1", results, time.Now().UTC().Add(-time.Minute), time.Now().UTC())
}

func TestSQLiteRunLifecycle(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	run, err := s.CreateRun(ctx, testPairs())
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, model.RunStatusQueued, run.Status)

	require.NoError(t, s.UpdateRunStatus(ctx, run.ID, model.RunStatusRunning))

	matrix := testMatrix(92.5, model.GradeAMinus)
	require.NoError(t, s.SaveMatrix(ctx, run.ID, matrix))

	got, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, got.Status)
	assert.Equal(t, testPairs(), got.Pairs)
	require.NotNil(t, got.Matrix)
	assert.Equal(t, "matrix-1", got.Matrix.ID)
	require.Len(t, got.Matrix.Pairs, 2)

	res := got.Matrix.Result(model.PairKey{ProducerID: "fw-vendor", ParserID: "fw-parser"})
	require.NotNil(t, res)
	require.NotNil(t, res.Report)
	assert.Equal(t, 92.5, res.Report.Score)
	assert.Equal(t, model.GradeAMinus, res.Report.Grade)
}

func TestSQLiteUpdateRunStatusNotFound(t *testing.T) {
	s := newTestSQLite(t)
	err := s.UpdateRunStatus(context.Background(), "missing-run", model.RunStatusRunning)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestSQLiteGetRunNotFound(t *testing.T) {
	s := newTestSQLite(t)
	_, err := s.GetRun(context.Background(), "missing-run")
	require.Error(t, err)
}

func TestSQLiteListRunsFilter(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	first, err := s.CreateRun(ctx, testPairs())
	require.NoError(t, err)
	second, err := s.CreateRun(ctx, []model.PairKey{{ProducerID: "other-vendor", ParserID: "other-parser"}})
	require.NoError(t, err)
	require.NoError(t, s.UpdateRunStatus(ctx, second.ID, model.RunStatusRunning))

	all, err := s.ListRuns(ctx, RunFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	queued, err := s.ListRuns(ctx, RunFilter{Status: model.RunStatusQueued})
	require.NoError(t, err)
	require.Len(t, queued, 1)
	assert.Equal(t, first.ID, queued[0].ID)

	byProducer, err := s.ListRuns(ctx, RunFilter{ProducerID: "other-vendor"})
	require.NoError(t, err)
	require.Len(t, byProducer, 1)
	assert.Equal(t, second.ID, byProducer[0].ID)

	limited, err := s.ListRuns(ctx, RunFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestSQLiteSaveMatrixIdempotent(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	run, err := s.CreateRun(ctx, testPairs())
	require.NoError(t, err)

	require.NoError(t, s.SaveMatrix(ctx, run.ID, testMatrix(80, model.GradeBMinus)))
	require.NoError(t, s.SaveMatrix(ctx, run.ID, testMatrix(85, model.GradeB)))

	got, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	res := got.Matrix.Result(model.PairKey{ProducerID: "fw-vendor", ParserID: "fw-parser"})
	require.NotNil(t, res)
	assert.Equal(t, 85.0, res.Report.Score)

	// Re-saving rewrites pair rows instead of stacking duplicates.
	history, err := s.PairHistory(ctx, model.PairKey{ProducerID: "fw-vendor", ParserID: "fw-parser"}, 10)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestSQLitePairHistoryAcrossRuns(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	key := model.PairKey{ProducerID: "fw-vendor", ParserID: "fw-parser"}

	for i, score := range []float64{70, 85, 95} {
		run, err := s.CreateRun(ctx, testPairs())
		require.NoError(t, err)
		m := testMatrix(score, model.GradeB)
		m.FinishedAt = time.Now().UTC().Add(time.Duration(i) * time.Second)
		require.NoError(t, s.SaveMatrix(ctx, run.ID, m))
	}

	history, err := s.PairHistory(ctx, key, 10)
	require.NoError(t, err)
	require.Len(t, history, 3)
	// Newest first.
	assert.Equal(t, 95.0, history[0].Report.Score)
	assert.Equal(t, 70.0, history[2].Report.Score)

	capped, err := s.PairHistory(ctx, key, 2)
	require.NoError(t, err)
	assert.Len(t, capped, 2)
}

func TestSQLiteSaveTaxonomy(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	tax := model.NewSchemaTaxonomy("ocsf-core", []model.TaxonomyField{
		{Name: "timestamp", Type: model.FieldTypeTimestamp, Class: model.ClassTimestamp, Required: true},
		{Name: "user", Type: model.FieldTypeString, Class: model.ClassIdentity, Required: true},
	})
	require.NoError(t, s.SaveTaxonomy(ctx, tax))

	// Upsert in place: required flips without duplicating rows.
	tax2 := model.NewSchemaTaxonomy("ocsf-core", []model.TaxonomyField{
		{Name: "user", Type: model.FieldTypeString, Class: model.ClassIdentity, Required: false},
	})
	require.NoError(t, s.SaveTaxonomy(ctx, tax2))

	var count int
	var required bool
	row := s.db.QueryRow(`SELECT COUNT(*) FROM taxonomy_fields WHERE taxonomy = 'ocsf-core'`)
	require.NoError(t, row.Scan(&count))
	assert.Equal(t, 2, count)
	row = s.db.QueryRow(`SELECT required FROM taxonomy_fields WHERE taxonomy = 'ocsf-core' AND name = 'user'`)
	require.NoError(t, row.Scan(&required))
	assert.False(t, required)
}
