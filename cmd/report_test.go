package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/parity-labs/parity-cli/internal/model"
)

func reportMatrix() *model.ValidationMatrix {
	started := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	return model.BuildMatrix("matrix-1", []model.PairResult{
		{
			Key:     model.PairKey{ProducerID: "fw-vendor", ParserID: "fw-parser"},
			Status:  model.StatusDone,
			Outcome: model.StatusRetrieved,
			Report: &model.ComplianceReport{
				Score:           70,
				Grade:           model.GradeCMinus,
				RequiredMissing: []string{"user"},
				Recommendations: []model.FixSuggestion{
					{Code: "ADD_REQUIRED_FIELD", Summary: "map user", Required: true},
				},
			},
			Matched:     []string{"action", "timestamp"},
			Missing:     []string{"user"},
			Dispatched:  5,
			ParsedCount: 5,
			DurationMS:  1200,
		},
		{
			Key:        model.PairKey{ProducerID: "dns-vendor", ParserID: "dns-parser"},
			Status:     model.StatusFailed,
			FailReason: "auth_error",
		},
	}, started, started.Add(time.Minute))
}

func TestWriteEncodedJSONToFile(t *testing.T) {
	out := filepath.Join(t.TempDir(), "matrix.json")

	err := writeEncoded(reportMatrix(), out, func(m *model.ValidationMatrix) ([]byte, error) {
		return json.MarshalIndent(m, "", "  ")
	})
	require.NoError(t, err)

	data, err := os.ReadFile(out)
	require.NoError(t, err)

	var decoded model.ValidationMatrix
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "matrix-1", decoded.ID)
	assert.Len(t, decoded.Pairs, 2)
}

func TestWriteXLSX(t *testing.T) {
	out := filepath.Join(t.TempDir(), "matrix.xlsx")
	require.NoError(t, writeXLSX(reportMatrix(), out))

	f, err := xlsx.OpenFile(out)
	require.NoError(t, err)
	require.Len(t, f.Sheets, 2)

	summary := f.Sheet["Summary"]
	require.NotNil(t, summary)
	assert.Equal(t, "Matrix ID", summary.Rows[0].Cells[0].Value)
	assert.Equal(t, "matrix-1", summary.Rows[0].Cells[1].Value)

	pairs := f.Sheet["Pairs"]
	require.NotNil(t, pairs)
	// Header plus one row per pair, sorted by key: dns before fw.
	require.Len(t, pairs.Rows, 3)
	assert.Equal(t, "Producer", pairs.Rows[0].Cells[0].Value)
	assert.Equal(t, "dns-vendor", pairs.Rows[1].Cells[0].Value)
	assert.Equal(t, "auth_error", pairs.Rows[1].Cells[6].Value)
	assert.Equal(t, "fw-vendor", pairs.Rows[2].Cells[0].Value)
	assert.Equal(t, "C-", pairs.Rows[2].Cells[4].Value)
	assert.Equal(t, "user", pairs.Rows[2].Cells[10].Value)
}

func TestFormatSuggestions(t *testing.T) {
	assert.Empty(t, formatSuggestions(nil))
	assert.Empty(t, formatSuggestions(&model.ComplianceReport{}))

	got := formatSuggestions(&model.ComplianceReport{
		Recommendations: []model.FixSuggestion{
			{Code: "ADD_REQUIRED_FIELD", Summary: "map user"},
			{Code: "REVIEW_EXTRA_FIELDS", Summary: "2 unmapped fields"},
		},
	})
	assert.Equal(t, "ADD_REQUIRED_FIELD: map user; REVIEW_EXTRA_FIELDS: 2 unmapped fields", got)
}
