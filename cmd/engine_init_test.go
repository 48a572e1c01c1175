package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parity-labs/parity-cli/internal/config"
)

const testTaxonomyYAML = `
name: normalized-v1
fields:
  - name: timestamp
    type: timestamp
    class: timestamp
    required: true
  - name: user
    type: string
    class: identity
    required: true
  - name: src_ip
    type: ip
    class: network
`

func testEngineConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()

	taxonomyPath := filepath.Join(dir, "taxonomy.yaml")
	require.NoError(t, os.WriteFile(taxonomyPath, []byte(testTaxonomyYAML), 0o644))

	return &config.Config{
		Store: config.StoreConfig{
			Driver:      "sqlite",
			DatabaseURL: filepath.Join(dir, "parity.db"),
		},
		Ingest: config.IngestConfig{
			BaseURL:      "http://localhost:8088",
			RatePerSec:   50,
			RateBurst:    100,
			MaxAttempts:  3,
			RetryBackoff: "10ms",
		},
		Query: config.QueryConfig{
			BaseURL:    "http://localhost:8089",
			RatePerSec: 20,
			RateBurst:  40,
		},
		Taxonomy: config.TaxonomyConfig{Path: taxonomyPath},
		Engine: config.EngineConfig{
			Concurrency:   2,
			EventsPerPair: 5,
		},
		Scoring: config.ScoringConfig{PenaltyWeight: 5, GradeCeiling: "B"},
	}
}

func TestInitEngine(t *testing.T) {
	cfg = testEngineConfig(t)

	pairsPath := writePairsFile(t, `
pairs:
  - producer: fw-vendor
    parser: fw-parser
`)

	env, err := initEngine(context.Background(), "validate", pairsPath)
	require.NoError(t, err)
	defer env.Close()

	assert.NotNil(t, env.Store)
	assert.NotNil(t, env.Engine)
	assert.Equal(t, "normalized-v1", env.Taxonomy.Name)
	require.Len(t, env.Pairs, 1)
	assert.Equal(t, []string{"fw-vendor"}, env.Producers.IDs())
}

func TestInitEngineBadRetryBackoff(t *testing.T) {
	cfg = testEngineConfig(t)
	cfg.Ingest.RetryBackoff = "not-a-duration"

	pairsPath := writePairsFile(t, `
pairs:
  - producer: fw-vendor
    parser: fw-parser
`)

	_, err := initEngine(context.Background(), "validate", pairsPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "retry_backoff")
}

func TestInitEngineInvalidConfig(t *testing.T) {
	cfg = testEngineConfig(t)
	cfg.Engine.Concurrency = 0

	_, err := initEngine(context.Background(), "validate", "pairs.yaml")
	require.Error(t, err)
}

func TestInitStoreUnsupportedDriver(t *testing.T) {
	cfg = testEngineConfig(t)
	cfg.Store.Driver = "oracle"

	_, err := initStore(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported store driver")
}
