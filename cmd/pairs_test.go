package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parity-labs/parity-cli/internal/model"
)

func writePairsFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pairs.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func pairsTaxonomy() *model.SchemaTaxonomy {
	return model.NewSchemaTaxonomy("test", []model.TaxonomyField{
		{Name: "timestamp", Type: model.FieldTypeTimestamp, Class: model.ClassTimestamp, Required: true},
		{Name: "user", Type: model.FieldTypeString, Class: model.ClassIdentity, Required: true},
		{Name: "src_ip", Type: model.FieldTypeIP, Class: model.ClassNetwork},
	})
}

func TestLoadPairs(t *testing.T) {
	path := writePairsFile(t, `
pairs:
  - producer: fw-vendor
    parser: fw-parser
    fields:
      - name: timestamp
        type: timestamp
      - name: user
        type: string
  - producer: dns-vendor
    parser: dns-parser
`)

	keys, registry, err := loadPairs(path, pairsTaxonomy())
	require.NoError(t, err)

	require.Len(t, keys, 2)
	assert.Equal(t, model.PairKey{ProducerID: "fw-vendor", ParserID: "fw-parser"}, keys[0])
	assert.Equal(t, model.PairKey{ProducerID: "dns-vendor", ParserID: "dns-parser"}, keys[1])

	fw, ok := registry.Get("fw-vendor")
	require.True(t, ok)
	assert.Equal(t, 2, fw.Fields().Len())

	// No field list declared: producer inherits the full taxonomy.
	dns, ok := registry.Get("dns-vendor")
	require.True(t, ok)
	assert.Equal(t, 3, dns.Fields().Len())
	assert.True(t, dns.Fields().Has("src_ip"))
}

func TestLoadPairsSharedProducer(t *testing.T) {
	path := writePairsFile(t, `
pairs:
  - producer: fw-vendor
    parser: fw-parser
  - producer: fw-vendor
    parser: fw-parser-v2
`)

	keys, registry, err := loadPairs(path, pairsTaxonomy())
	require.NoError(t, err)
	assert.Len(t, keys, 2)
	assert.Len(t, registry.IDs(), 1)
}

func TestLoadPairsErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "empty plan",
			content: "pairs: []\n",
			wantErr: "defines no pairs",
		},
		{
			name: "missing parser",
			content: `
pairs:
  - producer: fw-vendor
`,
			wantErr: "producer and parser are required",
		},
		{
			name: "duplicate pair",
			content: `
pairs:
  - producer: fw-vendor
    parser: fw-parser
  - producer: fw-vendor
    parser: fw-parser
`,
			wantErr: "duplicate pair",
		},
		{
			name: "conflicting producer fields",
			content: `
pairs:
  - producer: fw-vendor
    parser: fw-parser
    fields:
      - name: timestamp
        type: timestamp
  - producer: fw-vendor
    parser: fw-parser-v2
    fields:
      - name: user
        type: string
`,
			wantErr: "declared twice with different fields",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writePairsFile(t, tt.content)
			_, _, err := loadPairs(path, pairsTaxonomy())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadPairsMissingFile(t *testing.T) {
	_, _, err := loadPairs(filepath.Join(t.TempDir(), "nope.yaml"), pairsTaxonomy())
	require.Error(t, err)
}
