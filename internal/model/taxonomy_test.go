package model

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTaxonomy() *SchemaTaxonomy {
	return NewSchemaTaxonomy("ocsf_base", []TaxonomyField{
		{Name: "timestamp", Type: FieldTypeTimestamp, Class: ClassTimestamp, Required: true},
		{Name: "user", Type: FieldTypeString, Class: ClassIdentity, Required: true},
		{Name: "src_ip", Type: FieldTypeIP, Class: ClassNetwork, Required: false},
		{Name: "action", Type: FieldTypeEnum, Class: ClassClassification, Required: true},
		{Name: "resource", Type: FieldTypeString, Class: ClassResource, Required: false},
	})
}

func TestSchemaTaxonomy_Indexes(t *testing.T) {
	tax := sampleTaxonomy()

	require.NotNil(t, tax.ByName("TIMESTAMP"))
	assert.True(t, tax.IsRequired("user"))
	assert.False(t, tax.IsRequired("src_ip"))
	assert.False(t, tax.IsRequired("unknown"))
	assert.True(t, tax.Has("resource"))
	assert.False(t, tax.Has("nope"))

	assert.Len(t, tax.Required(), 3)
	assert.ElementsMatch(t, []string{"timestamp", "user", "action"}, tax.RequiredNames())
	assert.Len(t, tax.ByClass(ClassIdentity), 1)
}

func TestSchemaTaxonomy_Validate(t *testing.T) {
	cases := []struct {
		name    string
		fields  []TaxonomyField
		wantErr string
	}{
		{
			name:    "empty",
			fields:  nil,
			wantErr: "no fields",
		},
		{
			name: "duplicate after normalization",
			fields: []TaxonomyField{
				{Name: "User", Type: FieldTypeString, Class: ClassIdentity},
				{Name: "user ", Type: FieldTypeString, Class: ClassIdentity},
			},
			wantErr: "duplicate",
		},
		{
			name: "unknown type",
			fields: []TaxonomyField{
				{Name: "x", Type: "blob", Class: ClassResource},
			},
			wantErr: "unknown type",
		},
		{
			name: "unknown class",
			fields: []TaxonomyField{
				{Name: "x", Type: FieldTypeString, Class: "vibes"},
			},
			wantErr: "unknown class",
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := NewSchemaTaxonomy("t", c.fields).Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), c.wantErr)
		})
	}

	assert.NoError(t, sampleTaxonomy().Validate())
}

func TestLoadTaxonomy(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "taxonomy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: ocsf_base
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
`), 0o644))

	tax, err := LoadTaxonomy(path)
	require.NoError(t, err)
	assert.Equal(t, "ocsf_base", tax.Name)
	assert.Len(t, tax.Fields, 3)
	assert.True(t, tax.IsRequired("timestamp"))
}

func TestLoadTaxonomy_Invalid(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: x\nfields: []\n"), 0o644))
	_, err := LoadTaxonomy(path)
	require.Error(t, err)

	_, err = LoadTaxonomy(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
}
