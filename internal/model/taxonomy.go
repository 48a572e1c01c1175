package model

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// FieldClass groups taxonomy fields into normalized schema categories used by
// the scorer and the fix recommender.
type FieldClass string

const (
	ClassIdentity       FieldClass = "identity"
	ClassTimestamp      FieldClass = "timestamp"
	ClassNetwork        FieldClass = "network"
	ClassClassification FieldClass = "classification"
	ClassResource       FieldClass = "resource"
)

var knownClasses = map[FieldClass]bool{
	ClassIdentity:       true,
	ClassTimestamp:      true,
	ClassNetwork:        true,
	ClassClassification: true,
	ClassResource:       true,
}

var knownTypes = map[FieldType]bool{
	FieldTypeString:    true,
	FieldTypeNumber:    true,
	FieldTypeTimestamp: true,
	FieldTypeIP:        true,
	FieldTypeEnum:      true,
}

// TaxonomyField describes one field of the normalized schema.
type TaxonomyField struct {
	Name     string     `yaml:"name" json:"name"`
	Type     FieldType  `yaml:"type" json:"type"`
	Class    FieldClass `yaml:"class" json:"class"`
	Required bool       `yaml:"required" json:"required"`
}

// SchemaTaxonomy is an indexed collection of taxonomy fields. Field names are
// normalized at construction so lookups match FieldSet keys.
type SchemaTaxonomy struct {
	Name   string
	Fields []TaxonomyField

	byName   map[string]*TaxonomyField
	byClass  map[FieldClass][]*TaxonomyField
	required []*TaxonomyField
}

// NewSchemaTaxonomy creates a SchemaTaxonomy with indexed lookups.
func NewSchemaTaxonomy(name string, fields []TaxonomyField) *SchemaTaxonomy {
	t := &SchemaTaxonomy{
		Name:    name,
		Fields:  fields,
		byName:  make(map[string]*TaxonomyField, len(fields)),
		byClass: make(map[FieldClass][]*TaxonomyField),
	}
	for i := range t.Fields {
		f := &t.Fields[i]
		f.Name = NormalizeFieldName(f.Name)
		t.byName[f.Name] = f
		t.byClass[f.Class] = append(t.byClass[f.Class], f)
		if f.Required {
			t.required = append(t.required, f)
		}
	}
	return t
}

// ByName returns the taxonomy field for the given name, or nil.
func (t *SchemaTaxonomy) ByName(name string) *TaxonomyField {
	return t.byName[NormalizeFieldName(name)]
}

// ByClass returns all taxonomy fields in the given class.
func (t *SchemaTaxonomy) ByClass(c FieldClass) []*TaxonomyField {
	return t.byClass[c]
}

// Required returns all required taxonomy fields.
func (t *SchemaTaxonomy) Required() []*TaxonomyField {
	return t.required
}

// RequiredNames returns the normalized names of all required fields.
func (t *SchemaTaxonomy) RequiredNames() []string {
	out := make([]string, 0, len(t.required))
	for _, f := range t.required {
		out = append(out, f.Name)
	}
	return out
}

// IsRequired reports whether the named field is required by the taxonomy.
func (t *SchemaTaxonomy) IsRequired(name string) bool {
	f := t.ByName(name)
	return f != nil && f.Required
}

// Has reports whether the named field exists in the taxonomy at all.
func (t *SchemaTaxonomy) Has(name string) bool {
	return t.ByName(name) != nil
}

// Validate checks the taxonomy for configuration faults: empty or duplicate
// field names, unknown semantic types, unknown classes. Surfaced before any
// jobs run, never per-job.
func (t *SchemaTaxonomy) Validate() error {
	if len(t.Fields) == 0 {
		return eris.Errorf("taxonomy %q: no fields defined", t.Name)
	}
	seen := make(map[string]bool, len(t.Fields))
	for _, f := range t.Fields {
		if f.Name == "" {
			return eris.Errorf("taxonomy %q: field with empty name", t.Name)
		}
		if seen[f.Name] {
			return eris.Errorf("taxonomy %q: duplicate field %q", t.Name, f.Name)
		}
		seen[f.Name] = true
		if !knownTypes[f.Type] {
			return eris.Errorf("taxonomy %q: field %q: unknown type %q", t.Name, f.Name, f.Type)
		}
		if !knownClasses[f.Class] {
			return eris.Errorf("taxonomy %q: field %q: unknown class %q", t.Name, f.Name, f.Class)
		}
	}
	return nil
}

// taxonomyFile is the on-disk YAML shape.
type taxonomyFile struct {
	Name   string          `yaml:"name"`
	Fields []TaxonomyField `yaml:"fields"`
}

// LoadTaxonomy reads and validates a schema taxonomy from a YAML file.
func LoadTaxonomy(path string) (*SchemaTaxonomy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "taxonomy: read file")
	}
	var tf taxonomyFile
	if err := yaml.Unmarshal(data, &tf); err != nil {
		return nil, eris.Wrap(err, "taxonomy: unmarshal yaml")
	}
	t := NewSchemaTaxonomy(tf.Name, tf.Fields)
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}
