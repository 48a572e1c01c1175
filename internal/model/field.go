package model

import (
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// FieldType classifies the semantic type of a log field.
type FieldType string

const (
	FieldTypeString    FieldType = "string"
	FieldTypeNumber    FieldType = "number"
	FieldTypeTimestamp FieldType = "timestamp"
	FieldTypeIP        FieldType = "ip"
	FieldTypeEnum      FieldType = "enum"
)

// ParseFieldType maps a wire-level type tag to a FieldType. Unknown tags fall
// back to FieldTypeString so a parser emitting a new type never fails a record.
func ParseFieldType(s string) FieldType {
	switch FieldType(strings.ToLower(strings.TrimSpace(s))) {
	case FieldTypeNumber:
		return FieldTypeNumber
	case FieldTypeTimestamp:
		return FieldTypeTimestamp
	case FieldTypeIP:
		return FieldTypeIP
	case FieldTypeEnum:
		return FieldTypeEnum
	default:
		return FieldTypeString
	}
}

// NormalizeFieldName canonicalizes a field name for comparison: Unicode NFKC
// normalization, whitespace trim, lower-case. All FieldSet lookups go through
// this, so "SrcIP ", "srcip" and "ｓｒｃｉｐ" land on the same key.
func NormalizeFieldName(name string) string {
	return strings.ToLower(strings.TrimSpace(norm.NFKC.String(name)))
}

// Field is a single named field with its semantic type.
type Field struct {
	Name string    `json:"name" yaml:"name"`
	Type FieldType `json:"type" yaml:"type"`
}

// FieldSet is an ordered set of normalized field names with semantic types.
// Insertion order is preserved; re-adding an existing name updates its type
// in place. The zero value is not usable, call NewFieldSet.
type FieldSet struct {
	names []string
	types map[string]FieldType
}

// NewFieldSet creates a FieldSet from the given fields, in order.
func NewFieldSet(fields ...Field) *FieldSet {
	s := &FieldSet{types: make(map[string]FieldType, len(fields))}
	for _, f := range fields {
		s.Add(f.Name, f.Type)
	}
	return s
}

// Add inserts a field under its normalized name. Empty names are ignored.
func (s *FieldSet) Add(name string, t FieldType) {
	key := NormalizeFieldName(name)
	if key == "" {
		return
	}
	if _, ok := s.types[key]; !ok {
		s.names = append(s.names, key)
	}
	s.types[key] = t
}

// Has reports whether the set contains the (normalized) name.
func (s *FieldSet) Has(name string) bool {
	if s == nil {
		return false
	}
	_, ok := s.types[NormalizeFieldName(name)]
	return ok
}

// Type returns the semantic type of the named field.
func (s *FieldSet) Type(name string) (FieldType, bool) {
	if s == nil {
		return "", false
	}
	t, ok := s.types[NormalizeFieldName(name)]
	return t, ok
}

// Len returns the number of fields in the set.
func (s *FieldSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.names)
}

// Names returns the field names in insertion order.
func (s *FieldSet) Names() []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

// Sorted returns the field names in lexical order.
func (s *FieldSet) Sorted() []string {
	out := s.Names()
	sort.Strings(out)
	return out
}

// Fields returns the set as a slice of Field in insertion order.
func (s *FieldSet) Fields() []Field {
	if s == nil {
		return nil
	}
	out := make([]Field, 0, len(s.names))
	for _, n := range s.names {
		out = append(out, Field{Name: n, Type: s.types[n]})
	}
	return out
}

// Clone returns an independent copy of the set.
func (s *FieldSet) Clone() *FieldSet {
	if s == nil {
		return NewFieldSet()
	}
	return NewFieldSet(s.Fields()...)
}
