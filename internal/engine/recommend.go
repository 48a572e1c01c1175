package engine

import (
	"sort"
	"strings"

	"github.com/parity-labs/parity-cli/internal/model"
)

// Fix suggestion codes. Stable identifiers callers can key UI or automation on.
const (
	FixTimestampNormalization = "timestamp_normalization"
	FixIdentityMapping        = "identity_mapping"
	FixClassificationMapping  = "classification_mapping"
	FixTaxonomyExtension      = "taxonomy_extension"
)

// Recommender pattern-matches common gap shapes in a diff to actionable
// remediation suggestions. Rule-based, not learned: a small ordered table
// evaluated against the missing and extra sets.
type Recommender struct {
	taxonomy *model.SchemaTaxonomy
}

// NewRecommender creates a Recommender over the given taxonomy.
func NewRecommender(taxonomy *model.SchemaTaxonomy) *Recommender {
	return &Recommender{taxonomy: taxonomy}
}

// Recommend evaluates the rule table against the diff. Multiple rules may
// fire; suggestions are deduplicated and returned in stable priority order,
// required-field fixes before optional ones.
func (r *Recommender) Recommend(diff model.DiffResult) []model.FixSuggestion {
	var out []model.FixSuggestion
	seen := make(map[string]bool)

	add := func(s model.FixSuggestion) {
		if seen[s.Code] {
			return
		}
		seen[s.Code] = true
		out = append(out, s)
	}

	if names := r.allMissing(diff.Missing, func(f *model.TaxonomyField) bool {
		return f.Required && (f.Class == model.ClassTimestamp || f.Type == model.FieldTypeTimestamp)
	}); len(names) > 0 {
		add(model.FixSuggestion{
			Code:     FixTimestampNormalization,
			Summary:  "all required timestamp fields are missing; check timestamp format normalization in the parser",
			Detail:   "missing: " + strings.Join(names, ", "),
			Required: true,
		})
	}

	if names := r.allMissing(diff.Missing, func(f *model.TaxonomyField) bool {
		return f.Class == model.ClassIdentity
	}); len(names) > 0 {
		add(model.FixSuggestion{
			Code:     FixIdentityMapping,
			Summary:  "all identity fields are missing; map the source's actor/user fields to the taxonomy",
			Detail:   "missing: " + strings.Join(names, ", "),
			Required: r.anyRequired(names),
		})
	}

	if names := r.allMissing(diff.Missing, func(f *model.TaxonomyField) bool {
		return f.Required && f.Class == model.ClassClassification
	}); len(names) > 0 {
		add(model.FixSuggestion{
			Code:     FixClassificationMapping,
			Summary:  "all required classification fields are missing; map the source's action/disposition fields",
			Detail:   "missing: " + strings.Join(names, ", "),
			Required: true,
		})
	}

	if unknown := r.unknownExtras(diff.Extra); len(unknown) > 0 {
		add(model.FixSuggestion{
			Code:     FixTaxonomyExtension,
			Summary:  "parser extracted fields absent from the taxonomy; extend the taxonomy or review parser over-extraction",
			Detail:   "extra: " + strings.Join(unknown, ", "),
			Required: false,
		})
	}

	// Required fixes first; table order is preserved within each group.
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Required && !out[j].Required
	})
	return out
}

// allMissing returns the names of taxonomy fields selected by pred when at
// least one exists and every one of them is in the missing set.
func (r *Recommender) allMissing(missing *model.FieldSet, pred func(*model.TaxonomyField) bool) []string {
	var names []string
	for i := range r.taxonomy.Fields {
		f := &r.taxonomy.Fields[i]
		if !pred(f) {
			continue
		}
		if !missing.Has(f.Name) {
			return nil
		}
		names = append(names, f.Name)
	}
	return names
}

func (r *Recommender) anyRequired(names []string) bool {
	for _, n := range names {
		if r.taxonomy.IsRequired(n) {
			return true
		}
	}
	return false
}

func (r *Recommender) unknownExtras(extra *model.FieldSet) []string {
	var unknown []string
	for _, name := range extra.Sorted() {
		if !r.taxonomy.Has(name) {
			unknown = append(unknown, name)
		}
	}
	return unknown
}
