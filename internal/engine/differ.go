package engine

import (
	"github.com/parity-labs/parity-cli/internal/model"
)

// Diff computes the field-presence diff between the generated and parsed
// field sets. Pure, deterministic, and total: an empty parsed set (complete
// miss) and an empty generated set (degenerate) are both valid inputs.
// Comparison is by normalized field name only; value correctness is out of
// scope here.
func Diff(generated, parsed *model.FieldSet) model.DiffResult {
	matched := model.NewFieldSet()
	missing := model.NewFieldSet()
	extra := model.NewFieldSet()

	for _, f := range generated.Fields() {
		if parsed.Has(f.Name) {
			matched.Add(f.Name, f.Type)
		} else {
			missing.Add(f.Name, f.Type)
		}
	}
	for _, f := range parsed.Fields() {
		if !generated.Has(f.Name) {
			extra.Add(f.Name, f.Type)
		}
	}

	return model.DiffResult{Matched: matched, Missing: missing, Extra: extra}
}
