package main

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/parity-labs/parity-cli/internal/model"
	"github.com/parity-labs/parity-cli/internal/producer"
)

// pairsFile is the on-disk shape of a validation plan: which producer/parser
// pairs to exercise, and what fields each producer claims to emit. A pair
// without a field list inherits the full taxonomy, which makes the plan file
// trivial for producers that should cover the whole schema.
type pairsFile struct {
	Pairs []pairEntry `yaml:"pairs"`
}

type pairEntry struct {
	Producer string        `yaml:"producer"`
	Parser   string        `yaml:"parser"`
	Fields   []model.Field `yaml:"fields,omitempty"`
}

// loadPairs reads a validation plan and builds the pair list plus a registry
// of synthetic producers emitting the declared field sets.
func loadPairs(path string, taxonomy *model.SchemaTaxonomy) ([]model.PairKey, *producer.Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, eris.Wrap(err, "pairs: read file")
	}

	var pf pairsFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, nil, eris.Wrap(err, "pairs: unmarshal yaml")
	}
	if len(pf.Pairs) == 0 {
		return nil, nil, eris.Errorf("pairs: %s defines no pairs", path)
	}

	registry := producer.NewRegistry()
	keys := make([]model.PairKey, 0, len(pf.Pairs))
	seen := make(map[model.PairKey]bool, len(pf.Pairs))
	fieldsByProducer := make(map[string][]model.Field)

	for i, entry := range pf.Pairs {
		if entry.Producer == "" || entry.Parser == "" {
			return nil, nil, eris.Errorf("pairs: entry %d: producer and parser are required", i)
		}

		key := model.PairKey{ProducerID: entry.Producer, ParserID: entry.Parser}
		if seen[key] {
			return nil, nil, eris.Errorf("pairs: duplicate pair %s", key)
		}
		seen[key] = true
		keys = append(keys, key)

		fields := entry.Fields
		if len(fields) == 0 {
			fields = taxonomyFields(taxonomy)
		}

		if prev, ok := fieldsByProducer[entry.Producer]; ok {
			if !sameFields(prev, fields) {
				return nil, nil, eris.Errorf("pairs: producer %q declared twice with different fields", entry.Producer)
			}
			continue
		}
		fieldsByProducer[entry.Producer] = fields

		if err := registry.Register(producer.NewSynthetic(entry.Producer, fields...)); err != nil {
			return nil, nil, eris.Wrap(err, "pairs: register producer")
		}
	}

	return keys, registry, nil
}

func taxonomyFields(t *model.SchemaTaxonomy) []model.Field {
	out := make([]model.Field, 0, len(t.Fields))
	for _, f := range t.Fields {
		out = append(out, model.Field{Name: f.Name, Type: f.Type})
	}
	return out
}

func sameFields(a, b []model.Field) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if model.NormalizeFieldName(a[i].Name) != model.NormalizeFieldName(b[i].Name) || a[i].Type != b[i].Type {
			return false
		}
	}
	return true
}
