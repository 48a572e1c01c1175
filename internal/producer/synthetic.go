package producer

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"github.com/parity-labs/parity-cli/internal/model"
)

var (
	syntheticUsers   = []string{"alice", "bob", "carol", "dave", "mallory", "svc-backup"}
	syntheticActions = []string{"allow", "deny", "drop", "alert"}
)

// Synthetic is a built-in producer that fabricates payload values by semantic
// type. It exists so the CLI can run end-to-end without a vendor-specific
// producer; real deployments register their own Producer implementations.
type Synthetic struct {
	id     string
	fields *model.FieldSet
}

// NewSynthetic creates a synthetic producer emitting the given fields.
func NewSynthetic(id string, fields ...model.Field) *Synthetic {
	return &Synthetic{id: id, fields: model.NewFieldSet(fields...)}
}

func (s *Synthetic) ID() string {
	return s.id
}

func (s *Synthetic) Fields() *model.FieldSet {
	return s.fields.Clone()
}

// Emit fabricates n payloads carrying every declared field.
func (s *Synthetic) Emit(n int) ([]map[string]any, error) {
	out := make([]map[string]any, 0, n)
	for range n {
		payload := make(map[string]any, s.fields.Len())
		for _, f := range s.fields.Fields() {
			payload[f.Name] = syntheticValue(f.Type)
		}
		out = append(out, payload)
	}
	return out, nil
}

func syntheticValue(t model.FieldType) any {
	switch t {
	case model.FieldTypeNumber:
		return rand.IntN(65536)
	case model.FieldTypeTimestamp:
		return time.Now().UTC().Format(time.RFC3339Nano)
	case model.FieldTypeIP:
		return fmt.Sprintf("10.%d.%d.%d", rand.IntN(256), rand.IntN(256), rand.IntN(254)+1)
	case model.FieldTypeEnum:
		return syntheticActions[rand.IntN(len(syntheticActions))]
	default:
		if rand.IntN(2) == 0 {
			return syntheticUsers[rand.IntN(len(syntheticUsers))]
		}
		return uuid.NewString()
	}
}
