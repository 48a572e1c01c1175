// Package producer defines the event-producer contract consumed by the
// dispatcher and a registry for looking producers up by id. Producers
// synthesize vendor-shaped log payloads; the validation engine only cares
// about the field set they claim to emit.
package producer

import (
	"sort"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/parity-labs/parity-cli/internal/model"
)

// Producer synthesizes events for one vendor log shape.
type Producer interface {
	// ID is the stable producer identifier used in pair keys.
	ID() string
	// Fields is the field set every emitted payload is expected to carry.
	Fields() *model.FieldSet
	// Emit returns n payloads. Payload content is producer-defined; the
	// engine only requires that it JSON-encodes.
	Emit(n int) ([]map[string]any, error)
}

// Registry is a concurrency-safe collection of producers keyed by id.
type Registry struct {
	mu   sync.RWMutex
	byID map[string]Producer
}

// NewRegistry creates a registry pre-loaded with the given producers.
// Duplicate ids panic at construction since they are a programming error.
func NewRegistry(producers ...Producer) *Registry {
	r := &Registry{byID: make(map[string]Producer, len(producers))}
	for _, p := range producers {
		if err := r.Register(p); err != nil {
			panic(err)
		}
	}
	return r
}

// Register adds a producer. Registering a duplicate id is an error.
func (r *Registry) Register(p Producer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[p.ID()]; ok {
		return eris.Errorf("producer: duplicate id %q", p.ID())
	}
	r.byID[p.ID()] = p
	return nil
}

// Get returns the producer for the given id.
func (r *Registry) Get(id string) (Producer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byID[id]
	return p, ok
}

// IDs returns all registered producer ids in lexical order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.byID))
	for id := range r.byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
