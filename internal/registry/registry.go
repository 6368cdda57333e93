// Package registry holds the compiled skill handlers. Discovery resolves a
// skill id to a registered handler before falling back to live snippet
// execution, so every skill shipped in-tree runs as native code.
package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Handler is the uniform evaluation capability every compiled skill exposes.
// Evaluate must be pure: same input, same output, no observable side effects.
type Handler interface {
	Descriptor() Descriptor
	Evaluate(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error)
}

// Descriptor carries the metadata the catalog indexes for a compiled skill.
type Descriptor struct {
	ID               string
	Domain           string
	Title            string
	Description      string
	ShortDescription string
	Tags             []string
}

var (
	mu       sync.RWMutex
	handlers = make(map[string]Handler)
)

// Register adds a handler under its descriptor id. Registration happens at
// package init; a duplicate id is a programming error and panics.
func Register(h Handler) {
	mu.Lock()
	defer mu.Unlock()
	id := h.Descriptor().ID
	if id == "" {
		panic("registry: handler with empty id")
	}
	if _, dup := handlers[id]; dup {
		panic(fmt.Sprintf("registry: duplicate skill id %q", id))
	}
	handlers[id] = h
}

// Get returns the handler for id, if registered.
func Get(id string) (Handler, bool) {
	mu.RLock()
	defer mu.RUnlock()
	h, ok := handlers[id]
	return h, ok
}

// List returns all registered handlers sorted by id.
func List() []Handler {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]Handler, 0, len(handlers))
	for _, h := range handlers {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Descriptor().ID < out[j].Descriptor().ID
	})
	return out
}
