// Package render maps a directory's declared capability to the view
// description clients use to draw it.
package render

import (
	"fmt"
	"sort"
	"sync"

	"erpdir/internal/domain/directory"
)

// Column is one visible field of a view.
type Column struct {
	FieldID string `json:"fieldId"`
	Name    string `json:"name"`
	Type    string `json:"type"`
}

// View describes how a directory should be presented.
type View struct {
	Renderer     string   `json:"renderer"`
	Component    string   `json:"component,omitempty"`
	Columns      []Column `json:"columns"`
	DisplayField string   `json:"displayField,omitempty"`
	Hidden       bool     `json:"hidden,omitempty"`
}

// Handler builds a View for one capability.
type Handler interface {
	Capability() string
	Describe(dir *directory.Directory, fields []*directory.Field) View
}

// Registry resolves handlers by capability. It is filled once at startup.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	fallback Handler
}

// NewRegistry creates a registry with the given fallback handler.
func NewRegistry(fallback Handler) *Registry {
	return &Registry{handlers: make(map[string]Handler), fallback: fallback}
}

// NewDefaultRegistry registers the built-in table, tree and custom handlers.
func NewDefaultRegistry() *Registry {
	r := NewRegistry(TableHandler{})
	r.MustRegister(TableHandler{})
	r.MustRegister(TreeHandler{})
	r.MustRegister(CustomHandler{})
	return r
}

// Register adds a handler. Capabilities are unique.
func (r *Registry) Register(h Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.handlers[h.Capability()]; dup {
		return fmt.Errorf("render capability %q already registered", h.Capability())
	}
	r.handlers[h.Capability()] = h
	return nil
}

// MustRegister is Register for startup wiring.
func (r *Registry) MustRegister(h Handler) {
	if err := r.Register(h); err != nil {
		panic(err)
	}
}

// Capabilities lists registered capability names.
func (r *Registry) Capabilities() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.handlers))
	for k := range r.handlers {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Resolve picks the handler for a directory: its capability, else
// "custom" when a component name is set, else the fallback.
func (r *Registry) Resolve(dir *directory.Directory) Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if h, ok := r.handlers[dir.Meta.Capability]; ok {
		return h
	}
	if dir.Meta.ComponentName != "" {
		if h, ok := r.handlers[CapabilityCustom]; ok {
			return h
		}
	}
	return r.fallback
}

// Describe resolves the handler and builds the view.
func (r *Registry) Describe(dir *directory.Directory, fields []*directory.Field) View {
	v := r.Resolve(dir).Describe(dir, fields)
	v.Hidden = !dir.Meta.IsVisible()
	return v
}
