package source

import (
	"sync"
)

// Registry holds the configured adapters in priority order; the first
// registered searcher is the primary.
type Registry struct {
	mu       sync.RWMutex
	adapters []Adapter
	byName   map[string]Adapter
}

// NewRegistry creates a registry with the given adapters in order.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{byName: make(map[string]Adapter)}
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

// Register appends an adapter. A second adapter with the same name replaces
// the first in place.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byName[a.Name()]; ok {
		for i, existing := range r.adapters {
			if existing.Name() == a.Name() {
				r.adapters[i] = a
			}
		}
	} else {
		r.adapters = append(r.adapters, a)
	}
	r.byName[a.Name()] = a
}

// Get returns an adapter by name, or nil if not registered.
func (r *Registry) Get(name string) Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byName[name]
}

// Names returns registered adapter names in priority order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.adapters))
	for _, a := range r.adapters {
		names = append(names, a.Name())
	}
	return names
}

func (r *Registry) available(c Capability) []Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Adapter
	for _, a := range r.adapters {
		if a.Capabilities().Has(c) && a.Available() {
			out = append(out, a)
		}
	}
	return out
}

// Searchers returns available search-capable adapters, primary first.
func (r *Registry) Searchers() []Searcher {
	var out []Searcher
	for _, a := range r.available(CapSearch) {
		if s, ok := a.(Searcher); ok {
			out = append(out, s)
		}
	}
	return out
}

// TreeWalker returns the named adapter if it is available and tree-capable.
func (r *Registry) TreeWalker(name string) (TreeWalker, bool) {
	a := r.Get(name)
	if a == nil || !a.Capabilities().Has(CapTree) || !a.Available() {
		return nil, false
	}
	tw, ok := a.(TreeWalker)
	return tw, ok
}

// Confirmers returns available confirmation sources.
func (r *Registry) Confirmers() []Confirmer {
	var out []Confirmer
	for _, a := range r.available(CapConfirm) {
		if c, ok := a.(Confirmer); ok {
			out = append(out, c)
		}
	}
	return out
}

// EvidenceProviders returns available citation sources.
func (r *Registry) EvidenceProviders() []EvidenceProvider {
	var out []EvidenceProvider
	for _, a := range r.available(CapEvidence) {
		if e, ok := a.(EvidenceProvider); ok {
			out = append(out, e)
		}
	}
	return out
}

// ResetAuth clears sticky authentication failures on every adapter that
// tracks them. Called at the start of each job.
func (r *Registry) ResetAuth() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.adapters {
		if ra, ok := a.(interface{ ResetAuth() }); ok {
			ra.ResetAuth()
		}
	}
}
