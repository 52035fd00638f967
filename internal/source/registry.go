package source

import (
	"fmt"

	"MedicareCoverageChecker/internal/ports"
)

// Registry keeps a mapping from source names to their implementations.
type Registry struct {
	sources map[string]ports.ReimbursementSource
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{sources: map[string]ports.ReimbursementSource{}}
}

// Register adds or replaces a source implementation.
func (r *Registry) Register(src ports.ReimbursementSource) {
	if r.sources == nil {
		r.sources = map[string]ports.ReimbursementSource{}
	}
	r.sources[src.Name()] = src
}

// Resolve returns a source by name or an error if it is absent.
func (r *Registry) Resolve(name string) (ports.ReimbursementSource, error) {
	if src, ok := r.sources[name]; ok {
		return src, nil
	}
	return nil, fmt.Errorf("source %s is not registered", name)
}

// Ordered resolves names in priority order. Duplicates are dropped and an unknown
// name fails the whole call so a typo in configuration is not silently ignored.
func (r *Registry) Ordered(names []string) ([]ports.ReimbursementSource, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("no sources configured")
	}
	seen := make(map[string]struct{}, len(names))
	ordered := make([]ports.ReimbursementSource, 0, len(names))
	for _, name := range names {
		if _, dup := seen[name]; dup {
			continue
		}
		src, err := r.Resolve(name)
		if err != nil {
			return nil, err
		}
		seen[name] = struct{}{}
		ordered = append(ordered, src)
	}
	return ordered, nil
}
