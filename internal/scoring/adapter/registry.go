package adapter

import (
	"sort"
	"strings"
)

// Registry resolves adapters by provider name for the scoring endpoint.
// Unknown or empty names resolve to the internal model, mirroring the
// engine's own terminal fallback.
type Registry struct {
	internal Adapter
	byName   map[string]Adapter
}

func NewRegistry(internal Adapter, others ...Adapter) *Registry {
	r := &Registry{
		internal: internal,
		byName:   map[string]Adapter{strings.ToUpper(internal.Name()): internal},
	}
	for _, a := range others {
		if a == nil {
			continue
		}
		r.byName[strings.ToUpper(a.Name())] = a
	}
	return r
}

func (r *Registry) Get(name string) Adapter {
	if a, ok := r.byName[strings.ToUpper(strings.TrimSpace(name))]; ok {
		return a
	}
	return r.internal
}

// Providers lists the adapters that are actually callable right now.
func (r *Registry) Providers() []string {
	names := make([]string, 0, len(r.byName))
	for name, a := range r.byName {
		if a.Available() {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
