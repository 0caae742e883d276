package source

import (
	"fmt"

	"github.com/craftpkg/craft/internal/core"
)

// Map is a SourceID-keyed cache of live Source instances, letting the
// registry and resolver hand out the same *Source for a given SourceID
// across an invocation rather than constructing (and re-cloning/re-fetching)
// one per lookup (spec §4.1, "a SourceMap from SourceId to Source").
type Map struct {
	sources map[core.SourceID]Source
}

func NewMap() *Map {
	return &Map{sources: map[core.SourceID]Source{}}
}

// Insert registers src under its own ID, replacing any prior entry.
func (m *Map) Insert(src Source) {
	m.sources[src.ID()] = src
}

// Get returns the Source registered for id, if any.
func (m *Map) Get(id core.SourceID) (Source, bool) {
	s, ok := m.sources[id]
	return s, ok
}

// GetOrError is Get but returns a descriptive error instead of a bool, for
// call sites where a missing source indicates a bug rather than an
// expected miss.
func (m *Map) GetOrError(id core.SourceID) (Source, error) {
	s, ok := m.sources[id]
	if !ok {
		return nil, fmt.Errorf("no source loaded for %s", id)
	}
	return s, nil
}

// All returns every registered source, order unspecified.
func (m *Map) All() []Source {
	out := make([]Source, 0, len(m.sources))
	for _, s := range m.sources {
		out = append(out, s)
	}
	return out
}
