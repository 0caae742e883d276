package source

import (
	"fmt"
	"strings"

	"github.com/craftpkg/craft/internal/core"
	"github.com/craftpkg/craft/internal/source/manifestloader"
)

// ConfigMap constructs the right concrete Source implementation for a given
// SourceID, keyed off its Kind, and memoizes the result in an underlying
// Map (spec §4.1, component B: "a SourceConfigMap that, given a SourceId,
// loads the right Source implementation").
type ConfigMap struct {
	home   string // craft.Config.Home-equivalent cache root
	loader manifestloader.Loader
	cache  *Map

	// replacements maps an overridden SourceID to the SourceID it should
	// resolve through instead (manifest [replace]-table sources), applied
	// by Load before dispatching on Kind.
	replacements map[core.SourceID]core.SourceID
}

func NewConfigMap(home string) *ConfigMap {
	return &ConfigMap{
		home:         home,
		loader:       manifestloader.NewTOMLLoader(core.SourceID{}),
		cache:        NewMap(),
		replacements: map[core.SourceID]core.SourceID{},
	}
}

// Cache exposes the underlying source Map, e.g. for constructing an
// internal/registry.Registry over the same memoized sources.
func (c *ConfigMap) Cache() *Map { return c.cache }

// AddReplacement registers that sources addressed as `from` should actually
// be loaded and queried through `to` (spec §4.3).
func (c *ConfigMap) AddReplacement(from, to core.SourceID) {
	c.replacements[from] = to
}

// Load returns the Source for id, constructing and caching it on first use.
func (c *ConfigMap) Load(id core.SourceID) (Source, error) {
	if cached, ok := c.cache.Get(id); ok {
		return cached, nil
	}

	if to, ok := c.replacements[id]; ok && !to.Equal(id) {
		inner, err := c.Load(to)
		if err != nil {
			return nil, err
		}
		replaced, err := NewReplacedSource(inner, id)
		if err != nil {
			return nil, err
		}
		c.cache.Insert(replaced)
		return replaced, nil
	}

	loader := manifestloader.NewTOMLLoader(id)
	var src Source
	switch id.Kind() {
	case core.KindPath:
		path, err := pathFromSourceID(id)
		if err != nil {
			return nil, err
		}
		m, err := loader.Load(path)
		if err != nil {
			return nil, fmt.Errorf("loading path source %s: %w", id, err)
		}
		src = NewPathSource(id, path, m)
	case core.KindGit:
		src = NewGitSource(id, c.home, loader)
	case core.KindRegistry:
		src = NewRegistrySource(id, c.home, loader)
	case core.KindLocalRegistry:
		path, err := pathFromSourceID(id)
		if err != nil {
			return nil, err
		}
		src = NewDirectorySource(id, path, loader)
	case core.KindDirectory:
		path, err := pathFromSourceID(id)
		if err != nil {
			return nil, err
		}
		src = NewDirectorySource(id, path, loader)
	default:
		return nil, fmt.Errorf("unsupported source kind for %s", id)
	}
	c.cache.Insert(src)
	return src, nil
}

func pathFromSourceID(id core.SourceID) (string, error) {
	return strings.TrimPrefix(id.URL(), "file://"), nil
}
