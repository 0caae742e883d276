// Package buildctx synthesizes the unit graph from a resolved dependency
// graph and owns output-layout and compiler-probe bookkeeping (spec §4.4,
// component G).
package buildctx

import (
	"context"
	"fmt"

	"github.com/craftpkg/craft/internal/core"
	"github.com/craftpkg/craft/internal/resolver"
)

// CompileFilter selects which of a root package's targets become root
// units (spec §4.4: "root units (lib/bin/test/bench/example/doc selected
// by the caller's compile filter)").
type CompileFilter struct {
	Lib     bool
	Bins    []string // empty + AllBins means every binary
	AllBins bool
	Tests   []string
	AllTests bool
	Benches  []string
	Examples []string
	Doc      bool
	DocAll   bool
}

// Context is the per-invocation build context: resolved graph, every
// package's Summary/Manifest, compiler-probe results, and the synthesized
// unit set.
type Context struct {
	Resolve    *resolver.Graph
	Packages   map[string]core.Manifest // keyed by PackageID.Key()
	HostTriple string
	Target     string // empty for host-only (non-cross) builds
	Probe      CompilerProbe

	units   []core.Unit
	unitKey map[string]int // Unit.Key() -> index in units
}

// CompilerProbe is the result of invoking the configured compiler once to
// enumerate supported crate types and target cfgs (spec §4.4, "Compiler
// probing").
type CompilerProbe struct {
	SupportedCrateTypes map[core.LibKind]crateTypeInfo
	Cfg                 map[string]string
}

type crateTypeInfo struct {
	Prefix string
	Suffix string
}

// New constructs a Context for res, with every resolved package's manifest
// supplied in packages (keyed by PackageID.Key()).
func New(res *resolver.Graph, packages map[string]core.Manifest, hostTriple, target string, probe CompilerProbe) *Context {
	return &Context{
		Resolve:    res,
		Packages:   packages,
		HostTriple: hostTriple,
		Target:     target,
		Probe:      probe,
		unitKey:    map[string]int{},
	}
}

func (c *Context) manifestFor(id core.PackageID) (core.Manifest, error) {
	m, ok := c.Packages[id.Key()]
	if !ok {
		return core.Manifest{}, fmt.Errorf("no manifest loaded for %s", id)
	}
	return m, nil
}

// kindFor returns Host when forHost is set (a build script's own binary, or
// a for_host target) and TargetArch otherwise, per spec §4.4.
func kindFor(forHost bool) core.UnitKind {
	if forHost {
		return core.Host
	}
	return core.TargetArch
}

// BuildRoots synthesizes the root unit set for every entry in roots
// (normally one workspace member), applying filter to select targets, then
// computes the transitive closure via DepTargets (spec §4.4).
func (c *Context) BuildRoots(ctx context.Context, roots []core.PackageID, filter CompileFilter, profile core.Profile) ([]core.Unit, error) {
	var rootUnits []core.Unit
	for _, id := range roots {
		m, err := c.manifestFor(id)
		if err != nil {
			return nil, err
		}
		for _, t := range m.Targets {
			if !filter.wants(t) {
				continue
			}
			u := core.Unit{Package: id, Target: t, Profile: profile, Kind: kindFor(t.ForHost)}
			rootUnits = append(rootUnits, u)
		}
	}

	seen := map[string]bool{}
	var all []core.Unit
	var walk func(u core.Unit) error
	walk = func(u core.Unit) error {
		if seen[u.Key()] {
			return nil
		}
		seen[u.Key()] = true
		all = append(all, u)
		c.addUnit(u)
		deps, err := c.DepTargets(u)
		if err != nil {
			return err
		}
		for _, d := range deps {
			if err := walk(d); err != nil {
				return err
			}
		}
		return nil
	}
	for _, u := range rootUnits {
		if err := walk(u); err != nil {
			return nil, err
		}
	}
	return all, nil
}

func (f CompileFilter) wants(t core.Target) bool {
	switch {
	case t.IsLib():
		return f.Lib || f.Doc
	case t.IsBin():
		return f.AllBins || contains(f.Bins, t.Name)
	case t.IsTest():
		return f.AllTests || contains(f.Tests, t.Name)
	case t.IsBench():
		return contains(f.Benches, t.Name)
	case t.IsExample():
		return contains(f.Examples, t.Name)
	default:
		return false
	}
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

func (c *Context) addUnit(u core.Unit) {
	if _, ok := c.unitKey[u.Key()]; ok {
		return
	}
	c.unitKey[u.Key()] = len(c.units)
	c.units = append(c.units, u)
}

// Units returns every unit discovered so far across all BuildRoots calls,
// in an arena-style flat slice (spec §9, "Arena + index for the unit
// graph").
func (c *Context) Units() []core.Unit { return append([]core.Unit(nil), c.units...) }
