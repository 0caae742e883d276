// Package registry implements Registry: the source-aggregating,
// override-applying, lockfile-overlaying query layer the resolver consumes
// (spec §4.2, component C).
package registry

import (
	"context"
	"fmt"
	"sort"

	"github.com/craftpkg/craft/internal/core"
	"github.com/craftpkg/craft/internal/source"
)

// lockEntry is one row of the nested lock map: a previously resolved
// package id plus the ids its own dependencies locked to, per spec §4.2
// ("a nested lock map `{source -> {name -> [(package_id, [locked_dep_ids])]}}`
// built from the prior lockfile").
type lockEntry struct {
	id        core.PackageID
	lockedDeps []core.PackageID
}

// Registry aggregates Sources, override sources, and a lockfile-derived
// pin overlay, and is itself a source.Registry (queryable by the resolver).
type Registry struct {
	sources   *source.Map
	overrides []core.SourceID

	// locked holds one lockEntry list per (sourceKey, name).
	locked map[lockKey][]lockEntry

	// updated tracks which SourceIDs have already had Update called this
	// process, enforcing the "once locked, no further updates" rule.
	updated map[core.SourceID]bool
	frozen  bool
}

type lockKey struct {
	source core.SourceID
	name   string
}

// New constructs an empty Registry over sources.
func New(sources *source.Map) *Registry {
	return &Registry{
		sources: sources,
		locked:  map[lockKey][]lockEntry{},
		updated: map[core.SourceID]bool{},
	}
}

// SetFrozen marks the environment offline: Update is never invoked (spec
// §4.1 update(): "skipped when the caller has ... declared the environment
// offline"). Queries still go to each source's own Query, which for a
// remote registry fetches index files over the network.
func (r *Registry) SetFrozen(frozen bool) { r.frozen = frozen }

// AddOverride registers sid as an override source, consulted before the
// real source on every query (spec §4.2, "Overrides").
func (r *Registry) AddOverride(sid core.SourceID) {
	r.overrides = append(r.overrides, sid)
}

// LoadLockfile populates the lock overlay from a previously-resolved graph,
// indexed by (package's source, package's name). deps is keyed by
// PackageID.Key(), as lockfile.Lockfile.Deps is.
func (r *Registry) LoadLockfile(entries []core.PackageID, deps map[string][]core.PackageID) {
	for _, id := range entries {
		k := lockKey{source: id.SourceID(), name: id.Name()}
		r.locked[k] = append(r.locked[k], lockEntry{id: id, lockedDeps: deps[id.Key()]})
	}
}

// isLocked reports whether src already has at least one lock entry, which
// suppresses Update per the loading discipline.
func (r *Registry) isLocked(sid core.SourceID) bool {
	for k := range r.locked {
		if k.source.Equal(sid) {
			return true
		}
	}
	return false
}

// ensureLoaded triggers src.Update() exactly once per process, skipping it
// when the source is locked, precisely pinned to cached state, or the
// registry is frozen (spec §4.2, "Loading discipline").
func (r *Registry) ensureLoaded(ctx context.Context, src source.Source) error {
	sid := src.ID()
	if r.updated[sid] {
		return nil
	}
	r.updated[sid] = true
	if r.frozen {
		return nil
	}
	if r.isLocked(sid) {
		return nil
	}
	if sid.Precise != "" {
		return nil
	}
	return src.Update(ctx)
}

// Query resolves dep against its source (or its source override, if set),
// consulting registered override sources first, then applies the lockfile
// overlay to every returned summary (spec §4.2).
func (r *Registry) Query(ctx context.Context, dep core.Dependency) ([]core.Summary, error) {
	if overridden, err := r.queryOverrides(ctx, dep); err != nil {
		return nil, err
	} else if overridden != nil {
		return r.lockAll(overridden), nil
	}

	var sid core.SourceID
	if dep.HasSourceOverride {
		sid = dep.SourceOverride
	} else {
		return nil, fmt.Errorf("dependency %q has no source: registry requires a resolved SourceId per query", dep.Name)
	}

	src, err := r.sources.GetOrError(sid)
	if err != nil {
		return nil, err
	}
	if err := r.ensureLoaded(ctx, src); err != nil {
		return nil, fmt.Errorf("updating source %s: %w", sid, err)
	}
	summaries, err := src.Query(ctx, dep)
	if err != nil {
		return nil, err
	}
	return r.lockAll(summaries), nil
}

// queryOverrides consults every registered override source for a match
// before the real one. A single matching summary short-circuits the real
// query; a divergent dependency list (vs. the locked real resolution, when
// known) produces a warning line rather than an error (spec §4.2).
func (r *Registry) queryOverrides(ctx context.Context, dep core.Dependency) ([]core.Summary, error) {
	var found []core.Summary
	for _, osid := range r.overrides {
		src, err := r.sources.GetOrError(osid)
		if err != nil {
			return nil, err
		}
		if err := r.ensureLoaded(ctx, src); err != nil {
			return nil, err
		}
		matches, err := src.Query(ctx, dep)
		if err != nil {
			return nil, err
		}
		found = append(found, matches...)
	}
	if len(found) == 0 {
		return nil, nil
	}
	if real, ok := r.lockedSummaryFor(dep); ok {
		r.warnDivergence(dep, found[0], real)
	}
	return found, nil
}

// lockedSummaryFor looks up the previously locked summary for dep's
// (source, name), if any, used only to compare dependency edges for the
// override-divergence warning.
func (r *Registry) lockedSummaryFor(dep core.Dependency) (lockEntry, bool) {
	k := lockKey{source: dep.SourceOverride, name: dep.Name}
	entries := r.locked[k]
	if len(entries) == 0 {
		return lockEntry{}, false
	}
	return entries[0], true
}

func (r *Registry) warnDivergence(dep core.Dependency, override core.Summary, real lockEntry) {
	added, removed := diffDeps(override.Dependencies, real.lockedDeps)
	if len(added) == 0 && len(removed) == 0 {
		return
	}
	fmt.Printf("warning: override for %q diverges from locked dependencies (added: %v, removed: %v)\n", dep.Name, added, removed)
}

func diffDeps(overrideDeps []core.Dependency, lockedDeps []core.PackageID) (added, removed []string) {
	overrideNames := map[string]bool{}
	for _, d := range overrideDeps {
		overrideNames[d.Name] = true
	}
	lockedNames := map[string]bool{}
	for _, id := range lockedDeps {
		lockedNames[id.Name()] = true
	}
	for n := range overrideNames {
		if !lockedNames[n] {
			added = append(added, n)
		}
	}
	for n := range lockedNames {
		if !overrideNames[n] {
			removed = append(removed, n)
		}
	}
	sort.Strings(added)
	sort.Strings(removed)
	return added, removed
}

// lockAll rewrites every summary per the lockfile overlay rule (spec §4.2,
// "Lockfile overlay (lock)").
func (r *Registry) lockAll(summaries []core.Summary) []core.Summary {
	out := make([]core.Summary, len(summaries))
	for i, s := range summaries {
		out[i] = r.lock(s)
	}
	return out
}

func (r *Registry) lock(s core.Summary) core.Summary {
	// Match lock entries by SourceID.Equal, which ignores Precise, so a
	// locked id carrying a revision pin still overlays the fresh summary.
	var entries []lockEntry
	for k, es := range r.locked {
		if k.name == s.ID.Name() && k.source.Equal(s.ID.SourceID()) {
			entries = append(entries, es...)
		}
	}

	var own *lockEntry
	for i := range entries {
		if entries[i].id.Version().Equal(s.ID.Version()) {
			own = &entries[i]
			break
		}
	}
	if own != nil {
		s.ID = own.id
	}

	newDeps := make([]core.Dependency, len(s.Dependencies))
	copy(newDeps, s.Dependencies)
	for i, dep := range newDeps {
		if pinned, ok := r.pinFor(own, dep); ok {
			newDeps[i].HasSourceOverride = true
			newDeps[i].SourceOverride = pinned.SourceID()
			newDeps[i].Name = pinned.Name()
		}
	}
	s.Dependencies = newDeps
	return s
}

// pinFor resolves dep to the exact id it resolved to previously, per spec
// §4.2: first in own's locked-deps list, then in any known lock entry for
// dep's source+name.
func (r *Registry) pinFor(own *lockEntry, dep core.Dependency) (core.PackageID, bool) {
	if own != nil {
		for _, id := range own.lockedDeps {
			if id.Name() == dep.Name {
				return id, true
			}
		}
	}
	if dep.HasSourceOverride {
		k := lockKey{source: dep.SourceOverride, name: dep.Name}
		if entries := r.locked[k]; len(entries) > 0 {
			return entries[0].id, true
		}
	}
	return core.PackageID{}, false
}

// LockedVersion reports the package id dep was pinned to by a prior
// resolution, if the loaded lockfile has an entry for dep's (source, name),
// so the resolver can prefer it over a newer compatible release (spec §4.3's
// "prior-lock pin first" candidate order, and the §8 idempotence law).
func (r *Registry) LockedVersion(dep core.Dependency) (core.PackageID, bool) {
	if !dep.HasSourceOverride {
		return core.PackageID{}, false
	}
	k := lockKey{source: dep.SourceOverride, name: dep.Name}
	entries := r.locked[k]
	if len(entries) == 0 {
		return core.PackageID{}, false
	}
	return entries[0].id, true
}

// Download fetches id via the source registered for id's SourceID (override
// sources are not consulted), not applying
// the lock overlay since id is already concrete.
func (r *Registry) Download(ctx context.Context, id core.PackageID) (*source.Package, error) {
	src, err := r.sources.GetOrError(id.SourceID())
	if err != nil {
		return nil, err
	}
	return src.Download(ctx, id)
}
