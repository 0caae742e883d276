// Package resolver implements the backtracking semver+feature dependency
// resolver described in spec §4.3 (component D), producing a Resolve graph
// or a descriptive conflict error.
package resolver

import (
	"context"
	"fmt"
	"sort"

	"github.com/craftpkg/craft/internal/core"
)

// Queryer is the narrow capability the resolver needs from the registry
// (satisfied by *registry.Registry without importing it, avoiding an
// import cycle since registry also depends on source, not resolver).
type Queryer interface {
	Query(ctx context.Context, dep core.Dependency) ([]core.Summary, error)

	// LockedVersion reports the id dep was pinned to by a prior resolution,
	// if the lockfile overlay has one, so candidate ordering can prefer it
	// (spec §4.3, "prior-lock pin first; then highest semver").
	LockedVersion(dep core.Dependency) (core.PackageID, bool)
}

// Method describes which features a root summary activates, per spec §4.3
// ("method flags indicating which features to activate per root").
type Method struct {
	NoDefaultFeatures bool
	Features          []string
	AllFeatures       bool
}

// Graph is the resolver's output: a deterministic ordering of resolved
// PackageIDs, their dependency edges (already feature/platform filtered),
// and which features each ended up activating.
type Graph struct {
	// order lists every resolved id exactly once, in first-selected order
	// (spec §4.3, "Determinism").
	order []core.PackageID

	// summaries is keyed by PackageID.Key() since two structurally-equal
	// PackageIDs must collapse even if their *version.Version pointers
	// differ.
	summaries map[string]core.Summary

	// edges[id.Key()] lists the concrete dependency ids id resolved to.
	edges map[string][]core.PackageID

	// features[id.Key()] is the final activated feature set for id.
	features map[string]map[string]bool
}

func newGraph() *Graph {
	return &Graph{
		summaries: map[string]core.Summary{},
		edges:     map[string][]core.PackageID{},
		features:  map[string]map[string]bool{},
	}
}

// Packages returns every resolved id, in resolution order.
func (r *Graph) Packages() []core.PackageID { return append([]core.PackageID(nil), r.order...) }

// Deps returns the dependency ids id resolved to.
func (r *Graph) Deps(id core.PackageID) []core.PackageID { return r.edges[id.Key()] }

// Features returns the activated feature set for id.
func (r *Graph) Features(id core.PackageID) []string {
	fs := r.features[id.Key()]
	out := make([]string, 0, len(fs))
	for f := range fs {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

func (r *Graph) summaryFor(id core.PackageID) (core.Summary, bool) {
	s, ok := r.summaries[id.Key()]
	return s, ok
}

func (r *Graph) record(id core.PackageID, s core.Summary) {
	k := id.Key()
	if _, ok := r.summaries[k]; !ok {
		r.order = append(r.order, id)
	}
	r.summaries[k] = s
}

// ConflictError describes a resolution failure the caller can present
// verbatim, naming the dependency chain that could not be satisfied.
type ConflictError struct {
	Dependency core.Dependency
	Chain      []core.PackageID
	Reason     string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("failed to select a version for %q: %s (required by %s)", e.Dependency.Name, e.Reason, chainString(e.Chain))
}

func chainString(chain []core.PackageID) string {
	out := ""
	for i, id := range chain {
		if i > 0 {
			out += " -> "
		}
		out += id.String()
	}
	return out
}

// Resolve runs the backtracking algorithm over roots, applying replace as a
// post-resolution redirection pass (spec §4.3).
func Resolve(ctx context.Context, q Queryer, roots []core.Summary, methods map[string]Method, replace []core.ReplaceEntry, platform PlatformInfo) (*Graph, error) {
	res := newGraph()
	s := &solver{q: q, res: res, platform: platform, activated: map[string]map[string]bool{}}

	for _, rs := range roots {
		m := methods[rs.ID.Key()]
		res.record(rs.ID, rs)
		if err := s.activateRoot(ctx, rs, m); err != nil {
			return nil, err
		}
	}
	for _, rs := range roots {
		m := methods[rs.ID.Key()]
		if err := s.resolveDeps(ctx, rs, m, []core.PackageID{rs.ID}); err != nil {
			return nil, err
		}
	}

	applyReplace(res, replace)

	if err := Verify(res); err != nil {
		return nil, err
	}
	return res, nil
}
