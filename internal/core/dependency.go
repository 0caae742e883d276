package core

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/hashicorp/go-version"
)

// DependencyKind distinguishes normal, build-time, and dev-only edges
// (spec §3).
type DependencyKind int

const (
	KindNormal DependencyKind = iota
	KindBuild
	KindDev
)

func (k DependencyKind) String() string {
	switch k {
	case KindBuild:
		return "build"
	case KindDev:
		return "dev"
	default:
		return "normal"
	}
}

// Dependency is an unresolved reference to a package by name + version
// requirement, carrying the feature/platform/kind metadata the resolver
// needs (spec §3).
type Dependency struct {
	Name    string
	Req     version.Constraints
	ReqText string // original textual requirement, for error messages and round-tripping

	// SourceOverride pins the dependency to a specific source (e.g. a
	// [replace] entry, or an explicit `source = "..."` in the manifest).
	// The zero value means "no override: any source with a matching
	// name+version is acceptable".
	SourceOverride     SourceID
	HasSourceOverride  bool

	Kind DependencyKind

	Optional       bool
	DefaultFeatures bool
	Features       []string

	// Platform, if non-empty, is a cfg(...) expression (spec §4.3); the
	// dependency only activates for units whose target cfg set satisfies it.
	Platform string

	// IsTransitive is false only for the synthetic root dependencies the
	// resolver constructs for each workspace member (spec §3).
	IsTransitive bool
}

// NewDependency parses reqText as a semver constraint set (supporting
// Cargo-style "^1.2", "~1.2", "=1.2.3", ">=1,<2" via go-version's own
// constraint grammar) and builds a Dependency.
func NewDependency(name, reqText string) (Dependency, error) {
	req, err := version.NewConstraint(caretToGoVersion(reqText))
	if err != nil {
		return Dependency{}, fmt.Errorf("invalid version requirement %q for %q: %w", reqText, name, err)
	}
	return Dependency{
		Name:            name,
		Req:             req,
		ReqText:         reqText,
		DefaultFeatures: true,
		IsTransitive:    true,
	}, nil
}

// caretToGoVersion translates a bare Cargo-style caret/tilde requirement
// ("^1.2.3", "~1.2", "1.2.3") into the constraint syntax
// hashicorp/go-version understands natively (it already supports "~>" for
// pessimistic/tilde matching and bare comparison operators, but not the
// npm/cargo "^" spelling), so dependency requirements read the way a craft
// manifest author would actually write them.
func caretToGoVersion(req string) string {
	if len(req) == 0 {
		return req
	}
	switch req[0] {
	case '^':
		// "^1.2.3" means >=1.2.3, <2.0.0 (compatible within the same major,
		// or minor if major is 0 — approximated here as same-major, which
		// matches Cargo's common case).
		v := strings.TrimSpace(req[1:])
		major, _, _ := strings.Cut(v, ".")
		if n, err := strconv.Atoi(major); err == nil {
			return fmt.Sprintf(">= %s, < %d.0.0", v, n+1)
		}
		return "~> " + v
	case '~':
		return "~> " + req[1:]
	default:
		if req[0] >= '0' && req[0] <= '9' {
			return "~> " + req
		}
		return req
	}
}

// Matches reports whether s satisfies dep: name, version requirement, and
// (if set) a source override, per spec §3 ("A dependency matches a summary
// when name + version-req + (override source, if set) match").
func (d Dependency) Matches(s Summary) bool {
	if d.Name != s.ID.Name() {
		return false
	}
	if !d.Req.Check(s.ID.Version()) {
		return false
	}
	if d.HasSourceOverride && !d.SourceOverride.Equal(s.ID.SourceID()) {
		return false
	}
	return true
}
