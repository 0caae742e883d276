// Package source implements the Source capability interface and its five
// concrete implementations (path, git, registry, directory, replaced),
// per spec §4.1 (component B).
package source

import (
	"context"

	"github.com/craftpkg/craft/internal/core"
)

// Registry is the narrow query-only capability every Source satisfies, and
// also the capability a PackageRegistry itself exposes to the resolver
// (original_source/src/registry.rs's Registry trait, re-used by
// PackageRegistry and by Vec<Summary>/Vec<Package> test fixtures there —
// mirrored here as the interface a fakeSource test double can implement
// without pulling in network code).
type Registry interface {
	// Query returns every summary known to this registry matching dep.
	Query(ctx context.Context, dep core.Dependency) ([]core.Summary, error)
}

// Source finds and downloads packages based on name, version, and origin
// (spec §4.1).
type Source interface {
	Registry

	// Update refreshes any cached index (git pull, registry index update).
	// Idempotent within a process. The registry skips calling Update when
	// the source is already locked or precisely pinned and the pin matches
	// (spec §4.2, "Loading discipline").
	Update(ctx context.Context) error

	// Download fetches and unpacks the named package, producing its fully
	// parsed manifest.
	Download(ctx context.Context, id core.PackageID) (*Package, error)

	// Fingerprint returns a stable string describing pkg's current content,
	// used by the fingerprint engine's LocalFingerprint for
	// path/git-sourced units (spec §4.5).
	Fingerprint(pkg *Package) (string, error)

	// Verify optionally checksum-checks id against the source's signed or
	// expected hash. The default (for sources with no such mechanism) is a
	// no-op returning nil.
	Verify(ctx context.Context, id core.PackageID) error

	// SupportsChecksums reports whether Query's summaries carry a non-empty
	// Checksum field.
	SupportsChecksums() bool

	// ID returns the SourceID this Source was constructed for.
	ID() core.SourceID
}

// Package is a fully downloaded, manifest-parsed package ready for
// compilation (spec §3, "Lifecycles": "Package objects are constructed by a
// source on download").
type Package struct {
	Manifest core.Manifest
	// RootDir is the on-disk (or worktree) directory this package's
	// manifest and sources live under.
	RootDir string
}

func (p *Package) ID() core.PackageID { return p.Manifest.Summary.ID }
