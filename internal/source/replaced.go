package source

import (
	"context"
	"fmt"

	"github.com/craftpkg/craft/internal/core"
)

// ReplacedSource wraps another Source, rewriting every SourceID that
// crosses the boundary so resolved summaries and downloaded packages appear
// to come from `to` instead of the underlying source's own identity (spec
// §4.3, "[replace] table"). Checksum-support mismatches between the two
// sources fail fast at construction, since silently downgrading a
// checksum-verified dependency to an unverified replacement is exactly the
// kind of supply-chain surprise the override mechanism must not introduce.
type ReplacedSource struct {
	inner Source
	to    core.SourceID
}

// NewReplacedSource wraps inner so it is addressed as `to`. Returns an error
// if the two sources disagree on checksum support; `to`'s support is taken
// from its kind (registry, local-registry and directory sources support
// checksums, path and git sources do not).
func NewReplacedSource(inner Source, to core.SourceID) (*ReplacedSource, error) {
	toChecksums := to.IsRegistry() || to.Kind() == core.KindDirectory
	if inner.SupportsChecksums() != toChecksums {
		return nil, fmt.Errorf("cannot replace %s with %s: the two sources disagree on checksum support", to, inner.ID())
	}
	return &ReplacedSource{inner: inner, to: to}, nil
}

func (s *ReplacedSource) ID() core.SourceID { return s.to }

func (s *ReplacedSource) Query(ctx context.Context, dep core.Dependency) ([]core.Summary, error) {
	summaries, err := s.inner.Query(ctx, dep)
	if err != nil {
		return nil, err
	}
	out := make([]core.Summary, len(summaries))
	for i, sum := range summaries {
		sum.ID = sum.ID.WithSourceID(s.to)
		out[i] = sum
	}
	return out, nil
}

func (s *ReplacedSource) Update(ctx context.Context) error { return s.inner.Update(ctx) }

func (s *ReplacedSource) Download(ctx context.Context, id core.PackageID) (*Package, error) {
	pkg, err := s.inner.Download(ctx, id.WithSourceID(s.inner.ID()))
	if err != nil {
		return nil, fmt.Errorf("downloading replacement for %s: %w", id, err)
	}
	pkg.Manifest.Summary.ID = pkg.Manifest.Summary.ID.WithSourceID(s.to)
	return pkg, nil
}

func (s *ReplacedSource) Fingerprint(pkg *Package) (string, error) { return s.inner.Fingerprint(pkg) }

func (s *ReplacedSource) Verify(ctx context.Context, id core.PackageID) error {
	return s.inner.Verify(ctx, id.WithSourceID(s.inner.ID()))
}

func (s *ReplacedSource) SupportsChecksums() bool { return s.inner.SupportsChecksums() }
