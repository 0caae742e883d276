package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/craftpkg/craft/internal/core"
	"github.com/craftpkg/craft/internal/source/manifestloader"
)

// GitSource clones a git repository into a per-URL cache keyed by a short
// hash of the canonical URL, checks out the requested ref into a
// per-revision worktree, and delegates file listing to a PathSource rooted
// there (spec §4.1).
type GitSource struct {
	id        core.SourceID
	cacheRoot string // e.g. $CRAFT_HOME/git
	loader    manifestloader.Loader

	// resolvedRev is filled in by Update and used by Download to select the
	// worktree directory.
	resolvedRev string
}

// NewGitSource constructs a GitSource for id, caching clones under
// filepath.Join(cacheRoot, "git").
func NewGitSource(id core.SourceID, cacheRoot string, loader manifestloader.Loader) *GitSource {
	return &GitSource{id: id, cacheRoot: filepath.Join(cacheRoot, "git"), loader: loader}
}

func (s *GitSource) ID() core.SourceID { return s.id }

func (s *GitSource) bareRepoDir() string {
	return filepath.Join(s.cacheRoot, core.ShortHash(s.id.ToURL())+".git")
}

func (s *GitSource) worktreeDir(rev string) string {
	return filepath.Join(s.cacheRoot, "checkouts", core.ShortHash(s.id.ToURL()), rev)
}

// Update clones the repository if it isn't already cached, or fetches if it
// is, then resolves the requested GitReference to a concrete revision. If
// id.Precise() is already set and the bare repo already has that commit
// object, no fetch is performed (spec §4.1).
func (s *GitSource) Update(ctx context.Context) error {
	bare := s.bareRepoDir()
	var repo *git.Repository
	var err error

	if _, statErr := os.Stat(bare); os.IsNotExist(statErr) {
		if err := os.MkdirAll(filepath.Dir(bare), 0o755); err != nil {
			return err
		}
		repo, err = git.PlainCloneContext(ctx, bare, true, &git.CloneOptions{
			URL: s.id.URL(),
		})
		if err != nil {
			return fmt.Errorf("git clone %s: %w", s.id.URL(), err)
		}
	} else {
		repo, err = git.PlainOpen(bare)
		if err != nil {
			return fmt.Errorf("git open %s: %w", bare, err)
		}
		if s.id.Precise != "" {
			if _, err := repo.CommitObject(plumbing.NewHash(s.id.Precise)); err == nil {
				s.resolvedRev = s.id.Precise
				return nil // already have the precise revision; skip fetch
			}
		}
		if err := repo.FetchContext(ctx, &git.FetchOptions{Force: true}); err != nil && err != git.NoErrAlreadyUpToDate {
			return fmt.Errorf("git fetch %s: %w", s.id.URL(), err)
		}
	}

	rev, err := s.resolveReference(repo)
	if err != nil {
		return err
	}
	s.resolvedRev = rev.String()
	return nil
}

func (s *GitSource) resolveReference(repo *git.Repository) (*plumbing.Hash, error) {
	ref := s.id.GitReference()
	if s.id.Precise != "" {
		h := plumbing.NewHash(s.id.Precise)
		return &h, nil
	}
	switch ref.Kind {
	case core.GitTag:
		r, err := repo.Tag(ref.Value)
		if err != nil {
			return nil, fmt.Errorf("git tag %q not found: %w", ref.Value, err)
		}
		h := r.Hash()
		return &h, nil
	case core.GitRev:
		h, err := repo.ResolveRevision(plumbing.Revision(ref.Value))
		if err != nil {
			return nil, fmt.Errorf("git rev %q not found: %w", ref.Value, err)
		}
		return h, nil
	default: // branch
		name := ref.Value
		if name == "" {
			name = "master"
		}
		h, err := repo.ResolveRevision(plumbing.Revision("refs/remotes/origin/" + name))
		if err != nil {
			h, err = repo.ResolveRevision(plumbing.Revision(name))
			if err != nil {
				return nil, fmt.Errorf("git branch %q not found: %w", name, err)
			}
		}
		return h, nil
	}
}

func (s *GitSource) Query(ctx context.Context, dep core.Dependency) ([]core.Summary, error) {
	ps, err := s.pathSource(ctx)
	if err != nil {
		return nil, err
	}
	return ps.Query(ctx, dep)
}

func (s *GitSource) Download(ctx context.Context, id core.PackageID) (*Package, error) {
	ps, err := s.pathSource(ctx)
	if err != nil {
		return nil, err
	}
	return ps.Download(ctx, id.WithSourceID(s.id.WithPrecise(s.resolvedRev)))
}

func (s *GitSource) Fingerprint(pkg *Package) (string, error) {
	// A git-sourced package's content is fully determined by the precise
	// revision; its string suffices (spec §4.1: "for downloaded sources,
	// the version string suffices").
	return s.resolvedRev, nil
}

func (s *GitSource) Verify(ctx context.Context, id core.PackageID) error { return nil }
func (s *GitSource) SupportsChecksums() bool                            { return false }

// pathSource checks out resolvedRev into its worktree directory (if not
// already present) and returns a PathSource rooted there.
func (s *GitSource) pathSource(ctx context.Context) (*PathSource, error) {
	if s.resolvedRev == "" {
		if err := s.Update(ctx); err != nil {
			return nil, err
		}
	}
	dir := s.worktreeDir(s.resolvedRev)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := s.checkout(dir); err != nil {
			return nil, err
		}
	}
	m, err := s.loader.Load(dir)
	if err != nil {
		return nil, fmt.Errorf("loading manifest at %s: %w", dir, err)
	}
	pinned := s.id.WithPrecise(s.resolvedRev)
	m.Summary.ID = m.Summary.ID.WithSourceID(pinned)
	return NewPathSource(pinned, dir, m), nil
}

func (s *GitSource) checkout(dir string) error {
	if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
		return err
	}
	repo, err := git.PlainClone(dir, false, &git.CloneOptions{URL: s.bareRepoDir()})
	if err != nil {
		return fmt.Errorf("git worktree clone: %w", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return err
	}
	if err := wt.Checkout(&git.CheckoutOptions{Hash: plumbing.NewHash(s.resolvedRev)}); err != nil {
		return fmt.Errorf("git checkout %s: %w", s.resolvedRev, err)
	}
	return nil
}
