package source

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/craftpkg/craft/internal/core"
)

// PathSource serves a single package from a local directory (spec §4.1).
//
// File listing follows the teacher's two-tier approach
// (distr1-distri/internal/build/build.go's cpscan/cp tree walk is the model
// for the "walk and prune" fallback): when the directory is part of a git
// work tree, PathSource asks go-git for the tracked+untracked file set
// (honoring .gitignore automatically, since go-git's Worktree.Status
// already excludes ignored paths); otherwise it walks the directory,
// pruning build-output and dotfile subtrees. Manifest include/exclude glob
// patterns are applied afterward, with include winning when present, per
// spec §4.1.
type PathSource struct {
	id       core.SourceID
	rootDir  string
	manifest core.Manifest // supplied at construction; parsing is out of scope
}

// NewPathSource constructs a PathSource rooted at dir, describing manifest.
func NewPathSource(id core.SourceID, dir string, manifest core.Manifest) *PathSource {
	return &PathSource{id: id, rootDir: dir, manifest: manifest}
}

func (s *PathSource) ID() core.SourceID { return s.id }

func (s *PathSource) Query(ctx context.Context, dep core.Dependency) ([]core.Summary, error) {
	if !dep.Matches(s.manifest.Summary) {
		return nil, nil
	}
	return []core.Summary{s.manifest.Summary}, nil
}

// Update is a no-op for path sources: there is no remote index to refresh.
func (s *PathSource) Update(ctx context.Context) error { return nil }

func (s *PathSource) Download(ctx context.Context, id core.PackageID) (*Package, error) {
	if !id.Equal(s.manifest.Summary.ID) {
		return nil, fmt.Errorf("path source at %s does not contain %s", s.rootDir, id)
	}
	return &Package{Manifest: s.manifest, RootDir: s.rootDir}, nil
}

// Fingerprint returns "(max-mtime, path-of-newest-file)" across the
// package's listed files, per spec §4.1.
func (s *PathSource) Fingerprint(pkg *Package) (string, error) {
	files, err := s.ListFiles()
	if err != nil {
		return "", err
	}
	var newest string
	var newestTime time.Time
	for _, f := range files {
		fi, err := os.Lstat(f)
		if err != nil {
			continue // file may have been removed since listing
		}
		if fi.ModTime().After(newestTime) {
			newestTime = fi.ModTime()
			newest = f
		}
	}
	return fmt.Sprintf("%d-%s", newestTime.UnixNano(), newest), nil
}

func (s *PathSource) Verify(ctx context.Context, id core.PackageID) error { return nil }
func (s *PathSource) SupportsChecksums() bool                            { return false }

// ListFiles returns every file this package source considers "part of the
// package": the git-tracked set when rootDir is inside a git work tree,
// otherwise a pruned directory walk; then filtered by include/exclude glob
// patterns (include wins over exclude when both are set).
func (s *PathSource) ListFiles() ([]string, error) {
	var files []string
	if tracked, err := s.gitTrackedFiles(); err == nil && tracked != nil {
		files = tracked
	} else {
		walked, werr := s.walkFiles()
		if werr != nil {
			return nil, werr
		}
		files = walked
	}
	return s.applyIncludeExclude(files), nil
}

// gitTrackedFiles lists tracked (and untracked-but-not-ignored) files via
// go-git, returning (nil, err) when rootDir is not inside a git repository
// so the caller falls back to walkFiles.
func (s *PathSource) gitTrackedFiles() ([]string, error) {
	repo, err := git.PlainOpenWithOptions(s.rootDir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, err
	}
	wt, err := repo.Worktree()
	if err != nil {
		return nil, err
	}
	root := wt.Filesystem.Root()
	status, err := wt.Status()
	if err != nil {
		return nil, err
	}

	var out []string
	idx, err := repo.Storer.Index()
	if err == nil {
		for _, e := range idx.Entries {
			abs := filepath.Join(root, e.Name)
			if underDir(abs, s.rootDir) {
				out = append(out, abs)
			}
		}
	}
	for path, st := range status {
		if st.Worktree == git.Untracked && st.Staging != git.Untracked {
			continue
		}
		abs := filepath.Join(root, path)
		if underDir(abs, s.rootDir) {
			out = append(out, abs)
		}
	}
	sort.Strings(out)
	return dedup(out), nil
}

func underDir(path, dir string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel == "." || !strings.HasPrefix(rel, "..")
}

func dedup(in []string) []string {
	out := in[:0]
	var last string
	for i, s := range in {
		if i == 0 || s != last {
			out = append(out, s)
			last = s
		}
	}
	return out
}

// prunedDirs are subtrees walkFiles never descends into, matching the
// teacher's own build-output/lockfile/dotfile pruning
// (distr1-distri/internal/build/glob.go and build.go's cpscan skip
// unsupported entries; the "target/", "Craft.lock", dotfile-subtree
// exclusions are spec §4.1's PathSource fallback rule).
var prunedDirs = map[string]bool{
	"target": true,
}

func (s *PathSource) walkFiles() ([]string, error) {
	var out []string
	err := filepath.WalkDir(s.rootDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() {
			if path != s.rootDir && (prunedDirs[name] || strings.HasPrefix(name, ".") || name == "Craft.lock") {
				return filepath.SkipDir
			}
			return nil
		}
		if name == "Craft.lock" {
			return nil
		}
		out = append(out, path)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}

func (s *PathSource) applyIncludeExclude(files []string) []string {
	if len(s.manifest.Include) == 0 && len(s.manifest.Exclude) == 0 {
		return files
	}
	var out []string
	for _, f := range files {
		rel, err := filepath.Rel(s.rootDir, f)
		if err != nil {
			continue
		}
		if len(s.manifest.Include) > 0 {
			if matchesAny(s.manifest.Include, rel) {
				out = append(out, f)
			}
			continue
		}
		if !matchesAny(s.manifest.Exclude, rel) {
			out = append(out, f)
		}
	}
	return out
}

func matchesAny(patterns []string, rel string) bool {
	for _, p := range patterns {
		if ok, _ := filepath.Match(p, rel); ok {
			return true
		}
		if ok, _ := filepath.Match(p, filepath.Base(rel)); ok {
			return true
		}
	}
	return false
}
