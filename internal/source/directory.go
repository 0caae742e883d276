package source

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/craftpkg/craft/internal/core"
	"github.com/craftpkg/craft/internal/source/manifestloader"
)

// DirectorySource serves packages vendored into a flat local directory, each
// accompanied by a per-package ".craft-checksum.json" file mapping relative
// path to sha256, produced by a prior `craft vendor`-equivalent step (spec
// §4.1). Verify recomputes every listed file's checksum and fails on any
// mismatch, catching accidental edits to vendored sources.
type DirectorySource struct {
	id      core.SourceID
	rootDir string
	loader  manifestloader.Loader
}

const checksumFileName = ".craft-checksum.json"

type checksumManifest struct {
	Package string            `json:"package"`
	Files   map[string]string `json:"files"`
}

func NewDirectorySource(id core.SourceID, rootDir string, loader manifestloader.Loader) *DirectorySource {
	return &DirectorySource{id: id, rootDir: rootDir, loader: loader}
}

func (s *DirectorySource) ID() core.SourceID { return s.id }

func (s *DirectorySource) packageDir(id core.PackageID) string {
	return filepath.Join(s.rootDir, fmt.Sprintf("%s-%s", id.Name(), id.Version()))
}

func (s *DirectorySource) Query(ctx context.Context, dep core.Dependency) ([]core.Summary, error) {
	entries, err := os.ReadDir(s.rootDir)
	if err != nil {
		return nil, fmt.Errorf("reading directory source %s: %w", s.rootDir, err)
	}
	var out []core.Summary
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		m, err := s.loader.Load(filepath.Join(s.rootDir, e.Name()))
		if err != nil {
			continue
		}
		m.Summary.ID = m.Summary.ID.WithSourceID(s.id)
		if dep.Matches(m.Summary) {
			out = append(out, m.Summary)
		}
	}
	return out, nil
}

func (s *DirectorySource) Update(ctx context.Context) error { return nil }

func (s *DirectorySource) Download(ctx context.Context, id core.PackageID) (*Package, error) {
	dir := s.packageDir(id)
	m, err := s.loader.Load(dir)
	if err != nil {
		return nil, fmt.Errorf("loading manifest at %s: %w", dir, err)
	}
	m.Summary.ID = id
	return &Package{Manifest: m, RootDir: dir}, nil
}

func (s *DirectorySource) Fingerprint(pkg *Package) (string, error) {
	cm, err := s.readChecksums(pkg.RootDir)
	if err != nil {
		return "", err
	}
	// The checksum manifest's own content is a stable proxy for "this
	// vendored package's content", cheaper than rehashing every file.
	data, err := json.Marshal(cm)
	if err != nil {
		return "", err
	}
	return core.ShortHash(string(data)), nil
}

// Verify recomputes the sha256 of every file the checksum manifest lists
// and fails on the first mismatch or missing file (spec §4.1).
func (s *DirectorySource) Verify(ctx context.Context, id core.PackageID) error {
	dir := s.packageDir(id)
	cm, err := s.readChecksums(dir)
	if err != nil {
		return err
	}
	for rel, want := range cm.Files {
		data, err := os.ReadFile(filepath.Join(dir, rel))
		if err != nil {
			return fmt.Errorf("verifying %s: %s: %w", id, rel, err)
		}
		sum := sha256.Sum256(data)
		if got := hex.EncodeToString(sum[:]); got != want {
			return fmt.Errorf("verifying %s: checksum mismatch for %s: want %s, got %s", id, rel, want, got)
		}
	}
	return nil
}

func (s *DirectorySource) SupportsChecksums() bool { return true }

func (s *DirectorySource) readChecksums(dir string) (checksumManifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, checksumFileName))
	if err != nil {
		return checksumManifest{}, fmt.Errorf("reading %s: %w", checksumFileName, err)
	}
	var cm checksumManifest
	if err := json.Unmarshal(data, &cm); err != nil {
		return checksumManifest{}, fmt.Errorf("parsing %s: %w", checksumFileName, err)
	}
	return cm, nil
}
