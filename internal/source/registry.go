package source

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/craftpkg/craft/internal/core"
	"github.com/craftpkg/craft/internal/source/manifestloader"
	"github.com/google/renameio"
)

// RegistrySource serves packages from a remote index + tarball host, caching
// both the index and downloaded/unpacked sources under cacheRoot (spec
// §4.1). Index layout follows Cargo's own sharding scheme: a package named
// "serde" lives at "se/rd/serde" in the index, with 1- and 2-character
// names given their own shallow special-cased paths.
type RegistrySource struct {
	id        core.SourceID
	indexURL  string
	cacheRoot string
	client    *http.Client
	loader    manifestloader.Loader

	index map[string][]indexEntry // cached in-process after Update
}

type indexEntry struct {
	Name     string            `json:"name"`
	Vers     string            `json:"vers"`
	Cksum    string            `json:"cksum"`
	Features map[string][]string `json:"features"`
	Deps     []indexDep        `json:"deps"`
}

type indexDep struct {
	Name     string   `json:"name"`
	Req      string   `json:"req"`
	Features []string `json:"features"`
	Optional bool     `json:"optional"`
	Default  bool     `json:"default_features"`
	Kind     string   `json:"kind"` // "normal", "build", "dev"
	Target   string   `json:"target"`
}

func NewRegistrySource(id core.SourceID, cacheRoot string, loader manifestloader.Loader) *RegistrySource {
	return &RegistrySource{
		id:        id,
		indexURL:  id.URL(),
		cacheRoot: filepath.Join(cacheRoot, "registry", core.ShortHash(id.URL())),
		client:    &http.Client{},
		loader:    loader,
	}
}

func (s *RegistrySource) ID() core.SourceID { return s.id }

// indexPath mirrors Cargo's registry index sharding: names of length 1 or 2
// get a single-level directory named "1" or "2"; length 3 gets "3/<first
// char>"; everything else gets the first two, then next two characters as
// two directory levels.
func indexPath(name string) string {
	switch {
	case len(name) == 1:
		return filepath.Join("1", name)
	case len(name) == 2:
		return filepath.Join("2", name)
	case len(name) == 3:
		return filepath.Join("3", name[:1], name)
	default:
		return filepath.Join(name[:2], name[2:4], name)
	}
}

// Update fetches (or refreshes) the index entries for every name this
// process has already queried is wasteful for a real registry, so instead
// Update lazily fetches per-name on first Query and caches in-process;
// calling Update directly here is a deliberate no-op refresh trigger that
// simply clears the in-process cache, forcing the next Query to re-fetch.
func (s *RegistrySource) Update(ctx context.Context) error {
	s.index = nil
	return nil
}

func (s *RegistrySource) fetchIndex(ctx context.Context, name string) ([]indexEntry, error) {
	if s.index == nil {
		s.index = map[string][]indexEntry{}
	}
	if entries, ok := s.index[name]; ok {
		return entries, nil
	}
	url := s.indexURL + "/" + filepath.ToSlash(indexPath(name))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching index for %q: %w", name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		s.index[name] = nil
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching index for %q: unexpected status %s", name, resp.Status)
	}
	dec := json.NewDecoder(resp.Body)
	var entries []indexEntry
	for {
		var e indexEntry
		if err := dec.Decode(&e); err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("parsing index for %q: %w", name, err)
		}
		entries = append(entries, e)
	}
	s.index[name] = entries
	return entries, nil
}

func (s *RegistrySource) Query(ctx context.Context, dep core.Dependency) ([]core.Summary, error) {
	entries, err := s.fetchIndex(ctx, dep.Name)
	if err != nil {
		return nil, err
	}
	var out []core.Summary
	for _, e := range entries {
		id, err := core.NewPackageID(e.Name, e.Vers, s.id)
		if err != nil {
			continue
		}
		summary := core.Summary{ID: id, Checksum: e.Cksum, Features: e.Features}
		for _, d := range e.Deps {
			cd, err := core.NewDependency(d.Name, d.Req)
			if err != nil {
				continue
			}
			cd.Features = d.Features
			cd.Optional = d.Optional
			cd.DefaultFeatures = d.Default
			cd.Platform = d.Target
			switch d.Kind {
			case "build":
				cd.Kind = core.KindBuild
			case "dev":
				cd.Kind = core.KindDev
			}
			summary.Dependencies = append(summary.Dependencies, cd)
		}
		if dep.Matches(summary) {
			out = append(out, summary)
		}
	}
	return out, nil
}

// Download fetches the tarball for id, verifies its sha256 against the
// index checksum, and unpacks it into cacheRoot/src/<name>-<version>,
// marking success with a ".ok" sentinel file so a crash mid-unpack is
// retried rather than trusted (spec §4.1).
func (s *RegistrySource) Download(ctx context.Context, id core.PackageID) (*Package, error) {
	entries, err := s.fetchIndex(ctx, id.Name())
	if err != nil {
		return nil, err
	}
	var entry *indexEntry
	for i := range entries {
		if entries[i].Vers == id.Version().String() {
			entry = &entries[i]
			break
		}
	}
	if entry == nil {
		return nil, fmt.Errorf("%s not found in registry index", id)
	}

	destDir := filepath.Join(s.cacheRoot, "src", fmt.Sprintf("%s-%s", id.Name(), id.Version()))
	okSentinel := destDir + ".ok"
	if _, err := os.Stat(okSentinel); err != nil {
		if err := s.downloadAndUnpack(ctx, id, entry, destDir); err != nil {
			return nil, err
		}
		if err := os.WriteFile(okSentinel, nil, 0o644); err != nil {
			return nil, err
		}
	}

	m, err := s.loader.Load(destDir)
	if err != nil {
		return nil, fmt.Errorf("loading manifest for %s: %w", id, err)
	}
	m.Summary.ID = id
	return &Package{Manifest: m, RootDir: destDir}, nil
}

func (s *RegistrySource) downloadAndUnpack(ctx context.Context, id core.PackageID, entry *indexEntry, destDir string) error {
	dlURL := fmt.Sprintf("%s/api/v1/craft/%s/%s/download", s.indexURL, id.Name(), id.Version())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, dlURL, nil)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("downloading %s: %w", id, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("downloading %s: unexpected status %s", id, resp.Status)
	}

	h := sha256.New()
	data, err := io.ReadAll(io.TeeReader(resp.Body, h))
	if err != nil {
		return fmt.Errorf("reading %s: %w", id, err)
	}
	if got := hex.EncodeToString(h.Sum(nil)); entry.Cksum != "" && got != entry.Cksum {
		return fmt.Errorf("checksum mismatch for %s: index says %s, got %s", id, entry.Cksum, got)
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return err
	}
	return unpackTarGz(data, destDir)
}

func (s *RegistrySource) Fingerprint(pkg *Package) (string, error) {
	// For a downloaded registry source, the version string suffices (spec
	// §4.1): content is immutable once published under a given version.
	return pkg.ID().Version().String(), nil
}

func (s *RegistrySource) Verify(ctx context.Context, id core.PackageID) error {
	return nil // checksum is already enforced at Download time
}

func (s *RegistrySource) SupportsChecksums() bool { return true }

// atomicWriteIndexCache persists a fetched index page to disk via renameio
// so a concurrent reader never observes a half-written file; used by a
// future on-disk index cache (currently index pages are cached in-process
// only, per fetchIndex).
func atomicWriteIndexCache(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return renameio.WriteFile(path, data, 0o644)
}
