// Package lockfile reads and writes Craft.lock, the structured textual
// table recording every resolved package id and its locked dependency list
// (spec §6, component E).
package lockfile

import (
	"bytes"
	"fmt"
	"os"
	"sort"

	"github.com/BurntSushi/toml"
	"github.com/craftpkg/craft/internal/core"
	"github.com/craftpkg/craft/internal/resolver"
	"github.com/google/renameio"
)

const FileName = "Craft.lock"

// document is the on-disk TOML shape: an ordered array of [[package]]
// tables, matching Cargo.lock's own layout (array-of-tables keeps package
// entries independently diffable in version control, the reason Cargo
// picked it over a map).
type document struct {
	Version int       `toml:"version"`
	Package []pkgEntry `toml:"package"`
}

type pkgEntry struct {
	Name         string   `toml:"name"`
	Version      string   `toml:"version"`
	Source       string   `toml:"source,omitempty"`
	Checksum     string   `toml:"checksum,omitempty"`
	Dependencies []string `toml:"dependencies,omitempty"`
}

const currentVersion = 3

// Lockfile is the parsed, in-memory form of Craft.lock.
type Lockfile struct {
	Packages []core.PackageID
	Deps     map[string][]core.PackageID // keyed by PackageID.Key()
	Checksum map[string]string           // keyed by PackageID.Key()
}

// Load parses path, returning (nil, nil) if the file does not exist (a
// missing lockfile is not an error by itself — only under --frozen, which
// the caller enforces).
func Load(path string) (*Lockfile, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var doc document
	if _, err := toml.Decode(string(data), &doc); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	lf := &Lockfile{Deps: map[string][]core.PackageID{}, Checksum: map[string]string{}}
	byRef := map[string]core.PackageID{}
	for _, e := range doc.Package {
		sid, err := parseEntrySource(e.Source)
		if err != nil {
			return nil, fmt.Errorf("package %s: %w", e.Name, err)
		}
		id, err := core.NewPackageID(e.Name, e.Version, sid)
		if err != nil {
			return nil, fmt.Errorf("package %s: %w", e.Name, err)
		}
		lf.Packages = append(lf.Packages, id)
		byRef[depRef(e.Name, e.Version)] = id
		if e.Checksum != "" {
			lf.Checksum[id.Key()] = e.Checksum
		}
	}
	for i, e := range doc.Package {
		id := lf.Packages[i]
		for _, ref := range e.Dependencies {
			depID, ok := byRef[ref]
			if !ok {
				return nil, fmt.Errorf("package %s: dependency reference %q not found in lockfile", e.Name, ref)
			}
			lf.Deps[id.Key()] = append(lf.Deps[id.Key()], depID)
		}
	}
	return lf, nil
}

// depRef is the textual form a [[package]] dependencies entry uses to name
// another package, Cargo-style "<name> <version>".
func depRef(name, ver string) string { return name + " " + ver }

func parseEntrySource(s string) (core.SourceID, error) {
	if s == "" {
		return core.SourceID{}, nil // path source with no persisted identity
	}
	return core.ParseSourceID(s)
}

// FromResolve builds a Lockfile from a resolved graph, ready to Save.
func FromResolve(res *resolver.Graph) *Lockfile {
	lf := &Lockfile{Deps: map[string][]core.PackageID{}, Checksum: map[string]string{}}
	lf.Packages = res.Packages()
	for _, id := range lf.Packages {
		lf.Deps[id.Key()] = res.Deps(id)
	}
	return lf
}

// Save writes lf to path atomically via renameio, matching the teacher's
// own atomic-write idiom used for installed-package metadata
// (distr1-distri/internal/build and cmd/distri/install.go write via a
// temp-file-then-rename pattern; renameio packages exactly that).
func (lf *Lockfile) Save(path string) error {
	doc := document{Version: currentVersion}

	sorted := append([]core.PackageID(nil), lf.Packages...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Less(sorted[j]) })

	for _, id := range sorted {
		entry := pkgEntry{
			Name:     id.Name(),
			Version:  id.Version().String(),
			Checksum: lf.Checksum[id.Key()],
		}
		if id.SourceID().Kind() != core.KindPath {
			entry.Source = id.SourceID().ToURL()
		}
		deps := append([]core.PackageID(nil), lf.Deps[id.Key()]...)
		sort.Slice(deps, func(i, j int) bool { return deps[i].Less(deps[j]) })
		for _, d := range deps {
			entry.Dependencies = append(entry.Dependencies, depRef(d.Name(), d.Version().String()))
		}
		doc.Package = append(doc.Package, entry)
	}

	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encoding %s: %w", FileName, err)
	}
	return renameio.WriteFile(path, buf.Bytes(), 0o644)
}
