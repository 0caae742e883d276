// Package manifestloader parses a package directory's Craft.toml into the
// core.Manifest value types the rest of craft consumes. Manifest parsing is
// explicitly out of scope for the base specification (spec §1: "we assume a
// structured Manifest is produced"), but GitSource and RegistrySource still
// need a concrete way to turn a downloaded tree into a core.Manifest, so this
// package supplies the minimal TOML-based reader, grounded on
// original_source/src/util/toml/mod.rs's shape (a raw deserialize struct,
// then a fallible conversion into the in-memory manifest types) and using
// github.com/BurntSushi/toml, the TOML library already wired in for the
// lockfile (SPEC_FULL.md §B).
package manifestloader

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/craftpkg/craft/internal/core"
)

// Loader turns a package's root directory into a parsed core.Manifest.
type Loader interface {
	Load(dir string) (core.Manifest, error)
}

// TOMLLoader reads "Craft.toml" from a package's root directory.
type TOMLLoader struct {
	// DefaultSourceID is used to construct the package's PackageID when the
	// manifest doesn't otherwise carry source information (callers
	// typically overwrite Summary.ID's source afterward; see GitSource and
	// RegistrySource).
	DefaultSourceID core.SourceID
}

func NewTOMLLoader(defaultSource core.SourceID) *TOMLLoader {
	return &TOMLLoader{DefaultSourceID: defaultSource}
}

type rawManifest struct {
	Package struct {
		Name    string   `toml:"name"`
		Version string   `toml:"version"`
		Links   string   `toml:"links"`
		Include []string `toml:"include"`
		Exclude []string `toml:"exclude"`
		Publish *bool    `toml:"publish"`

		Metadata map[string]string `toml:"metadata"`
	} `toml:"package"`

	Lib *rawTarget `toml:"lib"`
	Bin []rawTarget `toml:"bin"`

	Dependencies      map[string]rawDependency `toml:"dependencies"`
	BuildDependencies map[string]rawDependency `toml:"build-dependencies"`
	DevDependencies   map[string]rawDependency `toml:"dev-dependencies"`

	Features map[string][]string `toml:"features"`

	Workspace *struct {
		Members []string `toml:"members"`
		Exclude []string `toml:"exclude"`
	} `toml:"workspace"`

	Replace map[string]string `toml:"replace"`
}

type rawTarget struct {
	Name    string `toml:"name"`
	Path    string `toml:"path"`
	Harness *bool  `toml:"harness"`
}

// rawDependency supports both the short "name = \"1.2.3\"" form and the long
// "[dependencies.name]" table form via TOML's untyped decode into an
// interface{}, resolved in UnmarshalTOML.
type rawDependency struct {
	Version         string   `toml:"version"`
	Source          string   `toml:"source"`
	Features        []string `toml:"features"`
	Optional        bool     `toml:"optional"`
	DefaultFeatures *bool    `toml:"default-features"`
	Platform        string   `toml:"target"`

	shortForm string // set when the TOML value was a bare string, not a table
}

func (d *rawDependency) UnmarshalTOML(v interface{}) error {
	if s, ok := v.(string); ok {
		d.shortForm = s
		return nil
	}
	m, ok := v.(map[string]interface{})
	if !ok {
		return fmt.Errorf("unsupported dependency value: %#v", v)
	}
	if s, ok := m["version"].(string); ok {
		d.Version = s
	}
	if s, ok := m["source"].(string); ok {
		d.Source = s
	}
	if s, ok := m["target"].(string); ok {
		d.Platform = s
	}
	if b, ok := m["optional"].(bool); ok {
		d.Optional = b
	}
	if b, ok := m["default-features"].(bool); ok {
		d.DefaultFeatures = &b
	}
	if fs, ok := m["features"].([]interface{}); ok {
		for _, f := range fs {
			if s, ok := f.(string); ok {
				d.Features = append(d.Features, s)
			}
		}
	}
	return nil
}

func (l *TOMLLoader) Load(dir string) (core.Manifest, error) {
	path := filepath.Join(dir, "Craft.toml")
	data, err := os.ReadFile(path)
	if err != nil {
		return core.Manifest{}, fmt.Errorf("reading %s: %w", path, err)
	}
	var raw rawManifest
	if _, err := toml.Decode(string(data), &raw); err != nil {
		return core.Manifest{}, fmt.Errorf("parsing %s: %w", path, err)
	}
	return l.convert(raw)
}

func (l *TOMLLoader) convert(raw rawManifest) (core.Manifest, error) {
	id, err := core.NewPackageID(raw.Package.Name, raw.Package.Version, l.DefaultSourceID)
	if err != nil {
		return core.Manifest{}, err
	}

	deps, err := l.convertDeps(raw.Dependencies, core.KindNormal)
	if err != nil {
		return core.Manifest{}, err
	}
	buildDeps, err := l.convertDeps(raw.BuildDependencies, core.KindBuild)
	if err != nil {
		return core.Manifest{}, err
	}
	devDeps, err := l.convertDeps(raw.DevDependencies, core.KindDev)
	if err != nil {
		return core.Manifest{}, err
	}

	summary := core.Summary{
		ID:           id,
		Dependencies: append(append(deps, buildDeps...), devDeps...),
		Features:     raw.Features,
	}

	m := core.Manifest{
		Summary:  summary,
		Profiles: core.DefaultProfiles(),
		Include:  raw.Package.Include,
		Exclude:  raw.Package.Exclude,
		Links:    raw.Package.Links,
		Publish:  raw.Package.Publish == nil || *raw.Package.Publish,
		Metadata: raw.Package.Metadata,
	}

	if raw.Lib != nil {
		m.Targets = append(m.Targets, core.Target{
			Kind:    core.TargetLib,
			Name:    orDefault(raw.Lib.Name, raw.Package.Name),
			SrcPath: orDefault(raw.Lib.Path, filepath.Join("src", "lib.c")),
			Doc:     true,
			Doctest: true,
			Tested:  true,
		})
	}
	for _, b := range raw.Bin {
		m.Targets = append(m.Targets, core.Target{
			Kind:    core.TargetBin,
			Name:    b.Name,
			SrcPath: orDefault(b.Path, filepath.Join("src", "bin", b.Name+".c")),
			Tested:  true,
		})
	}

	if raw.Workspace != nil {
		m.Workspace = &core.WorkspaceConfig{Members: raw.Workspace.Members, Exclude: raw.Workspace.Exclude}
	}

	for specText, replacement := range raw.Replace {
		spec, err := core.ParsePackageIDSpec(specText)
		if err != nil {
			return core.Manifest{}, fmt.Errorf("[replace] key %q: %w", specText, err)
		}
		repID, err := l.resolveReplacement(spec, replacement)
		if err != nil {
			return core.Manifest{}, err
		}
		m.Replace = append(m.Replace, core.ReplaceEntry{Spec: spec, Replacement: repID})
	}

	return m, nil
}

// resolveReplacement parses a "[replace]" value of the form
// "name@path+file:///..." or a bare version against a path source, mirroring
// Cargo's historical `[replace]` value grammar closely enough for craft's
// purposes (the entries are applied after resolution by
// internal/resolver's applyReplace).
func (l *TOMLLoader) resolveReplacement(spec core.PackageIDSpec, value string) (core.PackageID, error) {
	name, rest, ok := cutAt(value, "@")
	if !ok {
		name, rest = spec.Name, value
	}
	sid, err := core.ParseSourceID(rest)
	if err != nil {
		return core.PackageID{}, fmt.Errorf("[replace] value %q: %w", value, err)
	}
	ver := spec.Version
	if ver == "" {
		ver = "0.0.0"
	}
	return core.NewPackageID(name, ver, sid)
}

func cutAt(s, sep string) (before, after string, found bool) {
	for i := 0; i+len(sep) <= len(s); i++ {
		if s[i:i+len(sep)] == sep {
			return s[:i], s[i+len(sep):], true
		}
	}
	return s, "", false
}

func (l *TOMLLoader) convertDeps(raw map[string]rawDependency, kind core.DependencyKind) ([]core.Dependency, error) {
	var out []core.Dependency
	for name, rd := range raw {
		reqText := rd.Version
		if reqText == "" {
			reqText = rd.shortForm
		}
		if reqText == "" {
			reqText = "*"
		}
		dep, err := core.NewDependency(name, normalizeWildcard(reqText))
		if err != nil {
			return nil, fmt.Errorf("dependency %q: %w", name, err)
		}
		dep.Kind = kind
		dep.Optional = rd.Optional
		dep.Features = rd.Features
		dep.Platform = rd.Platform
		if rd.DefaultFeatures != nil {
			dep.DefaultFeatures = *rd.DefaultFeatures
		}
		if rd.Source != "" {
			sid, err := core.ParseSourceID(rd.Source)
			if err != nil {
				return nil, fmt.Errorf("dependency %q source: %w", name, err)
			}
			dep.SourceOverride = sid
			dep.HasSourceOverride = true
		}
		out = append(out, dep)
	}
	return out, nil
}

func normalizeWildcard(req string) string {
	if req == "*" {
		return "~> 0"
	}
	return req
}

func orDefault(v, def string) string {
	if v != "" {
		return v
	}
	return def
}
