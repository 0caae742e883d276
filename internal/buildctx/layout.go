package buildctx

import (
	"path/filepath"

	"github.com/craftpkg/craft/internal/core"
)

// Layout computes the output-directory tree for a unit's kind/profile
// combination (spec §4.4, "Output layout": two roots, host/ and
// target/<triple>/ when cross-compiling, each with release/ or debug/ and
// deps/examples/build/incremental/.fingerprint subdirectories).
type Layout struct {
	Root string // target/<triple>/{debug|release} or host/{debug|release}
}

// RootFor computes the output root for a unit, rooted at targetDir.
func (c *Context) RootFor(targetDir string, u core.Unit) Layout {
	base := targetDir
	if u.Kind == core.Host || c.Target == "" {
		base = filepath.Join(base, "host")
	} else {
		base = filepath.Join(base, c.Target)
	}
	profileDir := "debug"
	if u.Profile.Name == "release" || u.Profile.Name == "bench" {
		profileDir = "release"
	}
	return Layout{Root: filepath.Join(base, profileDir)}
}

func (l Layout) DepsDir() string        { return filepath.Join(l.Root, "deps") }
func (l Layout) ExamplesDir() string    { return filepath.Join(l.Root, "examples") }
func (l Layout) BuildDir() string       { return filepath.Join(l.Root, "build") }
func (l Layout) IncrementalDir() string { return filepath.Join(l.Root, "incremental") }
func (l Layout) FingerprintDir() string { return filepath.Join(l.Root, ".fingerprint") }

// BuildScriptDir returns the per-unit build/<pkg>-<meta>/ directory holding
// the script binary, its out/ directory, captured output, and invocation
// timestamp (spec §6, target directory layout).
func (l Layout) BuildScriptDir(pkg core.PackageID) string {
	return filepath.Join(l.BuildDir(), pkg.Name()+"-"+pkg.GenerateMetadata())
}

func (l Layout) OutDir(pkg core.PackageID) string {
	return filepath.Join(l.BuildScriptDir(pkg), "out")
}

// FingerprintUnitDir returns the .fingerprint/<pkg>-<meta>/ directory
// holding a unit's fingerprint and dep-info files (spec §4.5).
func (l Layout) FingerprintUnitDir(pkg core.PackageID) string {
	return filepath.Join(l.FingerprintDir(), pkg.Name()+"-"+pkg.GenerateMetadata())
}

// Stem computes a unit's primary output stem: "<crate_name>[-<meta>]",
// omitting the metadata hash only for root path packages not in test mode,
// per spec §4.4 ("File stems").
func (c *Context) Stem(u core.Unit, isRootPathPackage bool) string {
	if isRootPathPackage && !u.Profile.TestFlag {
		return u.Target.Name
	}
	if u.Target.Metadata != "" {
		return u.Target.Name + "-" + u.Target.Metadata
	}
	return u.Target.Name + "-" + u.Package.GenerateMetadata()
}

// PrimaryOutputName renders the full "<prefix><stem><suffix>" filename for
// a unit's primary artifact, using the compiler-probed crate-type table.
func (c *Context) PrimaryOutputName(u core.Unit, isRootPathPackage bool) (string, error) {
	stem := c.Stem(u, isRootPathPackage)
	if u.Target.IsBin() || u.Target.IsExample() || u.Target.IsCustomBuild() {
		return stem, nil // executables carry no probed prefix/suffix in this target model
	}
	for _, kind := range u.Target.LibKinds {
		info, ok := c.Probe.SupportedCrateTypes[kind]
		if ok {
			return info.Prefix + stem + info.Suffix, nil
		}
	}
	return stem, nil
}
