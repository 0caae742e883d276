// Package workspace discovers a craft workspace's root and member
// packages, and owns the shared target directory and profile set every
// member builds against (spec component F).
package workspace

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/craftpkg/craft/internal/core"
	"github.com/craftpkg/craft/internal/source/manifestloader"
)

// Member is one package belonging to a workspace.
type Member struct {
	Manifest core.Manifest
	Dir      string
}

// Workspace is the root manifest plus every discovered member, grounded on
// distr1-distri/internal/batch/batch.go's Ctx (a configuration+state handle
// passed by pointer, never a global) and its pkgsDir member-discovery loop.
type Workspace struct {
	RootDir    string
	TargetDir  string
	Members    []Member
	Profiles   map[string]core.Profile
}

// LocateRoot walks upward from startDir looking for a Craft.toml, the
// `locate-project`-style operation supplemented per SPEC_FULL.md §C.4
// (original_source/src/ops/cargo_compile.rs's `find_root_manifest_for_wd`).
func LocateRoot(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}
	for {
		candidate := filepath.Join(dir, "Craft.toml")
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("could not find `Craft.toml` in %q or any parent directory", startDir)
		}
		dir = parent
	}
}

// Load reads the manifest at manifestPath and, if it declares a
// [workspace], every member beneath it, matching distr1-distri/internal/
// batch/batch.go's ioutil.ReadDir(pkgsDir) discovery loop generalized from
// "every subdirectory is a package" to "every glob in workspace.members is
// a package, minus workspace.exclude".
func Load(manifestPath string, loader manifestloader.Loader) (*Workspace, error) {
	rootDir := filepath.Dir(manifestPath)
	rootManifest, err := loader.Load(rootDir)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", manifestPath, err)
	}

	ws := &Workspace{
		RootDir:   rootDir,
		TargetDir: filepath.Join(rootDir, "target"),
		Profiles:  core.DefaultProfiles(),
	}

	if rootManifest.Workspace == nil {
		ws.Members = []Member{{Manifest: rootManifest, Dir: rootDir}}
		return ws, nil
	}

	excluded := map[string]bool{}
	for _, ex := range rootManifest.Workspace.Exclude {
		excluded[ex] = true
	}

	seen := map[string]bool{}
	for _, pattern := range rootManifest.Workspace.Members {
		dirs, err := filepath.Glob(filepath.Join(rootDir, pattern))
		if err != nil {
			return nil, fmt.Errorf("workspace member pattern %q: %w", pattern, err)
		}
		for _, dir := range dirs {
			rel, err := filepath.Rel(rootDir, dir)
			if err != nil || excluded[rel] || seen[dir] {
				continue
			}
			seen[dir] = true
			m, err := loader.Load(dir)
			if err != nil {
				return nil, fmt.Errorf("loading workspace member %s: %w", dir, err)
			}
			ws.Members = append(ws.Members, Member{Manifest: m, Dir: dir})
		}
	}
	if len(ws.Members) == 0 {
		return nil, fmt.Errorf("workspace at %s declares no members", rootDir)
	}
	return ws, nil
}

// RootSummaries returns every member's Summary, the "one per workspace
// member" root set the resolver consumes (spec §4.3).
func (w *Workspace) RootSummaries() []core.Summary {
	out := make([]core.Summary, len(w.Members))
	for i, m := range w.Members {
		out[i] = m.Manifest.Summary
	}
	return out
}

// ApplyDefaultSource fills in defaultSource as the SourceOverride for every
// member dependency that doesn't already declare its own `source = "..."`
// (spec §4.1: a dependency with no explicit source resolves against the
// project's configured default registry).
func (w *Workspace) ApplyDefaultSource(defaultSource core.SourceID) {
	for i := range w.Members {
		deps := w.Members[i].Manifest.Summary.Dependencies
		for j := range deps {
			if !deps[j].HasSourceOverride {
				deps[j].SourceOverride = defaultSource
				deps[j].HasSourceOverride = true
			}
		}
	}
}

// Replacements aggregates every member's [replace] table into one list
// in the order members were discovered in. The resolver applies the first
// entry whose spec matches a package, so on conflicting specs the earlier
// entry wins.
func (w *Workspace) Replacements() []core.ReplaceEntry {
	var out []core.ReplaceEntry
	for _, m := range w.Members {
		out = append(out, m.Manifest.Replace...)
	}
	return out
}
