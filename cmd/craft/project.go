package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	craft "github.com/craftpkg/craft"
	"github.com/craftpkg/craft/internal/core"
	"github.com/craftpkg/craft/internal/lockfile"
	"github.com/craftpkg/craft/internal/registry"
	"github.com/craftpkg/craft/internal/resolver"
	"github.com/craftpkg/craft/internal/source"
	"github.com/craftpkg/craft/internal/source/manifestloader"
	"github.com/craftpkg/craft/internal/workspace"
)

// project bundles the outcome of loading and resolving one invocation's
// workspace: the discovered members, the registry they were queried
// through, and the resolved dependency graph, ready for buildctx.New.
type project struct {
	cfg       *craft.Config
	ws        *workspace.Workspace
	reg       *registry.Registry
	resolved  *resolver.Graph
	lockPath  string
}

// hostTriple approximates rustc's own host-triple detection
// (distr1-distri has no equivalent; this mirrors
// original_source/src/core/compiler/build_context/target_info.rs's
// "run the compiler with --version" probe, simplified to a static table
// since the GOOS/GOARCH pair is already known at compile time).
func hostTriple() string {
	arch := runtime.GOARCH
	switch arch {
	case "amd64":
		arch = "x86_64"
	case "arm64":
		arch = "aarch64"
	case "386":
		arch = "i686"
	}
	switch runtime.GOOS {
	case "darwin":
		return arch + "-apple-darwin"
	default:
		return arch + "-linux-gnu"
	}
}

// loadProject discovers the workspace rooted above cwd, constructs a
// Registry over a ConfigMap-backed source cache, and resolves every
// member's dependency graph (spec §4.1-§4.3).
func loadProject(ctx context.Context, cfg *craft.Config, cwd string) (*project, error) {
	manifestPath, err := workspace.LocateRoot(cwd)
	if err != nil {
		return nil, craft.Human(err, "could not locate a Craft.toml")
	}

	loader := manifestloader.NewTOMLLoader(core.SourceID{})
	ws, err := workspace.Load(manifestPath, loader)
	if err != nil {
		return nil, craft.Human(err, "loading workspace")
	}

	defaultSource := core.NewRegistrySourceID(core.DefaultRegistryURL)
	ws.ApplyDefaultSource(defaultSource)

	cm := source.NewConfigMap(cfg.Home)
	// Touch every root source so it's registered in the underlying Map
	// before the Registry queries it. Package-level [replace] entries are
	// applied post-resolution by resolver.Resolve itself; a source-level
	// replacement (ConfigMap.AddReplacement) would be wired here too, but
	// nothing in this workspace model declares one.
	for _, m := range ws.Members {
		for _, dep := range m.Manifest.Summary.Dependencies {
			if dep.HasSourceOverride {
				if _, err := cm.Load(dep.SourceOverride); err != nil {
					return nil, craft.Human(err, fmt.Sprintf("loading source for dependency %q", dep.Name))
				}
			}
		}
	}
	if _, err := cm.Load(defaultSource); err != nil {
		return nil, craft.Human(err, "loading default registry")
	}

	reg := registry.New(cm.Cache())
	reg.SetFrozen(cfg.Frozen || cfg.Offline)

	lockPath := filepath.Join(ws.RootDir, lockfile.FileName)
	lf, err := lockfile.Load(lockPath)
	if err != nil {
		return nil, craft.Human(err, "reading "+lockfile.FileName)
	}
	if cfg.Frozen {
		if stale, reason := workspace.StalenessCheck(ws, lf); stale {
			return nil, craft.Human(nil, "the lock file "+lockfile.FileName+" needs to be updated ("+reason+") but --frozen was passed to prevent this")
		}
	}
	if lf != nil {
		reg.LoadLockfile(lf.Packages, lf.Deps)
	}

	methods := map[string]resolver.Method{}
	for _, m := range ws.Members {
		methods[m.Manifest.Summary.ID.Key()] = resolver.Method{Features: nil}
	}

	platform := resolver.PlatformInfo{Triple: hostTriple()}
	resolved, err := resolver.Resolve(ctx, reg, ws.RootSummaries(), methods, ws.Replacements(), platform)
	if err != nil {
		return nil, craft.Human(err, "resolving dependencies")
	}
	if err := resolver.Verify(resolved); err != nil {
		return nil, craft.Internal(err, "resolved graph failed verification")
	}

	return &project{cfg: cfg, ws: ws, reg: reg, resolved: resolved, lockPath: lockPath}, nil
}

// saveLockfile writes p's resolved graph to Craft.lock. Under --frozen it
// writes nothing and only checks that Craft.lock still exists.
func (p *project) saveLockfile() error {
	lf := lockfile.FromResolve(p.resolved)
	if p.cfg.Frozen {
		existing, err := lockfile.Load(p.lockPath)
		if err != nil {
			return err
		}
		if existing == nil {
			return craft.Human(nil, "the lock file "+lockfile.FileName+" needs to be updated but --frozen was passed to prevent this")
		}
		return nil
	}
	return lf.Save(p.lockPath)
}

// downloadManifests fetches every resolved package's manifest plus its
// on-disk root directory, both keyed by PackageID.Key(): the manifest map
// is the shape buildctx.New requires, and the dir map is what a build
// script or the compiler itself needs as its working directory.
func (p *project) downloadManifests(ctx context.Context) (map[string]core.Manifest, map[string]string, error) {
	manifests := map[string]core.Manifest{}
	dirs := map[string]string{}
	for _, m := range p.ws.Members {
		manifests[m.Manifest.Summary.ID.Key()] = m.Manifest
		dirs[m.Manifest.Summary.ID.Key()] = m.Dir
	}
	for _, id := range p.resolved.Packages() {
		if _, ok := manifests[id.Key()]; ok {
			continue
		}
		pkg, err := p.reg.Download(ctx, id)
		if err != nil {
			return nil, nil, craft.Human(err, fmt.Sprintf("downloading %s", id))
		}
		manifests[id.Key()] = pkg.Manifest
		dirs[id.Key()] = pkg.RootDir
	}
	return manifests, dirs, nil
}

func mustGetwd() string {
	wd, err := os.Getwd()
	if err != nil {
		panic(err)
	}
	return wd
}
