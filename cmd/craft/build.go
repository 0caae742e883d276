package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	craft "github.com/craftpkg/craft"
	"github.com/craftpkg/craft/internal/buildctx"
	"github.com/craftpkg/craft/internal/buildscript"
	"github.com/craftpkg/craft/internal/ccdriver"
	"github.com/craftpkg/craft/internal/core"
	"github.com/craftpkg/craft/internal/fingerprint"
	"github.com/craftpkg/craft/internal/scheduler"
)

// cmdbuild implements `craft build`: resolve, write Craft.lock, synthesize
// the unit graph, and compile every unit the fingerprint engine reports as
// dirty, grounded on distr1-distri/cmd/distri/build.go's
// flag.NewFlagSet-per-verb pattern.
func cmdbuild(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("build", flag.ExitOnError)
	release := fs.Bool("release", false, "build with the release profile")
	jobs := fs.Int("jobs", 0, "number of parallel compile jobs (0 = one per CPU)")
	noFailFast := fs.Bool("no-fail-fast", false, "run every unit to completion, collecting every failure")
	frozen := fs.Bool("frozen", false, "require an up-to-date Craft.lock and skip source updates")
	offline := fs.Bool("offline", false, "never access the network")
	cc := fs.String("cc", envOr("CC", "cc"), "C compiler to invoke")
	target := fs.String("target", "", "cross-compile target triple (empty: host)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg := craft.NewConfig()
	cfg.Jobs = *jobs
	cfg.Frozen = *frozen
	cfg.Offline = *offline

	p, err := loadProject(ctx, cfg, mustGetwd())
	if err != nil {
		return err
	}
	if err := p.saveLockfile(); err != nil {
		return err
	}

	manifests, dirs, err := p.downloadManifests(ctx)
	if err != nil {
		return err
	}

	probe, err := buildctx.ProbeCompiler(ctx, *cc, []core.LibKind{core.LibStatic, core.LibShared})
	if err != nil {
		return craft.Human(err, fmt.Sprintf("probing compiler %q", *cc))
	}

	bc := buildctx.New(p.resolved, manifests, hostTriple(), *target, probe)

	profileName := "dev"
	if *release {
		profileName = "release"
	}
	profile := core.DefaultProfiles()[profileName]

	var roots []core.PackageID
	memberRoot := map[string]bool{}
	for _, m := range p.ws.Members {
		roots = append(roots, m.Manifest.Summary.ID)
		memberRoot[m.Manifest.Summary.ID.Key()] = true
	}

	filter := buildctx.CompileFilter{Lib: true, AllBins: true}
	units, err := bc.BuildRoots(ctx, roots, filter, profile)
	if err != nil {
		return craft.Human(err, "synthesizing the unit graph")
	}

	b := &builder{
		cfg:        cfg,
		bc:         bc,
		manifests:  manifests,
		pkgDirs:    dirs,
		targetDir:  p.ws.TargetDir,
		rootDir:    p.ws.RootDir,
		memberRoot: memberRoot,
		cc:         *cc,
		fpCache:    map[string]string{},
		outCache:   map[string]buildscript.Output{},
	}

	jobList := make([]scheduler.Job, 0, len(units))
	for _, u := range units {
		job, err := b.job(ctx, u)
		if err != nil {
			return craft.Internal(err, fmt.Sprintf("preparing job for %s %s", u.Package, u.Target.Name))
		}
		jobList = append(jobList, job)
	}

	workers := cfg.JobCount(runtime.NumCPU())
	sched, err := scheduler.New(jobList, bc.DepTargets, workers)
	if err != nil {
		return craft.Internal(err, "building the job graph")
	}
	sched.NoFailFast = *noFailFast

	if err := sched.Run(ctx); err != nil {
		return craft.Human(err, "build failed")
	}
	return nil
}

// builder holds the state shared across every unit's job construction: the
// build context, every package's on-disk root directory, and two small
// memoization caches (fingerprint hashes and build-script output) so a
// unit's dependents can look up what it produced without re-deriving it.
type builder struct {
	cfg        *craft.Config
	bc         *buildctx.Context
	manifests  map[string]core.Manifest
	pkgDirs    map[string]string
	targetDir  string
	rootDir    string
	memberRoot map[string]bool
	cc         string

	fpCache map[string]string // populated single-threaded before scheduling; read-only once Run starts

	// outCache is written and read concurrently: the scheduler runs a
	// "-run" unit's job and its dependents' jobs on different worker
	// goroutines, serialized only by dependency order, not by a shared
	// lock, so access needs its own mutex.
	outMu    sync.Mutex
	outCache map[string]buildscript.Output
}

func (b *builder) scriptOutput(key string) (buildscript.Output, bool) {
	b.outMu.Lock()
	defer b.outMu.Unlock()
	out, ok := b.outCache[key]
	return out, ok
}

func (b *builder) setScriptOutput(key string, out buildscript.Output) {
	b.outMu.Lock()
	defer b.outMu.Unlock()
	b.outCache[key] = out
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func (b *builder) isRootPathPackage(id core.PackageID) bool {
	return b.memberRoot[id.Key()] && id.SourceID().IsPath()
}

func (b *builder) pkgDir(id core.PackageID) string {
	if dir, ok := b.pkgDirs[id.Key()]; ok {
		return dir
	}
	return b.rootDir
}

func (b *builder) layout(u core.Unit) buildctx.Layout {
	return b.bc.RootFor(b.targetDir, u)
}

// fingerprintOf computes u's content hash, recursing into its own
// dependencies first (spec §4.5's "deps" component is itself a hash, not a
// build result, so this needs no knowledge of build order).
func (b *builder) fingerprintOf(ctx context.Context, u core.Unit) (string, error) {
	if h, ok := b.fpCache[u.Key()]; ok {
		return h, nil
	}
	deps, err := b.bc.DepTargets(u)
	if err != nil {
		return "", err
	}
	var depHashes []string
	for _, d := range deps {
		h, err := b.fingerprintOf(ctx, d)
		if err != nil {
			return "", err
		}
		depHashes = append(depHashes, h)
	}

	local := fingerprint.Local{}
	if info, err := os.Stat(u.Target.SrcPath); err == nil {
		local.SourceMtime = info.ModTime().Format("2006-01-02T15:04:05.000000000Z07:00")
	}

	in := fingerprint.Inputs{
		CompilerVersion: b.cc,
		CompilerFlags:   b.cfg.CFlags,
		Features:        b.bc.Resolve.Features(u.Package),
		TargetTriple:    b.bc.Target,
		DepFingerprints: depHashes,
		Local:           local,
	}
	hash := fingerprint.Compute(u, in)
	b.fpCache[u.Key()] = hash
	return hash, nil
}

// job builds the scheduler.Job for u: computes its fingerprint, checks
// on-disk freshness, and wires the Run closure appropriate to its kind
// (ordinary compile, build-script compile, or build-script execution).
func (b *builder) job(ctx context.Context, u core.Unit) (scheduler.Job, error) {
	hash, err := b.fingerprintOf(ctx, u)
	if err != nil {
		return scheduler.Job{}, err
	}
	layout := b.layout(u)
	unitDir := layout.FingerprintUnitDir(u.Package)
	fresh, err := fingerprint.Fresh(unitDir, hash)
	if err != nil {
		return scheduler.Job{}, err
	}
	if fresh && strings.HasSuffix(u.Target.Name, "-run") {
		// A skipped build-script run never re-executes, so its captured
		// cargo:-protocol output has to be reloaded from disk now, before
		// scheduling starts, so dependent units can still see it.
		if out, ok, err := buildscript.LoadOutput(unitDir); err == nil && ok {
			b.setScriptOutput(u.Key(), out)
		}
	}

	run := func(ctx context.Context) error {
		if err := os.MkdirAll(layout.DepsDir(), 0o755); err != nil {
			return err
		}
		if strings.HasSuffix(u.Target.Name, "-run") {
			if err := b.runBuildScript(ctx, u, layout); err != nil {
				return err
			}
		} else if err := b.compile(ctx, u, layout); err != nil {
			return err
		}
		return fingerprint.Write(unitDir, hash)
	}

	return scheduler.Job{Unit: u, Fresh: fresh, Run: run}, nil
}

// compile drives ccdriver for one ordinary (non-"-run") unit: library, bin,
// test, bench, example, or the build-script binary itself.
func (b *builder) compile(ctx context.Context, u core.Unit, layout buildctx.Layout) error {
	deps, err := b.bc.DepTargets(u)
	if err != nil {
		return err
	}

	var externs []ccdriver.Extern
	var scriptOut *buildscript.Output
	var producerSearch []string
	for _, d := range deps {
		if strings.HasSuffix(d.Target.Name, "-run") {
			out, ok := b.scriptOutput(d.Key())
			if !ok {
				continue
			}
			if d.Package.Equal(u.Package) {
				o := out
				scriptOut = &o
			} else {
				// A links=<name>-declaring dependency's own run unit: its
				// rustc-link-search paths reach this consumer's -L flags,
				// but its rustc-link-lib/-cfg stay scoped to itself (spec
				// §4.8, scenario S4).
				for _, s := range out.LinkSearch {
					producerSearch = append(producerSearch, s.Path)
				}
			}
			continue
		}
		if !d.Target.IsLib() {
			continue
		}
		dl := b.layout(d)
		name, err := b.bc.PrimaryOutputName(d, b.isRootPathPackage(d.Package))
		if err != nil {
			return err
		}
		externs = append(externs, ccdriver.Extern{Name: d.Target.Name, Path: filepath.Join(dl.DepsDir(), name)})
	}

	workDir := b.pkgDir(u.Package)
	in := ccdriver.Inputs{
		CC:                 b.cc,
		Unit:               u,
		Layout:              layout,
		WorkDir:            workDir,
		MetadataHash:       u.Package.GenerateMetadata(),
		Externs:            externs,
		Features:           b.bc.Resolve.Features(u.Package),
		ScriptOutput:       scriptOut,
		ProducerLinkSearch: producerSearch,
		Flags:              ccdriver.FlagSources{Env: b.cfg.CFlags},
		CanLTO:             true,
	}
	args, err := ccdriver.BuildCommand(in)
	if err != nil {
		return err
	}

	if err := ccdriver.Invoke(ctx, b.cc, args, workDir, os.Environ(), func(d ccdriver.Diagnostic) {
		if d.Stderr {
			log.Print(d.Text)
		}
	}); err != nil {
		return err
	}

	if err := ccdriver.Finalize(b.bc, u, layout, in.MetadataHash, workDir, b.isRootPathPackage(u.Package)); err != nil {
		return err
	}

	if b.isRootPathPackage(u.Package) && (u.Target.IsBin() || u.Target.IsLib()) {
		name, err := b.bc.PrimaryOutputName(u, true)
		if err != nil {
			return err
		}
		if err := ccdriver.HardLinkToPrimary(filepath.Join(layout.DepsDir(), name), filepath.Join(layout.Root, name)); err != nil {
			return err
		}
	}
	return nil
}

// runBuildScript executes an already-compiled build-script binary and
// persists its parsed cargo:-protocol output (spec §4.6).
func (b *builder) runBuildScript(ctx context.Context, u core.Unit, layout buildctx.Layout) error {
	scriptTarget := u.Target
	scriptTarget.Name = strings.TrimSuffix(u.Target.Name, "-run")
	scriptUnit := core.Unit{Package: u.Package, Target: scriptTarget, Profile: u.Profile, Kind: u.Kind}
	scriptLayout := b.layout(scriptUnit)

	name, err := b.bc.PrimaryOutputName(scriptUnit, false)
	if err != nil {
		return err
	}
	scriptPath := filepath.Join(scriptLayout.DepsDir(), name)

	m, err := manifestFor(b.manifests, u.Package)
	if err != nil {
		return err
	}
	pkgDir := b.pkgDir(u.Package)
	outDir := layout.OutDir(u.Package)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}

	deps, err := b.bc.DepTargets(u)
	if err != nil {
		return err
	}
	producers, err := b.bc.LinksProducers(b.bc.Resolve.Deps(u.Package))
	if err != nil {
		return err
	}
	depOutputs := map[string]buildscript.Output{}
	for link, id := range producers {
		for _, d := range deps {
			if d.Package.Equal(id) && strings.HasSuffix(d.Target.Name, "-run") {
				if out, ok := b.scriptOutput(d.Key()); ok {
					depOutputs[link] = out
				}
			}
		}
	}

	env := buildscript.BuildEnv(buildscript.EnvInputs{
		OutDir:       outDir,
		ManifestDir:  pkgDir,
		HostTriple:   b.bc.HostTriple,
		TargetTriple: b.bc.Target,
		Features:     b.bc.Resolve.Features(u.Package),
		Metadata:     m.Metadata,
		DepOutputs:   depOutputs,
		ProfileOpt:   string(u.Profile.OptLevel),
		DebugInfo:    u.Profile.DebugInfo,
	})

	out, err := buildscript.Run(ctx, scriptPath, pkgDir, env)
	if err != nil {
		return err
	}
	for _, w := range out.Warnings {
		log.Printf("%s: %s", u.Package.Name(), w)
	}

	unitDir := b.layout(u).FingerprintUnitDir(u.Package)
	if err := buildscript.SaveOutput(unitDir, out); err != nil {
		return err
	}
	b.setScriptOutput(u.Key(), out)
	return fingerprint.Invoked(layout.BuildScriptDir(u.Package))
}

func manifestFor(manifests map[string]core.Manifest, id core.PackageID) (core.Manifest, error) {
	m, ok := manifests[id.Key()]
	if !ok {
		return core.Manifest{}, fmt.Errorf("no manifest loaded for %s", id)
	}
	return m, nil
}
