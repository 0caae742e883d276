package buildctx

import (
	"context"
	"testing"

	"github.com/craftpkg/craft/internal/core"
	"github.com/craftpkg/craft/internal/resolver"
)

func TestBuildRootsIncludesLibraryAndCustomBuild(t *testing.T) {
	sid := core.NewRegistrySourceID("https://example.com/index")
	id, err := core.NewPackageID("a", "0.1.0", sid)
	if err != nil {
		t.Fatal(err)
	}

	lib := core.Target{Kind: core.TargetLib, Name: "a", SrcPath: "src/lib.c"}
	bin := core.Target{Kind: core.TargetBin, Name: "a-cli", SrcPath: "src/bin/a-cli.c"}
	cb := core.Target{Kind: core.TargetCustomBuild, Name: "build-script-build", SrcPath: "build.c"}
	m := core.Manifest{
		Summary:  core.Summary{ID: id},
		Targets:  []core.Target{lib, bin, cb},
		Profiles: core.DefaultProfiles(),
	}

	res, err := resolver.Resolve(context.Background(), emptyQueryer{}, []core.Summary{m.Summary}, nil, nil, resolver.PlatformInfo{})
	if err != nil {
		t.Fatal(err)
	}

	c := New(res, map[string]core.Manifest{id.Key(): m}, "x86_64-linux-gnu", "", CompilerProbe{})
	units, err := c.BuildRoots(context.Background(), []core.PackageID{id}, CompileFilter{AllBins: true}, core.DefaultProfiles()["dev"])
	if err != nil {
		t.Fatal(err)
	}

	var sawBin, sawLib, sawCustomBuild bool
	for _, u := range units {
		switch {
		case u.Target.IsBin():
			sawBin = true
		case u.Target.IsLib():
			sawLib = true
		case u.Target.IsCustomBuild():
			sawCustomBuild = true
		}
	}
	if !sawBin || !sawLib || !sawCustomBuild {
		t.Errorf("expected bin, lib, and custom-build units; got %+v", units)
	}
}

func TestDepTargetsAddsLinksProducerRunUnit(t *testing.T) {
	sid := core.NewRegistrySourceID("https://example.com/index")
	zID, err := core.NewPackageID("z", "1.0.0", sid)
	if err != nil {
		t.Fatal(err)
	}
	cID, err := core.NewPackageID("c", "0.1.0", sid)
	if err != nil {
		t.Fatal(err)
	}

	zLib := core.Target{Kind: core.TargetLib, Name: "z", SrcPath: "src/lib.c"}
	zBuild := core.Target{Kind: core.TargetCustomBuild, Name: "build-script-build", SrcPath: "build.c"}
	zManifest := core.Manifest{
		Summary:  core.Summary{ID: zID},
		Targets:  []core.Target{zLib, zBuild},
		Profiles: core.DefaultProfiles(),
		Links:    "z",
	}

	dep, err := core.NewDependency("z", "^1.0")
	if err != nil {
		t.Fatal(err)
	}
	cLib := core.Target{Kind: core.TargetLib, Name: "c", SrcPath: "src/lib.c"}
	cManifest := core.Manifest{
		Summary:  core.Summary{ID: cID, Dependencies: []core.Dependency{dep}},
		Targets:  []core.Target{cLib},
		Profiles: core.DefaultProfiles(),
	}

	q := linksQueryer{summaries: map[string][]core.Summary{"z": {zManifest.Summary}}}
	res, err := resolver.Resolve(context.Background(), q, []core.Summary{cManifest.Summary, zManifest.Summary}, nil, nil, resolver.PlatformInfo{})
	if err != nil {
		t.Fatal(err)
	}

	c := New(res, map[string]core.Manifest{cID.Key(): cManifest, zID.Key(): zManifest}, "x86_64-linux-gnu", "", CompilerProbe{})

	consumerUnit := core.Unit{Package: cID, Target: cLib, Profile: core.DefaultProfiles()["dev"], Kind: core.TargetArch}
	deps, err := c.DepTargets(consumerUnit)
	if err != nil {
		t.Fatal(err)
	}

	var sawProducerRun bool
	for _, d := range deps {
		if d.Package.Equal(zID) && d.Target.Name == "build-script-build-run" {
			sawProducerRun = true
		}
	}
	if !sawProducerRun {
		t.Errorf("expected c's dependency targets to include z's run_custom_build unit, got %+v", deps)
	}
}

// linksQueryer answers Resolve's Query calls from a fixed by-name candidate
// table, grounded on resolver_test.go's fakeQueryer; unlike emptyQueryer, it
// actually has candidates to hand back, since TestDepTargetsAddsLinksProducerRunUnit
// needs c's "z" dependency to resolve to something.
type linksQueryer struct {
	summaries map[string][]core.Summary
}

func (q linksQueryer) Query(ctx context.Context, dep core.Dependency) ([]core.Summary, error) {
	var out []core.Summary
	for _, s := range q.summaries[dep.Name] {
		if dep.Matches(s) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (linksQueryer) LockedVersion(dep core.Dependency) (core.PackageID, bool) {
	return core.PackageID{}, false
}

type emptyQueryer struct{}

func (emptyQueryer) Query(ctx context.Context, dep core.Dependency) ([]core.Summary, error) {
	return nil, nil
}

func (emptyQueryer) LockedVersion(dep core.Dependency) (core.PackageID, bool) {
	return core.PackageID{}, false
}
