package resolver

import (
	"context"
	"testing"

	"github.com/craftpkg/craft/internal/core"
)

type fakeQueryer struct {
	bySummaries map[string][]core.Summary // dep name -> candidates
	locked      map[string]core.PackageID // dep name -> previously-locked id
}

func (f *fakeQueryer) Query(ctx context.Context, dep core.Dependency) ([]core.Summary, error) {
	var out []core.Summary
	for _, s := range f.bySummaries[dep.Name] {
		if dep.Matches(s) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeQueryer) LockedVersion(dep core.Dependency) (core.PackageID, bool) {
	id, ok := f.locked[dep.Name]
	return id, ok
}

func mustID(t *testing.T, name, ver string, sid core.SourceID) core.PackageID {
	t.Helper()
	id, err := core.NewPackageID(name, ver, sid)
	if err != nil {
		t.Fatal(err)
	}
	return id
}

func TestResolvePicksHighestSemver(t *testing.T) {
	sid := core.NewRegistrySourceID("https://example.com/index")
	aID := mustID(t, "a", "0.1.0", sid)
	dep, err := core.NewDependency("b", "^1")
	if err != nil {
		t.Fatal(err)
	}
	root := core.Summary{ID: aID, Dependencies: []core.Dependency{dep}}

	b1 := core.Summary{ID: mustID(t, "b", "1.0.0", sid)}
	b11 := core.Summary{ID: mustID(t, "b", "1.1.0", sid)}
	q := &fakeQueryer{bySummaries: map[string][]core.Summary{"b": {b1, b11}}}

	res, err := Resolve(context.Background(), q, []core.Summary{root}, nil, nil, PlatformInfo{})
	if err != nil {
		t.Fatal(err)
	}
	deps := res.Deps(aID)
	if len(deps) != 1 {
		t.Fatalf("expected 1 dep, got %d", len(deps))
	}
	if deps[0].Version().String() != "1.1.0" {
		t.Errorf("expected highest semver 1.1.0 selected, got %s", deps[0].Version())
	}
}

func TestResolvePrefersLockedVersionOverHigherSemver(t *testing.T) {
	sid := core.NewRegistrySourceID("https://example.com/index")
	aID := mustID(t, "a", "0.1.0", sid)
	dep, err := core.NewDependency("b", "^1")
	if err != nil {
		t.Fatal(err)
	}
	root := core.Summary{ID: aID, Dependencies: []core.Dependency{dep}}

	b1 := core.Summary{ID: mustID(t, "b", "1.0.0", sid)}
	b11 := core.Summary{ID: mustID(t, "b", "1.1.0", sid)}
	q := &fakeQueryer{
		bySummaries: map[string][]core.Summary{"b": {b1, b11}},
		locked:      map[string]core.PackageID{"b": b1.ID},
	}

	res, err := Resolve(context.Background(), q, []core.Summary{root}, nil, nil, PlatformInfo{})
	if err != nil {
		t.Fatal(err)
	}
	deps := res.Deps(aID)
	if len(deps) != 1 {
		t.Fatalf("expected 1 dep, got %d", len(deps))
	}
	if deps[0].Version().String() != "1.0.0" {
		t.Errorf("expected locked version 1.0.0 to be preferred over 1.1.0, got %s", deps[0].Version())
	}
}

func TestVerifyLinksRejectsDuplicateOwners(t *testing.T) {
	sid := core.NewRegistrySourceID("https://example.com/index")
	p1 := mustID(t, "p1", "1.0.0", sid)
	p2 := mustID(t, "p2", "1.0.0", sid)
	err := VerifyLinks(map[core.PackageID]string{p1: "openssl", p2: "openssl"})
	if err == nil {
		t.Error("expected error for duplicate links claim")
	}
}

func TestPlatformCfgMatching(t *testing.T) {
	p := PlatformInfo{Triple: "x86_64-linux-gnu", Cfg: map[string]string{"unix": "", "target_os": "linux"}}
	if !p.Matches(`cfg(target_os="linux")`) {
		t.Error("expected target_os=linux to match")
	}
	if p.Matches(`cfg(target_os="windows")`) {
		t.Error("expected target_os=windows not to match")
	}
	if !p.Matches(`cfg(any(target_os="windows", unix))`) {
		t.Error("expected any() with bare unix atom to match")
	}
	if !p.Matches(`cfg(not(target_os="windows"))`) {
		t.Error("expected not() to negate correctly")
	}
}
