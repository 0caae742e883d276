package registry

import (
	"context"
	"testing"

	"github.com/craftpkg/craft/internal/core"
	"github.com/craftpkg/craft/internal/source"
)

type fakeSource struct {
	id        core.SourceID
	summaries []core.Summary
	updated   int
}

func (f *fakeSource) ID() core.SourceID { return f.id }
func (f *fakeSource) Query(ctx context.Context, dep core.Dependency) ([]core.Summary, error) {
	var out []core.Summary
	for _, s := range f.summaries {
		if dep.Matches(s) {
			out = append(out, s)
		}
	}
	return out, nil
}
func (f *fakeSource) Update(ctx context.Context) error { f.updated++; return nil }
func (f *fakeSource) Download(ctx context.Context, id core.PackageID) (*source.Package, error) {
	return nil, nil
}
func (f *fakeSource) Fingerprint(pkg *source.Package) (string, error) { return "", nil }
func (f *fakeSource) Verify(ctx context.Context, id core.PackageID) error { return nil }
func (f *fakeSource) SupportsChecksums() bool                            { return false }

func mustSummary(t *testing.T, name, ver string, sid core.SourceID) core.Summary {
	t.Helper()
	id, err := core.NewPackageID(name, ver, sid)
	if err != nil {
		t.Fatal(err)
	}
	return core.Summary{ID: id}
}

func TestQueryAppliesOverrideAndUpdatesOnce(t *testing.T) {
	sid := core.NewRegistrySourceID("https://example.com/index")
	real := &fakeSource{id: sid, summaries: []core.Summary{mustSummary(t, "foo", "1.0.0", sid)}}

	sources := source.NewMap()
	sources.Insert(real)
	r := New(sources)

	dep, err := core.NewDependency("foo", "^1.0")
	if err != nil {
		t.Fatal(err)
	}
	dep.HasSourceOverride = true
	dep.SourceOverride = sid

	for i := 0; i < 3; i++ {
		if _, err := r.Query(context.Background(), dep); err != nil {
			t.Fatal(err)
		}
	}
	if real.updated != 1 {
		t.Errorf("expected exactly one Update call, got %d", real.updated)
	}
}

func TestLockOverlayRewritesSummaryID(t *testing.T) {
	sid := core.NewRegistrySourceID("https://example.com/index")
	fresh := mustSummary(t, "foo", "1.0.0", sid)
	real := &fakeSource{id: sid, summaries: []core.Summary{fresh}}

	sources := source.NewMap()
	sources.Insert(real)
	r := New(sources)

	locked, err := core.NewPackageID("foo", "1.0.0", sid.WithPrecise("deadbeef"))
	if err != nil {
		t.Fatal(err)
	}
	r.LoadLockfile([]core.PackageID{locked}, nil)

	dep, err := core.NewDependency("foo", "^1.0")
	if err != nil {
		t.Fatal(err)
	}
	dep.HasSourceOverride = true
	dep.SourceOverride = sid

	summaries, err := r.Query(context.Background(), dep)
	if err != nil {
		t.Fatal(err)
	}
	if len(summaries) != 1 {
		t.Fatalf("expected 1 summary, got %d", len(summaries))
	}
	if summaries[0].ID.SourceID().Precise != "deadbeef" {
		t.Errorf("expected locked precise pin to be applied, got %q", summaries[0].ID.SourceID().Precise)
	}
}

func TestLockedVersionReportsPriorPin(t *testing.T) {
	sid := core.NewRegistrySourceID("https://example.com/index")
	sources := source.NewMap()
	r := New(sources)

	dep, err := core.NewDependency("foo", "^1.0")
	if err != nil {
		t.Fatal(err)
	}
	dep.HasSourceOverride = true
	dep.SourceOverride = sid

	if _, ok := r.LockedVersion(dep); ok {
		t.Fatal("expected no locked version before LoadLockfile")
	}

	locked, err := core.NewPackageID("foo", "1.0.0", sid)
	if err != nil {
		t.Fatal(err)
	}
	r.LoadLockfile([]core.PackageID{locked}, nil)

	got, ok := r.LockedVersion(dep)
	if !ok {
		t.Fatal("expected a locked version after LoadLockfile")
	}
	if !got.Equal(locked) {
		t.Errorf("got %v, want %v", got, locked)
	}
}

func TestResolveSpecAmbiguous(t *testing.T) {
	sidA := core.NewRegistrySourceID("https://a.example.com/index")
	sidB := core.NewRegistrySourceID("https://b.example.com/index")
	a, _ := core.NewPackageID("foo", "1.0.0", sidA)
	b, _ := core.NewPackageID("foo", "1.0.0", sidB)

	spec, err := core.ParsePackageIDSpec("foo")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ResolveSpec(spec, []core.PackageID{a, b}); err == nil {
		t.Error("expected ambiguity error for two differently-sourced matches")
	}

	specWithURL, err := core.ParsePackageIDSpec("foo@a.example.com")
	if err != nil {
		t.Fatal(err)
	}
	got, err := ResolveSpec(specWithURL, []core.PackageID{a, b})
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(a) {
		t.Errorf("expected url-qualified spec to disambiguate to %v, got %v", a, got)
	}
}
