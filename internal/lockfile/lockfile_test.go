package lockfile

import (
	"path/filepath"
	"testing"

	"github.com/craftpkg/craft/internal/core"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	sid := core.NewRegistrySourceID("https://example.com/index")
	a, err := core.NewPackageID("a", "0.1.0", sid)
	if err != nil {
		t.Fatal(err)
	}
	b, err := core.NewPackageID("b", "1.1.0", sid)
	if err != nil {
		t.Fatal(err)
	}

	lf := &Lockfile{
		Packages: []core.PackageID{a, b},
		Deps:     map[string][]core.PackageID{a.Key(): {b}},
		Checksum: map[string]string{b.Key(): "deadbeef"},
	}

	path := filepath.Join(t.TempDir(), FileName)
	if err := lf.Save(path); err != nil {
		t.Fatal(err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded == nil {
		t.Fatal("expected non-nil lockfile")
	}
	if len(loaded.Packages) != 2 {
		t.Fatalf("expected 2 packages, got %d", len(loaded.Packages))
	}
	deps := loaded.Deps[a.Key()]
	if len(deps) != 1 || deps[0].Name() != "b" {
		t.Errorf("expected a to depend on b, got %v", deps)
	}
	if loaded.Checksum[b.Key()] != "deadbeef" {
		t.Errorf("expected checksum to round-trip, got %q", loaded.Checksum[b.Key()])
	}
}

func TestLoadMissingFileReturnsNilNoError(t *testing.T) {
	lf, err := Load(filepath.Join(t.TempDir(), "does-not-exist.lock"))
	if err != nil {
		t.Fatal(err)
	}
	if lf != nil {
		t.Error("expected nil lockfile for missing file")
	}
}
