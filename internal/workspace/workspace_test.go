package workspace

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/craftpkg/craft/internal/core"
	"github.com/craftpkg/craft/internal/lockfile"
)

func TestLocateRootFindsAncestorManifest(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "Craft.toml"), []byte("[package]\nname=\"a\"\nversion=\"0.1.0\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	nested := filepath.Join(root, "src", "inner")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}
	got, err := LocateRoot(nested)
	if err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(root, "Craft.toml")
	if got != want {
		t.Errorf("LocateRoot() = %q, want %q", got, want)
	}
}

func TestLocateRootErrorsWhenNotFound(t *testing.T) {
	if _, err := LocateRoot(t.TempDir()); err == nil {
		t.Error("expected an error when no Craft.toml exists in any ancestor")
	}
}

func TestStalenessCheckDetectsUnsatisfiedRequirement(t *testing.T) {
	sid := core.NewRegistrySourceID("https://example.com/index")
	dep, err := core.NewDependency("b", "^2")
	if err != nil {
		t.Fatal(err)
	}
	aID, _ := core.NewPackageID("a", "0.1.0", sid)
	ws := &Workspace{Members: []Member{{Manifest: core.Manifest{Summary: core.Summary{ID: aID, Dependencies: []core.Dependency{dep}}}}}}

	lockedB, _ := core.NewPackageID("b", "1.0.0", sid)
	lf := &lockfile.Lockfile{Packages: []core.PackageID{lockedB}, Deps: map[string][]core.PackageID{}}

	stale, reason := StalenessCheck(ws, lf)
	if !stale {
		t.Error("expected staleness when locked version no longer satisfies the manifest requirement")
	}
	if reason == "" {
		t.Error("expected a non-empty reason")
	}
}

func TestStalenessCheckNilLockfileIsStale(t *testing.T) {
	stale, _ := StalenessCheck(&Workspace{}, nil)
	if !stale {
		t.Error("expected a missing lockfile to be reported stale")
	}
}
