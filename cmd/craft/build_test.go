package main

import (
	"os"
	"testing"

	"github.com/craftpkg/craft/internal/core"
)

func TestEnvOrFallsBackToDefault(t *testing.T) {
	const key = "CRAFT_TEST_ENV_OR"
	os.Unsetenv(key)
	if got := envOr(key, "fallback"); got != "fallback" {
		t.Fatalf("envOr with unset var = %q, want fallback", got)
	}
	os.Setenv(key, "set")
	defer os.Unsetenv(key)
	if got := envOr(key, "fallback"); got != "set" {
		t.Fatalf("envOr with set var = %q, want set", got)
	}
}

func mustPackageID(t *testing.T, name, ver string, sid core.SourceID) core.PackageID {
	t.Helper()
	id, err := core.NewPackageID(name, ver, sid)
	if err != nil {
		t.Fatal(err)
	}
	return id
}

func TestIsRootPathPackage(t *testing.T) {
	pathID := mustPackageID(t, "app", "0.1.0", core.NewPathSourceID("."))
	registryID := mustPackageID(t, "zlib", "1.3.0", core.NewRegistrySourceID(core.DefaultRegistryURL))

	b := &builder{memberRoot: map[string]bool{pathID.Key(): true}}

	if !b.isRootPathPackage(pathID) {
		t.Fatal("expected the workspace-member path package to be a root path package")
	}
	if b.isRootPathPackage(registryID) {
		t.Fatal("a registry-sourced dependency is never a root path package")
	}
}

func TestPkgDirFallsBackToRootDir(t *testing.T) {
	id := mustPackageID(t, "app", "0.1.0", core.NewPathSourceID("."))
	b := &builder{rootDir: "/ws", pkgDirs: map[string]string{id.Key(): "/ws/crates/app"}}

	if got := b.pkgDir(id); got != "/ws/crates/app" {
		t.Fatalf("pkgDir = %q, want the mapped directory", got)
	}

	other := mustPackageID(t, "other", "0.1.0", core.NewPathSourceID("."))
	if got := b.pkgDir(other); got != "/ws" {
		t.Fatalf("pkgDir for an unmapped package = %q, want rootDir fallback", got)
	}
}

func TestManifestForMissingReturnsError(t *testing.T) {
	id := mustPackageID(t, "missing", "0.1.0", core.NewPathSourceID("."))
	if _, err := manifestFor(map[string]core.Manifest{}, id); err == nil {
		t.Fatal("expected an error for a package with no loaded manifest")
	}
}
