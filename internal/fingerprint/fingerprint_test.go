package fingerprint

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/craftpkg/craft/internal/core"
)

func testUnit(t *testing.T) core.Unit {
	t.Helper()
	sid := core.NewRegistrySourceID("https://example.com/index")
	id, err := core.NewPackageID("a", "0.1.0", sid)
	if err != nil {
		t.Fatal(err)
	}
	return core.Unit{
		Package: id,
		Target:  core.Target{Kind: core.TargetLib, Name: "a"},
		Profile: core.DefaultProfiles()["dev"],
		Kind:    core.TargetArch,
	}
}

func TestComputeIsDeterministicAndSensitiveToInputs(t *testing.T) {
	u := testUnit(t)
	in := Inputs{
		CompilerVersion: "cc 12.0",
		Features:        []string{"b", "a"},
		TargetTriple:    "x86_64-linux-gnu",
		DepFingerprints: []string{"dep1hash"},
		Local:           Local{SourceMtime: "2024-01-01T00:00:00Z"},
	}
	h1 := Compute(u, in)
	h2 := Compute(u, in)
	if h1 != h2 {
		t.Fatalf("Compute not deterministic: %s vs %s", h1, h2)
	}

	in.Features = []string{"a", "b"} // same set, different order
	if Compute(u, in) != h1 {
		t.Fatalf("feature order should not affect hash")
	}

	in.Local.SourceMtime = "2024-02-02T00:00:00Z"
	if Compute(u, in) == h1 {
		t.Fatalf("changing local mtime should change hash")
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	if err := Write(dir, "abc123"); err != nil {
		t.Fatal(err)
	}
	got, err := Read(dir)
	if err != nil {
		t.Fatal(err)
	}
	if got != "abc123" {
		t.Fatalf("got %q, want abc123", got)
	}
}

func TestReadMissingReturnsEmptyNoError(t *testing.T) {
	got, err := Read(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if got != "" {
		t.Fatalf("expected empty, got %q", got)
	}
}

func TestFreshDetectsHashMismatch(t *testing.T) {
	dir := t.TempDir()
	if err := Write(dir, "h1"); err != nil {
		t.Fatal(err)
	}
	fresh, err := Fresh(dir, "h2")
	if err != nil {
		t.Fatal(err)
	}
	if fresh {
		t.Fatal("expected dirty on hash mismatch")
	}
}

func TestFreshDetectsStaleDepInfoPath(t *testing.T) {
	dir := t.TempDir()
	depFile := filepath.Join(t.TempDir(), "lib.c")
	if err := os.WriteFile(depFile, []byte("int x;"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := Write(dir, "h1"); err != nil {
		t.Fatal(err)
	}
	if err := WriteDepInfo(dir, "out.o: "+depFile); err != nil {
		t.Fatal(err)
	}

	fresh, err := Fresh(dir, "h1")
	if err != nil {
		t.Fatal(err)
	}
	if !fresh {
		t.Fatal("expected fresh immediately after write")
	}

	// Touch the dep file after the fingerprint was written.
	later := time.Now().Add(time.Hour)
	if err := os.Chtimes(depFile, later, later); err != nil {
		t.Fatal(err)
	}

	fresh, err = Fresh(dir, "h1")
	if err != nil {
		t.Fatal(err)
	}
	if fresh {
		t.Fatal("expected dirty after modifying a dep-info path")
	}
}

func TestRelativizeDepInfoMakesPathsRelative(t *testing.T) {
	cwd := "/work/proj"
	contents := "liba.a: /work/proj/src/lib.c /work/proj/src/inc.h"
	got := RelativizeDepInfo(contents, cwd)
	want := "liba.a: src/lib.c src/inc.h"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestDepPathsHandlesLineContinuation(t *testing.T) {
	contents := "out.o: a.c \\\n  b.h \\\n  c.h\n"
	got := DepPaths(contents)
	want := []string{"a.c", "b.h", "c.h"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}
