package buildscript

import (
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseRecognizesAllDirectives(t *testing.T) {
	stdout := `cargo:rustc-link-lib=static=z
cargo:rustc-link-search=native=/opt/z/lib
cargo:rustc-flags=-pthread
cargo:rustc-cfg=has_z
cargo:rustc-env=Z_BUILD=1
cargo:rerun-if-changed=build.c
cargo:rerun-if-env-changed=ZLIB_PATH
cargo:warning=using bundled zlib
cargo:Z_VERSION=2
some unrelated debug line
`
	out := Parse(stdout)

	if len(out.LinkLibs) != 1 || out.LinkLibs[0].Kind != "static" || out.LinkLibs[0].Name != "z" {
		t.Fatalf("unexpected link libs: %+v", out.LinkLibs)
	}
	if len(out.LinkSearch) != 1 || out.LinkSearch[0].Path != "/opt/z/lib" {
		t.Fatalf("unexpected link search: %+v", out.LinkSearch)
	}
	if diff := cmp.Diff([]string{"-pthread"}, out.Flags); diff != "" {
		t.Fatalf("unexpected flags (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"has_z"}, out.Cfgs); diff != "" {
		t.Fatalf("unexpected cfgs (-want +got):\n%s", diff)
	}
	if out.Env["Z_BUILD"] != "1" {
		t.Fatalf("expected rustc-env to set Z_BUILD=1, got %v", out.Env)
	}
	if diff := cmp.Diff([]string{"build.c"}, out.RerunIfChanged); diff != "" {
		t.Fatalf("unexpected rerun-if-changed (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"ZLIB_PATH"}, out.RerunIfEnvChanged); diff != "" {
		t.Fatalf("unexpected rerun-if-env-changed (-want +got):\n%s", diff)
	}
	if len(out.Warnings) != 1 || out.Warnings[0] != "using bundled zlib" {
		t.Fatalf("unexpected warnings: %v", out.Warnings)
	}
	if out.Metadata["Z_VERSION"] != "2" {
		t.Fatalf("expected bare key=value to land in Metadata, got %v", out.Metadata)
	}
}

func TestDepMetadataUppercasesLinkAndKey(t *testing.T) {
	out := Output{Metadata: map[string]string{"include": "/opt/z/include"}}
	env := out.DepMetadata("z")
	if env["DEP_Z_INCLUDE"] != "/opt/z/include" {
		t.Fatalf("got %v", env)
	}
}

func TestBuildEnvIncludesFeatureAndDepVars(t *testing.T) {
	in := EnvInputs{
		OutDir:       "/target/debug/build/a-1/out",
		ManifestDir:  "/src/a",
		HostTriple:   "x86_64-linux-gnu",
		TargetTriple: "x86_64-linux-gnu",
		Features:     []string{"ssl"},
		DepOutputs: map[string]Output{
			"z": {Metadata: map[string]string{"version": "1.2.3"}},
		},
	}
	env := BuildEnv(in)
	sort.Strings(env)

	want := map[string]bool{
		"OUT_DIR=/target/debug/build/a-1/out": true,
		"CARGO_MANIFEST_DIR=/src/a":            true,
		"CARGO_FEATURE_SSL=1":                  true,
		"DEP_Z_VERSION=1.2.3":                  true,
	}
	got := map[string]bool{}
	for _, kv := range env {
		got[kv] = true
	}
	for k := range want {
		if !got[k] {
			t.Fatalf("expected env to contain %q, got %v", k, env)
		}
	}
}

func TestSaveLoadOutputRoundTrip(t *testing.T) {
	dir := t.TempDir()
	out := Output{
		LinkLibs: []LinkLib{{Kind: "static", Name: "z"}},
		Env:      map[string]string{"A": "1"},
		Metadata: map[string]string{"version": "1.0"},
	}
	if err := SaveOutput(dir, out); err != nil {
		t.Fatal(err)
	}
	got, ok, err := LoadOutput(dir)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected output to be found")
	}
	if diff := cmp.Diff(out.LinkLibs, got.LinkLibs); diff != "" {
		t.Fatalf("link libs round trip mismatch (-want +got):\n%s", diff)
	}
	if got.Env["A"] != "1" || got.Metadata["version"] != "1.0" {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestLoadOutputMissingReturnsFalse(t *testing.T) {
	_, ok, err := LoadOutput(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected ok=false for missing output")
	}
}
