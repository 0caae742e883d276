package ccdriver

import (
	"strings"
	"testing"

	"github.com/craftpkg/craft/internal/buildctx"
	"github.com/craftpkg/craft/internal/buildscript"
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
		Target:  core.Target{Kind: core.TargetLib, Name: "a", SrcPath: "src/lib.c", LibKinds: []core.LibKind{core.LibStatic}},
		Profile: core.DefaultProfiles()["dev"],
		Kind:    core.TargetArch,
	}
}

func TestBuildCommandIncludesCoreFlags(t *testing.T) {
	u := testUnit(t)
	in := Inputs{
		CC:           "cc",
		Unit:         u,
		Layout:       buildctx.Layout{Root: "target/debug"},
		WorkDir:      ".",
		MetadataHash: "deadbeef",
		Externs:      []Extern{{Name: "b", Path: "target/debug/deps/libb.a"}},
		Features:     []string{"ssl"},
	}
	args, err := BuildCommand(in)
	if err != nil {
		t.Fatal(err)
	}
	joined := strings.Join(args, " ")

	for _, want := range []string{
		"--crate-name a",
		"--crate-type static",
		"--emit=dep-info,link",
		"-C metadata=deadbeef",
		"-C extra-filename=-deadbeef",
		"--extern b=target/debug/deps/libb.a",
		`--cfg feature="ssl"`,
		"-C opt-level=0",
	} {
		if !strings.Contains(joined, want) {
			t.Errorf("expected args to contain %q, got: %s", want, joined)
		}
	}
}

func TestBuildCommandAppliesBuildScriptContributions(t *testing.T) {
	u := testUnit(t)
	out := buildscript.Output{
		LinkSearch: []buildscript.LinkSearch{{Path: "/opt/z/lib"}},
		LinkLibs:   []buildscript.LinkLib{{Name: "z"}},
		Cfgs:       []string{"has_z"},
	}
	in := Inputs{
		CC:           "cc",
		Unit:         u,
		Layout:       buildctx.Layout{Root: "target/debug"},
		WorkDir:      ".",
		MetadataHash: "h",
		ScriptOutput: &out,
	}
	args, err := BuildCommand(in)
	if err != nil {
		t.Fatal(err)
	}
	joined := strings.Join(args, " ")
	for _, want := range []string{"-L /opt/z/lib", "--cfg has_z", "-l z"} {
		if !strings.Contains(joined, want) {
			t.Errorf("expected args to contain %q, got: %s", want, joined)
		}
	}
}

func TestProducerLinkSearchReachesConsumerButNotLinkLibs(t *testing.T) {
	u := testUnit(t)
	in := Inputs{
		CC:                 "cc",
		Unit:               u,
		Layout:             buildctx.Layout{Root: "target/debug"},
		WorkDir:            ".",
		MetadataHash:       "h",
		ProducerLinkSearch: []string{"/opt/z/lib"},
	}
	args, err := BuildCommand(in)
	if err != nil {
		t.Fatal(err)
	}
	joined := strings.Join(args, " ")
	if !strings.Contains(joined, "-L /opt/z/lib") {
		t.Errorf("expected a links producer's search path to reach the consumer's -L flags, got: %s", joined)
	}
	if strings.Contains(joined, "-l ") {
		t.Errorf("a links producer's -l flags must never reach a consumer, got: %s", joined)
	}
}

func TestFlagPrecedenceOrdersBuildBelowTargetBelowEnv(t *testing.T) {
	f := FlagSources{
		Env:          []string{"-DENV"},
		TargetCflags: []string{"-DTARGET"},
		BuildCflags:  []string{"-DBUILD"},
	}
	got := f.merged()
	want := []string{"-DBUILD", "-DTARGET", "-DENV"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}
