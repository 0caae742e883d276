// Package ccdriver assembles a compiler command line from a unit and its
// build context (spec §4.8, component K), grounded on
// distr1-distri/internal/build/build.go's own exec.CommandContext
// invocation style (argv assembly, then a single exec.CommandContext call
// with captured stdout/stderr) and distr1-distri/internal/build/buildc.go's
// flag-precedence handling for builder-supplied extra flags.
package ccdriver

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/craftpkg/craft/internal/buildctx"
	"github.com/craftpkg/craft/internal/buildscript"
	"github.com/craftpkg/craft/internal/core"
)

// FlagSources bundles the three CFLAGS-equivalent precedence levels (spec
// §4.8: "environment > target.<triple>.cflags > build.cflags").
type FlagSources struct {
	Env          []string
	TargetCflags []string
	BuildCflags  []string
}

func (f FlagSources) merged() []string {
	var out []string
	out = append(out, f.BuildCflags...)
	out = append(out, f.TargetCflags...)
	out = append(out, f.Env...)
	return out
}

// Extern is one `--extern name=path` input: a dependency's already-built
// primary artifact.
type Extern struct {
	Name string
	Path string
}

// Inputs bundles everything BuildCommand needs besides the unit and
// compiler binary itself.
type Inputs struct {
	CC          string
	Unit        core.Unit
	Layout      buildctx.Layout
	WorkDir     string // CWD the driver will run cc from; source path is relativized to this
	MetadataHash string
	Externs     []Extern
	Features    []string
	ScriptOutput *buildscript.Output // nil if the package has no build script, or it hasn't run yet

	// ProducerLinkSearch is the rustc-link-search paths contributed by every
	// links=<name>-declaring dependency's own build script (spec §4.8 /
	// scenario S4: "c's compile receives -L /opt/z/lib"). Unlike
	// ScriptOutput.LinkLibs ("-l", scoped to the package that owns the
	// build script), a producer's search paths do reach every consumer.
	ProducerLinkSearch []string

	Flags  FlagSources
	CanLTO bool
}

// BuildCommand renders the full argv (excluding argv[0], which is
// in.CC) for compiling one unit (spec §4.8).
func BuildCommand(in Inputs) ([]string, error) {
	u := in.Unit
	var args []string

	src := u.Target.SrcPath
	if rel, err := filepath.Rel(in.WorkDir, src); err == nil && !strings.HasPrefix(rel, "..") {
		src = rel
	}
	args = append(args, src)

	args = append(args, "--crate-name", u.Target.Name)
	for _, k := range u.Target.LibKinds {
		args = append(args, "--crate-type", string(k))
	}
	args = append(args, "--emit=dep-info,link")
	// Every unit's primary artifact lands in deps/; HardLinkToPrimary then
	// promotes a root package's own binaries and libraries up to the
	// profile root (spec
	// §4.7's ordering-guarantees paragraph).
	args = append(args, "--out-dir", in.Layout.DepsDir())
	args = append(args, "-C", "metadata="+in.MetadataHash)
	args = append(args, "-C", "extra-filename=-"+in.MetadataHash)

	args = append(args, "-L", "dependency="+in.Layout.DepsDir())
	producerSearch := append([]string(nil), in.ProducerLinkSearch...)
	sort.Strings(producerSearch)
	for _, p := range producerSearch {
		args = append(args, "-L", p)
	}
	sortedExterns := append([]Extern(nil), in.Externs...)
	sort.Slice(sortedExterns, func(i, j int) bool { return sortedExterns[i].Name < sortedExterns[j].Name })
	for _, e := range sortedExterns {
		args = append(args, "--extern", fmt.Sprintf("%s=%s", e.Name, e.Path))
	}

	args = append(args, profileFlags(u.Profile, in.CanLTO, u.Target.LibKinds)...)

	features := append([]string(nil), in.Features...)
	sort.Strings(features)
	for _, f := range features {
		args = append(args, "--cfg", fmt.Sprintf(`feature="%s"`, f))
	}

	if in.ScriptOutput != nil {
		for _, s := range in.ScriptOutput.LinkSearch {
			args = append(args, "-L", s.Path)
		}
		for _, c := range in.ScriptOutput.Cfgs {
			args = append(args, "--cfg", c)
		}
		// -l entries only apply to the package that owns the build script,
		// never propagated to consumers (spec §4.8, "for the package itself
		// only, not its consumers").
		for _, l := range in.ScriptOutput.LinkLibs {
			args = append(args, "-l", l.Name)
		}
	}

	args = append(args, in.Flags.merged()...)

	return args, nil
}

func profileFlags(p core.Profile, canLTO bool, libKinds []core.LibKind) []string {
	var args []string
	args = append(args, "-C", "opt-level="+string(p.OptLevel))
	if p.DebugInfo {
		args = append(args, "-g")
	}
	if p.DebugAssertions {
		args = append(args, "-C", "debug-assertions=on")
	} else {
		args = append(args, "-C", "debug-assertions=off")
	}
	if canLTO && p.LTO {
		args = append(args, "-C", "lto")
	} else if p.CodegenUnits > 0 {
		args = append(args, "-C", fmt.Sprintf("codegen-units=%d", p.CodegenUnits))
	}
	if p.Panic != "" {
		args = append(args, "-C", "panic="+p.Panic)
	}
	// "-C prefer-dynamic when appropriate" (spec §4.8) is scoped here to
	// non-release shared-library builds: dev builds relink often enough
	// that a dynamic libstd-equivalent saves real time, release builds
	// want the static default.
	if p.Name != "release" && hasLibKind(libKinds, core.LibShared) {
		args = append(args, "-C", "prefer-dynamic")
	}
	if p.RPath {
		args = append(args, "-C", "rpath")
	}
	return args
}

func hasLibKind(kinds []core.LibKind, want core.LibKind) bool {
	for _, k := range kinds {
		if k == want {
			return true
		}
	}
	return false
}
