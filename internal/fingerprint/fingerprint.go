// Package fingerprint computes and compares per-unit freshness keys and
// manages the on-disk `.fingerprint/<pkg>-<meta>/{fingerprint,dep-info}`
// state the scheduler consults before deciding to run a unit (spec §4.5,
// component H).
package fingerprint

import (
	"fmt"
	"sort"
	"strings"

	"github.com/craftpkg/craft/internal/core"
)

// Local is the unit-kind-specific portion of a Fingerprint (spec §4.5,
// "Local portion is one of..."): either a single source file's mtime, a
// build-script-declared rerun-trigger set, or a source-reported package
// fingerprint string.
type Local struct {
	// SourceMtime is set for library/bin/test/bench/example units: the
	// mtime of the target's primary source file, formatted by the caller
	// (RFC3339Nano of os.FileInfo.ModTime, matching the teacher's own
	// mtime-as-string convention in its PathSource fingerprint).
	SourceMtime string

	// RerunIfChanged/RerunIfEnvChanged hold a run_custom_build unit's
	// declared triggers (spec §4.6): paths and env var names the previous
	// script invocation asked to be re-run on.
	RerunIfChanged    []string
	RerunIfEnvChanged []string

	// PackageFingerprint is the source-reported fingerprint string (spec
	// §3: "fingerprint(package) -> String") for path/git-sourced packages.
	PackageFingerprint string
}

func (l Local) key() string {
	var b strings.Builder
	b.WriteString(l.SourceMtime)
	b.WriteByte(0)
	b.WriteString(strings.Join(sortedCopy(l.RerunIfChanged), ","))
	b.WriteByte(0)
	b.WriteString(strings.Join(sortedCopy(l.RerunIfEnvChanged), ","))
	b.WriteByte(0)
	b.WriteString(l.PackageFingerprint)
	return b.String()
}

func sortedCopy(in []string) []string {
	out := append([]string(nil), in...)
	sort.Strings(out)
	return out
}

// Inputs bundles everything Compute needs beyond the Unit itself (spec
// §4.5: "profile, compiler version, dependency fingerprints, feature set,
// target-triple, rustflags" plus the Local portion above).
type Inputs struct {
	CompilerVersion string
	CompilerFlags   []string // the project's CFLAGS-equivalent, role of rustflags
	Features        []string
	TargetTriple    string
	DepFingerprints []string // this unit's direct dependencies' computed hashes
	Local           Local
}

// Compute derives the stable per-unit freshness hash (spec §4.5).
func Compute(u core.Unit, in Inputs) string {
	var b strings.Builder
	fmt.Fprintf(&b, "profile=%s/%s/%s/%v/%v/%d",
		u.Profile.Name, u.Profile.OptLevel, u.Profile.Panic,
		u.Profile.DebugInfo, u.Profile.LTO, u.Profile.CodegenUnits)
	b.WriteByte(0)
	b.WriteString("target=" + u.Target.Kind.String() + "/" + u.Target.Name)
	b.WriteByte(0)
	b.WriteString("compiler=" + in.CompilerVersion)
	b.WriteByte(0)
	b.WriteString("flags=" + strings.Join(in.CompilerFlags, " "))
	b.WriteByte(0)
	b.WriteString("triple=" + in.TargetTriple)
	b.WriteByte(0)
	b.WriteString("features=" + strings.Join(sortedCopy(in.Features), ","))
	b.WriteByte(0)
	b.WriteString("deps=" + strings.Join(sortedCopy(in.DepFingerprints), ","))
	b.WriteByte(0)
	b.WriteString("local=" + in.Local.key())
	return core.ShortHash(b.String())
}
