package buildctx

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/craftpkg/craft/internal/core"
)

// ProbeCompiler invokes cc once per candidate crate type with
// "--print=file-names" to learn the prefix/suffix each supported type
// produces, and once with "--print=cfg" to learn the target's cfg set
// (spec §4.4, "Compiler probing"). Unsupported crate types are recorded,
// not treated as an error — they only fail the build if actually requested
// by a manifest.
func ProbeCompiler(ctx context.Context, cc string, candidateTypes []core.LibKind) (CompilerProbe, error) {
	probe := CompilerProbe{
		SupportedCrateTypes: map[core.LibKind]crateTypeInfo{},
		Cfg:                 map[string]string{},
	}

	for _, kind := range candidateTypes {
		out, err := exec.CommandContext(ctx, cc, "--print=file-names", "--crate-type="+string(kind)).Output()
		if err != nil {
			continue // crate type unsupported by this compiler; recorded by simple absence
		}
		prefix, suffix := splitStem(strings.TrimSpace(string(out)))
		probe.SupportedCrateTypes[kind] = crateTypeInfo{Prefix: prefix, Suffix: suffix}
	}

	out, err := exec.CommandContext(ctx, cc, "--print=cfg").Output()
	if err != nil {
		return probe, fmt.Errorf("probing %s --print=cfg: %w", cc, err)
	}
	sc := bufio.NewScanner(strings.NewReader(string(out)))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		key, val, hasVal := strings.Cut(line, "=")
		if hasVal {
			probe.Cfg[key] = strings.Trim(val, `"`)
		} else {
			probe.Cfg[key] = ""
		}
	}
	return probe, nil
}

// splitStem splits a probed "libfoo.a"-style file-name template (with the
// literal crate name replaced by "stem" in the compiler's own output) into
// its constant prefix/suffix.
func splitStem(template string) (prefix, suffix string) {
	idx := strings.Index(template, "stem")
	if idx < 0 {
		return "", template
	}
	return template[:idx], template[idx+len("stem"):]
}

// RequireCrateType errors if kind was requested by a manifest but the
// compiler probe found no support for it.
func (c *Context) RequireCrateType(kind core.LibKind) error {
	if _, ok := c.Probe.SupportedCrateTypes[kind]; !ok {
		return fmt.Errorf("compiler does not support crate type %q", kind)
	}
	return nil
}
