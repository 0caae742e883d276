package buildscript

import (
	"fmt"
	"sort"
	"strings"
)

// EnvInputs bundles everything BuildEnv needs to assemble a script's
// invocation environment (spec §4.6 step 2).
type EnvInputs struct {
	OutDir       string
	ManifestDir  string
	HostTriple   string
	TargetTriple string
	Features     []string
	Metadata     map[string]string            // this package's [package.metadata]
	DepOutputs   map[string]Output             // link name -> producing dependency's parsed Output
	ProfileOpt   string                        // e.g. "0", "2", "3", "s"
	DebugInfo    bool
}

// BuildEnv renders the process environment (as "KEY=VALUE" strings, the
// shape os/exec.Cmd.Env expects) a build-script binary runs with.
func BuildEnv(in EnvInputs) []string {
	env := map[string]string{
		"OUT_DIR":            in.OutDir,
		"CARGO_MANIFEST_DIR": in.ManifestDir,
		"HOST":               in.HostTriple,
		"TARGET":             in.TargetTriple,
		"OPT_LEVEL":          in.ProfileOpt,
	}
	if in.DebugInfo {
		env["DEBUG"] = "true"
	} else {
		env["DEBUG"] = "false"
	}

	for _, f := range in.Features {
		key := "CARGO_FEATURE_" + strings.ToUpper(strings.ReplaceAll(strings.ReplaceAll(f, "-", "_"), " ", "_"))
		env[key] = "1"
	}

	for k, v := range in.Metadata {
		env["CARGO_METADATA_"+strings.ToUpper(k)] = v
	}

	links := make([]string, 0, len(in.DepOutputs))
	for link := range in.DepOutputs {
		links = append(links, link)
	}
	sort.Strings(links)
	for _, link := range links {
		for k, v := range in.DepOutputs[link].DepMetadata(link) {
			env[k] = v
		}
	}

	out := make([]string, 0, len(env))
	for _, k := range sortedKeys(env) {
		out = append(out, fmt.Sprintf("%s=%s", k, env[k]))
	}
	return out
}

// LinkFlags renders the linker/search-path flags a run_custom_build unit's
// Output contributes to its owning package's own compile command (as
// distinct from what's exported to consumers via DepMetadata).
func (o Output) LinkFlags() []string {
	var flags []string
	for _, s := range o.LinkSearch {
		flags = append(flags, "-L"+s.Path)
	}
	for _, l := range o.LinkLibs {
		flags = append(flags, "-l"+l.Name)
	}
	flags = append(flags, o.Flags...)
	return flags
}

// CfgArgs renders rustc-cfg declarations as compiler -D/-DCFG-style defines,
// craft's C-compiler analogue of rustc's --cfg flag.
func (o Output) CfgArgs() []string {
	args := make([]string, 0, len(o.Cfgs))
	for _, c := range o.Cfgs {
		args = append(args, "-D"+c)
	}
	return args
}
