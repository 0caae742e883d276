// Package buildscript runs a package's already-compiled custom-build script
// and parses and persists its output (spec §4.6, component I), grounded on
// original_source/src/util/machine_message.rs's "one line, one message"
// framing (there used for compiler-to-cargo JSON; reused here for the
// inverse build-script-to-craft text framing) and on
// distr1-distri/cmd/zi/zi.go's environment-assembly style.
package buildscript

import (
	"bufio"
	"fmt"
	"sort"
	"strings"
)

// LinkLib is one `rustc-link-lib=[kind=]name` declaration.
type LinkLib struct {
	Kind string // "", "static", "dylib", "framework"
	Name string
}

// LinkSearch is one `rustc-link-search=[kind=]path` declaration.
type LinkSearch struct {
	Kind string
	Path string
}

// Output is everything a build script's stdout can contribute (spec §4.6
// step 3).
type Output struct {
	LinkLibs    []LinkLib
	LinkSearch  []LinkSearch
	Flags       []string
	Cfgs        []string
	Env         map[string]string // rustc-env=k=v
	RerunIfChanged    []string
	RerunIfEnvChanged []string
	Warnings    []string

	// Metadata holds every bare "key=value" line, keyed by "key"; only
	// consumed by downstream packages as DEP_<LINK>_<KEY> when this
	// package's manifest declares a matching Links value (spec §4.6,
	// last paragraph).
	Metadata map[string]string
}

// Parse reads a build script's captured stdout line by line. Lines not
// starting with "cargo:" are ignored (a script may print ordinary debug
// output that isn't part of the protocol).
func Parse(stdout string) Output {
	out := Output{Env: map[string]string{}, Metadata: map[string]string{}}
	sc := bufio.NewScanner(strings.NewReader(stdout))
	for sc.Scan() {
		line := sc.Text()
		rest, ok := strings.CutPrefix(line, "cargo:")
		if !ok {
			continue
		}
		key, val, hasEq := strings.Cut(rest, "=")
		if !hasEq {
			out.Warnings = append(out.Warnings, fmt.Sprintf("malformed directive: %s", line))
			continue
		}
		switch key {
		case "rustc-link-lib":
			kind, name := splitKind(val)
			out.LinkLibs = append(out.LinkLibs, LinkLib{Kind: kind, Name: name})
		case "rustc-link-search":
			kind, path := splitKind(val)
			out.LinkSearch = append(out.LinkSearch, LinkSearch{Kind: kind, Path: path})
		case "rustc-flags":
			out.Flags = append(out.Flags, strings.Fields(val)...)
		case "rustc-cfg":
			out.Cfgs = append(out.Cfgs, val)
		case "rustc-env":
			k, v, _ := strings.Cut(val, "=")
			out.Env[k] = v
		case "rerun-if-changed":
			out.RerunIfChanged = append(out.RerunIfChanged, val)
		case "rerun-if-env-changed":
			out.RerunIfEnvChanged = append(out.RerunIfEnvChanged, val)
		case "warning":
			out.Warnings = append(out.Warnings, val)
		default:
			out.Metadata[key] = val
		}
	}
	return out
}

// splitKind splits a "[kind=]value" directive argument.
func splitKind(s string) (kind, value string) {
	if k, v, ok := strings.Cut(s, "="); ok && isKnownKind(k) {
		return k, v
	}
	return "", s
}

func isKnownKind(k string) bool {
	switch k {
	case "static", "dylib", "framework", "native", "crate", "dependency", "all":
		return true
	default:
		return false
	}
}

// DepMetadata renders this output's bare-metadata entries as the
// DEP_<LINK>_<KEY> environment variables a consumer of a links=<link>
// package receives (spec §4.6, last paragraph).
func (o Output) DepMetadata(link string) map[string]string {
	env := map[string]string{}
	upperLink := strings.ToUpper(strings.ReplaceAll(link, "-", "_"))
	for k, v := range o.Metadata {
		upperKey := strings.ToUpper(strings.ReplaceAll(k, "-", "_"))
		env[fmt.Sprintf("DEP_%s_%s", upperLink, upperKey)] = v
	}
	return env
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
