package registry

import (
	"fmt"

	"github.com/craftpkg/craft/internal/core"
)

// ResolveSpec resolves a PackageIDSpec (the "name[:version][@url]" grammar
// used by -p flags and [replace] keys) against the package ids a prior
// resolution produced, erroring with an ambiguity message listing every
// match when more than one candidate satisfies the spec — supplementing
// the base spec per SPEC_FULL.md §C.3, grounded on
// original_source/src/ops/cargo_pkgid.rs's disambiguation behavior.
func ResolveSpec(spec core.PackageIDSpec, candidates []core.PackageID) (core.PackageID, error) {
	var matches []core.PackageID
	for _, id := range candidates {
		if spec.Matches(id) {
			matches = append(matches, id)
		}
	}
	switch len(matches) {
	case 0:
		return core.PackageID{}, fmt.Errorf("package id specification %q matched no packages", spec)
	case 1:
		return matches[0], nil
	default:
		return core.PackageID{}, fmt.Errorf("%q is ambiguous: matches %s", spec, formatAmbiguous(matches))
	}
}

func formatAmbiguous(ids []core.PackageID) string {
	out := ""
	for i, id := range ids {
		if i > 0 {
			out += ", "
		}
		out += id.String()
	}
	return out
}
