package core

// Summary is the resolver-visible projection of a package: just enough to
// drive resolution without downloading the full package (spec §3).
type Summary struct {
	ID           PackageID
	Dependencies []Dependency

	// Features maps a feature name to the list of other features/optional
	// dependencies it activates (spec §4.3, "Features are activated
	// transitively").
	Features map[string][]string

	// Checksum is set when the originating source supports checksums
	// (registry/directory sources); empty otherwise.
	Checksum string
}

// OptionalDependencyNames returns the names of this summary's optional
// dependencies, used by the resolver to know which dependencies start
// inactive (spec §4.3).
func (s Summary) OptionalDependencyNames() []string {
	var out []string
	for _, d := range s.Dependencies {
		if d.Optional {
			out = append(out, d.Name)
		}
	}
	return out
}

// HasFeature reports whether name is a declared feature or an optional
// dependency name (Cargo treats `dep:foo` / `foo/bar` syntax as activating
// feature "foo" implicitly when "foo" is an optional dependency).
func (s Summary) HasFeature(name string) bool {
	if _, ok := s.Features[name]; ok {
		return true
	}
	for _, d := range s.Dependencies {
		if d.Optional && d.Name == name {
			return true
		}
	}
	return false
}
