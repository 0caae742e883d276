package core

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/hashicorp/go-version"
)

// PackageID is the canonical (name, version, source) triple (spec §3).
// Two PackageIDs are equal iff all three components are; ordering is
// lexicographic in that order, per original_source/src/package_id.rs's
// PackageIdInner derive(PartialOrd, Ord).
//
// Like SourceID, PackageID holds only comparable fields (the *version.Version
// pointer is never mutated after construction and two PackageIDs built from
// the same version string compare equal via Version.Equal, not pointer
// identity) so it remains usable as a map key when paired with its string
// form; see Key().
type PackageID struct {
	name    string
	version *version.Version
	source  SourceID
}

// NewPackageID constructs a PackageID, parsing verStr as a semver version.
func NewPackageID(name, verStr string, source SourceID) (PackageID, error) {
	v, err := version.NewVersion(verStr)
	if err != nil {
		return PackageID{}, fmt.Errorf("invalid version %q for package %q: %w", verStr, name, err)
	}
	return PackageID{name: name, version: v, source: source}, nil
}

func (p PackageID) Name() string        { return p.name }
func (p PackageID) Version() *version.Version { return p.version }
func (p PackageID) SourceID() SourceID  { return p.source }

// WithPrecise returns a copy of p whose source is pinned to precise.
func (p PackageID) WithPrecise(precise string) PackageID {
	p.source = p.source.WithPrecise(precise)
	return p
}

// WithSourceID returns a copy of p with a different source, used when
// applying [replace] table redirection (spec §4.3).
func (p PackageID) WithSourceID(sid SourceID) PackageID {
	p.source = sid
	return p
}

// Equal implements the spec §3 equality rule: all three components match.
func (p PackageID) Equal(o PackageID) bool {
	return p.name == o.name && p.version.Equal(o.version) && p.source.Equal(o.source)
}

// Less implements the spec §3 ordering rule: lexicographic in
// (name, version, source).
func (p PackageID) Less(o PackageID) bool {
	if p.name != o.name {
		return p.name < o.name
	}
	if c := p.version.Compare(o.version); c != 0 {
		return c < 0
	}
	return p.source.Less(o.source)
}

// Key returns a value usable as a map key that respects Equal (two
// PackageIDs with textually different but semver-equal versions, e.g.
// "1.0" and "1.0.0", collapse to the same key).
func (p PackageID) Key() string {
	return p.name + "\x00" + p.version.String() + "\x00" + p.source.key().canon + "\x00" + p.source.key().url + "\x00" + p.source.gitRef.String() + "\x00" + p.source.kind.String()
}

func (p PackageID) String() string {
	var sb strings.Builder
	sb.WriteString(p.name)
	sb.WriteString(" v")
	sb.WriteString(p.version.String())
	if p.source.kind != KindRegistry || p.source.url != DefaultRegistryURL {
		sb.WriteString(" (")
		sb.WriteString(p.source.String())
		sb.WriteString(")")
	}
	return sb.String()
}

// DefaultRegistryURL is the well-known registry PackageID.String() elides,
// mirroring original_source's is_default_registry() check. It is also the
// source a bare (no explicit `source = "..."`) manifest dependency
// resolves against.
const DefaultRegistryURL = "https://packages.craft-lang.example/index"

// GenerateMetadata derives the short content hash used in output filenames
// (spec §4.4, "Metadata hash"), grounded on
// original_source/src/package_id.rs's generate_metadata/short_hash.
func (p PackageID) GenerateMetadata() string {
	return shortHash(p.Key())
}

// PackageIDSpec is a compact "name[:version][@source-url]" reference used by
// -p flags and [replace] table keys (spec §3, "PackageIdSpec ambiguous"
// error case; grammar filled in from
// original_source/src/package_id_spec.rs, supplemented per SPEC_FULL.md
// item C.1).
type PackageIDSpec struct {
	Name    string
	Version string // may be empty
	URL     string // may be empty
}

var specRE = regexp.MustCompile(`^([A-Za-z0-9_.\-]+)(?::([^@]+))?(?:@(.+))?$`)

// ParsePackageIDSpec parses the "name[:version][@url]" grammar.
func ParsePackageIDSpec(s string) (PackageIDSpec, error) {
	m := specRE.FindStringSubmatch(s)
	if m == nil {
		return PackageIDSpec{}, fmt.Errorf("invalid package id specification: %q", s)
	}
	return PackageIDSpec{Name: m[1], Version: m[2], URL: m[3]}, nil
}

// String renders the spec back to its canonical textual form; round-trips
// with ParsePackageIDSpec per spec §8.
func (s PackageIDSpec) String() string {
	out := s.Name
	if s.Version != "" {
		out += ":" + s.Version
	}
	if s.URL != "" {
		out += "@" + s.URL
	}
	return out
}

// Matches reports whether id satisfies the spec: name must match exactly;
// version, if given, must match exactly; URL, if given, must be a substring
// of the source's URL (cargo allows partial registry/git URLs in specs).
func (s PackageIDSpec) Matches(id PackageID) bool {
	if s.Name != id.name {
		return false
	}
	if s.Version != "" {
		v, err := version.NewVersion(s.Version)
		if err != nil || !v.Equal(id.version) {
			return false
		}
	}
	if s.URL != "" && !strings.Contains(id.source.url, s.URL) {
		return false
	}
	return true
}
