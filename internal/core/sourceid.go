// Package core implements the identifier and manifest value types shared by
// every other craft package: PackageID, SourceID, Dependency, Summary,
// Manifest, Target, Profile, and Unit (spec §3, component A).
//
// Grounded on original_source/src/package_id.rs and source.rs: the Rust
// implementation wraps each identifier in an Arc<Inner> so clones are cheap
// and equality/hashing/ordering are defined once on the inner struct. Go has
// no Arc, but SourceID gets the same "cheap, comparable value" property by
// storing only strings/primitives (no pointers, no slices), so it is
// comparable with == and usable as a map key directly. PackageID carries a
// *version.Version, so == on two PackageIDs compares that pointer; code that
// keys maps by package uses PackageID.Key() instead.
package core

import (
	"fmt"
	"net/url"
	"strings"
)

// SourceKind discriminates the origin of a SourceID.
type SourceKind int

const (
	KindPath SourceKind = iota
	KindGit
	KindRegistry
	KindLocalRegistry
	KindDirectory
)

func (k SourceKind) String() string {
	switch k {
	case KindPath:
		return "path"
	case KindGit:
		return "git"
	case KindRegistry:
		return "registry"
	case KindLocalRegistry:
		return "local-registry"
	case KindDirectory:
		return "directory"
	default:
		return "unknown"
	}
}

// GitReferenceKind distinguishes the three ways a git SourceID can pin a
// ref, per spec §3 ("Git(url, ref={Branch|Tag|Rev}, precise?)").
type GitReferenceKind int

const (
	GitBranch GitReferenceKind = iota
	GitTag
	GitRev
)

// GitReference names a branch, tag, or revision within a git SourceID.
type GitReference struct {
	Kind  GitReferenceKind
	Value string
}

func (r GitReference) String() string {
	switch r.Kind {
	case GitBranch:
		if r.Value == "" || r.Value == "master" {
			return ""
		}
		return "branch=" + r.Value
	case GitTag:
		return "tag=" + r.Value
	case GitRev:
		return "rev=" + r.Value
	default:
		return ""
	}
}

// SourceID is a tagged, canonicalized identifier for a package origin
// (spec §3). Equality and hashing never consider Precise — that field
// forces re-fetch on mismatch but two SourceIDs differing only in Precise
// name "the same source" (original_source/src/source.rs's PartialEq impl
// for SourceIdInner is the model here).
//
// SourceID intentionally holds only strings, so it is comparable with ==
// and safe as a map key; the canonical URL used for git-equality lives in
// canonicalURL and is part of the comparable key.
type SourceID struct {
	kind         SourceKind
	url          string
	canonicalURL string // only meaningful for KindGit; canonicalize_url() equivalent
	gitRef       GitReference

	// Precise is an opaque revision pin (e.g. a resolved git commit). It does
	// not participate in equality or hashing, only in Source.update()
	// deciding whether to re-fetch.
	Precise string
}

// eqKey is the subset of fields that participate in equality/hashing —
// everything except Precise.
type sourceIDKey struct {
	kind   SourceKind
	url    string
	canon  string
	gitRef GitReference
}

func (s SourceID) key() sourceIDKey {
	k := sourceIDKey{kind: s.kind, gitRef: s.gitRef}
	if s.kind == KindGit {
		k.canon = s.canonicalURL
	} else {
		k.url = s.url
	}
	return k
}

// Equal reports whether two SourceIDs name the same origin, ignoring
// Precise, exactly as original_source/src/source.rs's SourceIdInner
// PartialEq does (same kind, same canonical URL; for git, same
// GitReference too).
func (s SourceID) Equal(o SourceID) bool {
	return s.key() == o.key()
}

// Less provides a total, deterministic order: Kind, then URL, then git ref.
// Used by the resolver to break candidate-source ties (spec §4.3: "ties
// broken by source kind with path > git > registry").
func (s SourceID) Less(o SourceID) bool {
	if s.kind != o.kind {
		return sourceKindRank(s.kind) < sourceKindRank(o.kind)
	}
	if s.url != o.url {
		return s.url < o.url
	}
	return s.gitRef.String() < o.gitRef.String()
}

// sourceKindRank implements the resolver's source-kind preference order:
// path > git > registry (spec §4.3).
func sourceKindRank(k SourceKind) int {
	switch k {
	case KindPath:
		return 0
	case KindGit:
		return 1
	case KindDirectory:
		return 2
	case KindLocalRegistry:
		return 3
	case KindRegistry:
		return 4
	default:
		return 5
	}
}

func (s SourceID) Kind() SourceKind         { return s.kind }
func (s SourceID) URL() string              { return s.url }
func (s SourceID) GitReference() GitReference { return s.gitRef }
func (s SourceID) IsPath() bool             { return s.kind == KindPath }
func (s SourceID) IsGit() bool              { return s.kind == KindGit }
func (s SourceID) IsRegistry() bool {
	return s.kind == KindRegistry || s.kind == KindLocalRegistry
}

// WithPrecise returns a copy of s pinned to the given opaque revision.
func (s SourceID) WithPrecise(precise string) SourceID {
	s.Precise = precise
	return s
}

// NewPathSourceID constructs a SourceID for a local filesystem path.
func NewPathSourceID(path string) SourceID {
	return SourceID{kind: KindPath, url: toFileURL(path)}
}

// NewDirectorySourceID constructs a SourceID for a directory-source.
func NewDirectorySourceID(path string) SourceID {
	return SourceID{kind: KindDirectory, url: toFileURL(path)}
}

// NewLocalRegistrySourceID constructs a SourceID for a local-registry.
func NewLocalRegistrySourceID(path string) SourceID {
	return SourceID{kind: KindLocalRegistry, url: toFileURL(path)}
}

// NewRegistrySourceID constructs a SourceID for a remote registry at rawURL.
func NewRegistrySourceID(rawURL string) SourceID {
	return SourceID{kind: KindRegistry, url: rawURL}
}

// NewGitSourceID constructs a SourceID for a git repository at rawURL,
// pinned to ref.
func NewGitSourceID(rawURL string, ref GitReference) SourceID {
	return SourceID{
		kind:         KindGit,
		url:          rawURL,
		canonicalURL: CanonicalizeGitURL(rawURL),
		gitRef:       ref,
	}
}

func toFileURL(path string) string {
	return "file://" + path
}

// CanonicalizeGitURL normalizes trivially different spellings of the same
// git remote (scheme case, trailing ".git", trailing slash) so that two
// SourceIDs pointing at "the same repository" compare equal, per spec §3
// ("Carries a canonicalized URL used for equality across trivially
// different git URL spellings"). Grounded on the intent of
// original_source's git::canonicalize_url (not itself kept in the
// retrieval pack, so the exact normalization rules are inferred from the
// spec text and the common cases cargo's real implementation handles).
func CanonicalizeGitURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return strings.TrimSuffix(strings.TrimSuffix(raw, "/"), ".git")
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Path = strings.TrimSuffix(u.Path, "/")
	u.Path = strings.TrimSuffix(u.Path, ".git")
	u.Fragment = ""
	u.RawQuery = ""
	return u.String()
}

// ToURL renders s back into the "<kind>+<url>[#precise]" spelling consumed
// by FromURL, matching original_source's SourceId::to_url/from_url
// round-trip (spec §8: "parse(display(SourceId)) == SourceId").
func (s SourceID) ToURL() string {
	switch s.kind {
	case KindPath:
		return "path+" + s.url
	case KindGit:
		ref := s.gitRef.String()
		var sb strings.Builder
		sb.WriteString("git+")
		sb.WriteString(s.url)
		if ref != "" {
			sb.WriteString("?")
			sb.WriteString(ref)
		}
		if s.Precise != "" {
			sb.WriteString("#")
			sb.WriteString(s.Precise)
		}
		return sb.String()
	case KindRegistry:
		return "registry+" + s.url
	case KindLocalRegistry:
		return "local-registry+" + s.url
	case KindDirectory:
		return "directory+" + s.url
	default:
		return s.url
	}
}

// ParseSourceID parses the "<kind>+<url>[?ref][#precise]" spelling produced
// by ToURL. Mirrors original_source/src/source.rs's SourceId::from_url.
func ParseSourceID(s string) (SourceID, error) {
	kind, rest, ok := strings.Cut(s, "+")
	if !ok {
		return SourceID{}, fmt.Errorf("invalid source %q: missing kind+ prefix", s)
	}
	switch kind {
	case "git":
		u, err := url.Parse(rest)
		if err != nil {
			return SourceID{}, fmt.Errorf("invalid git source %q: %w", s, err)
		}
		ref := GitReference{Kind: GitBranch, Value: "master"}
		q := u.Query()
		switch {
		case q.Get("tag") != "":
			ref = GitReference{Kind: GitTag, Value: q.Get("tag")}
		case q.Get("rev") != "":
			ref = GitReference{Kind: GitRev, Value: q.Get("rev")}
		case q.Get("branch") != "":
			ref = GitReference{Kind: GitBranch, Value: q.Get("branch")}
		}
		precise := u.Fragment
		u.Fragment = ""
		u.RawQuery = ""
		sid := NewGitSourceID(u.String(), ref)
		if precise != "" {
			sid.Precise = precise
		}
		return sid, nil
	case "registry":
		return NewRegistrySourceID(rest), nil
	case "local-registry":
		return SourceID{kind: KindLocalRegistry, url: rest}, nil
	case "directory":
		return SourceID{kind: KindDirectory, url: rest}, nil
	case "path":
		return SourceID{kind: KindPath, url: rest}, nil
	default:
		return SourceID{}, fmt.Errorf("unsupported source protocol: %s", kind)
	}
}

func (s SourceID) String() string {
	switch s.kind {
	case KindPath:
		return s.url
	case KindGit:
		ref := s.gitRef.String()
		str := s.url
		if ref != "" {
			str += "?" + ref
		}
		if s.Precise != "" {
			n := len(s.Precise)
			if n > 8 {
				n = 8
			}
			str += "#" + s.Precise[:n]
		}
		return str
	case KindRegistry, KindLocalRegistry:
		return "registry " + s.url
	case KindDirectory:
		return "dir " + s.url
	default:
		return s.url
	}
}
