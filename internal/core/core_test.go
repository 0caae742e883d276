package core

import "testing"

func TestSourceIDRoundTrip(t *testing.T) {
	cases := []string{
		"path+file:///home/user/proj",
		"registry+https://example.com/index",
		"git+https://github.com/foo/bar?branch=main",
		"git+https://github.com/foo/bar?tag=v1.0.0",
	}
	for _, s := range cases {
		sid, err := ParseSourceID(s)
		if err != nil {
			t.Fatalf("ParseSourceID(%q): %v", s, err)
		}
		sid2, err := ParseSourceID(sid.ToURL())
		if err != nil {
			t.Fatalf("ParseSourceID(ToURL()) round trip for %q: %v", s, err)
		}
		if !sid.Equal(sid2) {
			t.Errorf("round trip mismatch for %q: %v != %v", s, sid, sid2)
		}
	}
}

func TestSourceIDEqualityIgnoresPrecise(t *testing.T) {
	a := NewGitSourceID("https://example.com/repo", GitReference{Kind: GitBranch, Value: "main"})
	b := a.WithPrecise("deadbeef")
	if !a.Equal(b) {
		t.Errorf("expected SourceIDs differing only in Precise to be equal")
	}
	if a.Precise != "" || b.Precise != "deadbeef" {
		t.Errorf("WithPrecise must not mutate the receiver")
	}
}

func TestGitURLCanonicalization(t *testing.T) {
	a := NewGitSourceID("https://Example.com/foo/bar.git", GitReference{Kind: GitBranch, Value: "main"})
	b := NewGitSourceID("https://example.com/foo/bar", GitReference{Kind: GitBranch, Value: "main"})
	if !a.Equal(b) {
		t.Errorf("expected trivially different git URL spellings to compare equal: %v vs %v", a, b)
	}
}

func TestPackageIDOrdering(t *testing.T) {
	sid := NewRegistrySourceID("https://example.com/index")
	a, err := NewPackageID("alpha", "1.0.0", sid)
	if err != nil {
		t.Fatal(err)
	}
	b, err := NewPackageID("beta", "1.0.0", sid)
	if err != nil {
		t.Fatal(err)
	}
	if !a.Less(b) {
		t.Errorf("expected alpha < beta lexicographically")
	}
	a2, err := NewPackageID("alpha", "1.0.0", sid)
	if err != nil {
		t.Fatal(err)
	}
	if !a.Equal(a2) {
		t.Errorf("expected two identically-constructed PackageIDs to be equal")
	}
}

func TestPackageIDSpecRoundTrip(t *testing.T) {
	cases := []string{"foo", "foo:1.2.3", "foo@https://example.com/index", "foo:1.2.3@https://example.com/index"}
	for _, s := range cases {
		spec, err := ParsePackageIDSpec(s)
		if err != nil {
			t.Fatalf("ParsePackageIDSpec(%q): %v", s, err)
		}
		if got := spec.String(); got != s {
			t.Errorf("round trip mismatch: parse(%q).String() = %q", s, got)
		}
	}
}

func TestDependencyMatches(t *testing.T) {
	sid := NewRegistrySourceID("https://example.com/index")
	dep, err := NewDependency("foo", "^1.0")
	if err != nil {
		t.Fatal(err)
	}
	for _, tc := range []struct {
		version string
		want    bool
	}{
		{"1.0.0", true},
		{"1.5.2", true},
		{"2.0.0", false},
		{"0.9.0", false},
	} {
		id, err := NewPackageID("foo", tc.version, sid)
		if err != nil {
			t.Fatal(err)
		}
		summary := Summary{ID: id}
		if got := dep.Matches(summary); got != tc.want {
			t.Errorf("Matches(%s) = %v, want %v", tc.version, got, tc.want)
		}
	}
}
