package main

import "testing"

func TestHostTripleIsNonEmpty(t *testing.T) {
	triple := hostTriple()
	if triple == "" {
		t.Fatal("hostTriple returned empty string")
	}
	if triple[len(triple)-1] == '-' {
		t.Fatalf("hostTriple looks truncated: %q", triple)
	}
}
