package core

import (
	"fmt"
	"hash/fnv"
)

// shortHash hashes s with FNV-128a and renders it as a fixed-width hex
// string, the same construction the teacher uses for its input digest
// (distr1-distri/internal/build/build.go's Digest(): "h := fnv.New128a();
// ...; fmt.Sprintf("%032x", h.Sum(nil))"), reused here for metadata hashes
// and, in internal/fingerprint, for the per-unit freshness key.
func shortHash(s string) string {
	h := fnv.New128a()
	h.Write([]byte(s))
	sum := h.Sum(nil)
	// Cargo's real metadata hash is 16 hex chars (64 bits); keep ours short
	// for readable filenames while still deriving from the full 128-bit sum.
	return fmt.Sprintf("%x", sum)[:16]
}

// ShortHash exposes shortHash for other internal packages (fingerprint,
// buildctx) that need the identical hashing scheme for dep-info and
// fingerprint file names.
func ShortHash(s string) string { return shortHash(s) }
