package craft

import "strings"

// KnownTriples contains one entry for each target triple craft knows how to
// cross-compile for. The host triple is always implicitly known.
var KnownTriples = map[string]bool{
	"x86_64-linux-gnu":  true,
	"i686-linux-gnu":    true,
	"aarch64-linux-gnu": true,
	"armv7-linux-gnueabihf": true,
}

// HasTripleSuffix reports whether name ends in a known target triple
// (e.g. "libfoo-aarch64-linux-gnu") and returns the triple.
func HasTripleSuffix(name string) (triple string, ok bool) {
	for t := range KnownTriples {
		if strings.HasSuffix(name, "-"+t) {
			return t, true
		}
	}
	return "", false
}
