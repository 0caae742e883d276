package fingerprint

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/renameio"
)

// FingerprintFile and DepInfoFile are the two filenames written per unit
// under `.fingerprint/<pkg>-<meta>/` (spec §4.5).
const (
	FingerprintFile = "fingerprint"
	DepInfoFile     = "dep-info"
)

// Write atomically stores hash as the unit's fingerprint file under dir,
// matching the teacher's renameio-based atomic-write convention used
// throughout internal/build.
func Write(dir, hash string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	return renameio.WriteFile(filepath.Join(dir, FingerprintFile), []byte(hash), 0o644)
}

// Read loads a previously written fingerprint hash, or ("", nil) if the
// file doesn't exist yet (first build).
func Read(dir string) (string, error) {
	b, err := os.ReadFile(filepath.Join(dir, FingerprintFile))
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading fingerprint: %w", err)
	}
	return string(b), nil
}

// WriteDepInfo atomically stores the already CWD-relativized dep-info
// text (see RelativizeDepInfo) under dir.
func WriteDepInfo(dir, contents string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	return renameio.WriteFile(filepath.Join(dir, DepInfoFile), []byte(contents), 0o644)
}

// DepPaths parses a dep-info file's dependency path list (spec §4.5:
// "every path in the dep-info exists with mtime <= the fingerprint file's
// mtime"). A Make-rule-style dep-info file is "target: dep1 dep2 ...",
// continued across lines with a trailing backslash; this mirrors the
// output format `cc -MMD` and similar compilers emit.
func DepPaths(contents string) []string {
	joined := joinContinuations(contents)
	_, rest, ok := cut(joined, ":")
	if !ok {
		return nil
	}
	return fieldsUnescaped(rest)
}

func joinContinuations(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) && s[i+1] == '\n' {
			i++ // drop the backslash-newline, leave a separating space
			out = append(out, ' ')
			continue
		}
		out = append(out, s[i])
	}
	return string(out)
}

func cut(s, sep string) (before, after string, found bool) {
	for i := 0; i+len(sep) <= len(s); i++ {
		if s[i:i+len(sep)] == sep {
			return s[:i], s[i+len(sep):], true
		}
	}
	return s, "", false
}

func fieldsUnescaped(s string) []string {
	var out []string
	var cur []byte
	flush := func() {
		if len(cur) > 0 {
			out = append(out, string(cur))
			cur = nil
		}
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\\' && i+1 < len(s) && s[i+1] == ' ':
			cur = append(cur, ' ')
			i++
		case c == ' ' || c == '\n' || c == '\t':
			flush()
		default:
			cur = append(cur, c)
		}
	}
	flush()
	return out
}

// RelativizeDepInfo rewrites every absolute path in a compiler-emitted
// dep-info file to be relative to cwd (spec §4.4: "the dep-info file is
// rewritten to be CWD-relative").
func RelativizeDepInfo(contents, cwd string) string {
	target, rest, ok := cut(contents, ":")
	if !ok {
		return contents
	}
	paths := fieldsUnescaped(joinContinuations(rest))
	rel := make([]string, len(paths))
	for i, p := range paths {
		if r, err := filepath.Rel(cwd, p); err == nil && !isDotDot(r) {
			rel[i] = r
		} else {
			rel[i] = p
		}
	}
	out := target + ":"
	for _, r := range rel {
		out += " " + r
	}
	return out
}

func isDotDot(p string) bool {
	return len(p) >= 2 && p[0] == '.' && p[1] == '.'
}

// Fresh reports whether a unit's previous build output can be reused (spec
// §4.5): the fingerprint file must exist and its stored hash must equal
// newHash, and when a dep-info file exists every path it lists must exist
// with mtime <= the fingerprint file's own mtime. A missing dep-info file
// does not make the unit dirty: a hash match alone then counts as fresh.
func Fresh(dir, newHash string) (bool, error) {
	fpPath := filepath.Join(dir, FingerprintFile)
	fpInfo, err := os.Stat(fpPath)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	stored, err := Read(dir)
	if err != nil {
		return false, err
	}
	if stored != newHash {
		return false, nil
	}

	depInfo, err := os.ReadFile(filepath.Join(dir, DepInfoFile))
	if os.IsNotExist(err) {
		return true, nil // no declared deps (e.g. run_custom_build with no triggers): hash match suffices
	}
	if err != nil {
		return false, err
	}

	cutoff := fpInfo.ModTime()
	for _, p := range DepPaths(string(depInfo)) {
		st, err := os.Stat(p)
		if os.IsNotExist(err) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		if st.ModTime().After(cutoff) {
			return false, nil
		}
	}
	return true, nil
}

// Invoked stamps the invoked.timestamp file a run_custom_build unit's
// directory carries (spec's target-directory layout listing), letting
// the runtime fingerprint distinguish "script rebuilt" from "script ran".
func Invoked(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return renameio.WriteFile(filepath.Join(dir, "invoked.timestamp"), []byte(time.Now().UTC().Format(time.RFC3339Nano)), 0o644)
}
