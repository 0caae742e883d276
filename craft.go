// Package craft implements the build-orchestration core of a Cargo-inspired
// package manager and build driver for C projects: dependency resolution
// against heterogeneous package sources, lockfile management, and a
// parallel, incremental compilation pipeline that drives an external C
// compiler.
package craft

import (
	"log"
	"os"
	"path/filepath"
)

// Config is the process-wide handle the CLI builds once and passes by
// pointer through its own project-loading and build code. It plays the role
// Cargo's own `Config` struct plays: a single place holding the home
// directory, terminal/verbosity state and environment overrides. The
// internal component constructors (registry, resolver, build context,
// scheduler) do not take a Config; the CLI hands them the individual values
// they need.
type Config struct {
	// Log is a diagnostic logger, set to log.Default() by NewConfig. The CLI
	// itself logs through the standard library's default logger, and the
	// registry prints its override warnings to stdout.
	Log *log.Logger

	// Home is CRAFT_HOME, defaulting to $HOME/.craft. It is the root for
	// source caches (git clones, registry indexes, downloaded tarballs).
	Home string

	// Frozen requires an existing Craft.lock that workspace.StalenessCheck
	// finds up to date, and makes the registry skip every source update().
	// Locked requires an existing, up-to-date Craft.lock but permits network
	// access for anything the lock doesn't already pin.
	Frozen bool
	Locked bool

	// Offline makes the registry skip every source update(). A source's own
	// query may still reach the network: a remote registry fetches index
	// files it has not yet read, and a git source clones or fetches a
	// repository it has not yet checked out.
	Offline bool

	// Jobs is the number of parallel compilation workers. Zero means "use
	// runtime.NumCPU()".
	Jobs int

	// Verbose walks the full error cause chain when printing failures.
	Verbose bool

	// CFlags/DocFlags are extra flags appended to every host/target cc
	// invocation, read from the environment per spec §4.8's precedence
	// rules (environment > target.<triple>.cflags > build.cflags).
	CFlags  []string
	DocFlags []string
}

// NewConfig builds a Config from the process environment, mirroring
// distri's internal/env package (a single exported var computed from
// os.Getenv with a sensible default) but expressed as a constructor so it
// can be passed explicitly rather than imported as a global.
func NewConfig() *Config {
	home := os.Getenv("CRAFT_HOME")
	if home == "" {
		if hd, err := os.UserHomeDir(); err == nil {
			home = filepath.Join(hd, ".craft")
		}
	}
	return &Config{
		Log:    log.Default(),
		Home:   home,
		CFlags: splitEnvList(os.Getenv("CFLAGS")),
		DocFlags: splitEnvList(os.Getenv("DOCFLAGS")),
	}
}

func splitEnvList(s string) []string {
	if s == "" {
		return nil
	}
	// CFLAGS is whitespace separated, not path-list separated.
	return fieldsPreservingQuotes(s)
}

func fieldsPreservingQuotes(s string) []string {
	var out []string
	var cur []byte
	inQuote := byte(0)
	flush := func() {
		if len(cur) > 0 {
			out = append(out, string(cur))
			cur = cur[:0]
		}
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case inQuote != 0:
			if c == inQuote {
				inQuote = 0
			} else {
				cur = append(cur, c)
			}
		case c == '\'' || c == '"':
			inQuote = c
		case c == ' ' || c == '\t':
			flush()
		default:
			cur = append(cur, c)
		}
	}
	flush()
	return out
}

func (c *Config) logger() *log.Logger {
	if c != nil && c.Log != nil {
		return c.Log
	}
	return log.Default()
}

// JobCount returns the configured parallelism, defaulting like distri's
// batch scheduler to one worker per logical CPU when unset.
func (c *Config) JobCount(numCPU int) int {
	if c == nil || c.Jobs <= 0 {
		return numCPU
	}
	return c.Jobs
}
