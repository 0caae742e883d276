package resolver

import "strings"

// PlatformInfo is the probed cfg(...) environment a dependency's platform
// filter is evaluated against: the compiling unit's target triple plus
// whatever key/key=value cfg entries the compiler reported (spec §4.3,
// "Platform filter", and spec §4.4's compiler-probe `--print=cfg` output).
type PlatformInfo struct {
	Triple string
	Cfg    map[string]string // bare keys map to "" ; key="val" entries map to their value
}

// Matches reports whether expr (a `cfg(any|all|not|key="val"|key)`
// expression, or empty meaning "always") is satisfied by p.
func (p PlatformInfo) Matches(expr string) bool {
	if expr == "" {
		return true
	}
	expr = strings.TrimSpace(expr)
	if strings.HasPrefix(expr, "cfg(") && strings.HasSuffix(expr, ")") {
		expr = expr[len("cfg(") : len(expr)-1]
	}
	ok, _ := p.evalExpr(expr)
	return ok
}

// evalExpr parses and evaluates a single cfg predicate. The grammar is
// small enough to hand-roll (no pack dependency parses this DSL): atoms are
// `key`, `key="val"`, or a comma-separated any(...)/all(...)/not(...) call.
func (p PlatformInfo) evalExpr(expr string) (bool, string) {
	expr = strings.TrimSpace(expr)
	switch {
	case strings.HasPrefix(expr, "any(") && strings.HasSuffix(expr, ")"):
		for _, part := range splitArgs(expr[len("any(") : len(expr)-1]) {
			if ok, _ := p.evalExpr(part); ok {
				return true, ""
			}
		}
		return false, ""
	case strings.HasPrefix(expr, "all(") && strings.HasSuffix(expr, ")"):
		for _, part := range splitArgs(expr[len("all(") : len(expr)-1]) {
			if ok, _ := p.evalExpr(part); !ok {
				return false, ""
			}
		}
		return true, ""
	case strings.HasPrefix(expr, "not(") && strings.HasSuffix(expr, ")"):
		ok, _ := p.evalExpr(expr[len("not(") : len(expr)-1])
		return !ok, ""
	default:
		return p.evalAtom(expr), ""
	}
}

func (p PlatformInfo) evalAtom(atom string) bool {
	key, val, hasVal := strings.Cut(atom, "=")
	key = strings.TrimSpace(key)
	if !hasVal {
		_, present := p.Cfg[key]
		return present
	}
	val = strings.Trim(strings.TrimSpace(val), `"`)
	return p.Cfg[key] == val
}

// splitArgs splits a comma-separated argument list at top level only
// (ignoring commas nested inside parens).
func splitArgs(s string) []string {
	var out []string
	depth := 0
	start := 0
	for i, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				out = append(out, s[start:i])
				start = i + 1
			}
		}
	}
	out = append(out, s[start:])
	for i := range out {
		out[i] = strings.TrimSpace(out[i])
	}
	return out
}
