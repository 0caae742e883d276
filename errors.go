package craft

import "fmt"

// humanError and internalError classify failures per spec §7: a "human"
// error is user-actionable (bad manifest, version conflict, missing lock
// under --frozen) and is printed as just its message; an internal error is a
// craft bug ("job-graph key missing") and is always printed with its full
// cause chain, prefixed "internal error:". Both simply wrap an underlying
// error with %w so errors.Is/As keep working, mirroring the teacher's own
// error-wrapping idiom (internal/build/build.go uses fmt.Errorf("...: %w",
// err) throughout) rather than introducing a custom error-tree type as the
// original Rust implementation's CraftError trait did.
type classifiedError struct {
	msg      string
	cause    error
	internal bool
}

func (e *classifiedError) Error() string {
	if e.cause == nil {
		return e.msg
	}
	return e.msg + ": " + e.cause.Error()
}

func (e *classifiedError) Unwrap() error { return e.cause }

// IsHuman reports whether e was created by Human. Wrapped causes are not
// consulted.
func (e *classifiedError) IsHuman() bool { return !e.internal }

// Human wraps err as a user-actionable failure: invalid manifest, dependency
// not found, version conflict, and similar. Its message is msg followed by
// err's message when err is non-nil; -v does not change what is printed.
func Human(err error, msg string) error {
	return &classifiedError{msg: msg, cause: err, internal: false}
}

// Humanf is Human with fmt.Sprintf-style formatting.
func Humanf(err error, format string, args ...interface{}) error {
	return Human(err, fmt.Sprintf(format, args...))
}

// Internal wraps err as a craft bug: a job-graph invariant violated, a
// target-kind inconsistency, or similar "this should never happen"
// condition. Always printed with "internal error:" and the full chain.
func Internal(err error, msg string) error {
	return &classifiedError{msg: "internal error: " + msg, cause: err, internal: true}
}

// IsHuman reports whether err was produced via Human (as opposed to
// Internal or an un-classified error, which is treated as internal for
// safety — an un-annotated error is assumed to be a bug until proven
// otherwise).
func IsHuman(err error) bool {
	type humaner interface{ IsHuman() bool }
	if h, ok := err.(humaner); ok {
		return h.IsHuman()
	}
	return false
}
