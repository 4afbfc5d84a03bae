package actorkit

import "errors"

// Severity classifies an actor-level failure.
//
// Transient: logged and the enclosing operation's step stays un-flagged so
// the next tick retries it; counted implicitly against the enclosing
// state's own timeout.
//
// Fatal: terminates the actor. A fatal error is how the scaler signals
// termination to its supervising group state machine.
type Severity int

const (
	Transient Severity = iota
	FatalSeverity
)

// Error wraps an underlying error with its escalation severity.
type Error struct {
	Severity Severity
	Err      error
}

func (e *Error) Error() string { return e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

// AsTransient wraps err as a non-fatal failure. A nil err stays nil.
func AsTransient(err error) error {
	if err == nil {
		return nil
	}
	return &Error{Severity: Transient, Err: err}
}

// AsFatal wraps err as a fatal failure that should terminate the actor.
func AsFatal(err error) error {
	if err == nil {
		return nil
	}
	return &Error{Severity: FatalSeverity, Err: err}
}

// IsFatal reports whether err (or anything it wraps) was raised with fatal
// severity.
func IsFatal(err error) bool {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Severity == FatalSeverity
	}
	return false
}
