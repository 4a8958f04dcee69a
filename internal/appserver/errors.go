package appserver

import (
	"fmt"
	"time"
)

// invalidAppStructureError signals a missing bootstrap file or public directory
// at construction time. Never retried.
type invalidAppStructureError struct{ missing string }

func (e invalidAppStructureError) Error() string {
	return "invalid application structure: missing " + e.missing
}

// ErrInvalidAppStructure constructs an invalidAppStructureError naming the missing path.
func ErrInvalidAppStructure(missing string) error { return invalidAppStructureError{missing: missing} }

// IsInvalidAppStructure reports whether err indicates a structurally invalid application root.
func IsInvalidAppStructure(err error) bool {
	_, ok := err.(invalidAppStructureError)
	return ok
}

// publicDirMissingError signals that the public directory disappeared between
// construction and Start.
type publicDirMissingError struct{ dir string }

func (e publicDirMissingError) Error() string { return "public directory missing: " + e.dir }

// IsPublicDirMissing reports whether err indicates a vanished public directory.
func IsPublicDirMissing(err error) bool {
	_, ok := err.(publicDirMissingError)
	return ok
}

// portExhaustedError signals that no free port was found in the scan window.
type portExhaustedError struct {
	host   string
	start  int
	window int
}

func (e portExhaustedError) Error() string {
	return fmt.Sprintf("no free port on %s in range %d-%d", e.host, e.start, e.start+e.window-1)
}

// IsPortExhausted reports whether err indicates an exhausted port scan window.
func IsPortExhausted(err error) bool {
	_, ok := err.(portExhaustedError)
	return ok
}

// serverStartFailedError signals that the server process failed to spawn or bind.
type serverStartFailedError struct {
	cause  error
	output string
}

func (e serverStartFailedError) Error() string {
	if e.output != "" {
		return fmt.Sprintf("server start failed: %v; output: %s", e.cause, e.output)
	}
	return fmt.Sprintf("server start failed: %v", e.cause)
}

func (e serverStartFailedError) Unwrap() error { return e.cause }

// IsServerStartFailed reports whether err indicates a spawn or bind failure.
func IsServerStartFailed(err error) bool {
	_, ok := err.(serverStartFailedError)
	return ok
}

// processDiedError signals that the server process exited before becoming ready.
type processDiedError struct {
	cause  error
	output string
}

func (e processDiedError) Error() string {
	msg := "server process died during startup"
	if e.cause != nil {
		msg += ": " + e.cause.Error()
	}
	if e.output != "" {
		msg += "; output: " + e.output
	}
	return msg
}

func (e processDiedError) Unwrap() error { return e.cause }

// IsProcessDiedDuringStartup reports whether err indicates the process exited before ready.
func IsProcessDiedDuringStartup(err error) bool {
	_, ok := err.(processDiedError)
	return ok
}

// Output returns the captured process output attached to a died-during-startup error.
func (e processDiedError) Output() string { return e.output }

// healthCheckTimeoutError signals that the process stayed alive but never
// answered a readiness probe within the timeout.
type healthCheckTimeoutError struct {
	timeout  time.Duration
	attempts int
	lastErr  error
	output   string
}

func (e healthCheckTimeoutError) Error() string {
	msg := fmt.Sprintf("server not ready after %s (%d attempts)", e.timeout, e.attempts)
	if e.lastErr != nil {
		msg += "; last error: " + e.lastErr.Error()
	}
	if e.output != "" {
		msg += "; output: " + e.output
	}
	return msg
}

func (e healthCheckTimeoutError) Unwrap() error { return e.lastErr }

// Attempts returns the number of probe rounds performed before giving up.
func (e healthCheckTimeoutError) Attempts() int { return e.attempts }

// IsHealthCheckTimeout reports whether err indicates a readiness timeout.
func IsHealthCheckTimeout(err error) bool {
	_, ok := err.(healthCheckTimeoutError)
	return ok
}

// ProcErrorKind tags a process-level failure so callers can branch without
// string matching.
type ProcErrorKind string

const (
	ProcSpawnFailed  ProcErrorKind = "spawn_failed"
	ProcSignalFailed ProcErrorKind = "signal_failed"
	ProcTimeout      ProcErrorKind = "timeout"
)

// ProcError wraps an OS-level process failure with an explicit kind.
type ProcError struct {
	Kind ProcErrorKind
	Op   string
	Err  error
}

func (e *ProcError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *ProcError) Unwrap() error { return e.Err }

// ProcErrKind extracts the kind from a ProcError, or "" for any other error.
func ProcErrKind(err error) ProcErrorKind {
	if pe, ok := err.(*ProcError); ok {
		return pe.Kind
	}
	return ""
}
