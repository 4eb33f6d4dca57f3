// Package orderlyerr defines the typed failure kinds the supervision engine
// distinguishes between when deciding whether a failure is locally
// recoverable (via a restart) or cohort-fatal.
package orderlyerr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind identifies one of the error categories from the engine's error
// handling design: spawn failures, hook exit failures, hook timeouts,
// unexpected RUN exits, restart-budget exhaustion, and signal-driven
// shutdown requests.
type Kind string

const (
	KindSpawnFailure     Kind = "spawn_failure"
	KindHookNonZero      Kind = "hook_nonzero"
	KindHookTimeout      Kind = "hook_timeout"
	KindChildCrashed     Kind = "child_crashed"
	KindRestartExhausted Kind = "restart_exhausted"
	KindSignalRequested  Kind = "signal_requested"
)

// Error wraps a Kind with the service and action it occurred for, so
// engine-level logging and the final exit-code decision can discriminate
// without string matching.
type Error struct {
	Kind    Kind
	Service string
	Action  string
	cause   error
}

func New(kind Kind, service, action string, cause error) *Error {
	return &Error{Kind: kind, Service: service, Action: action, cause: cause}
}

func (e *Error) Error() string {
	base := fmt.Sprintf("%s: service=%q", e.Kind, e.Service)
	if e.Action != "" {
		base += fmt.Sprintf(" action=%q", e.Action)
	}
	if e.cause != nil {
		return base + ": " + e.cause.Error()
	}
	return base
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Is allows errors.Is(err, orderlyerr.KindHookTimeout-shaped sentinel) style
// comparisons by kind, independent of the wrapped cause or service name.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	if other.Service != "" && other.Service != e.Service {
		return false
	}
	return other.Kind == e.Kind
}

// KindOf extracts the Kind from err if it (or something it wraps) is an
// *Error, reporting ok=false otherwise.
func KindOf(err error) (Kind, bool) {
	var oe *Error
	if errors.As(err, &oe) {
		return oe.Kind, true
	}
	return "", false
}

// Recoverable reports whether a failure of this kind, encountered during
// the steady-state running phase, is one the engine may attempt to recover
// from via the restart policy rather than treating it as immediately
// cohort-fatal. SpawnFailure during start-up is always unrecoverable per
// spec; RestartExhausted and SignalRequested are never themselves retried.
func Recoverable(kind Kind) bool {
	switch kind {
	case KindHookNonZero, KindHookTimeout, KindChildCrashed:
		return true
	default:
		return false
	}
}
