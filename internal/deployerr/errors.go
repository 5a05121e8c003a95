// Package deployerr defines the error categories shared by the deploy helpers.
//
// Callers wrap one of these sentinels with context using fmt.Errorf("%w") and
// classify failures with errors.Is.
package deployerr

import (
	"errors"
	"syscall"
)

var (
	// ErrTransientNetwork marks a connection-refused class failure. It is retried.
	ErrTransientNetwork = errors.New("transient network error")
	// ErrUnexpectedNetwork marks any other HTTP or network failure. It is not retried.
	ErrUnexpectedNetwork = errors.New("unexpected network error")
	// ErrValidation marks bad input or a malformed/unresolvable key response.
	ErrValidation = errors.New("validation error")
	// ErrTimeout marks an exhausted polling budget.
	ErrTimeout = errors.New("timeout exceeded")
	// ErrSubprocess marks a child process that failed to start or exited non-zero.
	ErrSubprocess = errors.New("subprocess failure")
	// ErrDatabase marks an unexpected database failure.
	ErrDatabase = errors.New("database error")
)

// IsConnectionRefused reports whether err is a connection-refused class error.
func IsConnectionRefused(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrTransientNetwork) || errors.Is(err, syscall.ECONNREFUSED)
}
