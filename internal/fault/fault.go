// Package fault holds the fatal error taxonomy shared by the coordinator,
// the workers and the transports. None of these conditions is recoverable:
// whoever detects one aborts the whole pool.
package fault

import "errors"

var (
	// ErrStartup means the transport could not be brought up (listen, dial,
	// or waiting for the worker pool to attach).
	ErrStartup = errors.New("transport startup failed")

	// ErrInsufficientWorkers means the pool has no worker besides the coordinator.
	ErrInsufficientWorkers = errors.New("not enough processes (minimum 2)")

	// ErrFileUnavailable means the input file could not be opened.
	ErrFileUnavailable = errors.New("input file unavailable")

	// ErrMalformedExchange means an assignment arrived without its paired
	// half, or a message carried a tag or id that the protocol does not allow
	// at that point.
	ErrMalformedExchange = errors.New("malformed exchange")

	// ErrAborted means a peer requested a global abort.
	ErrAborted = errors.New("aborted by peer")
)

// Process exit codes.
const (
	ExitOK                  = 0
	ExitFailure             = 1
	ExitInsufficientWorkers = 2
	ExitFileUnavailable     = 3
	ExitMalformedExchange   = 4
	ExitStartup             = 5
)

// ExitCode maps err to the process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrInsufficientWorkers):
		return ExitInsufficientWorkers
	case errors.Is(err, ErrFileUnavailable):
		return ExitFileUnavailable
	case errors.Is(err, ErrMalformedExchange), errors.Is(err, ErrAborted):
		return ExitMalformedExchange
	case errors.Is(err, ErrStartup):
		return ExitStartup
	default:
		return ExitFailure
	}
}
