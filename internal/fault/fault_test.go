package fault

import (
	"errors"
	"fmt"
	"testing"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitOK},
		{"insufficient workers", ErrInsufficientWorkers, ExitInsufficientWorkers},
		{"wrapped file unavailable", fmt.Errorf("input: open x: %w", ErrFileUnavailable), ExitFileUnavailable},
		{"malformed", fmt.Errorf("worker 2: %w", ErrMalformedExchange), ExitMalformedExchange},
		{"aborted", ErrAborted, ExitMalformedExchange},
		{"startup", fmt.Errorf("transport: %w", ErrStartup), ExitStartup},
		{"other", errors.New("boom"), ExitFailure},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := ExitCode(tc.err); got != tc.want {
				t.Errorf("ExitCode(%v) = %d, want %d", tc.err, got, tc.want)
			}
		})
	}
}
