package client

import (
	"errors"
	"net"
	"strings"
	"testing"

	"github.com/Sternrassler/parkrun-harvester/pkg/results"
)

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		expected   results.OutcomeKind
	}{
		{name: "200 is success", statusCode: 200, expected: results.OutcomeSuccess},
		{name: "404 is not found", statusCode: 404, expected: results.OutcomeNotFound},
		{name: "425 is rate limited", statusCode: 425, expected: results.OutcomeRateLimited},
		{name: "403 is transient", statusCode: 403, expected: results.OutcomeTransient},
		{name: "429 is transient", statusCode: 429, expected: results.OutcomeTransient},
		{name: "500 is transient", statusCode: 500, expected: results.OutcomeTransient},
		{name: "503 is transient", statusCode: 503, expected: results.OutcomeTransient},
		{name: "204 is transient", statusCode: 204, expected: results.OutcomeTransient},
		{name: "301 is transient", statusCode: 301, expected: results.OutcomeTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classifyStatus(tt.statusCode); got != tt.expected {
				t.Errorf("classifyStatus(%d) = %v, want %v", tt.statusCode, got, tt.expected)
			}
		})
	}
}

func TestStatusError(t *testing.T) {
	tests := []struct {
		name     string
		err      *StatusError
		sentinel error
		contains string
	}{
		{
			name: "not found",
			err: &StatusError{
				URL:        "https://example.org/bushy/results/9/",
				StatusCode: 404,
				Kind:       results.OutcomeNotFound,
			},
			sentinel: results.ErrNotFound,
			contains: "not_found (status 404)",
		},
		{
			name: "rate limited",
			err: &StatusError{
				URL:        "https://example.org/bushy/results/9/",
				StatusCode: 425,
				Kind:       results.OutcomeRateLimited,
			},
			sentinel: results.ErrRateLimited,
			contains: "status 425",
		},
		{
			name: "network error",
			err: &StatusError{
				URL:  "https://example.org/bushy/results/9/",
				Kind: results.OutcomeTransient,
				Err:  errors.New("connection refused"),
			},
			sentinel: results.ErrTransient,
			contains: "transient: connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !errors.Is(tt.err, tt.sentinel) {
				t.Errorf("errors.Is(%v, %v) = false", tt.err, tt.sentinel)
			}
			if !strings.Contains(tt.err.Error(), tt.contains) {
				t.Errorf("Error() = %q, want it to contain %q", tt.err.Error(), tt.contains)
			}
		})
	}
}

func TestStatusError_UnwrapsCause(t *testing.T) {
	cause := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("refused")}
	err := &StatusError{URL: "u", Kind: results.OutcomeTransient, Err: cause}

	var opErr *net.OpError
	if !errors.As(err, &opErr) {
		t.Fatal("errors.As should find the transport error")
	}
	if opErr != cause {
		t.Error("errors.As returned a different error")
	}

	var statusErr *StatusError
	wrapped := errors.Join(errors.New("outer"), err)
	if !errors.As(wrapped, &statusErr) || statusErr.Kind != results.OutcomeTransient {
		t.Error("errors.As should find StatusError through wrapping")
	}
}
