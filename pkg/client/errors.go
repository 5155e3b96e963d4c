package client

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/Sternrassler/parkrun-harvester/pkg/results"
)

// Common errors returned by the client.
var (
	// ErrEventRequired is returned when no event is configured.
	ErrEventRequired = errors.New("event is required")

	// ErrUnsupportedEncoding is returned for a Content-Encoding the fetcher
	// cannot decode.
	ErrUnsupportedEncoding = errors.New("unsupported content encoding")
)

// StatusError describes a failed page fetch. It unwraps to the outcome's
// sentinel (results.ErrNotFound, results.ErrRateLimited, results.ErrTransient)
// and to the underlying transport error, if any.
type StatusError struct {
	URL        string
	StatusCode int
	Kind       results.OutcomeKind
	Err        error
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("GET %s: %s: %v", e.URL, e.Kind, e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("GET %s: %s (status %d): %v", e.URL, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("GET %s: %s (status %d)", e.URL, e.Kind, e.StatusCode)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *StatusError) Unwrap() []error {
	errs := []error{e.Kind.Err()}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// classifyStatus maps an HTTP status to a page outcome.
func classifyStatus(statusCode int) results.OutcomeKind {
	switch statusCode {
	case http.StatusOK:
		return results.OutcomeSuccess
	case http.StatusNotFound:
		return results.OutcomeNotFound
	case http.StatusTooEarly:
		return results.OutcomeRateLimited
	default:
		return results.OutcomeTransient
	}
}
