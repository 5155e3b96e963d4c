// Package results defines the records harvested from a results page and the
// outcome type that drives the pagination loop.
package results

import (
	"errors"
	"fmt"
)

// Page-level failure kinds. Each is absorbed by the pagination controller
// except ErrCorruptArtifact, which stops the run.
var (
	// ErrNotFound means the site answered 404: the series has no page at this index.
	ErrNotFound = errors.New("page not found")

	// ErrRateLimited means the site answered 425 Too Early.
	ErrRateLimited = errors.New("page rate limited")

	// ErrTransient covers any other non-200 answer and network faults.
	ErrTransient = errors.New("transient fetch error")

	// ErrParseFailure means the page was fetched but holds no results table.
	ErrParseFailure = errors.New("results table not found")

	// ErrCorruptArtifact means a cached parsed artifact could not be decoded.
	ErrCorruptArtifact = errors.New("corrupt parsed artifact")
)

// ResultRecord is one finisher's entry on one page. Every field is optional
// and is serialized only when non-empty.
type ResultRecord struct {
	Position    int    `json:"position,omitempty"`
	Name        string `json:"name,omitempty"`
	Gender      string `json:"gender,omitempty"`
	Time        string `json:"time,omitempty"`
	AgeGroup    string `json:"age_group,omitempty"`
	Club        string `json:"club,omitempty"`
	Runs        string `json:"runs,omitempty"`
	Vols        string `json:"vols,omitempty"`
	AgeGrade    string `json:"age_grade,omitempty"`
	Achievement string `json:"achievement,omitempty"`
}

// IsEmpty reports whether no field of the record is populated.
func (r ResultRecord) IsEmpty() bool {
	return r == ResultRecord{}
}

// PageResult is the parsed artifact of one page. The JSON shape
// {"week":N,"results":[...]} is kept compatible with existing caches.
type PageResult struct {
	Index   int            `json:"week"`
	Records []ResultRecord `json:"results"`
}

// NewPageResult returns a PageResult whose Records is never nil, so an empty
// page serializes as "results":[] rather than null.
func NewPageResult(index int, records []ResultRecord) *PageResult {
	if records == nil {
		records = []ResultRecord{}
	}
	return &PageResult{Index: index, Records: records}
}

// PageSnapshot is the raw fetched content of one page.
type PageSnapshot struct {
	Index   int
	Content []byte
}

// OutcomeKind tags a FetchOutcome.
type OutcomeKind int

const (
	// OutcomeSuccess carries either raw content or a parsed page.
	OutcomeSuccess OutcomeKind = iota
	OutcomeNotFound
	OutcomeRateLimited
	OutcomeTransient
	OutcomeParseFailure
)

// String returns the label used in logs and metrics.
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeNotFound:
		return "not_found"
	case OutcomeRateLimited:
		return "rate_limited"
	case OutcomeTransient:
		return "transient"
	case OutcomeParseFailure:
		return "parse_failure"
	default:
		return fmt.Sprintf("outcome(%d)", int(k))
	}
}

// Err returns the sentinel error matching a failure kind, nil for success.
func (k OutcomeKind) Err() error {
	switch k {
	case OutcomeNotFound:
		return ErrNotFound
	case OutcomeRateLimited:
		return ErrRateLimited
	case OutcomeTransient:
		return ErrTransient
	case OutcomeParseFailure:
		return ErrParseFailure
	default:
		return nil
	}
}

// Source records where the content of a successful outcome came from.
type Source string

const (
	SourceParsedCache Source = "parsed-cache"
	SourceRawCache    Source = "raw-cache"
	SourceNetwork     Source = "network"
)

// FetchOutcome is the result of fetching one page index.
type FetchOutcome struct {
	Index      int
	Kind       OutcomeKind
	Source     Source
	StatusCode int

	// Content is set for raw-cache and network successes.
	Content []byte

	// Page is set when the parsed artifact answered the fetch, and after
	// extraction in the harvest pipeline.
	Page *PageResult

	// Err explains a failure outcome.
	Err error
}

// OK reports whether the outcome carries usable content.
func (o FetchOutcome) OK() bool {
	return o.Kind == OutcomeSuccess
}

// Failure builds a failure outcome for index.
func Failure(index int, kind OutcomeKind, err error) FetchOutcome {
	if err == nil {
		err = kind.Err()
	}
	return FetchOutcome{Index: index, Kind: kind, Err: err}
}
