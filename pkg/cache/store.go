package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Sternrassler/parkrun-harvester/pkg/results"
)

// DefaultPrefix namespaces keys when no prefix is configured.
const DefaultPrefix = "harvest"

var (
	// ErrCacheMiss indicates the requested page is not in the tier
	ErrCacheMiss = errors.New("cache miss")

	// ErrEventRequired indicates an empty event identifier
	ErrEventRequired = errors.New("event is required")
)

// Store is the page cache contract shared by all backends.
type Store interface {
	// Prepare creates whatever backing structure the event needs.
	Prepare(ctx context.Context, event string) error

	HasParsed(ctx context.Context, event string, index int) (bool, error)
	// ReadParsed returns ErrCacheMiss when absent and wraps
	// results.ErrCorruptArtifact when the stored bytes do not decode.
	ReadParsed(ctx context.Context, event string, index int) (*results.PageResult, error)
	WriteParsed(ctx context.Context, event string, index int, page *results.PageResult) error

	HasRaw(ctx context.Context, event string, index int) (bool, error)
	ReadRaw(ctx context.Context, event string, index int) ([]byte, error)
	// WriteRaw never replaces an existing snapshot.
	WriteRaw(ctx context.Context, event string, index int, content []byte) error

	// Location describes where the event's artifacts live, for summaries.
	Location(event string) string
}

// EncodeArtifact serializes a page compactly with a fixed key order, so the
// same page always produces the same bytes.
func EncodeArtifact(page *results.PageResult) ([]byte, error) {
	if page == nil {
		return nil, fmt.Errorf("page result cannot be nil")
	}
	normalized := results.NewPageResult(page.Index, page.Records)

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(normalized); err != nil {
		return nil, fmt.Errorf("marshal page result: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// wireArtifact detects missing members, which a plain PageResult would
// silently zero.
type wireArtifact struct {
	Week    *int                    `json:"week"`
	Results *[]results.ResultRecord `json:"results"`
}

// DecodeArtifact parses a stored artifact for index. Any mismatch with the
// expected shape is reported as results.ErrCorruptArtifact.
func DecodeArtifact(data []byte, index int) (*results.PageResult, error) {
	var wire wireArtifact
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&wire); err != nil {
		return nil, fmt.Errorf("%w: page %d: %v", results.ErrCorruptArtifact, index, err)
	}
	if dec.More() {
		return nil, fmt.Errorf("%w: page %d: trailing data", results.ErrCorruptArtifact, index)
	}
	if wire.Week == nil || wire.Results == nil {
		return nil, fmt.Errorf("%w: page %d: missing week or results", results.ErrCorruptArtifact, index)
	}
	if *wire.Week != index {
		return nil, fmt.Errorf("%w: page %d: artifact is for page %d", results.ErrCorruptArtifact, index, *wire.Week)
	}

	return results.NewPageResult(index, *wire.Results), nil
}

func validateEvent(event string) error {
	if event == "" {
		return ErrEventRequired
	}
	return nil
}
