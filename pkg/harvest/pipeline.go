// Package harvest turns a fetched page into a persisted PageResult: fetch,
// extract, then write the parsed artifact.
package harvest

import (
	"context"
	"errors"
	"fmt"

	"github.com/Sternrassler/parkrun-harvester/pkg/cache"
	"github.com/Sternrassler/parkrun-harvester/pkg/extract"
	"github.com/Sternrassler/parkrun-harvester/pkg/results"
	"github.com/rs/zerolog"
)

// PageFetcher is the interface the page fetcher must implement.
type PageFetcher interface {
	Fetch(ctx context.Context, index int) (results.FetchOutcome, error)
	Event() string
}

// Pipeline processes one page index at a time.
type Pipeline struct {
	fetcher   PageFetcher
	extractor *extract.Extractor
	store     cache.Store
	logger    zerolog.Logger
}

// NewPipeline creates a new pipeline.
func NewPipeline(fetcher PageFetcher, extractor *extract.Extractor, store cache.Store, logger zerolog.Logger) *Pipeline {
	return &Pipeline{
		fetcher:   fetcher,
		extractor: extractor,
		store:     store,
		logger:    logger.With().Str("event", fetcher.Event()).Logger(),
	}
}

// Event returns the event being harvested.
func (p *Pipeline) Event() string {
	return p.fetcher.Event()
}

// Process fetches page index and, when its content is fresh, extracts and
// persists the parsed artifact. A successful outcome always carries Page.
// A page without a results table becomes a parse-failure outcome and is not
// written to the parsed tier. The error return carries only fatal conditions.
func (p *Pipeline) Process(ctx context.Context, index int) (results.FetchOutcome, error) {
	outcome, err := p.fetcher.Fetch(ctx, index)
	if err != nil {
		return outcome, err
	}
	if !outcome.OK() || outcome.Page != nil {
		return outcome, nil
	}

	logger := p.logger.With().Int("page", index).Str("source", string(outcome.Source)).Logger()

	extraction, err := p.extractor.Extract(outcome.Content)
	if err != nil {
		if !errors.Is(err, results.ErrParseFailure) {
			return outcome, fmt.Errorf("extract page %d: %w", index, err)
		}
		logger.Warn().Err(err).Msg("Page has no results table")

		failed := results.Failure(index, results.OutcomeParseFailure, err)
		failed.Source = outcome.Source
		failed.StatusCode = outcome.StatusCode
		return failed, nil
	}

	if skipped := extraction.Skipped(); skipped > 0 {
		event := logger.Warn().Int("skipped", skipped)
		for reason, count := range extraction.SkipReasons() {
			event = event.Int(string(reason), count)
		}
		event.Msg("Skipped malformed rows")
	}

	page := results.NewPageResult(index, extraction.Records())
	if err := p.store.WriteParsed(ctx, p.fetcher.Event(), index, page); err != nil {
		return outcome, fmt.Errorf("write parsed page %d: %w", index, err)
	}

	logger.Debug().Int("records", len(page.Records)).Msg("Page parsed")

	outcome.Page = page
	return outcome, nil
}
