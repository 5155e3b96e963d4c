// Package client fetches results pages for one event, serving them from the
// page cache when possible and from the site otherwise.
//
// A live fetch goes through a pooled session that retries server errors on
// its own. Anything the session cannot recover from is reported as a
// transient outcome, after which the session is replaced and a cooldown is
// scheduled on the pacing tracker.
package client

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Sternrassler/parkrun-harvester/pkg/cache"
	"github.com/Sternrassler/parkrun-harvester/pkg/ratelimit"
	"github.com/Sternrassler/parkrun-harvester/pkg/results"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for page fetches.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "harvest_requests_total",
		Help: "Total live page requests by final status",
	}, []string{"status"})

	requestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "harvest_request_duration_seconds",
		Help:    "Live page request duration in seconds, retries included",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
	})

	sessionResetsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "harvest_session_resets_total",
		Help: "Total number of sessions replaced after transient errors",
	})

	fetchOutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "harvest_fetch_outcomes_total",
		Help: "Total page fetches by outcome and source",
	}, []string{"outcome", "source"})
)

// DefaultBaseURL is the site the harvester reads from.
const DefaultBaseURL = "https://www.parkrun.org.uk"

// URLMode selects how a page index is addressed.
type URLMode string

const (
	// URLModePage addresses /<event>/results/<index>/.
	URLModePage URLMode = "page"

	// URLModeWeekly addresses /<event>/results/weeklyresults/?runSeqNumber=<index>.
	URLModeWeekly URLMode = "weekly"
)

// Config holds the fetcher configuration.
type Config struct {
	// BaseURL is the site root, without the event.
	BaseURL string

	// Event is the event path segment, e.g. "bushy".
	Event string

	// Mode selects the page addressing scheme.
	Mode URLMode

	// Session settings, applied to every session the fetcher builds.
	Retry     RetryPolicy
	Timeout   time.Duration
	TLSBypass bool
}

// DefaultConfig returns a default configuration for event.
func DefaultConfig(event string) Config {
	return Config{
		BaseURL: DefaultBaseURL,
		Event:   event,
		Mode:    URLModePage,
		Retry:   DefaultRetryPolicy(),
		Timeout: 30 * time.Second,
	}
}

// Fetcher produces one FetchOutcome per page index.
type Fetcher struct {
	mu       sync.Mutex
	session  *Session
	sessions int

	store   cache.Store
	tracker *ratelimit.Tracker
	config  Config
	logger  zerolog.Logger
}

// New creates a new fetcher.
func New(cfg Config, store cache.Store, tracker *ratelimit.Tracker, logger zerolog.Logger) (*Fetcher, error) {
	cfg.Event = strings.Trim(cfg.Event, "/ ")
	if cfg.Event == "" {
		return nil, ErrEventRequired
	}
	if store == nil {
		return nil, fmt.Errorf("cache store is required")
	}
	if tracker == nil {
		return nil, fmt.Errorf("pacing tracker is required")
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if u, err := url.Parse(cfg.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", cfg.BaseURL)
	}

	switch cfg.Mode {
	case "":
		cfg.Mode = URLModePage
	case URLModePage, URLModeWeekly:
	default:
		return nil, fmt.Errorf("unknown url mode %q", cfg.Mode)
	}

	if cfg.Retry.MaxRetries < 0 {
		return nil, fmt.Errorf("max retries must be >= 0 (got %d)", cfg.Retry.MaxRetries)
	}

	logger = logger.With().Str("event", cfg.Event).Logger()

	f := &Fetcher{
		store:   store,
		tracker: tracker,
		config:  cfg,
		logger:  logger,
	}
	f.session = f.newSession()
	f.sessions = 1
	return f, nil
}

// Event returns the event the fetcher reads.
func (f *Fetcher) Event() string {
	return f.config.Event
}

// PageURL returns the URL of page index.
func (f *Fetcher) PageURL(index int) string {
	if f.config.Mode == URLModeWeekly {
		return fmt.Sprintf("%s/%s/results/weeklyresults/?runSeqNumber=%d", f.config.BaseURL, f.config.Event, index)
	}
	return fmt.Sprintf("%s/%s/results/%d/", f.config.BaseURL, f.config.Event, index)
}

// Sessions returns how many sessions the fetcher has built.
func (f *Fetcher) Sessions() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessions
}

// Close releases the current session.
func (f *Fetcher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.session.Close()
	return nil
}

// Fetch returns the outcome for page index. The parsed artifact wins over the
// raw snapshot, which wins over the network. The error return is reserved for
// conditions that must stop the run: cache I/O failures, a corrupt parsed
// artifact, and context cancellation.
func (f *Fetcher) Fetch(ctx context.Context, index int) (results.FetchOutcome, error) {
	if err := ctx.Err(); err != nil {
		return results.FetchOutcome{}, err
	}

	event := f.config.Event
	logger := f.logger.With().Int("page", index).Logger()

	// Step 1: Parsed artifact
	hasParsed, err := f.store.HasParsed(ctx, event, index)
	if err != nil {
		return results.FetchOutcome{}, fmt.Errorf("check parsed page %d: %w", index, err)
	}
	if hasParsed {
		page, err := f.store.ReadParsed(ctx, event, index)
		if err != nil {
			return results.FetchOutcome{}, fmt.Errorf("read parsed page %d: %w", index, err)
		}
		logger.Debug().Int("records", len(page.Records)).Msg("Serving page from parsed cache")
		return f.record(results.FetchOutcome{
			Index:  index,
			Kind:   results.OutcomeSuccess,
			Source: results.SourceParsedCache,
			Page:   page,
		}), nil
	}

	// Step 2: Raw snapshot
	hasRaw, err := f.store.HasRaw(ctx, event, index)
	if err != nil {
		return results.FetchOutcome{}, fmt.Errorf("check raw page %d: %w", index, err)
	}
	if hasRaw {
		content, err := f.store.ReadRaw(ctx, event, index)
		if err != nil {
			return results.FetchOutcome{}, fmt.Errorf("read raw page %d: %w", index, err)
		}
		logger.Debug().Int("bytes", len(content)).Msg("Serving page from raw cache")
		return f.record(results.FetchOutcome{
			Index:   index,
			Kind:    results.OutcomeSuccess,
			Source:  results.SourceRawCache,
			Content: content,
		}), nil
	}

	// Step 3: Live request
	return f.fetchLive(ctx, index, logger)
}

func (f *Fetcher) fetchLive(ctx context.Context, index int, logger zerolog.Logger) (results.FetchOutcome, error) {
	if err := f.tracker.Wait(ctx); err != nil {
		return results.FetchOutcome{}, err
	}

	pageURL := f.PageURL(index)
	headers := RandomHeaders(f.config.BaseURL, f.config.Event)

	f.mu.Lock()
	session := f.session
	f.mu.Unlock()

	logger.Debug().Str("url", pageURL).Msg("Requesting page")

	startTime := time.Now()
	resp, err := session.Get(ctx, pageURL, headers)
	requestDuration.Observe(time.Since(startTime).Seconds())

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return results.FetchOutcome{}, ctxErr
		}
		requestsTotal.WithLabelValues("network_error").Inc()
		return f.transient(index, &StatusError{
			URL:  pageURL,
			Kind: results.OutcomeTransient,
			Err:  err,
		}, logger), nil
	}

	statusCode := resp.StatusCode()
	requestsTotal.WithLabelValues(strconv.Itoa(statusCode)).Inc()

	kind := classifyStatus(statusCode)
	switch kind {
	case results.OutcomeSuccess:
		content, err := decodeBody(resp.Header().Get("Content-Encoding"), resp.Body())
		if err != nil {
			return f.transient(index, &StatusError{
				URL:        pageURL,
				StatusCode: statusCode,
				Kind:       results.OutcomeTransient,
				Err:        err,
			}, logger), nil
		}

		// Persist before handing the content on.
		if err := f.store.WriteRaw(ctx, f.config.Event, index, content); err != nil {
			return results.FetchOutcome{}, fmt.Errorf("write raw page %d: %w", index, err)
		}

		logger.Debug().
			Int("status", statusCode).
			Int("bytes", len(content)).
			Msg("Fetched page")

		return f.record(results.FetchOutcome{
			Index:      index,
			Kind:       results.OutcomeSuccess,
			Source:     results.SourceNetwork,
			StatusCode: statusCode,
			Content:    content,
		}), nil

	case results.OutcomeNotFound, results.OutcomeRateLimited:
		logger.Info().
			Int("status", statusCode).
			Str("outcome", kind.String()).
			Msg("Page not available")

		outcome := results.Failure(index, kind, &StatusError{
			URL:        pageURL,
			StatusCode: statusCode,
			Kind:       kind,
		})
		outcome.Source = results.SourceNetwork
		outcome.StatusCode = statusCode
		return f.record(outcome), nil

	default:
		return f.transient(index, &StatusError{
			URL:        pageURL,
			StatusCode: statusCode,
			Kind:       results.OutcomeTransient,
		}, logger), nil
	}
}

// transient replaces the session, schedules a cooldown and reports the page
// as a transient failure. The page is not retried here.
func (f *Fetcher) transient(index int, statusErr *StatusError, logger zerolog.Logger) results.FetchOutcome {
	reason := "network error"
	if statusErr.StatusCode != 0 {
		reason = fmt.Sprintf("HTTP %d", statusErr.StatusCode)
	}

	logger.Warn().
		Err(statusErr).
		Int("status", statusErr.StatusCode).
		Msg("Transient error, replacing session")

	f.resetSession()
	f.tracker.StartCooldown(reason)

	outcome := results.Failure(index, results.OutcomeTransient, statusErr)
	outcome.Source = results.SourceNetwork
	outcome.StatusCode = statusErr.StatusCode
	return f.record(outcome)
}

func (f *Fetcher) resetSession() {
	fresh := f.newSession()

	f.mu.Lock()
	old := f.session
	f.session = fresh
	f.sessions++
	f.mu.Unlock()

	old.Close()
	sessionResetsTotal.Inc()
}

func (f *Fetcher) newSession() *Session {
	return NewSession(SessionConfig{
		Retry:     f.config.Retry,
		Timeout:   f.config.Timeout,
		TLSBypass: f.config.TLSBypass,
	}, f.logger)
}

func (f *Fetcher) record(outcome results.FetchOutcome) results.FetchOutcome {
	fetchOutcomesTotal.WithLabelValues(outcome.Kind.String(), string(outcome.Source)).Inc()
	return outcome
}
