package pagination

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Sternrassler/parkrun-harvester/pkg/results"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for the pagination loop.
var (
	pagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "harvest_pages_total",
		Help: "Total pages processed by outcome",
	}, []string{"outcome"})

	consecutiveFailures = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "harvest_consecutive_failures",
		Help: "Current number of consecutive page failures",
	})
)

var (
	// ErrStopped is returned by Step once the controller has stopped.
	ErrStopped = errors.New("pagination stopped")

	// ErrEmptyPage marks a found but empty results table when such pages
	// count as failures.
	ErrEmptyPage = errors.New("results table has no rows")
)

// Processor is the interface the page pipeline must implement.
type Processor interface {
	// Process returns the outcome for index. A successful outcome carries
	// Page. A non-nil error is fatal to the run.
	Process(ctx context.Context, index int) (results.FetchOutcome, error)
}

// Progress receives a report after every step.
type Progress interface {
	Update(fetched, current int)
}

// NopProgress discards progress reports.
type NopProgress struct{}

// Update implements Progress.
func (NopProgress) Update(int, int) {}

// Config holds controller configuration.
type Config struct {
	// StartIndex is the first page index requested.
	StartIndex int

	// MaxConsecutiveFailures stops the run once this many pages in a row fail.
	MaxConsecutiveFailures int

	// EmptyPageIsFailure counts a results table without rows as a failure.
	// The empty artifact stays cached either way.
	EmptyPageIsFailure bool
}

// DefaultConfig returns the default controller configuration.
func DefaultConfig() Config {
	return Config{
		StartIndex:             1,
		MaxConsecutiveFailures: 3,
	}
}

// State is the controller's lifecycle state.
type State int

const (
	StateRunning State = iota
	StateStopped
)

// String implements fmt.Stringer.
func (s State) String() string {
	if s == StateStopped {
		return "stopped"
	}
	return "running"
}

// StopReason explains why a run ended.
type StopReason struct {
	// ConsecutiveFailures is the failure count when the run stopped.
	ConsecutiveFailures int

	// LastFailure is the kind of the last failed page. Meaningless for a
	// fatal stop.
	LastFailure results.OutcomeKind

	// LastIndex is the index processed last.
	LastIndex int

	// Err is the last page failure, or the fatal error.
	Err error

	// Fatal is set when the run stopped on an error rather than on the
	// failure threshold.
	Fatal bool
}

// String implements fmt.Stringer.
func (r *StopReason) String() string {
	if r == nil {
		return "running"
	}
	if r.Fatal {
		return fmt.Sprintf("fatal error at page %d: %v", r.LastIndex, r.Err)
	}
	return fmt.Sprintf("too many consecutive failures (%d, last: %s at page %d)",
		r.ConsecutiveFailures, r.LastFailure, r.LastIndex)
}

// Result is the aggregate of a run.
type Result struct {
	// Pages holds the usable pages in index order.
	Pages []*results.PageResult

	// Fetched is len(Pages).
	Fetched int

	// Records is the total record count over Pages.
	Records int

	// LastIndex is the index processed last, 0 if none.
	LastIndex int

	State  State
	Reason *StopReason

	Duration time.Duration
}

// Controller drives the pagination loop. It is not safe for concurrent use.
type Controller struct {
	processor Processor
	config    Config
	progress  Progress
	logger    zerolog.Logger

	state     State
	index     int
	lastIndex int
	failures  int
	pages     []*results.PageResult
	records   int
	reason    *StopReason
	started   time.Time
}

// NewController creates a new controller. A nil progress discards reports.
func NewController(processor Processor, config Config, progress Progress, logger zerolog.Logger) *Controller {
	if config.StartIndex <= 0 {
		config.StartIndex = 1
	}
	if config.MaxConsecutiveFailures <= 0 {
		config.MaxConsecutiveFailures = 3
	}
	if progress == nil {
		progress = NopProgress{}
	}

	return &Controller{
		processor: processor,
		config:    config,
		progress:  progress,
		logger:    logger,
		state:     StateRunning,
		index:     config.StartIndex,
		pages:     []*results.PageResult{},
	}
}

// State returns the lifecycle state.
func (c *Controller) State() State { return c.state }

// Index returns the next index to process.
func (c *Controller) Index() int { return c.index }

// ConsecutiveFailures returns the current failure counter.
func (c *Controller) ConsecutiveFailures() int { return c.failures }

// Step processes the current index and advances. It returns ErrStopped once
// the controller has stopped, and any fatal error from the processor (which
// also stops the controller).
func (c *Controller) Step(ctx context.Context) error {
	if c.state == StateStopped {
		return ErrStopped
	}
	if c.started.IsZero() {
		c.started = time.Now()
	}

	index := c.index
	c.lastIndex = index

	if err := ctx.Err(); err != nil {
		return c.fail(index, err)
	}

	outcome, err := c.processor.Process(ctx, index)
	if err != nil {
		return c.fail(index, err)
	}

	if outcome.OK() && outcome.Page == nil {
		return c.fail(index, fmt.Errorf("page %d: successful outcome without page", index))
	}

	kind, cause := outcome.Kind, outcome.Err
	if outcome.OK() && c.config.EmptyPageIsFailure && len(outcome.Page.Records) == 0 {
		kind, cause = results.OutcomeParseFailure, ErrEmptyPage
	}

	logger := c.logger.With().
		Int("page", index).
		Str("source", string(outcome.Source)).
		Logger()

	if kind == results.OutcomeSuccess {
		c.pages = append(c.pages, outcome.Page)
		c.records += len(outcome.Page.Records)
		c.failures = 0
		pagesTotal.WithLabelValues(kind.String()).Inc()

		logger.Debug().
			Int("records", len(outcome.Page.Records)).
			Int("fetched", len(c.pages)).
			Msg("Page harvested")
	} else {
		c.failures++
		pagesTotal.WithLabelValues(kind.String()).Inc()

		logger.Info().
			Err(cause).
			Str("outcome", kind.String()).
			Int("consecutive_failures", c.failures).
			Msg("Page failed")

		if c.failures >= c.config.MaxConsecutiveFailures {
			c.stop(&StopReason{
				ConsecutiveFailures: c.failures,
				LastFailure:         kind,
				LastIndex:           index,
				Err:                 cause,
			})
		}
	}
	consecutiveFailures.Set(float64(c.failures))

	if c.state == StateRunning {
		c.index++
	}
	c.progress.Update(len(c.pages), index)
	return nil
}

// Run steps until the controller stops. Running out of pages is the normal
// end and returns a nil error. A fatal error is returned together with the
// partial result.
func (c *Controller) Run(ctx context.Context) (*Result, error) {
	for c.state == StateRunning {
		if err := c.Step(ctx); err != nil {
			return c.Result(), err
		}
	}

	result := c.Result()
	c.logger.Info().
		Int("pages", result.Fetched).
		Int("records", result.Records).
		Int("last_index", result.LastIndex).
		Str("reason", result.Reason.String()).
		Dur("duration", result.Duration).
		Msg("Harvest complete")

	return result, nil
}

// Result returns the aggregate so far.
func (c *Controller) Result() *Result {
	var duration time.Duration
	if !c.started.IsZero() {
		duration = time.Since(c.started)
	}
	return &Result{
		Pages:     c.pages,
		Fetched:   len(c.pages),
		Records:   c.records,
		LastIndex: c.lastIndex,
		State:     c.state,
		Reason:    c.reason,
		Duration:  duration,
	}
}

func (c *Controller) fail(index int, err error) error {
	c.stop(&StopReason{
		ConsecutiveFailures: c.failures,
		LastIndex:           index,
		Err:                 err,
		Fatal:               true,
	})

	c.logger.Error().
		Err(err).
		Int("page", index).
		Int("fetched", len(c.pages)).
		Msg("Harvest stopped on fatal error")

	return fmt.Errorf("page %d: %w", index, err)
}

func (c *Controller) stop(reason *StopReason) {
	c.state = StateStopped
	c.reason = reason
}
