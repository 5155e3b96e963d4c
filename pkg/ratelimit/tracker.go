package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for request pacing.
var (
	throttleWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "harvest_throttle_wait_seconds",
		Help:    "Time live requests waited for pacing",
		Buckets: []float64{0.5, 1, 2, 5, 30, 120, 300, 600},
	})

	cooldownsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "harvest_cooldowns_total",
		Help: "Total number of cooldowns started after transient errors",
	})

	cooldownRemainingSeconds = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "harvest_cooldown_remaining_seconds",
		Help: "Seconds until live requests resume (0 when not cooling down)",
	})
)

// Config holds the pacing intervals.
type Config struct {
	// RequestDelay is waited before every live request.
	RequestDelay time.Duration

	// Cooldown is the pause scheduled after a transient error.
	Cooldown time.Duration
}

// DefaultConfig returns the default pacing.
func DefaultConfig() Config {
	return Config{
		RequestDelay: DefaultRequestDelay,
		Cooldown:     DefaultCooldown,
	}
}

// Tracker gates live requests.
type Tracker struct {
	mu     sync.Mutex
	state  State
	config Config
	logger zerolog.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewTracker creates a new pacing tracker.
func NewTracker(config Config, logger zerolog.Logger) *Tracker {
	if config.RequestDelay < 0 {
		config.RequestDelay = 0
	}
	if config.Cooldown < 0 {
		config.Cooldown = 0
	}
	return &Tracker{
		config: config,
		logger: logger,
		now:    time.Now,
		sleep:  sleepContext,
	}
}

// SetClock replaces the time source and sleeper (for testing).
func (t *Tracker) SetClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.now = now
	t.sleep = sleep
}

// State returns a copy of the current state.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Wait blocks until a live request may be sent: first out any active
// cooldown, then the fixed request delay. It returns early with the context's
// error if ctx is done.
func (t *Tracker) Wait(ctx context.Context) error {
	t.mu.Lock()
	now := t.now()
	resume := t.state.TimeUntilResume(now)
	reason := t.state.CooldownReason
	sleep := t.sleep
	t.mu.Unlock()

	if resume > 0 {
		t.logger.Warn().
			Dur("wait_duration", resume).
			Str("reason", reason).
			Msg("Cooling down before next request")
	}

	wait := resume + t.config.RequestDelay
	if wait > 0 {
		throttleWaitSeconds.Observe(wait.Seconds())
		if err := sleep(ctx, wait); err != nil {
			return fmt.Errorf("throttle wait: %w", err)
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	now = t.now()
	t.state.ClearExpired(now)
	t.state.LastRequest = now
	cooldownRemainingSeconds.Set(t.state.TimeUntilResume(now).Seconds())
	return nil
}

// StartCooldown schedules a cooldown from now and returns the resumption
// time. A longer cooldown already in place is kept.
func (t *Tracker) StartCooldown(reason string) time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	until := now.Add(t.config.Cooldown)
	if until.After(t.state.CooldownUntil) {
		t.state.CooldownUntil = until
		t.state.CooldownReason = reason
	}
	t.state.Cooldowns++

	cooldownsTotal.Inc()
	cooldownRemainingSeconds.Set(t.state.TimeUntilResume(now).Seconds())

	t.logger.Warn().
		Str("reason", reason).
		Dur("cooldown", t.config.Cooldown).
		Time("resume_at", t.state.CooldownUntil).
		Msg("Cooldown scheduled")

	return t.state.CooldownUntil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
