package ratelimit

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// fakeClock advances virtual time whenever the tracker sleeps.
type fakeClock struct {
	now    time.Time
	sleeps []time.Duration
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

func newTestTracker(cfg Config) (*Tracker, *fakeClock) {
	logger := zerolog.New(os.Stderr).Level(zerolog.Disabled)
	tracker := NewTracker(cfg, logger)
	clock := &fakeClock{now: time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)}
	tracker.SetClock(clock.Now, clock.Sleep)
	return tracker, clock
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.RequestDelay != 2*time.Second {
		t.Errorf("RequestDelay = %v, want 2s", cfg.RequestDelay)
	}
	if cfg.Cooldown != 300*time.Second {
		t.Errorf("Cooldown = %v, want 300s", cfg.Cooldown)
	}
}

func TestTracker_WaitAppliesRequestDelay(t *testing.T) {
	tracker, clock := newTestTracker(Config{RequestDelay: 2 * time.Second, Cooldown: time.Minute})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := tracker.Wait(ctx); err != nil {
			t.Fatalf("Wait() error = %v", err)
		}
	}

	if len(clock.sleeps) != 3 {
		t.Fatalf("expected 3 sleeps, got %d", len(clock.sleeps))
	}
	for i, d := range clock.sleeps {
		if d != 2*time.Second {
			t.Errorf("sleep %d = %v, want 2s", i, d)
		}
	}

	if got := tracker.State().LastRequest; !got.Equal(clock.now) {
		t.Errorf("LastRequest = %v, want %v", got, clock.now)
	}
}

func TestTracker_ZeroDelayDoesNotSleep(t *testing.T) {
	tracker, clock := newTestTracker(Config{})

	if err := tracker.Wait(context.Background()); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if len(clock.sleeps) != 0 {
		t.Errorf("expected no sleep, got %v", clock.sleeps)
	}
}

func TestTracker_CooldownDelaysNextRequest(t *testing.T) {
	tracker, clock := newTestTracker(Config{RequestDelay: 2 * time.Second, Cooldown: 300 * time.Second})
	ctx := context.Background()

	resume := tracker.StartCooldown("HTTP 403")
	if want := clock.now.Add(300 * time.Second); !resume.Equal(want) {
		t.Errorf("StartCooldown() = %v, want %v", resume, want)
	}

	state := tracker.State()
	if !state.InCooldown(clock.now) {
		t.Fatal("tracker should be cooling down")
	}
	if state.Cooldowns != 1 {
		t.Errorf("Cooldowns = %d, want 1", state.Cooldowns)
	}

	// Time passes without live requests (cache hits)
	clock.now = clock.now.Add(100 * time.Second)

	if err := tracker.Wait(ctx); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if len(clock.sleeps) != 1 || clock.sleeps[0] != 202*time.Second {
		t.Errorf("sleeps = %v, want [202s]", clock.sleeps)
	}

	state = tracker.State()
	if !state.CooldownUntil.IsZero() {
		t.Errorf("cooldown should be cleared after waiting, got %v", state.CooldownUntil)
	}
}

func TestTracker_CooldownKeepsLongerWindow(t *testing.T) {
	tracker, clock := newTestTracker(Config{Cooldown: 300 * time.Second})

	first := tracker.StartCooldown("first")
	clock.now = clock.now.Add(-10 * time.Second) // clock skew backwards
	second := tracker.StartCooldown("second")

	if !second.Equal(first) {
		t.Errorf("shorter cooldown replaced longer one: %v vs %v", second, first)
	}
	if tracker.State().CooldownReason != "first" {
		t.Errorf("CooldownReason = %q, want first", tracker.State().CooldownReason)
	}
}

func TestTracker_WaitContextCancelled(t *testing.T) {
	tracker, _ := newTestTracker(Config{RequestDelay: time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := tracker.Wait(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Wait() error = %v, want context.Canceled", err)
	}
}

func TestSleepContext(t *testing.T) {
	start := time.Now()
	if err := sleepContext(context.Background(), 10*time.Millisecond); err != nil {
		t.Fatalf("sleepContext() error = %v", err)
	}
	if time.Since(start) < 10*time.Millisecond {
		t.Error("sleepContext() returned early")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	if err := sleepContext(ctx, time.Minute); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("sleepContext() error = %v, want DeadlineExceeded", err)
	}
}
