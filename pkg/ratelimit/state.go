// Package ratelimit paces live requests to the results site: a fixed
// politeness delay before every request, and a cooldown window after a
// transient error during which no live request is made.
//
// The cooldown is recorded as a resumption time rather than slept inline, so
// pages served from cache keep flowing while the site rests.
package ratelimit

import (
	"time"
)

// Defaults mirror the pacing the site tolerates.
const (
	DefaultRequestDelay = 2 * time.Second
	DefaultCooldown     = 300 * time.Second
)

// State is the pacing state of one fetcher.
type State struct {
	// CooldownUntil is when live requests may resume. Zero means no cooldown.
	CooldownUntil time.Time `json:"cooldown_until"`

	// CooldownReason describes what triggered the current cooldown.
	CooldownReason string `json:"cooldown_reason,omitempty"`

	// LastRequest is when the last live request was released.
	LastRequest time.Time `json:"last_request"`

	// Cooldowns counts cooldowns started since the tracker was created.
	Cooldowns int `json:"cooldowns"`
}

// InCooldown reports whether live requests are paused at now.
func (s *State) InCooldown(now time.Time) bool {
	return now.Before(s.CooldownUntil)
}

// TimeUntilResume returns how long until live requests may resume.
// Returns 0 if no cooldown is active.
func (s *State) TimeUntilResume(now time.Time) time.Duration {
	duration := s.CooldownUntil.Sub(now)
	if duration < 0 {
		return 0
	}
	return duration
}

// ClearExpired drops a cooldown that has run out.
func (s *State) ClearExpired(now time.Time) {
	if !s.CooldownUntil.IsZero() && !s.InCooldown(now) {
		s.CooldownUntil = time.Time{}
		s.CooldownReason = ""
	}
}
