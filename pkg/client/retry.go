package client

import (
	"context"
	"errors"
	"slices"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for retry operations.
var (
	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "harvest_retries_total",
		Help: "Total number of session retry attempts by reason",
	}, []string{"reason"})

	retryBackoffSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "harvest_retry_backoff_seconds",
		Help:    "Backoff duration before session retries",
		Buckets: []float64{0.5, 1, 2, 4, 8, 16, 32, 64, 120},
	})
)

// RetryPolicy is the session's inner retry layer.
type RetryPolicy struct {
	// MaxRetries is the number of retries after the initial request.
	MaxRetries int

	// BackoffFactor scales the exponential backoff: the n-th retry waits
	// BackoffFactor * 2^(n-1).
	BackoffFactor time.Duration

	// MaxBackoff caps a single wait.
	MaxBackoff time.Duration

	// StatusForcelist lists the statuses retried inside the session.
	StatusForcelist []int
}

// DefaultRetryPolicy returns the default retry policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:      5,
		BackoffFactor:   1 * time.Second,
		MaxBackoff:      120 * time.Second,
		StatusForcelist: []int{500, 502, 503, 504},
	}
}

// Backoff returns the wait before retry number attempt (1-based).
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 || p.BackoffFactor <= 0 {
		return 0
	}

	backoff := p.BackoffFactor
	for i := 1; i < attempt; i++ {
		backoff *= 2
		if p.MaxBackoff > 0 && backoff >= p.MaxBackoff {
			return p.MaxBackoff
		}
		if backoff <= 0 {
			// overflow
			return p.MaxBackoff
		}
	}
	if p.MaxBackoff > 0 && backoff > p.MaxBackoff {
		return p.MaxBackoff
	}
	return backoff
}

// Retryable reports whether statusCode is retried inside the session.
func (p RetryPolicy) Retryable(statusCode int) bool {
	return slices.Contains(p.StatusForcelist, statusCode)
}

// shouldRetry is the session's retry condition. Transport errors are retried
// unless the caller gave up.
func (p RetryPolicy) shouldRetry(resp *resty.Response, err error) bool {
	if err != nil {
		return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
	}
	if resp == nil {
		return false
	}
	return p.Retryable(resp.StatusCode())
}

// apply installs the policy on a resty client.
func (p RetryPolicy) apply(client *resty.Client, logger zerolog.Logger) {
	minWait := p.BackoffFactor
	if minWait <= 0 {
		minWait = time.Millisecond
	}
	maxWait := p.MaxBackoff
	if maxWait < minWait {
		maxWait = minWait
	}

	client.
		SetRetryCount(p.MaxRetries).
		SetRetryWaitTime(minWait).
		SetRetryMaxWaitTime(maxWait).
		SetRetryAfter(func(_ *resty.Client, resp *resty.Response) (time.Duration, error) {
			if resp == nil || resp.Request == nil {
				return 0, nil
			}
			return p.Backoff(resp.Request.Attempt), nil
		}).
		AddRetryCondition(p.shouldRetry).
		AddRetryHook(func(resp *resty.Response, err error) {
			reason := "network"
			attempt := 0
			if resp != nil {
				if err == nil {
					reason = strconv.Itoa(resp.StatusCode())
				}
				if resp.Request != nil {
					attempt = resp.Request.Attempt
				}
			}

			backoff := p.Backoff(attempt)
			retriesTotal.WithLabelValues(reason).Inc()
			retryBackoffSeconds.Observe(backoff.Seconds())

			event := logger.Debug().
				Str("reason", reason).
				Int("attempt", attempt).
				Dur("backoff", backoff)
			if err != nil {
				event = event.Err(err)
			}
			event.Msg("Retrying request after backoff")
		})
}
