package client

import (
	"context"
	"fmt"
	"net/http"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

// SessionConfig configures one HTTP session.
type SessionConfig struct {
	Retry   RetryPolicy
	Timeout time.Duration

	// TLSBypass presents a browser TLS fingerprint to the site.
	TLSBypass bool
}

// Session is a pooled HTTP client with the inner retry policy installed.
// A Session is discarded after a transient error and never reused.
type Session struct {
	http *resty.Client
}

// NewSession builds a fresh session with its own connection pool.
func NewSession(cfg SessionConfig, logger zerolog.Logger) *Session {
	client := resty.New()
	client.SetTransport(http.DefaultTransport.(*http.Transport).Clone())
	if cfg.TLSBypass {
		client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)
	}
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}
	client.SetRedirectPolicy(resty.FlexibleRedirectPolicy(10))
	client.SetLogger(restyLogger{logger: logger})
	cfg.Retry.apply(client, logger)

	return &Session{http: client}
}

// Get performs a GET with the given headers. Retryable statuses and
// transport errors are retried inside the call.
func (s *Session) Get(ctx context.Context, url string, headers http.Header) (*resty.Response, error) {
	resp, err := s.http.R().
		SetContext(ctx).
		SetHeaderMultiValues(headers).
		Get(url)
	if err != nil {
		return resp, fmt.Errorf("get: %w", err)
	}
	return resp, nil
}

// Close releases the session's idle connections.
func (s *Session) Close() {
	s.http.GetClient().CloseIdleConnections()
}

// restyLogger routes resty's internal messages to zerolog.
type restyLogger struct {
	logger zerolog.Logger
}

func (l restyLogger) Errorf(format string, v ...interface{}) {
	l.logger.Error().Msgf(format, v...)
}

func (l restyLogger) Warnf(format string, v ...interface{}) {
	l.logger.Warn().Msgf(format, v...)
}

func (l restyLogger) Debugf(format string, v ...interface{}) {
	l.logger.Debug().Msgf(format, v...)
}
