package service

import (
	"context"
	"time"

	"github.com/okian/minerwatch/internal/domain/model"
	"github.com/okian/minerwatch/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithQueueSize sets the maximum number of frames waiting for the processor.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithFeed sets the feed endpoint and credential. Without an endpoint the
// service runs the pipeline only and frames arrive through Ingest.
func WithFeed(endpoint, credential string) Option {
	return func(s *Service) {
		s.feedURL = endpoint
		s.feedCredential = credential
	}
}

// WithHeartbeat sets the ping interval and timeout of the feed connection.
func WithHeartbeat(interval, timeout time.Duration) Option {
	return func(s *Service) {
		if interval > 0 && timeout > 0 {
			s.heartbeatInterval = interval
			s.heartbeatTimeout = timeout
		}
	}
}

// WithReconnect sets the reconnect delay bounds.
func WithReconnect(minDelay, maxDelay time.Duration) Option {
	return func(s *Service) {
		if minDelay > 0 && maxDelay >= minDelay {
			s.reconnectMin = minDelay
			s.reconnectMax = maxDelay
		}
	}
}

// WithActivityWindow sets how long a connection must last to reset the backoff.
func WithActivityWindow(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.activityWindow = d
		}
	}
}

// WithPendingLimits bounds the buffer of signature-only events.
func WithPendingLimits(maxSignatures, maxPerSignature int, ttl time.Duration) Option {
	return func(s *Service) {
		s.pendingMaxSignatures = maxSignatures
		s.pendingMaxPerSignature = maxPerSignature
		s.pendingTTL = ttl
	}
}

// WithSweepInterval sets how often expired pending events are dropped.
func WithSweepInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.sweepInterval = d
		}
	}
}

// WithUnrecognizedHook observes classifications no rule matched.
func WithUnrecognizedHook(fn func(ctx context.Context, tag model.Tag)) Option {
	return func(s *Service) {
		if fn != nil {
			s.onUnrecognized = fn
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(logger logger.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}
