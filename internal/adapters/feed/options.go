package feed

import (
	"time"

	"github.com/gorilla/websocket"

	"github.com/okian/minerwatch/pkg/backoff"
	"github.com/okian/minerwatch/pkg/logger"
)

// Default connection settings.
const (
	defaultHeartbeatInterval = 15 * time.Second
	defaultHeartbeatTimeout  = 45 * time.Second
	defaultActivityWindow    = time.Minute
	defaultWriteTimeout      = 5 * time.Second
	defaultHandshakeTimeout  = 10 * time.Second
	defaultReadLimit         = 1 << 20
)

// Option applies a configuration option to the Manager.
type Option func(*Manager)

// WithHeartbeat sets the ping interval and the read deadline extended by every pong or frame.
func WithHeartbeat(interval, timeout time.Duration) Option {
	return func(m *Manager) {
		if interval > 0 {
			m.heartbeatInterval = interval
		}
		if timeout > 0 {
			m.heartbeatTimeout = timeout
		}
	}
}

// WithReconnect sets the reconnect delay bounds.
func WithReconnect(minDelay, maxDelay time.Duration) Option {
	return func(m *Manager) {
		cfg := backoff.DefaultConfig()
		cfg.Min, cfg.Max = minDelay, maxDelay
		m.backoff = backoff.New(cfg)
	}
}

// WithBackoff sets a prepared backoff.
func WithBackoff(b *backoff.Backoff) Option {
	return func(m *Manager) {
		if b != nil {
			m.backoff = b
		}
	}
}

// WithActivityWindow sets how long a connection must stay up for the backoff to reset.
func WithActivityWindow(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.activityWindow = d
		}
	}
}

// WithWriteTimeout bounds control frame writes.
func WithWriteTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.writeTimeout = d
		}
	}
}

// WithReadLimit caps the size of an inbound frame in bytes. A larger frame
// drops the connection.
func WithReadLimit(n int64) Option {
	return func(m *Manager) {
		if n > 0 {
			m.readLimit = n
		}
	}
}

// WithDialer sets a custom websocket dialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(m *Manager) {
		if d != nil {
			m.dialer = d
		}
	}
}

// WithLogger sets a custom logger for the manager.
func WithLogger(l logger.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}
