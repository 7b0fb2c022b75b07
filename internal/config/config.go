// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults.
// - Load layers defaults, an optional YAML file and MINERWATCH_* env vars.
// - Validation errors wrap ErrInvalidConfig.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log encoding: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// FeedURL is the WebSocket endpoint of the miner feed. Empty disables the feed.
	FeedURL string `koanf:"feed_url"`

	// FeedCredential is the static credential presented on connect.
	FeedCredential string `koanf:"feed_credential"`

	// HeartbeatIntervalMS is the ping period while connected.
	HeartbeatIntervalMS int `koanf:"heartbeat_interval_ms"`

	// HeartbeatTimeoutMS is how long the connection may stay silent before it is dropped.
	HeartbeatTimeoutMS int `koanf:"heartbeat_timeout_ms"`

	// ReconnectMinMS and ReconnectMaxMS bound the reconnect backoff.
	ReconnectMinMS int `koanf:"reconnect_min_ms"`
	ReconnectMaxMS int `koanf:"reconnect_max_ms"`

	// ActivityWindowS is how long a connection must stay up before the backoff resets.
	ActivityWindowS int `koanf:"activity_window_s"`

	// QueueSize bounds the frame queue between the socket and the processor.
	QueueSize int `koanf:"queue_size"`

	// PendingMaxSignatures caps how many unresolved signatures are buffered.
	PendingMaxSignatures int `koanf:"pending_max_signatures"`

	// PendingMaxPerSignature caps buffered events per signature.
	PendingMaxPerSignature int `koanf:"pending_max_per_signature"`

	// PendingTTLS drops buffered events older than this many seconds.
	PendingTTLS int `koanf:"pending_ttl_s"`

	// PendingSweepIntervalS is the period of the expiry sweep.
	PendingSweepIntervalS int `koanf:"pending_sweep_interval_s"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:               "info",
		LogFormat:              "text",
		Addr:                   ":9080",
		FeedURL:                "",
		FeedCredential:         "",
		HeartbeatIntervalMS:    15_000,
		HeartbeatTimeoutMS:     45_000,
		ReconnectMinMS:         500,
		ReconnectMaxMS:         30_000,
		ActivityWindowS:        60,
		QueueSize:              10_000,
		PendingMaxSignatures:   10_000,
		PendingMaxPerSignature: 256,
		PendingTTLS:            600,
		PendingSweepIntervalS:  30,
	}
}

// HeartbeatInterval returns the ping period.
func (c *Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.HeartbeatIntervalMS) * time.Millisecond
}

// HeartbeatTimeout returns the silence budget before a connection is dropped.
func (c *Config) HeartbeatTimeout() time.Duration {
	return time.Duration(c.HeartbeatTimeoutMS) * time.Millisecond
}

// ReconnectMin returns the smallest reconnect delay.
func (c *Config) ReconnectMin() time.Duration {
	return time.Duration(c.ReconnectMinMS) * time.Millisecond
}

// ReconnectMax returns the reconnect delay cap.
func (c *Config) ReconnectMax() time.Duration {
	return time.Duration(c.ReconnectMaxMS) * time.Millisecond
}

// ActivityWindow returns the sustained-connectivity window.
func (c *Config) ActivityWindow() time.Duration {
	return time.Duration(c.ActivityWindowS) * time.Second
}

// PendingTTL returns the pending buffer retention.
func (c *Config) PendingTTL() time.Duration {
	return time.Duration(c.PendingTTLS) * time.Second
}

// PendingSweepInterval returns the pending expiry sweep period.
func (c *Config) PendingSweepInterval() time.Duration {
	return time.Duration(c.PendingSweepIntervalS) * time.Second
}

// Validate checks the values Load cannot express through types alone.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Addr) == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.FeedURL != "" && !strings.HasPrefix(c.FeedURL, "ws://") && !strings.HasPrefix(c.FeedURL, "wss://"):
		return fmt.Errorf("%w: feed_url must use ws:// or wss://", ErrInvalidConfig)
	case c.HeartbeatIntervalMS <= 0:
		return fmt.Errorf("%w: heartbeat_interval_ms must be positive", ErrInvalidConfig)
	case c.HeartbeatTimeoutMS <= c.HeartbeatIntervalMS:
		return fmt.Errorf("%w: heartbeat_timeout_ms must exceed heartbeat_interval_ms", ErrInvalidConfig)
	case c.ReconnectMinMS <= 0:
		return fmt.Errorf("%w: reconnect_min_ms must be positive", ErrInvalidConfig)
	case c.ReconnectMaxMS < c.ReconnectMinMS:
		return fmt.Errorf("%w: reconnect_max_ms must not be below reconnect_min_ms", ErrInvalidConfig)
	case c.QueueSize <= 0:
		return fmt.Errorf("%w: queue_size must be positive", ErrInvalidConfig)
	}
	return nil
}
