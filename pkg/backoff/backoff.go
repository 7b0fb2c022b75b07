// Package backoff provides capped exponential delays for reconnect loops.
package backoff

import (
	"math"
	"math/rand"
	"sync"
	"time"
)

// Default backoff configuration constants.
const (
	defaultMin        = 250 * time.Millisecond
	defaultMax        = 30 * time.Second
	defaultMultiplier = 2.0
	jitterFraction    = 0.1
)

// Config holds backoff configuration.
type Config struct {
	Min        time.Duration
	Max        time.Duration
	Multiplier float64
	Jitter     bool
}

// DefaultConfig returns the reconnect defaults.
func DefaultConfig() Config {
	return Config{
		Min:        defaultMin,
		Max:        defaultMax,
		Multiplier: defaultMultiplier,
		Jitter:     true,
	}
}

// Backoff hands out successive delays. It is safe for concurrent use.
type Backoff struct {
	mu      sync.Mutex
	cfg     Config
	attempt int
	rnd     func() float64
}

// New creates a Backoff, normalising invalid settings to the defaults.
func New(cfg Config) *Backoff {
	def := DefaultConfig()
	if cfg.Min <= 0 {
		cfg.Min = def.Min
	}
	if cfg.Max <= 0 {
		cfg.Max = def.Max
	}
	if cfg.Max < cfg.Min {
		cfg.Max = cfg.Min
	}
	if cfg.Multiplier < 1 {
		cfg.Multiplier = def.Multiplier
	}
	return &Backoff{cfg: cfg, rnd: rand.Float64}
}

// Next returns the delay for the current attempt and advances the attempt counter.
// The result is always within [Min, Max].
func (b *Backoff) Next() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	d := b.delay(b.attempt)
	b.attempt++
	return d
}

// Peek returns the delay Next would return, without advancing.
func (b *Backoff) Peek() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.delay(b.attempt)
}

// Reset returns the backoff to its minimum delay.
func (b *Backoff) Reset() {
	b.mu.Lock()
	b.attempt = 0
	b.mu.Unlock()
}

// Attempt returns the number of delays handed out since the last Reset.
func (b *Backoff) Attempt() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempt
}

// Config returns the effective configuration.
func (b *Backoff) Config() Config {
	return b.cfg
}

// delay calculates the delay for the given attempt. Must be called with b.mu held.
func (b *Backoff) delay(attempt int) time.Duration {
	d := float64(b.cfg.Min) * math.Pow(b.cfg.Multiplier, float64(attempt))
	d = min(d, float64(b.cfg.Max))

	if b.cfg.Jitter {
		// up to 10% extra, still capped
		d += d * jitterFraction * b.rnd()
		d = min(d, float64(b.cfg.Max))
	}

	return time.Duration(d)
}
