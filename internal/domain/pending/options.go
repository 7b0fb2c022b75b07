package pending

import "time"

// Option applies a configuration option to the in-memory buffer.
type Option func(*inMemoryBuffer)

// WithMaxSignatures bounds the number of distinct signatures held.
// If n > 0: the oldest signature is evicted when a new one would exceed it.
// If n <= 0: unbounded.
func WithMaxSignatures(n int) Option {
	return func(b *inMemoryBuffer) {
		b.maxSignatures = n
	}
}

// WithMaxPerSignature bounds the events held per signature; the oldest is dropped.
// n <= 0 means unbounded.
func WithMaxPerSignature(n int) Option {
	return func(b *inMemoryBuffer) {
		b.maxPerSignature = n
	}
}

// WithTTL drops events older than ttl. Zero disables expiry.
func WithTTL(ttl time.Duration) Option {
	return func(b *inMemoryBuffer) {
		if ttl >= 0 {
			b.ttl = ttl
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(b *inMemoryBuffer) {
		if now != nil {
			b.now = now
		}
	}
}
