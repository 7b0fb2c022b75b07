package repository

import (
	"github.com/okian/minerwatch/internal/domain/pending"
	"github.com/okian/minerwatch/pkg/logger"
)

// Option applies a configuration option to the MinerStore.
type Option func(*MinerStore)

// WithPendingBuffer sets the buffer used for signature-only events.
func WithPendingBuffer(b pending.Buffer) Option {
	return func(s *MinerStore) {
		if b != nil {
			s.pending = b
		}
	}
}

// WithLogger sets a custom logger for the store.
func WithLogger(l logger.Logger) Option {
	return func(s *MinerStore) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithConflictHook registers an observer for rejected signature remaps.
func WithConflictHook(fn func(sig, boundKey, claimedKey string)) Option {
	return func(s *MinerStore) {
		if fn != nil {
			s.onConflict = fn
		}
	}
}
