// Package repository holds the identity resolver and the miner state store.
package repository

import (
	"context"

	"github.com/okian/minerwatch/internal/domain/model"
)

// Outcome reports what Apply did with an event.
type Outcome int

// Apply outcomes.
const (
	OutcomeIgnored Outcome = iota
	OutcomeApplied
	OutcomeBuffered
)

func (o Outcome) String() string {
	switch o {
	case OutcomeApplied:
		return "applied"
	case OutcomeBuffered:
		return "buffered"
	default:
		return "ignored"
	}
}

// Store provides read/write access to miner state.
type Store interface {
	// Apply resolves the event to a miner and applies its effect.
	// Signature-only events with no known key are buffered.
	Apply(ctx context.Context, ev model.Event) (Outcome, error)

	// Lookup finds a miner by primary key or signature, case-insensitive.
	// Returns ErrNotFound if neither is known.
	Lookup(ctx context.Context, id string) (model.Miner, error)

	// Miners returns a copy of every record ordered by primary key.
	Miners(ctx context.Context) []model.Miner

	// Count returns the number of miners tracked.
	Count(ctx context.Context) int

	// PendingLen returns the number of events waiting for a key.
	PendingLen(ctx context.Context) int

	// Sweep drops expired pending events and returns how many were removed.
	Sweep(ctx context.Context) int

	// Clear resets records, mappings and pending events.
	Clear(ctx context.Context)
}
