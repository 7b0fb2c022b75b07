// Package types contains common types used across the application
package types

import (
	"time"

	"github.com/okian/minerwatch/internal/domain/model"
)

// MinerView is the read shape of a miner record served to collaborators.
type MinerView struct {
	PrimaryKey       string    `json:"primary_key"`
	Signature        string    `json:"signature,omitempty"`
	ClaimedRewards   float64   `json:"claimed_rewards"`
	UnclaimedRewards float64   `json:"unclaimed_rewards"`
	HashCount        uint64    `json:"hash_count"`
	LastBoost        float64   `json:"last_boost"`
	LastActiveAt     time.Time `json:"last_active_at"`
	Status           string    `json:"status"`
	HasRecentClaim   bool      `json:"has_recent_claim"`
}

// FromMiner converts a record into its read shape.
func FromMiner(m model.Miner) MinerView {
	return MinerView{
		PrimaryKey:       m.PrimaryKey,
		Signature:        m.Signature,
		ClaimedRewards:   m.ClaimedRewards,
		UnclaimedRewards: m.UnclaimedRewards,
		HashCount:        m.HashCount,
		LastBoost:        m.LastBoost,
		LastActiveAt:     m.LastActiveAt,
		Status:           string(m.Status),
		HasRecentClaim:   m.HasRecentClaim,
	}
}
