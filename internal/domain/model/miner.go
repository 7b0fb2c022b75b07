package model

import (
	"strings"
	"time"
)

// Status is a miner lifecycle status as asserted by the feed.
type Status string

// Miner statuses.
const (
	StatusActive   Status = "ACTIVE"
	StatusJoining  Status = "JOINING"
	StatusRunning  Status = "RUNNING"
	StatusMining   Status = "MINING"
	StatusWorking  Status = "WORKING"
	StatusClaiming Status = "CLAIMING"
	StatusClaimed  Status = "CLAIMED"
	StatusExpired  Status = "EXPIRED"
	StatusSlashed  Status = "SLASHED"
)

// Miner is the tracked state of one logical participant.
type Miner struct {
	PrimaryKey       string
	Signature        string
	ClaimedRewards   float64
	UnclaimedRewards float64
	HashCount        uint64
	LastBoost        float64
	LastActiveAt     time.Time
	Status           Status
	HasRecentClaim   bool
}

// NormalizeID folds an identifier for case-insensitive indexing.
func NormalizeID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}
