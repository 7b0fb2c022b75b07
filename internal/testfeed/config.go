package testfeed

import "time"

// Config holds configuration for a simulated feed run.
type Config struct {
	Listen        string        // address the simulated feed listens on
	Path          string        // WebSocket path
	Credential    string        // bearer token clients must present; empty accepts any
	BaseURL       string        // base URL of the service HTTP API
	Miners        int           // number of miners to simulate
	Seed          int64         // generator seed; equal seeds give equal scripts
	SigFirstShare float64       // share of miners whose first events carry only a signature
	Malformed     int           // frames that are not valid JSON
	Anonymous     int           // frames with neither key nor sig
	Unknown       int           // frames whose tag matches no rule
	Interval      time.Duration // delay between frames
	Timeout       time.Duration // HTTP request timeout
	Settle        time.Duration // wait after the last frame before verifying
	OutputFile    string        // where the generated frames are written
	LogFile       string        // log file for test output
	Verbose       bool          // enable verbose logging
}

// Expected is the state a miner must reach once every frame is applied.
type Expected struct {
	Key            string  `json:"key"`
	Signature      string  `json:"signature"`
	Claimed        float64 `json:"claimed"`
	Unclaimed      float64 `json:"unclaimed"`
	HashCount      uint64  `json:"hash_count"`
	Status         string  `json:"status"`
	HasRecentClaim bool    `json:"has_recent_claim"`
}

// Miner mirrors the service's JSON miner view.
type Miner struct {
	PrimaryKey       string    `json:"primary_key"`
	Signature        string    `json:"signature"`
	ClaimedRewards   float64   `json:"claimed_rewards"`
	UnclaimedRewards float64   `json:"unclaimed_rewards"`
	HashCount        uint64    `json:"hash_count"`
	LastBoost        float64   `json:"last_boost"`
	LastActiveAt     time.Time `json:"last_active_at"`
	Status           string    `json:"status"`
	HasRecentClaim   bool      `json:"has_recent_claim"`
}

// Script is a generated feed: frames in send order plus the expected outcome.
type Script struct {
	Frames   [][]byte
	Expected []Expected
}

// Stats holds run statistics.
type Stats struct {
	FramesGenerated int
	FramesSent      int
	MinersChecked   int
	MinersMatched   int
	Mismatches      int
	StartTime       time.Time
	EndTime         time.Time
	Duration        time.Duration
}
