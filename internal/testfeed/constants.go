package testfeed

import "time"

// HTTP status code constants.
const (
	StatusOK       = 200
	StatusNotFound = 404
)

// Runner configuration constants.
const (
	DefaultSettle        = 2 * time.Second
	ConnectWait          = time.Minute
	PercentageMultiplier = 100
	floatTolerance       = 1e-6
)
