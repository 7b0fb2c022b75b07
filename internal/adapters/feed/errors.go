package feed

import "errors"

// Sentinel kinds for connection manager errors.
var (
	ErrNoEndpoint      = errors.New("feed endpoint not configured")
	ErrInvalidEndpoint = errors.New("feed endpoint must be a ws:// or wss:// url")
	ErrAlreadyStarted  = errors.New("feed manager already started")
	ErrClosed          = errors.New("feed manager closed")
)
