package classify

import "errors"

// Sentinel kinds for payload faults. Both mean the frame is discarded.
var (
	ErrMalformedFrame  = errors.New("malformed frame")
	ErrMissingIdentity = errors.New("frame carries neither key nor sig")
)
