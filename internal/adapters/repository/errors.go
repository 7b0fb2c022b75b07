package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrNotFound          = errors.New("miner not found")
	ErrSignatureConflict = errors.New("signature already mapped to another key")
	ErrMissingIdentity   = errors.New("event carries neither key nor signature")
)
