package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Ledger backends and content stores
// return these (optionally wrapped) and services translate them into domain errors.
//
//   - ErrNotFound: record or blob does not exist
//   - ErrConflict: optimistic version check failed on write
//   - ErrAlreadyUsed: create of a key that already exists
//   - ErrInvalidState: stored data cannot be interpreted
//   - ErrUnavailable: backend temporarily unavailable
//
// For validation errors (bad input, missing fields), use pkg/domain-errors directly.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrAlreadyUsed  = errors.New("already used")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
