package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and storage clients return
// these (optionally wrapped) so services can translate them into domain errors
// or outcomes:
//   - ErrNotFound: row or object does not exist
//   - ErrConflict: a uniqueness constraint rejected the write
//   - ErrUnavailable: backing service is down or refused the call
var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrUnavailable = errors.New("unavailable")
)
