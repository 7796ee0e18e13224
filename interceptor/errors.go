package interceptor

import "errors"

// Sentinel errors for interceptor operations.
var (
	ErrMissingVersion   = errors.New("interceptor: version identifier is required")
	ErrNilStorage       = errors.New("interceptor: storage is nil")
	ErrNilFetcher       = errors.New("interceptor: fetcher is nil")
	ErrNotActive        = errors.New("interceptor: worker is not active")
	ErrInvalidState     = errors.New("interceptor: invalid lifecycle transition")
	ErrWorkerStopped    = errors.New("interceptor: worker is stopped")
	ErrNotStarted       = errors.New("interceptor: worker is not started")
	ErrAlreadyStarted   = errors.New("interceptor: worker is already started")
	ErrSameVersion      = errors.New("interceptor: version is already active")
	ErrNoActiveWorker   = errors.New("interceptor: no active worker")
	ErrInvalidScope     = errors.New("interceptor: scope must be an absolute origin")
	ErrRegistrationDone = errors.New("interceptor: registration is closed")
)

// ErrNoResponse is returned by Transport when the network produced neither a
// response nor an error.
var ErrNoResponse = errors.New("interceptor: network returned no response")
