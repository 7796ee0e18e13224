// Package interceptor serves requests from a versioned cache store and falls
// back to the network, storing successful same-origin responses for next time.
//
// A Worker is an explicit state machine:
//
//	parsed → installing → installed → activating → active → redundant
//
// Lifecycle transitions are messages handled one at a time by the worker's
// own goroutine, so "skip waiting before activate" and "delete stale stores,
// then claim clients, then serve" hold by construction. Fetches run on the
// caller's goroutine and may overlap freely.
//
// A Registration owns the succession of workers for one scope. Transport and
// NewProxy put a Registration in front of an origin.
package interceptor
