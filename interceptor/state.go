package interceptor

// State is a worker lifecycle state.
type State int32

const (
	// StateParsed is a constructed worker that has not started installing.
	StateParsed State = iota
	// StateInstalling is entered on Install.
	StateInstalling
	// StateInstalled is a worker waiting to activate.
	StateInstalled
	// StateActivating is entered on Activate; stale stores are deleted here.
	StateActivating
	// StateActive is a worker that intercepts fetches.
	StateActive
	// StateRedundant is a replaced or failed worker.
	StateRedundant
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateParsed:
		return "parsed"
	case StateInstalling:
		return "installing"
	case StateInstalled:
		return "installed"
	case StateActivating:
		return "activating"
	case StateActive:
		return "active"
	case StateRedundant:
		return "redundant"
	default:
		return "unknown"
	}
}

// canTransition reports whether from → to is a legal lifecycle step.
// Any state may become redundant.
func canTransition(from, to State) bool {
	if to == StateRedundant {
		return from != StateRedundant
	}
	return to == from+1
}
