package interceptor

import (
	"context"

	"github.com/jonwraymond/sitecache/health"
)

type workerChecker struct {
	reg *Registration
}

// NewWorkerChecker reports the registration's active worker as a health
// check named "worker".
func NewWorkerChecker(reg *Registration) health.Checker {
	return &workerChecker{reg: reg}
}

func (c *workerChecker) Name() string { return "worker" }

func (c *workerChecker) Check(context.Context) health.Result {
	st := c.reg.Status()
	details := map[string]any{"clients": st.Clients}
	if st.Waiting != "" {
		details["waiting"] = st.Waiting
	}

	if st.Active == "" {
		if st.Waiting != "" {
			return health.Degraded("no active worker").WithDetails(details)
		}
		return health.Unhealthy("no active worker", ErrNoActiveWorker).WithDetails(details)
	}

	details["version"] = st.Active
	details["state"] = st.ActiveState
	switch st.ActiveState {
	case StateActive.String():
		return health.Healthy("worker active").WithDetails(details)
	case StateRedundant.String():
		return health.Unhealthy("worker redundant", ErrNotActive).WithDetails(details)
	default:
		return health.Degraded("worker " + st.ActiveState).WithDetails(details)
	}
}
