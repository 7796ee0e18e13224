// Package health reports whether the interceptor and its storage can serve.
//
// A Checker reports Healthy, Degraded or Unhealthy. An Aggregator combines
// checkers, and the HTTP handlers expose them as liveness, readiness and
// detailed endpoints:
//
//	agg := health.NewAggregator()
//	agg.Register("worker", interceptor.NewWorkerChecker(reg))
//	agg.Register("storage", health.NewPingChecker("storage", store.Ping))
//	health.RegisterHandlers(mux, agg)
package health
