// Package observe provides observability primitives for the offline cache
// interceptor.
//
// It is a pure instrumentation library: tracing and metrics through
// OpenTelemetry and a JSON structured logger. Consumers wire the Middleware
// into the interceptor; nothing here touches caches or the network.
package observe
