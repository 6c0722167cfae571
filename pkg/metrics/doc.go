// Package metrics exposes Prometheus instrumentation for the orchestration
// engine: lifecycle transitions, hook invocations, scheduler waves, state
// store writes and config resolutions. Registration is explicit via Register
// so embedders can opt out or use their own registry.
package metrics
