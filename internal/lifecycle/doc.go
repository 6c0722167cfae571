// Package lifecycle implements the engine that drives a single unit through
// the state machine: unloaded, loaded, started, stopped, failed for service
// units, with the pending/resolved/rejected bookkeeping states for one-shot
// task units.
//
// The engine dispatches declared hooks in a fixed order, enforces capability
// checks before load, bounds stop with a timeout, cancels tracked background
// activities cooperatively, and short-circuits already-resolved task units so
// interrupted runs resume idempotently. Lifecycle calls for the same unit are
// strictly serialized; peer units may be driven concurrently.
package lifecycle
