// Package orchestrator is the top-level controller. It owns the unit registry
// and the single state store handle, plans execution through the dependency
// resolver, drives lifecycle waves with bounded parallelism, executes
// instruction-document flows, serves status queries and performs graceful
// shutdown.
//
// Within a wave units run concurrently; across waves the scheduler waits for
// every unit to reach its target state or FAILED. A failed unit never blocks
// independent work, but units hard-depending on it are marked FAILED without
// invocation, and the run as a whole fails iff a required unit failed.
package orchestrator
