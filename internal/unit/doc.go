// Package unit defines the orchestratable unit model: the Unit interface and
// its task/service refinements, the lifecycle and health state enums, the
// shared hook context, the embeddable Base implementation, the background
// activity Tracker and the Registry mapping unit ids to manifests,
// constructors and live instances.
//
// Units are instantiated through explicit constructors registered at build
// time; the orchestrator looks constructors up by id instead of reflecting
// over modules.
package unit
