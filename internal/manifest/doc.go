// Package manifest defines the immutable descriptor of an orchestratable
// unit: identity, version, dependency lists, declared config keys, required
// capabilities and lifecycle hook bindings.
//
// Manifests are pure data. The unit registry owns the canonical copies and
// every other component reads them without mutation. Validation enforces the
// group/name identity scheme, the known hook event set and the absence of
// self-dependencies; the dependency resolver handles everything spanning more
// than one manifest.
package manifest
