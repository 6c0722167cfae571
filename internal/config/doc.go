// Package config implements the layered configuration resolver. A value for
// (unit id, key) is resolved by consulting layers in strict descending
// precedence, stopping at the first hit:
//
//  1. Runtime overrides set in-process through SetOverride
//  2. Process environment variables (NEXUS_<GROUP>_<NAME>_<KEY>)
//  3. The user-scoped configuration document
//  4. Unit defaults declared in the manifest's config keys
//  5. The system-wide configuration document
//
// A caller-supplied default applies after all five layers; otherwise
// resolution fails with MissingConfigError. Declared types are enforced by
// coercion, with string sources parsed into the declared type.
//
// Secrets are resolved exclusively through a pluggable SecretProvider and
// never enter the precedence layers. Every override and secret write appends
// to a bounded in-memory audit ring buffer and emits an [AUDIT] log line.
package config
