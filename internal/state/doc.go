// Package state implements the persistent state store that makes execution
// idempotent: a key-value store keyed by unit id recording the latest
// lifecycle state, the last successful result payload and an update
// timestamp.
//
// The file-backed implementation keeps one human-readable JSON document per
// unit under the runtime states directory and survives partial writes through
// write-then-rename. Writes are serialized in-process; cross-process sharing
// of a store is undefined.
package state
