// Package cli implements the argument handling the entry documents extend:
// normalization of the legacy --flag:value spelling, schema-driven parsing of
// document-declared flags with an unknown-flag policy, and the usage/abort
// error types the command layer maps to exit codes.
package cli
