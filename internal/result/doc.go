// Package result builds and atomically persists the run result document:
// run metadata, collected warnings and the status of every executed step.
package result
