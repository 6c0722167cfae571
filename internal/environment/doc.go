// Package environment implements the process environment overlay: variables
// assembled from the OS environment, CLI overlays, manifest declarations and
// dotenv files under a strict precedence (OS > CLI > manifest > dotenv), with
// readonly locks, per-variable source attribution, a dotenv reader/writer
// whose quoting survives round trips, and installation-root discovery.
package environment
