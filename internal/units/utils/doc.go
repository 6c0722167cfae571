// Package utils contributes utility task units, currently the config handler:
// a one-shot task resolving a unit's effective configuration section into its
// result payload.
package utils
