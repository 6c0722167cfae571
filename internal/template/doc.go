// Package template renders Go template expressions embedded in flow step
// arguments against the execution context: user flags, prior step results and
// the shared context snapshot. The sprig function set is available inside
// expressions.
package template
