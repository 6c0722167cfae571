// Package vitals contributes liveness units, currently the heartbeat client:
// a service-flavored unit emitting a periodic beat from a tracked background
// activity, optionally delivering it to an HTTP endpoint.
package vitals
