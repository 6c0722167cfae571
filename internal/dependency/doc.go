// Package dependency resolves the hard-dependency graph over registered
// manifests into a total load order partitioned into waves: sets of units
// with no hard dependency among themselves, safe to drive concurrently.
//
// Resolution detects cycles (reporting one concrete cycle path), missing hard
// dependencies and version conflicts as fatal errors; missing soft
// dependencies surface as warnings and never unschedule the dependent unit.
package dependency
