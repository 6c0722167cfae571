package state

import "time"

// Record is the persisted bookkeeping for one unit: its latest lifecycle
// state, the last successful result payload, and the update timestamp.
type Record struct {
	State     string                 `json:"state"`
	Result    map[string]interface{} `json:"result,omitempty"`
	UpdatedAt time.Time              `json:"updated_at"`

	// Service bookkeeping captured when a unit stops.
	StoppedAt     *time.Time `json:"stopped_at,omitempty"`
	UptimeSeconds *float64   `json:"uptime_seconds,omitempty"`
}

// Store is the persistent key-value contract keyed by unit id. After a Put*
// call returns, a fresh process startup sees the written value.
//
// Concurrency: single-process, single-writer. Writes to the same id are
// serialized by the implementation; cross-process sharing is undefined.
type Store interface {
	// Get returns the record for id, reporting whether one exists.
	Get(id string) (Record, bool, error)

	// PutState updates the state and the updated_at timestamp, writing to
	// durable storage before returning.
	PutState(id string, state string) error

	// PutResult attaches a result payload, writing durably.
	PutResult(id string, payload map[string]interface{}) error

	// PutStopInfo records service stop bookkeeping, writing durably.
	PutStopInfo(id string, stoppedAt time.Time, uptimeSeconds float64) error

	// Delete clears the record for id.
	Delete(id string) error

	// ResetAll clears the whole store.
	ResetAll() error

	// List returns the ids of all persisted records.
	List() ([]string, error)
}
