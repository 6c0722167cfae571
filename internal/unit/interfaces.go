package unit

import (
	"context"

	"github.com/conceptixx/AEON/internal/manifest"
)

// State represents the lifecycle state of a unit.
type State string

const (
	StateUnloaded State = "unloaded"
	StateLoaded   State = "loaded"
	StateStarted  State = "started"
	StateStopped  State = "stopped"
	StateFailed   State = "failed"
)

// TaskState is the bookkeeping state recorded for task-flavored units, where
// execution is a single resolve call rather than a long-running loop.
type TaskState string

const (
	TaskNotStarted TaskState = "not_started"
	TaskPending    TaskState = "pending"
	TaskResolved   TaskState = "resolved"
	TaskRejected   TaskState = "rejected"
	TaskIncomplete TaskState = "incomplete"
	TaskBlocked    TaskState = "blocked"
)

// HealthStatus reports the outcome of a unit health check.
type HealthStatus string

const (
	HealthUnknown   HealthStatus = "unknown"
	HealthHealthy   HealthStatus = "healthy"
	HealthDegraded  HealthStatus = "degraded"
	HealthUnhealthy HealthStatus = "unhealthy"
)

// Health is the payload returned by a service unit's health check.
type Health struct {
	Status  HealthStatus           `json:"status"`
	Ready   bool                   `json:"ready"`
	Live    bool                   `json:"live"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// HookContext is handed to every hook and unit body. It grants scoped,
// interface-level access to orchestrator facilities; unit code never sees
// orchestrator internals directly.
type HookContext struct {
	// Shared is the cross-unit context map, guarded by its own lock.
	Shared *Context
	// Dependencies holds the stored result payload of each hard dependency,
	// keyed by unit id.
	Dependencies map[string]map[string]interface{}
	// Event is the hook event payload. A hook's non-nil return value replaces
	// it for later hooks in the same dispatch sequence.
	Event map[string]interface{}
	// Tracker owns background activities for service units. Activities
	// spawned through it are cancelled cooperatively on stop. Nil for task
	// units.
	Tracker *Tracker
}

// HookFunc is an optional lifecycle hook. Returning a non-nil map overrides
// the event payload forwarded to later hooks.
type HookFunc func(ctx context.Context, hc *HookContext) (map[string]interface{}, error)

// Hooks is the fixed set of optional hook bindings a unit may provide. A nil
// field means the hook is skipped. The lifecycle engine only dispatches hooks
// the unit's manifest declares.
type Hooks struct {
	OnLoad        HookFunc
	BeforeResolve HookFunc
	BeforeStart   HookFunc
	OnResolve     HookFunc
	OnStart       HookFunc
	OnSuccess     HookFunc
	OnError       HookFunc
	AfterResolve  HookFunc
	AfterStop     HookFunc
}

// ForEvent returns the hook bound to the given event, or nil.
func (h Hooks) ForEvent(event manifest.HookEvent) HookFunc {
	switch event {
	case manifest.HookOnLoad:
		return h.OnLoad
	case manifest.HookBeforeResolve:
		return h.BeforeResolve
	case manifest.HookBeforeStart:
		return h.BeforeStart
	case manifest.HookOnResolve:
		return h.OnResolve
	case manifest.HookOnStart:
		return h.OnStart
	case manifest.HookOnSuccess:
		return h.OnSuccess
	case manifest.HookOnError:
		return h.OnError
	case manifest.HookAfterResolve:
		return h.AfterResolve
	case manifest.HookAfterStop:
		return h.AfterStop
	}
	return nil
}

// Unit is the core interface every orchestratable item implements.
type Unit interface {
	// Manifest returns the unit's immutable descriptor.
	Manifest() manifest.Manifest

	// Hooks returns the unit's hook bindings.
	Hooks() Hooks

	// State management
	GetState() State
	GetLastError() error

	// SetStateChangeCallback registers the callback invoked on every state
	// transition.
	SetStateChangeCallback(callback StateChangeCallback)
}

// TaskUnit is a one-shot unit: execution is a single Resolve call.
type TaskUnit interface {
	Unit

	// Resolve runs the task body and returns its result payload.
	Resolve(ctx context.Context, hc *HookContext) (map[string]interface{}, error)
}

// ServiceUnit is a long-running unit with full load/start/stop/unload
// semantics.
type ServiceUnit interface {
	Unit

	// Load reserves resources and connects to dependencies.
	Load(ctx context.Context, hc *HookContext) error

	// Start begins active work. Background activities spawned here must be
	// tracked so Stop can cancel them.
	Start(ctx context.Context, hc *HookContext) error

	// Stop halts active work cooperatively.
	Stop(ctx context.Context) error

	// Unload releases all resources. Must be idempotent.
	Unload(ctx context.Context) error

	// Health reports the unit's current health.
	Health(ctx context.Context) (Health, error)
}

// StateChangeCallback is called when a unit's state changes.
type StateChangeCallback func(id string, oldState, newState State, err error)

// Constructor builds a unit instance from its manifest. The build inserts
// constructors into the registry explicitly; the orchestrator looks them up
// by id instead of reflecting over modules.
type Constructor func(m manifest.Manifest) (Unit, error)

// StateUpdater is an optional interface for units that allow external state
// updates. The lifecycle engine uses it to drive transitions on units built
// on Base.
type StateUpdater interface {
	UpdateState(state State, err error)
}
