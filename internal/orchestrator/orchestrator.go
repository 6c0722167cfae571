package orchestrator

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/conceptixx/AEON/internal/config"
	"github.com/conceptixx/AEON/internal/dependency"
	"github.com/conceptixx/AEON/internal/lifecycle"
	"github.com/conceptixx/AEON/internal/manifest"
	"github.com/conceptixx/AEON/internal/state"
	"github.com/conceptixx/AEON/internal/unit"
	"github.com/conceptixx/AEON/pkg/logging"
)

const (
	// DefaultShutdownTimeout bounds a full graceful shutdown. 60% of the
	// budget goes to stop, 40% to unload.
	DefaultShutdownTimeout = 60 * time.Second

	// HealthCheckTimeout bounds each per-unit health call during Status.
	HealthCheckTimeout = 5 * time.Second
)

// Pack is a named registration package: a set of units contributed through an
// explicit registration function, the static counterpart of scanning a
// package tree at runtime.
type Pack struct {
	Name     string
	Register func(*unit.Registry) error
}

// StateChangedEvent is published to subscribers on every unit state change.
type StateChangedEvent struct {
	ID        string
	OldState  string
	NewState  string
	Error     error
	Timestamp int64
}

// Config holds the configuration for the orchestrator.
type Config struct {
	Store    state.Store
	Config   *config.Resolver
	Security *unit.SecurityContext

	// MaxParallel bounds wave fan-out; defaults to the logical core count.
	MaxParallel int
	// StopTimeout is handed to the engine; zero means the engine default.
	StopTimeout time.Duration
	// ShutdownTimeout bounds Shutdown; zero means DefaultShutdownTimeout.
	ShutdownTimeout time.Duration
}

// Orchestrator is the top-level controller: it owns the unit registry and the
// single state store handle, plans execution through the dependency resolver,
// drives units wave by wave through the lifecycle engine with bounded
// parallelism, serves status queries and handles graceful shutdown.
type Orchestrator struct {
	registry *unit.Registry
	engine   *lifecycle.Engine
	store    state.Store
	config   *config.Resolver

	maxParallel     int
	shutdownTimeout time.Duration

	mu          sync.RWMutex
	plan        *dependency.Plan
	graph       *dependency.Graph
	warnings    []string
	running     bool
	shuttingDown bool

	stateChangeSubscribers []chan<- StateChangedEvent
}

// New creates a new orchestrator.
func New(cfg Config) *Orchestrator {
	registry := unit.NewRegistry()

	maxParallel := cfg.MaxParallel
	if maxParallel <= 0 {
		maxParallel = runtime.NumCPU()
	}
	shutdownTimeout := cfg.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = DefaultShutdownTimeout
	}

	engine := lifecycle.NewEngine(lifecycle.Options{
		Registry:    registry,
		Store:       cfg.Store,
		Config:      cfg.Config,
		Security:    cfg.Security,
		StopTimeout: cfg.StopTimeout,
	})

	return &Orchestrator{
		registry:        registry,
		engine:          engine,
		store:           cfg.Store,
		config:          cfg.Config,
		maxParallel:     maxParallel,
		shutdownTimeout: shutdownTimeout,
	}
}

// Registry returns the unit registry. Manifests read through it are
// read-only.
func (o *Orchestrator) Registry() *unit.Registry {
	return o.registry
}

// Engine returns the lifecycle engine.
func (o *Orchestrator) Engine() *lifecycle.Engine {
	return o.engine
}

// Store returns the state store handle the orchestrator owns.
func (o *Orchestrator) Store() state.Store {
	return o.store
}

// Discover registers every unit contributed by the given packs and returns
// the discovered manifests.
func (o *Orchestrator) Discover(packs ...Pack) ([]manifest.Manifest, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	before := o.registry.Len()
	for _, pack := range packs {
		if err := pack.Register(o.registry); err != nil {
			return nil, fmt.Errorf("failed to discover pack %s: %w", pack.Name, err)
		}
		logging.Info("Orchestrator", "Discovered pack: %s", pack.Name)
	}

	// Any change to the manifest set invalidates the cached plan.
	o.plan = nil
	o.graph = nil

	manifests := o.registry.Manifests()
	logging.Info("Orchestrator", "Discovery complete: %d units (%d new)", len(manifests), len(manifests)-before)

	for _, m := range manifests {
		requiredStr := "optional"
		if m.Required {
			requiredStr = "REQUIRED"
		}
		logging.Debug("Orchestrator", "  - %s v%s [%s]", m.ID, m.Version, requiredStr)
	}
	return manifests, nil
}

// Plan resolves the dependency graph over all registered manifests, caching
// the result until the next discovery.
func (o *Orchestrator) Plan() (dependency.Plan, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.planLocked()
}

func (o *Orchestrator) planLocked() (dependency.Plan, error) {
	if o.plan != nil {
		return *o.plan, nil
	}

	graph := dependency.New()
	for _, m := range o.registry.Manifests() {
		if err := graph.Add(m); err != nil {
			return dependency.Plan{}, err
		}
	}

	plan, err := graph.Resolve()
	if err != nil {
		return dependency.Plan{}, err
	}

	o.plan = &plan
	o.graph = graph
	o.warnings = plan.Warnings
	return plan, nil
}

// Warnings returns the non-fatal warnings from the last resolution.
func (o *Orchestrator) Warnings() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return append([]string(nil), o.warnings...)
}

// DependencyTree renders the hard-dependency tree rooted at id.
func (o *Orchestrator) DependencyTree(id string) (string, error) {
	if _, err := o.Plan(); err != nil {
		return "", err
	}
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.graph.Tree(id), nil
}

// SubscribeToStateChanges returns a channel receiving unit state change
// events. Slow subscribers never block lifecycle progress.
func (o *Orchestrator) SubscribeToStateChanges() <-chan StateChangedEvent {
	eventChan := make(chan StateChangedEvent, 100)
	o.mu.Lock()
	o.stateChangeSubscribers = append(o.stateChangeSubscribers, eventChan)
	o.mu.Unlock()
	return eventChan
}

// stateChangeCallback publishes unit transitions to all subscribers.
func (o *Orchestrator) stateChangeCallback() unit.StateChangeCallback {
	return func(id string, oldState, newState unit.State, err error) {
		event := StateChangedEvent{
			ID:        id,
			OldState:  string(oldState),
			NewState:  string(newState),
			Error:     err,
			Timestamp: time.Now().Unix(),
		}

		o.mu.RLock()
		subscribers := make([]chan<- StateChangedEvent, len(o.stateChangeSubscribers))
		copy(subscribers, o.stateChangeSubscribers)
		o.mu.RUnlock()

		for _, subscriber := range subscribers {
			select {
			case subscriber <- event:
			default:
				// Don't block if subscriber can't receive immediately
				logging.Debug("Orchestrator", "Subscriber blocked, skipping event for unit %s", id)
			}
		}
	}
}

// wireInstance attaches the state change publisher to a freshly built
// instance.
func (o *Orchestrator) wireInstance(id string) {
	if inst, ok := o.registry.Instance(id); ok {
		inst.SetStateChangeCallback(o.stateChangeCallback())
	}
}

// RequiredFailed reports whether any required unit is in FAILED state; if so,
// the run as a whole is failed.
func (o *Orchestrator) RequiredFailed() (string, bool) {
	for _, m := range o.registry.Manifests() {
		if !m.Required {
			continue
		}
		if inst, ok := o.registry.Instance(m.ID); ok && inst.GetState() == unit.StateFailed {
			return m.ID, true
		}
	}
	return "", false
}

// Shutdown performs the graceful drain: stop everything in reverse order
// under 60% of the budget, unload under the remaining 40%, and persist every
// unit's latest state before returning.
func (o *Orchestrator) Shutdown(ctx context.Context, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = o.shutdownTimeout
	}

	o.mu.Lock()
	if o.shuttingDown {
		o.mu.Unlock()
		return nil
	}
	o.shuttingDown = true
	o.running = false
	o.mu.Unlock()

	logging.Info("Orchestrator", "Shutting down (budget %s)...", timeout)

	stopBudget := time.Duration(float64(timeout) * 0.6)
	unloadBudget := timeout - stopBudget

	stopCtx, cancelStop := context.WithTimeout(ctx, stopBudget)
	o.Stop(stopCtx, nil, 0)
	cancelStop()

	unloadCtx, cancelUnload := context.WithTimeout(ctx, unloadBudget)
	o.Unload(unloadCtx, nil)
	cancelUnload()

	// Persist the latest state of every live instance before returning.
	for _, inst := range o.registry.Instances() {
		id := inst.Manifest().ID
		if err := o.store.PutState(id, string(inst.GetState())); err != nil {
			logging.Error("Orchestrator", err, "Failed to persist final state for %s", id)
		}
	}

	logging.Info("Orchestrator", "Shutdown complete")
	return nil
}

// Running reports whether a start cycle completed and shutdown has not begun.
func (o *Orchestrator) Running() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.running
}

// ShuttingDown reports whether shutdown has been initiated.
func (o *Orchestrator) ShuttingDown() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.shuttingDown
}
