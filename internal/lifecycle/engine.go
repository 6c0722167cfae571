package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/conceptixx/AEON/internal/config"
	"github.com/conceptixx/AEON/internal/manifest"
	"github.com/conceptixx/AEON/internal/state"
	"github.com/conceptixx/AEON/internal/unit"
	"github.com/conceptixx/AEON/pkg/logging"
	"github.com/conceptixx/AEON/pkg/metrics"
)

const (
	// DefaultStopTimeout bounds a unit's stop call unless the caller supplies
	// its own budget.
	DefaultStopTimeout = 30 * time.Second
	// GraceWindow is how long stop waits for tracked background activities to
	// honor cancellation.
	GraceWindow = 5 * time.Second
)

// legalTransitions draws the state machine. Any transition not listed here is
// a bug surfaced as TransitionError.
var legalTransitions = map[unit.State][]unit.State{
	unit.StateUnloaded: {unit.StateLoaded},
	unit.StateLoaded:   {unit.StateStarted, unit.StateFailed, unit.StateUnloaded},
	unit.StateStarted:  {unit.StateStopped, unit.StateFailed},
	unit.StateStopped:  {unit.StateUnloaded, unit.StateFailed},
	unit.StateFailed:   {unit.StateUnloaded},
}

// Options configures an Engine.
type Options struct {
	Registry *unit.Registry
	Store    state.Store
	Config   *config.Resolver
	Shared   *unit.Context
	Security *unit.SecurityContext

	// StopTimeout defaults to DefaultStopTimeout when zero.
	StopTimeout time.Duration
}

// Engine drives a single unit at a time through the lifecycle state machine:
// it invokes hooks in the defined order, enforces capability checks, times
// out long operations and captures errors. Lifecycle calls for the same unit
// are strictly serialized; peer units may be driven concurrently by separate
// goroutines.
type Engine struct {
	registry *unit.Registry
	store    state.Store
	config   *config.Resolver
	shared   *unit.Context
	security *unit.SecurityContext

	stopTimeout time.Duration

	mu         sync.Mutex
	unitLocks  map[string]*sync.Mutex
	trackers   map[string]*unit.Tracker
	startTimes map[string]time.Time
}

// NewEngine builds an engine over the given collaborators.
func NewEngine(opts Options) *Engine {
	stopTimeout := opts.StopTimeout
	if stopTimeout == 0 {
		stopTimeout = DefaultStopTimeout
	}
	shared := opts.Shared
	if shared == nil {
		shared = unit.NewContext()
	}
	return &Engine{
		registry:    opts.Registry,
		store:       opts.Store,
		config:      opts.Config,
		shared:      shared,
		security:    opts.Security,
		stopTimeout: stopTimeout,
		unitLocks:   make(map[string]*sync.Mutex),
		trackers:    make(map[string]*unit.Tracker),
		startTimes:  make(map[string]time.Time),
	}
}

// Shared returns the cross-unit context map.
func (e *Engine) Shared() *unit.Context {
	return e.shared
}

// lockFor serializes lifecycle calls per unit: never two hooks in flight for
// the same unit.
func (e *Engine) lockFor(id string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.unitLocks[id]
	if !ok {
		l = &sync.Mutex{}
		e.unitLocks[id] = l
	}
	return l
}

// transition validates and applies a state change, persisting it after the
// in-memory update so the store never runs ahead of the live state.
func (e *Engine) transition(u unit.Unit, to unit.State) error {
	id := u.Manifest().ID
	from := u.GetState()

	legal := false
	for _, allowed := range legalTransitions[from] {
		if allowed == to {
			legal = true
			break
		}
	}
	if !legal {
		return &TransitionError{ID: id, From: from, To: to}
	}

	updater, ok := u.(unit.StateUpdater)
	if !ok {
		return fmt.Errorf("unit %q does not support state updates", id)
	}
	updater.UpdateState(to, nil)
	logging.Info("Lifecycle", "[%s] %s -> %s", id, from, to)
	metrics.TransitionsTotal.WithLabelValues(id, string(to)).Inc()
	if to == unit.StateFailed {
		metrics.UnitsFailed.Inc()
	}

	if err := e.store.PutState(id, string(to)); err != nil {
		return fmt.Errorf("failed to persist state for %s: %w", id, err)
	}
	return nil
}

// fail moves the unit to FAILED from whatever state it is in (no transition
// check), records the error and persists.
func (e *Engine) fail(u unit.Unit, cause error) {
	id := u.Manifest().ID
	if updater, ok := u.(unit.StateUpdater); ok {
		updater.UpdateState(unit.StateFailed, cause)
	}
	metrics.TransitionsTotal.WithLabelValues(id, string(unit.StateFailed)).Inc()
	metrics.UnitsFailed.Inc()
	if err := e.store.PutState(id, string(unit.StateFailed)); err != nil {
		logging.Error("Lifecycle", err, "[%s] Failed to persist FAILED state", id)
	}
}

// dispatch invokes the hook bound to event if the manifest declares it. A
// non-nil return value replaces the event payload for later hooks.
func (e *Engine) dispatch(ctx context.Context, u unit.Unit, event manifest.HookEvent, hc *unit.HookContext) error {
	m := u.Manifest()
	if _, declared := m.Hooks[event]; !declared {
		return nil
	}
	fn := u.Hooks().ForEvent(event)
	if fn == nil {
		return nil
	}

	start := time.Now()
	payload, err := fn(ctx, hc)
	metrics.HookDuration.WithLabelValues(string(event)).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.HooksTotal.WithLabelValues(string(event), "error").Inc()
		return &HookError{ID: m.ID, Event: string(event), Err: err}
	}
	metrics.HooksTotal.WithLabelValues(string(event), "success").Inc()
	if payload != nil {
		hc.Event = payload
	}
	return nil
}

// dispatchGuarded runs a cleanup hook, logging instead of propagating its
// failure. Used for after_resolve and after_stop, which always run.
func (e *Engine) dispatchGuarded(ctx context.Context, u unit.Unit, event manifest.HookEvent, hc *unit.HookContext) {
	if err := e.dispatch(ctx, u, event, hc); err != nil {
		logging.Error("Lifecycle", err, "[%s] Cleanup hook %s failed", u.Manifest().ID, event)
	}
}

// checkPermissions enforces the manifest's required permissions against the
// engine's security context. A missing permission is a PermissionError.
func (e *Engine) checkPermissions(m manifest.Manifest) error {
	if len(m.RequiredPermissions) == 0 {
		return nil
	}
	if e.security == nil {
		return &PermissionError{ID: m.ID, Permission: m.RequiredPermissions[0], Principal: "<none>"}
	}
	for _, perm := range m.RequiredPermissions {
		if !e.security.HasPermission(perm) {
			return &PermissionError{ID: m.ID, Permission: perm, Principal: e.security.Principal}
		}
	}
	return nil
}

// hookContext assembles the context handed to hooks and unit bodies,
// including the stored result of every hard dependency.
func (e *Engine) hookContext(m manifest.Manifest, event map[string]interface{}, tracker *unit.Tracker) *unit.HookContext {
	deps := make(map[string]map[string]interface{}, len(m.HardDeps))
	for _, dep := range m.HardDeps {
		if rec, ok, err := e.store.Get(dep); err == nil && ok {
			deps[dep] = rec.Result
		}
	}
	if event == nil {
		event = make(map[string]interface{})
	}
	return &unit.HookContext{
		Shared:       e.shared,
		Dependencies: deps,
		Event:        event,
		Tracker:      tracker,
	}
}

// Load drives a unit from UNLOADED to LOADED: capability check, instantiate,
// seed config defaults, surface persisted state, on_load hook, then the load
// body for service units.
func (e *Engine) Load(ctx context.Context, id string) error {
	l := e.lockFor(id)
	l.Lock()
	defer l.Unlock()

	m, ok := e.registry.Manifest(id)
	if !ok {
		return &unit.NotFoundError{ID: id}
	}

	// Capability check happens before any instantiation or hook runs.
	if err := e.checkPermissions(m); err != nil {
		logging.Error("Lifecycle", err, "[%s] Permission check failed", id)
		if inst, exists := e.registry.Instance(id); exists {
			e.fail(inst, err)
		} else if inst, ierr := e.registry.Instantiate(id); ierr == nil {
			e.fail(inst, err)
		}
		return err
	}

	u, err := e.registry.Instantiate(id)
	if err != nil {
		return err
	}

	if current := u.GetState(); current == unit.StateLoaded || current == unit.StateStarted {
		logging.Info("Lifecycle", "[%s] Already loaded", id)
		return nil
	}

	if e.config != nil {
		e.config.RegisterUnitDefaults(id, m.ConfigKeys)
	}

	hc := e.hookContext(m, nil, nil)
	if rec, ok, err := e.store.Get(id); err == nil && ok {
		hc.Event["persisted_state"] = map[string]interface{}{
			"state":      rec.State,
			"result":     rec.Result,
			"updated_at": rec.UpdatedAt,
		}
		logging.Info("Lifecycle", "[%s] Loaded persisted state", id)
	}

	logging.Info("Lifecycle", "[%s] Loading...", id)
	if err := e.dispatch(ctx, u, manifest.HookOnLoad, hc); err != nil {
		e.fail(u, err)
		return err
	}

	if svc, isService := u.(unit.ServiceUnit); isService {
		if err := svc.Load(ctx, hc); err != nil {
			err = fmt.Errorf("failed to load unit %s: %w", id, err)
			e.fail(u, err)
			return err
		}
	}

	if err := e.transition(u, unit.StateLoaded); err != nil {
		return err
	}
	logging.Info("Lifecycle", "[%s] Loaded successfully", id)
	return nil
}

// Start drives a loaded service unit to STARTED. A loaded task unit is
// resolved once instead, through the same path as Execute.
func (e *Engine) Start(ctx context.Context, id string) error {
	l := e.lockFor(id)
	l.Lock()
	defer l.Unlock()

	u, ok := e.registry.Instance(id)
	if !ok {
		return &unit.NotFoundError{ID: id}
	}
	m := u.Manifest()

	if current := u.GetState(); current != unit.StateLoaded {
		return &TransitionError{ID: id, From: current, To: unit.StateStarted}
	}

	svc, isService := u.(unit.ServiceUnit)
	if !isService {
		// Task-flavored units "start" by resolving once.
		_, err := e.executeLocked(ctx, u, "resolve", nil)
		return err
	}

	tracker := unit.NewTracker(context.Background())
	hc := e.hookContext(m, nil, tracker)

	logging.Info("Lifecycle", "[%s] Starting...", id)
	if err := e.dispatch(ctx, u, manifest.HookBeforeStart, hc); err != nil {
		e.fail(u, err)
		return err
	}
	if err := e.dispatch(ctx, u, manifest.HookOnStart, hc); err != nil {
		e.fail(u, err)
		return err
	}

	if err := svc.Start(ctx, hc); err != nil {
		err = fmt.Errorf("failed to start unit %s: %w", id, err)
		errHC := e.hookContext(m, map[string]interface{}{"error": err.Error()}, tracker)
		e.dispatchGuarded(ctx, u, manifest.HookOnError, errHC)
		tracker.CancelAndWait(GraceWindow)
		e.fail(u, err)
		return err
	}

	e.mu.Lock()
	e.trackers[id] = tracker
	e.startTimes[id] = time.Now()
	e.mu.Unlock()

	if err := e.transition(u, unit.StateStarted); err != nil {
		return err
	}
	e.dispatchGuarded(ctx, u, manifest.HookOnSuccess, hc)
	logging.Info("Lifecycle", "[%s] Started successfully", id)
	return nil
}

// Stop halts a started unit within the given timeout (DefaultStopTimeout
// when zero). Exceeding the timeout is logged and the unit transitions to
// FAILED; user code is cancelled cooperatively, never force-killed. The
// after_stop hook always runs, in a guarded way.
func (e *Engine) Stop(ctx context.Context, id string, timeout time.Duration) error {
	l := e.lockFor(id)
	l.Lock()
	defer l.Unlock()

	u, ok := e.registry.Instance(id)
	if !ok {
		return &unit.NotFoundError{ID: id}
	}
	m := u.Manifest()

	if current := u.GetState(); current != unit.StateStarted {
		logging.Warn("Lifecycle", "[%s] Not started (state: %s), skipping stop", id, current)
		return nil
	}

	svc, isService := u.(unit.ServiceUnit)
	if !isService {
		return nil
	}

	if timeout <= 0 {
		timeout = e.stopTimeout
	}

	e.mu.Lock()
	tracker := e.trackers[id]
	startedAt := e.startTimes[id]
	delete(e.trackers, id)
	delete(e.startTimes, id)
	e.mu.Unlock()

	hc := e.hookContext(m, nil, nil)
	defer e.dispatchGuarded(ctx, u, manifest.HookAfterStop, hc)

	logging.Info("Lifecycle", "[%s] Stopping...", id)

	stopCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- svc.Stop(stopCtx) }()

	var stopErr error
	select {
	case stopErr = <-done:
	case <-stopCtx.Done():
		stopErr = &StopTimeoutError{ID: id, Timeout: timeout.String()}
	}

	// Cancel tracked background activities regardless of the stop outcome.
	if tracker != nil {
		if !tracker.CancelAndWait(GraceWindow) {
			logging.Warn("Lifecycle", "[%s] Background activities did not stop within %s grace window", id, GraceWindow)
		}
	}

	if stopErr != nil {
		logging.Error("Lifecycle", stopErr, "[%s] Stop failed", id)
		e.fail(u, stopErr)
		return stopErr
	}

	if err := e.transition(u, unit.StateStopped); err != nil {
		return err
	}

	stoppedAt := time.Now()
	uptime := 0.0
	if !startedAt.IsZero() {
		uptime = stoppedAt.Sub(startedAt).Seconds()
	}
	if err := e.store.PutStopInfo(id, stoppedAt, uptime); err != nil {
		logging.Error("Lifecycle", err, "[%s] Failed to persist stop bookkeeping", id)
	}

	logging.Info("Lifecycle", "[%s] Stopped successfully", id)
	return nil
}

// Unload releases a stopped, loaded-but-never-started, or failed unit and
// removes its live instance. Unload is the only exit from FAILED.
func (e *Engine) Unload(ctx context.Context, id string) error {
	l := e.lockFor(id)
	l.Lock()
	defer l.Unlock()

	u, ok := e.registry.Instance(id)
	if !ok {
		logging.Warn("Lifecycle", "[%s] No live instance, already unloaded?", id)
		return nil
	}

	if current := u.GetState(); current == unit.StateStarted {
		return &TransitionError{ID: id, From: current, To: unit.StateUnloaded}
	}

	logging.Info("Lifecycle", "[%s] Unloading...", id)
	svc, isService := u.(unit.ServiceUnit)
	if isService {
		if err := svc.Unload(ctx); err != nil {
			err = fmt.Errorf("failed to unload unit %s: %w", id, err)
			logging.Error("Lifecycle", err, "[%s] Unload failed", id)
			return err
		}
	}

	if !isService {
		// Task-flavored units keep their resolved/rejected bookkeeping in the
		// store across unload: it is what makes re-runs idempotent. Only the
		// live instance goes away.
		if updater, ok := u.(unit.StateUpdater); ok {
			updater.UpdateState(unit.StateUnloaded, nil)
		}
		e.registry.RemoveInstance(id)
		logging.Info("Lifecycle", "[%s] Unloaded successfully", id)
		return nil
	}

	if err := e.transition(u, unit.StateUnloaded); err != nil {
		return err
	}
	e.registry.RemoveInstance(id)
	logging.Info("Lifecycle", "[%s] Unloaded successfully", id)
	return nil
}

// Execute runs a task-flavored unit through its full hook schedule and
// returns the result payload. If the state store already reports a resolved
// or started unit and the manifest does not set force_execute, the stored
// result is returned, no hooks beyond on_load fire and no state is written —
// the crash-recovery property.
func (e *Engine) Execute(ctx context.Context, id string, event map[string]interface{}) (map[string]interface{}, error) {
	l := e.lockFor(id)
	l.Lock()
	defer l.Unlock()

	u, err := e.registry.Instantiate(id)
	if err != nil {
		return nil, err
	}
	return e.executeLocked(ctx, u, "resolve", event)
}

func (e *Engine) executeLocked(ctx context.Context, u unit.Unit, method string, event map[string]interface{}) (map[string]interface{}, error) {
	m := u.Manifest()
	id := m.ID

	task, isTask := u.(unit.TaskUnit)
	if !isTask {
		return nil, fmt.Errorf("unit %s is not task-flavored", id)
	}

	if e.config != nil {
		e.config.RegisterUnitDefaults(id, m.ConfigKeys)
	}

	hc := e.hookContext(m, event, nil)

	logging.Info("Lifecycle", "[%s] Starting", id)

	// on_load runs first, before any other work.
	if err := e.dispatch(ctx, u, manifest.HookOnLoad, hc); err != nil {
		return nil, err
	}

	// Idempotent short-circuit: a previously resolved unit returns its
	// stored result without further hooks or writes.
	if rec, ok, err := e.store.Get(id); err == nil && ok && !m.ForceExecute {
		if rec.State == string(unit.TaskResolved) || rec.State == string(unit.StateStarted) {
			logging.Info("Lifecycle", "[%s] Already resolved", id)
			return rec.Result, nil
		}
	}

	// Resolve unresolved hard dependencies first, depth first, then
	// refresh the dependency results handed to hooks and the body.
	for _, dep := range m.HardDeps {
		if rec, ok, err := e.store.Get(dep); err == nil && ok && rec.State == string(unit.TaskResolved) {
			continue
		}
		logging.Info("Lifecycle", "[%s] Resolving dependency: %s", id, dep)
		if _, err := e.Execute(ctx, dep, event); err != nil {
			return nil, fmt.Errorf("dependency %s of %s failed: %w", dep, id, err)
		}
	}
	if len(m.HardDeps) > 0 {
		hc.Dependencies = e.hookContext(m, nil, nil).Dependencies
	}

	// Pre-execution hooks; either may raise to abort.
	if err := e.dispatch(ctx, u, manifest.HookBeforeResolve, hc); err != nil {
		return nil, err
	}
	if err := e.dispatch(ctx, u, manifest.HookOnResolve, hc); err != nil {
		return nil, err
	}

	// after_resolve always runs, guarded, for cleanup.
	defer e.dispatchGuarded(ctx, u, manifest.HookAfterResolve, hc)

	// Main body.
	if err := e.store.PutState(id, string(unit.TaskPending)); err != nil {
		return nil, fmt.Errorf("failed to persist pending state for %s: %w", id, err)
	}

	result, err := task.Resolve(ctx, hc)
	if err != nil {
		errHC := e.hookContext(m, map[string]interface{}{"error": err.Error()}, nil)
		e.dispatchGuarded(ctx, u, manifest.HookOnError, errHC)
		if serr := e.store.PutState(id, string(unit.TaskRejected)); serr != nil {
			logging.Error("Lifecycle", serr, "[%s] Failed to persist rejected state", id)
		}
		if updater, ok := u.(unit.StateUpdater); ok {
			updater.UpdateState(unit.StateFailed, err)
		}
		metrics.UnitsFailed.Inc()
		logging.Error("Lifecycle", err, "[%s] Failed", id)
		return nil, err
	}

	// on_success, then the resolved state and result are persisted.
	e.dispatchGuarded(ctx, u, manifest.HookOnSuccess, hc)

	if err := e.store.PutState(id, string(unit.TaskResolved)); err != nil {
		return nil, fmt.Errorf("failed to persist resolved state for %s: %w", id, err)
	}
	if err := e.store.PutResult(id, result); err != nil {
		return nil, fmt.Errorf("failed to persist result for %s: %w", id, err)
	}

	logging.Info("Lifecycle", "[%s] Completed", id)
	return result, nil
}

// MarkFailed forces a unit into FAILED without invoking any lifecycle call.
// The scheduler uses it for units whose hard dependency failed.
func (e *Engine) MarkFailed(id string, cause error) {
	l := e.lockFor(id)
	l.Lock()
	defer l.Unlock()

	u, ok := e.registry.Instance(id)
	if !ok {
		var err error
		u, err = e.registry.Instantiate(id)
		if err != nil {
			logging.Error("Lifecycle", err, "[%s] Cannot mark failed", id)
			return
		}
	}
	logging.Error("Lifecycle", cause, "[%s] Marked FAILED without invocation", id)
	e.fail(u, cause)
}

// Health invokes a service unit's health check with a bounded timeout.
func (e *Engine) Health(ctx context.Context, id string, timeout time.Duration) (unit.Health, error) {
	u, ok := e.registry.Instance(id)
	if !ok {
		return unit.Health{Status: unit.HealthUnknown}, &unit.NotFoundError{ID: id}
	}
	svc, isService := u.(unit.ServiceUnit)
	if !isService {
		return unit.Health{Status: unit.HealthUnknown}, nil
	}

	hctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type healthResult struct {
		health unit.Health
		err    error
	}
	done := make(chan healthResult, 1)
	go func() {
		h, err := svc.Health(hctx)
		done <- healthResult{h, err}
	}()

	select {
	case res := <-done:
		return res.health, res.err
	case <-hctx.Done():
		return unit.Health{Status: unit.HealthUnknown}, fmt.Errorf("health check for %s timed out: %w", id, hctx.Err())
	}
}
