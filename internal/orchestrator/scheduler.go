package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/conceptixx/AEON/internal/unit"
	"github.com/conceptixx/AEON/pkg/logging"
	"github.com/conceptixx/AEON/pkg/metrics"
)

// Results maps unit id to the outcome of one lifecycle operation; a nil value
// means success.
type Results map[string]error

// OK reports whether every unit succeeded.
func (r Results) OK() bool {
	for _, err := range r {
		if err != nil {
			return false
		}
	}
	return true
}

// DependencyFailedError marks a unit that was never invoked because one of
// its hard dependencies failed.
type DependencyFailedError struct {
	ID     string
	Failed string
}

func (e *DependencyFailedError) Error() string {
	return fmt.Sprintf("unit %q not invoked: hard dependency %q failed", e.ID, e.Failed)
}

// Load drives the given units (nil means all) to LOADED, wave by wave. Within
// a wave units run concurrently up to the configured fan-out when parallel is
// true. A failed unit never blocks independent work, but every unit listing
// it as a hard dependency is marked FAILED without invocation.
func (o *Orchestrator) Load(ctx context.Context, ids []string, parallel bool) (Results, error) {
	return o.runWaves(ctx, ids, parallel, func(ctx context.Context, id string) error {
		// Build and wire the instance first so subscribers observe the
		// loading transition itself.
		if _, err := o.registry.Instantiate(id); err != nil {
			return err
		}
		o.wireInstance(id)
		return o.engine.Load(ctx, id)
	})
}

// Start drives loaded units to STARTED (services) or executes them once
// (tasks), wave by wave with the same poisoning rules as Load.
func (o *Orchestrator) Start(ctx context.Context, ids []string) (Results, error) {
	results, err := o.runWaves(ctx, ids, true, func(ctx context.Context, id string) error {
		return o.engine.Start(ctx, id)
	})
	if err == nil {
		o.mu.Lock()
		o.running = true
		o.mu.Unlock()
	}
	return results, err
}

// runWaves executes op across the resolved waves. The wave barrier holds:
// every unit of the current wave reaches its target state or FAILED before
// the next wave begins.
func (o *Orchestrator) runWaves(ctx context.Context, ids []string, parallel bool, op func(context.Context, string) error) (Results, error) {
	plan, err := o.Plan()
	if err != nil {
		return nil, err
	}

	selected := selectionSet(ids)
	results := make(Results)
	failed := make(map[string]bool)
	var resultsMu sync.Mutex

	sem := semaphore.NewWeighted(int64(o.maxParallel))

	for _, wave := range plan.Waves {
		waveTimer := metrics.NewTimer()
		var wg sync.WaitGroup

		for _, id := range wave {
			if selected != nil && !selected[id] {
				continue
			}

			// Poison check: a unit whose hard dependency failed is marked
			// FAILED without invocation.
			m, _ := o.registry.Manifest(id)
			var poisoned *DependencyFailedError
			resultsMu.Lock()
			for _, dep := range m.HardDeps {
				if failed[dep] {
					poisoned = &DependencyFailedError{ID: id, Failed: dep}
					break
				}
			}
			resultsMu.Unlock()

			if poisoned != nil {
				o.engine.MarkFailed(id, poisoned)
				resultsMu.Lock()
				results[id] = poisoned
				failed[id] = true
				resultsMu.Unlock()
				continue
			}

			if !parallel {
				err := op(ctx, id)
				resultsMu.Lock()
				results[id] = err
				if err != nil {
					failed[id] = true
				}
				resultsMu.Unlock()
				continue
			}

			if err := sem.Acquire(ctx, 1); err != nil {
				resultsMu.Lock()
				results[id] = err
				failed[id] = true
				resultsMu.Unlock()
				continue
			}

			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				defer sem.Release(1)

				err := op(ctx, id)
				resultsMu.Lock()
				results[id] = err
				if err != nil {
					failed[id] = true
				}
				resultsMu.Unlock()
				if err != nil {
					logging.Error("Orchestrator", err, "Unit %s failed", id)
				}
			}(id)
		}

		// Wave barrier: wait for every unit in this wave before the next.
		wg.Wait()
		metrics.WavesTotal.Inc()
		waveTimer.ObserveDuration(metrics.WaveDuration)
	}

	return results, nil
}

// Stop halts started units in reverse load order, sequentially, bounded per
// unit by timeout (zero means the engine default).
func (o *Orchestrator) Stop(ctx context.Context, ids []string, timeout time.Duration) Results {
	results := make(Results)

	order, err := o.reverseOrder()
	if err != nil {
		logging.Error("Orchestrator", err, "Cannot derive stop order")
		return results
	}

	selected := selectionSet(ids)
	for _, id := range order {
		if selected != nil && !selected[id] {
			continue
		}
		if _, ok := o.registry.Instance(id); !ok {
			continue
		}
		results[id] = o.engine.Stop(ctx, id, timeout)
	}
	return results
}

// Unload releases units in reverse load order.
func (o *Orchestrator) Unload(ctx context.Context, ids []string) Results {
	results := make(Results)

	order, err := o.reverseOrder()
	if err != nil {
		logging.Error("Orchestrator", err, "Cannot derive unload order")
		return results
	}

	selected := selectionSet(ids)
	for _, id := range order {
		if selected != nil && !selected[id] {
			continue
		}
		if _, ok := o.registry.Instance(id); !ok {
			continue
		}
		results[id] = o.engine.Unload(ctx, id)
	}
	return results
}

// ReloadStrategy selects how Reload cycles a unit.
type ReloadStrategy string

// ReloadGraceful stops, unloads, loads and starts the unit in place.
const ReloadGraceful ReloadStrategy = "graceful"

// Reload cycles one unit through stop, unload, load, start. Refused when the
// manifest disallows hot unload.
func (o *Orchestrator) Reload(ctx context.Context, id string, strategy ReloadStrategy) error {
	m, ok := o.registry.Manifest(id)
	if !ok {
		return &unit.NotFoundError{ID: id}
	}
	if !m.HotUnloadAllowed {
		reason := m.HotUnloadReason
		if reason == "" {
			reason = "hot unload not allowed"
		}
		return fmt.Errorf("cannot reload %s: %s", id, reason)
	}
	if strategy == "" {
		strategy = ReloadGraceful
	}
	if strategy != ReloadGraceful {
		return fmt.Errorf("unknown reload strategy %q", strategy)
	}

	logging.Info("Orchestrator", "Reloading %s (%s)...", id, strategy)

	if err := o.engine.Stop(ctx, id, 0); err != nil {
		return fmt.Errorf("reload of %s failed during stop: %w", id, err)
	}
	if err := o.engine.Unload(ctx, id); err != nil {
		return fmt.Errorf("reload of %s failed during unload: %w", id, err)
	}
	if _, err := o.registry.Instantiate(id); err != nil {
		return fmt.Errorf("reload of %s failed during load: %w", id, err)
	}
	o.wireInstance(id)
	if err := o.engine.Load(ctx, id); err != nil {
		return fmt.Errorf("reload of %s failed during load: %w", id, err)
	}
	if err := o.engine.Start(ctx, id); err != nil {
		return fmt.Errorf("reload of %s failed during start: %w", id, err)
	}

	logging.Info("Orchestrator", "Reloaded %s", id)
	return nil
}

func (o *Orchestrator) reverseOrder() ([]string, error) {
	plan, err := o.Plan()
	if err != nil {
		return nil, err
	}
	return plan.ReverseOrder(), nil
}

func selectionSet(ids []string) map[string]bool {
	if ids == nil {
		return nil
	}
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
