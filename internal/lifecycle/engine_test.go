package lifecycle

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conceptixx/AEON/internal/config"
	"github.com/conceptixx/AEON/internal/manifest"
	"github.com/conceptixx/AEON/internal/state"
	"github.com/conceptixx/AEON/internal/unit"
)

// fakeTask is a configurable task-flavored unit for engine tests.
type fakeTask struct {
	*unit.Base
	resolve func(ctx context.Context, hc *unit.HookContext) (map[string]interface{}, error)
	calls   atomic.Int32
}

func (f *fakeTask) Resolve(ctx context.Context, hc *unit.HookContext) (map[string]interface{}, error) {
	f.calls.Add(1)
	if f.resolve != nil {
		return f.resolve(ctx, hc)
	}
	return map[string]interface{}{"ok": 1}, nil
}

// fakeService is a configurable service-flavored unit.
type fakeService struct {
	*unit.Base
	loadErr  error
	startErr error
	stopFn   func(ctx context.Context) error
	startFn  func(ctx context.Context, hc *unit.HookContext) error
	loadFn   func(ctx context.Context, hc *unit.HookContext) error
}

func (f *fakeService) Load(ctx context.Context, hc *unit.HookContext) error {
	if f.loadFn != nil {
		return f.loadFn(ctx, hc)
	}
	return f.loadErr
}

func (f *fakeService) Start(ctx context.Context, hc *unit.HookContext) error {
	if f.startFn != nil {
		return f.startFn(ctx, hc)
	}
	return f.startErr
}

func (f *fakeService) Stop(ctx context.Context) error {
	if f.stopFn != nil {
		return f.stopFn(ctx)
	}
	return nil
}

func (f *fakeService) Unload(ctx context.Context) error { return nil }

func (f *fakeService) Health(ctx context.Context) (unit.Health, error) {
	return unit.Health{Status: unit.HealthHealthy, Ready: true, Live: true}, nil
}

type fixture struct {
	engine   *Engine
	registry *unit.Registry
	store    *state.FileStore
}

func newFixture(t *testing.T, security *unit.SecurityContext) *fixture {
	t.Helper()
	store, err := state.NewFileStore(filepath.Join(t.TempDir(), "states"))
	require.NoError(t, err)
	registry := unit.NewRegistry()
	engine := NewEngine(Options{
		Registry: registry,
		Store:    store,
		Config:   config.NewResolver(),
		Security: security,
	})
	return &fixture{engine: engine, registry: registry, store: store}
}

func taskManifest(id string, hooks map[manifest.HookEvent]string) manifest.Manifest {
	m := manifest.New(id, "1.0.0")
	m.Flavor = manifest.FlavorTask
	m.Hooks = hooks
	return m
}

func serviceManifest(id string, hooks map[manifest.HookEvent]string) manifest.Manifest {
	m := manifest.New(id, "1.0.0")
	m.Flavor = manifest.FlavorService
	m.Hooks = hooks
	return m
}

func TestExecuteTaskSuccess(t *testing.T) {
	fx := newFixture(t, nil)

	var task *fakeTask
	require.NoError(t, fx.registry.Register(taskManifest("utils/echo", nil), func(m manifest.Manifest) (unit.Unit, error) {
		task = &fakeTask{Base: unit.NewBase(m)}
		return task, nil
	}))

	result, err := fx.engine.Execute(context.Background(), "utils/echo", nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"ok": 1}, result)

	rec, ok, err := fx.store.Get("utils/echo")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, string(unit.TaskResolved), rec.State)
	assert.NotNil(t, rec.Result)
}

func TestExecuteHookOrder(t *testing.T) {
	fx := newFixture(t, nil)

	var order []string
	record := func(name string) unit.HookFunc {
		return func(ctx context.Context, hc *unit.HookContext) (map[string]interface{}, error) {
			order = append(order, name)
			return nil, nil
		}
	}

	m := taskManifest("utils/ordered", map[manifest.HookEvent]string{
		manifest.HookOnLoad:        "onLoad",
		manifest.HookBeforeResolve: "beforeResolve",
		manifest.HookOnResolve:     "onResolve",
		manifest.HookOnSuccess:     "onSuccess",
		manifest.HookAfterResolve:  "afterResolve",
	})
	require.NoError(t, fx.registry.Register(m, func(m manifest.Manifest) (unit.Unit, error) {
		task := &fakeTask{Base: unit.NewBase(m)}
		task.resolve = func(ctx context.Context, hc *unit.HookContext) (map[string]interface{}, error) {
			order = append(order, "body")
			return map[string]interface{}{}, nil
		}
		task.SetHooks(unit.Hooks{
			OnLoad:        record("on_load"),
			BeforeResolve: record("before_resolve"),
			OnResolve:     record("on_resolve"),
			OnSuccess:     record("on_success"),
			AfterResolve:  record("after_resolve"),
		})
		return task, nil
	}))

	_, err := fx.engine.Execute(context.Background(), "utils/ordered", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"on_load", "before_resolve", "on_resolve", "body", "on_success", "after_resolve"}, order)
}

func TestExecuteErrorPath(t *testing.T) {
	fx := newFixture(t, nil)

	var order []string
	m := taskManifest("utils/boom", map[manifest.HookEvent]string{
		manifest.HookOnError:      "onError",
		manifest.HookAfterResolve: "cleanup",
	})
	var errPayload map[string]interface{}
	require.NoError(t, fx.registry.Register(m, func(m manifest.Manifest) (unit.Unit, error) {
		task := &fakeTask{Base: unit.NewBase(m)}
		task.resolve = func(ctx context.Context, hc *unit.HookContext) (map[string]interface{}, error) {
			return nil, errors.New("body failed")
		}
		task.SetHooks(unit.Hooks{
			OnError: func(ctx context.Context, hc *unit.HookContext) (map[string]interface{}, error) {
				order = append(order, "on_error")
				errPayload = hc.Event
				return nil, nil
			},
			AfterResolve: func(ctx context.Context, hc *unit.HookContext) (map[string]interface{}, error) {
				order = append(order, "after_resolve")
				return nil, nil
			},
		})
		return task, nil
	}))

	_, err := fx.engine.Execute(context.Background(), "utils/boom", nil)
	require.Error(t, err)

	// on_error carries the error; after_resolve still runs.
	assert.Equal(t, []string{"on_error", "after_resolve"}, order)
	assert.Equal(t, "body failed", errPayload["error"])

	rec, ok, serr := fx.store.Get("utils/boom")
	require.NoError(t, serr)
	require.True(t, ok)
	assert.Equal(t, string(unit.TaskRejected), rec.State)
}

func TestExecuteIdempotentShortCircuit(t *testing.T) {
	fx := newFixture(t, nil)

	var hookCalls []string
	m := taskManifest("utils/resume", map[manifest.HookEvent]string{
		manifest.HookOnLoad:        "onLoad",
		manifest.HookBeforeResolve: "beforeResolve",
	})
	var task *fakeTask
	require.NoError(t, fx.registry.Register(m, func(m manifest.Manifest) (unit.Unit, error) {
		task = &fakeTask{Base: unit.NewBase(m)}
		task.SetHooks(unit.Hooks{
			OnLoad: func(ctx context.Context, hc *unit.HookContext) (map[string]interface{}, error) {
				hookCalls = append(hookCalls, "on_load")
				return nil, nil
			},
			BeforeResolve: func(ctx context.Context, hc *unit.HookContext) (map[string]interface{}, error) {
				hookCalls = append(hookCalls, "before_resolve")
				return nil, nil
			},
		})
		return task, nil
	}))

	// Simulate a previous successful run.
	require.NoError(t, fx.store.PutState("utils/resume", string(unit.TaskResolved)))
	require.NoError(t, fx.store.PutResult("utils/resume", map[string]interface{}{"ok": float64(1)}))
	before, _, err := fx.store.Get("utils/resume")
	require.NoError(t, err)

	result, err := fx.engine.Execute(context.Background(), "utils/resume", nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"ok": float64(1)}, result)

	// resolve never ran and no hook beyond on_load fired.
	assert.Equal(t, int32(0), task.calls.Load())
	assert.Equal(t, []string{"on_load"}, hookCalls)

	// No new state was recorded.
	after, _, err := fx.store.Get("utils/resume")
	require.NoError(t, err)
	assert.Equal(t, before.UpdatedAt, after.UpdatedAt)
}

func TestExecuteForceExecuteBypassesShortCircuit(t *testing.T) {
	fx := newFixture(t, nil)

	m := taskManifest("utils/forced", nil)
	m.ForceExecute = true
	var task *fakeTask
	require.NoError(t, fx.registry.Register(m, func(m manifest.Manifest) (unit.Unit, error) {
		task = &fakeTask{Base: unit.NewBase(m)}
		return task, nil
	}))

	require.NoError(t, fx.store.PutState("utils/forced", string(unit.TaskResolved)))
	require.NoError(t, fx.store.PutResult("utils/forced", map[string]interface{}{"stale": true}))

	result, err := fx.engine.Execute(context.Background(), "utils/forced", nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"ok": 1}, result)
	assert.Equal(t, int32(1), task.calls.Load())
}

func TestHookPayloadOverride(t *testing.T) {
	fx := newFixture(t, nil)

	m := taskManifest("utils/payload", map[manifest.HookEvent]string{
		manifest.HookOnLoad:        "onLoad",
		manifest.HookBeforeResolve: "beforeResolve",
	})
	var seen map[string]interface{}
	require.NoError(t, fx.registry.Register(m, func(m manifest.Manifest) (unit.Unit, error) {
		task := &fakeTask{Base: unit.NewBase(m)}
		task.SetHooks(unit.Hooks{
			OnLoad: func(ctx context.Context, hc *unit.HookContext) (map[string]interface{}, error) {
				return map[string]interface{}{"injected": "by-on-load"}, nil
			},
			BeforeResolve: func(ctx context.Context, hc *unit.HookContext) (map[string]interface{}, error) {
				seen = hc.Event
				return nil, nil
			},
		})
		return task, nil
	}))

	_, err := fx.engine.Execute(context.Background(), "utils/payload", nil)
	require.NoError(t, err)
	assert.Equal(t, "by-on-load", seen["injected"])
}

func TestDependencyResultsVisibleToTask(t *testing.T) {
	fx := newFixture(t, nil)

	dep := taskManifest("net/ip", nil)
	require.NoError(t, fx.registry.Register(dep, func(m manifest.Manifest) (unit.Unit, error) {
		task := &fakeTask{Base: unit.NewBase(m)}
		task.resolve = func(ctx context.Context, hc *unit.HookContext) (map[string]interface{}, error) {
			return map[string]interface{}{"addr": "10.0.0.1"}, nil
		}
		return task, nil
	}))

	top := taskManifest("net/dns", nil)
	top.HardDeps = []string{"net/ip"}
	var gotDeps map[string]map[string]interface{}
	require.NoError(t, fx.registry.Register(top, func(m manifest.Manifest) (unit.Unit, error) {
		task := &fakeTask{Base: unit.NewBase(m)}
		task.resolve = func(ctx context.Context, hc *unit.HookContext) (map[string]interface{}, error) {
			gotDeps = hc.Dependencies
			return map[string]interface{}{}, nil
		}
		return task, nil
	}))

	_, err := fx.engine.Execute(context.Background(), "net/ip", nil)
	require.NoError(t, err)
	_, err = fx.engine.Execute(context.Background(), "net/dns", nil)
	require.NoError(t, err)

	require.Contains(t, gotDeps, "net/ip")
	assert.Equal(t, "10.0.0.1", gotDeps["net/ip"]["addr"])
}

func TestServiceLifecycleHappyPath(t *testing.T) {
	fx := newFixture(t, nil)

	var svc *fakeService
	require.NoError(t, fx.registry.Register(serviceManifest("vitals/svc", nil), func(m manifest.Manifest) (unit.Unit, error) {
		svc = &fakeService{Base: unit.NewBase(m)}
		return svc, nil
	}))

	ctx := context.Background()
	require.NoError(t, fx.engine.Load(ctx, "vitals/svc"))
	assert.Equal(t, unit.StateLoaded, svc.GetState())

	require.NoError(t, fx.engine.Start(ctx, "vitals/svc"))
	assert.Equal(t, unit.StateStarted, svc.GetState())

	require.NoError(t, fx.engine.Stop(ctx, "vitals/svc", time.Second))
	assert.Equal(t, unit.StateStopped, svc.GetState())

	rec, ok, err := fx.store.Get("vitals/svc")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, string(unit.StateStopped), rec.State)
	require.NotNil(t, rec.UptimeSeconds)

	require.NoError(t, fx.engine.Unload(ctx, "vitals/svc"))
	_, live := fx.registry.Instance("vitals/svc")
	assert.False(t, live)
}

func TestStartRequiresLoadedState(t *testing.T) {
	fx := newFixture(t, nil)
	require.NoError(t, fx.registry.Register(serviceManifest("vitals/svc", nil), func(m manifest.Manifest) (unit.Unit, error) {
		return &fakeService{Base: unit.NewBase(m)}, nil
	}))

	_, err := fx.registry.Instantiate("vitals/svc")
	require.NoError(t, err)

	err = fx.engine.Start(context.Background(), "vitals/svc")
	var terr *TransitionError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, unit.StateUnloaded, terr.From)
}

func TestPermissionCheckBlocksLoad(t *testing.T) {
	security := unit.NewSecurityContext("tester", nil, []string{"other.permission"})
	fx := newFixture(t, security)

	m := serviceManifest("secure/svc", nil)
	m.RequiredPermissions = []string{"secure.load"}
	loadCalled := false
	require.NoError(t, fx.registry.Register(m, func(m manifest.Manifest) (unit.Unit, error) {
		svc := &fakeService{Base: unit.NewBase(m)}
		svc.loadFn = func(ctx context.Context, hc *unit.HookContext) error {
			loadCalled = true
			return nil
		}
		return svc, nil
	}))

	err := fx.engine.Load(context.Background(), "secure/svc")
	var perr *PermissionError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "secure.load", perr.Permission)
	assert.False(t, loadCalled)

	// The unit lands in FAILED without any hook running.
	inst, ok := fx.registry.Instance("secure/svc")
	require.True(t, ok)
	assert.Equal(t, unit.StateFailed, inst.GetState())
}

func TestPermissionGrantedViaAdminRole(t *testing.T) {
	security := unit.NewSecurityContext("root", []string{"admin"}, nil)
	fx := newFixture(t, security)

	m := serviceManifest("secure/svc", nil)
	m.RequiredPermissions = []string{"anything.at.all"}
	require.NoError(t, fx.registry.Register(m, func(m manifest.Manifest) (unit.Unit, error) {
		return &fakeService{Base: unit.NewBase(m)}, nil
	}))

	assert.NoError(t, fx.engine.Load(context.Background(), "secure/svc"))
}

func TestStopTimeoutTransitionsToFailed(t *testing.T) {
	fx := newFixture(t, nil)

	var svc *fakeService
	require.NoError(t, fx.registry.Register(serviceManifest("vitals/slow", nil), func(m manifest.Manifest) (unit.Unit, error) {
		svc = &fakeService{Base: unit.NewBase(m)}
		svc.stopFn = func(ctx context.Context) error {
			// Honors cancellation, but only after the deadline passes.
			<-ctx.Done()
			return ctx.Err()
		}
		return svc, nil
	}))

	ctx := context.Background()
	require.NoError(t, fx.engine.Load(ctx, "vitals/slow"))
	require.NoError(t, fx.engine.Start(ctx, "vitals/slow"))

	err := fx.engine.Stop(ctx, "vitals/slow", 30*time.Millisecond)
	require.Error(t, err)
	assert.Equal(t, unit.StateFailed, svc.GetState())

	// FAILED's only exit is unload.
	require.NoError(t, fx.engine.Unload(ctx, "vitals/slow"))
}

func TestBackgroundActivitiesCancelledOnStop(t *testing.T) {
	fx := newFixture(t, nil)

	var cancelled atomic.Bool
	require.NoError(t, fx.registry.Register(serviceManifest("vitals/bg", nil), func(m manifest.Manifest) (unit.Unit, error) {
		svc := &fakeService{Base: unit.NewBase(m)}
		svc.startFn = func(ctx context.Context, hc *unit.HookContext) error {
			hc.Tracker.Spawn(func(ctx context.Context) {
				<-ctx.Done()
				cancelled.Store(true)
			})
			return nil
		}
		return svc, nil
	}))

	ctx := context.Background()
	require.NoError(t, fx.engine.Load(ctx, "vitals/bg"))
	require.NoError(t, fx.engine.Start(ctx, "vitals/bg"))
	require.NoError(t, fx.engine.Stop(ctx, "vitals/bg", time.Second))

	assert.True(t, cancelled.Load())
}

func TestLoadPersistsStateAfterTransition(t *testing.T) {
	fx := newFixture(t, nil)
	require.NoError(t, fx.registry.Register(serviceManifest("vitals/svc", nil), func(m manifest.Manifest) (unit.Unit, error) {
		return &fakeService{Base: unit.NewBase(m)}, nil
	}))

	require.NoError(t, fx.engine.Load(context.Background(), "vitals/svc"))

	rec, ok, err := fx.store.Get("vitals/svc")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, string(unit.StateLoaded), rec.State)
}

func TestHealthTimeout(t *testing.T) {
	fx := newFixture(t, nil)
	require.NoError(t, fx.registry.Register(serviceManifest("vitals/svc", nil), func(m manifest.Manifest) (unit.Unit, error) {
		return &slowHealthService{fakeService{Base: unit.NewBase(m)}}, nil
	}))
	_, err := fx.registry.Instantiate("vitals/svc")
	require.NoError(t, err)

	_, err = fx.engine.Health(context.Background(), "vitals/svc", 20*time.Millisecond)
	assert.Error(t, err)
}

type slowHealthService struct {
	fakeService
}

func (s *slowHealthService) Health(ctx context.Context) (unit.Health, error) {
	<-ctx.Done()
	return unit.Health{}, ctx.Err()
}
