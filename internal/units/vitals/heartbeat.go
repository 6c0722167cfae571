package vitals

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/conceptixx/AEON/internal/config"
	"github.com/conceptixx/AEON/internal/manifest"
	"github.com/conceptixx/AEON/internal/unit"
	"github.com/conceptixx/AEON/pkg/logging"
)

// HeartbeatID is the unit id of the heartbeat client service.
const HeartbeatID = "vitals/heartbeat"

// heartbeatManifest declares the heartbeat client: a long-running service
// emitting a liveness beat at a configurable interval, optionally POSTing it
// to an endpoint.
func heartbeatManifest() manifest.Manifest {
	m := manifest.New(HeartbeatID, "2.1.0")
	m.Flavor = manifest.FlavorService
	m.Description = "Periodic liveness heartbeat"
	m.Provides = []string{"vitals.heartbeat"}
	m.ConfigKeys = []manifest.ConfigKey{
		{Name: "interval_seconds", Type: config.TypeInt, Default: 30},
		{Name: "endpoint", Type: config.TypeString, Default: ""},
		{Name: "enabled", Type: config.TypeBool, Default: true},
	}
	m.Hooks = map[manifest.HookEvent]string{
		manifest.HookOnLoad: "onLoad",
	}
	return m
}

// Heartbeat is the service unit. Beats are emitted from a tracked background
// activity so stop cancels them cooperatively.
type Heartbeat struct {
	*unit.Base

	resolver *config.Resolver
	client   *http.Client

	interval time.Duration
	endpoint string
	enabled  bool

	beats     atomic.Int64
	lastError atomic.Value // holds errBox
}

// errBox gives atomic.Value a single concrete type to store.
type errBox struct {
	err error
}

// NewHeartbeat builds the heartbeat unit over the given config resolver.
func NewHeartbeat(m manifest.Manifest, resolver *config.Resolver) *Heartbeat {
	h := &Heartbeat{
		Base:     unit.NewBase(m),
		resolver: resolver,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
	h.SetHooks(unit.Hooks{OnLoad: h.onLoad})
	return h
}

// onLoad announces the persisted state when resuming after a restart.
func (h *Heartbeat) onLoad(ctx context.Context, hc *unit.HookContext) (map[string]interface{}, error) {
	if persisted, ok := hc.Event["persisted_state"]; ok {
		logging.Info("Heartbeat", "Resuming with persisted state: %v", persisted)
	}
	return nil, nil
}

// Load resolves the effective configuration.
func (h *Heartbeat) Load(ctx context.Context, hc *unit.HookContext) error {
	interval, err := h.resolver.GetInt(HeartbeatID, "interval_seconds")
	if err != nil {
		return fmt.Errorf("heartbeat interval: %w", err)
	}
	if interval <= 0 {
		return fmt.Errorf("heartbeat interval must be positive, got %d", interval)
	}
	h.interval = time.Duration(interval) * time.Second

	if h.endpoint, err = h.resolver.GetString(HeartbeatID, "endpoint"); err != nil {
		return fmt.Errorf("heartbeat endpoint: %w", err)
	}
	if h.enabled, err = h.resolver.GetBool(HeartbeatID, "enabled"); err != nil {
		return fmt.Errorf("heartbeat enabled: %w", err)
	}

	// Log runtime overrides; the values above are only re-read on the next Load.
	h.resolver.RegisterReloadCallback(HeartbeatID, func(key string, value interface{}) {
		logging.Info("Heartbeat", "Config override %s=%v takes effect on next restart", key, value)
	})
	return nil
}

// Start spawns the beat loop as a tracked background activity.
func (h *Heartbeat) Start(ctx context.Context, hc *unit.HookContext) error {
	if !h.enabled {
		logging.Info("Heartbeat", "Disabled by configuration, idling")
		return nil
	}

	hc.Tracker.Spawn(func(ctx context.Context) {
		ticker := time.NewTicker(h.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				h.beat(ctx)
			case <-ctx.Done():
				return
			}
		}
	})

	logging.Info("Heartbeat", "Beating every %s", h.interval)
	return nil
}

func (h *Heartbeat) beat(ctx context.Context) {
	n := h.beats.Add(1)
	logging.Debug("Heartbeat", "Beat #%d", n)

	if h.endpoint == "" {
		return
	}

	payload, _ := json.Marshal(map[string]interface{}{
		"unit":      HeartbeatID,
		"beat":      n,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(payload))
	if err != nil {
		h.lastError.Store(errBox{err})
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		h.lastError.Store(errBox{err})
		logging.Warn("Heartbeat", "Failed to deliver beat: %v", err)
		return
	}
	resp.Body.Close()
	if resp.StatusCode >= 300 {
		h.lastError.Store(errBox{fmt.Errorf("heartbeat endpoint returned %s", resp.Status)})
		return
	}
	h.lastError.Store(errBox{})
}

// Stop has nothing of its own to halt; the tracked beat loop is cancelled by
// the engine.
func (h *Heartbeat) Stop(ctx context.Context) error {
	logging.Info("Heartbeat", "Stopped after %d beats", h.beats.Load())
	return nil
}

// Unload is idempotent; the unit holds no external resources.
func (h *Heartbeat) Unload(ctx context.Context) error {
	return nil
}

// Health reports degraded when the last delivery failed.
func (h *Heartbeat) Health(ctx context.Context) (unit.Health, error) {
	health := unit.Health{
		Status: unit.HealthHealthy,
		Ready:  true,
		Live:   true,
		Details: map[string]interface{}{
			"beats": h.beats.Load(),
		},
	}
	if box, ok := h.lastError.Load().(errBox); ok && box.err != nil {
		health.Status = unit.HealthDegraded
		health.Details["last_error"] = box.err.Error()
	}
	if h.GetState() != unit.StateStarted {
		health.Live = false
		health.Ready = false
	}
	return health, nil
}

// Beats returns the number of beats emitted so far.
func (h *Heartbeat) Beats() int64 {
	return h.beats.Load()
}

// Register contributes the vitals units to a registry and seeds the config
// resolver with their declared defaults.
func Register(reg *unit.Registry, resolver *config.Resolver) error {
	m := heartbeatManifest()
	resolver.RegisterUnitDefaults(m.ID, m.ConfigKeys)
	return reg.Register(m, func(m manifest.Manifest) (unit.Unit, error) {
		return NewHeartbeat(m, resolver), nil
	})
}
