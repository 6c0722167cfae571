package config

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/conceptixx/AEON/internal/manifest"
	"github.com/conceptixx/AEON/pkg/logging"
	"github.com/conceptixx/AEON/pkg/metrics"
)

// EnvPrefix is the prefix of layered config environment variables:
// NEXUS_<GROUP>_<NAME>_<KEY>.
const EnvPrefix = "NEXUS_"

// Source names the layer a resolved value came from.
type Source string

const (
	SourceRuntime     Source = "runtime"
	SourceEnvironment Source = "environment"
	SourceUser        Source = "user"
	SourceUnit        Source = "unit"
	SourceSystem      Source = "system"
	SourceDefault     Source = "default"
	SourceUnknown     Source = "unknown"
)

// unitDefault is one declared key seeded from a manifest.
type unitDefault struct {
	declaredType string
	value        interface{}
}

// ReloadCallback is invoked synchronously with (key, newValue) when an
// override fires for the unit it was registered under.
type ReloadCallback func(key string, value interface{})

// Resolver is the layered read-through configuration resolver. Resolution
// consults layers in strict descending precedence, stopping at the first hit:
// runtime overrides, process environment, user configuration, unit defaults,
// system configuration.
type Resolver struct {
	mu sync.RWMutex

	systemConfig map[string]interface{}
	userConfig   map[string]interface{}
	unitDefaults map[string]map[string]unitDefault
	overrides    map[string]map[string]interface{}

	secretProvider  SecretProvider
	reloadCallbacks map[string][]ReloadCallback

	audit *auditLog
}

// NewResolver returns a resolver with no layers populated and the
// environment-backed secret provider installed.
func NewResolver() *Resolver {
	return &Resolver{
		systemConfig:    make(map[string]interface{}),
		userConfig:      make(map[string]interface{}),
		unitDefaults:    make(map[string]map[string]unitDefault),
		overrides:       make(map[string]map[string]interface{}),
		secretProvider:  &EnvSecretProvider{},
		reloadCallbacks: make(map[string][]ReloadCallback),
		audit:           newAuditLog(auditCap),
	}
}

// SetSecretProvider installs the secret provider consulted by GetSecret.
func (r *Resolver) SetSecretProvider(p SecretProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.secretProvider = p
}

// RegisterUnitDefaults seeds the unit-defaults layer from a manifest's
// declared config keys.
func (r *Resolver) RegisterUnitDefaults(unitID string, keys []manifest.ConfigKey) {
	r.mu.Lock()
	defer r.mu.Unlock()

	defaults := make(map[string]unitDefault, len(keys))
	for _, k := range keys {
		defaults[k.Name] = unitDefault{declaredType: k.Type, value: k.Default}
	}
	r.unitDefaults[unitID] = defaults
	logging.Debug("Config", "Registered %d default keys for %s", len(keys), unitID)
}

// GetOption customizes a single resolution.
type GetOption func(*getOptions)

type getOptions struct {
	expectedType string
	def          interface{}
	hasDefault   bool
}

// WithType requires the resolved value to satisfy the declared type, coercing
// string sources.
func WithType(t string) GetOption {
	return func(o *getOptions) { o.expectedType = t }
}

// WithDefault supplies a fallback used when no layer has the key.
func WithDefault(v interface{}) GetOption {
	return func(o *getOptions) { o.def = v; o.hasDefault = true }
}

// Get resolves (unitID, key) through the precedence layers.
func (r *Resolver) Get(unitID, key string, opts ...GetOption) (interface{}, error) {
	var o getOptions
	for _, opt := range opts {
		opt(&o)
	}

	value, source, found := r.lookup(unitID, key)

	// The declared type from the manifest applies when the caller did not
	// require one explicitly.
	expected := o.expectedType
	if expected == "" {
		r.mu.RLock()
		if defs, ok := r.unitDefaults[unitID]; ok {
			expected = defs[key].declaredType
		}
		r.mu.RUnlock()
	}

	if !found {
		if o.hasDefault {
			value = o.def
			source = SourceDefault
		} else {
			return nil, &MissingConfigError{UnitID: unitID, Key: key}
		}
	}

	if expected != "" {
		coerced, err := coerce(unitID, key, value, expected)
		if err != nil {
			return nil, err
		}
		value = coerced
	}

	metrics.ConfigResolutions.WithLabelValues(string(source)).Inc()
	logging.Debug("Config", "Resolved %s.%s (source: %s)", unitID, key, source)
	return value, nil
}

// GetString resolves a string-typed value.
func (r *Resolver) GetString(unitID, key string, opts ...GetOption) (string, error) {
	v, err := r.Get(unitID, key, append(opts, WithType(TypeString))...)
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// GetInt resolves an int-typed value.
func (r *Resolver) GetInt(unitID, key string, opts ...GetOption) (int, error) {
	v, err := r.Get(unitID, key, append(opts, WithType(TypeInt))...)
	if err != nil {
		return 0, err
	}
	return v.(int), nil
}

// GetBool resolves a bool-typed value.
func (r *Resolver) GetBool(unitID, key string, opts ...GetOption) (bool, error) {
	v, err := r.Get(unitID, key, append(opts, WithType(TypeBool))...)
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

// GetFloat resolves a float-typed value.
func (r *Resolver) GetFloat(unitID, key string, opts ...GetOption) (float64, error) {
	v, err := r.Get(unitID, key, append(opts, WithType(TypeFloat))...)
	if err != nil {
		return 0, err
	}
	return v.(float64), nil
}

// lookup walks the layers in precedence order.
func (r *Resolver) lookup(unitID, key string) (interface{}, Source, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	// 1. Runtime overrides
	if unitOverrides, ok := r.overrides[unitID]; ok {
		if v, ok := unitOverrides[key]; ok {
			return v, SourceRuntime, true
		}
	}

	group, name, err := manifest.SplitID(unitID)
	if err != nil {
		return nil, SourceUnknown, false
	}

	// 2. Process environment
	if v, ok := os.LookupEnv(EnvVarName(unitID, key)); ok {
		return v, SourceEnvironment, true
	}

	// 3. User configuration
	if v, ok := nested(r.userConfig, group, name, key); ok {
		return v, SourceUser, true
	}

	// 4. Unit defaults
	if defs, ok := r.unitDefaults[unitID]; ok {
		if d, ok := defs[key]; ok && d.value != nil {
			return d.value, SourceUnit, true
		}
	}

	// 5. System configuration
	if v, ok := nested(r.systemConfig, group, name, key); ok {
		return v, SourceSystem, true
	}

	return nil, SourceUnknown, false
}

// Source reports which layer currently supplies (unitID, key).
func (r *Resolver) Source(unitID, key string) Source {
	_, source, found := r.lookup(unitID, key)
	if !found {
		return SourceUnknown
	}
	return source
}

// EnvVarName returns the environment variable consulted for (unitID, key):
// NEXUS_<GROUP>_<NAME>_<KEY> in upper snake case.
func EnvVarName(unitID, key string) string {
	group, name, err := manifest.SplitID(unitID)
	if err != nil {
		return ""
	}
	upper := func(s string) string {
		return strings.ToUpper(strings.NewReplacer("-", "_", "/", "_").Replace(s))
	}
	return EnvPrefix + upper(group) + "_" + upper(name) + "_" + upper(key)
}

// SetOverride installs a runtime override at the highest precedence layer and
// synchronously notifies every reload callback registered for the unit.
// Callback failures are logged and do not abort the override.
func (r *Resolver) SetOverride(unitID, key string, value interface{}) {
	r.mu.Lock()
	if _, ok := r.overrides[unitID]; !ok {
		r.overrides[unitID] = make(map[string]interface{})
	}
	old := r.overrides[unitID][key]
	r.overrides[unitID][key] = value
	callbacks := append([]ReloadCallback(nil), r.reloadCallbacks[unitID]...)
	r.audit.append(auditRecord{Action: "set_override", UnitID: unitID, Key: key, Old: old, New: value})
	r.mu.Unlock()

	logging.Info("Config", "Runtime override: %s.%s", unitID, key)
	logging.Audit(logging.AuditEvent{Action: "set_override", Outcome: "success", UnitID: unitID, Key: key})

	for _, cb := range callbacks {
		r.invokeCallback(unitID, key, value, cb)
	}
}

func (r *Resolver) invokeCallback(unitID, key string, value interface{}, cb ReloadCallback) {
	defer func() {
		if rec := recover(); rec != nil {
			logging.Error("Config", fmt.Errorf("panic: %v", rec), "Reload callback panicked for %s.%s", unitID, key)
		}
	}()
	cb(key, value)
}

// ClearOverride removes a runtime override.
func (r *Resolver) ClearOverride(unitID, key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if unitOverrides, ok := r.overrides[unitID]; ok {
		delete(unitOverrides, key)
		if len(unitOverrides) == 0 {
			delete(r.overrides, unitID)
		}
	}
}

// RegisterReloadCallback registers a callback fired on every override for the
// unit.
func (r *Resolver) RegisterReloadCallback(unitID string, cb ReloadCallback) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reloadCallbacks[unitID] = append(r.reloadCallbacks[unitID], cb)
}

// Section returns the merged configuration view for a unit, lowest precedence
// first so higher layers win.
func (r *Resolver) Section(unitID string) map[string]interface{} {
	group, name, err := manifest.SplitID(unitID)
	if err != nil {
		return nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]interface{})

	if section, ok := nestedSection(r.systemConfig, group, name); ok {
		for k, v := range section {
			out[k] = v
		}
	}
	if defs, ok := r.unitDefaults[unitID]; ok {
		for k, d := range defs {
			if d.value != nil {
				out[k] = d.value
			}
		}
	}
	if section, ok := nestedSection(r.userConfig, group, name); ok {
		for k, v := range section {
			out[k] = v
		}
	}
	for k, v := range envSection(unitID) {
		out[k] = v
	}
	if unitOverrides, ok := r.overrides[unitID]; ok {
		for k, v := range unitOverrides {
			out[k] = v
		}
	}

	return out
}

// envSection scans the process environment for every key addressed to unitID.
func envSection(unitID string) map[string]interface{} {
	prefix := EnvVarName(unitID, "")
	if prefix == "" {
		return nil
	}

	out := make(map[string]interface{})
	for _, kv := range os.Environ() {
		eq := strings.Index(kv, "=")
		if eq < 0 || !strings.HasPrefix(kv[:eq], prefix) {
			continue
		}
		key := strings.ToLower(strings.TrimPrefix(kv[:eq], prefix))
		if key == "" {
			continue
		}
		out[key] = kv[eq+1:]
	}
	return out
}

// Dump renders the effective configuration for a unit with per-key source
// attribution, masking values whose key suggests secrets.
func (r *Resolver) Dump(unitID string) string {
	section := r.Section(unitID)

	keys := make([]string, 0, len(section))
	for k := range section {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := []string{fmt.Sprintf("Configuration for %s:", unitID)}
	for _, k := range keys {
		display := section[k]
		lower := strings.ToLower(k)
		if strings.Contains(lower, "password") || strings.Contains(lower, "secret") || strings.Contains(lower, "token") {
			display = "***REDACTED***"
		}
		lines = append(lines, fmt.Sprintf("  %s = %v  (source: %s)", k, display, r.Source(unitID, k)))
	}
	return strings.Join(lines, "\n")
}

func nested(doc map[string]interface{}, keys ...string) (interface{}, bool) {
	var current interface{} = doc
	for _, k := range keys {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = m[k]
		if !ok || current == nil {
			return nil, false
		}
	}
	return current, true
}

func nestedSection(doc map[string]interface{}, keys ...string) (map[string]interface{}, bool) {
	v, ok := nested(doc, keys...)
	if !ok {
		return nil, false
	}
	section, ok := v.(map[string]interface{})
	return section, ok
}
