package manifest

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// Flavor distinguishes the two unit execution models.
type Flavor string

const (
	// FlavorService is a long-running unit with start/stop semantics.
	FlavorService Flavor = "service"
	// FlavorTask is a one-shot unit executed through a single resolve call.
	FlavorTask Flavor = "task"
)

// HookEvent names a point in the unit lifecycle at which a declared hook runs.
type HookEvent string

const (
	HookOnLoad        HookEvent = "on_load"
	HookBeforeResolve HookEvent = "before_resolve"
	HookBeforeStart   HookEvent = "before_start"
	HookOnResolve     HookEvent = "on_resolve"
	HookOnStart       HookEvent = "on_start"
	HookOnSuccess     HookEvent = "on_success"
	HookOnError       HookEvent = "on_error"
	HookAfterResolve  HookEvent = "after_resolve"
	HookAfterStop     HookEvent = "after_stop"
)

// KnownHookEvents is the complete set of hook events the lifecycle engine
// dispatches. Manifests binding any other event name fail validation.
var KnownHookEvents = map[HookEvent]bool{
	HookOnLoad:        true,
	HookBeforeResolve: true,
	HookBeforeStart:   true,
	HookOnResolve:     true,
	HookOnStart:       true,
	HookOnSuccess:     true,
	HookOnError:       true,
	HookAfterResolve:  true,
	HookAfterStop:     true,
}

// ConfigKey declares one configuration key a unit consumes, together with its
// declared type and default value. The config resolver is seeded from these.
type ConfigKey struct {
	Name    string      `json:"name" yaml:"name"`
	Type    string      `json:"type,omitempty" yaml:"type,omitempty"`
	Default interface{} `json:"default,omitempty" yaml:"default,omitempty"`
}

// Resources carries advisory CPU/memory/thread hints. The scheduler does not
// enforce them.
type Resources struct {
	CPU     float64 `json:"cpu,omitempty" yaml:"cpu,omitempty"`
	MemoryMB int    `json:"memory_mb,omitempty" yaml:"memory_mb,omitempty"`
	Threads  int    `json:"threads,omitempty" yaml:"threads,omitempty"`
}

// Manifest is the immutable descriptor of one executable unit. It is consumed
// read-only by every component; the registry owns the canonical copy.
type Manifest struct {
	// ID is the unit identity in group/name form.
	ID string `json:"id" yaml:"id"`
	// Group must equal the prefix of ID before the slash.
	Group       string `json:"group" yaml:"group"`
	Version     string `json:"version" yaml:"version"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Required units must succeed for the run as a whole to succeed.
	Required bool `json:"required,omitempty" yaml:"required,omitempty"`

	HardDeps []string `json:"hard_deps,omitempty" yaml:"hard_deps,omitempty"`
	SoftDeps []string `json:"soft_deps,omitempty" yaml:"soft_deps,omitempty"`

	// Provides and Consumes name capabilities; purely documentary.
	Provides []string `json:"provides,omitempty" yaml:"provides,omitempty"`
	Consumes []string `json:"consumes,omitempty" yaml:"consumes,omitempty"`

	ConfigKeys []ConfigKey `json:"config_keys,omitempty" yaml:"config_keys,omitempty"`

	// RequiredPermissions is checked against the caller's security context
	// before load.
	RequiredPermissions []string `json:"required_permissions,omitempty" yaml:"required_permissions,omitempty"`

	// Hooks maps hook events to handler identifiers within the unit module.
	Hooks map[HookEvent]string `json:"hooks,omitempty" yaml:"hooks,omitempty"`

	// HotUnloadAllowed controls whether a running unit may be
	// stopped-and-reloaded in place. Defaults to true via New.
	HotUnloadAllowed bool   `json:"hot_unload_allowed" yaml:"hot_unload_allowed"`
	HotUnloadReason  string `json:"hot_unload_reason,omitempty" yaml:"hot_unload_reason,omitempty"`

	// ForceExecute bypasses the idempotent short-circuit for task units.
	ForceExecute bool `json:"force_execute,omitempty" yaml:"force_execute,omitempty"`

	Flavor    Flavor    `json:"flavor" yaml:"flavor"`
	Resources Resources `json:"resources,omitempty" yaml:"resources,omitempty"`

	// Sensitive marks units handling secrets or PII.
	Sensitive bool `json:"sensitive,omitempty" yaml:"sensitive,omitempty"`

	// Operational metadata
	Author    string `json:"author,omitempty" yaml:"author,omitempty"`
	License   string `json:"license,omitempty" yaml:"license,omitempty"`
	SourceURL string `json:"source_url,omitempty" yaml:"source_url,omitempty"`
}

// New returns a manifest with defaults applied: Group derived from the id and
// HotUnloadAllowed enabled. Callers still must pass the result through
// Validate (the registry does so on registration).
func New(id, version string) Manifest {
	group, _, _ := SplitID(id)
	return Manifest{
		ID:               id,
		Group:            group,
		Version:          version,
		Flavor:           FlavorTask,
		HotUnloadAllowed: true,
	}
}

// SplitID splits a group/name unit id into its segments.
func SplitID(id string) (group, name string, err error) {
	idx := strings.Index(id, "/")
	if id == "" || idx <= 0 || idx == len(id)-1 {
		return "", "", &ValidationError{ID: id, Reason: fmt.Sprintf("invalid unit id %q: must be 'group/name'", id)}
	}
	return id[:idx], id[idx+1:], nil
}

// Validate checks the manifest against the registration-time rules: non-empty
// group/name id, group prefix match, version present, known hook events, and
// no self hard-dependency.
func (m Manifest) Validate() error {
	group, _, err := SplitID(m.ID)
	if err != nil {
		return err
	}

	if m.Group != "" && m.Group != group {
		return &ValidationError{
			ID:     m.ID,
			Reason: fmt.Sprintf("group mismatch: manifest.group=%q but id implies %q", m.Group, group),
		}
	}

	if m.Version == "" {
		return &ValidationError{ID: m.ID, Reason: "version is required"}
	}

	if m.Flavor != FlavorService && m.Flavor != FlavorTask {
		return &ValidationError{ID: m.ID, Reason: fmt.Sprintf("unknown flavor %q", m.Flavor)}
	}

	for event := range m.Hooks {
		if !KnownHookEvents[event] {
			return &ValidationError{ID: m.ID, Reason: fmt.Sprintf("unknown hook event %q", event)}
		}
	}

	for _, dep := range m.HardDeps {
		if dep == m.ID {
			return &ValidationError{ID: m.ID, Reason: "unit depends on itself"}
		}
	}

	return nil
}

// Equal reports whether two manifests are identical. Registration is
// idempotent for equal manifests and rejected otherwise.
func (m Manifest) Equal(other Manifest) bool {
	return reflect.DeepEqual(normalize(m), normalize(other))
}

// normalize sorts the order-insensitive slices so Equal is stable regardless
// of declaration order.
func normalize(m Manifest) Manifest {
	m.HardDeps = sortedCopy(m.HardDeps)
	m.SoftDeps = sortedCopy(m.SoftDeps)
	m.Provides = sortedCopy(m.Provides)
	m.Consumes = sortedCopy(m.Consumes)
	return m
}

func sortedCopy(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	sort.Strings(out)
	return out
}

// ValidationError reports a manifest that fails registration-time validation.
type ValidationError struct {
	ID     string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid manifest %q: %s", e.ID, e.Reason)
}
