package unit

import (
	"fmt"
	"sort"
	"sync"

	"github.com/conceptixx/AEON/internal/manifest"
)

// DuplicateIDError reports a registration under an id already taken by a
// different manifest.
type DuplicateIDError struct {
	ID string
}

func (e *DuplicateIDError) Error() string {
	return fmt.Sprintf("unit %q already registered with a different manifest", e.ID)
}

// VersionConflictError reports two manifests claiming the same id with
// different versions.
type VersionConflictError struct {
	ID       string
	Existing string
	New      string
}

func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("version conflict: %s exists as v%s and v%s", e.ID, e.Existing, e.New)
}

// NotFoundError reports a lookup for an unregistered unit.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("unit %q not registered", e.ID)
}

// Registry maps unit ids to manifests, constructors and live instances. The
// orchestrator owns the single registry; everyone else reads through it.
type Registry struct {
	mu           sync.RWMutex
	manifests    map[string]manifest.Manifest
	constructors map[string]Constructor
	instances    map[string]Unit
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		manifests:    make(map[string]manifest.Manifest),
		constructors: make(map[string]Constructor),
		instances:    make(map[string]Unit),
	}
}

// Register validates and stores a manifest together with its constructor.
// Registering an identical manifest twice is a no-op; registering a different
// manifest under the same id fails with DuplicateIDError (or
// VersionConflictError when only the version differs).
func (r *Registry) Register(m manifest.Manifest, ctor Constructor) error {
	if err := m.Validate(); err != nil {
		return err
	}
	if ctor == nil {
		return fmt.Errorf("unit %q: constructor is required", m.ID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.manifests[m.ID]; ok {
		if existing.Equal(m) {
			return nil
		}
		if existing.Version != m.Version {
			return &VersionConflictError{ID: m.ID, Existing: existing.Version, New: m.Version}
		}
		return &DuplicateIDError{ID: m.ID}
	}

	r.manifests[m.ID] = m
	r.constructors[m.ID] = ctor
	return nil
}

// Amend lets the orchestrator adjust a registered manifest in place (process
// documents may override dependencies or force re-execution). The amended
// manifest is re-validated; live instances are not touched.
func (r *Registry) Amend(id string, fn func(*manifest.Manifest)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.manifests[id]
	if !ok {
		return &NotFoundError{ID: id}
	}
	fn(&m)
	if err := m.Validate(); err != nil {
		return err
	}
	r.manifests[id] = m
	return nil
}

// Manifest returns the manifest registered under id.
func (r *Registry) Manifest(id string) (manifest.Manifest, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.manifests[id]
	return m, ok
}

// Manifests returns all registered manifests sorted by id.
func (r *Registry) Manifests() []manifest.Manifest {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.manifests))
	for id := range r.manifests {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]manifest.Manifest, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.manifests[id])
	}
	return out
}

// Instantiate builds (or returns the existing) instance for id.
func (r *Registry) Instantiate(id string) (Unit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if inst, ok := r.instances[id]; ok {
		return inst, nil
	}

	m, ok := r.manifests[id]
	if !ok {
		return nil, &NotFoundError{ID: id}
	}
	ctor := r.constructors[id]

	inst, err := ctor(m)
	if err != nil {
		return nil, fmt.Errorf("failed to construct unit %s: %w", id, err)
	}
	r.instances[id] = inst
	return inst, nil
}

// Instance returns the live instance for id, if one exists.
func (r *Registry) Instance(id string) (Unit, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inst, ok := r.instances[id]
	return inst, ok
}

// Instances returns all live instances.
func (r *Registry) Instances() []Unit {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Unit, 0, len(r.instances))
	for _, inst := range r.instances {
		out = append(out, inst)
	}
	return out
}

// RemoveInstance drops the live instance for id, keeping the manifest and
// constructor so the unit can be loaded again.
func (r *Registry) RemoveInstance(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.instances, id)
}

// Len returns the number of registered manifests.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.manifests)
}
