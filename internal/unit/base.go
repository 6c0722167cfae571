package unit

import (
	"sync"

	"github.com/conceptixx/AEON/internal/manifest"
)

// Base provides a base implementation of the Unit interface that concrete
// units can embed to avoid reimplementing state bookkeeping.
type Base struct {
	mu            sync.RWMutex
	manifest      manifest.Manifest
	hooks         Hooks
	state         State
	lastError     error
	stateChangeCb StateChangeCallback
}

// NewBase creates a new base unit in the unloaded state.
func NewBase(m manifest.Manifest) *Base {
	return &Base{
		manifest: m,
		state:    StateUnloaded,
	}
}

// Manifest returns the unit's descriptor.
func (b *Base) Manifest() manifest.Manifest {
	return b.manifest
}

// Hooks returns the unit's hook bindings.
func (b *Base) Hooks() Hooks {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.hooks
}

// SetHooks installs the unit's hook bindings. Concrete units call this once
// during construction.
func (b *Base) SetHooks(h Hooks) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.hooks = h
}

// GetState returns the current lifecycle state.
func (b *Base) GetState() State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

// GetLastError returns the last error.
func (b *Base) GetLastError() error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastError
}

// SetStateChangeCallback sets the state change callback.
func (b *Base) SetStateChangeCallback(callback StateChangeCallback) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stateChangeCb = callback
}

// UpdateState updates the unit state and notifies the callback.
func (b *Base) UpdateState(newState State, err error) {
	b.mu.Lock()
	oldState := b.state
	b.state = newState
	b.lastError = err
	callback := b.stateChangeCb
	id := b.manifest.ID
	b.mu.Unlock()

	// Call the callback outside of the lock to avoid deadlocks
	if callback != nil && oldState != newState {
		callback(id, oldState, newState, err)
	}
}

// UpdateError records an error without a state transition.
func (b *Base) UpdateError(err error) {
	b.mu.Lock()
	b.lastError = err
	state := b.state
	callback := b.stateChangeCb
	id := b.manifest.ID
	b.mu.Unlock()

	if callback != nil && err != nil {
		callback(id, state, state, err)
	}
}
