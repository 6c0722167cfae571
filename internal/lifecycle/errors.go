package lifecycle

import (
	"fmt"

	"github.com/conceptixx/AEON/internal/unit"
)

// TransitionError reports an attempted lifecycle transition that the state
// machine does not draw.
type TransitionError struct {
	ID   string
	From unit.State
	To   unit.State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("unit %q: illegal transition %s -> %s", e.ID, e.From, e.To)
}

// PermissionError reports a capability check failure before load.
type PermissionError struct {
	ID         string
	Permission string
	Principal  string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("unit %q requires permission %q (principal: %s)", e.ID, e.Permission, e.Principal)
}

// HookError wraps a failure raised by a lifecycle hook.
type HookError struct {
	ID    string
	Event string
	Err   error
}

func (e *HookError) Error() string {
	return fmt.Sprintf("unit %q: hook %s failed: %v", e.ID, e.Event, e.Err)
}

func (e *HookError) Unwrap() error {
	return e.Err
}

// StopTimeoutError reports a stop call exceeding its timeout. The background
// activity is cancelled cooperatively, never force-killed.
type StopTimeoutError struct {
	ID      string
	Timeout string
}

func (e *StopTimeoutError) Error() string {
	return fmt.Sprintf("unit %q: stop timeout after %s", e.ID, e.Timeout)
}
