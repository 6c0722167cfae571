package config

import "fmt"

// MissingConfigError reports a key that no layer supplied and for which the
// caller gave no default.
type MissingConfigError struct {
	UnitID string
	Key    string
}

func (e *MissingConfigError) Error() string {
	return fmt.Sprintf("configuration key %q not found for unit %q and no default provided", e.Key, e.UnitID)
}

// TypeError reports a resolved value that cannot satisfy the expected type.
type TypeError struct {
	UnitID   string
	Key      string
	Expected string
	Actual   string
}

func (e *TypeError) Error() string {
	return fmt.Sprintf("configuration value for %q.%q is %s, expected %s", e.UnitID, e.Key, e.Actual, e.Expected)
}

// SecretNotFoundError reports a secret absent from the registered provider.
type SecretNotFoundError struct {
	Path string
}

func (e *SecretNotFoundError) Error() string {
	return fmt.Sprintf("secret not found: %s", e.Path)
}
