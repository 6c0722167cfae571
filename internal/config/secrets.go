package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/conceptixx/AEON/pkg/logging"
)

// SecretProvider supplies secret values outside the layered configuration.
// Secrets never appear in any of the precedence layers.
type SecretProvider interface {
	GetSecret(path string) (string, error)
	SetSecret(path string, value string) error
}

// EnvSecretProvider reads secrets from process environment variables.
type EnvSecretProvider struct{}

// GetSecret returns the environment variable named by path.
func (p *EnvSecretProvider) GetSecret(path string) (string, error) {
	value := os.Getenv(path)
	if value == "" {
		return "", &SecretNotFoundError{Path: path}
	}
	return value, nil
}

// SetSecret sets the environment variable named by path.
func (p *EnvSecretProvider) SetSecret(path string, value string) error {
	return os.Setenv(path, value)
}

// FileSecretProvider stores one secret per file under a directory, owner
// read/write only. Intended for development; production deployments should
// register an external vault provider.
type FileSecretProvider struct {
	dir string
}

// NewFileSecretProvider creates the secrets directory if needed.
func NewFileSecretProvider(dir string) (*FileSecretProvider, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create secrets directory %s: %w", dir, err)
	}
	return &FileSecretProvider{dir: dir}, nil
}

func (p *FileSecretProvider) path(secretPath string) string {
	return filepath.Join(p.dir, strings.ReplaceAll(secretPath, "/", "_"))
}

// GetSecret reads a secret file, trimming trailing whitespace which is common
// in mounted secrets.
func (p *FileSecretProvider) GetSecret(secretPath string) (string, error) {
	data, err := os.ReadFile(p.path(secretPath))
	if err != nil {
		if os.IsNotExist(err) {
			return "", &SecretNotFoundError{Path: secretPath}
		}
		return "", fmt.Errorf("failed to read secret %s: %w", secretPath, err)
	}
	return strings.TrimSpace(string(data)), nil
}

// SetSecret writes a secret file with 0600 permissions.
func (p *FileSecretProvider) SetSecret(secretPath string, value string) error {
	if err := os.WriteFile(p.path(secretPath), []byte(value), 0600); err != nil {
		return fmt.Errorf("failed to write secret %s: %w", secretPath, err)
	}
	return nil
}

// secretPathFor builds the provider path for a unit key.
func secretPathFor(unitID, key string) string {
	return "nexus/" + unitID + "/" + key
}

// GetSecret consults only the registered secret provider for (unitID, key).
func (r *Resolver) GetSecret(unitID, key string) (string, error) {
	r.mu.RLock()
	provider := r.secretProvider
	r.mu.RUnlock()

	value, err := provider.GetSecret(secretPathFor(unitID, key))
	if err != nil {
		return "", err
	}

	logging.Info("Config", "Retrieved secret: %s.%s", unitID, key)
	return value, nil
}

// SetSecret writes through the registered secret provider and records the
// action in the audit trail. Secret values never enter the audit records.
func (r *Resolver) SetSecret(unitID, key, value string) error {
	r.mu.RLock()
	provider := r.secretProvider
	r.mu.RUnlock()

	if err := provider.SetSecret(secretPathFor(unitID, key), value); err != nil {
		logging.Audit(logging.AuditEvent{Action: "set_secret", Outcome: "failure", UnitID: unitID, Key: key, Error: err.Error()})
		return err
	}

	r.mu.Lock()
	r.audit.append(auditRecord{Action: "set_secret", UnitID: unitID, Key: key})
	r.mu.Unlock()

	logging.Audit(logging.AuditEvent{Action: "set_secret", Outcome: "success", UnitID: unitID, Key: key})
	return nil
}
