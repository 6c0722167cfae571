package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/conceptixx/AEON/pkg/logging"
)

// LoadSystemConfig loads the system-wide configuration document. A missing
// file leaves the layer empty.
func (r *Resolver) LoadSystemConfig(path string) error {
	doc, err := loadDocument(path)
	if err != nil {
		return fmt.Errorf("failed to load system config from %s: %w", path, err)
	}
	if doc == nil {
		logging.Info("Config", "No system config at %s, layer stays empty", path)
		return nil
	}

	r.mu.Lock()
	r.systemConfig = doc
	r.mu.Unlock()

	logging.Info("Config", "Loaded system config from %s", path)
	return nil
}

// LoadUserConfig loads the user-scoped configuration document. A missing file
// leaves the layer empty.
func (r *Resolver) LoadUserConfig(path string) error {
	doc, err := loadDocument(path)
	if err != nil {
		return fmt.Errorf("failed to load user config from %s: %w", path, err)
	}
	if doc == nil {
		logging.Info("Config", "No user config at %s, layer stays empty", path)
		return nil
	}

	r.mu.Lock()
	r.userConfig = doc
	r.mu.Unlock()

	logging.Info("Config", "Loaded user config from %s", path)
	return nil
}

// MergeUserConfig overlays another document onto the user layer. Later
// overlays win per key; nested sections merge recursively.
func (r *Resolver) MergeUserConfig(path string) error {
	doc, err := loadDocument(path)
	if err != nil {
		return fmt.Errorf("failed to load config overlay from %s: %w", path, err)
	}
	if doc == nil {
		return fmt.Errorf("config overlay %s does not exist", path)
	}

	r.mu.Lock()
	r.userConfig = mergeMaps(r.userConfig, doc)
	r.mu.Unlock()

	logging.Info("Config", "Merged config overlay from %s", path)
	return nil
}

func mergeMaps(base, overlay map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(base)+len(overlay))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range overlay {
		if existing, ok := out[k].(map[string]interface{}); ok {
			if incoming, ok := v.(map[string]interface{}); ok {
				out[k] = mergeMaps(existing, incoming)
				continue
			}
		}
		out[k] = v
	}
	return out
}

// ClearUserConfig empties the user layer.
func (r *Resolver) ClearUserConfig() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.userConfig = make(map[string]interface{})
}

// ClearSystemConfig empties the system layer.
func (r *Resolver) ClearSystemConfig() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.systemConfig = make(map[string]interface{})
}

// loadDocument reads a YAML document into a nested string-keyed map. Returns
// (nil, nil) when the file does not exist.
func loadDocument(path string) (map[string]interface{}, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var doc map[string]interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc == nil {
		doc = make(map[string]interface{})
	}
	return doc, nil
}
