package utils

import (
	"context"

	"github.com/conceptixx/AEON/internal/config"
	"github.com/conceptixx/AEON/internal/manifest"
	"github.com/conceptixx/AEON/internal/unit"
	"github.com/conceptixx/AEON/pkg/logging"
)

// ConfigHandlerID is the unit id of the config handler task.
const ConfigHandlerID = "utils/config-handler"

func configHandlerManifest() manifest.Manifest {
	m := manifest.New(ConfigHandlerID, "1.0.0")
	m.Flavor = manifest.FlavorTask
	m.Description = "Resolves and reports the effective configuration"
	m.ConfigKeys = []manifest.ConfigKey{
		{Name: "section", Type: config.TypeString, Default: ""},
	}
	return m
}

// ConfigHandler is a one-shot task that materializes its effective
// configuration section into its result payload, making the resolved values
// visible to dependent tasks and to the run result document.
type ConfigHandler struct {
	*unit.Base
	resolver *config.Resolver
}

// NewConfigHandler builds the task over the given resolver.
func NewConfigHandler(m manifest.Manifest, resolver *config.Resolver) *ConfigHandler {
	return &ConfigHandler{Base: unit.NewBase(m), resolver: resolver}
}

// Resolve reports the merged configuration. When the event payload names a
// unit id under "section", that unit's section is reported instead of the
// handler's own.
func (c *ConfigHandler) Resolve(ctx context.Context, hc *unit.HookContext) (map[string]interface{}, error) {
	target := ConfigHandlerID
	if section, ok := hc.Event["section"].(string); ok && section != "" {
		target = section
	}

	section := c.resolver.Section(target)
	logging.Info("ConfigHandler", "Resolved %d keys for %s", len(section), target)

	return map[string]interface{}{
		"unit":   target,
		"config": section,
	}, nil
}

// Register contributes the utils units to a registry and seeds the config
// resolver with their declared defaults.
func Register(reg *unit.Registry, resolver *config.Resolver) error {
	m := configHandlerManifest()
	resolver.RegisterUnitDefaults(m.ID, m.ConfigKeys)
	return reg.Register(m, func(m manifest.Manifest) (unit.Unit, error) {
		return NewConfigHandler(m, resolver), nil
	})
}
