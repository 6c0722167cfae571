package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/conceptixx/AEON/internal/config"
	"github.com/conceptixx/AEON/internal/orchestrator"
	"github.com/conceptixx/AEON/internal/state"
	"github.com/conceptixx/AEON/internal/unit"
	"github.com/conceptixx/AEON/internal/units/utils"
	"github.com/conceptixx/AEON/internal/units/vitals"
)

const (
	systemConfigPath = "/etc/aeon/config.yaml"
	userConfigDir    = ".config/aeon"
	configFileName   = "config.yaml"
	statesSubdir     = "runtime/states"
)

// buildApp assembles the orchestrator over the given installation root: the
// file state store under <root>/runtime/states, the layered config resolver
// seeded from the system and user documents, and the built-in unit packs.
func buildApp(root string, overlays []string) (*orchestrator.Orchestrator, *config.Resolver, error) {
	store, err := state.NewFileStore(filepath.Join(root, filepath.FromSlash(statesSubdir)))
	if err != nil {
		return nil, nil, err
	}

	resolver := config.NewResolver()
	if err := resolver.LoadSystemConfig(systemConfigPath); err != nil {
		return nil, nil, err
	}
	if home, herr := os.UserHomeDir(); herr == nil {
		if err := resolver.LoadUserConfig(filepath.Join(home, userConfigDir, configFileName)); err != nil {
			return nil, nil, err
		}
	}
	for _, overlay := range overlays {
		if err := resolver.MergeUserConfig(overlay); err != nil {
			return nil, nil, err
		}
	}

	// A local operator owns the installation; the admin role grants every
	// unit capability.
	security := unit.NewSecurityContext("aeon-cli", []string{"admin"}, nil)

	o := orchestrator.New(orchestrator.Config{
		Store:    store,
		Config:   resolver,
		Security: security,
	})

	if _, err := o.Discover(builtinPacks(resolver)...); err != nil {
		return nil, nil, err
	}
	return o, resolver, nil
}

// builtinPacks lists the unit packs compiled into this binary. The build
// inserts constructors here instead of reflecting over modules at runtime.
func builtinPacks(resolver *config.Resolver) []orchestrator.Pack {
	return []orchestrator.Pack{
		{Name: "vitals", Register: func(reg *unit.Registry) error {
			return vitals.Register(reg, resolver)
		}},
		{Name: "utils", Register: func(reg *unit.Registry) error {
			return utils.Register(reg, resolver)
		}},
	}
}

// locateProcessFile resolves a process file argument: absolute paths are
// used as-is; relative paths are searched in the repository, then the root,
// then the working directory.
func locateProcessFile(name, root, repo string) (string, error) {
	if filepath.IsAbs(name) {
		if _, err := os.Stat(name); err == nil {
			return name, nil
		}
		return "", fmt.Errorf("process file %s not found", name)
	}

	for _, dir := range []string{repo, root, "."} {
		if dir == "" {
			continue
		}
		candidate := filepath.Join(dir, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("process file %s not found under repo, root or working directory", name)
}
