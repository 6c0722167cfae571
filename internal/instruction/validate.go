package instruction

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Validate checks the document against the aeon.instructions schema.
func (d *Document) Validate() error {
	if d.Schema != SchemaTag {
		return &ValidationError{Reason: fmt.Sprintf("schema must be %q, got %q", SchemaTag, d.Schema)}
	}
	if d.Version != SchemaVersion {
		return &ValidationError{Reason: fmt.Sprintf("unsupported schema version %q (want %s)", d.Version, SchemaVersion)}
	}
	if d.ProcessName == "" {
		return &ValidationError{Reason: "process_name is required"}
	}
	if len(d.Tasks) == 0 {
		return &ValidationError{Reason: "tasks must not be empty"}
	}
	if d.EntryPoint.Task == "" {
		return &ValidationError{Reason: "entry_point.task is required"}
	}
	if d.Refs.Configs == nil {
		return &ValidationError{Reason: "refs.configs is required"}
	}
	if len(d.Flows) == 0 {
		return &ValidationError{Reason: "at least one flow is required"}
	}

	// Duplicate task entries are rejected.
	seenTasks := make(map[string]bool, len(d.Tasks))
	for _, task := range d.Tasks {
		if task.Task == "" {
			return &ValidationError{Reason: "task entry with empty task id"}
		}
		if seenTasks[task.Task] {
			return &ValidationError{Reason: fmt.Sprintf("duplicate task id %q", task.Task)}
		}
		seenTasks[task.Task] = true
	}

	for mode, steps := range d.Flows {
		if mode != FlowInteractive && mode != FlowNoninteractive {
			return &ValidationError{Reason: fmt.Sprintf("unknown flow %q", mode)}
		}
		seenSteps := make(map[string]bool, len(steps))
		for _, step := range steps {
			if step.ID == "" {
				return &ValidationError{Reason: fmt.Sprintf("flow %q has a step with no id", mode)}
			}
			if seenSteps[step.ID] {
				return &ValidationError{Reason: fmt.Sprintf("duplicate step id %q in flow %q", step.ID, mode)}
			}
			seenSteps[step.ID] = true
			if step.Task == "" {
				return &ValidationError{Reason: fmt.Sprintf("step %q names no task", step.ID)}
			}
		}
	}

	if policy := d.UnknownFlagPolicy; policy != "" &&
		policy != UnknownFlagWarn && policy != UnknownFlagError && policy != UnknownFlagIgnore {
		return &ValidationError{Reason: fmt.Sprintf("unknown flag policy %q", policy)}
	}

	for _, spec := range d.Flags {
		if spec.Name == "" {
			return &ValidationError{Reason: "flag spec with empty name"}
		}
		switch spec.Type {
		case "bool", "string", "int", "float":
		default:
			return &ValidationError{Reason: fmt.Sprintf("flag %q has unknown type %q", spec.Name, spec.Type)}
		}
	}

	for _, ef := range d.ExpectedFiles {
		switch ef.Policy {
		case PolicyRequiredNow, PolicyRequiredEventually, PolicyOptional:
		default:
			return &ValidationError{Reason: fmt.Sprintf("expected file %q has unknown policy %q", ef.Path, ef.Policy)}
		}
		if err := CheckPathContained(ef.Path); err != nil {
			return err
		}
	}

	for id, path := range d.Refs.Configs {
		if err := CheckPathContained(path); err != nil {
			return fmt.Errorf("refs.configs[%s]: %w", id, err)
		}
	}
	if d.Outputs.Result != "" {
		if err := CheckPathContained(d.Outputs.Result); err != nil {
			return err
		}
	}

	return nil
}

// CheckPathContained enforces the manifest path rule: paths are interpreted
// relative to the installation root; absolute paths and any component equal
// to ".." are rejected.
func CheckPathContained(path string) error {
	if path == "" || filepath.IsAbs(path) {
		return &PathSecurityError{Path: path}
	}
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == ".." {
			return &PathSecurityError{Path: path}
		}
	}
	return nil
}

// CheckExpectedFiles verifies the document's expected files against the
// installation root. Missing required_now files are fatal; missing
// required_eventually files produce warnings; optional files are ignored.
func (d *Document) CheckExpectedFiles(root string) (warnings []string, err error) {
	for _, ef := range d.ExpectedFiles {
		full := filepath.Join(root, filepath.FromSlash(ef.Path))
		_, statErr := os.Stat(full)
		exists := statErr == nil

		switch ef.Policy {
		case PolicyRequiredNow:
			if !exists {
				return warnings, &ExpectedFileError{Path: ef.Path}
			}
		case PolicyRequiredEventually:
			if !exists {
				warnings = append(warnings, fmt.Sprintf("expected file %q not present yet", ef.Path))
			}
		}
	}
	return warnings, nil
}
