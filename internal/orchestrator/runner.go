package orchestrator

import (
	"context"
	"fmt"

	"github.com/conceptixx/AEON/internal/instruction"
	"github.com/conceptixx/AEON/internal/manifest"
	"github.com/conceptixx/AEON/internal/result"
	"github.com/conceptixx/AEON/internal/template"
	"github.com/conceptixx/AEON/pkg/logging"
)

// RunOptions parameterizes a flow run.
type RunOptions struct {
	// Mode selects the flow: interactive or noninteractive.
	Mode string
	// Root is the installation root; relative document paths resolve against
	// it.
	Root string
	// EntryPath is the instruction document path, recorded in the result.
	EntryPath string
	// Flags are the raw CLI flags, recorded in the result document.
	Flags []string
	// UserFlags are parsed flag values exposed to step argument templates.
	UserFlags map[string]interface{}
	// StepObserver, when set, is called before each step runs. Used by the
	// CLI to drive progress output.
	StepObserver func(step instruction.FlowStep)
}

// Run executes the selected flow of an instruction document step by step:
// each step resolves its task through the lifecycle engine, with step
// arguments rendered against user flags, the shared context snapshot and
// prior step results. Execution continues for independent steps; the run
// fails if any required task failed.
func (o *Orchestrator) Run(ctx context.Context, doc *instruction.Document, opts RunOptions) (*result.Document, error) {
	mode := opts.Mode
	if mode == "" {
		mode = instruction.FlowNoninteractive
	}

	steps, ok := doc.Flow(mode)
	if !ok {
		return nil, fmt.Errorf("process %q declares no %q flow", doc.ProcessName, mode)
	}

	resultDoc := result.NewDocument(opts.Root, mode, opts.EntryPath, opts.Flags)
	for _, w := range o.Warnings() {
		resultDoc.AddWarning(w)
	}

	// Surface process-level configuration to tasks through the shared
	// context before anything runs.
	o.seedProcessConfig(doc, opts.UserFlags)

	engine := template.New()
	stepResults := make(map[string]interface{})
	requiredByTask := requiredTasks(doc)

	var runErr error
	for _, step := range steps {
		if opts.StepObserver != nil {
			opts.StepObserver(step)
		}

		templateData := map[string]interface{}{
			"flags":   opts.UserFlags,
			"steps":   stepResults,
			"context": o.engine.Shared().Snapshot(),
		}

		args, err := resolveStepArgs(engine, step, templateData)
		if err != nil {
			resultDoc.AddStep(result.Step{ID: step.ID, Action: action(step), Status: result.StatusFailed, Error: err.Error()})
			runErr = err
			continue
		}

		logging.Info("Orchestrator", "Running step %s (task %s)", step.ID, step.Task)
		payload, err := o.engine.Execute(ctx, step.Task, args)
		if err != nil {
			resultDoc.AddStep(result.Step{ID: step.ID, Action: action(step), Status: result.StatusFailed, Error: err.Error()})
			if requiredByTask[step.Task] {
				runErr = fmt.Errorf("required task %s failed: %w", step.Task, err)
			}
			continue
		}

		stepResults[step.ID] = payload
		resultDoc.AddStep(result.Step{ID: step.ID, Action: action(step), Status: result.StatusSuccess, Result: payload})
	}

	if id, failed := o.RequiredFailed(); failed && runErr == nil {
		runErr = fmt.Errorf("required unit %s failed", id)
	}

	return resultDoc, runErr
}

func action(step instruction.FlowStep) string {
	if step.Method != "" {
		return step.Method
	}
	return "resolve"
}

func resolveStepArgs(engine *template.Engine, step instruction.FlowStep, data map[string]interface{}) (map[string]interface{}, error) {
	if step.Args == nil {
		return nil, nil
	}
	resolved, err := engine.Replace(step.Args, data)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve arguments for step %s: %w", step.ID, err)
	}
	args, ok := resolved.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("step %s: resolved arguments are not a map", step.ID)
	}
	return args, nil
}

// ApplyProcessDocument folds document-level task settings into the registry
// before planning: depends_on overrides the manifest's hard dependencies and
// force_execute bypasses the idempotent short-circuit for this process.
func (o *Orchestrator) ApplyProcessDocument(doc *instruction.Document) error {
	for _, task := range doc.Tasks {
		task := task
		if task.DependsOn == nil && task.ForceExecute == nil && !task.Required {
			continue
		}
		err := o.registry.Amend(task.Task, func(m *manifest.Manifest) {
			if task.DependsOn != nil {
				m.HardDeps = task.DependsOn
			}
			if task.ForceExecute != nil {
				m.ForceExecute = *task.ForceExecute
			}
			if task.Required {
				m.Required = true
			}
		})
		if err != nil {
			return fmt.Errorf("failed to apply process settings for %s: %w", task.Task, err)
		}
	}

	// Dependency overrides invalidate any cached plan.
	o.mu.Lock()
	o.plan = nil
	o.graph = nil
	o.mu.Unlock()
	return nil
}

// seedProcessConfig pushes the document's per-task configuration and the
// parsed user flags into the shared context and the config resolver, so task
// bodies observe the documented precedence.
func (o *Orchestrator) seedProcessConfig(doc *instruction.Document, userFlags map[string]interface{}) {
	shared := o.engine.Shared()
	shared.Set("process_name", doc.ProcessName)
	if userFlags != nil {
		shared.Set("user_flags", userFlags)
	}

	if o.config == nil {
		return
	}
	for _, task := range doc.Tasks {
		// Task-specific config from the process document lands as runtime
		// overrides: it outranks every file layer for this run.
		for key, value := range task.Config {
			o.config.SetOverride(task.Task, key, value)
		}
	}
}

// requiredTasks collects the task ids the document marks required.
func requiredTasks(doc *instruction.Document) map[string]bool {
	out := make(map[string]bool, len(doc.Tasks))
	for _, task := range doc.Tasks {
		if task.Required {
			out[task.Task] = true
		}
	}
	return out
}
