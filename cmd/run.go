package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/briandowns/spinner"
	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/conceptixx/AEON/internal/cli"
	"github.com/conceptixx/AEON/internal/environment"
	"github.com/conceptixx/AEON/internal/instruction"
	"github.com/conceptixx/AEON/internal/orchestrator"
	"github.com/conceptixx/AEON/internal/result"
	"github.com/conceptixx/AEON/pkg/logging"
)

var runCmd = &cobra.Command{
	Use:   "run --file=<process> [flags]",
	Short: "Run a process defined by an instruction document",
	Long: `Run loads one or more aeon.instructions documents, resolves the unit
dependency graph and executes the selected flow step by step. Interrupted
runs resume idempotently from the persisted state.

Core flags (both --flag=value and --flag:value are accepted):

  --file=<path>        entry instruction document (repeatable, required)
  --config=<path>      additional configuration overlay (repeatable)
  --root=<path>        installation root (auto-detected when omitted)
  --repo=<path>        repository root relative to --root (default tmp/repo)
  -n, --noninteractive pick the noninteractive flow, suppress prompts
  -c, --cli-enable     enable the CLI-driven flow
  -w, --web-enable     enable the web-driven flow

Documents may declare additional flags; unknown flags follow the document's
policy.`,
	// The run command owns its argument parsing: entry documents can extend
	// the flag schema, which cobra cannot know ahead of time.
	DisableFlagParsing: true,
	RunE:               runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	initLogging()

	for _, arg := range args {
		if arg == "-h" || arg == "--help" {
			return cmd.Help()
		}
	}

	parsed, err := cli.ParseRunArgs(args)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := parsed.Root
	if root == "" {
		cwd, _ := os.Getwd()
		root, err = environment.DetectBaseDir(cwd)
		if err != nil {
			return err
		}
	}

	repo, err := environment.ValidateRelativePath(parsed.Repo, root)
	if err != nil {
		return err
	}

	mode := instruction.FlowInteractive
	if parsed.NonInteractive {
		mode = instruction.FlowNoninteractive
	}

	o, _, err := buildApp(root, parsed.Configs)
	if err != nil {
		return err
	}

	var exitErr error
	for _, file := range parsed.Files {
		if err := runProcessFile(ctx, o, file, root, repo, mode, parsed, args); err != nil {
			exitErr = err
			break
		}
		if ctx.Err() != nil {
			exitErr = ctx.Err()
			break
		}
	}
	return exitErr
}

func runProcessFile(ctx context.Context, o *orchestrator.Orchestrator, file, root, repo, mode string, parsed *cli.RunArgs, rawArgs []string) error {
	path, err := locateProcessFile(file, root, repo)
	if err != nil {
		return &instruction.ValidationError{Path: file, Reason: err.Error()}
	}

	doc, err := instruction.Load(path)
	if err != nil {
		return err
	}

	expectedWarnings, err := doc.CheckExpectedFiles(root)
	if err != nil {
		return err
	}

	userFlags, flagWarnings, err := cli.ParseDeclaredFlags(doc.Flags, doc.UnknownFlagPolicy, parsed.Rest)
	if err != nil {
		return err
	}

	if err := o.ApplyProcessDocument(doc); err != nil {
		return err
	}
	if _, err := o.Plan(); err != nil {
		return err
	}

	if mode == instruction.FlowInteractive {
		if ok, err := confirmRun(doc.ProcessName); err != nil {
			return err
		} else if !ok {
			return &cli.UserAbortError{}
		}
	}

	opts := orchestrator.RunOptions{
		Mode:      mode,
		Root:      root,
		EntryPath: path,
		Flags:     rawArgs,
		UserFlags: userFlags,
	}

	var spin *spinner.Spinner
	if mode == instruction.FlowInteractive {
		spin = spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
		opts.StepObserver = func(step instruction.FlowStep) {
			spin.Stop()
			spin.Suffix = fmt.Sprintf(" step %s (%s)", step.ID, step.Task)
			spin.Start()
		}
	}

	res, runErr := o.Run(ctx, doc, opts)
	if spin != nil {
		spin.Stop()
	}
	if res == nil {
		return runErr
	}

	for _, w := range expectedWarnings {
		res.AddWarning(w)
	}
	for _, w := range flagWarnings {
		res.AddWarning(w)
	}

	resultPath := doc.Outputs.Result
	if resultPath == "" {
		resultPath = result.DefaultPath
	}
	if err := res.Write(filepath.Join(root, filepath.FromSlash(resultPath))); err != nil {
		logging.Error("CLI", err, "Failed to write result document")
	}

	if runErr != nil {
		return runErr
	}
	if ctx.Err() != nil {
		return context.Canceled
	}
	fmt.Printf("Process %q completed: %d steps, %d warnings\n", doc.ProcessName, len(res.Steps), len(res.Warnings))
	return nil
}

// confirmRun asks the operator before an interactive run. A non-terminal
// stdin counts as consent so piped invocations proceed.
func confirmRun(processName string) (bool, error) {
	rl, err := readline.New(fmt.Sprintf("Run process %q? [y/N] ", processName))
	if err != nil {
		return true, nil
	}
	defer rl.Close()

	line, err := rl.Readline()
	if err != nil {
		if err == readline.ErrInterrupt {
			return false, nil
		}
		return true, nil
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}
