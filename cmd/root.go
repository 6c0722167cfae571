package cmd

import (
	"context"
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/conceptixx/AEON/internal/cli"
	"github.com/conceptixx/AEON/internal/dependency"
	"github.com/conceptixx/AEON/internal/instruction"
	"github.com/conceptixx/AEON/internal/manifest"
	"github.com/conceptixx/AEON/internal/unit"
	"github.com/conceptixx/AEON/pkg/logging"
)

// Exit codes for CLI commands.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a runtime or step failure.
	ExitCodeError = 1
	// ExitCodeUsage indicates a CLI usage error.
	ExitCodeUsage = 2
	// ExitCodeValidation indicates a validation failure: missing required
	// file, bad schema, bad manifest.
	ExitCodeValidation = 3
	// ExitCodeDependency indicates a dependency or import failure.
	ExitCodeDependency = 4
	// ExitCodeUserAbort indicates a cooperative user abort.
	ExitCodeUserAbort = 5
	// ExitCodeSigint is the conventional exit code after SIGINT.
	ExitCodeSigint = 130
)

// rootCmd represents the base command for the aeon binary.
var rootCmd = &cobra.Command{
	Use:   "aeon",
	Short: "Manifest-driven orchestration engine",
	Long: `aeon loads declared units of work, resolves their dependency graph and
drives each through its lifecycle with persistent state, so interrupted
runs resume correctly and idempotently.`,
	// SilenceUsage prevents Cobra from printing the usage message on errors
	// that are handled by the application.
	SilenceUsage: true,
}

var logLevel string

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
}

func initLogging() {
	level := logging.LevelInfo
	switch logLevel {
	case "debug":
		level = logging.LevelDebug
	case "warn":
		level = logging.LevelWarn
	case "error":
		level = logging.LevelError
	}
	logging.InitForCLI(level, os.Stderr)
}

// SetVersion sets the version for the root command.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return rootCmd.Version
}

// Execute is the main entry point for the CLI application.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "aeon version %s\n" .Version}}`)

	// Accept the legacy --flag:value spelling everywhere.
	rootCmd.SetArgs(cli.NormalizeArgs(os.Args[1:]))

	if err := rootCmd.Execute(); err != nil {
		os.Exit(getExitCode(err))
	}
}

// getExitCode maps an error to the documented semantic exit codes.
func getExitCode(err error) int {
	var usageErr *cli.UsageError
	if errors.As(err, &usageErr) {
		return ExitCodeUsage
	}

	var abortErr *cli.UserAbortError
	if errors.As(err, &abortErr) {
		return ExitCodeUserAbort
	}

	var docErr *instruction.ValidationError
	var pathErr *instruction.PathSecurityError
	var fileErr *instruction.ExpectedFileError
	var manifestErr *manifest.ValidationError
	if errors.As(err, &docErr) || errors.As(err, &pathErr) ||
		errors.As(err, &fileErr) || errors.As(err, &manifestErr) {
		return ExitCodeValidation
	}

	var cycleErr *dependency.CycleError
	var missingErr *dependency.MissingDependencyError
	var versionErr *dependency.VersionConflictError
	var unitVersionErr *unit.VersionConflictError
	var notFoundErr *unit.NotFoundError
	if errors.As(err, &cycleErr) || errors.As(err, &missingErr) ||
		errors.As(err, &versionErr) || errors.As(err, &unitVersionErr) ||
		errors.As(err, &notFoundErr) {
		return ExitCodeDependency
	}

	if errors.Is(err, context.Canceled) {
		return ExitCodeSigint
	}

	return ExitCodeError
}
