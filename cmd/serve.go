package cmd

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	sddaemon "github.com/coreos/go-systemd/v22/daemon"
	"github.com/spf13/cobra"

	"github.com/conceptixx/AEON/internal/environment"
	"github.com/conceptixx/AEON/pkg/logging"
	"github.com/conceptixx/AEON/pkg/metrics"
)

var (
	serveRoot            string
	serveConfigs         []string
	serveShutdownTimeout time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Load and start all units, then run until signalled",
	Long: `Serve loads every registered unit in dependency order, starts the
service-flavored ones and keeps them running. On SIGTERM or SIGINT the
orchestrator drains gracefully: stop in reverse order, unload, persist
state, exit.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveRoot, "root", "", "installation root (auto-detected when omitted)")
	serveCmd.Flags().StringArrayVar(&serveConfigs, "config", nil, "additional configuration overlay (repeatable)")
	serveCmd.Flags().DurationVar(&serveShutdownTimeout, "shutdown-timeout", 60*time.Second, "graceful shutdown budget")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	initLogging()
	metrics.Register()

	root := serveRoot
	if root == "" {
		cwd, _ := os.Getwd()
		var err error
		root, err = environment.DetectBaseDir(cwd)
		if err != nil {
			return err
		}
	}

	o, _, err := buildApp(root, serveConfigs)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if _, err := o.Plan(); err != nil {
		return err
	}

	loadResults, err := o.Load(ctx, nil, true)
	if err != nil {
		return err
	}
	startResults, err := o.Start(ctx, nil)
	if err != nil {
		return err
	}
	for id, lerr := range loadResults {
		if lerr != nil {
			logging.Error("Serve", lerr, "Unit %s failed to load", id)
		}
	}
	for id, serr := range startResults {
		if serr != nil {
			logging.Error("Serve", serr, "Unit %s failed to start", id)
		}
	}

	if id, failed := o.RequiredFailed(); failed {
		logging.Error("Serve", nil, "Required unit %s failed, shutting down", id)
		o.Shutdown(cmd.Context(), serveShutdownTimeout)
		return &requiredUnitError{ID: id}
	}

	// Tell systemd we are up; a no-op outside a systemd unit.
	sddaemon.SdNotify(false, sddaemon.SdNotifyReady)
	logging.Info("Serve", "All units up, waiting for shutdown signal")

	<-ctx.Done()

	sddaemon.SdNotify(false, sddaemon.SdNotifyStopping)
	return o.Shutdown(cmd.Context(), serveShutdownTimeout)
}

type requiredUnitError struct {
	ID string
}

func (e *requiredUnitError) Error() string {
	return "required unit " + e.ID + " failed"
}
