package cmd

import (
	"os"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/conceptixx/AEON/internal/environment"
)

var statusRoot string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show registered units and their persisted state",
	Long: `Status lists every registered unit together with the state the last run
persisted, the dependency warnings of the current plan, and the unit's
declared metadata.`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusRoot, "root", "", "installation root (auto-detected when omitted)")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	initLogging()

	root := statusRoot
	if root == "" {
		cwd, _ := os.Getwd()
		var err error
		root, err = environment.DetectBaseDir(cwd)
		if err != nil {
			return err
		}
	}

	o, _, err := buildApp(root, nil)
	if err != nil {
		return err
	}
	if _, err := o.Plan(); err != nil {
		return err
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"UNIT", "VERSION", "FLAVOR", "REQUIRED", "STATE", "UPDATED"})

	manifests := o.Registry().Manifests()
	sort.Slice(manifests, func(i, j int) bool { return manifests[i].ID < manifests[j].ID })

	for _, m := range manifests {
		stateStr := "unloaded"
		updated := "-"
		if rec, ok, err := o.Store().Get(m.ID); err == nil && ok {
			stateStr = rec.State
			updated = rec.UpdatedAt.Format("2006-01-02 15:04:05")
		}
		required := ""
		if m.Required {
			required = "yes"
		}
		t.AppendRow(table.Row{m.ID, m.Version, string(m.Flavor), required, stateStr, updated})
	}
	t.Render()

	if warnings := o.Warnings(); len(warnings) > 0 {
		warnTable := table.NewWriter()
		warnTable.SetOutputMirror(os.Stdout)
		warnTable.AppendHeader(table.Row{"WARNINGS"})
		for _, w := range warnings {
			warnTable.AppendRow(table.Row{w})
		}
		warnTable.Render()
	}
	return nil
}
