package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/leapstack-labs/sqlpreview/internal/cli/config"
	"github.com/leapstack-labs/sqlpreview/internal/preview"
	"github.com/leapstack-labs/sqlpreview/internal/state"
	"github.com/spf13/cobra"
)

// NewStateCommand creates the state command.
func NewStateCommand() *cobra.Command {
	var workspace string

	cmd := &cobra.Command{
		Use:   "state",
		Short: "Show the workspace state kept by the preview host",
		Long: `Show the values the preview host persists for a workspace, such as the
last compiled SQL. The workspace defaults to the project root.`,
		Example: `  # State of the current project
  sqlpreview state

  # State recorded for another workspace
  sqlpreview state --workspace file:///home/me/queries`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runState(cmd, workspace)
		},
	}

	cmd.Flags().StringVar(&workspace, "workspace", "", "Workspace URI or path (default: project root)")

	return cmd
}

func runState(cmd *cobra.Command, workspace string) error {
	cfg := config.GetConfig(cmd.Context())
	logger := config.GetLogger(cmd.Context())
	ctx := cmd.Context()

	if cfg.StatePath != ":memory:" {
		if _, err := os.Stat(cfg.StatePath); err != nil {
			return fmt.Errorf("no workspace state at %s: %w", cfg.StatePath, err)
		}
	}
	if workspace == "" {
		workspace = cfg.ProjectRoot
	}
	workspace = preview.DocumentKey(workspace)

	store := state.NewSQLiteStore(workspace, logger)
	if err := store.Open(cfg.StatePath); err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	version, err := store.MigrationVersion(ctx)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	keys, err := store.Keys(ctx)
	if err != nil {
		return err
	}
	rows := make([]table.Row, 0, len(keys))
	for _, k := range keys {
		v, err := store.Get(ctx, k)
		if err != nil {
			return err
		}
		if v != nil {
			rows = append(rows, table.Row{k, *v})
		}
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "workspace %s (schema v%d)\n", workspace, version)
	renderState(out, rows)
	return nil
}

func renderState(w io.Writer, rows []table.Row) {
	if len(rows) == 0 {
		_, _ = fmt.Fprintln(w, "(no state)")
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Key", "Value"})
	t.AppendRows(rows)
	t.Render()
}
