package commands

import (
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/leapstack-labs/sqlpreview/internal/highlight"
	"github.com/spf13/cobra"
)

// NewThemesCommand creates the themes command.
func NewThemesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "themes [name]",
		Short: "List highlight themes or show how a theme name resolves",
		Example: `  # List bundled themes
  sqlpreview themes

  # Show how an editor theme name maps to a bundled style
  sqlpreview themes "Monokai Theme"`,
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) == 0 {
				renderThemeList(cmd.OutOrStdout(), highlight.Themes())
				return
			}
			renderResolution(cmd.OutOrStdout(), args[0])
		},
	}
}

func renderThemeList(w io.Writer, names []string) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Theme", "Output"})
	for _, name := range names {
		output := "inline"
		if name == highlight.InheritTheme {
			output = "classes"
		}
		t.AppendRow(table.Row{name, output})
	}
	t.Render()
}

func renderResolution(w io.Writer, name string) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Candidate", "Bundled"})
	for _, c := range highlight.ThemeCandidates(name) {
		t.AppendRow(table.Row{c, highlight.IsBundled(c)})
	}
	t.AppendFooter(table.Row{"Resolved", highlight.ResolveTheme(name)})
	t.Render()
}
