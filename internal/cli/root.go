// Package cli provides the command-line interface for sqlpreview.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/leapstack-labs/sqlpreview/internal/cli/commands"
	"github.com/leapstack-labs/sqlpreview/internal/cli/config"
	"github.com/spf13/cobra"
)

// Version information (set at build time).
var (
	Version   = "0.1.0"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

// NewRootCmd creates and returns the root command.
func NewRootCmd() *cobra.Command {
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:   "sqlpreview",
		Short: "sqlpreview - live SQL preview for query files",
		Long: `sqlpreview compiles query files to SQL and keeps a highlighted preview
of the result open next to the editor.

Run "sqlpreview serve" from an editor extension: the editor talks to it over
stdin/stdout and the previews are served to a browser.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// Skip config loading for help and completion commands
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" {
				return nil
			}

			cfg, used, err := config.Load(cfgFile, cmd.Flags())
			if err != nil {
				return err
			}

			// stdout may carry the editor protocol, so logs go to stderr.
			logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
				Level: cfg.Level(),
			}))
			if used != "" {
				logger.Debug("using config file", "path", used)
			}

			ctx := config.WithConfig(cmd.Context(), cfg)
			ctx = config.WithLogger(ctx, logger)
			cmd.SetContext(ctx)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.SetVersionTemplate(`{{.Name}} {{.Version}}
`)

	// Global persistent flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: sqlpreview.yaml, searched upward)")
	rootCmd.PersistentFlags().String("state", "", "Path to the workspace state database")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().String("compiler", "", "Compiler command")
	rootCmd.PersistentFlags().String("theme", "", "Colour theme used before the editor reports one")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Verbose output")

	_ = rootCmd.RegisterFlagCompletionFunc("log-level", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"debug", "info", "warn", "error"}, cobra.ShellCompDirectiveNoFileComp
	})

	rootCmd.AddCommand(commands.NewVersionCommand(Version, GitCommit, BuildDate))
	rootCmd.AddCommand(commands.NewServeCommand(Version))
	rootCmd.AddCommand(commands.NewCompileCommand())
	rootCmd.AddCommand(commands.NewThemesCommand())
	rootCmd.AddCommand(commands.NewConfigCommand())
	rootCmd.AddCommand(commands.NewStateCommand())
	rootCmd.AddCommand(NewCompletionCommand())

	return rootCmd
}

// Execute runs the root command.
func Execute() error {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

// NewCompletionCommand creates the completion command.
func NewCompletionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for sqlpreview.

To load completions:

Bash:
  $ source <(sqlpreview completion bash)

Zsh:
  $ sqlpreview completion zsh > "${fpath[1]}/_sqlpreview"

Fish:
  $ sqlpreview completion fish | source

PowerShell:
  PS> sqlpreview completion powershell | Out-String | Invoke-Expression
`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(out)
			case "zsh":
				return cmd.Root().GenZshCompletion(out)
			case "fish":
				return cmd.Root().GenFishCompletion(out, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(out)
			}
			return nil
		},
	}
	return cmd
}
