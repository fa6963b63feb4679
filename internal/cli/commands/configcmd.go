package commands

import (
	"fmt"

	"github.com/leapstack-labs/sqlpreview/internal/cli/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// NewConfigCommand creates the config command.
func NewConfigCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Long: `Print the configuration after merging defaults, the config file,
SQLPREVIEW_* environment variables and flags.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.GetConfig(cmd.Context())
			if cfg.ProjectRoot != "" {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "# project root: %s\n", cfg.ProjectRoot)
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(cfg); err != nil {
				return fmt.Errorf("failed to encode config: %w", err)
			}
			return enc.Close()
		},
	}
}
