package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"financeflow/internal/cli"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	Long: `Apply every pending migration to the configured SQL backend
(DATA_BACKEND=sqlite or postgres). Running it twice is a no-op.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		version, err := cli.Migrate(cfg)
		if err != nil {
			return fmt.Errorf("migrate %s: %w", cfg.DataBackend, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ %s schema is up to date (version %d)\n", cfg.DataBackend, version)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
