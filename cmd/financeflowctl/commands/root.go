package commands

import (
	"context"

	"github.com/spf13/cobra"

	"financeflow/internal/cli"
	"financeflow/internal/config"
	"financeflow/internal/storage"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "financeflowctl",
	Short: "FinanceFlow administration tool",
	Long: `financeflowctl runs maintenance tasks against the FinanceFlow data store:
applying schema migrations, seeding the administrator account, setting a
user's declared balance and triggering the overdue reminder by hand.

Configuration is read from the same environment variables (and optional
CONFIG_FILE overlay) as the server.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cli.LoadEnvFile()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "", "Override LOG_LEVEL for this run")
}

// loadConfig reads and validates configuration, honouring --log-level.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		cfg.LogLevel = lvl
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cli.SetupLogger(cfg.LogLevel)
	return cfg, nil
}

func openStore(ctx context.Context, cmd *cobra.Command) (*config.Config, storage.Store, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	store, err := cli.OpenStore(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, store, nil
}
