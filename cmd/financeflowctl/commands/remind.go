package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"financeflow/internal/cli"
	"financeflow/internal/jobs"
)

var remindCmd = &cobra.Command{
	Use:   "remind",
	Short: "Publish overdue reminders once",
	Long: `Run the overdue reminder a single time: every pending entry dated before
today (in TIME_ZONE) is published as an overdue event.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, store, err := openStore(cmd.Context(), cmd)
		if err != nil {
			return err
		}
		defer store.Close()

		publisher, err := cli.NewPublisher(cfg)
		if err != nil {
			return err
		}
		defer publisher.Close()

		n, err := jobs.NewReminder(store, publisher, cfg.ReminderSchedule, cfg.Location()).RunOnce(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Published %d overdue reminders\n", n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(remindCmd)
}
