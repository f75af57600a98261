package commands

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"financeflow/internal/cli"
	"financeflow/internal/core"
	"financeflow/internal/services"
)

var setBalanceCmd = &cobra.Command{
	Use:     "set-balance AMOUNT",
	Example: "  financeflowctl set-balance --user 1 1_000_000\n  financeflowctl set-balance --user 1 --reset -- -250",
	Short:   "Set a user's declared balance",
	Long: `Set the declared balance of the user given by --user. With --reset every
entry of that user is deleted first. Events are published to the configured
broker exactly as the HTTP API would.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		balance, err := decimal.NewFromString(strings.ReplaceAll(args[0], "_", ""))
		if err != nil {
			return fmt.Errorf("balance must be a number: %w", err)
		}
		userID, _ := cmd.Flags().GetInt64("user")
		if userID <= 0 {
			return fmt.Errorf("--user must be a positive user id")
		}
		reset, _ := cmd.Flags().GetBool("reset")

		cfg, store, err := openStore(cmd.Context(), cmd)
		if err != nil {
			return err
		}
		publisher, err := cli.NewPublisher(cfg)
		if err != nil {
			store.Close()
			return err
		}
		ledger := services.NewLedgerService(store, publisher)
		defer ledger.Close()

		res, err := ledger.SetBalance(cmd.Context(), userID, balance, reset)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Balance set to %s, remaining %s",
			core.FormatAmount(res.NewBalance, ""), core.FormatAmount(res.Totals.Remaining, ""))
		if reset {
			fmt.Fprintf(cmd.OutOrStdout(), " (%d entries removed)", res.Removed)
		}
		fmt.Fprintln(cmd.OutOrStdout())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(setBalanceCmd)

	setBalanceCmd.Flags().Int64("user", 0, "Id of the user whose balance is set")
	setBalanceCmd.Flags().Bool("reset", false, "Delete every entry of the user first")
}
