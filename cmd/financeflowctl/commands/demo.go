package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"financeflow/internal/core"
	"financeflow/internal/events"
	"financeflow/internal/services"
)

var demoCategories = []string{"Food", "Transport", "Housing", "Utilities", "Health", "Savings"}

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Fill a user's ledger with generated entries",
	Long: `Generate random entries dated within the last 30 days for the user given by
--user, for local development and demos. Entries that would exceed the
remaining balance are skipped, so the ledger stays consistent.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, _ := cmd.Flags().GetInt64("user")
		if userID <= 0 {
			return fmt.Errorf("--user must be a positive user id")
		}
		count, _ := cmd.Flags().GetInt("count")
		seed, _ := cmd.Flags().GetInt64("seed")

		_, store, err := openStore(cmd.Context(), cmd)
		if err != nil {
			return err
		}
		ledger := services.NewLedgerService(store, events.Nop{})
		defer ledger.Close()

		added, err := addDemoEntries(cmd.Context(), ledger, userID, count, seed, time.Now())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Added %d of %d demo entries for user %d\n", added, count, userID)
		return nil
	},
}

// addDemoEntries generates count entries dated within 30 days before now and
// returns how many were accepted. Entries that would overspend are skipped.
func addDemoEntries(ctx context.Context, ledger *services.LedgerService, userID int64, count int, seed int64, now time.Time) (int, error) {
	faker := gofakeit.New(seed)
	added := 0
	for i := 0; i < count; i++ {
		in := services.NewEntry{
			Title:      faker.Sentence(3),
			Category:   demoCategories[faker.Number(0, len(demoCategories)-1)],
			Amount:     decimal.NewFromFloat(faker.Price(1000, 50000)).Round(0),
			OccurredAt: now.AddDate(0, 0, -faker.Number(0, 29)),
		}
		if _, err := ledger.AddEntry(ctx, userID, in); err != nil {
			if errors.Is(err, core.ErrInsufficientFunds) {
				continue
			}
			return added, err
		}
		added++
	}
	return added, nil
}

func init() {
	rootCmd.AddCommand(demoCmd)

	demoCmd.Flags().Int64("user", 0, "Id of the user to fill")
	demoCmd.Flags().Int("count", 20, "Number of entries to generate")
	demoCmd.Flags().Int64("seed", 0, "Random seed, 0 picks one")
}
