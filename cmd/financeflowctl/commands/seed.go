package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"financeflow/internal/cli"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create the administrator account",
	Long: `Create the administrator account from ADMIN_EMAIL and ADMIN_PASSWORD.
The password flag takes precedence over the environment. An existing account
with the same email is left untouched.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, store, err := openStore(cmd.Context(), cmd)
		if err != nil {
			return err
		}
		defer store.Close()

		email, _ := cmd.Flags().GetString("email")
		if email == "" {
			email = cfg.AdminEmail
		}
		password, _ := cmd.Flags().GetString("password")
		if password == "" {
			password = cfg.AdminPassword
		}

		user, created, err := cli.SeedAdmin(cmd.Context(), store, email, password)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if created {
			fmt.Fprintf(out, "✓ Created admin user %s (id %d)\n", user.Email, user.ID)
		} else {
			fmt.Fprintf(out, "Admin user %s already exists (id %d)\n", user.Email, user.ID)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)

	seedCmd.Flags().String("email", "", "Admin email (defaults to ADMIN_EMAIL)")
	seedCmd.Flags().String("password", "", "Admin password (defaults to ADMIN_PASSWORD)")
}
