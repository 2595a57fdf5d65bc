package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var (
	grantUser        string
	grantEmail       string
	grantAmount      int
	grantDescription string
)

func init() {
	rootCmd.AddCommand(creditsCmd)
	creditsCmd.AddCommand(creditsGrantCmd)

	creditsGrantCmd.Flags().StringVar(&grantUser, "user", "", "User id to credit (required)")
	creditsGrantCmd.Flags().StringVar(&grantEmail, "email", "", "Email stored when the account is created")
	creditsGrantCmd.Flags().IntVar(&grantAmount, "amount", 0, "Number of credits to add (required)")
	creditsGrantCmd.Flags().StringVar(&grantDescription, "description", "Manual credit grant", "Ledger description")
	_ = creditsGrantCmd.MarkFlagRequired("user")
	_ = creditsGrantCmd.MarkFlagRequired("amount")
}

var creditsCmd = &cobra.Command{
	Use:   "credits",
	Short: "Manage account credits",
}

var creditsGrantCmd = &cobra.Command{
	Use:   "grant",
	Short: "Add credits to an account, creating it if needed",
	Args:  cobra.NoArgs,
	RunE:  runGrant,
}

func validateGrant() error {
	if strings.TrimSpace(grantUser) == "" {
		return errors.New("--user must not be empty")
	}
	if grantAmount <= 0 {
		return fmt.Errorf("--amount must be positive, got %d", grantAmount)
	}
	return nil
}

func runGrant(cmd *cobra.Command, args []string) error {
	if err := validateGrant(); err != nil {
		return err
	}

	stores, err := openStores(cmd)
	if err != nil {
		return err
	}
	defer stores.DB.Close()

	receipt, err := stores.Accounts.Grant(cmd.Context(), strings.TrimSpace(grantUser), grantEmail, grantAmount, grantDescription)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "granted %d credits to %s: %d -> %d (ledger #%d)\n",
		grantAmount, grantUser, receipt.BalanceBefore, receipt.BalanceAfter, receipt.LedgerID)
	return nil
}
