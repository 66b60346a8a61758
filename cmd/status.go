package cmd

import (
	"errors"
	"fmt"
	"time"

	"crmagent/internal/config"
	"crmagent/internal/credentials"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current authentication state",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if err := cfg.ValidateOAuth(); err != nil {
		return err
	}

	tokens := newTokenManager(cfg)

	_, err := tokens.AccessToken(cmd.Context())
	if err != nil {
		var authErr *credentials.AuthRequiredError
		var missingErr *credentials.MissingRefreshTokenError
		if errors.As(err, &authErr) || errors.As(err, &missingErr) {
			fmt.Println("Not authenticated.")
			fmt.Println(err.Error())
			return nil
		}
		return err
	}

	record := tokens.Record()
	fmt.Println("Authenticated.")
	fmt.Printf("  - Token file: %s\n", cfg.TokenFile)
	fmt.Printf("  - Access token expires at: %s\n", time.Unix(record.ExpiresAt, 0).Format(time.RFC3339))
	if record.RefreshToken != "" {
		fmt.Println("  - Refresh token: stored")
	} else {
		fmt.Println("  - Refresh token: missing (re-run 'crmagent setup' before expiry)")
	}
	return nil
}
