package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"crmagent/internal/config"

	"github.com/spf13/cobra"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "One-time OAuth setup for Zoho CRM authentication",
	Long: `Walks through the initial OAuth consent flow to obtain refresh tokens.
After running this once, tokens refresh automatically without manual
intervention.`,
	RunE: runSetup,
}

func init() {
	rootCmd.AddCommand(setupCmd)
}

func runSetup(cmd *cobra.Command, args []string) error {
	fmt.Println("Zoho OAuth Setup - One-time authentication")
	fmt.Println(strings.Repeat("=", 60))

	cfg := config.Load()
	if err := cfg.ValidateOAuth(); err != nil {
		fmt.Println("\nPlease set the following environment variables in your .env file:")
		fmt.Println("  - ZOHO_CLIENT_ID")
		fmt.Println("  - ZOHO_CLIENT_SECRET")
		fmt.Println("  - ZOHO_REDIRECT_URI (optional, defaults to " + config.DefaultRedirectURI + ")")
		return err
	}

	tokens := newTokenManager(cfg)
	ctx := cmd.Context()

	if tokens.IsAuthenticated(ctx) {
		fmt.Println("You are already authenticated!")
		fmt.Println("Tokens are stored and will automatically refresh.")
		return nil
	}

	fmt.Println("\nStep 1: Authorize the application")
	fmt.Println(strings.Repeat("-", 60))
	fmt.Printf("Visit this URL in your browser:\n\n%s\n\n", tokens.AuthorizationURL())
	fmt.Println("After authorizing, you will be redirected to your redirect URI.")
	fmt.Println("Copy the full redirect URL (including the 'code' parameter).")

	fmt.Print("\nPaste the full redirect URL here: ")
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("could not read input: %w", err)
	}

	code := extractAuthCode(line)
	if code == "" {
		return fmt.Errorf("no authorization code provided; the redirect URL should look like %s?code=YOUR_CODE", cfg.RedirectURI)
	}

	fmt.Println("\nStep 2: Exchanging authorization code for tokens...")
	fmt.Println(strings.Repeat("-", 60))

	record, err := tokens.ExchangeCode(ctx, code)
	if err != nil {
		fmt.Println("Please check:")
		fmt.Println("  1. Your ZOHO_CLIENT_ID and ZOHO_CLIENT_SECRET are correct")
		fmt.Println("  2. The redirect URI matches your Zoho app configuration")
		fmt.Println("  3. The authorization code hasn't expired")
		return fmt.Errorf("failed to exchange code for tokens: %w", err)
	}

	fmt.Println("Successfully obtained tokens!")
	fmt.Printf("  - Access token expires in: %d seconds\n", record.ExpiresIn)
	if record.RefreshToken != "" {
		fmt.Println("  - Refresh token obtained: Yes")
	} else {
		fmt.Println("  - Refresh token obtained: No")
	}
	fmt.Println("\nTokens have been saved and will automatically refresh.")
	fmt.Println("You will not need to run this setup again.")
	return nil
}
