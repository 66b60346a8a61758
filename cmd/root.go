// Package cmd contains the CLI commands. Each command loads configuration
// at its boundary and passes it into the components it wires up.
package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd is the entry point when the application is called without subcommands.
var rootCmd = &cobra.Command{
	Use:   "crmagent",
	Short: "Conversational agent for Zoho CRM",
	Long: `crmagent proxies natural-language requests to Zoho CRM operations via
the CRM's MCP tool endpoint, authenticating with OAuth tokens that are
acquired once and refreshed automatically from then on.

Run 'crmagent setup' once to complete the browser consent flow, then use
'crmagent chat' for an interactive session or 'crmagent serve' for the
web UI.`,
	SilenceUsage: true,
}

// SetVersion sets the version for the root command, injected at build time.
func SetVersion(v string) {
	rootCmd.Version = v
}

// Execute runs the root command and exits non-zero on error.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "crmagent version %s\n" .Version}}`)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
