package cmd

import (
	"context"

	"crmagent/internal/agent"
	"crmagent/internal/config"
	"crmagent/internal/credentials"
	"crmagent/internal/gemini"
	"crmagent/internal/server"

	"github.com/spf13/cobra"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the web chat UI",
	Long: `Starts the web front-end: a chat page backed by the conversational
agent, plus the OAuth callback endpoint that completes the browser
consent flow. Listen on the host and port of ZOHO_REDIRECT_URI so the
callback lands here.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "Listen address")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return err
	}

	tokens := newTokenManager(cfg)
	llm := gemini.NewClient(cfg.GoogleAPIKey)
	service := agent.NewService(cfg.MCPURL, llm, tokens)

	srv := server.NewServer(tokens, conversationFactory(cfg, tokens, func(ctx context.Context) (server.Conversation, error) {
		return service.Connect(ctx)
	}))
	return srv.Start(serveAddr)
}

// conversationFactory gates new web conversations on completed
// authentication. When OAuth client credentials are configured but no token
// can be produced, the chat API answers with the authorization URL instead
// of connecting; without configured credentials the endpoint may still be
// reachable URL-keyed, so the connection proceeds as-is.
func conversationFactory(cfg config.Config, tokens *credentials.Manager, connect server.ConversationFactory) server.ConversationFactory {
	return func(ctx context.Context) (server.Conversation, error) {
		if cfg.HasOAuth() && !tokens.IsAuthenticated(ctx) {
			return nil, &credentials.AuthRequiredError{AuthorizationURL: tokens.AuthorizationURL()}
		}
		return connect(ctx)
	}
}
