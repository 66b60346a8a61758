package cmd

import (
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"

	"crmagent/internal/agent"
	"crmagent/internal/config"
	"crmagent/internal/gemini"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"
)

var (
	chatMCPURL string
	chatModel  string
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Interactive CRM chat session",
	Long: `Connects to the CRM MCP endpoint and starts an interactive session.
Each input is refined into an actionable prompt, then run through the
tool-calling agent. Type 'exit' or 'quit' to leave.`,
	RunE: runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)

	chatCmd.Flags().StringVar(&chatMCPURL, "mcp-url", "", "CRM MCP endpoint URL (default: ZOHO_MCP_URL)")
	chatCmd.Flags().StringVar(&chatModel, "model", "", "Gemini model to use (default: "+gemini.DefaultModel+")")
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if chatMCPURL != "" {
		cfg.MCPURL = chatMCPURL
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var llmOpts []gemini.ClientOption
	if chatModel != "" {
		llmOpts = append(llmOpts, gemini.WithModel(chatModel))
	}
	llm := gemini.NewClient(cfg.GoogleAPIKey, llmOpts...)

	service := agent.NewService(cfg.MCPURL, llm, newTokenManager(cfg))
	session, err := service.Connect(ctx)
	if err != nil {
		return fmt.Errorf("failed to reach the CRM MCP server: %w", err)
	}
	defer session.Close()

	rl, err := readline.New("\nYou: ")
	if err != nil {
		return err
	}
	defer rl.Close()

	fmt.Println("CRM Agent Ready! (Type 'exit' to quit)")
	fmt.Println(strings.Repeat("-", 50))

	for {
		line, err := rl.Readline()
		if err != nil {
			// Ctrl+C or Ctrl+D ends the session.
			if err == readline.ErrInterrupt || err == io.EOF {
				fmt.Println("Goodbye!")
				return nil
			}
			return err
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			fmt.Println("Goodbye!")
			return nil
		}

		fmt.Println("Processing input...")
		refined, answer, err := session.Ask(ctx, input)
		if refined != "" {
			fmt.Printf("Refined Prompt: %s\n", refined)
		}
		if err != nil {
			fmt.Printf("Error during conversation: %v\n", err)
			fmt.Println("The agent encountered an error but is still running. Please try again.")
			continue
		}
		fmt.Printf("\n%s\n", answer)
	}
}
