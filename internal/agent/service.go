package agent

import (
	"context"
	"errors"
	"fmt"

	"crmagent/internal/credentials"
	"crmagent/internal/crm"
	"crmagent/internal/gemini"
	"crmagent/internal/logger"

	"github.com/google/uuid"
)

// Service wires the token manager, the Gemini client and the CRM MCP
// endpoint into ready-to-use conversation sessions.
type Service struct {
	mcpURL string
	llm    *gemini.Client
	tokens *credentials.Manager
}

// NewService creates a session factory for the given CRM MCP endpoint.
func NewService(mcpURL string, llm *gemini.Client, tokens *credentials.Manager) *Service {
	return &Service{
		mcpURL: mcpURL,
		llm:    llm,
		tokens: tokens,
	}
}

// Session is one connected conversation: an MCP connection, the converted
// tool surface and the running chat history.
type Session struct {
	ID      string
	agent   *Agent
	llm     *gemini.Client
	client  *crm.Client
	history []gemini.Content
}

// Connect obtains a bearer token, connects to the CRM MCP endpoint,
// introspects its tools and returns a ready session. When the token manager
// reports that authentication was never completed, the connection proceeds
// without a bearer header (the endpoint may allow URL-keyed access);
// infrastructure failures during token retrieval abort the connect.
func (s *Service) Connect(ctx context.Context) (*Session, error) {
	headers, err := s.authHeaders(ctx)
	if err != nil {
		return nil, err
	}

	client := crm.NewClient(s.mcpURL, headers)
	if err := client.Connect(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to CRM endpoint: %w", err)
	}

	tools, err := client.ListTools(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to introspect CRM tools: %w", err)
	}
	logger.Get().Info().Int("tools", len(tools)).Msg("Introspected CRM tool surface")

	a, err := NewAgent(s.llm, client, tools)
	if err != nil {
		client.Close()
		return nil, err
	}

	return &Session{
		ID:     uuid.New().String(),
		agent:  a,
		llm:    s.llm,
		client: client,
	}, nil
}

func (s *Service) authHeaders(ctx context.Context) (map[string]string, error) {
	token, err := s.tokens.AccessToken(ctx)
	if err != nil {
		var authErr *credentials.AuthRequiredError
		var missingErr *credentials.MissingRefreshTokenError
		if errors.As(err, &authErr) || errors.As(err, &missingErr) {
			logger.Get().Warn().Msg("No access token available, connecting without Bearer authentication")
			return nil, nil
		}
		return nil, err
	}
	return map[string]string{"Authorization": "Bearer " + token}, nil
}

// Ask refines the raw input and runs it through the tool-calling loop,
// returning the refined prompt and the final answer.
func (sess *Session) Ask(ctx context.Context, input string) (refined, answer string, err error) {
	refined, err = RefinePrompt(ctx, sess.llm, input)
	if err != nil {
		return "", "", fmt.Errorf("prompt refinement failed: %w", err)
	}

	answer, history, err := sess.agent.Run(ctx, sess.history, refined)
	if err != nil {
		return refined, "", err
	}
	sess.history = history
	return refined, answer, nil
}

// Close shuts down the MCP connection.
func (sess *Session) Close() {
	sess.client.Close()
}
