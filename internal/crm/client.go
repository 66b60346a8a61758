// Package crm connects to a Zoho CRM MCP endpoint over streamable-http.
// The tool surface (leads, contacts, deals, ...) is introspected from the
// server at connect time; nothing about CRM semantics is defined locally.
package crm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"crmagent/internal/logger"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
)

const (
	protocolVersion = "2024-11-05"
	defaultTimeout  = 30 * time.Second
)

// Client is an MCP client for the CRM tool endpoint. Requests carry the
// headers supplied at construction (typically an Authorization bearer).
type Client struct {
	endpoint string
	headers  map[string]string
	timeout  time.Duration
	client   *client.Client
}

// NewClient creates a CRM MCP client for the given endpoint. headers may be
// nil when the endpoint needs no authentication.
func NewClient(endpoint string, headers map[string]string) *Client {
	return &Client{
		endpoint: endpoint,
		headers:  headers,
		timeout:  defaultTimeout,
	}
}

// Connect starts the transport and performs the MCP initialize handshake.
func (c *Client) Connect(ctx context.Context) error {
	var opts []transport.StreamableHTTPCOption
	if len(c.headers) > 0 {
		opts = append(opts, transport.WithHTTPHeaders(c.headers))
	}

	mcpClient, err := client.NewStreamableHttpClient(c.endpoint, opts...)
	if err != nil {
		return fmt.Errorf("failed to create streamable-http client: %w", err)
	}

	if err := mcpClient.Start(ctx); err != nil {
		return fmt.Errorf("failed to start streamable-http client: %w", err)
	}

	initReq := mcp.InitializeRequest{
		Params: struct {
			ProtocolVersion string                 `json:"protocolVersion"`
			Capabilities    mcp.ClientCapabilities `json:"capabilities"`
			ClientInfo      mcp.Implementation     `json:"clientInfo"`
		}{
			ProtocolVersion: protocolVersion,
			ClientInfo: mcp.Implementation{
				Name:    "crmagent",
				Version: "1.0.0",
			},
			Capabilities: mcp.ClientCapabilities{},
		},
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	result, err := mcpClient.Initialize(timeoutCtx, initReq)
	if err != nil {
		mcpClient.Close()
		return fmt.Errorf("failed to initialize MCP protocol: %w", err)
	}

	logger.Get().Debug().
		Str("server", result.ServerInfo.Name).
		Str("version", result.ServerInfo.Version).
		Msg("Connected to CRM MCP endpoint")

	c.client = mcpClient
	return nil
}

// ListTools returns the tools the CRM endpoint exposes.
func (c *Client) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	if c.client == nil {
		return nil, fmt.Errorf("client not connected")
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	result, err := c.client.ListTools(timeoutCtx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("failed to list tools: %w", err)
	}
	return result.Tools, nil
}

// CallTool executes a tool and returns its text content. A tool-level error
// result is surfaced as a Go error carrying the tool's message.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]interface{}) (string, error) {
	if c.client == nil {
		return "", fmt.Errorf("client not connected")
	}

	req := mcp.CallToolRequest{
		Params: struct {
			Name      string    `json:"name"`
			Arguments any       `json:"arguments,omitempty"`
			Meta      *mcp.Meta `json:"_meta,omitempty"`
		}{
			Name:      name,
			Arguments: args,
		},
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	result, err := c.client.CallTool(timeoutCtx, req)
	if err != nil {
		return "", fmt.Errorf("tool call failed: %w", err)
	}

	var texts []string
	for _, content := range result.Content {
		if textContent, ok := mcp.AsTextContent(content); ok {
			texts = append(texts, textContent.Text)
		}
	}
	joined := strings.Join(texts, "\n")

	if result.IsError {
		return "", fmt.Errorf("tool error: %s", joined)
	}
	return joined, nil
}

// Close shuts down the underlying transport.
func (c *Client) Close() {
	if c.client != nil {
		c.client.Close()
		c.client = nil
	}
}
