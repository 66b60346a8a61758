package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	internalhttp "crmagent/internal/http"
)

const (
	// DefaultEndpoint is the public Generative Language API base URL.
	DefaultEndpoint = "https://generativelanguage.googleapis.com/v1beta"

	// DefaultModel is used when no model is configured.
	DefaultModel = "gemini-2.5-flash"
)

// Client is a client for the Gemini API.
type Client struct {
	httpClient internalhttp.HTTPClient
	apiKey     string
	endpoint   string
	model      string
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithModel overrides the generation model.
func WithModel(model string) ClientOption {
	return func(c *Client) { c.model = model }
}

// WithEndpoint overrides the API base URL, for tests.
func WithEndpoint(endpoint string) ClientOption {
	return func(c *Client) { c.endpoint = endpoint }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(httpClient internalhttp.HTTPClient) ClientOption {
	return func(c *Client) { c.httpClient = httpClient }
}

// NewClient creates a new Gemini API client.
func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		httpClient: internalhttp.NewHTTPClient(),
		apiKey:     apiKey,
		endpoint:   DefaultEndpoint,
		model:      DefaultModel,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GenerateContent performs a generateContent request against the configured model.
func (c *Client) GenerateContent(ctx context.Context, req *GenerateContentRequest) (*GenerateContentResponse, error) {
	bodyBytes, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("could not marshal request body: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", c.endpoint, c.model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("could not create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request execution error: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("could not read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("generateContent failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	var result GenerateContentResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("could not unmarshal response body: %w", err)
	}

	return &result, nil
}

// GenerateText sends a single user prompt and returns the text answer.
func (c *Client) GenerateText(ctx context.Context, prompt string) (string, error) {
	resp, err := c.GenerateContent(ctx, &GenerateContentRequest{
		Contents: []Content{{
			Role:  "user",
			Parts: []ContentPart{{Text: prompt}},
		}},
	})
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}
