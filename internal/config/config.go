package config

import (
	"fmt"
	"strings"

	"crmagent/internal/env"

	"github.com/joho/godotenv"
)

// Defaults applied when the corresponding environment variable is unset.
const (
	DefaultRedirectURI    = "http://localhost:8080/oauth/callback"
	DefaultScope          = "ZohoCRM.modules.ALL"
	DefaultAccountsServer = "https://accounts.zoho.com"
	DefaultTokenFile      = ".tokens.json"
)

// Config holds every environment-derived setting. It is loaded once at the
// CLI boundary and passed by value into constructors; no component reads
// ambient process state itself.
type Config struct {
	// MCPURL is the Zoho CRM MCP endpoint the agent connects to.
	MCPURL string

	// GoogleAPIKey is the Gemini API key used for the agent LLM.
	GoogleAPIKey string

	// Zoho OAuth client settings.
	ClientID       string
	ClientSecret   string
	RedirectURI    string
	Scope          string
	AccountsServer string

	// TokenFile is the path of the persisted token record.
	TokenFile string
}

// Load reads the configuration from the environment. A .env file in the
// working directory is applied first, matching local development setups.
func Load() Config {
	// Missing .env is the common case; ignore the error.
	_ = godotenv.Load()

	return Config{
		MCPURL:         env.GetOrDefault("ZOHO_MCP_URL", ""),
		GoogleAPIKey:   env.GetOrDefault("GOOGLE_API_KEY", ""),
		ClientID:       env.GetOrDefault("ZOHO_CLIENT_ID", ""),
		ClientSecret:   env.GetOrDefault("ZOHO_CLIENT_SECRET", ""),
		RedirectURI:    env.GetOrDefault("ZOHO_REDIRECT_URI", DefaultRedirectURI),
		Scope:          env.GetOrDefault("ZOHO_SCOPE", DefaultScope),
		AccountsServer: env.GetOrDefault("ZOHO_ACCOUNTS_SERVER", DefaultAccountsServer),
		TokenFile:      env.GetOrDefault("ZOHO_TOKEN_FILE", DefaultTokenFile),
	}
}

// Validate checks the settings needed to run the agent.
func (c Config) Validate() error {
	var missing []string
	if c.MCPURL == "" {
		missing = append(missing, "ZOHO_MCP_URL")
	}
	if c.GoogleAPIKey == "" {
		missing = append(missing, "GOOGLE_API_KEY")
	}
	return missingError(missing)
}

// ValidateOAuth checks the settings needed for token acquisition and refresh.
func (c Config) ValidateOAuth() error {
	var missing []string
	if c.ClientID == "" {
		missing = append(missing, "ZOHO_CLIENT_ID")
	}
	if c.ClientSecret == "" {
		missing = append(missing, "ZOHO_CLIENT_SECRET")
	}
	if c.RedirectURI == "" {
		missing = append(missing, "ZOHO_REDIRECT_URI")
	}
	return missingError(missing)
}

// HasOAuth reports whether OAuth client credentials are configured at all.
func (c Config) HasOAuth() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

func missingError(missing []string) error {
	if len(missing) == 0 {
		return nil
	}
	return fmt.Errorf("missing required environment variables: %s (set them in your shell or .env file)",
		strings.Join(missing, ", "))
}
