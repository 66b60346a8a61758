package cmd

import (
	"net/url"
	"strings"

	"crmagent/internal/config"
	"crmagent/internal/credentials"
)

// newTokenManager builds the token manager from the loaded configuration.
func newTokenManager(cfg config.Config) *credentials.Manager {
	return credentials.NewManager(credentials.ClientCredentials{
		ClientID:       cfg.ClientID,
		ClientSecret:   cfg.ClientSecret,
		RedirectURI:    cfg.RedirectURI,
		Scope:          cfg.Scope,
		AccountsServer: cfg.AccountsServer,
	}, credentials.WithStorePath(cfg.TokenFile))
}

// extractAuthCode accepts either a bare authorization code or the full
// redirect URL the browser landed on and returns the code.
func extractAuthCode(input string) string {
	input = strings.TrimSpace(input)
	if !strings.Contains(input, "code=") {
		return input
	}

	parsed, err := url.Parse(input)
	if err != nil {
		return input
	}
	if code := parsed.Query().Get("code"); code != "" {
		return code
	}
	return input
}
