package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	internalhttp "crmagent/internal/http"
	"crmagent/internal/logger"
)

const (
	// RefreshBufferSeconds is the margin before expiry within which a token
	// is proactively refreshed.
	RefreshBufferSeconds = 300

	// defaultExpiresIn is assumed when the server omits expires_in.
	defaultExpiresIn = 3600

	authPath  = "/oauth/v2/auth"
	tokenPath = "/oauth/v2/token"
)

// Manager owns the OAuth authorization-code exchange, refresh-token
// exchange, on-disk persistence and expiry-aware token retrieval for a
// single Zoho CRM identity. It is safe for a single process only; callers
// running concurrent goroutines must serialize access themselves.
type Manager struct {
	creds      ClientCredentials
	store      *FileStore
	httpClient internalhttp.HTTPClient
	now        func() time.Time
	record     *TokenRecord
}

// Option customizes a Manager.
type Option func(*Manager)

// WithStorePath overrides the token file location.
func WithStorePath(path string) Option {
	return func(m *Manager) {
		m.store = NewFileStore(path)
	}
}

// WithHTTPClient overrides the HTTP client used for token exchanges.
func WithHTTPClient(c internalhttp.HTTPClient) Option {
	return func(m *Manager) {
		m.httpClient = c
	}
}

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager creates a token manager and loads any previously persisted
// record. A missing or corrupt token file is not fatal: the manager starts
// unauthenticated and logs a warning on parse failures.
func NewManager(creds ClientCredentials, opts ...Option) *Manager {
	m := &Manager{
		creds:      creds,
		store:      NewFileStore(".tokens.json"),
		httpClient: internalhttp.NewHTTPClient(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}

	record, err := m.store.Load()
	if err != nil {
		logger.Get().Warn().Err(err).Str("path", m.store.Path()).Msg("Could not load stored tokens, starting unauthenticated")
	}
	m.record = record

	return m
}

// AuthorizationURL builds the URL the user must visit to start the browser
// consent flow. Pure function of the client configuration.
func (m *Manager) AuthorizationURL() string {
	params := url.Values{}
	params.Set("scope", m.creds.Scope)
	params.Set("client_id", m.creds.ClientID)
	params.Set("response_type", "code")
	params.Set("redirect_uri", m.creds.RedirectURI)
	params.Set("access_type", "offline")
	return m.accountsServer() + authPath + "?" + params.Encode()
}

// ExchangeCode exchanges an authorization code for tokens, stamps the
// expiry, replaces the in-memory record and persists it. The returned
// record includes any pass-through fields from the server. On a
// PersistenceError the record is still installed in memory.
func (m *Manager) ExchangeCode(ctx context.Context, code string) (*TokenRecord, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("client_id", m.creds.ClientID)
	form.Set("client_secret", m.creds.ClientSecret)
	form.Set("redirect_uri", m.creds.RedirectURI)
	form.Set("code", code)

	record, err := m.postTokenRequest(ctx, "exchange", form)
	if err != nil {
		return nil, err
	}

	m.record = record
	if err := m.store.Save(record); err != nil {
		return record, err
	}

	logger.Get().Info().Int64("expires_in", record.ExpiresIn).Msg("Obtained tokens from authorization code")
	return record, nil
}

// Refresh exchanges the stored refresh token for a new access token. The
// prior refresh token is retained when the server omits one, and the expiry
// is restamped from the current clock.
func (m *Manager) Refresh(ctx context.Context) (*TokenRecord, error) {
	if m.record == nil || m.record.RefreshToken == "" {
		return nil, &MissingRefreshTokenError{}
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("client_id", m.creds.ClientID)
	form.Set("client_secret", m.creds.ClientSecret)
	form.Set("refresh_token", m.record.RefreshToken)

	record, err := m.postTokenRequest(ctx, "refresh", form)
	if err != nil {
		return nil, err
	}

	// Zoho does not return the refresh token on refresh; keep the stored one.
	if record.RefreshToken == "" {
		record.RefreshToken = m.record.RefreshToken
	}

	m.record = record
	if err := m.store.Save(record); err != nil {
		return record, err
	}

	logger.Get().Info().Int64("expires_in", record.ExpiresIn).Msg("Refreshed access token")
	return record, nil
}

// AccessToken returns a currently-valid bearer token, refreshing first when
// the cached one is within RefreshBufferSeconds of expiry. This is the only
// entry point the rest of the system depends on.
func (m *Manager) AccessToken(ctx context.Context) (string, error) {
	if m.record == nil || m.record.AccessToken == "" {
		return "", &AuthRequiredError{AuthorizationURL: m.AuthorizationURL()}
	}

	if m.now().Unix() >= m.record.ExpiresAt-RefreshBufferSeconds {
		logger.Get().Info().Msg("Access token expired or expiring soon, refreshing")
		if _, err := m.Refresh(ctx); err != nil {
			return "", err
		}
	}

	return m.record.AccessToken, nil
}

// IsAuthenticated reports whether a valid token can be produced right now.
// Only the two unauthenticated-state errors are collapsed into false
// silently; anything else (transport, persistence) is logged before being
// reported as false, since it signals an environment problem rather than
// missing authentication.
func (m *Manager) IsAuthenticated(ctx context.Context) bool {
	_, err := m.AccessToken(ctx)
	if err == nil {
		return true
	}

	var authErr *AuthRequiredError
	var refreshErr *MissingRefreshTokenError
	if errors.As(err, &authErr) || errors.As(err, &refreshErr) {
		return false
	}

	logger.Get().Warn().Err(err).Msg("Authentication check failed with a non-auth error")
	return false
}

// Record returns the current in-memory token record, or nil when
// unauthenticated. Callers must not mutate it.
func (m *Manager) Record() *TokenRecord {
	return m.record
}

func (m *Manager) accountsServer() string {
	return strings.TrimRight(m.creds.AccountsServer, "/")
}

// postTokenRequest performs a form-encoded POST against the token endpoint
// and parses the response into a TokenRecord with a freshly stamped expiry.
func (m *Manager) postTokenRequest(ctx context.Context, operation string, form url.Values) (*TokenRecord, error) {
	endpoint := m.accountsServer() + tokenPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("could not create %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, &ExchangeError{Operation: operation, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ExchangeError{Operation: operation, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &ExchangeError{Operation: operation, StatusCode: resp.StatusCode, Body: string(body)}
	}

	record := &TokenRecord{}
	if err := json.Unmarshal(body, record); err != nil {
		return nil, &ExchangeError{Operation: operation, Err: fmt.Errorf("could not parse token response: %w", err)}
	}

	expiresIn := record.ExpiresIn
	if expiresIn == 0 {
		expiresIn = defaultExpiresIn
	}
	record.ExpiresAt = m.now().Unix() + expiresIn

	return record, nil
}
