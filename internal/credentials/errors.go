package credentials

import "fmt"

// AuthRequiredError signals that no usable token exists and the browser
// consent flow has never completed. It carries the authorization URL so
// callers can show the remediation steps verbatim.
type AuthRequiredError struct {
	AuthorizationURL string
}

func (e *AuthRequiredError) Error() string {
	return fmt.Sprintf("no access token available. Please run the initial OAuth flow:\n"+
		"1. Visit: %s\n"+
		"2. Authorize the application\n"+
		"3. Copy the 'code' parameter from the redirect URL\n"+
		"4. Exchange the code for tokens (crmagent setup)", e.AuthorizationURL)
}

// MissingRefreshTokenError signals a refresh attempt without a refresh token
// on record. Remediation is the same as AuthRequiredError.
type MissingRefreshTokenError struct{}

func (e *MissingRefreshTokenError) Error() string {
	return "no refresh token available; run the initial OAuth flow first"
}

// ExchangeError signals that the accounts server rejected or failed to
// process a token or refresh request. StatusCode is zero on transport
// failures; Err carries the underlying cause when there is one.
type ExchangeError struct {
	Operation  string // "exchange" or "refresh"
	StatusCode int
	Body       string
	Err        error
}

func (e *ExchangeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("token %s failed: %v", e.Operation, e.Err)
	}
	return fmt.Sprintf("token %s failed with status %d: %s", e.Operation, e.StatusCode, e.Body)
}

func (e *ExchangeError) Unwrap() error { return e.Err }

// PersistenceError signals that the token store could not be written. The
// in-memory record is still usable for the current process but will not
// survive a restart.
type PersistenceError struct {
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to save tokens to %s: %v", e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
