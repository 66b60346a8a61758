package credentials

import "encoding/json"

// ClientCredentials identifies the OAuth client acting against the Zoho
// accounts server. Supplied at construction and never mutated.
type ClientCredentials struct {
	ClientID       string
	ClientSecret   string
	RedirectURI    string
	Scope          string
	AccountsServer string
}

// TokenRecord is the persisted token state. Fields the server returns that
// we do not model (token type, scope, api_domain, ...) are kept verbatim in
// extra and written back unchanged on save.
type TokenRecord struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64
	// ExpiresAt is stamped at receipt time as now + ExpiresIn (unix seconds).
	// It is the only expiry representation consulted at runtime.
	ExpiresAt int64

	extra map[string]json.RawMessage
}

// knownTokenFields are the keys lifted into struct fields; everything else
// passes through untouched.
var knownTokenFields = map[string]bool{
	"access_token":  true,
	"refresh_token": true,
	"expires_in":    true,
	"expires_at":    true,
}

// UnmarshalJSON decodes the documented fields and stashes the rest.
func (r *TokenRecord) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	if v, ok := raw["access_token"]; ok {
		if err := json.Unmarshal(v, &r.AccessToken); err != nil {
			return err
		}
	}
	if v, ok := raw["refresh_token"]; ok {
		if err := json.Unmarshal(v, &r.RefreshToken); err != nil {
			return err
		}
	}
	if v, ok := raw["expires_in"]; ok {
		if err := json.Unmarshal(v, &r.ExpiresIn); err != nil {
			return err
		}
	}
	if v, ok := raw["expires_at"]; ok {
		if err := json.Unmarshal(v, &r.ExpiresAt); err != nil {
			return err
		}
	}

	for k := range knownTokenFields {
		delete(raw, k)
	}
	if len(raw) > 0 {
		r.extra = raw
	}
	return nil
}

// MarshalJSON emits the documented fields merged with the pass-through ones.
func (r TokenRecord) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(r.extra)+4)
	for k, v := range r.extra {
		out[k] = v
	}
	out["access_token"] = r.AccessToken
	if r.RefreshToken != "" {
		out["refresh_token"] = r.RefreshToken
	}
	out["expires_in"] = r.ExpiresIn
	out["expires_at"] = r.ExpiresAt
	return json.Marshal(out)
}

// Extra returns a pass-through field as its raw JSON, if present.
func (r *TokenRecord) Extra(key string) (json.RawMessage, bool) {
	v, ok := r.extra[key]
	return v, ok
}
