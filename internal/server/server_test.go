package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"crmagent/internal/credentials"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConversation struct {
	asked  []string
	closed bool
}

func (f *fakeConversation) Ask(_ context.Context, input string) (string, string, error) {
	f.asked = append(f.asked, input)
	return "refined: " + input, "done: " + input, nil
}

func (f *fakeConversation) Close() { f.closed = true }

func newTestTokens(t *testing.T, accountsServer string) *credentials.Manager {
	t.Helper()
	return credentials.NewManager(credentials.ClientCredentials{
		ClientID:       "abc",
		ClientSecret:   "xyz",
		RedirectURI:    "http://localhost:8080/oauth/callback",
		Scope:          "X",
		AccountsServer: accountsServer,
	}, credentials.WithStorePath(filepath.Join(t.TempDir(), "tokens.json")))
}

func newTestServer(t *testing.T, accountsServer string) (*Server, *credentials.Manager, *fakeConversation) {
	t.Helper()
	tokens := newTestTokens(t, accountsServer)

	conversation := &fakeConversation{}
	srv := NewServer(tokens, func(context.Context) (Conversation, error) {
		return conversation, nil
	})
	return srv, tokens, conversation
}

func sendChat(t *testing.T, srv *Server, sessionID, message string) (int, map[string]interface{}) {
	t.Helper()
	payload, err := json.Marshal(map[string]string{"session_id": sessionID, "message": message})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(string(payload))))

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec.Code, body
}

func TestAuthStatusUnauthenticated(t *testing.T) {
	srv, _, _ := newTestServer(t, "https://accounts.zoho.com")

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/auth/status", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, false, body["authenticated"])
}

func TestAuthURLHandler(t *testing.T) {
	srv, _, _ := newTestServer(t, "https://accounts.zoho.com")

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/auth/url", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body["auth_url"], "/oauth/v2/auth?")
	assert.Contains(t, body["auth_url"], "client_id=abc")
}

func TestOAuthCallbackExchangesCode(t *testing.T) {
	accounts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/oauth/v2/token", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "authorization_code", r.PostForm.Get("grant_type"))
		assert.Equal(t, "the-code", r.PostForm.Get("code"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"A1","refresh_token":"R1","expires_in":3600}`))
	}))
	defer accounts.Close()

	srv, tokens, _ := newTestServer(t, accounts.URL)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/oauth/callback?code=the-code", nil))

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
	assert.True(t, tokens.IsAuthenticated(context.Background()))

	// And the status endpoint now reports the expiry.
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/auth/status", nil))
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["authenticated"])
	assert.Equal(t, true, body["has_refresh_token"])

	formatted, ok := body["expires_at_formatted"].(string)
	require.True(t, ok)
	_, err := time.Parse(time.RFC3339, formatted)
	assert.NoError(t, err)
}

func TestOAuthCallbackMissingCode(t *testing.T) {
	srv, _, _ := newTestServer(t, "https://accounts.zoho.com")

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/oauth/callback", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChatKeepsSession(t *testing.T) {
	srv, _, conversation := newTestServer(t, "https://accounts.zoho.com")

	code, first := sendChat(t, srv, "", "add a lead")
	require.Equal(t, http.StatusOK, code)
	sessionID, _ := first["session_id"].(string)
	require.NotEmpty(t, sessionID)
	assert.Equal(t, "done: add a lead", first["reply"])
	assert.Equal(t, "refined: add a lead", first["refined_prompt"])

	code, second := sendChat(t, srv, sessionID, "list deals")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, sessionID, second["session_id"])
	assert.Equal(t, []string{"add a lead", "list deals"}, conversation.asked)
}

func TestChatUnauthenticatedReturnsAuthURL(t *testing.T) {
	tokens := newTestTokens(t, "https://accounts.zoho.com")
	srv := NewServer(tokens, func(ctx context.Context) (Conversation, error) {
		return nil, &credentials.AuthRequiredError{AuthorizationURL: tokens.AuthorizationURL()}
	})

	code, body := sendChat(t, srv, "", "add a lead")
	require.Equal(t, http.StatusUnauthorized, code)

	authURL, ok := body["auth_url"].(string)
	require.True(t, ok)
	assert.Contains(t, authURL, "/oauth/v2/auth?")
	assert.Contains(t, authURL, "client_id=abc")
}

func TestChatEvictsLeastRecentSession(t *testing.T) {
	var opened []*fakeConversation
	srv := NewServer(newTestTokens(t, "https://accounts.zoho.com"), func(context.Context) (Conversation, error) {
		conversation := &fakeConversation{}
		opened = append(opened, conversation)
		return conversation, nil
	})
	srv.maxSessions = 2

	var sessionIDs []string
	for _, message := range []string{"one", "two", "three"} {
		code, body := sendChat(t, srv, "", message)
		require.Equal(t, http.StatusOK, code)
		sessionIDs = append(sessionIDs, body["session_id"].(string))
	}

	// The third session pushed out the first, closing its connection.
	require.Len(t, opened, 3)
	assert.True(t, opened[0].closed)
	assert.False(t, opened[1].closed)
	assert.False(t, opened[2].closed)

	// The surviving sessions are still reusable without a reconnect.
	code, body := sendChat(t, srv, sessionIDs[1], "again")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, sessionIDs[1], body["session_id"])
	require.Len(t, opened, 3)
	assert.Equal(t, []string{"two", "again"}, opened[1].asked)

	// The evicted id behaves like a fresh visitor: a new conversation opens
	// and the oldest remaining one is closed to stay within the cap.
	code, _ = sendChat(t, srv, sessionIDs[0], "back")
	require.Equal(t, http.StatusOK, code)
	require.Len(t, opened, 4)
	assert.True(t, opened[2].closed)
	assert.False(t, opened[1].closed)
}

func TestChatRejectsEmptyMessage(t *testing.T) {
	srv, _, _ := newTestServer(t, "https://accounts.zoho.com")

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
