// Package server is the web front-end shell: a chat page plus a small JSON
// API over the token manager and the conversational agent. It holds no CRM
// logic of its own.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"crmagent/internal/credentials"
	"crmagent/internal/logger"

	"github.com/google/uuid"
)

// Conversation is one connected chat session. *agent.Session satisfies it.
type Conversation interface {
	Ask(ctx context.Context, input string) (refined, answer string, err error)
	Close()
}

// ConversationFactory opens a new conversation against the CRM endpoint.
type ConversationFactory func(ctx context.Context) (Conversation, error)

// defaultMaxSessions caps concurrent conversations; opening one past the
// cap closes the least recently used session and its MCP connection.
const defaultMaxSessions = 32

type session struct {
	conversation Conversation
	lastUsed     int64
}

// Server serves the chat UI and its API.
type Server struct {
	tokens          *credentials.Manager
	newConversation ConversationFactory
	mux             *http.ServeMux
	maxSessions     int

	mu       sync.Mutex
	seq      int64
	sessions map[string]*session
}

// NewServer creates the web shell over the given token manager and
// conversation factory.
func NewServer(tokens *credentials.Manager, factory ConversationFactory) *Server {
	s := &Server{
		tokens:          tokens,
		newConversation: factory,
		mux:             http.NewServeMux(),
		maxSessions:     defaultMaxSessions,
		sessions:        make(map[string]*session),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/", s.indexHandler)
	s.mux.HandleFunc("/api/chat", s.chatHandler)
	s.mux.HandleFunc("/api/auth/url", s.authURLHandler)
	s.mux.HandleFunc("/api/auth/status", s.authStatusHandler)
	s.mux.HandleFunc("/oauth/callback", s.oauthCallbackHandler)
}

// Start launches the web server.
func (s *Server) Start(addr string) error {
	logger.Get().Info().Msgf("Starting web UI on %s", addr)
	return http.ListenAndServe(addr, loggingMiddleware(s.mux))
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) indexHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(indexPage))
}

// chatHandler runs one message through the agent. A missing session_id
// opens a new conversation; the id comes back in the response so the page
// can continue the same session.
func (s *Server) chatHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		SessionID string `json:"session_id"`
		Message   string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Message == "" {
		http.Error(w, "Message is required", http.StatusBadRequest)
		return
	}

	conversation, sessionID, err := s.conversationFor(r.Context(), req.SessionID)
	if err != nil {
		var authErr *credentials.AuthRequiredError
		if errors.As(err, &authErr) {
			writeJSON(w, http.StatusUnauthorized, map[string]interface{}{
				"error":    err.Error(),
				"auth_url": authErr.AuthorizationURL,
			})
			return
		}
		logger.Get().Error().Err(err).Msg("Failed to open conversation")
		http.Error(w, "Failed to connect to the CRM endpoint", http.StatusBadGateway)
		return
	}

	refined, answer, err := conversation.Ask(r.Context(), req.Message)
	if err != nil {
		logger.Get().Error().Err(err).Str("session_id", sessionID).Msg("Conversation failed")
		writeJSON(w, http.StatusBadGateway, map[string]interface{}{
			"session_id":     sessionID,
			"refined_prompt": refined,
			"error":          err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"session_id":     sessionID,
		"refined_prompt": refined,
		"reply":          answer,
	})
}

func (s *Server) conversationFor(ctx context.Context, sessionID string) (Conversation, string, error) {
	s.mu.Lock()
	if sessionID != "" {
		if sess, ok := s.sessions[sessionID]; ok {
			s.seq++
			sess.lastUsed = s.seq
			s.mu.Unlock()
			return sess.conversation, sessionID, nil
		}
	}
	s.mu.Unlock()

	conversation, err := s.newConversation(ctx)
	if err != nil {
		return nil, "", err
	}

	sessionID = uuid.New().String()
	s.mu.Lock()
	evicted := s.evictForInsertLocked()
	s.seq++
	s.sessions[sessionID] = &session{conversation: conversation, lastUsed: s.seq}
	s.mu.Unlock()

	// Close evicted conversations outside the lock; Close may block on the
	// MCP transport.
	for _, old := range evicted {
		old.Close()
	}
	return conversation, sessionID, nil
}

// evictForInsertLocked makes room for one more session and returns the
// conversations to close once the lock is released.
func (s *Server) evictForInsertLocked() []Conversation {
	var evicted []Conversation
	for len(s.sessions) >= s.maxSessions {
		oldestID := ""
		var oldestUsed int64
		for id, sess := range s.sessions {
			if oldestID == "" || sess.lastUsed < oldestUsed {
				oldestID, oldestUsed = id, sess.lastUsed
			}
		}
		logger.Get().Info().Str("session_id", oldestID).Msg("Evicting least recently used session")
		evicted = append(evicted, s.sessions[oldestID].conversation)
		delete(s.sessions, oldestID)
	}
	return evicted
}

func (s *Server) authURLHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"auth_url": s.tokens.AuthorizationURL(),
	})
}

func (s *Server) authStatusHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	response := map[string]interface{}{
		"authenticated": s.tokens.IsAuthenticated(r.Context()),
	}
	if record := s.tokens.Record(); record != nil {
		response["expires_at"] = record.ExpiresAt
		response["expires_at_formatted"] = time.Unix(record.ExpiresAt, 0).Format(time.RFC3339)
		response["has_refresh_token"] = record.RefreshToken != ""
	}
	writeJSON(w, http.StatusOK, response)
}

// oauthCallbackHandler completes the browser consent flow: it exchanges the
// code query parameter for tokens and sends the user back to the chat page.
func (s *Server) oauthCallbackHandler(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "Missing 'code' query parameter", http.StatusBadRequest)
		return
	}

	if _, err := s.tokens.ExchangeCode(r.Context(), code); err != nil {
		logger.Get().Error().Err(err).Msg("Authorization code exchange failed")
		http.Error(w, "Authentication failed: "+err.Error(), http.StatusBadGateway)
		return
	}

	logger.Get().Info().Msg("Authentication successful")
	http.Redirect(w, r, "/", http.StatusFound)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Get().Error().Err(err).Msg("Failed to write response body")
	}
}
