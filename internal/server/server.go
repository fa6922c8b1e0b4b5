package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"classifieds/internal/app"
	"classifieds/internal/ratelimit"
	"classifieds/internal/usertoken"
	"classifieds/internal/util"
	"classifieds/pkg/ai"
	"classifieds/pkg/chatlog"
	"classifieds/pkg/domain"
	"classifieds/pkg/store"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App           *app.App
	Catalog       store.Catalog
	TokenVerifier *usertoken.Verifier
	RateLimiter   *ratelimit.FixedWindowLimiter
	ChatLog       chatlog.Recorder
	Trusted       *util.TrustedProxies
	// Debug includes diagnostic detail in 5xx payloads. Never enable in
	// production.
	Debug bool
}

// Server exposes the chatbot HTTP endpoints.
type Server struct {
	app           *app.App
	catalog       store.Catalog
	tokenVerifier *usertoken.Verifier
	rateLimiter   *ratelimit.FixedWindowLimiter
	chatLog       chatlog.Recorder
	trusted       *util.TrustedProxies
	debug         bool
	mux           *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) *Server {
	s := &Server{
		app:           cfg.App,
		catalog:       cfg.Catalog,
		tokenVerifier: cfg.TokenVerifier,
		rateLimiter:   cfg.RateLimiter,
		chatLog:       cfg.ChatLog,
		trusted:       cfg.Trusted,
		debug:         cfg.Debug,
		mux:           http.NewServeMux(),
	}
	s.routes()
	return s
}

// Router returns the configured handler with the middleware chain applied.
func (s *Server) Router() http.Handler {
	handler := util.WithRequestLog(s.trusted, s.mux)
	handler = util.WithRequestID(handler)
	return util.WithSecurityHeaders(util.WithCORS(handler))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.Handle("/api/chatbot", s.withUser(s.handleChat))
	s.mux.Handle("/api/chatbot/", s.withUser(s.handleChat))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type userHandler func(http.ResponseWriter, *http.Request, domain.User)

func (s *Server) withUser(next userHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized", "")
			return
		}
		if s.tokenVerifier == nil {
			writeError(w, http.StatusInternalServerError, "internal_server_error", "")
			return
		}
		subject, err := s.tokenVerifier.VerifySubject(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized", "")
			return
		}
		user, found, err := s.catalog.GetUserByID(subject)
		if err != nil {
			s.writeInternalError(w, r, err)
			return
		}
		if !found {
			writeError(w, http.StatusUnauthorized, "unauthorized", "")
			return
		}
		next(w, r, user)
	})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", "")
		return
	}
	if s.rateLimiter != nil && !s.rateLimiter.Allow(util.ClientIP(r, s.trusted)) {
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded", "")
		return
	}

	var req domain.ChatRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", "")
		return
	}

	start := time.Now()
	out, err := s.app.Chat(r.Context(), user, req.Message)
	if err != nil {
		s.writeChatError(w, r, err)
		return
	}
	s.recordTurn(r, user, out, time.Since(start))
	writeJSON(w, http.StatusOK, out.Response)
}

// writeChatError translates the application error taxonomy to HTTP statuses.
func (s *Server) writeChatError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, app.ErrEmptyMessage):
		writeError(w, http.StatusBadRequest, "message is required", "")
	case errors.Is(err, ai.ErrMissingAPIKey):
		writeError(w, http.StatusServiceUnavailable, "llm api key not configured", "")
	default:
		var provErr *ai.ProviderError
		if errors.As(err, &provErr) {
			writeError(w, http.StatusBadGateway, "llm provider error", provErr.Message)
			return
		}
		s.writeInternalError(w, r, err)
	}
}

func (s *Server) writeInternalError(w http.ResponseWriter, r *http.Request, err error) {
	util.LoggerFromContext(r.Context()).Error("request failed", "error", err)
	detail := ""
	if s.debug {
		detail = err.Error()
	}
	writeError(w, http.StatusInternalServerError, "internal_server_error", detail)
}

// recordTurn publishes the answered turn to the analytics stream. Failures
// are logged and never affect the response.
func (s *Server) recordTurn(r *http.Request, user domain.User, out app.Outcome, took time.Duration) {
	if s.chatLog == nil {
		return
	}
	productCount := 0
	if out.Response.Products != nil {
		productCount = len(*out.Response.Products)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := s.chatLog.Record(ctx, chatlog.Event{
		RequestID:    util.RequestIDFromRequest(r),
		UserID:       user.ID,
		Route:        out.Route,
		ProductCount: productCount,
		DurationMS:   took.Milliseconds(),
	})
	if err != nil {
		util.LoggerFromContext(r.Context()).Warn("chatlog record failed", "error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg, detail string) {
	payload := map[string]string{"error": msg}
	if detail != "" {
		payload["detail"] = detail
	}
	writeJSON(w, status, payload)
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}
