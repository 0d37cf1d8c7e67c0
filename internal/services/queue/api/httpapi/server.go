// Package httpapi exposes the queue service over a JSON HTTP API.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/louisbranch/handraise/internal/services/queue/auth"
	"github.com/louisbranch/handraise/internal/services/queue/domain"
	"github.com/louisbranch/handraise/internal/services/queue/storage"
)

// Server routes HTTP requests to the queue service.
type Server struct {
	service  *domain.Service
	verifier auth.TokenVerifier
	logger   *slog.Logger
	mux      *http.ServeMux
}

// NewServer wires the queue routes. A nil logger uses the default.
func NewServer(service *domain.Service, verifier auth.TokenVerifier, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		service:  service,
		verifier: verifier,
		logger:   logger,
		mux:      http.NewServeMux(),
	}
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.HandleFunc("/profile", s.requireAuth(s.handleProfile))
	s.mux.HandleFunc("/profile/attendees", s.requireAuth(s.handleProfileAttendees))
	s.mux.HandleFunc("/rooms", s.requireAuth(s.handleRooms))
	s.mux.HandleFunc("/rooms/", s.requireAuth(s.handleRoomPath))
	s.mux.HandleFunc("/attendees/", s.requireAuth(s.handleAttendeePath))
	s.mux.HandleFunc("/tokens", s.requireAuth(s.handleTokens))
	s.mux.HandleFunc("/tokens/", s.requireAuth(s.handleTokenPath))
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

type profileContextKey struct{}

// profileFromContext returns the authenticated caller's profile.
func profileFromContext(ctx context.Context) (storage.Profile, bool) {
	profile, ok := ctx.Value(profileContextKey{}).(storage.Profile)
	return profile, ok
}

// requireAuth verifies the bearer token and resolves the caller's profile,
// creating it on first sight.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			writeJSONError(w, http.StatusForbidden, "missing bearer token")
			return
		}
		identity, err := s.verifier.VerifyToken(r.Context(), strings.TrimSpace(token))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		profile, err := s.service.GetOrCreateProfile(r.Context(), identity)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		ctx := context.WithValue(r.Context(), profileContextKey{}, profile)
		next(w, r.WithContext(ctx))
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// splitPathParts splits a trimmed URL path into its non-empty segments.
func splitPathParts(path string) []string {
	var parts []string
	for _, part := range strings.Split(path, "/") {
		if part != "" {
			parts = append(parts, part)
		}
	}
	return parts
}
