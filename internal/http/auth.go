package httpserver

import (
	"net/http"
	"strings"

	"github.com/guiaperfil/guia-api/internal/session"
)

// withIdentity resolves an optional bearer token into a request-scoped
// identity. Invalid tokens are rejected outright rather than downgraded to an
// anonymous session.
func (s *Server) withIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}

		userID, err := session.ParseSubject(token, []byte(s.cfg.JWTSecret))
		if err != nil {
			s.respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing or invalid authentication information")
			return
		}
		next.ServeHTTP(w, r.WithContext(session.WithIdentity(r.Context(), userID)))
	})
}

// requireIdentity guards routes that only make sense for signed-in users.
func (s *Server) requireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := (session.ContextProvider{}).Identity(r.Context()); !ok {
			s.respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing or invalid authentication information")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// identity returns the request's user id; empty when anonymous.
func (s *Server) identity(r *http.Request) string {
	userID, _ := (session.ContextProvider{}).Identity(r.Context())
	return userID
}

// isAdmin reports whether the signed-in user has the admin flag.
func (s *Server) isAdmin(r *http.Request) bool {
	userID := s.identity(r)
	if userID == "" {
		return false
	}
	profile, err := s.repo.Profiles.GetByID(r.Context(), userID)
	if err != nil {
		return false
	}
	return profile.IsAdmin
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, prefix))
}
