package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/jwtauth"

	"github.com/MohamadKamardin1/zrcp-backend/pkg/cms"
	"github.com/MohamadKamardin1/zrcp-backend/pkg/cms/auth"
)

type contextKey string

const userKey contextKey = "user"

var errNotAuthenticated = errors.New("Authentication credentials were not provided.")

// UserFromContext returns the authenticated user, or nil for anonymous
// callers.
func UserFromContext(ctx context.Context) *cms.User {
	user, _ := ctx.Value(userKey).(*cms.User)
	return user
}

// roleOf returns the visibility class of the caller.
func roleOf(r *http.Request) cms.Role {
	if user := UserFromContext(r.Context()); user != nil && user.IsStaff {
		return cms.RoleStaff
	}
	return cms.RolePublic
}

// authenticate resolves the user named by a verified access token. Requests
// without a token continue anonymously; a bad token is rejected even on
// public routes.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, claims, err := jwtauth.FromContext(r.Context())
		if errors.Is(err, jwtauth.ErrNoTokenFound) || (err == nil && token == nil) {
			next.ServeHTTP(w, r)
			return
		}
		if err != nil {
			s.writeError(w, r, auth.ErrInvalidToken)
			return
		}

		user, err := s.auth.UserFromClaims(r.Context(), claims)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		ctx := context.WithValue(r.Context(), userKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireStaff rejects anonymous callers with 401 and non-staff users with 403.
func (s *Server) requireStaff(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := UserFromContext(r.Context())
		if user == nil {
			s.writeError(w, r, errNotAuthenticated)
			return
		}
		if err := cms.CanWrite(roleOf(r)); err != nil {
			s.writeError(w, r, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requestLogger logs one line per request.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/healthz" {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		fields := []any{
			"request_id", middleware.GetReqID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
		}
		if status >= 500 {
			s.logger.ErrorContext(r.Context(), "request complete", fields...)
			return
		}
		s.logger.InfoContext(r.Context(), "request complete", fields...)
	})
}
