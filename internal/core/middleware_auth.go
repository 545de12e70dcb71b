package core

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"proofwork/internal/types"
)

// AdminKeyHeader carries the plaintext admin key on /admin requests.
const AdminKeyHeader = "X-Admin-Key"

// Authenticator decouples the HTTP layer from the identity backend so tests
// can substitute it.
type Authenticator interface {
	// ResolveToken returns the Actor for a bearer token. Rejected tokens
	// yield auth_token_invalid; an unreachable backend yields an upstream_
	// error.
	ResolveToken(ctx context.Context, token string) (*types.Actor, error)
}

// AuthMiddleware requires a valid bearer token and injects the resolved
// Actor into the request context.
func (s *Server) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.Authenticator == nil {
			s.Logger.ErrorContext(r.Context(), "no authenticator configured; rejecting request")
			Error(w, r, types.NewAppError(types.ErrCodeInternalConfig, "authentication is not configured", nil))
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeAuthError(w, r, types.ErrCodeAuthTokenMissing, "Authorization header is required")
			return
		}
		token := extractBearerToken(authHeader)
		if token == "" {
			writeAuthError(w, r, types.ErrCodeAuthTokenMissing, "Bearer token is required")
			return
		}

		actor, err := s.Authenticator.ResolveToken(r.Context(), token)
		if err != nil {
			s.handleAuthError(w, r, err)
			return
		}
		if actor == nil || actor.ID == "" {
			writeAuthError(w, r, types.ErrCodeAuthTokenInvalid, "Invalid authentication token")
			return
		}

		next.ServeHTTP(w, r.WithContext(types.WithActor(r.Context(), *actor)))
	})
}

// extractBearerToken returns the token from "Bearer <token>". The scheme is
// case-insensitive per RFC 7235.
func extractBearerToken(authHeader string) string {
	const prefix = "Bearer "
	if len(authHeader) < len(prefix) || !strings.EqualFold(authHeader[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(authHeader[len(prefix):])
}

// handleAuthError keeps upstream outages distinguishable from bad tokens:
// auth_ codes become 401, anything else keeps its own status.
func (s *Server) handleAuthError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		if appErr.HTTPStatus() == http.StatusUnauthorized {
			s.Logger.WarnContext(r.Context(), "authentication failed",
				slog.String("path", r.URL.Path),
				slog.String("error_code", string(appErr.Code)),
			)
			writeAuthError(w, r, appErr.Code, appErr.Message)
			return
		}
		s.Logger.ErrorContext(r.Context(), "token resolution failed",
			slog.String("path", r.URL.Path),
			slog.String("error_code", string(appErr.Code)),
			slog.Any("error", err),
		)
		Error(w, r, appErr)
		return
	}

	s.Logger.ErrorContext(r.Context(), "authentication failed: unexpected error",
		slog.String("path", r.URL.Path),
		slog.Any("error", err),
	)
	writeAuthError(w, r, types.ErrCodeAuthTokenInvalid, "Authentication failed")
}

func writeAuthError(w http.ResponseWriter, r *http.Request, code types.ErrorCode, message string) {
	JSON(w, r, http.StatusUnauthorized, APIErrorResponse{
		Error: ErrorDetail{
			Code:      string(code),
			Message:   message,
			RequestID: types.GetRequestID(r.Context()),
		},
	})
}

// AdminKeyMiddleware compares the X-Admin-Key header against the configured
// bcrypt hash and injects an admin Actor on success.
func (s *Server) AdminKeyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(AdminKeyHeader)
		if key == "" {
			writeAuthError(w, r, types.ErrCodeAuthAdminKeyInvalid, "Admin key is required")
			return
		}

		var hash string
		if s.Config != nil {
			hash = s.Config.Security.AdminAPIKeyHash.Unmask()
		}
		if hash == "" || bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)) != nil {
			s.Logger.WarnContext(r.Context(), "admin key rejected",
				slog.String("path", r.URL.Path),
				slog.String("remote_addr", r.RemoteAddr),
			)
			writeAuthError(w, r, types.ErrCodeAuthAdminKeyInvalid, "Invalid admin key")
			return
		}

		ctx := types.WithActor(r.Context(), types.Actor{ID: "admin", Type: types.ActorTypeAdmin})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
