package core

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/klauspost/compress/gzhttp"

	"proofwork/internal/types"
)

// defaultRequestTimeout applies when the config leaves the timeout unset.
// Lambda timeout minus one second.
const defaultRequestTimeout = 29 * time.Second

// defaultRedactedHeaders are masked in request logs.
var defaultRedactedHeaders = []string{
	"Authorization",
	"Cookie",
	"X-Signature",
	"X-Admin-Key",
}

// MountRoutes registers the global middleware chain and every route group.
//
//	/health, /metrics             public
//	/v1 (PublicV1Routes)          public, gzip
//	/v1 (V1Routes)                bearer token, gzip
//	/webhooks                     signature checked by the handler
//	/admin                        admin key
func (s *Server) MountRoutes() {
	s.registerGlobalMiddleware()

	s.router.Get("/health", s.HandleHealth)
	if s.Metrics != nil {
		s.router.Method(http.MethodGet, "/metrics", s.Metrics.Handler())
	}

	s.router.Route("/v1", func(r chi.Router) {
		r.Use(gzipMiddleware)
		for _, register := range s.PublicV1Routes {
			register(r)
		}
		r.Group(func(r chi.Router) {
			r.Use(s.AuthMiddleware)
			for _, register := range s.V1Routes {
				register(r)
			}
		})
	})

	s.router.Route("/webhooks", func(r chi.Router) {
		for _, register := range s.WebhookRoutes {
			register(r)
		}
	})

	s.router.Route("/admin", func(r chi.Router) {
		r.Use(s.AdminKeyMiddleware)
		for _, register := range s.AdminRoutes {
			register(r)
		}
	})

	s.router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		Error(w, r, types.NewAppError(types.ErrCodeNotFoundRoute, "route not found", nil))
	})
}

// gzipMiddleware adapts gzhttp, whose wrapper returns http.HandlerFunc, to
// chi's middleware signature.
func gzipMiddleware(next http.Handler) http.Handler {
	return gzhttp.GzipHandler(next)
}

// registerGlobalMiddleware applies middleware in strict order.
//
//  1. Recoverer        outermost, catches all panics
//  2. ContextTimeout   soft deadline before the Lambda hard timeout
//  3. RequestID        correlation id for logs and error bodies
//  4. SecurityHeaders
//  5. RequestLogger    redacted headers
//  6. CORS
//  7. Metrics
func (s *Server) registerGlobalMiddleware() {
	s.router.Use(s.Recoverer)
	s.router.Use(ContextTimeoutMiddleware(s.requestTimeout()))
	s.router.Use(RequestIDMiddleware)
	s.router.Use(SecurityHeadersMiddleware)
	s.router.Use(RequestLogger(s.Logger, defaultRedactedHeaders))
	s.router.Use(NewCORSMiddleware(s.corsAllowedOrigins()))
	s.router.Use(s.MetricsMiddleware)
}

func (s *Server) requestTimeout() time.Duration {
	if s.Config != nil && s.Config.Server.RequestTimeout > 0 {
		return s.Config.Server.RequestTimeout
	}
	return defaultRequestTimeout
}

func (s *Server) corsAllowedOrigins() []string {
	if s.Config != nil && len(s.Config.Security.CorsAllowedOrigins) > 0 {
		return s.Config.Security.CorsAllowedOrigins
	}
	return []string{"*"}
}

// ContextTimeoutMiddleware sets a deadline on the request context. Handlers
// observe it through the context; a store call cut short surfaces as a 500
// and the billing provider redelivers.
func ContextTimeoutMiddleware(duration time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), duration)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequestIDMiddleware reuses an inbound X-Request-Id or generates one, stores
// it in the context and echoes it on the response.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-Id")
		if requestID == "" {
			requestID = generateRequestID()
		}

		ctx := types.WithRequestID(r.Context(), requestID)
		w.Header().Set("X-Request-Id", requestID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// generateRequestID returns 16 random bytes as 32 hex characters.
func generateRequestID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "fallback-" + hex.EncodeToString([]byte(time.Now().String()))
	}
	return "req_" + hex.EncodeToString(b)
}
