package web

import (
	"context"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

type contextKey int

const sessionKey contextKey = iota

// SessionFromContext returns the authenticated session injected by the
// auth middleware.
func SessionFromContext(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(sessionKey).(Session)
	return s, ok
}

// requireSession verifies the Authorization bearer token and injects the
// session into the request context. Requests without a valid token get a
// 401 envelope.
func requireSession(tokens *TokenManager, logger *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || raw == "" {
			respondError(w, logger, http.StatusUnauthorized, codeAuth, "missing bearer token")
			return
		}

		session, err := tokens.Verify(raw)
		if err != nil {
			respondError(w, logger, http.StatusUnauthorized, codeAuth, "invalid session token")
			return
		}

		ctx := context.WithValue(r.Context(), sessionKey, session)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// logRequests logs every request with method, path, and duration.
func logRequests(logger *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.Debug("request handled",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("elapsed", time.Since(start)),
		)
	})
}
