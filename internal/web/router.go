package web

import (
	"context"
	"net/http"

	"go.uber.org/zap"
)

// Pinger reports backing-store health for the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewRouter assembles the full API surface. Game endpoints sit behind the
// session middleware; register, login, and health do not.
func NewRouter(auth *AuthHandler, game *GameHandler, tokens *TokenManager, db Pinger, logger *zap.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/register", auth.Register)
	mux.HandleFunc("POST /api/login", auth.Login)

	protected := func(h http.HandlerFunc) http.Handler {
		return requireSession(tokens, logger, h)
	}
	mux.Handle("GET /api/alarm-level", protected(game.AlarmStatus))
	mux.Handle("POST /api/alarm-level", protected(game.RaiseAlarm))
	mux.Handle("PUT /api/alarm-level", protected(game.ResetAlarm))
	mux.Handle("POST /api/puzzles/solve", protected(game.Solve))
	mux.Handle("GET /api/state", protected(game.GetState))
	mux.Handle("PUT /api/state", protected(game.UpdateState))
	mux.Handle("POST /api/state/reset", protected(game.ResetGame))

	mux.HandleFunc("GET /api/health", func(w http.ResponseWriter, r *http.Request) {
		if err := db.Ping(r.Context()); err != nil {
			logger.Error("health check failed", zap.Error(err))
			respondError(w, logger, http.StatusServiceUnavailable, codeInternal, "database unreachable")
			return
		}
		respondData(w, logger, http.StatusOK, map[string]string{"status": "ok"})
	})

	return logRequests(logger, mux)
}
