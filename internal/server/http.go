package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/nscott/gridlock/internal/config"
)

// HTTPService adapts an http.Server into the Service interface with
// graceful shutdown bounded by the configured timeout.
type HTTPService struct {
	srv             *http.Server
	logger          *zap.Logger
	shutdownTimeout time.Duration
}

// NewHTTPService creates an HTTPService serving handler on the address and
// timeouts from cfg.
//
// Precondition: handler and logger must be non-nil.
func NewHTTPService(cfg config.ServerConfig, handler http.Handler, logger *zap.Logger) *HTTPService {
	return &HTTPService{
		srv: &http.Server{
			Addr:         cfg.Addr(),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		logger:          logger,
		shutdownTimeout: cfg.ShutdownTimeout,
	}
}

// Start begins serving and blocks until Stop is called or the listener fails.
//
// Postcondition: Returns nil after a graceful shutdown, or the listener error.
func (h *HTTPService) Start() error {
	h.logger.Info("http server listening", zap.String("addr", h.srv.Addr))
	err := h.srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop drains in-flight requests and closes the listener.
//
// Postcondition: The server no longer accepts connections when this returns.
func (h *HTTPService) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), h.shutdownTimeout)
	defer cancel()
	if err := h.srv.Shutdown(ctx); err != nil {
		h.logger.Warn("http server shutdown", zap.Error(err))
		_ = h.srv.Close()
	}
}
