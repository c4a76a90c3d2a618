package web

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

// envelope is the uniform JSON response shape: exactly one of Data or
// Error is set, matched by Success.
type envelope struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *apiError `json:"error,omitempty"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes carried in the envelope alongside the HTTP status.
const (
	codeValidation  = "validation_error"
	codeAuth        = "auth_error"
	codeNotFound    = "not_found"
	codeLockTimeout = "lock_timeout"
	codeInternal    = "internal_error"
)

func respondData(w http.ResponseWriter, logger *zap.Logger, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(envelope{Success: true, Data: data}); err != nil {
		logger.Error("encoding response", zap.Error(err))
	}
}

func respondError(w http.ResponseWriter, logger *zap.Logger, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	err := json.NewEncoder(w).Encode(envelope{
		Success: false,
		Error:   &apiError{Code: code, Message: message},
	})
	if err != nil {
		logger.Error("encoding error response", zap.Error(err))
	}
}
