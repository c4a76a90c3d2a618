package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/nscott/gridlock/internal/storage/postgres"
)

// AccountStore defines the account persistence operations required by AuthHandler.
type AccountStore interface {
	Create(ctx context.Context, username, password string) (postgres.Account, error)
	Authenticate(ctx context.Context, username, password string) (postgres.Account, error)
}

// AuthHandler serves account registration and login, issuing session tokens.
type AuthHandler struct {
	accounts AccountStore
	tokens   *TokenManager
	logger   *zap.Logger
}

// NewAuthHandler creates an AuthHandler backed by the given account store.
//
// Precondition: accounts, tokens, and logger must be non-nil.
func NewAuthHandler(accounts AccountStore, tokens *TokenManager, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		accounts: accounts,
		tokens:   tokens,
		logger:   logger,
	}
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type sessionResponse struct {
	Token    string `json:"token"`
	PlayerID int64  `json:"player_id"`
	Username string `json:"username"`
}

func (h *AuthHandler) decodeCredentials(w http.ResponseWriter, r *http.Request) (credentialsRequest, bool) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, h.logger, http.StatusBadRequest, codeValidation, "malformed request body")
		return credentialsRequest{}, false
	}
	if req.Username == "" || req.Password == "" {
		respondError(w, h.logger, http.StatusBadRequest, codeValidation, "username and password are required")
		return credentialsRequest{}, false
	}
	return req, true
}

// Register creates a new account and issues a session token for it.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeCredentials(w, r)
	if !ok {
		return
	}

	acct, err := h.accounts.Create(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, postgres.ErrAccountExists) {
			respondError(w, h.logger, http.StatusBadRequest, codeValidation, "username already taken")
			return
		}
		h.logger.Error("creating account", zap.Error(err))
		respondError(w, h.logger, http.StatusInternalServerError, codeInternal, "internal error")
		return
	}

	token, err := h.tokens.Issue(acct.ID, acct.Username)
	if err != nil {
		h.logger.Error("issuing session token", zap.Error(err))
		respondError(w, h.logger, http.StatusInternalServerError, codeInternal, "internal error")
		return
	}

	h.logger.Info("account registered",
		zap.Int64("player_id", acct.ID),
		zap.String("username", acct.Username),
	)
	respondData(w, h.logger, http.StatusCreated, sessionResponse{
		Token:    token,
		PlayerID: acct.ID,
		Username: acct.Username,
	})
}

// Login authenticates credentials and issues a session token.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeCredentials(w, r)
	if !ok {
		return
	}

	acct, err := h.accounts.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, postgres.ErrAccountNotFound) || errors.Is(err, postgres.ErrInvalidCredentials) {
			respondError(w, h.logger, http.StatusUnauthorized, codeAuth, "invalid credentials")
			return
		}
		h.logger.Error("authenticating account", zap.Error(err))
		respondError(w, h.logger, http.StatusInternalServerError, codeInternal, "internal error")
		return
	}

	token, err := h.tokens.Issue(acct.ID, acct.Username)
	if err != nil {
		h.logger.Error("issuing session token", zap.Error(err))
		respondError(w, h.logger, http.StatusInternalServerError, codeInternal, "internal error")
		return
	}

	h.logger.Info("login succeeded", zap.Int64("player_id", acct.ID))
	respondData(w, h.logger, http.StatusOK, sessionResponse{
		Token:    token,
		PlayerID: acct.ID,
		Username: acct.Username,
	})
}
