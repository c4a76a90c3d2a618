package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/nscott/gridlock/internal/game/alarm"
	"github.com/nscott/gridlock/internal/game/progression"
	"github.com/nscott/gridlock/internal/game/puzzle"
	"github.com/nscott/gridlock/internal/game/state"
)

// defaultHistoryLimit bounds the alarm history returned by status reads.
const defaultHistoryLimit = 20

// ProgressionService defines the game operations required by GameHandler.
type ProgressionService interface {
	SolveAttempt(ctx context.Context, playerID int64, req progression.SolveRequest) (progression.SolveResult, error)
	RaiseAlarm(ctx context.Context, playerID int64, reason, puzzleID, missionID string) (alarm.Result, error)
	ResetAlarm(ctx context.Context, playerID int64) (alarm.Result, error)
	AlarmStatus(ctx context.Context, playerID int64, historyLimit int) (alarm.Stats, []alarm.Entry, error)
	GetState(ctx context.Context, playerID int64) (state.GameState, bool, error)
	UpdateState(ctx context.Context, playerID int64, patch state.Patch) error
	ResetGame(ctx context.Context, playerID int64) error
}

// GameHandler serves the authenticated game endpoints: solving, alarm
// level, and game state.
type GameHandler struct {
	game   ProgressionService
	logger *zap.Logger
}

// NewGameHandler creates a GameHandler over the given progression service.
//
// Precondition: game and logger must be non-nil.
func NewGameHandler(game ProgressionService, logger *zap.Logger) *GameHandler {
	return &GameHandler{game: game, logger: logger}
}

// respondServiceError maps the domain sentinel families onto HTTP statuses.
// Unrecognized errors are logged in full and reported as a generic 500.
func (h *GameHandler) respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, puzzle.ErrPuzzleNotFound):
		respondError(w, h.logger, http.StatusNotFound, codeNotFound, "puzzle not found")
	case errors.Is(err, puzzle.ErrInvalidSubQuestion):
		respondError(w, h.logger, http.StatusBadRequest, codeValidation, "invalid sub-question index")
	case errors.Is(err, state.ErrInvalidState):
		respondError(w, h.logger, http.StatusBadRequest, codeValidation, err.Error())
	case errors.Is(err, progression.ErrLockTimeout):
		respondError(w, h.logger, http.StatusServiceUnavailable, codeLockTimeout, "player busy, retry shortly")
	default:
		h.logger.Error("game operation failed", zap.Error(err))
		respondError(w, h.logger, http.StatusInternalServerError, codeInternal, "internal error")
	}
}

type solveRequest struct {
	PuzzleID         string `json:"puzzle_id"`
	Question         int    `json:"question"`
	Answer           string `json:"answer"`
	TimeSpentSeconds int    `json:"time_spent_seconds"`
}

type rewardResponse struct {
	Money      float64        `json:"money"`
	Experience int64          `json:"experience"`
	Items      map[string]int `json:"items"`
}

type solveResponse struct {
	IsCorrect          bool            `json:"is_correct"`
	AttemptsUsed       int             `json:"attempts_used"`
	MaxAttempts        int             `json:"max_attempts"`
	CompletedQuestions []int           `json:"completed_questions"`
	TotalQuestions     int             `json:"total_questions"`
	AllCompleted       bool            `json:"all_completed"`
	AttemptsExhausted  bool            `json:"attempts_exhausted"`
	Reward             *rewardResponse `json:"reward,omitempty"`
	RewardRejected     bool            `json:"reward_rejected,omitempty"`
	Escalated          bool            `json:"escalated"`
	AlarmLevel         int             `json:"alarm_level"`
	GameOver           bool            `json:"game_over"`
}

// Solve handles POST /api/puzzles/solve.
func (h *GameHandler) Solve(w http.ResponseWriter, r *http.Request) {
	session, _ := SessionFromContext(r.Context())

	var req solveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, h.logger, http.StatusBadRequest, codeValidation, "malformed request body")
		return
	}
	if req.PuzzleID == "" {
		respondError(w, h.logger, http.StatusBadRequest, codeValidation, "puzzle_id is required")
		return
	}

	result, err := h.game.SolveAttempt(r.Context(), session.PlayerID, progression.SolveRequest{
		PuzzleID:         req.PuzzleID,
		Question:         req.Question,
		Answer:           req.Answer,
		TimeSpentSeconds: req.TimeSpentSeconds,
	})
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	resp := solveResponse{
		IsCorrect:          result.IsCorrect,
		AttemptsUsed:       result.AttemptsUsed,
		MaxAttempts:        result.MaxAttempts,
		CompletedQuestions: result.CompletedQuestions,
		TotalQuestions:     result.TotalQuestions,
		AllCompleted:       result.AllCompleted,
		AttemptsExhausted:  result.AttemptsExhausted,
		RewardRejected:     result.RewardRejected,
		Escalated:          result.Escalated,
		AlarmLevel:         result.AlarmLevel,
		GameOver:           result.GameOver,
	}
	if result.Reward != nil {
		resp.Reward = &rewardResponse{
			Money:      result.Reward.Money,
			Experience: result.Reward.Experience,
			Items:      result.Reward.Items,
		}
	}
	respondData(w, h.logger, http.StatusOK, resp)
}

type alarmEntryResponse struct {
	ID             string    `json:"id"`
	Timestamp      time.Time `json:"timestamp"`
	Reason         string    `json:"reason"`
	PuzzleID       string    `json:"puzzle_id,omitempty"`
	MissionID      string    `json:"mission_id,omitempty"`
	ResultingLevel int       `json:"resulting_level"`
}

type alarmStatusResponse struct {
	Level    int                  `json:"level"`
	Terminal bool                 `json:"terminal"`
	History  []alarmEntryResponse `json:"history"`
}

func alarmEntries(entries []alarm.Entry) []alarmEntryResponse {
	out := make([]alarmEntryResponse, len(entries))
	for i, e := range entries {
		out[i] = alarmEntryResponse{
			ID:             e.ID,
			Timestamp:      e.Timestamp,
			Reason:         e.Reason,
			PuzzleID:       e.PuzzleID,
			MissionID:      e.MissionID,
			ResultingLevel: e.ResultingLevel,
		}
	}
	return out
}

// AlarmStatus handles GET /api/alarm-level.
func (h *GameHandler) AlarmStatus(w http.ResponseWriter, r *http.Request) {
	session, _ := SessionFromContext(r.Context())

	stats, entries, err := h.game.AlarmStatus(r.Context(), session.PlayerID, defaultHistoryLimit)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	respondData(w, h.logger, http.StatusOK, alarmStatusResponse{
		Level:    stats.Level,
		Terminal: stats.Terminal,
		History:  alarmEntries(entries),
	})
}

type raiseAlarmRequest struct {
	Reason    string `json:"reason"`
	PuzzleID  string `json:"puzzle_id"`
	MissionID string `json:"mission_id"`
}

type alarmResultResponse struct {
	Level    int  `json:"level"`
	Terminal bool `json:"terminal"`
}

// RaiseAlarm handles POST /api/alarm-level.
func (h *GameHandler) RaiseAlarm(w http.ResponseWriter, r *http.Request) {
	session, _ := SessionFromContext(r.Context())

	var req raiseAlarmRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, h.logger, http.StatusBadRequest, codeValidation, "malformed request body")
			return
		}
	}
	if req.Reason == "" {
		req.Reason = "manual"
	}

	result, err := h.game.RaiseAlarm(r.Context(), session.PlayerID, req.Reason, req.PuzzleID, req.MissionID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondData(w, h.logger, http.StatusOK, alarmResultResponse{
		Level:    result.Level,
		Terminal: result.Terminal,
	})
}

// ResetAlarm handles PUT /api/alarm-level.
func (h *GameHandler) ResetAlarm(w http.ResponseWriter, r *http.Request) {
	session, _ := SessionFromContext(r.Context())

	result, err := h.game.ResetAlarm(r.Context(), session.PlayerID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondData(w, h.logger, http.StatusOK, alarmResultResponse{
		Level:    result.Level,
		Terminal: result.Terminal,
	})
}

type gameStateResponse struct {
	Room       string         `json:"room"`
	Mission    string         `json:"mission"`
	Money      float64        `json:"money"`
	Experience int64          `json:"experience"`
	Level      int            `json:"level"`
	Inventory  map[string]int `json:"inventory"`
	IsNew      bool           `json:"is_new,omitempty"`
}

func gameStateBody(gs state.GameState, isNew bool) gameStateResponse {
	inventory := gs.Inventory
	if inventory == nil {
		inventory = map[string]int{}
	}
	return gameStateResponse{
		Room:       gs.Room,
		Mission:    gs.Mission,
		Money:      gs.Money,
		Experience: gs.Experience,
		Level:      gs.Level,
		Inventory:  inventory,
		IsNew:      isNew,
	}
}

// GetState handles GET /api/state.
func (h *GameHandler) GetState(w http.ResponseWriter, r *http.Request) {
	session, _ := SessionFromContext(r.Context())

	gs, isNew, err := h.game.GetState(r.Context(), session.PlayerID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondData(w, h.logger, http.StatusOK, gameStateBody(gs, isNew))
}

type updateStateRequest struct {
	Room       *string        `json:"room"`
	Mission    *string        `json:"mission"`
	Money      *float64       `json:"money"`
	Experience *int64         `json:"experience"`
	Level      *int           `json:"level"`
	Inventory  map[string]int `json:"inventory"`
}

// UpdateState handles PUT /api/state.
func (h *GameHandler) UpdateState(w http.ResponseWriter, r *http.Request) {
	session, _ := SessionFromContext(r.Context())

	var req updateStateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, h.logger, http.StatusBadRequest, codeValidation, "malformed request body")
		return
	}

	patch := state.Patch{
		Room:       req.Room,
		Mission:    req.Mission,
		Money:      req.Money,
		Experience: req.Experience,
		Level:      req.Level,
		Inventory:  req.Inventory,
	}
	if err := h.game.UpdateState(r.Context(), session.PlayerID, patch); err != nil {
		h.respondServiceError(w, err)
		return
	}

	gs, _, err := h.game.GetState(r.Context(), session.PlayerID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondData(w, h.logger, http.StatusOK, gameStateBody(gs, false))
}

// ResetGame handles POST /api/state/reset.
func (h *GameHandler) ResetGame(w http.ResponseWriter, r *http.Request) {
	session, _ := SessionFromContext(r.Context())

	if err := h.game.ResetGame(r.Context(), session.PlayerID); err != nil {
		h.respondServiceError(w, err)
		return
	}

	gs, _, err := h.game.GetState(r.Context(), session.PlayerID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondData(w, h.logger, http.StatusOK, gameStateBody(gs, false))
}
