// Package alarm provides the per-player alarm escalation state machine:
// a bounded counter that saturates at a terminal ceiling and keeps an
// append-only history of every transition.
package alarm

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MaxLevel is the escalation ceiling. Reaching it is a terminal,
// session-ending condition the orchestration layer must surface.
const MaxLevel = 10

// Reason constants for common history entries.
const (
	ReasonReset             = "reset"
	ReasonAttemptsExhausted = "puzzle-attempts-exhausted"
)

// Entry is one append-only history record of an alarm transition.
// PuzzleID and MissionID are optional references; empty means absent.
type Entry struct {
	ID             string
	PlayerID       int64
	Timestamp      time.Time
	Reason         string
	PuzzleID       string
	MissionID      string
	ResultingLevel int
}

// Stats is the current alarm level and whether it is terminal.
type Stats struct {
	Level    int
	Terminal bool
}

// Result is the outcome of an Increase or Reset call.
type Result struct {
	Level    int
	Terminal bool
	Entry    Entry
}

// Store defines the alarm persistence operations required by Engine.
type Store interface {
	// Level returns the player's current alarm level, reporting whether a
	// record exists. Absent records read as level 0.
	Level(ctx context.Context, playerID int64) (int, bool, error)
	// Record persists the new level and appends the history entry as one
	// atomic unit.
	Record(ctx context.Context, playerID int64, level int, entry Entry) error
	// History returns up to limit entries for the player, most recent first.
	History(ctx context.Context, playerID int64, limit int) ([]Entry, error)
}

// Engine owns the alarm level state machine. It only reports the terminal
// condition; it never terminates a session itself.
type Engine struct {
	store  Store
	logger *zap.Logger
	now    func() time.Time
}

// NewEngine creates an Engine backed by the given store.
//
// Precondition: store and logger must be non-nil.
func NewEngine(store Store, logger *zap.Logger) *Engine {
	return &Engine{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// Increase raises the player's alarm level by one, saturating at MaxLevel.
// A call at the ceiling appends a history entry for audit but leaves the
// level unchanged and re-asserts the terminal condition.
//
// Precondition: playerID > 0; reason must be non-empty.
// Postcondition: the new level and history entry are persisted atomically.
func (e *Engine) Increase(ctx context.Context, playerID int64, reason, puzzleID, missionID string) (Result, error) {
	if reason == "" {
		return Result{}, fmt.Errorf("alarm: reason must not be empty")
	}

	current, _, err := e.store.Level(ctx, playerID)
	if err != nil {
		return Result{}, fmt.Errorf("reading alarm level: %w", err)
	}

	next := current
	if current < MaxLevel {
		next = current + 1
	}

	entry := Entry{
		ID:             uuid.New().String(),
		PlayerID:       playerID,
		Timestamp:      e.now(),
		Reason:         reason,
		PuzzleID:       puzzleID,
		MissionID:      missionID,
		ResultingLevel: next,
	}

	if err := e.store.Record(ctx, playerID, next, entry); err != nil {
		return Result{}, fmt.Errorf("recording alarm increase: %w", err)
	}

	terminal := next == MaxLevel
	if terminal && current < MaxLevel {
		e.logger.Warn("alarm level terminal",
			zap.Int64("player_id", playerID),
			zap.String("reason", reason),
		)
	} else {
		e.logger.Info("alarm level raised",
			zap.Int64("player_id", playerID),
			zap.Int("level", next),
			zap.String("reason", reason),
		)
	}

	return Result{Level: next, Terminal: terminal, Entry: entry}, nil
}

// Reset sets the player's alarm level to 0 and appends a "reset" history
// entry. History is retained, never cleared. Resetting an unknown player
// succeeds and records the reset.
//
// Precondition: playerID > 0.
// Postcondition: the level is 0 and exactly one reset entry was appended.
func (e *Engine) Reset(ctx context.Context, playerID int64) (Result, error) {
	entry := Entry{
		ID:             uuid.New().String(),
		PlayerID:       playerID,
		Timestamp:      e.now(),
		Reason:         ReasonReset,
		ResultingLevel: 0,
	}

	if err := e.store.Record(ctx, playerID, 0, entry); err != nil {
		return Result{}, fmt.Errorf("recording alarm reset: %w", err)
	}

	e.logger.Info("alarm level reset", zap.Int64("player_id", playerID))
	return Result{Level: 0, Terminal: false, Entry: entry}, nil
}

// GetStats returns the player's current level and terminal flag.
// Pure read; no side effects.
func (e *Engine) GetStats(ctx context.Context, playerID int64) (Stats, error) {
	level, _, err := e.store.Level(ctx, playerID)
	if err != nil {
		return Stats{}, fmt.Errorf("reading alarm level: %w", err)
	}
	return Stats{Level: level, Terminal: level == MaxLevel}, nil
}

// GetHistory returns up to limit history entries, most recent first.
// Pure read; no side effects.
//
// Precondition: limit > 0.
func (e *Engine) GetHistory(ctx context.Context, playerID int64, limit int) ([]Entry, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("alarm: limit must be > 0, got %d", limit)
	}
	entries, err := e.store.History(ctx, playerID, limit)
	if err != nil {
		return nil, fmt.Errorf("reading alarm history: %w", err)
	}
	return entries, nil
}
