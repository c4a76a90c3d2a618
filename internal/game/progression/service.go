package progression

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/nscott/gridlock/internal/game/alarm"
	"github.com/nscott/gridlock/internal/game/item"
	"github.com/nscott/gridlock/internal/game/puzzle"
	"github.com/nscott/gridlock/internal/game/reward"
	"github.com/nscott/gridlock/internal/game/state"
)

// SolveRequest is one answer submission for a puzzle sub-question.
type SolveRequest struct {
	PuzzleID string
	// Question is the sub-question index; 0 for single-question puzzles.
	Question int
	Answer   string
	// TimeSpentSeconds is informational, reported by the client.
	TimeSpentSeconds int
}

// SolveResult is the outcome of a solve request after the full pipeline.
type SolveResult struct {
	IsCorrect          bool
	AttemptsUsed       int
	MaxAttempts        int
	CompletedQuestions []int
	TotalQuestions     int
	AllCompleted       bool
	AttemptsExhausted  bool
	// Reward is set when this submission completed the puzzle and the
	// bundle was applied.
	Reward *reward.Applied
	// RewardRejected reports that the puzzle completed but an item grant
	// exceeded its max stack size, so the whole bundle was rejected.
	RewardRejected bool
	// Escalated reports that this submission raised the alarm level.
	Escalated  bool
	AlarmLevel int
	// GameOver reports that the alarm reached its terminal ceiling.
	GameOver bool
}

// Service composes the solver, alarm engine, reward distributor, and game
// state service behind per-player serialization. It owns escalation policy;
// the solver only signals exhaustion.
type Service struct {
	locks        *LockArena
	solver       *puzzle.Solver
	alarms       *alarm.Engine
	rewards      *reward.Distributor
	states       *state.Service
	puzzles      *puzzle.Registry
	logger       *zap.Logger
	storeTimeout time.Duration
}

// NewService creates the progression Service.
//
// Precondition: all dependencies must be non-nil; storeTimeout > 0.
func NewService(
	locks *LockArena,
	solver *puzzle.Solver,
	alarms *alarm.Engine,
	rewards *reward.Distributor,
	states *state.Service,
	puzzles *puzzle.Registry,
	logger *zap.Logger,
	storeTimeout time.Duration,
) *Service {
	return &Service{
		locks:        locks,
		solver:       solver,
		alarms:       alarms,
		rewards:      rewards,
		states:       states,
		puzzles:      puzzles,
		logger:       logger,
		storeTimeout: storeTimeout,
	}
}

// SolveAttempt runs the compound pipeline for one submission:
// solver attempt, alarm escalation on a newly exhausted budget, and reward
// application on a newly completed puzzle. The whole sequence holds the
// player's lock and is bounded by the store timeout so the lock is never
// held across an unbounded wait.
func (s *Service) SolveAttempt(ctx context.Context, playerID int64, req SolveRequest) (SolveResult, error) {
	release, err := s.locks.Acquire(ctx, playerID)
	if err != nil {
		return SolveResult{}, err
	}
	defer release()

	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	res, err := s.solver.Attempt(ctx, playerID, req.PuzzleID, req.Question, req.Answer)
	if err != nil {
		return SolveResult{}, err
	}

	out := SolveResult{
		IsCorrect:          res.IsCorrect,
		AttemptsUsed:       res.AttemptsUsed,
		MaxAttempts:        res.MaxAttempts,
		CompletedQuestions: res.CompletedQuestions,
		TotalQuestions:     res.TotalQuestions,
		AllCompleted:       res.AllCompleted,
		AttemptsExhausted:  res.AttemptsExhausted,
	}

	if res.NewlyExhausted {
		alarmRes, err := s.alarms.Increase(ctx, playerID, alarm.ReasonAttemptsExhausted, req.PuzzleID, "")
		if err != nil {
			return SolveResult{}, fmt.Errorf("escalating alarm: %w", err)
		}
		out.Escalated = true
		out.AlarmLevel = alarmRes.Level
		out.GameOver = alarmRes.Terminal
	}

	if res.NewlyCompleted {
		def, ok := s.puzzles.Puzzle(req.PuzzleID)
		if !ok {
			return SolveResult{}, fmt.Errorf("puzzle %q: %w", req.PuzzleID, puzzle.ErrPuzzleNotFound)
		}
		if !def.Reward.Empty() {
			applied, err := s.rewards.Apply(ctx, playerID, def.Reward)
			switch {
			case errors.Is(err, item.ErrStackOverflow):
				// Completion stands; the bundle is rejected whole and the
				// condition is reported rather than silently dropped.
				out.RewardRejected = true
			case err != nil:
				return SolveResult{}, fmt.Errorf("applying reward: %w", err)
			default:
				out.Reward = &applied
			}
		}
	}

	s.logger.Debug("solve attempt processed",
		zap.Int64("player_id", playerID),
		zap.String("puzzle_id", req.PuzzleID),
		zap.Bool("correct", res.IsCorrect),
		zap.Bool("all_completed", res.AllCompleted),
		zap.Bool("exhausted", res.AttemptsExhausted),
		zap.Int("time_spent_s", req.TimeSpentSeconds),
	)
	return out, nil
}

// RaiseAlarm escalates the player's alarm level under the player lock.
func (s *Service) RaiseAlarm(ctx context.Context, playerID int64, reason, puzzleID, missionID string) (alarm.Result, error) {
	release, err := s.locks.Acquire(ctx, playerID)
	if err != nil {
		return alarm.Result{}, err
	}
	defer release()

	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	return s.alarms.Increase(ctx, playerID, reason, puzzleID, missionID)
}

// ResetAlarm zeroes the player's alarm level under the player lock.
func (s *Service) ResetAlarm(ctx context.Context, playerID int64) (alarm.Result, error) {
	release, err := s.locks.Acquire(ctx, playerID)
	if err != nil {
		return alarm.Result{}, err
	}
	defer release()

	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	return s.alarms.Reset(ctx, playerID)
}

// AlarmStatus returns the player's alarm stats and recent history.
// Pure read; no lock required.
func (s *Service) AlarmStatus(ctx context.Context, playerID int64, historyLimit int) (alarm.Stats, []alarm.Entry, error) {
	stats, err := s.alarms.GetStats(ctx, playerID)
	if err != nil {
		return alarm.Stats{}, nil, err
	}
	entries, err := s.alarms.GetHistory(ctx, playerID, historyLimit)
	if err != nil {
		return alarm.Stats{}, nil, err
	}
	return stats, entries, nil
}

// GetState returns the player's game state, creating the default on first
// access.
func (s *Service) GetState(ctx context.Context, playerID int64) (state.GameState, bool, error) {
	release, err := s.locks.Acquire(ctx, playerID)
	if err != nil {
		return state.GameState{}, false, err
	}
	defer release()

	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	return s.states.Get(ctx, playerID)
}

// UpdateState merges a partial update into the player's game state.
func (s *Service) UpdateState(ctx context.Context, playerID int64, patch state.Patch) error {
	release, err := s.locks.Acquire(ctx, playerID)
	if err != nil {
		return err
	}
	defer release()

	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	return s.states.Update(ctx, playerID, patch)
}

// ResetGame restores the documented defaults: game state and statistics,
// puzzle attempt state cleared, and the alarm level zeroed so a new game
// starts clean. Alarm history is retained.
func (s *Service) ResetGame(ctx context.Context, playerID int64) error {
	release, err := s.locks.Acquire(ctx, playerID)
	if err != nil {
		return err
	}
	defer release()

	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	if err := s.states.Reset(ctx, playerID); err != nil {
		return err
	}
	if _, err := s.alarms.Reset(ctx, playerID); err != nil {
		return fmt.Errorf("resetting alarm: %w", err)
	}
	return nil
}
