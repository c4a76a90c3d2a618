package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nscott/gridlock/internal/game/puzzle"
)

// AttemptRepository provides puzzle attempt-state persistence. It implements
// puzzle.AttemptStore.
type AttemptRepository struct {
	db *pgxpool.Pool
}

// NewAttemptRepository creates an AttemptRepository backed by the given pool.
//
// Precondition: db must be a valid, open connection pool.
func NewAttemptRepository(db *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{db: db}
}

// Get returns the attempt state for the (player, puzzle) key.
//
// Postcondition: found is false with a zero state when no record exists.
func (r *AttemptRepository) Get(ctx context.Context, playerID int64, puzzleID string) (puzzle.AttemptState, bool, error) {
	var (
		state     puzzle.AttemptState
		completed []int32
	)
	err := r.db.QueryRow(ctx, `
		SELECT player_id, puzzle_id, attempts_used, completed, done
		FROM puzzle_attempts WHERE player_id = $1 AND puzzle_id = $2`,
		playerID, puzzleID,
	).Scan(&state.PlayerID, &state.PuzzleID, &state.AttemptsUsed, &completed, &state.Done)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return puzzle.AttemptState{}, false, nil
		}
		return puzzle.AttemptState{}, false, fmt.Errorf("querying attempt state: %w", err)
	}

	state.Completed = make([]int, len(completed))
	for i, c := range completed {
		state.Completed[i] = int(c)
	}
	return state, true, nil
}

// Put creates or replaces the attempt state for its (player, puzzle) key.
//
// Postcondition: a subsequent Get returns the stored state.
func (r *AttemptRepository) Put(ctx context.Context, state puzzle.AttemptState) error {
	completed := make([]int32, len(state.Completed))
	for i, c := range state.Completed {
		completed[i] = int32(c)
	}

	_, err := r.db.Exec(ctx, `
		INSERT INTO puzzle_attempts (player_id, puzzle_id, attempts_used, completed, done)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (player_id, puzzle_id) DO UPDATE
		SET attempts_used = $3, completed = $4, done = $5, updated_at = NOW()`,
		state.PlayerID, state.PuzzleID, state.AttemptsUsed, completed, state.Done,
	)
	if err != nil {
		return fmt.Errorf("upserting attempt state: %w", err)
	}
	return nil
}
