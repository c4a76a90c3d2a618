package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nscott/gridlock/internal/game/alarm"
)

// AlarmRepository provides alarm level and history persistence. It implements
// alarm.Store.
type AlarmRepository struct {
	db *pgxpool.Pool
}

// NewAlarmRepository creates an AlarmRepository backed by the given pool.
//
// Precondition: db must be a valid, open connection pool.
func NewAlarmRepository(db *pgxpool.Pool) *AlarmRepository {
	return &AlarmRepository{db: db}
}

// Level returns the player's current alarm level. Players with no record
// read as level 0, not found.
func (r *AlarmRepository) Level(ctx context.Context, playerID int64) (int, bool, error) {
	var level int
	err := r.db.QueryRow(ctx,
		`SELECT level FROM alarm_states WHERE player_id = $1`, playerID,
	).Scan(&level)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("querying alarm level: %w", err)
	}
	return level, true, nil
}

// Record persists the new level and appends the history entry in a single
// transaction.
//
// Postcondition: either both writes are visible or neither is.
func (r *AlarmRepository) Record(ctx context.Context, playerID int64, level int, entry alarm.Entry) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning alarm transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO alarm_states (player_id, level)
		VALUES ($1, $2)
		ON CONFLICT (player_id) DO UPDATE SET level = $2, updated_at = NOW()`,
		playerID, level,
	)
	if err != nil {
		return fmt.Errorf("upserting alarm level: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO alarm_history (id, player_id, occurred_at, reason, puzzle_id, mission_id, resulting_level)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		entry.ID, entry.PlayerID, entry.Timestamp, entry.Reason,
		nullIfEmpty(entry.PuzzleID), nullIfEmpty(entry.MissionID), entry.ResultingLevel,
	)
	if err != nil {
		return fmt.Errorf("inserting alarm history entry: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing alarm transaction: %w", err)
	}
	return nil
}

// History returns up to limit entries for the player, most recent first.
func (r *AlarmRepository) History(ctx context.Context, playerID int64, limit int) ([]alarm.Entry, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, player_id, occurred_at, reason, puzzle_id, mission_id, resulting_level
		FROM alarm_history
		WHERE player_id = $1
		ORDER BY occurred_at DESC, id DESC
		LIMIT $2`,
		playerID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying alarm history: %w", err)
	}
	defer rows.Close()

	var entries []alarm.Entry
	for rows.Next() {
		var (
			entry     alarm.Entry
			puzzleID  *string
			missionID *string
		)
		err := rows.Scan(&entry.ID, &entry.PlayerID, &entry.Timestamp, &entry.Reason,
			&puzzleID, &missionID, &entry.ResultingLevel)
		if err != nil {
			return nil, fmt.Errorf("scanning alarm history entry: %w", err)
		}
		if puzzleID != nil {
			entry.PuzzleID = *puzzleID
		}
		if missionID != nil {
			entry.MissionID = *missionID
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating alarm history: %w", err)
	}
	return entries, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
