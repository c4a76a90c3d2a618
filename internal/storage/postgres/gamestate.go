package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nscott/gridlock/internal/game/reward"
	"github.com/nscott/gridlock/internal/game/state"
)

// GameStateRepository provides game state, inventory, and statistics
// persistence. It implements both state.Store and reward.Store: reward
// commits touch the same tables and must share their transaction boundary.
type GameStateRepository struct {
	db *pgxpool.Pool
}

// NewGameStateRepository creates a GameStateRepository backed by the given pool.
//
// Precondition: db must be a valid, open connection pool.
func NewGameStateRepository(db *pgxpool.Pool) *GameStateRepository {
	return &GameStateRepository{db: db}
}

// Get returns the player's game state, reporting whether a record exists.
// The inventory is loaded alongside; players with a state row and no
// inventory rows read as an empty inventory.
func (r *GameStateRepository) Get(ctx context.Context, playerID int64) (state.GameState, bool, error) {
	var gs state.GameState
	err := r.db.QueryRow(ctx, `
		SELECT player_id, room, mission, money, experience, level
		FROM game_states WHERE player_id = $1`,
		playerID,
	).Scan(&gs.PlayerID, &gs.Room, &gs.Mission, &gs.Money, &gs.Experience, &gs.Level)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return state.GameState{}, false, nil
		}
		return state.GameState{}, false, fmt.Errorf("querying game state: %w", err)
	}

	gs.Inventory, err = r.loadInventory(ctx, r.db, playerID)
	if err != nil {
		return state.GameState{}, false, err
	}
	return gs, true, nil
}

// Put creates or replaces the player's game state and inventory in a single
// transaction.
//
// Postcondition: the stored inventory matches s.Inventory exactly.
func (r *GameStateRepository) Put(ctx context.Context, s state.GameState) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning game state transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := r.upsertState(ctx, tx, s); err != nil {
		return err
	}
	if err := r.replaceInventory(ctx, tx, s.PlayerID, s.Inventory); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing game state transaction: %w", err)
	}
	return nil
}

// Reset restores the given default state, zeroes the statistics record, and
// deletes the player's puzzle attempt state, all in a single transaction.
func (r *GameStateRepository) Reset(ctx context.Context, defaults state.GameState) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning reset transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := r.upsertState(ctx, tx, defaults); err != nil {
		return err
	}
	if err := r.replaceInventory(ctx, tx, defaults.PlayerID, defaults.Inventory); err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO player_statistics (player_id, puzzles_solved, rooms_visited, total_money_earned, total_experience_earned)
		VALUES ($1, 0, 0, 0, 0)
		ON CONFLICT (player_id) DO UPDATE
		SET puzzles_solved = 0, rooms_visited = 0, total_money_earned = 0,
		    total_experience_earned = 0, updated_at = NOW()`,
		defaults.PlayerID,
	)
	if err != nil {
		return fmt.Errorf("zeroing player statistics: %w", err)
	}

	_, err = tx.Exec(ctx,
		`DELETE FROM puzzle_attempts WHERE player_id = $1`, defaults.PlayerID)
	if err != nil {
		return fmt.Errorf("deleting puzzle attempts: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing reset transaction: %w", err)
	}
	return nil
}

// Statistics returns the player's statistics record, zero-valued if absent.
func (r *GameStateRepository) Statistics(ctx context.Context, playerID int64) (state.Statistics, error) {
	stats := state.Statistics{PlayerID: playerID}
	err := r.db.QueryRow(ctx, `
		SELECT puzzles_solved, rooms_visited, total_money_earned, total_experience_earned
		FROM player_statistics WHERE player_id = $1`,
		playerID,
	).Scan(&stats.PuzzlesSolved, &stats.RoomsVisited, &stats.TotalMoneyEarned, &stats.TotalExperienceEarned)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return stats, nil
		}
		return state.Statistics{}, fmt.Errorf("querying player statistics: %w", err)
	}
	return stats, nil
}

// Snapshot reads the slice of player state a reward application depends on.
// Players without a game state row read as a zero snapshot.
func (r *GameStateRepository) Snapshot(ctx context.Context, playerID int64) (reward.Snapshot, error) {
	var snap reward.Snapshot
	err := r.db.QueryRow(ctx,
		`SELECT money, experience FROM game_states WHERE player_id = $1`, playerID,
	).Scan(&snap.Money, &snap.Experience)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return reward.Snapshot{}, fmt.Errorf("querying reward snapshot: %w", err)
	}

	snap.Items, err = r.loadInventory(ctx, r.db, playerID)
	if err != nil {
		return reward.Snapshot{}, err
	}
	return snap, nil
}

// Commit applies a reward mutation in a single transaction: resulting money
// and experience on the state row, resulting item quantities, and the
// statistics bump. A player with no state row yet gets one with the
// new-game defaults plus the rewarded resources.
//
// Postcondition: either every effect is persisted or none are.
func (r *GameStateRepository) Commit(ctx context.Context, playerID int64, m reward.Mutation) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning reward transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO game_states (player_id, room, mission, money, experience, level)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (player_id) DO UPDATE
		SET money = $4, experience = $5, updated_at = NOW()`,
		playerID, state.DefaultRoom, state.DefaultMission, m.Money, m.Experience, state.DefaultLevel,
	)
	if err != nil {
		return fmt.Errorf("upserting reward balances: %w", err)
	}

	for itemID, qty := range m.Items {
		_, err = tx.Exec(ctx, `
			INSERT INTO inventory_items (player_id, item_id, quantity)
			VALUES ($1, $2, $3)
			ON CONFLICT (player_id, item_id) DO UPDATE SET quantity = $3, updated_at = NOW()`,
			playerID, itemID, qty,
		)
		if err != nil {
			return fmt.Errorf("upserting inventory item %q: %w", itemID, err)
		}
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO player_statistics (player_id, puzzles_solved, rooms_visited, total_money_earned, total_experience_earned)
		VALUES ($1, $2, 0, $3, $4)
		ON CONFLICT (player_id) DO UPDATE
		SET puzzles_solved = player_statistics.puzzles_solved + $2,
		    total_money_earned = player_statistics.total_money_earned + $3,
		    total_experience_earned = player_statistics.total_experience_earned + $4,
		    updated_at = NOW()`,
		playerID, m.Stats.PuzzlesSolved, m.Stats.MoneyEarned, m.Stats.ExperienceEarned,
	)
	if err != nil {
		return fmt.Errorf("updating player statistics: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing reward transaction: %w", err)
	}
	return nil
}

// queryer is the subset of pgx query operations shared by pools and
// transactions.
type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (r *GameStateRepository) loadInventory(ctx context.Context, q queryer, playerID int64) (map[string]int, error) {
	rows, err := q.Query(ctx,
		`SELECT item_id, quantity FROM inventory_items WHERE player_id = $1`, playerID)
	if err != nil {
		return nil, fmt.Errorf("querying inventory: %w", err)
	}
	defer rows.Close()

	inventory := make(map[string]int)
	for rows.Next() {
		var (
			itemID   string
			quantity int
		)
		if err := rows.Scan(&itemID, &quantity); err != nil {
			return nil, fmt.Errorf("scanning inventory item: %w", err)
		}
		inventory[itemID] = quantity
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating inventory: %w", err)
	}
	return inventory, nil
}

func (r *GameStateRepository) upsertState(ctx context.Context, tx pgx.Tx, s state.GameState) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO game_states (player_id, room, mission, money, experience, level)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (player_id) DO UPDATE
		SET room = $2, mission = $3, money = $4, experience = $5, level = $6, updated_at = NOW()`,
		s.PlayerID, s.Room, s.Mission, s.Money, s.Experience, s.Level,
	)
	if err != nil {
		return fmt.Errorf("upserting game state: %w", err)
	}
	return nil
}

func (r *GameStateRepository) replaceInventory(ctx context.Context, tx pgx.Tx, playerID int64, inventory map[string]int) error {
	_, err := tx.Exec(ctx,
		`DELETE FROM inventory_items WHERE player_id = $1`, playerID)
	if err != nil {
		return fmt.Errorf("clearing inventory: %w", err)
	}
	for itemID, quantity := range inventory {
		_, err = tx.Exec(ctx, `
			INSERT INTO inventory_items (player_id, item_id, quantity)
			VALUES ($1, $2, $3)`,
			playerID, itemID, quantity,
		)
		if err != nil {
			return fmt.Errorf("inserting inventory item %q: %w", itemID, err)
		}
	}
	return nil
}
