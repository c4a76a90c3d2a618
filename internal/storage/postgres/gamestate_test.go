package postgres_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nscott/gridlock/internal/game/reward"
	"github.com/nscott/gridlock/internal/game/state"
	"github.com/nscott/gridlock/internal/storage/postgres"
	"github.com/nscott/gridlock/internal/testutil"
)

func createPlayer(t *testing.T, pool *pgxpool.Pool) int64 {
	t.Helper()
	repo := postgres.NewAccountRepository(pool, 4)
	acct, err := repo.Create(context.Background(), uniqueName("player"), "password123")
	require.NoError(t, err)
	return acct.ID
}

func TestGameStateRepository_GetMissing(t *testing.T) {
	pool := testutil.NewPool(t)
	repo := postgres.NewGameStateRepository(pool)
	playerID := createPlayer(t, pool)

	_, found, err := repo.Get(context.Background(), playerID)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestGameStateRepository_PutAndGet(t *testing.T) {
	pool := testutil.NewPool(t)
	repo := postgres.NewGameStateRepository(pool)
	playerID := createPlayer(t, pool)
	ctx := context.Background()

	gs := state.GameState{
		PlayerID:   playerID,
		Room:       "server-farm",
		Mission:    "deep-dive",
		Money:      125.50,
		Experience: 900,
		Level:      3,
		Inventory:  map[string]int{"keycard": 1, "ram-chip": 4},
	}
	require.NoError(t, repo.Put(ctx, gs))

	fetched, found, err := repo.Get(ctx, playerID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, gs.Room, fetched.Room)
	assert.Equal(t, gs.Mission, fetched.Mission)
	assert.InDelta(t, gs.Money, fetched.Money, 0.001)
	assert.Equal(t, gs.Experience, fetched.Experience)
	assert.Equal(t, gs.Level, fetched.Level)
	assert.Equal(t, gs.Inventory, fetched.Inventory)
}

func TestGameStateRepository_PutReplacesInventory(t *testing.T) {
	pool := testutil.NewPool(t)
	repo := postgres.NewGameStateRepository(pool)
	playerID := createPlayer(t, pool)
	ctx := context.Background()

	gs := state.NewDefault(playerID)
	gs.Inventory = map[string]int{"keycard": 1, "ram-chip": 4}
	require.NoError(t, repo.Put(ctx, gs))

	gs.Inventory = map[string]int{"usb-stick": 2}
	require.NoError(t, repo.Put(ctx, gs))

	fetched, _, err := repo.Get(ctx, playerID)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"usb-stick": 2}, fetched.Inventory)
}

func TestGameStateRepository_Reset(t *testing.T) {
	pool := testutil.NewPool(t)
	repo := postgres.NewGameStateRepository(pool)
	playerID := createPlayer(t, pool)
	ctx := context.Background()

	gs := state.GameState{
		PlayerID:   playerID,
		Room:       "vault",
		Mission:    "heist",
		Money:      999,
		Experience: 5000,
		Level:      7,
		Inventory:  map[string]int{"keycard": 1},
	}
	require.NoError(t, repo.Put(ctx, gs))

	// Seed statistics and attempt state so reset has something to clear.
	require.NoError(t, repo.Commit(ctx, playerID, reward.Mutation{
		Money:      999,
		Experience: 5000,
		Stats:      reward.StatsDelta{PuzzlesSolved: 1, MoneyEarned: 50, ExperienceEarned: 100},
	}))

	require.NoError(t, repo.Reset(ctx, state.NewDefault(playerID)))

	fetched, found, err := repo.Get(ctx, playerID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, state.DefaultRoom, fetched.Room)
	assert.Equal(t, state.DefaultMission, fetched.Mission)
	assert.Zero(t, fetched.Money)
	assert.Zero(t, fetched.Experience)
	assert.Equal(t, state.DefaultLevel, fetched.Level)
	assert.Empty(t, fetched.Inventory)

	stats, err := repo.Statistics(ctx, playerID)
	require.NoError(t, err)
	assert.Zero(t, stats.PuzzlesSolved)
	assert.Zero(t, stats.TotalMoneyEarned)
}

func TestGameStateRepository_CommitReward(t *testing.T) {
	pool := testutil.NewPool(t)
	repo := postgres.NewGameStateRepository(pool)
	playerID := createPlayer(t, pool)
	ctx := context.Background()

	require.NoError(t, repo.Put(ctx, state.NewDefault(playerID)))

	snap, err := repo.Snapshot(ctx, playerID)
	require.NoError(t, err)
	assert.Zero(t, snap.Money)
	assert.Empty(t, snap.Items)

	m := reward.Mutation{
		Money:      75.25,
		Experience: 150,
		Items:      map[string]int{"ram-chip": 2},
		Stats:      reward.StatsDelta{PuzzlesSolved: 1, MoneyEarned: 75.25, ExperienceEarned: 150},
	}
	require.NoError(t, repo.Commit(ctx, playerID, m))

	snap, err = repo.Snapshot(ctx, playerID)
	require.NoError(t, err)
	assert.InDelta(t, 75.25, snap.Money, 0.001)
	assert.Equal(t, int64(150), snap.Experience)
	assert.Equal(t, map[string]int{"ram-chip": 2}, snap.Items)

	stats, err := repo.Statistics(ctx, playerID)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.PuzzlesSolved)
	assert.InDelta(t, 75.25, stats.TotalMoneyEarned, 0.001)
	assert.Equal(t, int64(150), stats.TotalExperienceEarned)
}

func TestGameStateRepository_StatisticsMissing(t *testing.T) {
	pool := testutil.NewPool(t)
	repo := postgres.NewGameStateRepository(pool)
	playerID := createPlayer(t, pool)

	stats, err := repo.Statistics(context.Background(), playerID)
	require.NoError(t, err)
	assert.Equal(t, playerID, stats.PlayerID)
	assert.Zero(t, stats.PuzzlesSolved)
}
