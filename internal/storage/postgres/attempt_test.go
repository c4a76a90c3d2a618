package postgres_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nscott/gridlock/internal/game/puzzle"
	"github.com/nscott/gridlock/internal/storage/postgres"
	"github.com/nscott/gridlock/internal/testutil"
)

func TestAttemptRepository_GetMissing(t *testing.T) {
	pool := testutil.NewPool(t)
	repo := postgres.NewAttemptRepository(pool)
	playerID := createPlayer(t, pool)

	_, found, err := repo.Get(context.Background(), playerID, "firewall-bypass")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestAttemptRepository_PutAndGet(t *testing.T) {
	pool := testutil.NewPool(t)
	repo := postgres.NewAttemptRepository(pool)
	playerID := createPlayer(t, pool)
	ctx := context.Background()

	state := puzzle.AttemptState{
		PlayerID:     playerID,
		PuzzleID:     "firewall-bypass",
		AttemptsUsed: 2,
		Completed:    []int{0, 2},
		Done:         false,
	}
	require.NoError(t, repo.Put(ctx, state))

	fetched, found, err := repo.Get(ctx, playerID, "firewall-bypass")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, state.AttemptsUsed, fetched.AttemptsUsed)
	assert.Equal(t, []int{0, 2}, fetched.Completed)
	assert.False(t, fetched.Done)
}

func TestAttemptRepository_PutUpserts(t *testing.T) {
	pool := testutil.NewPool(t)
	repo := postgres.NewAttemptRepository(pool)
	playerID := createPlayer(t, pool)
	ctx := context.Background()

	state := puzzle.AttemptState{
		PlayerID: playerID,
		PuzzleID: "firewall-bypass",
	}
	require.NoError(t, repo.Put(ctx, state))

	state.AttemptsUsed = 3
	state.Completed = []int{0}
	state.Done = true
	require.NoError(t, repo.Put(ctx, state))

	fetched, found, err := repo.Get(ctx, playerID, "firewall-bypass")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 3, fetched.AttemptsUsed)
	assert.Equal(t, []int{0}, fetched.Completed)
	assert.True(t, fetched.Done)
}

func TestAttemptRepository_KeyedPerPuzzle(t *testing.T) {
	pool := testutil.NewPool(t)
	repo := postgres.NewAttemptRepository(pool)
	playerID := createPlayer(t, pool)
	ctx := context.Background()

	require.NoError(t, repo.Put(ctx, puzzle.AttemptState{
		PlayerID: playerID, PuzzleID: "firewall-bypass", AttemptsUsed: 1,
	}))
	require.NoError(t, repo.Put(ctx, puzzle.AttemptState{
		PlayerID: playerID, PuzzleID: "password-crack", AttemptsUsed: 5,
	}))

	a, _, err := repo.Get(ctx, playerID, "firewall-bypass")
	require.NoError(t, err)
	b, _, err := repo.Get(ctx, playerID, "password-crack")
	require.NoError(t, err)
	assert.Equal(t, 1, a.AttemptsUsed)
	assert.Equal(t, 5, b.AttemptsUsed)
}
