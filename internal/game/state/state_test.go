package state_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/nscott/gridlock/internal/game/state"
)

// memStateStore implements state.Store in memory for tests.
type memStateStore struct {
	states   map[int64]state.GameState
	stats    map[int64]state.Statistics
	attempts map[int64]int
	putErr   error
}

func newMemStateStore() *memStateStore {
	return &memStateStore{
		states:   make(map[int64]state.GameState),
		stats:    make(map[int64]state.Statistics),
		attempts: make(map[int64]int),
	}
}

func (m *memStateStore) Get(_ context.Context, playerID int64) (state.GameState, bool, error) {
	s, ok := m.states[playerID]
	return s, ok, nil
}

func (m *memStateStore) Put(_ context.Context, s state.GameState) error {
	if m.putErr != nil {
		return m.putErr
	}
	m.states[s.PlayerID] = s
	return nil
}

func (m *memStateStore) Reset(_ context.Context, defaults state.GameState) error {
	m.states[defaults.PlayerID] = defaults
	m.stats[defaults.PlayerID] = state.Statistics{PlayerID: defaults.PlayerID}
	delete(m.attempts, defaults.PlayerID)
	return nil
}

func (m *memStateStore) Statistics(_ context.Context, playerID int64) (state.Statistics, error) {
	return m.stats[playerID], nil
}

func newService(t *testing.T) (*state.Service, *memStateStore) {
	t.Helper()
	store := newMemStateStore()
	return state.NewService(store, zaptest.NewLogger(t)), store
}

func TestGet_CreatesDefaultOnFirstAccess(t *testing.T) {
	svc, _ := newService(t)

	gs, isNew, err := svc.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, isNew)
	assert.Equal(t, state.DefaultRoom, gs.Room)
	assert.Equal(t, state.DefaultMission, gs.Mission)
	assert.Equal(t, 0.0, gs.Money)
	assert.Equal(t, int64(0), gs.Experience)
	assert.Equal(t, state.DefaultLevel, gs.Level)
	assert.Empty(t, gs.Inventory)

	gs, isNew, err = svc.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, isNew)
}

func TestUpdate_MergesSuppliedFieldsOnly(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	_, _, err := svc.Get(ctx, 1)
	require.NoError(t, err)

	mission := "breach-the-grid"
	money := 120.5
	err = svc.Update(ctx, 1, state.Patch{Mission: &mission, Money: &money})
	require.NoError(t, err)

	gs := store.states[1]
	assert.Equal(t, "breach-the-grid", gs.Mission)
	assert.Equal(t, 120.5, gs.Money)
	// Unsupplied fields keep their values.
	assert.Equal(t, state.DefaultRoom, gs.Room)
	assert.Equal(t, state.DefaultLevel, gs.Level)
}

func TestUpdate_ReplacesInventory(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	err := svc.Update(ctx, 1, state.Patch{Inventory: map[string]int{"keycard": 2}})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"keycard": 2}, store.states[1].Inventory)

	err = svc.Update(ctx, 1, state.Patch{Inventory: map[string]int{"battery": 1}})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"battery": 1}, store.states[1].Inventory)
}

func TestUpdate_RejectsInvalidPatch(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	negative := -5.0
	err := svc.Update(ctx, 1, state.Patch{Money: &negative})
	assert.ErrorIs(t, err, state.ErrInvalidState)
	// No state was created by the rejected update.
	assert.Empty(t, store.states)

	err = svc.Update(ctx, 1, state.Patch{Inventory: map[string]int{"keycard": 0}})
	assert.ErrorIs(t, err, state.ErrInvalidState)

	badLevel := 0
	err = svc.Update(ctx, 1, state.Patch{Level: &badLevel})
	assert.ErrorIs(t, err, state.ErrInvalidState)
}

func TestReset_RestoresDefaults(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	money := 500.0
	room := "vault"
	require.NoError(t, svc.Update(ctx, 1, state.Patch{Money: &money, Room: &room}))
	store.stats[1] = state.Statistics{PlayerID: 1, PuzzlesSolved: 4}
	store.attempts[1] = 3

	require.NoError(t, svc.Reset(ctx, 1))

	gs := store.states[1]
	assert.Equal(t, state.DefaultRoom, gs.Room)
	assert.Equal(t, 0.0, gs.Money)
	assert.Empty(t, gs.Inventory)

	stats, err := svc.Statistics(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.PuzzlesSolved)

	_, hasAttempts := store.attempts[1]
	assert.False(t, hasAttempts, "reset must clear puzzle attempt state")
}

func TestGet_StoreErrorPropagates(t *testing.T) {
	store := newMemStateStore()
	store.putErr = errors.New("boom")
	svc := state.NewService(store, zaptest.NewLogger(t))

	_, _, err := svc.Get(context.Background(), 1)
	assert.Error(t, err)
}
