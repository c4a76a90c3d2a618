package progression_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/nscott/gridlock/internal/game/alarm"
	"github.com/nscott/gridlock/internal/game/item"
	"github.com/nscott/gridlock/internal/game/progression"
	"github.com/nscott/gridlock/internal/game/puzzle"
	"github.com/nscott/gridlock/internal/game/reward"
	"github.com/nscott/gridlock/internal/game/state"
)

// memWorld is an in-memory implementation of every store the progression
// pipeline touches, so the full compound flow can be exercised without a
// database.
type memWorld struct {
	mu       sync.Mutex
	attempts map[string]puzzle.AttemptState
	levels   map[int64]int
	history  map[int64][]alarm.Entry
	states   map[int64]state.GameState
	stats    map[int64]state.Statistics
}

func newMemWorld() *memWorld {
	return &memWorld{
		attempts: make(map[string]puzzle.AttemptState),
		levels:   make(map[int64]int),
		history:  make(map[int64][]alarm.Entry),
		states:   make(map[int64]state.GameState),
		stats:    make(map[int64]state.Statistics),
	}
}

func (w *memWorld) Get(_ context.Context, playerID int64, puzzleID string) (puzzle.AttemptState, bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	s, ok := w.attempts[fmt.Sprintf("%d/%s", playerID, puzzleID)]
	return s, ok, nil
}

func (w *memWorld) Put(_ context.Context, s puzzle.AttemptState) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.attempts[fmt.Sprintf("%d/%s", s.PlayerID, s.PuzzleID)] = s
	return nil
}

func (w *memWorld) Level(_ context.Context, playerID int64) (int, bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	l, ok := w.levels[playerID]
	return l, ok, nil
}

func (w *memWorld) Record(_ context.Context, playerID int64, level int, entry alarm.Entry) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.levels[playerID] = level
	w.history[playerID] = append([]alarm.Entry{entry}, w.history[playerID]...)
	return nil
}

func (w *memWorld) History(_ context.Context, playerID int64, limit int) ([]alarm.Entry, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	h := w.history[playerID]
	if len(h) > limit {
		h = h[:limit]
	}
	out := make([]alarm.Entry, len(h))
	copy(out, h)
	return out, nil
}

// gameStore adapts memWorld to state.Store. Separate type so the Get
// signatures for attempts and game states don't collide.
type gameStore struct{ w *memWorld }

func (g gameStore) Get(_ context.Context, playerID int64) (state.GameState, bool, error) {
	g.w.mu.Lock()
	defer g.w.mu.Unlock()
	s, ok := g.w.states[playerID]
	return s, ok, nil
}

func (g gameStore) Put(_ context.Context, s state.GameState) error {
	g.w.mu.Lock()
	defer g.w.mu.Unlock()
	g.w.states[s.PlayerID] = s
	return nil
}

func (g gameStore) Reset(_ context.Context, defaults state.GameState) error {
	g.w.mu.Lock()
	defer g.w.mu.Unlock()
	g.w.states[defaults.PlayerID] = defaults
	g.w.stats[defaults.PlayerID] = state.Statistics{PlayerID: defaults.PlayerID}
	for key := range g.w.attempts {
		var pid int64
		var puz string
		if _, err := fmt.Sscanf(key, "%d/%s", &pid, &puz); err == nil && pid == defaults.PlayerID {
			delete(g.w.attempts, key)
		}
	}
	return nil
}

func (g gameStore) Statistics(_ context.Context, playerID int64) (state.Statistics, error) {
	g.w.mu.Lock()
	defer g.w.mu.Unlock()
	return g.w.stats[playerID], nil
}

// rewardStore adapts memWorld to reward.Store.
type rewardStore struct{ w *memWorld }

func (r rewardStore) Snapshot(_ context.Context, playerID int64) (reward.Snapshot, error) {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()
	gs := r.w.states[playerID]
	items := make(map[string]int, len(gs.Inventory))
	for id, qty := range gs.Inventory {
		items[id] = qty
	}
	return reward.Snapshot{Money: gs.Money, Experience: gs.Experience, Items: items}, nil
}

func (r rewardStore) Commit(_ context.Context, playerID int64, m reward.Mutation) error {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()
	gs, ok := r.w.states[playerID]
	if !ok {
		gs = state.NewDefault(playerID)
	}
	gs.Money = m.Money
	gs.Experience = m.Experience
	if gs.Inventory == nil {
		gs.Inventory = make(map[string]int)
	}
	for id, qty := range m.Items {
		gs.Inventory[id] = qty
	}
	r.w.states[playerID] = gs

	st := r.w.stats[playerID]
	st.PuzzlesSolved += m.Stats.PuzzlesSolved
	st.TotalMoneyEarned += m.Stats.MoneyEarned
	st.TotalExperienceEarned += m.Stats.ExperienceEarned
	r.w.stats[playerID] = st
	return nil
}

type fixture struct {
	svc   *progression.Service
	world *memWorld
}

func newFixture(t *testing.T, defs ...*puzzle.Def) *fixture {
	t.Helper()
	logger := zaptest.NewLogger(t)
	world := newMemWorld()

	puzzles := puzzle.NewRegistry()
	for _, d := range defs {
		require.NoError(t, puzzles.Register(d))
	}

	items := item.NewRegistry()
	require.NoError(t, items.Register(&item.Def{
		ID: "keycard", Name: "Keycard", Stackable: true, MaxStack: 5, Rarity: item.RarityCommon,
	}))

	solver := puzzle.NewSolver(puzzles, world, logger, false)
	alarms := alarm.NewEngine(world, logger)
	states := state.NewService(gameStore{world}, logger)
	rewards := reward.NewDistributor(items, rewardStore{world}, logger)
	locks := progression.NewLockArena(2 * time.Second)

	svc := progression.NewService(locks, solver, alarms, rewards, states, puzzles, logger, 5*time.Second)
	return &fixture{svc: svc, world: world}
}

func hackDef(maxAttempts int) *puzzle.Def {
	return &puzzle.Def{
		ID:          "p1",
		Room:        "substation",
		Type:        puzzle.TypeTerminal,
		Difficulty:  1,
		Answers:     []string{"hack"},
		MaxAttempts: maxAttempts,
		Reward: reward.Bundle{
			Experience: 50,
			Money:      25,
			Items:      []reward.ItemGrant{{ItemID: "keycard", Quantity: 1}},
		},
	}
}

func TestSolveAttempt_CorrectAppliesReward(t *testing.T) {
	f := newFixture(t, hackDef(3))
	ctx := context.Background()

	res, err := f.svc.SolveAttempt(ctx, 1, progression.SolveRequest{PuzzleID: "p1", Answer: "hack"})
	require.NoError(t, err)
	assert.True(t, res.IsCorrect)
	assert.True(t, res.AllCompleted)
	require.NotNil(t, res.Reward)
	assert.Equal(t, 25.0, res.Reward.Money)
	assert.Equal(t, int64(50), res.Reward.Experience)
	assert.Equal(t, 1, res.Reward.Items["keycard"])

	gs := f.world.states[1]
	assert.Equal(t, 25.0, gs.Money)
	assert.Equal(t, int64(50), gs.Experience)
	assert.Equal(t, 1, gs.Inventory["keycard"])
	assert.Equal(t, 1, f.world.stats[1].PuzzlesSolved)
}

func TestSolveAttempt_ResubmitDoesNotReapplyReward(t *testing.T) {
	f := newFixture(t, hackDef(3))
	ctx := context.Background()

	_, err := f.svc.SolveAttempt(ctx, 1, progression.SolveRequest{PuzzleID: "p1", Answer: "hack"})
	require.NoError(t, err)

	res, err := f.svc.SolveAttempt(ctx, 1, progression.SolveRequest{PuzzleID: "p1", Answer: "hack"})
	require.NoError(t, err)
	assert.True(t, res.AllCompleted)
	assert.Nil(t, res.Reward, "rewards must be applied exactly once")

	assert.Equal(t, 25.0, f.world.states[1].Money)
	assert.Equal(t, 1, f.world.states[1].Inventory["keycard"])
	assert.Equal(t, 1, f.world.stats[1].PuzzlesSolved)
}

// Three misses on a three-attempt puzzle raise the alarm from 0 to 1.
func TestSolveAttempt_ExhaustionEscalatesOnce(t *testing.T) {
	f := newFixture(t, hackDef(3))
	ctx := context.Background()

	var res progression.SolveResult
	var err error
	for i := 0; i < 3; i++ {
		res, err = f.svc.SolveAttempt(ctx, 1, progression.SolveRequest{PuzzleID: "p1", Answer: "wrong"})
		require.NoError(t, err)
	}
	assert.False(t, res.IsCorrect)
	assert.Equal(t, 3, res.AttemptsUsed)
	assert.True(t, res.AttemptsExhausted)
	assert.True(t, res.Escalated)
	assert.Equal(t, 1, res.AlarmLevel)
	assert.False(t, res.GameOver)

	// A fourth miss reports exhaustion but does not escalate again.
	res, err = f.svc.SolveAttempt(ctx, 1, progression.SolveRequest{PuzzleID: "p1", Answer: "wrong"})
	require.NoError(t, err)
	assert.True(t, res.AttemptsExhausted)
	assert.False(t, res.Escalated)
	assert.Equal(t, 1, f.world.levels[1])
}

func TestSolveAttempt_TerminalAlarmReportsGameOver(t *testing.T) {
	f := newFixture(t, hackDef(3))
	ctx := context.Background()
	f.world.levels[1] = alarm.MaxLevel - 1

	for i := 0; i < 3; i++ {
		res, err := f.svc.SolveAttempt(ctx, 1, progression.SolveRequest{PuzzleID: "p1", Answer: "wrong"})
		require.NoError(t, err)
		if i == 2 {
			assert.True(t, res.Escalated)
			assert.Equal(t, alarm.MaxLevel, res.AlarmLevel)
			assert.True(t, res.GameOver)
		}
	}
}

func TestSolveAttempt_StackOverflowRejectsRewardOnly(t *testing.T) {
	f := newFixture(t, hackDef(3))
	ctx := context.Background()
	f.world.states[1] = state.GameState{
		PlayerID: 1, Room: state.DefaultRoom, Mission: state.DefaultMission,
		Level: 1, Money: 10, Inventory: map[string]int{"keycard": 5},
	}

	res, err := f.svc.SolveAttempt(ctx, 1, progression.SolveRequest{PuzzleID: "p1", Answer: "hack"})
	require.NoError(t, err)
	assert.True(t, res.AllCompleted)
	assert.True(t, res.RewardRejected)
	assert.Nil(t, res.Reward)

	// None of the bundle landed.
	assert.Equal(t, 10.0, f.world.states[1].Money)
	assert.Equal(t, 5, f.world.states[1].Inventory["keycard"])
}

func TestSolveAttempt_UnknownPuzzle(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.SolveAttempt(context.Background(), 1, progression.SolveRequest{PuzzleID: "ghost", Answer: "x"})
	assert.ErrorIs(t, err, puzzle.ErrPuzzleNotFound)
}

func TestRaiseAndResetAlarm(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.RaiseAlarm(ctx, 7, "tripwire", "", "m1")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Level)
	assert.Equal(t, "m1", res.Entry.MissionID)

	reset, err := f.svc.ResetAlarm(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 0, reset.Level)

	stats, history, err := f.svc.AlarmStatus(ctx, 7, 10)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Level)
	assert.Len(t, history, 2)
	assert.Equal(t, alarm.ReasonReset, history[0].Reason)
}

func TestResetGame_ClearsProgressAndAlarm(t *testing.T) {
	f := newFixture(t, hackDef(3))
	ctx := context.Background()

	_, err := f.svc.SolveAttempt(ctx, 1, progression.SolveRequest{PuzzleID: "p1", Answer: "hack"})
	require.NoError(t, err)
	_, err = f.svc.RaiseAlarm(ctx, 1, "tripwire", "", "")
	require.NoError(t, err)

	require.NoError(t, f.svc.ResetGame(ctx, 1))

	gs, isNew, err := f.svc.GetState(ctx, 1)
	require.NoError(t, err)
	assert.False(t, isNew)
	assert.Equal(t, 0.0, gs.Money)
	assert.Empty(t, gs.Inventory)

	stats, _, err := f.svc.AlarmStatus(ctx, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Level)

	// A new game starts with no puzzles marked solved.
	res, err := f.svc.SolveAttempt(ctx, 1, progression.SolveRequest{PuzzleID: "p1", Answer: "hack"})
	require.NoError(t, err)
	assert.True(t, res.AllCompleted)
	assert.NotNil(t, res.Reward)
}

func TestSolveAttempt_PlayersRunConcurrently(t *testing.T) {
	f := newFixture(t, hackDef(puzzle.UnlimitedAttempts))
	ctx := context.Background()

	var wg sync.WaitGroup
	for p := int64(1); p <= 4; p++ {
		p := p
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				if _, err := f.svc.SolveAttempt(ctx, p, progression.SolveRequest{PuzzleID: "p1", Answer: "wrong"}); err != nil {
					t.Errorf("player %d: %v", p, err)
					return
				}
			}
		}()
	}
	wg.Wait()

	for p := int64(1); p <= 4; p++ {
		st, _, err := f.world.Get(ctx, p, "p1")
		require.NoError(t, err)
		assert.Equal(t, 10, st.AttemptsUsed, "player %d", p)
	}
}
