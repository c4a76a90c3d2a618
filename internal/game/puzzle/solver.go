package puzzle

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// ErrPuzzleNotFound is returned when a puzzle id does not resolve to a definition.
var ErrPuzzleNotFound = errors.New("puzzle not found")

// ErrInvalidSubQuestion is returned when a sub-question index is outside the
// puzzle's sub-question range.
var ErrInvalidSubQuestion = errors.New("invalid sub-question index")

// AttemptState is the mutable per-player, per-puzzle progress record.
type AttemptState struct {
	PlayerID     int64
	PuzzleID     string
	AttemptsUsed int
	// Completed holds the completed sub-question indices, sorted ascending.
	Completed []int
	Done      bool
}

// HasCompleted reports whether the given sub-question index is completed.
func (s *AttemptState) HasCompleted(index int) bool {
	for _, c := range s.Completed {
		if c == index {
			return true
		}
	}
	return false
}

// MarkCompleted records the given sub-question index as completed.
// Marking an already-completed index is a no-op.
//
// Postcondition: Completed contains index exactly once and remains sorted.
func (s *AttemptState) MarkCompleted(index int) {
	if s.HasCompleted(index) {
		return
	}
	s.Completed = append(s.Completed, index)
	sort.Ints(s.Completed)
}

// AttemptStore defines the attempt-state persistence operations required by Solver.
type AttemptStore interface {
	// Get returns the attempt state for the (player, puzzle) key, reporting
	// whether a record exists.
	Get(ctx context.Context, playerID int64, puzzleID string) (AttemptState, bool, error)
	// Put creates or replaces the attempt state for its (player, puzzle) key.
	Put(ctx context.Context, state AttemptState) error
}

// Result is the outcome of a single answer submission.
type Result struct {
	IsCorrect          bool
	AttemptsUsed       int
	MaxAttempts        int
	CompletedQuestions []int
	TotalQuestions     int
	AllCompleted       bool
	// AttemptsExhausted signals that the attempt budget is spent without full
	// completion. It is a successful result, not an error; escalation is the
	// caller's responsibility.
	AttemptsExhausted bool
	// NewlyCompleted is true when this submission transitioned the puzzle to
	// fully completed. Rewards are applied exactly once, on this transition.
	NewlyCompleted bool
	// NewlyExhausted is true when this submission consumed the final attempt.
	// The alarm is raised exactly once, on this transition.
	NewlyExhausted bool
}

// Solver validates submitted answers against puzzle definitions and tracks
// per-player attempt state. A single Solver serves both production and debug
// use; debug mode only adds expected-answer logging and never changes
// validation behaviour.
type Solver struct {
	registry *Registry
	store    AttemptStore
	logger   *zap.Logger
	debug    bool
}

// NewSolver creates a Solver over the given definition registry and attempt store.
//
// Precondition: registry, store, and logger must be non-nil.
func NewSolver(registry *Registry, store AttemptStore, logger *zap.Logger, debug bool) *Solver {
	return &Solver{
		registry: registry,
		store:    store,
		logger:   logger,
		debug:    debug,
	}
}

// Attempt evaluates a submitted answer for one sub-question of a puzzle.
//
// Comparison is a case-insensitive exact match against the expected answer
// for the sub-question index; no trimming or normalization is applied.
// A matching submission marks the index completed without consuming an
// attempt; re-submitting a completed index is a no-op success. Only a
// non-matching submission consumes an attempt.
//
// Precondition: playerID > 0.
// Postcondition: the updated attempt state is persisted before returning.
// Returns ErrPuzzleNotFound or ErrInvalidSubQuestion without mutating state.
func (s *Solver) Attempt(ctx context.Context, playerID int64, puzzleID string, subQuestion int, answer string) (Result, error) {
	def, ok := s.registry.Puzzle(puzzleID)
	if !ok {
		return Result{}, fmt.Errorf("puzzle %q: %w", puzzleID, ErrPuzzleNotFound)
	}
	if subQuestion < 0 || subQuestion >= def.Questions() {
		return Result{}, fmt.Errorf("puzzle %q has %d sub-questions, got index %d: %w",
			puzzleID, def.Questions(), subQuestion, ErrInvalidSubQuestion)
	}

	state, found, err := s.store.Get(ctx, playerID, puzzleID)
	if err != nil {
		return Result{}, fmt.Errorf("loading attempt state: %w", err)
	}
	if !found {
		state = AttemptState{PlayerID: playerID, PuzzleID: puzzleID}
	}

	wasDone := state.Done
	wasExhausted := s.exhausted(def, &state)

	if s.debug {
		s.logger.Debug("solver attempt",
			zap.Int64("player_id", playerID),
			zap.String("puzzle_id", puzzleID),
			zap.Int("sub_question", subQuestion),
			zap.String("expected", def.Answers[subQuestion]),
			zap.String("submitted", answer),
		)
	}

	correct := strings.EqualFold(answer, def.Answers[subQuestion])
	if correct {
		state.MarkCompleted(subQuestion)
		state.Done = len(state.Completed) == def.Questions()
	} else {
		state.AttemptsUsed++
	}

	if err := s.store.Put(ctx, state); err != nil {
		return Result{}, fmt.Errorf("persisting attempt state: %w", err)
	}

	exhausted := s.exhausted(def, &state)
	completed := make([]int, len(state.Completed))
	copy(completed, state.Completed)

	return Result{
		IsCorrect:          correct,
		AttemptsUsed:       state.AttemptsUsed,
		MaxAttempts:        def.MaxAttempts,
		CompletedQuestions: completed,
		TotalQuestions:     def.Questions(),
		AllCompleted:       state.Done,
		AttemptsExhausted:  exhausted,
		NewlyCompleted:     state.Done && !wasDone,
		NewlyExhausted:     exhausted && !wasExhausted,
	}, nil
}

// exhausted reports whether the attempt budget is spent without completion.
func (s *Solver) exhausted(def *Def, state *AttemptState) bool {
	if def.MaxAttempts == UnlimitedAttempts || state.Done {
		return false
	}
	return state.AttemptsUsed >= def.MaxAttempts
}
