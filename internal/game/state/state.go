// Package state provides the durable per-player game state: current room
// and mission, resources, level, inventory, and the accompanying
// statistics record.
package state

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Documented defaults for a new game. Reset restores exactly these.
const (
	DefaultRoom    = "intro"
	DefaultMission = "first-contact"
	DefaultLevel   = 1
)

// ErrInvalidState is returned when a state mutation violates an invariant,
// such as a negative money balance or a zero-quantity inventory entry.
var ErrInvalidState = errors.New("invalid game state")

// GameState is the durable snapshot of a player's progress.
// Inventory maps item id to quantity; entries with quantity 0 are absent.
type GameState struct {
	PlayerID   int64
	Room       string
	Mission    string
	Money      float64
	Experience int64
	Level      int
	Inventory  map[string]int
}

// Statistics is the per-player statistics record zeroed on reset.
type Statistics struct {
	PlayerID              int64
	PuzzlesSolved         int
	RoomsVisited          int
	TotalMoneyEarned      float64
	TotalExperienceEarned int64
}

// NewDefault returns the documented new-game state for the player.
//
// Postcondition: the returned state has the starting room and mission,
// zero resources, level 1, and an empty inventory.
func NewDefault(playerID int64) GameState {
	return GameState{
		PlayerID:  playerID,
		Room:      DefaultRoom,
		Mission:   DefaultMission,
		Level:     DefaultLevel,
		Inventory: make(map[string]int),
	}
}

// Patch is a partial game-state update. Nil fields are left unchanged.
type Patch struct {
	Room       *string
	Mission    *string
	Money      *float64
	Experience *int64
	Level      *int
	// Inventory, when non-nil, replaces the whole inventory mapping.
	Inventory map[string]int
}

// Validate checks the patch against the game-state invariants.
//
// Postcondition: returns nil iff every supplied field is valid.
func (p Patch) Validate() error {
	var errs []error
	if p.Room != nil && *p.Room == "" {
		errs = append(errs, errors.New("room must not be empty"))
	}
	if p.Mission != nil && *p.Mission == "" {
		errs = append(errs, errors.New("mission must not be empty"))
	}
	if p.Money != nil && *p.Money < 0 {
		errs = append(errs, fmt.Errorf("money must be >= 0, got %v", *p.Money))
	}
	if p.Experience != nil && *p.Experience < 0 {
		errs = append(errs, fmt.Errorf("experience must be >= 0, got %d", *p.Experience))
	}
	if p.Level != nil && *p.Level < 1 {
		errs = append(errs, fmt.Errorf("level must be >= 1, got %d", *p.Level))
	}
	for id, qty := range p.Inventory {
		if id == "" {
			errs = append(errs, errors.New("inventory item id must not be empty"))
		}
		if qty < 1 {
			errs = append(errs, fmt.Errorf("inventory quantity for %q must be >= 1, got %d", id, qty))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %v", ErrInvalidState, errs)
	}
	return nil
}

// Apply merges the patch into s.
//
// Precondition: Validate returned nil.
func (p Patch) Apply(s *GameState) {
	if p.Room != nil {
		s.Room = *p.Room
	}
	if p.Mission != nil {
		s.Mission = *p.Mission
	}
	if p.Money != nil {
		s.Money = *p.Money
	}
	if p.Experience != nil {
		s.Experience = *p.Experience
	}
	if p.Level != nil {
		s.Level = *p.Level
	}
	if p.Inventory != nil {
		s.Inventory = make(map[string]int, len(p.Inventory))
		for id, qty := range p.Inventory {
			s.Inventory[id] = qty
		}
	}
}

// Store defines the game-state persistence operations required by Service.
type Store interface {
	// Get returns the player's game state, reporting whether a record exists.
	Get(ctx context.Context, playerID int64) (GameState, bool, error)
	// Put creates or replaces the player's game state.
	Put(ctx context.Context, s GameState) error
	// Reset restores the given default state, zeroes the statistics record,
	// and deletes the player's puzzle attempt state, all atomically.
	Reset(ctx context.Context, defaults GameState) error
	// Statistics returns the player's statistics record, zero-valued if absent.
	Statistics(ctx context.Context, playerID int64) (Statistics, error)
}

// Service coordinates game-state reads and writes, creating the documented
// default state on first access.
type Service struct {
	store  Store
	logger *zap.Logger
}

// NewService creates a Service backed by the given store.
//
// Precondition: store and logger must be non-nil.
func NewService(store Store, logger *zap.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// Get returns the player's game state, creating and persisting the default
// state on first access. isNew reports whether this call created it.
func (s *Service) Get(ctx context.Context, playerID int64) (gs GameState, isNew bool, err error) {
	gs, found, err := s.store.Get(ctx, playerID)
	if err != nil {
		return GameState{}, false, fmt.Errorf("loading game state: %w", err)
	}
	if found {
		return gs, false, nil
	}

	gs = NewDefault(playerID)
	if err := s.store.Put(ctx, gs); err != nil {
		return GameState{}, false, fmt.Errorf("creating default game state: %w", err)
	}
	s.logger.Info("new game started", zap.Int64("player_id", playerID))
	return gs, true, nil
}

// Update merges the supplied patch fields into the player's state. A player
// without a record gets the default state first, then the merge.
//
// Postcondition: returns ErrInvalidState without mutating anything when the
// patch violates an invariant.
func (s *Service) Update(ctx context.Context, playerID int64, patch Patch) error {
	if err := patch.Validate(); err != nil {
		return err
	}

	gs, _, err := s.Get(ctx, playerID)
	if err != nil {
		return err
	}

	patch.Apply(&gs)
	if err := s.store.Put(ctx, gs); err != nil {
		return fmt.Errorf("saving game state: %w", err)
	}
	return nil
}

// Reset restores the documented defaults, zeroes the statistics record, and
// clears the player's puzzle attempt state so a new game starts with no
// puzzles marked solved.
func (s *Service) Reset(ctx context.Context, playerID int64) error {
	if err := s.store.Reset(ctx, NewDefault(playerID)); err != nil {
		return fmt.Errorf("resetting game state: %w", err)
	}
	s.logger.Info("game state reset", zap.Int64("player_id", playerID))
	return nil
}

// Statistics returns the player's statistics record, zero-valued when the
// player has none yet.
func (s *Service) Statistics(ctx context.Context, playerID int64) (Statistics, error) {
	stats, err := s.store.Statistics(ctx, playerID)
	if err != nil {
		return Statistics{}, fmt.Errorf("loading statistics: %w", err)
	}
	return stats, nil
}
