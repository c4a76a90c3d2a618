package reward

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/nscott/gridlock/internal/game/item"
)

// Snapshot is the slice of player state the distributor reads before
// computing a reward application.
type Snapshot struct {
	Money      float64
	Experience int64
	// Items maps item id to current quantity.
	Items map[string]int
}

// StatsDelta is the statistics bump committed alongside a reward.
type StatsDelta struct {
	PuzzlesSolved    int
	MoneyEarned      float64
	ExperienceEarned int64
}

// Mutation is the full set of writes for one reward application. Money,
// Experience, and Items carry absolute resulting values; the store must
// commit every field in a single transaction.
type Mutation struct {
	Money      float64
	Experience int64
	// Items maps item id to the resulting absolute quantity.
	Items map[string]int
	Stats StatsDelta
}

// Store defines the persistence operations required by Distributor.
type Store interface {
	// Snapshot reads the player's money, experience, and item quantities.
	Snapshot(ctx context.Context, playerID int64) (Snapshot, error)
	// Commit applies the mutation atomically: either every effect is
	// persisted or none are.
	Commit(ctx context.Context, playerID int64, m Mutation) error
}

// Applied reports the state resulting from a successful reward application.
type Applied struct {
	Money      float64
	Experience int64
	// Items maps each granted item id to its resulting quantity.
	Items map[string]int
}

// Distributor applies reward bundles atomically. It is invoked only when a
// puzzle reports full completion.
type Distributor struct {
	items  *item.Registry
	store  Store
	logger *zap.Logger
}

// NewDistributor creates a Distributor over the given item registry and store.
//
// Precondition: items, store, and logger must be non-nil.
func NewDistributor(items *item.Registry, store Store, logger *zap.Logger) *Distributor {
	return &Distributor{
		items:  items,
		store:  store,
		logger: logger,
	}
}

// Apply grants the bundle to the player as a single atomic unit.
//
// Stacking: each grant must fit within the item's max stack size; an
// overflowing grant rejects the whole application with item.ErrStackOverflow
// so no partial reward is ever visible. A corrupted stored state (negative
// balance) is reported as ErrInvariantViolation, never clamped.
//
// Precondition: playerID > 0; the caller holds the per-player lock.
// Postcondition: on success every effect is committed; on error none are.
func (d *Distributor) Apply(ctx context.Context, playerID int64, bundle Bundle) (Applied, error) {
	if err := bundle.Validate(); err != nil {
		return Applied{}, fmt.Errorf("%w: %v", ErrInvariantViolation, err)
	}

	snap, err := d.store.Snapshot(ctx, playerID)
	if err != nil {
		return Applied{}, fmt.Errorf("reading player snapshot: %w", err)
	}
	if snap.Money < 0 || snap.Experience < 0 {
		return Applied{}, fmt.Errorf("%w: stored balance negative (money=%v, experience=%d)",
			ErrInvariantViolation, snap.Money, snap.Experience)
	}

	newMoney := snap.Money + bundle.Money
	newExperience := snap.Experience + int64(bundle.Experience)
	if newMoney < 0 || newExperience < 0 {
		return Applied{}, fmt.Errorf("%w: applying bundle would yield negative balance",
			ErrInvariantViolation)
	}

	// Accumulate grants per item, then check each against stacking rules.
	granted := make(map[string]int)
	for _, g := range bundle.Items {
		granted[g.ItemID] += g.Quantity
	}
	resulting := make(map[string]int, len(granted))
	for id, qty := range granted {
		next, err := d.items.StackAdd(id, snap.Items[id], qty)
		if err != nil {
			if errors.Is(err, item.ErrStackOverflow) {
				d.logger.Warn("reward rejected: stack overflow",
					zap.Int64("player_id", playerID),
					zap.String("item_id", id),
					zap.Int("existing", snap.Items[id]),
					zap.Int("grant", qty),
				)
			}
			return Applied{}, fmt.Errorf("granting item %q: %w", id, err)
		}
		resulting[id] = next
	}

	mutation := Mutation{
		Money:      newMoney,
		Experience: newExperience,
		Items:      resulting,
		Stats: StatsDelta{
			PuzzlesSolved:    1,
			MoneyEarned:      bundle.Money,
			ExperienceEarned: int64(bundle.Experience),
		},
	}
	if err := d.store.Commit(ctx, playerID, mutation); err != nil {
		return Applied{}, fmt.Errorf("committing reward: %w", err)
	}

	d.logger.Info("reward applied",
		zap.Int64("player_id", playerID),
		zap.Float64("money", bundle.Money),
		zap.Int("experience", bundle.Experience),
		zap.Int("item_grants", len(bundle.Items)),
	)

	return Applied{
		Money:      newMoney,
		Experience: newExperience,
		Items:      resulting,
	}, nil
}
