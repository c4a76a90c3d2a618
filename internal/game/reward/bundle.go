// Package reward applies reward bundles — money, experience, and item
// grants — to a player's game state as a single atomic unit.
package reward

import (
	"errors"
	"fmt"
)

// ItemGrant is a quantity of a single item awarded by a bundle.
type ItemGrant struct {
	ItemID   string `yaml:"item"`
	Quantity int    `yaml:"quantity"`
}

// Bundle is the reward attached to a puzzle definition: experience points,
// money, and zero or more item grants. Bundles are immutable content.
type Bundle struct {
	Experience int         `yaml:"experience"`
	Money      float64     `yaml:"money"`
	Items      []ItemGrant `yaml:"items"`
}

// Empty reports whether the bundle grants nothing.
func (b Bundle) Empty() bool {
	return b.Experience == 0 && b.Money == 0 && len(b.Items) == 0
}

// Validate checks that the Bundle satisfies its invariants.
//
// Postcondition: returns nil iff experience and money are non-negative and
// every grant names an item with a positive quantity.
func (b Bundle) Validate() error {
	var errs []error
	if b.Experience < 0 {
		errs = append(errs, fmt.Errorf("experience must be >= 0, got %d", b.Experience))
	}
	if b.Money < 0 {
		errs = append(errs, fmt.Errorf("money must be >= 0, got %v", b.Money))
	}
	for i, g := range b.Items {
		if g.ItemID == "" {
			errs = append(errs, fmt.Errorf("items[%d]: item id must not be empty", i))
		}
		if g.Quantity < 1 {
			errs = append(errs, fmt.Errorf("items[%d]: quantity must be >= 1, got %d", i, g.Quantity))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("reward validation failed: %v", errs)
	}
	return nil
}

// ErrInvariantViolation is returned when applying a bundle would leave the
// player state in an invalid condition, such as a negative balance. It is an
// internal error, not a user error.
var ErrInvariantViolation = errors.New("reward invariant violation")
