package item

import (
	"errors"
	"fmt"
)

// ErrUnknownItem is returned when an item id does not resolve to a definition.
var ErrUnknownItem = errors.New("unknown item")

// ErrStackOverflow is returned when a grant would push a stack past its
// maximum size. The grant is rejected for that item rather than truncated.
var ErrStackOverflow = errors.New("stack overflow")

// Registry holds all loaded item definitions indexed by ID.
type Registry struct {
	items map[string]*Def
}

// NewRegistry returns an empty Registry.
//
// Postcondition: the internal map is initialised.
func NewRegistry() *Registry {
	return &Registry{
		items: make(map[string]*Def),
	}
}

// Register adds d to the registry.
//
// Precondition:  d must not be nil.
// Postcondition: Item(d.ID) returns (d, true); returns error if d.ID already registered.
func (r *Registry) Register(d *Def) error {
	if _, exists := r.items[d.ID]; exists {
		return fmt.Errorf("item: Registry.Register: item ID %q already registered", d.ID)
	}
	r.items[d.ID] = d
	return nil
}

// Item returns the Def for the given id and whether it was found.
//
// Postcondition: ok is true iff the id is registered.
func (r *Registry) Item(id string) (*Def, bool) {
	d, ok := r.items[id]
	return d, ok
}

// All returns all registered Defs in unspecified order.
//
// Postcondition: len(result) == number of registered items.
func (r *Registry) All() []*Def {
	out := make([]*Def, 0, len(r.items))
	for _, d := range r.items {
		out = append(out, d)
	}
	return out
}

// StackAdd computes the quantity that results from granting grant units of
// the item on top of existing units, enforcing the stacking rules.
//
// Precondition: existing >= 0 and grant > 0.
// Postcondition: on success the result is existing+grant and does not exceed
// the definition's MaxStack; ErrUnknownItem if id is not registered;
// ErrStackOverflow if the grant would exceed MaxStack.
func (r *Registry) StackAdd(id string, existing, grant int) (int, error) {
	def, ok := r.items[id]
	if !ok {
		return 0, fmt.Errorf("item %q: %w", id, ErrUnknownItem)
	}
	if grant <= 0 {
		return 0, fmt.Errorf("item %q: grant must be > 0, got %d", id, grant)
	}
	if existing+grant > def.MaxStack {
		return 0, fmt.Errorf("item %q: %d + %d exceeds max stack %d: %w",
			id, existing, grant, def.MaxStack, ErrStackOverflow)
	}
	return existing + grant, nil
}
