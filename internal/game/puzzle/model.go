// Package puzzle provides puzzle definitions, per-player attempt state, and
// the solver that validates submitted answers.
package puzzle

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/nscott/gridlock/internal/game/reward"
)

// Type constants for Def.Type.
const (
	TypeTerminal      = "terminal"
	TypePointAndClick = "point-and-click"
	TypeLogic         = "logic"
	TypeCode          = "code"
)

// validTypes is the set of valid Def types.
var validTypes = map[string]bool{
	TypeTerminal:      true,
	TypePointAndClick: true,
	TypeLogic:         true,
	TypeCode:          true,
}

// UnlimitedAttempts is the MaxAttempts value meaning no attempt budget.
const UnlimitedAttempts = 0

// Def defines the static properties of a puzzle loaded from YAML.
// Answers holds one expected answer per sub-question in order;
// single-question puzzles have exactly one entry.
type Def struct {
	ID               string        `yaml:"id"`
	Room             string        `yaml:"room"`
	Type             string        `yaml:"type"`
	Difficulty       int           `yaml:"difficulty"`
	Answers          []string      `yaml:"answers"`
	MaxAttempts      int           `yaml:"max_attempts"`
	TimeLimitSeconds int           `yaml:"time_limit_seconds"`
	Reward           reward.Bundle `yaml:"reward"`
}

// Questions returns the number of sub-questions in the puzzle.
func (d *Def) Questions() int {
	return len(d.Answers)
}

// Validate checks that the Def satisfies its invariants.
//
// Precondition: d is non-nil.
// Postcondition: returns nil iff all fields are valid.
func (d *Def) Validate() error {
	var errs []error
	if d.ID == "" {
		errs = append(errs, errors.New("ID must not be empty"))
	}
	if d.Room == "" {
		errs = append(errs, errors.New("Room must not be empty"))
	}
	if !validTypes[d.Type] {
		errs = append(errs, fmt.Errorf("Type must be one of terminal, point-and-click, logic, code; got %q", d.Type))
	}
	if d.Difficulty < 1 {
		errs = append(errs, fmt.Errorf("Difficulty must be >= 1, got %d", d.Difficulty))
	}
	if len(d.Answers) == 0 {
		errs = append(errs, errors.New("Answers must contain at least one entry"))
	}
	for i, a := range d.Answers {
		if a == "" {
			errs = append(errs, fmt.Errorf("Answers[%d] must not be empty", i))
		}
	}
	if d.MaxAttempts < 0 {
		errs = append(errs, fmt.Errorf("MaxAttempts must be >= 0 (0 = unlimited), got %d", d.MaxAttempts))
	}
	if d.TimeLimitSeconds < 0 {
		errs = append(errs, fmt.Errorf("TimeLimitSeconds must be >= 0, got %d", d.TimeLimitSeconds))
	}
	if err := d.Reward.Validate(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("puzzle validation failed: %v", errs)
	}
	return nil
}

// LoadDefs reads all *.yaml and *.yml files from dir, parses each as a
// Def, validates it, and returns the collected slice.
//
// Precondition: dir is a readable directory path.
// Postcondition: returns all valid Defs or the first encountered error.
func LoadDefs(dir string) ([]*Def, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("LoadDefs: cannot read directory %q: %w", dir, err)
	}

	var defs []*Def
	for _, entry := range entries {
		ext := filepath.Ext(entry.Name())
		if entry.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("LoadDefs: cannot read file %q: %w", path, err)
		}
		var d Def
		if err := yaml.Unmarshal(data, &d); err != nil {
			return nil, fmt.Errorf("LoadDefs: cannot parse file %q: %w", path, err)
		}
		if err := d.Validate(); err != nil {
			return nil, fmt.Errorf("LoadDefs: invalid puzzle in %q: %w", path, err)
		}
		defs = append(defs, &d)
	}
	return defs, nil
}

// Registry holds all loaded puzzle definitions indexed by ID.
type Registry struct {
	puzzles map[string]*Def
}

// NewRegistry returns an empty Registry.
//
// Postcondition: the internal map is initialised.
func NewRegistry() *Registry {
	return &Registry{
		puzzles: make(map[string]*Def),
	}
}

// Register adds d to the registry.
//
// Precondition:  d must not be nil.
// Postcondition: Puzzle(d.ID) returns (d, true); returns error if d.ID already registered.
func (r *Registry) Register(d *Def) error {
	if _, exists := r.puzzles[d.ID]; exists {
		return fmt.Errorf("puzzle: Registry.Register: puzzle ID %q already registered", d.ID)
	}
	r.puzzles[d.ID] = d
	return nil
}

// Puzzle returns the Def for the given id and whether it was found.
//
// Postcondition: ok is true iff the id is registered.
func (r *Registry) Puzzle(id string) (*Def, bool) {
	d, ok := r.puzzles[id]
	return d, ok
}
