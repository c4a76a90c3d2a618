// Package item provides immutable item definitions and the stacking rules
// the inventory ledger enforces when rewards are applied.
package item

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Rarity constants for Def.Rarity.
const (
	RarityCommon    = "common"
	RarityUncommon  = "uncommon"
	RarityRare      = "rare"
	RarityLegendary = "legendary"
)

// validRarities is the set of valid Def rarities.
var validRarities = map[string]bool{
	RarityCommon:    true,
	RarityUncommon:  true,
	RarityRare:      true,
	RarityLegendary: true,
}

// Def defines the static properties of an inventory item loaded from YAML.
type Def struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Stackable   bool   `yaml:"stackable"`
	MaxStack    int    `yaml:"max_stack"`
	Rarity      string `yaml:"rarity"`
	Value       int    `yaml:"value"`
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
	if d.Name == "" {
		errs = append(errs, errors.New("Name must not be empty"))
	}
	if !validRarities[d.Rarity] {
		errs = append(errs, fmt.Errorf("Rarity must be one of common, uncommon, rare, legendary; got %q", d.Rarity))
	}
	if d.MaxStack < 1 {
		errs = append(errs, errors.New("MaxStack must be >= 1"))
	}
	if !d.Stackable && d.MaxStack != 1 {
		errs = append(errs, fmt.Errorf("MaxStack must be 1 for non-stackable items, got %d", d.MaxStack))
	}
	if d.Value < 0 {
		errs = append(errs, errors.New("Value must be >= 0"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("item validation failed: %v", errs)
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
			return nil, fmt.Errorf("LoadDefs: invalid item in %q: %w", path, err)
		}
		defs = append(defs, &d)
	}
	return defs, nil
}
