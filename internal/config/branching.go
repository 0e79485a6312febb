package config

import (
	_ "embed"
	"fmt"
	"os"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v3"
)

//go:embed branching.yaml
var defaultBranchingYAML []byte

// HardMaxVariantsPerRoot is the ceiling on variants per root: one original plus
// nine variants gives ten renderable versions. Configuration may lower it.
const HardMaxVariantsPerRoot = 9

// Branching holds the limits used by the retry core
type Branching struct {
	// MaxVariantsPerRoot caps the variant set (root excluded)
	MaxVariantsPerRoot int `yaml:"max_variants_per_root" json:"max_variants_per_root"`
	// InsertAttempts bounds re-derivation after a lost sequence race
	InsertAttempts int `yaml:"insert_attempts" json:"insert_attempts"`
	// MaxRootHops caps variant-of pointer chasing during root resolution
	MaxRootHops int `yaml:"max_root_hops" json:"max_root_hops"`
	// AncestryScanDepth caps the backward parent scan for branch points
	AncestryScanDepth int `yaml:"ancestry_scan_depth" json:"ancestry_scan_depth"`
}

// DefaultBranching returns the embedded defaults
func DefaultBranching() *Branching {
	b, err := parseBranching(defaultBranchingYAML, nil)
	if err != nil {
		// The embedded file is part of the binary; failing here is a build defect
		panic(fmt.Sprintf("invalid embedded branching.yaml: %v", err))
	}
	return b
}

// LoadBranching returns the embedded defaults overlaid with the YAML file at
// path. An empty path returns the defaults.
func LoadBranching(path string) (*Branching, error) {
	defaults := DefaultBranching()
	if path == "" {
		return defaults, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read branching config: %w", err)
	}

	return parseBranching(data, defaults)
}

func parseBranching(data []byte, base *Branching) (*Branching, error) {
	b := &Branching{}
	if base != nil {
		*b = *base
	}

	if err := yaml.Unmarshal(data, b); err != nil {
		return nil, fmt.Errorf("parse branching config: %w", err)
	}

	if err := b.Validate(); err != nil {
		return nil, fmt.Errorf("invalid branching config: %w", err)
	}

	return b, nil
}

// Validate checks the limits are usable
func (b *Branching) Validate() error {
	return validation.ValidateStruct(b,
		validation.Field(&b.MaxVariantsPerRoot, validation.Required, validation.Min(1), validation.Max(HardMaxVariantsPerRoot)),
		validation.Field(&b.InsertAttempts, validation.Required, validation.Min(1), validation.Max(20)),
		validation.Field(&b.MaxRootHops, validation.Required, validation.Min(1), validation.Max(1000)),
		validation.Field(&b.AncestryScanDepth, validation.Required, validation.Min(1), validation.Max(MaxAncestryScanDepth)),
	)
}
