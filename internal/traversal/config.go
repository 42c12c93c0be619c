// Package traversal expands a family tree generation by generation: it
// searches the configured sources for each position, scores and resolves
// the candidates, persists the outcome and walks up to the parents.
package traversal

import (
	"strings"

	"github.com/rotisserie/eris"
)

// Config holds the traversal thresholds.
type Config struct {
	// MaxDepth caps the generations traversed, the subject included.
	MaxDepth int `mapstructure:"max_depth" yaml:"max_depth"`
	// AcceptThreshold is the lowest resolved confidence stored as a match.
	AcceptThreshold int `mapstructure:"accept_threshold" yaml:"accept_threshold"`
	// EnrichThreshold is the bar for linking a customer-supplied position
	// to an upstream record.
	EnrichThreshold int `mapstructure:"enrich_threshold" yaml:"enrich_threshold"`
	// ShortCircuitScore ends the primary pass sequence when one pass
	// returns a single candidate at or above it.
	ShortCircuitScore int `mapstructure:"short_circuit_score" yaml:"short_circuit_score"`
	// MinViableCandidates below which supplementary sources are searched.
	MinViableCandidates int `mapstructure:"min_viable_candidates" yaml:"min_viable_candidates"`
	// MaxPositions caps the positions processed by one run.
	MaxPositions int `mapstructure:"max_positions" yaml:"max_positions"`
	// SearchLimit is the result count requested per query.
	SearchLimit int `mapstructure:"search_limit" yaml:"search_limit"`
	// MaxVariants caps the surname and nickname variants tried per pass.
	MaxVariants int `mapstructure:"max_variants" yaml:"max_variants"`
	// ParentAgeEstimate seeds a parent's estimated birth year from the child's.
	ParentAgeEstimate int `mapstructure:"parent_age_estimate" yaml:"parent_age_estimate"`
}

// DefaultConfig returns the tuned defaults.
func DefaultConfig() Config {
	return Config{
		MaxDepth:            6,
		AcceptThreshold:     55,
		EnrichThreshold:     65,
		ShortCircuitScore:   80,
		MinViableCandidates: 2,
		MaxPositions:        511,
		SearchLimit:         20,
		MaxVariants:         3,
		ParentAgeEstimate:   30,
	}
}

// Validate checks the thresholds are ordered and in range.
func (c Config) Validate() error {
	var problems []string
	if c.MaxDepth < 1 {
		problems = append(problems, "max_depth must be positive")
	}
	if c.AcceptThreshold < 0 || c.AcceptThreshold > 100 {
		problems = append(problems, "accept_threshold must be within 0-100")
	}
	if c.EnrichThreshold < c.AcceptThreshold {
		problems = append(problems, "enrich_threshold must not be below accept_threshold")
	}
	if c.ShortCircuitScore < c.AcceptThreshold {
		problems = append(problems, "short_circuit_score must not be below accept_threshold")
	}
	if c.MaxPositions < 1 {
		problems = append(problems, "max_positions must be positive")
	}
	if len(problems) > 0 {
		return eris.Errorf("traversal: config validation failed: %s", strings.Join(problems, "; "))
	}
	return nil
}
