// Package confidence turns a scored candidate and its supporting records into
// the final confidence of a tree position.
package confidence

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lineage-cli/internal/model"
)

// Config holds the resolver's weights and bonuses.
type Config struct {
	// Blend of scorer and evidence scores when citations exist.
	ScorerShare   float64 `mapstructure:"scorer_share"`
	EvidenceShare float64 `mapstructure:"evidence_share"`

	CitationWeights map[model.CitationType]int `mapstructure:"citation_weights"`
	EvidenceCap     int                        `mapstructure:"evidence_cap"`
	DiversityTypes  int                        `mapstructure:"diversity_types"`
	DiversityBonus  int                        `mapstructure:"diversity_bonus"`

	// Tree-link corroboration. Strong means both date and place agree.
	TreeStrongBonus    int `mapstructure:"tree_strong_bonus"`
	TreeStrongFloor    int `mapstructure:"tree_strong_floor"`
	TreeModerateBonus  int `mapstructure:"tree_moderate_bonus"`
	TreeModerateFloor  int `mapstructure:"tree_moderate_floor"`
	TreeForeignPenalty int `mapstructure:"tree_foreign_penalty"`
	// TreeYearTolerance is the largest birth-year gap that corroborates.
	TreeYearTolerance int `mapstructure:"tree_year_tolerance"`
	// A parent with no known birth date corroborates when born between
	// ParentMinAge and ParentMaxAge years before the child, or within
	// TreeEstimateTolerance of the estimated year when the child's is unknown.
	ParentMinAge          int `mapstructure:"parent_min_age"`
	ParentMaxAge          int `mapstructure:"parent_max_age"`
	TreeEstimateTolerance int `mapstructure:"tree_estimate_tolerance"`

	MultiSourceBonus  int `mapstructure:"multi_source_bonus"`
	ConfirmationBonus int `mapstructure:"confirmation_bonus"`
	// ConfirmationYearTolerance is the largest gap between the candidate's
	// year and the index entry's registration year.
	ConfirmationYearTolerance int `mapstructure:"confirmation_year_tolerance"`
}

// DefaultConfig returns the tuned defaults.
func DefaultConfig() Config {
	return Config{
		ScorerShare:   0.6,
		EvidenceShare: 0.4,
		CitationWeights: map[model.CitationType]int{
			model.CitationVital:       30,
			model.CitationCensus:      20,
			model.CitationParish:      18,
			model.CitationMilitary:    12,
			model.CitationImmigration: 12,
			model.CitationOther:       5,
		},
		EvidenceCap:    100,
		DiversityTypes: 3,
		DiversityBonus: 10,

		TreeStrongBonus:    15,
		TreeStrongFloor:    75,
		TreeModerateBonus:  8,
		TreeModerateFloor:  60,
		TreeForeignPenalty: 15,
		TreeYearTolerance:  2,

		ParentMinAge:          12,
		ParentMaxAge:          55,
		TreeEstimateTolerance: 10,

		MultiSourceBonus:          5,
		ConfirmationBonus:         5,
		ConfirmationYearTolerance: 1,
	}
}

// Validate checks the config for internal consistency.
func (c Config) Validate() error {
	var errs []string
	if c.ScorerShare < 0 || c.EvidenceShare < 0 {
		errs = append(errs, "blend shares must be >= 0")
	}
	if sum := c.ScorerShare + c.EvidenceShare; sum < 0.99 || sum > 1.01 {
		errs = append(errs, fmt.Sprintf("scorer_share + evidence_share must be 1, got %.2f", sum))
	}
	for t, w := range c.CitationWeights {
		if w < 0 {
			errs = append(errs, fmt.Sprintf("citation weight %s must be >= 0", t))
		}
	}
	if c.EvidenceCap <= 0 || c.EvidenceCap > 100 {
		errs = append(errs, "evidence_cap must be between 1 and 100")
	}
	if c.TreeStrongFloor < c.TreeModerateFloor {
		errs = append(errs, "tree_strong_floor must be >= tree_moderate_floor")
	}
	if c.ParentMinAge <= 0 || c.ParentMaxAge <= c.ParentMinAge {
		errs = append(errs, "parent_max_age must be > parent_min_age > 0")
	}
	if len(errs) > 0 {
		return eris.Errorf("confidence: config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
