// Package scorer grades how well an upstream candidate matches the known
// facts of a tree position.
package scorer

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// Caps is the maximum score each signal channel can contribute.
type Caps struct {
	Surname int `mapstructure:"surname" yaml:"surname"`
	Given   int `mapstructure:"given" yaml:"given"`
	Birth   int `mapstructure:"birth" yaml:"birth"`
	Place   int `mapstructure:"place" yaml:"place"`
	Death   int `mapstructure:"death" yaml:"death"`
	Parents int `mapstructure:"parents" yaml:"parents"`
	Gender  int `mapstructure:"gender" yaml:"gender"`
}

// Sum returns the total addressable score.
func (c Caps) Sum() int {
	return c.Surname + c.Given + c.Birth + c.Place + c.Death + c.Parents + c.Gender
}

// named pairs a table entry with its config key.
type named struct {
	name  string
	value int
}

func (c Caps) fields() []named {
	return []named{
		{"surname", c.Surname},
		{"given", c.Given},
		{"birth", c.Birth},
		{"place", c.Place},
		{"death", c.Death},
		{"parents", c.Parents},
		{"gender", c.Gender},
	}
}

// Weights is the full scoring table. Channel caps switch between two sets
// depending on whether parent names can be compared; penalties and gate
// ceilings are absolute points.
type Weights struct {
	WithParents    Caps `mapstructure:"with_parents" yaml:"with_parents"`
	WithoutParents Caps `mapstructure:"without_parents" yaml:"without_parents"`

	// Penalties.
	BirthFarPenalty       int `mapstructure:"birth_far_penalty" yaml:"birth_far_penalty"`
	DeathFarPenalty       int `mapstructure:"death_far_penalty" yaml:"death_far_penalty"`
	PlaceConflictPenalty  int `mapstructure:"place_conflict_penalty" yaml:"place_conflict_penalty"`
	ForeignPenalty        int `mapstructure:"foreign_penalty" yaml:"foreign_penalty"`
	ParentConflictPenalty int `mapstructure:"parent_conflict_penalty" yaml:"parent_conflict_penalty"`
	GenderPenalty         int `mapstructure:"gender_penalty" yaml:"gender_penalty"`
	ImplausiblePenalty    int `mapstructure:"implausible_penalty" yaml:"implausible_penalty"`

	// Generational plausibility window, in years before the child's birth.
	MinParentAge int `mapstructure:"min_parent_age" yaml:"min_parent_age"`
	MaxParentAge int `mapstructure:"max_parent_age" yaml:"max_parent_age"`

	// Quality gates.
	NoMatchCeiling       int `mapstructure:"no_match_ceiling" yaml:"no_match_ceiling"`
	BirthMismatchCeiling int `mapstructure:"birth_mismatch_ceiling" yaml:"birth_mismatch_ceiling"`
}

// DefaultWeights returns the tuned default table. Both cap sets sum to 100.
func DefaultWeights() Weights {
	return Weights{
		WithParents: Caps{
			Surname: 20,
			Given:   15,
			Birth:   20,
			Place:   15,
			Death:   5,
			Parents: 15,
			Gender:  10,
		},
		WithoutParents: Caps{
			Surname: 25,
			Given:   20,
			Birth:   25,
			Place:   15,
			Death:   5,
			Gender:  10,
		},

		BirthFarPenalty:       15,
		DeathFarPenalty:       5,
		PlaceConflictPenalty:  25,
		ForeignPenalty:        15,
		ParentConflictPenalty: 15,
		GenderPenalty:         40,
		ImplausiblePenalty:    30,

		MinParentAge: 12,
		MaxParentAge: 55,

		NoMatchCeiling:       25,
		BirthMismatchCeiling: 50,
	}
}

// ValidateWeights checks that a weight table is internally consistent.
func ValidateWeights(w Weights) error {
	var errs []string

	sets := []struct {
		name string
		caps Caps
	}{
		{"with_parents", w.WithParents},
		{"without_parents", w.WithoutParents},
	}
	for _, set := range sets {
		for _, f := range set.caps.fields() {
			if f.value < 0 {
				errs = append(errs, fmt.Sprintf("%s.%s must be >= 0", set.name, f.name))
			}
		}
		if sum := set.caps.Sum(); sum < 90 || sum > 110 {
			errs = append(errs, fmt.Sprintf("%s caps should sum to about 100, got %d", set.name, sum))
		}
	}
	if w.WithoutParents.Parents != 0 {
		errs = append(errs, "without_parents.parents must be 0")
	}

	penalties := []named{
		{"birth_far_penalty", w.BirthFarPenalty},
		{"death_far_penalty", w.DeathFarPenalty},
		{"place_conflict_penalty", w.PlaceConflictPenalty},
		{"foreign_penalty", w.ForeignPenalty},
		{"parent_conflict_penalty", w.ParentConflictPenalty},
		{"gender_penalty", w.GenderPenalty},
		{"implausible_penalty", w.ImplausiblePenalty},
	}
	for _, p := range penalties {
		if p.value < 0 {
			errs = append(errs, fmt.Sprintf("%s must be >= 0", p.name))
		}
	}

	if w.MinParentAge <= 0 {
		errs = append(errs, "min_parent_age must be > 0")
	}
	if w.MaxParentAge <= w.MinParentAge {
		errs = append(errs, "max_parent_age must be > min_parent_age")
	}

	if w.NoMatchCeiling < 0 || w.NoMatchCeiling > 100 {
		errs = append(errs, "no_match_ceiling must be between 0 and 100")
	}
	if w.BirthMismatchCeiling < w.NoMatchCeiling || w.BirthMismatchCeiling > 100 {
		errs = append(errs, "birth_mismatch_ceiling must be between no_match_ceiling and 100")
	}

	if len(errs) > 0 {
		return eris.Errorf("scorer: weights validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
