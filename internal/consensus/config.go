// Package consensus reconciles independent reviews of a resolved tree into
// applied corrections and human-facing suggestions.
package consensus

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// MaxDelta is the largest confidence delta a reviewer may propose.
const MaxDelta = 20

// Config holds the agreement policy.
type Config struct {
	// DeltaBound clamps an applied average delta.
	DeltaBound int `mapstructure:"delta_bound" yaml:"delta_bound"`
	// Tolerance bands keyed on the larger delta magnitude.
	SmallDelta      int `mapstructure:"small_delta" yaml:"small_delta"`
	SmallTolerance  int `mapstructure:"small_tolerance" yaml:"small_tolerance"`
	MediumDelta     int `mapstructure:"medium_delta" yaml:"medium_delta"`
	MediumTolerance int `mapstructure:"medium_tolerance" yaml:"medium_tolerance"`
	LargeTolerance  int `mapstructure:"large_tolerance" yaml:"large_tolerance"`

	ReviewerTimeoutSecs int `mapstructure:"reviewer_timeout_secs" yaml:"reviewer_timeout_secs"`
	MaxResponseBytes    int `mapstructure:"max_response_bytes" yaml:"max_response_bytes"`
	// FeedbackLimit caps the undone corrections sent back to reviewers.
	FeedbackLimit int `mapstructure:"feedback_limit" yaml:"feedback_limit"`
}

// DefaultConfig returns the tuned defaults.
func DefaultConfig() Config {
	return Config{
		DeltaBound:          MaxDelta,
		SmallDelta:          5,
		SmallTolerance:      2,
		MediumDelta:         10,
		MediumTolerance:     4,
		LargeTolerance:      6,
		ReviewerTimeoutSecs: 120,
		MaxResponseBytes:    256 << 10,
		FeedbackLimit:       50,
	}
}

// Validate checks the bands are ordered and the bound is in range.
func (c Config) Validate() error {
	var problems []string
	if c.DeltaBound < 1 || c.DeltaBound > MaxDelta {
		problems = append(problems, "delta_bound must be within 1-20")
	}
	if c.SmallDelta < 1 || c.MediumDelta <= c.SmallDelta {
		problems = append(problems, "small_delta must be positive and below medium_delta")
	}
	if c.SmallTolerance < 0 || c.MediumTolerance < c.SmallTolerance || c.LargeTolerance < c.MediumTolerance {
		problems = append(problems, "tolerances must be non-negative and non-decreasing")
	}
	if c.ReviewerTimeoutSecs < 1 {
		problems = append(problems, "reviewer_timeout_secs must be positive")
	}
	if c.MaxResponseBytes < 1024 {
		problems = append(problems, "max_response_bytes must be at least 1024")
	}
	if len(problems) > 0 {
		return eris.Errorf("consensus: config validation failed: %s", strings.Join(problems, "; "))
	}
	return nil
}

func (c Config) timeout() time.Duration {
	return time.Duration(c.ReviewerTimeoutSecs) * time.Second
}
