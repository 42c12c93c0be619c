package consensus

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"

	"github.com/sells-group/lineage-cli/internal/model"
)

var (
	// ErrAlreadyRunning is returned when a job is already under review.
	ErrAlreadyRunning = eris.New("consensus: job already under review")
	// ErrInvalidReview marks a reviewer response that failed parsing or validation.
	ErrInvalidReview = eris.New("consensus: invalid review")
	// ErrNoReviews is returned when every reviewer failed.
	ErrNoReviews = eris.New("consensus: no usable reviews")
	// ErrNotReversible is returned when a logged correction cannot be undone.
	ErrNotReversible = eris.New("consensus: correction not reversible")
)

// Reviewer produces one independent review of a resolved tree.
type Reviewer interface {
	Name() string
	Review(ctx context.Context, p Payload) (*Review, error)
}

// PositionFacts is what a reviewer sees of one position.
type PositionFacts struct {
	AscendancyNum   int                      `json:"ascendancy_number"`
	Role            string                   `json:"role"`
	Name            string                   `json:"name"`
	Gender          model.Gender             `json:"gender,omitempty"`
	BirthDate       string                   `json:"birth_date,omitempty"`
	BirthPlace      string                   `json:"birth_place,omitempty"`
	DeathDate       string                   `json:"death_date,omitempty"`
	DeathPlace      string                   `json:"death_place,omitempty"`
	ConfidenceScore int                      `json:"confidence_score"`
	ConfidenceLevel model.ConfidenceLevel    `json:"confidence_level"`
	Sources         []string                 `json:"sources,omitempty"`
	Evidence        []model.EvidenceCitation `json:"evidence,omitempty"`
}

func factsOf(a model.Ancestor) PositionFacts {
	return PositionFacts{
		AscendancyNum:   a.AscendancyNum,
		Role:            model.RoleLabel(a.AscendancyNum),
		Name:            a.Name,
		Gender:          a.Gender,
		BirthDate:       a.BirthDate,
		BirthPlace:      a.BirthPlace,
		DeathDate:       a.DeathDate,
		DeathPlace:      a.DeathPlace,
		ConfidenceScore: a.ConfidenceScore,
		ConfidenceLevel: a.ConfidenceLevel,
		Sources:         a.Sources,
		Evidence:        a.EvidenceChain,
	}
}

// Stats summarizes the tree for the reviewers.
type Stats struct {
	Positions int                           `json:"positions"`
	NotFound  int                           `json:"not_found"`
	Levels    map[model.ConfidenceLevel]int `json:"levels"`
}

// Payload is the identical input every reviewer receives. Context positions
// (the subject and customer-supplied facts) are read-only.
type Payload struct {
	JobID              string           `json:"job_id"`
	Positions          []PositionFacts  `json:"positions"`
	Context            []PositionFacts  `json:"context,omitempty"`
	Stats              Stats            `json:"stats"`
	HistoricalFeedback []model.Feedback `json:"historical_feedback,omitempty"`
}

// Issue is one problem a reviewer flagged on a position.
type Issue struct {
	Field               string `json:"field,omitempty" validate:"max=64"`
	Description         string `json:"description" validate:"max=2000"`
	SuggestedCorrection string `json:"suggested_correction,omitempty" validate:"max=500"`
}

// PositionReview is a reviewer's verdict on one position.
type PositionReview struct {
	AscendancyNum   int     `json:"ascendancy_number" validate:"required,gte=2"`
	ConfidenceDelta int     `json:"confidence_delta" validate:"gte=-20,lte=20"`
	Issues          []Issue `json:"issues" validate:"max=20,dive"`
}

// Review is one reviewer's structured output.
type Review struct {
	Reviewer  string           `json:"-"`
	Positions []PositionReview `json:"positions" validate:"max=1024,dive"`
}

// Position returns the review of asc, if the reviewer covered it.
func (r *Review) Position(asc int) (PositionReview, bool) {
	for _, p := range r.Positions {
		if p.AscendancyNum == asc {
			return p, true
		}
	}
	return PositionReview{}, false
}

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// parseReview extracts the JSON object from a reviewer's reply and checks it
// against the review schema. Anything oversized, malformed or out of range
// is rejected whole.
func parseReview(text string, maxBytes int) (*Review, error) {
	if maxBytes > 0 && len(text) > maxBytes {
		return nil, eris.Wrapf(ErrInvalidReview, "response of %d bytes exceeds %d", len(text), maxBytes)
	}
	start, end := strings.Index(text, "{"), strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, eris.Wrap(ErrInvalidReview, "no JSON object in response")
	}

	dec := json.NewDecoder(strings.NewReader(text[start : end+1]))
	dec.DisallowUnknownFields()
	var r Review
	if err := dec.Decode(&r); err != nil {
		return nil, eris.Wrapf(ErrInvalidReview, "decode: %v", err)
	}
	if err := validate.Struct(&r); err != nil {
		return nil, eris.Wrapf(ErrInvalidReview, "validate: %v", err)
	}

	seen := make(map[int]bool, len(r.Positions))
	for _, p := range r.Positions {
		if seen[p.AscendancyNum] {
			return nil, eris.Wrapf(ErrInvalidReview, "position %d reviewed twice", p.AscendancyNum)
		}
		seen[p.AscendancyNum] = true
	}
	return &r, nil
}
