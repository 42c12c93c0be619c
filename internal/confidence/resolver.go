package confidence

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/sells-group/lineage-cli/internal/gazetteer"
	"github.com/sells-group/lineage-cli/internal/model"
	"github.com/sells-group/lineage-cli/internal/source"
)

// Sources is the subset of the adapter registry the resolver consults.
type Sources interface {
	EvidenceProviders() []source.EvidenceProvider
	Confirmers() []source.Confirmer
}

// Input is one chosen candidate to resolve.
type Input struct {
	Candidate   model.Candidate
	Facts       model.KnownFacts
	ScorerScore int
}

// Step records one adjustment for the audit log.
type Step struct {
	Name  string `json:"name"`
	Delta int    `json:"delta"`
	Score int    `json:"score"`
	Note  string `json:"note,omitempty"`
}

// Result is the resolved confidence of a candidate.
type Result struct {
	Score         int                      `json:"score"`
	Level         model.ConfidenceLevel    `json:"level"`
	Citations     []model.EvidenceCitation `json:"citations,omitempty"`
	Confirmations []model.VitalEntry       `json:"confirmations,omitempty"`
	Blacklisted   bool                     `json:"blacklisted,omitempty"`
	Steps         []Step                   `json:"steps"`
}

// Resolver applies evidence, tree-link, multi-source, confirmation and
// blacklist adjustments to a scorer value.
type Resolver struct {
	cfg       Config
	sources   Sources
	places    gazetteer.Lookup
	blacklist model.Blacklist
}

// NewResolver creates a Resolver. sources may be nil, in which case no
// citations or confirmations are fetched.
func NewResolver(cfg Config, sources Sources, places gazetteer.Lookup, blacklist model.Blacklist) *Resolver {
	if places == nil {
		places = gazetteer.Default()
	}
	return &Resolver{cfg: cfg, sources: sources, places: places, blacklist: blacklist}
}

type tally struct {
	score int
	steps []Step
}

// set records a step. Scores are clamped to 0-100 at every step so the
// audit trail shows the values actually carried forward.
func (t *tally) set(name string, score int, note string) {
	score = model.ClampScore(score)
	t.steps = append(t.steps, Step{Name: name, Delta: score - t.score, Score: score, Note: note})
	t.score = score
}

// Resolve computes the final confidence. Provider failures while fetching
// citations or confirmations are logged and skipped.
func (r *Resolver) Resolve(ctx context.Context, in Input) Result {
	c := in.Candidate
	t := &tally{}
	t.set("scorer", model.ClampScore(in.ScorerScore), "")

	res := Result{}

	// Evidence blend.
	res.Citations = r.fetchCitations(ctx, c)
	if len(res.Citations) > 0 {
		ev := EvidenceScore(res.Citations, r.cfg)
		blended := int(math.Round(r.cfg.ScorerShare*float64(t.score) + r.cfg.EvidenceShare*float64(ev)))
		t.set("evidence", blended, fmt.Sprintf("%d citations, evidence score %d", len(res.Citations), ev))
	}

	// Tree-link corroboration.
	if c.TreeLinked {
		r.applyTreeLink(t, c, in.Facts)
	}

	// Multi-source.
	if len(c.Sources) > 1 {
		t.set("multi_source", t.score+r.cfg.MultiSourceBonus, fmt.Sprintf("found by %v", c.Sources))
	}

	// Confirmation sources.
	res.Confirmations = r.confirm(ctx, c)
	for _, e := range res.Confirmations {
		t.set("confirmation", t.score+r.cfg.ConfirmationBonus,
			fmt.Sprintf("%s %s %d %s", e.Source, e.Kind, e.Year, e.District))
	}

	// Blacklist.
	if r.blacklist.Contains(c) {
		res.Blacklisted = true
		t.set("blacklist", 0, "identifier previously rejected")
	}

	res.Score = model.ClampScore(t.score)
	res.Level = model.LevelFor(res.Score)
	res.Steps = t.steps
	return res
}

// applyTreeLink corroborates a provider-recorded parent. The position's
// own facts are used when known; otherwise the child the link was made
// through supplies the expected birth window and place.
func (r *Resolver) applyTreeLink(t *tally, c model.Candidate, facts model.KnownFacts) {
	dateOK := r.treeDateAgrees(c.BirthYear(), facts)

	wantPlace := facts.BirthPlace
	if wantPlace == "" {
		wantPlace = facts.ChildBirthPlace
	}
	placeOK := gazetteer.Compare(r.places, wantPlace, c.BirthPlace) >= gazetteer.MatchAdjacentCounty

	switch {
	case dateOK && placeOK:
		t.set("tree_link", max(t.score+r.cfg.TreeStrongBonus, r.cfg.TreeStrongFloor), "date and place corroborate")
	case dateOK || placeOK:
		t.set("tree_link", max(t.score+r.cfg.TreeModerateBonus, r.cfg.TreeModerateFloor), "partly corroborated")
	case gazetteer.IsForeign(r.places, c.BirthPlace):
		t.set("tree_link", t.score-r.cfg.TreeForeignPenalty, "uncorroborated non-UK tree link")
	}
}

func (r *Resolver) treeDateAgrees(got int, facts model.KnownFacts) bool {
	if got <= 0 {
		return false
	}
	if want := facts.BirthYear(); want > 0 {
		return absInt(want-got) <= r.cfg.TreeYearTolerance
	}
	if facts.ChildBirthYear > 0 {
		gap := facts.ChildBirthYear - got
		return gap >= r.cfg.ParentMinAge && gap <= r.cfg.ParentMaxAge
	}
	if facts.EstimatedBirthYear > 0 {
		return absInt(facts.EstimatedBirthYear-got) <= r.cfg.TreeEstimateTolerance
	}
	return false
}

func absInt(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func (r *Resolver) fetchCitations(ctx context.Context, c model.Candidate) []model.EvidenceCitation {
	if r.sources == nil {
		return nil
	}
	var out []model.EvidenceCitation
	for _, p := range r.sources.EvidenceProviders() {
		id := c.IDFor(p.Name())
		if id == "" {
			continue
		}
		cites, err := p.Evidence(ctx, id)
		if err != nil {
			zap.L().Warn("confidence: evidence fetch failed",
				zap.String("source", p.Name()),
				zap.String("person_id", id),
				zap.Error(err),
			)
			continue
		}
		for _, ct := range cites {
			ct.Type = ClassifyCitation(ct)
			out = append(out, ct)
		}
	}
	return out
}

func (r *Resolver) confirm(ctx context.Context, c model.Candidate) []model.VitalEntry {
	if r.sources == nil || c.Name == "" {
		return nil
	}
	var out []model.VitalEntry
	for _, cf := range r.sources.Confirmers() {
		checks := []struct {
			kind string
			year int
			fn   func(context.Context, string, int) (*model.VitalEntry, error)
		}{
			{"birth", c.BirthYear(), cf.ConfirmBirth},
			{"death", c.DeathYear(), cf.ConfirmDeath},
		}
		for _, chk := range checks {
			if chk.year <= 0 {
				continue
			}
			e, err := chk.fn(ctx, c.Name, chk.year)
			if err != nil {
				zap.L().Warn("confidence: confirmation lookup failed",
					zap.String("source", cf.Name()),
					zap.String("kind", chk.kind),
					zap.Error(err),
				)
				continue
			}
			if e == nil {
				continue
			}
			d := e.Year - chk.year
			if d < 0 {
				d = -d
			}
			if d <= r.cfg.ConfirmationYearTolerance {
				out = append(out, *e)
			}
		}
	}
	return out
}
