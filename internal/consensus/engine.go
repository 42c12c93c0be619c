package consensus

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/lineage-cli/internal/gazetteer"
	"github.com/sells-group/lineage-cli/internal/metrics"
	"github.com/sells-group/lineage-cli/internal/model"
	"github.com/sells-group/lineage-cli/internal/store"
)

// Decision is the outcome of reconciling one proposal.
type Decision string

const (
	DecisionApplied      Decision = "applied"
	DecisionSuggested    Decision = "suggested"
	DecisionSingleSource Decision = "single_source"
	DecisionConflict     Decision = "conflict"
	DecisionFlagged      Decision = "flagged"
)

// Suggestion is a proposal left for a human to approve.
type Suggestion struct {
	AscendancyNum int               `json:"ascendancy_number"`
	Kind          string            `json:"kind"` // delta, correction, issue
	Field         string            `json:"field,omitempty"`
	Value         string            `json:"value,omitempty"`
	Values        map[string]string `json:"values,omitempty"`
	Deltas        map[string]int    `json:"deltas,omitempty"`
	Description   string            `json:"description,omitempty"`
	Decision      Decision          `json:"decision"`
	Reason        string            `json:"reason,omitempty"`
}

// Applied is one correction written to a position.
type Applied struct {
	AscendancyNum int                   `json:"ascendancy_number"`
	Entry         model.CorrectionEntry `json:"entry"`
}

// Report summarizes a consensus pass.
type Report struct {
	JobID       string            `json:"job_id"`
	Reviewers   []string          `json:"reviewers"`
	Failures    map[string]string `json:"failures,omitempty"`
	Reviewed    int               `json:"reviewed"`
	Applied     []Applied         `json:"applied"`
	Suggestions []Suggestion      `json:"suggestions"`
}

// Engine runs consensus passes and undoes logged corrections.
type Engine struct {
	cfg        Config
	store      store.Store
	confirmers Confirmers
	places     gazetteer.Lookup
	reviewers  []Reviewer

	mu     sync.Mutex
	active map[string]bool
}

// New creates an Engine. confirmers may be nil, in which case no correction
// is ever corroborated.
func New(cfg Config, st store.Store, confirmers Confirmers, places gazetteer.Lookup, reviewers ...Reviewer) *Engine {
	if places == nil {
		places = gazetteer.Default()
	}
	return &Engine{
		cfg:        cfg,
		store:      st,
		confirmers: confirmers,
		places:     places,
		reviewers:  reviewers,
		active:     make(map[string]bool),
	}
}

func (e *Engine) acquire(jobID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active[jobID] {
		return false
	}
	e.active[jobID] = true
	return true
}

func (e *Engine) release(jobID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.active, jobID)
}

// Run reviews every resolved position of a job. A second call for the same
// job while one is in flight returns ErrAlreadyRunning.
func (e *Engine) Run(ctx context.Context, jobID string) (*Report, error) {
	if !e.acquire(jobID) {
		return nil, eris.Wrapf(ErrAlreadyRunning, "job %s", jobID)
	}
	defer e.release(jobID)

	job, err := e.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, eris.Wrap(err, "consensus: load job")
	}
	if job.Status == model.JobStatusRunning {
		return nil, eris.Errorf("consensus: job %s is still being traversed", jobID)
	}
	if err := e.store.UpdateJobStatus(ctx, jobID, model.JobStatusReviewing, ""); err != nil {
		return nil, eris.Wrap(err, "consensus: mark reviewing")
	}

	report, err := e.review(ctx, jobID)

	msg := job.Error
	if err != nil {
		msg = err.Error()
	}
	if uerr := e.store.UpdateJobStatus(ctx, jobID, job.Status, msg); uerr != nil {
		zap.L().Error("consensus: failed to restore job status",
			zap.String("job_id", jobID),
			zap.Error(uerr),
		)
	}
	return report, err
}

func (e *Engine) review(ctx context.Context, jobID string) (*Report, error) {
	log := zap.L().With(zap.String("job_id", jobID))
	report := &Report{JobID: jobID, Failures: make(map[string]string)}

	ancestors, err := e.store.ListAncestors(ctx, jobID)
	if err != nil {
		return report, eris.Wrap(err, "consensus: list positions")
	}

	payload := Payload{JobID: jobID, Stats: Stats{Levels: make(map[model.ConfidenceLevel]int)}}
	var positions []model.Ancestor
	for _, a := range ancestors {
		payload.Stats.Positions++
		if a.NotFound {
			payload.Stats.NotFound++
		} else {
			payload.Stats.Levels[a.ConfidenceLevel]++
		}
		switch {
		case a.AscendancyNum == 1 || a.IsCustomerData():
			payload.Context = append(payload.Context, factsOf(a))
		case a.NotFound:
			// placeholders have nothing to review
		default:
			positions = append(positions, a)
			payload.Positions = append(payload.Positions, factsOf(a))
		}
	}
	if len(positions) == 0 {
		log.Info("consensus: no reviewable positions")
		return report, nil
	}

	payload.HistoricalFeedback, err = e.store.ListFeedback(ctx, e.cfg.FeedbackLimit)
	if err != nil {
		return report, eris.Wrap(err, "consensus: load feedback")
	}

	reviews := e.collect(ctx, payload, report)
	if len(reviews) == 0 {
		return report, eris.Wrapf(ErrNoReviews, "job %s", jobID)
	}

	for _, a := range positions {
		out := e.reconcile(ctx, a, reviews)
		report.Suggestions = append(report.Suggestions, out.suggestions...)
		if len(out.entries) == 0 {
			continue
		}
		out.patch.CorrectionsLog = append(slices.Clone(a.CorrectionsLog), out.entries...)
		if _, err := e.store.UpdateAncestorByPosition(ctx, jobID, a.AscendancyNum, out.patch); err != nil {
			return report, eris.Wrapf(err, "consensus: apply position %d", a.AscendancyNum)
		}
		for _, entry := range out.entries {
			report.Applied = append(report.Applied, Applied{AscendancyNum: a.AscendancyNum, Entry: entry})
			log.Info("consensus: correction applied",
				zap.Int("asc", a.AscendancyNum),
				zap.String("field", entry.Field),
				zap.String("before", entry.Before),
				zap.String("after", entry.After),
			)
		}
	}
	report.Reviewed = len(positions)

	log.Info("consensus: review complete",
		zap.Strings("reviewers", report.Reviewers),
		zap.Int("positions", report.Reviewed),
		zap.Int("applied", len(report.Applied)),
		zap.Int("suggestions", len(report.Suggestions)),
	)
	return report, nil
}

// collect runs every reviewer concurrently on the same payload. A failed
// reviewer is recorded and never cancels the others.
func (e *Engine) collect(ctx context.Context, p Payload, report *Report) []*Review {
	results := make([]*Review, len(e.reviewers))
	errs := make([]error, len(e.reviewers))

	var g errgroup.Group
	for i, r := range e.reviewers {
		g.Go(func() error {
			rctx, cancel := context.WithTimeout(ctx, e.cfg.timeout())
			defer cancel()
			rev, err := r.Review(rctx, p)
			if err == nil && rev == nil {
				err = eris.Wrap(ErrInvalidReview, "empty review")
			}
			results[i], errs[i] = rev, err
			return nil
		})
	}
	_ = g.Wait()

	var out []*Review
	for i, r := range e.reviewers {
		if errs[i] != nil {
			metrics.RecordReviewerFailure(r.Name())
			report.Failures[r.Name()] = errs[i].Error()
			zap.L().Warn("consensus: reviewer failed",
				zap.String("job_id", p.JobID),
				zap.String("reviewer", r.Name()),
				zap.Error(errs[i]),
			)
			continue
		}
		results[i].Reviewer = r.Name()
		report.Reviewers = append(report.Reviewers, r.Name())
		out = append(out, results[i])
	}
	return out
}

type verdict struct {
	reviewer string
	review   PositionReview
}

type outcome struct {
	patch       model.AncestorPatch
	entries     []model.CorrectionEntry
	suggestions []Suggestion
}

func (e *Engine) reconcile(ctx context.Context, a model.Ancestor, reviews []*Review) outcome {
	var out outcome
	var verdicts []verdict
	for _, r := range reviews {
		if pr, ok := r.Position(a.AscendancyNum); ok {
			verdicts = append(verdicts, verdict{reviewer: r.Reviewer, review: pr})
		}
	}
	if len(verdicts) == 0 {
		return out
	}
	cur := a
	e.reconcileDelta(&out, &cur, verdicts)
	e.reconcileCorrections(ctx, &out, &cur, verdicts)
	return out
}

func (e *Engine) reconcileDelta(out *outcome, cur *model.Ancestor, verdicts []verdict) {
	deltas := make(map[string]int, len(verdicts))
	nonzero := 0
	for _, v := range verdicts {
		deltas[v.reviewer] = v.review.ConfidenceDelta
		if v.review.ConfidenceDelta != 0 {
			nonzero++
		}
	}
	if nonzero == 0 {
		return
	}

	if avg, ok := e.agreeAll(verdicts); ok {
		after := model.ClampScore(cur.ConfidenceScore + avg)
		if e.apply(out, cur, model.FieldConfidenceScore, strconv.Itoa(after),
			fmt.Sprintf("reviewers agreed on %+d", avg)) {
			metrics.RecordConsensus("delta", string(DecisionApplied))
		}
		return
	}

	s := Suggestion{
		AscendancyNum: cur.AscendancyNum,
		Kind:          "delta",
		Deltas:        deltas,
		Decision:      DecisionSuggested,
		Reason:        "reviewer deltas do not agree",
	}
	if nonzero == 1 {
		s.Decision = DecisionSingleSource
		s.Reason = "only one reviewer proposed a change"
	}
	out.suggestions = append(out.suggestions, s)
	metrics.RecordConsensus("delta", string(s.Decision))
}

// agreeAll requires every pair of verdicts to agree and returns their
// rounded mean.
func (e *Engine) agreeAll(verdicts []verdict) (int, bool) {
	if len(verdicts) < 2 {
		return 0, false
	}
	sum := 0
	for i, v := range verdicts {
		sum += v.review.ConfidenceDelta
		for _, w := range verdicts[i+1:] {
			if _, ok := AgreeDelta(v.review.ConfidenceDelta, w.review.ConfidenceDelta, e.cfg); !ok {
				return 0, false
			}
		}
	}
	avg := int(math.Round(float64(sum) / float64(len(verdicts))))
	return max(-e.cfg.DeltaBound, min(e.cfg.DeltaBound, avg)), true
}

type proposal struct {
	reviewer   string
	correction Correction
}

func (e *Engine) reconcileCorrections(ctx context.Context, out *outcome, cur *model.Ancestor, verdicts []verdict) {
	byField := make(map[string][]proposal)
	for _, v := range verdicts {
		seen := make(map[string]bool)
		for _, is := range v.review.Issues {
			c, ok := ParseCorrection(is.SuggestedCorrection)
			if !ok {
				if is.Description != "" || is.SuggestedCorrection != "" {
					s := Suggestion{
						AscendancyNum: cur.AscendancyNum,
						Kind:          "issue",
						Field:         is.Field,
						Description:   is.Description,
						Decision:      DecisionFlagged,
					}
					if is.SuggestedCorrection != "" {
						s.Values = map[string]string{v.reviewer: is.SuggestedCorrection}
					}
					out.suggestions = append(out.suggestions, s)
				}
				continue
			}
			if seen[c.Field] {
				continue
			}
			seen[c.Field] = true
			byField[c.Field] = append(byField[c.Field], proposal{reviewer: v.reviewer, correction: c})
		}
	}

	fields := make([]string, 0, len(byField))
	for f := range byField {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	for _, field := range fields {
		props := byField[field]
		values := make(map[string]string, len(props))
		for _, p := range props {
			values[p.reviewer] = p.correction.Value
		}
		s := Suggestion{AscendancyNum: cur.AscendancyNum, Kind: "correction", Field: field, Values: values}

		if len(props) == 1 {
			s.Value = props[0].correction.Value
			s.Decision = DecisionSingleSource
			s.Reason = "only " + props[0].reviewer + " proposed it"
			e.suggest(out, s)
			continue
		}

		agreed, ok := props[0].correction, true
		for _, p := range props[1:] {
			if !EquivalentCorrections(props[0].correction, p.correction) {
				ok = false
				break
			}
			agreed = preferred(agreed, p.correction)
		}
		if !ok {
			s.Decision = DecisionConflict
			s.Reason = "reviewers proposed different values"
			e.suggest(out, s)
			continue
		}

		current, _ := cur.Field(field)
		value := correctedValue(current, agreed)
		if value == current {
			continue
		}
		src, corroborated := corroborate(ctx, e.confirmers, e.places, *cur, agreed)
		if !corroborated {
			s.Value = value
			s.Decision = DecisionSuggested
			s.Reason = "reviewers agree but no confirmation source records it"
			e.suggest(out, s)
			continue
		}
		if e.apply(out, cur, field, value, "reviewers agreed; corroborated by "+src) {
			metrics.RecordConsensus("correction", string(DecisionApplied))
		}
	}
}

func (e *Engine) suggest(out *outcome, s Suggestion) {
	out.suggestions = append(out.suggestions, s)
	metrics.RecordConsensus(s.Kind, string(s.Decision))
}

// apply sets field on cur, folds the change into the outcome's patch and
// logs a reversible entry.
func (e *Engine) apply(out *outcome, cur *model.Ancestor, field, value, reason string) bool {
	before, _ := cur.Field(field)
	if before == value {
		return false
	}
	p, ok := model.FieldPatch(field, value)
	if !ok {
		return false
	}
	p.Apply(cur)
	out.patch.Merge(p)
	out.entries = append(out.entries, model.CorrectionEntry{
		ID:       uuid.New().String(),
		Kind:     model.CorrectionConsensus,
		Field:    field,
		Before:   before,
		After:    value,
		Reason:   reason,
		Reversal: fmt.Sprintf("set %s back to %q", field, before),
		At:       time.Now().UTC(),
	})
	return true
}
