package traversal

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lineage-cli/internal/confidence"
	"github.com/sells-group/lineage-cli/internal/model"
)

// resolvePosition finds, scores and stores the best match for a position
// that does not hold customer data. It returns the stored ancestor and the
// facts its parents are derived from.
func (r *run) resolvePosition(ctx context.Context, it workItem, existing *model.Ancestor) (*model.Ancestor, model.KnownFacts, error) {
	expected := model.ExpectedGender(it.asc)
	trail := append([]model.SearchLogEntry(nil), it.log...)

	var seed []model.Candidate
	if it.tree != nil && !r.bl.Contains(*it.tree) {
		tc := *it.tree
		tc.Pass = PassTree
		base := r.scorer.Score(tc, it.facts, expected)
		res := r.resolver.Resolve(ctx, confidence.Input{Candidate: tc, Facts: it.facts, ScorerScore: base})
		if res.Score >= r.cfg.AcceptThreshold && !res.Blacklisted {
			trail = append(trail, resolutionEntry(tc, res))
			sr := &searchResult{ranked: []scored{{c: tc, score: base}}}
			if err := r.record(ctx, it.asc, sr, true, res.Score); err != nil {
				return nil, it.facts, eris.Wrapf(err, "traversal: record candidates for %d", it.asc)
			}
			return r.accept(ctx, it, existing, tc, res, trail)
		}
		seed = append(seed, tc)
	}

	sr := r.search(ctx, it.asc, it.facts, seed)
	trail = append(trail, sr.log...)

	best, ok := sr.best()
	var res confidence.Result
	if ok {
		res = r.resolver.Resolve(ctx, confidence.Input{Candidate: best.c, Facts: it.facts, ScorerScore: best.score})
		trail = append(trail, resolutionEntry(best.c, res))
	}
	accepted := ok && res.Score >= r.cfg.AcceptThreshold && !res.Blacklisted
	if err := r.record(ctx, it.asc, sr, accepted, res.Score); err != nil {
		return nil, it.facts, eris.Wrapf(err, "traversal: record candidates for %d", it.asc)
	}
	if accepted {
		return r.accept(ctx, it, existing, best.c, res, trail)
	}

	a := placeholder(r.job.ID, it.asc, res.Score, trail)
	if existing != nil {
		a.ID = existing.ID
		a.CorrectionsLog = existing.CorrectionsLog
	}
	if err := r.save(ctx, a, existing); err != nil {
		return nil, it.facts, err
	}
	r.summary.NotFound++
	r.log.Info("traversal: position not found",
		zap.Int("asc", it.asc),
		zap.String("role", model.RoleLabel(it.asc)),
		zap.Int("best_score", res.Score),
	)
	return a, it.facts, nil
}

// accept stores c at the position.
func (r *run) accept(ctx context.Context, it workItem, existing *model.Ancestor, c model.Candidate, res confidence.Result, trail []model.SearchLogEntry) (*model.Ancestor, model.KnownFacts, error) {
	provider, id := r.treeIdentity(c)
	a := &model.Ancestor{
		JobID:           r.job.ID,
		AscendancyNum:   it.asc,
		Name:            c.Name,
		Gender:          c.Gender,
		BirthDate:       c.BirthDate,
		BirthPlace:      c.BirthPlace,
		DeathDate:       c.DeathDate,
		DeathPlace:      c.DeathPlace,
		ConfidenceScore: res.Score,
		ConfidenceLevel: res.Level,
		Source:          provider,
		SourcePersonID:  id,
		Sources:         c.Sources,
		EvidenceChain:   res.Citations,
		SearchLog:       trail,
	}
	if a.Gender == model.GenderUnknown {
		a.Gender = model.ExpectedGender(it.asc)
	}
	if existing != nil {
		a.ID = existing.ID
		a.CorrectionsLog = existing.CorrectionsLog
	}
	if err := r.save(ctx, a, existing); err != nil {
		return nil, it.facts, err
	}
	if id != "" {
		r.owner[id] = provider
	}
	r.summary.Accepted++
	r.log.Info("traversal: position resolved",
		zap.Int("asc", it.asc),
		zap.String("name", a.Name),
		zap.Int("score", a.ConfidenceScore),
		zap.String("level", string(a.ConfidenceLevel)),
		zap.String("source", provider),
	)

	facts := a.Facts()
	facts.FatherName = c.FatherName
	facts.MotherName = c.MotherName
	return a, facts.Merge(it.facts), nil
}

// enrich links a customer-supplied position to a provider record. Only the
// identifier, sources and blank fields are written; the name and the
// confidence are never touched. A position already linked is left alone.
func (r *run) enrich(ctx context.Context, it workItem, existing *model.Ancestor) (*model.Ancestor, model.KnownFacts, error) {
	facts := existing.Facts().Merge(it.facts)
	if existing.SourcePersonID != "" {
		if _, ok := r.owner[existing.SourcePersonID]; !ok && existing.Source != "" {
			r.owner[existing.SourcePersonID] = existing.Source
		}
		return existing, facts, nil
	}

	sr := r.search(ctx, it.asc, facts)
	best, ok := sr.best()
	var res confidence.Result
	if ok {
		res = r.resolver.Resolve(ctx, confidence.Input{Candidate: best.c, Facts: facts, ScorerScore: best.score})
	}
	linked := ok && res.Score >= r.cfg.EnrichThreshold && !res.Blacklisted
	if err := r.record(ctx, it.asc, sr, linked, res.Score); err != nil {
		return nil, facts, eris.Wrapf(err, "traversal: record candidates for %d", it.asc)
	}
	if !linked {
		r.log.Debug("traversal: no enrichment match", zap.Int("asc", it.asc), zap.Int("best_score", res.Score))
		return existing, facts, nil
	}

	provider, id := r.treeIdentity(best.c)
	patch, corrections := enrichmentPatch(existing, best.c, provider, id)

	entry := resolutionEntry(best.c, res)
	entry.Pass = PassEnrichment
	patch.SearchLog = append(append(append([]model.SearchLogEntry(nil), existing.SearchLog...), sr.log...), entry)
	patch.CorrectionsLog = append(append([]model.CorrectionEntry(nil), existing.CorrectionsLog...), corrections...)

	updated, err := r.store.UpdateAncestorByPosition(ctx, r.job.ID, it.asc, patch)
	if err != nil {
		return nil, facts, eris.Wrapf(err, "traversal: enrich position %d", it.asc)
	}
	r.owner[id] = provider
	r.summary.Enriched++
	r.log.Info("traversal: customer position enriched",
		zap.Int("asc", it.asc),
		zap.String("source", provider),
		zap.String("person_id", id),
		zap.Int("fields", len(corrections)),
	)

	facts = updated.Facts().Merge(it.facts)
	facts.FatherName = firstNonEmpty(facts.FatherName, best.c.FatherName)
	facts.MotherName = firstNonEmpty(facts.MotherName, best.c.MotherName)
	return updated, facts, nil
}

// enrichmentPatch fills the blank fields of a from c and records each
// change as a reversible correction.
func enrichmentPatch(a *model.Ancestor, c model.Candidate, provider, id string) (model.AncestorPatch, []model.CorrectionEntry) {
	now := time.Now().UTC()
	var patch model.AncestorPatch
	var out []model.CorrectionEntry
	note := func(field, before, after string) {
		out = append(out, model.CorrectionEntry{
			ID:     uuid.NewString(),
			Kind:   model.CorrectionEnrich,
			Field:  field,
			Before: before,
			After:  after,
			Reason: fmt.Sprintf("linked to %s %s", provider, id),
			At:     now,
		})
	}
	fill := func(field string, dst **string, have, want string) {
		if have != "" || want == "" {
			return
		}
		v := want
		*dst = &v
		note(field, "", want)
	}

	fill("birth_date", &patch.BirthDate, a.BirthDate, c.BirthDate)
	fill("birth_place", &patch.BirthPlace, a.BirthPlace, c.BirthPlace)
	fill("death_date", &patch.DeathDate, a.DeathDate, c.DeathDate)
	fill("death_place", &patch.DeathPlace, a.DeathPlace, c.DeathPlace)
	if a.Gender == model.GenderUnknown && c.Gender != model.GenderUnknown {
		g := c.Gender
		patch.Gender = &g
		note("gender", "", string(g))
	}

	src, pid := provider, id
	patch.Source = &src
	patch.SourcePersonID = &pid
	patch.Sources = c.Sources
	note("source_person_id", a.SourcePersonID, id)
	return patch, out
}

// placeholder is the record stored for a position with no acceptable match.
func placeholder(jobID string, asc, best int, trail []model.SearchLogEntry) *model.Ancestor {
	return &model.Ancestor{
		JobID:           jobID,
		AscendancyNum:   asc,
		Name:            model.PlaceholderName(asc),
		Gender:          model.ExpectedGender(asc),
		ConfidenceScore: best,
		ConfidenceLevel: model.LevelRejected,
		NotFound:        true,
		SearchLog:       trail,
	}
}

// protectCustomerData reports whether existing must not be overwritten.
func protectCustomerData(existing *model.Ancestor) bool {
	return existing.IsCustomerData()
}

// save writes a, unless the position holds customer data.
func (r *run) save(ctx context.Context, a, existing *model.Ancestor) error {
	if protectCustomerData(existing) {
		r.log.Warn("traversal: refusing to overwrite customer data", zap.Int("asc", a.AscendancyNum))
		*a = *existing
		return nil
	}
	if err := r.store.CreateAncestor(ctx, a); err != nil {
		return eris.Wrapf(err, "traversal: save position %d", a.AscendancyNum)
	}
	return nil
}

// treeIdentity picks the provider and id the position's parents are
// fetched through: the candidate's own source when it can walk trees, else
// the first tree-capable provider that also knows the person.
func (r *run) treeIdentity(c model.Candidate) (string, string) {
	if _, ok := r.sources.TreeWalker(c.Source); ok && c.PersonID != "" {
		return c.Source, c.PersonID
	}
	providers := make([]string, 0, len(c.SourceIDs))
	for p := range c.SourceIDs {
		providers = append(providers, p)
	}
	sort.Strings(providers)
	for _, p := range providers {
		if _, ok := r.sources.TreeWalker(p); ok && c.SourceIDs[p] != "" {
			return p, c.SourceIDs[p]
		}
	}
	return c.Source, c.PersonID
}

// resolutionEntry summarises the confidence steps for the search log.
func resolutionEntry(c model.Candidate, res confidence.Result) model.SearchLogEntry {
	e := logEntry(PassResolution, c.Source, c.Name, 1)
	e.BestScore = res.Score
	note := ""
	for i, s := range res.Steps {
		if i > 0 {
			note += "; "
		}
		note += fmt.Sprintf("%s %+d -> %d", s.Name, s.Delta, s.Score)
	}
	e.Note = note
	return e
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
