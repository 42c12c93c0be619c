package traversal

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/sells-group/lineage-cli/internal/gazetteer"
	"github.com/sells-group/lineage-cli/internal/model"
	"github.com/sells-group/lineage-cli/internal/source"
)

// treeParents fetches the parents the owning provider records for id,
// falling back to a one-generation ancestry call. Parents that fail the
// plausibility filter are dropped and logged against their position.
func (r *run) treeParents(ctx context.Context, asc int, provider, id string, child model.KnownFacts) (map[int]*model.Candidate, map[int][]model.SearchLogEntry) {
	father, mother := model.Father(asc), model.Mother(asc)
	logs := make(map[int][]model.SearchLogEntry)
	shared := func(e model.SearchLogEntry) {
		logs[father] = append(logs[father], e)
		logs[mother] = append(logs[mother], e)
	}

	tw, ok := r.sources.TreeWalker(provider)
	if !ok {
		e := logEntry(PassTree, provider, id, 0)
		e.Note = "tree source unavailable"
		shared(e)
		return nil, logs
	}

	ps, err := tw.Parents(ctx, id)
	e := logEntry(PassTree, provider, id, countParents(ps))
	if err != nil {
		r.log.Warn("traversal: parents lookup failed", zap.String("source", provider), zap.String("person_id", id), zap.Error(err))
		e.Note = err.Error()
	}
	shared(e)

	if ps.Empty() {
		ps = r.ancestryParents(ctx, tw, provider, id, shared)
	}

	out := make(map[int]*model.Candidate, 2)
	for p, c := range map[int]*model.Candidate{father: ps.Father, mother: ps.Mother} {
		if c == nil {
			continue
		}
		cand := *c
		cand.TreeLinked = true
		if reason := r.rejectTreeParent(cand, child); reason != "" {
			fe := logEntry(PassTreeFilter, provider, cand.PersonID, 1)
			fe.Note = fmt.Sprintf("%s discarded: %s", cand.Name, reason)
			logs[p] = append(logs[p], fe)
			r.log.Debug("traversal: tree parent discarded",
				zap.Int("asc", p),
				zap.String("person_id", cand.PersonID),
				zap.String("reason", reason),
			)
			continue
		}
		out[p] = &cand
	}
	return out, logs
}

func (r *run) ancestryParents(ctx context.Context, tw source.TreeWalker, provider, id string, shared func(model.SearchLogEntry)) source.Parents {
	anc, err := tw.Ancestry(ctx, id, 1)
	e := logEntry(PassAncestry, provider, id, len(anc))
	if err != nil {
		r.log.Warn("traversal: ancestry lookup failed", zap.String("source", provider), zap.String("person_id", id), zap.Error(err))
		e.Note = err.Error()
	}
	shared(e)

	var ps source.Parents
	for i := range anc {
		c := anc[i]
		switch {
		case c.Gender == model.GenderMale && ps.Father == nil:
			ps.Father = &c
		case c.Gender == model.GenderFemale && ps.Mother == nil:
			ps.Mother = &c
		}
	}
	return ps
}

// rejectTreeParent returns why a provider-recorded parent cannot be used,
// or "" when it passes.
func (r *run) rejectTreeParent(c model.Candidate, child model.KnownFacts) string {
	if pb, cb := c.BirthYear(), child.BirthYear(); pb > 0 && cb > 0 && !r.scorer.Plausible(pb, cb) {
		return fmt.Sprintf("born %d, implausible for a child born %d", pb, cb)
	}
	if gazetteer.IsForeign(r.places, c.BirthPlace) && !gazetteer.IsUK(r.places, c.DeathPlace) {
		return fmt.Sprintf("born abroad (%s) with no UK record", c.BirthPlace)
	}
	if r.bl.Contains(c) {
		return "blacklisted"
	}
	return ""
}

func countParents(ps source.Parents) int {
	n := 0
	if ps.Father != nil {
		n++
	}
	if ps.Mother != nil {
		n++
	}
	return n
}
