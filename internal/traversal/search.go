package traversal

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/lineage-cli/internal/merge"
	"github.com/sells-group/lineage-cli/internal/metrics"
	"github.com/sells-group/lineage-cli/internal/model"
	"github.com/sells-group/lineage-cli/internal/names"
	"github.com/sells-group/lineage-cli/internal/source"
)

// scored is a candidate with its scorer value.
type scored struct {
	c     model.Candidate
	score int
}

// searchResult is the outcome of the search passes for one position.
type searchResult struct {
	ranked      []scored
	blacklisted []model.Candidate
	log         []model.SearchLogEntry
}

func (s *searchResult) best() (scored, bool) {
	if len(s.ranked) == 0 {
		return scored{}, false
	}
	return s.ranked[0], true
}

// search runs the primary passes against the first searcher, then the
// supplementary adapters when too few viable candidates were found. seed
// lists are merged ahead of the search results.
func (r *run) search(ctx context.Context, asc int, facts model.KnownFacts, seed ...[]model.Candidate) *searchResult {
	res := &searchResult{}
	searchers := r.sources.Searchers()
	if len(searchers) == 0 || facts.Empty() {
		res.ranked = r.rank(merge.Merge(seed...), facts, asc)
		return res
	}
	primary, rest := searchers[0], searchers[1:]
	expected := model.ExpectedGender(asc)
	lists := append([][]model.Candidate(nil), seed...)

	for _, st := range Strategies {
		queries := st.Build(facts, r.cfg)
		if len(queries) == 0 {
			continue
		}
		var found []model.Candidate
		for _, q := range queries {
			found = append(found, r.runQuery(ctx, res, primary, st.Name, q, facts, expected)...)
		}
		lists = append(lists, found)

		strong := 0
		for _, c := range found {
			if r.scorer.Score(c, facts, expected) >= r.cfg.ShortCircuitScore {
				strong++
			}
		}
		if strong == 1 {
			r.log.Debug("traversal: single strong match, skipping remaining passes",
				zap.Int("asc", asc),
				zap.String("pass", st.Name),
			)
			break
		}
	}

	if len(rest) > 0 && r.viable(merge.Merge(lists...), facts, expected) < r.cfg.MinViableCandidates {
		for _, s := range rest {
			for _, q := range supplementaryQueries(facts, r.cfg) {
				lists = append(lists, r.runQuery(ctx, res, s, PassSupplement, q, facts, expected))
			}
		}
	}

	res.ranked = r.rank(merge.Merge(lists...), facts, asc)
	return res
}

// runQuery executes one query, tags and filters the results and appends
// the pass to the log. Provider errors are logged and yield no candidates.
func (r *run) runQuery(ctx context.Context, res *searchResult, s source.Searcher, pass string, q source.Query, facts model.KnownFacts, expected model.Gender) []model.Candidate {
	entry := logEntry(pass, s.Name(), q.String(), 0)
	found, err := s.Search(ctx, q)
	if err != nil {
		r.log.Warn("traversal: search failed",
			zap.String("source", s.Name()),
			zap.String("pass", pass),
			zap.Error(err),
		)
		entry.Note = err.Error()
		res.log = append(res.log, entry)
		metrics.RecordPass(pass, 0)
		return nil
	}
	for i := range found {
		found[i].Pass = pass
		found[i].Query = entry.Query
	}
	kept := merge.Exclude(found, r.bl)
	var dropped *model.SearchLogEntry
	if n := len(found) - len(kept); n > 0 {
		ids := make([]string, 0, n)
		for _, c := range found {
			if r.bl.Contains(c) {
				res.blacklisted = append(res.blacklisted, c)
				ids = append(ids, c.PersonID)
			}
		}
		entry.Note = fmt.Sprintf("%d blacklisted", n)
		e := logEntry(PassBlacklisted, s.Name(), entry.Query, n)
		e.Note = "excluded " + strings.Join(ids, ", ")
		dropped = &e
	}
	entry.ResultCount = len(found)
	for _, c := range kept {
		if sc := r.scorer.Score(c, facts, expected); sc > entry.BestScore {
			entry.BestScore = sc
		}
	}
	res.log = append(res.log, entry)
	if dropped != nil {
		res.log = append(res.log, *dropped)
	}
	metrics.RecordPass(pass, len(found))
	return kept
}

func (r *run) viable(cands []model.Candidate, facts model.KnownFacts, expected model.Gender) int {
	n := 0
	for _, c := range cands {
		if r.scorer.Score(c, facts, expected) >= r.cfg.AcceptThreshold {
			n++
		}
	}
	return n
}

// rank scores and sorts candidates, best first. Ties prefer more sources,
// then the provider identifier for a stable order.
func (r *run) rank(cands []model.Candidate, facts model.KnownFacts, asc int) []scored {
	expected := model.ExpectedGender(asc)
	out := make([]scored, 0, len(cands))
	for _, c := range cands {
		out = append(out, scored{c: c, score: r.scorer.Score(c, facts, expected)})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].score != out[j].score {
			return out[i].score > out[j].score
		}
		if len(out[i].c.Sources) != len(out[j].c.Sources) {
			return len(out[i].c.Sources) > len(out[j].c.Sources)
		}
		return out[i].c.PersonID < out[j].c.PersonID
	})
	return out
}

// record stores the audit trail of every candidate considered for asc.
func (r *run) record(ctx context.Context, asc int, res *searchResult, selected bool, resolved int) error {
	rows := make([]model.SearchCandidate, 0, len(res.ranked)+len(res.blacklisted))
	for i, sc := range res.ranked {
		row := model.SearchCandidate{Candidate: sc.c, ComputedScore: sc.score}
		switch {
		case i == 0 && selected:
			row.Selected = true
		case i == 0:
			row.RejectionReason = fmt.Sprintf("resolved confidence %d below threshold %d", resolved, r.cfg.AcceptThreshold)
		default:
			row.RejectionReason = "outscored"
		}
		rows = append(rows, row)
	}
	for _, c := range res.blacklisted {
		rows = append(rows, model.SearchCandidate{Candidate: c, RejectionReason: "blacklisted"})
	}
	return r.store.RecordSearchCandidates(ctx, r.job.ID, asc, rows)
}

func surnameOf(name string) string {
	return names.Parse(name).Surname
}
