// Package admin holds the human overrides of a resolved tree: rejecting a
// wrong match and promoting a different recorded candidate.
package admin

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lineage-cli/internal/confidence"
	"github.com/sells-group/lineage-cli/internal/gazetteer"
	"github.com/sells-group/lineage-cli/internal/model"
	"github.com/sells-group/lineage-cli/internal/store"
)

var (
	// ErrProtected is returned for positions an override may not touch.
	ErrProtected = eris.New("admin: position is protected")
	// ErrCandidateMismatch is returned when a candidate belongs to another position.
	ErrCandidateMismatch = eris.New("admin: candidate does not belong to this position")
)

// FieldRejectedID is the corrections-log field recording a rejected identifier.
const FieldRejectedID = "rejected_source_id"

// Service applies admin overrides.
type Service struct {
	store   store.Store
	sources confidence.Sources
	confCfg confidence.Config
	places  gazetteer.Lookup
}

// New creates a Service. sources may be nil, in which case promoted
// candidates are resolved without citations or confirmations.
func New(st store.Store, sources confidence.Sources, confCfg confidence.Config, places gazetteer.Lookup) *Service {
	if places == nil {
		places = gazetteer.Default()
	}
	return &Service{store: st, sources: sources, confCfg: confCfg, places: places}
}

// RejectResult reports what a rejection removed.
type RejectResult struct {
	JobID         string `json:"job_id"`
	AscendancyNum int    `json:"ascendancy_number"`
	Source        string `json:"source,omitempty"`
	PersonID      string `json:"person_id,omitempty"`
	Deleted       int    `json:"deleted"`
	// Blacklisted lists every identifier the rejected person was known by.
	Blacklisted []string `json:"blacklisted,omitempty"`
}

type identity struct {
	source   string
	personID string
}

// rejectedIdentities returns the position's own identifier followed by
// the other providers' identifiers carried by the candidate selected for
// it, so a merged person cannot return through a single provider.
func (s *Service) rejectedIdentities(ctx context.Context, a *model.Ancestor) ([]identity, error) {
	var out []identity
	seen := make(map[string]bool)
	add := func(source, id string) {
		if id == "" || seen[id] {
			return
		}
		seen[id] = true
		out = append(out, identity{source: source, personID: id})
	}
	add(a.Source, a.SourcePersonID)
	if a.SourcePersonID == "" {
		return out, nil
	}

	cands, err := s.store.ListSearchCandidates(ctx, a.JobID, a.AscendancyNum)
	if err != nil {
		return nil, eris.Wrap(err, "admin: load search candidates")
	}
	for _, sc := range cands {
		if !sc.Selected || sc.Candidate.IDFor(a.Source) != a.SourcePersonID {
			continue
		}
		providers := make([]string, 0, len(sc.Candidate.SourceIDs))
		for p := range sc.Candidate.SourceIDs {
			providers = append(providers, p)
		}
		slices.Sort(providers)
		for _, p := range providers {
			add(p, sc.Candidate.SourceIDs[p])
		}
	}
	return out, nil
}

// RejectPosition blacklists the position's identifier for the job and
// deletes the position with every position above it. The rejection is
// logged on the child position so the decision stays visible.
func (s *Service) RejectPosition(ctx context.Context, jobID string, asc int, reason string) (*RejectResult, error) {
	if asc < 2 {
		return nil, eris.Wrap(ErrProtected, "admin: the subject cannot be rejected")
	}
	a, err := s.store.GetAncestorByPosition(ctx, jobID, asc)
	if err != nil {
		return nil, eris.Wrap(err, "admin: load position")
	}

	res := &RejectResult{JobID: jobID, AscendancyNum: asc, Source: a.Source, PersonID: a.SourcePersonID}
	ids, err := s.rejectedIdentities(ctx, a)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		if err := s.store.AddRejectedSourceID(ctx, jobID, id.source, id.personID, reason); err != nil {
			return nil, eris.Wrap(err, "admin: blacklist identifier")
		}
		res.Blacklisted = append(res.Blacklisted, id.personID)
	}
	res.Deleted, err = s.store.DeleteSubtree(ctx, jobID, asc)
	if err != nil {
		return nil, eris.Wrap(err, "admin: delete subtree")
	}

	child, err := s.store.GetAncestorByPosition(ctx, jobID, model.Child(asc))
	switch {
	case err == nil:
		entry := model.CorrectionEntry{
			ID:       uuid.New().String(),
			Kind:     model.CorrectionAdmin,
			Field:    FieldRejectedID,
			Before:   a.SourcePersonID,
			Reason:   fmt.Sprintf("rejected %s at position %d (%s); %d positions removed", a.Name, asc, reason, res.Deleted),
			Reversal: "remove the identifier from the blacklist and re-run the traversal",
			At:       time.Now().UTC(),
		}
		patch := model.AncestorPatch{CorrectionsLog: append(slices.Clone(child.CorrectionsLog), entry)}
		if _, err := s.store.UpdateAncestorByPosition(ctx, jobID, child.AscendancyNum, patch); err != nil {
			return nil, eris.Wrap(err, "admin: log rejection")
		}
	case !eris.Is(err, store.ErrNotFound):
		return nil, eris.Wrap(err, "admin: load child position")
	}

	zap.L().Info("admin: position rejected",
		zap.String("job_id", jobID),
		zap.Int("asc", asc),
		zap.String("source", a.Source),
		zap.String("person_id", a.SourcePersonID),
		zap.Int("deleted", res.Deleted),
	)
	return res, nil
}

// PromoteCandidate replaces a position with a search candidate recorded for
// it. The candidate's confidence is re-resolved, every changed field gets a
// reversible entry, and the stale positions above it are removed so the
// next traversal walks the new identity's parents.
func (s *Service) PromoteCandidate(ctx context.Context, jobID string, asc int, candidateID string) (*model.Ancestor, error) {
	sc, err := s.store.GetSearchCandidate(ctx, candidateID)
	if err != nil {
		return nil, eris.Wrap(err, "admin: load candidate")
	}
	if sc.JobID != jobID || sc.AscendancyNum != asc {
		return nil, eris.Wrapf(ErrCandidateMismatch, "candidate %s is for %s/%d", candidateID, sc.JobID, sc.AscendancyNum)
	}

	a, err := s.store.GetAncestorByPosition(ctx, jobID, asc)
	if err != nil {
		return nil, eris.Wrap(err, "admin: load position")
	}
	if a.IsCustomerData() {
		return nil, eris.Wrapf(ErrProtected, "position %d holds customer data", asc)
	}

	rejected, err := s.store.ListRejectedSourceIDs(ctx, jobID)
	if err != nil {
		return nil, eris.Wrap(err, "admin: load blacklist")
	}
	blacklist := model.NewBlacklist(rejected)
	c := sc.Candidate
	if blacklist.Contains(c) {
		return nil, eris.Wrapf(ErrProtected, "candidate %s carries a rejected identifier", candidateID)
	}

	facts := model.KnownFacts{Gender: model.ExpectedGender(asc)}
	if child, err := s.store.GetAncestorByPosition(ctx, jobID, model.Child(asc)); err == nil {
		facts.ChildBirthYear = model.YearOf(child.BirthDate)
	}
	res := confidence.NewResolver(s.confCfg, s.sources, s.places, blacklist).Resolve(ctx, confidence.Input{
		Candidate:   c,
		Facts:       facts,
		ScorerScore: sc.ComputedScore,
	})

	gender := c.Gender
	if gender == model.GenderUnknown {
		gender = model.ExpectedGender(asc)
	}
	changes := []struct{ field, value string }{
		{model.FieldName, c.Name},
		{model.FieldGender, string(gender)},
		{model.FieldBirthDate, c.BirthDate},
		{model.FieldBirthPlace, c.BirthPlace},
		{model.FieldDeathDate, c.DeathDate},
		{model.FieldDeathPlace, c.DeathPlace},
		{model.FieldSource, c.Source},
		{model.FieldSourcePersonID, c.PersonID},
		{model.FieldConfidenceScore, strconv.Itoa(res.Score)},
	}

	notFound := false
	patch := model.AncestorPatch{
		Sources:       c.Sources,
		NotFound:      &notFound,
		EvidenceChain: res.Citations,
	}
	if patch.EvidenceChain == nil {
		patch.EvidenceChain = []model.EvidenceCitation{}
	}
	log := slices.Clone(a.CorrectionsLog)
	now := time.Now().UTC()
	reason := fmt.Sprintf("promoted candidate %s (%s %s)", candidateID, c.Source, c.PersonID)
	for _, ch := range changes {
		before, _ := a.Field(ch.field)
		if before == ch.value {
			continue
		}
		p, ok := model.FieldPatch(ch.field, ch.value)
		if !ok {
			continue
		}
		patch.Merge(p)
		log = append(log, model.CorrectionEntry{
			ID:       uuid.New().String(),
			Kind:     model.CorrectionPromote,
			Field:    ch.field,
			Before:   before,
			After:    ch.value,
			Reason:   reason,
			Reversal: fmt.Sprintf("set %s back to %q", ch.field, before),
			At:       now,
		})
	}
	patch.CorrectionsLog = log

	updated, err := s.store.UpdateAncestorByPosition(ctx, jobID, asc, patch)
	if err != nil {
		return nil, eris.Wrap(err, "admin: update position")
	}
	if err := s.markPromoted(ctx, jobID, asc, candidateID); err != nil {
		return nil, err
	}

	removed := 0
	for _, parent := range []int{model.Father(asc), model.Mother(asc)} {
		n, err := s.store.DeleteSubtree(ctx, jobID, parent)
		if err != nil {
			return nil, eris.Wrapf(err, "admin: delete stale subtree %d", parent)
		}
		removed += n
	}

	zap.L().Info("admin: candidate promoted",
		zap.String("job_id", jobID),
		zap.Int("asc", asc),
		zap.String("candidate_id", candidateID),
		zap.String("person_id", c.PersonID),
		zap.Int("score", updated.ConfidenceScore),
		zap.Int("stale_removed", removed),
	)
	return updated, nil
}

// markPromoted flips the selection in the position's candidate audit.
func (s *Service) markPromoted(ctx context.Context, jobID string, asc int, candidateID string) error {
	cands, err := s.store.ListSearchCandidates(ctx, jobID, asc)
	if err != nil {
		return eris.Wrap(err, "admin: list candidates")
	}
	for i := range cands {
		switch {
		case cands[i].ID == candidateID:
			cands[i].Selected = true
			cands[i].RejectionReason = ""
		case cands[i].Selected:
			cands[i].Selected = false
			cands[i].RejectionReason = "superseded by manual promotion"
		}
	}
	return eris.Wrap(s.store.RecordSearchCandidates(ctx, jobID, asc, cands), "admin: record candidates")
}
