package traversal

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lineage-cli/internal/admin"
	"github.com/sells-group/lineage-cli/internal/confidence"
	"github.com/sells-group/lineage-cli/internal/model"
	"github.com/sells-group/lineage-cli/internal/source"
)

func johnSmith(id string) model.Candidate {
	return model.Candidate{
		PersonID:   id,
		Name:       "John Smith",
		Gender:     model.GenderMale,
		BirthDate:  "1920",
		BirthPlace: "Derby",
	}
}

func subjectRequest(depth int) Request {
	return Request{
		Depth: depth,
		Known: map[int]model.KnownFacts{
			1: {Name: "John Smith", BirthDate: "1920", BirthPlace: "Derby"},
		},
	}
}

func TestRun_CustomerPositionsAndPlaceholder(t *testing.T) {
	fs := newProvider("familysearch", source.CapSearch|source.CapTree)
	h := newHarness(t, fs)

	sum, err := h.ctl.Run(context.Background(), Request{
		Depth: 3,
		Known: map[int]model.KnownFacts{
			1: {Name: "Alice Brown", BirthDate: "1959", BirthPlace: "Derby"},
			2: {Name: "George Brown"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Processed)
	assert.Equal(t, 2, sum.Protected)
	assert.Equal(t, 1, sum.NotFound)

	got := h.positions(t, sum.JobID)
	require.Len(t, got, 3)

	assert.Equal(t, model.LevelCustomerData, got[1].ConfidenceLevel)
	assert.Equal(t, "Alice Brown", got[1].Name)
	assert.Equal(t, model.LevelCustomerData, got[2].ConfidenceLevel)
	assert.Equal(t, "George Brown", got[2].Name)

	mother := got[3]
	assert.True(t, mother.NotFound)
	assert.Equal(t, "Mother (not found)", mother.Name)
	assert.Equal(t, model.LevelRejected, mother.ConfidenceLevel)
	assert.Empty(t, mother.SourcePersonID)

	for asc := 4; asc <= 7; asc++ {
		_, ok := got[asc]
		assert.False(t, ok, "position %d should not be created", asc)
	}

	job, err := h.store.GetJob(context.Background(), sum.JobID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusComplete, job.Status)
	assert.Equal(t, 3, job.Processed)
}

func TestRun_NoSearchAdapters(t *testing.T) {
	h := newHarness(t)

	sum, err := h.ctl.Run(context.Background(), Request{
		Depth: 3,
		Known: map[int]model.KnownFacts{
			1: {Name: "Alice Brown", BirthDate: "1959"},
			2: {Name: "George Brown"},
		},
	})
	require.ErrorIs(t, err, ErrNoSearchAdapters)
	require.NotNil(t, sum)

	job, err := h.store.GetJob(context.Background(), sum.JobID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusFailed, job.Status)
	assert.Contains(t, job.Error, "no search adapters")

	got := h.positions(t, sum.JobID)
	require.Len(t, got, 2)
	assert.Equal(t, model.LevelCustomerData, got[1].ConfidenceLevel)
	assert.Equal(t, model.LevelCustomerData, got[2].ConfidenceLevel)
}

func TestRun_RequiresSubject(t *testing.T) {
	h := newHarness(t, newProvider("familysearch", source.CapSearch))
	_, err := h.ctl.Run(context.Background(), Request{Depth: 2, Known: map[int]model.KnownFacts{2: {Name: "George Brown"}}})
	require.Error(t, err)
}

func TestRun_EnrichesCustomerDataWithoutChangingIt(t *testing.T) {
	match := johnSmith("FS-1")
	match.Name = "John William Smith"
	match.DeathDate = "1990"
	match.DeathPlace = "Nottingham"
	fs := newProvider("familysearch", source.CapSearch|source.CapTree, match)
	h := newHarness(t, fs)
	ctx := context.Background()

	sum, err := h.ctl.Run(ctx, subjectRequest(1))
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Enriched)

	subject, err := h.store.GetAncestorByPosition(ctx, sum.JobID, 1)
	require.NoError(t, err)
	assert.Equal(t, "John Smith", subject.Name)
	assert.Equal(t, 100, subject.ConfidenceScore)
	assert.Equal(t, model.LevelCustomerData, subject.ConfidenceLevel)
	assert.Equal(t, "FS-1", subject.SourcePersonID)
	assert.Equal(t, "familysearch", subject.Source)
	assert.Equal(t, "1990", subject.DeathDate)
	assert.Equal(t, "Nottingham", subject.DeathPlace)
	assert.Equal(t, "1920", subject.BirthDate)
	assert.Equal(t, model.GenderMale, subject.Gender)

	var fields []string
	for _, c := range subject.CorrectionsLog {
		assert.Equal(t, model.CorrectionEnrich, c.Kind)
		assert.Empty(t, c.Before)
		fields = append(fields, c.Field)
	}
	assert.ElementsMatch(t, []string{"death_date", "death_place", "gender", "source_person_id"}, fields)

	// A second run over the same job changes nothing.
	searches := fs.searches
	req := subjectRequest(1)
	req.JobID = sum.JobID
	sum2, err := h.ctl.Run(ctx, req)
	require.NoError(t, err)
	assert.Zero(t, sum2.Enriched)
	assert.Equal(t, searches, fs.searches)

	again, err := h.store.GetAncestorByPosition(ctx, sum.JobID, 1)
	require.NoError(t, err)
	assert.Equal(t, subject.CorrectionsLog, again.CorrectionsLog)
	assert.Equal(t, subject.DeathDate, again.DeathDate)
	assert.Equal(t, "John Smith", again.Name)
}

func TestRun_BlacklistedIdentifierNeverSelected(t *testing.T) {
	fs := newProvider("familysearch", source.CapSearch|source.CapTree, johnSmith("FS-BAD"))
	h := newHarness(t, fs)
	ctx := context.Background()

	job, err := h.store.CreateJob(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, h.store.AddRejectedSourceID(ctx, job.ID, "familysearch", "FS-BAD", "wrong person"))

	req := subjectRequest(1)
	req.JobID = job.ID
	_, err = h.ctl.Run(ctx, req)
	require.NoError(t, err)

	subject, err := h.store.GetAncestorByPosition(ctx, job.ID, 1)
	require.NoError(t, err)
	assert.Empty(t, subject.SourcePersonID)

	cands, err := h.store.ListSearchCandidates(ctx, job.ID, 1)
	require.NoError(t, err)
	require.NotEmpty(t, cands)
	for _, c := range cands {
		assert.False(t, c.Selected)
		assert.Equal(t, "blacklisted", c.RejectionReason)
		assert.Equal(t, "FS-BAD", c.Candidate.PersonID)
	}
}

func TestRun_MultiSourceBonusAppliedOnce(t *testing.T) {
	fs := newProvider("familysearch", source.CapSearch|source.CapTree, johnSmith("FS-1"))
	wt := newProvider("wikitree", source.CapSearch, johnSmith("WT-1"))
	h := newHarness(t, fs, wt)
	ctx := context.Background()

	sum, err := h.ctl.Run(ctx, subjectRequest(1))
	require.NoError(t, err)
	assert.Positive(t, wt.searches)

	subject, err := h.store.GetAncestorByPosition(ctx, sum.JobID, 1)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"familysearch", "wikitree"}, subject.Sources)
	assert.Equal(t, "familysearch", subject.Source)

	var note string
	for _, e := range subject.SearchLog {
		if e.Pass == PassEnrichment {
			note = e.Note
		}
	}
	require.NotEmpty(t, note)
	assert.Equal(t, 1, strings.Count(note, "multi_source"))
}

func TestRun_TreeParentsFilteredAndAccepted(t *testing.T) {
	subject := johnSmith("FS-1")
	subject.FatherName = "William Smith"
	fs := newProvider("familysearch", source.CapSearch|source.CapTree, subject)
	fs.parents["FS-1"] = source.Parents{
		Father: treeParent("William Smith", "FS-2", "1890", "Derby", model.GenderMale),
		// Five years older than her son.
		Mother: treeParent("Mary Jones", "FS-3", "1915", "Derby", model.GenderFemale),
	}
	h := newHarness(t, fs)
	ctx := context.Background()

	req := subjectRequest(2)
	req.Anchors = []model.Anchor{{AscendancyNum: 2, GivenNames: "William", Surname: "Smith", BirthYear: 1890, BirthPlace: "Derby"}}
	sum, err := h.ctl.Run(ctx, req)
	require.NoError(t, err)

	got := h.positions(t, sum.JobID)
	require.Len(t, got, 3)

	father := got[2]
	assert.False(t, father.NotFound)
	assert.Equal(t, "FS-2", father.SourcePersonID)
	assert.Equal(t, "William Smith", father.Name)
	assert.GreaterOrEqual(t, father.ConfidenceScore, DefaultConfig().AcceptThreshold)

	mother := got[3]
	assert.True(t, mother.NotFound)
	assert.NotEqual(t, "FS-3", mother.SourcePersonID)
	var filtered bool
	for _, e := range mother.SearchLog {
		if e.Pass == PassTreeFilter && strings.Contains(e.Note, "implausible") {
			filtered = true
		}
	}
	assert.True(t, filtered, "mother's search log should record the discarded tree parent")
}

func TestRun_RevisitedIdentifierStopsBranch(t *testing.T) {
	subject := johnSmith("FS-1")
	fs := newProvider("familysearch", source.CapSearch|source.CapTree, subject)
	// A broken tree records the subject as his own father.
	self := treeParent("John Smith", "FS-1", "1920", "Derby", model.GenderMale)
	fs.parents["FS-1"] = source.Parents{Father: self}
	h := newHarness(t, fs)

	req := subjectRequest(3)
	req.Anchors = []model.Anchor{{AscendancyNum: 2, GivenNames: "John", Surname: "Smith", BirthYear: 1920, BirthPlace: "Derby"}}
	sum, err := h.ctl.Run(context.Background(), req)
	require.NoError(t, err)

	got := h.positions(t, sum.JobID)
	for asc := 4; asc <= 7; asc++ {
		_, ok := got[asc]
		assert.False(t, ok, "position %d should not be created", asc)
	}
}

// smithTree records two generations above John Smith, none of them given
// to the run as anchors or customer data.
func smithTree(fs *fakeProvider) {
	fs.parents["FS-1"] = source.Parents{
		Father: treeParent("William Smith", "FS-2", "1890", "Derby", model.GenderMale),
		Mother: treeParent("Mary Jones", "FS-3", "1893", "Derby", model.GenderFemale),
	}
	fs.parents["FS-2"] = source.Parents{
		Father: treeParent("Thomas Smith", "FS-4", "1860", "Derby", model.GenderMale),
		Mother: treeParent("Ann Brown", "FS-5", "1862", "Derby", model.GenderFemale),
	}
}

func TestRun_FollowsProviderTreeWithoutAnchors(t *testing.T) {
	fs := newProvider("familysearch", source.CapSearch|source.CapTree, johnSmith("FS-1"))
	smithTree(fs)
	h := newHarness(t, fs)

	sum, err := h.ctl.Run(context.Background(), subjectRequest(3))
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Enriched)

	got := h.positions(t, sum.JobID)
	want := map[int]string{2: "FS-2", 3: "FS-3", 4: "FS-4", 5: "FS-5"}
	for asc, id := range want {
		a, ok := got[asc]
		require.True(t, ok, "position %d missing", asc)
		assert.False(t, a.NotFound, "position %d", asc)
		assert.Equal(t, id, a.SourcePersonID, "position %d", asc)
		assert.Equal(t, "familysearch", a.Source, "position %d", asc)
		assert.GreaterOrEqual(t, a.ConfidenceScore, DefaultConfig().AcceptThreshold, "position %d", asc)
		assert.True(t, logHas(a.SearchLog, PassResolution, "tree_link"), "position %d should be lifted by its tree link", asc)
	}
	assert.Equal(t, "Mary Jones", got[3].Name)
	assert.Equal(t, "Ann Brown", got[5].Name)

	// Mary Jones has no recorded parents, so her branch ends in placeholders.
	assert.True(t, got[6].NotFound)
	assert.True(t, got[7].NotFound)
}

func TestRun_TreeFallbacks(t *testing.T) {
	william := *treeParent("William Smith", "FS-2", "1890", "Derby", model.GenderMale)
	mary := *treeParent("Mary Jones", "FS-3", "1893", "Derby", model.GenderFemale)

	tests := []struct {
		name  string
		setup func(fs *fakeProvider)
		check func(t *testing.T, h *harness, jobID string, got map[int]model.Ancestor)
	}{
		{
			name: "ancestry when the parents call is empty",
			setup: func(fs *fakeProvider) {
				fs.ancestry["FS-1"] = []model.Candidate{william, mary}
			},
			check: func(t *testing.T, _ *harness, _ string, got map[int]model.Ancestor) {
				assert.Equal(t, "FS-2", got[2].SourcePersonID)
				assert.Equal(t, "FS-3", got[3].SourcePersonID)
				assert.True(t, logHas(got[2].SearchLog, PassAncestry, ""))
			},
		},
		{
			name: "ancestry when the parents call fails",
			setup: func(fs *fakeProvider) {
				fs.errs["parents:FS-1"] = errors.New("upstream 503")
				fs.ancestry["FS-1"] = []model.Candidate{william, mary}
			},
			check: func(t *testing.T, _ *harness, _ string, got map[int]model.Ancestor) {
				assert.Equal(t, "FS-2", got[2].SourcePersonID)
				assert.Equal(t, "FS-3", got[3].SourcePersonID)
				assert.True(t, logHas(got[2].SearchLog, PassTree, "upstream 503"))
			},
		},
		{
			name: "name search from the child's surname when the tree is empty",
			setup: func(fs *fakeProvider) {
				fs.errs["ancestry:FS-1"] = errors.New("read timeout")
				w := william
				w.TreeLinked = false
				w.PersonID = "FS-7"
				w.SourceIDs = map[string]string{"familysearch": "FS-7"}
				fs.people = append(fs.people, w)
			},
			check: func(t *testing.T, h *harness, jobID string, got map[int]model.Ancestor) {
				father := got[2]
				assert.True(t, logHas(father.SearchLog, PassAncestry, "read timeout"))

				var year *model.SearchLogEntry
				for i, e := range father.SearchLog {
					if e.Pass == PassBirthYear {
						year = &father.SearchLog[i]
					}
				}
				require.NotNil(t, year, "father should be searched by surname and estimated year")
				assert.Contains(t, strings.ToLower(year.Query), "smith")
				assert.Contains(t, year.Query, "1890")
				assert.Positive(t, year.ResultCount)

				var ids []string
				for _, c := range h.candidates(t, jobID, 2) {
					ids = append(ids, c.Candidate.PersonID)
				}
				assert.Contains(t, ids, "FS-7")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := newProvider("familysearch", source.CapSearch|source.CapTree, johnSmith("FS-1"))
			tt.setup(fs)
			h := newHarness(t, fs)

			sum, err := h.ctl.Run(context.Background(), subjectRequest(2))
			require.NoError(t, err)

			got := h.positions(t, sum.JobID)
			require.Len(t, got, 3)
			tt.check(t, h, sum.JobID, got)
		})
	}
}

func TestRun_SingleStrongMatchShortCircuits(t *testing.T) {
	tests := []struct {
		name   string
		people []model.Candidate
		once   bool
	}{
		{name: "one strong match stops after the first pass", people: []model.Candidate{johnSmith("FS-1")}, once: true},
		{name: "two strong matches keep searching", people: []model.Candidate{johnSmith("FS-1"), johnSmith("FS-9")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := newProvider("familysearch", source.CapSearch, tt.people...)
			h := newHarness(t, fs)

			sum, err := h.ctl.Run(context.Background(), subjectRequest(1))
			require.NoError(t, err)

			subject := h.positions(t, sum.JobID)[1]
			if tt.once {
				assert.Equal(t, 1, fs.searches)
				assert.False(t, logHas(subject.SearchLog, PassRelaxed, ""))
				return
			}
			assert.Greater(t, fs.searches, 1)
			assert.True(t, logHas(subject.SearchLog, PassRelaxed, ""))
		})
	}
}

func TestRun_SearchFailureDoesNotStopBranch(t *testing.T) {
	fs := newProvider("familysearch", source.CapSearch|source.CapTree, johnSmith("FS-1"))
	fs.errs["search:1"] = errors.New("read timeout")
	h := newHarness(t, fs)

	sum, err := h.ctl.Run(context.Background(), subjectRequest(2))
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Enriched)
	assert.Equal(t, 3, sum.Processed)

	got := h.positions(t, sum.JobID)
	subject := got[1]
	assert.Equal(t, "FS-1", subject.SourcePersonID)
	assert.True(t, logHas(subject.SearchLog, PassExact, "read timeout"))
	assert.True(t, logHas(subject.SearchLog, PassRelaxed, ""))

	assert.Contains(t, got, 2)
	assert.Contains(t, got, 3)
}

func TestRun_RejectedPersonNotReselected(t *testing.T) {
	fs := newProvider("familysearch", source.CapSearch|source.CapTree,
		johnSmith("FS-1"),
		model.Candidate{PersonID: "FS-4", Name: "Thomas Smith", Gender: model.GenderMale, BirthDate: "1860", BirthPlace: "Derby"},
	)
	smithTree(fs)
	h := newHarness(t, fs)
	ctx := context.Background()

	sum, err := h.ctl.Run(ctx, subjectRequest(3))
	require.NoError(t, err)
	require.Equal(t, "FS-4", h.positions(t, sum.JobID)[4].SourcePersonID)

	svc := admin.New(h.store, h.reg, confidence.DefaultConfig(), nil)
	res, err := svc.RejectPosition(ctx, sum.JobID, 4, "wrong Thomas")
	require.NoError(t, err)
	assert.Equal(t, []string{"FS-4"}, res.Blacklisted)

	req := subjectRequest(3)
	req.JobID = sum.JobID
	_, err = h.ctl.Run(ctx, req)
	require.NoError(t, err)

	got := h.positions(t, sum.JobID)
	grandfather := got[4]
	assert.NotEqual(t, "FS-4", grandfather.SourcePersonID)
	assert.True(t, logHas(grandfather.SearchLog, PassTreeFilter, "blacklisted"))
	assert.True(t, logHas(grandfather.SearchLog, PassBlacklisted, "FS-4"))
	assert.Equal(t, "FS-5", got[5].SourcePersonID)

	var seen bool
	for _, c := range h.candidates(t, sum.JobID, 4) {
		if c.Candidate.PersonID != "FS-4" {
			continue
		}
		seen = true
		assert.False(t, c.Selected)
		assert.Equal(t, "blacklisted", c.RejectionReason)
	}
	assert.True(t, seen, "the rejected person should still be found and recorded as blacklisted")
}
