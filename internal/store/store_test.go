package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lineage-cli/internal/model"
)

func newTestSQLite(t *testing.T) Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func seedJob(t *testing.T, s Store) *model.Job {
	t.Helper()
	job, err := s.CreateJob(context.Background(), 4)
	require.NoError(t, err)
	return job
}

func seedAncestor(t *testing.T, s Store, jobID string, asc int, name string) {
	t.Helper()
	require.NoError(t, s.CreateAncestor(context.Background(), &model.Ancestor{
		JobID:           jobID,
		AscendancyNum:   asc,
		Name:            name,
		Gender:          model.ExpectedGender(asc),
		ConfidenceScore: 80,
	}))
}

func storeTestSuite(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("CreateAndGetJob", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		job, err := s.CreateJob(ctx, 4)
		require.NoError(t, err)
		assert.NotEmpty(t, job.ID)
		assert.Equal(t, model.JobStatusQueued, job.Status)

		got, err := s.GetJob(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, job.ID, got.ID)
		assert.Equal(t, 4, got.Depth)
		assert.Equal(t, model.JobStatusQueued, got.Status)
	})

	t.Run("GetJobNotFound", func(t *testing.T) {
		s := newStore(t)
		_, err := s.GetJob(context.Background(), "missing")
		require.Error(t, err)
		assert.True(t, eris.Is(err, ErrNotFound))
	})

	t.Run("UpdateJobStatusAndProgress", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		job := seedJob(t, s)

		require.NoError(t, s.UpdateJobStatus(ctx, job.ID, model.JobStatusFailed, "no search adapters"))
		require.NoError(t, s.UpdateJobProgress(ctx, job.ID, 3, 14))

		got, err := s.GetJob(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusFailed, got.Status)
		assert.Equal(t, "no search adapters", got.Error)
		assert.Equal(t, 3, got.Processed)
		assert.Equal(t, 14, got.Total)
	})

	t.Run("UpdateJobStatusNotFound", func(t *testing.T) {
		s := newStore(t)
		err := s.UpdateJobStatus(context.Background(), "nonexistent-id", model.JobStatusRunning, "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not found")
	})

	t.Run("ListJobsByStatus", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		a := seedJob(t, s)
		seedJob(t, s)
		require.NoError(t, s.UpdateJobStatus(ctx, a.ID, model.JobStatusComplete, ""))

		all, err := s.ListJobs(ctx, JobFilter{})
		require.NoError(t, err)
		assert.Len(t, all, 2)

		done, err := s.ListJobs(ctx, JobFilter{Status: model.JobStatusComplete})
		require.NoError(t, err)
		require.Len(t, done, 1)
		assert.Equal(t, a.ID, done[0].ID)
	})

	t.Run("CreateAncestorUpsertsByPosition", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		job := seedJob(t, s)

		first := &model.Ancestor{
			JobID:           job.ID,
			AscendancyNum:   2,
			Name:            "William Derby",
			Gender:          model.GenderMale,
			BirthDate:       "1931",
			ConfidenceScore: 82,
			Sources:         []string{"familysearch"},
			EvidenceChain:   []model.EvidenceCitation{{Source: "familysearch", Title: "England Census 1939", Type: model.CitationCensus}},
		}
		require.NoError(t, s.CreateAncestor(ctx, first))
		assert.Equal(t, 1, first.Generation)
		assert.Equal(t, model.LevelProbable, first.ConfidenceLevel)

		require.NoError(t, s.CreateAncestor(ctx, &model.Ancestor{
			JobID: job.ID, AscendancyNum: 2, Name: "William J Derby", ConfidenceScore: 93,
		}))

		got, err := s.GetAncestorByPosition(ctx, job.ID, 2)
		require.NoError(t, err)
		assert.Equal(t, "William J Derby", got.Name)
		assert.Equal(t, 93, got.ConfidenceScore)
		assert.Equal(t, model.LevelVerified, got.ConfidenceLevel)

		all, err := s.ListAncestors(ctx, job.ID)
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})

	t.Run("AncestorJSONRoundTrip", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		job := seedJob(t, s)

		require.NoError(t, s.CreateAncestor(ctx, &model.Ancestor{
			JobID:           job.ID,
			AscendancyNum:   3,
			Name:            "Mary Smith",
			ConfidenceScore: 120,
			Sources:         []string{"familysearch", "wikitree"},
			SearchLog:       []model.SearchLogEntry{{Pass: "exact", Query: "Mary Smith 1933", ResultCount: 4}},
		}))

		got, err := s.GetAncestorByPosition(ctx, job.ID, 3)
		require.NoError(t, err)
		assert.Equal(t, 100, got.ConfidenceScore)
		assert.Equal(t, []string{"familysearch", "wikitree"}, got.Sources)
		require.Len(t, got.SearchLog, 1)
		assert.Equal(t, "exact", got.SearchLog[0].Pass)
		assert.Empty(t, got.EvidenceChain)
	})

	t.Run("GetAncestorNotFound", func(t *testing.T) {
		s := newStore(t)
		job := seedJob(t, s)
		_, err := s.GetAncestorByPosition(context.Background(), job.ID, 9)
		assert.True(t, eris.Is(err, ErrNotFound))
	})

	t.Run("UpdateAncestorByPosition", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		job := seedJob(t, s)
		seedAncestor(t, s, job.ID, 2, "John Derby")

		date := "12 Mar 1931"
		score := 91
		level := model.LevelVerified
		got, err := s.UpdateAncestorByPosition(ctx, job.ID, 2, model.AncestorPatch{
			BirthDate:       &date,
			ConfidenceScore: &score,
			ConfidenceLevel: &level,
			CorrectionsLog: []model.CorrectionEntry{
				{ID: "c1", Kind: model.CorrectionConsensus, Field: "birth_date", Before: "", After: date},
			},
		})
		require.NoError(t, err)
		assert.Equal(t, date, got.BirthDate)
		assert.Equal(t, "John Derby", got.Name)

		reread, err := s.GetAncestorByPosition(ctx, job.ID, 2)
		require.NoError(t, err)
		assert.Equal(t, 91, reread.ConfidenceScore)
		assert.Equal(t, model.LevelVerified, reread.ConfidenceLevel)
		require.Len(t, reread.CorrectionsLog, 1)
		assert.Equal(t, "birth_date", reread.CorrectionsLog[0].Field)
	})

	t.Run("UpdateAncestorNotFound", func(t *testing.T) {
		s := newStore(t)
		job := seedJob(t, s)
		name := "x"
		_, err := s.UpdateAncestorByPosition(context.Background(), job.ID, 5, model.AncestorPatch{Name: &name})
		assert.True(t, eris.Is(err, ErrNotFound))
	})

	t.Run("DeleteSubtree", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		job := seedJob(t, s)
		for asc := 1; asc <= 15; asc++ {
			seedAncestor(t, s, job.ID, asc, model.RoleLabel(asc))
		}

		n, err := s.DeleteSubtree(ctx, job.ID, 3)
		require.NoError(t, err)
		// 3, 6, 7, 12, 13, 14, 15
		assert.Equal(t, 7, n)

		rest, err := s.ListAncestors(ctx, job.ID)
		require.NoError(t, err)
		var positions []int
		for _, a := range rest {
			positions = append(positions, a.AscendancyNum)
		}
		assert.Equal(t, []int{1, 2, 4, 5, 8, 9, 10, 11}, positions)
	})

	t.Run("DeleteSubtreeEmpty", func(t *testing.T) {
		s := newStore(t)
		job := seedJob(t, s)
		n, err := s.DeleteSubtree(context.Background(), job.ID, 6)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("RejectedSourceIDs", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		job := seedJob(t, s)

		require.NoError(t, s.AddRejectedSourceID(ctx, job.ID, "familysearch", "KWZ1-ABC", "wrong person"))
		require.NoError(t, s.AddRejectedSourceID(ctx, job.ID, "wikitree", "Derby-12", "duplicate"))
		require.NoError(t, s.AddRejectedSourceID(ctx, job.ID, "familysearch", "KWZ1-ABC", "re-rejected"))

		ids, err := s.ListRejectedSourceIDs(ctx, job.ID)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"KWZ1-ABC", "Derby-12"}, ids)

		other := seedJob(t, s)
		none, err := s.ListRejectedSourceIDs(ctx, other.ID)
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("SearchCandidatesReplacePerPosition", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		job := seedJob(t, s)

		first := []model.SearchCandidate{
			{Candidate: model.Candidate{Source: "familysearch", PersonID: "A", Name: "Old One"}, ComputedScore: 40},
		}
		require.NoError(t, s.RecordSearchCandidates(ctx, job.ID, 2, first))

		second := []model.SearchCandidate{
			{Candidate: model.Candidate{Source: "familysearch", PersonID: "B", Name: "Low"}, ComputedScore: 50, RejectionReason: "below threshold"},
			{Candidate: model.Candidate{Source: "wikitree", PersonID: "C", Name: "High"}, ComputedScore: 88, Selected: true},
		}
		require.NoError(t, s.RecordSearchCandidates(ctx, job.ID, 2, second))

		got, err := s.ListSearchCandidates(ctx, job.ID, 2)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "High", got[0].Candidate.Name)
		assert.True(t, got[0].Selected)
		assert.Equal(t, "below threshold", got[1].RejectionReason)

		one, err := s.GetSearchCandidate(ctx, second[0].ID)
		require.NoError(t, err)
		assert.Equal(t, "B", one.Candidate.PersonID)
		assert.Equal(t, 2, one.AscendancyNum)

		_, err = s.GetSearchCandidate(ctx, first[0].ID)
		assert.True(t, eris.Is(err, ErrNotFound))
	})

	t.Run("Feedback", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.RecordFeedback(ctx, model.Feedback{
			JobID: "job-1", AscendancyNum: 4, Field: "birth_place",
			RejectedValue: "Derby, Derbyshire", RestoredValue: "Belper, Derbyshire",
		}))

		got, err := s.ListFeedback(ctx, 10)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.NotEmpty(t, got[0].ID)
		assert.Equal(t, "birth_place", got[0].Field)
		assert.Equal(t, "Belper, Derbyshire", got[0].RestoredValue)
	})
}

func TestSQLiteStore(t *testing.T) {
	storeTestSuite(t, newTestSQLite)
}

func TestSubtree(t *testing.T) {
	got := subtree([]int{1, 2, 3, 4, 5, 6, 7, 8, 10, 11, 12}, 2)
	assert.Equal(t, []int{2, 4, 5, 8, 10, 11}, got)
	assert.Nil(t, subtree([]int{3, 6}, 2))
}
