package export

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/lineage-cli/internal/model"
	"github.com/sells-group/lineage-cli/internal/store"
)

func sampleTree() *Tree {
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return &Tree{
		Job: &model.Job{ID: "job-1", Status: model.JobStatusComplete, Depth: 3},
		Ancestors: []model.Ancestor{
			{AscendancyNum: 1, Name: "John Smith", ConfidenceScore: 100, ConfidenceLevel: model.LevelCustomerData},
			{
				AscendancyNum: 2, Name: "William Smith", Gender: model.GenderMale,
				BirthDate: "1921", BirthPlace: "Derby", ConfidenceScore: 77, ConfidenceLevel: model.LevelProbable,
				Source: "familysearch", SourcePersonID: "FS-2", Sources: []string{"familysearch", "wikitree"},
				EvidenceChain: []model.EvidenceCitation{{Source: "familysearch", Title: "1939 Register"}},
				CorrectionsLog: []model.CorrectionEntry{
					{ID: "c1", Kind: model.CorrectionConsensus, Field: model.FieldConfidenceScore, Before: "70", After: "77", Reason: "reviewers agreed", At: at},
				},
			},
			{AscendancyNum: 3, Name: model.PlaceholderName(3), ConfidenceLevel: model.LevelRejected, NotFound: true},
		},
	}
}

func TestWriteXLSX(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, "XLSX", sampleTree()))

	f, err := xlsx.OpenBinary(buf.Bytes())
	require.NoError(t, err)
	require.Len(t, f.Sheets, 2)

	tree := f.Sheet["Tree"]
	require.NotNil(t, tree)
	require.Len(t, tree.Rows, 4)
	assert.Equal(t, "Position", tree.Rows[0].Cells[0].String())
	assert.Len(t, tree.Rows[0].Cells, len(treeHeader))

	william := tree.Rows[2].Cells
	assert.Equal(t, "2", william[0].String())
	assert.Equal(t, "Father", william[2].String())
	assert.Equal(t, "William Smith", william[3].String())
	assert.Equal(t, "77", william[9].String())
	assert.Equal(t, "familysearch, wikitree", william[13].String())
	assert.Equal(t, `consensus confidence_score: "70" -> "77"`, william[17].String())

	corrections := f.Sheet["Corrections"]
	require.NotNil(t, corrections)
	require.Len(t, corrections.Rows, 2)
	assert.Equal(t, "c1", corrections.Rows[1].Cells[1].String())
	assert.Equal(t, "2026-03-01 10:00:00", corrections.Rows[1].Cells[8].String())
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, "", sampleTree()))

	var got Tree
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "job-1", got.Job.ID)
	require.Len(t, got.Ancestors, 3)
	assert.Equal(t, "77", got.Ancestors[1].CorrectionsLog[0].After)
}

func TestWrite_UnknownFormat(t *testing.T) {
	err := Write(&bytes.Buffer{}, "pdf", sampleTree())
	assert.True(t, eris.Is(err, ErrUnknownFormat))
}

func TestLastCorrection(t *testing.T) {
	assert.Empty(t, lastCorrection(nil))
	assert.Equal(t, "admin rejected_source_id: rejected", lastCorrection([]model.CorrectionEntry{
		{Kind: model.CorrectionAdmin, Field: "rejected_source_id", Before: "FS-2", Reason: "rejected"},
	}))
}

func TestLoad(t *testing.T) {
	ctx := context.Background()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "lineage.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(ctx))

	job, err := st.CreateJob(ctx, 2)
	require.NoError(t, err)
	for _, asc := range []int{3, 1, 2} {
		require.NoError(t, st.CreateAncestor(ctx, &model.Ancestor{JobID: job.ID, AscendancyNum: asc, Name: model.RoleLabel(asc)}))
	}

	tree, err := Load(ctx, st, job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, tree.Job.ID)
	require.Len(t, tree.Ancestors, 3)
	for i, a := range tree.Ancestors {
		assert.Equal(t, i+1, a.AscendancyNum)
	}

	_, err = Load(ctx, st, "missing")
	assert.True(t, eris.Is(err, store.ErrNotFound))
}
