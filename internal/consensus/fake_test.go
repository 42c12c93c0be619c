package consensus

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/lineage-cli/internal/model"
	"github.com/sells-group/lineage-cli/internal/source"
	"github.com/sells-group/lineage-cli/internal/store"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type fakeReviewer struct {
	name   string
	review *Review
	err    error
	// entered and release, when set, hold the reviewer mid-call.
	entered chan struct{}
	release chan struct{}

	mu       sync.Mutex
	payloads []Payload
}

func reviewer(name string, positions ...PositionReview) *fakeReviewer {
	return &fakeReviewer{name: name, review: &Review{Positions: positions}}
}

func (f *fakeReviewer) Name() string { return f.name }

func (f *fakeReviewer) Review(_ context.Context, p Payload) (*Review, error) {
	f.mu.Lock()
	f.payloads = append(f.payloads, p)
	f.mu.Unlock()
	if f.entered != nil {
		close(f.entered)
		<-f.release
	}
	if f.err != nil {
		return nil, f.err
	}
	r := *f.review
	return &r, nil
}

func verdictFor(asc, delta int, corrections ...string) PositionReview {
	pr := PositionReview{AscendancyNum: asc, ConfidenceDelta: delta}
	for _, c := range corrections {
		pr.Issues = append(pr.Issues, Issue{Description: "checked against census", SuggestedCorrection: c})
	}
	return pr
}

// fakeConfirmer answers birth lookups by exact name.
type fakeConfirmer struct {
	births map[string]model.VitalEntry
}

func (f *fakeConfirmer) Name() string                    { return "civil_index" }
func (f *fakeConfirmer) Capabilities() source.Capability { return source.CapConfirm }
func (f *fakeConfirmer) Available() bool                 { return true }

func (f *fakeConfirmer) ConfirmBirth(_ context.Context, name string, _ int) (*model.VitalEntry, error) {
	e, ok := f.births[name]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (f *fakeConfirmer) ConfirmDeath(context.Context, string, int) (*model.VitalEntry, error) {
	return nil, nil
}

func (f *fakeConfirmer) FindMarriage(context.Context, string, int) (*model.VitalEntry, error) {
	return nil, nil
}

type confirmerSet []source.Confirmer

func (c confirmerSet) Confirmers() []source.Confirmer { return c }

type fixture struct {
	store store.Store
	jobID string
}

// newFixture seeds a completed three-generation job: customer-supplied
// subject and mother, a resolved father and a not-found grandfather.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "lineage.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(ctx))

	job, err := st.CreateJob(ctx, 3)
	require.NoError(t, err)
	require.NoError(t, st.UpdateJobStatus(ctx, job.ID, model.JobStatusComplete, ""))

	seed := []model.Ancestor{
		{AscendancyNum: 1, Name: "John Smith", BirthDate: "1959", BirthPlace: "Derby", ConfidenceScore: 100, ConfidenceLevel: model.LevelCustomerData},
		{AscendancyNum: 2, Name: "William Smith", Gender: model.GenderMale, BirthDate: "14 May 1921", BirthPlace: "Derby, Derbyshire", ConfidenceScore: 70, Source: "familysearch", SourcePersonID: "FS-2"},
		{AscendancyNum: 3, Name: "Ada Brown", Gender: model.GenderFemale, BirthDate: "1925", ConfidenceScore: 100, ConfidenceLevel: model.LevelCustomerData},
		{AscendancyNum: 4, Name: model.PlaceholderName(4), ConfidenceLevel: model.LevelRejected, NotFound: true},
	}
	for i := range seed {
		seed[i].JobID = job.ID
		require.NoError(t, st.CreateAncestor(ctx, &seed[i]))
	}
	return &fixture{store: st, jobID: job.ID}
}

func (f *fixture) position(t *testing.T, asc int) *model.Ancestor {
	t.Helper()
	a, err := f.store.GetAncestorByPosition(context.Background(), f.jobID, asc)
	require.NoError(t, err)
	return a
}

func findSuggestion(r *Report, kind, field string) *Suggestion {
	for i := range r.Suggestions {
		if r.Suggestions[i].Kind == kind && r.Suggestions[i].Field == field {
			return &r.Suggestions[i]
		}
	}
	return nil
}
