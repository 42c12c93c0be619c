package traversal

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/lineage-cli/internal/confidence"
	"github.com/sells-group/lineage-cli/internal/model"
	"github.com/sells-group/lineage-cli/internal/scorer"
	"github.com/sells-group/lineage-cli/internal/source"
	"github.com/sells-group/lineage-cli/internal/store"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

// fakeProvider answers searches from a fixed list of people and tree calls
// from a parent map.
type fakeProvider struct {
	name     string
	caps     source.Capability
	people   []model.Candidate
	parents  map[string]source.Parents
	ancestry map[string][]model.Candidate
	// errs fails calls keyed "search:<n>" (the nth search, from 1),
	// "parents:<id>" or "ancestry:<id>".
	errs map[string]error

	searches int
}

func newProvider(name string, caps source.Capability, people ...model.Candidate) *fakeProvider {
	for i := range people {
		people[i].Source = name
		people[i].Sources = []string{name}
		people[i].SourceIDs = map[string]string{name: people[i].PersonID}
	}
	return &fakeProvider{
		name:     name,
		caps:     caps,
		people:   people,
		parents:  make(map[string]source.Parents),
		ancestry: make(map[string][]model.Candidate),
		errs:     make(map[string]error),
	}
}

func (f *fakeProvider) Name() string                    { return f.name }
func (f *fakeProvider) Capabilities() source.Capability { return f.caps }
func (f *fakeProvider) Available() bool                 { return true }

// Search matches on surname and, when given, the first given name.
func (f *fakeProvider) Search(_ context.Context, q source.Query) ([]model.Candidate, error) {
	f.searches++
	if err := f.errs[fmt.Sprintf("search:%d", f.searches)]; err != nil {
		return nil, err
	}
	var out []model.Candidate
	for _, p := range f.people {
		toks := strings.Fields(strings.ToLower(p.Name))
		if len(toks) == 0 || q.Surname == "" || !strings.EqualFold(toks[len(toks)-1], q.Surname) {
			continue
		}
		if first := firstField(q.GivenNames); first != "" && !strings.EqualFold(toks[0], first) && !strings.EqualFold(toks[0][:1], first) {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (f *fakeProvider) Parents(_ context.Context, id string) (source.Parents, error) {
	if err := f.errs["parents:"+id]; err != nil {
		return source.Parents{}, err
	}
	return f.parents[id], nil
}

func (f *fakeProvider) Ancestry(_ context.Context, id string, _ int) ([]model.Candidate, error) {
	if err := f.errs["ancestry:"+id]; err != nil {
		return nil, err
	}
	return f.ancestry[id], nil
}

func firstField(s string) string {
	if fs := strings.Fields(s); len(fs) > 0 {
		return fs[0]
	}
	return ""
}

func treeParent(name, id, born, place string, g model.Gender) *model.Candidate {
	return &model.Candidate{
		Source:     "familysearch",
		PersonID:   id,
		Name:       name,
		Gender:     g,
		BirthDate:  born,
		BirthPlace: place,
		Sources:    []string{"familysearch"},
		SourceIDs:  map[string]string{"familysearch": id},
		TreeLinked: true,
	}
}

type harness struct {
	store store.Store
	reg   *source.Registry
	ctl   *Controller
}

func newHarness(t *testing.T, adapters ...source.Adapter) *harness {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "lineage.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(context.Background()))

	reg := source.NewRegistry(adapters...)
	ctl := New(DefaultConfig(), st, reg, scorer.New(scorer.DefaultWeights(), nil), confidence.DefaultConfig(), nil)
	return &harness{store: st, reg: reg, ctl: ctl}
}

func (h *harness) positions(t *testing.T, jobID string) map[int]model.Ancestor {
	t.Helper()
	list, err := h.store.ListAncestors(context.Background(), jobID)
	require.NoError(t, err)
	out := make(map[int]model.Ancestor, len(list))
	for _, a := range list {
		out[a.AscendancyNum] = a
	}
	return out
}

func (h *harness) candidates(t *testing.T, jobID string, asc int) []model.SearchCandidate {
	t.Helper()
	list, err := h.store.ListSearchCandidates(context.Background(), jobID, asc)
	require.NoError(t, err)
	return list
}

// logHas reports whether log holds an entry for pass whose note contains note.
func logHas(log []model.SearchLogEntry, pass, note string) bool {
	for _, e := range log {
		if e.Pass == pass && strings.Contains(e.Note, note) {
			return true
		}
	}
	return false
}
