package traversal

import (
	"context"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lineage-cli/internal/confidence"
	"github.com/sells-group/lineage-cli/internal/gazetteer"
	"github.com/sells-group/lineage-cli/internal/metrics"
	"github.com/sells-group/lineage-cli/internal/model"
	"github.com/sells-group/lineage-cli/internal/scorer"
	"github.com/sells-group/lineage-cli/internal/source"
	"github.com/sells-group/lineage-cli/internal/store"
)

// ErrNoSearchAdapters fails a job that has facts to search but no source
// able to search them. Customer-supplied positions are still stored.
var ErrNoSearchAdapters = eris.New("traversal: no search adapters available")

// Sources is the view of the adapter registry the controller needs.
// *source.Registry satisfies it.
type Sources interface {
	confidence.Sources
	Searchers() []source.Searcher
	TreeWalker(name string) (source.TreeWalker, bool)
	ResetAuth()
}

// Request starts or re-runs a traversal.
type Request struct {
	// JobID re-runs an existing job. Empty creates a new one.
	JobID string `json:"job_id,omitempty"`
	// Depth is the number of generations to build, the subject included.
	Depth int `json:"depth"`
	// Known holds the customer-supplied positions. Position 1 is required.
	Known   map[int]model.KnownFacts `json:"known"`
	Anchors []model.Anchor           `json:"anchors,omitempty"`
}

// Summary reports what one run did.
type Summary struct {
	JobID     string                        `json:"job_id"`
	Processed int                           `json:"processed"`
	Accepted  int                           `json:"accepted"`
	NotFound  int                           `json:"not_found"`
	Protected int                           `json:"protected"`
	Enriched  int                           `json:"enriched"`
	Levels    map[model.ConfidenceLevel]int `json:"levels"`
}

// Controller runs traversals. It holds no per-job state, so one
// Controller may serve concurrent jobs.
type Controller struct {
	cfg     Config
	store   store.Store
	sources Sources
	scorer  *scorer.Scorer
	confCfg confidence.Config
	places  gazetteer.Lookup
}

// New creates a Controller. A nil places uses the embedded gazetteer.
func New(cfg Config, st store.Store, sources Sources, sc *scorer.Scorer, confCfg confidence.Config, places gazetteer.Lookup) *Controller {
	if places == nil {
		places = gazetteer.Default()
	}
	return &Controller{cfg: cfg, store: st, sources: sources, scorer: sc, confCfg: confCfg, places: places}
}

// workItem is one queued position.
type workItem struct {
	asc   int
	facts model.KnownFacts
	// tree is the parent a provider recorded for this position, if any.
	tree       *model.Candidate
	treeSource string
	log        []model.SearchLogEntry
}

// run is the job-scoped state of one traversal.
type run struct {
	*Controller
	job      *model.Job
	depth    int
	log      *zap.Logger
	resolver *confidence.Resolver
	bl       model.Blacklist

	known   map[int]model.KnownFacts
	anchors map[int]model.Anchor

	queue    []workItem
	enqueued map[int]bool
	// visited maps provider|personID to the position that claimed it.
	visited map[string]int
	// owner maps a person id to the provider whose tree it belongs to.
	owner map[string]string

	summary Summary
}

// Run builds the tree for req. On a fatal error the job is marked failed
// and positions already written are kept.
func (c *Controller) Run(ctx context.Context, req Request) (*Summary, error) {
	if _, ok := req.Known[1]; !ok {
		return nil, eris.New("traversal: request has no subject facts")
	}
	depth := req.Depth
	if depth <= 0 || depth > c.cfg.MaxDepth {
		depth = c.cfg.MaxDepth
	}

	job, err := c.openJob(ctx, req.JobID, depth)
	if err != nil {
		return nil, err
	}

	r := &run{
		Controller: c,
		job:        job,
		depth:      depth,
		log:        zap.L().With(zap.String("job_id", job.ID)),
		known:      req.Known,
		anchors:    make(map[int]model.Anchor),
		enqueued:   make(map[int]bool),
		visited:    make(map[string]int),
		owner:      make(map[string]string),
		summary:    Summary{JobID: job.ID, Levels: make(map[model.ConfidenceLevel]int)},
	}
	for _, a := range req.Anchors {
		if model.IsAncestorPosition(1, a.AscendancyNum) {
			r.anchors[a.AscendancyNum] = a
		}
	}

	if err := r.execute(ctx); err != nil {
		r.log.Error("traversal: job failed", zap.Error(err))
		if serr := c.store.UpdateJobStatus(ctx, job.ID, model.JobStatusFailed, err.Error()); serr != nil {
			r.log.Error("traversal: failed to record job failure", zap.Error(serr))
		}
		return &r.summary, err
	}
	if err := c.store.UpdateJobStatus(ctx, job.ID, model.JobStatusComplete, ""); err != nil {
		return &r.summary, eris.Wrap(err, "traversal: complete job")
	}
	r.log.Info("traversal: job complete",
		zap.Int("processed", r.summary.Processed),
		zap.Int("accepted", r.summary.Accepted),
		zap.Int("not_found", r.summary.NotFound),
		zap.Int("enriched", r.summary.Enriched),
	)
	return &r.summary, nil
}

func (c *Controller) openJob(ctx context.Context, jobID string, depth int) (*model.Job, error) {
	if jobID == "" {
		job, err := c.store.CreateJob(ctx, depth)
		return job, eris.Wrap(err, "traversal: create job")
	}
	job, err := c.store.GetJob(ctx, jobID)
	return job, eris.Wrapf(err, "traversal: load job %s", jobID)
}

func (r *run) execute(ctx context.Context) error {
	if err := r.store.UpdateJobStatus(ctx, r.job.ID, model.JobStatusRunning, ""); err != nil {
		return eris.Wrap(err, "traversal: mark running")
	}

	ids, err := r.store.ListRejectedSourceIDs(ctx, r.job.ID)
	if err != nil {
		return eris.Wrap(err, "traversal: load blacklist")
	}
	r.bl = model.NewBlacklist(ids)
	r.resolver = confidence.NewResolver(r.confCfg, r.sources, r.places, r.bl)
	r.sources.ResetAuth()

	if err := r.seed(ctx); err != nil {
		return err
	}
	if len(r.sources.Searchers()) == 0 {
		return ErrNoSearchAdapters
	}

	r.push(workItem{asc: 1, facts: r.known[1]})
	for len(r.queue) > 0 {
		if r.summary.Processed >= r.cfg.MaxPositions {
			r.log.Warn("traversal: position cap reached", zap.Int("max_positions", r.cfg.MaxPositions))
			break
		}
		it := r.queue[0]
		r.queue = r.queue[1:]

		if err := r.process(ctx, it); err != nil {
			return err
		}
		r.summary.Processed++
		if err := r.store.UpdateJobProgress(ctx, r.job.ID, r.summary.Processed, r.summary.Processed+len(r.queue)); err != nil {
			return eris.Wrap(err, "traversal: update progress")
		}
	}
	return nil
}

// seed stores the customer-supplied positions. Existing Customer Data is
// left as is so earlier enrichment survives a re-run.
func (r *run) seed(ctx context.Context) error {
	positions := make([]int, 0, len(r.known))
	for asc := range r.known {
		positions = append(positions, asc)
	}
	sort.Ints(positions)

	for _, asc := range positions {
		if asc < 1 {
			continue
		}
		existing, err := r.store.GetAncestorByPosition(ctx, r.job.ID, asc)
		if err != nil && !eris.Is(err, store.ErrNotFound) {
			return eris.Wrapf(err, "traversal: load position %d", asc)
		}
		if existing.IsCustomerData() {
			continue
		}
		f := r.known[asc]
		a := &model.Ancestor{
			JobID:           r.job.ID,
			AscendancyNum:   asc,
			Name:            f.Name,
			Gender:          f.Gender,
			BirthDate:       f.BirthDate,
			BirthPlace:      f.BirthPlace,
			DeathDate:       f.DeathDate,
			DeathPlace:      f.DeathPlace,
			ConfidenceScore: 100,
			ConfidenceLevel: model.LevelCustomerData,
		}
		if a.Gender == model.GenderUnknown {
			a.Gender = model.ExpectedGender(asc)
		}
		if existing != nil {
			a.ID = existing.ID
			a.CorrectionsLog = existing.CorrectionsLog
		}
		if err := r.store.CreateAncestor(ctx, a); err != nil {
			return eris.Wrapf(err, "traversal: seed position %d", asc)
		}
		r.log.Debug("traversal: seeded customer position", zap.Int("asc", asc))
	}
	return nil
}

func (r *run) push(it workItem) {
	if r.enqueued[it.asc] {
		return
	}
	r.enqueued[it.asc] = true
	r.queue = append(r.queue, it)
}

// process resolves one position and queues its parents.
func (r *run) process(ctx context.Context, it workItem) error {
	existing, err := r.store.GetAncestorByPosition(ctx, r.job.ID, it.asc)
	if err != nil && !eris.Is(err, store.ErrNotFound) {
		return eris.Wrapf(err, "traversal: load position %d", it.asc)
	}

	var (
		a     *model.Ancestor
		facts model.KnownFacts
	)
	if existing.IsCustomerData() {
		r.summary.Protected++
		a, facts, err = r.enrich(ctx, it, existing)
	} else {
		a, facts, err = r.resolvePosition(ctx, it, existing)
	}
	if err != nil {
		return err
	}
	r.summary.Levels[a.ConfidenceLevel]++
	metrics.RecordPosition(string(a.ConfidenceLevel))

	r.expand(ctx, it.asc, a, facts)
	return nil
}

// expand queues the parents of asc. Parents are followed when the position
// is linked to a provider record, when the customer supplied something for
// them, and always for the subject.
func (r *run) expand(ctx context.Context, asc int, a *model.Ancestor, facts model.KnownFacts) {
	if model.Generation(asc)+1 >= r.depth {
		return
	}

	id := ""
	if a != nil && !a.NotFound {
		id = a.SourcePersonID
	}
	owner := r.ownerOf(a)

	var tree map[int]*model.Candidate
	var treeLog map[int][]model.SearchLogEntry
	if id != "" {
		if !r.claim(owner, id, asc) {
			r.log.Info("traversal: identifier already in tree, branch stopped",
				zap.Int("asc", asc),
				zap.String("source", owner),
				zap.String("person_id", id),
			)
			return
		}
		tree, treeLog = r.treeParents(ctx, asc, owner, id, facts)
	}

	for _, p := range []int{model.Father(asc), model.Mother(asc)} {
		_, anchored := r.anchors[p]
		_, known := r.known[p]
		if asc != 1 && id == "" && !anchored && !known {
			continue
		}
		r.push(workItem{
			asc:        p,
			facts:      r.parentFacts(p, facts),
			tree:       tree[p],
			treeSource: owner,
			log:        treeLog[p],
		})
	}
}

// claim marks provider|id as belonging to asc. It returns false when the
// identifier was already claimed by a different position.
func (r *run) claim(provider, id string, asc int) bool {
	key := provider + "|" + id
	if at, ok := r.visited[key]; ok && at != asc {
		return false
	}
	r.visited[key] = asc
	return true
}

func (r *run) ownerOf(a *model.Ancestor) string {
	if a == nil || a.SourcePersonID == "" {
		return ""
	}
	if o, ok := r.owner[a.SourcePersonID]; ok {
		return o
	}
	return a.Source
}

// parentFacts derives the search facts for parent position p from the
// child's facts, an anchor for p and any customer-supplied facts for p.
func (r *run) parentFacts(p int, child model.KnownFacts) model.KnownFacts {
	f := model.KnownFacts{
		Gender:          model.ExpectedGender(p),
		ChildBirthYear:  child.BirthYear(),
		ChildBirthPlace: child.BirthPlace,
	}
	if y := child.BirthYear(); y > 0 {
		f.EstimatedBirthYear = y - r.cfg.ParentAgeEstimate
	}
	if p%2 == 0 {
		f.Name = child.FatherName
		if f.Name == "" {
			f.Name = surnameOf(child.Name)
		}
	} else {
		f.Name = child.MotherName
	}
	if a, ok := r.anchors[p]; ok {
		f = a.Facts().Merge(f)
	}
	if k, ok := r.known[p]; ok {
		f = k.Merge(f)
	}
	return f
}

func logEntry(pass, src, query string, n int) model.SearchLogEntry {
	return model.SearchLogEntry{Pass: pass, Source: src, Query: query, ResultCount: n, At: time.Now().UTC()}
}
