// Package store persists jobs, tree positions, search candidates, the
// rejection blacklist and reviewer feedback.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lineage-cli/internal/model"
)

// ErrNotFound is returned when a job, position or candidate does not exist.
var ErrNotFound = eris.New("store: not found")

// JobFilter specifies criteria for listing jobs.
type JobFilter struct {
	Status model.JobStatus `json:"status,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for tree-building jobs. All
// position writes are keyed by (job, ascendancy number).
type Store interface {
	// Jobs
	CreateJob(ctx context.Context, depth int) (*model.Job, error)
	GetJob(ctx context.Context, jobID string) (*model.Job, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]model.Job, error)
	UpdateJobStatus(ctx context.Context, jobID string, status model.JobStatus, errMsg string) error
	UpdateJobProgress(ctx context.Context, jobID string, processed, total int) error

	// Positions
	CreateAncestor(ctx context.Context, a *model.Ancestor) error
	GetAncestorByPosition(ctx context.Context, jobID string, asc int) (*model.Ancestor, error)
	UpdateAncestorByPosition(ctx context.Context, jobID string, asc int, patch model.AncestorPatch) (*model.Ancestor, error)
	ListAncestors(ctx context.Context, jobID string) ([]model.Ancestor, error)
	DeleteSubtree(ctx context.Context, jobID string, asc int) (int, error)

	// Rejection blacklist
	AddRejectedSourceID(ctx context.Context, jobID, source, personID, reason string) error
	ListRejectedSourceIDs(ctx context.Context, jobID string) ([]string, error)

	// Search candidates
	RecordSearchCandidates(ctx context.Context, jobID string, asc int, cands []model.SearchCandidate) error
	ListSearchCandidates(ctx context.Context, jobID string, asc int) ([]model.SearchCandidate, error)
	GetSearchCandidate(ctx context.Context, id string) (*model.SearchCandidate, error)

	// Reviewer feedback
	RecordFeedback(ctx context.Context, f model.Feedback) error
	ListFeedback(ctx context.Context, limit int) ([]model.Feedback, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// subtree filters positions to those in the subtree rooted at asc.
func subtree(positions []int, asc int) []int {
	var out []int
	for _, p := range positions {
		if model.IsAncestorPosition(asc, p) {
			out = append(out, p)
		}
	}
	return out
}

// prepareAncestor fills derived fields before an insert.
func prepareAncestor(a *model.Ancestor) {
	a.Generation = model.Generation(a.AscendancyNum)
	a.ConfidenceScore = model.ClampScore(a.ConfidenceScore)
	if a.ConfidenceLevel == "" {
		a.ConfidenceLevel = model.LevelFor(a.ConfidenceScore)
	}
}
