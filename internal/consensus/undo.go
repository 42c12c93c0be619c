package consensus

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lineage-cli/internal/metrics"
	"github.com/sells-group/lineage-cli/internal/model"
	"github.com/sells-group/lineage-cli/internal/store"
)

// Undo reverses one logged correction on a position: the prior value is
// restored, the entry is marked reversed and a reversal entry is appended.
// Undoing an automated correction records negative feedback that later
// consensus passes send to the reviewers.
func (e *Engine) Undo(ctx context.Context, jobID string, asc int, correctionID string) (*model.CorrectionEntry, error) {
	if !e.acquire(jobID) {
		return nil, eris.Wrapf(ErrAlreadyRunning, "job %s", jobID)
	}
	defer e.release(jobID)

	a, err := e.store.GetAncestorByPosition(ctx, jobID, asc)
	if err != nil {
		return nil, eris.Wrap(err, "consensus: load position")
	}
	idx := slices.IndexFunc(a.CorrectionsLog, func(c model.CorrectionEntry) bool { return c.ID == correctionID })
	if idx < 0 {
		return nil, eris.Wrapf(store.ErrNotFound, "correction %s on position %d", correctionID, asc)
	}
	entry := a.CorrectionsLog[idx]

	switch {
	case entry.Reversed:
		return nil, eris.Wrapf(ErrNotReversible, "correction %s was already undone", entry.ID)
	case entry.Kind == model.CorrectionReversal:
		return nil, eris.Wrapf(ErrNotReversible, "correction %s is itself a reversal", entry.ID)
	case a.IsCustomerData() && (entry.Field == model.FieldName || entry.Field == model.FieldConfidenceScore):
		return nil, eris.Wrapf(ErrNotReversible, "%s is customer data on position %d", entry.Field, asc)
	}

	current, ok := a.Field(entry.Field)
	patch, pok := model.FieldPatch(entry.Field, entry.Before)
	if !ok || !pok {
		return nil, eris.Wrapf(ErrNotReversible, "field %q", entry.Field)
	}

	reversal := model.CorrectionEntry{
		ID:     uuid.New().String(),
		Kind:   model.CorrectionReversal,
		Field:  entry.Field,
		Before: current,
		After:  entry.Before,
		Reason: fmt.Sprintf("undo %s correction %s", entry.Kind, entry.ID),
		At:     time.Now().UTC(),
	}
	log := slices.Clone(a.CorrectionsLog)
	log[idx].Reversed = true
	patch.CorrectionsLog = append(log, reversal)

	if _, err := e.store.UpdateAncestorByPosition(ctx, jobID, asc, patch); err != nil {
		return nil, eris.Wrapf(err, "consensus: undo position %d", asc)
	}

	if entry.Kind == model.CorrectionConsensus || entry.Kind == model.CorrectionEnrich {
		err := e.store.RecordFeedback(ctx, model.Feedback{
			JobID:         jobID,
			AscendancyNum: asc,
			Field:         entry.Field,
			RejectedValue: entry.After,
			RestoredValue: entry.Before,
		})
		if err != nil {
			return nil, eris.Wrap(err, "consensus: record feedback")
		}
	}
	metrics.RecordConsensus("undo", string(entry.Kind))

	zap.L().Info("consensus: correction undone",
		zap.String("job_id", jobID),
		zap.Int("asc", asc),
		zap.String("correction_id", entry.ID),
		zap.String("field", entry.Field),
		zap.String("restored", entry.Before),
	)
	return &reversal, nil
}
