package source

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lineage-cli/internal/metrics"
	"github.com/sells-group/lineage-cli/internal/model"
	"github.com/sells-group/lineage-cli/internal/resilience"
)

// Limited wraps an adapter with its own limiter: pacing, sliding window,
// retry on rate limit, degradation for the window after repeated rate
// limiting, and a sticky unavailable flag after an authentication failure.
// It exposes every capability interface but only forwards the ones the
// inner adapter declares.
type Limited struct {
	inner   Adapter
	limiter *resilience.Limiter

	authFailed atomic.Bool
}

var (
	_ Searcher         = (*Limited)(nil)
	_ TreeWalker       = (*Limited)(nil)
	_ Confirmer        = (*Limited)(nil)
	_ EvidenceProvider = (*Limited)(nil)
)

// NewLimited wraps inner with a fresh limiter built from cfg.
func NewLimited(inner Adapter, cfg resilience.LimiterConfig) *Limited {
	name := inner.Name()
	cfg.OnDegrade = func(on bool) { metrics.SetDegraded(name, on) }
	cfg.OnRateLimited = func() { metrics.RecordRateLimited(name) }
	return &Limited{
		inner:   inner,
		limiter: resilience.NewLimiter(name, cfg),
	}
}

func (l *Limited) Name() string             { return l.inner.Name() }
func (l *Limited) Capabilities() Capability { return l.inner.Capabilities() }

// Available is false after an auth failure, while degraded, or when the
// inner adapter reports itself unavailable.
func (l *Limited) Available() bool {
	return !l.authFailed.Load() && !l.limiter.Degraded() && l.inner.Available()
}

// Unwrap returns the wrapped adapter.
func (l *Limited) Unwrap() Adapter { return l.inner }

// ResetAuth clears a sticky authentication failure. Called at job start.
func (l *Limited) ResetAuth() { l.authFailed.Store(false) }

func call[T any](ctx context.Context, l *Limited, op string, need Capability, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if !l.inner.Capabilities().Has(need) {
		return zero, eris.Wrapf(ErrUnsupported, "%s: %s", l.Name(), op)
	}
	if !l.Available() {
		metrics.RecordSourceCall(l.Name(), op, "unavailable", 0)
		return zero, eris.Wrapf(ErrUnavailable, "%s: %s", l.Name(), op)
	}

	start := time.Now()
	val, err := resilience.Call(ctx, l.limiter, fn)
	elapsed := time.Since(start)

	switch {
	case err == nil:
		metrics.RecordSourceCall(l.Name(), op, "ok", elapsed)
		return val, nil
	case resilience.IsAuth(err):
		l.authFailed.Store(true)
		metrics.RecordSourceCall(l.Name(), op, "auth", elapsed)
		zap.L().Error("source authentication failed; unavailable for the rest of the job",
			zap.String("source", l.Name()),
			zap.String("op", op),
			zap.Error(err),
		)
		return zero, eris.Wrapf(ErrAuth, "%s: %s: %v", l.Name(), op, err)
	case errors.Is(err, resilience.ErrCircuitOpen), resilience.IsRateLimited(err):
		metrics.RecordSourceCall(l.Name(), op, "rate_limited", elapsed)
		return zero, eris.Wrapf(ErrRateLimited, "%s: %s", l.Name(), op)
	default:
		metrics.RecordSourceCall(l.Name(), op, "error", elapsed)
		return zero, eris.Wrapf(err, "%s: %s", l.Name(), op)
	}
}

// Search forwards to the inner Searcher.
func (l *Limited) Search(ctx context.Context, q Query) ([]model.Candidate, error) {
	return call(ctx, l, "search", CapSearch, func(ctx context.Context) ([]model.Candidate, error) {
		return l.inner.(Searcher).Search(ctx, q)
	})
}

// Parents forwards to the inner TreeWalker.
func (l *Limited) Parents(ctx context.Context, personID string) (Parents, error) {
	return call(ctx, l, "parents", CapTree, func(ctx context.Context) (Parents, error) {
		return l.inner.(TreeWalker).Parents(ctx, personID)
	})
}

// Ancestry forwards to the inner TreeWalker.
func (l *Limited) Ancestry(ctx context.Context, personID string, depth int) ([]model.Candidate, error) {
	return call(ctx, l, "ancestry", CapTree, func(ctx context.Context) ([]model.Candidate, error) {
		return l.inner.(TreeWalker).Ancestry(ctx, personID, depth)
	})
}

// ConfirmBirth forwards to the inner Confirmer.
func (l *Limited) ConfirmBirth(ctx context.Context, name string, year int) (*model.VitalEntry, error) {
	return call(ctx, l, "confirm_birth", CapConfirm, func(ctx context.Context) (*model.VitalEntry, error) {
		return l.inner.(Confirmer).ConfirmBirth(ctx, name, year)
	})
}

// ConfirmDeath forwards to the inner Confirmer.
func (l *Limited) ConfirmDeath(ctx context.Context, name string, year int) (*model.VitalEntry, error) {
	return call(ctx, l, "confirm_death", CapConfirm, func(ctx context.Context) (*model.VitalEntry, error) {
		return l.inner.(Confirmer).ConfirmDeath(ctx, name, year)
	})
}

// FindMarriage forwards to the inner Confirmer.
func (l *Limited) FindMarriage(ctx context.Context, name string, year int) (*model.VitalEntry, error) {
	return call(ctx, l, "find_marriage", CapConfirm, func(ctx context.Context) (*model.VitalEntry, error) {
		return l.inner.(Confirmer).FindMarriage(ctx, name, year)
	})
}

// Evidence forwards to the inner EvidenceProvider.
func (l *Limited) Evidence(ctx context.Context, personID string) ([]model.EvidenceCitation, error) {
	return call(ctx, l, "evidence", CapEvidence, func(ctx context.Context) ([]model.EvidenceCitation, error) {
		return l.inner.(EvidenceProvider).Evidence(ctx, personID)
	})
}
