package source

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/lineage-cli/internal/model"
	"github.com/sells-group/lineage-cli/internal/resilience"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

// fakeAdapter implements every capability interface; caps decides which
// ones it declares.
type fakeAdapter struct {
	name      string
	caps      Capability
	available bool

	search  func(ctx context.Context, q Query) ([]model.Candidate, error)
	parents func(ctx context.Context, id string) (Parents, error)
	calls   int
}

func newFake(name string, caps Capability) *fakeAdapter {
	return &fakeAdapter{name: name, caps: caps, available: true}
}

func (f *fakeAdapter) Name() string             { return f.name }
func (f *fakeAdapter) Capabilities() Capability { return f.caps }
func (f *fakeAdapter) Available() bool          { return f.available }

func (f *fakeAdapter) Search(ctx context.Context, q Query) ([]model.Candidate, error) {
	f.calls++
	if f.search != nil {
		return f.search(ctx, q)
	}
	return nil, nil
}

func (f *fakeAdapter) Parents(ctx context.Context, id string) (Parents, error) {
	f.calls++
	if f.parents != nil {
		return f.parents(ctx, id)
	}
	return Parents{}, nil
}

func (f *fakeAdapter) Ancestry(context.Context, string, int) ([]model.Candidate, error) {
	f.calls++
	return nil, nil
}

func (f *fakeAdapter) ConfirmBirth(context.Context, string, int) (*model.VitalEntry, error) {
	f.calls++
	return nil, nil
}

func (f *fakeAdapter) ConfirmDeath(context.Context, string, int) (*model.VitalEntry, error) {
	f.calls++
	return nil, nil
}

func (f *fakeAdapter) FindMarriage(context.Context, string, int) (*model.VitalEntry, error) {
	f.calls++
	return nil, nil
}

func (f *fakeAdapter) Evidence(context.Context, string) ([]model.EvidenceCitation, error) {
	f.calls++
	return nil, nil
}

func testLimiterConfig(attempts, degradeAfter int) resilience.LimiterConfig {
	return resilience.LimiterConfig{
		Window:       time.Hour,
		DegradeAfter: degradeAfter,
		Retry: resilience.RetryConfig{
			MaxAttempts:    attempts,
			InitialBackoff: time.Millisecond,
			MaxBackoff:     5 * time.Millisecond,
			Multiplier:     2.0,
		},
	}
}
