package source

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lineage-cli/internal/model"
	"github.com/sells-group/lineage-cli/internal/resilience"
)

func TestLimited_Forwards(t *testing.T) {
	inner := newFake("fs", CapSearch|CapTree)
	inner.search = func(_ context.Context, q Query) ([]model.Candidate, error) {
		return []model.Candidate{{Source: "fs", PersonID: "P1", Name: q.GivenNames + " " + q.Surname}}, nil
	}
	l := NewLimited(inner, testLimiterConfig(2, 3))

	got, err := l.Search(context.Background(), Query{GivenNames: "John", Surname: "Smith"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "John Smith", got[0].Name)
	assert.Equal(t, "fs", l.Name())
	assert.Same(t, inner, l.Unwrap())
}

func TestLimited_UnsupportedCapability(t *testing.T) {
	inner := newFake("search-only", CapSearch)
	l := NewLimited(inner, testLimiterConfig(1, 3))

	_, err := l.Parents(context.Background(), "X")
	assert.ErrorIs(t, err, ErrUnsupported)
	_, err = l.ConfirmBirth(context.Background(), "John Smith", 1921)
	assert.ErrorIs(t, err, ErrUnsupported)
	assert.Equal(t, 0, inner.calls)
}

func TestLimited_AuthFailureIsSticky(t *testing.T) {
	inner := newFake("fs", CapSearch)
	inner.search = func(context.Context, Query) ([]model.Candidate, error) {
		return nil, &resilience.AuthError{Err: errors.New("401"), StatusCode: 401}
	}
	l := NewLimited(inner, testLimiterConfig(3, 3))

	_, err := l.Search(context.Background(), Query{Surname: "Smith"})
	assert.ErrorIs(t, err, ErrAuth)
	assert.Equal(t, 1, inner.calls, "auth failures are not retried")
	assert.False(t, l.Available())

	_, err = l.Search(context.Background(), Query{Surname: "Smith"})
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, 1, inner.calls)

	l.ResetAuth()
	assert.True(t, l.Available())
}

func TestLimited_DegradesAfterRepeatedRateLimits(t *testing.T) {
	inner := newFake("wt", CapSearch|CapTree)
	inner.parents = func(context.Context, string) (Parents, error) {
		return Parents{}, &resilience.RateLimitError{Err: errors.New("429")}
	}
	l := NewLimited(inner, testLimiterConfig(5, 2))

	_, err := l.Parents(context.Background(), "Smith-1")
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, 2, inner.calls)
	assert.False(t, l.Available())

	r := NewRegistry(l)
	assert.Empty(t, r.Searchers(), "degraded adapter drops out of the registry")
}

func TestLimited_InnerUnavailable(t *testing.T) {
	inner := newFake("fs", CapSearch)
	inner.available = false
	l := NewLimited(inner, testLimiterConfig(1, 3))

	_, err := l.Search(context.Background(), Query{Surname: "Smith"})
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, 0, inner.calls)
}

func TestLimited_PlainErrorPassesThrough(t *testing.T) {
	boom := errors.New("decode failed")
	inner := newFake("fs", CapSearch)
	inner.search = func(context.Context, Query) ([]model.Candidate, error) { return nil, boom }
	l := NewLimited(inner, testLimiterConfig(3, 3))

	_, err := l.Search(context.Background(), Query{Surname: "Smith"})
	assert.ErrorIs(t, err, boom)
	assert.True(t, l.Available())
}
