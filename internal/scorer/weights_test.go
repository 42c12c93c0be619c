package scorer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultWeights_Valid(t *testing.T) {
	w := DefaultWeights()
	require.NoError(t, ValidateWeights(w))
	assert.Equal(t, 100, w.WithParents.Sum())
	assert.Equal(t, 100, w.WithoutParents.Sum())
}

func TestValidateWeights(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(w *Weights)
		errMsg string
	}{
		{"negative cap", func(w *Weights) { w.WithParents.Place = -5 }, "with_parents.place must be >= 0"},
		{"caps far from 100", func(w *Weights) { w.WithoutParents.Surname = 60 }, "without_parents caps should sum to about 100"},
		{"parents in no-parent set", func(w *Weights) { w.WithoutParents.Parents = 5 }, "without_parents.parents must be 0"},
		{"negative penalty", func(w *Weights) { w.GenderPenalty = -1 }, "gender_penalty must be >= 0"},
		{"window inverted", func(w *Weights) { w.MaxParentAge = 10 }, "max_parent_age must be > min_parent_age"},
		{"ceilings inverted", func(w *Weights) { w.BirthMismatchCeiling = 10 }, "birth_mismatch_ceiling"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := DefaultWeights()
			tt.mutate(&w)
			err := ValidateWeights(w)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestValidateWeights_StableOrder(t *testing.T) {
	w := DefaultWeights()
	w.WithParents.Surname = -1
	w.WithParents.Gender = -1
	w.WithoutParents.Given = -1
	w.BirthFarPenalty = -1
	w.ImplausiblePenalty = -1

	first := ValidateWeights(w)
	require.Error(t, first)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first.Error(), ValidateWeights(w).Error())
	}

	msg := first.Error()
	order := []string{
		"with_parents.surname", "with_parents.gender", "without_parents.given",
		"birth_far_penalty", "implausible_penalty",
	}
	last := -1
	for _, s := range order {
		idx := strings.Index(msg, s)
		require.GreaterOrEqual(t, idx, 0, s)
		assert.Greater(t, idx, last, "%s out of order", s)
		last = idx
	}
}
