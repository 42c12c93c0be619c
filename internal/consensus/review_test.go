package consensus

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseReview(t *testing.T) {
	text := "Here is my review:\n```json\n" + `{"positions":[
		{"ascendancy_number":2,"confidence_delta":5,"issues":[]},
		{"ascendancy_number":3,"confidence_delta":-8,"issues":[{"field":"birth_date","description":"census says 1923","suggested_correction":"Birth year should be 1923"}]}
	]}` + "\n```"

	r, err := parseReview(text, 4096)
	require.NoError(t, err)
	require.Len(t, r.Positions, 2)

	p, ok := r.Position(3)
	require.True(t, ok)
	assert.Equal(t, -8, p.ConfidenceDelta)
	require.Len(t, p.Issues, 1)
	assert.Equal(t, "Birth year should be 1923", p.Issues[0].SuggestedCorrection)

	_, ok = r.Position(9)
	assert.False(t, ok)
}

func TestParseReview_Rejects(t *testing.T) {
	tests := []struct {
		name string
		text string
		max  int
	}{
		{"no json", "I could not review this tree.", 4096},
		{"malformed", `{"positions":[{"ascendancy_number":2,}]}`, 4096},
		{"delta out of range", `{"positions":[{"ascendancy_number":2,"confidence_delta":35}]}`, 4096},
		{"subject position", `{"positions":[{"ascendancy_number":1,"confidence_delta":3}]}`, 4096},
		{"missing position", `{"positions":[{"confidence_delta":3}]}`, 4096},
		{"unknown field", `{"positions":[],"verdict":"fine"}`, 4096},
		{"duplicate position", `{"positions":[{"ascendancy_number":2},{"ascendancy_number":2}]}`, 4096},
		{"oversized", `{"positions":[]}` + strings.Repeat(" ", 200), 64},
		{"too many issues", `{"positions":[{"ascendancy_number":2,"issues":[` + strings.TrimSuffix(strings.Repeat(`{"description":"x"},`, 21), ",") + `]}]}`, 4096},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseReview(tt.text, tt.max)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidReview)
		})
	}
}
