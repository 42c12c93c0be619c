package consensus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lineage-cli/internal/model"
)

func TestParseCorrection(t *testing.T) {
	tests := []struct {
		text  string
		want  Correction
		parse bool
	}{
		{"Birth year should be 1923", Correction{model.FieldBirthDate, "birth", "year", "1923"}, true},
		{"The death year must be 1980.", Correction{model.FieldDeathDate, "death", "year", "1980"}, true},
		{"birth date should be changed to 12 March 1921", Correction{model.FieldBirthDate, "birth", "date", "12 March 1921"}, true},
		{"Birth place should be Derby, Derbyshire because the 1921 census says so", Correction{model.FieldBirthPlace, "birth", "place", "Derby, Derbyshire"}, true},
		{`Death place should be "Leeds".`, Correction{model.FieldDeathPlace, "death", "place", "Leeds"}, true},

		{"Birth year should be 1923 or 1924", Correction{}, false},
		{"Birth year should be around 1923", Correction{}, false},
		{"Perhaps the birth year should be 1923", Correction{}, false},
		{"Birth year should be 1923?", Correction{}, false},
		{"Birth year should be 23", Correction{}, false},
		{"Birth year should be c.1923", Correction{}, false},
		{"Birth place should be 1923", Correction{}, false},
		{"Birth place should be Leeds and death place should be York", Correction{}, false},
		{"Birth year should be 1921; death year should be 1980", Correction{}, false},
		{"Check the birth year against the census", Correction{}, false},
		{"Wrong person entirely", Correction{}, false},
		{"", Correction{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, ok := ParseCorrection(tt.text)
			require.Equal(t, tt.parse, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEquivalentCorrections(t *testing.T) {
	c := func(field, part, value string) Correction {
		return Correction{Field: field, Event: "birth", Part: part, Value: value}
	}
	tests := []struct {
		name string
		a, b Correction
		want bool
	}{
		{"same year", c(model.FieldBirthDate, "year", "1923"), c(model.FieldBirthDate, "year", "1923"), true},
		{"different year", c(model.FieldBirthDate, "year", "1923"), c(model.FieldBirthDate, "year", "1924"), false},
		{"date overlap", c(model.FieldBirthDate, "date", "March 1921"), c(model.FieldBirthDate, "date", "12 March 1921"), true},
		{"date same year little overlap", c(model.FieldBirthDate, "date", "1 Jan 1921"), c(model.FieldBirthDate, "date", "30 Dec 1921"), false},
		{"place case and punctuation", c(model.FieldBirthPlace, "place", "Derby, Derbyshire"), c(model.FieldBirthPlace, "place", "derby derbyshire"), true},
		{"place more specific", c(model.FieldBirthPlace, "place", "Derby"), c(model.FieldBirthPlace, "place", "Derby, Derbyshire"), true},
		{"different town same county", c(model.FieldBirthPlace, "place", "Belper, Derbyshire"), c(model.FieldBirthPlace, "place", "Derby, Derbyshire"), false},
		{"different fields", c(model.FieldBirthPlace, "place", "Derby"), c(model.FieldDeathPlace, "place", "Derby"), false},
		{"empty", c(model.FieldBirthPlace, "place", ""), c(model.FieldBirthPlace, "place", ""), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EquivalentCorrections(tt.a, tt.b))
			assert.Equal(t, tt.want, EquivalentCorrections(tt.b, tt.a))
		})
	}
}

func TestCorrectedValue(t *testing.T) {
	year := Correction{Field: model.FieldBirthDate, Part: "year", Value: "1923"}
	assert.Equal(t, "12 Mar 1923", correctedValue("12 Mar 1921", year))
	assert.Equal(t, "1923", correctedValue("", year))

	place := Correction{Field: model.FieldBirthPlace, Part: "place", Value: "Leeds"}
	assert.Equal(t, "Leeds", correctedValue("York", place))
}
