package traversal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lineage-cli/internal/model"
)

func TestStrategies_Order(t *testing.T) {
	var names []string
	for _, s := range Strategies {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{
		PassExact, PassRelaxed, PassFirstGiven, PassInitials,
		PassBirthYear, PassSurnameVar, PassPlace, PassNicknames,
	}, names)
}

func TestStrategies_Build(t *testing.T) {
	cfg := DefaultConfig()
	full := model.KnownFacts{Name: "John Henry Smith", BirthDate: "1920", BirthPlace: "Derby", Gender: model.GenderMale}

	exact := exactQueries(full, cfg)
	require.Len(t, exact, 1)
	assert.Equal(t, "john henry", exact[0].GivenNames)
	assert.Equal(t, "smith", exact[0].Surname)
	assert.Equal(t, 1920, exact[0].BirthYear)
	assert.Zero(t, exact[0].YearRange)
	assert.Equal(t, "Derby", exact[0].BirthPlace)
	assert.Equal(t, cfg.SearchLimit, exact[0].Limit)

	relaxed := relaxedQueries(full, cfg)
	require.Len(t, relaxed, 1)
	assert.Equal(t, 2, relaxed[0].YearRange)
	assert.Empty(t, relaxed[0].BirthPlace)

	first := firstGivenQueries(full, cfg)
	require.Len(t, first, 1)
	assert.Equal(t, "john", first[0].GivenNames)

	assert.Empty(t, initialsQueries(full, cfg))
	initials := initialsQueries(model.KnownFacts{Name: "J H Smith"}, cfg)
	require.Len(t, initials, 1)
	assert.Equal(t, "smith", initials[0].Surname)

	by := birthYearQueries(full, cfg)
	require.Len(t, by, 1)
	assert.Empty(t, by[0].GivenNames)
	assert.Equal(t, 5, by[0].YearRange)

	place := placeQueries(full, cfg)
	require.Len(t, place, 1)
	assert.Equal(t, "Derby", place[0].BirthPlace)
	assert.Empty(t, placeQueries(model.KnownFacts{Name: "John Smith"}, cfg))

	assert.LessOrEqual(t, len(surnameVariantQueries(full, cfg)), cfg.MaxVariants)
	assert.LessOrEqual(t, len(nicknameQueries(full, cfg)), cfg.MaxVariants)
}

func TestStrategies_NoNameBuildsNothing(t *testing.T) {
	cfg := DefaultConfig()
	f := model.KnownFacts{Gender: model.GenderFemale, EstimatedBirthYear: 1890}
	for _, s := range Strategies {
		assert.Empty(t, s.Build(f, cfg), s.Name)
	}
	assert.Empty(t, supplementaryQueries(f, cfg))
}

func TestBirthWindow(t *testing.T) {
	tests := []struct {
		name       string
		facts      model.KnownFacts
		year, span int
	}{
		{"known", model.KnownFacts{BirthDate: "12 Mar 1901"}, 1901, 2},
		{"estimated", model.KnownFacts{EstimatedBirthYear: 1890}, 1890, 10},
		{"none", model.KnownFacts{}, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			y, s := birthWindow(tt.facts, 2)
			assert.Equal(t, tt.year, y)
			assert.Equal(t, tt.span, s)
		})
	}
}

func TestSupplementaryQueries_FallsBackToSurname(t *testing.T) {
	cfg := DefaultConfig()
	qs := supplementaryQueries(model.KnownFacts{Name: "Smith", BirthDate: "1900"}, cfg)
	require.Len(t, qs, 1)
	assert.Equal(t, "smith", qs[0].Surname)
	assert.Equal(t, 1900, qs[0].BirthYear)
}

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	bad := DefaultConfig()
	bad.MaxDepth = 0
	bad.AcceptThreshold = 120
	err := bad.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_depth")
}
