package names

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"  John  SMITH ", "john smith"},
		{"O'Brien", "obrien"},
		{"Zoë Brontë", "zoe bronte"},
		{"Mr. William  Henry-Jones", "william henry jones"},
		{"Smith, John Jnr", "smith john"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestParse(t *testing.T) {
	p := Parse("John Henry Smith")
	assert.Equal(t, []string{"john", "henry"}, p.Given)
	assert.Equal(t, "smith", p.Surname)
	assert.Equal(t, "john", p.First())

	p = Parse("Smith, Mary Ann")
	assert.Equal(t, []string{"mary", "ann"}, p.Given)
	assert.Equal(t, "smith", p.Surname)

	p = Parse("William /Hardy/")
	assert.Equal(t, []string{"william"}, p.Given)
	assert.Equal(t, "hardy", p.Surname)

	p = Parse("Brown")
	assert.Empty(t, p.Given)
	assert.Equal(t, "brown", p.Surname)

	assert.True(t, Parse("").Empty())
}

func TestCompareGiven(t *testing.T) {
	assert.Equal(t, GivenExact, CompareGiven("william", "william"))
	assert.Equal(t, GivenNickname, CompareGiven("bill", "william"))
	assert.Equal(t, GivenNickname, CompareGiven("peggy", "margaret"))
	assert.Equal(t, GivenInitial, CompareGiven("w", "william"))
	assert.Equal(t, GivenNone, CompareGiven("j", "william"))
	assert.Equal(t, GivenNone, CompareGiven("george", "william"))
	assert.Equal(t, GivenNone, CompareGiven("", "william"))
}

func TestNicknames(t *testing.T) {
	nn := Nicknames("Bill")
	assert.Contains(t, nn, "william")
	assert.Contains(t, nn, "will")
	assert.NotContains(t, nn, "bill")
	assert.Empty(t, Nicknames("Zebedee"))
}

func TestSoundex(t *testing.T) {
	tests := map[string]string{
		"Robert":   "R163",
		"Rupert":   "R163",
		"Ashcraft": "A261",
		"Tymczak":  "T522",
		"Pfister":  "P236",
		"Lee":      "L000",
		"":         "",
	}
	for in, want := range tests {
		assert.Equal(t, want, Soundex(in), in)
	}
}

func TestCompareSurname(t *testing.T) {
	assert.Equal(t, SurnameExact, CompareSurname("Smith", "SMITH"))
	assert.Equal(t, SurnameVariant, CompareSurname("Smith", "Smythe"))
	assert.Equal(t, SurnameVariant, CompareSurname("MacDonald", "McDonald"))
	assert.Equal(t, SurnameVariant, CompareSurname("Clark", "Clarke"))
	assert.Equal(t, SurnameSoundex, CompareSurname("Ashcroft", "Ashcraft"))
	assert.Equal(t, SurnameNone, CompareSurname("Smith", "Jones"))
}

func TestSurnameVariants(t *testing.T) {
	v := SurnameVariants("Thompson")
	assert.Contains(t, v, "thomson")
	assert.Contains(t, v, "tomson")
	assert.NotContains(t, v, "thompson")
	assert.Contains(t, SurnameVariants("Mackay"), "mckay")
}

func TestInitialsForm(t *testing.T) {
	assert.Equal(t, "j h", InitialsForm([]string{"john", "henry"}))
	assert.Equal(t, "", InitialsForm(nil))
}

func TestWordOverlap(t *testing.T) {
	assert.InDelta(t, 1.0, WordOverlap("born in Derby", "Born in derby"), 0.001)
	assert.InDelta(t, 0.667, WordOverlap("St Mary Derby", "Derby St"), 0.01)
	assert.Equal(t, 0.0, WordOverlap("", ""))
}

func TestCommonPrefixLen(t *testing.T) {
	assert.Equal(t, 3, CommonPrefixLen("thom", "thos"))
	assert.Equal(t, 0, CommonPrefixLen("", "abc"))
}
