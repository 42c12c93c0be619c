package merge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lineage-cli/internal/model"
)

func fs(id, name, birth string) model.Candidate {
	return model.Candidate{Source: "familysearch", PersonID: id, Name: name, BirthDate: birth}
}

func wt(id, name, birth string) model.Candidate {
	return model.Candidate{Source: "wikitree", PersonID: id, Name: name, BirthDate: birth}
}

func TestKey(t *testing.T) {
	assert.Equal(t, "john|smith|1921", Key(fs("A", "John Henry Smith", "12 Mar 1921")))
	assert.Equal(t, "john|smith|?", Key(fs("A", "John Smith", "")))
	assert.Equal(t, "john|smith|1921", Key(model.Candidate{GivenNames: "John", Surname: "SMITH", BirthDate: "1921"}))
}

func TestMerge_SamePersonTwoAdapters(t *testing.T) {
	a := fs("KWZ1-ABC", "John Smith", "1921")
	a.BirthPlace = "Derby"
	b := wt("Smith-101", "John Smith", "12 March 1921")
	b.FatherName = "William Smith"

	got := Merge([]model.Candidate{a}, []model.Candidate{b})
	require.Len(t, got, 1)
	c := got[0]
	assert.Equal(t, []string{"familysearch", "wikitree"}, c.Sources)
	assert.Equal(t, "KWZ1-ABC", c.PersonID)
	assert.Equal(t, "Smith-101", c.IDFor("wikitree"))
	assert.Equal(t, "KWZ1-ABC", c.IDFor("familysearch"))
	assert.Equal(t, "Derby", c.BirthPlace)
	assert.Equal(t, "William Smith", c.FatherName)
	assert.Equal(t, "12 March 1921", c.BirthDate, "more precise date of the same year wins")
}

func TestMerge_DistinctPeopleKept(t *testing.T) {
	got := Merge([]model.Candidate{
		fs("A", "John Smith", "1921"),
		fs("B", "John Smith", "1935"),
		fs("C", "Mary Smith", "1921"),
	})
	assert.Len(t, got, 3)
}

func TestMerge_Idempotent(t *testing.T) {
	list := []model.Candidate{
		fs("A", "John Smith", "1921"),
		wt("W1", "John Smith", "1921"),
		fs("B", "Ada Brown", "1893"),
	}
	once := Merge(list)
	twice := Merge(once, once)
	assert.Equal(t, once, twice)
	assert.Len(t, once, 2)
}

func TestMerge_FuzzyPass(t *testing.T) {
	tests := []struct {
		name string
		a, b model.Candidate
		want int
	}{
		{"prefix name, same year", fs("A", "Fred Smith", "1900"), wt("W", "Frederick Smith", "1900"), 1},
		{"shared stem, year within tolerance", fs("A", "Christopher Hall", "1880"), wt("W", "Christophe Hall", "1882"), 1},
		{"one side missing year", fs("A", "John Smith", ""), wt("W", "John Smith", "1921"), 1},
		{"years too far apart", fs("A", "Fred Smith", "1900"), wt("W", "Frederick Smith", "1905"), 2},
		{"different surname", fs("A", "Fred Smith", "1900"), wt("W", "Frederick Smyth", "1900"), 2},
		{"initial is not a stem", fs("A", "J Smith", "1900"), wt("W", "John Smith", "1900"), 2},
		{"short unrelated names", fs("A", "Ann Smith", "1900"), wt("W", "Amy Smith", "1900"), 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Merge([]model.Candidate{tt.a}, []model.Candidate{tt.b})
			assert.Len(t, got, tt.want)
			if tt.want == 1 {
				assert.Equal(t, []string{"familysearch", "wikitree"}, got[0].Sources)
			}
		})
	}
}

func TestExclude(t *testing.T) {
	bl := model.NewBlacklist([]string{"KWZ1-BAD"})
	good := wt("Smith-101", "John Smith", "1921")
	bad := fs("KWZ1-BAD", "John Smith", "1921")

	kept := Exclude([]model.Candidate{bad, good}, bl)
	require.Len(t, kept, 1)

	// A blacklisted record never contributes its source to the survivor.
	got := Merge(kept)
	require.Len(t, got, 1)
	assert.Equal(t, []string{"wikitree"}, got[0].Sources)

	assert.Len(t, Exclude([]model.Candidate{bad, good}, nil), 2)
}
