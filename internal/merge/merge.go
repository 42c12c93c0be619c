// Package merge deduplicates candidates returned by several source adapters
// and records which adapters independently produced each survivor.
package merge

import (
	"sort"
	"strconv"

	"github.com/sells-group/lineage-cli/internal/model"
	"github.com/sells-group/lineage-cli/internal/names"
)

// Fuzzy pass tuning.
const (
	// MinStem is the shortest shared prefix that counts as a common stem.
	MinStem = 4
	// YearTolerance is the largest birth-year gap merged by the fuzzy pass.
	YearTolerance = 2
)

// Key returns the exact-pass dedup key: first given name, surname and birth
// year, or first given name and surname with a loose marker when the birth
// year is unknown.
func Key(c model.Candidate) string {
	p := names.ParseParts(c.GivenNames, c.Surname, c.Name)
	key := p.First() + "|" + p.Surname + "|"
	if y := c.BirthYear(); y > 0 {
		return key + strconv.Itoa(y)
	}
	return key + "?"
}

// Exclude drops candidates carrying a blacklisted identifier.
func Exclude(cands []model.Candidate, bl model.Blacklist) []model.Candidate {
	if len(bl) == 0 {
		return cands
	}
	out := make([]model.Candidate, 0, len(cands))
	for _, c := range cands {
		if !bl.Contains(c) {
			out = append(out, c)
		}
	}
	return out
}

// Merge deduplicates the candidate lists. The first occurrence of a person
// wins; later duplicates fill its blank fields and add their sources. Input
// order is preserved. Merging a merged list again is a no-op.
func Merge(lists ...[]model.Candidate) []model.Candidate {
	var out []model.Candidate
	index := make(map[string]int)

	for _, list := range lists {
		for _, c := range list {
			c = normalizeSources(c)
			k := Key(c)
			if i, ok := index[k]; ok {
				out[i] = absorb(out[i], c)
				continue
			}
			index[k] = len(out)
			out = append(out, c)
		}
	}
	return fuzzyPass(out)
}

// fuzzyPass folds near-duplicates whose surnames agree and whose first given
// names are prefixes of each other or share a stem of at least MinStem
// characters, when birth years are within YearTolerance or one is unknown.
func fuzzyPass(cands []model.Candidate) []model.Candidate {
	merged := make([]bool, len(cands))
	for i := range cands {
		if merged[i] {
			continue
		}
		for j := i + 1; j < len(cands); j++ {
			if merged[j] || !nearDuplicate(cands[i], cands[j]) {
				continue
			}
			cands[i] = absorb(cands[i], cands[j])
			merged[j] = true
		}
	}
	out := cands[:0]
	for i, c := range cands {
		if !merged[i] {
			out = append(out, c)
		}
	}
	return out
}

func nearDuplicate(a, b model.Candidate) bool {
	pa := names.ParseParts(a.GivenNames, a.Surname, a.Name)
	pb := names.ParseParts(b.GivenNames, b.Surname, b.Name)
	if pa.Surname == "" || pa.Surname != pb.Surname {
		return false
	}
	fa, fb := pa.First(), pb.First()
	if fa == "" || fb == "" || names.IsInitial(fa) || names.IsInitial(fb) {
		return false
	}
	shorter := min(len([]rune(fa)), len([]rune(fb)))
	common := names.CommonPrefixLen(fa, fb)
	if common < shorter && common < MinStem {
		return false
	}
	ya, yb := a.BirthYear(), b.BirthYear()
	if ya == 0 || yb == 0 {
		return true
	}
	d := ya - yb
	if d < 0 {
		d = -d
	}
	return d <= YearTolerance
}

// absorb fills the blank fields of dst from src and unions their sources.
func absorb(dst, src model.Candidate) model.Candidate {
	fill := func(d *string, s string) {
		if *d == "" {
			*d = s
		}
	}
	fill(&dst.GivenNames, src.GivenNames)
	fill(&dst.Surname, src.Surname)
	fill(&dst.BirthDate, src.BirthDate)
	fill(&dst.BirthPlace, src.BirthPlace)
	fill(&dst.DeathDate, src.DeathDate)
	fill(&dst.DeathPlace, src.DeathPlace)
	fill(&dst.FatherName, src.FatherName)
	fill(&dst.MotherName, src.MotherName)
	if len(src.BirthDate) > len(dst.BirthDate) && model.YearOf(src.BirthDate) == dst.BirthYear() {
		dst.BirthDate = src.BirthDate
	}
	if dst.Gender == model.GenderUnknown {
		dst.Gender = src.Gender
	}
	if src.RawScore > dst.RawScore {
		dst.RawScore = src.RawScore
	}
	dst.TreeLinked = dst.TreeLinked || src.TreeLinked

	ids := make(map[string]string, len(dst.SourceIDs)+len(src.SourceIDs))
	for k, v := range src.SourceIDs {
		ids[k] = v
	}
	for k, v := range dst.SourceIDs {
		ids[k] = v
	}
	dst.SourceIDs = ids
	dst.Sources = union(dst.Sources, src.Sources)
	return dst
}

// normalizeSources makes sure a candidate lists its own adapter and id.
func normalizeSources(c model.Candidate) model.Candidate {
	if c.Source != "" {
		c.Sources = union(c.Sources, []string{c.Source})
		if c.PersonID != "" {
			if _, ok := c.SourceIDs[c.Source]; !ok {
				ids := make(map[string]string, len(c.SourceIDs)+1)
				for k, v := range c.SourceIDs {
					ids[k] = v
				}
				ids[c.Source] = c.PersonID
				c.SourceIDs = ids
			}
		}
	}
	return c
}

func union(a, b []string) []string {
	set := make(map[string]bool, len(a)+len(b))
	for _, s := range a {
		set[s] = true
	}
	for _, s := range b {
		set[s] = true
	}
	out := make([]string, 0, len(set))
	for s := range set {
		if s != "" {
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}
