package scorer

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/sells-group/lineage-cli/internal/gazetteer"
	"github.com/sells-group/lineage-cli/internal/model"
	"github.com/sells-group/lineage-cli/internal/names"
)

// Scorer computes candidate scores against known facts.
type Scorer struct {
	w      Weights
	places gazetteer.Lookup
}

// New creates a Scorer. A nil places lookup uses the embedded gazetteer.
func New(w Weights, places gazetteer.Lookup) *Scorer {
	if places == nil {
		places = gazetteer.Default()
	}
	return &Scorer{w: w, places: places}
}

// Weights returns the table the scorer was built with.
func (s *Scorer) Weights() Weights { return s.w }

// Breakdown is the per-channel explanation of a score.
type Breakdown struct {
	Channels  map[string]int `json:"channels"`
	Penalties map[string]int `json:"penalties,omitempty"`
	Gate      string         `json:"gate,omitempty"`
	Total     int            `json:"total"`
}

// String renders the breakdown compactly for search logs.
func (b Breakdown) String() string {
	var parts []string
	for _, k := range sortedKeys(b.Channels) {
		if v := b.Channels[k]; v != 0 {
			parts = append(parts, fmt.Sprintf("%s+%d", k, v))
		}
	}
	for _, k := range sortedKeys(b.Penalties) {
		parts = append(parts, fmt.Sprintf("%s-%d", k, b.Penalties[k]))
	}
	if b.Gate != "" {
		parts = append(parts, "gate:"+b.Gate)
	}
	return fmt.Sprintf("%d [%s]", b.Total, strings.Join(parts, " "))
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Score returns the 0-100 match score of c against facts. expected is the
// gender implied by the tree position (GenderUnknown for the subject).
func (s *Scorer) Score(c model.Candidate, facts model.KnownFacts, expected model.Gender) int {
	return s.Explain(c, facts, expected).Total
}

// Explain scores c and returns the per-channel breakdown.
func (s *Scorer) Explain(c model.Candidate, facts model.KnownFacts, expected model.Gender) Breakdown {
	b := Breakdown{Channels: make(map[string]int), Penalties: make(map[string]int)}

	caps := s.w.WithoutParents
	parentsComparable := (facts.FatherName != "" && c.FatherName != "") ||
		(facts.MotherName != "" && c.MotherName != "")
	if parentsComparable {
		caps = s.w.WithParents
	}

	want := names.Parse(facts.Name)
	got := names.ParseParts(c.GivenNames, c.Surname, c.Name)

	// Name.
	surnameFrac := surnameCredit(names.CompareSurname(want.Surname, got.Surname))
	givenFrac := givenCredit(want, got)
	b.Channels["surname"] = credit(caps.Surname, surnameFrac)
	b.Channels["given"] = credit(caps.Given, givenFrac)
	nameMatched := surnameFrac > 0 || givenFrac > 0
	nameCompared := want.Surname != "" || len(want.Given) > 0

	// Birth date.
	wantBirth, gotBirth := facts.BirthYear(), c.BirthYear()
	birthCompared := wantBirth > 0 && gotBirth > 0
	birthMatched := false
	if birthCompared {
		diff := absInt(wantBirth - gotBirth)
		frac := yearCredit(diff)
		b.Channels["birth"] = credit(caps.Birth, frac)
		birthMatched = frac > 0
		if diff > 10 {
			b.Penalties["birth_far"] = s.w.BirthFarPenalty
		}
	}

	// Death date.
	if wantDeath, gotDeath := facts.DeathYear(), c.DeathYear(); wantDeath > 0 && gotDeath > 0 {
		diff := absInt(wantDeath - gotDeath)
		b.Channels["death"] = credit(caps.Death, yearCredit(diff))
		if diff > 10 {
			b.Penalties["death_far"] = s.w.DeathFarPenalty
		}
	}

	// Place.
	s.scorePlace(&b, caps, facts.BirthPlace, c.BirthPlace)

	// Generational plausibility.
	if facts.ChildBirthYear > 0 && gotBirth > 0 && !s.Plausible(gotBirth, facts.ChildBirthYear) {
		b.Penalties["implausible_parent"] = s.w.ImplausiblePenalty
	}

	// Parent-name cross-check.
	if parentsComparable {
		frac, conflicts := parentCredit(facts, c)
		b.Channels["parents"] = credit(caps.Parents, frac)
		if conflicts > 0 {
			b.Penalties["parent_conflict"] = conflicts * s.w.ParentConflictPenalty
		}
	}

	// Gender.
	switch {
	case expected == model.GenderUnknown:
		b.Channels["gender"] = credit(caps.Gender, 0.5)
	case c.Gender == model.GenderUnknown:
		b.Channels["gender"] = credit(caps.Gender, 0.5)
	case c.Gender == expected:
		b.Channels["gender"] = caps.Gender
	default:
		b.Penalties["gender_mismatch"] = s.w.GenderPenalty
	}

	total := 0
	for _, v := range b.Channels {
		total += v
	}
	for _, v := range b.Penalties {
		total -= v
	}

	// Quality gates. A provider-recorded parent with neither a name nor a
	// birth date to compare against is left to tree-link corroboration.
	uncomparable := c.TreeLinked && !nameCompared && !birthCompared
	switch {
	case !nameMatched && !birthMatched && !uncomparable:
		if total > s.w.NoMatchCeiling {
			total = s.w.NoMatchCeiling
			b.Gate = "no_match"
		}
	case birthCompared && !birthMatched:
		if total > s.w.BirthMismatchCeiling {
			total = s.w.BirthMismatchCeiling
			b.Gate = "birth_mismatch"
		}
	}

	b.Total = model.ClampScore(total)
	return b
}

func (s *Scorer) scorePlace(b *Breakdown, caps Caps, want, got string) {
	if strings.TrimSpace(got) == "" {
		return
	}
	if strings.TrimSpace(want) == "" {
		// UK ancestry is assumed when nothing else is known.
		if gazetteer.IsForeign(s.places, got) {
			b.Penalties["foreign_place"] = s.w.ForeignPenalty
		}
		return
	}
	if gazetteer.Conflict(s.places, want, got) {
		b.Penalties["place_conflict"] = s.w.PlaceConflictPenalty
		return
	}
	var frac float64
	switch gazetteer.Compare(s.places, want, got) {
	case gazetteer.MatchTown:
		frac = 1.0
	case gazetteer.MatchCounty:
		frac = 0.8
	case gazetteer.MatchAdjacentCounty:
		frac = 0.6
	case gazetteer.MatchCountry:
		frac = 0.4
	case gazetteer.MatchSubstring:
		frac = 0.3
	}
	b.Channels["place"] = credit(caps.Place, frac)
}

// Plausible reports whether a parent born in parentBirth could be the
// parent of a child born in childBirth.
func (s *Scorer) Plausible(parentBirth, childBirth int) bool {
	if parentBirth <= 0 || childBirth <= 0 {
		return true
	}
	gap := childBirth - parentBirth
	return gap >= s.w.MinParentAge && gap <= s.w.MaxParentAge
}

func surnameCredit(m names.SurnameMatch) float64 {
	switch m {
	case names.SurnameExact:
		return 1.0
	case names.SurnameVariant:
		return 0.8
	case names.SurnameSoundex:
		return 0.5
	default:
		return 0
	}
}

// givenCredit grades the first given name and gives a small lift when the
// remaining given names also agree.
func givenCredit(want, got names.Parsed) float64 {
	var frac float64
	switch names.CompareGiven(want.First(), got.First()) {
	case names.GivenExact:
		frac = 0.9
	case names.GivenNickname:
		frac = 0.75
	case names.GivenInitial:
		frac = 0.5
	default:
		return 0
	}
	if len(want.Given) > 1 && len(got.Given) > 1 {
		if names.CompareGiven(want.Given[1], got.Given[1]) != names.GivenNone {
			frac += 0.1
		}
	} else if len(want.Given) == len(got.Given) {
		frac += 0.1
	}
	return math.Min(frac, 1.0)
}

func yearCredit(diff int) float64 {
	switch {
	case diff == 0:
		return 1.0
	case diff <= 1:
		return 0.8
	case diff <= 2:
		return 0.6
	case diff <= 5:
		return 0.3
	default:
		return 0
	}
}

// parentCredit compares the father and mother names that both sides carry.
// A name present on both sides that shares neither given name nor surname is
// a conflict.
func parentCredit(facts model.KnownFacts, c model.Candidate) (float64, int) {
	var sum float64
	var compared, conflicts int
	for _, pair := range [][2]string{{facts.FatherName, c.FatherName}, {facts.MotherName, c.MotherName}} {
		if pair[0] == "" || pair[1] == "" {
			continue
		}
		compared++
		frac := parentNameCredit(pair[0], pair[1])
		if frac == 0 {
			conflicts++
		}
		sum += frac
	}
	if compared == 0 {
		return 0, 0
	}
	return sum / float64(compared), conflicts
}

func parentNameCredit(a, b string) float64 {
	pa, pb := names.Parse(a), names.Parse(b)
	given := names.CompareGiven(pa.First(), pb.First())
	surname := names.CompareSurname(pa.Surname, pb.Surname)
	switch {
	case given >= names.GivenNickname && surname >= names.SurnameVariant:
		return 1.0
	case given != names.GivenNone && surname != names.SurnameNone:
		return 0.7
	case given >= names.GivenNickname && (pa.Surname == "" || pb.Surname == ""):
		return 0.6
	case given != names.GivenNone || surname != names.SurnameNone:
		// Mothers are often recorded under a married surname.
		return 0.3
	default:
		return 0
	}
}

func credit(limit int, frac float64) int {
	return int(math.Round(float64(limit) * frac))
}

func absInt(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
