package model

import (
	"fmt"
	"math/bits"
	"strconv"
	"time"
)

// ConfidenceLevel is the categorical confidence of a tree position.
type ConfidenceLevel string

const (
	LevelVerified     ConfidenceLevel = "Verified"
	LevelProbable     ConfidenceLevel = "Probable"
	LevelPossible     ConfidenceLevel = "Possible"
	LevelRejected     ConfidenceLevel = "Rejected"
	LevelCustomerData ConfidenceLevel = "Customer Data"
)

// Level thresholds on the 0-100 confidence scale.
const (
	VerifiedThreshold = 90
	ProbableThreshold = 75
	PossibleThreshold = 55
)

// NotFoundSuffix marks the name of a placeholder position that no source could resolve.
const NotFoundSuffix = "(not found)"

// LevelFor maps a numeric confidence score to its category. The score is
// clamped first so the mapping is total.
func LevelFor(score int) ConfidenceLevel {
	score = ClampScore(score)
	switch {
	case score >= VerifiedThreshold:
		return LevelVerified
	case score >= ProbableThreshold:
		return LevelProbable
	case score >= PossibleThreshold:
		return LevelPossible
	default:
		return LevelRejected
	}
}

// ClampScore bounds a score to [0, 100].
func ClampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// Gender of a person as recorded on a tree position.
type Gender string

const (
	GenderUnknown Gender = ""
	GenderMale    Gender = "M"
	GenderFemale  Gender = "F"
)

// ParseGender normalizes free-text gender values.
func ParseGender(s string) Gender {
	switch s {
	case "M", "m", "male", "Male", "MALE":
		return GenderMale
	case "F", "f", "female", "Female", "FEMALE":
		return GenderFemale
	default:
		return GenderUnknown
	}
}

// Father returns the Ahnentafel number of n's father.
func Father(n int) int { return 2 * n }

// Mother returns the Ahnentafel number of n's mother.
func Mother(n int) int { return 2*n + 1 }

// Child returns the Ahnentafel number of the child through which n descends
// from the subject. The subject has no child and returns 0.
func Child(n int) int { return n / 2 }

// Generation returns floor(log2(n)); the subject is generation 0.
func Generation(n int) int {
	if n < 1 {
		return -1
	}
	return bits.Len(uint(n)) - 1
}

// ExpectedGender returns the gender implied by position n. The subject is
// unconstrained.
func ExpectedGender(n int) Gender {
	switch {
	case n <= 1:
		return GenderUnknown
	case n%2 == 0:
		return GenderMale
	default:
		return GenderFemale
	}
}

// IsAncestorPosition reports whether pos lies in the subtree rooted at root,
// i.e. pos can be reached from root by repeated doubling (plus 0 or 1).
func IsAncestorPosition(root, pos int) bool {
	if root < 1 || pos < root {
		return false
	}
	for pos > root {
		pos /= 2
	}
	return pos == root
}

// SubtreePositions lists root and every position above it up to and
// including generation maxGen, in breadth-first order.
func SubtreePositions(root, maxGen int) []int {
	if root < 1 || Generation(root) > maxGen {
		return nil
	}
	out := []int{root}
	lo, hi := root, root
	for gen := Generation(root) + 1; gen <= maxGen; gen++ {
		lo, hi = 2*lo, 2*hi+1
		for p := lo; p <= hi; p++ {
			out = append(out, p)
		}
	}
	return out
}

// RoleLabel names position n relative to the subject.
func RoleLabel(n int) string {
	switch n {
	case 1:
		return "Subject"
	case 2:
		return "Father"
	case 3:
		return "Mother"
	case 4:
		return "Paternal Grandfather"
	case 5:
		return "Paternal Grandmother"
	case 6:
		return "Maternal Grandfather"
	case 7:
		return "Maternal Grandmother"
	}
	gen := Generation(n)
	if gen < 1 {
		return fmt.Sprintf("Ancestor #%d", n)
	}
	prefix := ""
	for i := 3; i < gen; i++ {
		prefix += "Great-"
	}
	if ExpectedGender(n) == GenderMale {
		return fmt.Sprintf("%sGreat-Grandfather #%d", prefix, n)
	}
	return fmt.Sprintf("%sGreat-Grandmother #%d", prefix, n)
}

// PlaceholderName returns the name stored for a position that could not be resolved.
func PlaceholderName(n int) string {
	return RoleLabel(n) + " " + NotFoundSuffix
}

// Ancestor is one tree position in a job's family tree.
type Ancestor struct {
	ID              string          `json:"id"`
	JobID           string          `json:"job_id"`
	AscendancyNum   int             `json:"ascendancy_number"`
	Generation      int             `json:"generation"`
	Name            string          `json:"name"`
	Gender          Gender          `json:"gender"`
	BirthDate       string          `json:"birth_date,omitempty"`
	BirthPlace      string          `json:"birth_place,omitempty"`
	DeathDate       string          `json:"death_date,omitempty"`
	DeathPlace      string          `json:"death_place,omitempty"`
	ConfidenceScore int             `json:"confidence_score"`
	ConfidenceLevel ConfidenceLevel `json:"confidence_level"`
	Source          string          `json:"source,omitempty"`
	SourcePersonID  string          `json:"source_person_id,omitempty"`
	Sources         []string        `json:"sources,omitempty"`
	NotFound        bool            `json:"not_found,omitempty"`

	EvidenceChain  []EvidenceCitation `json:"evidence_chain,omitempty"`
	SearchLog      []SearchLogEntry   `json:"search_log,omitempty"`
	CorrectionsLog []CorrectionEntry  `json:"corrections_log,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsCustomerData reports whether the position holds customer-supplied facts.
func (a *Ancestor) IsCustomerData() bool {
	return a != nil && a.ConfidenceLevel == LevelCustomerData
}

// Facts projects the stored facts of a position.
func (a *Ancestor) Facts() KnownFacts {
	if a == nil {
		return KnownFacts{}
	}
	return KnownFacts{
		Name:       a.Name,
		Gender:     a.Gender,
		BirthDate:  a.BirthDate,
		BirthPlace: a.BirthPlace,
		DeathDate:  a.DeathDate,
		DeathPlace: a.DeathPlace,
	}
}

// AncestorPatch is a partial update of an Ancestor. Nil fields are left untouched.
type AncestorPatch struct {
	Name            *string
	Gender          *Gender
	BirthDate       *string
	BirthPlace      *string
	DeathDate       *string
	DeathPlace      *string
	ConfidenceScore *int
	ConfidenceLevel *ConfidenceLevel
	Source          *string
	SourcePersonID  *string
	Sources         []string
	NotFound        *bool
	EvidenceChain   []EvidenceCitation
	SearchLog       []SearchLogEntry
	CorrectionsLog  []CorrectionEntry
}

// Apply writes the non-nil patch fields onto a. Slice fields replace the
// stored slices when non-nil.
func (p AncestorPatch) Apply(a *Ancestor) {
	if p.Name != nil {
		a.Name = *p.Name
	}
	if p.Gender != nil {
		a.Gender = *p.Gender
	}
	if p.BirthDate != nil {
		a.BirthDate = *p.BirthDate
	}
	if p.BirthPlace != nil {
		a.BirthPlace = *p.BirthPlace
	}
	if p.DeathDate != nil {
		a.DeathDate = *p.DeathDate
	}
	if p.DeathPlace != nil {
		a.DeathPlace = *p.DeathPlace
	}
	if p.ConfidenceScore != nil {
		a.ConfidenceScore = ClampScore(*p.ConfidenceScore)
	}
	if p.ConfidenceLevel != nil {
		a.ConfidenceLevel = *p.ConfidenceLevel
	}
	if p.Source != nil {
		a.Source = *p.Source
	}
	if p.SourcePersonID != nil {
		a.SourcePersonID = *p.SourcePersonID
	}
	if p.Sources != nil {
		a.Sources = p.Sources
	}
	if p.NotFound != nil {
		a.NotFound = *p.NotFound
	}
	if p.EvidenceChain != nil {
		a.EvidenceChain = p.EvidenceChain
	}
	if p.SearchLog != nil {
		a.SearchLog = p.SearchLog
	}
	if p.CorrectionsLog != nil {
		a.CorrectionsLog = p.CorrectionsLog
	}
}

// Merge overlays the set fields of o onto p.
func (p *AncestorPatch) Merge(o AncestorPatch) {
	if o.Name != nil {
		p.Name = o.Name
	}
	if o.Gender != nil {
		p.Gender = o.Gender
	}
	if o.BirthDate != nil {
		p.BirthDate = o.BirthDate
	}
	if o.BirthPlace != nil {
		p.BirthPlace = o.BirthPlace
	}
	if o.DeathDate != nil {
		p.DeathDate = o.DeathDate
	}
	if o.DeathPlace != nil {
		p.DeathPlace = o.DeathPlace
	}
	if o.ConfidenceScore != nil {
		p.ConfidenceScore = o.ConfidenceScore
	}
	if o.ConfidenceLevel != nil {
		p.ConfidenceLevel = o.ConfidenceLevel
	}
	if o.Source != nil {
		p.Source = o.Source
	}
	if o.SourcePersonID != nil {
		p.SourcePersonID = o.SourcePersonID
	}
	if o.Sources != nil {
		p.Sources = o.Sources
	}
	if o.NotFound != nil {
		p.NotFound = o.NotFound
	}
	if o.EvidenceChain != nil {
		p.EvidenceChain = o.EvidenceChain
	}
	if o.SearchLog != nil {
		p.SearchLog = o.SearchLog
	}
	if o.CorrectionsLog != nil {
		p.CorrectionsLog = o.CorrectionsLog
	}
}

// Correctable field names used in correction entries.
const (
	FieldName            = "name"
	FieldGender          = "gender"
	FieldBirthDate       = "birth_date"
	FieldBirthPlace      = "birth_place"
	FieldDeathDate       = "death_date"
	FieldDeathPlace      = "death_place"
	FieldConfidenceScore = "confidence_score"
	FieldSource          = "source"
	FieldSourcePersonID  = "source_person_id"
)

// Field returns the stored value of a correctable field.
func (a *Ancestor) Field(name string) (string, bool) {
	switch name {
	case FieldName:
		return a.Name, true
	case FieldGender:
		return string(a.Gender), true
	case FieldBirthDate:
		return a.BirthDate, true
	case FieldBirthPlace:
		return a.BirthPlace, true
	case FieldDeathDate:
		return a.DeathDate, true
	case FieldDeathPlace:
		return a.DeathPlace, true
	case FieldConfidenceScore:
		return strconv.Itoa(a.ConfidenceScore), true
	case FieldSource:
		return a.Source, true
	case FieldSourcePersonID:
		return a.SourcePersonID, true
	}
	return "", false
}

// FieldPatch builds a patch that sets one correctable field. Setting the
// score also sets the level it implies.
func FieldPatch(name, value string) (AncestorPatch, bool) {
	var p AncestorPatch
	v := value
	switch name {
	case FieldName:
		p.Name = &v
	case FieldGender:
		g := ParseGender(v)
		p.Gender = &g
	case FieldBirthDate:
		p.BirthDate = &v
	case FieldBirthPlace:
		p.BirthPlace = &v
	case FieldDeathDate:
		p.DeathDate = &v
	case FieldDeathPlace:
		p.DeathPlace = &v
	case FieldConfidenceScore:
		n, err := strconv.Atoi(v)
		if err != nil {
			return p, false
		}
		n = ClampScore(n)
		lvl := LevelFor(n)
		p.ConfidenceScore = &n
		p.ConfidenceLevel = &lvl
	case FieldSource:
		p.Source = &v
	case FieldSourcePersonID:
		p.SourcePersonID = &v
	default:
		return p, false
	}
	return p, true
}

// KnownFacts is the fact set a candidate is scored against.
type KnownFacts struct {
	Name       string `json:"name,omitempty"`
	Gender     Gender `json:"gender,omitempty"`
	BirthDate  string `json:"birth_date,omitempty"`
	BirthPlace string `json:"birth_place,omitempty"`
	DeathDate  string `json:"death_date,omitempty"`
	DeathPlace string `json:"death_place,omitempty"`
	FatherName string `json:"father_name,omitempty"`
	MotherName string `json:"mother_name,omitempty"`

	// ChildBirthYear is the birth year of the child through which this
	// position was reached, 0 when unknown.
	ChildBirthYear int `json:"child_birth_year,omitempty"`
	// EstimatedBirthYear is a derived guess used to seed searches when no
	// birth date is known; never scored as a fact.
	EstimatedBirthYear int `json:"estimated_birth_year,omitempty"`
	// ChildBirthPlace is where that child was born. It corroborates a
	// provider-recorded parent and is never scored as a fact.
	ChildBirthPlace string `json:"child_birth_place,omitempty"`
}

// BirthYear extracts the four-digit birth year from BirthDate, or 0.
func (f KnownFacts) BirthYear() int { return YearOf(f.BirthDate) }

// DeathYear extracts the four-digit death year from DeathDate, or 0.
func (f KnownFacts) DeathYear() int { return YearOf(f.DeathDate) }

// Empty reports whether there is nothing to search on.
func (f KnownFacts) Empty() bool {
	return f.Name == "" && f.BirthDate == "" && f.BirthPlace == "" && f.EstimatedBirthYear == 0
}

// Merge fills blank fields of f from other.
func (f KnownFacts) Merge(other KnownFacts) KnownFacts {
	fill := func(dst *string, src string) {
		if *dst == "" {
			*dst = src
		}
	}
	fill(&f.Name, other.Name)
	fill(&f.BirthDate, other.BirthDate)
	fill(&f.BirthPlace, other.BirthPlace)
	fill(&f.DeathDate, other.DeathDate)
	fill(&f.DeathPlace, other.DeathPlace)
	fill(&f.FatherName, other.FatherName)
	fill(&f.MotherName, other.MotherName)
	if f.Gender == GenderUnknown {
		f.Gender = other.Gender
	}
	if f.ChildBirthYear == 0 {
		f.ChildBirthYear = other.ChildBirthYear
	}
	if f.EstimatedBirthYear == 0 {
		f.EstimatedBirthYear = other.EstimatedBirthYear
	}
	fill(&f.ChildBirthPlace, other.ChildBirthPlace)
	return f
}
