package model

import (
	"regexp"
	"strconv"
	"time"
)

var yearRe = regexp.MustCompile(`\b(1[0-9]{3}|20[0-9]{2})\b`)

// YearOf extracts the first plausible four-digit year from a free-text date.
// Returns 0 when none is present.
func YearOf(date string) int {
	m := yearRe.FindString(date)
	if m == "" {
		return 0
	}
	y, err := strconv.Atoi(m)
	if err != nil {
		return 0
	}
	return y
}

// Candidate is one upstream record considered as a match for a tree position.
type Candidate struct {
	Source     string `json:"source"`
	PersonID   string `json:"person_id"`
	Name       string `json:"name"`
	GivenNames string `json:"given_names,omitempty"`
	Surname    string `json:"surname,omitempty"`
	Gender     Gender `json:"gender,omitempty"`
	BirthDate  string `json:"birth_date,omitempty"`
	BirthPlace string `json:"birth_place,omitempty"`
	DeathDate  string `json:"death_date,omitempty"`
	DeathPlace string `json:"death_place,omitempty"`
	FatherName string `json:"father_name,omitempty"`
	MotherName string `json:"mother_name,omitempty"`

	// RawScore is the provider's own relevance score, when it reports one.
	RawScore float64 `json:"raw_score,omitempty"`
	// Sources lists every adapter that independently returned this person.
	Sources []string `json:"sources,omitempty"`
	// SourceIDs maps adapter name to that adapter's person identifier.
	SourceIDs map[string]string `json:"source_ids,omitempty"`
	// TreeLinked marks candidates obtained from a provider's own parent-child link.
	TreeLinked bool `json:"tree_linked,omitempty"`

	Pass  string `json:"pass,omitempty"`
	Query string `json:"query,omitempty"`
}

// BirthYear returns the candidate's birth year or 0.
func (c Candidate) BirthYear() int { return YearOf(c.BirthDate) }

// DeathYear returns the candidate's death year or 0.
func (c Candidate) DeathYear() int { return YearOf(c.DeathDate) }

// IDFor returns the person id the candidate carries for the named source.
func (c Candidate) IDFor(source string) string {
	if id, ok := c.SourceIDs[source]; ok {
		return id
	}
	if c.Source == source {
		return c.PersonID
	}
	return ""
}

// SearchCandidate is the audit record of one considered match for a position.
type SearchCandidate struct {
	ID              string    `json:"id"`
	JobID           string    `json:"job_id"`
	AscendancyNum   int       `json:"ascendancy_number"`
	Candidate       Candidate `json:"candidate"`
	ComputedScore   int       `json:"computed_score"`
	Selected        bool      `json:"selected"`
	RejectionReason string    `json:"rejection_reason,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// SearchLogEntry records one search pass attempted for a position.
type SearchLogEntry struct {
	Pass        string    `json:"pass"`
	Source      string    `json:"source,omitempty"`
	Query       string    `json:"query"`
	ResultCount int       `json:"result_count"`
	BestScore   int       `json:"best_score,omitempty"`
	Note        string    `json:"note,omitempty"`
	At          time.Time `json:"at"`
}

// CitationType classifies a supporting record.
type CitationType string

const (
	CitationVital       CitationType = "vital"
	CitationCensus      CitationType = "census"
	CitationParish      CitationType = "parish"
	CitationMilitary    CitationType = "military"
	CitationImmigration CitationType = "immigration"
	CitationOther       CitationType = "other"
)

// EvidenceCitation is one supporting record for a position.
type EvidenceCitation struct {
	Source string       `json:"source"`
	Title  string       `json:"title"`
	Type   CitationType `json:"type,omitempty"`
	URL    string       `json:"url,omitempty"`
	Year   int          `json:"year,omitempty"`
	Note   string       `json:"note,omitempty"`
}

// VitalEntry is a civil-registration index hit returned by a confirmation source.
type VitalEntry struct {
	Source    string `json:"source"`
	Kind      string `json:"kind"` // birth, death, marriage
	Name      string `json:"name"`
	Year      int    `json:"year"`
	Quarter   int    `json:"quarter,omitempty"`
	District  string `json:"district,omitempty"`
	County    string `json:"county,omitempty"`
	Reference string `json:"reference,omitempty"`
	Spouse    string `json:"spouse,omitempty"`
	MatchTier int    `json:"match_tier,omitempty"`
}

// CorrectionKind distinguishes who made a correction.
type CorrectionKind string

const (
	CorrectionConsensus CorrectionKind = "consensus"
	CorrectionAdmin     CorrectionKind = "admin"
	CorrectionPromote   CorrectionKind = "promote"
	CorrectionEnrich    CorrectionKind = "enrichment"
	CorrectionReversal  CorrectionKind = "reversal"
)

// CorrectionEntry is one reversible change applied to a position.
type CorrectionEntry struct {
	ID       string         `json:"id"`
	Kind     CorrectionKind `json:"kind"`
	Field    string         `json:"field"`
	Before   string         `json:"before"`
	After    string         `json:"after"`
	Reason   string         `json:"reason,omitempty"`
	Reversal string         `json:"reversal,omitempty"`
	Reversed bool           `json:"reversed,omitempty"`
	At       time.Time      `json:"at"`
}

// Anchor is a customer-supplied partial fact set for a not-yet-resolved position.
type Anchor struct {
	AscendancyNum int    `json:"ascendancy_number" yaml:"asc"`
	GivenNames    string `json:"given_names,omitempty" yaml:"given_names"`
	Surname       string `json:"surname,omitempty" yaml:"surname"`
	BirthYear     int    `json:"birth_year,omitempty" yaml:"birth_year"`
	BirthPlace    string `json:"birth_place,omitempty" yaml:"birth_place"`
	DeathYear     int    `json:"death_year,omitempty" yaml:"death_year"`
	Raw           string `json:"raw,omitempty" yaml:"raw"`
}

// FullName joins the anchor's name parts.
func (a Anchor) FullName() string {
	switch {
	case a.GivenNames == "":
		return a.Surname
	case a.Surname == "":
		return a.GivenNames
	default:
		return a.GivenNames + " " + a.Surname
	}
}

// Facts converts the anchor to a KnownFacts seed.
func (a Anchor) Facts() KnownFacts {
	f := KnownFacts{
		Name:       a.FullName(),
		BirthPlace: a.BirthPlace,
		Gender:     ExpectedGender(a.AscendancyNum),
	}
	if a.BirthYear > 0 {
		f.BirthDate = strconv.Itoa(a.BirthYear)
	}
	if a.DeathYear > 0 {
		f.DeathDate = strconv.Itoa(a.DeathYear)
	}
	return f
}

// Feedback is a negative training signal recorded when a human undoes an
// automated correction.
type Feedback struct {
	ID            string    `json:"id"`
	JobID         string    `json:"job_id"`
	AscendancyNum int       `json:"ascendancy_number"`
	Field         string    `json:"field"`
	RejectedValue string    `json:"rejected_value"`
	RestoredValue string    `json:"restored_value"`
	CreatedAt     time.Time `json:"created_at"`
}

// Blacklist is the set of provider person identifiers a human has rejected
// for a job.
type Blacklist map[string]bool

// NewBlacklist builds a blacklist from stored identifiers.
func NewBlacklist(ids []string) Blacklist {
	b := make(Blacklist, len(ids))
	for _, id := range ids {
		if id != "" {
			b[id] = true
		}
	}
	return b
}

// Contains reports whether any identifier the candidate carries is rejected.
func (b Blacklist) Contains(c Candidate) bool {
	if len(b) == 0 {
		return false
	}
	if b[c.PersonID] {
		return true
	}
	for _, id := range c.SourceIDs {
		if b[id] {
			return true
		}
	}
	return false
}
