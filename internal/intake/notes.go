package intake

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/sells-group/lineage-cli/internal/model"
)

// relationSteps maps a relationship phrase to the path from the subject,
// 'f' for father and 'm' for mother.
var relationSteps = map[string]string{
	"father":               "f",
	"dad":                  "f",
	"mother":               "m",
	"mum":                  "m",
	"mom":                  "m",
	"paternal grandfather": "ff",
	"paternal grandmother": "fm",
	"maternal grandfather": "mf",
	"maternal grandmother": "mm",
}

var (
	lineRe     = regexp.MustCompile(`^\s*(?:my\s+)?([a-z' ]+?)\s*(?::|-|\bwas\b|\bis\b)\s*(.+)$`)
	bornRe     = regexp.MustCompile(`(?i)\b(?:b\.|born)\s*(?:c\.?\s*|abt\.?\s*|about\s+|circa\s+|in\s+)?(\d{4})`)
	diedRe     = regexp.MustCompile(`(?i)\b(?:d\.|died)\s*(?:c\.?\s*|abt\.?\s*|about\s+|circa\s+|in\s+)?(\d{4})`)
	lifespanRe = regexp.MustCompile(`\(\s*(?:c\.?\s*)?(\d{4})?\s*[-–]\s*(\d{4})?\s*\)`)
	yearRe     = regexp.MustCompile(`\b(1[5-9]\d{2}|20[0-2]\d)\b`)
	neeRe      = regexp.MustCompile(`(?i)\s+n[ée]e\s+(\S+)`)
	placeTrim  = regexp.MustCompile(`(?i)^(?:in|at|,|;)\s*`)
)

// maxNoteGeneration limits note anchors to great-grandparents.
const maxNoteGeneration = 3

// ParseNotes extracts anchors from free-text intake notes, one relationship
// per line: "father: John Smith b. 1921 Derby", "paternal grandmother: Ada
// Brown born c1895 Leeds", "mother's father - Tom Hall (1890-1950)". Lines
// that name no known relationship are skipped.
func ParseNotes(text string) []model.Anchor {
	var out []model.Anchor
	seen := make(map[int]bool)
	for _, line := range strings.Split(text, "\n") {
		a, ok := parseNoteLine(line)
		if !ok || seen[a.AscendancyNum] {
			continue
		}
		seen[a.AscendancyNum] = true
		out = append(out, a)
	}
	return out
}

func parseNoteLine(line string) (model.Anchor, bool) {
	line = strings.TrimSpace(line)
	lower := strings.ToLower(line)
	m := lineRe.FindStringSubmatchIndex(lower)
	if m == nil {
		return model.Anchor{}, false
	}
	asc, ok := RelationPosition(lower[m[2]:m[3]])
	if !ok {
		return model.Anchor{}, false
	}
	// Slice the original line to keep the customer's capitalisation.
	src := line
	if len(lower) != len(line) {
		src = lower
	}
	rest := strings.TrimSpace(src[m[4]:m[5]])

	a := parseFacts(rest)
	a.AscendancyNum = asc
	a.Raw = line
	if a.GivenNames == "" && a.Surname == "" && a.BirthYear == 0 {
		return model.Anchor{}, false
	}
	return a, true
}

// RelationPosition resolves a relationship phrase such as "father's mother"
// or "maternal grandfather" to its Ahnentafel number.
func RelationPosition(phrase string) (int, bool) {
	phrase = strings.Join(strings.Fields(strings.ToLower(phrase)), " ")
	if phrase == "" {
		return 0, false
	}
	pos := 1
	for _, part := range strings.Split(phrase, "'s ") {
		steps, ok := relationSteps[strings.TrimSpace(part)]
		if !ok {
			return 0, false
		}
		for _, s := range steps {
			if s == 'f' {
				pos = model.Father(pos)
			} else {
				pos = model.Mother(pos)
			}
		}
	}
	if model.Generation(pos) > maxNoteGeneration {
		return 0, false
	}
	return pos, true
}

// parseFacts reads "Name [née Surname] [b. YYYY] [place] [d. YYYY]" text.
func parseFacts(s string) model.Anchor {
	var a model.Anchor
	nameEnd := len(s)
	mark := func(i int) {
		if i >= 0 && i < nameEnd {
			nameEnd = i
		}
	}

	placeStart := -1
	if loc := bornRe.FindStringSubmatchIndex(s); loc != nil {
		a.BirthYear, _ = strconv.Atoi(s[loc[2]:loc[3]])
		mark(loc[0])
		placeStart = loc[1]
	}
	if loc := diedRe.FindStringSubmatchIndex(s); loc != nil {
		a.DeathYear, _ = strconv.Atoi(s[loc[2]:loc[3]])
		mark(loc[0])
	}
	if loc := lifespanRe.FindStringSubmatchIndex(s); loc != nil {
		if loc[2] >= 0 && a.BirthYear == 0 {
			a.BirthYear, _ = strconv.Atoi(s[loc[2]:loc[3]])
		}
		if loc[4] >= 0 && a.DeathYear == 0 {
			a.DeathYear, _ = strconv.Atoi(s[loc[4]:loc[5]])
		}
		mark(loc[0])
		if placeStart < 0 {
			placeStart = loc[1]
		}
	}
	if a.BirthYear == 0 {
		if loc := yearRe.FindStringSubmatchIndex(s); loc != nil {
			a.BirthYear, _ = strconv.Atoi(s[loc[2]:loc[3]])
			mark(loc[0])
			placeStart = loc[1]
		}
	}

	if placeStart >= 0 {
		a.BirthPlace = placeOf(s[placeStart:])
	}

	name := strings.Trim(strings.TrimSpace(s[:nameEnd]), ",;")
	if m := neeRe.FindStringSubmatchIndex(name); m != nil {
		a.Surname = strings.Trim(name[m[2]:m[3]], ",;")
		name = strings.TrimSpace(name[:m[0]])
		a.GivenNames = strings.Join(givenOf(name), " ")
		return a
	}
	toks := strings.Fields(name)
	switch len(toks) {
	case 0:
	case 1:
		a.GivenNames = toks[0]
	default:
		a.GivenNames = strings.Join(toks[:len(toks)-1], " ")
		a.Surname = toks[len(toks)-1]
	}
	return a
}

// givenOf drops the married surname from "Ada Smith" when a née surname follows.
func givenOf(name string) []string {
	toks := strings.Fields(name)
	if len(toks) > 1 {
		return toks[:len(toks)-1]
	}
	return toks
}

// placeOf takes the text after a year up to the next fact marker.
func placeOf(s string) string {
	s = strings.TrimSpace(s)
	if loc := diedRe.FindStringIndex(s); loc != nil {
		s = s[:loc[0]]
	}
	if loc := lifespanRe.FindStringIndex(s); loc != nil {
		s = s[:loc[0]]
	}
	s = strings.TrimSpace(placeTrim.ReplaceAllString(strings.TrimSpace(s), ""))
	return strings.Trim(s, " ,;.")
}
