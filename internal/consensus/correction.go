package consensus

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/lineage-cli/internal/gazetteer"
	"github.com/sells-group/lineage-cli/internal/model"
	"github.com/sells-group/lineage-cli/internal/names"
	"github.com/sells-group/lineage-cli/internal/source"
)

// Correction is a structured field change parsed from reviewer text.
type Correction struct {
	Field string `json:"field"`
	Event string `json:"event"` // birth, death
	Part  string `json:"part"`  // year, date, place
	Value string `json:"value"`
}

var (
	correctionRe = regexp.MustCompile(`(?i)\b(birth|death)\s+(year|date|place)\s+(?:should|must)\s+be\s+(?:changed\s+to\s+|corrected\s+to\s+)?(.+)`)
	hedgeRe      = regexp.MustCompile(`(?i)\b(maybe|perhaps|possibly|probably|likely|might|could|unclear|uncertain|about|abt|approx|approximately|circa|around|either)\b`)
	yearOnlyRe   = regexp.MustCompile(`^(1[0-9]{3}|20[0-9]{2})$`)
	dateRe       = regexp.MustCompile(`^[0-9A-Za-z ,/.-]{4,40}$`)
	placeRe      = regexp.MustCompile(`^[\p{L} ,.'()-]{2,120}$`)
)

// valueTerminators end the corrected value inside a longer sentence.
var valueTerminators = []string{"; ", ";", "\n", ". ", " because ", " since ", " as ", " (per ", " according to "}

// ParseCorrection extracts a (field, value) pair from a reviewer's
// suggested correction. Only explicit "birth/death year/date/place should
// be X" phrasings are accepted; anything hedged, ambiguous or malformed
// yields false.
func ParseCorrection(text string) (Correction, bool) {
	text = strings.TrimSpace(text)
	if text == "" || strings.Contains(text, "?") || hedgeRe.MatchString(text) {
		return Correction{}, false
	}
	matches := correctionRe.FindAllStringSubmatch(text, -1)
	if len(matches) != 1 {
		return Correction{}, false
	}
	m := matches[0]
	c := Correction{
		Event: strings.ToLower(m[1]),
		Part:  strings.ToLower(m[2]),
		Value: cleanValue(m[3]),
	}
	if c.Value == "" || strings.Contains(strings.ToLower(" "+c.Value+" "), " or ") || correctionRe.MatchString(m[3]) {
		return Correction{}, false
	}

	switch c.Part {
	case "year":
		if !yearOnlyRe.MatchString(c.Value) {
			return Correction{}, false
		}
	case "date":
		if !dateRe.MatchString(c.Value) || model.YearOf(c.Value) == 0 {
			return Correction{}, false
		}
	case "place":
		if !placeRe.MatchString(c.Value) {
			return Correction{}, false
		}
	}

	if c.Event == "birth" {
		c.Field = model.FieldBirthDate
		if c.Part == "place" {
			c.Field = model.FieldBirthPlace
		}
	} else {
		c.Field = model.FieldDeathDate
		if c.Part == "place" {
			c.Field = model.FieldDeathPlace
		}
	}
	return c, true
}

func cleanValue(v string) string {
	for _, t := range valueTerminators {
		if i := strings.Index(v, t); i >= 0 {
			v = v[:i]
		}
	}
	return strings.Trim(strings.TrimSpace(v), `"'.“”‘’ `)
}

// EquivalentCorrections reports whether two corrections propose the same
// change: the same field with the same normalized value, or for dates the
// same year with substantial word overlap. Missing a real agreement is
// acceptable; claiming a false one is not.
func EquivalentCorrections(a, b Correction) bool {
	if a.Field != b.Field || a.Value == "" || b.Value == "" {
		return false
	}
	na, nb := names.Normalize(a.Value), names.Normalize(b.Value)
	if na == nb {
		return true
	}
	overlap := names.WordOverlap(a.Value, b.Value)
	switch a.Field {
	case model.FieldBirthDate, model.FieldDeathDate:
		ya, yb := model.YearOf(a.Value), model.YearOf(b.Value)
		return ya > 0 && ya == yb && overlap >= 0.5
	default:
		return leadingSegment(a.Value) == leadingSegment(b.Value) && overlap >= 0.5
	}
}

func leadingSegment(place string) string {
	seg, _, _ := strings.Cut(place, ",")
	return names.Normalize(seg)
}

// preferred picks the more specific of two equivalent corrections.
func preferred(a, b Correction) Correction {
	if len(b.Value) > len(a.Value) {
		return b
	}
	return a
}

// correctedValue is the field value a correction writes. A year-only
// correction replaces the year inside an existing date.
func correctedValue(current string, c Correction) string {
	if c.Part != "year" {
		return c.Value
	}
	if y := model.YearOf(current); y > 0 {
		return strings.Replace(current, strconv.Itoa(y), c.Value, 1)
	}
	return c.Value
}

// Confirmers is the part of the adapter registry used for corroboration.
type Confirmers interface {
	Confirmers() []source.Confirmer
}

// corroborate asks the confirmation sources whether they independently
// record the corrected value. It returns the confirming source.
func corroborate(ctx context.Context, srcs Confirmers, places gazetteer.Lookup, a model.Ancestor, c Correction) (string, bool) {
	if srcs == nil || a.Name == "" {
		return "", false
	}
	year := model.YearOf(c.Value)
	if c.Part == "place" {
		year = model.YearOf(a.BirthDate)
		if c.Event == "death" {
			year = model.YearOf(a.DeathDate)
		}
	}
	if year == 0 {
		return "", false
	}

	for _, cf := range srcs.Confirmers() {
		lookup := cf.ConfirmBirth
		if c.Event == "death" {
			lookup = cf.ConfirmDeath
		}
		e, err := lookup(ctx, a.Name, year)
		if err != nil {
			zap.L().Warn("consensus: corroboration lookup failed",
				zap.String("source", cf.Name()),
				zap.String("job_id", a.JobID),
				zap.Int("asc", a.AscendancyNum),
				zap.Error(err),
			)
			continue
		}
		if e == nil {
			continue
		}
		switch c.Part {
		case "place":
			if gazetteer.Compare(places, c.Value, e.District) >= gazetteer.MatchCounty ||
				gazetteer.Compare(places, c.Value, e.County) >= gazetteer.MatchCounty {
				return cf.Name(), true
			}
		default:
			if e.Year == year {
				return cf.Name(), true
			}
		}
	}
	return "", false
}
