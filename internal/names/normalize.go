// Package names normalizes personal names and compares them across sources.
package names

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	multiSpaceRe = regexp.MustCompile(`\s{2,}`)
	punctRe      = regexp.MustCompile(`[.,;:()"\[\]?!/\\_]`)
)

// honorifics are dropped wherever they appear as a whole token.
var honorifics = map[string]bool{
	"mr": true, "mrs": true, "miss": true, "ms": true, "dr": true, "rev": true,
	"sir": true, "capt": true, "col": true, "jnr": true, "jr": true, "snr": true,
	"sr": true, "esq": true,
}

// foldDiacritics strips combining marks. A new transformer is built per call
// because transform chains keep internal state.
func foldDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// Normalize lower-cases a name, folds diacritics, drops punctuation and
// honorifics and collapses whitespace. Apostrophes are removed so O'Brien and
// OBrien compare equal; hyphens become spaces.
func Normalize(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	s = foldDiacritics(s)
	s = strings.ToLower(s)
	s = strings.NewReplacer("'", "", "’", "", "-", " ").Replace(s)
	s = punctRe.ReplaceAllString(s, " ")
	s = multiSpaceRe.ReplaceAllString(s, " ")

	fields := strings.Fields(s)
	kept := fields[:0]
	for _, f := range fields {
		if honorifics[f] {
			continue
		}
		kept = append(kept, f)
	}
	return strings.Join(kept, " ")
}

// Parsed is a name split into given names and surname.
type Parsed struct {
	Given   []string
	Surname string
}

// First returns the first given name, or "".
func (p Parsed) First() string {
	if len(p.Given) == 0 {
		return ""
	}
	return p.Given[0]
}

// Empty reports whether nothing was parsed.
func (p Parsed) Empty() bool { return len(p.Given) == 0 && p.Surname == "" }

// Parse splits a free-text name. "Surname, Given Names" is honored; otherwise
// the last token is the surname. Slash-delimited GEDCOM surnames ("John /Smith/")
// are also recognized.
func Parse(full string) Parsed {
	full = strings.TrimSpace(full)
	if full == "" {
		return Parsed{}
	}

	if i := strings.Index(full, "/"); i >= 0 {
		if j := strings.Index(full[i+1:], "/"); j >= 0 {
			surname := Normalize(full[i+1 : i+1+j])
			given := Normalize(full[:i] + " " + full[i+2+j:])
			return Parsed{Given: strings.Fields(given), Surname: surname}
		}
	}

	if i := strings.Index(full, ","); i > 0 {
		surname := Normalize(full[:i])
		given := Normalize(full[i+1:])
		return Parsed{Given: strings.Fields(given), Surname: surname}
	}

	toks := strings.Fields(Normalize(full))
	switch len(toks) {
	case 0:
		return Parsed{}
	case 1:
		return Parsed{Surname: toks[0]}
	default:
		return Parsed{Given: toks[:len(toks)-1], Surname: toks[len(toks)-1]}
	}
}

// ParseParts builds a Parsed from separately supplied given names and surname,
// falling back to Parse(full) when the parts are empty.
func ParseParts(given, surname, full string) Parsed {
	if given == "" && surname == "" {
		return Parse(full)
	}
	return Parsed{Given: strings.Fields(Normalize(given)), Surname: Normalize(surname)}
}

// IsInitial reports whether a normalized given-name token is a bare initial.
func IsInitial(tok string) bool {
	return len([]rune(tok)) == 1
}

// InitialsForm reduces given names to their initials ("john henry" → "j h").
func InitialsForm(given []string) string {
	out := make([]string, 0, len(given))
	for _, g := range given {
		if g == "" {
			continue
		}
		out = append(out, string([]rune(g)[0]))
	}
	return strings.Join(out, " ")
}

// Words returns the distinct normalized words of s.
func Words(s string) map[string]bool {
	out := make(map[string]bool)
	for _, w := range strings.Fields(Normalize(s)) {
		out[w] = true
	}
	return out
}

// WordOverlap returns the Jaccard similarity of the word sets of a and b.
func WordOverlap(a, b string) float64 {
	wa, wb := Words(a), Words(b)
	if len(wa) == 0 && len(wb) == 0 {
		return 0
	}
	inter := 0
	for w := range wa {
		if wb[w] {
			inter++
		}
	}
	union := len(wa) + len(wb) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// CommonPrefixLen returns the length in runes of the longest shared prefix.
func CommonPrefixLen(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	n := 0
	for n < len(ra) && n < len(rb) && ra[n] == rb[n] {
		n++
	}
	return n
}
