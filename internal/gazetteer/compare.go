package gazetteer

import (
	"strings"

	"github.com/sells-group/lineage-cli/internal/names"
)

// Match grades how specifically two places agree.
type Match int

const (
	MatchNone Match = iota
	MatchSubstring
	MatchCountry
	MatchAdjacentCounty
	MatchCounty
	MatchTown
)

func (m Match) String() string {
	switch m {
	case MatchTown:
		return "town"
	case MatchCounty:
		return "county"
	case MatchAdjacentCounty:
		return "adjacent_county"
	case MatchCountry:
		return "country"
	case MatchSubstring:
		return "substring"
	default:
		return "none"
	}
}

// Compare grades the agreement of two free-text places.
func Compare(l Lookup, a, b string) Match {
	if strings.TrimSpace(a) == "" || strings.TrimSpace(b) == "" {
		return MatchNone
	}
	pa, pb := l.Resolve(a), l.Resolve(b)

	switch {
	case pa.Town != "" && pa.Town == pb.Town:
		return MatchTown
	case pa.County != "" && pa.County == pb.County:
		return MatchCounty
	case pa.County != "" && pb.County != "" && l.Adjacent(pa.County, pb.County):
		return MatchAdjacentCounty
	case pa.Country != "" && pa.Country == pb.Country:
		return MatchCountry
	}

	na, nb := names.Normalize(a), names.Normalize(b)
	if len(na) >= 4 && len(nb) >= 4 && (strings.Contains(na, nb) || strings.Contains(nb, na)) {
		return MatchSubstring
	}
	return MatchNone
}

// SameCounty reports whether both places resolve to the same historic county.
func SameCounty(l Lookup, a, b string) bool {
	ca := l.Resolve(a).County
	return ca != "" && ca == l.Resolve(b).County
}

// Conflict reports whether one place is in the UK and the other clearly abroad.
func Conflict(l Lookup, a, b string) bool {
	if strings.TrimSpace(a) == "" || strings.TrimSpace(b) == "" {
		return false
	}
	pa, pb := l.Resolve(a), l.Resolve(b)
	return (pa.UK && pb.Foreign) || (pa.Foreign && pb.UK)
}

// IsForeign reports whether a place resolves to a country outside the UK.
func IsForeign(l Lookup, place string) bool {
	if strings.TrimSpace(place) == "" {
		return false
	}
	return l.Resolve(place).Foreign
}

// IsUK reports whether a place resolves to a UK (or pre-partition Irish) location.
func IsUK(l Lookup, place string) bool {
	if strings.TrimSpace(place) == "" {
		return false
	}
	return l.Resolve(place).UK
}
