package confidence

import (
	"regexp"

	"github.com/sells-group/lineage-cli/internal/model"
)

// Checked in order; the first matching pattern classifies the citation.
var citationPatterns = []struct {
	typ model.CitationType
	re  *regexp.Regexp
}{
	{model.CitationCensus, regexp.MustCompile(`(?i)\bcensus\b|\b1939 register\b`)},
	{model.CitationParish, regexp.MustCompile(`(?i)\bparish\b|christening|baptism|\bburials?\b|\bbanns\b|bishop'?s transcripts?`)},
	{model.CitationVital, regexp.MustCompile(`(?i)\bbirths?\b|\bdeaths?\b|\bmarriages?\b|civil registration|\bgro\b|\bbmd\b|vital records?|probate`)},
	{model.CitationMilitary, regexp.MustCompile(`(?i)military|\barmy\b|\bnavy\b|royal navy|regiment|service records?|\bwar\b|medal|\bdraft\b|attestation`)},
	{model.CitationImmigration, regexp.MustCompile(`(?i)passenger|immigra|emigra|naturali[sz]ation|\bships?\b|arrivals?|departures?`)},
}

// ClassifyCitation returns the citation's type, inferring it from the title
// and note when the provider did not supply one.
func ClassifyCitation(c model.EvidenceCitation) model.CitationType {
	if c.Type != "" {
		return c.Type
	}
	text := c.Title + " " + c.Note
	for _, p := range citationPatterns {
		if p.re.MatchString(text) {
			return p.typ
		}
	}
	return model.CitationOther
}

// EvidenceScore sums the weights of the citations, adds the diversity bonus
// when enough distinct types are present, and caps the result.
func EvidenceScore(citations []model.EvidenceCitation, cfg Config) int {
	if len(citations) == 0 {
		return 0
	}
	score := 0
	types := make(map[model.CitationType]bool)
	for _, c := range citations {
		t := ClassifyCitation(c)
		types[t] = true
		score += cfg.CitationWeights[t]
	}
	if len(types) >= cfg.DiversityTypes {
		score += cfg.DiversityBonus
	}
	if score > cfg.EvidenceCap {
		score = cfg.EvidenceCap
	}
	return model.ClampScore(score)
}
