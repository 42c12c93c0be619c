package traversal

import (
	"strings"

	"github.com/sells-group/lineage-cli/internal/model"
	"github.com/sells-group/lineage-cli/internal/names"
	"github.com/sells-group/lineage-cli/internal/source"
)

// Strategy is one search pass. Build returns no queries when the facts
// cannot support the pass.
type Strategy struct {
	Name  string
	Build func(f model.KnownFacts, cfg Config) []source.Query
}

// Pass names.
const (
	PassExact       = "exact"
	PassRelaxed     = "relaxed"
	PassFirstGiven  = "first_given"
	PassInitials    = "initials"
	PassBirthYear   = "birth_year"
	PassSurnameVar  = "surname_variants"
	PassPlace       = "place"
	PassNicknames   = "nicknames"
	PassSupplement  = "supplementary"
	PassTree        = "tree"
	PassAncestry    = "ancestry"
	PassEnrichment  = "enrichment"
	PassResolution  = "resolve"
	PassTreeFilter  = "tree_filter"
	PassBlacklisted = "blacklist"
)

// Strategies lists the primary search passes, most specific first.
var Strategies = []Strategy{
	{PassExact, exactQueries},
	{PassRelaxed, relaxedQueries},
	{PassFirstGiven, firstGivenQueries},
	{PassInitials, initialsQueries},
	{PassBirthYear, birthYearQueries},
	{PassSurnameVar, surnameVariantQueries},
	{PassPlace, placeQueries},
	{PassNicknames, nicknameQueries},
}

// birthWindow returns the year to search and its spread. An estimated
// year is searched with a wide spread.
func birthWindow(f model.KnownFacts, spread int) (int, int) {
	if y := f.BirthYear(); y > 0 {
		return y, spread
	}
	if f.EstimatedBirthYear > 0 {
		return f.EstimatedBirthYear, 10
	}
	return 0, 0
}

func base(f model.KnownFacts, cfg Config) source.Query {
	return source.Query{Gender: f.Gender, Limit: cfg.SearchLimit}
}

func exactQueries(f model.KnownFacts, cfg Config) []source.Query {
	p := names.Parse(f.Name)
	if len(p.Given) == 0 || p.Surname == "" {
		return nil
	}
	q := base(f, cfg)
	q.GivenNames = strings.Join(p.Given, " ")
	q.Surname = p.Surname
	q.BirthYear, q.YearRange = birthWindow(f, 0)
	q.BirthPlace = f.BirthPlace
	q.DeathYear = f.DeathYear()
	q.FatherName = f.FatherName
	q.MotherName = f.MotherName
	return []source.Query{q}
}

func relaxedQueries(f model.KnownFacts, cfg Config) []source.Query {
	p := names.Parse(f.Name)
	if len(p.Given) == 0 || p.Surname == "" {
		return nil
	}
	q := base(f, cfg)
	q.GivenNames = strings.Join(p.Given, " ")
	q.Surname = p.Surname
	q.BirthYear, q.YearRange = birthWindow(f, 2)
	return []source.Query{q}
}

func firstGivenQueries(f model.KnownFacts, cfg Config) []source.Query {
	p := names.Parse(f.Name)
	if len(p.Given) < 2 || p.Surname == "" {
		return nil
	}
	q := base(f, cfg)
	q.GivenNames = p.First()
	q.Surname = p.Surname
	q.BirthYear, q.YearRange = birthWindow(f, 2)
	return []source.Query{q}
}

func initialsQueries(f model.KnownFacts, cfg Config) []source.Query {
	p := names.Parse(f.Name)
	if p.Surname == "" {
		return nil
	}
	hasInitial := false
	for _, g := range p.Given {
		if names.IsInitial(g) {
			hasInitial = true
			break
		}
	}
	if !hasInitial {
		return nil
	}
	q := base(f, cfg)
	q.GivenNames = names.InitialsForm(p.Given)
	q.Surname = p.Surname
	q.BirthYear, q.YearRange = birthWindow(f, 2)
	return []source.Query{q}
}

func birthYearQueries(f model.KnownFacts, cfg Config) []source.Query {
	p := names.Parse(f.Name)
	year, spread := birthWindow(f, 5)
	if p.Surname == "" || year == 0 {
		return nil
	}
	q := base(f, cfg)
	q.Surname = p.Surname
	q.BirthYear, q.YearRange = year, spread
	return []source.Query{q}
}

func surnameVariantQueries(f model.KnownFacts, cfg Config) []source.Query {
	p := names.Parse(f.Name)
	if p.Surname == "" {
		return nil
	}
	var out []source.Query
	for _, v := range limit(names.SurnameVariants(p.Surname), cfg.MaxVariants) {
		q := base(f, cfg)
		q.GivenNames = p.First()
		q.Surname = v
		q.BirthYear, q.YearRange = birthWindow(f, 2)
		out = append(out, q)
	}
	return out
}

func placeQueries(f model.KnownFacts, cfg Config) []source.Query {
	p := names.Parse(f.Name)
	if p.Surname == "" || strings.TrimSpace(f.BirthPlace) == "" {
		return nil
	}
	q := base(f, cfg)
	q.Surname = p.Surname
	q.BirthPlace = f.BirthPlace
	return []source.Query{q}
}

func nicknameQueries(f model.KnownFacts, cfg Config) []source.Query {
	p := names.Parse(f.Name)
	if p.First() == "" || p.Surname == "" {
		return nil
	}
	var out []source.Query
	for _, n := range limit(names.Nicknames(p.First()), cfg.MaxVariants) {
		q := base(f, cfg)
		q.GivenNames = n
		q.Surname = p.Surname
		q.BirthYear, q.YearRange = birthWindow(f, 2)
		out = append(out, q)
	}
	return out
}

// supplementaryQueries is what the secondary sources are asked when the
// primary source came up short.
func supplementaryQueries(f model.KnownFacts, cfg Config) []source.Query {
	if qs := relaxedQueries(f, cfg); len(qs) > 0 {
		return qs
	}
	return birthYearQueries(f, cfg)
}

func limit(s []string, n int) []string {
	if n > 0 && len(s) > n {
		return s[:n]
	}
	return s
}
