// Package gazetteer resolves free-text place names against static reference
// tables: town to historic county, county to country, county adjacency, and
// the set of countries treated as UK.
package gazetteer

import (
	_ "embed"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/lineage-cli/internal/names"
)

//go:embed places.yaml
var defaultTables []byte

// Lookup is the place-resolution service consumed by scoring and traversal.
type Lookup interface {
	Resolve(place string) Place
	Adjacent(countyA, countyB string) bool
}

// Place is a resolved place name. Unresolved components are empty.
type Place struct {
	Raw     string `json:"raw"`
	Town    string `json:"town,omitempty"`
	County  string `json:"county,omitempty"`
	Country string `json:"country,omitempty"`
	UK      bool   `json:"uk,omitempty"`
	Foreign bool   `json:"foreign,omitempty"`
}

// Known reports whether the country could be determined.
func (p Place) Known() bool { return p.UK || p.Foreign }

type countyEntry struct {
	Country  string   `yaml:"country"`
	Aliases  []string `yaml:"aliases"`
	Adjacent []string `yaml:"adjacent"`
}

type tables struct {
	UKCountries      map[string][]string    `yaml:"uk_countries"`
	ForeignCountries map[string][]string    `yaml:"foreign_countries"`
	ForeignRegions   map[string][]string    `yaml:"foreign_regions"`
	Counties         map[string]countyEntry `yaml:"counties"`
	Towns            map[string]string      `yaml:"towns"`
}

type kind int

const (
	kindTown kind = iota + 1
	kindCounty
	kindRegion
	kindCountry
)

type entry struct {
	kind    kind
	name    string // canonical name of the town, county or country
	county  string
	country string
	uk      bool
}

// Gazetteer is the table-backed Lookup implementation.
type Gazetteer struct {
	index    map[string]entry
	adjacent map[string]map[string]bool
	maxWords int
}

var (
	defaultOnce sync.Once
	defaultGaz  *Gazetteer
)

// Default returns the gazetteer built from the embedded tables.
func Default() *Gazetteer {
	defaultOnce.Do(func() {
		g, err := Parse(defaultTables)
		if err != nil {
			panic(eris.Wrap(err, "gazetteer: embedded tables"))
		}
		defaultGaz = g
	})
	return defaultGaz
}

// LoadFile builds a gazetteer from a YAML file with the embedded layout.
func LoadFile(path string) (*Gazetteer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "gazetteer: read %s", path)
	}
	return Parse(data)
}

// Parse builds a gazetteer from YAML tables.
func Parse(data []byte) (*Gazetteer, error) {
	var t tables
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, eris.Wrap(err, "gazetteer: parse tables")
	}

	g := &Gazetteer{
		index:    make(map[string]entry),
		adjacent: make(map[string]map[string]bool),
	}
	put := func(key string, e entry) {
		key = norm(key)
		if key == "" {
			return
		}
		// Countries and counties win over towns sharing a name.
		if prev, ok := g.index[key]; ok && prev.kind > e.kind {
			return
		}
		g.index[key] = e
		if n := len(strings.Fields(key)); n > g.maxWords {
			g.maxWords = n
		}
	}

	for country, aliases := range t.UKCountries {
		e := entry{kind: kindCountry, name: country, country: country, uk: true}
		put(country, e)
		for _, a := range aliases {
			put(a, e)
		}
	}
	for country, aliases := range t.ForeignCountries {
		e := entry{kind: kindCountry, name: country, country: country}
		put(country, e)
		for _, a := range aliases {
			put(a, e)
		}
	}
	for country, regions := range t.ForeignRegions {
		for _, r := range regions {
			put(r, entry{kind: kindRegion, name: r, country: country})
		}
	}

	for county, ce := range t.Counties {
		_, uk := t.UKCountries[ce.Country]
		e := entry{kind: kindCounty, name: county, county: county, country: ce.Country, uk: uk}
		put(county, e)
		for _, a := range ce.Aliases {
			put(a, e)
		}
		for _, adj := range ce.Adjacent {
			g.link(county, adj)
		}
	}

	for town, county := range t.Towns {
		ce, ok := t.Counties[county]
		if !ok {
			return nil, eris.Errorf("gazetteer: town %q references unknown county %q", town, county)
		}
		_, uk := t.UKCountries[ce.Country]
		put(town, entry{kind: kindTown, name: town, county: county, country: ce.Country, uk: uk})
	}

	return g, nil
}

func (g *Gazetteer) link(a, b string) {
	a, b = norm(a), norm(b)
	if g.adjacent[a] == nil {
		g.adjacent[a] = make(map[string]bool)
	}
	if g.adjacent[b] == nil {
		g.adjacent[b] = make(map[string]bool)
	}
	g.adjacent[a][b] = true
	g.adjacent[b][a] = true
}

// Adjacent reports whether two historic counties share a border.
func (g *Gazetteer) Adjacent(countyA, countyB string) bool {
	return g.adjacent[norm(countyA)][norm(countyB)]
}

// Resolve parses a comma-separated place string. Segments are read from the
// most general (rightmost) to the most specific. The first country or foreign
// region seen fixes the country; towns inside a foreign country are ignored.
func (g *Gazetteer) Resolve(place string) Place {
	p := Place{Raw: place}
	segments := strings.Split(place, ",")
	countryFixed := false

	for i := len(segments) - 1; i >= 0; i-- {
		seg := norm(segments[i])
		if seg == "" {
			continue
		}
		for _, e := range g.find(seg) {
			switch e.kind {
			case kindCountry, kindRegion:
				if !countryFixed && p.County == "" && p.Town == "" {
					p.Country = e.country
					p.UK = e.uk
					p.Foreign = !e.uk
					countryFixed = true
				}
			case kindCounty:
				if countryFixed && e.country != p.Country && !(p.Country == "united kingdom" && e.uk) {
					continue
				}
				if p.County == "" {
					p.County = e.county
				}
				if !countryFixed || p.Country == "united kingdom" {
					p.Country = e.country
					p.UK = e.uk
					p.Foreign = !e.uk
				}
			case kindTown:
				if countryFixed && p.Foreign {
					continue
				}
				if p.County != "" && p.County != e.county {
					continue
				}
				if p.Town == "" {
					p.Town = e.name
					p.County = e.county
					p.Country = e.country
					p.UK = e.uk
					p.Foreign = !e.uk
				}
			}
		}
	}
	return p
}

// find returns the table entries named inside a normalized segment, most
// general kind first. Longer phrases claim their words before shorter ones.
func (g *Gazetteer) find(seg string) []entry {
	words := strings.Fields(seg)
	used := make([]bool, len(words))
	var out []entry
	for n := min(g.maxWords, len(words)); n >= 1; n-- {
		for i := 0; i+n <= len(words); i++ {
			if anyUsed(used[i : i+n]) {
				continue
			}
			e, ok := g.index[strings.Join(words[i:i+n], " ")]
			if !ok {
				continue
			}
			for j := i; j < i+n; j++ {
				used[j] = true
			}
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].kind > out[j].kind })
	return out
}

func anyUsed(flags []bool) bool {
	for _, f := range flags {
		if f {
			return true
		}
	}
	return false
}

func norm(s string) string {
	return names.Normalize(s)
}
