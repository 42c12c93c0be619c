// Package source defines the capability-tagged adapter interface over the
// upstream genealogical record providers, the registry the engine consults,
// and the concrete FamilySearch, WikiTree and civil-index adapters.
package source

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lineage-cli/internal/model"
)

// Sentinel errors returned by adapters and the Limited wrapper.
var (
	ErrUnavailable = eris.New("source unavailable")
	ErrAuth        = eris.New("source authentication failed")
	ErrRateLimited = eris.New("source rate limited")
	ErrUnsupported = eris.New("capability not supported")
)

// Capability is a bit set of the operations an adapter supports.
type Capability uint8

const (
	CapSearch Capability = 1 << iota
	CapTree
	CapConfirm
	CapEvidence
)

// Has reports whether every bit of o is set in c.
func (c Capability) Has(o Capability) bool { return c&o == o }

func (c Capability) String() string {
	var parts []string
	for _, e := range []struct {
		c    Capability
		name string
	}{{CapSearch, "search"}, {CapTree, "tree"}, {CapConfirm, "confirm"}, {CapEvidence, "evidence"}} {
		if c.Has(e.c) {
			parts = append(parts, e.name)
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// Adapter is implemented by every upstream provider. Callers branch on
// Capabilities and then assert the matching capability interface.
type Adapter interface {
	Name() string
	Capabilities() Capability
	// Available reports whether the adapter may be consulted right now
	// (credentials present, not degraded, no sticky auth failure).
	Available() bool
}

// Query is a person search request. Zero fields are unconstrained.
type Query struct {
	GivenNames string       `json:"given_names,omitempty"`
	Surname    string       `json:"surname,omitempty"`
	Gender     model.Gender `json:"gender,omitempty"`
	BirthYear  int          `json:"birth_year,omitempty"`
	// YearRange widens BirthYear to ±YearRange.
	YearRange  int    `json:"year_range,omitempty"`
	BirthPlace string `json:"birth_place,omitempty"`
	DeathYear  int    `json:"death_year,omitempty"`
	FatherName string `json:"father_name,omitempty"`
	MotherName string `json:"mother_name,omitempty"`
	Limit      int    `json:"limit,omitempty"`
}

// String renders the query compactly for search logs.
func (q Query) String() string {
	var parts []string
	add := func(k, v string) {
		if v != "" {
			parts = append(parts, k+"="+v)
		}
	}
	add("given", q.GivenNames)
	add("surname", q.Surname)
	add("gender", string(q.Gender))
	if q.BirthYear > 0 {
		if q.YearRange > 0 {
			add("born", fmt.Sprintf("%d±%d", q.BirthYear, q.YearRange))
		} else {
			add("born", fmt.Sprint(q.BirthYear))
		}
	}
	add("place", q.BirthPlace)
	if q.DeathYear > 0 {
		add("died", fmt.Sprint(q.DeathYear))
	}
	add("father", q.FatherName)
	add("mother", q.MotherName)
	return strings.Join(parts, " ")
}

// Empty reports whether the query carries nothing to search on.
func (q Query) Empty() bool {
	return q.GivenNames == "" && q.Surname == "" && q.BirthPlace == ""
}

// Parents is a provider's recorded parent pair. Either may be nil.
type Parents struct {
	Father *model.Candidate
	Mother *model.Candidate
}

// Empty reports whether neither parent was returned.
func (p Parents) Empty() bool { return p.Father == nil && p.Mother == nil }

// Searcher runs name/date/place queries.
type Searcher interface {
	Adapter
	Search(ctx context.Context, q Query) ([]model.Candidate, error)
}

// TreeWalker follows a provider's own recorded family graph.
type TreeWalker interface {
	Adapter
	Parents(ctx context.Context, personID string) (Parents, error)
	// Ancestry returns ancestors up to depth generations above personID.
	Ancestry(ctx context.Context, personID string, depth int) ([]model.Candidate, error)
}

// Confirmer looks up a single best vital-record entry. A nil entry with a
// nil error means no match.
type Confirmer interface {
	Adapter
	ConfirmBirth(ctx context.Context, name string, year int) (*model.VitalEntry, error)
	ConfirmDeath(ctx context.Context, name string, year int) (*model.VitalEntry, error)
	FindMarriage(ctx context.Context, name string, year int) (*model.VitalEntry, error)
}

// EvidenceProvider lists supporting record citations for a person.
type EvidenceProvider interface {
	Adapter
	Evidence(ctx context.Context, personID string) ([]model.EvidenceCitation, error)
}
