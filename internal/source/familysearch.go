package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lineage-cli/internal/model"
	"github.com/sells-group/lineage-cli/internal/resilience"
)

// FamilySearchName is the adapter name recorded on candidates.
const FamilySearchName = "familysearch"

const fsMediaType = "application/x-fs-v1+json"

// FamilySearch queries the FamilySearch Family Tree API. The bearer token is
// obtained out of band.
type FamilySearch struct {
	token   string
	baseURL string
	http    *http.Client
}

// FamilySearchOption configures the FamilySearch adapter.
type FamilySearchOption func(*FamilySearch)

// WithFamilySearchBaseURL overrides the API host (for testing).
func WithFamilySearchBaseURL(u string) FamilySearchOption {
	return func(f *FamilySearch) { f.baseURL = strings.TrimRight(u, "/") }
}

// WithFamilySearchHTTPClient sets a custom HTTP client.
func WithFamilySearchHTTPClient(hc *http.Client) FamilySearchOption {
	return func(f *FamilySearch) { f.http = hc }
}

// NewFamilySearch creates the adapter. An empty token leaves it unavailable.
func NewFamilySearch(token string, opts ...FamilySearchOption) *FamilySearch {
	f := &FamilySearch{
		token:   token,
		baseURL: "https://api.familysearch.org",
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *FamilySearch) Name() string { return FamilySearchName }

func (f *FamilySearch) Capabilities() Capability {
	return CapSearch | CapTree | CapEvidence
}

func (f *FamilySearch) Available() bool { return f.token != "" }

// gedcomx subset returned by the tree endpoints.
type fsGedcomx struct {
	Persons                      []fsPerson       `json:"persons"`
	Relationships                []fsRelationship `json:"relationships"`
	ChildAndParentsRelationships []fsCAPR         `json:"childAndParentsRelationships"`
	SourceDescriptions           []fsSourceDesc   `json:"sourceDescriptions"`
}

type fsPerson struct {
	ID      string    `json:"id"`
	Display fsDisplay `json:"display"`
}

type fsDisplay struct {
	Name          string `json:"name"`
	Gender        string `json:"gender"`
	BirthDate     string `json:"birthDate"`
	BirthPlace    string `json:"birthPlace"`
	DeathDate     string `json:"deathDate"`
	DeathPlace    string `json:"deathPlace"`
	AscendancyNum string `json:"ascendancyNumber"`
}

type fsRef struct {
	ResourceID string `json:"resourceId"`
}

type fsRelationship struct {
	Type    string `json:"type"`
	Person1 fsRef  `json:"person1"`
	Person2 fsRef  `json:"person2"`
}

type fsCAPR struct {
	Father *fsRef `json:"father"`
	Mother *fsRef `json:"mother"`
	Child  fsRef  `json:"child"`
}

type fsSourceDesc struct {
	About  string `json:"about"`
	Titles []struct {
		Value string `json:"value"`
	} `json:"titles"`
	Citations []struct {
		Value string `json:"value"`
	} `json:"citations"`
	ResourceType string `json:"resourceType"`
}

type fsSearchResponse struct {
	Entries []struct {
		ID      string  `json:"id"`
		Score   float64 `json:"score"`
		Content struct {
			Gedcomx fsGedcomx `json:"gedcomx"`
		} `json:"content"`
	} `json:"entries"`
}

func (f *FamilySearch) get(ctx context.Context, path string, params url.Values, out any) (bool, error) {
	u := f.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return false, eris.Wrap(err, "familysearch: create request")
	}
	req.Header.Set("Authorization", "Bearer "+f.token)
	req.Header.Set("Accept", fsMediaType)

	resp, err := f.http.Do(req)
	if err != nil {
		return false, eris.Wrap(err, "familysearch: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode == http.StatusNoContent || resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if err := resilience.ClassifyStatus(FamilySearchName, resp.StatusCode, resp.Header.Get("Retry-After")); err != nil {
		return false, err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return false, eris.Wrap(err, "familysearch: read body")
	}
	if err := json.Unmarshal(body, out); err != nil {
		return false, eris.Wrap(err, "familysearch: decode response")
	}
	return true, nil
}

// Search runs a tree person search.
func (f *FamilySearch) Search(ctx context.Context, q Query) ([]model.Candidate, error) {
	params := url.Values{}
	params.Set("q", fsQueryString(q))
	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	params.Set("count", strconv.Itoa(limit))

	var resp fsSearchResponse
	ok, err := f.get(ctx, "/platform/tree/search", params, &resp)
	if err != nil || !ok {
		return nil, err
	}

	out := make([]model.Candidate, 0, len(resp.Entries))
	for _, e := range resp.Entries {
		g := e.Content.Gedcomx
		byID := make(map[string]fsPerson, len(g.Persons))
		for _, p := range g.Persons {
			byID[p.ID] = p
		}
		p, ok := byID[e.ID]
		if !ok {
			continue
		}
		c := fsCandidate(p)
		c.RawScore = e.Score
		for _, r := range g.Relationships {
			if !strings.HasSuffix(r.Type, "/ParentChild") || r.Person2.ResourceID != e.ID {
				continue
			}
			parent, ok := byID[r.Person1.ResourceID]
			if !ok {
				continue
			}
			switch model.ParseGender(parent.Display.Gender) {
			case model.GenderMale:
				c.FatherName = parent.Display.Name
			case model.GenderFemale:
				c.MotherName = parent.Display.Name
			}
		}
		out = append(out, c)
	}
	return out, nil
}

func fsQueryString(q Query) string {
	var parts []string
	add := func(k, v string) {
		if v != "" {
			parts = append(parts, fmt.Sprintf("%s:%q", k, v))
		}
	}
	add("givenName", q.GivenNames)
	add("surname", q.Surname)
	switch q.Gender {
	case model.GenderMale:
		add("sex", "Male")
	case model.GenderFemale:
		add("sex", "Female")
	}
	if q.BirthYear > 0 {
		if q.YearRange > 0 {
			add("birthLikeDate.from", strconv.Itoa(q.BirthYear-q.YearRange))
			add("birthLikeDate.to", strconv.Itoa(q.BirthYear+q.YearRange))
		} else {
			add("birthLikeDate", strconv.Itoa(q.BirthYear))
		}
	}
	add("birthLikePlace", q.BirthPlace)
	if q.DeathYear > 0 {
		add("deathLikeDate", strconv.Itoa(q.DeathYear))
	}
	add("fatherGivenName", firstWord(q.FatherName))
	add("motherGivenName", firstWord(q.MotherName))
	return strings.Join(parts, " ")
}

func firstWord(s string) string {
	if f := strings.Fields(s); len(f) > 0 {
		return f[0]
	}
	return ""
}

func fsCandidate(p fsPerson) model.Candidate {
	return model.Candidate{
		Source:     FamilySearchName,
		PersonID:   p.ID,
		Name:       p.Display.Name,
		Gender:     model.ParseGender(p.Display.Gender),
		BirthDate:  p.Display.BirthDate,
		BirthPlace: p.Display.BirthPlace,
		DeathDate:  p.Display.DeathDate,
		DeathPlace: p.Display.DeathPlace,
		Sources:    []string{FamilySearchName},
		SourceIDs:  map[string]string{FamilySearchName: p.ID},
	}
}

// Parents returns the recorded parents of personID.
func (f *FamilySearch) Parents(ctx context.Context, personID string) (Parents, error) {
	var g fsGedcomx
	ok, err := f.get(ctx, "/platform/tree/persons/"+url.PathEscape(personID)+"/parents", nil, &g)
	if err != nil || !ok {
		return Parents{}, err
	}

	byID := make(map[string]fsPerson, len(g.Persons))
	for _, p := range g.Persons {
		byID[p.ID] = p
	}
	var out Parents
	for _, r := range g.ChildAndParentsRelationships {
		if r.Child.ResourceID != personID {
			continue
		}
		if r.Father != nil && out.Father == nil {
			if p, ok := byID[r.Father.ResourceID]; ok {
				c := fsCandidate(p)
				c.TreeLinked = true
				out.Father = &c
			}
		}
		if r.Mother != nil && out.Mother == nil {
			if p, ok := byID[r.Mother.ResourceID]; ok {
				c := fsCandidate(p)
				c.TreeLinked = true
				out.Mother = &c
			}
		}
	}
	return out, nil
}

// Ancestry returns up to depth generations of ancestors, excluding the
// starting person.
func (f *FamilySearch) Ancestry(ctx context.Context, personID string, depth int) ([]model.Candidate, error) {
	if depth <= 0 {
		depth = 1
	}
	params := url.Values{}
	params.Set("person", personID)
	params.Set("generations", strconv.Itoa(depth))

	var g fsGedcomx
	ok, err := f.get(ctx, "/platform/tree/ancestry", params, &g)
	if err != nil || !ok {
		return nil, err
	}
	var out []model.Candidate
	for _, p := range g.Persons {
		if p.ID == personID || p.Display.AscendancyNum == "1" {
			continue
		}
		c := fsCandidate(p)
		c.TreeLinked = true
		if n, err := strconv.Atoi(p.Display.AscendancyNum); err == nil && n > 1 && c.Gender == model.GenderUnknown {
			c.Gender = model.ExpectedGender(n)
		}
		out = append(out, c)
	}
	return out, nil
}

// Evidence lists source descriptions attached to personID.
func (f *FamilySearch) Evidence(ctx context.Context, personID string) ([]model.EvidenceCitation, error) {
	var g fsGedcomx
	ok, err := f.get(ctx, "/platform/tree/persons/"+url.PathEscape(personID)+"/sources", nil, &g)
	if err != nil || !ok {
		return nil, err
	}
	out := make([]model.EvidenceCitation, 0, len(g.SourceDescriptions))
	for _, sd := range g.SourceDescriptions {
		c := model.EvidenceCitation{Source: FamilySearchName, URL: sd.About}
		if len(sd.Titles) > 0 {
			c.Title = sd.Titles[0].Value
		}
		if len(sd.Citations) > 0 {
			c.Note = sd.Citations[0].Value
		}
		c.Year = model.YearOf(c.Title)
		out = append(out, c)
	}
	return out, nil
}
