package source

import (
	"context"
	"encoding/json"
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

// WikiTreeName is the adapter name recorded on candidates.
const WikiTreeName = "wikitree"

const wtFields = "Id,Name,FirstName,MiddleName,LastNameAtBirth,LastNameCurrent,Gender,BirthDate,BirthLocation,DeathDate,DeathLocation,Father,Mother"

// WikiTree queries the public WikiTree API. No credentials are needed; the
// app id identifies the caller.
type WikiTree struct {
	appID   string
	baseURL string
	http    *http.Client
}

// WikiTreeOption configures the WikiTree adapter.
type WikiTreeOption func(*WikiTree)

// WithWikiTreeBaseURL overrides the API endpoint (for testing).
func WithWikiTreeBaseURL(u string) WikiTreeOption {
	return func(w *WikiTree) { w.baseURL = u }
}

// WithWikiTreeHTTPClient sets a custom HTTP client.
func WithWikiTreeHTTPClient(hc *http.Client) WikiTreeOption {
	return func(w *WikiTree) { w.http = hc }
}

// NewWikiTree creates the adapter.
func NewWikiTree(appID string, opts ...WikiTreeOption) *WikiTree {
	w := &WikiTree{
		appID:   appID,
		baseURL: "https://api.wikitree.com/api.php",
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *WikiTree) Name() string { return WikiTreeName }

func (w *WikiTree) Capabilities() Capability { return CapSearch | CapTree }

func (w *WikiTree) Available() bool { return w.baseURL != "" }

// wtPerson is the profile shape shared by every WikiTree action.
type wtPerson struct {
	ID              json.Number `json:"Id"`
	Name            string      `json:"Name"`
	FirstName       string      `json:"FirstName"`
	MiddleName      string      `json:"MiddleName"`
	LastNameAtBirth string      `json:"LastNameAtBirth"`
	LastNameCurrent string      `json:"LastNameCurrent"`
	Gender          string      `json:"Gender"`
	BirthDate       string      `json:"BirthDate"`
	BirthLocation   string      `json:"BirthLocation"`
	DeathDate       string      `json:"DeathDate"`
	DeathLocation   string      `json:"DeathLocation"`
	Father          json.Number `json:"Father"`
	Mother          json.Number `json:"Mother"`
}

func (w *WikiTree) post(ctx context.Context, form url.Values, out any) error {
	form.Set("appId", w.appID)
	form.Set("format", "json")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.baseURL, strings.NewReader(form.Encode()))
	if err != nil {
		return eris.Wrap(err, "wikitree: create request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := w.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "wikitree: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if err := resilience.ClassifyStatus(WikiTreeName, resp.StatusCode, resp.Header.Get("Retry-After")); err != nil {
		return err
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return eris.Wrap(err, "wikitree: read body")
	}
	if err := json.Unmarshal(body, out); err != nil {
		return eris.Wrap(err, "wikitree: decode response")
	}
	return nil
}

// wtDate drops WikiTree's zero placeholders ("0000-00-00", "1921-00-00").
func wtDate(d string) string {
	d = strings.TrimSpace(d)
	if d == "" || strings.HasPrefix(d, "0000") {
		return ""
	}
	return strings.TrimSuffix(strings.TrimSuffix(d, "-00"), "-00")
}

func wtCandidate(p wtPerson) model.Candidate {
	given := strings.TrimSpace(p.FirstName + " " + p.MiddleName)
	surname := p.LastNameAtBirth
	if surname == "" {
		surname = p.LastNameCurrent
	}
	return model.Candidate{
		Source:     WikiTreeName,
		PersonID:   p.Name,
		Name:       strings.TrimSpace(given + " " + surname),
		GivenNames: given,
		Surname:    surname,
		Gender:     model.ParseGender(p.Gender),
		BirthDate:  wtDate(p.BirthDate),
		BirthPlace: p.BirthLocation,
		DeathDate:  wtDate(p.DeathDate),
		DeathPlace: p.DeathLocation,
		Sources:    []string{WikiTreeName},
		SourceIDs:  map[string]string{WikiTreeName: p.Name},
	}
}

// Search runs the searchPerson action.
func (w *WikiTree) Search(ctx context.Context, q Query) ([]model.Candidate, error) {
	form := url.Values{}
	form.Set("action", "searchPerson")
	form.Set("fields", wtFields)
	if q.GivenNames != "" {
		form.Set("FirstName", firstWord(q.GivenNames))
	}
	if q.Surname != "" {
		form.Set("LastName", q.Surname)
	}
	switch q.Gender {
	case model.GenderMale:
		form.Set("Gender", "Male")
	case model.GenderFemale:
		form.Set("Gender", "Female")
	}
	if q.BirthYear > 0 {
		form.Set("BirthDate", strconv.Itoa(q.BirthYear))
		if q.YearRange > 0 {
			form.Set("dateInclude", "both")
			form.Set("dateSpread", strconv.Itoa(q.YearRange))
		}
	}
	if q.BirthPlace != "" {
		form.Set("BirthLocation", q.BirthPlace)
	}
	if q.DeathYear > 0 {
		form.Set("DeathDate", strconv.Itoa(q.DeathYear))
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	form.Set("limit", strconv.Itoa(limit))

	var resp []struct {
		Status  any        `json:"status"`
		Matches []wtPerson `json:"matches"`
	}
	if err := w.post(ctx, form, &resp); err != nil {
		return nil, err
	}
	var out []model.Candidate
	for _, r := range resp {
		for _, p := range r.Matches {
			if p.Name == "" {
				continue
			}
			out = append(out, wtCandidate(p))
		}
	}
	return out, nil
}

// Parents uses getRelatives to return the recorded parents of a WikiTree id.
func (w *WikiTree) Parents(ctx context.Context, personID string) (Parents, error) {
	form := url.Values{}
	form.Set("action", "getRelatives")
	form.Set("keys", personID)
	form.Set("getParents", "1")
	form.Set("fields", wtFields)

	var resp []struct {
		Items []struct {
			Key    string `json:"key"`
			Person struct {
				wtPerson
				Parents map[string]wtPerson `json:"Parents"`
			} `json:"person"`
		} `json:"items"`
	}
	if err := w.post(ctx, form, &resp); err != nil {
		return Parents{}, err
	}

	var out Parents
	for _, r := range resp {
		for _, item := range r.Items {
			child := item.Person
			for id, p := range child.Parents {
				c := wtCandidate(p)
				c.TreeLinked = true
				switch {
				case id == child.Father.String() || (c.Gender == model.GenderMale && out.Father == nil):
					out.Father = &c
				case id == child.Mother.String() || (c.Gender == model.GenderFemale && out.Mother == nil):
					out.Mother = &c
				}
			}
		}
	}
	return out, nil
}

// Ancestry uses getAncestors, excluding the starting profile.
func (w *WikiTree) Ancestry(ctx context.Context, personID string, depth int) ([]model.Candidate, error) {
	if depth <= 0 {
		depth = 1
	}
	form := url.Values{}
	form.Set("action", "getAncestors")
	form.Set("key", personID)
	form.Set("depth", strconv.Itoa(depth))
	form.Set("fields", wtFields)

	var resp []struct {
		Ancestors []wtPerson `json:"ancestors"`
	}
	if err := w.post(ctx, form, &resp); err != nil {
		return nil, err
	}
	var out []model.Candidate
	for _, r := range resp {
		for _, p := range r.Ancestors {
			if p.Name == "" || p.Name == personID {
				continue
			}
			c := wtCandidate(p)
			c.TreeLinked = true
			out = append(out, c)
		}
	}
	return out, nil
}
