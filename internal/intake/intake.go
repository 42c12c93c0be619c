// Package intake turns a customer intake document into a traversal request.
package intake

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/lineage-cli/internal/model"
	"github.com/sells-group/lineage-cli/internal/traversal"
)

// Person is one customer-supplied person.
type Person struct {
	Name       string `yaml:"name" json:"name" validate:"max=200"`
	Gender     string `yaml:"gender" json:"gender,omitempty" validate:"omitempty,oneof=M F m f male female Male Female"`
	BirthDate  string `yaml:"birth_date" json:"birth_date,omitempty" validate:"max=40"`
	BirthPlace string `yaml:"birth_place" json:"birth_place,omitempty" validate:"max=200"`
	DeathDate  string `yaml:"death_date" json:"death_date,omitempty" validate:"max=40"`
	DeathPlace string `yaml:"death_place" json:"death_place,omitempty" validate:"max=200"`
}

func (p Person) empty() bool {
	return p.Name == "" && p.BirthDate == "" && p.BirthPlace == ""
}

func (p Person) facts(asc int) model.KnownFacts {
	f := model.KnownFacts{
		Name:       strings.TrimSpace(p.Name),
		Gender:     model.ParseGender(p.Gender),
		BirthDate:  strings.TrimSpace(p.BirthDate),
		BirthPlace: strings.TrimSpace(p.BirthPlace),
		DeathDate:  strings.TrimSpace(p.DeathDate),
		DeathPlace: strings.TrimSpace(p.DeathPlace),
	}
	if f.Gender == model.GenderUnknown {
		f.Gender = model.ExpectedGender(asc)
	}
	return f
}

// Document is the intake file shape. Father and mother are shorthand for
// known positions 2 and 3.
type Document struct {
	JobID   string         `yaml:"job_id" json:"job_id,omitempty"`
	Depth   int            `yaml:"depth" json:"depth" validate:"gte=0,lte=12"`
	Subject Person         `yaml:"subject" json:"subject"`
	Father  *Person        `yaml:"father" json:"father,omitempty"`
	Mother  *Person        `yaml:"mother" json:"mother,omitempty"`
	Known   map[int]Person `yaml:"known" json:"known,omitempty" validate:"dive,keys,gte=1,endkeys"`
	Anchors []model.Anchor `yaml:"anchors" json:"anchors,omitempty"`
	Notes   string         `yaml:"notes" json:"notes,omitempty" validate:"max=20000"`
}

var validate = validator.New()

// Load reads an intake document. Files ending in .json are decoded as JSON,
// anything else as YAML.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "intake: read %s", path)
	}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return ParseJSON(data)
	}
	return ParseYAML(data)
}

// ParseYAML decodes and validates a YAML intake document.
func ParseYAML(data []byte) (*Document, error) {
	var d Document
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, eris.Wrap(err, "intake: decode yaml")
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &d, nil
}

// ParseJSON decodes and validates a JSON intake document.
func ParseJSON(data []byte) (*Document, error) {
	var d Document
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, eris.Wrap(err, "intake: decode json")
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &d, nil
}

// Validate checks the document has a subject and well-formed fields.
func (d *Document) Validate() error {
	if strings.TrimSpace(d.Subject.Name) == "" {
		if k, ok := d.Known[1]; !ok || strings.TrimSpace(k.Name) == "" {
			return eris.New("intake: subject name is required")
		}
	}
	if err := validate.Struct(d); err != nil {
		return eris.Wrap(err, "intake: invalid document")
	}
	for _, a := range d.Anchors {
		if a.AscendancyNum < 2 {
			return eris.Errorf("intake: anchor position %d must be 2 or above", a.AscendancyNum)
		}
	}
	return nil
}

// Request builds the traversal request. Explicit known positions win over
// the father/mother shorthand; anchors for positions the customer already
// supplied are dropped, as are duplicate anchors.
func (d *Document) Request() traversal.Request {
	known := make(map[int]model.KnownFacts)
	put := func(asc int, p *Person) {
		if p == nil || p.empty() {
			return
		}
		if _, ok := known[asc]; !ok {
			known[asc] = p.facts(asc)
		}
	}

	positions := make([]int, 0, len(d.Known))
	for asc := range d.Known {
		positions = append(positions, asc)
	}
	sort.Ints(positions)
	for _, asc := range positions {
		p := d.Known[asc]
		put(asc, &p)
	}
	put(1, &d.Subject)
	put(2, d.Father)
	put(3, d.Mother)

	if subject, ok := known[1]; ok {
		if f, ok := known[2]; ok && subject.FatherName == "" {
			subject.FatherName = f.Name
		}
		if m, ok := known[3]; ok && subject.MotherName == "" {
			subject.MotherName = m.Name
		}
		known[1] = subject
	}

	var anchors []model.Anchor
	seen := make(map[int]bool)
	for _, a := range append(append([]model.Anchor(nil), d.Anchors...), ParseNotes(d.Notes)...) {
		if _, ok := known[a.AscendancyNum]; ok || seen[a.AscendancyNum] {
			continue
		}
		seen[a.AscendancyNum] = true
		anchors = append(anchors, a)
	}

	return traversal.Request{
		JobID:   d.JobID,
		Depth:   d.Depth,
		Known:   known,
		Anchors: anchors,
	}
}
