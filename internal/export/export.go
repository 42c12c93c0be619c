// Package export renders a resolved tree as a spreadsheet or JSON document.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/lineage-cli/internal/model"
	"github.com/sells-group/lineage-cli/internal/store"
)

// Supported formats.
const (
	FormatXLSX = "xlsx"
	FormatJSON = "json"
)

// ErrUnknownFormat is returned for a format other than xlsx or json.
var ErrUnknownFormat = eris.New("export: unknown format")

// Tree is a job and its positions in Ahnentafel order.
type Tree struct {
	Job       *model.Job       `json:"job"`
	Ancestors []model.Ancestor `json:"ancestors"`
}

// Load reads a job's tree from the store.
func Load(ctx context.Context, st store.Store, jobID string) (*Tree, error) {
	job, err := st.GetJob(ctx, jobID)
	if err != nil {
		return nil, eris.Wrap(err, "export: load job")
	}
	ancestors, err := st.ListAncestors(ctx, jobID)
	if err != nil {
		return nil, eris.Wrap(err, "export: list ancestors")
	}
	slices.SortFunc(ancestors, func(a, b model.Ancestor) int { return a.AscendancyNum - b.AscendancyNum })
	return &Tree{Job: job, Ancestors: ancestors}, nil
}

// Write renders t in the named format.
func Write(w io.Writer, format string, t *Tree) error {
	switch strings.ToLower(format) {
	case FormatXLSX:
		return WriteXLSX(w, t)
	case FormatJSON, "":
		return WriteJSON(w, t)
	}
	return eris.Wrapf(ErrUnknownFormat, "%q", format)
}

// WriteJSON writes the full tree, logs included, as indented JSON.
func WriteJSON(w io.Writer, t *Tree) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return eris.Wrap(enc.Encode(t), "export: encode json")
}

var treeHeader = []string{
	"Position", "Generation", "Role", "Name", "Gender",
	"Birth Date", "Birth Place", "Death Date", "Death Place",
	"Score", "Level", "Source", "Source ID", "Sources",
	"Citations", "Searches", "Corrections", "Last Correction",
}

var correctionHeader = []string{
	"Position", "ID", "Kind", "Field", "Before", "After", "Reason", "Reversed", "At",
}

// WriteXLSX writes a workbook with a Tree sheet (one row per position) and a
// Corrections sheet listing every corrections-log entry.
func WriteXLSX(w io.Writer, t *Tree) error {
	f := xlsx.NewFile()

	tree, err := f.AddSheet("Tree")
	if err != nil {
		return eris.Wrap(err, "export: add tree sheet")
	}
	addHeader(tree, treeHeader)
	for i := range t.Ancestors {
		a := &t.Ancestors[i]
		row := tree.AddRow()
		row.AddCell().SetInt(a.AscendancyNum)
		row.AddCell().SetInt(model.Generation(a.AscendancyNum))
		addStrings(row,
			model.RoleLabel(a.AscendancyNum),
			a.Name,
			string(a.Gender),
			a.BirthDate,
			a.BirthPlace,
			a.DeathDate,
			a.DeathPlace,
		)
		row.AddCell().SetInt(a.ConfidenceScore)
		addStrings(row,
			string(a.ConfidenceLevel),
			a.Source,
			a.SourcePersonID,
			strings.Join(a.Sources, ", "),
		)
		row.AddCell().SetInt(len(a.EvidenceChain))
		row.AddCell().SetInt(len(a.SearchLog))
		row.AddCell().SetInt(len(a.CorrectionsLog))
		row.AddCell().SetString(lastCorrection(a.CorrectionsLog))
	}

	corrections, err := f.AddSheet("Corrections")
	if err != nil {
		return eris.Wrap(err, "export: add corrections sheet")
	}
	addHeader(corrections, correctionHeader)
	for _, a := range t.Ancestors {
		for _, e := range a.CorrectionsLog {
			row := corrections.AddRow()
			row.AddCell().SetInt(a.AscendancyNum)
			addStrings(row, e.ID, string(e.Kind), e.Field, e.Before, e.After, e.Reason)
			row.AddCell().SetBool(e.Reversed)
			row.AddCell().SetString(e.At.Format("2006-01-02 15:04:05"))
		}
	}

	return eris.Wrap(f.Write(w), "export: write xlsx")
}

func addHeader(sheet *xlsx.Sheet, cols []string) {
	style := xlsx.NewStyle()
	style.Font.Bold = true
	style.ApplyFont = true
	row := sheet.AddRow()
	for _, c := range cols {
		cell := row.AddCell()
		cell.SetString(c)
		cell.SetStyle(style)
	}
}

func addStrings(row *xlsx.Row, vals ...string) {
	for _, v := range vals {
		row.AddCell().SetString(v)
	}
}

func lastCorrection(log []model.CorrectionEntry) string {
	if len(log) == 0 {
		return ""
	}
	e := log[len(log)-1]
	if e.After == "" {
		return fmt.Sprintf("%s %s: %s", e.Kind, e.Field, e.Reason)
	}
	return fmt.Sprintf("%s %s: %q -> %q", e.Kind, e.Field, e.Before, e.After)
}
