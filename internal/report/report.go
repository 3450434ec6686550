// Package report exports dashboard views as spreadsheets.
package report

import (
	"io"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/lpde-tools/ledger-indicators/internal/dashboard"
)

const (
	sheetName       = "Indicators"
	dateLayout      = "2006-01-02 15:04"
	colTenant       = "Tenant"
	colCollaborator = "Collaborator"
	colExtracted    = "Extraction date"
)

// Header returns the column titles for v in display order.
func Header(v *dashboard.View) []string {
	cols := []string{colTenant}
	if v.ShowCollaborator {
		cols = append(cols, colCollaborator)
	}
	if v.ShowExtractionDate {
		cols = append(cols, colExtracted)
	}
	return append(cols, v.Columns...)
}

// Rows returns the body of v as strings, aligned with Header. Times are
// rendered in loc.
func Rows(v *dashboard.View, loc *time.Location) [][]string {
	if loc == nil {
		loc = time.UTC
	}
	out := make([][]string, 0, len(v.Rows))
	for _, r := range v.Rows {
		row := []string{r.TenantName}
		if v.ShowCollaborator {
			row = append(row, r.CollaboratorDisplay)
		}
		if v.ShowExtractionDate {
			row = append(row, r.ExtractionTimestamp.In(loc).Format(dateLayout))
		}
		for _, c := range v.Columns {
			row = append(row, r.Values[c])
		}
		out = append(out, row)
	}
	return out
}

// Build lays v out as a single-sheet workbook.
func Build(v *dashboard.View, loc *time.Location) (*xlsx.File, error) {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(sheetName)
	if err != nil {
		return nil, eris.Wrap(err, "report: add sheet")
	}

	addRow(sheet, Header(v), true)
	for _, cells := range Rows(v, loc) {
		addRow(sheet, cells, false)
	}
	return f, nil
}

// Write encodes v as xlsx to w.
func Write(w io.Writer, v *dashboard.View, loc *time.Location) error {
	f, err := Build(v, loc)
	if err != nil {
		return err
	}
	if err := f.Write(w); err != nil {
		return eris.Wrap(err, "report: write workbook")
	}
	return nil
}

// Save writes v to an xlsx file at path.
func Save(path string, v *dashboard.View, loc *time.Location) error {
	f, err := Build(v, loc)
	if err != nil {
		return err
	}
	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "report: save %s", path)
	}
	return nil
}

func addRow(sheet *xlsx.Sheet, cells []string, bold bool) {
	row := sheet.AddRow()
	for _, v := range cells {
		cell := row.AddCell()
		cell.SetString(v)
		if bold {
			style := xlsx.NewStyle()
			style.Font.Bold = true
			style.ApplyFont = true
			cell.SetStyle(style)
		}
	}
}
