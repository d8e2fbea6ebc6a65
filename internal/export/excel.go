// Package export writes candidate spreadsheets: the current records, the
// blank import template and upload run reports.
package export

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/xuri/excelize/v2"

	"github.com/fmuoria/talent-admin/internal/models"
)

const (
	candidatesSheet = "Candidates"
	templateSheet   = "Template"
	guideSheet      = "Instructions"
	summarySheet    = "Summary"
	failuresSheet   = "Failed Records"
)

var thinBorder = []excelize.Border{
	{Type: "left", Color: "000000", Style: 1},
	{Type: "right", Color: "000000", Style: 1},
	{Type: "top", Color: "000000", Style: 1},
	{Type: "bottom", Color: "000000", Style: 1},
}

// ExportCandidates writes candidates to an xlsx file at outputPath
func ExportCandidates(candidates []models.Candidate, catalog models.Catalog, outputPath string) (string, error) {
	return saveFile(outputPath, func(w io.Writer) error {
		return WriteCandidates(w, candidates, catalog)
	})
}

// ExportTemplate writes the blank import template to outputPath
func ExportTemplate(catalog models.Catalog, outputPath string) (string, error) {
	return saveFile(outputPath, func(w io.Writer) error {
		return WriteTemplate(w, catalog)
	})
}

// ExportUploadReport writes an upload run and its failed rows to outputPath
func ExportUploadReport(run models.UploadRun, catalog models.Catalog, outputPath string) (string, error) {
	return saveFile(outputPath, func(w io.Writer) error {
		return WriteUploadReport(w, run, catalog)
	})
}

// saveFile adds a missing .xlsx extension and cleans the path before writing
func saveFile(outputPath string, write func(io.Writer) error) (string, error) {
	if !strings.HasSuffix(strings.ToLower(outputPath), ".xlsx") {
		outputPath = outputPath + ".xlsx"
	}
	outputPath = filepath.Clean(outputPath)

	var buf bytes.Buffer
	if err := write(&buf); err != nil {
		return "", err
	}
	if err := os.WriteFile(outputPath, buf.Bytes(), 0644); err != nil {
		return "", eris.Wrapf(err, "export: write %s", outputPath)
	}
	return outputPath, nil
}

// WriteCandidates renders one row per candidate under the catalog labels
func WriteCandidates(w io.Writer, candidates []models.Candidate, catalog models.Catalog) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", candidatesSheet); err != nil {
		return eris.Wrap(err, "export: rename sheet")
	}

	headerStyle, err := newHeaderStyle(f)
	if err != nil {
		return err
	}
	if err := writeHeader(f, candidatesSheet, labels(catalog), headerStyle); err != nil {
		return err
	}

	for i, c := range candidates {
		row := make([]any, len(catalog))
		for j, field := range catalog {
			row[j] = c.Fields[field.ID]
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(candidatesSheet, cell, &row); err != nil {
			return eris.Wrapf(err, "export: write candidate row %d", i+2)
		}
	}

	if len(candidates) > 0 && len(catalog) > 0 {
		last, _ := excelize.CoordinatesToCellName(len(catalog), len(candidates)+1)
		if err := f.AutoFilter(candidatesSheet, "A1:"+last, []excelize.AutoFilterOptions{}); err != nil {
			return eris.Wrap(err, "export: auto filter")
		}
	}
	if err := freezeTopRow(f, candidatesSheet); err != nil {
		return err
	}

	return eris.Wrap(f.Write(w), "export: write workbook")
}

// WriteTemplate renders the labels of every user-supplied field, plus an
// instructions sheet naming the required ones
func WriteTemplate(w io.Writer, catalog models.Catalog) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", templateSheet); err != nil {
		return eris.Wrap(err, "export: rename sheet")
	}

	headerStyle, err := newHeaderStyle(f)
	if err != nil {
		return err
	}
	mappable := catalog.Mappable()
	if err := writeHeader(f, templateSheet, labels(mappable), headerStyle); err != nil {
		return err
	}
	if err := freezeTopRow(f, templateSheet); err != nil {
		return err
	}

	if _, err := f.NewSheet(guideSheet); err != nil {
		return eris.Wrap(err, "export: new sheet")
	}
	f.SetColWidth(guideSheet, "A", "A", 30)
	f.SetColWidth(guideSheet, "B", "B", 12)
	if err := writeHeader(f, guideSheet, []string{"Column", "Required"}, headerStyle); err != nil {
		return err
	}
	for i, field := range mappable {
		required := "No"
		if field.Required {
			required = "Yes"
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(guideSheet, cell, &[]any{field.Label, required}); err != nil {
			return eris.Wrap(err, "export: write instructions")
		}
	}

	return eris.Wrap(f.Write(w), "export: write workbook")
}

// WriteUploadReport renders a run summary and one row per failed record
func WriteUploadReport(w io.Writer, run models.UploadRun, catalog models.Catalog) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return eris.Wrap(err, "export: rename sheet")
	}
	f.SetColWidth(summarySheet, "A", "A", 20)
	f.SetColWidth(summarySheet, "B", "B", 40)

	labelStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return eris.Wrap(err, "export: label style")
	}

	summary := [][2]any{
		{"Upload ID:", run.ID},
		{"File:", run.Filename},
		{"Uploaded:", run.UploadDate.Format(time.RFC3339)},
		{"Total Records:", run.TotalRecords},
		{"Successful:", run.SuccessCount},
		{"Errors:", run.ErrorCount},
	}
	for i, kv := range summary {
		row := i + 1
		a, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(summarySheet, a, &[]any{kv[0], kv[1]}); err != nil {
			return eris.Wrap(err, "export: write summary")
		}
		f.SetCellStyle(summarySheet, a, a, labelStyle)
	}

	if _, err := f.NewSheet(failuresSheet); err != nil {
		return eris.Wrap(err, "export: new sheet")
	}
	headerStyle, err := newHeaderStyle(f)
	if err != nil {
		return err
	}
	header := append([]string{"Row", "Error"}, labels(catalog)...)
	if err := writeHeader(f, failuresSheet, header, headerStyle); err != nil {
		return err
	}

	wrapStyle, err := f.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{WrapText: true, Vertical: "top"},
		Border:    thinBorder,
	})
	if err != nil {
		return eris.Wrap(err, "export: wrap style")
	}
	f.SetColWidth(failuresSheet, "B", "B", 50)

	for i, fr := range run.Failures {
		row := []any{fr.RowNumber, fr.ErrorMessage}
		for _, field := range catalog {
			row = append(row, fr.RecordData[field.ID])
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(failuresSheet, cell, &row); err != nil {
			return eris.Wrapf(err, "export: write failure row %d", fr.RowNumber)
		}
		end, _ := excelize.CoordinatesToCellName(len(row), i+2)
		f.SetCellStyle(failuresSheet, cell, end, wrapStyle)
	}
	if err := freezeTopRow(f, failuresSheet); err != nil {
		return err
	}

	return eris.Wrap(f.Write(w), "export: write workbook")
}

func labels(catalog models.Catalog) []string {
	out := make([]string, len(catalog))
	for i, field := range catalog {
		out[i] = field.Label
	}
	return out
}

func newHeaderStyle(f *excelize.File) (int, error) {
	style, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
		Border:    thinBorder,
	})
	return style, eris.Wrap(err, "export: header style")
}

// writeHeader fills row 1 with names and sizes each column to fit its header
func writeHeader(f *excelize.File, sheet string, names []string, style int) error {
	for col, name := range names {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return eris.Wrap(err, "export: header cell")
		}
		if err := f.SetCellValue(sheet, cell, name); err != nil {
			return eris.Wrapf(err, "export: header %s", name)
		}
		f.SetCellStyle(sheet, cell, cell, style)

		colName, _ := excelize.ColumnNumberToName(col + 1)
		width := float64(len(name)) + 4
		if width < 15 {
			width = 15
		}
		f.SetColWidth(sheet, colName, colName, width)
	}
	return nil
}

func freezeTopRow(f *excelize.File, sheet string) error {
	err := f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		XSplit:      0,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
	return eris.Wrapf(err, "export: freeze %s", sheet)
}
