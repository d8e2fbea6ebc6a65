package ingestion

import (
	"bytes"
	"encoding/csv"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/fmuoria/talent-admin/internal/models"
)

var (
	// ErrUnsupportedFormat is returned for files outside the tabular whitelist
	ErrUnsupportedFormat = eris.New("ingestion: unsupported file format")
	// ErrEmptyOrMalformed is returned when a file has no header plus data row
	ErrEmptyOrMalformed = eris.New("ingestion: file is empty or malformed")
)

// SupportedExtensions lists the spreadsheet formats the reader accepts
var SupportedExtensions = []string{".xlsx", ".xlsm", ".csv", ".tsv"}

// DefaultSampleRows is the preview size when none is configured
const DefaultSampleRows = 3

// IsSupported reports whether filename has a whitelisted extension
func IsSupported(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, e := range SupportedExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// Reader parses uploaded spreadsheets into a SourceDataset.
// The first non-blank row is always the header row.
type Reader struct {
	sampleRows int
}

// NewReader creates a reader that keeps sampleRows rows for preview
func NewReader(sampleRows int) *Reader {
	if sampleRows <= 0 {
		sampleRows = DefaultSampleRows
	}
	return &Reader{sampleRows: sampleRows}
}

// ReadFile opens and parses a spreadsheet on disk
func (r *Reader) ReadFile(path string) (*models.SourceDataset, error) {
	if !IsSupported(path) {
		return nil, eris.Wrapf(ErrUnsupportedFormat, "read %s", filepath.Base(path))
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "ingestion: open %s", path)
	}
	defer f.Close()
	return r.Read(filepath.Base(path), f)
}

// Read parses src, using filename to pick the format
func (r *Reader) Read(filename string, src io.Reader) (*models.SourceDataset, error) {
	if !IsSupported(filename) {
		return nil, eris.Wrapf(ErrUnsupportedFormat, "read %s", filename)
	}

	data, err := io.ReadAll(src)
	if err != nil {
		return nil, eris.Wrapf(err, "ingestion: read %s", filename)
	}

	var rows [][]string
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		rows, err = parseDelimited(data, ',')
	case ".tsv":
		rows, err = parseDelimited(data, '\t')
	default:
		rows, err = parseWorkbook(data)
	}
	if err != nil {
		return nil, err
	}

	rows = dropBlankRows(rows)
	if len(rows) < 2 {
		return nil, eris.Wrapf(ErrEmptyOrMalformed, "%s has %d non-empty rows, need a header and at least one data row", filename, len(rows))
	}

	headers := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		headers[i] = strings.TrimSpace(h)
	}

	all := rows[1:]
	n := r.sampleRows
	if n > len(all) {
		n = len(all)
	}

	return &models.SourceDataset{
		Filename:   filename,
		Headers:    headers,
		SampleRows: all[:n],
		AllRows:    all,
	}, nil
}

// parseWorkbook reads the first sheet of an xlsx workbook
func parseWorkbook(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, eris.Wrapf(ErrEmptyOrMalformed, "open workbook: %v", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, eris.Wrap(ErrEmptyOrMalformed, "workbook has no sheets")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, eris.Wrapf(ErrEmptyOrMalformed, "read sheet %q: %v", sheets[0], err)
	}
	return rows, nil
}

// parseDelimited reads CSV/TSV text in UTF-8, UTF-16 (with BOM) or Windows-1252
func parseDelimited(data []byte, comma rune) ([][]string, error) {
	reader := csv.NewReader(bytes.NewReader(decodeText(data)))
	reader.Comma = comma
	// Rows may be ragged; transform pads short rows
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	var rows [][]string
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, eris.Wrapf(ErrEmptyOrMalformed, "parse line %d: %v", len(rows)+1, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// decodeText strips any BOM and converts legacy single-byte text to UTF-8
func decodeText(data []byte) []byte {
	decoded, _, err := transform.Bytes(unicode.BOMOverride(transform.Nop), data)
	if err != nil {
		decoded = data
	}
	if utf8.Valid(decoded) {
		return decoded
	}
	latin, err := charmap.Windows1252.NewDecoder().Bytes(decoded)
	if err != nil {
		return decoded
	}
	return latin
}

func dropBlankRows(rows [][]string) [][]string {
	out := rows[:0]
	for _, row := range rows {
		for _, cell := range row {
			if strings.TrimSpace(cell) != "" {
				out = append(out, row)
				break
			}
		}
	}
	return out
}
