package ingestion

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func buildWorkbook(t *testing.T, rows [][]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		r := row
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &r))
	}
	// a second sheet must be ignored
	_, err := f.NewSheet("Other")
	require.NoError(t, err)
	require.NoError(t, f.SetCellValue("Other", "A1", "ignored"))

	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	return buf.Bytes()
}

func TestIsSupported(t *testing.T) {
	for _, name := range []string{"a.xlsx", "B.XLSX", "c.csv", "d.tsv", "e.xlsm"} {
		assert.True(t, IsSupported(name), name)
	}
	for _, name := range []string{"a.xls", "b.pdf", "c", "d.txt", "e.numbers"} {
		assert.False(t, IsSupported(name), name)
	}
}

func TestRead_CSV(t *testing.T) {
	csv := "Full Name, Email ID ,Mobile\nJane Doe,jane@x.com,555-1111\nJohn,john@x.com\n,,\nAmy,amy@x.com,1\nBo,bo@x.com,2\n"
	ds, err := NewReader(3).Read("people.csv", strings.NewReader(csv))
	require.NoError(t, err)

	assert.Equal(t, "people.csv", ds.Filename)
	assert.Equal(t, []string{"Full Name", "Email ID", "Mobile"}, ds.Headers)
	require.Len(t, ds.AllRows, 4)
	assert.Equal(t, []string{"Jane Doe", "jane@x.com", "555-1111"}, ds.AllRows[0])
	assert.Equal(t, []string{"John", "john@x.com"}, ds.AllRows[1])
	assert.Len(t, ds.SampleRows, 3)
}

func TestRead_CSVWithBOMAndLatin1(t *testing.T) {
	withBOM := append([]byte{0xEF, 0xBB, 0xBF}, []byte("Name,City\nAnn,Paris\n")...)
	ds, err := NewReader(0).Read("bom.csv", bytes.NewReader(withBOM))
	require.NoError(t, err)
	assert.Equal(t, "Name", ds.Headers[0])

	latin := []byte("Name,City\nJos\xe9,M\xfcnchen\n")
	ds, err = NewReader(0).Read("latin.csv", bytes.NewReader(latin))
	require.NoError(t, err)
	assert.Equal(t, []string{"José", "München"}, ds.AllRows[0])
}

func TestRead_TSV(t *testing.T) {
	ds, err := NewReader(3).Read("export.tsv", strings.NewReader("Name\tTech\nAnn\tGo, Rust\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"Name", "Tech"}, ds.Headers)
	assert.Equal(t, []string{"Ann", "Go, Rust"}, ds.AllRows[0])
}

func TestRead_Workbook(t *testing.T) {
	data := buildWorkbook(t, [][]any{
		{"Full Name", "Experience", "Email"},
		{"Jane Doe", 5, "jane@x.com"},
		{"John Roe", 2.5, ""},
	})

	ds, err := NewReader(1).Read("people.xlsx", bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, []string{"Full Name", "Experience", "Email"}, ds.Headers)
	require.Len(t, ds.AllRows, 2)
	assert.Equal(t, []string{"Jane Doe", "5", "jane@x.com"}, ds.AllRows[0])
	assert.Equal(t, "2.5", ds.AllRows[1][1])
	assert.Len(t, ds.SampleRows, 1)
}

func TestRead_Errors(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		content  []byte
		want     error
	}{
		{"legacy xls", "old.xls", []byte("whatever"), ErrUnsupportedFormat},
		{"pdf", "cv.pdf", []byte("%PDF-"), ErrUnsupportedFormat},
		{"empty csv", "empty.csv", nil, ErrEmptyOrMalformed},
		{"header only", "head.csv", []byte("Name,Email\n"), ErrEmptyOrMalformed},
		{"blank rows only", "blank.csv", []byte("Name,Email\n,\n  , \n"), ErrEmptyOrMalformed},
		{"corrupt workbook", "bad.xlsx", []byte("not a zip"), ErrEmptyOrMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewReader(3).Read(tt.filename, bytes.NewReader(tt.content))
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestReadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "people.xlsx")
	require.NoError(t, os.WriteFile(path, buildWorkbook(t, [][]any{{"Name"}, {"Ann"}}), 0o644))

	ds, err := NewReader(3).ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "people.xlsx", ds.Filename)
	assert.Equal(t, [][]string{{"Ann"}}, ds.AllRows)

	_, err = NewReader(3).ReadFile(filepath.Join(dir, "missing.csv"))
	assert.Error(t, err)
}
