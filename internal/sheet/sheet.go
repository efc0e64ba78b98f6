// Package sheet loads uploaded CSV and Excel files into ordered rows of
// text values keyed by column name.
package sheet

import (
	"errors"
	"fmt"
	"path"
	"strconv"
	"strings"
)

var (
	// ErrUnsupportedFormat is returned for file names other than .csv, .xlsx and .xls.
	ErrUnsupportedFormat = errors.New("unsupported file type, upload .csv, .xlsx or .xls")
	// ErrMalformedInput wraps any decode or parse failure of the file body.
	ErrMalformedInput = errors.New("could not parse file")
)

// Format is the parser selected for an upload.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
	FormatXLS  Format = "xls"
)

// Row is one data row. Values holds an entry for every header column;
// missing or empty cells are "".
type Row struct {
	Index  int
	Values map[string]string
}

// Table is a parsed spreadsheet. Header keeps column names in file order,
// duplicates included; on a duplicate name the rightmost cell wins in Values.
type Table struct {
	Header []string
	Rows   []Row
}

// HasColumn reports whether name is one of the header columns.
func (t *Table) HasColumn(name string) bool {
	for _, h := range t.Header {
		if h == name {
			return true
		}
	}
	return false
}

// FormatFor picks the parser from the file name suffix.
func FormatFor(filename string) (Format, error) {
	switch strings.ToLower(path.Ext(strings.TrimSpace(filename))) {
	case ".csv":
		return FormatCSV, nil
	case ".xlsx":
		return FormatXLSX, nil
	case ".xls":
		return FormatXLS, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, filename)
	}
}

// Load parses data according to the extension of filename.
func Load(data []byte, filename string) (*Table, error) {
	format, err := FormatFor(filename)
	if err != nil {
		return nil, err
	}

	var records [][]string
	switch format {
	case FormatCSV:
		records, err = readCSV(data)
	case FormatXLSX:
		records, err = readXLSX(data)
	case FormatXLS:
		records, err = readXLS(data)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}
	return buildTable(records, format != FormatCSV)
}

// buildTable turns the first record into the header. With widen set, data
// cells beyond the header get "Unnamed: N" columns; otherwise they are an
// error, as a CSV row with surplus fields is.
func buildTable(records [][]string, widen bool) (*Table, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: no columns to parse from file", ErrMalformedInput)
	}

	width := len(records[0])
	if widen {
		for _, rec := range records[1:] {
			width = max(width, len(rec))
		}
	}
	header := make([]string, width)
	for i := range header {
		name := ""
		if i < len(records[0]) {
			name = strings.TrimSpace(records[0][i])
		}
		if name == "" {
			name = unnamed(i)
		}
		header[i] = name
	}

	t := &Table{Header: header, Rows: make([]Row, 0, len(records)-1)}
	for i, rec := range records[1:] {
		if len(rec) > len(header) {
			return nil, fmt.Errorf("%w: row %d has %d fields, header has %d", ErrMalformedInput, i+1, len(rec), len(header))
		}
		values := make(map[string]string, len(header))
		for col, name := range header {
			v := ""
			if col < len(rec) {
				v = rec[col]
			}
			values[name] = v
		}
		t.Rows = append(t.Rows, Row{Index: i, Values: values})
	}
	return t, nil
}

func unnamed(i int) string { return "Unnamed: " + strconv.Itoa(i) }

// canonicalNumber renders a stored numeric value in its shortest exact
// decimal form: "3" not "3.0", never exponent notation.
func canonicalNumber(raw string) (string, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return "", false
	}
	return strconv.FormatFloat(f, 'f', -1, 64), true
}
