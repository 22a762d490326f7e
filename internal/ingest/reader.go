// Package ingest reads spreadsheet uploads and turns them into an upload
// batch with one pending record per row.
package ingest

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/prospect-cli/internal/model"
)

// Table is a parsed spreadsheet: a header row and the data rows keyed by
// header.
type Table struct {
	Headers []string
	Rows    []model.SourceRow
}

// ReadRows reads a .xlsx or .csv file. The first non-empty row is the
// header; fully blank rows are dropped.
func ReadRows(ctx context.Context, path string) (*Table, error) {
	var (
		raw [][]string
		err error
	)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".xlsx":
		raw, err = ReadXLSX(path, XLSXOptions{})
	case ".csv":
		f, openErr := os.Open(path)
		if openErr != nil {
			return nil, eris.Wrap(openErr, "ingest: open csv")
		}
		defer f.Close() //nolint:errcheck
		raw, err = ReadCSV(ctx, f)
	default:
		return nil, eris.Errorf("ingest: unsupported file type %q", ext)
	}
	if err != nil {
		return nil, err
	}
	return NewTable(raw)
}

// XLSXOptions selects the sheet to read.
type XLSXOptions struct {
	SheetIndex int    // default 0
	SheetName  string // if set, overrides SheetIndex
}

// ReadXLSX reads one sheet of an XLSX file as string slices.
func ReadXLSX(path string, opts XLSXOptions) ([][]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: open file")
	}

	sheet, err := getSheet(f, opts)
	if err != nil {
		return nil, err
	}

	rows := make([][]string, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		rows = append(rows, rowToStrings(row))
	}
	return rows, nil
}

func getSheet(f *xlsx.File, opts XLSXOptions) (*xlsx.Sheet, error) {
	if opts.SheetName != "" {
		sheet, ok := f.Sheet[opts.SheetName]
		if !ok {
			return nil, eris.Errorf("xlsx: sheet %q not found", opts.SheetName)
		}
		return sheet, nil
	}

	if opts.SheetIndex >= len(f.Sheets) {
		return nil, eris.Errorf("xlsx: sheet index %d out of range (file has %d sheets)", opts.SheetIndex, len(f.Sheets))
	}

	return f.Sheets[opts.SheetIndex], nil
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = cell.String()
	}
	return cells
}

// ReadCSV reads every record from r. Rows may have differing field counts.
func ReadCSV(ctx context.Context, r io.Reader) ([][]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	var rows [][]string
	for {
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "csv: context cancelled")
		}
		record, err := reader.Read()
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			return nil, eris.Wrap(err, "csv: read row")
		}
		rows = append(rows, record)
	}
}

// NewTable builds a Table from raw cells. The first non-blank row is the
// header.
func NewTable(raw [][]string) (*Table, error) {
	start := 0
	for start < len(raw) && blank(raw[start]) {
		start++
	}
	if start == len(raw) {
		return nil, eris.New("ingest: file has no header row")
	}

	headers := make([]string, len(raw[start]))
	for i, h := range raw[start] {
		headers[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}

	t := &Table{Headers: headers}
	for _, cells := range raw[start+1:] {
		if blank(cells) {
			continue
		}
		row := make(model.SourceRow, len(headers))
		for i, h := range headers {
			if h == "" {
				continue
			}
			if i < len(cells) {
				row[h] = strings.TrimSpace(cells[i])
			} else {
				row[h] = ""
			}
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

func blank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
