// Package ingest loads raw vendor records from files in the formats vendors
// hand over: JSON arrays, delimited text, spreadsheets and HTML tables.
package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/xuri/excelize/v2"

	"venuematch/internal"
	"venuematch/internal/fieldmap"
	"venuematch/internal/tabular"
	"venuematch/internal/util"
)

type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
	FormatHTML Format = "html"
)

// DetectFormat infers the format from the file extension.
func DetectFormat(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".csv", ".txt":
		return FormatCSV, nil
	case ".xlsx", ".xlsm":
		return FormatXLSX, nil
	case ".html", ".htm":
		return FormatHTML, nil
	default:
		return "", fmt.Errorf("unsupported input type: %s", filepath.Ext(path))
	}
}

func LoadFile(path string) ([]internal.Record, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Load(format, blob)
}

func Load(format Format, content []byte) ([]internal.Record, error) {
	switch format {
	case FormatJSON:
		return parseJSON(content)
	case FormatCSV:
		return tabular.Decode(string(content), tabular.ReferenceOptions)
	case FormatXLSX:
		return parseXLSX(content)
	case FormatHTML:
		return parseHTMLTable(content)
	default:
		return nil, fmt.Errorf("unsupported input type: %s", format)
	}
}

// parseJSON accepts a bare array or an object carrying "records" or "inputRecords".
func parseJSON(content []byte) ([]internal.Record, error) {
	trimmed := bytes.TrimSpace(content)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var wrapped struct {
			Records      []internal.Record `json:"records"`
			InputRecords []internal.Record `json:"inputRecords"`
		}
		if err := json.Unmarshal(trimmed, &wrapped); err != nil {
			return nil, &internal.ParseError{Err: err}
		}
		if len(wrapped.InputRecords) > 0 {
			return wrapped.InputRecords, nil
		}
		return wrapped.Records, nil
	}

	var out []internal.Record
	if err := json.Unmarshal(trimmed, &out); err != nil {
		return nil, &internal.ParseError{Err: err}
	}
	return out, nil
}

// parseXLSX reads the first sheet; its first non-empty row is the header.
func parseXLSX(content []byte) ([]internal.Record, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, &internal.ParseError{Err: err}
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return []internal.Record{}, nil
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, &internal.ParseError{Err: err}
	}
	return rowsToRecords(rows)
}

// parseHTMLTable reads the first table with a header row and at least one body row.
func parseHTMLTable(content []byte) ([]internal.Record, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return nil, &internal.ParseError{Err: err}
	}

	var rows [][]string
	doc.Find("table").EachWithBreak(func(_ int, table *goquery.Selection) bool {
		trs := table.Find("tr")
		if trs.Length() < 2 {
			return true
		}
		trs.Each(func(_ int, tr *goquery.Selection) {
			cells := []string{}
			tr.Find("th,td").Each(func(_ int, cell *goquery.Selection) {
				cells = append(cells, util.CollapseSpaces(cell.Text()))
			})
			rows = append(rows, cells)
		})
		return false
	})
	if rows == nil {
		return []internal.Record{}, nil
	}
	return rowsToRecords(rows)
}

// EncodeCSV writes records as delimited text, columns in first-seen order.
func EncodeCSV(records []internal.Record) (string, error) {
	headers := fieldmap.NewHeaderSet()
	for _, rec := range records {
		for _, name := range rec.Names() {
			headers.Add(name)
		}
	}
	return tabular.Encode(records, headers.Names())
}

func rowsToRecords(rows [][]string) ([]internal.Record, error) {
	start := 0
	for start < len(rows) && isBlank(rows[start]) {
		start++
	}
	if start == len(rows) {
		return []internal.Record{}, nil
	}

	header := make([]string, len(rows[start]))
	seen := map[string]struct{}{}
	for i, name := range rows[start] {
		name = strings.TrimSpace(name)
		if name == "" {
			name = fmt.Sprintf("column_%d", i+1)
		}
		if _, dup := seen[name]; dup {
			return nil, &internal.ParseError{Line: start + 1, Err: fmt.Errorf("duplicate column %q", name)}
		}
		seen[name] = struct{}{}
		header[i] = name
	}

	out := make([]internal.Record, 0, len(rows)-start-1)
	for _, row := range rows[start+1:] {
		if isBlank(row) {
			continue
		}
		rec := make(internal.Record, 0, len(header))
		for i, name := range header {
			value := ""
			if i < len(row) {
				value = strings.TrimSpace(row[i])
			}
			rec = append(rec, internal.Field{Name: name, Value: value})
		}
		out = append(out, rec)
	}
	return out, nil
}

func isBlank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
