package ingest

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"venuematch/internal"
)

func mkXLSX(t *testing.T, rows [][]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	for r, row := range rows {
		for c, v := range row {
			cell, err := excelize.CoordinatesToCellName(c+1, r+1)
			require.NoError(t, err)
			require.NoError(t, f.SetCellValue(sheet, cell, v))
		}
	}
	buf := bytes.NewBuffer(nil)
	_, err := f.WriteTo(buf)
	require.NoError(t, err)
	return buf.Bytes()
}

func TestParseXLSX(t *testing.T) {
	blob := mkXLSX(t, [][]any{
		{"name", "town", "postcode"},
		{"Phase One", "Liverpool", "L1 4BE"},
		{},
		{"Cavern Club", "Liverpool"},
	})
	records, err := Load(FormatXLSX, blob)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "Phase One", records[0].Value("name"))
	assert.Equal(t, []string{"name", "town", "postcode"}, records[1].Names())
	assert.Equal(t, "", records[1].Value("postcode"))
}

func TestParseXLSXDuplicateHeader(t *testing.T) {
	blob := mkXLSX(t, [][]any{{"name", "name"}, {"a", "b"}})
	_, err := Load(FormatXLSX, blob)
	assert.ErrorIs(t, err, internal.ErrParse)

	_, err = Load(FormatXLSX, []byte("not a workbook"))
	assert.ErrorIs(t, err, internal.ErrParse)
}

func TestParseHTMLTable(t *testing.T) {
	html := `<p>intro</p><table><tr><td>skip</td></tr></table>
<table><tr><th>name</th><th>town</th></tr><tr><td> Blue   Angel </td><td>Liverpool</td></tr></table>`
	records, err := Load(FormatHTML, []byte(html))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Blue Angel", records[0].Value("name"))
	assert.Equal(t, "Liverpool", records[0].Value("town"))

	records, err = Load(FormatHTML, []byte(`<p>no tables</p>`))
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestParseJSONShapes(t *testing.T) {
	records, err := Load(FormatJSON, []byte(`[{"name":"A","id":7}]`))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "7", records[0].Value("id"))

	records, err = Load(FormatJSON, []byte(`{"totalHits":1,"records":[{"name":"B"}]}`))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "B", records[0].Value("name"))

	records, err = Load(FormatJSON, []byte(`{"inputRecords":[{"name":"C"}],"latestCsv":""}`))
	require.NoError(t, err)
	assert.Equal(t, "C", records[0].Value("name"))

	_, err = Load(FormatJSON, []byte(`[1,2]`))
	assert.ErrorIs(t, err, internal.ErrParse)
}

func TestLoadFileDetectsFormat(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "venues.CSV")
	require.NoError(t, os.WriteFile(csvPath, []byte("\ufeffname,town\nPhase One,Liverpool\n"), 0o644))

	records, err := LoadFile(csvPath)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Liverpool", records[0].Value("town"))

	_, err = LoadFile(filepath.Join(dir, "venues.pdf"))
	assert.ErrorContains(t, err, "unsupported input type")
}

func TestEncodeCSVUnionsColumns(t *testing.T) {
	text, err := EncodeCSV([]internal.Record{
		{{Name: "id", Value: "1"}, {Name: "venue_name", Value: "A"}},
		{{Name: "venue_city", Value: "Liverpool"}, {Name: "id", Value: "2"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "id,venue_name,venue_city\n1,A,\n2,,Liverpool\n", text)
}
