package tabular

import (
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"venuematch/internal"
)

const referenceCSV = "id,venue_name,venue_city,venue_pcode,venue_phone\n" +
	"115852,Phase One Jacaranda,Liverpool,L14BE,01513631292\n" +
	"115853,\"Leaf, Bold Street\",Liverpool,L14JQ,\n"

func TestDecodeWithHeader(t *testing.T) {
	records, err := Decode(referenceCSV, DecodeOptions{HasHeader: true})
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, []string{"id", "venue_name", "venue_city", "venue_pcode", "venue_phone"}, records[0].Names())
	assert.Equal(t, "Phase One Jacaranda", records[0].Value("venue_name"))
	assert.Equal(t, "Leaf, Bold Street", records[1].Value("venue_name"))
	assert.Equal(t, "", records[1].Value("venue_phone"))
}

func TestDecodeByteOrderMark(t *testing.T) {
	text := "\ufeff" + referenceCSV

	records, err := Decode(text, ReferenceOptions)
	require.NoError(t, err)
	require.Len(t, records, 2)
	_, ok := records[0].Get("id")
	assert.True(t, ok, "BOM must not leak into the first header name")

	_, err = Decode(text, DecodeOptions{HasHeader: true})
	require.Error(t, err)
	assert.True(t, errors.Is(err, internal.ErrParse))
}

func TestDecodeColumnCountMismatch(t *testing.T) {
	_, err := Decode("a,b\n1,2\n3\n", DecodeOptions{HasHeader: true})
	require.Error(t, err)

	var perr *internal.ParseError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, 3, perr.Line)
}

func TestDecodeDuplicateHeader(t *testing.T) {
	_, err := Decode("a,a\n1,2\n", DecodeOptions{HasHeader: true})
	assert.True(t, errors.Is(err, internal.ErrParse))
}

func TestDecodeWithoutHeader(t *testing.T) {
	records, err := Decode("x,y\n1,2\n", DecodeOptions{})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "x", records[0].Value("column_1"))
	assert.Equal(t, "2", records[1].Value("column_2"))
}

func TestDecodeEmpty(t *testing.T) {
	records, err := Decode("", ReferenceOptions)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestDecoderStreams(t *testing.T) {
	dec, err := NewDecoder(strings.NewReader(referenceCSV), ReferenceOptions)
	require.NoError(t, err)
	assert.Len(t, dec.Header(), 5)

	n := 0
	for {
		_, err := dec.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		n++
	}
	assert.Equal(t, 2, n)
}

func TestEncodeFillsMissingAndQuotes(t *testing.T) {
	records := []internal.Record{
		{{Name: "venue_name", Value: "Leaf, Bold St"}, {Name: "venue_city", Value: "Liverpool"}},
		{{Name: "venue_name", Value: "Line\nBreak"}, {Name: "extra", Value: "ignored"}},
	}

	out, err := Encode(records, []string{"venue_name", "venue_city"})
	require.NoError(t, err)
	assert.Equal(t, "venue_name,venue_city\n\"Leaf, Bold St\",Liverpool\n\"Line\nBreak\",\n", out)
}

func TestEncodeErrors(t *testing.T) {
	_, err := Encode(nil, []string{"a", "a"})
	assert.True(t, errors.Is(err, internal.ErrEncode))

	_, err = Encode([]internal.Record{{{Name: "a", Value: "\xff"}}}, []string{"a"})
	assert.True(t, errors.Is(err, internal.ErrEncode))

	_, err = Encode(nil, []string{"venue\nname"})
	assert.True(t, errors.Is(err, internal.ErrEncode))
}

func TestEncodeRejectsCarriageReturn(t *testing.T) {
	for _, value := range []string{"Line1\r\nLine2", "Line1\rLine2", "trailing\r"} {
		_, err := Encode([]internal.Record{{{Name: "venue_name", Value: value}}}, []string{"venue_name"})
		var encErr *internal.EncodeError
		require.ErrorAs(t, err, &encErr, "%q", value)
		assert.Equal(t, "venue_name", encErr.Field)
	}
}

func TestRoundTrip(t *testing.T) {
	records := []internal.Record{
		{{Name: "id", Value: "1"}, {Name: "venue_name", Value: `The "Quoted" Bar`}},
		{{Name: "venue_name", Value: "a,b"}, {Name: "venue_city", Value: "Wirral"}},
		{{Name: "id", Value: "3"}, {Name: "venue_name", Value: "Line1\nLine2\n\nLine4"}},
	}
	headers := []string{"id", "venue_name", "venue_city"}

	text, err := Encode(records, headers)
	require.NoError(t, err)
	back, err := Decode(text, DecodeOptions{HasHeader: true})
	require.NoError(t, err)
	require.Len(t, back, len(records))

	for i, rec := range records {
		for _, h := range headers {
			assert.Equal(t, rec.Value(h), back[i].Value(h), "record %d field %s", i, h)
		}
	}
}

func TestWriteWorkbook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "result.xlsx")
	err := WriteWorkbook(path,
		Sheet{Name: "has_match", Headers: []string{"venue_name"}, Records: []internal.Record{{{Name: "venue_name", Value: "Jacaranda"}}}},
		Sheet{Name: "zero_match", Headers: []string{"venue_name"}},
	)
	require.NoError(t, err)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"has_match", "zero_match"}, f.GetSheetList())
	v, err := f.GetCellValue("has_match", "A2")
	require.NoError(t, err)
	assert.Equal(t, "Jacaranda", v)
}
