package tabular

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"venuematch/internal"
)

const byteOrderMark = "\ufeff"

type DecodeOptions struct {
	HasHeader        bool
	HasByteOrderMark bool
}

// ReferenceOptions is how reference tables are read: header row, BOM tolerated.
var ReferenceOptions = DecodeOptions{HasHeader: true, HasByteOrderMark: true}

// Decoder reads records one at a time from delimited text.
type Decoder struct {
	reader  *csv.Reader
	header  []string
	pending []string
}

func NewDecoder(r io.Reader, opts DecodeOptions) (*Decoder, error) {
	br := bufio.NewReader(r)
	if lead, err := br.Peek(len(byteOrderMark)); err == nil && string(lead) == byteOrderMark {
		if !opts.HasByteOrderMark {
			return nil, &internal.ParseError{Line: 1, Err: errors.New("unexpected byte-order mark")}
		}
		if _, err := br.Discard(len(byteOrderMark)); err != nil {
			return nil, err
		}
	}

	reader := csv.NewReader(br)
	d := &Decoder{reader: reader}

	first, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return d, nil
	}
	if err != nil {
		return nil, wrapCSVError(err)
	}

	if opts.HasHeader {
		if err := validateHeader(first); err != nil {
			return nil, &internal.ParseError{Line: 1, Err: err}
		}
		d.header = first
		return d, nil
	}

	d.header = make([]string, len(first))
	for i := range first {
		d.header[i] = fmt.Sprintf("column_%d", i+1)
	}
	d.pending = first
	return d, nil
}

func (d *Decoder) Header() []string {
	out := make([]string, len(d.header))
	copy(out, d.header)
	return out
}

// Next returns io.EOF after the last record.
func (d *Decoder) Next() (internal.Record, error) {
	var row []string
	if d.pending != nil {
		row, d.pending = d.pending, nil
	} else {
		var err error
		row, err = d.reader.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, io.EOF
			}
			return nil, wrapCSVError(err)
		}
	}

	rec := make(internal.Record, 0, len(d.header))
	for i, name := range d.header {
		rec = append(rec, internal.Field{Name: name, Value: row[i]})
	}
	return rec, nil
}

func Decode(text string, opts DecodeOptions) ([]internal.Record, error) {
	dec, err := NewDecoder(strings.NewReader(text), opts)
	if err != nil {
		return nil, err
	}
	out := make([]internal.Record, 0)
	for {
		rec, err := dec.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
}

// Encode writes a header line followed by one line per record. Fields missing
// from a record are written empty; fields outside headers are not written.
func Encode(records []internal.Record, headers []string) (string, error) {
	seen := make(map[string]struct{}, len(headers))
	for _, h := range headers {
		if _, dup := seen[h]; dup {
			return "", &internal.EncodeError{Field: h, Err: errors.New("duplicate header")}
		}
		if !utf8.ValidString(h) {
			return "", &internal.EncodeError{Field: h, Err: errors.New("header is not valid UTF-8")}
		}
		if strings.ContainsAny(h, "\r\n") {
			return "", &internal.EncodeError{Field: h, Err: errors.New("header contains a line break")}
		}
		seen[h] = struct{}{}
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(headers); err != nil {
		return "", &internal.EncodeError{Err: err}
	}

	row := make([]string, len(headers))
	for _, rec := range records {
		for i, h := range headers {
			v := rec.Value(h)
			if !utf8.ValidString(v) {
				return "", &internal.EncodeError{Field: h, Err: errors.New("value is not valid UTF-8")}
			}
			// csv readers fold \r\n inside quoted fields to \n.
			if strings.ContainsRune(v, '\r') {
				return "", &internal.EncodeError{Field: h, Err: errors.New("value contains a carriage return")}
			}
			row[i] = v
		}
		if err := w.Write(row); err != nil {
			return "", &internal.EncodeError{Err: err}
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return "", &internal.EncodeError{Err: err}
	}
	return buf.String(), nil
}

func validateHeader(header []string) error {
	seen := make(map[string]struct{}, len(header))
	for i, name := range header {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("empty header name in column %d", i+1)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("duplicate header name %q", name)
		}
		seen[name] = struct{}{}
	}
	return nil
}

func wrapCSVError(err error) error {
	var perr *csv.ParseError
	if errors.As(err, &perr) {
		return &internal.ParseError{Line: perr.Line, Err: perr.Err}
	}
	return &internal.ParseError{Err: err}
}
