package fieldmap

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"venuematch/internal"
	"venuematch/internal/util"
)

// HeaderSet is the grow-only, first-seen-ordered list of canonical field names.
type HeaderSet struct {
	names []string
	index map[string]struct{}
}

func NewHeaderSet(seed ...string) *HeaderSet {
	h := &HeaderSet{index: map[string]struct{}{}}
	for _, name := range seed {
		h.Add(name)
	}
	return h
}

// Add registers name and reports whether it was new.
func (h *HeaderSet) Add(name string) bool {
	if _, ok := h.index[name]; ok {
		return false
	}
	h.index[name] = struct{}{}
	h.names = append(h.names, name)
	return true
}

func (h *HeaderSet) Contains(name string) bool {
	_, ok := h.index[name]
	return ok
}

func (h *HeaderSet) Len() int {
	return len(h.names)
}

func (h *HeaderSet) Names() []string {
	out := make([]string, len(h.names))
	copy(out, h.names)
	return out
}

type Normalizer func(string) string

type Mapper struct {
	fields      FieldMap
	normalizers map[string]Normalizer
}

func NewMapper(fields FieldMap) *Mapper {
	return &Mapper{
		fields: fields,
		normalizers: map[string]Normalizer{
			internal.FieldVenuePcode:  util.NormalizePostalCode,
			internal.FieldVenuePhone:  util.NormalizePhone,
			internal.FieldDescription: HTMLToText,
		},
	}
}

// MapRecord renames the mapped fields of raw, normalizes their values and drops
// everything the field map does not name.
func (m *Mapper) MapRecord(raw internal.Record, headers *HeaderSet) internal.Record {
	out := make(internal.Record, 0, len(raw))
	for _, f := range raw {
		canonical, ok := m.fields[f.Name]
		if !ok {
			continue
		}
		value := f.Value
		if normalize, ok := m.normalizers[canonical]; ok {
			value = normalize(value)
		}
		if headers != nil {
			headers.Add(canonical)
		}
		out.Set(canonical, value)
	}
	return out
}

func (m *Mapper) MapAll(raws []internal.Record, headers *HeaderSet) []internal.Record {
	out := make([]internal.Record, 0, len(raws))
	for _, raw := range raws {
		out = append(out, m.MapRecord(raw, headers))
	}
	return out
}

// HTMLToText flattens vendor HTML descriptions to a single line of text.
func HTMLToText(value string) string {
	if !strings.Contains(value, "<") && !strings.Contains(value, "&") {
		return util.CollapseSpaces(value)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(strings.ReplaceAll(value, "<", " <")))
	if err != nil {
		return util.CollapseSpaces(value)
	}
	return util.CollapseSpaces(doc.Text())
}
