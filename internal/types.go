package internal

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

const (
	FieldID          = "id"
	FieldVenueName   = "venue_name"
	FieldVenueCity   = "venue_city"
	FieldVenuePcode  = "venue_pcode"
	FieldVenuePhone  = "venue_phone"
	FieldDescription = "venue_description"
)

type Field struct {
	Name  string
	Value string
}

// Record is an ordered field list. Names are unique within a record.
type Record []Field

func (r Record) Get(name string) (string, bool) {
	for _, f := range r {
		if f.Name == name {
			return f.Value, true
		}
	}
	return "", false
}

func (r Record) Value(name string) string {
	v, _ := r.Get(name)
	return v
}

func (r *Record) Set(name, value string) {
	for i := range *r {
		if (*r)[i].Name == name {
			(*r)[i].Value = value
			return
		}
	}
	*r = append(*r, Field{Name: name, Value: value})
}

func (r Record) Names() []string {
	out := make([]string, 0, len(r))
	for _, f := range r {
		out = append(out, f.Name)
	}
	return out
}

func (r Record) Clone() Record {
	out := make(Record, len(r))
	copy(out, r)
	return out
}

func (r Record) MarshalJSON() ([]byte, error) {
	buf := bytes.NewBufferString("{")
	for i, f := range r {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(f.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON keeps the object's key order. Non-string scalars keep their
// literal text, null becomes "", nested values are kept as compact JSON.
func (r *Record) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("record must be a JSON object")
	}

	out := Record{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("unexpected record key %v", keyTok)
		}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		value, err := scalarText(raw)
		if err != nil {
			return fmt.Errorf("field %q: %w", key, err)
		}
		out.Set(key, value)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}

	*r = out
	return nil
}

func scalarText(raw json.RawMessage) (string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return "", nil
	}
	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return "", err
		}
		return s, nil
	case 'n':
		return "", nil
	case '{', '[':
		var buf bytes.Buffer
		if err := json.Compact(&buf, trimmed); err != nil {
			return "", err
		}
		return buf.String(), nil
	default:
		return strings.TrimSpace(string(trimmed)), nil
	}
}

type MatchPayload struct {
	InputRecords []Record `json:"inputRecords"`
	LatestCSV    string   `json:"latestCsv"`
}

type MatchResponse struct {
	ZeroMatchCSV   string `json:"zeroMatchCsv"`
	ZeroMatchCount int    `json:"zeroMatchCount"`
	HasMatchCSV    string `json:"hasMatchCsv"`
	HasMatchCount  int    `json:"hasMatchCount"`
}

type Stage int

const (
	StageName Stage = iota
	StageCity
	StagePostcode
	StagePhone

	StageCount = 4
)

var stageColumns = [StageCount]string{
	"matched_venue_name",
	"matched_venue_city",
	"matched_venue_postcode",
	"matched_venue_phone",
}

func (s Stage) Column() string {
	return stageColumns[s]
}

func (s Stage) String() string {
	switch s {
	case StageName:
		return "name"
	case StageCity:
		return "city"
	case StagePostcode:
		return "postcode"
	case StagePhone:
		return "phone"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// StageColumns returns the annotation column names in stage order.
func StageColumns() []string {
	out := make([]string, StageCount)
	copy(out, stageColumns[:])
	return out
}

// MatchOutcome holds the survivors and captured reference ids of every stage.
type MatchOutcome struct {
	Survivors  [StageCount][]Record
	MatchedIDs [StageCount][]string
}

func (o MatchOutcome) MatchedFieldsNum() int {
	n := 0
	for _, ids := range o.MatchedIDs {
		if len(ids) > 0 {
			n++
		}
	}
	return n
}

func (o MatchOutcome) Annotate(candidate Record) Record {
	out := candidate.Clone()
	for i := 0; i < StageCount; i++ {
		out.Set(Stage(i).Column(), strings.Join(o.MatchedIDs[i], ","))
	}
	return out
}

type FetchResult struct {
	TotalHits int      `json:"totalHits"`
	Records   []Record `json:"records"`
}

// RunRecord is a persisted reconciliation result.
type RunRecord struct {
	ID             string
	Vendor         string
	CandidateCount int
	HasMatchCount  int
	ZeroMatchCount int
	HasMatchCSV    string
	ZeroMatchCSV   string
	Timings        map[string]float64
	CreatedAt      string
}

type ReferenceRow struct {
	ID        int
	Rows      int
	CSV       string
	Source    string
	CreatedAt string
}
