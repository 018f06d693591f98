package internal

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordUnmarshalKeepsOrder(t *testing.T) {
	var r Record
	err := json.Unmarshal([]byte(`{"name":"Jacaranda","id":115852,"town":null,"open":true,"tags":["a", "b"]}`), &r)
	require.NoError(t, err)

	assert.Equal(t, []string{"name", "id", "town", "open", "tags"}, r.Names())
	assert.Equal(t, "115852", r.Value("id"))
	assert.Equal(t, "", r.Value("town"))
	assert.Equal(t, "true", r.Value("open"))
	assert.Equal(t, `["a","b"]`, r.Value("tags"))
}

func TestRecordUnmarshalRejectsArray(t *testing.T) {
	var r Record
	require.Error(t, json.Unmarshal([]byte(`["x"]`), &r))
}

func TestRecordMarshalRoundTrip(t *testing.T) {
	r := Record{{Name: "b", Value: "2"}, {Name: "a", Value: "1"}}
	blob, err := json.Marshal(r)
	require.NoError(t, err)
	assert.Equal(t, `{"b":"2","a":"1"}`, string(blob))

	var back Record
	require.NoError(t, json.Unmarshal(blob, &back))
	assert.Equal(t, r, back)
}

func TestRecordSetReplaces(t *testing.T) {
	r := Record{}
	r.Set("a", "1")
	r.Set("b", "2")
	r.Set("a", "3")
	assert.Equal(t, Record{{Name: "a", Value: "3"}, {Name: "b", Value: "2"}}, r)
}

func TestMatchOutcomeAnnotate(t *testing.T) {
	var o MatchOutcome
	o.MatchedIDs[StageName] = []string{"1", "2"}
	o.MatchedIDs[StagePhone] = []string{"2"}

	assert.Equal(t, 2, o.MatchedFieldsNum())
	got := o.Annotate(Record{{Name: "venue_name", Value: "x"}})
	assert.Equal(t, "1,2", got.Value("matched_venue_name"))
	assert.Equal(t, "", got.Value("matched_venue_city"))
	assert.Equal(t, "2", got.Value("matched_venue_phone"))
}

func TestErrorKinds(t *testing.T) {
	assert.True(t, errors.Is(&EmptyPayloadError{What: "x"}, ErrEmptyPayload))
	assert.True(t, errors.Is(&UnknownVendorError{Vendor: "acme"}, ErrUnknownVendor))
	inner := errors.New("boom")
	perr := &ParseError{Line: 3, Err: inner}
	assert.True(t, errors.Is(perr, ErrParse))
	assert.True(t, errors.Is(perr, inner))
	assert.True(t, errors.Is(&EncodeError{Err: inner}, ErrEncode))
}
