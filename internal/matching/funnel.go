package matching

import (
	"strings"

	"venuematch/internal"
	"venuematch/internal/util"
)

const phoneTailLength = 7

// Funnel narrows a reference set through the name, city, postcode and phone
// stages in that order. Each stage only sees the previous stage's survivors.
type Funnel struct {
	IDField string
}

func NewFunnel() *Funnel {
	return &Funnel{IDField: internal.FieldID}
}

type stageFunc func(candidate internal.Record) func(ref internal.Record) bool

func (f *Funnel) stages() [internal.StageCount]stageFunc {
	return [internal.StageCount]stageFunc{
		internal.StageName:     nameStage,
		internal.StageCity:     cityStage,
		internal.StagePostcode: postcodeStage,
		internal.StagePhone:    phoneStage,
	}
}

// Match never writes to reference; every stage filters into a fresh slice.
func (f *Funnel) Match(candidate internal.Record, reference []internal.Record) internal.MatchOutcome {
	var outcome internal.MatchOutcome
	working := reference

	for i, stage := range f.stages() {
		keep := stage(candidate)
		survivors := make([]internal.Record, 0)
		ids := make([]string, 0)
		for _, ref := range working {
			if keep(ref) {
				survivors = append(survivors, ref)
				ids = append(ids, ref.Value(f.IDField))
			}
		}
		outcome.Survivors[i] = survivors
		outcome.MatchedIDs[i] = ids
		working = survivors
	}

	return outcome
}

func nameStage(candidate internal.Record) func(internal.Record) bool {
	keywords := util.NameKeywords(candidate.Value(internal.FieldVenueName))
	return func(ref internal.Record) bool {
		if len(keywords) == 0 {
			return false
		}
		for _, token := range strings.Fields(util.FoldText(ref.Value(internal.FieldVenueName))) {
			for _, keyword := range keywords {
				if token == keyword {
					return true
				}
			}
		}
		return false
	}
}

func cityStage(candidate internal.Record) func(internal.Record) bool {
	keywords := util.CityKeywords(candidate.Value(internal.FieldVenueCity))
	return func(ref internal.Record) bool {
		if len(keywords) == 0 {
			return false
		}
		city := util.FoldText(ref.Value(internal.FieldVenueCity))
		for _, keyword := range keywords {
			if strings.Contains(city, keyword) {
				return true
			}
		}
		return false
	}
}

func postcodeStage(candidate internal.Record) func(internal.Record) bool {
	pcode := candidate.Value(internal.FieldVenuePcode)
	return func(ref internal.Record) bool {
		if pcode == "" {
			return false
		}
		return strings.EqualFold(pcode, ref.Value(internal.FieldVenuePcode))
	}
}

func phoneStage(candidate internal.Record) func(internal.Record) bool {
	tail, ok := PhoneTail(candidate.Value(internal.FieldVenuePhone))
	return func(ref internal.Record) bool {
		if !ok {
			return false
		}
		refTail, refOK := PhoneTail(ref.Value(internal.FieldVenuePhone))
		return refOK && refTail == tail
	}
}

// PhoneTail returns the last seven characters of the whitespace-stripped phone.
func PhoneTail(phone string) (string, bool) {
	return util.Tail(util.RemoveWhiteSpace(phone), phoneTailLength)
}
