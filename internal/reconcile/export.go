package reconcile

import (
	"io"
	"strings"

	"venuematch/internal"
	"venuematch/internal/tabular"
)

const (
	SheetHasMatch  = "has_match"
	SheetZeroMatch = "zero_match"
)

func ExportXLSX(result *Result, outputPath string) error {
	return tabular.WriteWorkbook(outputPath, sheets(result)...)
}

func WriteXLSX(w io.Writer, result *Result) error {
	return tabular.WriteWorkbookTo(w, sheets(result)...)
}

func sheets(result *Result) []tabular.Sheet {
	return []tabular.Sheet{
		{Name: SheetHasMatch, Headers: result.Headers, Records: result.HasMatch},
		{Name: SheetZeroMatch, Headers: result.Headers, Records: result.ZeroMatch},
	}
}

// ResultFromRun rebuilds a result from a stored run's CSV tables.
func ResultFromRun(run internal.RunRecord) (*Result, error) {
	opts := tabular.DecodeOptions{HasHeader: true}

	hasDec, err := tabular.NewDecoder(strings.NewReader(run.HasMatchCSV), opts)
	if err != nil {
		return nil, err
	}
	hasMatch, err := tabular.Decode(run.HasMatchCSV, opts)
	if err != nil {
		return nil, err
	}
	zeroMatch, err := tabular.Decode(run.ZeroMatchCSV, opts)
	if err != nil {
		return nil, err
	}

	return &Result{
		RunID:  run.ID,
		Vendor: run.Vendor,
		Response: internal.MatchResponse{
			ZeroMatchCSV:   run.ZeroMatchCSV,
			ZeroMatchCount: run.ZeroMatchCount,
			HasMatchCSV:    run.HasMatchCSV,
			HasMatchCount:  run.HasMatchCount,
		},
		Headers:   hasDec.Header(),
		HasMatch:  hasMatch,
		ZeroMatch: zeroMatch,
		Timings:   run.Timings,
	}, nil
}
