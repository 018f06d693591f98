package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"venuematch/internal"
	"venuematch/internal/reconcile"
	"venuematch/internal/vendor"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleVendors(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"vendors": s.reconciler.Vendors()})
}

func (s *Server) handleMatch(w http.ResponseWriter, r *http.Request) {
	if err := s.reconciler.CheckVendor(r.PathValue("vendor")); err != nil {
		writeError(w, r, err)
		return
	}

	var payload internal.MatchPayload
	if err := s.decodeBody(w, r, &payload); err != nil {
		writeError(w, r, err)
		return
	}

	result, err := s.reconciler.Reconcile(r.Context(), r.PathValue("vendor"), payload)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("X-Run-ID", result.RunID)
	writeJSON(w, http.StatusOK, result.Response)
}

// handleMap accepts a JSON array of raw vendor records and answers with canonical CSV.
func (s *Server) handleMap(w http.ResponseWriter, r *http.Request) {
	if err := s.reconciler.CheckVendor(r.PathValue("vendor")); err != nil {
		writeError(w, r, err)
		return
	}

	var raws []internal.Record
	if err := s.decodeBody(w, r, &raws); err != nil {
		writeError(w, r, err)
		return
	}

	text, err := s.reconciler.MapOnly(r.Context(), r.PathValue("vendor"), raws)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, text)
}

func (s *Server) handleImportReference(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxPayloadBytes)
	blob, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, r, err)
		return
	}

	source := r.URL.Query().Get("source")
	if source == "" {
		source = "upload"
	}
	summary, err := s.references.Import(r.Context(), string(blob), source)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, summary)
}

func (s *Server) handleGetReference(w http.ResponseWriter, r *http.Request) {
	row, err := s.references.Latest(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if row == nil {
		writeError(w, r, notFound("no reference table imported"))
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("X-Reference-Rows", strconv.Itoa(row.Rows))
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, row.CSV)
}

type fetchRequest struct {
	Type   string         `json:"type"`
	ID     string         `json:"id"`
	Params map[string]any `json:"params"`
}

func (s *Server) handleFetch(w http.ResponseWriter, r *http.Request) {
	var body fetchRequest
	if err := s.decodeBody(w, r, &body); err != nil && !errors.Is(err, internal.ErrEmptyPayload) {
		writeError(w, r, err)
		return
	}

	params := make(map[string]string, len(body.Params))
	for k, v := range body.Params {
		if v != nil {
			params[k] = fmt.Sprint(v)
		}
	}

	result, err := s.fetcher.FetchAll(r.Context(), r.PathValue("vendor"), vendor.Request{Type: body.Type, ID: body.ID, Params: params})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	runs, err := s.runs.ListRuns(r.Context(), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]runSummary, 0, len(runs))
	for _, run := range runs {
		out = append(out, summarize(run))
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": out})
}

type runSummary struct {
	ID             string             `json:"id"`
	Vendor         string             `json:"vendor"`
	CandidateCount int                `json:"candidateCount"`
	HasMatchCount  int                `json:"hasMatchCount"`
	ZeroMatchCount int                `json:"zeroMatchCount"`
	Timings        map[string]float64 `json:"timings,omitempty"`
	CreatedAt      string             `json:"createdAt"`
}

func summarize(run internal.RunRecord) runSummary {
	return runSummary{
		ID:             run.ID,
		Vendor:         run.Vendor,
		CandidateCount: run.CandidateCount,
		HasMatchCount:  run.HasMatchCount,
		ZeroMatchCount: run.ZeroMatchCount,
		Timings:        run.Timings,
		CreatedAt:      run.CreatedAt,
	}
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.loadRun(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, runDetail{
		runSummary:   summarize(*run),
		HasMatchCSV:  run.HasMatchCSV,
		ZeroMatchCSV: run.ZeroMatchCSV,
	})
}

type runDetail struct {
	runSummary
	HasMatchCSV  string `json:"hasMatchCsv"`
	ZeroMatchCSV string `json:"zeroMatchCsv"`
}

func (s *Server) handleRunXLSX(w http.ResponseWriter, r *http.Request) {
	run, err := s.loadRun(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	result, err := reconcile.ResultFromRun(*run)
	if err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.xlsx"`, run.ID))
	if err := reconcile.WriteXLSX(w, result); err != nil {
		logFailure(r, err, "xlsx write failed")
	}
}

func (s *Server) loadRun(r *http.Request) (*internal.RunRecord, error) {
	id := r.PathValue("id")
	run, err := s.runs.GetRun(r.Context(), id)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, notFound("run not found: " + id)
	}
	return run, nil
}

// decodeBody reads one JSON value from the size-limited request body.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxPayloadBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return &internal.EmptyPayloadError{What: "request body"}
		case errors.As(err, &tooLarge):
			return err
		default:
			return badRequest("invalid JSON body: " + err.Error())
		}
	}
	return nil
}
