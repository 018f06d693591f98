package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"venuematch/internal"
	"venuematch/internal/logging"
)

func statusFor(err error) int {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, internal.ErrEmptyPayload), errors.Is(err, internal.ErrParse), errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, internal.ErrUnknownVendor), errors.Is(err, errNotFound):
		return http.StatusNotFound
	case errors.Is(err, internal.ErrEncode):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

var (
	errBadRequest = errors.New("bad request")
	errNotFound   = errors.New("not found")
)

type requestError struct {
	kind error
	msg  string
}

func (e *requestError) Error() string        { return e.msg }
func (e *requestError) Is(target error) bool { return target == e.kind }

func badRequest(msg string) error { return &requestError{kind: errBadRequest, msg: msg} }
func notFound(msg string) error   { return &requestError{kind: errNotFound, msg: msg} }

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		logging.FromContext(r.Context()).Error().Err(err).Msg("request failed")
	}
	if status == http.StatusRequestEntityTooLarge {
		msg = "payload too large"
	}
	writeJSON(w, status, map[string]string{"error": msg})
}

func logFailure(r *http.Request, err error, msg string) {
	logging.FromContext(r.Context()).Error().Err(err).Msg(msg)
}
