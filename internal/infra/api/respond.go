package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"streamboost-dashboard/internal/domain"
	"streamboost-dashboard/internal/infra/logging"
)

type errorBody struct {
	Error   string `json:"error"`
	TraceID string `json:"traceId,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps domain sentinels to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrInsufficientBalance):
		return http.StatusPaymentRequired
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrNotTracked):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrTerminalState), errors.Is(err, domain.ErrInvalidStatus), errors.Is(err, domain.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, domain.ErrViewClosed):
		return http.StatusGone
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrFetch), errors.Is(err, domain.ErrWrite):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError answers with the mapped status. Server-side failures keep their
// detail out of the body.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	msg := err.Error()
	switch {
	case code == http.StatusInternalServerError:
		msg = "internal error"
	case errors.Is(err, domain.ErrFetch):
		msg = domain.ErrFetch.Error()
	case errors.Is(err, domain.ErrWrite):
		msg = domain.ErrWrite.Error()
	}
	writeJSON(w, code, errorBody{Error: msg, TraceID: logging.TraceIDFrom(r.Context())})
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.Join(domain.ErrInvalidArgument, err)
	}
	return nil
}
