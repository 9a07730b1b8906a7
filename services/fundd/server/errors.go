package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"fundchain/native/fund"
	"fundchain/services/fundd/ledger"
)

const maxBodyBytes = 1 << 20

var errBadRequest = errors.New("bad request")

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Kind    string `json:"kind,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorBody{Error: code, Message: msg})
}

// decodeJSON reads a single JSON object into dst, rejecting unknown fields.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: invalid payload: %v", errBadRequest, err)
	}
	return nil
}

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

// statusFor maps a command failure onto an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, fund.ErrFundNotFound), errors.Is(err, fund.ErrAuctionNotFound):
		return http.StatusNotFound
	}
	switch ledger.KindLabel(err) {
	case "quota":
		return http.StatusTooManyRequests
	case "canceled":
		return http.StatusServiceUnavailable
	case fund.KindAuthorization.String():
		return http.StatusForbidden
	case fund.KindValidation.String():
		return http.StatusUnprocessableEntity
	case fund.KindConsistency.String():
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	code := fund.CodeOf(err)
	if code == "" {
		code = http.StatusText(status)
	}
	kind := ledger.KindLabel(err)
	if status >= http.StatusInternalServerError {
		s.logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
	}
	if errors.Is(err, errBadRequest) {
		kind = "request"
	}
	writeJSON(w, status, errorBody{Error: code, Message: err.Error(), Kind: kind})
}
