package server

import (
	"bytes"
	"context"
	"io"
	"net/http"

	"fundchain/services/fundd/journal"
)

// IdempotencyStore caches command responses by caller and key.
type IdempotencyStore interface {
	LookupResponse(ctx context.Context, caller, key string) (journal.IdempotencyKey, error)
	SaveResponse(ctx context.Context, row journal.IdempotencyKey) error
}

// WithIdempotency replays the stored response when a caller repeats an
// Idempotency-Key, so retried commands execute once. Server errors are not
// cached.
func WithIdempotency(store IdempotencyStore, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("Idempotency-Key")
		if key == "" || store == nil || r.Method == http.MethodGet {
			next.ServeHTTP(w, r)
			return
		}
		caller := "anonymous"
		if principal, ok := PrincipalFromContext(r.Context()); ok {
			caller = principal.Caller.Hex()
		}

		if record, err := store.LookupResponse(r.Context(), caller, key); err == nil {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Idempotent-Replay", "true")
			w.WriteHeader(record.Status)
			_, _ = io.WriteString(w, record.Response)
			return
		}

		recorder := &responseRecorder{ResponseWriter: w}
		next.ServeHTTP(recorder, r)

		status := recorder.status
		if status == 0 {
			status = http.StatusOK
		}
		if status >= http.StatusInternalServerError {
			return
		}
		_ = store.SaveResponse(r.Context(), journal.IdempotencyKey{
			Key:       key,
			Caller:    caller,
			RequestID: w.Header().Get("X-Request-ID"),
			Method:    r.Method,
			Path:      r.URL.Path,
			Status:    status,
			Response:  recorder.buf.String(),
		})
	})
}

// responseRecorder captures the response for idempotent operations.
type responseRecorder struct {
	http.ResponseWriter
	buf    bytes.Buffer
	status int
}

func (rr *responseRecorder) WriteHeader(status int) {
	rr.status = status
	rr.ResponseWriter.WriteHeader(status)
}

func (rr *responseRecorder) Write(b []byte) (int, error) {
	rr.buf.Write(b)
	return rr.ResponseWriter.Write(b)
}
