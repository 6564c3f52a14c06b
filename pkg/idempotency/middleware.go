package idempotency

import (
	"context"
	"log/slog"
	"net/http"
)

const Header = "Idempotency-Key"

// Middleware rejects a replayed Idempotency-Key with 409; it does not replay
// the first response. Only a 2xx or 3xx outcome keeps the key, so a request
// that failed may be retried under the same key. Requests without the header
// pass through. scope extracts the caller identity.
func Middleware(log *slog.Logger, store *Store, scope func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := r.Header.Get(Header)
			if raw == "" {
				next.ServeHTTP(w, r)
				return
			}
			key := store.RequestKey(scope(r), raw)
			seen, err := store.Seen(r.Context(), key)
			if err != nil {
				// redis down: serve without the guard
				log.Warn("idempotency check failed", "err", err)
				next.ServeHTTP(w, r)
				return
			}
			if seen {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusConflict)
				_, _ = w.Write([]byte(`{"error":"duplicate request","code":"duplicate_request"}`))
				return
			}

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			if rec.status >= http.StatusBadRequest {
				if err := store.Forget(context.WithoutCancel(r.Context()), key); err != nil {
					log.Warn("idempotency release failed", "key", key, "err", err)
				}
			}
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
