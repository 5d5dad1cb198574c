package idempotency

import (
	"bytes"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/nexusvanguard/control-plane/control_plane/observability"
)

var mutatingMethods = map[string]bool{
	http.MethodPost: true, http.MethodPut: true, http.MethodPatch: true, http.MethodDelete: true,
}

// Bypass reports whether idempotency checking applies to this request.
// Injected by callers who also know the rate-limiter's bypass set so the
// two middlewares agree on which paths are exempt.
type BypassFunc func(path, method string) bool

// Middleware implements the replay state machine: miss -> IN_FLIGHT ->
// handler -> COMPLETED/FAILED, with replay short-circuiting on hit.
func Middleware(store *Store, bypass BypassFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !mutatingMethods[r.Method] || bypass(r.URL.Path, r.Method) {
				next.ServeHTTP(w, r)
				return
			}

			idemKey := r.Header.Get("Idempotency-Key")
			if idemKey == "" {
				// Recommended but not required; proceed as a miss every
				// time (there is nothing to dedup against).
				log.Printf("idempotency: %s %s without Idempotency-Key", r.Method, r.URL.Path)
				observability.IdempotencyOutcomes.WithLabelValues("no_key").Inc()
				next.ServeHTTP(w, r)
				return
			}

			body, _ := io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewReader(body))
			bodyHash := BodyHash(body)
			cacheKey := CacheKey(r.URL.Path, idemKey)

			existing, found := store.Get(r.Context(), cacheKey)
			if found {
				if existing.RequestBodyHash != bodyHash {
					observability.IdempotencyOutcomes.WithLabelValues("hash_mismatch").Inc()
					writeJSONError(w, http.StatusUnprocessableEntity, "IDEMPOTENCY_KEY_REUSED", "idempotency key reused with a different payload")
					return
				}
				switch existing.State {
				case InFlight:
					observability.IdempotencyOutcomes.WithLabelValues("in_flight_conflict").Inc()
					w.Header().Set("Retry-After", "2")
					writeJSONError(w, http.StatusConflict, "REQUEST_IN_FLIGHT", "a request with this idempotency key is already in flight")
					return
				case Completed:
					observability.IdempotencyOutcomes.WithLabelValues("replayed").Inc()
					replay(w, existing)
					return
				case Failed:
					if existing.FailedAt != nil && time.Since(*existing.FailedAt) < FailedRetryCooldown {
						w.Header().Set("Retry-After", "2")
						writeJSONError(w, http.StatusConflict, "REQUEST_RECENTLY_FAILED", "a request with this idempotency key recently failed")
						return
					}
					// Beyond cooldown: treat as a retry (fall through to miss path).
				}
			}

			rec := store.MarkInFlight(r.Context(), cacheKey, bodyHash)
			rw := &capturingWriter{ResponseWriter: w, status: http.StatusOK}

			func() {
				defer func() {
					if p := recover(); p != nil {
						store.MarkFailed(r.Context(), cacheKey, rec)
						panic(p)
					}
				}()
				next.ServeHTTP(rw, r)
			}()

			switch {
			case rw.status >= 200 && rw.status < 300:
				store.MarkCompleted(r.Context(), cacheKey, rec, rw.status, rw.body.Bytes(), rw.Header().Clone())
			case rw.status >= 500:
				store.MarkFailed(r.Context(), cacheKey, rec)
			default:
				store.Evict(r.Context(), cacheKey)
			}
		})
	}
}

func replay(w http.ResponseWriter, rec Record) {
	for k, vs := range rec.ResponseHeaders {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	if rec.ResponseBody == PayloadTooLargeFingerprint {
		w.Header().Set("X-Idempotency-Status", "Replayed-Fingerprint")
		w.WriteHeader(http.StatusAccepted)
		return
	}
	w.Header().Set("X-Idempotency-Status", "Replayed")
	w.WriteHeader(rec.ResponseCode)
	w.Write([]byte(rec.ResponseBody))
}

func writeJSONError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"code": code, "message": message})
}

// capturingWriter buffers the handler's response so it can be snapshotted
// into the idempotency record without double-writing to the client.
type capturingWriter struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
	wrote  bool
}

func (c *capturingWriter) WriteHeader(status int) {
	c.status = status
	c.wrote = true
	c.ResponseWriter.WriteHeader(status)
}

func (c *capturingWriter) Write(b []byte) (int, error) {
	if !c.wrote {
		c.WriteHeader(http.StatusOK)
	}
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}
