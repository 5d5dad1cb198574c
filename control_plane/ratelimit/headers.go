package ratelimit

import (
	"net/http"
	"strconv"
)

// ApplyHeaders stamps the X-RateLimit-* response headers.
func ApplyHeaders(w http.ResponseWriter, d Decision) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	w.Header().Set("X-RateLimit-Window", strconv.Itoa(int(d.Window.Seconds())))
	if d.Degraded {
		w.Header().Set("X-Rate-Limit-Status", "degraded")
	}
}

// WriteTooManyRequests writes the 429 response body with Retry-After.
func WriteTooManyRequests(w http.ResponseWriter, d Decision) {
	w.Header().Set("Retry-After", strconv.Itoa(int(d.Window.Seconds())))
	w.WriteHeader(http.StatusTooManyRequests)
	w.Write([]byte(`{"code":"INTERNAL_RATE_LIMITED","message":"rate limit exceeded"}`))
}
