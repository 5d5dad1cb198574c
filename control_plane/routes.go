package main

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nexusvanguard/control-plane/control_plane/errs"
	"github.com/nexusvanguard/control-plane/control_plane/idempotency"
	"github.com/nexusvanguard/control-plane/control_plane/middleware"
	"github.com/nexusvanguard/control-plane/control_plane/observability"
	"github.com/nexusvanguard/control-plane/control_plane/ratelimit"
	"github.com/nexusvanguard/control-plane/control_plane/reqid"
)

// Router assembles the HTTP surface. Middleware order is load-bearing:
// recovery outermost, then request-id, rate limit, idempotency, incident
// capture, and finally the handler.
func (a *App) Router(adminAPIKey string) http.Handler {
	r := chi.NewRouter()
	r.Use(a.recoverMiddleware)
	r.Use(reqid.Middleware)
	r.Use(httpMetricsMiddleware)
	r.Use(middleware.CORS())
	r.Use(a.rateLimitMiddleware)
	r.Use(idempotency.Middleware(a.idemStore, ratelimit.IsBypassed))
	if a.cfg.VanguardEnabled {
		r.Use(a.vanguard.Middleware)
	}

	r.Get("/healthz", a.handleLiveness)
	r.Get("/readyz", a.handleReadiness)
	r.Get("/health", a.handleHealth)
	r.Get("/health/deps", a.handleHealthDeps)
	r.Get("/health/stream", a.handleHealthStream)

	r.Get("/live/games", a.handleLiveGames)
	r.Get("/live/leaders", a.handleLiveLeaders)
	r.Get("/live/status", a.handleLiveStatus)
	r.Get("/live/stream", a.handleLiveStream)

	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	r.Get("/vanguard/ws", a.handleWSMetrics)

	r.Route("/vanguard/admin", func(ar chi.Router) {
		ar.Use(middleware.AdminAuth(adminAPIKey))
		ar.Get("/incidents", a.handleListIncidents)
		ar.Get("/incidents/{fp}", a.handleGetIncident)
		ar.Post("/incidents/{fp}/resolve", a.handleResolveIncident)
		ar.Post("/incidents/{fp}/unresolve", a.handleUnresolveIncident)
		ar.Post("/incidents/bulk-resolve", a.handleBulkResolve)
		ar.Post("/incidents/resolve-all", a.handleResolveAll)
		ar.Post("/incidents/analyze-all", a.handleAnalyzeAll)
		ar.Post("/mode", a.handleSetMode)
		ar.Get("/stats", a.handleStats)
		ar.Get("/promotion-readiness", a.handlePromotionReadiness)
		ar.Get("/learning-ledger", a.handleLearningLedger)
	})

	return r
}

// recoverMiddleware sits outermost so a panic anywhere in the chain still
// yields exactly one structured response. The incident middleware has
// already captured the failure by the time the panic reaches this layer.
func (a *App) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if p := recover(); p != nil {
				log.Printf("❌ panic serving %s %s: %v", r.Method, r.URL.Path, p)
				ve := errs.New(errs.UnknownError, "internal error").WithEndpoint(r.URL.Path)
				a.errRing.Record(ve)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(ve.HTTPStatus)
				json.NewEncoder(w).Encode(ve)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (s *statusWriter) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusWriter) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	return s.ResponseWriter.Write(b)
}

// Flush keeps SSE handlers working through the wrapper.
func (s *statusWriter) Flush() {
	if f, ok := s.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func httpMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w}
		start := time.Now()
		next.ServeHTTP(sw, r)
		if sw.status == 0 {
			sw.status = http.StatusOK
		}
		statusClass := strconv.Itoa(sw.status/100) + "xx"
		observability.RequestsTotal.WithLabelValues(r.URL.Path, statusClass).Inc()
		observability.RequestDuration.WithLabelValues(r.URL.Path).Observe(time.Since(start).Seconds())
	})
}

// rateLimitMiddleware handles bypass/bucket selection and header
// stamping around ratelimit.Limiter.Check.
func (a *App) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ratelimit.IsBypassed(r.URL.Path, r.Method) {
			next.ServeHTTP(w, r)
			return
		}

		bucket := ratelimit.BucketDefault
		if ratelimit.IsAdminRoute(r.URL.Path) {
			bucket = ratelimit.BucketAdmin
		}

		decision := a.limiter.Check(r.Context(), ratelimit.ClientIP(r), bucket)
		ratelimit.ApplyHeaders(w, decision)
		if !decision.Allowed {
			ratelimit.WriteTooManyRequests(w, decision)
			return
		}
		next.ServeHTTP(w, r)
	})
}
