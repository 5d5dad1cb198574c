// Incident capture middleware: wraps a handler chain, and on any 5xx
// response or panic, fingerprints the failure, upserts an incident, and
// schedules triage on the shared priority queue.
package vanguard

import (
	"bytes"
	"context"
	"math/rand"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"

	"github.com/nexusvanguard/control-plane/control_plane/observability"
	"github.com/nexusvanguard/control-plane/control_plane/queue"
	"github.com/nexusvanguard/control-plane/control_plane/registry"
	"github.com/nexusvanguard/control-plane/control_plane/reqid"
)

// Engine bundles the pieces incident capture needs to fingerprint,
// record, and schedule triage for a failure.
type Engine struct {
	Incidents *Store
	Registry  *registry.Registry
	Routing   *RoutingTable
	Triager   *Triager
	Queue     *queue.PriorityQueue
	Ledger    *LearningLedger
	Escalator *Escalator

	// SamplingRate in (0,1] captures only that fraction of failures;
	// zero or negative disables sampling (capture everything).
	SamplingRate float64
}

type captureWriter struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (w *captureWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *captureWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	if w.body.Len() < 4096 {
		w.body.Write(b)
	}
	return w.ResponseWriter.Write(b)
}

// Flush keeps SSE handlers working through the wrapper.
func (w *captureWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Middleware captures a failure for any response >=500 and for panics,
// re-panicking after capture so an outer recovery layer still runs.
func (e *Engine) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cw := &captureWriter{ResponseWriter: w}

		defer func() {
			if p := recover(); p != nil {
				e.capture(r, 500, "PanicError", toString(p), string(debug.Stack()))
				panic(p)
			}
		}()

		next.ServeHTTP(cw, r)

		if cw.status >= 500 {
			e.capture(r, cw.status, classifyFromBody(cw.body.String()), firstLine(cw.body.String()), "")
		}
	})
}

func toString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	if err, ok := v.(error); ok {
		return err.Error()
	}
	return "unknown panic"
}

func firstLine(body string) string {
	if idx := strings.IndexByte(body, '\n'); idx >= 0 {
		return body[:idx]
	}
	if len(body) > 300 {
		return body[:300]
	}
	return body
}

// classifyFromBody is a best-effort error-type guess when no structured
// panic value is available; the AI/heuristic triage path still runs off
// the endpoint and status code regardless.
func classifyFromBody(body string) string {
	lower := strings.ToLower(body)
	switch {
	case strings.Contains(lower, "timeout"):
		return "DeadlineExceeded"
	case strings.Contains(lower, "permission"):
		return "PermissionDenied"
	default:
		return "UnknownError"
	}
}

// capture fingerprints the failure, upserts the incident, and schedules
// triage at low priority, except the first occurrence of a RED incident
// which jumps to high since it is unreviewed.
func (e *Engine) capture(r *http.Request, status int, errorType, errorMessage, traceback string) {
	if e.SamplingRate > 0 && e.SamplingRate < 1 && rand.Float64() > e.SamplingRate {
		return
	}

	endpoint := r.URL.Path
	cfg, hasCfg := e.Registry.Get(endpoint)
	category := registry.Category("")
	if hasCfg {
		category = cfg.Category
	}

	frames := ParseTraceback(traceback)
	topFrame, _ := TopUserFrame(frames)
	fp := Fingerprint(endpoint, errorType, topFrame)
	severity := ClassifySeverity(errorType, status, string(category))
	observability.IncidentsCaptured.WithLabelValues(string(severity)).Inc()

	seed := Incident{
		Endpoint:      endpoint,
		ErrorType:     errorType,
		ErrorMessage:  errorMessage,
		Traceback:     traceback,
		Severity:      severity,
		RequestID:     reqid.FromContext(r.Context()),
		ContextVector: map[string]string{"http_status": strconv.Itoa(status)},
	}

	inc, isNew := e.Incidents.Upsert(fp, seed)
	observability.IncidentsActive.Set(float64(e.Incidents.ActiveCount()))

	priority := queue.Low
	if isNew && severity == SeverityRed {
		priority = queue.High
	}

	triager := e.Triager
	routing := e.Routing
	incidents := e.Incidents
	q := e.Queue
	if q == nil || triager == nil {
		return
	}

	// The triage task outlives this request; detach from its cancellation
	// while keeping request-scoped values (request id) observable.
	triageCtx := context.WithoutCancel(r.Context())

	_, _ = q.Submit(priority, func() (interface{}, error) {
		fallback := routing != nil && routing.IsFallbackActive("gemini_triage_path")
		analysis, source := triager.Triage(triageCtx, inc, fallback, "")
		incidents.SetAnalysis(fp, &analysis)
		observability.TriageDecisions.WithLabelValues(source, "completed").Inc()

		mode := ModeNormal
		if e.Escalator != nil {
			mode = e.Escalator.Mode()
		}
		entry := BuildRemediation(mode, analysis, "triage_source="+source)
		incidents.AppendRemediation(fp, entry)
		observability.SurgeonActions.WithLabelValues(string(entry.Action), string(mode)).Inc()
		return analysis, nil
	})
}

// ParseTraceback is a minimal "file:line in function" line scanner; a
// production capture path would receive structured frames directly from
// the panic recovery point rather than re-parsing debug.Stack() text.
func ParseTraceback(traceback string) []StackFrame {
	if traceback == "" {
		return nil
	}
	var frames []StackFrame
	for _, line := range strings.Split(traceback, "\n") {
		line = strings.TrimSpace(line)
		if !strings.Contains(line, ".go:") {
			continue
		}
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}
		frames = append(frames, StackFrame{File: parts[0]})
	}
	return frames
}
