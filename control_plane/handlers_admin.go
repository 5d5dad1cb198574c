package main

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/nexusvanguard/control-plane/control_plane/errs"
	"github.com/nexusvanguard/control-plane/control_plane/streaming"
	"github.com/nexusvanguard/control-plane/control_plane/vanguard"
)

// analyzeAllBatchLimit bounds one analyze-all fan-out.
const analyzeAllBatchLimit = 100

var adminValidate = validator.New()

func decodeAndValidate(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return err
	}
	return adminValidate.Struct(dst)
}

func (a *App) writeAdminError(w http.ResponseWriter, code errs.Code, message string) {
	ve := errs.New(code, message)
	a.errRing.Record(ve)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(ve.HTTPStatus)
	json.NewEncoder(w).Encode(ve)
}

func writeIncidentNotFound(w http.ResponseWriter, fingerprint string) {
	writeJSON(w, http.StatusNotFound, map[string]string{"error": "incident not found", "fingerprint": fingerprint})
}

func (a *App) handleListIncidents(w http.ResponseWriter, r *http.Request) {
	status := vanguard.IncidentStatus(r.URL.Query().Get("status"))
	if status == "" {
		status = vanguard.StatusActive
	}
	incidents := a.vanguard.Incidents.List(status)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":     len(incidents),
		"incidents": incidents,
	})
}

func (a *App) handleGetIncident(w http.ResponseWriter, r *http.Request) {
	fp := chi.URLParam(r, "fp")
	inc, ok := a.vanguard.Incidents.Get(fp)
	if !ok {
		writeIncidentNotFound(w, fp)
		return
	}

	frames := vanguard.ParseTraceback(inc.Traceback)
	var aiRefs []string
	if inc.AIAnalysis != nil {
		aiRefs = inc.AIAnalysis.RecommendedFix
	}
	httpStatus := 0
	if inc.ContextVector != nil {
		httpStatus, _ = strconv.Atoi(inc.ContextVector["http_status"])
	}
	plan := vanguard.GeneratePlan(inc, frames, aiRefs, inc.Endpoint, httpStatus, []string{inc.Endpoint})

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"incident":     inc,
		"vaccine_plan": plan,
	})
}

type resolveRequest struct {
	Approved        bool   `json:"approved" validate:"required"`
	ResolutionNotes string `json:"resolution_notes"`
}

func (a *App) handleResolveIncident(w http.ResponseWriter, r *http.Request) {
	fp := chi.URLParam(r, "fp")
	var req resolveRequest
	if err := decodeAndValidate(r, &req); err != nil {
		a.writeAdminError(w, errs.InvalidParam, "invalid resolve request: "+err.Error())
		return
	}
	inc, ok := a.vanguard.Incidents.Resolve(fp, req.ResolutionNotes)
	if !ok {
		writeIncidentNotFound(w, fp)
		return
	}
	a.ledger.RecordFix(inc.Endpoint+" "+inc.ErrorType, req.ResolutionNotes, nil, "", inc.OccurrenceCount)
	writeJSON(w, http.StatusOK, inc)
}

type unresolveRequest struct {
	Approved bool   `json:"approved" validate:"required"`
	Reason   string `json:"reason"`
}

func (a *App) handleUnresolveIncident(w http.ResponseWriter, r *http.Request) {
	fp := chi.URLParam(r, "fp")
	var req unresolveRequest
	if err := decodeAndValidate(r, &req); err != nil {
		a.writeAdminError(w, errs.InvalidParam, "invalid unresolve request: "+err.Error())
		return
	}
	inc, ok := a.vanguard.Incidents.Unresolve(fp)
	if !ok {
		writeIncidentNotFound(w, fp)
		return
	}
	writeJSON(w, http.StatusOK, inc)
}

type bulkResolveRequest struct {
	Fingerprints []string `json:"fingerprints" validate:"required,min=1"`
	Notes        string   `json:"notes"`
}

func (a *App) handleBulkResolve(w http.ResponseWriter, r *http.Request) {
	var req bulkResolveRequest
	if err := decodeAndValidate(r, &req); err != nil {
		a.writeAdminError(w, errs.InvalidParam, "invalid bulk-resolve request: "+err.Error())
		return
	}
	result := vanguard.BulkResolve(a.vanguard.Incidents, a.ledger, req.Fingerprints, req.Notes)
	if a.publisher != nil {
		_ = a.publisher.Publish(r.Context(), "bulk_resolve", streaming.ActorOperator, result)
	}
	writeJSON(w, http.StatusOK, result)
}

type resolveAllRequest struct {
	Confirm bool   `json:"confirm" validate:"required"`
	Notes   string `json:"notes"`
}

func (a *App) handleResolveAll(w http.ResponseWriter, r *http.Request) {
	var req resolveAllRequest
	if err := decodeAndValidate(r, &req); err != nil || !req.Confirm {
		a.writeAdminError(w, errs.InvalidParam, "resolve-all requires confirm=true")
		return
	}
	active := a.vanguard.Incidents.List(vanguard.StatusActive)
	fps := make([]string, 0, len(active))
	for _, inc := range active {
		fps = append(fps, inc.Fingerprint)
	}
	result := vanguard.BulkResolve(a.vanguard.Incidents, a.ledger, fps, req.Notes)
	writeJSON(w, http.StatusOK, result)
}

// handleAnalyzeAll fans triage out over active incidents missing analysis,
// bounded to analyzeAllBatchLimit per call and paced between AI requests
// so a large backlog never hammers the LLM dependency.
func (a *App) handleAnalyzeAll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	force := r.URL.Query().Get("force") == "true"
	active := a.vanguard.Incidents.List(vanguard.StatusActive)

	type analyzed struct {
		Fingerprint string                    `json:"fingerprint"`
		Analysis    vanguard.IncidentAnalysis `json:"analysis"`
		Source      string                    `json:"source"`
	}
	var results []analyzed
	skipped := 0
	fallbackActive := a.routing.IsFallbackActive("gemini_triage_path")
	for _, inc := range active {
		if inc.AIAnalysis != nil && !force && time.Now().UTC().Before(inc.AIAnalysis.ExpiresAt) {
			continue
		}
		if len(results) >= analyzeAllBatchLimit {
			skipped++
			continue
		}
		if len(results) > 0 && !fallbackActive {
			time.Sleep(100 * time.Millisecond)
		}
		analysis, source := a.triager.Triage(ctx, inc, fallbackActive, "")
		a.vanguard.Incidents.SetAnalysis(inc.Fingerprint, &analysis)
		results = append(results, analyzed{Fingerprint: inc.Fingerprint, Analysis: analysis, Source: source})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"analyzed_count": len(results),
		"skipped_count":  skipped,
		"results":        results,
	})
}

type setModeRequest struct {
	Mode string `json:"mode" validate:"required,oneof=SILENT_OBSERVER CIRCUIT_BREAKER FULL_SOVEREIGN"`
}

// handleSetMode accepts the three operator-facing mode names for
// /vanguard/admin/mode. FULL_SOVEREIGN is not a distinct Escalator state
// here (see DESIGN.md, "mode model" decision): it is the promotion target
// reported by /vanguard/admin/promotion-readiness once all gates pass, and
// requesting it only succeeds once CheckPromotionReadiness says the system
// is ready; otherwise the operator is pointed back at the readiness report.
func (a *App) handleSetMode(w http.ResponseWriter, r *http.Request) {
	var req setModeRequest
	if err := decodeAndValidate(r, &req); err != nil {
		a.writeAdminError(w, errs.InvalidParam, "invalid mode request: "+err.Error())
		return
	}
	if req.Mode == "FULL_SOVEREIGN" {
		report := vanguard.CheckPromotionReadiness(r.Context(), a.routing, a.escalator.Mode(), vanguard.Pingers{
			PingCache:    a.pingCache,
			PingDocStore: a.pingDocStore,
		}, liveStreamRouteCount)
		if !report.PromotionReady {
			writeJSON(w, http.StatusPreconditionFailed, map[string]interface{}{
				"error":  "promotion gates not satisfied",
				"report": report,
			})
			return
		}
		a.escalator.ForceMode(vanguard.ModeCircuitBreaker)
		writeJSON(w, http.StatusOK, map[string]string{"mode": "FULL_SOVEREIGN", "note": "gates passed; autonomous remediation authorized while CIRCUIT_BREAKER routing stays in effect"})
		return
	}
	a.escalator.ForceMode(vanguard.Mode(req.Mode))
	if a.publisher != nil {
		_ = a.publisher.Publish(r.Context(), "mode_override", streaming.ActorOperator, map[string]string{"mode": req.Mode})
	}
	writeJSON(w, http.StatusOK, map[string]string{"mode": req.Mode})
}

func (a *App) handleStats(w http.ResponseWriter, r *http.Request) {
	incidentScore, subsystemScore, endpointErrorScore := a.composeScore()
	errors, counts := a.errRing.Snapshot()
	stats := map[string]interface{}{
		"mode":                 a.escalator.Mode(),
		"composite_score":      a.escalator.LastScore(),
		"incident_score":       incidentScore,
		"subsystem_score":      subsystemScore,
		"endpoint_error_score": endpointErrorScore,
		"active_incidents":     a.vanguard.Incidents.ActiveCount(),
		"resolved_incidents":   a.vanguard.Incidents.ResolvedCount(),
		"race_stats":           a.race.Stats(),
		"recent_errors":        errors,
		"error_counts":         counts,
		"routing_table":        a.routing.Snapshot(),
	}
	if a.singleton != nil {
		stats["singleton_runner"] = a.singleton.State()
	}
	writeJSON(w, http.StatusOK, stats)
}

func (a *App) handlePromotionReadiness(w http.ResponseWriter, r *http.Request) {
	report := vanguard.CheckPromotionReadiness(r.Context(), a.routing, a.escalator.Mode(), vanguard.Pingers{
		PingCache:    a.pingCache,
		PingDocStore: a.pingDocStore,
	}, liveStreamRouteCount)
	writeJSON(w, http.StatusOK, report)
}

func (a *App) handleLearningLedger(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.ledger.Export())
}
