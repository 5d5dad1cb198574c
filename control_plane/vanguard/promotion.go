// Pre-promotion readiness gate: eight checks that must all pass before
// an operator flips the deployment to its most autonomous operating
// posture. Exposed at /vanguard/admin/promotion-readiness.
package vanguard

import (
	"context"
	"fmt"
	"time"
)

type Gate struct {
	Name        string                 `json:"gate"`
	Description string                 `json:"description"`
	Passed      bool                   `json:"passed"`
	Detail      map[string]interface{} `json:"detail,omitempty"`
	Warning     string                 `json:"warning,omitempty"`
}

type PromotionReport struct {
	PromotionReady bool      `json:"promotion_ready"`
	Timestamp      time.Time `json:"timestamp"`
	TargetMode     string    `json:"target_mode"`
	Summary        string    `json:"summary"`
	Gates          []Gate    `json:"gates"`
	NextSteps      []string  `json:"next_steps"`
}

// Pingers bundles the external connectivity checks the report needs;
// Redis failures are logged as warnings only since the rate limiter and
// idempotency store both fail open, while the document
// store is load-bearing for incident persistence and does block
// promotion on failure.
type Pingers struct {
	PingCache    func(ctx context.Context) bool
	PingDocStore func(ctx context.Context) bool
}

// CheckPromotionReadiness runs all eight gates and compiles the report.
// liveStreamRouteCount is the number of SSE/REST routes mounted under
// the live pulse surface; four or more passes.
func CheckPromotionReadiness(ctx context.Context, rt *RoutingTable, mode Mode, pingers Pingers, liveStreamRouteCount int) PromotionReport {
	var gates []Gate
	allPassed := true
	record := func(g Gate) {
		gates = append(gates, g)
		if !g.Passed {
			allPassed = false
		}
	}

	// Gate 1: routing table has the default entry.
	route, ok := rt.Get("gemini_triage_path")
	record(Gate{
		Name:        "routing_table_initialized",
		Description: "RoutingTable has gemini_triage_path entry",
		Passed:      ok,
		Detail:      map[string]interface{}{"fallback_active": route.FallbackActive},
	})

	// Gate 2: heuristic triage engine functional.
	test := HeuristicTriage("KeyError", "test key")
	heuristicOK := test.Confidence > 0 && test.ModelID == "heuristic-engine"
	record(Gate{
		Name:        "heuristic_triage_functional",
		Description: "Heuristic triage produces valid IncidentAnalysis output",
		Passed:      heuristicOK,
		Detail:      map[string]interface{}{"confidence": test.Confidence, "model_id": test.ModelID},
	})

	// Gate 3: hysteresis counters available. The evaluator is wired at
	// boot and owns its consecutive-failure/success counters.
	record(Gate{
		Name:        "hysteresis_available",
		Description: "Hysteresis evaluator with consecutive-failure/success counters is wired",
		Passed:      true,
	})

	// Gate 4: triage pipeline consults the routing table before calling
	// the AI dependency. Triager.Triage takes fallbackActive as an
	// explicit parameter supplied by the routing table.
	record(Gate{
		Name:        "triage_routing_wired",
		Description: "Triage checks routing table fallback state before invoking the AI dependency",
		Passed:      true,
	})

	// Gate 5: cannot promote directly from SILENT_OBSERVER.
	isCircuitBreaker := mode == ModeCircuitBreaker
	record(Gate{
		Name:        "current_mode_circuit_breaker",
		Description: "Cannot promote directly from SILENT_OBSERVER",
		Passed:      isCircuitBreaker,
		Detail:      map[string]interface{}{"current_mode": string(mode)},
	})

	// Gate 6: cache connectivity, non-blocking (fail-open by design).
	cacheOK := pingers.PingCache == nil || pingers.PingCache(ctx)
	cacheGate := Gate{
		Name:        "cache_connectivity",
		Description: "Cache connection healthy (fail-open, but should be connected)",
		Passed:      cacheOK,
		Detail:      map[string]interface{}{"ping": cacheOK},
	}
	if !cacheOK {
		cacheGate.Warning = "cache unavailable: rate limiter and idempotency will use fallbacks"
	}
	gates = append(gates, cacheGate) // non-blocking: does not flip allPassed

	// Gate 7: document store connectivity, required for incident storage.
	docOK := pingers.PingDocStore != nil && pingers.PingDocStore(ctx)
	record(Gate{
		Name:        "document_store_connectivity",
		Description: "Document store connection healthy (required for incident storage)",
		Passed:      docOK,
		Detail:      map[string]interface{}{"ping": docOK},
	})

	// Gate 8: live stream routes mounted.
	record(Gate{
		Name:        "live_stream_routes_available",
		Description: "SSE and REST live stream endpoints registered",
		Passed:      liveStreamRouteCount >= 4,
		Detail:      map[string]interface{}{"route_count": liveStreamRouteCount},
	})

	passedCount := 0
	for _, g := range gates {
		if g.Passed {
			passedCount++
		}
	}

	nextSteps := []string{
		"Fix failing gates before attempting promotion",
		"Re-run GET /vanguard/admin/promotion-readiness to verify",
	}
	if allPassed {
		nextSteps = []string{
			"Switch operating mode to the fully autonomous posture via the admin API",
			"Monitor the admin dashboard for routing_table.active_fallbacks",
			"Verify heuristic triage activates when the AI dependency is unreachable",
		}
	}

	return PromotionReport{
		PromotionReady: allPassed,
		Timestamp:      time.Now().UTC(),
		TargetMode:     "FULL_SOVEREIGN",
		Summary:        fmt.Sprintf("%d/%d gates passed", passedCount, len(gates)),
		Gates:          gates,
		NextSteps:      nextSteps,
	}
}
