package vanguard

import (
	"context"
	"testing"
)

func TestRoutingTableDefaultEntry(t *testing.T) {
	rt := NewRoutingTable()
	entry, ok := rt.Get("gemini_triage_path")
	if !ok {
		t.Fatal("expected default gemini_triage_path entry")
	}
	if entry.FallbackActive {
		t.Fatal("expected fallback inactive by default")
	}
	if entry.PrimaryHandler != "ai_analyzer" || entry.FallbackHandler != "heuristic_engine" {
		t.Fatalf("unexpected default handlers: %+v", entry)
	}
}

func TestRoutingTableActivateDeactivateRoundTrip(t *testing.T) {
	rt := NewRoutingTable()
	if !rt.ActivateFallback("gemini_triage_path", "ai unreachable") {
		t.Fatal("expected activation to succeed")
	}
	if !rt.IsFallbackActive("gemini_triage_path") {
		t.Fatal("expected fallback active after activation")
	}
	// Idempotent re-activation.
	if !rt.ActivateFallback("gemini_triage_path", "still unreachable") {
		t.Fatal("expected idempotent re-activation to report success")
	}

	rt.DeactivateFallback("gemini_triage_path")
	entry, _ := rt.Get("gemini_triage_path")
	if entry.FallbackActive || entry.ActivationReason != "" || entry.ActivatedAt != nil {
		t.Fatalf("expected deactivation to clear activation state, got %+v", entry)
	}
}

func TestRoutingTableRejectsDenylistedKey(t *testing.T) {
	rt := NewRoutingTable()
	if rt.Register("/healthz", "health_handler", "cached_health") {
		t.Fatal("expected denylisted key registration to be rejected")
	}
	if rt.ActivateFallback("/vanguard/admin/mode", "bad idea") {
		t.Fatal("expected activation on a denylisted key to be rejected")
	}
	if _, ok := rt.Get("/vanguard/admin/mode"); ok {
		t.Fatal("rejected activation must not create an entry")
	}
}

func TestRoutingTableRequiresFallbackHandler(t *testing.T) {
	rt := NewRoutingTable()
	if !rt.Register("matchup_engine", "live_matchup", "") {
		t.Fatal("expected registration without a fallback handler to succeed")
	}
	if rt.ActivateFallback("matchup_engine", "degraded") {
		t.Fatal("expected activation without a fallback handler to be rejected")
	}
}

func TestHysteresisActivatesAfterThreeFailures(t *testing.T) {
	rt := NewRoutingTable()
	h := NewHysteresisEvaluator(rt, "gemini_triage_path", func(ctx context.Context) bool { return false }, 0, nil)

	for i := 0; i < 3; i++ {
		h.tick(context.Background())
	}
	if !rt.IsFallbackActive("gemini_triage_path") {
		t.Fatal("expected fallback active after three consecutive failures")
	}
}

func TestHysteresisDeactivatesAfterTwoSuccesses(t *testing.T) {
	rt := NewRoutingTable()
	rt.ActivateFallback("gemini_triage_path", "seed")
	h := NewHysteresisEvaluator(rt, "gemini_triage_path", func(ctx context.Context) bool { return true }, 0, nil)

	h.tick(context.Background())
	if !rt.IsFallbackActive("gemini_triage_path") {
		t.Fatal("fallback should still be active after only one success")
	}
	h.tick(context.Background())
	if rt.IsFallbackActive("gemini_triage_path") {
		t.Fatal("expected fallback deactivated after two consecutive successes")
	}
}

func TestHysteresisSkippedInCircuitBreakerMode(t *testing.T) {
	rt := NewRoutingTable()
	probed := false
	h := NewHysteresisEvaluator(rt, "gemini_triage_path", func(ctx context.Context) bool { probed = true; return false }, 0, func() bool { return true })

	h.tick(context.Background())
	if probed {
		t.Fatal("expected probe to be skipped when skip() returns true")
	}
}

func TestHysteresisFailureCounterResetsOnSuccess(t *testing.T) {
	rt := NewRoutingTable()
	healthy := false
	h := NewHysteresisEvaluator(rt, "gemini_triage_path", func(ctx context.Context) bool { return healthy }, 0, nil)

	h.tick(context.Background())
	h.tick(context.Background())
	healthy = true
	h.tick(context.Background())
	healthy = false
	h.tick(context.Background())
	h.tick(context.Background())
	if rt.IsFallbackActive("gemini_triage_path") {
		t.Fatal("expected interleaved success to reset the failure counter")
	}
}
