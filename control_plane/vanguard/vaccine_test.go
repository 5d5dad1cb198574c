package vanguard

import (
	"math"
	"testing"
)

func TestRootCauseBucketByExceptionThenStatus(t *testing.T) {
	if got := RootCauseBucket("KeyError", 0); got != "schema_drift" {
		t.Fatalf("expected schema_drift, got %s", got)
	}
	if got := RootCauseBucket("SomethingNovel", 429); got != "rate_limit" {
		t.Fatalf("expected http-status fallback to rate_limit, got %s", got)
	}
	if got := RootCauseBucket("SomethingNovel", 0); got != "unknown" {
		t.Fatalf("expected unknown bucket, got %s", got)
	}
}

func TestExtractCandidatesFiltersAndCaps(t *testing.T) {
	frames := []StackFrame{
		{File: "vendor/thirdparty/lib.go", Line: 10},
		{File: "vanguard/triage.go", Line: 42, Function: "analyze"},
		{File: "backend/vanguard/surgeon.go", Line: 7, Function: "decide"},
	}
	aiRefs := []string{"scripts/repair.sh", "/etc/passwd"}
	out := ExtractCandidates(frames, aiRefs, "shared_core/endpoint_map.go")

	if len(out) != 4 {
		t.Fatalf("expected 4 allowed candidates, got %d: %+v", len(out), out)
	}
	// Innermost allowed frame ranks first.
	if out[0].File != "backend/vanguard/surgeon.go" || out[0].Source != "stacktrace" {
		t.Fatalf("expected innermost stacktrace candidate first, got %+v", out[0])
	}
	for _, c := range out {
		if !IsAllowedPath(c.File) {
			t.Fatalf("candidate outside allowed roots leaked through: %s", c.File)
		}
	}
}

func TestCalculateRiskFormula(t *testing.T) {
	candidates := []FixCandidate{{File: "vanguard/triage.go", Confidence: 0.8}}

	base := CalculateRisk(SeverityYellow, "schema_drift", candidates)
	if math.Abs(base-0.3) > 1e-9 {
		t.Fatalf("expected baseline risk 0.3, got %v", base)
	}

	red := CalculateRisk(SeverityRed, "schema_drift", candidates)
	if math.Abs(red-0.5) > 1e-9 {
		t.Fatalf("expected +0.2 for RED, got %v", red)
	}

	highRisk := CalculateRisk(SeverityYellow, "infinite_loop", candidates)
	if math.Abs(highRisk-0.5) > 1e-9 {
		t.Fatalf("expected +0.20 for high-risk bucket, got %v", highRisk)
	}

	unknown := CalculateRisk(SeverityYellow, "unknown", nil)
	// 0.3 baseline + 0.4 no-candidate confidence deficit + 0.15 unknown cause.
	if math.Abs(unknown-0.85) > 1e-9 {
		t.Fatalf("expected 0.85 for unknown cause with no candidates, got %v", unknown)
	}

	clamped := CalculateRisk(SeverityRed, "infinite_loop", []FixCandidate{{File: "vanguard/main.go", Confidence: 0}})
	if clamped != 1.0 {
		t.Fatalf("expected risk clamped to 1.0, got %v", clamped)
	}
}

func TestGeneratePlanAlwaysRequiresHumanApproval(t *testing.T) {
	inc := &Incident{Fingerprint: "fp-x", Endpoint: "/sim/run", ErrorType: "RecursionError", Severity: SeverityRed}
	plan := GeneratePlan(inc, nil, nil, "", 500, []string{"simulation"})
	if !plan.RequiresHumanApproval {
		t.Fatal("vaccine plans must always require human approval")
	}
	if plan.RootCauseBucket != "infinite_loop" {
		t.Fatalf("expected infinite_loop bucket, got %s", plan.RootCauseBucket)
	}
	if len(plan.VerificationPlan) == 0 || len(plan.RollbackPlan) == 0 {
		t.Fatal("expected verification and rollback plans to be populated")
	}
}
