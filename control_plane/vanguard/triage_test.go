package vanguard

import (
	"context"
	"testing"
)

func TestHeuristicTriageRuleTable(t *testing.T) {
	cases := []struct {
		errorType  string
		message    string
		wantCause  string
		wantConf   int
	}{
		{"KeyError", "missing key 'foo'", "schema drift", 55},
		{"FailedPrecondition", "no matching index for query", "missing composite index", 75},
		{"DeadlineExceeded", "call exceeded deadline", "dependency timeout", 65},
		{"ImportError", "no module named foo", "missing dependency", 80},
		{"PermissionDenied", "caller lacks permission", "insufficient permissions", 70},
		{"MemoryError", "cannot allocate memory", "memory exhaustion", 70},
		{"SomeOtherError", "socket timeout while dialing", "dependency timeout", 65},
		{"SomeOtherError", "totally unrecognized failure", "no heuristic pattern matched", 30},
	}
	for _, c := range cases {
		got := HeuristicTriage(c.errorType, c.message)
		if got.RootCause != c.wantCause || got.Confidence != c.wantConf {
			t.Fatalf("%s/%q: got {%s %d}, want {%s %d}", c.errorType, c.message, got.RootCause, got.Confidence, c.wantCause, c.wantConf)
		}
		if got.ModelID != "heuristic-engine" {
			t.Fatalf("expected heuristic-engine model id, got %s", got.ModelID)
		}
	}
}

func TestHeuristicTriageKnownHostFloor(t *testing.T) {
	got := HeuristicTriage("ConnectionError", "failed to reach stats.nba.com")
	if got.Confidence != 60 {
		t.Fatalf("expected confidence floor 60 for known host, got %d", got.Confidence)
	}
}

func TestTriagerFallsBackWhenFallbackActive(t *testing.T) {
	tg := NewTriager(nil, 0)
	inc := &Incident{ErrorType: "KeyError", ErrorMessage: "missing key"}
	analysis, source := tg.Triage(context.Background(), inc, true, "")
	if source != "heuristic" {
		t.Fatalf("expected heuristic source when fallback active, got %s", source)
	}
	if analysis.RootCause != "schema drift" {
		t.Fatalf("expected schema drift root cause, got %s", analysis.RootCause)
	}
}

func TestTriagerFallsBackWhenNoClientConfigured(t *testing.T) {
	tg := NewTriager(nil, 0)
	inc := &Incident{ErrorType: "MemoryError", ErrorMessage: "oom"}
	_, source := tg.Triage(context.Background(), inc, false, "")
	if source != "heuristic" {
		t.Fatalf("expected heuristic source with nil client, got %s", source)
	}
}
