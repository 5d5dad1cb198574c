package vanguard

import "testing"

func TestNormalizePathReplacesIDsAndUUIDs(t *testing.T) {
	cases := map[string]string{
		"/players/12345/stats": "/players/{id}/stats",
		"/games/98765":         "/games/{id}",
		"/incidents/6f3694cf-1234-4abc-9def-001122334455/resolve": "/incidents/{uuid}/resolve",
		"/matchup/analyze": "/matchup/analyze",
	}
	for in, want := range cases {
		if got := NormalizePath(in); got != want {
			t.Fatalf("NormalizePath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFingerprintCollapsesStructurallyIdenticalFailures(t *testing.T) {
	frame := StackFrame{File: "vanguard/triage.go", Function: "analyze"}
	a := Fingerprint("/players/111/stats", "KeyError", frame)
	b := Fingerprint("/players/222/stats", "KeyError", frame)
	if a != b {
		t.Fatal("expected numeric ids to collapse into one fingerprint")
	}
	c := Fingerprint("/players/111/stats", "TypeError", frame)
	if a == c {
		t.Fatal("expected a different exception type to change the fingerprint")
	}
}

func TestUpsertDedupsByFingerprint(t *testing.T) {
	s := NewStore()
	seed := Incident{Endpoint: "/matchup/analyze", ErrorType: "KeyError", ErrorMessage: "player_id", RequestID: "req-a"}

	first, isNew := s.Upsert("fp-s4", seed)
	if !isNew || first.OccurrenceCount != 1 {
		t.Fatalf("expected fresh incident with count 1, got new=%v count=%d", isNew, first.OccurrenceCount)
	}

	seed.RequestID = "req-b"
	second, isNew := s.Upsert("fp-s4", seed)
	if isNew {
		t.Fatal("expected repeat occurrence, not a new incident")
	}
	if second.OccurrenceCount != 2 {
		t.Fatalf("expected occurrence_count 2, got %d", second.OccurrenceCount)
	}
	if second.FirstSeen.After(second.LastSeen) {
		t.Fatal("first_seen must not move forward on repeat occurrences")
	}
	if s.ActiveCount() != 1 {
		t.Fatalf("expected one active incident, got %d", s.ActiveCount())
	}
}

func TestResolveUnresolveRoundTrip(t *testing.T) {
	s := NewStore()
	analysis := &IncidentAnalysis{RootCause: "schema drift", Confidence: 55}
	s.Upsert("fp-rt", Incident{Endpoint: "/sim/run", ErrorType: "KeyError"})
	s.SetAnalysis("fp-rt", analysis)

	inc, ok := s.Resolve("fp-rt", "fixed upstream")
	if !ok || inc.Status != StatusResolved || inc.ResolvedAt == nil {
		t.Fatalf("expected resolved incident, got %+v", inc)
	}
	if inc.ResolutionSummary == nil || inc.ResolutionSummary.PriorAnalysis != analysis {
		t.Fatal("expected resolution snapshot to preserve prior AI analysis")
	}

	inc, ok = s.Unresolve("fp-rt")
	if !ok || inc.Status != StatusActive || inc.ResolvedAt != nil || inc.ResolutionSummary != nil {
		t.Fatalf("expected unresolve to fully revert, got %+v", inc)
	}
}

func TestClassifySeverity(t *testing.T) {
	if got := ClassifySeverity("DeadlineExceeded", 500, "data"); got != SeverityAmber {
		t.Fatalf("expected AMBER for timeout, got %s", got)
	}
	if got := ClassifySeverity("PanicError", 500, "core"); got != SeverityRed {
		t.Fatalf("expected RED for 5xx, got %s", got)
	}
	if got := ClassifySeverity("ValidationError", 422, "simulation"); got != SeverityYellow {
		t.Fatalf("expected YELLOW for 4xx in simulation, got %s", got)
	}
	if got := ClassifySeverity("DiagnosticProbe", 200, "admin"); got != SeverityGreen {
		t.Fatalf("expected GREEN inside admin diagnostics, got %s", got)
	}
}
