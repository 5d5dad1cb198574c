package vanguard

import "testing"

func TestDecideSilentObserverAlwaysLogsOnly(t *testing.T) {
	analysis := IncidentAnalysis{Confidence: 99, ReadyToResolve: true}
	if got := Decide(ModeSilentObserver, analysis); got != ActionLogOnly {
		t.Fatalf("expected LOG_ONLY in SILENT_OBSERVER, got %s", got)
	}
}

func TestDecideByConfidenceThresholds(t *testing.T) {
	cases := []struct {
		name   string
		a      IncidentAnalysis
		expect Action
	}{
		{"ready and high confidence monitors", IncidentAnalysis{Confidence: 90, ReadyToResolve: true}, ActionMonitor},
		{"high confidence not ready rate limits", IncidentAnalysis{Confidence: 90, ReadyToResolve: false}, ActionRateLimit},
		{"mid confidence rate limits", IncidentAnalysis{Confidence: 75, ReadyToResolve: false}, ActionRateLimit},
		{"low confidence quarantines", IncidentAnalysis{Confidence: 50, ReadyToResolve: false}, ActionQuarantine},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := Decide(ModeNormal, c.a); got != c.expect {
				t.Fatalf("got %s, want %s", got, c.expect)
			}
		})
	}
}

func TestDecideUnknownModeDegradesToLogOnly(t *testing.T) {
	if got := Decide(Mode("BOGUS"), IncidentAnalysis{Confidence: 99}); got != ActionLogOnly {
		t.Fatalf("expected LOG_ONLY for unknown mode, got %s", got)
	}
}
