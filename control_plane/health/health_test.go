package health

import "testing"

func TestRecordErrorEscalatesStatus(t *testing.T) {
	g := NewGate()
	g.Register("database", Core)

	for i := 0; i < 3; i++ {
		g.RecordError("database", "conn refused")
	}
	st, _ := g.GetServiceStatus("database")
	if st.Status != Degraded {
		t.Fatalf("expected Degraded after 3 errors, got %v", st.Status)
	}

	for i := 0; i < 2; i++ {
		g.RecordError("database", "conn refused")
	}
	st, _ = g.GetServiceStatus("database")
	if st.Status != Down {
		t.Fatalf("expected Down after 5 errors, got %v", st.Status)
	}
}

func TestRecordSuccessRecoversMonotonically(t *testing.T) {
	g := NewGate()
	g.Register("nba_api", External)
	for i := 0; i < 5; i++ {
		g.RecordError("nba_api", "timeout")
	}
	for i := 0; i < 5; i++ {
		g.RecordSuccess("nba_api", 42)
	}
	st, _ := g.GetServiceStatus("nba_api")
	if st.Status != Healthy || st.ErrorCount != 0 {
		t.Fatalf("expected Healthy/0 errors after recovery, got %v/%d", st.Status, st.ErrorCount)
	}
}

func TestCooldownRoundTrip(t *testing.T) {
	g := NewGate()
	g.Register("gemini", External)

	g.EnterCooldown("gemini", 30)
	if !g.IsInCooldown("gemini") {
		t.Fatal("expected in cooldown")
	}
	g.ExitCooldown("gemini")
	if g.IsInCooldown("gemini") {
		t.Fatal("expected cooldown cleared")
	}
}

func TestCheckAllOverallStatus(t *testing.T) {
	g := NewGate()
	g.Register("database", Core)
	g.Register("nba_api", External)
	g.Register("cache", Component)

	sys := g.CheckAll()
	if sys.Overall != Healthy {
		t.Fatalf("expected Healthy baseline, got %v", sys.Overall)
	}

	for i := 0; i < 5; i++ {
		g.RecordError("database", "fatal")
	}
	sys = g.CheckAll()
	if sys.Overall != Critical {
		t.Fatalf("expected Critical when core service is down, got %v", sys.Overall)
	}
}

func TestRecordRateLimitEntersCooldownAndError(t *testing.T) {
	g := NewGate()
	g.Register("nba_api", External)
	g.RecordRateLimit("nba_api", 60)

	if !g.IsInCooldown("nba_api") {
		t.Fatal("expected cooldown entered")
	}
	st, _ := g.GetServiceStatus("nba_api")
	if st.ErrorCount != 1 {
		t.Fatalf("expected error count 1, got %d", st.ErrorCount)
	}
}
