package vanguard

import (
	"strconv"
	"testing"
)

func TestCompositeScoreWeightingAndBounds(t *testing.T) {
	if got := CompositeScore(100, 100, 100); got != 100 {
		t.Fatalf("expected 100 for all-healthy inputs, got %v", got)
	}
	// The composite is floored at 20 even when every sub-score collapses.
	if got := CompositeScore(0, 0, 0); got != 20 {
		t.Fatalf("expected floor of 20 for all-zero inputs, got %v", got)
	}
}

func TestIncidentScoreDecaysAndEarnsResolutionBonus(t *testing.T) {
	clean := IncidentScore(0, 0, 0)
	if clean != 100 {
		t.Fatalf("expected 100 with no incidents, got %v", clean)
	}

	loaded := IncidentScore(30, 0, 0)
	if loaded >= 10 {
		t.Fatalf("expected 30 active incidents to collapse the score, got %v", loaded)
	}

	recovering := IncidentScore(5, 0, 25)
	if recovering <= loaded {
		t.Fatalf("expected resolutions to raise the score, got %v <= %v", recovering, loaded)
	}
	if bonus := recovering - IncidentScore(5, 0, 0); bonus <= 0 || bonus > 10 {
		t.Fatalf("expected resolution bonus in (0,10], got %v", bonus)
	}
}

func TestSubsystemScoreWeightedRollup(t *testing.T) {
	allUp := map[string]bool{
		SubsystemRegistry: true,
		SubsystemStore:    true,
		SubsystemAI:       true,
		SubsystemVaccine:  true,
		SubsystemSurgeon:  true,
		SubsystemKVStore:  true,
	}
	if got := SubsystemScore(allUp); got != 100 {
		t.Fatalf("expected 100 with every subsystem up, got %v", got)
	}

	allUp[SubsystemRegistry] = false
	if got := SubsystemScore(allUp); got != 70 {
		t.Fatalf("expected 70 with the registry down, got %v", got)
	}

	allUp[SubsystemAI] = false
	allUp[SubsystemKVStore] = false
	if got := SubsystemScore(allUp); got != 45 {
		t.Fatalf("expected 45 with registry, AI and KV store down, got %v", got)
	}

	// Subsystems absent from the map count as down.
	if got := SubsystemScore(map[string]bool{SubsystemStore: true}); got != 25 {
		t.Fatalf("expected 25 with only the incident store reporting, got %v", got)
	}
}

func TestEscalatorTripsCircuitBreakerBelowThreshold(t *testing.T) {
	var changes []Mode
	e := NewEscalator(
		func() (float64, float64, float64) { return 0, 0, 0 },
		func(old, new Mode, score float64) { changes = append(changes, new) },
	)
	mode := e.Evaluate()
	if mode != ModeCircuitBreaker {
		t.Fatalf("expected CIRCUIT_BREAKER, got %s", mode)
	}
	if len(changes) != 1 || changes[0] != ModeCircuitBreaker {
		t.Fatalf("expected one mode-change callback to CIRCUIT_BREAKER, got %v", changes)
	}
}

func TestEscalatorPromotesToSilentObserverFromCircuitBreaker(t *testing.T) {
	score := 0.0
	e := NewEscalator(func() (float64, float64, float64) { return score, score, score }, nil)

	e.Evaluate() // floored composite of 20 -> CIRCUIT_BREAKER
	if e.Mode() != ModeCircuitBreaker {
		t.Fatalf("setup failed: expected CIRCUIT_BREAKER, got %s", e.Mode())
	}

	score = 100
	if got := e.Evaluate(); got != ModeSilentObserver {
		t.Fatalf("expected SILENT_OBSERVER after recovery from CIRCUIT_BREAKER, got %s", got)
	}
}

func TestEscalatorStaysNormalAboveThreshold(t *testing.T) {
	e := NewEscalator(func() (float64, float64, float64) { return 100, 100, 100 }, nil)
	if got := e.Evaluate(); got != ModeNormal {
		t.Fatalf("expected NORMAL to persist, got %s", got)
	}
}

func TestModeEscalationRoundTripUnderIncidentLoad(t *testing.T) {
	store := NewStore()
	for i := 0; i < 30; i++ {
		store.Upsert("fp-load-"+strconv.Itoa(i), Incident{Endpoint: "/sim/" + strconv.Itoa(i), ErrorType: "KeyError"})
	}

	scoreFunc := func() (float64, float64, float64) {
		return IncidentScore(store.ActiveCount(), 0, store.ResolvedCount()),
			100,
			EndpointErrorScore(store.DistinctEndpointsWithActiveIncidents())
	}
	e := NewEscalator(scoreFunc, nil)

	if got := e.Evaluate(); got != ModeCircuitBreaker {
		t.Fatalf("expected 30 active incidents to trip CIRCUIT_BREAKER, got %s (score %v)", got, e.LastScore())
	}

	for i := 0; i < 25; i++ {
		store.Resolve("fp-load-"+strconv.Itoa(i), "cleared")
	}
	if got := e.Evaluate(); got != ModeSilentObserver {
		t.Fatalf("expected recovery to SILENT_OBSERVER after resolutions, got %s (score %v)", got, e.LastScore())
	}
}
