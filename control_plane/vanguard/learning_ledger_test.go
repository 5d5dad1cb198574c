package vanguard

import "testing"

func TestBulkResolveRecordsLearningAndResolves(t *testing.T) {
	store := NewStore()
	ledger := NewLearningLedger()

	store.Upsert("fp-1", Incident{Endpoint: "/v1/sim", ErrorType: "KeyError"})
	store.Upsert("fp-2", Incident{Endpoint: "/v1/roster", ErrorType: "TypeError"})

	result := BulkResolve(store, ledger, []string{"fp-1", "fp-2", "fp-missing"}, "cleared after deploy")

	if result.ResolvedCount != 2 {
		t.Fatalf("expected 2 resolved, got %d", result.ResolvedCount)
	}
	if result.LearnedCount != 2 {
		t.Fatalf("expected 2 learned, got %d", result.LearnedCount)
	}
	if result.FailedCount != 1 || result.Failed[0].Fingerprint != "fp-missing" {
		t.Fatalf("expected one not_found failure for fp-missing, got %+v", result.Failed)
	}

	exported := ledger.Export()
	if len(exported) != 2 {
		t.Fatalf("expected 2 ledger entries, got %d", len(exported))
	}
	if exported[0].FixDescription != "cleared after deploy" {
		t.Fatalf("unexpected fix description: %s", exported[0].FixDescription)
	}

	inc, _ := store.Get("fp-1")
	if inc.Status != StatusResolved {
		t.Fatalf("expected fp-1 resolved, got %s", inc.Status)
	}
}
