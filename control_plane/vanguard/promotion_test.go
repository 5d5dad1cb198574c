package vanguard

import (
	"context"
	"testing"
)

func TestCheckPromotionReadinessAllPass(t *testing.T) {
	rt := NewRoutingTable()
	pingers := Pingers{
		PingCache:    func(ctx context.Context) bool { return true },
		PingDocStore: func(ctx context.Context) bool { return true },
	}
	report := CheckPromotionReadiness(context.Background(), rt, ModeCircuitBreaker, pingers, 4)
	if !report.PromotionReady {
		t.Fatalf("expected all gates to pass, got %+v", report.Gates)
	}
	if len(report.Gates) != 8 {
		t.Fatalf("expected 8 gates, got %d", len(report.Gates))
	}
}

func TestCheckPromotionReadinessBlocksFromSilentObserver(t *testing.T) {
	rt := NewRoutingTable()
	pingers := Pingers{
		PingCache:    func(ctx context.Context) bool { return true },
		PingDocStore: func(ctx context.Context) bool { return true },
	}
	report := CheckPromotionReadiness(context.Background(), rt, ModeSilentObserver, pingers, 4)
	if report.PromotionReady {
		t.Fatalf("expected promotion to be blocked from SILENT_OBSERVER")
	}
}

func TestCheckPromotionReadinessCacheDownIsNonBlocking(t *testing.T) {
	rt := NewRoutingTable()
	pingers := Pingers{
		PingCache:    func(ctx context.Context) bool { return false },
		PingDocStore: func(ctx context.Context) bool { return true },
	}
	report := CheckPromotionReadiness(context.Background(), rt, ModeCircuitBreaker, pingers, 4)
	if !report.PromotionReady {
		t.Fatalf("expected cache failure to not block promotion, got %+v", report.Gates)
	}
}

func TestCheckPromotionReadinessDocStoreDownBlocks(t *testing.T) {
	rt := NewRoutingTable()
	pingers := Pingers{
		PingCache:    func(ctx context.Context) bool { return true },
		PingDocStore: func(ctx context.Context) bool { return false },
	}
	report := CheckPromotionReadiness(context.Background(), rt, ModeCircuitBreaker, pingers, 4)
	if report.PromotionReady {
		t.Fatalf("expected document store failure to block promotion")
	}
}
