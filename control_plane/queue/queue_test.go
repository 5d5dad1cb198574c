package queue

import (
	"context"
	"testing"
	"time"
)

func TestSubmitAndWaitReturnsResult(t *testing.T) {
	q := New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	result, err := q.SubmitAndWait(High, func() (interface{}, error) {
		return 42, nil
	}, time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != Completed || result.Result != 42 {
		t.Fatalf("expected completed/42, got %+v", result)
	}
}

func TestExecuteImmediateRespectsSemaphore(t *testing.T) {
	q := New(nil)
	result, err := q.ExecuteImmediate(Critical, func() (interface{}, error) {
		return "ok", nil
	})
	if err != nil || result != "ok" {
		t.Fatalf("unexpected result %v err %v", result, err)
	}
}

func TestCircuitBreakerOpensOnDepth(t *testing.T) {
	b := NewCircuitBreaker(5)
	if !b.ShouldAdmit(2) {
		t.Fatal("expected admission under threshold")
	}
	if b.ShouldAdmit(5) {
		t.Fatal("expected rejection at threshold")
	}
	if b.GetState() != StateOpen {
		t.Fatalf("expected open state, got %v", b.GetState())
	}
}

func TestAgingImprovesEffectivePriority(t *testing.T) {
	now := time.Now()
	old := &Task{Priority: Background, SubmittedAt: now.Add(-1 * time.Minute)}
	if effectivePriority(old, now) >= float64(Background) {
		t.Fatalf("expected aging to lower effective priority below static value, got %f", effectivePriority(old, now))
	}
}
