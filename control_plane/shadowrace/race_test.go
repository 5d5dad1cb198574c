package shadowrace

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestExecuteLiveWinsWithinPatience(t *testing.T) {
	r := NewRace(NewBroadcaster())
	res := r.Execute(context.Background(), "req-1", "/live", 200*time.Millisecond,
		func(ctx context.Context) (interface{}, error) { return "live-data", nil },
		func(ctx context.Context) (interface{}, error) { return "cache-data", nil },
	)
	if res.Source != SourceLive || res.Data != "live-data" {
		t.Fatalf("expected live to win, got source=%v data=%v", res.Source, res.Data)
	}
}

func TestExecuteCacheFallbackOnPatienceTimeout(t *testing.T) {
	r := NewRace(NewBroadcaster())
	res := r.Execute(context.Background(), "req-2", "/live", 50*time.Millisecond,
		func(ctx context.Context) (interface{}, error) {
			time.Sleep(300 * time.Millisecond)
			return "late-live-data", nil
		},
		func(ctx context.Context) (interface{}, error) { return "cache-data", nil },
	)
	if res.Source != SourceCache || !res.LateArrivalPending {
		t.Fatalf("expected cache with late_arrival_pending, got %+v", res)
	}

	time.Sleep(400 * time.Millisecond)
	payload, ok := r.broadcaster.GetLateArrival("req-2")
	if !ok {
		t.Fatal("expected late arrival to be stored")
	}
	if payload == nil {
		t.Fatal("expected non-nil late arrival payload")
	}
	if _, ok := r.broadcaster.GetLateArrival("req-2"); ok {
		t.Fatal("expected late arrival to be one-shot")
	}
}

func TestExecuteBothFail(t *testing.T) {
	r := NewRace(NewBroadcaster())
	res := r.Execute(context.Background(), "req-3", "/live", 20*time.Millisecond,
		func(ctx context.Context) (interface{}, error) {
			time.Sleep(2100 * time.Millisecond)
			return nil, errors.New("live failed")
		},
		func(ctx context.Context) (interface{}, error) { return nil, errors.New("cache failed") },
	)
	if res.Source != SourceFallback || res.Success() {
		t.Fatalf("expected fallback failure, got %+v", res)
	}
}
