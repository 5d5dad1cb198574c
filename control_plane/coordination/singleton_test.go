package coordination

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/nexusvanguard/control-plane/control_plane/store"
)

// fakeCoordinator is an in-memory store.Coordinator for driving the
// runner and janitor deterministically.
type fakeCoordinator struct {
	mu     sync.Mutex
	leases map[string]string
}

func newFakeCoordinator() *fakeCoordinator {
	return &fakeCoordinator{leases: make(map[string]string)}
}

func (f *fakeCoordinator) AcquireLease(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, held := f.leases[key]; held {
		return false, nil
	}
	f.leases[key] = value
	return true, nil
}

func (f *fakeCoordinator) RenewLease(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.leases[key] == value, nil
}

func (f *fakeCoordinator) ReleaseLease(ctx context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.leases[key] == value {
		delete(f.leases, key)
	}
	return nil
}

func (f *fakeCoordinator) LeaseHolder(ctx context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.leases[key], nil
}

func (f *fakeCoordinator) ScanLeases(ctx context.Context, pattern string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	keys := make([]string, 0, len(f.leases))
	for k := range f.leases {
		keys = append(keys, k)
	}
	return keys, nil
}

func TestSingletonRunnerAcquireIsExclusive(t *testing.T) {
	coord := newFakeCoordinator()
	st := store.NewMemoryStore()
	ctx := context.Background()

	first := NewSingletonRunner(coord, st, "node-a", time.Minute, NamedLoop{Name: "escalator", Run: func(ctx context.Context) { <-ctx.Done() }})
	acquired, err := first.acquire(ctx)
	if err != nil || !acquired {
		t.Fatalf("expected first acquire to succeed, got %v/%v", acquired, err)
	}

	second := NewSingletonRunner(coord, st, "node-b", time.Minute)
	acquired, err = second.acquire(ctx)
	if err != nil || acquired {
		t.Fatalf("expected second acquire to lose, got %v/%v", acquired, err)
	}

	// The loser still bumped the fencing epoch, so the holder's lease
	// metadata is now behind the durable counter.
	value, _ := coord.LeaseHolder(ctx, SingletonLeaseKey)
	var meta LeaseMetadata
	if err := json.Unmarshal([]byte(value), &meta); err != nil {
		t.Fatalf("lease value must be LeaseMetadata JSON: %v", err)
	}
	if meta.HolderNode != "node-a" || len(meta.Loops) != 1 || meta.Loops[0] != "escalator" {
		t.Fatalf("unexpected lease metadata: %+v", meta)
	}
	epoch, _ := st.GetDurableEpoch(ctx, epochResource)
	if epoch != 2 || meta.Epoch != 1 {
		t.Fatalf("expected durable epoch 2 vs lease epoch 1, got %d vs %d", epoch, meta.Epoch)
	}
}

func TestSingletonRunnerLoopsStopOnStepDown(t *testing.T) {
	coord := newFakeCoordinator()
	st := store.NewMemoryStore()
	ctx := context.Background()

	stopped := make(chan string, 2)
	loop := func(name string) NamedLoop {
		return NamedLoop{Name: name, Run: func(ctx context.Context) {
			<-ctx.Done()
			stopped <- name
		}}
	}
	r := NewSingletonRunner(coord, st, "node-a", time.Minute, loop("escalator"), loop("pulse_producer"))

	if ok, err := r.acquire(ctx); err != nil || !ok {
		t.Fatalf("acquire failed: %v/%v", ok, err)
	}
	r.startLoops()
	if !r.Leading() {
		t.Fatal("expected runner to be leading after startLoops")
	}

	r.stepDown("test")
	for i := 0; i < 2; i++ {
		select {
		case <-stopped:
		case <-time.After(time.Second):
			t.Fatal("expected every guarded loop to stop on stepDown")
		}
	}
	if r.Leading() {
		t.Fatal("expected runner to have stood down")
	}
}

func TestLeaseJanitorFencesStaleEpoch(t *testing.T) {
	coord := newFakeCoordinator()
	st := store.NewMemoryStore()
	ctx := context.Background()

	// A holder from epoch 1 that never found out about later elections.
	stale := LeaseMetadata{
		HolderNode: "node-dead",
		Epoch:      1,
		Loops:      []string{"escalator"},
		AcquiredAt: time.Now().UTC(),
		ExpiresAt:  time.Now().UTC().Add(time.Hour),
	}
	value, _ := json.Marshal(stale)
	coord.AcquireLease(ctx, SingletonLeaseKey, string(value), time.Hour)
	st.IncrementDurableEpoch(ctx, epochResource)
	st.IncrementDurableEpoch(ctx, epochResource)

	NewLeaseJanitor(coord, st, time.Minute).sweep(ctx)

	if holder, _ := coord.LeaseHolder(ctx, SingletonLeaseKey); holder != "" {
		t.Fatalf("expected fenced lease to be released, still held: %s", holder)
	}
}

func TestLeaseJanitorReclaimsExpiredLease(t *testing.T) {
	coord := newFakeCoordinator()
	st := store.NewMemoryStore()
	ctx := context.Background()

	expired := LeaseMetadata{
		HolderNode: "node-gone",
		Epoch:      1,
		ExpiresAt:  time.Now().UTC().Add(-time.Minute),
	}
	value, _ := json.Marshal(expired)
	coord.AcquireLease(ctx, SingletonLeaseKey, string(value), time.Hour)
	st.IncrementDurableEpoch(ctx, epochResource)

	NewLeaseJanitor(coord, st, time.Minute).sweep(ctx)

	if holder, _ := coord.LeaseHolder(ctx, SingletonLeaseKey); holder != "" {
		t.Fatalf("expected expired lease to be reclaimed, still held: %s", holder)
	}
}
