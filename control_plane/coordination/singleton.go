// Package coordination keeps the control plane's background loops on
// exactly one replica. The escalation engine, the hysteresis evaluator
// and the pulse producer must never run twice — two escalators would
// double-count mode transitions and two producers would double-write
// every snapshot — so they only run while this node holds the singleton
// lease.
package coordination

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/nexusvanguard/control-plane/control_plane/observability"
	"github.com/nexusvanguard/control-plane/control_plane/store"
)

const (
	// SingletonLeaseKey is the one lease in the system; every guarded
	// loop runs under it.
	SingletonLeaseKey = "nexusvanguard:lease:singleton-loops"

	// epochResource names the durable fencing counter backing the lease.
	epochResource = "singleton_loops"

	maxRenewFailures = 3
)

// NamedLoop is one background loop guarded by the singleton lease. Run
// must block until its context is cancelled.
type NamedLoop struct {
	Name string
	Run  func(ctx context.Context)
}

// LeaseMetadata is the JSON value stored under the lease key. The
// janitor reads it back to fence stale holders, and operators read it
// to see which node is driving which loops.
type LeaseMetadata struct {
	HolderNode string    `json:"holder_node"`
	Epoch      int64     `json:"epoch"`
	Loops      []string  `json:"loops"`
	AcquiredAt time.Time `json:"acquired_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// SingletonRunner drives the acquire/renew cycle for the singleton lease
// and starts or stops its guarded loops as the lease changes hands. The
// fencing epoch comes from the durable store so it stays monotonic even
// if the coordination backend is flushed.
type SingletonRunner struct {
	coord  store.Coordinator
	store  store.Store
	nodeID string
	ttl    time.Duration
	loops  []NamedLoop

	mu         sync.Mutex
	leading    bool
	leaseValue string
	epoch      int64
	loopCancel context.CancelFunc
	lostAt     time.Time
}

// RunnerState is the operator-facing view exposed at /vanguard/admin/stats.
type RunnerState struct {
	Leading bool     `json:"leading"`
	Epoch   int64    `json:"epoch"`
	NodeID  string   `json:"node_id"`
	Loops   []string `json:"loops"`
}

func NewSingletonRunner(coord store.Coordinator, st store.Store, nodeID string, ttl time.Duration, loops ...NamedLoop) *SingletonRunner {
	return &SingletonRunner{
		coord:  coord,
		store:  st,
		nodeID: nodeID,
		ttl:    ttl,
		loops:  loops,
	}
}

func (r *SingletonRunner) Start(ctx context.Context) {
	go r.run(ctx)
}

func (r *SingletonRunner) Leading() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.leading
}

func (r *SingletonRunner) State() RunnerState {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.loops))
	for _, l := range r.loops {
		names = append(names, l.Name)
	}
	return RunnerState{Leading: r.leading, Epoch: r.epoch, NodeID: r.nodeID, Loops: names}
}

// run ticks at ttl/3 while healthy, backing off exponentially (capped at
// 10x ttl) when the coordination backend errors so a Redis outage does
// not turn every replica into a tight retry loop.
func (r *SingletonRunner) run(ctx context.Context) {
	interval := r.ttl / 3
	maxInterval := 10 * r.ttl
	renewFailures := 0

	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			r.stepDown("shutdown")
			r.release()
			return
		case <-timer.C:
		}

		var err error
		if r.Leading() {
			var renewed bool
			renewed, err = r.renew(ctx)
			switch {
			case err != nil:
				renewFailures++
				log.Printf("⚠️ Singleton lease renew failed (%d/%d): %v", renewFailures, maxRenewFailures, err)
				if renewFailures >= maxRenewFailures {
					r.stepDown("renewals failing")
					renewFailures = 0
				}
			case !renewed:
				renewFailures = 0
				r.stepDown("lease taken by another node")
			default:
				renewFailures = 0
			}
		} else {
			var acquired bool
			acquired, err = r.acquire(ctx)
			if err == nil && acquired {
				r.startLoops()
			}
		}

		if err != nil {
			interval *= 2
			if interval > maxInterval {
				interval = maxInterval
			}
		} else {
			interval = r.ttl / 3
		}
		timer.Reset(interval)
	}
}

// acquire bumps the durable fencing epoch first, then tries to claim the
// lease with metadata naming this node and its guarded loops. Claiming
// before bumping would let a flushed backend hand out a stale epoch.
func (r *SingletonRunner) acquire(ctx context.Context) (bool, error) {
	epoch, err := r.store.IncrementDurableEpoch(ctx, epochResource)
	if err != nil {
		return false, err
	}

	names := make([]string, 0, len(r.loops))
	for _, l := range r.loops {
		names = append(names, l.Name)
	}
	now := time.Now().UTC()
	meta := LeaseMetadata{
		HolderNode: r.nodeID,
		Epoch:      epoch,
		Loops:      names,
		AcquiredAt: now,
		ExpiresAt:  now.Add(r.ttl),
	}
	value, err := json.Marshal(meta)
	if err != nil {
		return false, err
	}

	acquired, err := r.coord.AcquireLease(ctx, SingletonLeaseKey, string(value), r.ttl)
	if err != nil {
		return false, err
	}
	if acquired {
		r.mu.Lock()
		r.leaseValue = string(value)
		r.epoch = epoch
		r.mu.Unlock()
	}
	return acquired, nil
}

func (r *SingletonRunner) renew(ctx context.Context) (bool, error) {
	r.mu.Lock()
	value := r.leaseValue
	r.mu.Unlock()
	if value == "" {
		return false, nil
	}
	return r.coord.RenewLease(ctx, SingletonLeaseKey, value, r.ttl)
}

// startLoops marks this node leading and launches every guarded loop
// under one cancellable context; stepDown cancels them all at once.
func (r *SingletonRunner) startLoops() {
	r.mu.Lock()
	if r.leading {
		r.mu.Unlock()
		return
	}
	r.leading = true
	loopCtx, cancel := context.WithCancel(context.Background())
	r.loopCancel = cancel
	epoch := r.epoch
	lostAt := r.lostAt
	r.lostAt = time.Time{}
	r.mu.Unlock()

	names := make([]string, 0, len(r.loops))
	for _, l := range r.loops {
		names = append(names, l.Name)
	}
	if !lostAt.IsZero() {
		observability.LeadershipTransitionDuration.Observe(time.Since(lostAt).Seconds())
	}
	log.Printf("✅ Node %s holds the singleton lease (epoch %d); starting loops: %s", r.nodeID, epoch, strings.Join(names, ", "))
	observability.LeadershipTransitions.WithLabelValues(r.nodeID, "acquired").Inc()
	observability.LeadershipEpoch.WithLabelValues(r.nodeID).Set(float64(epoch))
	observability.LeaderStatus.Set(1)

	for _, loop := range r.loops {
		go func(l NamedLoop) {
			l.Run(loopCtx)
			log.Printf("Singleton loop %s stopped on %s", l.Name, r.nodeID)
		}(loop)
	}
}

func (r *SingletonRunner) stepDown(reason string) {
	r.mu.Lock()
	if !r.leading {
		r.mu.Unlock()
		return
	}
	// leaseValue is left in place: release() still needs it, and the
	// value-matched ReleaseLease is a no-op once another node holds it.
	r.leading = false
	r.lostAt = time.Now()
	if r.loopCancel != nil {
		r.loopCancel()
	}
	r.mu.Unlock()

	observability.LeaderStatus.Set(0)
	observability.LeadershipTransitions.WithLabelValues(r.nodeID, "lost").Inc()
	log.Printf("⚠️ Node %s released the singleton loops: %s", r.nodeID, reason)
}

// release is best-effort on shutdown so the next replica does not wait
// out the full lease TTL.
func (r *SingletonRunner) release() {
	r.mu.Lock()
	value := r.leaseValue
	r.mu.Unlock()
	if value == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.coord.ReleaseLease(ctx, SingletonLeaseKey, value); err != nil {
		log.Printf("⚠️ Failed to release singleton lease: %v", err)
	}
}
