package shadowrace

import (
	"context"
	"sync"
	"time"
)

type Source string

const (
	SourceLive     Source = "live"
	SourceCache    Source = "cache"
	SourceFallback Source = "fallback"
	SourceStale    Source = "stale"
)

type Result struct {
	Data              interface{}
	Source            Source
	LateArrivalPending bool
	ExecutionTime     time.Duration
	Err               error
}

func (r Result) Success() bool { return r.Err == nil }

// lastResortWait is how much extra time is given to the live branch if
// the cache fallback also fails.
const lastResortWait = 2 * time.Second

// lateArrivalTTL is how long a late arrival is retained for one-shot pickup.
const lateArrivalTTL = 5 * time.Minute

// Race executes the patient-data pattern: race liveFn against patience_ms,
// falling back to cacheFn on timeout without cancelling the live branch.
// When the late live result eventually arrives it is published to the
// broadcaster and stashed for one-shot retrieval.
type Race struct {
	broadcaster *Broadcaster

	pendingMu sync.Mutex
	pending   map[string]context.CancelFunc

	stats stats
}

func NewRace(b *Broadcaster) *Race {
	return &Race{broadcaster: b, pending: make(map[string]context.CancelFunc)}
}

type liveResult struct {
	data interface{}
	err  error
}

// Execute runs liveFn/cacheFn. liveFn and cacheFn both take a
// context and return (data, error).
func (r *Race) Execute(ctx context.Context, requestID, endpoint string, patience time.Duration,
	liveFn func(context.Context) (interface{}, error),
	cacheFn func(context.Context) (interface{}, error)) Result {

	start := time.Now()
	liveCtx, cancel := context.WithCancel(ctx)

	r.pendingMu.Lock()
	r.pending[requestID] = cancel
	r.pendingMu.Unlock()

	liveCh := make(chan liveResult, 1)
	go func() {
		data, err := liveFn(liveCtx)
		liveCh <- liveResult{data: data, err: err}
	}()

	timer := time.NewTimer(patience)
	defer timer.Stop()

	liveFailed := false
	var liveErr error
	select {
	case res := <-liveCh:
		r.clearPending(requestID)
		r.stats.recordLive(res.err == nil)
		if res.err == nil {
			return Result{Data: res.data, Source: SourceLive, ExecutionTime: time.Since(start)}
		}
		// Live failed before patience elapsed: fall through to cache.
		liveFailed = true
		liveErr = res.err
	case <-timer.C:
		// Patience elapsed; live keeps running in the background.
	}

	cacheData, cacheErr := cacheFn(ctx)
	if cacheErr == nil {
		r.stats.recordCacheServed()
		if liveFailed {
			// Nothing is still in flight; no late arrival will follow.
			return Result{Data: cacheData, Source: SourceCache, ExecutionTime: time.Since(start)}
		}
		go r.handleLateArrival(requestID, endpoint, liveCh, start)
		return Result{Data: cacheData, Source: SourceCache, LateArrivalPending: true, ExecutionTime: time.Since(start)}
	}

	if liveFailed {
		r.stats.recordFailure()
		return Result{Source: SourceFallback, Err: liveErr, ExecutionTime: time.Since(start)}
	}

	// Cache also failed: last-resort wait on live.
	select {
	case res := <-liveCh:
		r.clearPending(requestID)
		if res.err == nil {
			r.stats.recordLive(true)
			return Result{Data: res.data, Source: SourceLive, ExecutionTime: time.Since(start)}
		}
		r.stats.recordFailure()
		return Result{Source: SourceFallback, Err: res.err, ExecutionTime: time.Since(start)}
	case <-time.After(lastResortWait):
		go r.handleLateArrival(requestID, endpoint, liveCh, start)
		r.stats.recordFailure()
		return Result{Source: SourceFallback, Err: cacheErr, ExecutionTime: time.Since(start)}
	}
}

func (r *Race) handleLateArrival(requestID, endpoint string, liveCh chan liveResult, start time.Time) {
	res := <-liveCh
	r.clearPending(requestID)
	if res.err != nil {
		return
	}
	delay := time.Since(start)
	r.stats.recordLateArrival()
	r.broadcaster.Push("simulation_update", map[string]interface{}{
		"request_id": requestID,
		"endpoint":   endpoint,
		"data":       res.data,
		"delay_ms":   delay.Milliseconds(),
	})
	r.broadcaster.StoreLateArrival(requestID, map[string]interface{}{
		"request_id": requestID,
		"endpoint":   endpoint,
		"data":       res.data,
		"delay_ms":   delay.Milliseconds(),
	}, lateArrivalTTL)
}

func (r *Race) clearPending(requestID string) {
	r.pendingMu.Lock()
	defer r.pendingMu.Unlock()
	delete(r.pending, requestID)
}

// Cancel cancels a pending live task (the loser of a race that was not
// detached, or an aborted request).
func (r *Race) Cancel(requestID string) {
	r.pendingMu.Lock()
	defer r.pendingMu.Unlock()
	if cancel, ok := r.pending[requestID]; ok {
		cancel()
		delete(r.pending, requestID)
	}
}

func (r *Race) CancelAllPending() {
	r.pendingMu.Lock()
	defer r.pendingMu.Unlock()
	for id, cancel := range r.pending {
		cancel()
		delete(r.pending, id)
	}
}

func (r *Race) Stats() Stats { return r.stats.snapshot() }
