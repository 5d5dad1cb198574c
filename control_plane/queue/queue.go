package queue

import (
	"container/heap"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nexusvanguard/control-plane/control_plane/observability"
)

const (
	completedCap      = 100
	completedTrimTo   = 50
	processPollPeriod = 1 * time.Second
)

// PriorityQueue is the single process-wide task queue, ordered by
// (priority, submitted_at) with per-priority semaphores capping
// concurrent execution.
type PriorityQueue struct {
	mu   sync.Mutex
	heap taskHeap

	semaphores map[Priority]chan struct{}

	completedMu sync.Mutex
	completed   map[string]*TaskResult

	breaker *CircuitBreaker

	wake   chan struct{}
	cancel context.CancelFunc
}

func New(breaker *CircuitBreaker) *PriorityQueue {
	q := &PriorityQueue{
		semaphores: make(map[Priority]chan struct{}),
		completed:  make(map[string]*TaskResult),
		breaker:    breaker,
		wake:       make(chan struct{}, 1),
	}
	heap.Init(&q.heap)
	for p, limit := range ConcurrencyLimits {
		q.semaphores[p] = make(chan struct{}, limit)
	}
	return q
}

// Start launches the background processing loop. Cancel ctx to stop it.
func (q *PriorityQueue) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	q.cancel = cancel
	go q.processLoop(ctx)
}

func (q *PriorityQueue) Stop() {
	if q.cancel != nil {
		q.cancel()
	}
}

// Submit enqueues fn at the given priority and returns a task id
// immediately. The queue-saturation breaker (if configured) may reject
// submission with ErrQueueSaturated.
func (q *PriorityQueue) Submit(priority Priority, fn func() (interface{}, error)) (string, error) {
	if q.breaker != nil && !q.breaker.ShouldAdmit(q.Len()) {
		observability.QueueRejections.WithLabelValues("saturated").Inc()
		return "", ErrQueueSaturated
	}

	id := uuid.NewString()
	task := &Task{ID: id, Priority: priority, SubmittedAt: time.Now(), Fn: fn}

	q.mu.Lock()
	heap.Push(&q.heap, task)
	q.mu.Unlock()
	observability.QueueDepth.WithLabelValues(priority.String()).Inc()

	q.recordStatus(id, Pending, time.Time{}, time.Time{}, nil, nil)
	select {
	case q.wake <- struct{}{}:
	default:
	}
	return id, nil
}

// SubmitAndWait blocks the caller up to timeout, polling the completed
// table for the task's result.
func (q *PriorityQueue) SubmitAndWait(priority Priority, fn func() (interface{}, error), timeout time.Duration) (*TaskResult, error) {
	id, err := q.Submit(priority, fn)
	if err != nil {
		return nil, err
	}
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if r, ok := q.GetTaskStatus(id); ok && (r.Status == Completed || r.Status == Failed) {
			return r, nil
		}
		time.Sleep(50 * time.Millisecond)
	}
	return nil, fmt.Errorf("task %s timed out after %s", id, timeout)
}

// ExecuteImmediate bypasses the queue but still respects the priority's
// semaphore, for hot-path requests that cannot wait behind background work.
func (q *PriorityQueue) ExecuteImmediate(priority Priority, fn func() (interface{}, error)) (interface{}, error) {
	sem := q.semaphores[priority]
	sem <- struct{}{}
	defer func() { <-sem }()
	return fn()
}

func (q *PriorityQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.heap.Len()
}

func (q *PriorityQueue) GetTaskStatus(id string) (*TaskResult, bool) {
	q.completedMu.Lock()
	defer q.completedMu.Unlock()
	r, ok := q.completed[id]
	return r, ok
}

func (q *PriorityQueue) GetQueueDepth() int { return q.Len() }

type Stats struct {
	Depth     int
	Completed int
}

func (q *PriorityQueue) GetStats() Stats {
	q.completedMu.Lock()
	n := len(q.completed)
	q.completedMu.Unlock()
	return Stats{Depth: q.Len(), Completed: n}
}

func (q *PriorityQueue) ClearCompleted() {
	q.completedMu.Lock()
	defer q.completedMu.Unlock()
	q.completed = make(map[string]*TaskResult)
}

func (q *PriorityQueue) processLoop(ctx context.Context) {
	ticker := time.NewTicker(processPollPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-q.wake:
			q.drain(ctx)
		case <-ticker.C:
			q.drain(ctx)
		}
	}
}

func (q *PriorityQueue) drain(ctx context.Context) {
	for {
		q.mu.Lock()
		if q.heap.Len() == 0 {
			q.mu.Unlock()
			return
		}
		task := heap.Pop(&q.heap).(*Task)
		q.mu.Unlock()
		observability.QueueDepth.WithLabelValues(task.Priority.String()).Dec()

		sem := q.semaphores[task.Priority]
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			return
		}
		go q.execute(task, sem)
	}
}

func (q *PriorityQueue) execute(task *Task, sem chan struct{}) {
	defer func() { <-sem }()
	started := time.Now()
	observability.QueueTaskWaitSeconds.Observe(started.Sub(task.SubmittedAt).Seconds())
	q.recordStatus(task.ID, Running, started, time.Time{}, nil, nil)

	result, err := safeInvoke(task.Fn)

	ended := time.Now()
	status := Completed
	if err != nil {
		status = Failed
	}
	q.recordStatus(task.ID, status, started, ended, result, err)
}

func safeInvoke(fn func() (interface{}, error)) (result interface{}, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("task panicked: %v", p)
		}
	}()
	return fn()
}

func (q *PriorityQueue) recordStatus(id string, status Status, started, ended time.Time, result interface{}, err error) {
	q.completedMu.Lock()
	defer q.completedMu.Unlock()
	q.completed[id] = &TaskResult{ID: id, Status: status, Result: result, Err: err, StartedAt: started, EndedAt: ended}
	if len(q.completed) > completedCap {
		q.trimCompletedLocked()
	}
}

// trimCompletedLocked keeps only the most-recent completedTrimTo entries
// by EndedAt once the table passes completedCap.
func (q *PriorityQueue) trimCompletedLocked() {
	type kv struct {
		id  string
		end time.Time
	}
	entries := make([]kv, 0, len(q.completed))
	for id, r := range q.completed {
		entries = append(entries, kv{id: id, end: r.EndedAt})
	}
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && entries[j].end.After(entries[j-1].end); j-- {
			entries[j], entries[j-1] = entries[j-1], entries[j]
		}
	}
	keep := make(map[string]struct{}, completedTrimTo)
	for i := 0; i < completedTrimTo && i < len(entries); i++ {
		keep[entries[i].id] = struct{}{}
	}
	for id := range q.completed {
		if _, ok := keep[id]; !ok {
			delete(q.completed, id)
		}
	}
}
