package queue

import (
	"container/heap"
	"time"
)

// taskHeap implements heap.Interface with an anti-starvation aging
// formula: effective priority improves the longer a task waits, so
// low-priority work is never starved forever.
type taskHeap []*Task

const agingDivisor = 10 * time.Second

func effectivePriority(t *Task, now time.Time) float64 {
	wait := now.Sub(t.SubmittedAt)
	return float64(t.Priority) - float64(wait)/float64(agingDivisor)
}

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	now := time.Now()
	pi, pj := effectivePriority(h[i], now), effectivePriority(h[j], now)
	if pi != pj {
		return pi < pj
	}
	return h[i].SubmittedAt.Before(h[j].SubmittedAt)
}

func (h taskHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *taskHeap) Push(x interface{}) {
	t := x.(*Task)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *taskHeap) Pop() interface{} {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}

var _ heap.Interface = (*taskHeap)(nil)
