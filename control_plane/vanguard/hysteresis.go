// Hysteresis evaluator for the AI triage dependency: 3 consecutive
// unhealthy probes activate fallback routing, 2 consecutive healthy
// probes deactivate it, avoiding flapping on a single blip.
package vanguard

import (
	"context"
	"sync"
	"time"

	"github.com/nexusvanguard/control-plane/control_plane/observability"
)

const (
	unhealthyThreshold = 3
	healthyThreshold   = 2
)

// ProbeFunc reports whether the AI dependency answered successfully.
type ProbeFunc func(ctx context.Context) bool

type HysteresisEvaluator struct {
	mu               sync.Mutex
	consecutiveOK    int
	consecutiveBad   int
	routingTable     *RoutingTable
	dependencyName   string
	probe            ProbeFunc
	interval         time.Duration
	skip             func() bool // true when mode == CIRCUIT_BREAKER
}

func NewHysteresisEvaluator(rt *RoutingTable, dependencyName string, probe ProbeFunc, interval time.Duration, skip func() bool) *HysteresisEvaluator {
	return &HysteresisEvaluator{routingTable: rt, dependencyName: dependencyName, probe: probe, interval: interval, skip: skip}
}

// Run blocks until ctx is cancelled, probing on the configured interval.
func (h *HysteresisEvaluator) Run(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.tick(ctx)
		}
	}
}

// tick is a separate method so in-package tests can drive it
// deterministically without waiting on the ticker.
func (h *HysteresisEvaluator) tick(ctx context.Context) {
	if h.skip != nil && h.skip() {
		return
	}

	ok := h.probe(ctx)

	h.mu.Lock()
	defer h.mu.Unlock()

	if ok {
		h.consecutiveOK++
		h.consecutiveBad = 0
		if h.consecutiveOK >= healthyThreshold && h.routingTable.IsFallbackActive(h.dependencyName) {
			h.routingTable.DeactivateFallback(h.dependencyName)
			observability.HysteresisStateChanges.WithLabelValues(h.dependencyName, "deactivate").Inc()
		}
		return
	}

	h.consecutiveBad++
	h.consecutiveOK = 0
	if h.consecutiveBad >= unhealthyThreshold && !h.routingTable.IsFallbackActive(h.dependencyName) {
		if h.routingTable.ActivateFallback(h.dependencyName, "hysteresis: consecutive probe failures") {
			observability.HysteresisStateChanges.WithLabelValues(h.dependencyName, "activate").Inc()
		}
	}
}
