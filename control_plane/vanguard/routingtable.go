// RoutingTable maps logical route keys to primary/fallback handlers
// with an activation flag, flipped by hysteresis and honored by the
// triage pipeline.
package vanguard

import (
	"sync"
	"time"

	"github.com/nexusvanguard/control-plane/control_plane/observability"
	"github.com/nexusvanguard/control-plane/control_plane/registry"
)

type RouteEntry struct {
	RouteKey         string     `json:"route_key"`
	PrimaryHandler   string     `json:"primary_handler"`
	FallbackHandler  string     `json:"fallback_handler,omitempty"`
	FallbackActive   bool       `json:"fallback_active"`
	ActivationReason string     `json:"activation_reason,omitempty"`
	ActivatedAt      *time.Time `json:"activated_at,omitempty"`
}

// RoutingTable never lets fallback routing touch a blast-radius-denylisted
// key: health and admin surfaces can neither be registered nor activated.
type RoutingTable struct {
	mu      sync.Mutex
	entries map[string]*RouteEntry
}

// NewRoutingTable seeds the default gemini_triage_path route: AI
// analyzer primary, heuristic engine fallback.
func NewRoutingTable() *RoutingTable {
	rt := &RoutingTable{entries: make(map[string]*RouteEntry)}
	rt.entries["gemini_triage_path"] = &RouteEntry{
		RouteKey:        "gemini_triage_path",
		PrimaryHandler:  "ai_analyzer",
		FallbackHandler: "heuristic_engine",
	}
	return rt
}

// Register adds a route. Denylisted keys are rejected so remediation can
// never redirect a health or admin surface.
func (rt *RoutingTable) Register(routeKey, primaryHandler, fallbackHandler string) bool {
	if registry.IsDenylisted(routeKey) {
		return false
	}
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if _, exists := rt.entries[routeKey]; exists {
		return false
	}
	rt.entries[routeKey] = &RouteEntry{
		RouteKey:        routeKey,
		PrimaryHandler:  primaryHandler,
		FallbackHandler: fallbackHandler,
	}
	return true
}

func (rt *RoutingTable) Get(routeKey string) (RouteEntry, bool) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	e, ok := rt.entries[routeKey]
	if !ok {
		return RouteEntry{}, false
	}
	return *e, true
}

// IsFallbackActive reports whether the route is currently served by its
// fallback handler; unknown keys default to false (primary path).
func (rt *RoutingTable) IsFallbackActive(routeKey string) bool {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	e, ok := rt.entries[routeKey]
	return ok && e.FallbackActive
}

// ActivateFallback flips a route to its fallback handler. Idempotent:
// re-activating an active route returns true without touching state.
// Returns false for denylisted keys, unknown keys, and routes that have
// no fallback handler to flip to.
func (rt *RoutingTable) ActivateFallback(routeKey, reason string) bool {
	if registry.IsDenylisted(routeKey) {
		return false
	}

	rt.mu.Lock()
	defer rt.mu.Unlock()
	e, ok := rt.entries[routeKey]
	if !ok || e.FallbackHandler == "" {
		return false
	}
	if e.FallbackActive {
		return true
	}
	now := time.Now().UTC()
	e.FallbackActive = true
	e.ActivatedAt = &now
	e.ActivationReason = reason
	observability.FallbackActive.WithLabelValues(routeKey).Set(1)
	return true
}

// DeactivateFallback restores the primary handler and clears activation
// state, returning how long the fallback was active (zero if it wasn't).
func (rt *RoutingTable) DeactivateFallback(routeKey string) time.Duration {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	e, ok := rt.entries[routeKey]
	if !ok || !e.FallbackActive {
		return 0
	}
	var active time.Duration
	if e.ActivatedAt != nil {
		active = time.Since(*e.ActivatedAt)
	}
	e.FallbackActive = false
	e.ActivatedAt = nil
	e.ActivationReason = ""
	observability.FallbackActive.WithLabelValues(routeKey).Set(0)
	return active
}

func (rt *RoutingTable) Snapshot() []RouteEntry {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	out := make([]RouteEntry, 0, len(rt.entries))
	for _, e := range rt.entries {
		out = append(out, *e)
	}
	return out
}
