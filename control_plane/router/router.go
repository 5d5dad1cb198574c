// Package router implements the adaptive router's recommend() decision:
// cache/live/race strategy selection based on endpoint config and
// dependency health.
package router

import (
	"time"

	"github.com/nexusvanguard/control-plane/control_plane/health"
	"github.com/nexusvanguard/control-plane/control_plane/observability"
	"github.com/nexusvanguard/control-plane/control_plane/registry"
)

type Strategy string

const (
	CacheOnly Strategy = "cache_only"
	LiveOnly  Strategy = "live_only"
	Race      Strategy = "race"
	Fallback  Strategy = "fallback"
)

type RouteDecision struct {
	Strategy       Strategy
	PatienceMS     int64
	TargetMS       int64
	Rationale      string
	CooldownActive bool
}

type RequestContext struct {
	ForceFresh bool
}

const (
	defaultBaseTimeout     = 2000 * time.Millisecond
	defaultAdaptiveBuffer  = 500 * time.Millisecond
)

// Recommend walks the strategy decision tree in order: unknown endpoint,
// cooldowns, force-fresh, then the default race.
func Recommend(path string, ctx RequestContext, reg *registry.Registry, gate *health.Gate) RouteDecision {
	decision := recommend(path, ctx, reg, gate)
	observability.RoutingDecisions.WithLabelValues(string(decision.Strategy)).Inc()
	return decision
}

func recommend(path string, ctx RequestContext, reg *registry.Registry, gate *health.Gate) RouteDecision {
	cfg, ok := reg.Get(path)
	if !ok {
		return RouteDecision{
			Strategy:   LiveOnly,
			PatienceMS: defaultBaseTimeout.Milliseconds() + defaultAdaptiveBuffer.Milliseconds(),
			TargetMS:   defaultBaseTimeout.Milliseconds() + defaultAdaptiveBuffer.Milliseconds(),
			Rationale:  "unknown endpoint, defaulting to live",
		}
	}

	if gate.IsInCooldown(path) {
		return RouteDecision{Strategy: CacheOnly, CooldownActive: true, Rationale: "endpoint itself is in cooldown"}
	}
	for _, dep := range cfg.Dependencies {
		if gate.IsInCooldown(dep) {
			return RouteDecision{Strategy: CacheOnly, CooldownActive: true, Rationale: "dependency in cooldown: " + dep}
		}
	}

	allHealthy := true
	for _, dep := range cfg.Dependencies {
		if !gate.IsServiceAvailable(dep) {
			allHealthy = false
			break
		}
	}
	if allHealthy && ctx.ForceFresh {
		return RouteDecision{Strategy: LiveOnly, Rationale: "dependencies healthy and force_fresh requested"}
	}

	patience := cfg.BaseTimeout
	if patience == 0 {
		patience = defaultBaseTimeout
	}
	buffer := cfg.AdaptiveBuffer
	if buffer == 0 {
		buffer = defaultAdaptiveBuffer
	}

	return RouteDecision{
		Strategy:   Race,
		PatienceMS: patience.Milliseconds(),
		TargetMS:   patience.Milliseconds() + buffer.Milliseconds(),
		Rationale:  "racing live against cache within patience budget",
	}
}
