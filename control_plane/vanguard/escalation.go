// Composite health score and mode escalation engine: a weighted 0-100
// score over incident load, subsystem health and endpoint error breadth
// drives the operating mode.
package vanguard

import (
	"context"
	"log"
	"math"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/nexusvanguard/control-plane/control_plane/observability"
)

const escalationInterval = 120 * time.Second

// CompositeScore is the weighted sum 0.40*incident_score +
// 0.35*subsystem_score + 0.25*endpoint_error_score, floored at 20 so the
// score never reads as fully flatlined and capped at 100.
func CompositeScore(incidentScore, subsystemScore, endpointErrorScore float64) float64 {
	score := 0.40*incidentScore + 0.35*subsystemScore + 0.25*endpointErrorScore
	if score < 20 {
		return 20
	}
	if score > 100 {
		return 100
	}
	return score
}

// IncidentScore decays logarithmically with the active-incident count
// (RED incidents count double) and earns a resolution-ratio bonus of up
// to +10.
func IncidentScore(active, red, resolved int) float64 {
	weighted := float64(active + red)
	score := 100 - 20*math.Log2(1+weighted)
	if score < 0 {
		score = 0
	}
	if active+resolved > 0 {
		score += 10 * float64(resolved) / float64(active+resolved)
	}
	if score > 100 {
		score = 100
	}
	return score
}

// The six subsystems of the weighted rollup.
const (
	SubsystemRegistry = "registry"
	SubsystemStore    = "incident_store"
	SubsystemAI       = "ai_triage"
	SubsystemVaccine  = "vaccine"
	SubsystemSurgeon  = "surgeon"
	SubsystemKVStore  = "kv_store"
)

// subsystemWeights sum to 100: the registry and incident store carry the
// bulk because nothing else functions without them, AI triage and the
// vaccine engine degrade to fallbacks, and the surgeon and KV store are
// cheapest to lose.
var subsystemWeights = map[string]float64{
	SubsystemRegistry: 30,
	SubsystemStore:    25,
	SubsystemAI:       20,
	SubsystemVaccine:  15,
	SubsystemSurgeon:  5,
	SubsystemKVStore:  5,
}

// SubsystemScore is a weighted boolean rollup: each subsystem that is up
// contributes its weight. Subsystems missing from the map count as down.
func SubsystemScore(up map[string]bool) float64 {
	score := 0.0
	for name, weight := range subsystemWeights {
		if up[name] {
			score += weight
		}
	}
	return score
}

// EndpointErrorScore decays logarithmically with the count of distinct
// endpoints currently carrying an active incident.
func EndpointErrorScore(distinctEndpointsWithIncidents int) float64 {
	score := 100 - 25*math.Log2(1+float64(distinctEndpointsWithIncidents))
	if score < 0 {
		return 0
	}
	return score
}

// Escalator owns the current operating mode and transitions it on the
// fixed interval: score < 45 -> CIRCUIT_BREAKER from any
// mode; score >= 55 while in CIRCUIT_BREAKER -> SILENT_OBSERVER (the team
// must explicitly clear SILENT_OBSERVER back to NORMAL; this engine
// never does that automatically, since it requires human sign-off.
type Escalator struct {
	mu        sync.Mutex
	mode      Mode
	lastScore float64
	scoreFunc func() (incident, subsystem, endpointError float64)
	onChange  func(old, new Mode, score float64)
}

func NewEscalator(scoreFunc func() (incident, subsystem, endpointError float64), onChange func(old, new Mode, score float64)) *Escalator {
	return &Escalator{mode: ModeNormal, scoreFunc: scoreFunc, onChange: onChange}
}

func (e *Escalator) Mode() Mode {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mode
}

func (e *Escalator) LastScore() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastScore
}

// Evaluate computes the composite score once and applies the transition
// rule, returning the (possibly unchanged) mode.
func (e *Escalator) Evaluate() Mode {
	incident, subsystem, endpointErr := e.scoreFunc()
	score := CompositeScore(incident, subsystem, endpointErr)
	observability.CompositeHealthScore.Set(score)

	e.mu.Lock()
	e.lastScore = score
	old := e.mode

	switch {
	case score < 45:
		e.mode = ModeCircuitBreaker
	case e.mode == ModeCircuitBreaker && score >= 55:
		e.mode = ModeSilentObserver
	}
	newMode := e.mode
	e.mu.Unlock()

	if old != newMode {
		log.Printf("⚠️ Vanguard mode %s -> %s (composite score %.1f)", old, newMode, score)
		observability.ModeTransitions.WithLabelValues(string(old), string(newMode)).Inc()
		if e.onChange != nil {
			e.onChange(old, newMode, score)
		}
	}
	return newMode
}

// ForceMode lets an operator set mode directly (e.g. clearing
// SILENT_OBSERVER back to NORMAL after investigation).
func (e *Escalator) ForceMode(m Mode) {
	e.mu.Lock()
	old := e.mode
	e.mode = m
	score := e.lastScore
	e.mu.Unlock()

	if old != m {
		log.Printf("⚠️ Vanguard mode %s -> %s (operator override)", old, m)
		observability.ModeTransitions.WithLabelValues(string(old), string(m)).Inc()
		if e.onChange != nil {
			e.onChange(old, m, score)
		}
	}
}

// Run blocks until ctx is cancelled, re-evaluating on the fixed interval.
// Scheduled with robfig/cron rather than a raw ticker so the interval is
// expressed the same declarative way as the rest of the operational
// scheduling in this codebase.
func (e *Escalator) Run(ctx context.Context) {
	c := cron.New()
	_, err := c.AddFunc("@every 120s", func() { e.Evaluate() })
	if err != nil {
		// A literal @every spec never fails to parse.
		escalatorFallbackLoop(ctx, e)
		return
	}
	c.Start()
	defer c.Stop()
	<-ctx.Done()
}

func escalatorFallbackLoop(ctx context.Context, e *Escalator) {
	ticker := time.NewTicker(escalationInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.Evaluate()
		}
	}
}
