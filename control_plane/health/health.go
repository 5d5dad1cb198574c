// Package health implements the Health Gate: per-service health tracking
// with cooldowns and a system-wide aggregate snapshot.
package health

import (
	"sync"
	"time"
)

type Status string

const (
	Healthy  Status = "healthy"
	Degraded Status = "degraded"
	Critical Status = "critical"
	Down     Status = "down"
	Cooldown Status = "cooldown"
)

type ServiceType string

const (
	Core      ServiceType = "core"
	External  ServiceType = "external"
	Component ServiceType = "component"
)

const DefaultCooldownSeconds = 60

// ServiceHealth is the per-service health record.
type ServiceHealth struct {
	Name           string      `json:"name"`
	ServiceType    ServiceType `json:"service_type"`
	Status         Status      `json:"status"`
	LastCheck      time.Time   `json:"last_check"`
	ErrorCount     int         `json:"error_count"`
	LastError      string      `json:"last_error,omitempty"`
	CooldownUntil  *time.Time  `json:"cooldown_until,omitempty"`
	ResponseTimeMS *int64      `json:"response_time_ms,omitempty"`
}

// IsAvailable is false when status is down/cooldown or cooldown_until is
// still in the future.
func (s *ServiceHealth) IsAvailable(now time.Time) bool {
	if s.Status == Down || s.Status == Cooldown {
		return false
	}
	if s.CooldownUntil != nil && s.CooldownUntil.After(now) {
		return false
	}
	return true
}

// SystemHealth is the aggregate view.
type SystemHealth struct {
	Overall      Status                   `json:"overall"`
	Services     map[string]ServiceHealth `json:"services"`
	CheckedAt    time.Time                `json:"checked_at"`
	DownCount    int                      `json:"down_count"`
	CooldownCount int                     `json:"cooldown_count"`
}

// Gate is the process-local Health Gate. Internal state is protected by
// a mutex; callers never observe a partially-updated ServiceHealth.
type Gate struct {
	mu       sync.Mutex
	services map[string]*ServiceHealth
}

func NewGate() *Gate {
	return &Gate{services: make(map[string]*ServiceHealth)}
}

// Register seeds a service entry at boot for core/external/component
// dependencies.
func (g *Gate) Register(name string, st ServiceType) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.services[name]; ok {
		return
	}
	g.services[name] = &ServiceHealth{
		Name:        name,
		ServiceType: st,
		Status:      Healthy,
		LastCheck:   time.Now().UTC(),
	}
}

func (g *Gate) RecordSuccess(name string, rttMS int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	svc := g.get(name)
	svc.LastCheck = time.Now().UTC()
	rtt := rttMS
	svc.ResponseTimeMS = &rtt
	if svc.ErrorCount > 0 {
		svc.ErrorCount--
	}
	if svc.ErrorCount == 0 {
		svc.Status = Healthy
	}
}

func (g *Gate) RecordError(name, message string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	svc := g.get(name)
	svc.LastCheck = time.Now().UTC()
	svc.LastError = message
	svc.ErrorCount++
	switch {
	case svc.ErrorCount >= 5:
		svc.Status = Down
	case svc.ErrorCount >= 3:
		svc.Status = Degraded
	}
}

// RecordRateLimit is the combined operation: enters cooldown and records an
// error.
func (g *Gate) RecordRateLimit(name string, retryAfterSeconds int) {
	g.EnterCooldown(name, retryAfterSeconds)
	g.RecordError(name, "rate limited")
}

func (g *Gate) EnterCooldown(name string, seconds int) {
	if seconds <= 0 {
		seconds = DefaultCooldownSeconds
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	svc := g.get(name)
	until := time.Now().UTC().Add(time.Duration(seconds) * time.Second)
	svc.CooldownUntil = &until
	svc.Status = Cooldown
}

func (g *Gate) ExitCooldown(name string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	svc := g.get(name)
	svc.CooldownUntil = nil
	if svc.ErrorCount == 0 {
		svc.Status = Healthy
	}
}

func (g *Gate) IsInCooldown(name string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	svc := g.get(name)
	now := time.Now().UTC()
	if svc.CooldownUntil != nil && svc.CooldownUntil.After(now) {
		return true
	}
	if svc.CooldownUntil != nil {
		svc.CooldownUntil = nil
		if svc.Status == Cooldown {
			svc.Status = Healthy
		}
	}
	return false
}

func (g *Gate) GetCooldownRemaining(name string) time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	svc := g.get(name)
	if svc.CooldownUntil == nil {
		return 0
	}
	remaining := svc.CooldownUntil.Sub(time.Now().UTC())
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (g *Gate) GetActiveCooldowns() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := time.Now().UTC()
	var names []string
	for name, svc := range g.services {
		if svc.CooldownUntil != nil && svc.CooldownUntil.After(now) {
			names = append(names, name)
		}
	}
	return names
}

func (g *Gate) IsServiceAvailable(name string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	svc, ok := g.services[name]
	if !ok {
		return true
	}
	return svc.IsAvailable(time.Now().UTC())
}

func (g *Gate) GetServiceStatus(name string) (ServiceHealth, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	svc, ok := g.services[name]
	if !ok {
		return ServiceHealth{}, false
	}
	return *svc, true
}

// CheckAll atomically cleans expired cooldowns and rebuilds the
// SystemHealth snapshot. Results are consumed, never cached across
// requests.
func (g *Gate) CheckAll() SystemHealth {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now().UTC()
	snapshot := make(map[string]ServiceHealth, len(g.services))
	downCount, cooldownCount := 0, 0
	coreDown := false

	for name, svc := range g.services {
		if svc.CooldownUntil != nil && !svc.CooldownUntil.After(now) {
			svc.CooldownUntil = nil
			if svc.Status == Cooldown && svc.ErrorCount == 0 {
				svc.Status = Healthy
			}
		}
		if svc.Status == Down {
			downCount++
			if svc.ServiceType == Core {
				coreDown = true
			}
		}
		if svc.CooldownUntil != nil {
			cooldownCount++
		}
		snapshot[name] = *svc
	}

	overall := Healthy
	total := len(g.services)
	degradedOrCooldown := false
	for _, svc := range snapshot {
		if svc.Status == Degraded || svc.CooldownUntil != nil {
			degradedOrCooldown = true
		}
	}

	switch {
	case coreDown:
		overall = Critical
	case total > 0 && downCount*2 > total:
		overall = Down
	case downCount > 0 || cooldownCount > 2:
		overall = Critical
	case degradedOrCooldown:
		overall = Degraded
	default:
		overall = Healthy
	}

	return SystemHealth{
		Overall:       overall,
		Services:      snapshot,
		CheckedAt:     now,
		DownCount:     downCount,
		CooldownCount: cooldownCount,
	}
}

func (g *Gate) get(name string) *ServiceHealth {
	svc, ok := g.services[name]
	if !ok {
		svc = &ServiceHealth{Name: name, ServiceType: Component, Status: Healthy, LastCheck: time.Now().UTC()}
		g.services[name] = svc
	}
	return svc
}
