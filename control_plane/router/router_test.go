package router

import (
	"testing"
	"time"

	"github.com/nexusvanguard/control-plane/control_plane/health"
	"github.com/nexusvanguard/control-plane/control_plane/registry"
)

func fixture() (*registry.Registry, *health.Gate) {
	reg := registry.New()
	reg.Register(registry.EndpointConfig{
		Path:           "/matchup/analyze",
		Category:       registry.CategoryAnalysis,
		Dependencies:   []string{"nba_api"},
		BaseTimeout:    800 * time.Millisecond,
		AdaptiveBuffer: 200 * time.Millisecond,
	})
	gate := health.NewGate()
	gate.Register("nba_api", health.External)
	return reg, gate
}

func TestRecommendUnknownEndpointDefaultsToLive(t *testing.T) {
	reg, gate := fixture()
	d := Recommend("/totally/unknown", RequestContext{}, reg, gate)
	if d.Strategy != LiveOnly {
		t.Fatalf("expected live_only for unknown endpoint, got %s", d.Strategy)
	}
}

func TestRecommendCooldownForcesCacheOnly(t *testing.T) {
	reg, gate := fixture()
	gate.EnterCooldown("nba_api", 60)

	d := Recommend("/matchup/analyze", RequestContext{}, reg, gate)
	if d.Strategy != CacheOnly || !d.CooldownActive {
		t.Fatalf("expected cache_only with cooldown_active, got %+v", d)
	}
}

func TestRecommendForceFreshWithHealthyDeps(t *testing.T) {
	reg, gate := fixture()
	d := Recommend("/matchup/analyze", RequestContext{ForceFresh: true}, reg, gate)
	if d.Strategy != LiveOnly {
		t.Fatalf("expected live_only under force_fresh, got %s", d.Strategy)
	}
}

func TestRecommendRacePatienceNeverExceedsTarget(t *testing.T) {
	reg, gate := fixture()
	d := Recommend("/matchup/analyze", RequestContext{}, reg, gate)
	if d.Strategy != Race {
		t.Fatalf("expected race, got %s", d.Strategy)
	}
	if d.PatienceMS > d.TargetMS {
		t.Fatalf("race decision must keep patience <= target, got %d > %d", d.PatienceMS, d.TargetMS)
	}
	if d.PatienceMS != 800 || d.TargetMS != 1000 {
		t.Fatalf("expected patience/target from endpoint config, got %d/%d", d.PatienceMS, d.TargetMS)
	}
}
