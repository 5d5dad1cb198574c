package ratelimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestCheckFallbackFailsOpen(t *testing.T) {
	l := New(nil, 60, 30, 60*time.Second, 60*time.Second)
	d := l.Check(context.Background(), "10.0.0.1", BucketDefault)
	if !d.Allowed || !d.Degraded {
		t.Fatalf("expected fail-open degraded decision, got %+v", d)
	}
}

func TestIsBypassedPaths(t *testing.T) {
	cases := []string{"/healthz", "/readyz", "/health", "/health/deps", "/", "/favicon.ico", "/manifest.json"}
	for _, p := range cases {
		if !IsBypassed(p, http.MethodGet) {
			t.Fatalf("expected %s to be bypassed", p)
		}
	}
	if IsBypassed("/players/search", http.MethodGet) {
		t.Fatal("expected non-bypass path to require limiting")
	}
	if !IsBypassed("/players/search", http.MethodOptions) {
		t.Fatal("expected OPTIONS preflight to bypass")
	}
}

func TestIsAdminRoute(t *testing.T) {
	if !IsAdminRoute("/vanguard/admin/incidents") {
		t.Fatal("expected admin route detected")
	}
	if IsAdminRoute("/live/games") {
		t.Fatal("expected non-admin route")
	}
}

func TestClientIPFromForwardedFor(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	if ip := ClientIP(req); ip != "203.0.113.9" {
		t.Fatalf("expected first hop, got %s", ip)
	}
}
