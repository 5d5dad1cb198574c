package shadowrace

import (
	"sync/atomic"

	"github.com/nexusvanguard/control-plane/control_plane/observability"
)

// stats holds the admin-visible race counters.
type stats struct {
	total        int64
	liveServed   int64
	cacheServed  int64
	lateArrivals int64
	failures     int64
}

func (s *stats) recordLive(ok bool) {
	atomic.AddInt64(&s.total, 1)
	if ok {
		atomic.AddInt64(&s.liveServed, 1)
		observability.ShadowRaceOutcomes.WithLabelValues("live").Inc()
	} else {
		atomic.AddInt64(&s.failures, 1)
		observability.ShadowRaceOutcomes.WithLabelValues("failure").Inc()
	}
}

func (s *stats) recordCacheServed() {
	atomic.AddInt64(&s.total, 1)
	atomic.AddInt64(&s.cacheServed, 1)
	observability.ShadowRaceOutcomes.WithLabelValues("cache").Inc()
}

func (s *stats) recordLateArrival() {
	atomic.AddInt64(&s.lateArrivals, 1)
	observability.ShadowRaceLateArrivals.Inc()
}

func (s *stats) recordFailure() {
	atomic.AddInt64(&s.total, 1)
	atomic.AddInt64(&s.failures, 1)
	observability.ShadowRaceOutcomes.WithLabelValues("failure").Inc()
}

func (s *stats) snapshot() Stats {
	return Stats{
		Total:        atomic.LoadInt64(&s.total),
		LiveServed:   atomic.LoadInt64(&s.liveServed),
		CacheServed:  atomic.LoadInt64(&s.cacheServed),
		LateArrivals: atomic.LoadInt64(&s.lateArrivals),
		Failures:     atomic.LoadInt64(&s.failures),
	}
}

type Stats struct {
	Total        int64
	LiveServed   int64
	CacheServed  int64
	LateArrivals int64
	Failures     int64
}

func (s Stats) HitRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.LiveServed+s.CacheServed) / float64(s.Total)
}

func (s Stats) LateArrivalRate() float64 {
	if s.CacheServed == 0 {
		return 0
	}
	return float64(s.LateArrivals) / float64(s.CacheServed)
}
