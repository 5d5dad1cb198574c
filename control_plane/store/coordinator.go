package store

import (
	"context"
	"time"
)

// Coordinator is the coordination surface the control plane needs to
// keep its singleton background loops (escalation engine, hysteresis
// evaluator, pulse producer) running on exactly one replica: a
// fencing-token lease plus the sweep operations the lease janitor uses
// to reclaim leases left behind by dead holders.
type Coordinator interface {
	// AcquireLease claims the named lease when it is free. value is the
	// holder's serialized lease metadata; returns false when another
	// replica already holds the lease.
	AcquireLease(ctx context.Context, key string, value string, ttl time.Duration) (bool, error)

	// RenewLease extends the TTL when the stored value still matches.
	// A false return means the lease changed hands and the caller must
	// stop its guarded loops.
	RenewLease(ctx context.Context, key string, value string, ttl time.Duration) (bool, error)

	// ReleaseLease deletes the lease when the stored value still matches.
	ReleaseLease(ctx context.Context, key string, value string) error

	// LeaseHolder returns the stored lease value, empty when free.
	LeaseHolder(ctx context.Context, key string) (string, error)

	// ScanLeases lists lease keys matching pattern for the janitor's
	// fencing sweep.
	ScanLeases(ctx context.Context, pattern string) ([]string, error)
}
