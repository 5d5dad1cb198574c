package coordination

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/nexusvanguard/control-plane/control_plane/store"
)

// staleGrace is how far past a lease's own expiry the janitor waits
// before force-releasing, absorbing clock skew between replicas.
const staleGrace = 5 * time.Second

// LeaseJanitor sweeps singleton leases left behind by crashed or
// partitioned replicas: a lease whose fencing epoch is behind the
// durable counter, or whose self-declared expiry has passed, is
// force-released so the surviving replicas can re-acquire without
// waiting out backend TTL skew.
type LeaseJanitor struct {
	coord    store.Coordinator
	store    store.Store
	interval time.Duration
}

func NewLeaseJanitor(coord store.Coordinator, st store.Store, interval time.Duration) *LeaseJanitor {
	return &LeaseJanitor{coord: coord, store: st, interval: interval}
}

func (j *LeaseJanitor) Start(ctx context.Context) {
	go j.loop(ctx)
}

func (j *LeaseJanitor) loop(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.sweep(ctx)
		}
	}
}

func (j *LeaseJanitor) sweep(ctx context.Context) {
	// All singleton loops fence against one durable counter; a lease
	// carrying an older epoch belongs to a holder that lost a later
	// election and never found out.
	currentEpoch, err := j.store.GetDurableEpoch(ctx, epochResource)
	if err != nil {
		log.Printf("⚠️ Lease janitor: failed to read durable epoch: %v", err)
		return
	}

	keys, err := j.coord.ScanLeases(ctx, "nexusvanguard:lease:*")
	if err != nil {
		log.Printf("⚠️ Lease janitor: scan failed: %v", err)
		return
	}

	for _, key := range keys {
		value, err := j.coord.LeaseHolder(ctx, key)
		if err != nil || value == "" {
			continue
		}

		var meta LeaseMetadata
		if err := json.Unmarshal([]byte(value), &meta); err != nil {
			log.Printf("⚠️ Lease janitor: unreadable metadata on %s: %v", key, err)
			continue
		}

		switch {
		case meta.Epoch < currentEpoch:
			log.Printf("Lease janitor: fencing %s held by %s (epoch %d < %d)", key, meta.HolderNode, meta.Epoch, currentEpoch)
			j.forceRelease(ctx, key, value)
		case time.Now().After(meta.ExpiresAt.Add(staleGrace)):
			log.Printf("Lease janitor: reclaiming stale %s held by %s (expired %s)", key, meta.HolderNode, meta.ExpiresAt)
			j.forceRelease(ctx, key, value)
		}
	}
}

func (j *LeaseJanitor) forceRelease(ctx context.Context, key, value string) {
	if err := j.coord.ReleaseLease(ctx, key, value); err != nil {
		log.Printf("⚠️ Lease janitor: failed to release %s: %v", key, err)
	}
}
