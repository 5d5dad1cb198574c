package store

import (
	"context"
	"time"
)

// Store is the persistence surface the control plane consumes. The
// Postgres (durable), Redis (ephemeral, default) and in-memory backends
// implement it; callers never branch on which one is wired in.
type Store interface {
	// Document operations back the named collections: incidents,
	// vanguard_analysis, live_games, live_leaders, game_logs/{date}/{id},
	// player_h2h, player_h2h_games, season_baselines, vanguard_metadata.
	PutDocument(ctx context.Context, collection, id string, data []byte) error
	GetDocument(ctx context.Context, collection, id string) ([]byte, bool, error)
	ListDocuments(ctx context.Context, collection string, limit int) ([]Document, error)
	DeleteDocument(ctx context.Context, collection, id string) error

	// IncrementDurableEpoch increments the epoch for a given resource
	// (e.g. "singleton_loops") and returns the new epoch, durably. Backs
	// the singleton lease's fencing token.
	IncrementDurableEpoch(ctx context.Context, resourceID string) (int64, error)

	// GetDurableEpoch returns the current epoch without incrementing.
	GetDurableEpoch(ctx context.Context, resourceID string) (int64, error)

	// Generic KV surface. Matches idempotency.Backend's signature exactly
	// so either backend plugs directly into the idempotency middleware.
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, key string) error

	Close()
}
