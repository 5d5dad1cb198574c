package store

import (
	"context"
	"errors"
	"time"

	"github.com/nexusvanguard/control-plane/control_plane/observability"
	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store and Coordinator on top of Redis. It is the
// default backend when VANGUARD_STORAGE_MODE is unset or "redis"; app.go's
// wiring fails startup when Redis is unreachable in that mode.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(addr string, password string, db int) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisStore{client: client}, nil
}

func (s *RedisStore) Close() {
	s.client.Close()
}

// Client exposes the underlying redis client so callers that need a raw
// *redis.Client (the rate limiter's Lua script runner) can share the same
// connection pool instead of opening a second one.
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

// --- Coordinator: singleton-loop leases ---

func (s *RedisStore) AcquireLease(ctx context.Context, key string, value string, ttl time.Duration) (bool, error) {
	start := time.Now()
	defer func() { observability.RedisLatency.Observe(time.Since(start).Seconds()) }()

	return s.client.SetNX(ctx, key, value, ttl).Result()
}

// RenewLease extends the TTL if the stored value still matches. Lua
// script return codes: 1 success, 0 pexpire failed, -1 key missing,
// -2 holder mismatch.
func (s *RedisStore) RenewLease(ctx context.Context, key string, value string, ttl time.Duration) (bool, error) {
	start := time.Now()
	defer func() { observability.RedisLatency.Observe(time.Since(start).Seconds()) }()

	script := `
		local val = redis.call("get", KEYS[1])
		if not val then
			return -1
		end
		if val == ARGV[1] then
			return redis.call("pexpire", KEYS[1], tonumber(ARGV[2]))
		else
			return -2
		end
	`
	res, err := s.client.Eval(ctx, script, []string{key}, value, int64(ttl/time.Millisecond)).Result()
	if err != nil {
		return false, err
	}
	code, ok := res.(int64)
	if !ok {
		return false, errors.New("unexpected return type from lua script")
	}
	return code == 1, nil
}

func (s *RedisStore) ReleaseLease(ctx context.Context, key string, value string) error {
	start := time.Now()
	defer func() { observability.RedisLatency.Observe(time.Since(start).Seconds()) }()

	script := `
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		else
			return 0
		end
	`
	_, err := s.client.Eval(ctx, script, []string{key}, value).Result()
	return err
}

func (s *RedisStore) LeaseHolder(ctx context.Context, key string) (string, error) {
	val, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return val, err
}

func (s *RedisStore) ScanLeases(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	return keys, iter.Err()
}

func (s *RedisStore) IncrementDurableEpoch(ctx context.Context, resourceID string) (int64, error) {
	return s.client.Incr(ctx, resourceID+":epoch").Result()
}

func (s *RedisStore) GetDurableEpoch(ctx context.Context, resourceID string) (int64, error) {
	val, err := s.client.Get(ctx, resourceID+":epoch").Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return val, err
}

// --- Generic KV (idempotency.Backend) ---

func (s *RedisStore) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	start := time.Now()
	defer func() { observability.RedisLatency.Observe(time.Since(start).Seconds()) }()
	return s.client.Set(ctx, key, value, ttl).Err()
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	start := time.Now()
	defer func() { observability.RedisLatency.Observe(time.Since(start).Seconds()) }()
	val, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return val, err
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, key).Err()
}

// --- Document store ---
//
// Collections are stored as plain string keys (doc:{collection}:{id})
// rather than a native JSON type so the same client works unmodified
// against any Redis-protocol-compatible deployment.

func (s *RedisStore) PutDocument(ctx context.Context, collection, id string, data []byte) error {
	return s.client.Set(ctx, docKey(collection, id), data, 0).Err()
}

func (s *RedisStore) GetDocument(ctx context.Context, collection, id string) ([]byte, bool, error) {
	data, err := s.client.Get(ctx, docKey(collection, id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (s *RedisStore) ListDocuments(ctx context.Context, collection string, limit int) ([]Document, error) {
	var out []Document
	iter := s.client.Scan(ctx, 0, docScanPattern(collection), 0).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		data, err := s.client.Get(ctx, key).Bytes()
		if err != nil {
			continue
		}
		id := key[len("doc:"+collection+":"):]
		out = append(out, Document{Collection: collection, ID: id, Data: data})
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, iter.Err()
}

func (s *RedisStore) DeleteDocument(ctx context.Context, collection, id string) error {
	return s.client.Del(ctx, docKey(collection, id)).Err()
}
