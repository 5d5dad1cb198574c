// Package idempotency implements the idempotency middleware's record
// store and its IN_FLIGHT/COMPLETED/FAILED state machine, backed by
// Redis with an in-process fallback.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log"
	"sync"
	"time"
)

type State string

const (
	InFlight  State = "IN_FLIGHT"
	Completed State = "COMPLETED"
	Failed    State = "FAILED"
)

const (
	DefaultTTL          = 24 * time.Hour
	FailedRetryCooldown = 2 * time.Second
	MaxStoredBodyBytes  = 128 * 1024
	PayloadTooLargeFingerprint = "__PAYLOAD_TOO_LARGE_FINGERPRINT_ONLY__"
)

// Backend persists the serialized record. Matches the control plane's
// RedisStore key-value surface.
type Backend interface {
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, key string) error
}

// Record is one idempotency entry keyed by SHA-256(path + key).
type Record struct {
	State           State     `json:"state"`
	RequestBodyHash string    `json:"request_body_hash"`
	ResponseCode    int       `json:"response_code,omitempty"`
	ResponseBody    string    `json:"response_body,omitempty"`
	ResponseHeaders map[string][]string `json:"response_headers,omitempty"`
	StartedAt       time.Time `json:"started_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	FailedAt        *time.Time `json:"failed_at,omitempty"`
	ExpiresAt       time.Time `json:"expires_at"`
}

// Store is the idempotency record store: Redis-backed, falling back to
// an in-process map with explicit expires_at tracking when the backend
// is unreachable.
type Store struct {
	backend Backend
	cache   sync.Map // key -> Record
	ttl     time.Duration
}

func NewStore(backend Backend, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{backend: backend, ttl: ttl}
}

// CacheKey computes SHA-256(path + key).
func CacheKey(path, idempotencyKey string) string {
	sum := sha256.Sum256([]byte(path + idempotencyKey))
	return hex.EncodeToString(sum[:])
}

// BodyHash computes SHA-256 of the request body for replay comparison.
func BodyHash(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

func (s *Store) Get(ctx context.Context, key string) (Record, bool) {
	if s.backend != nil {
		val, err := s.backend.Get(ctx, key)
		if err != nil {
			log.Printf("idempotency: backend error getting %s: %v", key, err)
			return s.getMemory(key)
		}
		if val == "" {
			return Record{}, false
		}
		var rec Record
		if err := json.Unmarshal([]byte(val), &rec); err != nil {
			return Record{}, false
		}
		return rec, true
	}
	return s.getMemory(key)
}

func (s *Store) getMemory(key string) (Record, bool) {
	val, ok := s.cache.Load(key)
	if !ok {
		return Record{}, false
	}
	rec := val.(Record)
	if time.Now().After(rec.ExpiresAt) {
		s.cache.Delete(key)
		return Record{}, false
	}
	return rec, true
}

func (s *Store) put(ctx context.Context, key string, rec Record) {
	if s.backend != nil {
		b, _ := json.Marshal(rec)
		ttl := time.Until(rec.ExpiresAt)
		if ttl <= 0 {
			ttl = s.ttl
		}
		if err := s.backend.Set(ctx, key, string(b), ttl); err != nil {
			log.Printf("idempotency: backend error setting %s: %v", key, err)
			s.cache.Store(key, rec)
		}
		return
	}
	s.cache.Store(key, rec)
}

func (s *Store) delete(ctx context.Context, key string) {
	if s.backend != nil {
		if err := s.backend.Delete(ctx, key); err != nil {
			log.Printf("idempotency: backend error deleting %s: %v", key, err)
		}
		return
	}
	s.cache.Delete(key)
}

// MarkInFlight stores a new IN_FLIGHT record before the handler runs.
func (s *Store) MarkInFlight(ctx context.Context, key, bodyHash string) Record {
	now := time.Now().UTC()
	rec := Record{
		State:           InFlight,
		RequestBodyHash: bodyHash,
		StartedAt:       now,
		ExpiresAt:       now.Add(s.ttl),
	}
	s.put(ctx, key, rec)
	return rec
}

// MarkCompleted stores the response snapshot after a 2xx, truncating bodies
// over MaxStoredBodyBytes to a sentinel.
func (s *Store) MarkCompleted(ctx context.Context, key string, rec Record, statusCode int, body []byte, headers map[string][]string) {
	now := time.Now().UTC()
	rec.State = Completed
	rec.ResponseCode = statusCode
	rec.ResponseHeaders = headers
	rec.CompletedAt = &now
	if len(body) > MaxStoredBodyBytes {
		rec.ResponseBody = PayloadTooLargeFingerprint
	} else {
		rec.ResponseBody = string(body)
	}
	s.put(ctx, key, rec)
}

// MarkFailed stores a FAILED record after a 5xx or an uncaught exception.
func (s *Store) MarkFailed(ctx context.Context, key string, rec Record) {
	now := time.Now().UTC()
	rec.State = Failed
	rec.FailedAt = &now
	s.put(ctx, key, rec)
}

// Evict deletes the record, allowing a corrective retry after a 4xx.
func (s *Store) Evict(ctx context.Context, key string) {
	s.delete(ctx, key)
}
