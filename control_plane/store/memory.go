package store

import (
	"context"
	"sync"
	"time"
)

type kvEntry struct {
	value     string
	expiresAt time.Time // zero means no expiry
}

// MemoryStore is the no-dependency Store, used in tests and when
// VANGUARD_STORAGE_MODE is "memory".
type MemoryStore struct {
	mu        sync.RWMutex
	documents map[string]map[string]Document // collection -> id -> document
	epochs    map[string]int64
	kv        map[string]kvEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		documents: make(map[string]map[string]Document),
		epochs:    make(map[string]int64),
		kv:        make(map[string]kvEntry),
	}
}

func (s *MemoryStore) Close() {}

func (s *MemoryStore) PutDocument(ctx context.Context, collection, id string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	bucket, ok := s.documents[collection]
	if !ok {
		bucket = make(map[string]Document)
		s.documents[collection] = bucket
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	bucket[id] = Document{Collection: collection, ID: id, Data: cp, UpdatedAt: time.Now().UTC()}
	return nil
}

func (s *MemoryStore) GetDocument(ctx context.Context, collection, id string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bucket, ok := s.documents[collection]
	if !ok {
		return nil, false, nil
	}
	doc, ok := bucket[id]
	if !ok {
		return nil, false, nil
	}
	return doc.Data, true, nil
}

func (s *MemoryStore) ListDocuments(ctx context.Context, collection string, limit int) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bucket := s.documents[collection]
	out := make([]Document, 0, len(bucket))
	for _, doc := range bucket {
		out = append(out, doc)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) DeleteDocument(ctx context.Context, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if bucket, ok := s.documents[collection]; ok {
		delete(bucket, id)
	}
	return nil
}

func (s *MemoryStore) IncrementDurableEpoch(ctx context.Context, resourceID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.epochs[resourceID]++
	return s.epochs[resourceID], nil
}

func (s *MemoryStore) GetDurableEpoch(ctx context.Context, resourceID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.epochs[resourceID], nil
}

func (s *MemoryStore) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}
	s.kv[key] = kvEntry{value: value, expiresAt: expiresAt}
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.kv[key]
	if !ok {
		return "", nil
	}
	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		delete(s.kv, key)
		return "", nil
	}
	return entry.value, nil
}

func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.kv, key)
	return nil
}
