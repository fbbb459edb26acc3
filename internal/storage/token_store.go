// Package storage keeps uploaded workbooks and the opaque tokens that point
// at them. Files are addressed by token only; the caller-visible filename is
// metadata on the token record.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrTokenNotFound indicates the token is unknown or has expired.
var ErrTokenNotFound = errors.New("upload token not found or expired")

// TokenRecord is what a token resolves to.
type TokenRecord struct {
	Token            string    `json:"token"`
	Path             string    `json:"path"`
	OriginalFilename string    `json:"original_filename"`
	SizeBytes        int64     `json:"size_bytes"`
	Checksum         string    `json:"checksum"`
	UploadedBy       uint      `json:"uploaded_by"`
	CreatedAt        time.Time `json:"created_at"`
}

// TokenStore maps tokens to stored files. Records are immutable once put.
type TokenStore interface {
	Put(ctx context.Context, record TokenRecord, ttl time.Duration) error
	Get(ctx context.Context, token string) (TokenRecord, error)
	Delete(ctx context.Context, token string) error
}

type redisTokenStore struct {
	client *redis.Client
	prefix string
}

// NewRedisTokenStore stores records as JSON under "<prefix>:<token>" with a TTL.
func NewRedisTokenStore(client *redis.Client, prefix string) TokenStore {
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = "libreta:upload"
	}
	return &redisTokenStore{client: client, prefix: prefix}
}

func (s *redisTokenStore) key(token string) string {
	return fmt.Sprintf("%s:%s", s.prefix, token)
}

func (s *redisTokenStore) Put(ctx context.Context, record TokenRecord, ttl time.Duration) error {
	if strings.TrimSpace(record.Token) == "" {
		return errors.New("token is required")
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return err
	}
	ok, err := s.client.SetNX(ctx, s.key(record.Token), payload, ttl).Result()
	if err != nil {
		return fmt.Errorf("store upload token: %w", err)
	}
	if !ok {
		return fmt.Errorf("upload token %s already exists", record.Token)
	}
	return nil
}

func (s *redisTokenStore) Get(ctx context.Context, token string) (TokenRecord, error) {
	if strings.TrimSpace(token) == "" {
		return TokenRecord{}, ErrTokenNotFound
	}
	raw, err := s.client.Get(ctx, s.key(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return TokenRecord{}, ErrTokenNotFound
		}
		return TokenRecord{}, fmt.Errorf("read upload token: %w", err)
	}

	var record TokenRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return TokenRecord{}, fmt.Errorf("decode upload token: %w", err)
	}
	return record, nil
}

func (s *redisTokenStore) Delete(ctx context.Context, token string) error {
	return s.client.Del(ctx, s.key(token)).Err()
}

type memoryEntry struct {
	record    TokenRecord
	expiresAt time.Time
}

// MemoryTokenStore is a process-local TokenStore with TTL eviction on access.
type MemoryTokenStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryTokenStore builds an empty in-process store.
func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (s *MemoryTokenStore) Put(_ context.Context, record TokenRecord, ttl time.Duration) error {
	if strings.TrimSpace(record.Token) == "" {
		return errors.New("token is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.evictLocked()
	if _, exists := s.entries[record.Token]; exists {
		return fmt.Errorf("upload token %s already exists", record.Token)
	}
	entry := memoryEntry{record: record}
	if ttl > 0 {
		entry.expiresAt = s.now().Add(ttl)
	}
	s.entries[record.Token] = entry
	return nil
}

func (s *MemoryTokenStore) Get(_ context.Context, token string) (TokenRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.evictLocked()
	entry, ok := s.entries[token]
	if !ok {
		return TokenRecord{}, ErrTokenNotFound
	}
	return entry.record, nil
}

func (s *MemoryTokenStore) Delete(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, token)
	return nil
}

// Len reports live entries after eviction.
func (s *MemoryTokenStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evictLocked()
	return len(s.entries)
}

func (s *MemoryTokenStore) evictLocked() {
	now := s.now()
	for token, entry := range s.entries {
		if !entry.expiresAt.IsZero() && !now.Before(entry.expiresAt) {
			delete(s.entries, token)
		}
	}
}
