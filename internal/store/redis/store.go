package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lesprima/attempt-service/internal/config"
	"github.com/lesprima/attempt-service/internal/store"
)

// Store keeps attempt snapshots as JSON values in Redis, one key per
// student slot. Writes are synchronous: Save returns only after Redis
// acknowledged the SET.
//
// Keys carry no TTL: a snapshot must survive until terminal success or
// explicit abandonment. The sweeper handles slots nobody ever closed.
type Store struct {
	client *redis.Client
}

func NewStore(client *redis.Client) *Store {
	return &Store{client: client}
}

func (s *Store) Save(ctx context.Context, studentID int, snap *store.Snapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	key := config.CacheKey.StudentAttemptKey(studentID)
	if err := s.client.Set(ctx, key, raw, 0).Err(); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

func (s *Store) Load(ctx context.Context, studentID int) (*store.Snapshot, error) {
	key := config.CacheKey.StudentAttemptKey(studentID)
	raw, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	var snap store.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

func (s *Store) Clear(ctx context.Context, studentID int) error {
	key := config.CacheKey.StudentAttemptKey(studentID)
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("clear snapshot: %w", err)
	}
	return nil
}

// Sweep scans all attempt slots and deletes the ones last saved before
// the cutoff. SCAN keeps the pass incremental so a large keyspace does
// not block Redis.
func (s *Store) Sweep(ctx context.Context, cutoff time.Time) (int, error) {
	removed := 0
	iter := s.client.Scan(ctx, 0, config.CacheKey.StudentAttemptPattern(), 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()

		raw, err := s.client.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue // Deleted between SCAN and GET.
			}
			return removed, fmt.Errorf("sweep read %s: %w", key, err)
		}

		var snap store.Snapshot
		if err := json.Unmarshal(raw, &snap); err != nil {
			// Unreadable snapshot is unrecoverable anyway.
			_ = s.client.Del(ctx, key).Err()
			removed++
			continue
		}

		if snap.SavedAt.Before(cutoff) {
			if err := s.client.Del(ctx, key).Err(); err != nil {
				return removed, fmt.Errorf("sweep delete %s: %w", key, err)
			}
			removed++
		}
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("sweep scan: %w", err)
	}
	return removed, nil
}
