package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"evbooking/backend/services/booking-gateway/internal/flow"
)

// ErrNotFound is returned when no snapshot is stored for a flow.
var ErrNotFound = errors.New("redisstore: snapshot not found")

// Store keeps the last snapshot of every booking flow so that flows survive eviction from
// memory and gateway restarts.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStore returns redis-backed store.
func NewStore(client *redis.Client, ttl time.Duration) *Store {
	return &Store{client: client, ttl: ttl}
}

func (s *Store) key(flowID string) string {
	return fmt.Sprintf("flows:snapshot:%s", flowID)
}

// Save stores the snapshot and refreshes its TTL.
func (s *Store) Save(ctx context.Context, flowID string, session flow.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("redisstore: encode snapshot: %w", err)
	}
	return s.client.Set(ctx, s.key(flowID), data, s.ttl).Err()
}

// Load returns the stored snapshot.
func (s *Store) Load(ctx context.Context, flowID string) (flow.Session, error) {
	result, err := s.client.Get(ctx, s.key(flowID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return flow.Session{}, ErrNotFound
	}
	if err != nil {
		return flow.Session{}, err
	}
	var session flow.Session
	if err := json.Unmarshal(result, &session); err != nil {
		return flow.Session{}, fmt.Errorf("redisstore: decode snapshot %s: %w", flowID, err)
	}
	return session, nil
}

// Delete removes the stored snapshot.
func (s *Store) Delete(ctx context.Context, flowID string) error {
	return s.client.Del(ctx, s.key(flowID)).Err()
}
