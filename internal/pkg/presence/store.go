package presence

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Status is a user's online marker.
type Status struct {
	IsOnline   bool   `json:"online"`
	LastSeenAt string `json:"lastSeenAt,omitempty"`
}

const keyPrefix = "notifyd:presence:"

// Store records which users hold a live push connection on some instance.
// Markers expire after ttl unless refreshed. Without a Redis client the
// store is process-local.
type Store struct {
	client *redis.Client
	ttl    time.Duration

	mu    sync.RWMutex
	local map[string]localEntry
	now   func() time.Time
}

type localEntry struct {
	status  Status
	expires time.Time
}

func NewStore(client *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &Store{client: client, ttl: ttl, local: map[string]localEntry{}, now: time.Now}
}

// Set marks userID online (refreshing the TTL) or removes the marker.
func (s *Store) Set(ctx context.Context, userID string, online bool, at time.Time) (Status, error) {
	key := keyPrefix + userID
	if !online {
		if s.client != nil {
			if err := s.client.Del(ctx, key).Err(); err != nil {
				return Status{}, err
			}
			return Status{}, nil
		}
		s.mu.Lock()
		delete(s.local, userID)
		s.mu.Unlock()
		return Status{}, nil
	}

	st := Status{IsOnline: true, LastSeenAt: at.UTC().Format(time.RFC3339)}
	if s.client != nil {
		if err := s.client.Set(ctx, key, st.LastSeenAt, s.ttl).Err(); err != nil {
			return Status{}, err
		}
		return st, nil
	}
	s.mu.Lock()
	s.local[userID] = localEntry{status: st, expires: s.now().Add(s.ttl)}
	s.mu.Unlock()
	return st, nil
}

// Get returns the marker for userID. A missing or expired marker is offline.
func (s *Store) Get(ctx context.Context, userID string) (Status, error) {
	if s.client != nil {
		val, err := s.client.Get(ctx, keyPrefix+userID).Result()
		if errors.Is(err, redis.Nil) {
			return Status{}, nil
		}
		if err != nil {
			return Status{}, err
		}
		return Status{IsOnline: true, LastSeenAt: val}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.local[userID]
	if !ok || s.now().After(e.expires) {
		return Status{}, nil
	}
	return e.status, nil
}

// GetMany returns markers for the online users among userIDs.
func (s *Store) GetMany(ctx context.Context, userIDs []string) (map[string]Status, error) {
	out := make(map[string]Status, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}
	if s.client != nil {
		keys := make([]string, 0, len(userIDs))
		for _, id := range userIDs {
			keys = append(keys, keyPrefix+id)
		}
		values, err := s.client.MGet(ctx, keys...).Result()
		if err != nil {
			return out, err
		}
		for i, v := range values {
			str, ok := v.(string)
			if !ok || str == "" {
				continue
			}
			out[userIDs[i]] = Status{IsOnline: true, LastSeenAt: str}
		}
		return out, nil
	}

	for _, id := range userIDs {
		if st, _ := s.Get(ctx, id); st.IsOnline {
			out[id] = st
		}
	}
	return out, nil
}
