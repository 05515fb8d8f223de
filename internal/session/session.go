// Package session stores the serialized current-user record in Redis.
// Presence of the record is the authentication signal consumed by the rest
// of the system: logging in writes it under the token's ID, logging out
// deletes it, and the auth middleware rejects tokens whose record is gone.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jkamau/duka-server/internal/models"
)

// ErrNotFound is returned when no session exists for the given token ID.
var ErrNotFound = errors.New("session not found")

// Store holds live sessions in Redis, keyed by JWT ID.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStore connects to Redis and verifies the connection with a ping.
func NewStore(addr, password string, ttl time.Duration) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Store{client: client, ttl: ttl}, nil
}

// Save writes the serialized profile under the token ID. The TTL matches the
// token lifetime, so abandoned sessions expire on their own.
func (s *Store) Save(ctx context.Context, tokenID string, profile *models.Profile) error {
	data, err := json.Marshal(profile)
	if err != nil {
		return err
	}

	return s.client.Set(ctx, key(tokenID), data, s.ttl).Err()
}

// Get returns the profile stored for the token ID, or ErrNotFound.
func (s *Store) Get(ctx context.Context, tokenID string) (*models.Profile, error) {
	data, err := s.client.Get(ctx, key(tokenID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var profile models.Profile
	if err := json.Unmarshal(data, &profile); err != nil {
		return nil, err
	}

	return &profile, nil
}

// Delete removes the session, invalidating its token immediately.
func (s *Store) Delete(ctx context.Context, tokenID string) error {
	return s.client.Del(ctx, key(tokenID)).Err()
}

// Close releases the Redis connection.
func (s *Store) Close() error {
	return s.client.Close()
}

func key(tokenID string) string {
	return "session:" + tokenID
}
