package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps sessions in Redis so several API processes share them.
// Every write refreshes the key TTL to MaxIdle.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore connects to redisURL and checks the connection.
func NewRedisStore(redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisStoreWithClient(client), nil
}

func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, prefix: "session:"}
}

func (s *RedisStore) Client() *redis.Client { return s.client }

func (s *RedisStore) key(id string) string {
	return s.prefix + id
}

func (s *RedisStore) Get(ctx context.Context, id string) (Record, error) {
	raw, err := s.client.Get(ctx, s.key(id)).Result()
	if errors.Is(err, redis.Nil) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("get session: %w", err)
	}
	var rec Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return Record{}, fmt.Errorf("unmarshal session: %w", err)
	}
	return rec, nil
}

func (s *RedisStore) Save(ctx context.Context, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := s.client.Set(ctx, s.key(rec.ID), data, MaxIdle).Err(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *RedisStore) Touch(ctx context.Context, id string, at time.Time) error {
	rec, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	rec.LastActivity = at
	return s.Save(ctx, rec)
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, s.key(id)).Err(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// PurgeIdle scans the session keys. Keys also expire on their own after
// MaxIdle, so this only matters for shorter cutoffs.
func (s *RedisStore) PurgeIdle(ctx context.Context, cutoff time.Time) (int, error) {
	purged := 0
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		rec, err := s.Get(ctx, key[len(s.prefix):])
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return purged, err
		}
		if rec.LastActivity.Before(cutoff) {
			if err := s.client.Del(ctx, key).Err(); err != nil {
				return purged, fmt.Errorf("purge session: %w", err)
			}
			purged++
		}
	}
	if err := iter.Err(); err != nil {
		return purged, fmt.Errorf("scan sessions: %w", err)
	}
	return purged, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
