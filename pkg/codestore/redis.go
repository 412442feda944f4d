// SPDX-FileCopyrightText: Copyright 2026 The Uitsmijter Authors
// SPDX-License-Identifier: Apache-2.0

package codestore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/uitsmijter/uitsmijter/pkg/logger"
)

// redisOpTimeout bounds every Redis round trip.
const redisOpTimeout = 5 * time.Second

// loginKeyPrefix namespaces login sessions away from auth sessions.
const loginKeyPrefix = "login~"

// RedisStore implements Store on a Redis backend so multiple instances
// share one session space. Entries expire server-side via EXPIRE, so
// the backend needs no sweep task.
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore connects to the given Redis address. The connection is
// verified with a ping before the store is returned.
func NewRedisStore(ctx context.Context, addr, password string) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})

	pingCtx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}

	logger.Infow("connected to redis session store", "addr", addr)
	return &RedisStore{client: client}, nil
}

// NewRedisStoreWithClient wraps an existing client. Intended for tests.
func NewRedisStoreWithClient(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

// Put implements Store. Uniqueness rides on SET NX.
func (s *RedisStore) Put(ctx context.Context, session *AuthSession) error {
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now()
	}
	if session.TTLSeconds <= 0 {
		return fmt.Errorf("session %q has no ttl", session.Code)
	}

	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to serialize session: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()

	ok, err := s.client.SetNX(ctx, storageKey(session.Kind, session.Code), data, session.TTL()).Result()
	if err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	if !ok {
		return ErrCodeTaken
	}
	return nil
}

// Get implements Store. With remove set the fetch uses GETDEL, so a
// concurrent second consumer observes nothing.
func (s *RedisStore) Get(ctx context.Context, kind Kind, value string, remove bool) (*AuthSession, error) {
	ctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()

	key := storageKey(kind, value)
	var cmd *redis.StringCmd
	if remove {
		cmd = s.client.GetDel(ctx, key)
	} else {
		cmd = s.client.Get(ctx, key)
	}

	data, err := cmd.Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch session: %w", err)
	}

	session := &AuthSession{}
	if err := json.Unmarshal(data, session); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return session, nil
}

// Count implements Store by scanning both session-kind key spaces.
func (s *RedisStore) Count(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()

	count := 0
	for _, kind := range []Kind{KindCode, KindRefresh} {
		iter := s.client.Scan(ctx, 0, string(kind)+"~*", 0).Iterator()
		for iter.Next(ctx) {
			count++
		}
		if err := iter.Err(); err != nil {
			return 0, fmt.Errorf("failed to count sessions: %w", err)
		}
	}
	return count, nil
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, kind Kind, value string) error {
	ctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()

	if err := s.client.Del(ctx, storageKey(kind, value)).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// Wipe implements Store. The scan runs in the background because a
// logout must not block on the size of the key space.
func (s *RedisStore) Wipe(_ context.Context, tenant, subject string) error {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()

		removed := 0
		for _, kind := range []Kind{KindCode, KindRefresh} {
			iter := s.client.Scan(ctx, 0, string(kind)+"~*", 0).Iterator()
			for iter.Next(ctx) {
				key := iter.Val()
				data, err := s.client.Get(ctx, key).Bytes()
				if err != nil {
					continue
				}
				session := &AuthSession{}
				if err := json.Unmarshal(data, session); err != nil {
					continue
				}
				if session.Payload.Tenant == tenant && session.Payload.Subject == subject {
					if err := s.client.Del(ctx, key).Err(); err == nil {
						removed++
					}
				}
			}
			if err := iter.Err(); err != nil {
				logger.Errorf("session wipe scan failed: %v", err)
				return
			}
		}
		logger.Debugw("wiped sessions", "tenant", tenant, "removed", removed)
	}()
	return nil
}

// Push implements Store.
func (s *RedisStore) Push(ctx context.Context, login *LoginSession) error {
	if login.CreatedAt.IsZero() {
		login.CreatedAt = time.Now()
	}

	data, err := json.Marshal(login)
	if err != nil {
		return fmt.Errorf("failed to serialize login session: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()

	ttl := time.Duration(login.TTLSeconds) * time.Second
	if err := s.client.Set(ctx, loginKeyPrefix+login.LoginID.String(), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store login session: %w", err)
	}
	return nil
}

// Pull implements Store. GETDEL makes the pull exactly-once across
// instances sharing the backend.
func (s *RedisStore) Pull(ctx context.Context, loginID uuid.UUID) bool {
	ctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()

	err := s.client.GetDel(ctx, loginKeyPrefix+loginID.String()).Err()
	if err == redis.Nil {
		return false
	}
	if err != nil {
		logger.Errorf("failed to pull login session: %v", err)
		return false
	}
	return true
}

// Healthy implements Store with a ping.
func (s *RedisStore) Healthy(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()
	return s.client.Ping(ctx).Err() == nil
}

// Close implements Store.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Compile-time interface check.
var _ Store = (*RedisStore)(nil)
