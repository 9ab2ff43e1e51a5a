// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package redis stores rate-limit windows in Redis so several apihub
// processes share one budget per API.
package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/prakash09/api-connector/internal/ratelimit"
)

var _ ratelimit.Store = (*Store)(nil)

// incrementScript creates the window key with count 1, or increments an
// existing key while its count is below the limit. The TTL is set when the
// window key is created.
var incrementScript = goredis.NewScript(`
local current = redis.call("GET", KEYS[1])
if not current then
	redis.call("SET", KEYS[1], 1, "PX", ARGV[2])
	return {1, 1}
end
current = tonumber(current)
if current >= tonumber(ARGV[1]) then
	return {0, current}
end
return {1, redis.call("INCR", KEYS[1])}
`)

// Store implements ratelimit.Store on Redis.
type Store struct {
	client *goredis.Client
	prefix string
}

// Option configures a Store.
type Option func(*Store)

// WithPrefix sets the key prefix. Default "apihub:".
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// New connects to addr and verifies the connection.
func New(ctx context.Context, addr, password string, db int, opts ...Option) (*Store, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}

	return NewFromClient(client, opts...), nil
}

// NewFromClient wraps an existing client.
func NewFromClient(client *goredis.Client, opts ...Option) *Store {
	s := &Store{
		client: client,
		prefix: "apihub:",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) key(k ratelimit.WindowKey) string {
	return s.prefix + "ratelimit:" + k.TargetType + ":" + k.TargetID + ":" + strconv.FormatInt(k.Start.Unix(), 10)
}

// Increment implements ratelimit.Store.
func (s *Store) Increment(ctx context.Context, key ratelimit.WindowKey, limit int, end, now time.Time) (bool, int, error) {
	ttl := end.Sub(now)
	if ttl < time.Millisecond {
		ttl = time.Millisecond
	}

	result, err := incrementScript.Run(ctx, s.client, []string{s.key(key)}, limit, ttl.Milliseconds()).Int64Slice()
	if err != nil {
		return false, 0, fmt.Errorf("redis rate limit script failed: %w", err)
	}
	if len(result) != 2 {
		return false, 0, fmt.Errorf("unexpected rate limit script result: %v", result)
	}

	return result[0] == 1, int(result[1]), nil
}

// Count implements ratelimit.Store.
func (s *Store) Count(ctx context.Context, key ratelimit.WindowKey) (int, error) {
	n, err := s.client.Get(ctx, s.key(key)).Int()
	if err == goredis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get failed: %w", err)
	}
	return n, nil
}

// Close closes the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}
