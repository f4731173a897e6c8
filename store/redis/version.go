// Package redis provides a process-shared loan version counter on Redis.
//
// Several server processes pointing at the same database poll one counter.
// The sqlite counter already advances inside each transaction; this one is
// bumped by LoanService after commit so every process sees the change.
package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/warp/lending-engine/lending"
)

// DefaultKey is the counter key when none is configured.
const DefaultKey = "library:borrows_version"

type Options struct {
	Addr     string
	Password string
	DB       int
	Key      string
}

// VersionCounter is an INCR counter. It starts at 1 on first access.
type VersionCounter struct {
	client *redis.Client
	key    string
}

var _ lending.VersionCounter = (*VersionCounter)(nil)

// NewVersionCounter connects and pings the server.
func NewVersionCounter(ctx context.Context, opts Options) (*VersionCounter, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", opts.Addr, err)
	}
	return NewVersionCounterFromClient(client, opts.Key), nil
}

func NewVersionCounterFromClient(client *redis.Client, key string) *VersionCounter {
	if key == "" {
		key = DefaultKey
	}
	return &VersionCounter{client: client, key: key}
}

func (c *VersionCounter) Current(ctx context.Context) (int64, error) {
	v, err := c.client.Get(ctx, c.key).Int64()
	if err == nil {
		return v, nil
	}
	if !errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("read version: %w", err)
	}
	if err := c.client.SetNX(ctx, c.key, 1, 0).Err(); err != nil {
		return 0, fmt.Errorf("init version: %w", err)
	}
	return c.client.Get(ctx, c.key).Int64()
}

// Bump initialises a missing counter at 1 and increments it in one
// MULTI/EXEC, so the first bump returns 2.
func (c *VersionCounter) Bump(ctx context.Context) (int64, error) {
	var incr *redis.IntCmd
	_, err := c.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.SetNX(ctx, c.key, 1, 0)
		incr = p.Incr(ctx, c.key)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("bump version: %w", err)
	}
	return incr.Val(), nil
}

// raiseScript sets KEYS[1] to ARGV[1] when that is larger and returns the
// resulting value. A missing key counts as 1.
var raiseScript = redis.NewScript(`
local cur = tonumber(redis.call('GET', KEYS[1]) or '1')
local floor = tonumber(ARGV[1])
if floor > cur then
  cur = floor
end
redis.call('SET', KEYS[1], cur)
return cur
`)

// Raise lifts the counter to at least floor. Never lowers it.
func (c *VersionCounter) Raise(ctx context.Context, floor int64) (int64, error) {
	v, err := raiseScript.Run(ctx, c.client, []string{c.key}, floor).Int64()
	if err != nil {
		return 0, fmt.Errorf("raise version: %w", err)
	}
	return v, nil
}

func (c *VersionCounter) Close() error {
	return c.client.Close()
}
