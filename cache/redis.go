package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/xraph/bastion"
	"github.com/xraph/bastion/permission"
)

// Compile-time interface check.
var _ bastion.Cache = (*Redis)(nil)

// Redis is a Decision Cache shared by every engine instance that points
// at the same Redis server.
//
// Invalidation bumps version counters instead of deleting keys. Entry
// keys embed the global, subject and resource versions current when they
// were written, so a bump makes every older entry unreachable and it ages
// out with its TTL. Version counters outlive every entry written under
// them.
type Redis struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// RedisOption configures the Redis cache.
type RedisOption func(*Redis)

// WithPrefix sets the key prefix. Defaults to "bastion:authz:".
func WithPrefix(prefix string) RedisOption {
	return func(r *Redis) { r.prefix = prefix }
}

// WithRedisTTL sets the cache entry time-to-live.
func WithRedisTTL(ttl time.Duration) RedisOption {
	return func(r *Redis) { r.ttl = ttl }
}

// NewRedis creates a Redis-backed cache on an existing client.
func NewRedis(client redis.UniversalClient, opts ...RedisOption) *Redis {
	r := &Redis{
		client: client,
		prefix: "bastion:authz:",
		ttl:    5 * time.Minute,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Get returns the cached decision, if any.
func (r *Redis) Get(ctx context.Context, key bastion.CacheKey) (*bastion.Decision, bool, error) {
	vkeys := r.versionKeys(key)
	versions, err := r.versions(ctx, vkeys)
	if err != nil {
		return nil, false, err
	}
	raw, err := r.client.Get(ctx, r.entryKey(key, versions)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache: redis get: %w", err)
	}
	var d bastion.Decision
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, false, fmt.Errorf("cache: decode decision: %w", err)
	}
	return &d, true, nil
}

// Set stores the decision under the current versions.
func (r *Redis) Set(ctx context.Context, key bastion.CacheKey, d *bastion.Decision) error {
	raw, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("cache: encode decision: %w", err)
	}
	vkeys := r.versionKeys(key)
	versions, err := r.versions(ctx, vkeys)
	if err != nil {
		return err
	}
	_, err = r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, r.entryKey(key, versions), raw, r.ttl)
		for _, vk := range vkeys {
			p.Expire(ctx, vk, r.versionTTL())
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("cache: redis set: %w", err)
	}
	return nil
}

// InvalidateSubject makes every decision cached for the subject
// unreachable.
func (r *Redis) InvalidateSubject(ctx context.Context, subjectID string) error {
	return r.bump(ctx, r.subjectVersionKey(subjectID))
}

// InvalidateResource makes every decision cached for the resource
// unreachable.
func (r *Redis) InvalidateResource(ctx context.Context, rt permission.ResourceType, resourceID string) error {
	return r.bump(ctx, r.resourceVersionKey(rt, resourceID))
}

// InvalidateAll makes every cached decision unreachable.
func (r *Redis) InvalidateAll(ctx context.Context) error {
	return r.bump(ctx, r.prefix+"v:all")
}

func (r *Redis) bump(ctx context.Context, vkey string) error {
	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Incr(ctx, vkey)
		p.Expire(ctx, vkey, r.versionTTL())
		return nil
	})
	if err != nil {
		return fmt.Errorf("cache: redis invalidate %s: %w", vkey, err)
	}
	return nil
}

// versionTTL keeps a counter alive past every entry written under it, so
// a counter never resets while such an entry could still be read.
func (r *Redis) versionTTL() time.Duration { return 2 * r.ttl }

func (r *Redis) versionKeys(key bastion.CacheKey) []string {
	keys := []string{r.prefix + "v:all", r.subjectVersionKey(key.SubjectID)}
	if key.ResourceID != "" {
		keys = append(keys, r.resourceVersionKey(key.ResourceType, key.ResourceID))
	}
	return keys
}

func (r *Redis) subjectVersionKey(subjectID string) string {
	return r.prefix + "v:s:" + subjectID
}

func (r *Redis) resourceVersionKey(rt permission.ResourceType, resourceID string) string {
	return r.prefix + "v:r:" + string(rt) + ":" + resourceID
}

// versions reads the counters; a missing counter is version 0.
func (r *Redis) versions(ctx context.Context, vkeys []string) ([]int64, error) {
	vals, err := r.client.MGet(ctx, vkeys...).Result()
	if err != nil {
		return nil, fmt.Errorf("cache: redis versions: %w", err)
	}
	out := make([]int64, len(vals))
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("cache: redis version %s: %w", vkeys[i], err)
		}
		out[i] = n
	}
	return out, nil
}

func (r *Redis) entryKey(key bastion.CacheKey, versions []int64) string {
	b := make([]byte, 0, len(r.prefix)+64)
	b = append(b, r.prefix...)
	b = append(b, "d:"...)
	for _, v := range versions {
		b = strconv.AppendInt(b, v, 10)
		b = append(b, '.')
	}
	b = append(b, ':')
	b = append(b, key.String()...)
	return string(b)
}
