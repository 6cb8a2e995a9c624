package stats

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"media-pool/internal/mediapool"

	"github.com/redis/go-redis/v9"
)

// RedisStore writes event counters to Redis hashes:
//
//	<prefix>:total                       field = kind
//	<prefix>:container:<id>              field = kind            (expires after ttl, deleted on close)
//	<prefix>:type                        field = <type>:<kind>
//	<prefix>:minute:<yyyymmddhhmm>       field = kind            (expires after ttl)
type RedisStore struct {
	rdb    redis.Cmdable
	prefix string
	ttl    time.Duration
	bucket bool
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) RedisOption {
	return func(s *RedisStore) { s.prefix = strings.Trim(prefix, ":") }
}

// WithTTL sets the expiry of per-container and per-minute keys. Zero keeps
// them forever.
func WithTTL(d time.Duration) RedisOption {
	return func(s *RedisStore) { s.ttl = d }
}

// WithMinuteBuckets toggles the per-minute time series.
func WithMinuteBuckets(on bool) RedisOption {
	return func(s *RedisStore) { s.bucket = on }
}

// NewRedisStore returns a RedisStore writing through rdb.
func NewRedisStore(rdb redis.Cmdable, opts ...RedisOption) *RedisStore {
	s := &RedisStore{
		rdb:    rdb,
		prefix: "mediapool:stats",
		ttl:    24 * time.Hour,
		bucket: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Record implements mediapool.Recorder.
func (s *RedisStore) Record(ctx context.Context, ev mediapool.Event) error {
	if s == nil || s.rdb == nil {
		return nil
	}

	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	kind := string(ev.Kind)

	pipe := s.rdb.Pipeline()
	pipe.HIncrBy(ctx, s.prefix+":total", kind, 1)

	switch {
	case ev.Kind == mediapool.EventClosed:
		pipe.Del(ctx, s.containerKey(ev.Container))
	case ev.Container != "":
		key := s.containerKey(ev.Container)
		pipe.HIncrBy(ctx, key, kind, 1)
		if s.ttl > 0 {
			pipe.Expire(ctx, key, s.ttl)
		}
	}

	if ev.Kind != mediapool.EventBlessed && ev.Kind != mediapool.EventClosed {
		pipe.HIncrBy(ctx, s.prefix+":type", ev.Type.String()+":"+kind, 1)
	}

	if s.bucket {
		key := fmt.Sprintf("%s:minute:%s", s.prefix, at.UTC().Format("200601021504"))
		pipe.HIncrBy(ctx, key, kind, 1)
		if s.ttl > 0 {
			pipe.Expire(ctx, key, s.ttl)
		}
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record %s event: %w", kind, err)
	}
	return nil
}

func (s *RedisStore) containerKey(id mediapool.ContainerID) string {
	return s.prefix + ":container:" + string(id)
}

// Totals reads back the overall counters.
func (s *RedisStore) Totals(ctx context.Context) (map[string]int64, error) {
	return s.readHash(ctx, s.prefix+":total")
}

// TotalCounts implements mediapool.EventCounters.
func (s *RedisStore) TotalCounts(ctx context.Context) (Counters, error) {
	raw, err := s.readHash(ctx, s.prefix+":total")
	if err != nil {
		return nil, err
	}
	return toCounters(raw), nil
}

// ContainerCounts implements mediapool.EventCounters. A closed or unknown
// container has no counters.
func (s *RedisStore) ContainerCounts(ctx context.Context, id mediapool.ContainerID) (Counters, error) {
	raw, err := s.readHash(ctx, s.containerKey(id))
	if err != nil {
		return nil, err
	}
	return toCounters(raw), nil
}

func (s *RedisStore) readHash(ctx context.Context, key string) (map[string]int64, error) {
	raw, err := s.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	out := make(map[string]int64, len(raw))
	for k, v := range raw {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse counter %s: %w", k, err)
		}
		out[k] = n
	}
	return out, nil
}

func toCounters(raw map[string]int64) Counters {
	out := make(Counters, len(raw))
	for k, v := range raw {
		out[mediapool.EventKind(k)] = v
	}
	return out
}
