package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/okian/kline/internal/domain/model"
	"github.com/okian/kline/pkg/metrics"
)

const (
	backendRedis = "redis"

	// narrativeSuffix names the hash holding the narratives of a stored
	// timeline, one field per point index.
	narrativeSuffix = "#narr"
	// narrativeIDField records which generation the narratives belong to.
	narrativeIDField = "id"

	maxAttachAttempts = 5
	scanBatch         = 500
)

// RedisStore keeps timelines as JSON values in Redis. Narratives live in a
// hash next to the value so concurrent attaches never rewrite the timeline.
// Each chart has an index set of its timeline keys.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

var _ Store = (*RedisStore)(nil)

// Dial connects to addr and checks the connection.
func Dial(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		PoolSize:     10,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return rdb, nil
}

// NewRedisStore wraps client. Keys default to the "kline:" prefix and a
// 24 hour expiry.
func NewRedisStore(client *redis.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{client: client, prefix: "kline:", ttl: 24 * time.Hour}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) key(k Key) string { return s.prefix + k.String() }

func (s *RedisStore) narrativeKey(k Key) string { return s.key(k) + narrativeSuffix }

// chartIndexKey never contains ':' after the prefix, so it cannot collide
// with a timeline key.
func (s *RedisStore) chartIndexKey(chartID string) string {
	return s.prefix + "charts#" + chartID
}

// Put implements Store. The narratives of the replaced generation are
// dropped in the same transaction.
func (s *RedisStore) Put(ctx context.Context, key Key, tl *model.Timeline) error {
	if err := key.Validate(); err != nil {
		return err
	}
	raw, err := json.Marshal(tl)
	if err != nil {
		return fmt.Errorf("encode timeline: %w", err)
	}
	k := s.key(key)
	idx := s.chartIndexKey(key.ChartID)
	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, k, raw, s.ttl)
		p.Del(ctx, s.narrativeKey(key))
		p.SAdd(ctx, idx, k)
		if s.ttl > 0 {
			p.Expire(ctx, idx, s.ttl)
		}
		return nil
	})
	if err != nil {
		metrics.RecordStoreOperation(backendRedis, "put", "error")
		return fmt.Errorf("redis put: %w", err)
	}
	metrics.RecordStoreOperation(backendRedis, "put", "ok")
	return nil
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, key Key) (*model.Timeline, error) {
	tl, err := load(ctx, s.client, s.key(key))
	if err == nil {
		err = s.mergeNarratives(ctx, key, tl)
	}
	switch {
	case errors.Is(err, ErrNotFound):
		metrics.RecordStoreOperation(backendRedis, "get", "miss")
	case err != nil:
		metrics.RecordStoreOperation(backendRedis, "get", "error")
	default:
		metrics.RecordStoreOperation(backendRedis, "get", "hit")
	}
	if err != nil {
		return nil, err
	}
	return tl, nil
}

// AttachNarrative implements Store. The stored timeline is watched while the
// narrative is written, so a generation stored in between aborts the write
// and the retry reports ErrStaleTimeline. The narratives expire with the
// timeline.
func (s *RedisStore) AttachNarrative(ctx context.Context, key Key, timelineID string, index int, text string) error {
	k := s.key(key)
	nk := s.narrativeKey(key)
	attach := func(tx *redis.Tx) error {
		tl, err := load(ctx, tx, k)
		if err != nil {
			return err
		}
		if tl.ID != timelineID {
			return fmt.Errorf("%w: stored %s, want %s", ErrStaleTimeline, tl.ID, timelineID)
		}
		if err := tl.AttachNarrative(index, text); err != nil {
			return err
		}
		ttl, err := tx.PTTL(ctx, k).Result()
		if err != nil {
			return fmt.Errorf("redis pttl: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.HSet(ctx, nk, narrativeIDField, timelineID, strconv.Itoa(index), text)
			if ttl > 0 {
				p.PExpire(ctx, nk, ttl)
			}
			return nil
		})
		return err
	}

	var err error
	for range maxAttachAttempts {
		err = s.client.Watch(ctx, attach, k)
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
	}
	switch {
	case err == nil:
		metrics.RecordStoreOperation(backendRedis, "attach", "ok")
	case errors.Is(err, ErrNotFound):
		metrics.RecordStoreOperation(backendRedis, "attach", "miss")
	case errors.Is(err, ErrStaleTimeline):
		metrics.RecordStoreOperation(backendRedis, "attach", "stale")
	default:
		metrics.RecordStoreOperation(backendRedis, "attach", "error")
	}
	return err
}

// DeleteChart implements Store.
func (s *RedisStore) DeleteChart(ctx context.Context, chartID string) (int, error) {
	if chartID == "" {
		return 0, fmt.Errorf("%w: empty chart id", ErrInvalidKey)
	}
	idx := s.chartIndexKey(chartID)
	keys, err := s.client.SMembers(ctx, idx).Result()
	if err != nil {
		return 0, fmt.Errorf("redis smembers: %w", err)
	}
	if len(keys) == 0 {
		return 0, nil
	}
	extra := make([]string, 0, len(keys)+1)
	for _, k := range keys {
		extra = append(extra, k+narrativeSuffix)
	}
	extra = append(extra, idx)

	var removed *redis.IntCmd
	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		removed = p.Del(ctx, keys...)
		p.Del(ctx, extra...)
		return nil
	})
	if err != nil {
		metrics.RecordStoreOperation(backendRedis, "delete", "error")
		return 0, fmt.Errorf("redis delete: %w", err)
	}
	metrics.RecordStoreOperation(backendRedis, "delete", "ok")
	return int(removed.Val()), nil
}

// Count implements Store by scanning the prefix. Errors count as zero.
func (s *RedisStore) Count(ctx context.Context) int {
	n := 0
	it := s.client.Scan(ctx, 0, s.prefix+"*", scanBatch).Iterator()
	for it.Next(ctx) {
		rest := strings.TrimPrefix(it.Val(), s.prefix)
		if strings.Contains(rest, ":") && !strings.HasSuffix(rest, narrativeSuffix) {
			n++
		}
	}
	if it.Err() != nil {
		return 0
	}
	return n
}

// mergeNarratives copies the narratives of tl's generation onto its points.
func (s *RedisStore) mergeNarratives(ctx context.Context, key Key, tl *model.Timeline) error {
	fields, err := s.client.HGetAll(ctx, s.narrativeKey(key)).Result()
	if err != nil {
		return fmt.Errorf("redis hgetall: %w", err)
	}
	if len(fields) == 0 || fields[narrativeIDField] != tl.ID {
		return nil
	}
	for f, text := range fields {
		i, err := strconv.Atoi(f)
		if err != nil {
			continue
		}
		_ = tl.AttachNarrative(i, text)
	}
	return nil
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func load(ctx context.Context, c getter, key string) (*model.Timeline, error) {
	val, err := c.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}
	var tl model.Timeline
	if err := json.Unmarshal(val, &tl); err != nil {
		return nil, fmt.Errorf("decode timeline %s: %w", key, err)
	}
	return &tl, nil
}
