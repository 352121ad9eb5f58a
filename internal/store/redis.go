package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/i474232898/air-quality-forecast/internal/aqi"
)

const (
	redisKeyPrefix  = "aqi:"
	redisMaxRetries = 10
)

// RedisStore keeps, per collection and location, a sorted set of unix
// timestamps (the index) and a hash from timestamp to document body.
// A set per collection lists the locations in use.
//
// A timestamp owns exactly one hash field, so writing the same
// (collection, location, timestamp) again replaces the earlier body.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to the Redis instance at rawURL.
func NewRedisStore(ctx context.Context, rawURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisStore{client: client}, nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// InsertMany writes docs in one MULTI/EXEC. A document whose timestamp and
// location are already stored overwrites the stored body.
func (s *RedisStore) InsertMany(ctx context.Context, coll aqi.Collection, docs []aqi.Document) error {
	if len(docs) == 0 {
		return nil
	}
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		queueDocs(ctx, pipe, coll, docs)
		return nil
	})
	return err
}

// DeleteAll removes the documents of coll matching f.
func (s *RedisStore) DeleteAll(ctx context.Context, coll aqi.Collection, f aqi.Filter) (int64, error) {
	var deleted int64
	err := s.watch(ctx, coll, f, func(tx *redis.Tx, locations []string) error {
		deleted = 0
		for _, loc := range locations {
			n, err := tx.ZCard(ctx, indexKey(coll, loc)).Result()
			if err != nil {
				return err
			}
			deleted += n
		}
		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			queueClear(ctx, pipe, coll, f, locations)
			return nil
		})
		return err
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

// Replace removes the matching documents and adds docs in one MULTI/EXEC.
func (s *RedisStore) Replace(ctx context.Context, coll aqi.Collection, f aqi.Filter, docs []aqi.Document) error {
	return s.watch(ctx, coll, f, func(tx *redis.Tx, locations []string) error {
		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			queueClear(ctx, pipe, coll, f, locations)
			queueDocs(ctx, pipe, coll, docs)
			return nil
		})
		return err
	})
}

// Find reads a score range per location. With a location filter the limit
// is applied by Redis; without one the per-location results are merged.
func (s *RedisStore) Find(ctx context.Context, coll aqi.Collection, q aqi.Query) ([]aqi.Document, error) {
	var result []aqi.Document
	err := s.watch(ctx, coll, q.Filter, func(tx *redis.Tx, locations []string) error {
		result = nil
		for _, loc := range locations {
			docs, err := findLocation(ctx, tx, coll, loc, q)
			if err != nil {
				return err
			}
			result = append(result, docs...)
		}
		// An empty EXEC fails if a watched key changed while reading.
		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Ping(ctx)
			return nil
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	if q.Location == "" {
		sort.SliceStable(result, func(i, j int) bool {
			if q.Order == aqi.Descending {
				return result[i].Timestamp.After(result[j].Timestamp)
			}
			return result[i].Timestamp.Before(result[j].Timestamp)
		})
		if q.Limit > 0 && len(result) > q.Limit {
			result = result[:q.Limit]
		}
	}
	return result, nil
}

// Close closes the client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// watch runs fn under WATCH on every key fn may touch and retries when a
// concurrent write aborts the transaction. fn receives the locations that
// f selects.
func (s *RedisStore) watch(ctx context.Context, coll aqi.Collection, f aqi.Filter, fn func(tx *redis.Tx, locations []string) error) error {
	for attempt := 0; attempt < redisMaxRetries; attempt++ {
		locations := []string{f.Location}
		keys := []string{locationsKey(coll)}
		if f.Location == "" {
			var err error
			if locations, err = s.client.SMembers(ctx, locationsKey(coll)).Result(); err != nil {
				return err
			}
			sort.Strings(locations)
		}
		for _, loc := range locations {
			keys = append(keys, indexKey(coll, loc), docsKey(coll, loc))
		}

		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			if f.Location == "" {
				current, err := tx.SMembers(ctx, locationsKey(coll)).Result()
				if err != nil {
					return err
				}
				sort.Strings(current)
				if !slices.Equal(locations, current) {
					return redis.TxFailedErr
				}
			}
			return fn(tx, locations)
		}, keys...)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return fmt.Errorf("redis %s: %w after %d attempts", coll, redis.TxFailedErr, redisMaxRetries)
}

func findLocation(ctx context.Context, tx *redis.Tx, coll aqi.Collection, loc string, q aqi.Query) ([]aqi.Document, error) {
	by := &redis.ZRangeBy{
		Min: scoreBound(q.From, "-inf"),
		Max: scoreBound(q.To, "+inf"),
	}
	if q.Limit > 0 {
		by.Count = int64(q.Limit)
	}

	var (
		fields []string
		err    error
	)
	if q.Order == aqi.Descending {
		fields, err = tx.ZRevRangeByScore(ctx, indexKey(coll, loc), by).Result()
	} else {
		fields, err = tx.ZRangeByScore(ctx, indexKey(coll, loc), by).Result()
	}
	if err != nil || len(fields) == 0 {
		return nil, err
	}

	bodies, err := tx.HMGet(ctx, docsKey(coll, loc), fields...).Result()
	if err != nil {
		return nil, err
	}
	docs := make([]aqi.Document, 0, len(fields))
	for i, raw := range bodies {
		body, ok := raw.(string)
		if !ok {
			continue
		}
		sec, err := strconv.ParseInt(fields[i], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("decode redis index member %q: %w", fields[i], err)
		}
		docs = append(docs, aqi.Document{
			Timestamp: time.Unix(sec, 0).UTC(),
			Location:  loc,
			Body:      []byte(body),
		})
	}
	return docs, nil
}

func queueDocs(ctx context.Context, pipe redis.Pipeliner, coll aqi.Collection, docs []aqi.Document) {
	for _, d := range docs {
		field := strconv.FormatInt(d.Timestamp.Unix(), 10)
		pipe.SAdd(ctx, locationsKey(coll), d.Location)
		pipe.ZAdd(ctx, indexKey(coll, d.Location), redis.Z{Score: float64(d.Timestamp.Unix()), Member: field})
		pipe.HSet(ctx, docsKey(coll, d.Location), field, d.Body)
	}
}

func queueClear(ctx context.Context, pipe redis.Pipeliner, coll aqi.Collection, f aqi.Filter, locations []string) {
	for _, loc := range locations {
		pipe.Del(ctx, indexKey(coll, loc), docsKey(coll, loc))
	}
	if f.Location == "" {
		pipe.Del(ctx, locationsKey(coll))
	} else {
		pipe.SRem(ctx, locationsKey(coll), f.Location)
	}
}

func locationsKey(coll aqi.Collection) string {
	return redisKeyPrefix + string(coll) + ":locations"
}

func indexKey(coll aqi.Collection, location string) string {
	return redisKeyPrefix + string(coll) + ":" + location + ":ts"
}

func docsKey(coll aqi.Collection, location string) string {
	return redisKeyPrefix + string(coll) + ":" + location + ":docs"
}

func scoreBound(t time.Time, open string) string {
	if t.IsZero() {
		return open
	}
	return strconv.FormatInt(t.Unix(), 10)
}
