package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/seantiz/healthstat/internal/model"
)

const (
	defaultKeyPrefix = "healthstat:"

	// Sorted set members are job ids. byID is scored by id for LastJobID,
	// byFinish by finish time for Prune.
	byIDKey     = "results:by_id"
	byFinishKey = "results:by_finish"

	// markKey is a one-member sorted set holding the highest job id ever
	// persisted. ZADD GT only raises it and Prune never touches it.
	markKey    = "results:watermark"
	markMember = "last_job_id"
)

// Compile-time interface satisfaction check.
var _ Store = (*RedisStore)(nil)

// RedisStore implements Store with one string key per outcome plus two
// sorted-set indexes, all updated in a single MULTI/EXEC.
type RedisStore struct {
	client redis.Cmdable
	prefix string
	closer io.Closer
}

// NewRedisStore wraps an existing client. The caller owns the client
// lifecycle; Close is a no-op.
func NewRedisStore(client redis.Cmdable, prefix string) *RedisStore {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

// NewRedisStoreFromURL connects to the Redis server at url. The returned
// store owns the connection and closes it on Close.
func NewRedisStoreFromURL(url string) (*RedisStore, error) {
	if url == "" {
		return nil, errors.New("redis url is required")
	}
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	s := NewRedisStore(client, defaultKeyPrefix)
	s.closer = client
	return s, nil
}

// Close closes the client if the store created it.
func (s *RedisStore) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

func (s *RedisStore) resultKey(jobID int64) string {
	return s.prefix + "result:" + strconv.FormatInt(jobID, 10)
}

// Persist overwrites the outcome key and refreshes both indexes.
func (s *RedisStore) Persist(ctx context.Context, o *model.Outcome) error {
	data, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("encode outcome: %w", err)
	}

	member := strconv.FormatInt(o.JobID, 10)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.resultKey(o.JobID), data, 0)
		pipe.ZAdd(ctx, s.prefix+byIDKey, redis.Z{Score: float64(o.JobID), Member: member})
		pipe.ZAdd(ctx, s.prefix+byFinishKey, redis.Z{Score: float64(o.FinishedAt.Unix()), Member: member})
		pipe.ZAddGT(ctx, s.prefix+markKey, redis.Z{Score: float64(o.JobID), Member: markMember})
		return nil
	})
	if err != nil {
		return fmt.Errorf("write outcome: %w", err)
	}
	return nil
}

// Get reads the outcome key for jobID.
func (s *RedisStore) Get(ctx context.Context, jobID int64) (*model.Outcome, error) {
	data, err := s.client.Get(ctx, s.resultKey(jobID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get outcome: %w", err)
	}

	o := &model.Outcome{}
	if err := json.Unmarshal(data, o); err != nil {
		return nil, fmt.Errorf("decode outcome: %w", err)
	}
	return o, nil
}

// LastJobID returns the larger of the id mark and the highest-scored member
// of the id index.
func (s *RedisStore) LastJobID(ctx context.Context) (int64, error) {
	var last int64
	mark, err := s.client.ZScore(ctx, s.prefix+markKey, markMember).Result()
	switch {
	case errors.Is(err, redis.Nil):
	case err != nil:
		return 0, fmt.Errorf("read id mark: %w", err)
	default:
		last = int64(mark)
	}

	top, err := s.client.ZRevRangeWithScores(ctx, s.prefix+byIDKey, 0, 0).Result()
	if err != nil {
		return 0, fmt.Errorf("read id index: %w", err)
	}
	if len(top) > 0 && int64(top[0].Score) > last {
		last = int64(top[0].Score)
	}
	return last, nil
}

// Prune deletes outcomes whose finish time is before the given time.
func (s *RedisStore) Prune(ctx context.Context, before time.Time) (int, error) {
	members, err := s.client.ZRangeByScore(ctx, s.prefix+byFinishKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(before.Unix(), 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("read finish index: %w", err)
	}
	if len(members) == 0 {
		return 0, nil
	}

	keys := make([]string, 0, len(members))
	zmembers := make([]any, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			continue
		}
		keys = append(keys, s.resultKey(id))
		zmembers = append(zmembers, m)
	}
	if len(keys) == 0 {
		return 0, nil
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, keys...)
		pipe.ZRem(ctx, s.prefix+byIDKey, zmembers...)
		pipe.ZRem(ctx, s.prefix+byFinishKey, zmembers...)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("delete outcomes: %w", err)
	}
	return len(keys), nil
}
