// Package history keeps recent evaluation results in Redis for fast lookup
// by request id or task id. Entries expire after the configured TTL; the
// durable record lives in Postgres (see the store package).
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/agentalign/internal/metrics"
	"github.com/ajitpratap0/agentalign/internal/orchestrator"
)

// ErrNotFound is returned when no result exists for a request id.
var ErrNotFound = errors.New("result not found")

// Config configures the history store.
type Config struct {
	Addr     string
	Password string
	DB       int
	Prefix   string        // Key prefix (default: "agentalign:history:")
	TTL      time.Duration // How long results stay queryable
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		Addr:   "localhost:6379",
		Prefix: "agentalign:history:",
		TTL:    24 * time.Hour,
	}
}

// Store is a Redis-backed window of recent evaluation results. Each result
// is stored under its request id, with sorted-set indices for recency and
// per-task lookup.
type Store struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// New connects to Redis and returns a history store.
func New(cfg Config) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	store := NewWithClient(client, cfg.Prefix, cfg.TTL)

	log.Info().
		Str("redis_addr", cfg.Addr).
		Str("prefix", store.prefix).
		Dur("ttl", store.ttl).
		Msg("History store initialized")

	return store, nil
}

// NewWithClient wraps an existing Redis client. Used by tests and by
// callers that manage the client lifecycle themselves.
func NewWithClient(client *redis.Client, prefix string, ttl time.Duration) *Store {
	if prefix == "" {
		prefix = "agentalign:history:"
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Store{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

// Put records a completed evaluation result. The write, the recency index
// update, and the task index update happen in one pipeline.
func (s *Store) Put(ctx context.Context, result *orchestrator.Result) error {
	if result == nil {
		return fmt.Errorf("result is nil")
	}
	if result.RequestID == "" {
		return fmt.Errorf("result has no request id")
	}

	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	key := s.resultKey(result.RequestID)
	now := time.Now()
	score := float64(now.UnixNano())

	pipe := s.client.Pipeline()

	pipe.Set(ctx, key, data, s.ttl)

	// Recency index; entries older than the TTL are swept on each write
	// so the index does not accumulate dangling members.
	recentKey := s.recentIndexKey()
	pipe.ZAdd(ctx, recentKey, redis.Z{Score: score, Member: key})
	cutoff := now.Add(-s.ttl).UnixNano()
	pipe.ZRemRangeByScore(ctx, recentKey, "-inf", fmt.Sprintf("%d", cutoff))

	// Task index expires alongside the last result written for the task.
	taskKey := s.taskIndexKey(result.TaskID)
	pipe.ZAdd(ctx, taskKey, redis.Z{Score: score, Member: key})
	pipe.Expire(ctx, taskKey, s.ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store result and indices: %w", err)
	}
	metrics.RecordRedisOperation("history_put")

	log.Debug().
		Str("request_id", result.RequestID).
		Str("task_id", result.TaskID).
		Str("alignment_state", string(result.State())).
		Msg("Recorded evaluation result in history")

	return nil
}

// Get retrieves one result by request id. Returns ErrNotFound when the
// result never existed or has expired.
func (s *Store) Get(ctx context.Context, requestID string) (*orchestrator.Result, error) {
	data, err := s.client.Get(ctx, s.resultKey(requestID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to fetch result: %w", err)
	}
	metrics.RecordRedisOperation("history_get")

	var result orchestrator.Result
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal result: %w", err)
	}
	return &result, nil
}

// Recent returns up to limit results, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]*orchestrator.Result, error) {
	if limit <= 0 {
		return []*orchestrator.Result{}, nil
	}

	keys, err := s.client.ZRevRange(ctx, s.recentIndexKey(), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to query recency index: %w", err)
	}
	metrics.RecordRedisOperation("history_recent")

	return s.getByKeys(ctx, keys)
}

// ByTask returns up to limit results for one task, newest first. A task
// evaluated more than once keeps one entry per run.
func (s *Store) ByTask(ctx context.Context, taskID string, limit int) ([]*orchestrator.Result, error) {
	if limit <= 0 {
		return []*orchestrator.Result{}, nil
	}

	keys, err := s.client.ZRevRange(ctx, s.taskIndexKey(taskID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to query task index: %w", err)
	}
	metrics.RecordRedisOperation("history_by_task")

	return s.getByKeys(ctx, keys)
}

// Prune removes recency index members whose results have already expired.
// Returns the number of members removed.
func (s *Store) Prune(ctx context.Context) (int, error) {
	recentKey := s.recentIndexKey()

	keys, err := s.client.ZRange(ctx, recentKey, 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to list recency index: %w", err)
	}

	pruned := 0
	for _, key := range keys {
		exists, err := s.client.Exists(ctx, key).Result()
		if err != nil {
			continue
		}
		if exists == 0 {
			s.client.ZRem(ctx, recentKey, key)
			pruned++
		}
	}

	if pruned > 0 {
		log.Info().Int("pruned", pruned).Msg("Pruned expired history entries")
	}

	return pruned, nil
}

// Stats returns counts describing the current history window.
func (s *Store) Stats(ctx context.Context) (map[string]interface{}, error) {
	count, err := s.client.ZCard(ctx, s.recentIndexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to count recency index: %w", err)
	}

	return map[string]interface{}{
		"recent_results": count,
		"ttl_seconds":    int64(s.ttl.Seconds()),
	}, nil
}

// Health checks the Redis connection.
func (s *Store) Health(ctx context.Context) error {
	healthCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := s.client.Ping(healthCtx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}

// Close closes the history store connection.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) resultKey(requestID string) string {
	return fmt.Sprintf("%sresult:%s", s.prefix, requestID)
}

func (s *Store) recentIndexKey() string {
	return s.prefix + "index:recent"
}

func (s *Store) taskIndexKey(taskID string) string {
	return fmt.Sprintf("%stask:%s", s.prefix, taskID)
}

func (s *Store) getByKeys(ctx context.Context, keys []string) ([]*orchestrator.Result, error) {
	if len(keys) == 0 {
		return []*orchestrator.Result{}, nil
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch results: %w", err)
	}

	results := make([]*orchestrator.Result, 0, len(values))
	for _, value := range values {
		if value == nil {
			// Result expired after its index entry was read
			continue
		}

		data, ok := value.(string)
		if !ok {
			continue
		}

		var result orchestrator.Result
		if err := json.Unmarshal([]byte(data), &result); err != nil {
			log.Warn().Err(err).Msg("Failed to unmarshal history entry")
			continue
		}

		results = append(results, &result)
	}

	return results, nil
}
