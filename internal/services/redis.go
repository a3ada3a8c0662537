package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/casevault/reward-service/internal/config"
	"github.com/casevault/reward-service/internal/errs"
	"github.com/casevault/reward-service/internal/models"
)

func NewRedisClient(cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.URL,
		Password: cfg.Pass,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %v", err)
	}

	return client, nil
}

// RedisLedger is the shared ledger for multi-instance deployments. Each
// opening is written with SETNX so concurrent writers can never overwrite
// one another; openings:recent indexes ids by creation time.
type RedisLedger struct {
	client    *redis.Client
	retention time.Duration
}

// recordScript stores the entry and its index together, or neither when the id
// is already taken. It returns 1 on insert and 0 on conflict.
var recordScript = redis.NewScript(`
if not redis.call("SET", KEYS[1], ARGV[1], "NX", "PX", ARGV[2]) then
	return 0
end
redis.call("ZADD", KEYS[2], ARGV[3], ARGV[4])
return 1
`)

func NewRedisLedger(client *redis.Client, retention time.Duration) *RedisLedger {
	if retention <= 0 {
		retention = TTLOpening
	}
	return &RedisLedger{client: client, retention: retention}
}

func (l *RedisLedger) Record(ctx context.Context, entry *models.LedgerEntry) error {
	if err := validateEntry(entry); err != nil {
		return err
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal ledger entry: %v", err)
	}

	key := fmt.Sprintf(KeyOpening, entry.OpeningID)
	created, err := recordScript.Run(ctx, l.client,
		[]string{key, KeyOpeningsRecent},
		data, l.retention.Milliseconds(), entry.CreatedAt.UnixMilli(), entry.OpeningID,
	).Int()
	if err != nil {
		return errs.Wrap(err, "failed to save ledger entry")
	}
	if created == 0 {
		return ledgerConflict(entry.OpeningID)
	}

	return nil
}

func (l *RedisLedger) Lookup(ctx context.Context, openingID string) (*models.LedgerEntry, error) {
	key := fmt.Sprintf(KeyOpening, openingID)

	data, err := l.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, openingNotFound(openingID)
	}
	if err != nil {
		return nil, errs.Wrap(err, "failed to get ledger entry")
	}

	var entry models.LedgerEntry
	if err := json.Unmarshal([]byte(data), &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal ledger entry: %v", err)
	}

	return &entry, nil
}

func (l *RedisLedger) Recent(ctx context.Context, limit int) ([]*models.LedgerEntry, error) {
	limit = clampLimit(limit)

	ids, err := l.client.ZRevRange(ctx, KeyOpeningsRecent, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get opening IDs: %v", err)
	}
	if len(ids) == 0 {
		return []*models.LedgerEntry{}, nil
	}

	pipe := l.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.Get(ctx, fmt.Sprintf(KeyOpening, id))
	}

	_, err = pipe.Exec(ctx)
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("pipeline execution failed: %v", err)
	}

	entries := make([]*models.LedgerEntry, 0, len(ids))
	for _, cmd := range cmds {
		data, err := cmd.Result()
		if err != nil {
			// expired by TTL but not yet pruned from the index
			continue
		}

		var entry models.LedgerEntry
		if err := json.Unmarshal([]byte(data), &entry); err != nil {
			continue
		}
		entries = append(entries, &entry)
	}

	return entries, nil
}

func (l *RedisLedger) Prune(ctx context.Context, olderThan time.Time) (int, error) {
	upper := "(" + strconv.FormatInt(olderThan.UnixMilli(), 10)

	ids, err := l.client.ZRangeByScore(ctx, KeyOpeningsRecent, &redis.ZRangeBy{
		Min: "-inf",
		Max: upper,
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get stale opening IDs: %v", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	keys := make([]string, len(ids))
	members := make([]interface{}, len(ids))
	for i, id := range ids {
		keys[i] = fmt.Sprintf(KeyOpening, id)
		members[i] = id
	}

	pipe := l.client.TxPipeline()
	pipe.Del(ctx, keys...)
	pipe.ZRem(ctx, KeyOpeningsRecent, members...)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to prune ledger: %v", err)
	}

	return len(ids), nil
}

func (l *RedisLedger) Close() error {
	return l.client.Close()
}

// rateLimitScript increments the window counter and sets its expiry in one step.
// A counter left without a TTL gets one on the next hit.
var rateLimitScript = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 or redis.call("PTTL", KEYS[1]) == -1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n
`)

// RedisRateLimiter counts requests per key in fixed windows shared by all instances.
type RedisRateLimiter struct {
	client *redis.Client
}

func NewRedisRateLimiter(client *redis.Client) *RedisRateLimiter {
	return &RedisRateLimiter{client: client}
}

func (r *RedisRateLimiter) CheckRateLimit(ctx context.Context, key, action string, limit int, window time.Duration) (bool, error) {
	redisKey := fmt.Sprintf(KeyRateLimit, key, action)

	count, err := rateLimitScript.Run(ctx, r.client, []string{redisKey}, window.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("failed to check rate limit: %v", err)
	}

	return count <= int64(limit), nil
}

func (r *RedisRateLimiter) ClearRateLimit(ctx context.Context, key, action string) error {
	return r.client.Del(ctx, fmt.Sprintf(KeyRateLimit, key, action)).Err()
}

// Client exposes the connection so the rate limiter can share it.
func (l *RedisLedger) Client() *redis.Client {
	return l.client
}
