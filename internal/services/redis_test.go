package services_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/casevault/reward-service/internal/config"
	"github.com/casevault/reward-service/internal/errs"
	"github.com/casevault/reward-service/internal/models"
	"github.com/casevault/reward-service/internal/services"
)

func setupTestRedis(t *testing.T) *services.RedisLedger {
	t.Helper()

	cfg := config.RedisConfig{
		URL:  "localhost:6379",
		Pass: "",
		DB:   15,
	}

	client, err := services.NewRedisClient(cfg)
	if err != nil {
		t.Skipf("Redis not available: %v", err)
	}

	return services.NewRedisLedger(client, time.Hour)
}

func TestRedisLedger(t *testing.T) {
	ledger := setupTestRedis(t)
	defer ledger.Close()

	prefix := models.GenerateOpeningID() + "_"
	exerciseLedger(t, ledger, prefix)
}

func TestRedisRateLimiter(t *testing.T) {
	ledger := setupTestRedis(t)
	defer ledger.Close()

	limiter := services.NewRedisRateLimiter(ledger.Client())
	ctx := context.Background()
	key := models.GenerateOpeningID()

	for i := 0; i < 5; i++ {
		allowed, err := limiter.CheckRateLimit(ctx, key, services.ActionReward, 5, time.Minute)
		if err != nil {
			t.Fatalf("Failed to check rate limit: %v", err)
		}
		if !allowed {
			t.Errorf("Request %d should be allowed", i+1)
		}
	}

	allowed, err := limiter.CheckRateLimit(ctx, key, services.ActionReward, 5, time.Minute)
	if err != nil {
		t.Fatalf("Failed to check rate limit: %v", err)
	}
	if allowed {
		t.Error("Sixth request should be rejected")
	}

	if err := limiter.ClearRateLimit(ctx, key, services.ActionReward); err != nil {
		t.Errorf("Failed to clear rate limit: %v", err)
	}
}

func TestRedisLedgerRecordIsAtomic(t *testing.T) {
	ledger := setupTestRedis(t)
	defer ledger.Close()

	ctx := context.Background()
	client := ledger.Client()
	id := models.GenerateOpeningID()
	defer client.Del(ctx, fmt.Sprintf(services.KeyOpening, id))
	defer client.ZRem(ctx, services.KeyOpeningsRecent, id)

	entry := &models.LedgerEntry{
		OpeningID:  id,
		ServerSeed: "aa",
		Commitment: "bb",
		Source:     models.SourceServerMVP,
		CaseTypeID: "1",
		CreatedAt:  time.Now().UTC(),
	}
	if err := ledger.Record(ctx, entry); err != nil {
		t.Fatalf("Failed to record entry: %v", err)
	}

	ttl, err := client.PTTL(ctx, fmt.Sprintf(services.KeyOpening, id)).Result()
	if err != nil {
		t.Fatalf("Failed to read entry TTL: %v", err)
	}
	if ttl <= 0 || ttl > time.Hour {
		t.Errorf("Entry TTL should follow the retention, got %v", ttl)
	}

	score, err := client.ZScore(ctx, services.KeyOpeningsRecent, id).Result()
	if err != nil {
		t.Fatalf("Entry should be indexed: %v", err)
	}
	if int64(score) != entry.CreatedAt.UnixMilli() {
		t.Errorf("Index score should be the creation time, got %v", score)
	}

	other := *entry
	other.CaseTypeID = "2"
	other.CreatedAt = entry.CreatedAt.Add(time.Minute)
	if err := ledger.Record(ctx, &other); !errs.Is(err, errs.ErrLedgerConflict) {
		t.Fatalf("Duplicate id should conflict, got %v", err)
	}

	score, err = client.ZScore(ctx, services.KeyOpeningsRecent, id).Result()
	if err != nil || int64(score) != entry.CreatedAt.UnixMilli() {
		t.Errorf("A conflicting record must not touch the index, got %v (%v)", score, err)
	}
}

func TestRedisRateLimiterRestoresMissingExpiry(t *testing.T) {
	ledger := setupTestRedis(t)
	defer ledger.Close()

	ctx := context.Background()
	client := ledger.Client()
	limiter := services.NewRedisRateLimiter(client)
	key := models.GenerateOpeningID()
	redisKey := fmt.Sprintf(services.KeyRateLimit, key, services.ActionReward)
	defer client.Del(ctx, redisKey)

	// A counter stranded without an expiry by an earlier failure.
	if err := client.Set(ctx, redisKey, 3, 0).Err(); err != nil {
		t.Fatalf("Failed to seed counter: %v", err)
	}

	if _, err := limiter.CheckRateLimit(ctx, key, services.ActionReward, 5, time.Minute); err != nil {
		t.Fatalf("Failed to check rate limit: %v", err)
	}

	ttl, err := client.PTTL(ctx, redisKey).Result()
	if err != nil {
		t.Fatalf("Failed to read TTL: %v", err)
	}
	if ttl <= 0 || ttl > time.Minute {
		t.Errorf("Counter should expire within the window, got %v", ttl)
	}
}
