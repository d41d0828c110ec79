package cache_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/persistorai/ledger/internal/cache"
	"github.com/persistorai/ledger/internal/models"
)

func TestKey(t *testing.T) {
	if got := cache.Key("org-a"); got != "ledger:integrity:org-a" {
		t.Fatalf("Key = %q", got)
	}
}

func TestOpenRedis_RequiresURL(t *testing.T) {
	if _, err := cache.OpenRedis(context.Background(), cache.RedisConfig{}); err == nil {
		t.Fatal("expected an error for an empty url")
	}

	if _, err := cache.OpenRedis(context.Background(), cache.RedisConfig{URL: "http://nope"}); err == nil {
		t.Fatal("expected an error for a non-redis url")
	}
}

func TestIntegrityCache_RoundTrip(t *testing.T) {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}

	ctx := context.Background()

	rdb, err := cache.OpenRedis(ctx, cache.RedisConfig{URL: url})
	if err != nil {
		t.Fatalf("connecting to redis: %v", err)
	}
	defer rdb.Close()

	c := cache.NewIntegrityCache(rdb, time.Minute)
	orgID := "org-" + uuid.NewString()

	miss, err := c.Get(ctx, orgID)
	if err != nil || miss != nil {
		t.Fatalf("expected a clean miss, got %+v, %v", miss, err)
	}

	broken := int64(42)
	want := &models.VerificationResult{
		OrganizationID: orgID,
		BrokenAtSeq:    &broken,
		Reason:         "stored hash does not match recomputed hash",
		EntriesChecked: 12,
		VerifiedAt:     time.Date(2026, 3, 1, 8, 30, 0, 0, time.UTC),
	}

	if err := c.Set(ctx, want); err != nil {
		t.Fatalf("set: %v", err)
	}

	got, err := c.Get(ctx, orgID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	if got == nil || got.OK || got.BrokenAtSeq == nil || *got.BrokenAtSeq != 42 || got.EntriesChecked != 12 {
		t.Fatalf("round trip = %+v", got)
	}

	if err := c.Invalidate(ctx, orgID); err != nil {
		t.Fatalf("invalidate: %v", err)
	}

	if again, _ := c.Get(ctx, orgID); again != nil {
		t.Fatal("expected a miss after invalidation")
	}
}
