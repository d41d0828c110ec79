package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/persistorai/ledger/internal/ledger"
	"github.com/persistorai/ledger/internal/models"
)

const keyPrefix = "ledger:integrity:"

// IntegrityCache implements ledger.ResultCache over Redis. Entries expire
// after the TTL; a stale indicator is the accepted cost of a cheap one.
type IntegrityCache struct {
	rdb redis.Cmdable
	ttl time.Duration
}

// NewIntegrityCache creates an IntegrityCache.
func NewIntegrityCache(rdb redis.Cmdable, ttl time.Duration) *IntegrityCache {
	return &IntegrityCache{rdb: rdb, ttl: ttl}
}

// Key returns the Redis key holding an organization's latest result.
func Key(orgID string) string {
	return keyPrefix + orgID
}

// Get implements ledger.ResultCache. A miss returns nil, nil.
func (c *IntegrityCache) Get(ctx context.Context, orgID string) (*models.VerificationResult, error) {
	raw, err := c.rdb.Get(ctx, Key(orgID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("reading integrity cache: %w", err)
	}

	var res models.VerificationResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("decoding integrity cache entry: %w", err)
	}

	return &res, nil
}

// Set implements ledger.ResultCache.
func (c *IntegrityCache) Set(ctx context.Context, res *models.VerificationResult) error {
	raw, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encoding integrity cache entry: %w", err)
	}

	if err := c.rdb.Set(ctx, Key(res.OrganizationID), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("writing integrity cache: %w", err)
	}

	return nil
}

// Invalidate implements ledger.ResultCache.
func (c *IntegrityCache) Invalidate(ctx context.Context, orgID string) error {
	return c.rdb.Del(ctx, Key(orgID)).Err()
}

var _ ledger.ResultCache = (*IntegrityCache)(nil)
