package redis

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/aurumfi/goldvault/internal/domain"
	"github.com/redis/go-redis/v9"
)

// defaultPriceTTL bounds how stale a cached oracle price may get before
// preview calls fall through to the RPC node again.
const defaultPriceTTL = 15 * time.Second

// PriceCache implements domain.PriceCache on plain Redis string keys. Prices
// are stored as decimal strings of scaled units so no precision is lost at
// the cache boundary.
type PriceCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewPriceCache creates a PriceCache backed by the given Client. A
// non-positive ttl selects the default staleness window.
func NewPriceCache(c *Client, ttl time.Duration) *PriceCache {
	if ttl <= 0 {
		ttl = defaultPriceTTL
	}
	return &PriceCache{rdb: c.Underlying(), ttl: ttl}
}

func priceKey(asset string) string {
	return "price:" + asset
}

// Set stores the latest oracle price for an asset.
func (pc *PriceCache) Set(ctx context.Context, asset string, price *big.Int) error {
	if price == nil || price.Sign() <= 0 {
		return fmt.Errorf("redis: set price %s: %w", asset, domain.ErrInvalidAmount)
	}
	if err := pc.rdb.Set(ctx, priceKey(asset), price.String(), pc.ttl).Err(); err != nil {
		return fmt.Errorf("redis: set price %s: %w", asset, err)
	}
	return nil
}

// Get retrieves the cached price for an asset. It returns domain.ErrNotFound
// when the key is missing or has expired.
func (pc *PriceCache) Get(ctx context.Context, asset string) (*big.Int, error) {
	val, err := pc.rdb.Get(ctx, priceKey(asset)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("redis: get price %s: %w", asset, err)
	}

	price, ok := new(big.Int).SetString(val, 10)
	if !ok {
		return nil, fmt.Errorf("redis: get price %s: malformed value %q", asset, val)
	}
	return price, nil
}

// Compile-time interface check.
var _ domain.PriceCache = (*PriceCache)(nil)
