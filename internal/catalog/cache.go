package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/fjod/go_till/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

var ErrCacheMiss = errors.New("cache miss")

// CachedStore decorates a Store with a redis read cache for product lookups.
// Lookups for the same product collapse through singleflight, and all redis
// calls run behind a circuit breaker so a flapping redis degrades to direct
// database reads instead of failing requests.
type CachedStore struct {
	Store

	client  *redis.Client
	breaker *gobreaker.CircuitBreaker[[]byte]
	sfg     singleflight.Group
	baseTTL time.Duration
	logger  *zap.Logger
}

func NewCachedStore(inner Store, client *redis.Client, logger *zap.Logger) *CachedStore {
	breaker := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:    "catalog-cache",
		Timeout: 30 * time.Second,
	})
	return &CachedStore{
		Store:   inner,
		client:  client,
		breaker: breaker,
		baseTTL: 15 * time.Minute,
		logger:  logger,
	}
}

func (c *CachedStore) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	key := cacheKey(id)

	v, err, _ := c.sfg.Do(key, func() (interface{}, error) {
		p, err := c.cacheGet(ctx, key)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, ErrCacheMiss) {
			c.logger.Warn("cache get failed", zap.Int64("product_id", id), zap.Error(err))
		}

		p, errGet := c.Store.GetProduct(ctx, id)
		if errGet != nil {
			return nil, errGet
		}

		if errSet := c.cacheSet(ctx, key, p); errSet != nil {
			c.logger.Warn("cache set failed", zap.Int64("product_id", id), zap.Error(errSet))
		}

		return p, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(*domain.Product), nil
}

func (c *CachedStore) DecrementStock(ctx context.Context, id int64, qty int) (int, error) {
	stock, err := c.Store.DecrementStock(ctx, id, qty)
	c.invalidate(id)
	return stock, err
}

func (c *CachedStore) IncrementStock(ctx context.Context, id int64, qty int) (int, error) {
	stock, err := c.Store.IncrementStock(ctx, id, qty)
	c.invalidate(id)
	return stock, err
}

func (c *CachedStore) cacheGet(ctx context.Context, key string) (*domain.Product, error) {
	data, err := c.breaker.Execute(func() ([]byte, error) {
		data, err := c.client.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return data, err
	})
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}
	if data == nil {
		return nil, ErrCacheMiss
	}

	var p domain.Product
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("unmarshal product failed: %w", err)
	}
	return &p, nil
}

func (c *CachedStore) cacheSet(ctx context.Context, key string, p *domain.Product) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal product failed: %w", err)
	}

	jitter := time.Duration(rand.Intn(5)) * time.Minute
	ttl := c.baseTTL + jitter
	_, err = c.breaker.Execute(func() ([]byte, error) {
		return nil, c.client.Set(ctx, key, data, ttl).Err()
	})
	if err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// invalidate runs on its own short deadline so a slow redis cannot stall the
// settlement path it is called from.
func (c *CachedStore) invalidate(id int64) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := c.breaker.Execute(func() ([]byte, error) {
		return nil, c.client.Del(ctx, cacheKey(id)).Err()
	})
	if err != nil {
		c.logger.Warn("cache invalidate failed", zap.Int64("product_id", id), zap.Error(err))
	}
}

func cacheKey(id int64) string {
	return fmt.Sprintf("product:%d", id)
}
