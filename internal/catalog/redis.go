package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iurnickita/cashback/internal/catalog/config"
	"github.com/iurnickita/cashback/internal/model"
)

const defaultCacheTTL = 5 * time.Minute

// ConnectRedis opens the cache connection and checks it with PING.
func ConnectRedis(ctx context.Context, cfg config.Config) (redis.UniversalClient, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  1 * time.Second,
		ReadTimeout:  400 * time.Millisecond,
		WriteTimeout: 400 * time.Millisecond,
		MaxRetries:   1,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return rdb, nil
}

// redisCache - read-through кэш поверх другого каталога.
// Ошибки Redis не ломают расчет: запрос уходит в источник.
type redisCache struct {
	next   Catalog
	rdb    redis.UniversalClient
	ttl    time.Duration
	zaplog *zap.Logger
}

func NewRedisCache(next Catalog, rdb redis.UniversalClient, ttl time.Duration, zaplog *zap.Logger) Catalog {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &redisCache{next: next, rdb: rdb, ttl: ttl, zaplog: zaplog}
}

func partnerKey(partnerID string) string {
	return "catalog:partner:" + partnerID
}

func productKey(partnerID, productID string) string {
	return "catalog:product:" + partnerID + ":" + productID
}

func (c *redisCache) Partner(ctx context.Context, partnerID string) (model.Partner, error) {
	key := partnerKey(partnerID)

	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err == nil {
		var partner model.Partner
		if err = json.Unmarshal(raw, &partner); err == nil {
			return partner, nil
		}
	}
	if err != nil && !errors.Is(err, redis.Nil) {
		c.zaplog.Warn("catalog cache read failed", zap.String("key", key), zap.Error(err))
	}

	partner, err := c.next.Partner(ctx, partnerID)
	if err != nil {
		return model.Partner{}, err
	}
	c.put(ctx, map[string]any{key: partner})
	return partner, nil
}

func (c *redisCache) Products(ctx context.Context, partnerID string, productIDs []string) ([]model.Product, error) {
	keys := make([]string, len(productIDs))
	for i, productID := range productIDs {
		keys[i] = productKey(partnerID, productID)
	}

	if products, ok := c.getProducts(ctx, keys); ok {
		return products, nil
	}

	products, err := c.next.Products(ctx, partnerID, productIDs)
	if err != nil {
		return nil, err
	}
	values := make(map[string]any, len(products))
	for i, product := range products {
		values[keys[i]] = product
	}
	c.put(ctx, values)
	return products, nil
}

// getProducts - ok только если в кэше есть все позиции
func (c *redisCache) getProducts(ctx context.Context, keys []string) ([]model.Product, bool) {
	if len(keys) == 0 {
		return nil, false
	}
	values, err := c.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		c.zaplog.Warn("catalog cache read failed", zap.Strings("keys", keys), zap.Error(err))
		return nil, false
	}

	products := make([]model.Product, 0, len(values))
	for _, value := range values {
		raw, ok := value.(string)
		if !ok {
			return nil, false
		}
		var product model.Product
		if err = json.Unmarshal([]byte(raw), &product); err != nil {
			return nil, false
		}
		products = append(products, product)
	}
	return products, true
}

func (c *redisCache) put(ctx context.Context, values map[string]any) {
	_, err := c.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for key, value := range values {
			raw, err := json.Marshal(value)
			if err != nil {
				return err
			}
			pipe.Set(ctx, key, raw, c.ttl)
		}
		return nil
	})
	if err != nil {
		c.zaplog.Warn("catalog cache write failed", zap.Error(err))
	}
}
