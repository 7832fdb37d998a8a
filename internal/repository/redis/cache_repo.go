package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/DRSN-tech/product-matcher/internal/cfg"
	"github.com/DRSN-tech/product-matcher/internal/domain"
	"github.com/DRSN-tech/product-matcher/internal/repository/redis/converter"
	"github.com/DRSN-tech/product-matcher/pkg/clients"
	"github.com/DRSN-tech/product-matcher/pkg/e"
	"github.com/DRSN-tech/product-matcher/pkg/logger"
	"github.com/jimlawless/whereami"
	r "github.com/redis/go-redis/v9"
)

const keyPrefix = "matcher:"

// CacheRepo кэширует результаты идентификации в Redis в виде JSON с TTL.
type CacheRepo struct {
	client *clients.RedisClient
	conv   converter.MatchResultConverter
	cfg    *cfg.CacheCfg
	logger logger.Logger
}

func NewCacheRepo(client *clients.RedisClient, conv converter.MatchResultConverter,
	cfg *cfg.CacheCfg, logger logger.Logger) *CacheRepo {
	return &CacheRepo{
		client: client,
		conv:   conv,
		cfg:    cfg,
		logger: logger,
	}
}

// Get возвращает закэшированные совпадения. Поврежденная запись считается промахом и удаляется.
func (c *CacheRepo) Get(ctx context.Context, key string) ([]domain.MatchResult, bool, error) {
	redisKey := c.redisKey(key)

	val, err := c.client.Client.Get(ctx, redisKey).Result()
	if errors.Is(err, r.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, e.Wrap(whereami.WhereAmI(), err)
	}

	data, err := redisValueToBytes(val, redisKey)
	if err != nil || data == nil {
		return nil, false, err
	}

	model, err := c.unmarshalFromCache(data)
	if err != nil {
		c.logger.Warnf("Redis unmarshal failed: %v", e.Wrap(whereami.WhereAmI(), err))
		c.evict(redisKey)
		return nil, false, nil
	}

	if model.Key != key {
		c.logger.Warnf("Cache key mismatch: key=%s, model_key=%s", key, model.Key)
		c.evict(redisKey)
		return nil, false, nil
	}

	return c.conv.ToArrDomain(model.Matches), true, nil
}

// Set сохраняет совпадения с TTL из конфигурации.
func (c *CacheRepo) Set(ctx context.Context, key string, results []domain.MatchResult) error {
	data, err := c.marshalForCache(&converter.IdentifyRedisModel{
		Key:     key,
		Matches: c.conv.ToArrRedisModel(results),
	})
	if err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}

	if err := c.client.Client.Set(ctx, c.redisKey(key), data, c.cfg.TTL).Err(); err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}

	return nil
}

func (c *CacheRepo) evict(redisKey string) {
	if err := c.client.Client.Del(context.Background(), redisKey).Err(); err != nil {
		c.logger.Warnf("Redis del failed: %v", e.Wrap(whereami.WhereAmI(), err))
	}
}

// marshalForCache сериализует ответ в JSON для кэша
func (c *CacheRepo) marshalForCache(model *converter.IdentifyRedisModel) ([]byte, error) {
	return json.Marshal(model)
}

// unmarshalFromCache десериализует JSON из кэша
func (c *CacheRepo) unmarshalFromCache(data []byte) (*converter.IdentifyRedisModel, error) {
	var model converter.IdentifyRedisModel
	if err := json.Unmarshal(data, &model); err != nil {
		return nil, err
	}

	return &model, nil
}

func (c *CacheRepo) redisKey(key string) string {
	return keyPrefix + key
}

// redisValueToBytes конвертирует значение из Redis в []byte.
// Поддерживает string и []byte, возвращает ошибку для неизвестных типов.
func redisValueToBytes(val interface{}, key string) ([]byte, error) {
	switch v := val.(type) {
	case string:
		return []byte(v), nil
	case []byte:
		return v, nil
	case nil:
		return nil, nil // cache miss
	default:
		return nil, fmt.Errorf("unexpected Redis value type for key %s: %T", key, val)
	}
}
