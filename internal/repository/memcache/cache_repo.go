// Package memcache реализует кэш результатов идентификации в памяти процесса.
package memcache

import (
	"context"
	"slices"

	"github.com/DRSN-tech/product-matcher/internal/cfg"
	"github.com/DRSN-tech/product-matcher/internal/domain"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// CacheRepo хранит результаты в LRU с TTL. Хранит копии, чтобы вызывающий код не мог изменить кэш.
type CacheRepo struct {
	lru *expirable.LRU[string, []domain.MatchResult]
}

func NewCacheRepo(cfg *cfg.CacheCfg) *CacheRepo {
	return &CacheRepo{
		lru: expirable.NewLRU[string, []domain.MatchResult](cfg.Size, nil, cfg.TTL),
	}
}

func (c *CacheRepo) Get(_ context.Context, key string) ([]domain.MatchResult, bool, error) {
	results, ok := c.lru.Get(key)
	if !ok {
		return nil, false, nil
	}
	return slices.Clone(results), true, nil
}

func (c *CacheRepo) Set(_ context.Context, key string, results []domain.MatchResult) error {
	c.lru.Add(key, slices.Clone(results))
	return nil
}

func (c *CacheRepo) Len() int {
	return c.lru.Len()
}
