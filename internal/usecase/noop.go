package usecase

import (
	"context"

	"github.com/DRSN-tech/product-matcher/internal/domain"
)

// Реализации для выключенных внешних зависимостей (MinIO, Postgres, Kafka, кэш).

type NoopCache struct{}

func (NoopCache) Get(context.Context, string) ([]domain.MatchResult, bool, error) {
	return nil, false, nil
}

func (NoopCache) Set(context.Context, string, []domain.MatchResult) error { return nil }

type NoopLedger struct{}

func (NoopLedger) RecordBuild(context.Context, *BuildReport) error { return nil }

type NoopEventProducer struct{}

func (NoopEventProducer) PublishStoreBuilt(context.Context, *StoreBuiltEvent) error { return nil }

type NoopArtifacts struct{}

func (NoopArtifacts) PublishStore(context.Context, string) error { return nil }
func (NoopArtifacts) FetchStore(context.Context, string) error   { return nil }
