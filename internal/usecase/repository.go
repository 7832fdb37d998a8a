package usecase

import (
	"context"

	"github.com/DRSN-tech/product-matcher/internal/domain"
)

// StoreRepository сохраняет и загружает хранилище эмбеддингов.
type StoreRepository interface {
	Save(ctx context.Context, path string, store *domain.EmbeddingStore) error
	Load(ctx context.Context, path string) (*domain.EmbeddingStore, error)
	// Lock берет эксклюзивную блокировку сборки для пути хранилища.
	Lock(path string) (unlock func() error, err error)
}

// CatalogRepository читает строки каталога.
type CatalogRepository interface {
	ReadFile(ctx context.Context, path string) ([]domain.CatalogRow, error)
}

// ArtifactRepository публикует и получает артефакт хранилища во внешнем объектном хранилище.
type ArtifactRepository interface {
	PublishStore(ctx context.Context, localPath string) error
	FetchStore(ctx context.Context, localPath string) error
}

// ImageRepository хранит изображения каталога в объектном хранилище.
type ImageRepository interface {
	Upload(ctx context.Context, image *domain.Image) (string, error)
	Get(ctx context.Context, key string) ([]byte, error)
}

// LedgerRepository записывает журнал сборок каталога.
type LedgerRepository interface {
	RecordBuild(ctx context.Context, report *BuildReport) error
}

// ResultCache кэширует результаты идентификации.
type ResultCache interface {
	Get(ctx context.Context, key string) ([]domain.MatchResult, bool, error)
	Set(ctx context.Context, key string, results []domain.MatchResult) error
}
