package usecase

import (
	"context"
	"image"

	"github.com/DRSN-tech/product-matcher/internal/domain"
)

// FeatureExtractor превращает изображение в вектор признаков фиксированной размерности.
// Один и тот же экземпляр используется при сборке каталога и при обработке запросов.
type FeatureExtractor interface {
	Embed(ctx context.Context, img image.Image) ([]float32, error)
	EmbedSource(ctx context.Context, src domain.ImageSource) ([]float32, error)
	Dim() int
	ModelName() string
}

// ImageResolver находит и декодирует изображение строки каталога.
// Возвращает e.ErrImageNotFound или e.ErrImageDecode, если изображение недоступно.
type ImageResolver interface {
	Resolve(ctx context.Context, row domain.CatalogRow) (image.Image, error)
}

// ImageDownloader скачивает отсутствующие локально изображения каталога.
type ImageDownloader interface {
	DownloadMissing(ctx context.Context, rows []domain.CatalogRow) (*DownloadReport, error)
}

// ImageMirror копирует локальные изображения в объектное хранилище.
type ImageMirror interface {
	MirrorImages(ctx context.Context, req *MirrorImagesReq) (*MirrorImagesRes, error)
}

// EventProducer публикует события о сборке каталога.
type EventProducer interface {
	PublishStoreBuilt(ctx context.Context, event *StoreBuiltEvent) error
}
