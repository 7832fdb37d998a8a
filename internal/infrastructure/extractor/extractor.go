// Package extractor превращает изображения в эмбеддинги: препроцессинг, пул воркеров и модель.
package extractor

import (
	"context"
	"fmt"
	"image"

	"github.com/DRSN-tech/product-matcher/internal/domain"
	"github.com/DRSN-tech/product-matcher/internal/infrastructure/imagecodec"
	"github.com/DRSN-tech/product-matcher/pkg/e"
	"github.com/DRSN-tech/product-matcher/pkg/logger"
)

// Extractor загружается один раз при старте и передается сборщику каталога и сервису запросов.
// Вызовы модели ограничены семафором: maxConcurrent=1 сериализует инференс.
type Extractor struct {
	model  Model
	pre    *Preprocessor
	sem    chan struct{}
	logger logger.Logger
}

func NewExtractor(model Model, maxConcurrent int, logger logger.Logger) (*Extractor, error) {
	const op = "NewExtractor"

	if model.Dim() <= 0 {
		return nil, e.Wrap(op, fmt.Errorf("%w: model %s reports dim %d", e.ErrModelUnavailable, model.Name(), model.Dim()))
	}
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}

	logger.Infof("feature extractor ready: model=%s dim=%d input=%d workers=%d",
		model.Name(), model.Dim(), model.InputSize(), maxConcurrent)

	return &Extractor{
		model:  model,
		pre:    NewPreprocessor(model.InputSize()),
		sem:    make(chan struct{}, maxConcurrent),
		logger: logger,
	}, nil
}

func (x *Extractor) Dim() int {
	return x.model.Dim()
}

func (x *Extractor) ModelName() string {
	return x.model.Name()
}

// Embed возвращает эмбеддинг длины Dim. Ожидание свободного воркера прерывается отменой ctx.
func (x *Extractor) Embed(ctx context.Context, img image.Image) ([]float32, error) {
	const op = "Extractor.Embed"

	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, e.Wrap(op, fmt.Errorf("%w: empty image bounds", e.ErrImageDecode))
	}

	tensor := x.pre.Tensor(img)

	select {
	case x.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, e.Wrap(op, ctx.Err())
	}
	defer func() { <-x.sem }()

	vec, err := x.model.Infer(ctx, tensor)
	if err != nil {
		return nil, e.Wrap(op, err)
	}
	if len(vec) != x.model.Dim() {
		return nil, e.Wrap(op, fmt.Errorf("%w: model returned %d components, expected %d", e.ErrDimensionMismatch, len(vec), x.model.Dim()))
	}

	return vec, nil
}

// EmbedSource декодирует источник и считает эмбеддинг. При ошибке декодирования возвращает e.ErrImageDecode.
func (x *Extractor) EmbedSource(ctx context.Context, src domain.ImageSource) ([]float32, error) {
	const op = "Extractor.EmbedSource"

	img, err := imagecodec.Decode(src)
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	return x.Embed(ctx, img)
}
