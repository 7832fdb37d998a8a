// Package resolver находит изображение строки каталога: в локальной директории или в бакете MinIO.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"

	"github.com/DRSN-tech/product-matcher/internal/domain"
	"github.com/DRSN-tech/product-matcher/internal/infrastructure/imagecodec"
	"github.com/DRSN-tech/product-matcher/internal/usecase"
	"github.com/DRSN-tech/product-matcher/pkg/e"
)

// LocalResolver ищет <dir>/<id>.<ext> для расширений по порядку.
// Если img_url строки указывает на локальный путь к существующему файлу, используется он.
type LocalResolver struct {
	dir  string
	exts []string
}

func NewLocalResolver(dir string, exts []string) *LocalResolver {
	return &LocalResolver{dir: dir, exts: exts}
}

// Locate возвращает путь к найденному файлу или e.ErrImageNotFound.
func (l *LocalResolver) Locate(row domain.CatalogRow) (string, error) {
	if row.ImageRef != "" && !row.ImageIsRemote() && isFile(row.ImageRef) {
		return row.ImageRef, nil
	}

	for _, ext := range l.exts {
		path := filepath.Join(l.dir, row.ID+"."+ext)
		if isFile(path) {
			return path, nil
		}
	}

	return "", fmt.Errorf("%w: no local image for row %q in %s", e.ErrImageNotFound, row.ID, l.dir)
}

func (l *LocalResolver) Resolve(ctx context.Context, row domain.CatalogRow) (image.Image, error) {
	const op = "LocalResolver.Resolve"

	if err := ctx.Err(); err != nil {
		return nil, e.Wrap(op, err)
	}

	path, err := l.Locate(row)
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	img, err := imagecodec.Decode(domain.FilePath(path))
	if err != nil {
		return nil, e.Wrap(op, err)
	}
	return img, nil
}

// BucketResolver ищет <prefix>/<id>.<ext> в объектном хранилище.
type BucketResolver struct {
	repo   usecase.ImageRepository
	prefix string
	exts   []string
}

func NewBucketResolver(repo usecase.ImageRepository, prefix string, exts []string) *BucketResolver {
	return &BucketResolver{repo: repo, prefix: prefix, exts: exts}
}

func (b *BucketResolver) Resolve(ctx context.Context, row domain.CatalogRow) (image.Image, error) {
	const op = "BucketResolver.Resolve"

	for _, ext := range b.exts {
		data, err := b.repo.Get(ctx, ObjectKey(b.prefix, row.ID, ext))
		if errors.Is(err, e.ErrImageNotFound) {
			continue
		}
		if err != nil {
			return nil, e.Wrap(op, err)
		}

		img, err := imagecodec.Decode(domain.RawBytes(data))
		if err != nil {
			return nil, e.Wrap(op, err)
		}
		return img, nil
	}

	return nil, e.Wrap(op, fmt.Errorf("%w: no object for row %q under %q", e.ErrImageNotFound, row.ID, b.prefix))
}

// ObjectKey возвращает ключ изображения строки каталога в бакете.
func ObjectKey(prefix, id, ext string) string {
	if prefix == "" {
		return id + "." + ext
	}
	return prefix + "/" + id + "." + ext
}

// ChainResolver перебирает резолверы, пока изображение не найдено.
// Ошибка декодирования найденного изображения не приводит к переходу к следующему.
type ChainResolver struct {
	resolvers []usecase.ImageResolver
}

func NewChainResolver(resolvers ...usecase.ImageResolver) *ChainResolver {
	return &ChainResolver{resolvers: resolvers}
}

func (c *ChainResolver) Resolve(ctx context.Context, row domain.CatalogRow) (image.Image, error) {
	var lastErr error = fmt.Errorf("%w: no resolvers configured", e.ErrImageNotFound)
	for _, r := range c.resolvers {
		img, err := r.Resolve(ctx, row)
		if err == nil {
			return img, nil
		}
		if !errors.Is(err, e.ErrImageNotFound) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular()
}
