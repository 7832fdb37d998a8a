package minio

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/DRSN-tech/product-matcher/internal/cfg"
	"github.com/DRSN-tech/product-matcher/internal/domain"
	"github.com/DRSN-tech/product-matcher/pkg/e"
	"github.com/jimlawless/whereami"
	"github.com/minio/minio-go/v7"
)

// maxObjectBytes ограничивает размер читаемого изображения.
const maxObjectBytes = 64 << 20

// ImageRepo реализует репозиторий изображений каталога поверх MinIO.
type ImageRepo struct {
	mc  *minio.Client
	cfg *cfg.MinIOCfg
}

func NewImageRepo(mc *minio.Client, cfg *cfg.MinIOCfg) *ImageRepo {
	return &ImageRepo{
		mc:  mc,
		cfg: cfg,
	}
}

// Upload загружает изображение в MinIO и возвращает ключ объекта.
func (i *ImageRepo) Upload(ctx context.Context, image *domain.Image) (string, error) {
	bucket := image.Bucket
	if bucket == "" {
		bucket = i.cfg.BucketName
	}

	info, err := i.mc.PutObject(ctx, bucket, image.ObjectKey, bytes.NewReader(image.Bytes), image.Size(), minio.PutObjectOptions{
		ContentType: image.ContentType,
	})
	if err != nil {
		return "", e.Wrap(whereami.WhereAmI(), err)
	}

	return info.Key, nil
}

// Get читает объект целиком. Отсутствующий ключ дает e.ErrImageNotFound.
func (i *ImageRepo) Get(ctx context.Context, key string) ([]byte, error) {
	obj, err := i.mc.GetObject(ctx, i.cfg.BucketName, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), mapNotFound(key, err))
	}
	defer obj.Close()

	data, err := io.ReadAll(io.LimitReader(obj, maxObjectBytes+1))
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), mapNotFound(key, err))
	}
	if len(data) > maxObjectBytes {
		return nil, e.Wrap(whereami.WhereAmI(), fmt.Errorf("%w: object %s exceeds %d bytes", e.ErrFileTooLarge, key, maxObjectBytes))
	}

	return data, nil
}

// mapNotFound переводит NoSuchKey/NoSuchBucket в e.ErrImageNotFound.
// GetObject ленивый: ошибка отсутствия объекта приходит при первом чтении.
func mapNotFound(key string, err error) error {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket":
		return fmt.Errorf("%w: %s", e.ErrImageNotFound, key)
	}
	return err
}
